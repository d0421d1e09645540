// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/config"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/db"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/logger"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/rules"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/segment"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

var (
	firstNames = []string{"Amina", "Brian", "Chen", "Divya", "Elena", "Femi", "Grace", "Hiro", "Ines", "Jonas"}
	lastNames  = []string{"Otieno", "Kumar", "Smith", "Garcia", "Mensah", "Tanaka", "Novak", "Silva"}
	products   = []model.LineItem{
		{SKU: "TEA-01", Name: "Green Tea", Price: 12.5},
		{SKU: "MUG-02", Name: "Ceramic Mug", Price: 18},
		{SKU: "KIT-03", Name: "Brewing Kit", Price: 65},
		{SKU: "GFT-04", Name: "Gift Box", Price: 140},
	}
)

func main() {
	owner := flag.String("owner", "demo-owner", "owner id the seeded rows belong to")
	count := flag.Int("customers", 50, "number of customers to create")
	maxOrders := flag.Int("orders", 6, "maximum orders per customer")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "crm-seeder")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx := context.Background()
	conn, err := db.Open(cfg.Database, lg)
	if err != nil {
		lg.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		lg.Fatal("migrate", zap.Error(err))
	}
	store := repository.NewPostgresStore(conn)

	s := seeder{
		customers: &service.CustomerService{Customers: store.Customers, Orders: store.Orders, Logger: lg},
		segments:  segment.NewService(store.Segments, store.Customers, cfg.SegmentStaleAfter, nil, lg),
		rnd:       rand.New(rand.NewSource(*seed)),
		now:       time.Now().UTC(),
	}
	s.orders = &service.OrderService{Orders: store.Orders, Customers: store.Customers, Spend: s.customers}

	if err := s.run(ctx, *owner, *count, *maxOrders); err != nil {
		lg.Fatal("seeding failed", zap.Error(err))
	}
	fmt.Println("Database seeding completed successfully!")
}

type seeder struct {
	customers *service.CustomerService
	orders    *service.OrderService
	segments  *segment.Service
	rnd       *rand.Rand
	now       time.Time
}

func (s seeder) run(ctx context.Context, owner string, count, maxOrders int) error {
	ins := make([]service.CustomerInput, 0, count)
	for i := 0; i < count; i++ {
		first := firstNames[s.rnd.Intn(len(firstNames))]
		last := lastNames[s.rnd.Intn(len(lastNames))]
		ins = append(ins, service.CustomerInput{
			Name:  first + " " + last,
			Email: fmt.Sprintf("%s.%s.%d@example.com", first, last, i),
		})
	}
	created, err := s.customers.CreateMany(ctx, owner, ins)
	if err != nil {
		return fmt.Errorf("customers: %w", err)
	}

	bar := progressbar.Default(int64(len(created)), "orders")
	for _, c := range created {
		for n := s.rnd.Intn(maxOrders + 1); n > 0; n-- {
			if _, err := s.orders.Create(ctx, owner, s.order(c.ID)); err != nil {
				return fmt.Errorf("order for %s: %w", c.ID, err)
			}
		}
		_ = bar.Add(1)
	}

	for _, in := range []segment.CreateInput{
		{
			Name:        "High spenders",
			Description: "Lifetime spend above 300",
			Rules:       model.All(model.Leaf(model.FieldSpend, rules.OpGT, 300)),
		},
		{
			Name:        "Lapsed regulars",
			Description: "Three or more visits, quiet for a month",
			Rules: model.All(
				model.Leaf(model.FieldVisits, rules.OpGTE, 3),
				model.Leaf(model.FieldInactiveDays, rules.OpGT, 30),
			),
		},
	} {
		res, err := s.segments.Create(ctx, owner, in)
		if err != nil {
			return fmt.Errorf("segment %q: %w", in.Name, err)
		}
		fmt.Printf("Seeded segment %q with %d customers\n", res.Segment.Name, res.Segment.CustomerCount)
	}
	return nil
}

// order builds one to three line items dated within the last 90 days.
func (s seeder) order(customerID string) service.OrderInput {
	items := make([]model.LineItem, 0, 3)
	for n := 1 + s.rnd.Intn(3); n > 0; n-- {
		it := products[s.rnd.Intn(len(products))]
		it.Quantity = 1 + s.rnd.Intn(3)
		items = append(items, it)
	}
	date := s.now.Add(-time.Duration(s.rnd.Intn(90*24)) * time.Hour)
	return service.OrderInput{CustomerID: customerID, Items: items, OrderDate: &date}
}
