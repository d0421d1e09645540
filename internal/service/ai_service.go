package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/cache"
	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/personalize"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/rules"
)

// AIService turns free text into segment rules and message drafts. Without a
// generator, or when it fails, deterministic local fallbacks answer instead.
type AIService struct {
	Generator TextGenerator
	Cache     cache.KVStore
	CacheTTL  time.Duration
	// StrictRules sends generated rule trees through rules.Validate and
	// falls back when they fail.
	StrictRules bool
	Logger      *zap.Logger
}

const rulesPrompt = `Convert the audience description into a JSON rule tree.
Leaves look like {"field":"spend|visits|inactive_days","op":">|>=|<|<=|==|!=","value":<number>}.
Groups look like {"and":[...]} or {"or":[...]}. Reply with JSON only.
Description: %s`

const messagesPrompt = `Write exactly 3 short marketing messages for this campaign goal.
You may use only these placeholders: %s.
Reply with a JSON array of 3 strings only.
Goal: %s`

func (s *AIService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func cacheKey(kind, text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return "ai:" + kind + ":" + hex.EncodeToString(sum[:])
}

// ToRules converts a description such as "spent over 5000 and inactive for 30
// days" into a rule tree.
func (s *AIService) ToRules(ctx context.Context, text string) (model.RuleGroup, error) {
	if strings.TrimSpace(text) == "" {
		return model.RuleGroup{}, appErrors.NewValidation("text is required")
	}
	key := cacheKey("rules", text)
	var cached model.RuleGroup
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	if s.Generator != nil {
		out, err := s.Generator.Generate(ctx, fmt.Sprintf(rulesPrompt, text))
		if err == nil {
			var node model.RuleGroup
			if err = json.Unmarshal([]byte(stripFences(out)), &node); err == nil && s.StrictRules {
				err = rules.Validate(node)
			}
			if err == nil {
				s.store(ctx, key, node)
				return node, nil
			}
		}
		s.logger().Warn("rule generation failed, using fallback", zap.Error(err))
	}
	return FallbackRules(text), nil
}

// ToMessages drafts three message templates for goal.
func (s *AIService) ToMessages(ctx context.Context, goal string) ([]string, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, appErrors.NewValidation("goal is required")
	}
	key := cacheKey("messages", goal)
	var cached []string
	if s.lookup(ctx, key, &cached) && len(cached) == 3 {
		return cached, nil
	}

	if s.Generator != nil {
		out, err := s.Generator.Generate(ctx, fmt.Sprintf(messagesPrompt, strings.Join(personalize.Placeholders(), ", "), goal))
		if err == nil {
			var msgs []string
			if err = json.Unmarshal([]byte(stripFences(out)), &msgs); err == nil {
				err = checkMessages(msgs)
			}
			if err == nil {
				s.store(ctx, key, msgs)
				return msgs, nil
			}
		}
		s.logger().Warn("message generation failed, using fallback", zap.Error(err))
	}
	return FallbackMessages(goal), nil
}

func checkMessages(msgs []string) error {
	if len(msgs) != 3 {
		return fmt.Errorf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("message %d is empty", i)
		}
		if v := personalize.ValidateTemplate(m); !v.IsValid {
			return fmt.Errorf("message %d uses unknown placeholders %v", i, v.InvalidPlaceholders)
		}
	}
	return nil
}

func (s *AIService) lookup(ctx context.Context, key string, v any) bool {
	if s.Cache == nil {
		return false
	}
	err := cache.GetJSON(ctx, s.Cache, key, v)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.logger().Warn("ai cache read failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

func (s *AIService) store(ctx context.Context, key string, v any) {
	if s.Cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.Cache, key, v, s.CacheTTL); err != nil {
		s.logger().Warn("ai cache write failed", zap.String("key", key), zap.Error(err))
	}
}

var fenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*(.*?)\\s*```\\s*$")

func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}

const comparators = `more than|greater than|over|above|at least|less than|fewer than|under|below|at most`

var (
	spendRe    = regexp.MustCompile(`(?i)spen[dt]\w*\s+(?:(` + comparators + `)\s+)?(?:rs\.?\s*|inr\s*|\$|₹)?(\d+(?:\.\d+)?)`)
	visitsRe   = regexp.MustCompile(`(?i)(?:(` + comparators + `)\s+)?(\d+)\s+visits?`)
	inactiveRe = regexp.MustCompile(`(?i)inactive\s+(?:for\s+)?(?:(` + comparators + `)\s+)?(\d+)\s+days?`)
)

func comparatorOp(word string) string {
	switch strings.ToLower(word) {
	case "at least":
		return rules.OpGTE
	case "at most":
		return rules.OpLTE
	case "less than", "fewer than", "under", "below":
		return rules.OpLT
	}
	return rules.OpGT
}

// FallbackRules scans text for spend, visit and inactivity phrases. With no
// match it returns spend > 1000.
func FallbackRules(text string) model.RuleGroup {
	var leaves []model.RuleNode
	if m := spendRe.FindStringSubmatch(text); m != nil {
		v, _ := strconv.ParseFloat(m[2], 64)
		leaves = append(leaves, model.Leaf(model.FieldSpend, comparatorOp(m[1]), v))
	}
	if m := visitsRe.FindStringSubmatch(text); m != nil {
		v, _ := strconv.ParseFloat(m[2], 64)
		leaves = append(leaves, model.Leaf(model.FieldVisits, comparatorOp(m[1]), v))
	}
	if m := inactiveRe.FindStringSubmatch(text); m != nil {
		v, _ := strconv.ParseFloat(m[2], 64)
		leaves = append(leaves, model.Leaf(model.FieldInactiveDays, comparatorOp(m[1]), v))
	} else if strings.Contains(strings.ToLower(text), "inactive") {
		leaves = append(leaves, model.Leaf(model.FieldInactiveDays, rules.OpGT, 30))
	}
	if len(leaves) == 0 {
		leaves = append(leaves, model.Leaf(model.FieldSpend, rules.OpGT, 1000))
	}
	return model.All(leaves...)
}

type messageBucket struct {
	keywords  []string
	templates []string
}

var messageBuckets = []messageBucket{
	{
		keywords: []string{"win back", "inactive", "miss", "return", "come back"},
		templates: []string{
			"Hi {name}, we miss you! Come back and enjoy {discount}% off your next order.",
			"It's been a while, {name}. Use code {couponCode} for a welcome-back treat at {storeName}.",
			"{name}, your favourites are waiting at {storeName}. Here's {discount}% off to say hello again.",
		},
	},
	{
		keywords: []string{"discount", "sale", "offer", "off", "deal"},
		templates: []string{
			"Hi {name}, our sale is live! Take {discount}% off with code {couponCode}.",
			"{name}, don't miss {discount}% off everything at {storeName} this week.",
			"Exclusive deal for you, {name}: use {couponCode} at checkout and save {discount}%.",
		},
	},
	{
		keywords: []string{"new", "launch", "arrival", "collection"},
		templates: []string{
			"Hi {name}, something new just landed at {storeName}. Be the first to see it!",
			"{name}, our new collection is here. Enjoy {discount}% off your first pick with {couponCode}.",
			"Fresh arrivals at {storeName}, {name}. Come take a look before they're gone.",
		},
	},
	{
		keywords: []string{"thank", "loyal", "vip", "reward"},
		templates: []string{
			"Thank you for being with us, {name}! Here's {discount}% off as a small reward.",
			"{name}, you're one of our best customers. Enjoy code {couponCode} on us.",
			"Hi {name}, VIPs like you get early access at {storeName}. Thanks for your loyalty!",
		},
	},
}

var defaultMessages = []string{
	"Hi {name}, we have something special for you at {storeName}!",
	"{name}, enjoy {discount}% off your next purchase with code {couponCode}.",
	"Thanks for shopping with {storeName}, {name}. See what's new this week!",
}

// FallbackMessages picks three static templates by goal keyword.
func FallbackMessages(goal string) []string {
	g := strings.ToLower(goal)
	for _, b := range messageBuckets {
		for _, k := range b.keywords {
			if strings.Contains(g, k) {
				return append([]string(nil), b.templates...)
			}
		}
	}
	return append([]string(nil), defaultMessages...)
}
