// internal/personalize/personalize.go
package personalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

const (
	DefaultName       = "Customer"
	DefaultPhone      = "N/A"
	DefaultLastActive = "Never"
	DefaultDiscount   = "10"
	DefaultStoreName  = "Our Store"
	DefaultCouponCode = "WELCOME10"

	DateLayout = "Jan 2, 2006"
)

// placeholders is the closed set of tokens a template may contain.
var placeholders = []string{
	"{customerName}",
	"{customerEmail}",
	"{customerPhone}",
	"{customerSpend}",
	"{customerVisits}",
	"{lastActive}",
	"{name}",
	"{Name}",
	"{email}",
	"{phone}",
	"{discount}",
	"{storeName}",
	"{couponCode}",
}

var known = func() map[string]bool {
	m := make(map[string]bool, len(placeholders))
	for _, p := range placeholders {
		m[p] = true
	}
	return m
}()

var tokenRe = regexp.MustCompile(`\{[^{}]*\}`)

var greetings = []string{"hi ", "hello ", "dear "}

// Result is one rendered message.
type Result struct {
	CustomerID          string            `json:"customer_id,omitempty"`
	OriginalMessage     string            `json:"original_message"`
	PersonalizedMessage string            `json:"personalized_message"`
	PersonalizationData map[string]string `json:"personalization_data"`
}

// Validation reports placeholders outside the known set.
type Validation struct {
	IsValid               bool     `json:"is_valid"`
	InvalidPlaceholders   []string `json:"invalid_placeholders"`
	AvailablePlaceholders []string `json:"available_placeholders"`
}

// Placeholders returns the supported tokens in a stable order.
func Placeholders() []string {
	out := make([]string, len(placeholders))
	copy(out, placeholders)
	return out
}

// Personalize substitutes every known placeholder and prepends a greeting
// unless the rendered text already opens with one.
func Personalize(template string, c *model.Customer, fallbackName string, customData map[string]string) Result {
	data := values(c, fallbackName, customData)

	// one pass, so values taken from customer data are never expanded again
	pairs := make([]string, 0, 2*len(placeholders))
	for _, p := range placeholders {
		pairs = append(pairs, p, data[p])
	}
	out := strings.NewReplacer(pairs...).Replace(template)
	if !hasGreeting(out) {
		out = "Hi " + data["{customerName}"] + ", " + out
	}

	res := Result{
		OriginalMessage:     template,
		PersonalizedMessage: out,
		PersonalizationData: make(map[string]string, len(data)),
	}
	if c != nil {
		res.CustomerID = c.ID
	}
	for k, v := range data {
		res.PersonalizationData[strings.Trim(k, "{}")] = v
	}
	return res
}

// PersonalizeMessages renders template for each customer, preserving order.
func PersonalizeMessages(template string, customers []model.Customer, fallbackName string, customData map[string]string) []Result {
	out := make([]Result, len(customers))
	for i := range customers {
		out[i] = Personalize(template, &customers[i], fallbackName, customData)
	}
	return out
}

// ValidateTemplate flags every {token} not in the known set, once each.
func ValidateTemplate(message string) Validation {
	v := Validation{IsValid: true, InvalidPlaceholders: []string{}, AvailablePlaceholders: Placeholders()}
	seen := map[string]bool{}
	for _, tok := range tokenRe.FindAllString(message, -1) {
		if known[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		v.InvalidPlaceholders = append(v.InvalidPlaceholders, tok)
	}
	sort.Strings(v.InvalidPlaceholders)
	v.IsValid = len(v.InvalidPlaceholders) == 0
	return v
}

func hasGreeting(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, g := range greetings {
		if strings.HasPrefix(lower, g) {
			return true
		}
	}
	return false
}

func values(c *model.Customer, fallbackName string, customData map[string]string) map[string]string {
	if c == nil {
		c = &model.Customer{}
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = strings.TrimSpace(fallbackName)
	}
	if name == "" {
		name = DefaultName
	}
	phone := DefaultPhone
	if c.Phone != nil && strings.TrimSpace(*c.Phone) != "" {
		phone = *c.Phone
	}
	lastActive := DefaultLastActive
	if c.LastActive != nil {
		lastActive = c.LastActive.Format(DateLayout)
	}

	data := map[string]string{
		"{customerName}":   name,
		"{customerEmail}":  c.Email,
		"{customerPhone}":  phone,
		"{customerSpend}":  strconv.FormatFloat(c.Spend, 'f', -1, 64),
		"{customerVisits}": strconv.Itoa(c.Visits),
		"{lastActive}":     lastActive,
		"{name}":           name,
		"{Name}":           name,
		"{email}":          c.Email,
		"{phone}":          phone,
		"{discount}":       pick(customData, "discount", DefaultDiscount),
		"{storeName}":      pick(customData, "storeName", DefaultStoreName),
		"{couponCode}":     pick(customData, "couponCode", DefaultCouponCode),
	}
	return data
}

func pick(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}
