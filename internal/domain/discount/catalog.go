package discount

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// OptionType enumerates the discretionary discount categories an agent may
// choose from.
type OptionType string

const (
	OptionNewUser          OptionType = "new_user"
	OptionUrgentConversion OptionType = "urgent_conversion"
	OptionReturningUser    OptionType = "returning_user"
	OptionBulkPurchase     OptionType = "bulk_purchase"
	OptionVIP              OptionType = "vip_discount"
	// OptionNone is the explicit "no discount" choice. It is not a catalog
	// entry: it has no range and is never persisted to the ledger.
	OptionNone OptionType = "none"
)

// CalcType enumerates how a discount value is applied to an amount.
type CalcType string

const (
	CalcPercentage  CalcType = "percentage"
	CalcFixedAmount CalcType = "fixed_amount"
)

// Option is one catalog entry: a discount category with its allowed value
// range (fractions in [0,1] for percentage type) and guidance text for the
// deciding agent.
type Option struct {
	Type        OptionType
	Name        string
	CalcType    CalcType
	MinDiscount decimal.Decimal
	MaxDiscount decimal.Decimal
	Description string
	Guidance    string
}

// Catalog is the immutable set of discount options, constructed once at
// startup and injected where needed. Safe for unlimited concurrent readers.
type Catalog struct {
	options map[OptionType]Option
	order   []OptionType
}

// NewCatalog builds a catalog from the given options. Order is preserved for
// deterministic enumeration.
func NewCatalog(options ...Option) *Catalog {
	m := make(map[OptionType]Option, len(options))
	order := make([]OptionType, 0, len(options))
	for _, o := range options {
		if _, dup := m[o.Type]; dup {
			continue
		}
		m[o.Type] = o
		order = append(order, o.Type)
	}
	return &Catalog{options: m, order: order}
}

// DefaultCatalog returns the standard five-category catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Option{
			Type:        OptionNewUser,
			Name:        "New customer welcome discount",
			CalcType:    CalcPercentage,
			MinDiscount: decimal.NewFromFloat(0.10),
			MaxDiscount: decimal.NewFromFloat(0.30),
			Description: "First-purchase incentive for new users, tunable by intent strength",
			Guidance:    "Use for new users with strong learning intent; 15-25% is typical",
		},
		Option{
			Type:        OptionUrgentConversion,
			Name:        "Urgent conversion discount",
			CalcType:    CalcPercentage,
			MinDiscount: decimal.NewFromFloat(0.15),
			MaxDiscount: decimal.NewFromFloat(0.40),
			Description: "Stronger incentive for high-urgency users close to a decision",
			Guidance:    "Use when urgency is 4+ and budget allows; 20-35% works well",
		},
		Option{
			Type:        OptionReturningUser,
			Name:        "Returning customer discount",
			CalcType:    CalcPercentage,
			MinDiscount: decimal.NewFromFloat(0.05),
			MaxDiscount: decimal.NewFromFloat(0.20),
			Description: "Repeat-purchase incentive for users who already bought courses",
			Guidance:    "Use for repeat buyers; scale 5-15% with past purchase volume",
		},
		Option{
			Type:        OptionBulkPurchase,
			Name:        "Bulk purchase discount",
			CalcType:    CalcPercentage,
			MinDiscount: decimal.NewFromFloat(0.10),
			MaxDiscount: decimal.NewFromFloat(0.25),
			Description: "Multi-course purchase incentive",
			Guidance:    "Use for carts of two or more courses; more courses, bigger discount",
		},
		Option{
			Type:        OptionVIP,
			Name:        "VIP exclusive discount",
			CalcType:    CalcPercentage,
			MinDiscount: decimal.NewFromFloat(0.20),
			MaxDiscount: decimal.NewFromFloat(0.50),
			Description: "Largest discount tier, reserved for high-value users",
			Guidance:    "Use sparingly, only for identified high-value users",
		},
	)
}

// Get returns the catalog entry for the given type.
func (c *Catalog) Get(t OptionType) (Option, bool) {
	o, ok := c.options[t]
	return o, ok
}

// Options returns all catalog entries in registration order.
func (c *Catalog) Options() []Option {
	out := make([]Option, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.options[t])
	}
	return out
}

// InRange reports whether value lies inside the allowed [min,max] range for
// the given option type. Unknown types are never in range.
func (c *Catalog) InRange(t OptionType, value decimal.Decimal) bool {
	o, ok := c.options[t]
	if !ok {
		return false
	}
	return value.GreaterThanOrEqual(o.MinDiscount) && value.LessThanOrEqual(o.MaxDiscount)
}

// Guidance renders the catalog as prompt guidance for the deciding agent.
func (c *Catalog) Guidance() string {
	var b strings.Builder
	b.WriteString("Discount selection guidance\n")
	types := make([]OptionType, len(c.order))
	copy(types, c.order)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		o := c.options[t]
		fmt.Fprintf(&b, "- %s: %s%%-%s%% — %s\n",
			o.Name,
			o.MinDiscount.Mul(decimal.NewFromInt(100)).StringFixed(0),
			o.MaxDiscount.Mul(decimal.NewFromInt(100)).StringFixed(0),
			o.Guidance,
		)
	}
	return b.String()
}
