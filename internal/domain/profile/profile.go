// Package profile holds the typed user signals the pricing engine reads.
package profile

// Sensitivity grades how strongly a user reacts to price.
type Sensitivity string

const (
	SensitivityLow     Sensitivity = "low"
	SensitivityMedium  Sensitivity = "medium"
	SensitivityHigh    Sensitivity = "high"
	SensitivityUnknown Sensitivity = ""
)

// Perception grades how much value a user attributes to the offering.
type Perception string

const (
	PerceptionLow     Perception = "low"
	PerceptionHigh    Perception = "high"
	PerceptionUnknown Perception = ""
)

// Profile carries the named signals the discount scoring logic depends on.
// A nil *Profile means no profile data is available; each field's zero value
// means that signal is unknown.
type Profile struct {
	PriceSensitivity     Sensitivity `json:"price_sensitivity,omitempty"`
	UrgencyLevel         int         `json:"urgency_level,omitempty"`
	BudgetRange          string      `json:"budget_range,omitempty"`
	PurchaseHistoryCount int         `json:"purchase_history_count,omitempty"`
	IsNewUser            bool        `json:"is_new_user,omitempty"`
	ValuePerception      Perception  `json:"value_perception,omitempty"`
	DiscountResponse     string      `json:"discount_response,omitempty"`
}

// PricingFactors is the subset of profile signals echoed back to the caller
// alongside a price analysis, so the deciding agent sees what influenced
// the scores.
type PricingFactors struct {
	PriceSensitivity     Sensitivity `json:"price_sensitivity"`
	BudgetRange          string      `json:"budget_range"`
	UrgencyLevel         int         `json:"urgency_level"`
	PurchaseHistoryCount int         `json:"purchase_history_count"`
	DiscountResponse     string      `json:"discount_response"`
}

// Factors extracts the pricing-relevant signals. Returns the zero value for
// a nil profile.
func (p *Profile) Factors() PricingFactors {
	if p == nil {
		return PricingFactors{}
	}
	return PricingFactors{
		PriceSensitivity:     p.PriceSensitivity,
		BudgetRange:          p.BudgetRange,
		UrgencyLevel:         p.UrgencyLevel,
		PurchaseHistoryCount: p.PurchaseHistoryCount,
		DiscountResponse:     p.DiscountResponse,
	}
}
