package enums

import "fmt"

// SubscriptionPlan names the billing tier behind a subscription credit source.
type SubscriptionPlan string

const (
	SubscriptionPlanFreemium SubscriptionPlan = "freemium"
	SubscriptionPlanBasic    SubscriptionPlan = "basic"
	SubscriptionPlanPro      SubscriptionPlan = "pro"
)

var validSubscriptionPlans = []SubscriptionPlan{
	SubscriptionPlanFreemium,
	SubscriptionPlanBasic,
	SubscriptionPlanPro,
}

// String implements fmt.Stringer.
func (p SubscriptionPlan) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p SubscriptionPlan) IsValid() bool {
	for _, candidate := range validSubscriptionPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseSubscriptionPlan converts raw input into a SubscriptionPlan.
func ParseSubscriptionPlan(value string) (SubscriptionPlan, error) {
	for _, candidate := range validSubscriptionPlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription plan %q", value)
}
