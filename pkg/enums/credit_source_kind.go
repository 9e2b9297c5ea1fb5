package enums

import "fmt"

// CreditSourceKind separates long-lived subscription balances from one-shot
// free-credit grants.
type CreditSourceKind string

const (
	CreditSourceKindSubscription CreditSourceKind = "subscription"
	CreditSourceKindFree         CreditSourceKind = "free"
)

var validCreditSourceKinds = []CreditSourceKind{
	CreditSourceKindSubscription,
	CreditSourceKindFree,
}

// String implements fmt.Stringer.
func (k CreditSourceKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k CreditSourceKind) IsValid() bool {
	for _, candidate := range validCreditSourceKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseCreditSourceKind converts raw input into a CreditSourceKind.
func ParseCreditSourceKind(value string) (CreditSourceKind, error) {
	for _, candidate := range validCreditSourceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit source kind %q", value)
}
