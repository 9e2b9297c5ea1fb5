package enums

import "fmt"

// CreditGrantSource identifies the producer that created a credit grant.
type CreditGrantSource string

const (
	CreditGrantSourceSubscription CreditGrantSource = "subscription"
	CreditGrantSourceSignup       CreditGrantSource = "signup"
	CreditGrantSourceReferral     CreditGrantSource = "referral"
	CreditGrantSourceAd           CreditGrantSource = "ad"
	CreditGrantSourcePromotion    CreditGrantSource = "promotion"
	CreditGrantSourceManual       CreditGrantSource = "manual"
)

var validCreditGrantSources = []CreditGrantSource{
	CreditGrantSourceSubscription,
	CreditGrantSourceSignup,
	CreditGrantSourceReferral,
	CreditGrantSourceAd,
	CreditGrantSourcePromotion,
	CreditGrantSourceManual,
}

// String implements fmt.Stringer.
func (s CreditGrantSource) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s CreditGrantSource) IsValid() bool {
	for _, candidate := range validCreditGrantSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// Kind maps a grant source onto the credit-source kind it produces.
func (s CreditGrantSource) Kind() CreditSourceKind {
	if s == CreditGrantSourceSubscription {
		return CreditSourceKindSubscription
	}
	return CreditSourceKindFree
}

// ParseCreditGrantSource converts raw input into a CreditGrantSource.
func ParseCreditGrantSource(value string) (CreditGrantSource, error) {
	for _, candidate := range validCreditGrantSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit grant source %q", value)
}
