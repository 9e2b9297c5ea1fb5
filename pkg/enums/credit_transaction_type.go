package enums

import "fmt"

// CreditTransactionType tags append-only ledger entries.
type CreditTransactionType string

const (
	CreditTransactionTypeGrant   CreditTransactionType = "grant"
	CreditTransactionTypeConsume CreditTransactionType = "consume"
)

var validCreditTransactionTypes = []CreditTransactionType{
	CreditTransactionTypeGrant,
	CreditTransactionTypeConsume,
}

// String implements fmt.Stringer.
func (t CreditTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t CreditTransactionType) IsValid() bool {
	for _, candidate := range validCreditTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCreditTransactionType converts raw input into a CreditTransactionType.
func ParseCreditTransactionType(value string) (CreditTransactionType, error) {
	for _, candidate := range validCreditTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit transaction type %q", value)
}
