package enums

import "fmt"

// FaxProvider names a carrier integration.
type FaxProvider string

const (
	FaxProviderNotifyre FaxProvider = "notifyre"
	FaxProviderTelnyx   FaxProvider = "telnyx"
)

var validFaxProviders = []FaxProvider{
	FaxProviderNotifyre,
	FaxProviderTelnyx,
}

// String implements fmt.Stringer.
func (p FaxProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p FaxProvider) IsValid() bool {
	for _, candidate := range validFaxProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseFaxProvider converts raw input into a FaxProvider.
func ParseFaxProvider(value string) (FaxProvider, error) {
	for _, candidate := range validFaxProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fax provider %q", value)
}
