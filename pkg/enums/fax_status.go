package enums

import "fmt"

// FaxStatus is the canonical four-state lifecycle every provider callback is
// normalized into. Terminal states never transition again.
type FaxStatus string

const (
	FaxStatusQueued     FaxStatus = "queued"
	FaxStatusProcessing FaxStatus = "processing"
	FaxStatusDelivered  FaxStatus = "delivered"
	FaxStatusFailed     FaxStatus = "failed"
	FaxStatusCancelled  FaxStatus = "cancelled"
)

var validFaxStatuses = []FaxStatus{
	FaxStatusQueued,
	FaxStatusProcessing,
	FaxStatusDelivered,
	FaxStatusFailed,
	FaxStatusCancelled,
}

// String implements fmt.Stringer.
func (s FaxStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s FaxStatus) IsValid() bool {
	for _, candidate := range validFaxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s FaxStatus) IsTerminal() bool {
	switch s {
	case FaxStatusDelivered, FaxStatusFailed, FaxStatusCancelled:
		return true
	}
	return false
}

// ParseFaxStatus converts raw input into a FaxStatus.
func ParseFaxStatus(value string) (FaxStatus, error) {
	for _, candidate := range validFaxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fax status %q", value)
}
