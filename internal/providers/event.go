package providers

import (
	"time"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

// DeliveryEvent is the provider-agnostic shape of a fax status webhook.
// Pages is zero when the provider omitted a page count.
type DeliveryEvent struct {
	EventID       string
	Provider      enums.FaxProvider
	ProviderFaxID string
	Status        enums.FaxStatus
	StatusDetail  string
	Pages         int
	OccurredAt    time.Time
}
