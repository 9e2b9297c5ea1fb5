package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

// FaxJob tracks one outbound fax from submission through its terminal state.
// CostCredits is the quote snapshotted at submission; nothing is deducted
// until the carrier confirms delivery.
type FaxJob struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Recipient     string            `gorm:"column:recipient;not null"`
	Pages         int               `gorm:"column:pages;not null"`
	Provider      enums.FaxProvider `gorm:"column:provider;type:fax_provider;not null"`
	ProviderFaxID string            `gorm:"column:provider_fax_id;index"`
	CostCredits   int               `gorm:"column:cost_credits;not null"`
	Status        enums.FaxStatus   `gorm:"column:status;type:fax_status;not null;default:'queued'"`
	DeliveredAt   *time.Time        `gorm:"column:delivered_at"`
	Metadata      json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
