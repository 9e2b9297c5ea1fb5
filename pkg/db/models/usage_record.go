package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

// UsageRecord is an immutable analytics fact, created exactly once when a fax
// reaches the delivered state.
type UsageRecord struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	FaxJobID    uuid.UUID           `gorm:"column:fax_job_id;type:uuid;not null;uniqueIndex"`
	Type        enums.UsageType     `gorm:"column:type;type:usage_type;not null"`
	UnitType    enums.UsageUnitType `gorm:"column:unit_type;type:usage_unit_type;not null"`
	UsageAmount int                 `gorm:"column:usage_amount;not null"`
	Metadata    json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}
