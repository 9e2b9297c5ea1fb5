package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

// CreditLedgerEntry is an append-only audit record. Entries are never updated
// or deleted; a user's balance is reconstructable by replaying them.
type CreditLedgerEntry struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	CreditSourceID  uuid.UUID                   `gorm:"column:credit_source_id;type:uuid;not null"`
	TransactionType enums.CreditTransactionType `gorm:"column:transaction_type;type:credit_transaction_type;not null"`
	Source          enums.CreditGrantSource     `gorm:"column:source;type:credit_grant_source;not null"`
	Amount          int                         `gorm:"column:amount;not null"`
	BalanceAfter    int                         `gorm:"column:balance_after;not null"`
	ReferenceID     string                      `gorm:"column:reference_id;not null;index"`
	Metadata        json.RawMessage             `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
