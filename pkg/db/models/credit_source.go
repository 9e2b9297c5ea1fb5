package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

// CreditSource is one grant of spendable credit. Subscription rows are
// long-lived and mutated in place; free-credit rows are immutable except for
// credits_used increments.
type CreditSource struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Kind        enums.CreditSourceKind  `gorm:"column:kind;type:credit_source_kind;not null"`
	Source      enums.CreditGrantSource `gorm:"column:source;type:credit_grant_source;not null"`
	Plan        *enums.SubscriptionPlan `gorm:"column:plan;type:subscription_plan"`
	CreditLimit int                     `gorm:"column:credit_limit;not null"`
	CreditsUsed int                     `gorm:"column:credits_used;not null;default:0"`
	ExpiresAt   *time.Time              `gorm:"column:expires_at"`
	IsActive    bool                    `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// Remaining returns the spendable credits left on this source.
func (s CreditSource) Remaining() int {
	if s.CreditsUsed >= s.CreditLimit {
		return 0
	}
	return s.CreditLimit - s.CreditsUsed
}

// Spendable reports whether the source can fund a consumption at the given time.
func (s CreditSource) Spendable(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return false
	}
	return s.CreditsUsed < s.CreditLimit
}

// IsFreemium reports whether the source is the auto-provisioned freemium tier.
func (s CreditSource) IsFreemium() bool {
	return s.Kind == enums.CreditSourceKindSubscription &&
		s.Plan != nil && *s.Plan == enums.SubscriptionPlanFreemium
}
