package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

// Repository manages persistence for credit sources and ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSource(ctx context.Context, source *models.CreditSource) error
	FindSpendableByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.CreditSource, error)
	FindActiveFreemium(ctx context.Context, userID uuid.UUID) (*models.CreditSource, error)
	ConsumeFromSource(ctx context.Context, sourceID uuid.UUID, amount int, now time.Time) (bool, error)
	CreateLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error
	ListLedgerByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSource(ctx context.Context, source *models.CreditSource) error {
	return r.db.WithContext(ctx).Create(source).Error
}

func (r *repository) FindSpendableByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.CreditSource, error) {
	var sources []models.CreditSource
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("is_active = ?", true).
		Where("credits_used < credit_limit").
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *repository) FindActiveFreemium(ctx context.Context, userID uuid.UUID) (*models.CreditSource, error) {
	var source models.CreditSource
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("kind = ?", enums.CreditSourceKindSubscription).
		Where("plan = ?", enums.SubscriptionPlanFreemium).
		Where("is_active = ?", true).
		First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// ConsumeFromSource increments credits_used only when the row can still fund
// the amount. The guard runs inside the UPDATE itself, so concurrent spends
// against the same row cannot overdraw it.
func (r *repository) ConsumeFromSource(ctx context.Context, sourceID uuid.UUID, amount int, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CreditSource{}).
		Where("id = ?", sourceID).
		Where("is_active = ?", true).
		Where("credits_used + ? <= credit_limit", amount).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Update("credits_used", gorm.Expr("credits_used + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CreateLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListLedgerByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.CreditLedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
