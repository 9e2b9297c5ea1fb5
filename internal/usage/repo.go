package usage

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
)

// Repository manages persistence for usage records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.UsageRecord) error
	FindByFaxJobID(ctx context.Context, faxJobID uuid.UUID) (*models.UsageRecord, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.UsageRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByFaxJobID(ctx context.Context, faxJobID uuid.UUID) (*models.UsageRecord, error) {
	var record models.UsageRecord
	err := r.db.WithContext(ctx).
		Where("fax_job_id = ?", faxJobID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []models.UsageRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
