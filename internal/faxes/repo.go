package faxes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

// Repository manages persistence for fax jobs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.FaxJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.FaxJob, error)
	FindByProviderFaxID(ctx context.Context, provider enums.FaxProvider, providerFaxID string) (*models.FaxJob, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.FaxJob, error)
	SetProviderFaxID(ctx context.Context, id uuid.UUID, providerFaxID string) error
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) (bool, error)
	MarkTerminal(ctx context.Context, id uuid.UUID, status enums.FaxStatus) (bool, error)
	FindDeliveredMissingUsage(ctx context.Context, since time.Time, limit int) ([]models.FaxJob, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a fax repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, job *models.FaxJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.FaxJob, error) {
	var job models.FaxJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindByProviderFaxID(ctx context.Context, provider enums.FaxProvider, providerFaxID string) (*models.FaxJob, error) {
	var job models.FaxJob
	err := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Where("provider_fax_id = ?", providerFaxID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.FaxJob, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var jobs []models.FaxJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repository) SetProviderFaxID(ctx context.Context, id uuid.UUID, providerFaxID string) error {
	return r.db.WithContext(ctx).
		Model(&models.FaxJob{}).
		Where("id = ?", id).
		Update("provider_fax_id", providerFaxID).Error
}

// MarkProcessing advances a queued job. Jobs already past queued are left
// alone; progress webhooks can arrive out of order.
func (r *repository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, map[string]any{"status": enums.FaxStatusProcessing},
		enums.FaxStatusQueued)
}

// MarkDelivered is the guarded terminal transition backing exactly-once
// accrual: only one caller can move the row out of queued/processing.
func (r *repository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":       enums.FaxStatusDelivered,
		"delivered_at": deliveredAt,
	}, enums.FaxStatusQueued, enums.FaxStatusProcessing)
}

// MarkTerminal moves a live job to failed or cancelled.
func (r *repository) MarkTerminal(ctx context.Context, id uuid.UUID, status enums.FaxStatus) (bool, error) {
	if !status.IsTerminal() {
		return false, errors.New("status is not terminal")
	}
	return r.transition(ctx, id, map[string]any{"status": status},
		enums.FaxStatusQueued, enums.FaxStatusProcessing)
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any, from ...enums.FaxStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FaxJob{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindDeliveredMissingUsage returns delivered jobs without a usage record.
// The accrual transaction writes both together, so rows here indicate data
// imported from before that invariant or manual intervention.
func (r *repository) FindDeliveredMissingUsage(ctx context.Context, since time.Time, limit int) ([]models.FaxJob, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.FaxStatusDelivered).
		Where("delivered_at >= ?", since).
		Where("NOT EXISTS (SELECT 1 FROM usage_records WHERE usage_records.fax_job_id = fax_jobs.id)").
		Order("delivered_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var jobs []models.FaxJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
