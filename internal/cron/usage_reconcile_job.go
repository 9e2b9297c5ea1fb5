package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
)

type deliveredJobFinder interface {
	FindDeliveredMissingUsage(ctx context.Context, since time.Time, limit int) ([]models.FaxJob, error)
}

type deliveredJobAccruer interface {
	AccrueDeliveredJob(ctx context.Context, job *models.FaxJob) error
}

// UsageReconcileJobParams configures the usage reconciliation job.
type UsageReconcileJobParams struct {
	Logger   *logger.Logger
	FaxRepo  deliveredJobFinder
	Accruer  deliveredJobAccruer
	Lookback time.Duration
	Limit    int
}

// NewUsageReconcileJob constructs the job that backfills credit deductions
// and usage records for delivered faxes that are missing them. The accrual
// transaction normally writes all three rows together, so this is a safety
// net for manual interventions and historical imports.
func NewUsageReconcileJob(params UsageReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.FaxRepo == nil {
		return nil, fmt.Errorf("fax repository required")
	}
	if params.Accruer == nil {
		return nil, fmt.Errorf("fax accruer required")
	}
	if params.Lookback <= 0 {
		return nil, fmt.Errorf("lookback must be positive")
	}
	if params.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	return &usageReconcileJob{
		logg:     params.Logger,
		faxRepo:  params.FaxRepo,
		accruer:  params.Accruer,
		lookback: params.Lookback,
		limit:    params.Limit,
		now:      time.Now,
	}, nil
}

type usageReconcileJob struct {
	logg     *logger.Logger
	faxRepo  deliveredJobFinder
	accruer  deliveredJobAccruer
	lookback time.Duration
	limit    int
	now      func() time.Time
}

func (j *usageReconcileJob) Name() string { return "usage-reconcile" }

func (j *usageReconcileJob) Run(ctx context.Context) error {
	since := j.now().Add(-j.lookback)
	jobs, err := j.faxRepo.FindDeliveredMissingUsage(ctx, since, j.limit)
	if err != nil {
		return fmt.Errorf("find delivered jobs missing usage: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	j.logg.Warn(j.logg.WithField(ctx, "count", len(jobs)), "delivered faxes missing usage records")

	var errs error
	reconciled := 0
	for i := range jobs {
		job := jobs[i]
		if err := j.accruer.AccrueDeliveredJob(ctx, &job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fax %s: %w", job.ID, err))
			continue
		}
		reconciled++
	}

	j.logg.Info(j.logg.WithField(ctx, "reconciled", reconciled), "usage reconciliation complete")
	return errs
}
