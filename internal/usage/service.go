package usage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
)

// Service records and reads immutable usage facts.
type Service interface {
	RecordFaxUsageWithTx(ctx context.Context, tx *gorm.DB, input RecordFaxUsageInput) (*models.UsageRecord, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageRecord, error)
}

// RecordFaxUsageInput captures one delivered fax's billable usage.
type RecordFaxUsageInput struct {
	UserID   uuid.UUID
	FaxJobID uuid.UUID
	Pages    int
	Metadata json.RawMessage
}

type service struct {
	repo Repository
}

// NewService wires a usage service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	return &service{repo: repo}, nil
}

// RecordFaxUsageWithTx appends the usage fact inside the caller's
// transaction. The unique index on fax_job_id makes a second write for the
// same job fail, which callers treat as a duplicate delivery event.
func (s *service) RecordFaxUsageWithTx(ctx context.Context, tx *gorm.DB, input RecordFaxUsageInput) (*models.UsageRecord, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.FaxJobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fax job id is required")
	}
	if input.Pages <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page count must be positive")
	}

	record := &models.UsageRecord{
		ID:          uuid.New(),
		UserID:      input.UserID,
		FaxJobID:    input.FaxJobID,
		Type:        enums.UsageTypeFax,
		UnitType:    enums.UsageUnitTypePage,
		UsageAmount: input.Pages,
		Metadata:    input.Metadata,
	}
	if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
