package faxes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/faxpilot/faxpilot-backend/internal/ledger"
	"github.com/faxpilot/faxpilot-backend/internal/lookup"
	"github.com/faxpilot/faxpilot-backend/internal/providers"
	"github.com/faxpilot/faxpilot-backend/internal/rating"
	"github.com/faxpilot/faxpilot-backend/internal/usage"
	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	"github.com/faxpilot/faxpilot-backend/pkg/metrics"
	"github.com/faxpilot/faxpilot-backend/pkg/notifyre"
)

const maxPagesPerFax = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Sender submits a fax to the delivery provider.
type Sender interface {
	SendFax(ctx context.Context, req notifyre.SendFaxRequest) (*notifyre.SendFaxResult, error)
}

// Service is the fax lifecycle surface: quoting, authorization, submission,
// and delivery accrual.
type Service interface {
	Authorize(ctx context.Context, userID uuid.UUID, recipient string, pages int) (*Authorization, error)
	Send(ctx context.Context, input SendInput) (*models.FaxJob, error)
	HandleDeliveryEvent(ctx context.Context, event *providers.DeliveryEvent) error
	GetByID(ctx context.Context, userID, faxID uuid.UUID) (*models.FaxJob, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.FaxJob, error)
	AccrueDeliveredJob(ctx context.Context, job *models.FaxJob) error
}

// ServiceParams groups dependencies for the fax service.
type ServiceParams struct {
	Repo              Repository
	Ledger            ledger.Service
	Usage             usage.Service
	Lookup            lookup.Service
	Rating            *rating.Engine
	Sender            Sender
	TransactionRunner txRunner
	Metrics           *metrics.FaxMetrics
	Logger            *logger.Logger
	FreemiumCredits   int
}

// Authorization is the pre-send decision. It reads balances but never
// deducts; credits only move when the carrier confirms delivery.
type Authorization struct {
	Allowed         bool
	RequiredCredits int
	CreditsPerPage  int
	Balance         int
	FailOpen        bool
	Reason          string
}

// SendInput describes one outbound fax submission.
type SendInput struct {
	UserID      uuid.UUID
	Recipient   string
	Pages       int
	DocumentURL string
	Metadata    json.RawMessage
}

type service struct {
	repo            Repository
	ledger          ledger.Service
	usage           usage.Service
	lookup          lookup.Service
	rating          *rating.Engine
	sender          Sender
	txRunner        txRunner
	metrics         *metrics.FaxMetrics
	logger          *logger.Logger
	freemiumCredits int
	now             func() time.Time
}

// NewService builds the fax service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("fax repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Usage == nil {
		return nil, fmt.Errorf("usage service required")
	}
	if params.Rating == nil {
		return nil, fmt.Errorf("rating engine required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("fax sender required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.FreemiumCredits <= 0 {
		return nil, fmt.Errorf("freemium credit limit required")
	}
	return &service{
		repo:            params.Repo,
		ledger:          params.Ledger,
		usage:           params.Usage,
		lookup:          params.Lookup,
		rating:          params.Rating,
		sender:          params.Sender,
		txRunner:        params.TransactionRunner,
		metrics:         params.Metrics,
		logger:          params.Logger,
		freemiumCredits: params.FreemiumCredits,
		now:             time.Now,
	}, nil
}

// rate quotes a destination. Lookup failures never block sending: the quote
// falls back to dialed-digit rating, and when that misses too, the engine's
// fail-open default applies.
func (s *service) rate(ctx context.Context, recipient string) rating.Quote {
	digits := rating.NormalizeDigits(recipient)

	var info *rating.PortabilityInfo
	if s.lookup != nil {
		result, err := s.lookup.Lookup(ctx, recipient)
		if err != nil {
			s.logger.Warn(s.logger.WithField(ctx, "recipient_digits", digits), "carrier lookup unavailable, rating on dialed digits")
		} else {
			info = &rating.PortabilityInfo{CountryCode: result.CountryCode, LRN: result.LRN}
		}
	}

	quote := s.rating.CalculateRate(info, digits)
	if quote.FailOpen {
		s.metrics.IncRatingFailOpen()
	}
	return quote
}

func (s *service) Authorize(ctx context.Context, userID uuid.UUID, recipient string, pages int) (*Authorization, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(recipient) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}
	if pages <= 0 || pages > maxPagesPerFax {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("page count must be between 1 and %d", maxPagesPerFax))
	}

	quote := s.rate(ctx, recipient)
	required := quote.CreditsForPages(pages)

	check, err := s.ledger.CheckCredits(ctx, userID, required)
	if err != nil {
		return nil, err
	}

	auth := &Authorization{
		Allowed:         check.Allowed,
		RequiredCredits: required,
		CreditsPerPage:  quote.CreditsPerPage,
		Balance:         check.Balance,
		FailOpen:        quote.FailOpen,
	}
	if !check.Allowed {
		auth.Reason = denialReason(check, required, s.freemiumCredits)
	}
	return auth, nil
}

// denialReason distinguishes a fax that could never fit the freemium grant
// from one that merely exhausted it this period.
func denialReason(check *ledger.CreditCheck, required, freemiumCredits int) string {
	if check.FreemiumOnly {
		if required > freemiumCredits {
			return "Page limit exceeded for the free plan"
		}
		return "Monthly free fax limit reached"
	}
	return "Insufficient credits"
}

func (s *service) Send(ctx context.Context, input SendInput) (*models.FaxJob, error) {
	if strings.TrimSpace(input.DocumentURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document url is required")
	}

	auth, err := s.Authorize(ctx, input.UserID, input.Recipient, input.Pages)
	if err != nil {
		return nil, err
	}
	if !auth.Allowed {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, auth.Reason).
			WithDetails(map[string]int{
				"required_credits": auth.RequiredCredits,
				"balance":          auth.Balance,
			})
	}

	job := &models.FaxJob{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Recipient:   input.Recipient,
		Pages:       input.Pages,
		Provider:    enums.FaxProviderNotifyre,
		CostCredits: auth.RequiredCredits,
		Status:      enums.FaxStatusQueued,
		Metadata:    input.Metadata,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	ctx = s.logger.WithFaxID(ctx, job.ID.String())
	result, err := s.sender.SendFax(ctx, notifyre.SendFaxRequest{
		Recipient:   input.Recipient,
		DocumentURL: input.DocumentURL,
		Reference:   job.ID.String(),
	})
	if err != nil {
		if _, markErr := s.repo.MarkTerminal(ctx, job.ID, enums.FaxStatusFailed); markErr != nil {
			s.logger.Error(ctx, "failed to mark unsubmittable fax", markErr)
		}
		s.metrics.IncFailed(job.Provider.String(), "submit_error")
		return nil, err
	}

	if err := s.repo.SetProviderFaxID(ctx, job.ID, result.FaxID); err != nil {
		s.logger.Error(ctx, "failed to store provider fax id", err)
	}
	job.ProviderFaxID = result.FaxID

	s.metrics.IncSubmitted(job.Provider.String())
	s.logger.Info(ctx, "fax submitted")
	return job, nil
}

// HandleDeliveryEvent applies a provider webhook to the job lifecycle. The
// caller has already verified the signature and deduplicated the event ID;
// this layer still treats replays as no-ops via the status CAS.
func (s *service) HandleDeliveryEvent(ctx context.Context, event *providers.DeliveryEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery event required")
	}

	job, err := s.repo.FindByProviderFaxID(ctx, event.Provider, event.ProviderFaxID)
	if err != nil {
		return err
	}
	if job == nil {
		s.logger.Warn(s.logger.WithProvider(ctx, event.Provider.String()), "delivery event for unknown fax")
		return nil
	}
	ctx = s.logger.WithFaxID(ctx, job.ID.String())

	switch event.Status {
	case enums.FaxStatusDelivered:
		return s.accrueDelivery(ctx, job, event)
	case enums.FaxStatusFailed, enums.FaxStatusCancelled:
		moved, err := s.repo.MarkTerminal(ctx, job.ID, event.Status)
		if err != nil {
			return err
		}
		if !moved {
			s.metrics.IncDuplicateEvent(event.Provider.String())
			return nil
		}
		s.metrics.IncFailed(event.Provider.String(), event.Status.String())
		s.logger.Info(s.logger.WithField(ctx, "detail", event.StatusDetail), "fax did not deliver")
		return nil
	case enums.FaxStatusProcessing, enums.FaxStatusQueued:
		if _, err := s.repo.MarkProcessing(ctx, job.ID); err != nil {
			return err
		}
		return nil
	default:
		return nil
	}
}

// accrueDelivery runs the exactly-once settlement: the status CAS, the credit
// deduction, and the usage record commit or roll back together. A replayed
// delivery event loses the CAS and changes nothing.
func (s *service) accrueDelivery(ctx context.Context, job *models.FaxJob, event *providers.DeliveryEvent) error {
	pages := job.Pages
	if event.Pages > 0 {
		pages = event.Pages
	}

	deliveredAt := event.OccurredAt
	if deliveredAt.IsZero() {
		deliveredAt = s.now()
	}

	var consumed int
	duplicate := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).MarkDelivered(ctx, job.ID, deliveredAt)
		if err != nil {
			return err
		}
		if !moved {
			duplicate = true
			return nil
		}

		result, err := s.ledger.ConsumeWithTx(ctx, tx, ledger.ConsumeInput{
			UserID:       job.UserID,
			Amount:       job.CostCredits,
			ReferenceID:  job.ID.String(),
			AllowPartial: true,
		})
		if err != nil {
			return err
		}
		consumed = result.Consumed
		if consumed < job.CostCredits {
			s.logger.Warn(s.logger.WithField(ctx, "consumed", consumed), "balance under-funded at delivery, deducted remainder")
		}

		_, err = s.usage.RecordFaxUsageWithTx(ctx, tx, usage.RecordFaxUsageInput{
			UserID:   job.UserID,
			FaxJobID: job.ID,
			Pages:    pages,
		})
		return err
	})
	if err != nil {
		return err
	}
	if duplicate {
		s.metrics.IncDuplicateEvent(event.Provider.String())
		return nil
	}

	s.metrics.IncDelivered(event.Provider.String())
	s.metrics.AddCreditsConsumed(consumed)
	s.logger.Info(ctx, "fax delivered, credits settled")
	return nil
}

// AccrueDeliveredJob backfills the deduction and usage record for a job that
// is already delivered but has no usage row. Used by reconciliation.
func (s *service) AccrueDeliveredJob(ctx context.Context, job *models.FaxJob) error {
	if job == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "fax job required")
	}
	if job.Status != enums.FaxStatusDelivered {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job is not delivered")
	}

	var consumed int
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		result, err := s.ledger.ConsumeWithTx(ctx, tx, ledger.ConsumeInput{
			UserID:       job.UserID,
			Amount:       job.CostCredits,
			ReferenceID:  job.ID.String(),
			AllowPartial: true,
		})
		if err != nil {
			return err
		}
		consumed = result.Consumed

		_, err = s.usage.RecordFaxUsageWithTx(ctx, tx, usage.RecordFaxUsageInput{
			UserID:   job.UserID,
			FaxJobID: job.ID,
			Pages:    job.Pages,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.metrics.AddCreditsConsumed(consumed)
	return nil
}

func (s *service) GetByID(ctx context.Context, userID, faxID uuid.UUID) (*models.FaxJob, error) {
	if userID == uuid.Nil || faxID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and fax id are required")
	}
	job, err := s.repo.FindByID(ctx, faxID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fax not found")
	}
	return job, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.FaxJob, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
