package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/faxpilot/faxpilot-backend/pkg/config"
	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	"github.com/faxpilot/faxpilot-backend/pkg/metrics"
)

const freemiumConstraint = "uniq_active_freemium_subscription"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the credit ledger surface: balances, authorization checks,
// grants, and consumption.
type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	CheckCredits(ctx context.Context, userID uuid.UUID, required int) (*CreditCheck, error)
	Consume(ctx context.Context, input ConsumeInput) (*ConsumeResult, error)
	ConsumeWithTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*ConsumeResult, error)
	Grant(ctx context.Context, input GrantInput) (*models.CreditSource, error)
	EnsureFreemium(ctx context.Context, userID uuid.UUID) (*models.CreditSource, bool, error)
	ListHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error)
}

// ServiceParams groups dependencies for the ledger service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Freemium          config.FreemiumConfig
	Metrics           *metrics.FaxMetrics
	Logger            *logger.Logger
}

// Balance summarizes a user's spendable credit.
type Balance struct {
	Total        int
	FreemiumOnly bool
	Sources      []models.CreditSource
}

// CreditCheck is the outcome of an authorization probe. It never mutates
// balances beyond the freemium auto-provision side effect.
type CreditCheck struct {
	Allowed      bool
	Balance      int
	Required     int
	FreemiumOnly bool
}

// ConsumeInput describes one deduction. ReferenceID ties the ledger entries
// back to the fax job (or other billable event) that caused them.
// AllowPartial callers (delivery accrual) take whatever the balance still
// covers instead of failing; pre-send authorization leaves it unset.
type ConsumeInput struct {
	UserID       uuid.UUID
	Amount       int
	ReferenceID  string
	Metadata     json.RawMessage
	AllowPartial bool
}

// ConsumeResult reports how a deduction was split across sources.
type ConsumeResult struct {
	Consumed     int
	BalanceAfter int
	Entries      []models.CreditLedgerEntry
}

// GrantInput describes a new credit grant.
type GrantInput struct {
	UserID    uuid.UUID
	Source    enums.CreditGrantSource
	Plan      *enums.SubscriptionPlan
	Credits   int
	ExpiresAt *time.Time
	Metadata  json.RawMessage
}

type service struct {
	repo     Repository
	txRunner txRunner
	freemium config.FreemiumConfig
	metrics  *metrics.FaxMetrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Freemium.Credits <= 0 {
		return nil, fmt.Errorf("freemium credit grant must be positive")
	}
	if params.Freemium.Validity <= 0 {
		return nil, fmt.Errorf("freemium validity must be positive")
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		freemium: params.Freemium,
		metrics:  params.Metrics,
		logger:   params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sources, err := s.repo.FindSpendableByUser(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	return buildBalance(sources), nil
}

// CheckCredits reports whether the user can afford the required amount. A
// user with no spendable sources at all is provisioned onto the freemium
// plan first, then re-checked.
func (s *service) CheckCredits(ctx context.Context, userID uuid.UUID, required int) (*CreditCheck, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if required < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "required credits must not be negative")
	}

	sources, err := s.repo.FindSpendableByUser(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		if _, _, err := s.EnsureFreemium(ctx, userID); err != nil {
			return nil, err
		}
		sources, err = s.repo.FindSpendableByUser(ctx, userID, s.now())
		if err != nil {
			return nil, err
		}
	}

	balance := buildBalance(sources)
	return &CreditCheck{
		Allowed:      balance.Total >= required,
		Balance:      balance.Total,
		Required:     required,
		FreemiumOnly: balance.FreemiumOnly,
	}, nil
}

// Consume deducts in its own transaction. A concurrent spend that
// invalidates the split rolls the attempt back; one fresh attempt re-reads
// the rows before the conflict is surfaced to the caller.
func (s *service) Consume(ctx context.Context, input ConsumeInput) (*ConsumeResult, error) {
	result, err := s.consumeOnce(ctx, input)
	if isLedgerRace(err) {
		result, err = s.consumeOnce(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.AddCreditsConsumed(result.Consumed)
	return result, nil
}

func (s *service) consumeOnce(ctx context.Context, input ConsumeInput) (*ConsumeResult, error) {
	var result *ConsumeResult
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		consumed, err := s.ConsumeWithTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result = consumed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isLedgerRace(err error) bool {
	appErr := pkgerrors.As(err)
	return appErr != nil && appErr.Code() == pkgerrors.CodeStateConflict
}

// ConsumeWithTx deducts input.Amount inside the caller's transaction,
// splitting across sources in consumption order: subscription balances first
// (newest first), then free grants by soonest expiry. The whole deduction
// succeeds or the transaction must roll back; partial spends never commit.
// A guarded update lost to a concurrent spend surfaces as a state conflict
// in strict mode, which the caller must treat as a rollback-and-retry.
func (s *service) ConsumeWithTx(ctx context.Context, tx *gorm.DB, input ConsumeInput) (*ConsumeResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "consume amount must be positive")
	}
	if strings.TrimSpace(input.ReferenceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}

	repo := s.repo.WithTx(tx)
	now := s.now()

	sources, err := repo.FindSpendableByUser(ctx, input.UserID, now)
	if err != nil {
		return nil, err
	}
	sortForConsumption(sources)

	balance := 0
	for _, src := range sources {
		balance += src.Remaining()
	}
	toConsume := input.Amount
	if balance < toConsume {
		if !input.AllowPartial {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
		}
		toConsume = balance
	}

	result := &ConsumeResult{}
	remaining := toConsume
	for _, src := range sources {
		if remaining == 0 {
			break
		}
		take := src.Remaining()
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}

		ok, err := repo.ConsumeFromSource(ctx, src.ID, take, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			// A concurrent spend drained this row between the read and the
			// guarded update. Accrual callers just take less; strict callers
			// surface a conflict so the transaction rolls back and the
			// deduction can be retried against fresh rows. A genuinely
			// drained balance then fails the pre-check as insufficient.
			if input.AllowPartial {
				continue
			}
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "credit balance changed concurrently")
		}

		balance -= take
		remaining -= take

		entry := models.CreditLedgerEntry{
			ID:              uuid.New(),
			UserID:          input.UserID,
			CreditSourceID:  src.ID,
			TransactionType: enums.CreditTransactionTypeConsume,
			Source:          src.Source,
			Amount:          take,
			BalanceAfter:    balance,
			ReferenceID:     input.ReferenceID,
			Metadata:        input.Metadata,
		}
		if err := repo.CreateLedgerEntry(ctx, &entry); err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, entry)
	}

	if remaining > 0 && !input.AllowPartial {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
	}

	result.Consumed = toConsume - remaining
	result.BalanceAfter = balance
	return result, nil
}

func (s *service) Grant(ctx context.Context, input GrantInput) (*models.CreditSource, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Credits <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "grant amount must be positive")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid grant source %q", input.Source))
	}
	kind := input.Source.Kind()
	if kind == enums.CreditSourceKindSubscription {
		if input.Plan == nil || !input.Plan.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription grants require a plan")
		}
	} else if input.Plan != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "free grants must not carry a plan")
	}

	source := &models.CreditSource{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Kind:        kind,
		Source:      input.Source,
		Plan:        input.Plan,
		CreditLimit: input.Credits,
		ExpiresAt:   input.ExpiresAt,
		IsActive:    true,
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.grantWithTx(ctx, tx, source, input.Metadata)
	})
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (s *service) grantWithTx(ctx context.Context, tx *gorm.DB, source *models.CreditSource, metadata json.RawMessage) error {
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindSpendableByUser(ctx, source.UserID, s.now())
	if err != nil {
		return err
	}
	balance := source.CreditLimit
	for _, src := range existing {
		balance += src.Remaining()
	}

	if err := repo.CreateSource(ctx, source); err != nil {
		return err
	}
	return repo.CreateLedgerEntry(ctx, &models.CreditLedgerEntry{
		ID:              uuid.New(),
		UserID:          source.UserID,
		CreditSourceID:  source.ID,
		TransactionType: enums.CreditTransactionTypeGrant,
		Source:          source.Source,
		Amount:          source.CreditLimit,
		BalanceAfter:    balance,
		ReferenceID:     source.ID.String(),
		Metadata:        metadata,
	})
}

// EnsureFreemium provisions the freemium subscription for users with no
// active one. Exactly one active freemium row can exist per user; a losing
// racer hits the unique constraint and adopts the winner's row instead.
func (s *service) EnsureFreemium(ctx context.Context, userID uuid.UUID) (*models.CreditSource, bool, error) {
	if userID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	existing, err := s.repo.FindActiveFreemium(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	plan := enums.SubscriptionPlanFreemium
	expiresAt := s.now().Add(s.freemium.Validity)
	source := &models.CreditSource{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        enums.CreditSourceKindSubscription,
		Source:      enums.CreditGrantSourceSubscription,
		Plan:        &plan,
		CreditLimit: s.freemium.Credits,
		ExpiresAt:   &expiresAt,
		IsActive:    true,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.grantWithTx(ctx, tx, source, nil)
	})
	if err != nil {
		if pkgerrors.IsUniqueViolation(err, freemiumConstraint) {
			winner, findErr := s.repo.FindActiveFreemium(ctx, userID)
			if findErr != nil {
				return nil, false, findErr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, err
	}

	s.logger.Info(s.logger.WithUserID(ctx, userID.String()), "provisioned freemium subscription")
	return source, true, nil
}

func (s *service) ListHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListLedgerByUser(ctx, userID, limit)
}

func buildBalance(sources []models.CreditSource) *Balance {
	balance := &Balance{Sources: sources, FreemiumOnly: len(sources) > 0}
	for _, src := range sources {
		balance.Total += src.Remaining()
		if !src.IsFreemium() {
			balance.FreemiumOnly = false
		}
	}
	return balance
}

// sortForConsumption orders sources the way deductions drain them:
// subscription balances before free grants, newest subscription first, and
// free grants by soonest expiry so short-lived credit is not stranded.
func sortForConsumption(sources []models.CreditSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		a, b := sources[i], sources[j]
		aSub := a.Kind == enums.CreditSourceKindSubscription
		bSub := b.Kind == enums.CreditSourceKindSubscription
		if aSub != bSub {
			return aSub
		}
		if aSub {
			return a.CreatedAt.After(b.CreatedAt)
		}
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.ExpiresAt == nil:
			return false
		case b.ExpiresAt == nil:
			return true
		case !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}
