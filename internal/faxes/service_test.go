package faxes

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/faxpilot/faxpilot-backend/internal/ledger"
	"github.com/faxpilot/faxpilot-backend/internal/lookup"
	"github.com/faxpilot/faxpilot-backend/internal/providers"
	"github.com/faxpilot/faxpilot-backend/internal/rating"
	"github.com/faxpilot/faxpilot-backend/internal/usage"
	"github.com/faxpilot/faxpilot-backend/pkg/config"
	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	"github.com/faxpilot/faxpilot-backend/pkg/notifyre"
)

type fakeFaxRepo struct {
	jobs map[uuid.UUID]*models.FaxJob
}

func newFakeFaxRepo() *fakeFaxRepo {
	return &fakeFaxRepo{jobs: map[uuid.UUID]*models.FaxJob{}}
}

func (f *fakeFaxRepo) WithTx(_ *gorm.DB) Repository { return f }

func (f *fakeFaxRepo) Create(_ context.Context, job *models.FaxJob) error {
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeFaxRepo) FindByID(_ context.Context, id uuid.UUID) (*models.FaxJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeFaxRepo) FindByProviderFaxID(_ context.Context, provider enums.FaxProvider, providerFaxID string) (*models.FaxJob, error) {
	for _, job := range f.jobs {
		if job.Provider == provider && job.ProviderFaxID == providerFaxID {
			clone := *job
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeFaxRepo) ListByUser(_ context.Context, userID uuid.UUID, _ int) ([]models.FaxJob, error) {
	var out []models.FaxJob
	for _, job := range f.jobs {
		if job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeFaxRepo) SetProviderFaxID(_ context.Context, id uuid.UUID, providerFaxID string) error {
	if job, ok := f.jobs[id]; ok {
		job.ProviderFaxID = providerFaxID
	}
	return nil
}

func (f *fakeFaxRepo) MarkProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	job, ok := f.jobs[id]
	if !ok || job.Status != enums.FaxStatusQueued {
		return false, nil
	}
	job.Status = enums.FaxStatusProcessing
	return true, nil
}

func (f *fakeFaxRepo) MarkDelivered(_ context.Context, id uuid.UUID, deliveredAt time.Time) (bool, error) {
	job, ok := f.jobs[id]
	if !ok || (job.Status != enums.FaxStatusQueued && job.Status != enums.FaxStatusProcessing) {
		return false, nil
	}
	job.Status = enums.FaxStatusDelivered
	job.DeliveredAt = &deliveredAt
	return true, nil
}

func (f *fakeFaxRepo) MarkTerminal(_ context.Context, id uuid.UUID, status enums.FaxStatus) (bool, error) {
	job, ok := f.jobs[id]
	if !ok || (job.Status != enums.FaxStatusQueued && job.Status != enums.FaxStatusProcessing) {
		return false, nil
	}
	job.Status = status
	return true, nil
}

func (f *fakeFaxRepo) FindDeliveredMissingUsage(_ context.Context, _ time.Time, _ int) ([]models.FaxJob, error) {
	return nil, nil
}

type fakeLedger struct {
	balance      int
	freemiumOnly bool
	consumed     []ledger.ConsumeInput
	consumeErr   error
}

func (f *fakeLedger) GetBalance(_ context.Context, _ uuid.UUID) (*ledger.Balance, error) {
	return &ledger.Balance{Total: f.balance, FreemiumOnly: f.freemiumOnly}, nil
}

func (f *fakeLedger) CheckCredits(_ context.Context, _ uuid.UUID, required int) (*ledger.CreditCheck, error) {
	return &ledger.CreditCheck{
		Allowed:      f.balance >= required,
		Balance:      f.balance,
		Required:     required,
		FreemiumOnly: f.freemiumOnly,
	}, nil
}

func (f *fakeLedger) Consume(ctx context.Context, input ledger.ConsumeInput) (*ledger.ConsumeResult, error) {
	return f.ConsumeWithTx(ctx, nil, input)
}

func (f *fakeLedger) ConsumeWithTx(_ context.Context, _ *gorm.DB, input ledger.ConsumeInput) (*ledger.ConsumeResult, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	take := input.Amount
	if take > f.balance {
		if !input.AllowPartial {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
		}
		take = f.balance
	}
	f.balance -= take
	f.consumed = append(f.consumed, input)
	return &ledger.ConsumeResult{Consumed: take, BalanceAfter: f.balance}, nil
}

func (f *fakeLedger) Grant(_ context.Context, _ ledger.GrantInput) (*models.CreditSource, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLedger) EnsureFreemium(_ context.Context, _ uuid.UUID) (*models.CreditSource, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (f *fakeLedger) ListHistory(_ context.Context, _ uuid.UUID, _ int) ([]models.CreditLedgerEntry, error) {
	return nil, nil
}

type fakeUsage struct {
	recorded []usage.RecordFaxUsageInput
	err      error
}

func (f *fakeUsage) RecordFaxUsageWithTx(_ context.Context, _ *gorm.DB, input usage.RecordFaxUsageInput) (*models.UsageRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.recorded = append(f.recorded, input)
	return &models.UsageRecord{ID: uuid.New(), FaxJobID: input.FaxJobID, UsageAmount: input.Pages}, nil
}

func (f *fakeUsage) ListByUser(_ context.Context, _ uuid.UUID, _ int) ([]models.UsageRecord, error) {
	return nil, nil
}

type fakeLookup struct {
	result *lookup.Result
	err    error
}

func (f *fakeLookup) Lookup(_ context.Context, _ string) (*lookup.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSender struct {
	result *notifyre.SendFaxResult
	err    error
	calls  int
}

func (f *fakeSender) SendFax(_ context.Context, _ notifyre.SendFaxRequest) (*notifyre.SendFaxResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type testDeps struct {
	repo   *fakeFaxRepo
	ledger *fakeLedger
	usage  *fakeUsage
	lookup *fakeLookup
	sender *fakeSender
}

func newTestService(t *testing.T, deps *testDeps) Service {
	t.Helper()

	table, err := rating.NewTable([]string{"1212555", "1919555"}, []int64{70_000, 210_000})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	engine, err := rating.NewEngine(table, config.RatingConfig{
		CreditValueMicroUSD:   70_000,
		DefaultCreditsPerPage: 1,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	svc, err := NewService(ServiceParams{
		Repo:              deps.repo,
		Ledger:            deps.ledger,
		Usage:             deps.usage,
		Lookup:            deps.lookup,
		Rating:            engine,
		Sender:            deps.sender,
		TransactionRunner: stubTxRunner{},
		Logger:            logger.New(logger.Options{ServiceName: "faxes-test", Output: io.Discard}),
		FreemiumCredits:   5,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func defaultDeps() *testDeps {
	return &testDeps{
		repo:   newFakeFaxRepo(),
		ledger: &fakeLedger{balance: 100},
		usage:  &fakeUsage{},
		lookup: &fakeLookup{result: &lookup.Result{CountryCode: "US"}},
		sender: &fakeSender{result: &notifyre.SendFaxResult{FaxID: "fax_prov_1"}},
	}
}

func TestAuthorizeQuotesFromRateTable(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)

	auth, err := svc.Authorize(context.Background(), uuid.New(), "+12125551234", 3)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !auth.Allowed || auth.FailOpen {
		t.Fatalf("unexpected auth %+v", auth)
	}
	// 70000 micro-USD/min at 70000 per credit = 1 credit per page.
	if auth.CreditsPerPage != 1 || auth.RequiredCredits != 3 {
		t.Fatalf("unexpected quote %+v", auth)
	}
}

func TestAuthorizeUsesLRNRate(t *testing.T) {
	deps := defaultDeps()
	deps.lookup.result = &lookup.Result{CountryCode: "US", LRN: "9195550100"}
	svc := newTestService(t, deps)

	auth, err := svc.Authorize(context.Background(), uuid.New(), "+12125551234", 2)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	// The ported carrier rates at 210000 micro-USD/min: 3 credits per page.
	if auth.CreditsPerPage != 3 || auth.RequiredCredits != 6 {
		t.Fatalf("expected LRN-rated quote, got %+v", auth)
	}
}

func TestAuthorizeFailsOpenOnLookupOutage(t *testing.T) {
	deps := defaultDeps()
	deps.lookup.err = errors.New("telnyx down")
	svc := newTestService(t, deps)

	auth, err := svc.Authorize(context.Background(), uuid.New(), "+99912345678", 3)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !auth.FailOpen {
		t.Fatal("expected fail-open quote for unknown destination")
	}
	if auth.RequiredCredits != 3 {
		t.Fatalf("expected default 1 credit/page, got %+v", auth)
	}
}

func TestAuthorizeFreemiumDenialReasons(t *testing.T) {
	deps := defaultDeps()
	deps.ledger.balance = 2
	deps.ledger.freemiumOnly = true
	deps.lookup.result = &lookup.Result{CountryCode: "US", LRN: "9195550100"}
	svc := newTestService(t, deps)
	ctx := context.Background()

	// 3 pages at 3 credits/page = 9 credits: more than the 5-credit plan
	// could ever hold.
	auth, err := svc.Authorize(ctx, uuid.New(), "+12125551234", 3)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.Allowed || auth.Reason != "Page limit exceeded for the free plan" {
		t.Fatalf("unexpected auth %+v", auth)
	}

	// 1 page at 3 credits fits the plan but not the remaining balance.
	auth, err = svc.Authorize(ctx, uuid.New(), "+12125551234", 1)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.Allowed || auth.Reason != "Monthly free fax limit reached" {
		t.Fatalf("unexpected auth %+v", auth)
	}
}

func TestAuthorizeValidation(t *testing.T) {
	svc := newTestService(t, defaultDeps())
	ctx := context.Background()

	if _, err := svc.Authorize(ctx, uuid.Nil, "+12125551234", 1); err == nil {
		t.Fatal("expected user validation error")
	}
	if _, err := svc.Authorize(ctx, uuid.New(), " ", 1); err == nil {
		t.Fatal("expected recipient validation error")
	}
	if _, err := svc.Authorize(ctx, uuid.New(), "+12125551234", 0); err == nil {
		t.Fatal("expected page validation error")
	}
	if _, err := svc.Authorize(ctx, uuid.New(), "+12125551234", maxPagesPerFax+1); err == nil {
		t.Fatal("expected page ceiling error")
	}
}

func TestSendCreatesQueuedJobWithCostSnapshot(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)
	userID := uuid.New()

	job, err := svc.Send(context.Background(), SendInput{
		UserID:      userID,
		Recipient:   "+12125551234",
		Pages:       3,
		DocumentURL: "https://files.test/doc.pdf",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if job.Status != enums.FaxStatusQueued {
		t.Fatalf("expected queued job, got %s", job.Status)
	}
	if job.CostCredits != 3 {
		t.Fatalf("expected cost snapshot of 3 credits, got %d", job.CostCredits)
	}
	if job.ProviderFaxID != "fax_prov_1" {
		t.Fatalf("expected provider fax id recorded, got %q", job.ProviderFaxID)
	}
	if deps.sender.calls != 1 {
		t.Fatalf("expected one submission, got %d", deps.sender.calls)
	}
	if len(deps.ledger.consumed) != 0 {
		t.Fatal("submission must not deduct credits")
	}
	if deps.ledger.balance != 100 {
		t.Fatalf("balance must be untouched at submit, got %d", deps.ledger.balance)
	}
}

func TestSendDeniedWithoutCredits(t *testing.T) {
	deps := defaultDeps()
	deps.ledger.balance = 1
	svc := newTestService(t, deps)

	_, err := svc.Send(context.Background(), SendInput{
		UserID:      uuid.New(),
		Recipient:   "+12125551234",
		Pages:       3,
		DocumentURL: "https://files.test/doc.pdf",
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientCredits {
		t.Fatalf("expected insufficient credits error, got %v", err)
	}
	if len(deps.repo.jobs) != 0 {
		t.Fatal("denied send must not create a job")
	}
	if deps.sender.calls != 0 {
		t.Fatal("denied send must not reach the provider")
	}
}

func TestSendMarksJobFailedWhenProviderRejects(t *testing.T) {
	deps := defaultDeps()
	deps.sender.err = errors.New("provider 500")
	svc := newTestService(t, deps)

	_, err := svc.Send(context.Background(), SendInput{
		UserID:      uuid.New(),
		Recipient:   "+12125551234",
		Pages:       1,
		DocumentURL: "https://files.test/doc.pdf",
	})
	if err == nil {
		t.Fatal("expected submission error")
	}
	if len(deps.repo.jobs) != 1 {
		t.Fatalf("expected the job row to remain, got %d", len(deps.repo.jobs))
	}
	for _, job := range deps.repo.jobs {
		if job.Status != enums.FaxStatusFailed {
			t.Fatalf("expected failed job, got %s", job.Status)
		}
	}
}

func seedQueuedJob(deps *testDeps, userID uuid.UUID, cost, pages int) *models.FaxJob {
	job := &models.FaxJob{
		ID:            uuid.New(),
		UserID:        userID,
		Recipient:     "+12125551234",
		Pages:         pages,
		Provider:      enums.FaxProviderNotifyre,
		ProviderFaxID: "fax_prov_9",
		CostCredits:   cost,
		Status:        enums.FaxStatusQueued,
	}
	deps.repo.jobs[job.ID] = job
	return job
}

func deliveredEvent() *providers.DeliveryEvent {
	return &providers.DeliveryEvent{
		EventID:       "evt-1",
		Provider:      enums.FaxProviderNotifyre,
		ProviderFaxID: "fax_prov_9",
		Status:        enums.FaxStatusDelivered,
		OccurredAt:    time.Now(),
	}
}

func TestDeliveryAccruesExactlyOnce(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)
	userID := uuid.New()
	job := seedQueuedJob(deps, userID, 3, 2)

	if err := svc.HandleDeliveryEvent(context.Background(), deliveredEvent()); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if deps.repo.jobs[job.ID].Status != enums.FaxStatusDelivered {
		t.Fatalf("expected delivered status, got %s", deps.repo.jobs[job.ID].Status)
	}
	if deps.ledger.balance != 97 {
		t.Fatalf("expected 3 credits deducted, balance %d", deps.ledger.balance)
	}
	if len(deps.usage.recorded) != 1 || deps.usage.recorded[0].Pages != 2 {
		t.Fatalf("unexpected usage records %+v", deps.usage.recorded)
	}

	// Replay: the status CAS loses and nothing moves.
	if err := svc.HandleDeliveryEvent(context.Background(), deliveredEvent()); err != nil {
		t.Fatalf("replayed event: %v", err)
	}
	if deps.ledger.balance != 97 {
		t.Fatalf("replay must not deduct again, balance %d", deps.ledger.balance)
	}
	if len(deps.usage.recorded) != 1 {
		t.Fatalf("replay must not add usage, got %d records", len(deps.usage.recorded))
	}
}

func TestDeliveryUsesEventPageCount(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)
	seedQueuedJob(deps, uuid.New(), 3, 2)

	event := deliveredEvent()
	event.Pages = 5
	if err := svc.HandleDeliveryEvent(context.Background(), event); err != nil {
		t.Fatalf("event: %v", err)
	}
	if deps.usage.recorded[0].Pages != 5 {
		t.Fatalf("expected provider page count, got %d", deps.usage.recorded[0].Pages)
	}
}

func TestDeliveryDeductsRemainderWhenUnderFunded(t *testing.T) {
	deps := defaultDeps()
	deps.ledger.balance = 1
	svc := newTestService(t, deps)
	seedQueuedJob(deps, uuid.New(), 3, 2)

	if err := svc.HandleDeliveryEvent(context.Background(), deliveredEvent()); err != nil {
		t.Fatalf("event: %v", err)
	}
	if deps.ledger.balance != 0 {
		t.Fatalf("expected balance drained to zero, got %d", deps.ledger.balance)
	}
	if len(deps.usage.recorded) != 1 {
		t.Fatal("usage must still be recorded")
	}
}

func TestFailureEventDoesNotDeduct(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)
	job := seedQueuedJob(deps, uuid.New(), 3, 2)

	event := deliveredEvent()
	event.Status = enums.FaxStatusFailed
	event.StatusDetail = "line busy"
	if err := svc.HandleDeliveryEvent(context.Background(), event); err != nil {
		t.Fatalf("event: %v", err)
	}
	if deps.repo.jobs[job.ID].Status != enums.FaxStatusFailed {
		t.Fatalf("expected failed status, got %s", deps.repo.jobs[job.ID].Status)
	}
	if deps.ledger.balance != 100 {
		t.Fatalf("failed fax must not deduct, balance %d", deps.ledger.balance)
	}
	if len(deps.usage.recorded) != 0 {
		t.Fatal("failed fax must not record usage")
	}
}

func TestProcessingEventAdvancesQueuedJob(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)
	job := seedQueuedJob(deps, uuid.New(), 3, 2)

	event := deliveredEvent()
	event.Status = enums.FaxStatusProcessing
	if err := svc.HandleDeliveryEvent(context.Background(), event); err != nil {
		t.Fatalf("event: %v", err)
	}
	if deps.repo.jobs[job.ID].Status != enums.FaxStatusProcessing {
		t.Fatalf("expected processing status, got %s", deps.repo.jobs[job.ID].Status)
	}
}

func TestUnknownFaxEventIsIgnored(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)

	if err := svc.HandleDeliveryEvent(context.Background(), deliveredEvent()); err != nil {
		t.Fatalf("unknown fax must not error the webhook: %v", err)
	}
}

func TestGetByIDScopesToOwner(t *testing.T) {
	deps := defaultDeps()
	svc := newTestService(t, deps)
	owner := uuid.New()
	job := seedQueuedJob(deps, owner, 3, 2)

	found, err := svc.GetByID(context.Background(), owner, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found.ID != job.ID {
		t.Fatalf("unexpected job %+v", found)
	}

	_, err = svc.GetByID(context.Background(), uuid.New(), job.ID)
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}
