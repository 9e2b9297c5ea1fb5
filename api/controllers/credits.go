package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/faxpilot/faxpilot-backend/api/responses"
	"github.com/faxpilot/faxpilot-backend/api/validators"
	"github.com/faxpilot/faxpilot-backend/internal/ledger"
	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
)

type creditSourceResponse struct {
	ID          uuid.UUID  `json:"id"`
	Kind        string     `json:"kind"`
	Source      string     `json:"source"`
	Plan        *string    `json:"plan,omitempty"`
	CreditLimit int        `json:"credit_limit"`
	CreditsUsed int        `json:"credits_used"`
	Remaining   int        `json:"remaining"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type balanceResponse struct {
	Total        int                    `json:"total"`
	FreemiumOnly bool                   `json:"freemium_only"`
	Sources      []creditSourceResponse `json:"sources"`
}

type ledgerEntryResponse struct {
	ID              uuid.UUID `json:"id"`
	TransactionType string    `json:"transaction_type"`
	Source          string    `json:"source"`
	Amount          int       `json:"amount"`
	BalanceAfter    int       `json:"balance_after"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type grantCreditsRequest struct {
	UserID    string          `json:"user_id" validate:"required,uuid"`
	Source    string          `json:"source" validate:"required,oneof=subscription signup referral ad promotion manual"`
	Plan      string          `json:"plan,omitempty" validate:"omitempty,oneof=freemium basic pro"`
	Credits   int             `json:"credits" validate:"required,min=1"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func newCreditSourceResponse(src *models.CreditSource) creditSourceResponse {
	resp := creditSourceResponse{
		ID:          src.ID,
		Kind:        string(src.Kind),
		Source:      string(src.Source),
		CreditLimit: src.CreditLimit,
		CreditsUsed: src.CreditsUsed,
		Remaining:   src.Remaining(),
		ExpiresAt:   src.ExpiresAt,
	}
	if src.Plan != nil {
		plan := string(*src.Plan)
		resp.Plan = &plan
	}
	return resp
}

// CreditBalance reports the spendable balance. First contact provisions the
// freemium grant, so new users always see a non-empty wallet here.
func CreditBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, _, err := svc.EnsureFreemium(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sources := make([]creditSourceResponse, 0, len(balance.Sources))
		for i := range balance.Sources {
			sources = append(sources, newCreditSourceResponse(&balance.Sources[i]))
		}
		responses.WriteSuccess(w, balanceResponse{
			Total:        balance.Total,
			FreemiumOnly: balance.FreemiumOnly,
			Sources:      sources,
		})
	}
}

func CreditHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ListHistory(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]ledgerEntryResponse, 0, len(entries))
		for _, entry := range entries {
			items = append(items, ledgerEntryResponse{
				ID:              entry.ID,
				TransactionType: string(entry.TransactionType),
				Source:          string(entry.Source),
				Amount:          entry.Amount,
				BalanceAfter:    entry.BalanceAfter,
				ReferenceID:     entry.ReferenceID,
				CreatedAt:       entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, items)
	}
}

// GrantCredits is the service-to-service surface billing uses after a
// subscription renewal or promotional award.
func GrantCredits(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grantCreditsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		input := ledger.GrantInput{
			UserID:    userID,
			Source:    enums.CreditGrantSource(req.Source),
			Credits:   req.Credits,
			ExpiresAt: req.ExpiresAt,
			Metadata:  req.Metadata,
		}
		if req.Plan != "" {
			plan := enums.SubscriptionPlan(req.Plan)
			input.Plan = &plan
		}

		source, err := svc.Grant(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCreditSourceResponse(source))
	}
}
