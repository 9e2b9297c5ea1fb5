package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/faxpilot/faxpilot-backend/api/middleware"
	"github.com/faxpilot/faxpilot-backend/api/responses"
	"github.com/faxpilot/faxpilot-backend/api/validators"
	"github.com/faxpilot/faxpilot-backend/internal/faxes"
	"github.com/faxpilot/faxpilot-backend/pkg/db/models"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
)

type sendFaxRequest struct {
	Recipient   string          `json:"recipient" validate:"required,min=5,max=20"`
	Pages       int             `json:"pages" validate:"required,min=1,max=200"`
	DocumentURL string          `json:"document_url" validate:"required,url"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

type quoteFaxRequest struct {
	Recipient string `json:"recipient" validate:"required,min=5,max=20"`
	Pages     int    `json:"pages" validate:"required,min=1,max=200"`
}

type faxJobResponse struct {
	ID            uuid.UUID  `json:"id"`
	Recipient     string     `json:"recipient"`
	Pages         int        `json:"pages"`
	Provider      string     `json:"provider"`
	ProviderFaxID string     `json:"provider_fax_id,omitempty"`
	CostCredits   int        `json:"cost_credits"`
	Status        string     `json:"status"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type quoteResponse struct {
	Allowed         bool   `json:"allowed"`
	RequiredCredits int    `json:"required_credits"`
	CreditsPerPage  int    `json:"credits_per_page"`
	Balance         int    `json:"balance"`
	FailOpen        bool   `json:"fail_open"`
	Reason          string `json:"reason,omitempty"`
}

func newFaxJobResponse(job *models.FaxJob) faxJobResponse {
	return faxJobResponse{
		ID:            job.ID,
		Recipient:     job.Recipient,
		Pages:         job.Pages,
		Provider:      string(job.Provider),
		ProviderFaxID: job.ProviderFaxID,
		CostCredits:   job.CostCredits,
		Status:        string(job.Status),
		DeliveredAt:   job.DeliveredAt,
		CreatedAt:     job.CreatedAt,
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

// SendFax submits an outbound fax after an authorization check. Credits are
// reserved in the job cost but only deducted on delivery.
func SendFax(svc faxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req sendFaxRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		job, err := svc.Send(r.Context(), faxes.SendInput{
			UserID:      userID,
			Recipient:   req.Recipient,
			Pages:       req.Pages,
			DocumentURL: req.DocumentURL,
			Metadata:    req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newFaxJobResponse(job))
	}
}

// QuoteFax prices a destination and reports whether the user could afford
// the send, without creating a job.
func QuoteFax(svc faxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req quoteFaxRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auth, err := svc.Authorize(r.Context(), userID, req.Recipient, req.Pages)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, quoteResponse{
			Allowed:         auth.Allowed,
			RequiredCredits: auth.RequiredCredits,
			CreditsPerPage:  auth.CreditsPerPage,
			Balance:         auth.Balance,
			FailOpen:        auth.FailOpen,
			Reason:          auth.Reason,
		})
	}
}

func GetFax(svc faxes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		faxID, err := uuid.Parse(chi.URLParam(r, "faxId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fax id"))
			return
		}

		job, err := svc.GetByID(r.Context(), userID, faxID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newFaxJobResponse(job))
	}
}

func ListFaxes(svc faxes.Service, logg *logger.Logger) http.HandlerFunc {
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

		jobs, err := svc.ListByUser(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]faxJobResponse, 0, len(jobs))
		for i := range jobs {
			items = append(items, newFaxJobResponse(&jobs[i]))
		}
		responses.WriteSuccess(w, items)
	}
}
