package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/faxpilot/faxpilot-backend/api/responses"
	"github.com/faxpilot/faxpilot-backend/api/validators"
	"github.com/faxpilot/faxpilot-backend/internal/usage"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
)

type usageRecordResponse struct {
	ID          uuid.UUID `json:"id"`
	FaxJobID    uuid.UUID `json:"fax_job_id"`
	Type        string    `json:"type"`
	UnitType    string    `json:"unit_type"`
	UsageAmount int       `json:"usage_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

func ListUsage(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
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

		records, err := svc.ListByUser(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]usageRecordResponse, 0, len(records))
		for _, record := range records {
			items = append(items, usageRecordResponse{
				ID:          record.ID,
				FaxJobID:    record.FaxJobID,
				Type:        string(record.Type),
				UnitType:    string(record.UnitType),
				UsageAmount: record.UsageAmount,
				CreatedAt:   record.CreatedAt,
			})
		}
		responses.WriteSuccess(w, items)
	}
}
