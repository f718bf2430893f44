// Dose HTTP handlers.
//
// This file exposes the dose recording endpoint:
//   - POST /sessions/{id}/doses   (record one dose against a grid cell)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (slot names, civil dates, timestamps)
//   - delegate to application services (DoseService)
//   - implement idempotency semantics for safe retries
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, session, key), the handler returns the recorded
// cell as it stands and sets `Idempotency-Replayed: true`. The compare-and-
// swap engine underneath already tolerates duplicate applications; the replay
// path keeps exact client retries from counting as a second intentional dose.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/repo"
	"github.com/carevue/go-adherence-backend/internal/services"
)

//
// DTOs
//

// RecordDoseRequest is the JSON payload for recording a dose.
type RecordDoseRequest struct {
	// Date is the scheduled civil date of the cell (YYYY-MM-DD).
	Date string `json:"date" binding:"required" example:"2024-03-01"`
	// Slot names the intake slot of the cell.
	Slot string `json:"slot" binding:"required" example:"morning"`
	// ObservedAt optionally pins the observation time (RFC 3339).
	// Defaults to the server clock when absent.
	ObservedAt *time.Time `json:"observed_at,omitempty" example:"2024-03-01T15:05:00Z"`
	// Notes optionally annotates the dose (free text).
	Notes string `json:"notes" example:"taken with breakfast"`
}

// RecordDoseResponse is the JSON envelope for an updated tracking record.
type RecordDoseResponse struct {
	// Record is the cell after the dose was applied.
	Record *domain.TrackingRecord `json:"record"`
}

//
// Handlers
//

// RecordDose godoc
// @ID          recordDose
// @Summary     Record a dose
// @Description Applies one dose to the (session, date, slot) tracking cell.
// @Description A pending cell becomes taken; any later dose on the same cell marks it overtaken.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Doses
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Operator ID (demo header)"  example(nurse-7)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Session ID (UUID)"          format(uuid)
// @Param       body             body    handlers.RecordDoseRequest  true  "Dose payload"
//
// @Success     200  {object}  handlers.RecordDoseResponse  "Updated tracking record"
// @Failure     400  {object}  handlers.ErrorResponse       "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse       "Session or cell not found"
// @Failure     409  {object}  handlers.ErrorResponse       "Contention, retry the request"
// @Failure     500  {object}  handlers.ErrorResponse       "Internal error"
// @Router      /sessions/{id}/doses [post]
func (h *Handlers) RecordDose(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req RecordDoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date and slot required")
		return
	}
	slot := domain.Slot(strings.ToLower(strings.TrimSpace(req.Slot)))
	if !slot.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown slot: "+req.Slot)
		return
	}
	var observedAt time.Time
	if req.ObservedAt != nil {
		observedAt = req.ObservedAt.UTC()
	}

	currentUser := userID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.doseSvc.(*services.DoseService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, sessionID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetRecord(ctx, svc.DB, rec.RecordID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, RecordDoseResponse{Record: prev})
					return
				}
			}
		}
	}

	rec, err := h.doseSvc.Record(ctx, sessionID, req.Date, slot, observedAt, strings.TrimSpace(req.Notes))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrCellNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no tracking cell for that date and slot")
		case errors.Is(err, services.ErrInvalidDate), errors.Is(err, services.ErrInvalidSlot):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrContention):
			fail(c, http.StatusConflict, ErrCodeContention, "record contention, retry the request")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.doseSvc.(*services.DoseService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, sessionID, idemKey, rec.ID, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, RecordDoseResponse{Record: rec})
}

// idempotencyKey extracts an idempotency key if an upstream middleware has
// already validated/stashed it. The fallback behavior reads the
// "Idempotency-Key" header directly when no dedicated middleware exists.
func idempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}
