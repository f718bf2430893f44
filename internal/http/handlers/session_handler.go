// Session HTTP handlers.
//
// This file exposes REST endpoints for medication session resources:
//   - POST   /sessions                 (start a session, materializes the grid)
//   - DELETE /sessions/{id}            (end a session, history retained)
//   - GET    /sessions/{id}/grid       (full tracking grid, zone-projected)
//   - GET    /patients/{id}/sessions   (list, paginated)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate sentinel errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/http/middleware"
	"github.com/carevue/go-adherence-backend/internal/repo"
	"github.com/carevue/go-adherence-backend/internal/schedule"
	"github.com/carevue/go-adherence-backend/internal/services"
	"github.com/carevue/go-adherence-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService defines session lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// Start opens a session for a patient and materializes its tracking grid.
	Start(ctx context.Context, patientID, startDate, timezone string, enabledSlots []domain.Slot) (*domain.MedicationSession, error)
	// End deactivates a session; its tracking records are retained.
	End(ctx context.Context, sessionID string) error
	// Grid returns a session and all of its tracking records.
	Grid(ctx context.Context, sessionID string) (*domain.MedicationSession, []domain.TrackingRecord, error)
	// ListPage returns a page of a patient's sessions and the total count.
	ListPage(ctx context.Context, patientID string, page, pageSize int) ([]domain.MedicationSession, int64, error)
}

// DoseService defines dose recording consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DoseService interface {
	// Record applies one dose to the (session, date, slot) cell.
	Record(ctx context.Context, sessionID, date string, slot domain.Slot, observedAt time.Time, notes string) (*domain.TrackingRecord, error)
}

// AdherenceService defines adherence reporting consumed by HTTP handlers.
type AdherenceService interface {
	// ForSession aggregates one session's grid into per-slot statistics.
	ForSession(ctx context.Context, sessionID string) (*services.SessionStats, error)
	// ForRange aggregates a patient's records across sessions by date range.
	ForRange(ctx context.Context, patientID, from, to string) (*services.SessionStats, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for sessions, doses, and adherence stats.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	sessionSvc SessionService
	doseSvc    DoseService
	statsSvc   AdherenceService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(sessionSvc SessionService, doseSvc DoseService, statsSvc AdherenceService) *Handlers {
	return &Handlers{sessionSvc: sessionSvc, doseSvc: doseSvc, statsSvc: statsSvc}
}

// userID resolves the operator identity through the same chain the
// idempotency middleware uses, so stored and replayed tuples always agree.
func userID(c *gin.Context) string {
	return middleware.CallerID(c)
}

//
// DTOs
//

// StartSessionRequest is the JSON payload for starting a session.
type StartSessionRequest struct {
	// PatientID identifies the patient the session tracks.
	PatientID string `json:"patient_id" binding:"required" example:"patient-42"`
	// StartDate is the first tracked day (YYYY-MM-DD).
	StartDate string `json:"start_date" binding:"required" example:"2024-03-01"`
	// Timezone is an IANA zone name; defaults to UTC when empty.
	Timezone string `json:"timezone" example:"America/Denver"`
	// Slots optionally restricts the session to the named intake slots.
	// When empty, the patient's slot configuration decides.
	Slots []string `json:"slots" example:"morning,evening"`
	// ReplacePrior ends the patient's currently active session (if any)
	// instead of rejecting the request with a conflict.
	ReplacePrior bool `json:"replace_prior"`
}

// GridCell is one (date, slot) entry of a session's tracking grid.
type GridCell struct {
	ScheduledDate string              `json:"scheduled_date"`
	Slot          domain.Slot         `json:"slot"`
	SlotTime      string              `json:"slot_time"`
	Status        domain.RecordStatus `json:"status"`
	DoseCount     int                 `json:"dose_count"`
	TakenAt       *time.Time          `json:"taken_at,omitempty"`
	// TakenAtLocal renders TakenAt in the session's timezone, e.g. "08:05 AM".
	TakenAtLocal string `json:"taken_at_local,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// GridResponse wraps a session and its full tracking grid.
type GridResponse struct {
	Session *domain.MedicationSession `json:"session"`
	Cells   []GridCell                `json:"cells"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.MedicationSession `json:"sessions"`
	Pagination Pagination                 `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// parseSlots converts slot names to domain slots, rejecting unknown names.
func parseSlots(names []string) ([]domain.Slot, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]domain.Slot, 0, len(names))
	for _, n := range names {
		s := domain.Slot(strings.ToLower(strings.TrimSpace(n)))
		if !s.Valid() {
			return nil, errors.New("unknown slot: " + n)
		}
		out = append(out, s)
	}
	return out, nil
}

// toGridCells projects records into response cells, rendering taken_at in the
// session's timezone. Projection failures leave TakenAtLocal empty rather than
// failing the whole grid.
func toGridCells(records []domain.TrackingRecord, zone string) []GridCell {
	cells := make([]GridCell, 0, len(records))
	for _, rec := range records {
		cell := GridCell{
			ScheduledDate: rec.ScheduledDate,
			Slot:          rec.Slot,
			SlotTime:      rec.SlotTime,
			Status:        rec.Status,
			DoseCount:     rec.DoseCount,
			TakenAt:       rec.TakenAt,
			Notes:         rec.Notes,
		}
		if rec.TakenAt != nil {
			if local, err := schedule.LocalClock(*rec.TakenAt, zone); err == nil {
				cell.TakenAtLocal = local
			}
		}
		cells = append(cells, cell)
	}
	return cells
}

//
// Handlers
//

// StartSession godoc
// @ID          startSession
// @Summary     Start a medication session
// @Description Starts a tracking session for a patient and materializes its full tracking grid.
// @Description With replace_prior=true, an already active session for the patient is ended first.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Operator ID (demo header)"  example(nurse-7)
// @Param       body       body    handlers.StartSessionRequest  true  "Start session payload"
//
// @Success     201  {object}  domain.MedicationSession
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Patient already has an active session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) StartSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	slots, err := parseSlots(req.Slots)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	zone := strings.TrimSpace(req.Timezone)
	if zone == "" {
		zone = "UTC"
	}

	sess, err := h.sessionSvc.Start(ctx, req.PatientID, req.StartDate, zone, slots)
	if errors.Is(err, services.ErrActiveSessionExists) && req.ReplacePrior {
		if endErr := h.endActiveSession(ctx, req.PatientID); endErr == nil {
			sess, err = h.sessionSvc.Start(ctx, req.PatientID, req.StartDate, zone, slots)
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, services.ErrActiveSessionExists):
			fail(c, http.StatusConflict, ErrCodeConflict, "patient already has an active session")
		case errors.Is(err, services.ErrInvalidPatient),
			errors.Is(err, services.ErrInvalidDate),
			errors.Is(err, services.ErrInvalidSlot),
			errors.Is(err, services.ErrInvalidTimezone):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, sess)
}

// endActiveSession looks up the patient's active session and ends it. It needs
// direct repo access, so it inspects the concrete service for its DB handle.
func (h *Handlers) endActiveSession(ctx context.Context, patientID string) error {
	svc, okSvc := h.sessionSvc.(*services.SessionService)
	if !okSvc || svc.DB == nil {
		return errors.New("service does not expose a database handle")
	}
	active, err := repo.GetActiveSession(ctx, svc.DB, patientID)
	if err != nil {
		return err
	}
	return h.sessionSvc.End(ctx, active.ID)
}

// EndSession godoc
// @ID          endSession
// @Summary     End a medication session
// @Description Deactivates the session. Its tracking records are retained for reporting.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id} [delete]
func (h *Handlers) EndSession(c *gin.Context) {
	if err := h.sessionSvc.End(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// GetGrid godoc
// @ID          getSessionGrid
// @Summary     Get a session's tracking grid
// @Description Returns the session and every (date, slot) tracking record, with dose times rendered in the session's timezone.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.GridResponse
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/grid [get]
func (h *Handlers) GetGrid(c *gin.Context) {
	sess, records, err := h.sessionSvc.Grid(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, GridResponse{
		Session: sess,
		Cells:   toGridCells(records, sess.Timezone),
	})
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List a patient's sessions (paginated)
// @Description Returns a page of the patient's sessions, newest start date first.
// @Tags        Sessions
// @Produce     json
//
// @Param       id         path   string  true  "Patient ID"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /patients/{id}/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	patientID := c.Param("id")
	page, pageSize := clampPagination(c)

	items, total, err := h.sessionSvc.ListPage(c.Request.Context(), patientID, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPatient) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
