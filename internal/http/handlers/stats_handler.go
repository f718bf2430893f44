// Adherence stats HTTP handlers.
//
// This file exposes reporting endpoints:
//   - GET /sessions/{id}/stats   (per-slot breakdown and overall rollup)
//   - GET /patients/{id}/stats   (date-range rollup across sessions)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carevue/go-adherence-backend/internal/services"
)

// GetSessionStats godoc
// @ID          getSessionStats
// @Summary     Get adherence stats for a session
// @Description Returns per-slot taken/overtaken/missed/pending counts with success rates. Pending cells never count against the rate.
// @Tags        Stats
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object} services.SessionStats
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/stats [get]
func (h *Handlers) GetSessionStats(c *gin.Context) {
	stats, err := h.statsSvc.ForSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}

// GetPatientStats godoc
// @ID          getPatientStats
// @Summary     Get adherence stats for a patient over a date range
// @Description Aggregates the patient's tracking records across sessions whose cells fall inside [from, to].
// @Tags        Stats
// @Produce     json
//
// @Param       id    path   string  true  "Patient ID"
// @Param       from  query  string  true  "Range start (YYYY-MM-DD, inclusive)"  example(2024-03-01)
// @Param       to    query  string  true  "Range end (YYYY-MM-DD, inclusive)"    example(2024-03-31)
//
// @Success     200  {object} services.SessionStats
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /patients/{id}/stats [get]
func (h *Handlers) GetPatientStats(c *gin.Context) {
	stats, err := h.statsSvc.ForRange(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRange), errors.Is(err, services.ErrInvalidPatient):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, stats)
}
