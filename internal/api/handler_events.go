package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"slotswap-backend/internal/calendar"
	"slotswap-backend/internal/ledger"
	"slotswap-backend/internal/model"
	"slotswap-backend/internal/parse"
)

type createEventRequest struct {
	Title     string `json:"title"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type updateEventRequest struct {
	Title     *string `json:"title"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Status    *string `json:"status"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// eventID parses the :id path parameter, writing a 400 on failure.
func eventID(c *gin.Context) (int64, bool) {
	id, err := parse.ID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return 0, false
	}
	return id, true
}

// ListEvents handles GET /api/events.
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.ledger.ListSlots(c.Request.Context(), caller(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// CreateEvent handles POST /api/events.
func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Validation failed", err)
		return
	}
	start, err := parse.Timestamp(req.StartTime)
	if err != nil {
		badRequest(c, "Invalid start time", err)
		return
	}
	end, err := parse.Timestamp(req.EndTime)
	if err != nil {
		badRequest(c, "Invalid end time", err)
		return
	}

	user := caller(c)
	event, err := h.ledger.CreateSlot(c.Request.Context(), user.ID, req.Title, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateCalendars(user.ID)

	c.JSON(http.StatusCreated, gin.H{"message": "Event created successfully", "event": event})
}

// UpdateEvent handles PUT /api/events/:id.
func (h *Handler) UpdateEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Validation failed", err)
		return
	}

	patch := ledger.SlotPatch{Title: req.Title}
	var err error
	if patch.StartTime, err = parse.OptionalTimestamp(req.StartTime); err != nil {
		badRequest(c, "Invalid start time", err)
		return
	}
	if patch.EndTime, err = parse.OptionalTimestamp(req.EndTime); err != nil {
		badRequest(c, "Invalid end time", err)
		return
	}
	if req.Status != nil {
		status := model.EventStatus(*req.Status)
		patch.Status = &status
	}

	user := caller(c)
	event, err := h.ledger.UpdateSlot(c.Request.Context(), user.ID, id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateCalendars(user.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Event updated successfully", "event": event})
}

// DeleteEvent handles DELETE /api/events/:id.
func (h *Handler) DeleteEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}

	user := caller(c)
	if err := h.ledger.DeleteSlot(c.Request.Context(), user.ID, id); err != nil {
		respondError(c, err)
		return
	}
	h.invalidateCalendars(user.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully"})
}

// UpdateEventStatus handles PATCH /api/events/:id/status.
func (h *Handler) UpdateEventStatus(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Validation failed", err)
		return
	}

	user := caller(c)
	event, err := h.ledger.SetSwapEligibility(c.Request.Context(), user.ID, id, model.EventStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateCalendars(user.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Event status updated successfully", "event": event})
}

// GetCalendar handles GET /api/calendar.ics, exporting the caller's slots.
func (h *Handler) GetCalendar(c *gin.Context) {
	user := caller(c)
	events, err := h.ledger.ListSlots(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := calendar.Write(&buf, user.Name+" slots", events, time.Now().UTC()); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="slots.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}
