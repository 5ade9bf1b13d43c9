package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"slotswap-backend/internal/parse"
)

type swapRequestBody struct {
	MySlotID    int64 `json:"mySlotId" binding:"required"`
	TheirSlotID int64 `json:"theirSlotId" binding:"required"`
}

type swapResponseBody struct {
	Accept *bool `json:"accept" binding:"required"`
}

// ListSwappableSlots handles GET /api/swappable-slots.
func (h *Handler) ListSwappableSlots(c *gin.Context) {
	slots, err := h.ledger.ListMarketplace(c.Request.Context(), caller(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// CreateSwapRequest handles POST /api/swap-request.
func (h *Handler) CreateSwapRequest(c *gin.Context) {
	var req swapRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Validation failed", err)
		return
	}

	user := caller(c)
	swapRequest, err := h.engine.RequestSwap(c.Request.Context(), user.ID, req.MySlotID, req.TheirSlotID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateCalendars(swapRequest.RequesterID, swapRequest.RecipientID)

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Swap request created successfully",
		"swapRequest": swapRequest,
	})
}

// ListSwapRequests handles GET /api/swap-requests.
func (h *Handler) ListSwapRequests(c *gin.Context) {
	requests, err := h.engine.ListSwapRequests(c.Request.Context(), caller(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

// RespondToSwapRequest handles POST /api/swap-response/:requestId.
func (h *Handler) RespondToSwapRequest(c *gin.Context) {
	requestID, err := parse.ID(c.Param("requestId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}
	var req swapResponseBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Validation failed", err)
		return
	}

	user := caller(c)
	result, err := h.engine.RespondToSwap(c.Request.Context(), user.ID, requestID, *req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateCalendars(result.SwapRequest.RequesterID, result.SwapRequest.RecipientID)

	message := "Swap request rejected"
	if *req.Accept {
		message = "Swap request accepted successfully"
	}
	body := gin.H{"message": message, "swapRequest": result.SwapRequest}
	if len(result.UpdatedEvents) > 0 {
		body["updatedEvents"] = result.UpdatedEvents
	}
	c.JSON(http.StatusOK, body)
}
