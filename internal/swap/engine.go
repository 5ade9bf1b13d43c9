// Package swap implements the swap negotiation state machine.
//
// A request commits two SWAPPABLE slots owned by different users to a single
// PENDING SwapRequest and moves both to SWAP_PENDING. The recipient either
// accepts, which exchanges the owners and marks both slots BUSY, or rejects,
// which returns both slots to SWAPPABLE. A slot is never referenced by more
// than one PENDING request.
package swap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"slotswap-backend/internal/apperr"
	"slotswap-backend/internal/model"
	"slotswap-backend/internal/notification"
	"slotswap-backend/internal/store"
)

// Payload accompanies swap:request:* notifications.
type Payload struct {
	SwapRequest *model.SwapRequest `json:"swapRequest"`
	Message     string             `json:"message"`
	Events      []model.Event      `json:"events,omitempty"`
}

// Result is the outcome of RespondToSwap. UpdatedEvents is set on accept.
type Result struct {
	SwapRequest   *model.SwapRequest `json:"swapRequest"`
	UpdatedEvents []model.Event      `json:"updatedEvents,omitempty"`
}

// Requests groups a user's swap requests by role.
type Requests struct {
	Incoming []model.SwapRequest `json:"incoming"`
	Outgoing []model.SwapRequest `json:"outgoing"`
}

// Engine implements the swap commands.
type Engine struct {
	store  store.Store
	fanout notification.Fanout
}

// NewEngine creates an Engine that notifies participants through fanout.
func NewEngine(s store.Store, fanout notification.Fanout) *Engine {
	return &Engine{store: s, fanout: fanout}
}

// RequestSwap offers requesterID's slot mySlotID in exchange for theirSlotID.
// On success both slots are SWAP_PENDING and the recipient is notified.
func (e *Engine) RequestSwap(ctx context.Context, requesterID, mySlotID, theirSlotID int64) (*model.SwapRequest, error) {
	if mySlotID <= 0 || theirSlotID <= 0 {
		return nil, apperr.Validationf("Slot ids must be positive integers")
	}
	if mySlotID == theirSlotID {
		return nil, apperr.Conflictf("Cannot swap a slot with itself")
	}

	mine, err := e.store.GetEvent(ctx, mySlotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("Your slot not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch slot")
	}
	theirs, err := e.store.GetEvent(ctx, theirSlotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("Requested slot not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch slot")
	}

	if mine.UserID != requesterID {
		return nil, apperr.Forbiddenf("You do not own this slot")
	}
	if mine.Status != model.StatusSwappable {
		return nil, apperr.Conflictf("Your slot must be marked as SWAPPABLE")
	}
	if theirs.UserID == requesterID {
		return nil, apperr.Conflictf("Cannot request swap with your own slot")
	}
	if theirs.Status != model.StatusSwappable {
		return nil, apperr.Conflictf("Requested slot is not available for swapping")
	}

	req, err := e.store.OpenSwap(ctx, store.OpenSwapParams{
		RequesterID:     requesterID,
		RequesterSlotID: mySlotID,
		RecipientSlotID: theirSlotID,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrPendingSwap):
		return nil, apperr.Conflictf("One or both slots already have a pending swap request")
	case errors.Is(err, store.ErrSlotNotSwappable):
		return nil, apperr.Conflictf("Requested slot is not available for swapping")
	case errors.Is(err, store.ErrOwnerChanged):
		return nil, apperr.Conflictf("Slot ownership changed, please refresh and try again")
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFoundf("Requested slot not found")
	default:
		return nil, apperr.Internalf(err, "Failed to create swap request")
	}

	detail := e.detail(ctx, req)
	e.fanout.NotifyUser(req.RecipientID, notification.SwapRequestReceived, Payload{
		SwapRequest: detail,
		Message:     fmt.Sprintf("%s wants to swap slots with you", e.displayName(ctx, detail.Requester, req.RequesterID)),
	})
	return detail, nil
}

// RespondToSwap accepts or rejects a PENDING request addressed to recipientID.
func (e *Engine) RespondToSwap(ctx context.Context, recipientID, requestID int64, accept bool) (*Result, error) {
	req, err := e.store.GetSwapRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("Swap request not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch swap request")
	}
	if req.RecipientID != recipientID {
		return nil, apperr.Forbiddenf("You are not authorized to respond to this request")
	}
	if req.Status != model.SwapPending {
		return nil, alreadyResolved(req.Status)
	}

	res, err := e.store.ResolveSwap(ctx, requestID, accept)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrSwapResolved):
		if current, gerr := e.store.GetSwapRequest(ctx, requestID); gerr == nil {
			return nil, alreadyResolved(current.Status)
		}
		return nil, apperr.Conflictf("This swap request has already been resolved")
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFoundf("Swap request not found")
	default:
		return nil, apperr.Internalf(err, "Failed to respond to swap request")
	}

	detail := e.detail(ctx, res.Request)
	name := e.displayName(ctx, detail.Recipient, req.RecipientID)

	if accept {
		e.fanout.NotifyUser(req.RequesterID, notification.SwapRequestAccepted, Payload{
			SwapRequest: detail,
			Message:     fmt.Sprintf("%s accepted your swap request", name),
			Events:      res.Events,
		})
		return &Result{SwapRequest: detail, UpdatedEvents: res.Events}, nil
	}

	e.fanout.NotifyUser(req.RequesterID, notification.SwapRequestRejected, Payload{
		SwapRequest: detail,
		Message:     fmt.Sprintf("%s rejected your swap request", name),
	})
	return &Result{SwapRequest: detail}, nil
}

// ListSwapRequests returns the requests userID received and sent, newest first.
func (e *Engine) ListSwapRequests(ctx context.Context, userID int64) (*Requests, error) {
	incoming, err := e.store.ListIncomingSwapRequests(ctx, userID)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch swap requests")
	}
	outgoing, err := e.store.ListOutgoingSwapRequests(ctx, userID)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch swap requests")
	}
	if incoming == nil {
		incoming = []model.SwapRequest{}
	}
	if outgoing == nil {
		outgoing = []model.SwapRequest{}
	}
	return &Requests{Incoming: incoming, Outgoing: outgoing}, nil
}

func alreadyResolved(status model.SwapStatus) error {
	return apperr.Conflictf("This swap request has already been %s", strings.ToLower(string(status)))
}

// detail reloads a request with both users and slots. The command has already
// committed, so a failed reload falls back to the bare request.
func (e *Engine) detail(ctx context.Context, req *model.SwapRequest) *model.SwapRequest {
	detail, err := e.store.GetSwapRequestDetail(ctx, req.ID)
	if err != nil {
		log.Printf("swap: failed to load detail for request %d: %v", req.ID, err)
		return req
	}
	return detail
}

func (e *Engine) displayName(ctx context.Context, u *model.User, id int64) string {
	if u != nil && u.Name != "" {
		return u.Name
	}
	if loaded, err := e.store.GetUserByID(ctx, id); err == nil {
		return loaded.Name
	}
	return "Someone"
}
