// Package ledger owns calendar slots: creation, edits, deletion and the
// owner-driven BUSY/SWAPPABLE toggle. Slots committed to a pending swap are
// read-only here; only the swap engine moves them out of SWAP_PENDING.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"slotswap-backend/internal/apperr"
	"slotswap-backend/internal/model"
	"slotswap-backend/internal/notification"
	"slotswap-backend/internal/store"
)

// EventPayload accompanies event:created and event:updated.
type EventPayload struct {
	Event  *model.Event `json:"event"`
	UserID int64        `json:"userId"`
}

// DeletedPayload accompanies event:deleted.
type DeletedPayload struct {
	EventID int64 `json:"eventId"`
	UserID  int64 `json:"userId"`
}

// SlotPatch holds the fields of a partial slot update. Nil fields are left unchanged.
type SlotPatch struct {
	Title     *string
	StartTime *time.Time
	EndTime   *time.Time
	Status    *model.EventStatus
}

func (p SlotPatch) empty() bool {
	return p.Title == nil && p.StartTime == nil && p.EndTime == nil && p.Status == nil
}

// Ledger implements the slot commands.
type Ledger struct {
	store  store.Store
	fanout notification.Fanout
}

// New creates a Ledger that reports changes to fanout.
func New(s store.Store, fanout notification.Fanout) *Ledger {
	return &Ledger{store: s, fanout: fanout}
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Validationf("Start time and end time are required")
	}
	if !end.After(start) {
		return apperr.Validationf("End time must be after start time")
	}
	return nil
}

// CreateSlot creates a BUSY slot owned by ownerID.
func (l *Ledger) CreateSlot(ctx context.Context, ownerID int64, title string, start, end time.Time) (*model.Event, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validationf("Title is required")
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	ev := &model.Event{
		UserID:    ownerID,
		Title:     title,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Status:    model.StatusBusy,
	}
	if err := l.store.CreateEvent(ctx, ev); err != nil {
		return nil, apperr.Internalf(err, "Failed to create event")
	}

	l.fanout.BroadcastAll(notification.EventCreated, EventPayload{Event: ev, UserID: ownerID})
	return ev, nil
}

// ListSlots returns the owner's slots ordered by start time.
func (l *Ledger) ListSlots(ctx context.Context, ownerID int64) ([]model.Event, error) {
	events, err := l.store.ListEventsByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch events")
	}
	return events, nil
}

// ListMarketplace returns every SWAPPABLE slot not owned by excludeOwnerID,
// with its owner's identity.
func (l *Ledger) ListMarketplace(ctx context.Context, excludeOwnerID int64) ([]model.Event, error) {
	events, err := l.store.ListSwappableExcept(ctx, excludeOwnerID)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch swappable slots")
	}
	return events, nil
}

// loadOwned loads a slot and checks that ownerID owns it.
func (l *Ledger) loadOwned(ctx context.Context, ownerID, id int64, action string) (*model.Event, error) {
	ev, err := l.store.GetEvent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("Event not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch event")
	}
	if ev.UserID != ownerID {
		return nil, apperr.Forbiddenf("Not authorized to %s this event", action)
	}
	return ev, nil
}

// UpdateSlot applies a partial update. Slots under negotiation cannot be edited
// and the status may only be set to BUSY or SWAPPABLE.
func (l *Ledger) UpdateSlot(ctx context.Context, ownerID, id int64, patch SlotPatch) (*model.Event, error) {
	ev, err := l.loadOwned(ctx, ownerID, id, "update")
	if err != nil {
		return nil, err
	}
	if ev.Status == model.StatusSwapPending {
		return nil, apperr.Conflictf("Cannot modify an event while a swap is pending")
	}
	if patch.empty() {
		return ev, nil
	}

	updates := make(map[string]any)
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperr.Validationf("Title is required")
		}
		updates["title"] = title
	}

	start, end := ev.StartTime, ev.EndTime
	if patch.StartTime != nil {
		start = patch.StartTime.UTC()
		updates["start_time"] = start
	}
	if patch.EndTime != nil {
		end = patch.EndTime.UTC()
		updates["end_time"] = end
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	if patch.Status != nil {
		if !patch.Status.OwnerSettable() {
			return nil, apperr.Validationf("Status must be BUSY or SWAPPABLE")
		}
		updates["status"] = *patch.Status
	}

	updated, err := l.store.UpdateEventGuarded(ctx, id, ownerID, updates)
	if err != nil {
		return nil, l.explainMiss(ctx, ownerID, id, err)
	}

	l.fanout.BroadcastAll(notification.EventUpdated, EventPayload{Event: updated, UserID: ownerID})
	return updated, nil
}

// DeleteSlot removes a slot. Slots under negotiation cannot be deleted.
func (l *Ledger) DeleteSlot(ctx context.Context, ownerID, id int64) error {
	ev, err := l.loadOwned(ctx, ownerID, id, "delete")
	if err != nil {
		return err
	}
	if ev.Status == model.StatusSwapPending {
		return apperr.Conflictf("Cannot delete an event while a swap is pending")
	}

	if err := l.store.DeleteEventGuarded(ctx, id, ownerID); err != nil {
		return l.explainMiss(ctx, ownerID, id, err)
	}

	l.fanout.BroadcastAll(notification.EventDeleted, DeletedPayload{EventID: id, UserID: ownerID})
	return nil
}

// SetSwapEligibility toggles a slot between BUSY and SWAPPABLE.
// A slot under negotiation is rejected before ownership is checked.
func (l *Ledger) SetSwapEligibility(ctx context.Context, ownerID, id int64, target model.EventStatus) (*model.Event, error) {
	if !target.OwnerSettable() {
		return nil, apperr.Validationf("Status must be BUSY or SWAPPABLE")
	}

	ev, err := l.store.GetEvent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("Event not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to fetch event")
	}
	if ev.Status == model.StatusSwapPending {
		return nil, apperr.Conflictf("Cannot change status while swap is pending")
	}
	if ev.UserID != ownerID {
		return nil, apperr.Forbiddenf("Not authorized to update this event")
	}

	updated, err := l.store.UpdateEventGuarded(ctx, id, ownerID, map[string]any{"status": target})
	if err != nil {
		return nil, l.explainMiss(ctx, ownerID, id, err)
	}

	l.fanout.BroadcastAll(notification.EventUpdated, EventPayload{Event: updated, UserID: ownerID})
	return updated, nil
}

// explainMiss classifies a guarded write that matched no row by reloading the
// slot: it was deleted, changed hands, or entered a swap in the meantime.
func (l *Ledger) explainMiss(ctx context.Context, ownerID, id int64, err error) error {
	if !errors.Is(err, store.ErrGuardMiss) {
		return apperr.Internalf(err, "Failed to update event")
	}
	ev, gerr := l.store.GetEvent(ctx, id)
	switch {
	case errors.Is(gerr, store.ErrNotFound):
		return apperr.NotFoundf("Event not found")
	case gerr != nil:
		return apperr.Internalf(gerr, "Failed to fetch event")
	case ev.Status == model.StatusSwapPending:
		return apperr.Conflictf("Cannot change status while swap is pending")
	case ev.UserID != ownerID:
		return apperr.Forbiddenf("Not authorized to modify this event")
	default:
		return apperr.Conflictf("Event was modified concurrently, please retry")
	}
}
