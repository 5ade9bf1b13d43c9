// Package audit periodically verifies that slot statuses and pending swap
// requests agree: a slot is SWAP_PENDING exactly when one PENDING request
// references it, and both slots of every PENDING request are SWAP_PENDING.
package audit

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"slotswap-backend/internal/model"
	"slotswap-backend/internal/store"
)

// Violation describes one slot whose status disagrees with the pending requests.
type Violation struct {
	SlotID     int64
	Status     model.EventStatus
	RequestIDs []int64
}

func (v Violation) String() string {
	return fmt.Sprintf("slot %d is %s but referenced by pending requests %v", v.SlotID, v.Status, v.RequestIDs)
}

// Service runs the check on an interval.
type Service struct {
	store    store.Store
	interval time.Duration
	enabled  bool
}

// NewService creates an audit service.
func NewService(s store.Store, enabled bool, interval time.Duration) *Service {
	return &Service{store: s, enabled: enabled, interval: interval}
}

// Run checks once, then on every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.enabled {
		log.Println("Swap audit is disabled. Not starting.")
		return
	}
	log.Println("Starting swap audit service...")

	s.runOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Swap audit service shutting down.")
			return
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	violations, err := s.CheckOnce(ctx)
	if err != nil {
		log.Printf("Swap audit failed: %v", err)
		return
	}
	for _, v := range violations {
		log.Printf("Swap audit violation: %s", v)
	}
	if len(violations) == 0 {
		log.Println("Swap audit passed.")
	}
}

// CheckOnce returns every slot that breaks the invariant, ordered by slot id.
func (s *Service) CheckOnce(ctx context.Context) ([]Violation, error) {
	slots, err := s.store.ListEventsByStatus(ctx, model.StatusSwapPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending slots: %w", err)
	}
	requests, err := s.store.ListSwapRequestsByStatus(ctx, model.SwapPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	refs := make(map[int64][]int64)
	for _, r := range requests {
		refs[r.RequesterSlotID] = append(refs[r.RequesterSlotID], r.ID)
		refs[r.RecipientSlotID] = append(refs[r.RecipientSlotID], r.ID)
	}

	var violations []Violation
	seen := make(map[int64]bool, len(slots))
	for _, slot := range slots {
		seen[slot.ID] = true
		if len(refs[slot.ID]) != 1 {
			violations = append(violations, Violation{SlotID: slot.ID, Status: slot.Status, RequestIDs: refs[slot.ID]})
		}
	}

	// Slots referenced by a pending request but not SWAP_PENDING.
	for _, r := range requests {
		for _, id := range []int64{r.RequesterSlotID, r.RecipientSlotID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			status := model.EventStatus("MISSING")
			if ev, err := s.store.GetEvent(ctx, id); err == nil {
				status = ev.Status
			}
			violations = append(violations, Violation{SlotID: id, Status: status, RequestIDs: refs[id]})
		}
	}

	sort.Slice(violations, func(i, j int) bool { return violations[i].SlotID < violations[j].SlotID })
	return violations, nil
}
