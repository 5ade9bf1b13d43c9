package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slotswap-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ListEventsByOwner(ctx context.Context, userID int64) ([]model.Event, error)
	ListSwappableExcept(ctx context.Context, userID int64) ([]model.Event, error)
	ListEventsByStatus(ctx context.Context, status model.EventStatus) ([]model.Event, error)
	UpdateEventGuarded(ctx context.Context, id, ownerID int64, updates map[string]any) (*model.Event, error)
	DeleteEventGuarded(ctx context.Context, id, ownerID int64) error

	GetSwapRequest(ctx context.Context, id int64) (*model.SwapRequest, error)
	GetSwapRequestDetail(ctx context.Context, id int64) (*model.SwapRequest, error)
	ListIncomingSwapRequests(ctx context.Context, userID int64) ([]model.SwapRequest, error)
	ListOutgoingSwapRequests(ctx context.Context, userID int64) ([]model.SwapRequest, error)
	ListSwapRequestsByStatus(ctx context.Context, status model.SwapStatus) ([]model.SwapRequest, error)
	OpenSwap(ctx context.Context, p OpenSwapParams) (*model.SwapRequest, error)
	ResolveSwap(ctx context.Context, requestID int64, accept bool) (*SwapResolution, error)

	UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetPushSubscription(ctx context.Context, userID int64, endpoint string) (*model.PushSubscription, error)
	ListPushSubscriptions(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, userID int64, endpoint string) error
	DeleteExpiredPushSubscription(ctx context.Context, endpoint string) error
}

// OpenSwapParams identifies the two slots of a new swap request.
type OpenSwapParams struct {
	RequesterID     int64
	RequesterSlotID int64
	RecipientSlotID int64
}

// SwapResolution is the outcome of accepting or rejecting a swap request.
type SwapResolution struct {
	Request *model.SwapRequest
	// Events holds both slots after the write, requester slot first.
	Events []model.Event
	// Original owners captured before any ownership change.
	RequesterSlotOwner int64
	RecipientSlotOwner int64
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func selectIdentity(db *gorm.DB) *gorm.DB {
	return db.Select("id", "name", "email")
}

// lockSlots locks the given events in id order for the rest of the transaction.
// SQLite has no row locks; it serializes writers on the whole database.
func lockSlots(tx *gorm.DB, ids ...int64) ([]model.Event, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var events []model.Event
	if err := q.Where("id IN ?", ids).Order("id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to lock slots %v: %w", ids, err)
	}
	return events, nil
}

func byID(events []model.Event, id int64) *model.Event {
	for i := range events {
		if events[i].ID == id {
			return &events[i]
		}
	}
	return nil
}

// --- users ---

func (s *gormStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *gormStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *gormStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// --- events ---

func (s *gormStore) CreateEvent(ctx context.Context, e *model.Event) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (s *gormStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *gormStore) ListEventsByOwner(ctx context.Context, userID int64) ([]model.Event, error) {
	var events []model.Event
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time ASC").Order("id ASC").
		Find(&events).Error
	return events, err
}

func (s *gormStore) ListSwappableExcept(ctx context.Context, userID int64) ([]model.Event, error) {
	var events []model.Event
	err := s.db.WithContext(ctx).
		Preload("User", selectIdentity).
		Where("status = ? AND user_id <> ?", model.StatusSwappable, userID).
		Order("start_time ASC").Order("id ASC").
		Find(&events).Error
	return events, err
}

func (s *gormStore) ListEventsByStatus(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	var events []model.Event
	err := s.db.WithContext(ctx).Where("status = ?", status).Order("id").Find(&events).Error
	return events, err
}

// UpdateEventGuarded applies updates only while the slot is owned by ownerID
// and not committed to a pending swap. It returns ErrGuardMiss otherwise.
func (s *gormStore) UpdateEventGuarded(ctx context.Context, id, ownerID int64, updates map[string]any) (*model.Event, error) {
	var updated model.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Event{}).
			Where("id = ? AND user_id = ? AND status <> ?", id, ownerID, model.StatusSwapPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update event %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrGuardMiss
		}
		return tx.First(&updated, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteEventGuarded deletes the slot only while it is owned by ownerID and
// not committed to a pending swap. It returns ErrGuardMiss otherwise.
func (s *gormStore) DeleteEventGuarded(ctx context.Context, id, ownerID int64) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status <> ?", id, ownerID, model.StatusSwapPending).
		Delete(&model.Event{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete event %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrGuardMiss
	}
	return nil
}

// --- swap requests ---

func (s *gormStore) GetSwapRequest(ctx context.Context, id int64) (*model.SwapRequest, error) {
	var r model.SwapRequest
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *gormStore) withSwapDetail(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Requester", selectIdentity).
		Preload("Recipient", selectIdentity).
		Preload("RequesterSlot").
		Preload("RecipientSlot")
}

func (s *gormStore) GetSwapRequestDetail(ctx context.Context, id int64) (*model.SwapRequest, error) {
	var r model.SwapRequest
	if err := s.withSwapDetail(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *gormStore) ListIncomingSwapRequests(ctx context.Context, userID int64) ([]model.SwapRequest, error) {
	var out []model.SwapRequest
	err := s.withSwapDetail(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

func (s *gormStore) ListOutgoingSwapRequests(ctx context.Context, userID int64) ([]model.SwapRequest, error) {
	var out []model.SwapRequest
	err := s.withSwapDetail(ctx).
		Where("requester_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

func (s *gormStore) ListSwapRequestsByStatus(ctx context.Context, status model.SwapStatus) ([]model.SwapRequest, error) {
	var out []model.SwapRequest
	err := s.db.WithContext(ctx).Where("status = ?", status).Order("id").Find(&out).Error
	return out, err
}

// OpenSwap commits both slots to a new PENDING swap request in one transaction.
// Both slots are re-validated under lock; any failure leaves them untouched.
func (s *gormStore) OpenSwap(ctx context.Context, p OpenSwapParams) (*model.SwapRequest, error) {
	ids := []int64{p.RequesterSlotID, p.RecipientSlotID}
	var req *model.SwapRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots, err := lockSlots(tx, ids...)
		if err != nil {
			return err
		}
		mine, theirs := byID(slots, p.RequesterSlotID), byID(slots, p.RecipientSlotID)
		if mine == nil || theirs == nil {
			return ErrNotFound
		}
		if mine.UserID != p.RequesterID || theirs.UserID == p.RequesterID {
			return ErrOwnerChanged
		}
		if mine.Status != model.StatusSwappable || theirs.Status != model.StatusSwappable {
			return ErrSlotNotSwappable
		}

		var pending int64
		if err := tx.Model(&model.SwapRequest{}).
			Where("status = ? AND (requester_slot_id IN ? OR recipient_slot_id IN ?)", model.SwapPending, ids, ids).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("failed to count pending swaps: %w", err)
		}
		if pending > 0 {
			return ErrPendingSwap
		}

		res := tx.Model(&model.Event{}).
			Where("id IN ? AND status = ?", ids, model.StatusSwappable).
			Update("status", model.StatusSwapPending)
		if res.Error != nil {
			return fmt.Errorf("failed to mark slots pending: %w", res.Error)
		}
		if res.RowsAffected != int64(len(ids)) {
			return ErrSlotNotSwappable
		}

		req = &model.SwapRequest{
			RequesterID:     p.RequesterID,
			RecipientID:     theirs.UserID,
			RequesterSlotID: mine.ID,
			RecipientSlotID: theirs.ID,
			Status:          model.SwapPending,
		}
		if err := tx.Create(req).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrPendingSwap
			}
			return fmt.Errorf("failed to create swap request: %w", err)
		}

		now := time.Now().UTC()
		claims := []model.SwapClaim{
			{SlotID: mine.ID, SwapRequestID: req.ID, CreatedAt: now},
			{SlotID: theirs.ID, SwapRequestID: req.ID, CreatedAt: now},
		}
		if err := tx.Create(&claims).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrPendingSwap
			}
			return fmt.Errorf("failed to claim slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ResolveSwap moves a PENDING request to ACCEPTED or REJECTED and applies the
// outcome to both slots in one transaction. On accept the owners are exchanged
// and both slots become BUSY; on reject both return to SWAPPABLE.
func (s *gormStore) ResolveSwap(ctx context.Context, requestID int64, accept bool) (*SwapResolution, error) {
	var out SwapResolution

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req model.SwapRequest
		if err := tx.First(&req, requestID).Error; err != nil {
			return notFound(err)
		}
		if req.Status != model.SwapPending {
			return ErrSwapResolved
		}

		slots, err := lockSlots(tx, req.RequesterSlotID, req.RecipientSlotID)
		if err != nil {
			return err
		}
		reqSlot, recSlot := byID(slots, req.RequesterSlotID), byID(slots, req.RecipientSlotID)
		if reqSlot == nil || recSlot == nil {
			return fmt.Errorf("swap request %d references a missing slot: %w", req.ID, ErrNotFound)
		}

		target := model.SwapRejected
		if accept {
			target = model.SwapAccepted
		}
		res := tx.Model(&model.SwapRequest{}).
			Where("id = ? AND status = ?", req.ID, model.SwapPending).
			Update("status", target)
		if res.Error != nil {
			return fmt.Errorf("failed to update swap request %d: %w", req.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSwapResolved
		}

		out.RequesterSlotOwner = reqSlot.UserID
		out.RecipientSlotOwner = recSlot.UserID

		if accept {
			if err := tx.Model(&model.Event{}).Where("id = ?", reqSlot.ID).
				Updates(map[string]any{"user_id": out.RecipientSlotOwner, "status": model.StatusBusy}).Error; err != nil {
				return fmt.Errorf("failed to transfer slot %d: %w", reqSlot.ID, err)
			}
			if err := tx.Model(&model.Event{}).Where("id = ?", recSlot.ID).
				Updates(map[string]any{"user_id": out.RequesterSlotOwner, "status": model.StatusBusy}).Error; err != nil {
				return fmt.Errorf("failed to transfer slot %d: %w", recSlot.ID, err)
			}
		} else {
			if err := tx.Model(&model.Event{}).
				Where("id IN ?", []int64{reqSlot.ID, recSlot.ID}).
				Update("status", model.StatusSwappable).Error; err != nil {
				return fmt.Errorf("failed to release slots: %w", err)
			}
		}

		if err := tx.Where("swap_request_id = ?", req.ID).Delete(&model.SwapClaim{}).Error; err != nil {
			return fmt.Errorf("failed to release claims: %w", err)
		}

		if err := tx.First(&req, req.ID).Error; err != nil {
			return err
		}
		out.Request = &req

		var updated []model.Event
		if err := tx.Where("id IN ?", []int64{reqSlot.ID, recSlot.ID}).Find(&updated).Error; err != nil {
			return err
		}
		out.Events = make([]model.Event, 0, 2)
		for _, id := range []int64{reqSlot.ID, recSlot.ID} {
			if e := byID(updated, id); e != nil {
				out.Events = append(out.Events, *e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- push subscriptions ---

func (s *gormStore) UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error
}

func (s *gormStore) GetPushSubscription(ctx context.Context, userID int64, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) ListPushSubscriptions(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (s *gormStore) DeletePushSubscription(ctx context.Context, userID int64, endpoint string) error {
	return s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{}).Error
}

func (s *gormStore) DeleteExpiredPushSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&model.PushSubscription{}).Error
}
