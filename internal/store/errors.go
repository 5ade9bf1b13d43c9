package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrGuardMiss is returned when a guarded write matched no row.
	ErrGuardMiss = errors.New("guarded write matched no row")
	// ErrOwnerChanged is returned when a slot is no longer owned by the expected user.
	ErrOwnerChanged = errors.New("slot owner changed")
	// ErrSlotNotSwappable is returned when a slot left the SWAPPABLE state.
	ErrSlotNotSwappable = errors.New("slot is not swappable")
	// ErrPendingSwap is returned when a slot is already committed to a pending swap.
	ErrPendingSwap = errors.New("slot already has a pending swap request")
	// ErrSwapResolved is returned when a swap request is no longer pending.
	ErrSwapResolved = errors.New("swap request already resolved")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
