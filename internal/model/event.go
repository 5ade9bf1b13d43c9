package model

import "time"

// EventStatus is the swap lifecycle state of a slot.
type EventStatus string

const (
	StatusBusy        EventStatus = "BUSY"
	StatusSwappable   EventStatus = "SWAPPABLE"
	StatusSwapPending EventStatus = "SWAP_PENDING"
)

// OwnerSettable reports whether an owner may set this status directly.
func (s EventStatus) OwnerSettable() bool {
	return s == StatusBusy || s == StatusSwappable
}

// Event is a calendar slot. StartTime is always before EndTime.
type Event struct {
	ID        int64       `gorm:"primaryKey" json:"id"`
	UserID    int64       `gorm:"index;not null" json:"userId"`
	Title     string      `gorm:"not null" json:"title"`
	StartTime time.Time   `gorm:"index;not null" json:"startTime"`
	EndTime   time.Time   `gorm:"not null" json:"endTime"`
	Status    EventStatus `gorm:"type:varchar(16);index;not null;default:BUSY" json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
