package model

import "time"

// SwapStatus is the state of a swap negotiation. ACCEPTED and REJECTED are terminal.
type SwapStatus string

const (
	SwapPending  SwapStatus = "PENDING"
	SwapAccepted SwapStatus = "ACCEPTED"
	SwapRejected SwapStatus = "REJECTED"
)

// SwapRequest proposes exchanging the requester's slot for the recipient's slot.
type SwapRequest struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	RequesterID     int64      `gorm:"index;not null" json:"requesterId"`
	RecipientID     int64      `gorm:"index;not null" json:"recipientId"`
	RequesterSlotID int64      `gorm:"index;not null" json:"requesterSlotId"`
	RecipientSlotID int64      `gorm:"index;not null" json:"recipientSlotId"`
	Status          SwapStatus `gorm:"type:varchar(16);index;not null;default:PENDING" json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	Requester     *User  `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Recipient     *User  `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	RequesterSlot *Event `gorm:"foreignKey:RequesterSlotID" json:"requesterSlot,omitempty"`
	RecipientSlot *Event `gorm:"foreignKey:RecipientSlotID" json:"recipientSlot,omitempty"`
}

// SwapClaim marks a slot as committed to a pending swap request.
// The primary key on SlotID allows at most one claim per slot.
type SwapClaim struct {
	SlotID        int64     `gorm:"primaryKey;autoIncrement:false"`
	SwapRequestID int64     `gorm:"index;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}
