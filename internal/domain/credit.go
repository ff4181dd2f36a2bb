package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a credit history entry.
type EntryType string

// History entry types.
const (
	EntryInit         EntryType = "init"
	EntryTaskCreation EntryType = "task_creation"
	EntryRefund       EntryType = "refund"
	EntryCoupon       EntryType = "coupon"
	EntryUse          EntryType = "use"
)

// CreditAccount is the cached balance of a user.
type CreditAccount struct {
	UserID    string    `json:"userId"`
	Amount    int       `json:"amount"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreditEntry is one append-only delta in a user's credit history.
type CreditEntry struct {
	ID          uuid.UUID  `json:"id"`
	UserID      string     `json:"userId"`
	Amount      int        `json:"amount"`
	Type        EntryType  `json:"type"`
	Description string     `json:"description"`
	TaskID      *uuid.UUID `json:"taskId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewCreditEntry builds a history entry. taskID may be uuid.Nil.
func NewCreditEntry(userID string, amount int, typ EntryType, description string, taskID uuid.UUID) *CreditEntry {
	e := &CreditEntry{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        typ,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if taskID != uuid.Nil {
		id := taskID
		e.TaskID = &id
	}
	return e
}

// CouponType classifies coupons; a user may hold at most one welcome coupon.
type CouponType string

// Coupon types.
const (
	CouponWelcome CouponType = "welcome"
)

// CouponRedemption records that a user used a coupon code.
type CouponRedemption struct {
	Code      string     `json:"code"`
	UserID    string     `json:"userId"`
	Type      CouponType `json:"type"`
	Credits   int        `json:"credits"`
	CreatedAt time.Time  `json:"createdAt"`
}
