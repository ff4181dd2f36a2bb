package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AvatarTask is a request to draw a stylized avatar from a completed summary.
type AvatarTask struct {
	ID        uuid.UUID  `json:"id"`
	SummaryID uuid.UUID  `json:"summaryId"`
	UserID    string     `json:"userId"`
	Status    TaskStatus `json:"status"`
	Credits   int        `json:"credits"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewAvatarTask creates a pending avatar task for a summary owned by userID.
func NewAvatarTask(summaryID uuid.UUID, userID string, credits int) (*AvatarTask, error) {
	now := time.Now().UTC()
	t := &AvatarTask{
		ID:        uuid.New(),
		SummaryID: summaryID,
		UserID:    userID,
		Status:    TaskStatusPending,
		Credits:   credits,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the fields every stored avatar task must carry.
func (t *AvatarTask) Validate() error {
	if t.ID == uuid.Nil || t.SummaryID == uuid.Nil {
		return fmt.Errorf("%w: avatar task and summary ids are required", ErrValidation)
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: avatar task requires an owner", ErrValidation)
	}
	if t.Credits < 0 {
		return fmt.Errorf("%w: credits cannot be negative", ErrValidation)
	}
	return nil
}
