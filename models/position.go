package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Position stances
const (
	StanceAgree    = "AGREE"
	StanceDisagree = "DISAGREE"
)

// Position is one user's permanent agree/disagree stance on a take.
// Immutable and irrevocable: no UpdatedAt, no soft delete, no update path.
// The (take_id, user_id) unique index is the final arbiter of the one-shot
// rule — concurrent double-submits die there, not in application code.
type Position struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	TakeID string `json:"take_id" gorm:"not null;uniqueIndex:idx_positions_take_user"`
	UserID string `json:"user_id" gorm:"not null;uniqueIndex:idx_positions_take_user"` // internal User.ID

	Stance    string    `json:"stance" gorm:"type:varchar(8);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Correct reports whether the stance turned out right for a resolved status.
func (p *Position) Correct(takeStatus string) bool {
	return (p.Stance == StanceAgree && takeStatus == TakeStatusVerified) ||
		(p.Stance == StanceDisagree && takeStatus == TakeStatusWrong)
}
