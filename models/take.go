package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Take statuses — monotonic except for an appeal overturn.
const (
	TakeStatusPending  = "PENDING"
	TakeStatusVerified = "VERIFIED"
	TakeStatusWrong    = "WRONG"
)

// Appeal statuses. Empty string = never appealed.
const (
	AppealStatusPending    = "PENDING"
	AppealStatusUpheld     = "UPHELD"
	AppealStatusOverturned = "OVERTURNED"
)

// Take is a single timestamped prediction ("hot take").
// Text is immutable once LockedAt is set; Status only leaves PENDING via the
// resolution sweep, and only changes again via a single appeal overturn.
type Take struct {
	ID   string `json:"id" gorm:"primaryKey;type:uuid"`
	Text string `json:"text" gorm:"type:varchar(280);not null"`

	// Display name shown on the receipt — may be "Anonymous"
	Author string `json:"author" gorm:"not null;default:'Anonymous'"`

	// Integrity hash (sha256 of text + creation time, truncated) — shown on
	// the receipt for display/verification, not a security feature.
	Hash string `json:"hash" gorm:"type:varchar(16)"`

	// Share permalink slug, e.g. "stirman-rockets-make-the-playoffs-1a2b3c"
	Slug string `json:"slug" gorm:"index"`

	// Structured verification fields (filled by the verify endpoint)
	Verified           bool   `json:"verified" gorm:"default:false"`
	Subject            string `json:"subject,omitempty"`
	PredictedOutcome   string `json:"predicted_outcome,omitempty"`
	Timeframe          string `json:"timeframe,omitempty"`
	ResolutionCriteria string `json:"resolution_criteria,omitempty" gorm:"type:text"`

	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	LockedAt   time.Time  `json:"locked_at" gorm:"not null"`
	ResolvesAt *time.Time `json:"resolves_at,omitempty" gorm:"index"` // when the claim becomes checkable
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	Status              string `json:"status" gorm:"type:varchar(16);default:'PENDING';index"`
	ResolutionReasoning string `json:"resolution_reasoning,omitempty" gorm:"type:text"` // always retained for audit/appeal

	// Appeal overlay — at most one appeal per take, ever.
	AppealStatus    string `json:"appeal_status,omitempty" gorm:"type:varchar(16);default:''"`
	AppealReasoning string `json:"appeal_reasoning,omitempty" gorm:"type:text"`

	// External auth id of the owning user; empty for anonymous takes.
	OwnerUserID string `json:"owner_user_id,omitempty" gorm:"index"`

	// Soft delete so admin removals keep the audit trail
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Positions []Position `json:"positions,omitempty" gorm:"foreignKey:TakeID;constraint:OnDelete:CASCADE"`

	// Calculated fields (not stored in DB)
	AgreeCount    int64  `json:"agree_count" gorm:"-"`
	DisagreeCount int64  `json:"disagree_count" gorm:"-"`
	UserPosition  string `json:"user_position,omitempty" gorm:"-"`
}

func (t *Take) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// IsResolved reports whether the take has left PENDING.
func (t *Take) IsResolved() bool {
	return t.Status == TakeStatusVerified || t.Status == TakeStatusWrong
}

// Appealed reports whether an appeal was ever filed (including one in flight).
func (t *Take) Appealed() bool {
	return t.AppealStatus != ""
}
