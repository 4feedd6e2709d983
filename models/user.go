package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the local account record for an authenticated predictor.
// Created lazily on first take or first position. Wins/Losses are mutated
// only by the resolution sweep (first resolution) and the appeal service
// (compensating reversal on overturn).
type User struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	ExternalUserID string `json:"external_user_id" gorm:"uniqueIndex;not null"` // identity provider's stable id

	Username  string `json:"username" gorm:"not null;default:'Anonymous'"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`

	Wins   int64 `json:"wins" gorm:"default:0"`
	Losses int64 `json:"losses" gorm:"default:0"`

	Timestamps
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
