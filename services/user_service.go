package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"take-receipts-system/middleware"
	"take-receipts-system/models"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// UserIdentity is the opaque principal handed to us by the gateway.
type UserIdentity struct {
	ExternalID string
	Username   string
	Email      string
}

// IdentityFromCtx reads the gateway-forwarded principal off the request.
func IdentityFromCtx(c *fiber.Ctx) UserIdentity {
	return UserIdentity{
		ExternalID: middleware.UserID(c),
		Username:   middleware.UserName(c),
		Email:      middleware.UserEmail(c),
	}
}

// EnsureUser lazily creates (or refreshes) the local User row for an
// authenticated principal. Safe to call concurrently — the external id
// unique index plus OnConflict upsert makes it idempotent.
func EnsureUser(tx *gorm.DB, identity UserIdentity) (*models.User, error) {
	username := identity.Username
	if username == "" {
		username = "Anonymous"
	}

	user := models.User{
		ExternalUserID: identity.ExternalID,
		Username:       username,
		Email:          identity.Email,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email"}),
	}).Create(&user).Error; err != nil {
		return nil, err
	}

	// Re-read: on conflict the in-memory struct doesn't carry the existing row
	var saved models.User
	if err := tx.Where("external_user_id = ?", identity.ExternalID).First(&saved).Error; err != nil {
		return nil, err
	}
	return &saved, nil
}

// GetMyRecord returns the caller's win/loss record.
func (s *UserService) GetMyRecord(c *fiber.Ctx) error {
	identity := IdentityFromCtx(c)

	var user models.User
	if err := s.DB.Where("external_user_id = ?", identity.ExternalID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No takes or positions yet — empty record, not an error
			return c.JSON(fiber.Map{
				"wins":   0,
				"losses": 0,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load user record",
			"cause": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"id":         user.ID,
		"username":   user.Username,
		"avatar_url": user.AvatarURL,
		"wins":       user.Wins,
		"losses":     user.Losses,
	})
}
