package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"take-receipts-system/models"
)

// AdminService exposes the moderation endpoints. Routes are mounted behind
// RequireRole("admin").
type AdminService struct {
	DB *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{DB: db}
}

// GetStats is GET /admin/stats.
func (s *AdminService) GetStats(c *fiber.Ctx) error {
	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var byStatus []statusCount
	if err := s.DB.Model(&models.Take{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load stats",
			"cause": err.Error(),
		})
	}

	var userCount, positionCount int64
	s.DB.Model(&models.User{}).Count(&userCount)
	s.DB.Model(&models.Position{}).Count(&positionCount)

	takes := fiber.Map{}
	var total int64
	for _, sc := range byStatus {
		takes[sc.Status] = sc.Count
		total += sc.Count
	}
	takes["total"] = total

	return c.JSON(fiber.Map{
		"takes":     takes,
		"users":     userCount,
		"positions": positionCount,
	})
}

// DeleteTake is DELETE /admin/takes/:id. Soft delete: the row survives for
// audit, the take disappears from every feed.
func (s *AdminService) DeleteTake(c *fiber.Ctx) error {
	takeID := c.Params("id")

	var take models.Take
	if err := s.DB.First(&take, "id = ?", takeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "take not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load take",
			"cause": err.Error(),
		})
	}

	if err := s.DB.Delete(&take).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete take",
			"cause": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"deleted": takeID})
}
