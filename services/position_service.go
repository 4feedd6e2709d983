package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"take-receipts-system/models"
)

// PositionService is the ledger of agree/disagree stances. One position per
// (take, user), forever: there is deliberately no update or delete path —
// permanence is the product guarantee.
type PositionService struct {
	DB        *gorm.DB
	Conflicts *ConflictService
}

func NewPositionService(db *gorm.DB, conflicts *ConflictService) *PositionService {
	return &PositionService{DB: db, Conflicts: conflicts}
}

// Agree handles POST /takes/:id/agree.
func (s *PositionService) Agree(c *fiber.Ctx) error {
	return s.handleStance(c, models.StanceAgree)
}

// Disagree handles POST /takes/:id/disagree.
func (s *PositionService) Disagree(c *fiber.Ctx) error {
	return s.handleStance(c, models.StanceDisagree)
}

func (s *PositionService) handleStance(c *fiber.Ctx, stance string) error {
	position, err := s.Record(c.Context(), c.Params("id"), IdentityFromCtx(c), stance)
	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.Is(err, ErrTakeNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrTakeNotFound.Error()})
		case errors.Is(err, ErrTakeResolved):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot take a position on a resolved take"})
		case errors.Is(err, ErrPositionLocked):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrPositionLocked.Error()})
		case errors.As(err, &conflict):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "conflicting position",
				"reason": conflict.Reason,
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to record position",
				"cause": err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{"success": true, "position": position})
}

// Record creates the one immutable position for (take, user). Preconditions
// are checked in order (exists, PENDING, no prior position, no conflict),
// but the unique index on (take_id, user_id) is the final arbiter — a
// concurrent double-submit loses at the insert, not at the checks.
func (s *PositionService) Record(ctx context.Context, takeID string, identity UserIdentity, stance string) (*models.Position, error) {
	var take models.Take
	if err := s.DB.WithContext(ctx).Where("id = ?", takeID).First(&take).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTakeNotFound
		}
		return nil, err
	}

	if take.Status != models.TakeStatusPending {
		return nil, ErrTakeResolved
	}

	user, err := EnsureUser(s.DB.WithContext(ctx), identity)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := s.DB.WithContext(ctx).Model(&models.Position{}).
		Where("take_id = ? AND user_id = ?", takeID, user.ID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrPositionLocked
	}

	if err := s.Conflicts.CheckNewPosition(ctx, user.ID, stance, take.Text); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return nil, conflict
		}
		// anything else fails open inside the checker; belt and suspenders
	}

	position := models.Position{
		ID:     uuid.NewString(),
		TakeID: takeID,
		UserID: user.ID,
		Stance: stance,
	}
	if err := s.DB.WithContext(ctx).Create(&position).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPositionLocked
		}
		return nil, err
	}

	return &position, nil
}

// isUniqueViolation spots the (take_id, user_id) constraint firing on a
// concurrent insert, across postgres and the sqlite test driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint") // sqlite test driver
}

// GetAgreements handles GET /takes/:id/agreements — the named agree/disagree
// rosters plus counts derived by counting ledger rows.
func (s *PositionService) GetAgreements(c *fiber.Ctx) error {
	takeID := c.Params("id")

	var positions []models.Position
	if err := s.DB.Preload("User").
		Where("take_id = ?", takeID).
		Order("created_at DESC").
		Find(&positions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch agreements",
			"cause": err.Error(),
		})
	}

	type entry struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		CreatedAt string `json:"created_at"`
	}
	agrees := []entry{}
	disagrees := []entry{}
	for _, p := range positions {
		e := entry{ID: p.ID, Username: p.User.Username, CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")}
		if p.Stance == models.StanceAgree {
			agrees = append(agrees, e)
		} else {
			disagrees = append(disagrees, e)
		}
	}

	userPosition := ""
	identity := IdentityFromCtx(c)
	if identity.ExternalID != "" {
		var user models.User
		if err := s.DB.Where("external_user_id = ?", identity.ExternalID).First(&user).Error; err == nil {
			for _, p := range positions {
				if p.UserID == user.ID {
					userPosition = p.Stance
					break
				}
			}
		}
	}

	return c.JSON(fiber.Map{
		"agrees":         agrees,
		"disagrees":      disagrees,
		"agree_count":    len(agrees),
		"disagree_count": len(disagrees),
		"user_position":  userPosition,
	})
}

// GetMyPositions handles GET /my/positions — every take the caller has a
// stance on, with personal accuracy over the resolved ones.
func (s *PositionService) GetMyPositions(c *fiber.Ctx) error {
	identity := IdentityFromCtx(c)

	var user models.User
	if err := s.DB.Where("external_user_id = ?", identity.ExternalID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{
				"takes": []models.Take{},
				"stats": fiber.Map{"total": 0, "pending": 0, "correct": 0, "incorrect": 0, "accuracy": nil},
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load user",
			"cause": err.Error(),
		})
	}

	// Positions on other people's takes, newest first
	var positions []models.Position
	if err := s.DB.
		Joins("JOIN takes ON takes.id = positions.take_id").
		Where("positions.user_id = ? AND takes.owner_user_id != ? AND takes.deleted_at IS NULL", user.ID, identity.ExternalID).
		Order("positions.created_at DESC").
		Find(&positions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch positions",
			"cause": err.Error(),
		})
	}

	takeIDs := make([]string, 0, len(positions))
	stanceByTake := make(map[string]string, len(positions))
	for _, p := range positions {
		takeIDs = append(takeIDs, p.TakeID)
		stanceByTake[p.TakeID] = p.Stance
	}

	var takes []models.Take
	if len(takeIDs) > 0 {
		if err := s.DB.Where("id IN ?", takeIDs).Find(&takes).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to fetch position takes",
				"cause": err.Error(),
			})
		}
	}

	var pending, correct, resolved int
	for i := range takes {
		takes[i].UserPosition = stanceByTake[takes[i].ID]
		if takes[i].Status == models.TakeStatusPending {
			pending++
			continue
		}
		resolved++
		p := models.Position{Stance: takes[i].UserPosition}
		if p.Correct(takes[i].Status) {
			correct++
		}
	}

	var accuracy interface{}
	if resolved > 0 {
		accuracy = int(float64(correct)/float64(resolved)*100 + 0.5)
	}

	return c.JSON(fiber.Map{
		"takes": takes,
		"stats": fiber.Map{
			"total":     len(takes),
			"pending":   pending,
			"correct":   correct,
			"incorrect": resolved - correct,
			"accuracy":  accuracy,
		},
	})
}
