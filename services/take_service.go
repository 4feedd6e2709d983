package services

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"take-receipts-system/models"
	"take-receipts-system/utils"
)

const maxTakeLength = 280

type TakeService struct {
	DB        *gorm.DB
	Conflicts *ConflictService
}

func NewTakeService(db *gorm.DB, conflicts *ConflictService) *TakeService {
	return &TakeService{DB: db, Conflicts: conflicts}
}

// VerificationPayload is the structured output of the verify endpoint,
// echoed back by the client when the take is actually published.
type VerificationPayload struct {
	IsVerifiable            bool   `json:"isVerifiable"`
	Subject                 string `json:"subject"`
	Prediction              string `json:"prediction"`
	Timeframe               string `json:"timeframe"`
	ResolutionCriteria      string `json:"resolutionCriteria"`
	SuggestedResolutionDate string `json:"suggestedResolutionDate"` // YYYY-MM-DD
}

type createTakeRequest struct {
	Text         string               `json:"text"`
	Author       string               `json:"author"`
	Verification *VerificationPayload `json:"verification"`
}

// CreateTake publishes a new take. Anonymous takes are allowed; when the
// caller is authenticated we lazily create their User row and run the
// conflict check against their other open takes first.
func (s *TakeService) CreateTake(c *fiber.Ctx) error {
	var req createTakeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}

	text := utils.NormalizeTakeText(req.Text)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "take text is required"})
	}
	if len([]rune(text)) > maxTakeLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "take must be 280 characters or less"})
	}

	identity := IdentityFromCtx(c)

	// Display name: authenticated username wins, then the provided author
	author := "Anonymous"
	if req.Author != "" {
		author = req.Author
	}
	if identity.ExternalID != "" && identity.Username != "" {
		author = identity.Username
	}

	if identity.ExternalID != "" {
		if _, err := EnsureUser(s.DB, identity); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to ensure user record",
				"cause": err.Error(),
			})
		}

		// Advisory-but-blocking: only an explicit conflict stops the take
		if err := s.Conflicts.CheckNewTake(c.Context(), identity.ExternalID, text); err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":  "conflicting prediction",
					"reason": conflict.Reason,
				})
			}
		}
	}

	now := time.Now()
	hash := utils.TakeHash(text, now)

	var resolvesAt *time.Time
	if req.Verification != nil && req.Verification.SuggestedResolutionDate != "" {
		if parsed, err := time.Parse("2006-01-02", req.Verification.SuggestedResolutionDate); err == nil {
			resolvesAt = &parsed
		}
	}

	take := models.Take{
		ID:          uuid.NewString(),
		Text:        text,
		Author:      author,
		Hash:        hash,
		Slug:        utils.TakeSlug(author, text, hash),
		CreatedAt:   now,
		LockedAt:    now, // text is immutable from this moment
		ResolvesAt:  resolvesAt,
		Status:      models.TakeStatusPending,
		OwnerUserID: identity.ExternalID,
	}
	if req.Verification != nil {
		take.Verified = req.Verification.IsVerifiable
		take.Subject = req.Verification.Subject
		take.PredictedOutcome = req.Verification.Prediction
		take.Timeframe = req.Verification.Timeframe
		take.ResolutionCriteria = req.Verification.ResolutionCriteria
	}

	if err := s.DB.Create(&take).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create take",
			"cause": err.Error(),
		})
	}

	log.Printf("[TAKES] 📜 New take locked in: %s (%s)", take.ID, take.Hash)
	return c.Status(fiber.StatusCreated).JSON(take)
}

// GetAllTakes returns the latest takes (newest first).
func (s *TakeService) GetAllTakes(c *fiber.Ctx) error {
	var takes []models.Take
	if err := s.DB.Order("created_at DESC").Limit(50).Find(&takes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch takes",
			"cause": err.Error(),
		})
	}
	s.attachEngagement(c, takes)
	return c.JSON(takes)
}

// GetRecentTakes returns takes created in the last N days (default 7).
func (s *TakeService) GetRecentTakes(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if days < 1 || days > 90 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	var takes []models.Take
	if err := s.DB.Where("created_at >= ?", since).
		Order("created_at DESC").Limit(50).Find(&takes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch recent takes",
			"cause": err.Error(),
		})
	}
	s.attachEngagement(c, takes)
	return c.JSON(takes)
}

// GetTrendingTakes orders by engagement today, falling back to all-time
// engagement when nothing has been voted on yet today.
func (s *TakeService) GetTrendingTakes(c *fiber.Ctx) error {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	var takes []models.Take
	err := s.DB.
		Joins("JOIN positions ON positions.take_id = takes.id AND positions.created_at >= ?", midnight).
		Group("takes.id").
		Order("COUNT(positions.id) DESC").
		Limit(50).
		Find(&takes).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch trending takes",
			"cause": err.Error(),
		})
	}

	if len(takes) == 0 {
		// Quiet day — fall back to all-time engagement
		err = s.DB.
			Joins("LEFT JOIN positions ON positions.take_id = takes.id").
			Group("takes.id").
			Order("COUNT(positions.id) DESC").
			Limit(50).
			Find(&takes).Error
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to fetch trending takes",
				"cause": err.Error(),
			})
		}
	}

	s.attachEngagement(c, takes)
	return c.JSON(takes)
}

// GetResolvedTakes returns takes that have left PENDING, newest resolution first.
func (s *TakeService) GetResolvedTakes(c *fiber.Ctx) error {
	var takes []models.Take
	if err := s.DB.Where("status IN ?", []string{models.TakeStatusVerified, models.TakeStatusWrong}).
		Order("resolved_at DESC").Limit(50).Find(&takes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch resolved takes",
			"cause": err.Error(),
		})
	}
	s.attachEngagement(c, takes)
	return c.JSON(takes)
}

// GetMyTakes returns the authenticated caller's own takes.
func (s *TakeService) GetMyTakes(c *fiber.Ctx) error {
	identity := IdentityFromCtx(c)

	var takes []models.Take
	if err := s.DB.Where("owner_user_id = ?", identity.ExternalID).
		Order("created_at DESC").Find(&takes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch your takes",
			"cause": err.Error(),
		})
	}
	s.attachEngagement(c, takes)
	return c.JSON(takes)
}

// GetTakeByID returns one take with its derived counts and the caller's position.
func (s *TakeService) GetTakeByID(c *fiber.Ctx) error {
	id := c.Params("id")

	var take models.Take
	if err := s.DB.Where("id = ?", id).First(&take).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "take not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch take",
			"cause": err.Error(),
		})
	}

	takes := []models.Take{take}
	s.attachEngagement(c, takes)
	return c.JSON(takes[0])
}

// attachEngagement fills the derived AgreeCount/DisagreeCount/UserPosition
// fields. Counts are always derived from position rows — never cached — so
// they cannot drift from the ledger of truth.
func (s *TakeService) attachEngagement(c *fiber.Ctx, takes []models.Take) {
	if len(takes) == 0 {
		return
	}

	takeIDs := make([]string, 0, len(takes))
	for _, t := range takes {
		takeIDs = append(takeIDs, t.ID)
	}

	type stanceCount struct {
		TakeID string
		Stance string
		N      int64
	}
	var counts []stanceCount
	if err := s.DB.Model(&models.Position{}).
		Select("take_id, stance, COUNT(*) as n").
		Where("take_id IN ?", takeIDs).
		Group("take_id").Group("stance").
		Scan(&counts).Error; err != nil {
		log.Printf("[TAKES] ⚠️ Failed to load engagement counts: %v", err)
		return
	}

	agree := make(map[string]int64)
	disagree := make(map[string]int64)
	for _, sc := range counts {
		if sc.Stance == models.StanceAgree {
			agree[sc.TakeID] = sc.N
		} else {
			disagree[sc.TakeID] = sc.N
		}
	}

	// Caller's own position, if authenticated
	userPositions := make(map[string]string)
	identity := IdentityFromCtx(c)
	if identity.ExternalID != "" {
		var user models.User
		if err := s.DB.Where("external_user_id = ?", identity.ExternalID).First(&user).Error; err == nil {
			var mine []models.Position
			if err := s.DB.Where("user_id = ? AND take_id IN ?", user.ID, takeIDs).Find(&mine).Error; err == nil {
				for _, p := range mine {
					userPositions[p.TakeID] = p.Stance
				}
			}
		}
	}

	for i := range takes {
		takes[i].AgreeCount = agree[takes[i].ID]
		takes[i].DisagreeCount = disagree[takes[i].ID]
		takes[i].UserPosition = userPositions[takes[i].ID]
	}
}
