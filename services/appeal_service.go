package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"take-receipts-system/llm"
	"take-receipts-system/models"
	"take-receipts-system/providers"
)

const appealPrompt = `You are an appeals judge reviewing a disputed prediction resolution.

A prediction was previously resolved, and the author is appealing that decision. Re-examine the case with fresh evidence and decide whether the original resolution should stand.

IMPORTANT RULES:
- Only OVERTURN if the fresh evidence clearly shows the original resolution was wrong
- If the evidence is ambiguous or supports the original resolution, UPHOLD it
- Be objective and cite the specific evidence

Respond with JSON:
{
  "decision": "UPHELD" | "OVERTURNED",
  "newResolution": "TRUE" | "FALSE",
  "reasoning": "Explanation citing the specific evidence",
  "keyEvidence": "The decisive piece of evidence"
}`

// AppealService handles the one-shot appeal path on resolved takes.
type AppealService struct {
	DB     *gorm.DB
	LLM    llm.Client
	Search *providers.SearchClient
}

func NewAppealService(db *gorm.DB, llmClient llm.Client, search *providers.SearchClient) *AppealService {
	return &AppealService{DB: db, LLM: llmClient, Search: search}
}

type appealVerdict struct {
	Decision      string `json:"decision"`
	NewResolution string `json:"newResolution"`
	Reasoning     string `json:"reasoning"`
	KeyEvidence   string `json:"keyEvidence"`
}

// HandleAppeal is POST /takes/:id/appeal. Author-only.
func (s *AppealService) HandleAppeal(c *fiber.Ctx) error {
	takeID := c.Params("id")
	userID := IdentityFromCtx(c).ExternalID
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	take, err := s.File(c.Context(), takeID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTakeNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "take not found"})
		case errors.Is(err, ErrNotAuthor):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the author can appeal a take"})
		case errors.Is(err, ErrTakePending):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "only resolved takes can be appealed"})
		case errors.Is(err, ErrAlreadyAppealed):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "this take has already been appealed"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to process appeal",
				"cause": err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"take":            take,
		"appeal_status":   take.AppealStatus,
		"appeal_decision": take.AppealReasoning,
	})
}

// File runs the appeal for takeID on behalf of externalUserID. The appeal
// is marked PENDING before the adjudicator is consulted, so the one-appeal
// limit holds even if the process dies mid-call.
func (s *AppealService) File(ctx context.Context, takeID, externalUserID string) (*models.Take, error) {
	var take models.Take
	if err := s.DB.WithContext(ctx).First(&take, "id = ?", takeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTakeNotFound
		}
		return nil, err
	}

	if take.OwnerUserID == "" || take.OwnerUserID != externalUserID {
		return nil, ErrNotAuthor
	}
	if !take.IsResolved() {
		return nil, ErrTakePending
	}
	if take.AppealStatus != "" {
		return nil, ErrAlreadyAppealed
	}

	// Claim the appeal slot first. A crashed adjudication leaves the take
	// appealed-pending rather than open to a second attempt.
	res := s.DB.WithContext(ctx).Model(&models.Take{}).
		Where("id = ? AND appeal_status = ?", take.ID, "").
		Update("appeal_status", models.AppealStatusPending)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyAppealed
	}

	log.Printf("[APPEAL] 🔄 Appeal filed for take %s", take.ID)

	verdict := s.adjudicate(ctx, &take)

	if verdict.Decision == "OVERTURNED" {
		if err := s.overturn(ctx, &take, verdict); err != nil {
			return nil, err
		}
		log.Printf("[APPEAL] ✅ Take %s overturned", take.ID)
	} else {
		if err := s.uphold(ctx, &take, verdict); err != nil {
			return nil, err
		}
		log.Printf("[APPEAL] ✅ Take %s upheld", take.ID)
	}

	if err := s.DB.WithContext(ctx).First(&take, "id = ?", take.ID).Error; err != nil {
		return nil, err
	}
	return &take, nil
}

// adjudicate gathers fresh evidence and asks the strong model to re-judge.
// Model failure defaults to UPHELD: the original resolution stands unless
// something affirmatively overturns it.
func (s *AppealService) adjudicate(ctx context.Context, take *models.Take) *appealVerdict {
	evidence := s.Search.Search(ctx, take.Text)

	original := "WRONG (the prediction did not come true)"
	if take.Status == models.TakeStatusVerified {
		original = "VERIFIED (the prediction came true)"
	}

	user := fmt.Sprintf(`Review this appealed resolution:

PREDICTION: %q
ORIGINAL RESOLUTION: %s
ORIGINAL REASONING: %s

FRESH EVIDENCE:
%s

Should the original resolution be upheld or overturned?`,
		take.Text, original, take.ResolutionReasoning, evidence)

	raw, err := s.LLM.CompleteJSON(ctx, llm.JudgeModel(), appealPrompt, user, 1024)
	if err != nil {
		log.Printf("[APPEAL] ⚠️ Adjudicator failed for %s, upholding: %v", take.ID, err)
		return &appealVerdict{
			Decision:  "UPHELD",
			Reasoning: "The appeal could not be adjudicated. The original resolution stands.",
		}
	}

	var verdict appealVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		log.Printf("[APPEAL] ⚠️ Unreadable appeal verdict for %s, upholding: %v", take.ID, err)
		return &appealVerdict{
			Decision:  "UPHELD",
			Reasoning: "The appeal could not be adjudicated. The original resolution stands.",
		}
	}
	return &verdict
}

func appealReasoning(v *appealVerdict) string {
	reasoning := v.Reasoning
	if v.KeyEvidence != "" {
		reasoning += "\n\nKey Evidence: " + v.KeyEvidence
	}
	return reasoning
}

func (s *AppealService) uphold(ctx context.Context, take *models.Take, v *appealVerdict) error {
	return s.DB.WithContext(ctx).Model(&models.Take{}).
		Where("id = ?", take.ID).
		Updates(map[string]interface{}{
			"appeal_status":    models.AppealStatusUpheld,
			"appeal_reasoning": appealReasoning(v),
		}).Error
}

// overturn flips the resolution and re-points the owner's record in one
// transaction. This is the only path where a win or loss counter decrements.
func (s *AppealService) overturn(ctx context.Context, take *models.Take, v *appealVerdict) error {
	newStatus := models.TakeStatusWrong
	if v.NewResolution == "TRUE" {
		newStatus = models.TakeStatusVerified
	}
	if newStatus == take.Status {
		// Verdict says overturn but lands on the same status; treat as upheld
		return s.uphold(ctx, take, v)
	}

	now := time.Now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Take{}).
			Where("id = ?", take.ID).
			Updates(map[string]interface{}{
				"status":               newStatus,
				"resolved_at":          now,
				"resolution_reasoning": "[OVERTURNED ON APPEAL] " + take.ResolutionReasoning,
				"appeal_status":        models.AppealStatusOverturned,
				"appeal_reasoning":     appealReasoning(v),
			}).Error; err != nil {
			return err
		}

		if take.OwnerUserID == "" {
			return nil
		}
		gain, loss := "wins", "losses"
		if newStatus == models.TakeStatusWrong {
			gain, loss = "losses", "wins"
		}
		return tx.Model(&models.User{}).
			Where("external_user_id = ?", take.OwnerUserID).
			Updates(map[string]interface{}{
				gain: gorm.Expr(gain + " + 1"),
				loss: gorm.Expr(loss + " - 1"),
			}).Error
	})
}
