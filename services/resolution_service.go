package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"take-receipts-system/llm"
	"take-receipts-system/models"
	"take-receipts-system/providers"
	"take-receipts-system/utils"
)

const classificationPrompt = `You are a classifier that determines what data source is needed to verify a prediction.

Analyze the prediction and respond with JSON:
{
  "category": "NBA" | "NFL" | "MLB" | "NHL" | "SOCCER" | "WEATHER" | "STOCK" | "CRYPTO" | "OTHER",
  "teams": ["Team1", "Team2"],
  "date": "YYYY-MM-DD",
  "details": "Brief description of what to look up"
}

For sports predictions, extract:
- The two teams playing (use official team names like "Los Angeles Clippers", "Denver Nuggets")
- The date of the game

Examples:
- "The Clippers will beat the Nuggets tonight" -> NBA, teams: ["Los Angeles Clippers", "Denver Nuggets"], date: today
- "Rockets will beat Mavericks on January 31" -> NBA, teams: ["Houston Rockets", "Dallas Mavericks"], date: "2026-01-31"
- "It will rain in SF tomorrow" -> WEATHER
- "Bitcoin will hit 100k" -> CRYPTO`

// judgePromptFor builds the resolution prompt with the evaluation-time date
// injected, so the model never reasons about future events as past ones.
func judgePromptFor(now time.Time) string {
	return fmt.Sprintf(`You are an AI that determines whether predictions have come true.

TODAY'S DATE: %s

You will be given a prediction along with VERIFIED DATA from an official source. Your job is to:
1. Analyze the provided data
2. Determine if the prediction is TRUE, FALSE, or UNDETERMINED
3. Provide clear reasoning

IMPORTANT RULES:
- Only mark as TRUE if the data clearly shows the prediction came true
- Only mark as FALSE if the data clearly shows it did NOT come true
- Mark as UNDETERMINED if the data doesn't contain the needed information, or the event has not concluded
- Be objective and cite the specific data provided

Respond with JSON:
{
  "resolution": "TRUE" | "FALSE" | "UNDETERMINED",
  "confidence": "HIGH" | "MEDIUM" | "LOW",
  "reasoning": "Explanation citing the specific data",
  "sources": "The data source used"
}`, now.Format("2006-01-02"))
}

// ResolutionService runs the sweep that moves due takes out of PENDING:
// classify -> fetch evidence -> judge -> commit, one take at a time.
type ResolutionService struct {
	DB         *gorm.DB
	LLM        llm.Client
	Scoreboard *providers.ScoreboardClient
	Search     *providers.SearchClient
	Notifier   *NotifierService
	BatchSize  int
}

func NewResolutionService(db *gorm.DB, llmClient llm.Client, scoreboard *providers.ScoreboardClient, search *providers.SearchClient, notifier *NotifierService) *ResolutionService {
	return &ResolutionService{
		DB:         db,
		LLM:        llmClient,
		Scoreboard: scoreboard,
		Search:     search,
		Notifier:   notifier,
		BatchSize:  10,
	}
}

// Classification is the structured guess that picks the evidence provider.
type Classification struct {
	Category string   `json:"category"`
	Teams    []string `json:"teams"`
	Date     string   `json:"date"`
	Details  string   `json:"details"`
}

// Verdict is the judge's structured output.
type Verdict struct {
	Resolution string `json:"resolution"` // TRUE | FALSE | UNDETERMINED
	Confidence string `json:"confidence"` // HIGH | MEDIUM | LOW
	Reasoning  string `json:"reasoning"`
	Sources    string `json:"sources"`
}

// Eligible reports whether this verdict may close a take. The confidence
// gate is the core correctness control: a false skip costs one sweep cycle,
// a false resolve is a permanent record unless appealed.
func (v *Verdict) Eligible() bool {
	if v.Resolution != "TRUE" && v.Resolution != "FALSE" {
		return false
	}
	return v.Confidence == "HIGH" || v.Confidence == "MEDIUM"
}

// TakeOutcome is one take's result within a sweep.
type TakeOutcome struct {
	TakeID    string `json:"take_id"`
	Outcome   string `json:"outcome"` // RESOLVED | SKIPPED | ERROR
	Status    string `json:"status,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Processed int           `json:"processed"`
	Results   []TakeOutcome `json:"results"`
	Timestamp time.Time     `json:"timestamp"`
}

// RunSweep finds due PENDING takes and resolves what the evidence supports.
// Each take's pipeline is isolated: an error on one is recorded in the
// result list and the sweep moves on. Re-running is a no-op for anything
// already out of PENDING.
func (s *ResolutionService) RunSweep(ctx context.Context) (*SweepResult, error) {
	now := time.Now()

	var due []models.Take
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND resolves_at IS NOT NULL AND resolves_at <= ?", models.TakeStatusPending, now).
		Order("resolves_at ASC").
		Limit(s.BatchSize).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("failed to select due takes: %w", err)
	}

	log.Printf("[RESOLVE] 🔄 Sweep starting: %d due take(s)", len(due))

	result := &SweepResult{Processed: len(due), Timestamp: now}

	for i := range due {
		take := due[i]
		outcome := s.resolveTake(ctx, &take, now)
		result.Results = append(result.Results, outcome)
	}

	log.Printf("[RESOLVE] ✅ Sweep finished: %d processed", result.Processed)
	return result, nil
}

// resolveTake runs one take through the full pipeline. Never panics or
// returns an error upward — every failure mode lands in the outcome record.
func (s *ResolutionService) resolveTake(ctx context.Context, take *models.Take, now time.Time) TakeOutcome {
	log.Printf("[RESOLVE] 🔄 Processing take %s", take.ID)

	evidence := s.fetchEvidence(ctx, take, now)
	log.Printf("[RESOLVE] 📊 Evidence for %s: %s", take.ID, truncateText(evidence, 200))

	verdict, err := s.judge(ctx, take, evidence, now)
	if err != nil {
		// Judge failure is treated as UNDETERMINED: skip, retry next sweep
		log.Printf("[RESOLVE] ⚠️ Judge failed for %s: %v", take.ID, err)
		return TakeOutcome{TakeID: take.ID, Outcome: "SKIPPED", Reasoning: fmt.Sprintf("judge unavailable: %v", err)}
	}

	if !verdict.Eligible() {
		log.Printf("[RESOLVE] ⏭️ Skipping %s (%s/%s)", take.ID, verdict.Resolution, verdict.Confidence)
		return TakeOutcome{
			TakeID:    take.ID,
			Outcome:   "SKIPPED",
			Reasoning: "Unable to determine: " + verdict.Reasoning,
		}
	}

	status := models.TakeStatusWrong
	if verdict.Resolution == "TRUE" {
		status = models.TakeStatusVerified
	}
	reasoning := verdict.Reasoning
	if verdict.Sources != "" {
		reasoning += "\n\nSource: " + verdict.Sources
	}

	if err := s.commit(ctx, take, status, reasoning, now); err != nil {
		log.Printf("[RESOLVE] ❌ Failed to commit %s: %v", take.ID, err)
		return TakeOutcome{TakeID: take.ID, Outcome: "ERROR", Reasoning: err.Error()}
	}

	// Best-effort side effects — the resolution is already committed
	utils.ArchiveEvidence(ctx, take.ID, evidence, reasoning)
	s.notifyOwner(ctx, take, status, reasoning)

	log.Printf("[RESOLVE] ✅ Take %s resolved %s", take.ID, status)
	return TakeOutcome{TakeID: take.ID, Outcome: "RESOLVED", Status: status, Reasoning: truncateText(reasoning, 200)}
}

// classify asks the cheap model which evidence source fits the take.
// Any failure comes back as a nil classification — the caller falls through
// to generic web search, never crashes.
func (s *ResolutionService) classify(ctx context.Context, take *models.Take, now time.Time) *Classification {
	criteria := take.ResolutionCriteria
	if criteria == "" {
		criteria = "Not specified"
	}
	user := fmt.Sprintf("Classify this prediction:\n\n%q\n\nResolution criteria: %s\nToday's date: %s",
		take.Text, criteria, now.Format("2006-01-02"))

	raw, err := s.LLM.CompleteJSON(ctx, llm.ClassifyModel(), classificationPrompt, user, 256)
	if err != nil {
		log.Printf("[RESOLVE] ⚠️ Classification failed for %s: %v", take.ID, err)
		return nil
	}

	var cls Classification
	if err := json.Unmarshal(raw, &cls); err != nil {
		log.Printf("[RESOLVE] ⚠️ Unreadable classification for %s: %v", take.ID, err)
		return nil
	}

	log.Printf("[RESOLVE] 📋 Classified %s as %s", take.ID, cls.Category)
	return &cls
}

// fetchEvidence picks the evidence provider from the classification and
// returns evidence text. The judge always receives either concrete evidence
// or an explicit no-evidence marker — never an error.
func (s *ResolutionService) fetchEvidence(ctx context.Context, take *models.Take, now time.Time) string {
	cls := s.classify(ctx, take, now)

	if cls != nil && cls.Category == "NBA" && len(cls.Teams) >= 2 && cls.Date != "" {
		return s.Scoreboard.FetchNBAGame(ctx, cls.Teams, cls.Date)
	}
	// NFL/MLB/NHL/SOCCER and everything else fall through to web search

	query := take.Text
	if take.ResolutionCriteria != "" {
		query = take.ResolutionCriteria
	}
	if cls != nil && cls.Details != "" {
		query = cls.Details
	}
	return s.Search.Search(ctx, query)
}

// judge asks the strong model for a verdict over the evidence.
func (s *ResolutionService) judge(ctx context.Context, take *models.Take, evidence string, now time.Time) (*Verdict, error) {
	orDefault := func(v string) string {
		if v == "" {
			return "Not specified"
		}
		return v
	}

	user := fmt.Sprintf(`Determine if this prediction came true based on the data below:

PREDICTION: %q
SUBJECT: %s
WHAT WAS PREDICTED: %s
RESOLUTION CRITERIA: %s

VERIFIED DATA:
%s

Based on this data, has the prediction come true?`,
		take.Text, orDefault(take.Subject), orDefault(take.PredictedOutcome),
		orDefault(take.ResolutionCriteria), evidence)

	raw, err := s.LLM.CompleteJSON(ctx, llm.JudgeModel(), judgePromptFor(now), user, 1024)
	if err != nil {
		return nil, err
	}

	var verdict Verdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, fmt.Errorf("unreadable verdict: %w", err)
	}
	return &verdict, nil
}

// commit applies an eligible verdict in one transaction: take status plus
// the owner's win/loss counter. The WHERE status = PENDING precondition is
// re-checked at write time, so a concurrent resolution makes this a no-op.
func (s *ResolutionService) commit(ctx context.Context, take *models.Take, status, reasoning string, now time.Time) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Take{}).
			Where("id = ? AND status = ?", take.ID, models.TakeStatusPending).
			Updates(map[string]interface{}{
				"status":               status,
				"resolved_at":          now,
				"resolution_reasoning": reasoning,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already resolved by someone else — nothing to count
			return nil
		}

		if take.OwnerUserID != "" {
			column := "losses"
			if status == models.TakeStatusVerified {
				column = "wins"
			}
			if err := tx.Model(&models.User{}).
				Where("external_user_id = ?", take.OwnerUserID).
				UpdateColumn(column, gorm.Expr(column+" + 1")).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// notifyOwner fires the resolution email. Best-effort: failures are logged
// inside the notifier and never touch the committed resolution.
func (s *ResolutionService) notifyOwner(ctx context.Context, take *models.Take, status, reasoning string) {
	if s.Notifier == nil || take.OwnerUserID == "" {
		return
	}
	var owner models.User
	if err := s.DB.Where("external_user_id = ?", take.OwnerUserID).First(&owner).Error; err != nil {
		return
	}
	if owner.Email == "" {
		return
	}
	s.Notifier.SendResolutionEmail(ctx, take, &owner, status, reasoning)
}

// HandleCronResolve is the externally-triggered sweep entry point
// (GET/POST /cron/resolve), guarded by the CRON_SECRET bearer token.
// Idempotent and safe to invoke on an interval or by hand.
func (s *ResolutionService) HandleCronResolve(c *fiber.Ctx) error {
	secret := os.Getenv("CRON_SECRET")
	if secret != "" && c.Get("Authorization") != "Bearer "+secret {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	result, err := s.RunSweep(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "resolution sweep failed",
			"cause": err.Error(),
		})
	}
	return c.JSON(result)
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
