package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"take-receipts-system/llm"
	"take-receipts-system/models"
)

const conflictPrompt = `You check if a new stance would logically conflict with a user's existing open stances.

A conflict exists only if the new stance is the logical negation of an existing one on the same subject:
1. Taking opposite stances on the same prediction (e.g. agreeing with one take and disagreeing with a substantially identical take)
2. Predicting an outcome while already committed to its opposite (e.g. predicting a team makes the playoffs while predicting it misses them)

NOT conflicts: different subjects, different time windows, or predictions that are merely similar but independent.

Respond with JSON: { "hasConflict": boolean, "reason": "explanation or null", "conflictingStance": "the existing stance it conflicts with, or null" }`

// ConflictService decides whether a new stance logically contradicts a
// user's open stances. It is a UX safeguard, not a correctness guarantee:
// every infrastructure failure fails open (no conflict) so a model hiccup
// can never block a legitimate action.
type ConflictService struct {
	DB  *gorm.DB
	LLM llm.Client
}

func NewConflictService(db *gorm.DB, llmClient llm.Client) *ConflictService {
	return &ConflictService{DB: db, LLM: llmClient}
}

type conflictVerdict struct {
	HasConflict       bool   `json:"hasConflict"`
	Reason            string `json:"reason"`
	ConflictingStance string `json:"conflictingStance"`
}

// CheckNewTake compares a prospective take against the author's other open
// (PENDING) takes. Returns a *ConflictError only on an explicit conflict.
func (s *ConflictService) CheckNewTake(ctx context.Context, externalUserID, newText string) error {
	var openTakes []models.Take
	if err := s.DB.Where("owner_user_id = ? AND status = ?", externalUserID, models.TakeStatusPending).
		Find(&openTakes).Error; err != nil {
		log.Printf("[CONFLICT] ⚠️ Failed to load open takes for conflict check: %v", err)
		return nil // fail open
	}

	if len(openTakes) == 0 {
		return nil
	}

	existing := make([]string, 0, len(openTakes))
	for _, t := range openTakes {
		existing = append(existing, fmt.Sprintf(`- PREDICTED: "%s"`, t.Text))
	}

	action := fmt.Sprintf(`PREDICT: "%s"`, newText)
	return s.evaluate(ctx, existing, action)
}

// CheckNewPosition compares a prospective agree/disagree against the user's
// existing positions on open takes. userID is the internal User.ID.
func (s *ConflictService) CheckNewPosition(ctx context.Context, userID, stance, takeText string) error {
	var positions []models.Position
	if err := s.DB.
		Joins("JOIN takes ON takes.id = positions.take_id").
		Where("positions.user_id = ? AND takes.status = ? AND takes.deleted_at IS NULL", userID, models.TakeStatusPending).
		Find(&positions).Error; err != nil {
		log.Printf("[CONFLICT] ⚠️ Failed to load open positions for conflict check: %v", err)
		return nil // fail open
	}

	if len(positions) == 0 {
		return nil
	}

	takeIDs := make([]string, 0, len(positions))
	for _, p := range positions {
		takeIDs = append(takeIDs, p.TakeID)
	}
	var takes []models.Take
	if err := s.DB.Where("id IN ?", takeIDs).Find(&takes).Error; err != nil {
		log.Printf("[CONFLICT] ⚠️ Failed to load position takes for conflict check: %v", err)
		return nil
	}
	textByID := make(map[string]string, len(takes))
	for _, t := range takes {
		textByID[t.ID] = t.Text
	}

	existing := make([]string, 0, len(positions))
	for _, p := range positions {
		verb := "AGREED"
		if p.Stance == models.StanceDisagree {
			verb = "DISAGREED"
		}
		existing = append(existing, fmt.Sprintf(`- %s with: "%s"`, verb, textByID[p.TakeID]))
	}

	action := fmt.Sprintf(`%s with "%s"`, stance, takeText)
	return s.evaluate(ctx, existing, action)
}

// evaluate runs the single unified model check. Both trigger points share
// this contract — same prompt, same semantics.
func (s *ConflictService) evaluate(ctx context.Context, existing []string, action string) error {
	user := fmt.Sprintf("User's existing open stances:\n%s\n\nNew action: %s\n\nDoes this conflict with any existing stance?",
		strings.Join(existing, "\n"), action)

	raw, err := s.LLM.CompleteJSON(ctx, llm.ClassifyModel(), conflictPrompt, user, 256)
	if err != nil {
		log.Printf("[CONFLICT] ⚠️ Conflict check failed, allowing action: %v", err)
		return nil // fail open
	}

	var verdict conflictVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		log.Printf("[CONFLICT] ⚠️ Unreadable conflict verdict, allowing action: %v", err)
		return nil // fail open
	}

	if !verdict.HasConflict {
		return nil
	}

	log.Printf("[CONFLICT] 🚫 Blocked conflicting stance: %s", verdict.Reason)
	return &ConflictError{Reason: verdict.Reason}
}
