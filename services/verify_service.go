package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"take-receipts-system/llm"
	"take-receipts-system/utils"
)

const verifyPrompt = `You analyze predictions ("takes") for verifiability before they are published.

A verifiable take makes a concrete, falsifiable claim about a future event: a clear subject, a specific predicted outcome, and a timeframe by which it can be checked.

Respond with JSON:
{
  "isVerifiable": true | false,
  "subject": "What the prediction is about",
  "prediction": "The specific claimed outcome",
  "timeframe": "When it can be checked",
  "resolutionCriteria": "How to objectively decide true or false",
  "suggestedResolutionDate": "YYYY-MM-DD",
  "refinedTake": "A tightened version of the take, or the original if already precise",
  "explanation": "Why it is or is not verifiable"
}

If the take is vague ("X is overrated"), a matter of taste, or has no checkable outcome, set isVerifiable to false and explain what would make it checkable.`

const suggestPrompt = `You help people sharpen vague predictions into checkable ones.

Given a rough idea for a prediction, propose one concrete, falsifiable take with a clear outcome and timeframe.

Respond with JSON:
{
  "suggestedTake": "The concrete prediction, under 280 characters",
  "explanation": "What was changed and why"
}`

// VerifyService exposes the pre-publish helpers: structured verifiability
// analysis and take suggestions. Unlike the resolution pipeline these are
// user-initiated, so model failures surface as errors instead of soft skips.
type VerifyService struct {
	LLM llm.Client
}

func NewVerifyService(llmClient llm.Client) *VerifyService {
	return &VerifyService{LLM: llmClient}
}

// VerifyAnalysis is the structured verdict on a draft take.
type VerifyAnalysis struct {
	IsVerifiable            bool   `json:"isVerifiable"`
	Subject                 string `json:"subject"`
	Prediction              string `json:"prediction"`
	Timeframe               string `json:"timeframe"`
	ResolutionCriteria      string `json:"resolutionCriteria"`
	SuggestedResolutionDate string `json:"suggestedResolutionDate"`
	RefinedTake             string `json:"refinedTake"`
	Explanation             string `json:"explanation"`
}

// Suggestion is the sharpened-take proposal.
type Suggestion struct {
	SuggestedTake string `json:"suggestedTake"`
	Explanation   string `json:"explanation"`
}

// HandleVerify is POST /verify.
func (s *VerifyService) HandleVerify(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	text := utils.NormalizeTakeText(req.Text)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "take text is required"})
	}

	user := fmt.Sprintf("Analyze this take:\n\n%q\n\nToday's date: %s", text, time.Now().Format("2006-01-02"))
	raw, err := s.LLM.CompleteJSON(c.Context(), llm.ClassifyModel(), verifyPrompt, user, 1024)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "verification analysis failed",
			"cause": err.Error(),
		})
	}

	var analysis VerifyAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "verification analysis failed",
			"cause": "unreadable model response",
		})
	}
	return c.JSON(analysis)
}

// HandleSuggest is POST /suggest.
func (s *VerifyService) HandleSuggest(c *fiber.Ctx) error {
	var req struct {
		Idea string `json:"idea"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	idea := utils.NormalizeTakeText(req.Idea)
	if idea == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "an idea is required"})
	}

	user := fmt.Sprintf("Sharpen this prediction idea:\n\n%q\n\nToday's date: %s", idea, time.Now().Format("2006-01-02"))
	raw, err := s.LLM.CompleteJSON(c.Context(), llm.ClassifyModel(), suggestPrompt, user, 512)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "suggestion failed",
			"cause": err.Error(),
		})
	}

	var suggestion Suggestion
	if err := json.Unmarshal(raw, &suggestion); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "suggestion failed",
			"cause": "unreadable model response",
		})
	}
	return c.JSON(suggestion)
}
