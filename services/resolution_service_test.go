package services

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"take-receipts-system/llm"
	"take-receipts-system/models"
	"take-receipts-system/providers"
)

// scriptedPipeline answers the classification call with OTHER (forcing the
// web search fallback, which is disabled in tests) and the judge call with
// the given verdict.
func scriptedPipeline(verdict string) *fakeLLM {
	return &fakeLLM{respond: func(model, system, user string) (json.RawMessage, error) {
		if model == llm.DefaultJudgeModel {
			return json.RawMessage(verdict), nil
		}
		return json.RawMessage(`{"category": "OTHER", "details": "check the news"}`), nil
	}}
}

func newResolutionFixture(t *testing.T, llmClient llm.Client) *ResolutionService {
	db := newTestDB(t)
	return NewResolutionService(db, llmClient,
		providers.NewScoreboardClient(),
		providers.NewSearchClientWithBase("", ""), // disabled, "No web search available."
		nil)
}

func TestSweepResolvesVerifiedTake(t *testing.T) {
	svc := newResolutionFixture(t, scriptedPipeline(
		`{"resolution": "TRUE", "confidence": "HIGH", "reasoning": "Rockets won 112-98", "sources": "ESPN scoreboard"}`))
	seedUser(t, svc.DB, "ext-author", 0, 0)
	take := seedTake(t, svc.DB, nil)

	result, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("processed = %d, want 1", result.Processed)
	}
	if result.Results[0].Outcome != "RESOLVED" {
		t.Fatalf("outcome = %q, want RESOLVED (%s)", result.Results[0].Outcome, result.Results[0].Reasoning)
	}

	saved := reloadTake(t, svc.DB, take.ID)
	if saved.Status != models.TakeStatusVerified {
		t.Errorf("status = %q, want VERIFIED", saved.Status)
	}
	if saved.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}
	if !strings.Contains(saved.ResolutionReasoning, "Rockets won") {
		t.Errorf("reasoning = %q, missing judge reasoning", saved.ResolutionReasoning)
	}
	if !strings.Contains(saved.ResolutionReasoning, "Source: ESPN scoreboard") {
		t.Errorf("reasoning = %q, missing source line", saved.ResolutionReasoning)
	}

	owner := reloadUser(t, svc.DB, "ext-author")
	if owner.Wins != 1 || owner.Losses != 0 {
		t.Errorf("owner record = %d-%d, want 1-0", owner.Wins, owner.Losses)
	}
}

func TestSweepResolvesWrongTake(t *testing.T) {
	svc := newResolutionFixture(t, scriptedPipeline(
		`{"resolution": "FALSE", "confidence": "MEDIUM", "reasoning": "Mavericks won", "sources": "ESPN"}`))
	seedUser(t, svc.DB, "ext-author", 2, 3)
	take := seedTake(t, svc.DB, nil)

	if _, err := svc.RunSweep(context.Background()); err != nil {
		t.Fatalf("RunSweep: %v", err)
	}

	saved := reloadTake(t, svc.DB, take.ID)
	if saved.Status != models.TakeStatusWrong {
		t.Errorf("status = %q, want WRONG", saved.Status)
	}

	owner := reloadUser(t, svc.DB, "ext-author")
	if owner.Wins != 2 || owner.Losses != 4 {
		t.Errorf("owner record = %d-%d, want 2-4", owner.Wins, owner.Losses)
	}
}

func TestSweepConfidenceGate(t *testing.T) {
	cases := []struct {
		name    string
		verdict string
	}{
		{"low confidence true", `{"resolution": "TRUE", "confidence": "LOW", "reasoning": "thin sourcing"}`},
		{"low confidence false", `{"resolution": "FALSE", "confidence": "LOW", "reasoning": "thin sourcing"}`},
		{"undetermined high", `{"resolution": "UNDETERMINED", "confidence": "HIGH", "reasoning": "game not played yet"}`},
		{"undetermined low", `{"resolution": "UNDETERMINED", "confidence": "LOW", "reasoning": "no data"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newResolutionFixture(t, scriptedPipeline(tc.verdict))
			seedUser(t, svc.DB, "ext-author", 0, 0)
			take := seedTake(t, svc.DB, nil)

			result, err := svc.RunSweep(context.Background())
			if err != nil {
				t.Fatalf("RunSweep: %v", err)
			}
			if result.Results[0].Outcome != "SKIPPED" {
				t.Errorf("outcome = %q, want SKIPPED", result.Results[0].Outcome)
			}

			saved := reloadTake(t, svc.DB, take.ID)
			if saved.Status != models.TakeStatusPending {
				t.Errorf("status = %q, must stay PENDING", saved.Status)
			}
			owner := reloadUser(t, svc.DB, "ext-author")
			if owner.Wins != 0 || owner.Losses != 0 {
				t.Errorf("owner record touched on skip: %d-%d", owner.Wins, owner.Losses)
			}
		})
	}
}

func TestSweepJudgeFailureSkips(t *testing.T) {
	// Every model call errors; the take must survive untouched for the next sweep
	svc := newResolutionFixture(t, &fakeLLM{})
	take := seedTake(t, svc.DB, nil)

	result, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if result.Results[0].Outcome != "SKIPPED" {
		t.Errorf("outcome = %q, want SKIPPED", result.Results[0].Outcome)
	}
	if reloadTake(t, svc.DB, take.ID).Status != models.TakeStatusPending {
		t.Error("take left PENDING state on judge failure")
	}
}

func TestSweepIgnoresUndueAndResolvedTakes(t *testing.T) {
	svc := newResolutionFixture(t, scriptedPipeline(
		`{"resolution": "TRUE", "confidence": "HIGH", "reasoning": "ok"}`))

	future := time.Now().Add(24 * time.Hour)
	seedTake(t, svc.DB, func(tk *models.Take) { tk.ResolvesAt = &future })
	seedTake(t, svc.DB, func(tk *models.Take) { tk.ResolvesAt = nil })
	now := time.Now()
	seedTake(t, svc.DB, func(tk *models.Take) {
		tk.Status = models.TakeStatusWrong
		tk.ResolvedAt = &now
	})

	result, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("processed = %d, want 0", result.Processed)
	}
}

func TestCommitRechecksPendingStatus(t *testing.T) {
	svc := newResolutionFixture(t, nil)
	seedUser(t, svc.DB, "ext-author", 1, 0)
	take := seedTake(t, svc.DB, nil)

	// A concurrent sweep got there first
	svc.DB.Model(&models.Take{}).Where("id = ?", take.ID).
		Update("status", models.TakeStatusVerified)

	if err := svc.commit(context.Background(), take, models.TakeStatusWrong, "late verdict", time.Now()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	saved := reloadTake(t, svc.DB, take.ID)
	if saved.Status != models.TakeStatusVerified {
		t.Errorf("status = %q, first resolution must win", saved.Status)
	}
	owner := reloadUser(t, svc.DB, "ext-author")
	if owner.Wins != 1 || owner.Losses != 0 {
		t.Errorf("owner record = %d-%d, want untouched 1-0", owner.Wins, owner.Losses)
	}
}

func TestSweepBatchLimit(t *testing.T) {
	svc := newResolutionFixture(t, scriptedPipeline(
		`{"resolution": "UNDETERMINED", "confidence": "LOW", "reasoning": "no data"}`))
	svc.BatchSize = 3

	for i := 0; i < 5; i++ {
		seedTake(t, svc.DB, nil)
	}

	result, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if result.Processed != 3 {
		t.Errorf("processed = %d, want batch limit 3", result.Processed)
	}
}

func TestVerdictEligible(t *testing.T) {
	cases := []struct {
		resolution, confidence string
		want                   bool
	}{
		{"TRUE", "HIGH", true},
		{"TRUE", "MEDIUM", true},
		{"TRUE", "LOW", false},
		{"FALSE", "HIGH", true},
		{"FALSE", "MEDIUM", true},
		{"FALSE", "LOW", false},
		{"UNDETERMINED", "HIGH", false},
		{"UNDETERMINED", "MEDIUM", false},
		{"UNDETERMINED", "LOW", false},
	}
	for _, tc := range cases {
		v := Verdict{Resolution: tc.resolution, Confidence: tc.confidence}
		if got := v.Eligible(); got != tc.want {
			t.Errorf("Eligible(%s/%s) = %v, want %v", tc.resolution, tc.confidence, got, tc.want)
		}
	}
}

func TestCronResolveAuth(t *testing.T) {
	t.Setenv("CRON_SECRET", "sweep-secret")

	svc := newResolutionFixture(t, scriptedPipeline(
		`{"resolution": "UNDETERMINED", "confidence": "LOW", "reasoning": "no data"}`))

	app := fiber.New()
	app.Post("/cron/resolve", svc.HandleCronResolve)

	req := httptest.NewRequest("POST", "/cron/resolve", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("no bearer: status = %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/cron/resolve", nil)
	req.Header.Set("Authorization", "Bearer sweep-secret")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("valid bearer: status = %d, want 200", resp.StatusCode)
	}

	var body SweepResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode sweep result: %v", err)
	}
}
