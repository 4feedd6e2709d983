package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"take-receipts-system/models"
)

func newPositionFixture(t *testing.T) (*PositionService, *ConflictService) {
	db := newTestDB(t)
	conflicts := NewConflictService(db, noConflictLLM())
	return NewPositionService(db, conflicts), conflicts
}

func TestRecordPosition(t *testing.T) {
	svc, _ := newPositionFixture(t)
	take := seedTake(t, svc.DB, nil)

	pos, err := svc.Record(context.Background(), take.ID, UserIdentity{ExternalID: "ext-1", Username: "sam"}, models.StanceAgree)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if pos.Stance != models.StanceAgree {
		t.Errorf("stance = %q, want AGREE", pos.Stance)
	}
	if pos.TakeID != take.ID {
		t.Errorf("take id = %q, want %q", pos.TakeID, take.ID)
	}
}

func TestRecordPositionIsIrrevocable(t *testing.T) {
	svc, _ := newPositionFixture(t)
	take := seedTake(t, svc.DB, nil)
	identity := UserIdentity{ExternalID: "ext-1", Username: "sam"}

	first, err := svc.Record(context.Background(), take.ID, identity, models.StanceAgree)
	if err != nil {
		t.Fatalf("first Record: %v", err)
	}

	// Same stance again
	if _, err := svc.Record(context.Background(), take.ID, identity, models.StanceAgree); !errors.Is(err, ErrPositionLocked) {
		t.Errorf("repeat stance: err = %v, want ErrPositionLocked", err)
	}
	// Opposite stance
	if _, err := svc.Record(context.Background(), take.ID, identity, models.StanceDisagree); !errors.Is(err, ErrPositionLocked) {
		t.Errorf("flipped stance: err = %v, want ErrPositionLocked", err)
	}

	var saved models.Position
	if err := svc.DB.First(&saved, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("reload position: %v", err)
	}
	if saved.Stance != models.StanceAgree {
		t.Errorf("stored stance = %q, original AGREE must survive", saved.Stance)
	}

	var count int64
	svc.DB.Model(&models.Position{}).Where("take_id = ?", take.ID).Count(&count)
	if count != 1 {
		t.Errorf("position count = %d, want 1", count)
	}
}

func TestRecordPositionRejectsResolvedTake(t *testing.T) {
	svc, _ := newPositionFixture(t)
	now := time.Now()
	take := seedTake(t, svc.DB, func(tk *models.Take) {
		tk.Status = models.TakeStatusVerified
		tk.ResolvedAt = &now
	})

	_, err := svc.Record(context.Background(), take.ID, UserIdentity{ExternalID: "ext-1"}, models.StanceDisagree)
	if !errors.Is(err, ErrTakeResolved) {
		t.Errorf("err = %v, want ErrTakeResolved", err)
	}
}

func TestRecordPositionMissingTake(t *testing.T) {
	svc, _ := newPositionFixture(t)

	_, err := svc.Record(context.Background(), "no-such-id", UserIdentity{ExternalID: "ext-1"}, models.StanceAgree)
	if !errors.Is(err, ErrTakeNotFound) {
		t.Errorf("err = %v, want ErrTakeNotFound", err)
	}
}

func TestRecordPositionConflictBlocked(t *testing.T) {
	db := newTestDB(t)
	llm := &fakeLLM{respond: func(model, system, user string) (json.RawMessage, error) {
		return json.RawMessage(`{"hasConflict": true, "reason": "you already agreed with the opposite claim"}`), nil
	}}
	svc := NewPositionService(db, NewConflictService(db, llm))

	first := seedTake(t, db, func(tk *models.Take) { tk.Text = "The Rockets make the playoffs" })
	second := seedTake(t, db, func(tk *models.Take) { tk.Text = "The Rockets miss the playoffs" })
	identity := UserIdentity{ExternalID: "ext-1", Username: "sam"}

	// First position: no prior stances, so the model never gets consulted
	if _, err := svc.Record(context.Background(), first.ID, identity, models.StanceAgree); err != nil {
		t.Fatalf("first Record: %v", err)
	}

	_, err := svc.Record(context.Background(), second.ID, identity, models.StanceAgree)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.Reason == "" {
		t.Error("conflict reason should be populated")
	}

	var count int64
	db.Model(&models.Position{}).Where("take_id = ?", second.ID).Count(&count)
	if count != 0 {
		t.Errorf("blocked position was persisted, count = %d", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pgconn.PgError{Code: "23505", ConstraintName: "idx_positions_take_user"}, true},
		{"postgres wrapped", fmt.Errorf("create: %w", &pgconn.PgError{Code: "23505"}), true},
		{"postgres other code", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite unique", errors.New("UNIQUE constraint failed: positions.take_id, positions.user_id"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRecordPositionConflictCheckFailsOpen(t *testing.T) {
	db := newTestDB(t)
	// Model always errors; positions must still go through
	svc := NewPositionService(db, NewConflictService(db, &fakeLLM{}))

	first := seedTake(t, db, nil)
	second := seedTake(t, db, func(tk *models.Take) { tk.Text = "It will rain in Houston tomorrow" })
	identity := UserIdentity{ExternalID: "ext-1", Username: "sam"}

	if _, err := svc.Record(context.Background(), first.ID, identity, models.StanceAgree); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if _, err := svc.Record(context.Background(), second.ID, identity, models.StanceDisagree); err != nil {
		t.Fatalf("second Record with failing conflict model: %v", err)
	}
}
