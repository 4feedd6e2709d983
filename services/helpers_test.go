package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"take-receipts-system/models"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Take{}, &models.User{}, &models.Position{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// fakeLLM scripts model responses per call. A nil respond func makes every
// call fail, which is how the failure paths get exercised.
type fakeLLM struct {
	respond func(model, system, user string) (json.RawMessage, error)
	calls   atomic.Int64
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, model, system, user string, maxTokens int) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.respond == nil {
		return nil, errors.New("model unavailable")
	}
	return f.respond(model, system, user)
}

// noConflictLLM always reports no conflict.
func noConflictLLM() *fakeLLM {
	return &fakeLLM{respond: func(model, system, user string) (json.RawMessage, error) {
		return json.RawMessage(`{"hasConflict": false}`), nil
	}}
}

func seedTake(t *testing.T, db *gorm.DB, mutate func(*models.Take)) *models.Take {
	t.Helper()
	now := time.Now()
	resolvesAt := now.Add(-time.Hour)
	take := &models.Take{
		Text:        "The Rockets will beat the Mavericks tonight",
		Author:      "jess",
		OwnerUserID: "ext-author",
		LockedAt:    now,
		ResolvesAt:  &resolvesAt,
		Status:      models.TakeStatusPending,
	}
	if mutate != nil {
		mutate(take)
	}
	if err := db.Create(take).Error; err != nil {
		t.Fatalf("seed take: %v", err)
	}
	return take
}

func seedUser(t *testing.T, db *gorm.DB, externalID string, wins, losses int64) *models.User {
	t.Helper()
	user := &models.User{
		ExternalUserID: externalID,
		Username:       "seeded",
		Email:          externalID + "@example.com",
		Wins:           wins,
		Losses:         losses,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func reloadTake(t *testing.T, db *gorm.DB, id string) *models.Take {
	t.Helper()
	var take models.Take
	if err := db.First(&take, "id = ?", id).Error; err != nil {
		t.Fatalf("reload take %s: %v", id, err)
	}
	return &take
}

func reloadUser(t *testing.T, db *gorm.DB, externalID string) *models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, "external_user_id = ?", externalID).Error; err != nil {
		t.Fatalf("reload user %s: %v", externalID, err)
	}
	return &user
}
