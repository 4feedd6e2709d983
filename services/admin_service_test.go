package services

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"take-receipts-system/models"
)

func newAdminApp(t *testing.T) (*fiber.App, *AdminService) {
	db := newTestDB(t)
	svc := NewAdminService(db)
	app := fiber.New()
	app.Get("/admin/stats", svc.GetStats)
	app.Delete("/admin/takes/:id", svc.DeleteTake)
	return app, svc
}

func TestAdminStats(t *testing.T) {
	app, svc := newAdminApp(t)

	now := time.Now()
	seedTake(t, svc.DB, nil)
	seedTake(t, svc.DB, nil)
	seedTake(t, svc.DB, func(tk *models.Take) {
		tk.Status = models.TakeStatusVerified
		tk.ResolvedAt = &now
	})
	user := seedUser(t, svc.DB, "ext-1", 0, 0)
	svc.DB.Create(&models.Position{TakeID: "whatever", UserID: user.ID, Stance: models.StanceAgree})

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/stats", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Takes     map[string]int64 `json:"takes"`
		Users     int64            `json:"users"`
		Positions int64            `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Takes["PENDING"] != 2 || body.Takes["VERIFIED"] != 1 || body.Takes["total"] != 3 {
		t.Errorf("takes = %v", body.Takes)
	}
	if body.Users != 1 || body.Positions != 1 {
		t.Errorf("users = %d, positions = %d", body.Users, body.Positions)
	}
}

func TestAdminDeleteTakeIsSoft(t *testing.T) {
	app, svc := newAdminApp(t)
	take := seedTake(t, svc.DB, nil)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/admin/takes/"+take.ID, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// Gone from normal queries
	var visible int64
	svc.DB.Model(&models.Take{}).Count(&visible)
	if visible != 0 {
		t.Errorf("visible takes = %d, want 0", visible)
	}
	// Row survives for audit
	var total int64
	svc.DB.Unscoped().Model(&models.Take{}).Count(&total)
	if total != 1 {
		t.Errorf("raw rows = %d, soft delete must keep the row", total)
	}

	resp, err = app.Test(httptest.NewRequest("DELETE", "/admin/takes/no-such-id", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("missing take: status = %d, want 404", resp.StatusCode)
	}
}
