// handlers/system_routes.go
package handlers

import (
	"take-receipts-system/middleware"
	"take-receipts-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSystemRoutes(app *fiber.App, resolutionService *services.ResolutionService, adminService *services.AdminService, userService *services.UserService) {
	// Cron trigger — guarded by CRON_SECRET inside the handler, not by user auth
	app.Post("/cron/resolve", resolutionService.HandleCronResolve)
	app.Get("/cron/resolve", resolutionService.HandleCronResolve)

	secured := app.Group("/", middleware.UserContextMiddleware(), middleware.RequireUser())
	secured.Get("/users/me", userService.GetMyRecord)

	// 🔐 Admin routes — role claim from the gateway, no hardcoded allowlist
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireUser(), middleware.RequireRole("admin"))
	admin.Get("/stats", adminService.GetStats)
	admin.Delete("/takes/:id", adminService.DeleteTake)
}
