// handlers/assistant_routes.go
package handlers

import (
	"take-receipts-system/middleware"
	"take-receipts-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAssistantRoutes(app *fiber.App, verifyService *services.VerifyService) {
	// Drafting helpers work for anonymous users too
	public := app.Group("/", middleware.UserContextMiddleware())

	public.Post("/verify", verifyService.HandleVerify)
	public.Post("/suggest", verifyService.HandleSuggest)
}
