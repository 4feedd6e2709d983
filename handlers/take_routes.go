// handlers/take_routes.go
package handlers

import (
	"take-receipts-system/middleware"
	"take-receipts-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTakeRoutes(app *fiber.App, takeService *services.TakeService, positionService *services.PositionService, appealService *services.AppealService) {
	// 🔓 Public feeds — no user context required, user context still read
	// when present so feeds can mark the caller's own positions
	public := app.Group("/", middleware.UserContextMiddleware())

	public.Get("/takes", takeService.GetAllTakes)
	public.Get("/takes/recent", takeService.GetRecentTakes)
	public.Get("/takes/trending", takeService.GetTrendingTakes)
	public.Get("/takes/resolved", takeService.GetResolvedTakes)
	public.Get("/takes/:id", takeService.GetTakeByID)
	public.Get("/takes/:id/agreements", positionService.GetAgreements)

	// Publishing stays open to anonymous authors
	public.Post("/takes", takeService.CreateTake)

	// 🔐 Secured routes — require a signed-in user
	secured := app.Group("/", middleware.UserContextMiddleware(), middleware.RequireUser())

	secured.Post("/takes/:id/agree", positionService.Agree)
	secured.Post("/takes/:id/disagree", positionService.Disagree)
	secured.Post("/takes/:id/appeal", appealService.HandleAppeal)

	secured.Get("/my/takes", takeService.GetMyTakes)
	secured.Get("/my/positions", positionService.GetMyPositions)
}
