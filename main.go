package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"take-receipts-system/handlers"
	"take-receipts-system/llm"
	"take-receipts-system/middleware"
	"take-receipts-system/models"
	"take-receipts-system/providers"
	"take-receipts-system/services"
	"take-receipts-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB, text-only API
	})

	// 🔐 GLOBAL: only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Name, X-User-Email, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Take{},
		&models.User{},
		&models.Position{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	llmClient, err := llm.NewClient()
	if err != nil {
		log.Fatal("failed to initialize LLM client:", err)
	}

	scoreboard := providers.NewScoreboardClient()
	search := providers.NewSearchClient()
	notifier := services.NewNotifierService()

	conflictService := services.NewConflictService(db, llmClient)
	takeService := services.NewTakeService(db, conflictService)
	positionService := services.NewPositionService(db, conflictService)
	resolutionService := services.NewResolutionService(db, llmClient, scoreboard, search, notifier)
	appealService := services.NewAppealService(db, llmClient, search)
	verifyService := services.NewVerifyService(llmClient)
	adminService := services.NewAdminService(db)
	userService := services.NewUserService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolutionService.StartSweepScheduler(ctx)

	handlers.SetupTakeRoutes(app, takeService, positionService, appealService)
	handlers.SetupAssistantRoutes(app, verifyService)
	handlers.SetupSystemRoutes(app, resolutionService, adminService, userService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
