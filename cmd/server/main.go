package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/handlers"
	"github.com/520Girl/socket-chat/internal/middleware"
	"github.com/520Girl/socket-chat/internal/repository"
	"github.com/520Girl/socket-chat/internal/service"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET is required")
	}

	app := fiber.New(fiber.Config{
		AppName: "Socket Chat Backend",
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Initialize database connection
	db, err := repository.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize Redis. The tiered cache, unread counters and presence all
	// live here, so a missing Redis is fatal rather than degraded.
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsedDB, err := strconv.Atoi(dbStr); err == nil {
			redisDB = parsedDB
		}
	}
	redisCache := cache.NewRedisCache(redisAddr, redisPassword, redisDB)
	if err := redisCache.Ping(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	log.Println("Redis connected successfully")

	tieredStore := cache.NewTieredStore(redisCache)

	// Background tier aging
	downgradeInterval := cache.DefaultDowngradeInterval
	if s := os.Getenv("DOWNGRADE_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			downgradeInterval = d
		}
	}
	scheduler := cache.NewDowngradeScheduler(redisCache, downgradeInterval)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	groupRepo := repository.NewGroupRepository(db)

	// Initialize services
	deleteService := service.NewDeleteService(redisCache, messageRepo, userRepo, groupRepo)
	historyService := service.NewHistoryService(tieredStore, redisCache, messageRepo, groupRepo, deleteService)
	unreadService := service.NewUnreadService(redisCache, messageRepo, groupRepo)
	presenceService := service.NewPresenceService(redisCache, userRepo)
	messageService := service.NewMessageService(messageRepo, userRepo, groupRepo, historyService, unreadService)

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(messageService, historyService, unreadService, presenceService)
	messageHandler := handlers.NewMessageHandler(messageService, historyService, unreadService, deleteService)
	presenceHandler := handlers.NewPresenceHandler(presenceService)

	api := app.Group("/api", middleware.OriginAllowed())

	// Protected routes
	protected := api.Group("/", middleware.AuthRequired())
	protected.Post("/messages", messageHandler.SendMessage)
	protected.Get("/messages", messageHandler.GetHistory)
	protected.Delete("/messages/:id", messageHandler.DeleteMessage)
	protected.Post("/messages/:id/restore", messageHandler.RestoreMessage)
	protected.Get("/unread", messageHandler.GetUnread)
	protected.Post("/conversations/:counterpart_id/read", messageHandler.MarkConversationRead)
	protected.Get("/users/online", presenceHandler.GetOnlineUsers)
	protected.Get("/users/:id/status", presenceHandler.GetUserStatus)

	// WebSocket route (websocket upgrade needs special handling)
	app.Use(
		"/ws",
		middleware.OriginAllowed(),
		middleware.AuthRequired(),
		func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		},
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	// Metrics and health
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Socket Chat is running",
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s...", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
