package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"salesbridge/config"
	"salesbridge/database"
	"salesbridge/internal/handler"
	"salesbridge/internal/helper"
	customMiddleware "salesbridge/internal/middleware"
	"salesbridge/internal/model"
	"salesbridge/internal/service"
	"salesbridge/internal/wa"
	"salesbridge/internal/ws"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

func main() {

	// Load .env (abaikan error kalau file tidak ada, misal di production)
	_ = godotenv.Load()

	cfg := config.Load()

	//database whatsmeow (device store)
	if cfg.WADBURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	database.InitWhatsmeow(cfg.WADBURL)

	//database custom
	if cfg.AppDBURL == "" {
		log.Fatal("APP_DATABASE_URL is not set")
	}
	database.InitAppDB(cfg.AppDBURL)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	service.InitAuthConfig(cfg.JWTSecret)
	helper.SetDefaultCountryCode(cfg.DefaultPrefix)

	runCreateSchema := false
	if len(os.Args) > 1 && os.Args[1] == "--createschema" {
		runCreateSchema = true
	}
	if runCreateSchema { // buat/ensure schema dulu
		helper.InitCustomSchema()
	}

	// Inisialisasi WebSocket Hub
	hub := ws.NewHub()
	go hub.Run()

	// Session registry: satu-satunya pemilik handle whatsmeow.
	factory := wa.NewMeowFactory(database.Container, cfg.DeviceName)
	stores := service.Stores{
		Conns:    model.ConnDB{},
		Messages: model.MessageDB{},
		Contacts: model.ContactDB{},
	}
	registry := service.NewRegistry(factory, stores, hub, service.Options{
		PairingTTL:    cfg.PairingTTL,
		ConnectedTTL:  cfg.ConnectedTTL,
		ActionTimeout: cfg.ActionTimeout,
		BulkTimeout:   cfg.BulkTimeout,
		SyncBatchSize: cfg.SyncBatchSize,
	})

	// Re-adopt device yang tersisa dari proses sebelumnya.
	log.Println("Restoring existing sessions...")
	if err := registry.RestoreSessions(context.Background()); err != nil {
		log.Printf("⚠ Session restore incomplete: %v", err)
	}

	// Reaper untuk session yang heartbeat-nya mati.
	reaper := service.NewReaper(registry, cfg.ReaperInterval)
	go reaper.Run(context.Background())

	// Setup Echo
	e := echo.New()
	e.Use(middleware.Recover())

	//env allow ip
	if cfg.CORSOrigins == "" {
		log.Println("CORS_ALLOW_ORIGINS is not set")
	}
	allowOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i, o := range allowOrigins {
		allowOrigins[i] = strings.TrimSpace(o)
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.PUT,
			echo.PATCH,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestedWith,
			echo.HeaderAuthorization,
		},
		AllowCredentials: true,
	}))
	e.OPTIONS("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimitPerSecond),
				Burst:     cfg.RateLimitBurst,
				ExpiresIn: time.Duration(cfg.RateLimitWindowMin) * time.Minute,
			},
		),
	}))

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		message := "Internal Server Error"

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
		// Custom response format
		response := map[string]interface{}{
			"success": false,
			"error":   message,
		}
		// Custom message untuk error tertentu
		switch code {
		case http.StatusUnauthorized:
			response["message"] = "Authentication required. Please login first."
		case http.StatusMethodNotAllowed:
			response["message"] = "Method not allowed for this endpoint"
		case http.StatusNotFound:
			response["message"] = "Endpoint not found"
		}

		c.JSON(code, response)
	}

	// =====================================================
	// PUBLIC ROUTES (No authentication required)
	// =====================================================
	e.POST("/register", handler.Register)
	e.POST("/login", handler.Login)

	// WebSocket and health check
	e.GET("/ws", handler.ServeWS(hub)) //listen socket gorilla
	e.GET("/", func(c echo.Context) error { // Health check
		return c.JSON(200, map[string]interface{}{
			"success": true,
			"message": "SalesBridge session service is running",
			"version": "1.0.0",
		})
	})

	// Daftar group route yang butuh JWT
	api := e.Group("/api", customMiddleware.JWTAuthMiddleware())

	// =====================================================
	// SESSION ROUTES (tenant dari JWT claims)
	// =====================================================
	api.POST("/session/init", handler.InitPairing(registry))
	api.GET("/session/status", handler.GetSessionStatus(registry))
	api.POST("/session/heartbeat", handler.Heartbeat(registry))
	api.POST("/session/disconnect", handler.Disconnect(registry))
	api.POST("/session/sync", handler.TriggerSync(registry))

	// Contact routes (live relay)
	api.GET("/contacts", handler.GetContacts(registry))
	api.GET("/contacts/export", handler.ExportContacts(registry))

	// Message routes
	api.GET("/messages/check", handler.CheckRecipient(registry))
	api.GET("/messages/:counterparty", handler.GetMessageHistory())
	api.POST("/messages/send", handler.SendMessage(registry))
	api.PATCH("/messages/:messageId", handler.EditMessage(registry))
	api.DELETE("/messages/:messageId", handler.DeleteMessage(registry))
	api.POST("/messages/:messageId/react", handler.ReactToMessage(registry))

	// =====================================================
	// ADMIN ROUTES
	// =====================================================
	api.GET("/admin/sessions", handler.ListConnectedSessions(registry), customMiddleware.RequireAdmin)

	port := cfg.Port
	fmt.Println("✓ Server starting on port", port)
	e.Logger.Fatal(e.Start(":" + port))
}
