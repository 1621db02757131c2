package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
	"github.com/BYTEDz/PCLink-sub000/internal/config"
	"github.com/BYTEDz/PCLink-sub000/internal/handlers"
	"github.com/BYTEDz/PCLink-sub000/internal/hub"
	"github.com/BYTEDz/PCLink-sub000/internal/middleware"
	"github.com/BYTEDz/PCLink-sub000/internal/pairing"
	"github.com/BYTEDz/PCLink-sub000/internal/pathval"
	"github.com/BYTEDz/PCLink-sub000/internal/security"
	"github.com/BYTEDz/PCLink-sub000/internal/services"
	"github.com/BYTEDz/PCLink-sub000/internal/store"
	"github.com/BYTEDz/PCLink-sub000/internal/transfer"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Open the credential store
	st, newMasterKey, err := store.Open(filepath.Join(cfg.DataDir, "devices.json"))
	if err != nil {
		log.Fatalf("Failed to open credential store: %v", err)
	}
	if newMasterKey != "" {
		log.Printf("Generated master API key: %s", newMasterKey)
		log.Println("Store it now - it is hashed at rest and will not be shown again")
	}

	// Server TLS identity
	certPath, keyPath, err := security.EnsureCertificate(filepath.Join(cfg.DataDir, "certs"), cfg.ServerName)
	if err != nil {
		log.Fatalf("Failed to prepare server certificate: %v", err)
	}
	fingerprint, err := security.Fingerprint(certPath)
	if err != nil {
		log.Fatalf("Failed to fingerprint server certificate: %v", err)
	}

	// Transfer engine with allowed-roots validation
	validator, err := pathval.New(cfg.AllowedRoots)
	if err != nil {
		log.Fatalf("Failed to configure allowed roots: %v", err)
	}
	engine, err := transfer.NewEngine(validator, filepath.Join(cfg.DataDir, "sessions"), cfg.SessionRetention)
	if err != nil {
		log.Fatalf("Failed to initialize transfer engine: %v", err)
	}
	if restored, err := engine.RestoreSessions(); err != nil {
		log.Printf("Warning: session restore incomplete: %v", err)
	} else if restored > 0 {
		log.Printf("Restored %d interrupted transfer sessions", restored)
	}

	// Connection fan-out and pairing coordinator
	fanout := hub.New()
	coordinator := pairing.NewCoordinator(st, fanout, fingerprint, cfg.PairingTimeout)

	// Background services
	sweepService := services.NewTransferSweepService(engine, cfg.SweepInterval)
	sweepService.Start()

	telemetryService := services.NewTelemetryService(fanout, cfg.TelemetryInterval)
	telemetryService.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "PCLink API v" + handlers.Version,
		ServerHeader: "PCLink",
		BodyLimit:    64 * 1024 * 1024, // 64MB, bounds a single chunk
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var ae *apperr.Error
			var fe *fiber.Error
			if errors.As(err, &ae) {
				code = ae.Status()
			} else if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())
	app.Use(middleware.RateLimiter(cfg.RateLimit, cfg.RateLimitWindow))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "pclink-api",
		})
	})

	// Initialize handlers
	pairingHandler := handlers.NewPairingHandler(coordinator)
	uploadHandler := handlers.NewUploadHandler(engine)
	downloadHandler := handlers.NewDownloadHandler(engine)
	deviceHandler := handlers.NewDeviceHandler(st, fanout)
	serverHandler := handlers.NewServerHandler(cfg.ServerName, fingerprint, engine)
	wsHandler := handlers.NewWSHandler(fanout)

	// Public routes
	app.Get("/server/info", serverHandler.Info)
	app.Post("/pairing/request", pairingHandler.Request)

	// Protected routes
	protected := app.Group("", middleware.APIKeyRequired(st))

	// Pairing decisions belong to the operator, never a paired device.
	protected.Post("/pairing/approve", middleware.MasterOnly(), pairingHandler.Approve)
	protected.Post("/pairing/deny", middleware.MasterOnly(), pairingHandler.Deny)

	protected.Post("/upload/initiate", uploadHandler.Initiate)
	protected.Post("/upload/chunk/:id", uploadHandler.Chunk)
	protected.Post("/upload/complete/:id", uploadHandler.Complete)
	protected.Delete("/upload/cancel/:id", uploadHandler.Cancel)
	protected.Get("/upload/status/:id", uploadHandler.Status)

	protected.Post("/download/initiate", downloadHandler.Initiate)
	protected.Get("/download/chunk/:id", downloadHandler.Chunk)
	protected.Delete("/download/cancel/:id", downloadHandler.Cancel)
	protected.Get("/download/status/:id", downloadHandler.Status)

	// Administrative routes (master key only)
	protected.Get("/devices", middleware.MasterOnly(), deviceHandler.List)
	protected.Delete("/devices/:id", middleware.MasterOnly(), deviceHandler.Revoke)
	protected.Get("/transfers", middleware.MasterOnly(), serverHandler.Transfers)

	// Real-time channel
	protected.Get("/ws", handlers.UpgradeRequired, wsHandler.Serve())

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		telemetryService.Stop()
		sweepService.Stop()
		app.Shutdown()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	if cfg.TLSEnabled {
		log.Printf("Starting PCLink API server on %s (TLS, fingerprint %s)", addr, fingerprint)
		if err := app.ListenTLS(addr, certPath, keyPath); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
		return
	}
	log.Printf("Starting PCLink API server on %s (TLS disabled)", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
