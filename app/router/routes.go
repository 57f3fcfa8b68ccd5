// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/app/handlers"
	"github.com/virtuallibrarycard/vlc/app/middleware"
	_ "github.com/virtuallibrarycard/vlc/docs"
	"github.com/virtuallibrarycard/vlc/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app              *fiber.App
	patronHandler    handlers.PatronHandlerInterface
	libraryHandler   handlers.LibraryHandlerInterface
	cardHandler      handlers.CardHandlerInterface
	patronAPIHandler handlers.PatronAPIHandlerInterface
	authMiddleware   *middleware.AuthMiddleware
	allowOrigins     []string
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	patronHandler handlers.PatronHandlerInterface,
	libraryHandler handlers.LibraryHandlerInterface,
	cardHandler handlers.CardHandlerInterface,
	patronAPIHandler handlers.PatronAPIHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
	allowOrigins []string,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Virtual Library Card API",
		ServerHeader: "virtual-library-card",
		ErrorHandler: errorHandler,
		BodyLimit:    8 * 1024 * 1024, // bulk upload files
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:              app,
		patronHandler:    patronHandler,
		libraryHandler:   libraryHandler,
		cardHandler:      cardHandler,
		patronAPIHandler: patronAPIHandler,
		authMiddleware:   authMiddleware,
		allowOrigins:     allowOrigins,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	// Prometheus scrape endpoint, outside the rate-limited API group
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// PATRONAPI compatibility surface; path layout is fixed by ILS clients
	patronAPI := r.app.Group("/PATRONAPI")
	patronAPI.Post("/pintest", r.patronAPIHandler.PinTestPOST)
	patronAPI.Get("/:number/dump", r.patronAPIHandler.Dump)
	patronAPI.Get("/:number/:pin/pintest", r.patronAPIHandler.PinTest)

	api := r.app.Group("/api/v1")

	api.Get("/health", r.healthCheck)

	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "local" {
		api.Get("/swagger.json", r.serveSwaggerJSON)
	}

	api.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	// Public patron endpoints with stricter rate limiting on signup
	api.Get("/captcha", r.patronHandler.NewCaptcha)
	api.Get("/verify", r.patronHandler.VerifyEmail)
	api.Get("/libraries/:identifier", r.libraryHandler.GetLibrary)

	signup := api.Group("/signup")
	signup.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
	}))
	signup.Post("/", r.patronHandler.Signup)

	// Admin endpoints
	admin := api.Group("/admin")
	admin.Use(r.authMiddleware.Authenticate())
	admin.Use(r.authMiddleware.RequireStaff())

	admin.Get("/libraries", r.libraryHandler.ListLibraries)
	admin.Post("/libraries", r.libraryHandler.CreateLibrary)
	admin.Patch("/libraries/:identifier", r.libraryHandler.UpdateLibrary)
	admin.Post("/libraries/:identifier/bulk-upload", r.libraryHandler.BulkUpload)
	admin.Get("/bulk-uploads/:uuid", r.libraryHandler.GetBulkUploadJob)

	admin.Post("/cards", r.cardHandler.CreateCard)
	admin.Post("/cards/cancel", r.cardHandler.CancelCard)

	r.app.Use(r.notFoundHandler)
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' data:; frame-ancestors 'none';",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.allowOrigins,
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Cache-Control",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           int(utils.CORSMaxAge),
	}))

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health" || c.Path() == "/metrics"
		},
	}))

	r.app.Use(middleware.Metrics())

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: map[string]any{
			"status":    "ok",
			"timestamp": utils.UTCNow().Format(time.RFC3339),
		},
	})
}

func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	return c.SendFile("./docs/swagger.json")
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "Endpoint not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
		},
	})
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "req-" + hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(bytes)
}
