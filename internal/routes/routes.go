// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"log/slog"
	"time"

	"campusmarket/internal/handlers"
	"campusmarket/internal/middleware"
	"campusmarket/internal/models"
	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/auth"
	"campusmarket/internal/services/dispute"
	"campusmarket/internal/services/escrow"
	"campusmarket/internal/services/payment"
	"campusmarket/internal/services/transaction"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps is everything the router needs. Gatherer and Redis are optional.
type Deps struct {
	DB           *gorm.DB
	Redis        redis.UniversalClient
	Gatherer     prometheus.Gatherer
	Auth         auth.Service
	Transactions *transaction.Service
	Escrow       *escrow.Service
	Disputes     *dispute.Service
	Verifier     payment.Verifier
	AuditQueries *audit.Queries
	Logger       *slog.Logger

	LoginLimit     int
	LoginLimitSpan time.Duration
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, d Deps) {
	authHandler := handlers.NewAuthHandler(d.Auth)
	healthHandler := handlers.NewHealthHandler(d.DB, d.Redis)
	txHandler := handlers.NewTransactionHandler(d.Transactions, d.Escrow)
	disputeHandler := handlers.NewDisputeHandler(d.Disputes)
	adminHandler := handlers.NewAdminHandler(d.Transactions, d.Escrow, d.Verifier, d.AuditQueries, d.Logger)

	authMiddleware := middleware.NewAuthMiddleware(d.Auth, d.Logger)

	app.Get("/health", healthHandler.Check)
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", middleware.RequestMeta)

	// Public
	api.Post("/auth/login", loginLimiter(d), authHandler.Login)

	// Authenticated users
	protected := api.Group("", authMiddleware.Handler)
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/logout", middleware.AdminAuthMiddleware, authHandler.Logout)

	tx := protected.Group("/transactions")
	tx.Post("/", txHandler.Create)
	tx.Get("/", txHandler.List)
	tx.Get("/:id", txHandler.Get)
	tx.Get("/:id/receipt", txHandler.Receipt)
	tx.Post("/:id/cancel", txHandler.Cancel)
	tx.Post("/:id/confirm-delivery", txHandler.ConfirmDelivery)
	tx.Post("/:id/disputes", disputeHandler.FileDispute)
	tx.Get("/:id/disputes", disputeHandler.GetDisputes)

	// Operators
	admin := protected.Group("/admin", middleware.AdminAuthMiddleware)

	adminTx := admin.Group("/transactions")
	adminTx.Post("/:id/approve", middleware.HasPermission(models.PermissionWriteAdmin), adminHandler.Approve)
	adminTx.Post("/:id/hold", middleware.HasPermission(models.PermissionWriteAdmin), adminHandler.Hold)
	adminTx.Get("/:id/escrow", adminHandler.EscrowForTransaction)
	adminTx.Post("/:id/refund", middleware.HasPermission(models.PermissionEscrowRefund), adminHandler.Refund)

	admin.Post("/escrows/:id/release", middleware.HasPermission(models.PermissionEscrowRelease), adminHandler.Release)

	admin.Get("/disputes", disputeHandler.ListOpen)
	admin.Post("/disputes/:id/resolve", middleware.HasPermission(models.PermissionWriteAdmin), disputeHandler.Resolve)

	admin.Get("/revenue", middleware.HasPermission(models.PermissionReadAdmin), adminHandler.Revenue)

	auditGroup := admin.Group("/audit", middleware.HasPermission(models.PermissionAuditRead))
	auditGroup.Get("/recent", adminHandler.RecentAudit)
	auditGroup.Get("/users/:id", adminHandler.UserAudit)
	auditGroup.Get("/:entity/:id", adminHandler.EntityAudit)
}

func loginLimiter(d Deps) fiber.Handler {
	limit := d.LoginLimit
	if limit <= 0 {
		limit = 5
	}
	span := d.LoginLimitSpan
	if span <= 0 {
		span = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: span,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	})
}
