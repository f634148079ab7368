// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/handlers"
	"tradeledger/internal/infrastructure/http/v1/middleware"
	"tradeledger/internal/infrastructure/metrics"
	"tradeledger/pkg/logger"
)

// DevUsername is the submittedBy of requests served without authentication.
const DevUsername = "dev"

// RouterConfig holds router configuration.
type RouterConfig struct {
	Service *reconcile.Service
	Stores  reconcile.Stores

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation. Nil serves every request as DevUsername.
	JWTValidator middleware.JWTValidator

	// Metrics, when set, records HTTP metrics and serves /metrics.
	Metrics *metrics.Metrics

	// Checks are the readiness probes by dependency name.
	Checks map[string]handlers.Pinger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	if cfg.Logger != nil {
		router.Use(middleware.Logger(cfg.Logger))
	}
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Checks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	if cfg.JWTValidator != nil {
		v1.Use(middleware.UserContext(cfg.JWTValidator))
	} else {
		v1.Use(middleware.DevUser(DevUsername))
	}

	base := handlers.NewBaseHandler()
	registerLedgerRoutes(v1, handlers.NewLedgerHandler(base, cfg.Service, cfg.Stores))
	registerBillingRoutes(v1, handlers.NewBillingHandler(base, cfg.Service, cfg.Stores))
	registerPurchaseRoutes(v1, handlers.NewPurchaseHandler(base, cfg.Service, cfg.Stores))
	registerStockRoutes(v1, handlers.NewStockHandler(base, cfg.Service, cfg.Stores))
	registerPartyRoutes(v1, handlers.NewPartiesHandler(base, cfg.Service, cfg.Stores))
	registerMaintenanceRoutes(v1, handlers.NewMaintenanceHandler(base, cfg.Service))

	return router
}

func registerLedgerRoutes(rg *gin.RouterGroup, h *handlers.LedgerHandler) {
	accounts := rg.Group("/payments-accounts")
	{
		accounts.POST("", h.OpenAccount)
		accounts.GET("", h.ListAccounts)
		accounts.GET("/:name", h.GetAccount)
	}

	txns := rg.Group("/transactions")
	{
		txns.GET("", h.ListTransactions)
		txns.POST("/transfer", h.PostTransfer)
		txns.POST("/simple", h.PostSimple)
		txns.DELETE("/:id", h.ReverseTransaction)
	}
}

func registerBillingRoutes(rg *gin.RouterGroup, h *handlers.BillingHandler) {
	billings := rg.Group("/billings")
	{
		billings.POST("", h.Create)
		billings.GET("", h.List)
		billings.GET("/:id", h.Get)
		billings.DELETE("/:id", h.Delete)

		billings.POST("/:id/payments", h.AddPayment)
		billings.PUT("/:id/payments/:ref", h.UpdatePayment)
		billings.DELETE("/:id/payments/:ref", h.DeletePayment)

		billings.POST("/:id/deliveries", h.StartDelivery)
		billings.PUT("/:id/deliveries/:deliveryId/end", h.EndDelivery)
		billings.DELETE("/:id/deliveries/:deliveryId", h.CancelDelivery)

		billings.PUT("/:id/expenses", h.UpsertExpenses)
	}
}

func registerPurchaseRoutes(rg *gin.RouterGroup, h *handlers.PurchaseHandler) {
	purchases := rg.Group("/purchases")
	{
		purchases.POST("", h.Create)
		purchases.GET("", h.List)
		purchases.GET("/:id", h.Get)
		purchases.PUT("/:id", h.Update)
		purchases.DELETE("/:id", h.Delete)
	}

	returns := rg.Group("/returns")
	{
		returns.POST("", h.CreateReturn)
		returns.GET("", h.ListReturns)
		returns.GET("/:no", h.GetReturn)
		returns.DELETE("/:no", h.DeleteReturn)
	}
}

func registerStockRoutes(rg *gin.RouterGroup, h *handlers.StockHandler) {
	rg.GET("/products", h.ListProducts)
	rg.GET("/products/:itemId", h.GetProduct)
	rg.GET("/need-to-purchase", h.ListNeeds)

	updates := rg.Group("/stock/updates")
	{
		updates.POST("", h.Update)
		updates.POST("/:changeId/revert", h.Revert)
	}
}

func registerPartyRoutes(rg *gin.RouterGroup, h *handlers.PartiesHandler) {
	suppliers := rg.Group("/suppliers")
	{
		suppliers.GET("", h.ListSuppliers)
		suppliers.GET("/:id", h.GetSupplier)
		suppliers.POST("/:id/payments", h.PaySupplier)
		suppliers.DELETE("/:id/payments/:ref", h.ReverseSupplierPayment)
	}

	sellers := rg.Group("/sellers")
	{
		sellers.GET("", h.ListSellers)
		sellers.GET("/:id", h.GetSeller)
		sellers.POST("/:id/payments", h.PaySeller)
		sellers.DELETE("/:id/payments/:ref", h.ReverseSellerPayment)
	}

	customers := rg.Group("/customers")
	{
		customers.GET("", h.ListCustomers)
		customers.GET("/:id", h.GetCustomer)
		customers.PUT("/:id", h.UpdateCustomer)
		customers.DELETE("/:id", h.DeleteCustomer)
	}
}

func registerMaintenanceRoutes(rg *gin.RouterGroup, h *handlers.MaintenanceHandler) {
	rg.POST("/maintenance/recompute", h.Recompute)
	rg.GET("/maintenance/verify-stock", h.VerifyStock)
	rg.GET("/numbers/:prefix/next", h.NextNumber)
}
