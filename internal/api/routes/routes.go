package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultline/vault-service/internal/api/handlers"
	"github.com/vaultline/vault-service/internal/api/middleware"
	"github.com/vaultline/vault-service/internal/infrastructure/config"
	"github.com/vaultline/vault-service/pkg/logger"
)

// Services bundles the handler dependencies
type Services struct {
	Addresses   handlers.AddressManager
	Deposits    handlers.DepositReconciler
	Withdrawals handlers.WithdrawalManager
}

// SetupRoutes configures all application routes
func SetupRoutes(cfg *config.Config, db *sqlx.DB, svcs Services, registry *prometheus.Registry, log *logger.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	healthHandlers := handlers.NewHealthHandlers(db, log)
	addressHandlers := handlers.NewAddressHandlers(svcs.Addresses, log)
	depositHandlers := handlers.NewDepositHandlers(svcs.Deposits, log)
	withdrawalHandlers := handlers.NewWithdrawalHandlers(svcs.Withdrawals, log)

	router.GET("/health", healthHandlers.Health)
	router.GET("/ready", healthHandlers.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		addresses := v1.Group("/addresses")
		{
			addresses.POST("", addressHandlers.Generate)
			addresses.GET("", addressHandlers.List)
			addresses.GET("/:id", addressHandlers.Get)
			addresses.PATCH("/:id/active", addressHandlers.SetActive)
		}

		deposits := v1.Group("/deposits")
		{
			deposits.POST("", depositHandlers.Process)
			deposits.GET("", depositHandlers.List)
		}

		withdrawals := v1.Group("/withdrawals")
		{
			withdrawals.POST("", withdrawalHandlers.Create)
			withdrawals.GET("", withdrawalHandlers.List)
			withdrawals.GET("/:id", withdrawalHandlers.Get)
		}
	}

	return router
}
