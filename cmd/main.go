package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vaultline/vault-service/internal/api/routes"
	"github.com/vaultline/vault-service/internal/chain"
	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/internal/domain/services"
	"github.com/vaultline/vault-service/internal/infrastructure/config"
	"github.com/vaultline/vault-service/internal/infrastructure/database"
	"github.com/vaultline/vault-service/internal/infrastructure/repositories"
	withdrawalsweep "github.com/vaultline/vault-service/internal/workers/withdrawal_sweep"
	"github.com/vaultline/vault-service/pkg/crypto"
	"github.com/vaultline/vault-service/pkg/graceful"
	"github.com/vaultline/vault-service/pkg/logger"
	"github.com/vaultline/vault-service/pkg/metrics"
	"github.com/vaultline/vault-service/pkg/retry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Key custody for private key encryption at rest
	custody, err := crypto.NewKeyCustody(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize key custody", "error", err)
	}

	// Chain access
	gateway, err := chain.NewEthGateway(
		cfg.Blockchain.RPCURL,
		time.Duration(cfg.Blockchain.RequestTimeout)*time.Second,
		log,
	)
	if err != nil {
		log.Fatal("Failed to connect to rpc node", "error", err)
	}
	defer gateway.Close()

	// Probe the node before serving traffic; transient failures back off
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 2*time.Minute)
	err = retry.Do(probeCtx, retry.Policy{
		MaxRetries:     5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		Retryable:      func(err error) bool { return errors.Is(err, entities.ErrChainUnavailable) },
	}, log, func() error {
		_, err := gateway.CurrentBlock(probeCtx)
		return err
	})
	cancelProbe()
	if err != nil {
		log.Fatal("RPC node not reachable", "error", err)
	}

	policy := chain.NewConfirmationPolicy(cfg.Blockchain.MinConfirmations)
	signer := chain.NewSigner(cfg.Blockchain.ChainID)
	builder := chain.NewTransactionBuilder(gateway, chain.BuilderConfig{
		ChainID:            cfg.Blockchain.ChainID,
		NativeGasLimit:     cfg.Blockchain.NativeGasLimit,
		ERC20GasLimit:      cfg.Blockchain.ERC20GasLimit,
		GasLimitMultiplier: cfg.Blockchain.GasLimitMultiplier,
		GasPriceMultiplier: cfg.Blockchain.GasPriceMultiplier,
		DefaultGasPrice:    big.NewInt(cfg.Blockchain.DefaultGasPrice),
	}, log)

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Repositories
	addressRepo := repositories.NewAddressRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	depositRepo := repositories.NewDepositRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)

	// Services
	extractor := chain.NewTransferExtractor(tokenRepo, cfg.Blockchain.NativeSymbol, log)
	addressService := services.NewAddressService(addressRepo, custody, log)
	depositService := services.NewDepositService(
		depositRepo, addressRepo, gateway, extractor, policy, m, log)
	withdrawalService := services.NewWithdrawalService(
		withdrawalRepo, addressRepo, tokenRepo, addressService,
		builder, signer, gateway, policy, cfg.Workers.MaxAttempts, m, log)

	// Sweep worker
	worker := withdrawalsweep.New(withdrawalService, withdrawalsweep.Config{
		SendInterval:   time.Duration(cfg.Workers.SendInterval) * time.Second,
		UpdateInterval: time.Duration(cfg.Workers.UpdateInterval) * time.Second,
		BatchLimit:     cfg.Workers.BatchLimit,
		Concurrency:    cfg.Workers.Concurrency,
		RunTimeout:     time.Duration(cfg.Workers.RunTimeout) * time.Second,
	}, m, log)
	worker.Start()

	// HTTP server
	router := routes.SetupRoutes(cfg, db, routes.Services{
		Addresses:   addressService,
		Deposits:    depositService,
		Withdrawals: withdrawalService,
	}, registry, log)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
			"chain_id", cfg.Blockchain.ChainID,
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	shutdown := graceful.NewShutdownManager(server, db, 30*time.Second, log)
	shutdown.Register(worker)
	shutdown.WaitForShutdown()
}
