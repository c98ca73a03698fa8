package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/simaogato/tradeflow-backend/internal/adapter/alpaca"
	"github.com/simaogato/tradeflow-backend/internal/adapter/auth"
	"github.com/simaogato/tradeflow-backend/internal/adapter/cache"
	grpcadapter "github.com/simaogato/tradeflow-backend/internal/adapter/grpc"
	"github.com/simaogato/tradeflow-backend/internal/adapter/httpapi"
	"github.com/simaogato/tradeflow-backend/internal/adapter/kafka"
	"github.com/simaogato/tradeflow-backend/internal/adapter/repository/sqlstore"
	"github.com/simaogato/tradeflow-backend/internal/adapter/venue"
	"github.com/simaogato/tradeflow-backend/internal/config"
	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/simaogato/tradeflow-backend/internal/logging"
	"github.com/simaogato/tradeflow-backend/internal/usecase/account"
	"github.com/simaogato/tradeflow-backend/internal/usecase/market"
	"github.com/simaogato/tradeflow-backend/internal/usecase/portfolio"
	"github.com/simaogato/tradeflow-backend/internal/usecase/quotestream"
	"github.com/simaogato/tradeflow-backend/internal/usecase/trading"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tradeflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// 1. Setup Database
	dialect, err := sqlstore.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	db, err := sqlstore.NewDB(dialect, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.RunMigrations {
		applied, err := sqlstore.Migrate(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Int64s("versions", applied))
	}

	// 2. Initialize Repositories and external adapters
	ledger := sqlstore.NewLedgerRepository(db)
	users := sqlstore.NewUserRepository(db)

	creds := alpaca.Credentials{APIKey: cfg.AlpacaAPIKey, APISecret: cfg.AlpacaAPISecret}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	quotes, err := cache.NewQuoteCache(alpaca.NewMarketDataClient(cfg.AlpacaDataURL, creds, httpClient), cfg.QuoteCacheTTL)
	if err != nil {
		return err
	}
	defer quotes.Close()

	var exec domain.ExecutionVenue
	switch cfg.VenueMode {
	case config.VenueModeAlpaca:
		exec = alpaca.NewTradingClient(cfg.AlpacaTradingURL, creds, httpClient)
	default:
		exec = venue.NewPaperVenue(quotes)
	}
	guarded := venue.NewGuardedVenue(exec, venue.GuardSettings{
		Timeout:          cfg.VenueTimeout,
		FailureThreshold: cfg.VenueBreakerFailures,
		Cooldown:         cfg.VenueBreakerCooldown,
	}, logger)
	logger.Info("execution venue configured", zap.String("mode", cfg.VenueMode))

	var events domain.EventPublisher
	if cfg.KafkaEnabled() {
		events = kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	} else {
		events = kafka.NewLogPublisher(logger)
	}
	defer events.Close()

	tokens := auth.NewTokenAuthority(cfg.JWTSecret, cfg.TokenTTL)

	// 3. Initialize Services (Use Cases)
	accountService := account.NewAccountService(users, tokens)
	tradingService := trading.NewTradingService(ledger, guarded, quotes, events, logger)
	portfolioService := portfolio.NewPortfolioService(ledger, quotes)
	marketService := market.NewMarketService(quotes)

	broadcaster := quotestream.NewBroadcaster(quotes, cfg.QuotePollInterval, logger)
	defer broadcaster.Close()

	// 4. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger),
			grpcadapter.AuthInterceptor(tokens),
		),
	)
	grpcadapter.RegisterTradeFlowServiceServer(grpcServer, grpcadapter.NewServer(accountService, tradingService, portfolioService, marketService))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcAddr := ":" + cfg.GRPCPort
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	// 5. Start HTTP Server
	httpServer := httpapi.NewHTTPServer(":"+cfg.HTTPPort, httpapi.NewServer(httpapi.Dependencies{
		Accounts:  accountService,
		Trading:   tradingService,
		Portfolio: portfolioService,
		Market:    marketService,
		Quotes:    broadcaster,
		Tokens:    tokens,
		Logger:    logger,
	}))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	// Graceful shutdown
	return waitForShutdown(logger, errCh, grpcServer, healthServer, httpServer)
}

// waitForShutdown waits for SIGTERM, SIGINT or a server failure and gracefully shuts down both servers
func waitForShutdown(logger *zap.Logger, errCh <-chan error, grpcServer *grpclib.Server, healthServer *health.Server, httpServer *http.Server) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(serveErr))
	}

	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	return serveErr
}
