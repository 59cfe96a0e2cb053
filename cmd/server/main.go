package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/dipledger-backend/internal/adapter/grpc"
	"github.com/simaogato/dipledger-backend/internal/adapter/localstore"
	"github.com/simaogato/dipledger-backend/internal/adapter/pricefeed"
	"github.com/simaogato/dipledger-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
	"github.com/simaogato/dipledger-backend/internal/usecase/portfolio"
	"github.com/simaogato/dipledger-backend/internal/usecase/settlement"
	"github.com/simaogato/dipledger-backend/internal/usecase/valuation"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		common.NewLogger("info").Fatal().Err(err).Msg("Failed to load config")
	}
	logger := common.NewLogger(cfg.Logging.Level)

	ctx := context.Background()

	// 1. Setup Database
	db, err := postgres.NewDB(ctx, cfg.Database.ConnectionString(), postgres.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply schema")
	}
	logger.Info().Msg("Schema ready")

	// 2. Initialize Repositories (Postgres) and the local snapshot store
	portfolioRepo := postgres.NewPortfolioRepository(db)
	historyRepo := postgres.NewHistoryRepository(db)
	closePriceRepo := postgres.NewClosePriceRepository(db)

	store, err := localstore.Open(cfg.Cache.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open snapshot cache")
	}
	defer store.Close()

	var feed domain.PriceFeed
	switch cfg.PriceFeed.Source {
	case "postgres":
		feed = closePriceRepo
	default:
		feed = pricefeed.NewClient(cfg.PriceFeed.BaseURL,
			pricefeed.WithAPIKey(cfg.PriceFeed.APIKey),
			pricefeed.WithRateLimit(cfg.PriceFeed.RateLimit),
			pricefeed.WithTimeout(cfg.PriceFeed.GetTimeout()),
			pricefeed.WithLogger(logger),
		)
	}

	cutoff, err := calendar.ParseCutoff(cfg.Market.CloseCutoff)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid market close cutoff")
	}
	cal := calendar.New(calendar.BusinessTimezone, cutoff)

	// 3. Initialize Services (Use Cases)
	portfolioService := portfolio.NewPortfolioService(portfolioRepo, logger)
	settlementService := settlement.NewSettlementService(portfolioRepo, historyRepo, logger)
	valuationService := valuation.NewValuationService(feed, valuation.NewSnapshotCache(store, cal), cal, logger)

	// 4. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger),
			grpcadapter.AuthInterceptor(cfg.Server.APIToken),
		),
	)

	ledgerServer := grpcadapter.NewServer(portfolioService, settlementService, valuationService, cal, logger)
	grpcadapter.RegisterLedgerServiceServer(grpcServer, ledgerServer)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		logger.Fatal().Err(err).Str("address", cfg.Server.Address).Msg("Failed to listen")
	}

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address).
			Str("price_feed", cfg.PriceFeed.Source).
			Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal().Err(err).Msg("Failed to serve gRPC server")
		}
	}()

	waitForShutdown(grpcServer, logger)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(grpcServer *grpclib.Server, logger *common.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")

	grpcServer.GracefulStop()
	logger.Info().Msg("gRPC server stopped")
}
