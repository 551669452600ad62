package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"vtokiosk/internal/analytics"
	"vtokiosk/internal/assets"
	"vtokiosk/internal/auth"
	"vtokiosk/internal/backup"
	"vtokiosk/internal/catalog"
	"vtokiosk/internal/cost"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/http/handlers"
	httpapi "vtokiosk/internal/http/httpapi"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/infra/credentials"
	"vtokiosk/internal/infra/geoip"
	"vtokiosk/internal/middleware"
	"vtokiosk/internal/promptcfg"
	"vtokiosk/internal/providers/fal"
	"vtokiosk/internal/providers/vertex"
	"vtokiosk/internal/sqlinline"
	"vtokiosk/internal/sse"
	"vtokiosk/internal/storage"
	"vtokiosk/internal/store"
	"vtokiosk/internal/wizard"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open kiosk store")
	}
	defer kv.Close()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	// The operator database is optional; it holds integration secrets and
	// generation analytics.
	var (
		creds    *credentials.Store
		recorder analytics.Recorder = analytics.Nop{}
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner := openOperatorDB(ctx, pool, logger)
		creds = credentials.NewStore(runner)
		recorder = analytics.NewSQLRecorder(runner)
	}

	gw := buildGateway(ctx, cfg, creds, &logger)

	prompts, err := promptcfg.NewManager(kv, cfg.PromptConfigPath, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load prompt config")
	}
	go func() {
		if err := prompts.Watch(ctx); err != nil && !errors.Is(err, promptcfg.ErrNoFile) {
			logger.Warn().Err(err).Msg("prompt config watcher stopped")
		}
	}()

	uploader, staticDir := buildUploader(ctx, cfg, creds, &logger)

	history := store.NewHistory(kv, &logger)
	usage := store.NewUsage(kv)
	hub := sse.NewHub(&logger)

	orch, err := wizard.New(wizard.Options{
		Catalog:           cat,
		Assets:            assets.NewDirLibrary(cfg.AssetsDir),
		Gateway:           gw,
		Prompts:           prompts,
		History:           history,
		Usage:             usage,
		Backup:            uploader,
		Recorder:          recorder,
		Events:            hub,
		Auth:              initialSession(ctx, cfg, &logger),
		FrameContentScale: cfg.FrameContentScale,
		BackupTimeout:     cfg.BackupTimeout,
		Logger:            &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build wizard")
	}
	go orch.Run(ctx)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var countryLookup middleware.CountryLookup
	if resolver != nil {
		countryLookup = resolver.CountryCode
		if closer, ok := resolver.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}

	app := &handlers.App{
		Wizard:   orch,
		Catalog:  cat,
		History:  history,
		Usage:    usage,
		Prompts:  prompts,
		Backup:   uploader,
		Events:   hub,
		Cost:     cost.NewCalculator(cost.Pricing{BaseUSD: cfg.CostBaseUSD, InputUSD: cfg.CostInputUSD, TaxRate: cfg.CostTaxRate, FXRate: cfg.CostFXRate}),
		Recorder: recorder,
		Logger:   &logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          &logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
		OperatorSecret:  cfg.OperatorSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       staticDir,
		AssetsDir:       cfg.AssetsDir,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("store", cfg.StoreDriver).Str("backup", cfg.BackupMode).Msgf("kiosk listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	orch.Close()
	orch.Wait()
	logger.Info().Msg("kiosk stopped")
}

func openOperatorDB(ctx context.Context, pool *pgxpool.Pool, logger infra.Logger) *infra.SQLRunner {
	runner := infra.NewSQLRunner(pool, logger)
	if _, err := runner.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure operator schema")
	}
	return runner
}

// buildGateway assembles the remote inference gateway. A kiosk without a
// Vertex project or bridge still boots; its operations report the missing
// configuration.
func buildGateway(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger *infra.Logger) wizard.Gateway {
	bridge := cfg.BridgeURL
	if bridge == "" && cfg.VertexProject == "" {
		bridge = credentials.Resolve(ctx, creds, "", credentials.ProviderBridge)
	}
	vc, err := vertex.NewClient(vertex.Options{
		Project:   cfg.VertexProject,
		BaseURL:   cfg.VertexBaseURL,
		BridgeURL: bridge,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("inference gateway not configured")
		return gateway.Unconfigured{Err: fmt.Errorf("%w: %v", gateway.ErrMissingConfig, err)}
	}

	falClient := fal.NewClient(fal.Options{
		Key: cfg.FalKey,
		KeyLookup: func(ctx context.Context) string {
			return credentials.Resolve(ctx, creds, "", credentials.ProviderFal)
		},
		BaseURL: cfg.FalBaseURL,
		Logger:  logger,
	})

	gw, err := gateway.New(gateway.Options{
		Generator:   vc,
		Predictor:   vc,
		Synthesizer: falClient,
		Attire:      gateway.Model{Region: cfg.VertexRegion, Name: cfg.AttireModel},
		TryOn:       gateway.Model{Region: cfg.VertexRegion, Name: cfg.TryOnModel},
		Consult:     gateway.Model{Region: cfg.ConsultRegion, Name: cfg.ConsultModel},
		FalApp:      cfg.FalModel,
		Timeout:     cfg.GatewayTimeout,
		Logger:      logger,
	})
	if err != nil {
		return gateway.Unconfigured{Err: err}
	}
	logger.Info().Bool("bridged", vc.Bridged()).Str("region", cfg.VertexRegion).Msg("inference gateway ready")
	return gw
}

// buildUploader returns the backup uploader and, in local mode, the
// directory served under /static.
func buildUploader(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger *infra.Logger) (backup.Uploader, string) {
	switch cfg.BackupMode {
	case infra.BackupLocal:
		files, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare backup directory")
		}
		local := backup.NewLocalUploader(files, cfg.StorageBaseURL, logger)
		go local.RunSweeper(ctx, cfg.BackupRetention, time.Hour)
		return local, files.BasePath()
	default:
		return backup.NewBridgeUploader(backup.BridgeOptions{
			URL: cfg.BridgeURL,
			URLLookup: func(ctx context.Context) string {
				return credentials.Resolve(ctx, creds, "", credentials.ProviderBridge)
			},
			Timeout: cfg.BackupTimeout,
			Logger:  logger,
		}), ""
	}
}

// initialSession picks the Google session the kiosk starts with. ADC
// sessions are refreshed eagerly so the first capture does not wait on it.
func initialSession(ctx context.Context, cfg *infra.Config, logger *infra.Logger) auth.Session {
	if !cfg.GoogleUseADC {
		return auth.Static(cfg.GoogleAccessToken)
	}
	s := auth.New(auth.ADC())
	refreshed, err := s.Refresh(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("application default credentials unavailable; waiting for operator authorization")
		return s
	}
	return refreshed
}
