package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ehr-gateway/internal/config"
	"github.com/ehr/ehr-gateway/internal/domain/unified"
	"github.com/ehr/ehr-gateway/internal/platform/audit"
	"github.com/ehr/ehr-gateway/internal/platform/fhir"
	"github.com/ehr/ehr-gateway/internal/platform/middleware"
	"github.com/ehr/ehr-gateway/internal/platform/telemetry"
	"github.com/ehr/ehr-gateway/internal/vendors/cerner"
	"github.com/ehr/ehr-gateway/internal/vendors/epic"
	"github.com/ehr/ehr-gateway/internal/vendors/veradigm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ehr-gateway",
		Short: "Unified EHR gateway: one FHIR read API over Epic, Cerner and Veradigm",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Default vendor resolution. An unrecognized tag is a configuration
	// bug worth shouting about, but deployed clients rely on the gateway
	// coming up anyway, so we fall back instead of refusing to start.
	defaultVendor, valid := unified.ResolveDefaultVendor(cfg.DefaultEHRSystem)
	if !valid {
		logger.Error().
			Str("configured", cfg.DefaultEHRSystem).
			Str("fallback", defaultVendor.String()).
			Msg("DEFAULT_EHR_SYSTEM is not a recognized vendor tag; falling back")
	}

	// Vendor client registry. Only configured endpoints get a client;
	// the rest of the known tags stay unwired and resolve to absent.
	clients := make(map[unified.VendorSystem]unified.Client)
	if cfg.Epic.Configured() {
		rest := fhir.NewRESTClient(cfg.Epic.BaseURL, cfg.Epic.AccessToken, cfg.EHRHTTPTimeout)
		clients[unified.Epic] = epic.New(rest, logger)
	}
	if cfg.Cerner.Configured() {
		rest := fhir.NewRESTClient(cfg.Cerner.BaseURL, cfg.Cerner.AccessToken, cfg.EHRHTTPTimeout)
		clients[unified.Cerner] = cerner.New(rest, logger)
	}
	if cfg.Veradigm.Configured() {
		rest := fhir.NewRESTClient(cfg.Veradigm.BaseURL, cfg.Veradigm.AccessToken, cfg.EHRHTTPTimeout)
		clients[unified.Veradigm] = veradigm.New(rest, logger)
	}
	for vendor := range clients {
		logger.Info().Str("vendor", vendor.String()).Msg("vendor client wired")
	}

	svc := unified.NewService(clients, defaultVendor, logger)

	tp := telemetry.NewProvider("ehr-gateway")
	svc.SetMetrics(tp)

	// Audit recorder: Postgres when configured, structured logs otherwise.
	var recorder audit.Recorder = audit.NewLogRecorder(logger)
	if cfg.DatabaseURL != "" {
		pgRecorder, err := audit.NewPGRecorder(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize audit store")
		}
		defer pgRecorder.Close()
		recorder = pgRecorder
		logger.Info().Msg("audit entries will be stored in Postgres")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tp.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.Audit(logger, recorder))

	handler := unified.NewHandler(svc, buildCatalog(cfg, svc))
	handler.RegisterRoutes(e.Group(""))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", tp.PrometheusHandler())

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("default_vendor", defaultVendor.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildCatalog assembles the informational /systems payload from
// configuration. Endpoints are included only for wired vendors.
func buildCatalog(cfg *config.Config, svc *unified.Service) []unified.SystemInfo {
	endpoints := map[unified.VendorSystem]string{
		unified.Epic:     cfg.Epic.BaseURL,
		unified.Cerner:   cfg.Cerner.BaseURL,
		unified.Veradigm: cfg.Veradigm.BaseURL,
	}
	catalog := make([]unified.SystemInfo, 0, len(unified.KnownSystems))
	for _, v := range unified.KnownSystems {
		catalog = append(catalog, unified.SystemInfo{
			System:   v,
			Name:     v.DisplayName(),
			Endpoint: endpoints[v],
			Wired:    svc.Wired(v),
		})
	}
	return catalog
}
