// Package main is the entrypoint for the chikitsa-go server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
	"github.com/chikitsa-cloud/chikitsa-go/internal/frameworks/service"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/config"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/deps"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/http/auth"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/http/realip"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/http/server"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/metrics"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/store"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/tracing"

	// Register cache drivers
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache/loader"
	// Register store drivers
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/store/loader"
	// Register HTTP services
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/services/loader"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	loggingAllowSensitive := flag.String("logging-allow-sensitive", "", "Allow sensitive values in logs: true or false (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: sqlite or memory (overrides config)")
	dataDir := flag.String("data-dir", "", "Directory for the sqlite database (overrides config)")
	invitesProvider := flag.String("invites-provider", "", "Provider host embedded in invite strings (overrides config)")
	issueToken := flag.String("issue-token", "", "Print a bearer token for the given user id and exit")
	issueTokenTTL := flag.Duration("issue-token-ttl", 24*time.Hour, "Lifetime of the token printed by -issue-token")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> env -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:            listenAddr,
			LoggingLevel:          loggingLevel,
			LoggingAllowSensitive: loggingAllowSensitive,
			StoreDriver:           storeDriver,
			StoreDataDir:          dataDir,
			InvitesProvider:       invitesProvider,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		tok, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, *issueToken, *issueTokenTTL, time.Now())
		if err != nil {
			bootstrapLogger.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return slog.LevelDebug - 4 // slog has no trace, use debug-4
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg *config.Config, logger *slog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	// Passes driver-specific config from [cache.drivers.<driver>]
	cacheInstance, err := cache.New(cfg.Cache.Driver, cfg.Cache.DriverConfig(), logger)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	st, err := store.Open(ctx, &store.DriverConfig{
		Driver:        cfg.Store.Driver,
		DataDir:       cfg.Store.DataDir,
		BusyTimeoutMS: cfg.Store.BusyTimeoutMS,
	})
	if err != nil {
		_ = cacheInstance.Close()
		return fmt.Errorf("store: %w", err)
	}
	logger.Info("store opened", "driver", st.Name())

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, shutdownTracing(closeCtx), cacheInstance.Close(), st.Close())
	}()

	resolver := directory.NewCachedResolver(st.Directory(), cacheInstance, cfg.Directory.CacheTTL(), logger)
	m := metrics.New()

	svc := familyaccess.New(st.Ledger(), resolver, familyaccess.Options{
		Invites: familyaccess.InviteOptions{
			MaxTTLHours:    cfg.Invites.MaxTTLHours,
			Provider:       cfg.Invites.Provider,
			AllowSensitive: cfg.Logging.AllowSensitive,
		},
		Queries: familyaccess.QueryOptions{
			LookupTimeout:  cfg.Directory.LookupTimeout(),
			MaxConcurrency: cfg.Directory.MaxConcurrency,
		},
		Metrics: m,
		Logger:  logger,
	})

	deps.SetDeps(&deps.Deps{
		Store:        st,
		FamilyAccess: svc,
		Records:      records.NewCatalog(st.Records(), svc.Grants, logger),
		Directory:    st.Directory(),
		Resolver:     resolver,
		Config:       cfg,
		Cache:        cacheInstance,
		Metrics:      m,
		RealIP:       realip.New(cfg.Server.TrustedProxies),
	})

	services, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("server started, press Ctrl+C to stop", "listen_addr", cfg.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildServices constructs core services plus any extra configured under
// [http.services.<name>].
func buildServices(cfg *config.Config, logger *slog.Logger) ([]service.Service, error) {
	var out []service.Service
	for _, name := range service.Enabled(cfg.HTTP.Services) {
		newService := service.Get(name)
		if newService == nil {
			return nil, fmt.Errorf("unknown http service %q", name)
		}
		svc, err := newService(cfg.HTTP.Services[name], logger.With("service", name))
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		out = append(out, svc)
	}
	return out, nil
}
