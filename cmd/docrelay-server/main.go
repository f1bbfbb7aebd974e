// Package main provides the entry point for docrelay-server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docrelay/docrelay-go/internal/backup"
	"github.com/docrelay/docrelay-go/internal/core/service"
	"github.com/docrelay/docrelay-go/internal/infra/buildinfo"
	"github.com/docrelay/docrelay-go/internal/infra/confloader"
	"github.com/docrelay/docrelay-go/internal/infra/shutdown"
	"github.com/docrelay/docrelay-go/internal/infra/tlsroots"
	"github.com/docrelay/docrelay-go/internal/routes"
	"github.com/docrelay/docrelay-go/internal/server/config"
	"github.com/docrelay/docrelay-go/internal/server/httpserver"
	"github.com/docrelay/docrelay-go/internal/server/localserver"
	"github.com/docrelay/docrelay-go/internal/storage"
	"github.com/docrelay/docrelay-go/internal/storage/badgerstore"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
	"github.com/docrelay/docrelay-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("docrelay-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting docrelay-server",
		"version", buildinfo.Version,
		"config", *configFile)

	// Re-apply the log level when the config file is edited in place.
	if *configFile != "" {
		if err := watchLogLevel(*configFile, log); err != nil {
			log.Warn("config watcher unavailable", "error", err)
		}
	}

	metrics := metric.New()

	// Snapshot store and coordinator
	store, err := storage.Open(storage.Config{
		Backend:              cfg.Storage.Backend,
		DataDir:              cfg.Storage.DataDir,
		EncryptionPassphrase: []byte(cfg.Storage.EncryptionPassphrase),
		EncryptionAlgorithm:  cfg.Storage.EncryptionAlgorithm,
		Badger:               badgerConfig(cfg),
	}, log, metrics.Registry())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	coord := service.NewCoordinator(store, log, metrics)

	ctx := context.Background()
	if err := coord.Recover(ctx); err != nil {
		store.Close()
		return fmt.Errorf("recover documents: %w", err)
	}

	// Background tasks share one cancelable context.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Remote backup
	var adapter *backup.Adapter
	if cfg.Backup.Enabled {
		client, err := backup.NewHTTPClient(backup.HTTPClientConfig{
			BaseURL:    cfg.Backup.BaseURL,
			AppKey:     cfg.Backup.AppKey,
			AppSecret:  cfg.Backup.AppSecret,
			Bucket:     cfg.Backup.Bucket,
			Timeout:    cfg.Backup.Timeout,
			CACertFile: cfg.Backup.CACertFile,
		}, metrics)
		if err != nil {
			store.Close()
			return fmt.Errorf("backup client: %w", err)
		}
		adapter = backup.NewAdapter(client, backup.AdapterConfig{
			Interval:    cfg.Backup.Interval,
			MaxAttempts: cfg.Backup.MaxAttempts,
		}, log, metrics)
		// Catch up from the remote store before the adapter starts
		// observing local changes, so restores are not re-uploaded.
		restoreFromRemote(ctx, coord, adapter, log)
		coord.AddChangeListener(adapter)
		go adapter.Run(runCtx)
	}

	// External change watcher
	var watcher *service.Watcher
	if cfg.Watcher.Enabled {
		watcher, err = service.NewWatcher(coord, watcherConfig(cfg), log, metrics)
		if err != nil {
			store.Close()
			return fmt.Errorf("change watcher: %w", err)
		}
		go watcher.Run(runCtx)
	}

	// Route registry
	registry, err := routes.New(cfg.Routes.File, log)
	if err != nil {
		store.Close()
		return fmt.Errorf("route registry: %w", err)
	}
	if pruned, err := registry.Load(); err != nil {
		store.Close()
		return fmt.Errorf("load routes: %w", err)
	} else if len(pruned) > 0 {
		log.Warn("pruned routes with missing bundles", "count", len(pruned))
	}

	// HTTP server
	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Coordinator = coord
	routerCfg.Registry = registry
	routerCfg.Backup = adapter
	routerCfg.Metrics = metrics
	routerCfg.Logger = log
	routerCfg.AuthToken = cfg.Server.HTTP.AuthToken
	routerCfg.RateLimit = cfg.Server.HTTP.RateLimit
	routerCfg.RateLimitBurst = cfg.Server.HTTP.RateLimitBurst
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, httpserver.NewRouter(routerCfg))

	// Local management socket
	localHandler := localserver.NewHandler(coord, registry, adapter, log)
	localServer := localserver.New(cfg.Server.Local.Path, localHandler)

	// Shutdown hooks run in reverse registration order.
	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down storage")
		if watcher != nil {
			watcher.Close()
		}
		cancelRun()
		return store.Close()
	})

	if adapter != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("flushing backups")
			return adapter.Flush(ctx)
		})
	}

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down local server")
		return localServer.Shutdown(ctx)
	})

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	go func() {
		log.Info("local server listening", "path", cfg.Server.Local.Path)
		if err := localServer.ListenAndServe(); err != nil {
			log.Error("local server error", "error", err)
		}
	}()

	var certWatcher *tlsroots.Watcher
	if cfg.Server.HTTP.TLSCertFile != "" && cfg.Server.HTTP.TLSKeyFile != "" {
		certWatcher, err = tlsroots.NewWatcher(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile, log)
		if err != nil {
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		certWatcher.StartAsync()
		defer certWatcher.Stop()
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", certWatcher != nil)

		var err error
		if certWatcher != nil {
			err = httpServer.ListenAndServeTLS(certWatcher.GetCertificate)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// watchLogLevel re-reads the config file on change and applies its log
// level without a restart. Other settings still require one.
func watchLogLevel(configFile string, log logger.Logger) error {
	watcher, err := confloader.NewWatcher()
	if err != nil {
		return err
	}
	watcher.OnChange(func(path string) {
		cfg := config.Default()
		loader := confloader.NewLoader(confloader.WithConfigFile(configFile))
		if err := loader.Load(cfg); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return err
	}
	watcher.StartAsync()
	return nil
}

// restoreFromRemote merges every remotely backed-up document into local
// state. Failures are logged per document; a fresh process still starts
// with whatever it could recover.
func restoreFromRemote(ctx context.Context, coord *service.Coordinator, adapter *backup.Adapter, log logger.Logger) {
	ids, err := adapter.RemoteIDs(ctx)
	if err != nil {
		log.Warn("remote backup listing failed, skipping catch-up", "error", err)
		return
	}

	var merged, failed int
	for _, id := range ids {
		data, err := adapter.Restore(ctx, id)
		if err != nil {
			failed++
			log.Warn("remote restore failed", "document_id", id, "error", err)
			continue
		}
		if err := coord.MergeRemote(ctx, id, data); err != nil {
			failed++
			log.Warn("remote merge failed", "document_id", id, "error", err)
			continue
		}
		merged++
	}
	log.Info("remote catch-up complete", "merged", merged, "failed", failed)
}

func badgerConfig(cfg *config.ServerConfig) badgerstore.Config {
	return badgerstore.Config{
		GCInterval:  cfg.Storage.Badger.GCInterval,
		GCThreshold: cfg.Storage.Badger.GCThreshold,
		CacheSize:   cfg.Storage.Badger.CacheSize,
		SyncWrites:  cfg.Storage.Badger.SyncWrites,
	}
}

func watcherConfig(cfg *config.ServerConfig) service.WatcherConfig {
	wcfg := service.WatcherConfig{Interval: cfg.Watcher.Interval}
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == storage.BackendFile {
		wcfg.Dir = filepath.Join(cfg.Storage.DataDir, "snapshots")
	}
	return wcfg
}
