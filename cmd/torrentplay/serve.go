package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"golang.org/x/sync/errgroup"

	apihttp "torrentplay/internal/api/http"
	"torrentplay/internal/app"
	"torrentplay/internal/metrics"
	mongorepo "torrentplay/internal/repository/mongo"
	"torrentplay/internal/services/torrent/engine/anacrolix"
	"torrentplay/internal/services/torrent/parser"
	"torrentplay/internal/services/torrent/storage"
	"torrentplay/internal/telemetry"
	"torrentplay/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr, storageRoot string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and torrent manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if storageRoot != "" {
				cfg.StorageRoot = storageRoot
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Control API listen address (overrides HTTP_ADDR)")
	cmd.Flags().StringVar(&storageRoot, "storage-root", "", "Session storage root (overrides TORRENT_STORAGE_ROOT)")
	return cmd
}

func runServe(parent context.Context, cfg app.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(parent, telemetry.Config{
		ServiceName: cfg.AppID,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	}, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", cfg.AppID),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("storageRoot", cfg.StorageRoot),
		slog.String("streamHost", cfg.StreamHost),
		slog.Duration("progressInterval", cfg.ProgressInterval),
		slog.Bool("persistence", cfg.MongoURI != ""),
	)

	rootCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := storage.NewRoot(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("storage root: %w", err)
	}
	if free, err := root.FreeBytes(); err == nil {
		logger.Info("storage root ready", slog.String("path", root.Dir()), slog.String("free", humanBytes(free)))
	}

	engine, err := anacrolix.New(anacrolix.Config{
		DataDir:    root.Dir(),
		ListenPort: cfg.ListenPort,
		NoUpload:   cfg.NoUpload,
		AddTimeout: cfg.EngineAddTimeout,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("engine close error", slog.String("error", err.Error()))
		}
	}()

	managerCfg := usecase.Config{
		Engine:           engine,
		Parser:           parser.NewService(),
		Binder:           apihttp.NewBinder(cfg.StreamHost, logger),
		Cleaner:          root,
		Dirs:             root,
		ProgressInterval: cfg.ProgressInterval,
		ConcurrentAdds:   cfg.MaxConcurrentAdds,
		Messages:         usecase.NewMessages(cfg.MessageLocale),
		Logger:           logger,
	}

	if cfg.MongoURI != "" {
		mongoClient, repo, err := connectStore(rootCtx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}()
		managerCfg.Store = repo
	}

	manager := usecase.NewManager(managerCfg)
	if managerCfg.Store != nil {
		restoreCtx, cancel := context.WithTimeout(rootCtx, shutdownTimeout)
		restored, err := manager.Restore(restoreCtx)
		cancel()
		if err != nil {
			logger.Warn("descriptor restore failed", slog.String("error", err.Error()))
		} else {
			logger.Info("descriptors restored", slog.Int("count", restored))
		}
	}

	handler := apihttp.NewServer(manager,
		apihttp.WithLogger(logger),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		return handler.Pump(gctx, manager.Events())
	})
	g.Go(func() error {
		logger.Info("server started", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		handler.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", slog.String("error", err.Error()))
		}
		return manager.Close()
	})

	err = g.Wait()
	if err != nil {
		logger.Error("server stopped with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func connectStore(ctx context.Context, cfg app.Config, logger *slog.Logger) (*mongo.Client, *mongorepo.Repository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	repo := mongorepo.NewRepository(client, cfg.MongoDatabase, cfg.MongoCollection)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	return client, repo, nil
}
