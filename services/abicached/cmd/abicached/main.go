package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/greymass/abicached/libraries/config"
	"github.com/greymass/abicached/libraries/logger"
	"github.com/greymass/abicached/libraries/profiler"
	"github.com/greymass/abicached/libraries/server"
	"github.com/greymass/abicached/services/abicached/internal"
	"github.com/greymass/abicached/services/abicached/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

var (
	productionCategories = []string{"startup", "ingest", "cache", "store", "http", "stats", "profiler"}
	debugCategories      = []string{"debug", "debug-trace", "debug-lookup"}
	allCategories        = append(append([]string{}, productionCategories...), debugCategories...)
)

func main() {
	config.CheckVersion(Version)

	cfg := &internal.Config{}
	if err := config.Load(cfg, os.Args[1:]); err != nil {
		logger.Fatal("Config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.RegisterCategories(allCategories...)
	if cfg.Debug {
		logger.SetCategoryFilter(nil)
		logger.SetMinLevel(logger.LevelDebug)
	} else {
		logger.SetCategoryFilter(cfg.LogFilter)
	}

	if cfg.LogFile != "" {
		if err := logger.SetLogFile(cfg.LogFile); err != nil {
			logger.Fatal("Failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer logger.Close()
		logger.Printf("startup", "Logging to file: %s", cfg.LogFile)
	}

	logger.Printf("startup", "abicached %s starting...", Version)
	printConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	stores, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open store: %v", err)
	}

	engine, err := internal.NewEngine(internal.EngineConfig{
		Workers:         cfg.ThreadPoolSize,
		QueueLimit:      cfg.QueueLimit(),
		StallStep:       cfg.StallStep,
		StallMax:        cfg.StallMax,
		CacheMaxEntries: cfg.CacheMaxEntries,
		Stores:          stores,
		OnFatal: func(err *internal.FatalError) {
			abort(err)
		},
	})
	if err != nil {
		logger.Fatal("Failed to create engine: %v", err)
	}

	spec, err := internal.LoadOpenAPI(Version)
	if err != nil {
		logger.Fatal("%v", err)
	}
	rpcServer := internal.NewRPCServer(engine, spec)
	if err := internal.ValidateRoutes(spec, rpcServer.Mux()); err != nil {
		logger.Fatal("%v", err)
	}

	if cfg.PprofPort != "" {
		go func() {
			addr := "localhost:" + cfg.PprofPort
			logger.Printf("startup", "Starting pprof on %s", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Printf("startup", "pprof server error: %v", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Profile {
		p := profiler.New(profiler.Config{
			ServiceName: "abicached",
			Interval:    time.Duration(cfg.ProfileInterval) * time.Second,
		})
		g.Go(func() error {
			return p.Run(gctx)
		})
	}

	feed := internal.NewFeed(gctx, engine, cfg.AckInterval)
	listeners := []struct {
		name    string
		addr    string
		handler http.Handler
	}{
		{"trace feed", cfg.TraceListen, feed.Handler()},
		{"RPC server", cfg.HTTPListen, rpcServer},
		{"RPC server", cfg.HTTPSocket, rpcServer},
		{"metrics", cfg.MetricsListen, promhttp.Handler()},
	}
	for _, l := range listeners {
		if !server.Enabled(l.addr) {
			continue
		}
		if err := serve(g, gctx, l.name, l.addr, l.handler); err != nil {
			abort(err)
			break
		}
	}

	engine.StartReporter(cfg.GetLogInterval())
	logger.Printf("startup", "Service running. Press Ctrl+C to stop.")

	<-gctx.Done()
	logger.Printf("startup", "Shutting down...")
	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Error("Shutdown: %v", err)
		exitCode = 1
	}

	if err := engine.Close(); err != nil {
		logger.Error("Engine stopped with error: %v", err)
		exitCode = 1
	}
	if err := store.CloseAll(stores); err != nil {
		logger.Error("Failed to close store: %v", err)
		exitCode = 1
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		logger.Error("Stopped: %v", cause)
		exitCode = 1
	}
	logger.Printf("startup", "Shutdown complete")
	if exitCode != 0 {
		logger.Close()
		os.Exit(exitCode)
	}
}

func openStores(ctx context.Context, cfg *internal.Config) ([]store.Store, error) {
	switch {
	case cfg.RedisIP != "":
		opts := store.RedisOptions{
			Host:     cfg.RedisIP,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		logger.Printf("startup", "Connecting %d Redis clients to %s", cfg.ThreadPoolSize, opts.Addr())
		return store.OpenRedis(ctx, opts, cfg.ThreadPoolSize)
	case cfg.StorePath != "":
		logger.Printf("startup", "Opening local store at %s", cfg.StorePath)
		db, err := store.OpenPebble(cfg.StorePath, cfg.StoreCompress)
		if err != nil {
			return nil, err
		}
		return db.Handles(cfg.ThreadPoolSize), nil
	}
	logger.Printf("startup", "No store configured, ABIs are kept in memory only")
	return nil, nil
}

func serve(g *errgroup.Group, ctx context.Context, name, addr string, handler http.Handler) error {
	listener, err := server.SocketListen(addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Printf("startup", "%s listening on %s", name, addr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}

func printConfig(cfg *internal.Config) {
	logger.Printf("startup", "Processing:")
	logger.Printf("startup", "  thread-pool-size: %d", cfg.ThreadPoolSize)
	logger.Printf("startup", "  queue limit: %d", cfg.QueueLimit())
	logger.Printf("startup", "  stall-step: %v (max %v)", cfg.StallStep, cfg.StallMax)
	if cfg.CacheMaxEntries > 0 {
		logger.Printf("startup", "  cache-max-entries: %d", cfg.CacheMaxEntries)
	}

	logger.Printf("startup", "Store:")
	switch {
	case cfg.RedisIP != "":
		logger.Printf("startup", "  redis: %s:%d db %d", cfg.RedisIP, cfg.RedisPort, cfg.RedisDB)
	case cfg.StorePath != "":
		logger.Printf("startup", "  store-path: %s (compress: %v)", cfg.StorePath, cfg.StoreCompress)
	default:
		logger.Printf("startup", "  (none)")
	}

	logger.Printf("startup", "Listeners:")
	logger.Printf("startup", "  trace-listen: %s (ack every %d)", cfg.TraceListen, cfg.AckInterval)
	logger.Printf("startup", "  http-listen: %s", cfg.HTTPListen)
	logger.Printf("startup", "  http-socket: %s", cfg.HTTPSocket)
	logger.Printf("startup", "  metrics-listen: %s", cfg.MetricsListen)
	if cfg.PprofPort != "" {
		logger.Printf("startup", "  pprof-port: %s", cfg.PprofPort)
	}
}
