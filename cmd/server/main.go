// server is the mergetree insert-path writer's main binary: it loads
// configuration, wires every collaborator (catalog, storage policy,
// janitor, vector index, counters), and serves the admin HTTP API and
// the event-stream WebSocket until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"mergetree-writer/internal/adminapi"
	"mergetree-writer/internal/catalog"
	"mergetree-writer/internal/config"
	"mergetree-writer/internal/counter"
	"mergetree-writer/internal/eventstream"
	"mergetree-writer/internal/janitor"
	"mergetree-writer/internal/logging"
	"mergetree-writer/internal/storagepolicy"
	"mergetree-writer/internal/vectorindex"
	"mergetree-writer/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level)).WithComponent("server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, eventHub, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build server", "error", err.Error())
	}
	defer cleanup()

	go eventHub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if err := eventstream.HandleUpgrade(ctx, eventHub, w, r, r.RemoteAddr); err != nil {
			logger.Warn("eventstream upgrade failed", "error", err.Error())
		}
	})

	addr := fmt.Sprintf(":%d", cfg.AdminAPI.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.AdminAPI.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.AdminAPI.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("admin api listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin api server error", "error", err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin api shutdown error", "error", err.Error())
	}
}

// buildServer wires every long-lived collaborator the admin API needs
// from cfg, returning a cleanup func that closes them in reverse order.
func buildServer(ctx context.Context, cfg *config.Config, logger logging.Logger) (*adminapi.Server, *eventstream.Hub, func(), error) {
	var closers []func() error

	schemas, err := catalog.LoadTableSchemas(cfg.Catalog.SchemaPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load table schemas: %w", err)
	}

	store, err := openCatalog(cfg, schemas, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	closers = append(closers, store.Close)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, rdb.Close)
	}

	policy, err := storagepolicy.LoadPolicy(cfg.StoragePolicy.PolicyPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load storage policy: %w", err)
	}
	var reserver *storagepolicy.Reserver
	if rdb != nil {
		cache := storagepolicy.NewRedisFreeSpaceCache(rdb, cfg.StoragePolicy.FreeSpaceCacheTTL, logger)
		reserver, err = storagepolicy.NewReserver(policy, cache, logger)
	} else {
		reserver, err = storagepolicy.NewReserver(policy, storagepolicy.NoCache{}, logger)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build storage reserver: %w", err)
	}

	vectorSink, err := vectorindex.NewSink(cfg.VectorIndex, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build vector sink: %w", err)
	}
	closers = append(closers, vectorSink.Close)

	janitorRegistry, err := janitor.NewRegistry(cfg.Catalog.SqliteConfig.Path + ".janitor")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open janitor registry: %w", err)
	}
	closers = append(closers, janitorRegistry.Close)

	sweeper := janitor.NewSweeper(janitorRegistry, cfg.Janitor.SweepInterval, cfg.Janitor.StaleThreshold, os.RemoveAll, logger)
	go sweeper.Run(ctx)

	tempIndex := counter.NewTempIndex(0, rdb, "mergetree:temp_index", logger)
	counters := &counter.EventCounters{}
	eventHub := eventstream.NewHub(logger)

	srv := adminapi.New(store, reserver, janitorRegistry, vectorSink, tempIndex, counters, eventHub, cfg.Writer, logger)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup error", "error", err.Error())
			}
		}
	}
	return srv, eventHub, cleanup, nil
}

// openCatalog selects the sqlite or postgres catalog.Store per
// cfg.Catalog.Driver.
func openCatalog(cfg *config.Config, schemas map[string]types.TableSchema, logger logging.Logger) (catalog.Store, error) {
	switch cfg.Catalog.Driver {
	case "postgres":
		return catalog.NewPostgresStore(cfg.Catalog.PostgresConfig, schemas, logger)
	case "sqlite", "":
		return catalog.NewSQLiteStore(cfg.Catalog.SqliteConfig.Path, schemas, logger)
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.Catalog.Driver)
	}
}
