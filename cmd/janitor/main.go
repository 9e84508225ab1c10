// janitor runs the stale temporary-directory sweeper as a standalone
// process, alongside a small HTTP surface for inspecting its lease
// registry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"mergetree-writer/internal/config"
	"mergetree-writer/internal/janitor"
	"mergetree-writer/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	port := flag.Int("port", 8092, "status server port")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level)).WithComponent("janitor")

	registry, err := janitor.NewRegistry(cfg.Catalog.SqliteConfig.Path + ".janitor")
	if err != nil {
		logger.Fatal("open janitor registry", "error", err.Error())
	}
	defer func() { _ = registry.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sweeper := janitor.NewSweeper(registry, cfg.Janitor.SweepInterval, cfg.Janitor.StaleThreshold, os.RemoveAll, logger)
	go sweeper.Run(ctx)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	router.HandleFunc("/stale", func(w http.ResponseWriter, r *http.Request) {
		stale, err := registry.ListStale(r.Context(), time.Now().Add(-cfg.Janitor.StaleThreshold))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stale)
	}).Methods(http.MethodGet)

	router.HandleFunc("/leases", func(w http.ResponseWriter, r *http.Request) {
		dir := r.URL.Query().Get("dir")
		if dir == "" {
			http.Error(w, "missing dir query parameter", http.StatusBadRequest)
			return
		}
		if err := registry.Release(r.Context(), dir); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("janitor status server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("janitor status server error", "error", err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("janitor status server shutdown error", "error", err.Error())
	}
}
