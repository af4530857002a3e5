// Command simfleetd is the fleet daemon process entrypoint: it owns a
// *fleet.Manager and exposes a thin status/metrics HTTP surface. The
// SPA/WebSocket transport layer that actually drives matches and sessions
// is an external collaborator (§1 Non-goals) — this daemon only makes the
// fleet directory and the Prometheus registry externally observable.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simfleet/simfleet/internal/config"
	"github.com/simfleet/simfleet/internal/fleet"
	"github.com/simfleet/simfleet/internal/logging"
	"github.com/simfleet/simfleet/internal/simmetrics"
)

func main() {
	cfg := config.Load()
	log := logging.New(logging.Config{Level: "info", Format: "text"})
	mtr := simmetrics.New()
	manager := fleet.New(log, mtr)

	router := buildRouter(manager)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("simfleetd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("HTTP shutdown error")
	}
	manager.ShutdownAll()
	log.Info("simfleetd stopped")
}

func buildRouter(manager *fleet.Manager) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/containers", listContainersHandler(manager)).Methods(http.MethodGet)
	router.HandleFunc("/containers/{id}/metrics", containerMetricsHandler(manager)).Methods(http.MethodGet)
	return router
}

type containerSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Tick   int64  `json:"currentTick"`
}

func listContainersHandler(manager *fleet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		containers := manager.List()
		out := make([]containerSummary, 0, len(containers))
		for _, c := range containers {
			out = append(out, containerSummary{ID: c.ID, Name: c.Name, Status: string(c.Status()), Tick: c.Tick()})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type containerMetrics struct {
	ContainerID       int64   `json:"containerId"`
	CurrentTick       int64   `json:"currentTick"`
	TotalEntities     int     `json:"totalEntities"`
	MatchCount        int     `json:"matchCount"`
	ModuleCount       int     `json:"moduleCount"`
	CommandQueueSize  int     `json:"commandQueueSize"`
	EcsUsedBytes      int64   `json:"ecsUsedBytes"`
	EcsMaxBytes       int64   `json:"ecsMaxBytes"`
	ProcessUsedMemory uint64  `json:"processUsedMemory"`
	ProcessMaxMemory  uint64  `json:"processMaxMemory"`
}

func containerMetricsHandler(manager *fleet.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := mux.Vars(r)["id"]
		id, err := parseContainerID(idStr)
		if err != nil {
			http.Error(w, "invalid container id", http.StatusBadRequest)
			return
		}
		c, err := manager.Get(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		stats := c.GetStats()
		writeJSON(w, http.StatusOK, containerMetrics{
			ContainerID:       c.ID,
			CurrentTick:       c.Tick(),
			TotalEntities:     stats.EntityCount,
			MatchCount:        stats.MatchCount,
			ModuleCount:       stats.ModuleCount,
			CommandQueueSize:  c.Queue().Len(),
			EcsUsedBytes:      stats.EcsUsedBytes,
			EcsMaxBytes:       stats.EcsMaxBytes,
			ProcessUsedMemory: stats.ProcessUsedMemory,
			ProcessMaxMemory:  stats.ProcessMaxMemory,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseContainerID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
