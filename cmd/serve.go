package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reel-importer/internal/manifest"
	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/monitoring"
	"github.com/sells-group/reel-importer/internal/store"
)

var servePort int

// runReader is the store subset the API reads.
type runReader interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListOutcomes(ctx context.Context, runID string) ([]model.Outcome, error)
}

// importer creates an import run and then executes it.
type importer interface {
	Begin(ctx context.Context) (string, error)
	RunAs(ctx context.Context, runID string, cands []model.Candidate) (*model.RunSummary, error)
}

// apiServer serves run history, stats and metrics, and can start imports.
// At most one import runs at a time.
type apiServer struct {
	ctx         context.Context
	runs        runReader
	imp         importer
	metrics     http.Handler
	manifestDir string

	busy atomic.Bool
	wg   sync.WaitGroup
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initImport(ctx, runOverrides{})
		if err != nil {
			return err
		}
		defer env.Close()

		s := &apiServer{
			ctx:         ctx,
			runs:        env.Store,
			imp:         env.Pipeline,
			metrics:     env.Metrics.Handler(),
			manifestDir: cfg.Batch.ManifestDir,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			s.wg.Wait()
			return err
		})
		return g.Wait()
	},
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Post("/runs", s.startRun)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/stats", s.stats)
	})
	return r
}

func (s *apiServer) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	outcomes, err := s.runs.ListOutcomes(r.Context(), id)
	if err != nil {
		zap.L().Error("api: list outcomes failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list outcomes failed")
		return
	}
	writeJSON(w, http.StatusOK, runDetail{Run: run, Outcomes: outcomes})
}

func (s *apiServer) stats(w http.ResponseWriter, r *http.Request) {
	snap, err := monitoring.NewCollector(s.runs).Collect(r.Context(), queryInt(r, "hours", 24))
	if err != nil {
		zap.L().Error("api: collect stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect stats failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// startRun imports the posted candidates, or the manifest directory when
// none are posted. The run continues after the response is written.
func (s *apiServer) startRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates []model.Candidate `json:"candidates"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	cands := req.Candidates
	if len(cands) == 0 {
		loaded, err := manifest.Load(s.manifestDir)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load manifests failed")
			return
		}
		cands = loaded
	}
	if len(cands) == 0 {
		writeError(w, http.StatusBadRequest, "no candidates")
		return
	}

	if s.imp == nil {
		writeError(w, http.StatusServiceUnavailable, "importer not configured")
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "an import is already running")
		return
	}

	runID, err := s.imp.Begin(r.Context())
	if err != nil {
		s.busy.Store(false)
		zap.L().Error("api: create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		summary, err := s.imp.RunAs(s.ctx, runID, cands)
		if err != nil {
			zap.L().Error("api: import failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		zap.L().Info("api: import complete",
			zap.String("run_id", summary.RunID),
			zap.Int("successful", summary.Successful),
			zap.Int("failed", summary.Failed),
		)
	}()

	w.Header().Set("Location", "/v1/runs/"+runID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "accepted",
		"run_id":     runID,
		"candidates": len(cands),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
