package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/chat"
	"github.com/sells-group/outlet-cli/internal/config"
	"github.com/sells-group/outlet-cli/internal/geo"
	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/internal/pipeline"
)

var servePort int

const shutdownTimeout = 10 * time.Second

// runner is the part of the pipeline the HTTP surface triggers.
type runner interface {
	RunQuery(ctx context.Context) (*pipeline.Result, error)
	RunPersisted(ctx context.Context) (*pipeline.Result, error)
}

type outletLister interface {
	ListOutlets(ctx context.Context) ([]model.StoredOutlet, error)
}

type answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// handlers serves the HTTP routes. Any collaborator may be nil; its routes
// then answer 503.
type handlers struct {
	runner   runner
	outlets  outletLister
	answerer answerer
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for the outlet map and chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		h := &handlers{runner: env.Pipeline}
		if env.Store != nil {
			h.outlets = env.Store
		}
		if cfg.Anthropic.Key != "" {
			h.answerer = newAnswerer(cfg)
		} else {
			zap.L().Warn("anthropic.key not set, /chat is disabled")
		}

		return startServer(ctx, buildRouter(h, cfg.Server.AllowedOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is done, then shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// buildRouter wires the routes, CORS for the map frontend and JSON panic
// recovery.
func buildRouter(h *handlers, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", h.welcome)
	r.Get("/health", h.health)
	r.Get("/run-script", h.runScript)
	r.Get("/scrape", h.scrape)
	r.Get("/outlets", h.listOutlets)
	r.Get("/outlets/overlaps", h.overlaps)
	r.Get("/chat/{query}", h.chat)
	return r
}

func (h *handlers) welcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the outlet scraper API"})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) runScript(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	res, err := h.runner.RunPersisted(r.Context())
	if err != nil {
		if res == nil {
			zap.L().Error("run-script: pipeline failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		zap.L().Error("run-script: persist failed", zap.String("run_id", res.RunID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"run_id":  res.RunID,
			"outlets": len(res.Outlets),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Scraper executed successfully",
		"run_id":    res.RunID,
		"persisted": res.Persisted,
		"enrich":    res.Enrich,
	})
}

func (h *handlers) scrape(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	res, err := h.runner.RunQuery(r.Context())
	if err != nil {
		zap.L().Error("scrape: pipeline failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	outlets := res.Outlets
	if outlets == nil {
		outlets = []model.Outlet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outlets": outlets})
}

func (h *handlers) listOutlets(w http.ResponseWriter, r *http.Request) {
	stored, ok := h.loadStored(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *handlers) overlaps(w http.ResponseWriter, r *http.Request) {
	radius := geo.DefaultRadiusKM
	if raw := r.URL.Query().Get("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "radius_km must be a positive number")
			return
		}
		radius = v
	}

	stored, ok := h.loadStored(w, r)
	if !ok {
		return
	}
	outlets := make([]model.Outlet, 0, len(stored))
	for i := range stored {
		outlets = append(outlets, stored[i].Outlet())
	}
	writeJSON(w, http.StatusOK, geo.FindOverlaps(outlets, radius))
}

func (h *handlers) loadStored(w http.ResponseWriter, r *http.Request) ([]model.StoredOutlet, bool) {
	if h.outlets == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return nil, false
	}
	stored, err := h.outlets.ListOutlets(r.Context())
	if err != nil {
		zap.L().Error("list outlets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list outlets")
		return nil, false
	}
	if stored == nil {
		stored = []model.StoredOutlet{}
	}
	return stored, true
}

func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	if h.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}
	query := chi.URLParam(r, "query")
	if q, err := url.PathUnescape(query); err == nil {
		query = q
	}
	answer, err := h.answerer.Answer(r.Context(), query)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
	case errors.Is(err, chat.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "query is required")
	case errors.Is(err, chat.ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, "no outlet snapshot; run `outlet-cli export` first")
	default:
		zap.L().Error("chat: answer failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to answer question")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// recoverJSON turns handler panics into a JSON 500 without a stack trace.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint
				panic(rec)
			}
			zap.L().Error("handler panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
