package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmhost/internal/engine"
	"llmhost/internal/manager"
	"llmhost/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Load(ctx context.Context, req types.LoadRequest) (types.LoadedModel, error)
	Unload()
	Cancel() error
	Chat(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error
	Generate(ctx context.Context, req types.ChatRequest, onProgress engine.ProgressFunc) (manager.Completion, error)
}

type api struct {
	svc Service
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints; streaming content types are left alone.
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	a := &api{svc: svc}
	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Get("/models", a.models)
	r.Get("/status", a.status)
	r.Post("/load", a.load)
	r.Post("/unload", a.unload)
	r.Post("/chat", a.chat)
	r.Post("/cancel", a.cancel)
	r.Get("/v1/models", a.openAIModels)
	r.Post("/v1/chat/completions", a.openAIChat)

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if swaggerEnabled {
		MountSwagger(r)
	}
	return r
}

// healthz godoc
// @Summary      Liveness probe
// @Tags         probes
// @Produce      plain
// @Success      200 {string} string "ok"
// @Router       /healthz [get]
func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz godoc
// @Summary      Readiness probe; ready once a model is loaded and usable
// @Tags         probes
// @Produce      plain
// @Success      200 {string} string "ready"
// @Failure      503 {string} string "loading"
// @Router       /readyz [get]
func (a *api) readyz(w http.ResponseWriter, r *http.Request) {
	if a.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("loading"))
}

// models godoc
// @Summary      List models found in the models directory
// @Tags         models
// @Produce      json
// @Success      200 {object} types.ModelsResponse
// @Router       /models [get]
func (a *api) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.ModelsResponse{Models: a.svc.ListModels()})
}

// status godoc
// @Summary      Engine, model, queue and device status
// @Tags         status
// @Produce      json
// @Success      200 {object} types.StatusResponse
// @Router       /status [get]
func (a *api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.svc.Status())
}

// load godoc
// @Summary      Load a model, replacing the current one
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request body types.LoadRequest true "Load request"
// @Success      200 {object} types.LoadedModel
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      422 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /load [post]
func (a *api) load(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	if req.GPUOffloadPercent != nil && (*req.GPUOffloadPercent < 0 || *req.GPUOffloadPercent > 100) {
		writeJSONError(w, http.StatusBadRequest, "gpu_offload_percent must be within 0..100")
		return
	}
	rl := newReqLog(r, req.Model)
	rl.start("load")
	start := time.Now()
	lm, err := a.svc.Load(r.Context(), req)
	if err != nil {
		status := writeServiceError(w, err)
		rl.end("load", status, time.Since(start).Seconds(), err)
		return
	}
	writeJSON(w, lm)
	rl.end("load", http.StatusOK, time.Since(start).Seconds(), nil)
}

// unload godoc
// @Summary      Unload the model; also recovers an engine poisoned by a native fault
// @Tags         models
// @Produce      json
// @Success      200 {object} types.MessageResponse
// @Router       /unload [post]
func (a *api) unload(w http.ResponseWriter, r *http.Request) {
	a.svc.Unload()
	writeJSON(w, types.MessageResponse{Status: "unloaded"})
}

// cancel godoc
// @Summary      Cancel the running generation
// @Tags         inference
// @Produce      json
// @Success      200 {object} types.MessageResponse
// @Failure      409 {object} types.ErrorResponse
// @Router       /cancel [post]
func (a *api) cancel(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Cancel(); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, types.MessageResponse{Status: "cancel requested"})
}

// chat godoc
// @Summary      Chat completion streamed as NDJSON
// @Description  Streams one types.ProgressLine per progress event followed by a final types.ChatDone.
// @Tags         inference
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request body types.ChatRequest true "Chat request"
// @Success      200 {object} types.ChatDone
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse
// @Failure      413 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      500 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /chat [post]
func (a *api) chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	rl := newReqLog(r, req.Model)
	writer := io.Writer(&countingWriter{w: w, format: "ndjson"})
	if rl.lvl >= LevelDebug {
		writer = io.MultiWriter(writer, &loggingLineWriter{rid: rl.rid})
	}
	rl.start("chat")
	start := time.Now()

	ctx, cancel := requestContext(r)
	defer cancel()
	err := a.svc.Chat(ctx, req, writer, flush)
	if err == nil {
		rl.end("chat", http.StatusOK, time.Since(start).Seconds(), nil)
		return
	}
	if manager.IsStreamed(err) {
		// already reported inside the stream
		rl.end("chat", http.StatusOK, time.Since(start).Seconds(), err)
		return
	}
	// If the client disconnected or the server is stopping, just return.
	if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
		rl.end("chat", 499, time.Since(start).Seconds(), err)
		return
	}
	status := writeServiceError(w, err)
	rl.end("chat", status, time.Since(start).Seconds(), err)
}

// requestContext joins the server base context with the request context so
// shutdown cancels work too, and applies the configured infer timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if inferTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, time.Duration(inferTimeout)*time.Second)
	return tctx, func() { tcancel(); cancel() }
}

// decodeJSON enforces the JSON content type and body limit and decodes the
// body into v. It writes the error response itself and reports success.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	// Limit body size (configurable, default 1MiB)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies also end up here; report 400 without size details.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// countingWriter counts streamed writes for metrics.
type countingWriter struct {
	w      io.Writer
	format string
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err == nil {
		streamedChunksTotal.WithLabelValues(c.format).Inc()
	}
	return n, err
}
