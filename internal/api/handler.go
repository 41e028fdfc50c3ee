package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eugenenazirov/buildcfg/internal/config"
	"github.com/eugenenazirov/buildcfg/internal/snapshot"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Reloader produces a fresh configuration, typically by re-running the loader
// with the overrides the process started with.
type Reloader func() (config.BuildConfiguration, error)

// Handler serves the current configuration snapshot over HTTP.
type Handler struct {
	store    snapshot.Store
	reloader Reloader
	metrics  *Metrics

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMetrics sets the collector used for request and reload counters.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithReloader enables POST /api/reload.
func WithReloader(reloader Reloader) HandlerOption {
	return func(h *Handler) {
		h.reloader = reloader
	}
}

// NewHandler constructs a Handler reading from store.
func NewHandler(store snapshot.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store: store,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return h
}

// Reload runs the reloader and swaps the snapshot on success. On failure the
// previous snapshot stays in place.
func (h *Handler) Reload() (config.BuildConfiguration, error) {
	if h.reloader == nil {
		return config.BuildConfiguration{}, errReloadDisabled
	}

	cfg, err := h.reloader()
	if err != nil {
		h.metrics.observeReload(false)
		return config.BuildConfiguration{}, err
	}
	if err := h.store.Set(cfg); err != nil {
		h.metrics.observeReload(false)
		return config.BuildConfiguration{}, err
	}
	h.metrics.observeReload(true)
	return cfg, nil
}

var errReloadDisabled = errors.New("reload is not enabled")

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if _, _, err := h.store.Get(); err != nil {
		status = "empty"
	}
	resp := healthResponse{
		Status:    status,
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, loadedAt, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Config: cfg, LoadedAt: loadedAt})
}

func (h *Handler) handleGetAliases(w http.ResponseWriter, _ *http.Request) {
	cfg, _, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, aliasesResponse{Aliases: cfg.Aliases})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	specifier := strings.TrimSpace(r.URL.Query().Get("specifier"))
	if specifier == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "specifier query parameter is required")
		return
	}

	cfg, _, ok := h.current(w)
	if !ok {
		return
	}

	path, matched := cfg.Resolve(specifier)
	if !matched {
		writeError(w, http.StatusNotFound, "No alias", "no alias matches "+specifier, "bare and relative specifiers are left to the bundler")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Specifier: specifier, Path: path})
}

func (h *Handler) handleReload(w http.ResponseWriter, _ *http.Request) {
	cfg, err := h.Reload()
	if err != nil {
		var cfgErr *config.ConfigurationError
		var pluginErr *config.PluginInitError
		switch {
		case errors.Is(err, errReloadDisabled):
			writeError(w, http.StatusNotImplemented, "Reload disabled", err.Error())
		case errors.As(err, &pluginErr):
			writeError(w, http.StatusUnprocessableEntity, "Plugin initialisation failed", err.Error(), "plugin "+pluginErr.Plugin)
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusUnprocessableEntity, "Invalid configuration", err.Error(), "the previous configuration is still being served")
		default:
			writeInternalError(w, err)
		}
		return
	}

	_, loadedAt, _ := h.store.Get()
	writeJSON(w, http.StatusOK, configResponse{Config: cfg, LoadedAt: loadedAt, Message: "Configuration reloaded"})
}

func (h *Handler) current(w http.ResponseWriter) (config.BuildConfiguration, time.Time, bool) {
	cfg, loadedAt, err := h.store.Get()
	if err != nil {
		if errors.Is(err, snapshot.ErrEmpty) {
			writeError(w, http.StatusServiceUnavailable, "Not ready", err.Error())
			return config.BuildConfiguration{}, time.Time{}, false
		}
		writeInternalError(w, err)
		return config.BuildConfiguration{}, time.Time{}, false
	}
	return cfg, loadedAt, true
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type configResponse struct {
	Config   config.BuildConfiguration `json:"config"`
	LoadedAt time.Time                 `json:"loadedAt"`
	Message  string                    `json:"message,omitempty"`
}

type aliasesResponse struct {
	Aliases map[string]string `json:"aliases"`
}

type resolveResponse struct {
	Specifier string `json:"specifier"`
	Path      string `json:"path"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
