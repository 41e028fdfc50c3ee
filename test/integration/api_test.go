package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/buildcfg/internal/api"
	"github.com/eugenenazirov/buildcfg/internal/config"
	"github.com/eugenenazirov/buildcfg/internal/snapshot"
)

type project struct {
	root    string
	overlay string
}

func newProject(t *testing.T) project {
	t.Helper()

	root := t.TempDir()
	for _, dir := range []string{"src", "shared"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("create %s: %v", dir, err)
		}
	}
	p := project{root: root, overlay: filepath.Join(root, "buildcfg.yaml")}
	p.writeOverlay(t, "resolve:\n  alias:\n    \"@shared\": shared\n")
	return p
}

func (p project) writeOverlay(t *testing.T, body string) {
	t.Helper()

	if err := os.WriteFile(p.overlay, []byte(body), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
}

func newRouter(t *testing.T, p project) http.Handler {
	t.Helper()

	load := func() (config.BuildConfiguration, error) {
		return config.Load(&config.Overrides{Root: p.root, ConfigFile: p.overlay})
	}
	cfg, err := load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}

	store := snapshot.NewMemoryStore()
	if err := store.Set(cfg); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	handler := api.NewHandler(store, api.WithReloader(load))
	return api.NewRouter(handler, zaptest.NewLogger(t), api.WithRateLimit(0, 0))
}

func performRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestIntegrationFlow(t *testing.T) {
	p := newProject(t)
	handler := newRouter(t, p)

	rec := performRequest(t, handler, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from config, got %d", rec.Code)
	}
	var body struct {
		Config config.BuildConfiguration `json:"config"`
	}
	decode(t, rec, &body)
	if body.Config.Server.Port != 3000 || body.Config.Server.HMRPort != 3001 {
		t.Fatalf("unexpected server options %+v", body.Config.Server)
	}
	if body.Config.Aliases["@shared"] != filepath.Join(p.root, "shared") {
		t.Fatalf("expected overlay alias, got %v", body.Config.Aliases)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/resolve?specifier="+url.QueryEscape("@/main.tsx"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from resolve, got %d", rec.Code)
	}
	var resolved struct {
		Path string `json:"path"`
	}
	decode(t, rec, &resolved)
	if want := filepath.Join(p.root, "src", "main.tsx"); resolved.Path != want {
		t.Fatalf("expected %s, got %s", want, resolved.Path)
	}

	p.writeOverlay(t, "server:\n  port: 5173\n  hmr:\n    port: 24678\n")
	rec = performRequest(t, handler, http.MethodPost, "/api/reload")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from reload, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/config")
	decode(t, rec, &body)
	if body.Config.Server.Port != 5173 || body.Config.Server.HMRPort != 24678 {
		t.Fatalf("expected reloaded ports, got %+v", body.Config.Server)
	}
}

func TestIntegrationInvalidReloadKeepsSnapshot(t *testing.T) {
	p := newProject(t)
	handler := newRouter(t, p)

	p.writeOverlay(t, "server:\n  port: 4000\n  hmr:\n    port: 4000\n")
	rec := performRequest(t, handler, http.MethodPost, "/api/reload")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 from reload, got %d", rec.Code)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/config")
	var body struct {
		Config config.BuildConfiguration `json:"config"`
	}
	decode(t, rec, &body)
	if body.Config.Server.Port != 3000 {
		t.Fatalf("expected previous snapshot to be served, got %+v", body.Config.Server)
	}
}

func TestIntegrationPluginFailureIsReported(t *testing.T) {
	p := newProject(t)
	handler := newRouter(t, p)

	p.writeOverlay(t, "plugins:\n  - name: react\n    options:\n      jsxRuntime: preact\n")
	rec := performRequest(t, handler, http.MethodPost, "/api/reload")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 from reload, got %d", rec.Code)
	}

	var body struct {
		Details    string `json:"details"`
		Suggestion string `json:"suggestion"`
	}
	decode(t, rec, &body)
	if body.Suggestion != "plugin react" || !strings.Contains(body.Details, "[plugin:react]") {
		t.Fatalf("unexpected plugin error body %+v", body)
	}
}
