package snapshot

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eugenenazirov/buildcfg/internal/config"
	"github.com/eugenenazirov/buildcfg/internal/plugin"
)

func sampleConfig(root string) config.BuildConfiguration {
	return config.BuildConfiguration{
		Root:    root,
		Plugins: []plugin.Descriptor{{Name: plugin.ReactName}},
		Aliases: map[string]string{"@": root + "/src"},
		Server: config.ServerOptions{
			Host:    "0.0.0.0",
			Port:    3000,
			HMRPort: 3001,
			Watch:   config.WatchOptions{UsePolling: true, PollIntervalMs: 1000},
		},
		CacheDir: "/app/node_modules/.vite",
		Test: config.TestOptions{
			Globals:     true,
			Environment: config.EnvironmentDOM,
			SetupFile:   "./src/test/setup.ts",
		},
	}
}

func TestGetBeforeSet(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if _, _, err := store.Get(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestSetRejectsEmptySnapshot(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if err := store.Set(config.BuildConfiguration{}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestSetAndGetReturnCopies(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return now }))

	cfg := sampleConfig("/app")
	if err := store.Set(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// mutating the value passed to Set must not leak into the store
	cfg.Aliases["@"] = "/tampered"

	got, loadedAt, err := store.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loadedAt.Equal(now) {
		t.Fatalf("expected loadedAt %s, got %s", now, loadedAt)
	}
	if got.Aliases["@"] != "/app/src" {
		t.Fatalf("expected stored alias to be isolated, got %s", got.Aliases["@"])
	}

	got.Aliases["@"] = "/tampered-again"
	again, _, _ := store.Get()
	if again.Aliases["@"] != "/app/src" {
		t.Fatalf("expected defensive copy on Get, got %s", again.Aliases["@"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if err := store.Set(sampleConfig("/app")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Set(sampleConfig(fmt.Sprintf("/app%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			if _, _, err := store.Get(); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
}
