package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/eugenenazirov/buildcfg/internal/plugin"
)

// EnvPrefix prefixes every environment variable the loader reads. Nested keys
// are separated by a double underscore and matched case-insensitively:
// BUILDCFG_SERVER__HMR__PORT, BUILDCFG_SERVER__WATCH__USEPOLLING.
const EnvPrefix = "BUILDCFG_"

const (
	envLevelSeparator = "__"
	defaultEnvFile    = ".env"
)

// overlay mirrors the YAML overlay file, keyed like the vite config it replaces
// (cacheDir, server.watch.usePolling, test.setupFiles). Pointer fields
// distinguish an unset key from an explicit zero value.
type overlay struct {
	Plugins []plugin.Descriptor `koanf:"plugins"`
	Resolve struct {
		Alias map[string]string `koanf:"alias"`
	} `koanf:"resolve"`
	Server struct {
		Host *string `koanf:"host"`
		Port *int    `koanf:"port"`
		HMR  struct {
			Port *int `koanf:"port"`
		} `koanf:"hmr"`
		Watch struct {
			UsePolling *bool `koanf:"usePolling"`
			Interval   *int  `koanf:"interval"`
		} `koanf:"watch"`
	} `koanf:"server"`
	CacheDir *string `koanf:"cacheDir"`
	Test     struct {
		Globals     *bool   `koanf:"globals"`
		Environment *string `koanf:"environment"`
		SetupFiles  *string `koanf:"setupFiles"`
	} `koanf:"test"`
}

// readOverlay merges the YAML overlay, the dotenv file and the process
// environment into one overlay value. Later sources win.
func readOverlay(root string, overrides *Overrides) (*overlay, error) {
	k := koanf.New(".")

	if overrides.ConfigFile != "" {
		path := absUnder(root, overrides.ConfigFile)
		if err := k.Load(kfile.Provider(path), yaml.Parser()); err != nil {
			return nil, configErrorf("config", err, "cannot load overlay %s", path)
		}
	}

	if err := loadDotEnv(k, root, overrides.EnvFile); err != nil {
		return nil, err
	}

	if err := k.Load(kenv.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, configErrorf("env", err, "cannot read environment")
	}

	return decodeOverlay(k)
}

// decodeOverlay unmarshals k into an overlay and rejects keys that no field
// consumed, so a misspelt setting never falls back to the default silently.
func decodeOverlay(k *koanf.Koanf) (*overlay, error) {
	var (
		ov overlay
		md mapstructure.Metadata
	)
	err := k.UnmarshalWithConf("", &ov, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Metadata:         &md,
			Result:           &ov,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, configErrorf("config", err, "cannot decode overlay")
	}

	if len(md.Unused) > 0 {
		unused := slices.Clone(md.Unused)
		slices.Sort(unused)
		return nil, configErrorf(unused[0], nil, "unknown setting (unrecognised keys: %s)", strings.Join(unused, ", "))
	}
	return &ov, nil
}

// loadDotEnv reads dotenv values into k without touching the process
// environment, which is loaded afterwards and wins. A missing default file is
// ignored; a missing explicit one is not.
func loadDotEnv(k *koanf.Koanf, root, explicit string) error {
	path := filepath.Join(root, defaultEnvFile)
	if explicit != "" {
		path = absUnder(root, explicit)
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		if explicit == "" && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return configErrorf("envFile", err, "cannot read %s", path)
	}

	for name, value := range vars {
		key := envKey(name)
		if key == "" {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return configErrorf("envFile", err, "cannot apply %s", name)
		}
	}
	return nil
}

// camelSegments restores the overlay spelling of key segments that environment
// variable names can only carry in a single case.
var camelSegments = map[string]string{
	"cachedir":   "cacheDir",
	"usepolling": "usePolling",
	"setupfiles": "setupFiles",
}

// envKey maps BUILDCFG_SERVER__WATCH__USEPOLLING to server.watch.usePolling.
// Names without the prefix map to the empty string, which koanf skips.
func envKey(name string) string {
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	segments := strings.Split(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), envLevelSeparator)
	for i, segment := range segments {
		if camel, ok := camelSegments[segment]; ok {
			segments[i] = camel
		}
	}
	return strings.Join(segments, ".")
}

func applyOverlay(cfg *BuildConfiguration, ov *overlay) {
	if ov == nil {
		return
	}

	if ov.Plugins != nil {
		cfg.Plugins = ov.Plugins
	}
	for alias, target := range ov.Resolve.Alias {
		cfg.Aliases[alias] = target
	}

	if ov.Server.Host != nil {
		cfg.Server.Host = strings.TrimSpace(*ov.Server.Host)
	}
	if ov.Server.Port != nil {
		cfg.Server.Port = *ov.Server.Port
	}
	if ov.Server.HMR.Port != nil {
		cfg.Server.HMRPort = *ov.Server.HMR.Port
	}
	if ov.Server.Watch.UsePolling != nil {
		cfg.Server.Watch.UsePolling = *ov.Server.Watch.UsePolling
	}
	if ov.Server.Watch.Interval != nil {
		cfg.Server.Watch.PollIntervalMs = *ov.Server.Watch.Interval
	}

	if ov.CacheDir != nil {
		cfg.CacheDir = strings.TrimSpace(*ov.CacheDir)
	}

	if ov.Test.Globals != nil {
		cfg.Test.Globals = *ov.Test.Globals
	}
	if ov.Test.Environment != nil {
		cfg.Test.Environment = Environment(strings.TrimSpace(*ov.Test.Environment))
	}
	if ov.Test.SetupFiles != nil {
		cfg.Test.SetupFile = strings.TrimSpace(*ov.Test.SetupFiles)
	}
}
