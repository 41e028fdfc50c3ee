package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/eugenenazirov/buildcfg/internal/plugin"
)

const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 3000
	defaultHMRPort        = 3001
	defaultPollIntervalMs = 1000
	defaultCacheDir       = "/app/node_modules/.vite"
	defaultSetupFile      = "./src/test/setup.ts"
	rootAliasTarget       = "./src"
)

// RootAlias is the alias every project gets for its source directory.
const RootAlias = "@"

// Environment selects the execution environment of the test harness.
type Environment string

const (
	// EnvironmentDOM runs tests against a simulated browser DOM.
	EnvironmentDOM Environment = "jsdom"
	// EnvironmentNode runs tests in a plain Node-like runtime.
	EnvironmentNode Environment = "node"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	return e == EnvironmentDOM || e == EnvironmentNode
}

// BuildConfiguration is the resolved configuration handed to the external
// bundler, dev server and test harness. It is built once by Load and treated
// as read-only afterwards; use Clone to hand it across goroutines.
type BuildConfiguration struct {
	Root     string              `json:"root" yaml:"root" jsonschema:"description=Absolute project root relative paths were resolved against"`
	Plugins  []plugin.Descriptor `json:"plugins" yaml:"plugins"`
	Aliases  map[string]string   `json:"aliases" yaml:"aliases" jsonschema:"description=Alias prefix to absolute directory"`
	Server   ServerOptions       `json:"server" yaml:"server"`
	CacheDir string              `json:"cacheDir" yaml:"cacheDir"`
	Test     TestOptions         `json:"test" yaml:"test"`
}

// ServerOptions holds the dev-server networking settings.
type ServerOptions struct {
	Host    string       `json:"host" yaml:"host"`
	Port    int          `json:"port" yaml:"port" jsonschema:"minimum=1,maximum=65535"`
	HMRPort int          `json:"hmrPort" yaml:"hmrPort" jsonschema:"minimum=1,maximum=65535"`
	Watch   WatchOptions `json:"watch" yaml:"watch"`
}

// WatchOptions configures how the dev server detects file changes.
type WatchOptions struct {
	UsePolling     bool `json:"usePolling" yaml:"usePolling"`
	PollIntervalMs int  `json:"pollIntervalMs" yaml:"pollIntervalMs" jsonschema:"minimum=1"`
}

// Interval returns the poll interval as a duration.
func (w WatchOptions) Interval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

// TestOptions configures the external test harness.
type TestOptions struct {
	Globals     bool        `json:"globals" yaml:"globals"`
	Environment Environment `json:"environment" yaml:"environment" jsonschema:"enum=jsdom,enum=node"`
	SetupFile   string      `json:"setupFile" yaml:"setupFile"`
}

// Clone returns a deep copy of c.
func (c BuildConfiguration) Clone() BuildConfiguration {
	out := c
	out.Plugins = plugin.CloneDescriptors(c.Plugins)
	out.Aliases = maps.Clone(c.Aliases)
	return out
}

// Overrides carries the optional inputs to Load. A nil *Overrides loads the
// literal defaults against the working directory.
type Overrides struct {
	// Root is the project root; empty means the working directory.
	Root string
	// ConfigFile is an optional YAML overlay.
	ConfigFile string
	// EnvFile is an optional dotenv file; empty means <root>/.env when present.
	EnvFile string

	Host    *string
	Port    *int
	HMRPort *int
}

// SourceFiles lists the overlay and dotenv files Load reads for o, resolved
// against the project root. The dotenv file is listed even when it is absent.
func (o *Overrides) SourceFiles() ([]string, error) {
	if o == nil {
		o = &Overrides{}
	}

	root := o.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, configErrorf("root", err, "cannot determine working directory")
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, configErrorf("root", err, "cannot resolve %q", root)
	}

	files := make([]string, 0, 2)
	if o.ConfigFile != "" {
		files = append(files, absUnder(abs, o.ConfigFile))
	}
	envFile := defaultEnvFile
	if o.EnvFile != "" {
		envFile = o.EnvFile
	}
	return append(files, absUnder(abs, envFile)), nil
}

// Loader builds BuildConfiguration values.
type Loader struct {
	registry *plugin.Registry
	getwd    func() (string, error)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRegistry sets the plugin registry used to initialise descriptors.
func WithRegistry(r *plugin.Registry) LoaderOption {
	return func(l *Loader) {
		l.registry = r
	}
}

// WithWorkingDir overrides how the default project root is determined.
func WithWorkingDir(getwd func() (string, error)) LoaderOption {
	return func(l *Loader) {
		l.getwd = getwd
	}
}

// NewLoader returns a Loader using the built-in plugins and os.Getwd.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		registry: plugin.DefaultRegistry(),
		getwd:    os.Getwd,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load is NewLoader().Load(overrides).
func Load(overrides *Overrides) (BuildConfiguration, error) {
	return NewLoader().Load(overrides)
}

// Load resolves the configuration. Sources are applied with precedence
// CLI overrides > process environment > dotenv file > YAML overlay > defaults.
// The result is either fully valid or the zero value with an error.
func (l *Loader) Load(overrides *Overrides) (BuildConfiguration, error) {
	if overrides == nil {
		overrides = &Overrides{}
	}

	root, err := l.projectRoot(overrides.Root)
	if err != nil {
		return BuildConfiguration{}, err
	}

	cfg := defaultConfig()
	cfg.Root = root

	ov, err := readOverlay(root, overrides)
	if err != nil {
		return BuildConfiguration{}, err
	}
	applyOverlay(&cfg, ov)
	applyCLIOverrides(&cfg, overrides)

	if err := resolvePaths(&cfg); err != nil {
		return BuildConfiguration{}, err
	}

	if err := validateConfig(cfg); err != nil {
		return BuildConfiguration{}, err
	}

	if err := l.initPlugins(cfg); err != nil {
		return BuildConfiguration{}, err
	}

	return cfg, nil
}

// defaultConfig returns the literal defaults, paths still relative.
func defaultConfig() BuildConfiguration {
	return BuildConfiguration{
		Plugins: []plugin.Descriptor{{Name: plugin.ReactName}},
		Aliases: map[string]string{RootAlias: rootAliasTarget},
		Server: ServerOptions{
			Host:    defaultHost,
			Port:    defaultPort,
			HMRPort: defaultHMRPort,
			Watch: WatchOptions{
				UsePolling:     true,
				PollIntervalMs: defaultPollIntervalMs,
			},
		},
		CacheDir: defaultCacheDir,
		Test: TestOptions{
			Globals:     true,
			Environment: EnvironmentDOM,
			SetupFile:   defaultSetupFile,
		},
	}
}

func (l *Loader) projectRoot(explicit string) (string, error) {
	root := explicit
	if root == "" {
		wd, err := l.getwd()
		if err != nil {
			return "", configErrorf("root", err, "cannot determine working directory")
		}
		root = wd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", configErrorf("root", err, "cannot resolve %q", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", configErrorf("root", err, "project root %s is not accessible", abs)
	}
	if !info.IsDir() {
		return "", configErrorf("root", nil, "project root %s is not a directory", abs)
	}
	return abs, nil
}

func applyCLIOverrides(cfg *BuildConfiguration, overrides *Overrides) {
	if overrides.Host != nil && *overrides.Host != "" {
		cfg.Server.Host = *overrides.Host
	}
	if overrides.Port != nil {
		cfg.Server.Port = *overrides.Port
	}
	if overrides.HMRPort != nil {
		cfg.Server.HMRPort = *overrides.HMRPort
	}
}

// resolvePaths makes alias targets and the cache directory absolute.
func resolvePaths(cfg *BuildConfiguration) error {
	resolved := make(map[string]string, len(cfg.Aliases))
	for alias, target := range cfg.Aliases {
		if target == "" {
			return configErrorf(aliasField(alias), nil, "alias target cannot be empty")
		}
		resolved[alias] = absUnder(cfg.Root, target)
	}
	cfg.Aliases = resolved

	if cfg.CacheDir == "" {
		return configErrorf("cacheDir", nil, "cache directory cannot be empty")
	}
	cfg.CacheDir = absUnder(cfg.Root, cfg.CacheDir)
	return nil
}

func absUnder(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func aliasField(alias string) string {
	return fmt.Sprintf("resolve.alias[%q]", alias)
}

func (l *Loader) initPlugins(cfg BuildConfiguration) error {
	_, err := l.registry.Init(cfg.Root, cfg.Plugins)
	if err == nil {
		return nil
	}

	var initErr *plugin.InitError
	if errors.As(err, &initErr) {
		return &PluginInitError{Plugin: initErr.Plugin, Err: initErr.Err}
	}
	if errors.Is(err, plugin.ErrUnknownPlugin) {
		return configErrorf("plugins", err, "unresolvable plugin")
	}
	return configErrorf("plugins", err, "plugin registry failure")
}
