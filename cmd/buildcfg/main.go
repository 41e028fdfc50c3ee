package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/buildcfg/internal/application"
	"github.com/eugenenazirov/buildcfg/internal/config"
	"github.com/eugenenazirov/buildcfg/internal/logging"
)

var signalNotify = signal.Notify

type cli struct {
	app *kingpin.Application

	root      *string
	cfgFile   *string
	envFile   *string
	host      *string
	port      *int
	hmrPort   *int
	logLevel  *string
	logFormat *string

	show       *kingpin.CmdClause
	showFormat *string
	check      *kingpin.CmdClause
	schema     *kingpin.CmdClause
	serve      *kingpin.CmdClause
	listen     *string
	watch      *bool
}

func newCLI() *cli {
	app := kingpin.New("buildcfg", "Front-end build configuration loader - resolves aliases, dev-server and test settings for external tooling")
	c := &cli{app: app}

	c.root = app.Flag("root", "Project root; defaults to the working directory").String()
	c.cfgFile = app.Flag("config", "Path to YAML overlay file").String()
	c.envFile = app.Flag("env-file", "Path to dotenv file; defaults to <root>/.env when present").String()
	c.host = app.Flag("host", "Dev-server bind host").String()
	c.port = app.Flag("port", "Dev-server port (set 0 to keep the configured value)").Default("0").Int()
	c.hmrPort = app.Flag("hmr-port", "Hot-reload port (set 0 to keep the configured value)").Default("0").Int()
	c.logLevel = app.Flag("log-level", "Log level").Default("info").Enum("debug", "info", "warn", "error")
	c.logFormat = app.Flag("log-format", "Log encoding").Default("json").Enum("json", "console")

	c.show = app.Command("show", "Print the resolved configuration").Default()
	c.showFormat = c.show.Flag("format", "Output format").Short('o').Default("json").Enum("json", "yaml")
	c.check = app.Command("check", "Validate the configuration and exit")
	c.schema = app.Command("schema", "Print the JSON Schema of the configuration")
	c.serve = app.Command("serve", "Serve the configuration over HTTP")
	c.listen = c.serve.Flag("listen", "Address of the config API").Default(application.DefaultOptions().Listen).String()
	c.watch = c.serve.Flag("watch", "Reload when the overlay or dotenv file changes").Bool()

	return c
}

func (c *cli) overrides() *config.Overrides {
	overrides := &config.Overrides{
		Root:       *c.root,
		ConfigFile: *c.cfgFile,
		EnvFile:    *c.envFile,
	}
	if *c.host != "" {
		overrides.Host = c.host
	}
	if *c.port != 0 {
		overrides.Port = c.port
	}
	if *c.hmrPort != 0 {
		overrides.HMRPort = c.hmrPort
	}
	return overrides
}

func main() {
	c := newCLI()
	command := kingpin.MustParse(c.app.Parse(os.Args[1:]))

	logger, err := logging.New(logging.Options{Level: *c.logLevel, Format: *c.logFormat})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(command, c, os.Stdout, logger); err != nil {
		logger.Fatal("startup failed", errorFields(err)...)
	}
}

func run(command string, c *cli, out io.Writer, logger *zap.Logger) error {
	overrides := c.overrides()
	load := func() (config.BuildConfiguration, error) {
		return config.Load(overrides)
	}

	switch command {
	case c.schema.FullCommand():
		schema, err := config.JSONSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(schema))
		return err

	case c.check.FullCommand():
		cfg, err := load()
		if err != nil {
			return err
		}
		logger.Info("configuration valid",
			zap.String("root", cfg.Root),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("hmr_port", cfg.Server.HMRPort),
			zap.Int("aliases", len(cfg.Aliases)),
			zap.Int("plugins", len(cfg.Plugins)),
		)
		return nil

	case c.serve.FullCommand():
		opts := application.DefaultOptions()
		opts.Listen = *c.listen
		if *c.watch {
			files, err := overrides.SourceFiles()
			if err != nil {
				return err
			}
			opts.WatchFiles = files
		}

		app, err := application.New(opts, load, logger)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := app.Start(ctx); err != nil {
			return err
		}
		shutdown(app.Server(), opts.ShutdownGracePeriod, logger)
		return nil

	default:
		cfg, err := load()
		if err != nil {
			return err
		}
		return writeConfig(out, cfg, *c.showFormat)
	}
}

func writeConfig(out io.Writer, cfg config.BuildConfiguration, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

func errorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var cfgErr *config.ConfigurationError
	var pluginErr *config.PluginInitError
	switch {
	case errors.As(err, &pluginErr):
		fields = append(fields, zap.String("kind", "plugin_init"), zap.String("plugin", pluginErr.Plugin))
	case errors.As(err, &cfgErr):
		fields = append(fields, zap.String("kind", "configuration"), zap.String("field", cfgErr.Field))
	}
	return fields
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
