package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/decentraland/editor-sdk6-sub000/cmd"
	"github.com/decentraland/editor-sdk6-sub000/internal/api"
	"github.com/decentraland/editor-sdk6-sub000/internal/config"
	"github.com/decentraland/editor-sdk6-sub000/internal/logging"
	"github.com/decentraland/editor-sdk6-sub000/internal/metrics"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"devsup.toml"`

	// API settings
	Addr string `help:"API listen address" short:"a" default:"127.0.0.1:8099" toml:"server.addr" env:"SERVER_ADDR"`

	// Servers settings
	ServersFile  string `help:"Server definitions file" default:"servers.toml" toml:"servers.config_file" env:"SERVERS_CONFIG_FILE"`
	ServersWatch bool   `help:"Reload server definitions when the file changes" default:"true" toml:"servers.watch" env:"SERVERS_WATCH"`
	StopTimeout  string `help:"Time allowed for a server to stop" default:"10s" toml:"servers.stop_timeout" env:"SERVERS_STOP_TIMEOUT"`

	// Process settings
	ProjectRoot          string `help:"Working directory for spawned processes" default:"." toml:"process.project_root" env:"PROCESS_PROJECT_ROOT"`
	RuntimeBinary        string `help:"Runtime binary whose directory is prepended to PATH" toml:"process.runtime_binary" env:"PROCESS_RUNTIME_BINARY"`
	PackageManagerBinary string `help:"Package manager binary whose directory is prepended to PATH" toml:"process.package_manager_binary" env:"PROCESS_PACKAGE_MANAGER_BINARY"`
	KillTimeout          string `help:"Time allowed for graceful termination before a forced kill" default:"5s" toml:"process.kill_timeout" env:"PROCESS_KILL_TIMEOUT"`
	ProbeInterval        string `help:"Liveness poll period while killing" default:"100ms" toml:"process.probe_interval" env:"PROCESS_PROBE_INTERVAL"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingProcess    string `help:"Process lifecycle logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingProc       string `help:"Process output logging level" default:"info" toml:"logging.proc" env:"LOGGING_PROC"`
	LoggingPorts      string `help:"Port allocator logging level" default:"info" toml:"logging.ports" env:"LOGGING_PORTS"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func parseDuration(logger *slog.Logger, name, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid duration, using default", "option", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}

func main() {
	var cli humacli.CLI
	var host *cmd.Host

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"process":    opts.LoggingProcess,
				"proc":       opts.LoggingProc,
				"ports":      opts.LoggingPorts,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")

		host = cmd.NewHost(cmd.HostOptions{
			ServersFile:          opts.ServersFile,
			ProjectRoot:          opts.ProjectRoot,
			RuntimeBinary:        opts.RuntimeBinary,
			PackageManagerBinary: opts.PackageManagerBinary,
			KillTimeout:          parseDuration(logger, "kill-timeout", opts.KillTimeout, 5*time.Second),
			ProbeInterval:        parseDuration(logger, "probe-interval", opts.ProbeInterval, 100*time.Millisecond),
			StopTimeout:          parseDuration(logger, "stop-timeout", opts.StopTimeout, 10*time.Second),
		})
		stopLogs := api.ForwardLogs(host.Bus)

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Registry:          host.Registry,
			Ports:             host.Ports,
			EventBus:          host.Bus,
			PrometheusHandler: metrics.Handler(),
		})

		var watcher *config.Watcher[*config.ServersConfig]
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			servers, err := host.LoadServers()
			if err != nil {
				logger.Error("Failed to load servers file", "path", opts.ServersFile, "error", err)
				os.Exit(1)
			}
			if applyErr := host.Apply(ctx, servers); applyErr != nil {
				logger.Error("Failed to apply servers", "error", applyErr)
				os.Exit(1)
			}

			if opts.ServersWatch {
				watcher = config.NewConfigWatcher(opts.ServersFile, config.LoadServers, logging.GetLogger("config"))
				watcher.OnReload(func(cfg *config.ServersConfig) {
					if applyErr := host.Apply(ctx, cfg); applyErr != nil {
						logger.Error("Failed to apply reloaded servers", "error", applyErr)
					}
				})
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Failed to watch servers file", "path", opts.ServersFile, "error", watchErr)
					watcher = nil
				}
			}

			if sent, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			} else if sent {
				logger.Debug("Notified systemd readiness")
			}

			if startErr := server.Start(opts.Addr); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			cancel()

			// Stop all servers after the API stops accepting requests.
			host.Close(context.Background())
			stopLogs()
		})
	})

	root := cli.Root()
	root.Use = "devsup"
	root.Short = "Supervise local development servers"
	root.AddCommand(cmd.CreateRunCmd(func() *cmd.Host { return host }))
	root.AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
