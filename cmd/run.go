package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/decentraland/editor-sdk6-sub000/internal/events"
	"github.com/decentraland/editor-sdk6-sub000/internal/logging"
	"github.com/decentraland/editor-sdk6-sub000/internal/supervisor"
)

// CreateRunCmd creates the run command. host is called once flags and the
// config file have been parsed.
func CreateRunCmd(host func() *Host) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name> [args...]",
		Short: "Run one server in the foreground",
		Long: `Starts the named server from the servers file and keeps it running until ` +
			`interrupted or until it exits on its own. Extra arguments are passed to the server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runServer(c.Context(), host(), args[0], args[1:])
		},
	}
}

func runServer(parent context.Context, h *Host, name string, args []string) error {
	logger := logging.GetLogger("main").With("server", name)

	cfg, err := h.LoadServers()
	if err != nil {
		return err
	}
	srvCfg, ok := cfg.Find(name)
	if !ok {
		return fmt.Errorf("server %q is not defined in %s", name, h.Options.ServersFile)
	}
	def, err := srvCfg.Definition(h.Spawner, logging.GetLogger("supervisor"))
	if err != nil {
		return err
	}
	sup, err := h.Registry.Add(def)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	crashed := make(chan string, 1)
	unsub := h.Bus.Subscribe(func(e events.ServerCrashedEvent) {
		if e.Name == name {
			select {
			case crashed <- e.Error:
			default:
			}
		}
	})
	defer unsub()

	sup.Start(ctx, args...)
	st := sup.Status()
	if st.State != supervisor.StateRunning {
		h.Close(context.Background())
		if st.LastError != nil {
			return fmt.Errorf("start %s: %w", name, st.LastError)
		}
		return fmt.Errorf("start %s: interrupted", name)
	}
	logger.Info("Server running, press Ctrl+C to stop", "port", st.Port)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case reason := <-crashed:
		runErr = fmt.Errorf("server %s exited: %s", name, reason)
	}

	h.Close(context.Background())
	return runErr
}
