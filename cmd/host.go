package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/decentraland/editor-sdk6-sub000/internal/config"
	"github.com/decentraland/editor-sdk6-sub000/internal/events"
	"github.com/decentraland/editor-sdk6-sub000/internal/logging"
	"github.com/decentraland/editor-sdk6-sub000/internal/metrics"
	"github.com/decentraland/editor-sdk6-sub000/internal/ports"
	"github.com/decentraland/editor-sdk6-sub000/internal/process"
	"github.com/decentraland/editor-sdk6-sub000/internal/supervisor"
)

// HostOptions are the settings shared by every command that runs servers.
type HostOptions struct {
	ServersFile          string
	ProjectRoot          string
	RuntimeBinary        string
	PackageManagerBinary string
	KillTimeout          time.Duration
	ProbeInterval        time.Duration
	StopTimeout          time.Duration
}

// Host wires the port allocator, spawner and registry to one event bus.
type Host struct {
	Options  HostOptions
	Bus      *events.Bus
	Ports    *ports.Allocator
	Spawner  *process.Spawner
	Registry *supervisor.Registry

	logger      *slog.Logger
	stopMetrics func()
}

// NewHost builds a Host. Every lifecycle callback is published on the bus
// and the metrics collectors subscribe to it.
func NewHost(opts HostOptions) *Host {
	bus := events.New()
	logger := logging.GetLogger("supervisor")
	now := func() string { return time.Now().Format(time.RFC3339) }

	alloc := ports.NewAllocator(ports.Options{
		OnProbe: func(name string, port int) {
			bus.Publish(events.PortReservedEvent{Name: name, Port: port, Timestamp: now()})
		},
		Logger: logging.GetLogger("ports"),
	})

	spawner := process.NewSpawner(&process.SpawnerOptions{
		ProjectRoot:          opts.ProjectRoot,
		RuntimeBinary:        opts.RuntimeBinary,
		PackageManagerBinary: opts.PackageManagerBinary,
		KillTimeout:          opts.KillTimeout,
		ProbeInterval:        opts.ProbeInterval,
		OnSpawn: func(id string, pid int) {
			bus.Publish(events.ProcessSpawnedEvent{ID: id, PID: pid, Timestamp: now()})
		},
		OnExit: func(info process.ExitInfo) {
			bus.Publish(events.ProcessExitedEvent{
				ID:        info.ID,
				PID:       info.PID,
				Code:      info.Code,
				Outcome:   string(info.Outcome),
				Killed:    info.Outcome != process.OutcomeExited,
				Timestamp: now(),
			})
		},
		Logger:       logging.GetLogger("process"),
		OutputLogger: logging.GetLogger("proc"),
	})

	registry := supervisor.NewRegistry(&supervisor.RegistryOptions{
		Ports:       alloc,
		StopTimeout: opts.StopTimeout,
		OnStateChange: func(name string, from, to supervisor.State) {
			bus.Publish(events.ServerStateChangedEvent{Name: name, From: string(from), To: string(to), Timestamp: now()})
		},
		OnCrash: func(name string, err error) {
			bus.Publish(events.ServerCrashedEvent{Name: name, Error: err.Error(), Timestamp: now()})
		},
		OnRemove: func(name string) {
			bus.Publish(events.ServerRemovedEvent{Name: name, Timestamp: now()})
		},
		Logger: logger,
	})

	return &Host{
		Options:     opts,
		Bus:         bus,
		Ports:       alloc,
		Spawner:     spawner,
		Registry:    registry,
		logger:      logger,
		stopMetrics: metrics.Subscribe(bus),
	}
}

// LoadServers reads the servers file.
func (h *Host) LoadServers() (*config.ServersConfig, error) {
	return config.LoadServers(h.Options.ServersFile)
}

// Apply reconciles the registry against cfg.
func (h *Host) Apply(ctx context.Context, cfg *config.ServersConfig) error {
	defs, err := cfg.Definitions(h.Spawner, h.logger)
	if err != nil {
		return err
	}
	if err := h.Registry.Reconcile(ctx, defs); err != nil {
		return fmt.Errorf("reconcile servers: %w", err)
	}
	return nil
}

// Close stops every server, waiting out starts in flight, and detaches the
// bus subscribers.
func (h *Host) Close(ctx context.Context) {
	h.Registry.CloseAll(ctx)
	h.stopMetrics()
}
