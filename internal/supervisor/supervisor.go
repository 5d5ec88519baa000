package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/decentraland/editor-sdk6-sub000/internal/ports"
)

const defaultStopTimeout = 10 * time.Second

// State represents the lifecycle state of a supervised server.
type State string

// Server states.
const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Server is the start/stop hook pair a Supervisor drives.
type Server interface {
	// OnStart brings the server up on port. A returned error leaves
	// nothing running.
	OnStart(ctx context.Context, port int, args []string) error

	// OnStop tears the server down.
	OnStop(ctx context.Context) error
}

// Exiter is implemented by servers that can exit on their own. The
// supervisor watches Exited after each successful start.
type Exiter interface {
	Exited() <-chan struct{}
	ExitErr() error
}

// PIDer is implemented by servers backed by an OS process.
type PIDer interface {
	PID() int
}

// Status is a snapshot of a supervised server.
type Status struct {
	Name      string
	State     State
	Port      int
	PID       int
	StartedAt time.Time
	LastError error
}

// StateChangeCallback is called after every state transition.
type StateChangeCallback func(name string, from, to State)

// CrashCallback is called when a running server exits on its own.
type CrashCallback func(name string, err error)

// Options configures a Supervisor.
type Options struct {
	// Ports reserves the port handed to OnStart (required).
	Ports *ports.Allocator

	// StopTimeout bounds OnStop. Default 10s.
	StopTimeout time.Duration

	// OnStateChange is called on transitions (optional).
	OnStateChange StateChangeCallback

	// OnCrash is called on unexpected exits (optional).
	OnCrash CrashCallback

	// Logger for lifecycle messages. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Supervisor runs one logical server through
// Idle -> Starting -> Running -> Stopping -> Idle.
//
// The state is claimed under mu before any blocking call, so a concurrent
// caller always sees the in-flight transition. The bodies of start and
// stop are serialized by transition, so at most one instance is ever
// live and at most one port is reserved for the name.
type Supervisor struct {
	name   string
	server Server
	opts   Options
	logger *slog.Logger

	transition sync.Mutex

	mu        sync.Mutex
	state     State
	live      bool
	port      int
	startedAt time.Time
	lastErr   error
	gen       uint64
	closed    bool
}

// New creates a Supervisor for server under name.
func New(name string, server Server, opts *Options) *Supervisor {
	if opts == nil || opts.Ports == nil {
		panic("supervisor Options with Ports is required")
	}

	o := *opts
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		name:   name,
		server: server,
		opts:   o,
		logger: logger.With("server", name),
		state:  StateIdle,
	}
}

// Name returns the logical server name.
func (s *Supervisor) Name() string {
	return s.name
}

// Server returns the hooks this supervisor drives.
func (s *Supervisor) Server() Server {
	return s.server
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the port reserved for this server, reserving one if needed.
func (s *Supervisor) Port() (int, error) {
	return s.opts.Ports.Reserve(s.name)
}

// Start brings the server up. A running instance is stopped first. If a
// start is already in flight Start returns at once. Failures are logged,
// recorded in Status and leave the supervisor Idle. Start does nothing
// after Close.
func (s *Supervisor) Start(ctx context.Context, args ...string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Start after close ignored")
		return
	}
	if s.state == StateStarting {
		s.mu.Unlock()
		s.logger.Debug("Start already in flight")
		return
	}
	from := s.state
	s.state = StateStarting
	s.mu.Unlock()
	s.notify(from, StateStarting)

	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.closed {
		s.state = StateIdle
		s.mu.Unlock()
		s.notify(StateStarting, StateIdle)
		return
	}
	s.mu.Unlock()

	if s.isLive() {
		s.logger.Info("Stopping previous instance")
		s.stopLocked(ctx)
	}

	port, err := s.opts.Ports.Reserve(s.name)
	if err == nil {
		s.logger.Info("Starting server", "port", port)
		err = s.server.OnStart(ctx, port, args)
		if err != nil {
			s.opts.Ports.Release(s.name)
		}
	}

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		s.state = StateIdle
		s.mu.Unlock()
		s.logger.Error("Failed to start server", "error", err)
		s.notify(StateStarting, StateIdle)
		return
	}
	s.live = true
	s.port = port
	s.startedAt = time.Now()
	s.lastErr = nil
	s.gen++
	gen := s.gen
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("Server running", "port", port)
	s.notify(StateStarting, StateRunning)

	if ex, ok := s.server.(Exiter); ok {
		go s.watch(gen, ex.Exited(), ex)
	}
}

// Stop tears the server down. It is a no-op unless the server is Running.
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	s.mu.Unlock()
	s.notify(StateRunning, StateStopping)

	s.transition.Lock()
	defer s.transition.Unlock()

	// A Start or Close that ran while we waited owns the instance now.
	s.mu.Lock()
	if s.state != StateStopping {
		s.mu.Unlock()
		s.logger.Debug("Stop superseded")
		return
	}
	s.mu.Unlock()

	if s.isLive() {
		s.stopLocked(ctx)
	}

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.logger.Info("Server stopped")
	s.notify(StateStopping, StateIdle)
}

// Close stops the server for good. It waits for an in-flight Start or Stop
// to finish, stops whatever instance is live and turns later Start calls
// into no-ops.
func (s *Supervisor) Close(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.transition.Lock()
	defer s.transition.Unlock()

	if !s.isLive() {
		return
	}

	s.mu.Lock()
	from := s.state
	s.state = StateStopping
	s.mu.Unlock()
	s.notify(from, StateStopping)

	s.stopLocked(ctx)

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.logger.Info("Server closed")
	s.notify(StateStopping, StateIdle)
}

// Restart stops then starts the server.
func (s *Supervisor) Restart(ctx context.Context, args ...string) {
	s.logger.Info("Restarting server")
	s.Stop(ctx)
	s.Start(ctx, args...)
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		Name:      s.name,
		State:     s.state,
		Port:      s.port,
		StartedAt: s.startedAt,
		LastError: s.lastErr,
	}
	live := s.live
	s.mu.Unlock()

	if !live {
		st.Port = 0
		st.StartedAt = time.Time{}
	} else if p, ok := s.server.(PIDer); ok {
		st.PID = p.PID()
	}
	return st
}

func (s *Supervisor) isLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// stopLocked runs OnStop and releases the port. Caller holds transition.
func (s *Supervisor) stopLocked(ctx context.Context) {
	s.mu.Lock()
	s.live = false
	s.gen++
	s.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StopTimeout)
	defer cancel()
	if err := s.server.OnStop(stopCtx); err != nil {
		s.logger.Error("Failed to stop server", "error", err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}

	s.opts.Ports.Release(s.name)
	s.mu.Lock()
	s.port = 0
	s.mu.Unlock()
}

// watch returns a crashed server to Idle. Exits caused by stopLocked bump
// gen first and are ignored.
func (s *Supervisor) watch(gen uint64, exited <-chan struct{}, ex Exiter) {
	<-exited

	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.gen != gen || !s.live {
		s.mu.Unlock()
		return
	}
	err := ex.ExitErr()
	if err == nil {
		err = fmt.Errorf("server %s exited", s.name)
	}
	s.live = false
	s.gen++
	s.port = 0
	s.lastErr = err
	// A pending Start or Stop owns the state and finishes the transition.
	crashed := s.state == StateRunning
	if crashed {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.opts.Ports.Release(s.name)
	s.logger.Error("Server exited unexpectedly", "error", err)
	if s.opts.OnCrash != nil {
		s.opts.OnCrash(s.name, err)
	}
	if crashed {
		s.notify(StateRunning, StateIdle)
	}
}

func (s *Supervisor) notify(from, to State) {
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(s.name, from, to)
	}
}
