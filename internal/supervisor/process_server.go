package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/decentraland/editor-sdk6-sub000/internal/process"
)

// DefaultPortEnv is the environment variable that carries the port.
const DefaultPortEnv = "PORT"

// Prompt answers an interactive question printed by the process.
type Prompt struct {
	Pattern *regexp.Regexp
	Reply   string
}

// ProcessConfig describes how to run a process-backed server.
type ProcessConfig struct {
	Command string
	Args    []string
	Cwd     string
	Env     map[string]string

	// ReadyPattern marks the server as up. If nil, OnStart returns as
	// soon as the process has spawned.
	ReadyPattern *regexp.Regexp

	// ErrorPattern fails the start when it matches before ReadyPattern.
	ErrorPattern *regexp.Regexp

	// ReadyTimeout bounds the wait for ReadyPattern. Zero waits as long
	// as the start context allows.
	ReadyTimeout time.Duration

	// PortEnv names the variable set to the port. Empty skips it.
	PortEnv string

	// PortArg appends "--<PortArg> <port>" to the arguments when set.
	PortArg string

	Prompts   []Prompt
	LogParser process.LogParser
}

// ProcessServer runs a command as a Server.
type ProcessServer struct {
	name    string
	cfg     ProcessConfig
	spawner *process.Spawner
	logger  *slog.Logger

	mu   sync.Mutex
	proc *process.Process
}

// NewProcessServer creates a ProcessServer that spawns through spawner.
func NewProcessServer(name string, spawner *process.Spawner, cfg ProcessConfig, logger *slog.Logger) *ProcessServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessServer{
		name:    name,
		cfg:     cfg,
		spawner: spawner,
		logger:  logger.With("server", name),
	}
}

// Config returns the process configuration.
func (s *ProcessServer) Config() ProcessConfig {
	return s.cfg
}

// OnStart spawns the process with the port injected and waits for it to
// report ready.
func (s *ProcessServer) OnStart(ctx context.Context, port int, args []string) error {
	argv := append(slices.Clone(s.cfg.Args), args...)
	if s.cfg.PortArg != "" {
		argv = append(argv, "--"+s.cfg.PortArg, strconv.Itoa(port))
	}

	env := maps.Clone(s.cfg.Env)
	if env == nil {
		env = make(map[string]string)
	}
	if s.cfg.PortEnv != "" {
		env[s.cfg.PortEnv] = strconv.Itoa(port)
	}

	var ready process.Expectation
	proc, err := s.spawner.Spawn(s.name, s.cfg.Command, argv, &process.Options{
		Cwd:       s.cfg.Cwd,
		Env:       env,
		LogParser: s.cfg.LogParser,
		Setup: func(p *process.Process) error {
			for _, prompt := range s.cfg.Prompts {
				reply := process.Text(prompt.Reply)
				if _, err := p.On(prompt.Pattern, func(string) process.Reply { return reply }); err != nil {
					return err
				}
			}
			if s.cfg.ReadyPattern == nil {
				return nil
			}
			var err error
			ready, err = p.Expect(s.cfg.ReadyPattern, s.cfg.ErrorPattern)
			return err
		},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	if ready == nil {
		return nil
	}

	waitCtx := ctx
	if s.cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
		defer cancel()
	}

	text, err := ready(waitCtx)
	if err != nil {
		s.logger.Warn("Server failed to become ready", "error", err)
		_ = proc.Kill(context.WithoutCancel(ctx))
		return fmt.Errorf("wait for %s ready: %w", s.name, err)
	}
	s.logger.Debug("Server ready", "output", text)
	return nil
}

// OnStop kills the process tree.
func (s *ProcessServer) OnStop(ctx context.Context) error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.Kill(ctx)
}

// Exited returns a channel closed when the current process is dead.
func (s *ProcessServer) Exited() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.proc.Done()
}

// ExitErr reports why the current process exited.
func (s *ProcessServer) ExitErr() error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil
	}
	return proc.Wait(context.Background())
}

// PID returns the OS pid of the current process, or 0.
func (s *ProcessServer) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || !s.proc.Alive() {
		return 0
	}
	return s.proc.PID()
}
