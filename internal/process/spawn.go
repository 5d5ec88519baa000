package process

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	defaultKillTimeout   = 5 * time.Second
	defaultProbeInterval = 100 * time.Millisecond
	defaultWaitDelay     = time.Second
)

// SpawnerOptions configures a Spawner.
type SpawnerOptions struct {
	// ProjectRoot is the working directory when Options.Cwd is empty.
	ProjectRoot string

	// RuntimeBinary and PackageManagerBinary are paths to the host-managed
	// tool binaries. Their directories are prepended to PATH so spawned
	// tooling resolves the same versions regardless of the user's shell.
	RuntimeBinary        string
	PackageManagerBinary string

	// Shell overrides the shell used to run commands (optional).
	Shell string

	// KillTimeout bounds how long Kill waits before forcing. Default 5s.
	KillTimeout time.Duration

	// ProbeInterval is the liveness poll period while killing. Default 100ms.
	ProbeInterval time.Duration

	// OnSpawn is called after a process starts (optional).
	OnSpawn func(id string, pid int)

	// OnExit is called once when a process reaches StateDead (optional).
	OnExit func(ExitInfo)

	// Logger for lifecycle messages. If nil, uses slog.Default().
	Logger *slog.Logger

	// OutputLogger mirrors process output. If nil, uses Logger.
	OutputLogger *slog.Logger
}

// Options configures a single spawn.
type Options struct {
	// Cwd defaults to the spawner's ProjectRoot.
	Cwd string

	// Env entries override the inherited environment.
	Env map[string]string

	// LogParser extracts a level from mirrored output lines (optional).
	LogParser LogParser

	// Setup runs after the process is created and before it starts.
	// Matchers registered here see all output (optional).
	Setup func(p *Process) error
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Spawner launches managed processes with host-wide defaults.
type Spawner struct {
	opts   SpawnerOptions
	logger *slog.Logger
}

// NewSpawner creates a Spawner.
func NewSpawner(opts *SpawnerOptions) *Spawner {
	var o SpawnerOptions
	if opts != nil {
		o = *opts
	}
	if o.Shell == "" {
		o.Shell = defaultShell
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = defaultKillTimeout
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = defaultProbeInterval
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if o.OutputLogger == nil {
		o.OutputLogger = logger
	}
	return &Spawner{opts: o, logger: logger}
}

// Spawn runs command with args under a shell and starts monitoring it.
// OS-level start failures are returned as *SpawnError.
func (s *Spawner) Spawn(id, command string, args []string, opts *Options) (*Process, error) {
	if opts == nil {
		opts = &Options{}
	}

	line, err := commandLine(command, args)
	if err != nil {
		return nil, &SpawnError{ID: id, Command: command, Err: err}
	}

	cmd := shellCommand(s.opts.Shell, line)
	cmd.Dir = opts.Cwd
	if cmd.Dir == "" {
		cmd.Dir = s.opts.ProjectRoot
	}
	cmd.Env = s.environment(opts.Env)
	cmd.WaitDelay = defaultWaitDelay

	p := newProcess(id, line, cmd, s.logger.With("process_id", id))
	p.outLogger = s.opts.OutputLogger.With("process_id", id)
	p.logParser = opts.LogParser
	p.killTimeout = s.opts.KillTimeout
	p.probeInterval = s.opts.ProbeInterval
	p.onExit = s.opts.OnExit

	if opts.Setup != nil {
		if err := opts.Setup(p); err != nil {
			return nil, fmt.Errorf("setup %s: %w", id, err)
		}
	}

	if err := p.start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", line)
		return nil, &SpawnError{ID: id, Command: line, Err: err}
	}

	p.logger.Info("Process started", "pid", p.pid, "command", line, "cwd", cmd.Dir)
	if s.opts.OnSpawn != nil {
		s.opts.OnSpawn(id, p.pid)
	}
	return p, nil
}

// commandLine joins command with shell-quoted args.
func commandLine(command string, args []string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("empty command")
	}

	var b strings.Builder
	b.WriteString(command)
	for _, arg := range args {
		quoted, err := quoteArg(arg)
		if err != nil {
			return "", fmt.Errorf("quote argument %q: %w", arg, err)
		}
		b.WriteByte(' ')
		b.WriteString(quoted)
	}
	return b.String(), nil
}

// environment merges overrides onto os.Environ and prepends the managed
// binary directories to PATH.
func (s *Spawner) environment(overrides map[string]string) []string {
	envMap := make(map[string]string)
	var order []string
	set := func(k, v string) {
		if _, ok := envMap[k]; !ok {
			order = append(order, k)
		}
		envMap[k] = v
	}

	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx > 0 {
			set(kv[:idx], kv[idx+1:])
		}
	}
	for k, v := range overrides {
		set(envKey(envMap, k), v)
	}

	if dirs := s.binDirs(); len(dirs) > 0 {
		pathKey := envKey(envMap, "PATH")
		parts := dirs
		if current := envMap[pathKey]; current != "" {
			parts = append(parts, current)
		}
		set(pathKey, strings.Join(parts, string(os.PathListSeparator)))
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+envMap[k])
	}
	return env
}

func (s *Spawner) binDirs() []string {
	var dirs []string
	for _, bin := range []string{s.opts.RuntimeBinary, s.opts.PackageManagerBinary} {
		if bin == "" {
			continue
		}
		dir := filepath.Dir(bin)
		if len(dirs) == 0 || dirs[len(dirs)-1] != dir {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// envKey returns the existing spelling of key. Windows env names are
// case-insensitive.
func envKey(env map[string]string, key string) string {
	if runtime.GOOS != "windows" {
		return key
	}
	for k := range env {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}
