package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/decentraland/editor-sdk6-sub000/internal/process"
	"github.com/decentraland/editor-sdk6-sub000/internal/supervisor"
)

// Server kinds.
const (
	KindProcess = "process"
	KindStatic  = "static"
)

// DefaultReadyTimeout applies when a process server omits ready_timeout.
const DefaultReadyTimeout = 60 * time.Second

// PromptConfig answers an interactive prompt printed by a process.
type PromptConfig struct {
	Pattern string `toml:"pattern" json:"pattern"`
	Reply   string `toml:"reply" json:"reply"`
}

// ServerConfig is one [[server]] table of the servers file.
type ServerConfig struct {
	Name      string `toml:"name" json:"name"`
	Kind      string `toml:"kind,omitempty" json:"kind,omitempty"`
	Autostart bool   `toml:"autostart,omitempty" json:"autostart,omitempty"`

	// Process servers
	Command      string            `toml:"command,omitempty" json:"command,omitempty"`
	Args         []string          `toml:"args,omitempty" json:"args,omitempty"`
	Cwd          string            `toml:"cwd,omitempty" json:"cwd,omitempty"`
	Env          map[string]string `toml:"env,omitempty" json:"env,omitempty"`
	ReadyPattern string            `toml:"ready_pattern,omitempty" json:"ready_pattern,omitempty"`
	ErrorPattern string            `toml:"error_pattern,omitempty" json:"error_pattern,omitempty"`
	ReadyTimeout string            `toml:"ready_timeout,omitempty" json:"ready_timeout,omitempty"` // Go duration, "0" waits on the start context only
	PortEnv      string            `toml:"port_env,omitempty" json:"port_env,omitempty"`
	PortArg      string            `toml:"port_arg,omitempty" json:"port_arg,omitempty"`
	Prompts      []PromptConfig    `toml:"prompt,omitempty" json:"prompts,omitempty"`

	// Static servers
	Root string `toml:"root,omitempty" json:"root,omitempty"`
}

// ServersConfig represents the complete servers file.
type ServersConfig struct {
	Servers []ServerConfig `toml:"server" json:"servers"`
}

// LoadServers reads and validates a servers file. A missing file yields an
// empty configuration.
func LoadServers(path string) (*ServersConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &ServersConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}
	return ParseServers(data)
}

// ParseServers decodes and validates servers file content.
func ParseServers(data []byte) (*ServersConfig, error) {
	var cfg ServersConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks names are unique, patterns compile and every server has
// the fields its kind needs.
func (c *ServersConfig) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	var errs []error
	for i := range c.Servers {
		srv := &c.Servers[i]
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("server #%d: name is required", i+1))
			continue
		}
		if seen[srv.Name] {
			errs = append(errs, fmt.Errorf("server %q: duplicate name", srv.Name))
			continue
		}
		seen[srv.Name] = true
		if err := srv.validate(); err != nil {
			errs = append(errs, fmt.Errorf("server %q: %w", srv.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ServerConfig) validate() error {
	switch s.kind() {
	case KindProcess:
		if s.Command == "" {
			return errors.New("command is required")
		}
		if _, err := s.readyTimeout(); err != nil {
			return err
		}
		if _, err := compileOptional(s.ReadyPattern); err != nil {
			return fmt.Errorf("ready_pattern: %w", err)
		}
		if _, err := compileOptional(s.ErrorPattern); err != nil {
			return fmt.Errorf("error_pattern: %w", err)
		}
		for i, p := range s.Prompts {
			if p.Pattern == "" {
				return fmt.Errorf("prompt #%d: pattern is required", i+1)
			}
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("prompt #%d: %w", i+1, err)
			}
		}
	case KindStatic:
		if s.Root == "" {
			return errors.New("root is required")
		}
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	return nil
}

func (s *ServerConfig) kind() string {
	if s.Kind == "" {
		return KindProcess
	}
	return s.Kind
}

func (s *ServerConfig) readyTimeout() (time.Duration, error) {
	if s.ReadyTimeout == "" {
		return DefaultReadyTimeout, nil
	}
	if s.ReadyTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.ReadyTimeout)
	if err != nil {
		return 0, fmt.Errorf("ready_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("ready_timeout: negative duration %s", d)
	}
	return d, nil
}

// Digest fingerprints the server definition. Two configs with the same
// digest run the same way.
func (s *ServerConfig) Digest() string {
	data, err := toml.Marshal(s)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Find returns the server named name.
func (c *ServersConfig) Find(name string) (ServerConfig, bool) {
	for _, srv := range c.Servers {
		if srv.Name == name {
			return srv, true
		}
	}
	return ServerConfig{}, false
}

// Definitions builds supervisor definitions for every configured server.
// The config must have passed Validate.
func (c *ServersConfig) Definitions(spawner *process.Spawner, logger *slog.Logger) ([]supervisor.Definition, error) {
	defs := make([]supervisor.Definition, 0, len(c.Servers))
	for i := range c.Servers {
		def, err := c.Servers[i].Definition(spawner, logger)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Definition builds the supervisor definition for one server.
func (s *ServerConfig) Definition(spawner *process.Spawner, logger *slog.Logger) (supervisor.Definition, error) {
	def := supervisor.Definition{
		Name:      s.Name,
		Autostart: s.Autostart,
		Digest:    s.Digest(),
	}

	switch s.kind() {
	case KindStatic:
		def.Server = supervisor.NewStaticServer(s.Name, s.Root, logger)
		return def, nil
	case KindProcess:
		pc, err := s.processConfig()
		if err != nil {
			return def, fmt.Errorf("server %q: %w", s.Name, err)
		}
		def.Server = supervisor.NewProcessServer(s.Name, spawner, pc, logger)
		return def, nil
	default:
		return def, fmt.Errorf("server %q: unknown kind %q", s.Name, s.Kind)
	}
}

func (s *ServerConfig) processConfig() (supervisor.ProcessConfig, error) {
	timeout, err := s.readyTimeout()
	if err != nil {
		return supervisor.ProcessConfig{}, err
	}
	ready, err := compileOptional(s.ReadyPattern)
	if err != nil {
		return supervisor.ProcessConfig{}, fmt.Errorf("ready_pattern: %w", err)
	}
	failure, err := compileOptional(s.ErrorPattern)
	if err != nil {
		return supervisor.ProcessConfig{}, fmt.Errorf("error_pattern: %w", err)
	}

	portEnv := s.PortEnv
	if portEnv == "" {
		portEnv = supervisor.DefaultPortEnv
	}

	prompts := make([]supervisor.Prompt, 0, len(s.Prompts))
	for _, p := range s.Prompts {
		re, compileErr := regexp.Compile(p.Pattern)
		if compileErr != nil {
			return supervisor.ProcessConfig{}, compileErr
		}
		prompts = append(prompts, supervisor.Prompt{Pattern: re, Reply: p.Reply})
	}

	return supervisor.ProcessConfig{
		Command:      s.Command,
		Args:         s.Args,
		Cwd:          s.Cwd,
		Env:          s.Env,
		ReadyPattern: ready,
		ErrorPattern: failure,
		ReadyTimeout: timeout,
		PortEnv:      portEnv,
		PortArg:      s.PortArg,
		Prompts:      prompts,
	}, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil //nolint:nilnil // no pattern configured
	}
	return regexp.Compile(pattern)
}
