package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/decentraland/editor-sdk6-sub000/internal/process"
	"github.com/decentraland/editor-sdk6-sub000/internal/supervisor"
)

const serversFixture = `
[[server]]
name = "preview"
command = "npx"
args = ["dcl", "start"]
ready_pattern = "server is now running"
error_pattern = "(?i)error"
ready_timeout = "30s"
port_arg = "port"
autostart = true

[server.env]
NODE_ENV = "development"

[[server.prompt]]
pattern = "Send anonymous usage stats"
reply = "no\n"

[[server]]
name = "assets"
kind = "static"
root = "./public"
`

func TestParseServers(t *testing.T) {
	cfg, err := ParseServers([]byte(serversFixture))
	if err != nil {
		t.Fatalf("ParseServers failed: %v", err)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(cfg.Servers))
	}

	preview, ok := cfg.Find("preview")
	if !ok {
		t.Fatal("preview not found")
	}
	if preview.Command != "npx" || len(preview.Args) != 2 || !preview.Autostart {
		t.Errorf("unexpected preview config %+v", preview)
	}
	if preview.Env["NODE_ENV"] != "development" {
		t.Errorf("expected env NODE_ENV=development, got %v", preview.Env)
	}
	if len(preview.Prompts) != 1 || preview.Prompts[0].Reply != "no\n" {
		t.Errorf("unexpected prompts %+v", preview.Prompts)
	}

	if _, ok := cfg.Find("missing"); ok {
		t.Error("expected Find to miss unknown server")
	}
}

func TestServersValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing name", "[[server]]\ncommand = \"x\"\n", "name is required"},
		{"duplicate", "[[server]]\nname = \"a\"\ncommand = \"x\"\n[[server]]\nname = \"a\"\ncommand = \"y\"\n", "duplicate name"},
		{"missing command", "[[server]]\nname = \"a\"\n", "command is required"},
		{"missing root", "[[server]]\nname = \"a\"\nkind = \"static\"\n", "root is required"},
		{"unknown kind", "[[server]]\nname = \"a\"\nkind = \"ftp\"\n", "unknown kind"},
		{"bad ready pattern", "[[server]]\nname = \"a\"\ncommand = \"x\"\nready_pattern = \"(\"\n", "ready_pattern"},
		{"bad error pattern", "[[server]]\nname = \"a\"\ncommand = \"x\"\nerror_pattern = \"[\"\n", "error_pattern"},
		{"bad prompt", "[[server]]\nname = \"a\"\ncommand = \"x\"\n[[server.prompt]]\npattern = \"(\"\n", "prompt #1"},
		{"bad timeout", "[[server]]\nname = \"a\"\ncommand = \"x\"\nready_timeout = \"soon\"\n", "ready_timeout"},
		{"negative timeout", "[[server]]\nname = \"a\"\ncommand = \"x\"\nready_timeout = \"-1s\"\n", "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServers([]byte(tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadServersMissingFile(t *testing.T) {
	cfg, err := LoadServers(filepath.Join(t.TempDir(), "servers.toml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("expected no servers, got %d", len(cfg.Servers))
	}
}

func TestLoadServersInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, []byte("[[server]\nname ="), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadServers(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestServerDigest(t *testing.T) {
	a := ServerConfig{Name: "preview", Command: "npx", Env: map[string]string{"A": "1", "B": "2"}}
	b := ServerConfig{Name: "preview", Command: "npx", Env: map[string]string{"B": "2", "A": "1"}}
	c := ServerConfig{Name: "preview", Command: "npx", Args: []string{"--verbose"}}

	if a.Digest() == "" {
		t.Fatal("expected non-empty digest")
	}
	if a.Digest() != b.Digest() {
		t.Error("expected equal configs to share a digest")
	}
	if a.Digest() == c.Digest() {
		t.Error("expected different configs to differ")
	}
}

func TestDefinitions(t *testing.T) {
	cfg, err := ParseServers([]byte(serversFixture))
	if err != nil {
		t.Fatalf("ParseServers failed: %v", err)
	}
	spawner := process.NewSpawner(&process.SpawnerOptions{Logger: newTestLogger()})

	defs, err := cfg.Definitions(spawner, newTestLogger())
	if err != nil {
		t.Fatalf("Definitions failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	preview := defs[0]
	if preview.Name != "preview" || !preview.Autostart || preview.Digest == "" {
		t.Errorf("unexpected preview definition %+v", preview)
	}
	ps, ok := preview.Server.(*supervisor.ProcessServer)
	if !ok {
		t.Fatalf("expected *ProcessServer, got %T", preview.Server)
	}
	pc := ps.Config()
	if pc.PortEnv != supervisor.DefaultPortEnv {
		t.Errorf("PortEnv = %q, want default %q", pc.PortEnv, supervisor.DefaultPortEnv)
	}
	if pc.PortArg != "port" {
		t.Errorf("PortArg = %q, want port", pc.PortArg)
	}
	if pc.ReadyTimeout != 30*time.Second {
		t.Errorf("ReadyTimeout = %v, want 30s", pc.ReadyTimeout)
	}
	if pc.ReadyPattern == nil || !pc.ReadyPattern.MatchString("server is now running on port 1") {
		t.Error("ready pattern not compiled")
	}
	if pc.ErrorPattern == nil || !pc.ErrorPattern.MatchString("ERROR") {
		t.Error("error pattern not compiled case-insensitively")
	}
	if len(pc.Prompts) != 1 || pc.Prompts[0].Reply != "no\n" {
		t.Errorf("unexpected prompts %+v", pc.Prompts)
	}

	static, ok := defs[1].Server.(*supervisor.StaticServer)
	if !ok {
		t.Fatalf("expected *StaticServer, got %T", defs[1].Server)
	}
	if static.Root() != "./public" {
		t.Errorf("Root = %q, want ./public", static.Root())
	}
}

func TestReadyTimeoutDefaults(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", DefaultReadyTimeout},
		{"0", 0},
		{"2m", 2 * time.Minute},
	}
	for _, tt := range tests {
		srv := ServerConfig{ReadyTimeout: tt.value}
		got, err := srv.readyTimeout()
		if err != nil {
			t.Errorf("readyTimeout(%q) failed: %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("readyTimeout(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
