package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || info.GoVersion != runtime.Version() {
		t.Errorf("unexpected info %+v", info)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("expected os/arch platform, got %q", info.Platform)
	}
}

func TestShort(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "1.2.0", GitCommit: "abcdef1234567"}, "1.2.0 (abcdef1)"},
		{Info{Version: "dev", GitCommit: "unknown"}, "dev (unknown)"},
	}
	for _, tt := range tests {
		if got := tt.info.Short(); got != tt.want {
			t.Errorf("Short() = %q, want %q", got, tt.want)
		}
	}
}
