package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// serversTOML renders one process server per name.
func serversTOML(names ...string) []byte {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "[[server]]\nname = %q\ncommand = \"true\"\n\n", name)
	}
	return []byte(b.String())
}

// replaceFile saves content the way editors do: write a temp file, then
// rename it over path.
func replaceFile(t *testing.T, path string, content []byte) {
	t.Helper()
	tmp := path + ".swp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func newServersWatcher(t *testing.T, path string, debounce time.Duration, opts ...WatcherOption[*ServersConfig]) *Watcher[*ServersConfig] {
	t.Helper()
	opts = append([]WatcherOption[*ServersConfig]{WithDebounce[*ServersConfig](debounce)}, opts...)
	return NewConfigWatcher(path, LoadServers, newTestLogger(), opts...)
}

func runWatcher(t *testing.T, watcher *Watcher[*ServersConfig]) {
	t.Helper()
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := watcher.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})

	// Wait for watcher to initialize
	time.Sleep(100 * time.Millisecond)
}

func waitReload(t *testing.T, received <-chan *ServersConfig) *ServersConfig {
	t.Helper()
	select {
	case cfg := <-received:
		return cfg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for servers reload")
		return nil
	}
}

// trySend never blocks so a surplus reload cannot wedge the watch loop,
// which Stop waits on.
func trySend[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func serverNames(cfg *ServersConfig) []string {
	names := make([]string, len(cfg.Servers))
	for i, srv := range cfg.Servers {
		names[i] = srv.Name
	}
	return names
}

func TestServersWatcher_WriteInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	received := make(chan *ServersConfig, 1)
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	watcher.OnReload(func(cfg *ServersConfig) { trySend(received, cfg) })
	runWatcher(t, watcher)

	if err := os.WriteFile(path, serversTOML("preview", "assets"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := waitReload(t, received)
	if got := serverNames(cfg); len(got) != 2 || got[1] != "assets" {
		t.Errorf("got servers %v, want [preview assets]", got)
	}
}

func TestServersWatcher_RenameReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	received := make(chan *ServersConfig, 4)
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	watcher.OnReload(func(cfg *ServersConfig) { trySend(received, cfg) })
	runWatcher(t, watcher)

	replaceFile(t, path, serversTOML("builder"))
	cfg := waitReload(t, received)
	if got := serverNames(cfg); len(got) != 1 || got[0] != "builder" {
		t.Errorf("got servers %v, want [builder]", got)
	}

	// The watch must survive the inode swap.
	replaceFile(t, path, serversTOML("builder", "assets"))
	cfg = waitReload(t, received)
	if got := serverNames(cfg); len(got) != 2 {
		t.Errorf("second replace: got servers %v, want [builder assets]", got)
	}
}

func TestServersWatcher_CreatedAfterStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")

	received := make(chan *ServersConfig, 1)
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	watcher.OnReload(func(cfg *ServersConfig) { trySend(received, cfg) })
	runWatcher(t, watcher)

	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := waitReload(t, received)
	if got := serverNames(cfg); len(got) != 1 || got[0] != "preview" {
		t.Errorf("got servers %v, want [preview]", got)
	}
}

func TestServersWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	var count atomic.Int32
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	watcher.OnReload(func(_ *ServersConfig) { count.Add(1) })
	runWatcher(t, watcher)

	for _, name := range []string{"devsup.toml", "servers.toml.bak", "package.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), serversTOML("other"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(300 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reload for sibling files, got %d", got)
	}
}

func TestServersWatcher_SharedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	first := make(chan *ServersConfig, 1)
	second := make(chan *ServersConfig, 1)
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	watcher.OnReload(func(cfg *ServersConfig) { trySend(first, cfg) })
	watcher.OnReload(func(cfg *ServersConfig) { trySend(second, cfg) })
	runWatcher(t, watcher)

	replaceFile(t, path, serversTOML("assets"))

	a := waitReload(t, first)
	b := waitReload(t, second)
	if a != b {
		t.Error("expected every handler to receive the same loaded config")
	}
}

func TestServersWatcher_Unsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	var removed atomic.Int32
	kept := make(chan *ServersConfig, 1)
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	unsub := watcher.OnReload(func(_ *ServersConfig) { removed.Add(1) })
	watcher.OnReload(func(cfg *ServersConfig) { trySend(kept, cfg) })
	unsub()
	runWatcher(t, watcher)

	replaceFile(t, path, serversTOML("assets"))

	waitReload(t, kept)
	if got := removed.Load(); got != 0 {
		t.Errorf("unsubscribed handler called %d times", got)
	}
}

func TestServersWatcher_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 1)
	var reloads atomic.Int32
	watcher := newServersWatcher(t, path, 50*time.Millisecond,
		WithErrorHandler[*ServersConfig](func(err error) { trySend(errs, err) }))
	watcher.OnReload(func(_ *ServersConfig) { reloads.Add(1) })
	runWatcher(t, watcher)

	replaceFile(t, path, serversTOML("preview", "preview"))

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "duplicate name") {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for load error")
	}
	if got := reloads.Load(); got != 0 {
		t.Errorf("handlers must not see an invalid file, got %d calls", got)
	}
}

func TestServersWatcher_Debounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("s0"), 0o644); err != nil {
		t.Fatal(err)
	}

	var count atomic.Int32
	var mu sync.Mutex
	var last []string
	watcher := newServersWatcher(t, path, 200*time.Millisecond)
	watcher.OnReload(func(cfg *ServersConfig) {
		count.Add(1)
		mu.Lock()
		last = serverNames(cfg)
		mu.Unlock()
	})
	runWatcher(t, watcher)

	// Rapid saves within the debounce window
	for i := 1; i <= 5; i++ {
		replaceFile(t, path, serversTOML(fmt.Sprintf("s%d", i)))
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced reload, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(last) != 1 || last[0] != "s5" {
		t.Errorf("expected final servers [s5], got %v", last)
	}
}

func TestServersWatcher_ConcurrentSubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher := newServersWatcher(t, path, 10*time.Millisecond)
	runWatcher(t, watcher)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := watcher.OnReload(func(_ *ServersConfig) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}

	// Trigger reloads while handlers are being added and removed
	for i := range 10 {
		if err := os.WriteFile(path, serversTOML(fmt.Sprintf("s%d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	wg.Wait()
}

func TestServersWatcher_StopWaitsForLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var enterOnce sync.Once
	var finished atomic.Bool
	watcher := newServersWatcher(t, path, 20*time.Millisecond)
	watcher.OnReload(func(_ *ServersConfig) {
		enterOnce.Do(func() { close(entered) })
		<-release
		finished.Store(true)
	})
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	replaceFile(t, path, serversTOML("assets"))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload handler")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- watcher.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a reload handler was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}
	if !finished.Load() {
		t.Error("Stop returned before the handler finished")
	}
}

func TestServersWatcher_NoReloadAfterStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, serversTOML("preview"), 0o644); err != nil {
		t.Fatal(err)
	}

	var count atomic.Int32
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	watcher.OnReload(func(_ *ServersConfig) { count.Add(1) })
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := watcher.Stop(); err != nil {
		t.Fatal(err)
	}

	replaceFile(t, path, serversTOML("assets"))
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 reloads after stop, got %d", got)
	}
}

func TestServersWatcher_StopWithoutStart(t *testing.T) {
	watcher := newServersWatcher(t, filepath.Join(t.TempDir(), "servers.toml"), 50*time.Millisecond)
	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop before Start failed: %v", err)
	}
}

func TestServersWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "servers.toml")
	watcher := newServersWatcher(t, path, 50*time.Millisecond)
	if err := watcher.Start(); err == nil {
		_ = watcher.Stop()
		t.Error("expected Start to fail when the directory does not exist")
	}
}
