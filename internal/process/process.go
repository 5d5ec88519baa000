package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Process is a spawned OS process with pattern subscriptions and
// escalating termination. It exclusively owns the OS handle.
type Process struct {
	id        string
	command   string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	logger    *slog.Logger
	outLogger *slog.Logger
	logParser LogParser

	stdin   io.WriteCloser
	stdinMu sync.Mutex

	matchers matcherSet

	// gate is held for reading while a handler runs and for writing when
	// the process is finalized, so no handler runs after Dead is observed.
	gate       sync.RWMutex
	gateClosed bool

	mu            sync.Mutex
	state         State
	killRequested bool
	exitErr       error
	exited        chan struct{} // closed when cmd.Wait returns
	done          chan struct{} // closed on StateDead
	doneOnce      sync.Once

	killer        treeKiller
	killTimeout   time.Duration
	probeInterval time.Duration
	onExit        func(ExitInfo)
}

func newProcess(id, command string, cmd *exec.Cmd, logger *slog.Logger) *Process {
	return &Process{
		id:            id,
		command:       command,
		cmd:           cmd,
		logger:        logger,
		outLogger:     logger,
		state:         StateAlive,
		exited:        make(chan struct{}),
		done:          make(chan struct{}),
		killer:        newTreeKiller(),
		killTimeout:   defaultKillTimeout,
		probeInterval: defaultProbeInterval,
	}
}

// start launches the command and the exit monitor.
func (p *Process) start() error {
	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return err
	}
	p.stdin = stdin
	p.cmd.Stdout = &chunkWriter{p: p, source: "stdout"}
	p.cmd.Stderr = &chunkWriter{p: p, source: "stderr"}

	if err := p.cmd.Start(); err != nil {
		return err
	}
	p.pid = p.cmd.Process.Pid
	p.startedAt = time.Now()

	go p.monitor()
	return nil
}

// monitor reaps the process. cmd.Wait returns once both output copies
// finish, so every chunk has been dispatched by then.
func (p *Process) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	killing := p.state == StateKilling
	p.mu.Unlock()
	close(p.exited)

	code := exitCode(err)
	p.logger.Info("Process exited", "pid", p.pid, "exit_code", code)

	if !killing {
		p.finish(OutcomeExited, code)
	}
}

// ID returns the process identifier given at spawn.
func (p *Process) ID() string {
	return p.id
}

// PID returns the OS process id of the shell wrapper.
func (p *Process) PID() int {
	return p.pid
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{ID: p.id, Command: p.command, PID: p.pid, State: p.state, StartedAt: p.startedAt}
}

// Alive reports whether the process has not yet exited or been killed.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the process reaches StateDead.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// On registers a matcher and returns its index.
func (p *Process) On(pattern *regexp.Regexp, handler Handler) (int, error) {
	return p.register(pattern, handler, false)
}

// Once registers a matcher that disables itself after firing.
func (p *Process) Once(pattern *regexp.Regexp, handler Handler) (int, error) {
	return p.register(pattern, handler, true)
}

// Off disables the matcher at index. Other indices are unaffected.
func (p *Process) Off(index int) {
	p.matchers.disable(index)
}

func (p *Process) register(pattern *regexp.Regexp, handler Handler, once bool) (int, error) {
	if !p.Alive() {
		return -1, fmt.Errorf("register %q on %s: %w", pattern, p.id, ErrKilled)
	}
	return p.matchers.add(pattern, handler, once), nil
}

// Wait blocks until the process is dead. It returns nil on exit code 0 or
// after an explicit Kill, and *ExitError for any other exit code.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	killed, err := p.killRequested, p.exitErr
	p.mu.Unlock()

	if killed {
		return nil
	}
	return p.exitResult(err)
}

// WaitFor resolves with the first chunk matching resolve, or fails with
// *MatchError when reject matches first. There is no timeout: bound it
// with ctx. If the process dies first, ErrExited is returned.
func (p *Process) WaitFor(ctx context.Context, resolve, reject *regexp.Regexp) (string, error) {
	wait, err := p.Expect(resolve, reject)
	if err != nil {
		return "", err
	}
	return wait(ctx)
}

// Expectation blocks until the matchers registered by Expect settle.
type Expectation func(ctx context.Context) (string, error)

// Expect registers the WaitFor matchers immediately and defers the wait.
// Called from Options.Setup it observes output from the first byte.
func (p *Process) Expect(resolve, reject *regexp.Regexp) (Expectation, error) {
	type result struct {
		text string
		err  error
	}
	results := make(chan result, 1)
	var settled atomic.Bool
	settle := func(r result) {
		if settled.CompareAndSwap(false, true) {
			results <- r
		}
	}

	resolveIdx, err := p.Once(resolve, Observe(func(text string) {
		settle(result{text: text})
	}))
	if err != nil {
		return nil, err
	}
	rejectIdx := -1
	if reject != nil {
		rejectIdx, err = p.Once(reject, Observe(func(text string) {
			settle(result{err: &MatchError{Text: text}})
		}))
		if err != nil {
			p.Off(resolveIdx)
			return nil, err
		}
	}

	return func(ctx context.Context) (string, error) {
		defer p.Off(resolveIdx)
		defer p.Off(rejectIdx)

		select {
		case r := <-results:
			return r.text, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		case <-p.done:
			select {
			case r := <-results:
				return r.text, r.err
			default:
				return "", fmt.Errorf("wait for %q on %s: %w", resolve, p.id, ErrExited)
			}
		}
	}, nil
}

// Kill terminates the process tree: a graceful request first, then a
// forced kill once the hard timeout elapses. Concurrent calls share one
// termination. Kill returns when the process is dead or ctx is done.
func (p *Process) Kill(ctx context.Context) error {
	select {
	case <-p.KillAsync():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// KillAsync starts the same termination as Kill and returns at once with
// a channel that is closed when the process is dead. Handlers must use it
// instead of Kill: the process cannot finish while a handler is running.
func (p *Process) KillAsync() <-chan struct{} {
	p.mu.Lock()
	if p.state == StateAlive {
		p.state = StateKilling
		p.killRequested = true
		go p.terminate()
	}
	p.mu.Unlock()
	return p.done
}

// terminate runs the Killing state: graceful signal, liveness probe racing
// the hard timeout, forced signal on timeout. The tree only counts as dead
// once the shell and every descendant captured before signalling are gone,
// so a child that ignores the graceful signal is still forced.
func (p *Process) terminate() {
	tree := p.killer.descendants(p.pid)
	p.logger.Info("Terminating process tree", "pid", p.pid, "descendants", len(tree))
	if err := p.killer.terminate(p.pid, tree); err != nil {
		p.logger.Warn("Failed to send graceful termination", "error", err)
	}

	probe := time.NewTicker(p.probeInterval)
	defer probe.Stop()
	timeout := time.NewTimer(p.killTimeout)
	defer timeout.Stop()

	exited := p.exited
	for {
		select {
		case <-exited:
			if !p.treeAlive(tree) {
				p.finish(OutcomeGraceful, p.code())
				return
			}
			p.logger.Debug("Shell exited, waiting for descendants", "pid", p.pid)
			exited = nil
		case <-probe.C:
			if !p.killer.alive(p.pid) && !p.treeAlive(tree) {
				p.finish(OutcomeGraceful, p.code())
				return
			}
		case <-timeout.C:
			p.logger.Warn("Graceful shutdown timeout, forcing kill", "pid", p.pid, "timeout", p.killTimeout)
			if err := p.killer.kill(p.pid, mergePIDs(tree, p.killer.descendants(p.pid))); err != nil {
				p.logger.Error("Failed to kill process", "error", err)
			}
			p.finish(OutcomeForced, -1)
			return
		}
	}
}

// treeAlive reports whether any captured descendant still exists.
func (p *Process) treeAlive(tree []int) bool {
	for _, pid := range tree {
		if p.killer.alive(pid) {
			return true
		}
	}
	return false
}

// finish moves to StateDead exactly once.
func (p *Process) finish(outcome Outcome, code int) {
	p.doneOnce.Do(func() {
		p.gate.Lock()
		p.gateClosed = true
		p.gate.Unlock()
		p.matchers.disableAll()

		p.mu.Lock()
		p.state = StateDead
		p.mu.Unlock()

		p.stdinMu.Lock()
		_ = p.stdin.Close()
		p.stdinMu.Unlock()

		close(p.done)
		p.logger.Debug("Process dead", "pid", p.pid, "outcome", outcome)

		if p.onExit != nil {
			p.onExit(ExitInfo{ID: p.id, PID: p.pid, Code: code, Outcome: outcome})
		}
	})
}

func (p *Process) code() int {
	select {
	case <-p.exited:
	default:
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return exitCode(p.exitErr)
}

func (p *Process) exitResult(err error) error {
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 means terminated by a signal: no exit code to report.
		if code := exitErr.ExitCode(); code != -1 {
			return &ExitError{ID: p.id, Code: code}
		}
		return nil
	}
	return fmt.Errorf("wait for %s: %w", p.id, err)
}

// exitCode extracts the exit code from a Wait error.
// Returns 0 for nil, the code for ExitError and -1 otherwise.
func exitCode(err error) int {
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// handleChunk mirrors a decoded chunk to the output logger and feeds the
// matcher engine.
func (p *Process) handleChunk(source, chunk string) {
	p.mirror(source, chunk)
	p.dispatch(strings.TrimRight(chunk, "\r\n"))
}

func (p *Process) mirror(source, chunk string) {
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			p.outLogger.Error(msg, "stream", source)
		case "warning", "warn":
			p.outLogger.Warn(msg, "stream", source)
		case "debug", "trace":
			p.outLogger.Debug(msg, "stream", source)
		default:
			p.outLogger.Info(msg, "stream", source)
		}
	}
}

// dispatch runs matchers in registration order. Go regexps keep no match
// state between calls, so each chunk is tested independently.
func (p *Process) dispatch(text string) {
	for _, m := range p.matchers.snapshot() {
		if !m.enabled.Load() || !m.pattern.MatchString(text) {
			continue
		}

		p.gate.RLock()
		if p.gateClosed || !m.claim() {
			p.gate.RUnlock()
			continue
		}
		reply := m.handler(text)
		p.gate.RUnlock()

		p.respond(reply)
	}
}

func (p *Process) respond(reply Reply) {
	switch r := reply.(type) {
	case nil:
	case Text:
		p.write(string(r))
	case Lines:
		for _, line := range r {
			p.write(line)
		}
	case Pending:
		go func() {
			select {
			case s, ok := <-r:
				if ok {
					p.write(s)
				}
			case <-p.done:
			}
		}()
	}
}

func (p *Process) write(s string) {
	if !p.Alive() {
		return
	}
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if _, err := io.WriteString(p.stdin, s); err != nil {
		p.logger.Debug("Failed to write to process stdin", "error", err)
	}
}

// chunkWriter receives raw output from exec's copy goroutine and forwards
// whole UTF-8 runes, holding back a rune split across reads.
type chunkWriter struct {
	p       *Process
	source  string
	pending []byte
}

func (w *chunkWriter) Write(b []byte) (int, error) {
	data := append(w.pending, b...)
	cut := completeRunes(data)
	w.pending = append([]byte(nil), data[cut:]...)
	if cut > 0 {
		w.p.handleChunk(w.source, string(data[:cut]))
	}
	return len(b), nil
}

// completeRunes returns the length of the longest prefix of data that does
// not end inside a multi-byte rune.
func completeRunes(data []byte) int {
	n := len(data)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if utf8.FullRune(data[i:]) {
				return n
			}
			return i
		}
	}
	return n
}
