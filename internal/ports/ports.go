// Package ports hands out ephemeral TCP ports keyed by logical server name.
//
// A reservation is only bookkeeping: the probe socket is closed before the
// port is returned, so the port is free for the server that receives it.
// Reservations live until Release is called or the Allocator is dropped.
package ports

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// AllocationError is returned when the OS refuses an ephemeral bind.
type AllocationError struct {
	Name string
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate port for %q: %v", e.Name, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Prober asks the OS for a free port.
type Prober func() (int, error)

// Options configures an Allocator.
type Options struct {
	// Host is the address probed. Defaults to 127.0.0.1.
	Host string

	// Prober overrides the OS probe (optional, used by tests).
	Prober Prober

	// OnProbe is called after every successful OS probe (optional).
	OnProbe func(name string, port int)

	// Logger for allocation events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Allocator caches one port per name.
type Allocator struct {
	mu      sync.Mutex
	ports   map[string]int
	probe   Prober
	onProbe func(name string, port int)
	logger  *slog.Logger
}

// NewAllocator creates an empty Allocator.
func NewAllocator(opts Options) *Allocator {
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	probe := opts.Prober
	if probe == nil {
		probe = listenProbe(host)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		ports:   make(map[string]int),
		probe:   probe,
		onProbe: opts.OnProbe,
		logger:  logger,
	}
}

// Reserve returns the cached port for name, probing the OS on first use.
//
// Concurrent first-time calls for the same name are not deduplicated: each
// probes the OS and the last one to finish wins the cache slot.
func (a *Allocator) Reserve(name string) (int, error) {
	if port, ok := a.Lookup(name); ok {
		return port, nil
	}

	port, err := a.probe()
	if err != nil {
		return 0, &AllocationError{Name: name, Err: err}
	}
	if a.onProbe != nil {
		a.onProbe(name, port)
	}

	a.mu.Lock()
	a.ports[name] = port
	a.mu.Unlock()

	a.logger.Debug("Port reserved", "name", name, "port", port)
	return port, nil
}

// Lookup returns the cached port for name without probing.
func (a *Allocator) Lookup(name string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	port, ok := a.ports[name]
	return port, ok
}

// Release forgets the reservation for name. Whatever is bound to the port
// is left alone.
func (a *Allocator) Release(name string) {
	a.mu.Lock()
	port, ok := a.ports[name]
	delete(a.ports, name)
	a.mu.Unlock()

	if ok {
		a.logger.Debug("Port released", "name", name, "port", port)
	}
}

// Reserved returns a copy of the current reservations.
func (a *Allocator) Reserved() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.ports))
	for name, port := range a.ports {
		out[name] = port
	}
	return out
}

func listenProbe(host string) Prober {
	return func() (int, error) {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return 0, err
		}
		port := ln.Addr().(*net.TCPAddr).Port
		if err := ln.Close(); err != nil {
			return 0, err
		}
		return port, nil
	}
}
