package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/decentraland/editor-sdk6-sub000/internal/ports"
)

// Definition declares one named server for the Registry.
type Definition struct {
	Name      string
	Server    Server
	Autostart bool

	// Digest identifies the configuration the server was built from.
	// Reconcile replaces a server whose digest changed.
	Digest string
}

// RegistryOptions configures a new Registry.
type RegistryOptions struct {
	// Ports is shared by every supervisor (required).
	Ports *ports.Allocator

	// StopTimeout bounds each OnStop. Default 10s.
	StopTimeout time.Duration

	// MaxParallel bounds how many servers StartAll, StopAll and Reconcile
	// drive at once. Zero means no limit.
	MaxParallel int

	// OnStateChange is called on every supervisor transition (optional).
	OnStateChange StateChangeCallback

	// OnCrash is called when a running server exits on its own (optional).
	OnCrash CrashCallback

	// OnRemove is called after a server is dropped from the registry (optional).
	OnRemove func(name string)

	// Logger for registry operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

type entry struct {
	sup *Supervisor
	def Definition
}

// Registry manages named supervisors sharing one port allocator.
type Registry struct {
	opts    RegistryOptions
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(opts *RegistryOptions) *Registry {
	if opts == nil || opts.Ports == nil {
		panic("RegistryOptions with Ports is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		opts:    *opts,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Add registers def. Names must be unique.
func (r *Registry) Add(def Definition) (*Supervisor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return nil, fmt.Errorf("server %s already registered", def.Name)
	}

	sup := New(def.Name, def.Server, &Options{
		Ports:         r.opts.Ports,
		StopTimeout:   r.opts.StopTimeout,
		OnStateChange: r.opts.OnStateChange,
		OnCrash:       r.opts.OnCrash,
		Logger:        r.logger,
	})
	r.entries[def.Name] = &entry{sup: sup, def: def}
	r.logger.Debug("Registered server", "server", def.Name)
	return sup, nil
}

// Get returns the supervisor registered under name.
func (r *Registry) Get(name string) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.sup, true
}

// Remove closes the server and drops it. A Start in flight finishes first
// and its instance is then stopped. Returns false if unknown.
func (r *Registry) Remove(ctx context.Context, name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.sup.Close(ctx)
	r.opts.Ports.Release(name)
	if r.opts.OnRemove != nil {
		r.opts.OnRemove(name)
	}
	r.logger.Info("Removed server", "server", name)
	return true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// List returns the status of every server, sorted by name.
func (r *Registry) List() []Status {
	sups := r.supervisors(nil)
	statuses := make([]Status, 0, len(sups))
	for _, sup := range sups {
		statuses = append(statuses, sup.Status())
	}
	return statuses
}

// StartAll starts every server marked Autostart concurrently.
func (r *Registry) StartAll(ctx context.Context) {
	sups := r.supervisors(func(e *entry) bool { return e.def.Autostart })
	r.logger.Info("Starting servers", "count", len(sups))

	r.fanOut(sups, func(sup *Supervisor) { sup.Start(ctx) })
}

// StopAll stops every server concurrently.
func (r *Registry) StopAll(ctx context.Context) {
	sups := r.supervisors(nil)
	r.logger.Info("Stopping all servers", "count", len(sups))

	r.fanOut(sups, func(sup *Supervisor) { sup.Stop(ctx) })
	r.logger.Info("All servers stopped")
}

// CloseAll closes every server concurrently, including ones still
// starting. The servers stay registered but no longer start.
func (r *Registry) CloseAll(ctx context.Context) {
	sups := r.supervisors(nil)
	r.logger.Info("Closing all servers", "count", len(sups))
	r.fanOut(sups, func(sup *Supervisor) { sup.Close(ctx) })
}

// Reconcile makes the registry match defs. Unknown names are added and
// started if Autostart, missing names are stopped and removed, and names
// whose Digest changed are replaced, restarting them if they were running
// or are marked Autostart.
func (r *Registry) Reconcile(ctx context.Context, defs []Definition) error {
	wanted := make(map[string]Definition, len(defs))
	for _, def := range defs {
		if _, dup := wanted[def.Name]; dup {
			return fmt.Errorf("duplicate server name %s", def.Name)
		}
		wanted[def.Name] = def
	}

	var added, removed, changed []string
	r.mu.RLock()
	for name, e := range r.entries {
		def, ok := wanted[name]
		switch {
		case !ok:
			removed = append(removed, name)
		case def.Digest != e.def.Digest:
			changed = append(changed, name)
		}
	}
	for name := range wanted {
		if _, ok := r.entries[name]; !ok {
			added = append(added, name)
		}
	}
	r.mu.RUnlock()

	r.logger.Info("Reconciling servers", "added", len(added), "removed", len(removed), "changed", len(changed))

	for _, name := range removed {
		r.Remove(ctx, name)
	}

	var toStart []*Supervisor
	for _, name := range changed {
		old, _ := r.Get(name)
		wasRunning := false
		if old != nil {
			st := old.State()
			wasRunning = st == StateRunning || st == StateStarting
		}
		r.Remove(ctx, name)

		sup, err := r.Add(wanted[name])
		if err != nil {
			return err
		}
		if wasRunning || wanted[name].Autostart {
			toStart = append(toStart, sup)
		}
	}
	for _, name := range added {
		sup, err := r.Add(wanted[name])
		if err != nil {
			return err
		}
		if wanted[name].Autostart {
			toStart = append(toStart, sup)
		}
	}

	r.fanOut(toStart, func(sup *Supervisor) { sup.Start(ctx) })
	return nil
}

// fanOut runs fn on every supervisor, at most MaxParallel at a time.
// Start and Stop record their own failures in Status, so fn cannot fail.
func (r *Registry) fanOut(sups []*Supervisor, fn func(*Supervisor)) {
	var g errgroup.Group
	if r.opts.MaxParallel > 0 {
		g.SetLimit(r.opts.MaxParallel)
	}
	for _, sup := range sups {
		g.Go(func() error {
			fn(sup)
			return nil
		})
	}
	_ = g.Wait()
}

// supervisors returns the supervisors accepted by keep, sorted by name.
func (r *Registry) supervisors(keep func(*entry) bool) []*Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Sorted(maps.Keys(r.entries))
	sups := make([]*Supervisor, 0, len(names))
	for _, name := range names {
		e := r.entries[name]
		if keep == nil || keep(e) {
			sups = append(sups, e.sup)
		}
	}
	return sups
}
