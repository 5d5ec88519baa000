package process

import (
	"regexp"
	"sync"
	"sync/atomic"
)

// Reply is what a Handler wants written to the process stdin.
// A nil Reply writes nothing.
type Reply interface {
	reply()
}

// Text is written verbatim.
type Text string

// Lines are written in order.
type Lines []string

// Pending is written once a value arrives. Writes from different Pending
// replies are not ordered relative to each other.
type Pending <-chan string

func (Text) reply()    {}
func (Lines) reply()   {}
func (Pending) reply() {}

// Handler is invoked with the output chunk that matched.
// Handlers run on the output goroutine and must not block on Kill or Wait.
// To stop the process from a handler, start the kill without waiting:
//
//	p.On(fatal, Observe(func(string) { p.KillAsync() }))
type Handler func(text string) Reply

// Observe adapts fn into a Handler that never writes back.
func Observe(fn func(text string)) Handler {
	return func(text string) Reply {
		fn(text)
		return nil
	}
}

type matcher struct {
	pattern *regexp.Regexp
	handler Handler
	once    bool
	enabled atomic.Bool
}

// claim reports whether the matcher may fire. Once-matchers disable
// themselves here so two racing chunks cannot both fire them.
func (m *matcher) claim() bool {
	if m.once {
		return m.enabled.CompareAndSwap(true, false)
	}
	return m.enabled.Load()
}

// matcherSet is an append-only list. Removal disables in place so indices
// handed out earlier stay valid.
type matcherSet struct {
	mu   sync.RWMutex
	list []*matcher
}

func (s *matcherSet) add(pattern *regexp.Regexp, handler Handler, once bool) int {
	m := &matcher{pattern: pattern, handler: handler, once: once}
	m.enabled.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, m)
	return len(s.list) - 1
}

func (s *matcherSet) disable(index int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.list) {
		return
	}
	s.list[index].enabled.Store(false)
}

func (s *matcherSet) disableAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.list {
		m.enabled.Store(false)
	}
}

func (s *matcherSet) snapshot() []*matcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*matcher(nil), s.list...)
}
