package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/usmanalidev/demo-agent-ai/internal/demo"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// Entry is a session hosted by the registry together with its demo player.
type Entry struct {
	Session   *Session
	Sequencer *demo.Sequencer
	audio     *lastUtterance
}

// LastUtterance returns the most recent synthesized audio, if any.
func (e *Entry) LastUtterance() (Utterance, bool) {
	return e.audio.get()
}

// lastUtterance is the Player for HTTP sessions: with no socket to stream to,
// it keeps the latest audio for clients to fetch.
type lastUtterance struct {
	mu sync.Mutex
	u  *Utterance
}

func (l *lastUtterance) Play(_ context.Context, u Utterance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.u = &u
	return nil
}

func (l *lastUtterance) get() (Utterance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.u == nil {
		return Utterance{}, false
	}
	return *l.u, true
}

func (e *Entry) close() {
	e.Session.Close()
	e.Sequencer.Close()
}

// demoStarter forwards demo requests to the entry's sequencer.
type demoStarter struct {
	NopObserver
	seq *demo.Sequencer
}

func (d demoStarter) DemoRequested(feature string) { d.seq.Start(feature) }

type demoMetrics interface {
	ObserveDemo(outcome string)
}

// Registry holds sessions created over plain HTTP, where no connection
// lifetime bounds the session. Idle sessions are evicted by Run.
type Registry struct {
	factory  *Factory
	steps    demo.StepSource
	clock    clock.Clock
	logger   *logging.Logger
	interval time.Duration
	idleTTL  time.Duration
	sweep    time.Duration

	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewRegistry(factory *Factory, steps demo.StepSource, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	c := factory.Clock
	if c == nil {
		c = clock.New()
	}
	return &Registry{
		factory:  factory,
		steps:    steps,
		clock:    c,
		logger:   logger,
		interval: demo.DefaultInterval,
		idleTTL:  30 * time.Minute,
		sweep:    time.Minute,
		entries:  make(map[string]*Entry),
	}
}

func (r *Registry) WithHighlightInterval(d time.Duration) *Registry {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Registry) WithIdleTTL(d time.Duration) *Registry {
	if d > 0 {
		r.idleTTL = d
	}
	return r
}

func (r *Registry) WithSweepInterval(d time.Duration) *Registry {
	if d > 0 {
		r.sweep = d
	}
	return r
}

// Create starts a new session with its own sequencer.
func (r *Registry) Create() *Entry {
	id := uuid.NewString()
	seq := demo.NewSequencer(r.steps, nil, r.logger).
		WithInterval(r.interval).
		WithClock(r.clock)
	if dm, ok := r.factory.Metrics.(demoMetrics); ok {
		seq.WithMetrics(dm)
	}
	audio := &lastUtterance{}
	entry := &Entry{
		Session:   r.factory.New(id, WithObserver(demoStarter{seq: seq}), WithPlayer(audio)),
		Sequencer: seq,
		audio:     audio,
	}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()
	r.logger.Info("session created", "session_id", id)
	return entry
}

func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Delete closes and removes a session. It reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		e.close()
		r.logger.Info("session deleted", "session_id", id)
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Run evicts idle sessions until ctx is cancelled, then closes the rest.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.Ticker(r.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.idleTTL)

	var stale []*Entry
	r.mu.Lock()
	for id, e := range r.entries {
		since, idle := e.Session.IdleSince()
		if idle && since.Before(cutoff) {
			stale = append(stale, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		e.close()
		r.logger.Info("session evicted", "session_id", e.Session.ID())
	}
	return len(stale)
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()
	for _, e := range entries {
		e.close()
	}
}
