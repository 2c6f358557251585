// Package demo plays highlight sequences over the mock video UI. One
// sequence is active per Sequencer; starting another cancels the first.
package demo

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// DefaultInterval is the time each highlight stays active.
const DefaultInterval = 2 * time.Second

// Highlight is one emission of a sequence. An empty Element means no region
// is highlighted.
type Highlight struct {
	Feature string `json:"feature"`
	Element string `json:"element,omitempty"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
}

// Active reports whether a region is highlighted.
func (h Highlight) Active() bool { return h.Element != "" }

// StepSource resolves the highlight steps for a feature. *catalog.Catalog
// satisfies it.
type StepSource interface {
	Steps(feature string) []string
}

// Sink receives highlights in order. It is called with the sequencer lock
// held and must not call back into the Sequencer.
type Sink func(Highlight)

type demoMetrics interface {
	ObserveDemo(outcome string)
}

// Sequencer emits one highlight per interval for the most recently started
// feature.
type Sequencer struct {
	steps    StepSource
	sink     Sink
	clock    clock.Clock
	interval time.Duration
	logger   *logging.Logger
	metrics  demoMetrics

	mu      sync.Mutex
	gen     uint64
	ticker  *clock.Ticker
	stop    chan struct{}
	running bool
	closed  bool
	current Highlight
}

func NewSequencer(steps StepSource, sink Sink, logger *logging.Logger) *Sequencer {
	if logger == nil {
		logger = logging.Default()
	}
	if sink == nil {
		sink = func(Highlight) {}
	}
	return &Sequencer{
		steps:    steps,
		sink:     sink,
		clock:    clock.New(),
		interval: DefaultInterval,
		logger:   logger,
	}
}

func (s *Sequencer) WithInterval(d time.Duration) *Sequencer {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sequencer) WithClock(c clock.Clock) *Sequencer {
	if c != nil {
		s.clock = c
	}
	return s
}

func (s *Sequencer) WithMetrics(m demoMetrics) *Sequencer {
	s.metrics = m
	return s
}

// Start cancels any running sequence and begins the one for feature. It
// returns the number of steps scheduled. A feature without steps emits a
// cleared highlight immediately and returns 0.
func (s *Sequencer) Start(feature string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.cancelLocked()
	s.gen++

	var steps []string
	if s.steps != nil {
		steps = s.steps.Steps(feature)
	}
	if len(steps) == 0 {
		s.current = Highlight{Feature: feature}
		s.observe("empty")
		s.logger.Debug("demo sequence empty", "feature", feature)
		s.sink(s.current)
		return 0
	}

	// The ticker is created before the goroutine so its first tick is
	// scheduled relative to the call to Start.
	ticker := s.clock.Ticker(s.interval)
	stop := make(chan struct{})
	s.ticker = ticker
	s.stop = stop
	s.running = true
	s.observe("started")
	s.logger.Info("demo sequence started", "feature", feature, "steps", len(steps))

	go s.run(s.gen, feature, steps, ticker, stop)
	return len(steps)
}

func (s *Sequencer) run(gen uint64, feature string, steps []string, ticker *clock.Ticker, stop <-chan struct{}) {
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if i < len(steps) {
			if !s.emit(gen, Highlight{Feature: feature, Element: steps[i], Step: i + 1, Total: len(steps)}) {
				return
			}
			continue
		}
		s.finish(gen, Highlight{Feature: feature, Step: len(steps), Total: len(steps)})
		return
	}
}

func (s *Sequencer) emit(gen uint64, h Highlight) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return false
	}
	s.current = h
	s.sink(h)
	return true
}

func (s *Sequencer) finish(gen uint64, h Highlight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.ticker.Stop()
	s.ticker, s.stop, s.running = nil, nil, false
	s.current = h
	s.observe("completed")
	s.logger.Debug("demo sequence completed", "feature", h.Feature)
	s.sink(h)
}

// cancelLocked stops the running ticker and signals its goroutine.
func (s *Sequencer) cancelLocked() bool {
	if !s.running {
		return false
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker, s.stop, s.running = nil, nil, false
	s.observe("cancelled")
	return true
}

// Stop cancels the running sequence and emits a cleared highlight.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	feature := s.current.Feature
	if s.cancelLocked() {
		s.gen++
		s.current = Highlight{Feature: feature}
		s.sink(s.current)
	}
}

// Close cancels the running sequence without emitting. The Sequencer is
// inert afterwards.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelLocked()
	s.gen++
	s.closed = true
}

// Current returns the most recent emission.
func (s *Sequencer) Current() Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Running reports whether a sequence is in flight.
func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sequencer) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveDemo(outcome)
	}
}
