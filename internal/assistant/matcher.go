// Package assistant turns free-text questions into canned replies, optionally
// naming a demo feature to play.
package assistant

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/usmanalidev/demo-agent-ai/internal/catalog"
)

// Kind classifies how a reply was produced.
type Kind string

const (
	KindFeature Kind = "feature"
	KindTopic   Kind = "topic"
	KindFiller  Kind = "filler"
)

// Reply is the matcher's answer. Feature is empty unless Kind is KindFeature.
type Reply struct {
	Text    string `json:"text"`
	Feature string `json:"feature,omitempty"`
	Kind    Kind   `json:"kind"`
}

// HasDemo reports whether the reply should trigger a demo.
func (r Reply) HasDemo() bool { return r.Feature != "" }

// Picker returns an index in [0, n).
type Picker func(n int) int

// Matcher resolves input against a catalog. It holds no mutable state apart
// from the picker, so a single instance is shared across sessions.
type Matcher struct {
	catalog *catalog.Catalog
	pick    Picker
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithPicker overrides the filler selection.
func WithPicker(p Picker) Option {
	return func(m *Matcher) {
		if p != nil {
			m.pick = p
		}
	}
}

// WithSeed makes filler selection deterministic.
func WithSeed(seed uint64) Option {
	return func(m *Matcher) {
		var mu sync.Mutex
		r := rand.New(rand.NewPCG(seed, seed))
		m.pick = func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return r.IntN(n)
		}
	}
}

// NewMatcher builds a matcher over c, or the embedded catalog when c is nil.
func NewMatcher(c *catalog.Catalog, opts ...Option) *Matcher {
	if c == nil {
		c = catalog.Default()
	}
	m := &Matcher{catalog: c, pick: rand.IntN}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns the reply for input. Feature keywords are checked first in
// table order, then fallback topics, then a random filler.
func (m *Matcher) Match(input string) Reply {
	lower := strings.ToLower(input)

	for _, f := range m.catalog.Features() {
		if strings.Contains(lower, f.Keyword) {
			return Reply{Text: m.catalog.DemoReply(f.Keyword), Feature: f.ID, Kind: KindFeature}
		}
	}

	for _, t := range m.catalog.Topics() {
		if t.Matches(lower) {
			return Reply{Text: t.Reply, Kind: KindTopic}
		}
	}

	fillers := m.catalog.Fillers()
	idx := m.pick(len(fillers))
	if idx < 0 || idx >= len(fillers) {
		idx = 0
	}
	return Reply{Text: fillers[idx], Kind: KindFiller}
}
