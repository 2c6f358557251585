// Package catalog holds the static tables behind the demo assistant: the
// ordered feature keyword table, fallback topics, filler replies and the
// highlight steps for each demo feature. A Catalog is immutable once built.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidCatalog is returned when a catalog document fails validation.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog")

// Feature maps a lowercase keyword phrase to a demo feature identifier.
type Feature struct {
	Keyword string `yaml:"keyword" json:"keyword"`
	ID      string `yaml:"id" json:"id"`
}

// Topic is a fallback rule applied when no feature keyword matches. All
// terms in All must be present, or at least one term in Any.
type Topic struct {
	Name  string   `yaml:"name" json:"name"`
	All   []string `yaml:"all" json:"all,omitempty"`
	Any   []string `yaml:"any" json:"any,omitempty"`
	Reply string   `yaml:"reply" json:"reply"`
}

// Matches reports whether the lowercased input satisfies the rule.
func (t Topic) Matches(lower string) bool {
	if len(t.All) > 0 {
		for _, term := range t.All {
			if !strings.Contains(lower, term) {
				return false
			}
		}
		return true
	}
	for _, term := range t.Any {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Demo is the highlight sequence for one feature.
type Demo struct {
	Feature string   `yaml:"feature" json:"feature"`
	Title   string   `yaml:"title" json:"title"`
	Steps   []string `yaml:"steps" json:"steps"`
}

type document struct {
	Greeting  string    `yaml:"greeting"`
	DemoReply string    `yaml:"demo_reply"`
	Features  []Feature `yaml:"features"`
	Topics    []Topic   `yaml:"topics"`
	Fillers   []string  `yaml:"fillers"`
	Demos     []Demo    `yaml:"demos"`
}

// Catalog is the read-only view over a parsed document.
type Catalog struct {
	greeting  string
	demoReply string
	features  []Feature
	topics    []Topic
	fillers   []string
	demos     []Demo
	steps     map[string][]string
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It is parsed once per process.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load reads a catalog from path. An empty path returns Default().
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	if !strings.Contains(doc.DemoReply, "{keyword}") {
		return nil, fmt.Errorf("%w: demo_reply must contain {keyword}", ErrInvalidCatalog)
	}
	if len(doc.Fillers) == 0 {
		return nil, fmt.Errorf("%w: at least one filler reply is required", ErrInvalidCatalog)
	}

	c := &Catalog{
		greeting:  strings.TrimSpace(doc.Greeting),
		demoReply: doc.DemoReply,
		steps:     make(map[string][]string, len(doc.Demos)),
	}

	for i, f := range doc.Features {
		f.Keyword = normalize(f.Keyword)
		f.ID = strings.TrimSpace(f.ID)
		if f.Keyword == "" || f.ID == "" {
			return nil, fmt.Errorf("%w: feature %d needs keyword and id", ErrInvalidCatalog, i)
		}
		c.features = append(c.features, f)
	}

	for i, t := range doc.Topics {
		t.All = normalizeAll(t.All)
		t.Any = normalizeAll(t.Any)
		if len(t.All) == 0 && len(t.Any) == 0 {
			return nil, fmt.Errorf("%w: topic %d has no terms", ErrInvalidCatalog, i)
		}
		if strings.TrimSpace(t.Reply) == "" {
			return nil, fmt.Errorf("%w: topic %d has no reply", ErrInvalidCatalog, i)
		}
		c.topics = append(c.topics, t)
	}

	for _, filler := range doc.Fillers {
		if filler = strings.TrimSpace(filler); filler != "" {
			c.fillers = append(c.fillers, filler)
		}
	}
	if len(c.fillers) == 0 {
		return nil, fmt.Errorf("%w: filler replies are blank", ErrInvalidCatalog)
	}

	for _, d := range doc.Demos {
		d.Feature = strings.TrimSpace(d.Feature)
		if d.Feature == "" {
			return nil, fmt.Errorf("%w: demo without feature", ErrInvalidCatalog)
		}
		if _, dup := c.steps[d.Feature]; dup {
			return nil, fmt.Errorf("%w: duplicate demo %q", ErrInvalidCatalog, d.Feature)
		}
		c.steps[d.Feature] = append([]string(nil), d.Steps...)
		c.demos = append(c.demos, d)
	}

	return c, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = normalize(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Greeting is the assistant message seeded into every new session.
func (c *Catalog) Greeting() string { return c.greeting }

// DemoReply renders the reply for a matched feature keyword.
func (c *Catalog) DemoReply(keyword string) string {
	return strings.ReplaceAll(c.demoReply, "{keyword}", keyword)
}

// Features returns the keyword table in match order.
func (c *Catalog) Features() []Feature {
	return append([]Feature(nil), c.features...)
}

// Topics returns the fallback rules in evaluation order.
func (c *Catalog) Topics() []Topic {
	out := make([]Topic, len(c.topics))
	for i, t := range c.topics {
		t.All = append([]string(nil), t.All...)
		t.Any = append([]string(nil), t.Any...)
		out[i] = t
	}
	return out
}

// Fillers returns the generic replies used when nothing else matches.
func (c *Catalog) Fillers() []string {
	return append([]string(nil), c.fillers...)
}

// Demos returns every demo with a highlight sequence.
func (c *Catalog) Demos() []Demo {
	out := make([]Demo, len(c.demos))
	for i, d := range c.demos {
		d.Steps = append([]string(nil), d.Steps...)
		out[i] = d
	}
	return out
}

// Demo looks up a single demo by feature id.
func (c *Catalog) Demo(feature string) (Demo, bool) {
	for _, d := range c.demos {
		if d.Feature == feature {
			d.Steps = append([]string(nil), d.Steps...)
			return d, true
		}
	}
	return Demo{}, false
}

// Steps returns the highlight sequence for feature, or nil when the feature
// has no demo.
func (c *Catalog) Steps(feature string) []string {
	steps, ok := c.steps[feature]
	if !ok {
		return nil
	}
	return append([]string(nil), steps...)
}
