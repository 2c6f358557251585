package conversation

import (
	"github.com/benbjohnson/clock"
	"github.com/usmanalidev/demo-agent-ai/internal/speech"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// Factory builds sessions that share process-wide collaborators.
type Factory struct {
	Matcher     Matcher
	Synthesizer speech.Synthesizer
	Config      Config
	// Credential is the server default speech key given to new sessions.
	Credential string
	Clock      clock.Clock
	Logger     *logging.Logger
	Metrics    Metrics
}

// New creates a session. opts are applied after the factory defaults.
func (f *Factory) New(id string, opts ...Option) *Session {
	base := []Option{
		WithClock(f.Clock),
		WithCredential(f.Credential),
		WithLogger(f.Logger),
	}
	if f.Synthesizer != nil {
		base = append(base, WithSynthesizer(f.Synthesizer))
	}
	if f.Metrics != nil {
		base = append(base, WithMetrics(f.Metrics))
	}
	return NewSession(id, f.Matcher, f.Config, append(base, opts...)...)
}
