package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// Breaker fails fast after repeated upstream failures. Caller mistakes such
// as a rejected key do not count against the upstream.
type Breaker struct {
	next   Synthesizer
	cb     *gobreaker.CircuitBreaker
	logger *logging.Logger
}

// NewBreaker trips after failures consecutive upstream errors and probes
// again after cooldown.
func NewBreaker(next Synthesizer, failures int, cooldown time.Duration, logger *logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.Default()
	}
	if failures <= 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	threshold := uint32(failures)
	b := &Breaker{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "speech-synthesis",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("speech breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Synthesize(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	audio, _ := out.(*Audio)
	return audio, nil
}
