// Package speech turns assistant replies into audio through a third-party
// text-to-speech API, with an optional Redis audio cache and a circuit
// breaker in front of the upstream.
package speech

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCredentialMissing is returned when a request carries no API key.
	ErrCredentialMissing = errors.New("speech: api key required")
	// ErrSynthesisFailed covers every upstream failure: transport errors and
	// non-2xx responses alike.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrSynthesisFailed)
)

// Request is one synthesis call. APIKey is per call because sessions may
// bring their own credential.
type Request struct {
	APIKey string
	Text   string
}

// Audio is encoded speech, typically audio/mpeg.
type Audio struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech: upstream returned %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode exposes the upstream status to callers that map errors.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

func (e *StatusError) Unwrap() error { return ErrSynthesisFailed }

// clientFault reports whether err was caused by the caller's request rather
// than the upstream's health. Rate limiting counts as upstream trouble.
func clientFault(err error) bool {
	if errors.Is(err, ErrCredentialMissing) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != 429
	}
	return false
}
