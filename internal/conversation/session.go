// Package conversation owns the assistant session: ordered message history,
// the simulated thinking delay, demo dispatch and spoken replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/usmanalidev/demo-agent-ai/internal/assistant"
	"github.com/usmanalidev/demo-agent-ai/internal/speech"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// Matcher produces the canned reply for user input.
type Matcher interface {
	Match(input string) assistant.Reply
}

// Observer receives session events in the order the session produced them.
// Callbacks run on session goroutines and must not call mutating Session
// methods synchronously.
type Observer interface {
	MessageAppended(Message)
	StatusChanged(Status)
	DemoRequested(feature string)
	Noticed(Notice)
}

// NopObserver implements Observer with no-ops, for embedding.
type NopObserver struct{}

func (NopObserver) MessageAppended(Message)      {}
func (NopObserver) StatusChanged(Status)         {}
func (NopObserver) DemoRequested(feature string) {}
func (NopObserver) Noticed(Notice)               {}

// Player plays synthesized audio and returns when playback has finished.
type Player interface {
	Play(ctx context.Context, u Utterance) error
}

// Metrics is the subset of the metrics recorder a session reports to.
type Metrics interface {
	ObserveTurn(kind string)
	ObserveSpeech(outcome string, seconds float64)
	ObserveNotice(kind string)
	SessionOpened()
	SessionClosed()
}

// Config holds the session timings.
type Config struct {
	ReplyDelay    time.Duration
	DemoDelay     time.Duration
	Greeting      string
	MaxPending    int
	SpeechTimeout time.Duration
}

// DefaultConfig returns the demo's standard pacing.
func DefaultConfig() Config {
	return Config{
		ReplyDelay:    1500 * time.Millisecond,
		DemoDelay:     time.Second,
		MaxPending:    8,
		SpeechTimeout: 15 * time.Second,
	}
}

// Option customizes a Session.
type Option func(*Session)

func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithSynthesizer(synth speech.Synthesizer) Option {
	return func(s *Session) { s.synth = synth }
}

func WithPlayer(p Player) Option {
	return func(s *Session) { s.player = p }
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithCredential seeds the speech credential.
func WithCredential(key string) Option {
	return func(s *Session) { s.credential = strings.TrimSpace(key) }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

type turn struct {
	input string
	timer *clock.Timer
	ready bool
}

type event func(Observer)

// Session is one conversation. All state changes happen under mu; observer
// callbacks are delivered under emitMu so they arrive in mutation order.
type Session struct {
	id       string
	cfg      Config
	matcher  Matcher
	synth    speech.Synthesizer
	player   Player
	observer Observer
	clock    clock.Clock
	logger   *logging.Logger
	metrics  Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	emitMu        sync.Mutex
	messages      []Message
	turns         []*turn
	demoSeq       uint64
	demoTimers    map[uint64]*clock.Timer
	credential    string
	activeFeature string
	speaking      bool
	utterance     string
	stopSpeech    context.CancelFunc
	listening     bool
	closed        bool
	lastActive    time.Time
}

// NewSession creates a session and seeds the greeting, if any.
func NewSession(id string, matcher Matcher, cfg Config, opts ...Option) *Session {
	defaults := DefaultConfig()
	if cfg.ReplyDelay < 0 {
		cfg.ReplyDelay = defaults.ReplyDelay
	}
	if cfg.DemoDelay < 0 {
		cfg.DemoDelay = defaults.DemoDelay
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaults.MaxPending
	}
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = defaults.SpeechTimeout
	}
	if matcher == nil {
		matcher = assistant.NewMatcher(nil)
	}

	s := &Session{
		id:         id,
		cfg:        cfg,
		matcher:    matcher,
		observer:   NopObserver{},
		clock:      clock.New(),
		logger:     logging.Default(),
		demoTimers: make(map[uint64]*clock.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithSession(id)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.lastActive = s.clock.Now()

	if greeting := strings.TrimSpace(cfg.Greeting); greeting != "" {
		s.appendLocked(RoleAssistant, greeting, "")
	}
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// commit releases mu and delivers events. Callers hold mu.
func (s *Session) commit(events []event) {
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, e := range events {
		e(s.observer)
	}
}

func (s *Session) appendLocked(role Role, text, feature string) Message {
	msg := Message{
		ID:        newMessageID(),
		Text:      text,
		Role:      role,
		Feature:   feature,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *Session) statusLocked() Status {
	return Status{
		PendingReply:  len(s.turns) > 0,
		ActiveFeature: s.activeFeature,
		SpeechEnabled: s.credential != "",
		IsSpeaking:    s.speaking,
		IsListening:   s.listening,
	}
}

func (s *Session) statusEventLocked() event {
	st := s.statusLocked()
	return func(o Observer) { o.StatusChanged(st) }
}

func (s *Session) noticeLocked(kind NoticeKind) event {
	n := newNotice(kind)
	if s.metrics != nil {
		s.metrics.ObserveNotice(string(kind))
	}
	return func(o Observer) { o.Noticed(n) }
}

func messageEvent(msg Message) event {
	return func(o Observer) { o.MessageAppended(msg) }
}

// Submit appends a user message and schedules the assistant reply.
// Whitespace-only input is rejected without changing state.
func (s *Session) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if len(s.turns) >= s.cfg.MaxPending {
		s.mu.Unlock()
		return ErrTooManyPending
	}

	msg := s.appendLocked(RoleUser, text, "")
	t := &turn{input: text}
	t.timer = s.clock.AfterFunc(s.cfg.ReplyDelay, func() { s.replyReady(t) })
	s.turns = append(s.turns, t)
	s.lastActive = s.clock.Now()
	s.logger.Debug("user message appended", "message_id", msg.ID, "pending", len(s.turns))

	s.commit([]event{messageEvent(msg), s.statusEventLocked()})
	return nil
}

// replyReady marks t ready and appends every ready reply at the head of the
// queue. Timers may fire out of order; replies never are.
func (s *Session) replyReady(t *turn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	t.ready = true

	var events []event
	for len(s.turns) > 0 && s.turns[0].ready {
		head := s.turns[0]
		s.turns = s.turns[1:]

		reply := s.matcher.Match(head.input)
		msg := s.appendLocked(RoleAssistant, reply.Text, reply.Feature)
		if s.metrics != nil {
			s.metrics.ObserveTurn(string(reply.Kind))
		}
		s.logger.Info("assistant reply appended", "message_id", msg.ID, "kind", reply.Kind, "feature", reply.Feature)
		events = append(events, messageEvent(msg))

		if reply.HasDemo() {
			s.scheduleDemoLocked(reply.Feature)
		}
		if s.credential != "" {
			s.speakLocked(msg)
		}
	}
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}
	events = append(events, s.statusEventLocked())
	s.commit(events)
}

func (s *Session) scheduleDemoLocked(feature string) {
	s.demoSeq++
	token := s.demoSeq
	s.demoTimers[token] = s.clock.AfterFunc(s.cfg.DemoDelay, func() { s.dispatchDemo(token, feature) })
}

func (s *Session) dispatchDemo(token uint64, feature string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.demoTimers[token]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.demoTimers, token)
	s.commit(s.requestDemoLocked(feature))
}

func (s *Session) requestDemoLocked(feature string) []event {
	s.activeFeature = feature
	s.logger.Info("demo requested", "feature", feature)
	return []event{
		func(o Observer) { o.DemoRequested(feature) },
		s.statusEventLocked(),
	}
}

// RequestDemo hands feature to the host immediately, bypassing the chat.
func (s *Session) RequestDemo(feature string) error {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return errors.New("conversation: feature required")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lastActive = s.clock.Now()
	s.commit(s.requestDemoLocked(feature))
	return nil
}

// speakLocked starts synthesis for msg, superseding any utterance in flight.
func (s *Session) speakLocked(msg Message) {
	if s.synth == nil {
		s.logger.Debug("speech skipped, no synthesizer configured")
		return
	}
	if s.stopSpeech != nil {
		s.stopSpeech()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	id := newUtteranceID()
	s.utterance = id
	s.stopSpeech = cancel
	s.speaking = true
	go s.speak(ctx, cancel, id, s.credential, msg)
}

func (s *Session) speak(ctx context.Context, cancel context.CancelFunc, id, credential string, msg Message) {
	defer cancel()
	start := s.clock.Now()

	synthCtx, synthCancel := context.WithTimeout(ctx, s.cfg.SpeechTimeout)
	audio, err := s.synth.Synthesize(synthCtx, speech.Request{APIKey: credential, Text: msg.Text})
	synthCancel()
	elapsed := s.clock.Since(start).Seconds()

	if err == nil && s.player != nil {
		err = s.player.Play(ctx, Utterance{ID: id, MessageID: msg.ID, Audio: audio})
	}
	s.finishSpeech(id, msg.ID, err, elapsed)
}

func (s *Session) finishSpeech(id, messageID string, err error, elapsed float64) {
	s.mu.Lock()
	if s.closed || s.utterance != id {
		s.mu.Unlock()
		return
	}
	s.speaking = false
	s.utterance = ""
	s.stopSpeech = nil

	var events []event
	if err != nil {
		outcome := "failed"
		if errors.Is(err, speech.ErrCircuitOpen) {
			outcome = "circuit_open"
		}
		if s.metrics != nil {
			s.metrics.ObserveSpeech(outcome, elapsed)
		}
		s.logger.Error("speech playback failed", "message_id", messageID, "error", err)
		events = append(events, s.noticeLocked(NoticeSpeechFailed))
	} else if s.metrics != nil {
		s.metrics.ObserveSpeech("ok", elapsed)
	}
	events = append(events, s.statusEventLocked())
	s.commit(events)
}

// Replay speaks an earlier assistant message again.
func (s *Session) Replay(messageID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.credential == "" {
		s.commit([]event{s.noticeLocked(NoticeCredentialRequired)})
		return ErrCredentialRequired
	}
	if s.synth == nil {
		s.mu.Unlock()
		return ErrSpeechUnavailable
	}
	if s.speaking {
		s.mu.Unlock()
		return ErrAlreadySpeaking
	}

	var target *Message
	for i := range s.messages {
		if s.messages[i].ID == messageID && s.messages[i].Role == RoleAssistant {
			target = &s.messages[i]
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return ErrMessageNotFound
	}

	s.lastActive = s.clock.Now()
	s.speakLocked(*target)
	s.commit([]event{s.statusEventLocked()})
	return nil
}

// SetCredential replaces the speech credential. An empty key disables speech
// and stops any utterance in flight.
func (s *Session) SetCredential(key string) error {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.credential = key
	if key == "" && s.stopSpeech != nil {
		s.stopSpeech()
		s.stopSpeech = nil
		s.utterance = ""
		s.speaking = false
	}
	s.lastActive = s.clock.Now()
	s.commit([]event{s.statusEventLocked()})
	return nil
}

// BeginListening records that the client started speech recognition.
// supported is false when the client runtime has no recognizer.
func (s *Session) BeginListening(supported bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lastActive = s.clock.Now()
	if !supported {
		s.listening = false
		s.commit([]event{s.noticeLocked(NoticeRecognitionUnavailable), s.statusEventLocked()})
		return ErrRecognitionUnavailable
	}
	s.listening = true
	s.commit([]event{s.statusEventLocked()})
	return nil
}

// FinishListening ends recognition and returns the final transcript. The
// transcript is not submitted; the client decides whether to send it.
func (s *Session) FinishListening(transcript string, recognitionErr error) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	s.listening = false
	if recognitionErr != nil {
		s.logger.Warn("speech recognition failed", "error", recognitionErr)
		s.commit([]event{s.noticeLocked(NoticeRecognitionFailed), s.statusEventLocked()})
		return "", fmt.Errorf("%w: %v", ErrRecognitionFailed, recognitionErr)
	}
	s.commit([]event{s.statusEventLocked()})
	return strings.TrimSpace(transcript), nil
}

// Snapshot returns a copy of the full session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		SessionID: s.id,
		Messages:  append([]Message(nil), s.messages...),
		Status:    s.statusLocked(),
	}
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Status returns the current status flags.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// IdleSince reports when the session last saw user activity. A session with
// pending replies or speech in flight is never idle.
func (s *Session) IdleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) > 0 || s.speaking {
		return time.Time{}, false
	}
	return s.lastActive, true
}

// Close cancels every pending timer and in-flight speech request. No
// observer callbacks fire after Close returns. It must not be called from an
// Observer callback.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, t := range s.turns {
		t.timer.Stop()
	}
	s.turns = nil
	for token, timer := range s.demoTimers {
		timer.Stop()
		delete(s.demoTimers, token)
	}
	s.cancel()
	s.speaking = false
	s.stopSpeech = nil
	s.utterance = ""
	s.mu.Unlock()

	// Deliveries that began before the close finish first.
	s.emitMu.Lock()
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
	s.emitMu.Unlock()
	s.logger.Debug("session closed")
}
