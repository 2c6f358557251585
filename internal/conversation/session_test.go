package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usmanalidev/demo-agent-ai/internal/assistant"
	"github.com/usmanalidev/demo-agent-ai/internal/catalog"
	"github.com/usmanalidev/demo-agent-ai/internal/speech"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

const waitFor = time.Second

type recordingObserver struct {
	mu       sync.Mutex
	messages []Message
	statuses []Status
	notices  []Notice
	demos    chan string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{demos: make(chan string, 16)}
}

func (o *recordingObserver) MessageAppended(m Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, m)
}

func (o *recordingObserver) StatusChanged(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

func (o *recordingObserver) DemoRequested(feature string) { o.demos <- feature }

func (o *recordingObserver) Noticed(n Notice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, n)
}

func (o *recordingObserver) noticeKinds() []NoticeKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []NoticeKind
	for _, n := range o.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (o *recordingObserver) lastStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.statuses) == 0 {
		return Status{}
	}
	return o.statuses[len(o.statuses)-1]
}

type stubSynth struct {
	mu    sync.Mutex
	calls []speech.Request
	err   error
	block chan struct{}
}

func (s *stubSynth) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &speech.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"}, nil
}

func (s *stubSynth) requests() []speech.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Request(nil), s.calls...)
}

type testSession struct {
	*Session
	clock    *clock.Mock
	observer *recordingObserver
}

func newTestSession(t *testing.T, opts ...Option) *testSession {
	t.Helper()
	mock := clock.NewMock()
	obs := newRecordingObserver()
	base := []Option{WithClock(mock), WithObserver(obs), WithLogger(logging.Discard())}
	s := NewSession("sess-1", assistant.NewMatcher(nil, assistant.WithSeed(1)), DefaultConfig(), append(base, opts...)...)
	t.Cleanup(s.Close)
	return &testSession{Session: s, clock: mock, observer: obs}
}

func (ts *testSession) waitMessages(t *testing.T, n int) []Message {
	t.Helper()
	require.Eventually(t, func() bool { return len(ts.Messages()) == n }, waitFor, 2*time.Millisecond)
	return ts.Messages()
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	ts := newTestSession(t)
	before := ts.Snapshot()

	require.ErrorIs(t, ts.Submit(""), ErrEmptyMessage)
	require.ErrorIs(t, ts.Submit("   \t\n"), ErrEmptyMessage)

	assert.Equal(t, before, ts.Snapshot())
	assert.Empty(t, ts.observer.statuses)
}

func TestSubmitAppendsUserThenReplyAfterDelay(t *testing.T) {
	ts := newTestSession(t)

	require.NoError(t, ts.Submit("Tell me about upload"))
	msgs := ts.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "Tell me about upload", msgs[0].Text)
	assert.NotEmpty(t, msgs[0].ID)
	assert.True(t, ts.Status().PendingReply)

	ts.clock.Add(1499 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, ts.Messages(), 1, "reply must not appear before the delay")

	ts.clock.Add(time.Millisecond)
	msgs = ts.waitMessages(t, 2)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "upload", msgs[1].Feature)
	assert.Contains(t, msgs[1].Text, "how upload work")
	assert.False(t, ts.Status().PendingReply)

	select {
	case f := <-ts.observer.demos:
		t.Fatalf("demo %q dispatched before its delay", f)
	case <-time.After(10 * time.Millisecond):
	}

	ts.clock.Add(time.Second)
	select {
	case f := <-ts.observer.demos:
		assert.Equal(t, "upload", f)
	case <-time.After(waitFor):
		t.Fatal("demo callback did not fire")
	}
	require.Eventually(t, func() bool { return ts.Status().ActiveFeature == "upload" }, waitFor, 2*time.Millisecond)
}

func TestReplyWithoutFeatureDispatchesNoDemo(t *testing.T) {
	ts := newTestSession(t)
	require.NoError(t, ts.Submit("how does youtube work"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)
	assert.Empty(t, msgs[1].Feature)

	ts.clock.Add(5 * time.Second)
	select {
	case f := <-ts.observer.demos:
		t.Fatalf("unexpected demo %q", f)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRepliesKeepSubmissionOrder(t *testing.T) {
	ts := newTestSession(t)

	require.NoError(t, ts.Submit("show me search"))
	ts.clock.Add(500 * time.Millisecond)
	require.NoError(t, ts.Submit("now upload"))
	assert.True(t, ts.Status().PendingReply)

	ts.clock.Add(1000 * time.Millisecond)
	msgs := ts.waitMessages(t, 3)
	assert.Equal(t, "search", msgs[2].Feature)
	assert.True(t, ts.Status().PendingReply, "second reply still pending")

	ts.clock.Add(500 * time.Millisecond)
	msgs = ts.waitMessages(t, 4)
	assert.Equal(t, "upload", msgs[3].Feature)
	assert.False(t, ts.Status().PendingReply)
}

func TestSimultaneousTimersStillFlushInOrder(t *testing.T) {
	ts := newTestSession(t)
	inputs := []string{"search", "upload", "comments", "shorts", "playlist"}
	for _, in := range inputs {
		require.NoError(t, ts.Submit(in))
	}

	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2*len(inputs))

	var replies []string
	for _, m := range msgs[len(inputs):] {
		require.Equal(t, RoleAssistant, m.Role)
		replies = append(replies, m.Feature)
	}
	assert.Equal(t, inputs, replies)
}

func TestConcurrentSubmittersGetOrderedReplies(t *testing.T) {
	s := NewSession("sess-2", assistant.NewMatcher(nil), Config{ReplyDelay: time.Millisecond, MaxPending: 100}, WithLogger(logging.Discard()))
	defer s.Close()

	features := []string{"search", "upload", "comments", "shorts", "playlist", "analytics"}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Submit(fmt.Sprintf("tell me about %s", features[i%len(features)])))
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(s.Messages()) == 60 }, 2*time.Second, 5*time.Millisecond)

	var asked, answered []string
	for _, m := range s.Messages() {
		if m.Role == RoleUser {
			for _, f := range features {
				if m.Text == "tell me about "+f {
					asked = append(asked, f)
				}
			}
			continue
		}
		answered = append(answered, m.Feature)
	}
	assert.Equal(t, asked, answered)
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	mock := clock.NewMock()
	s := NewSession("sess-3", nil, Config{ReplyDelay: time.Second, MaxPending: 2}, WithClock(mock), WithLogger(logging.Discard()))
	defer s.Close()

	require.NoError(t, s.Submit("a"))
	require.NoError(t, s.Submit("b"))
	require.ErrorIs(t, s.Submit("c"), ErrTooManyPending)
	assert.Len(t, s.Messages(), 2)
}

func TestGreetingSeedsHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Greeting = catalog.Default().Greeting()
	s := NewSession("sess-4", nil, cfg, WithLogger(logging.Discard()))
	defer s.Close()

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Contains(t, msgs[0].Text, "YouTube demo assistant")
	assert.False(t, s.Status().PendingReply)
}

func TestMessageIDsAreUnique(t *testing.T) {
	ts := newTestSession(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, ts.Submit("hello"))
	}
	seen := map[string]bool{}
	for _, m := range ts.Messages() {
		assert.False(t, seen[m.ID])
		assert.Regexp(t, `^msg_`, m.ID)
		seen[m.ID] = true
	}
}

func TestSpeechRunsAfterReplyWhenCredentialPresent(t *testing.T) {
	synth := &stubSynth{}
	ts := newTestSession(t, WithSynthesizer(synth), WithCredential("key-1"))
	assert.True(t, ts.Status().SpeechEnabled)

	require.NoError(t, ts.Submit("search please"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)

	require.Eventually(t, func() bool { return len(synth.requests()) == 1 }, waitFor, 2*time.Millisecond)
	req := synth.requests()[0]
	assert.Equal(t, "key-1", req.APIKey)
	assert.Equal(t, msgs[1].Text, req.Text)
	require.Eventually(t, func() bool { return !ts.Status().IsSpeaking }, waitFor, 2*time.Millisecond)
	assert.Empty(t, ts.observer.noticeKinds())
}

func TestNoSpeechWithoutCredential(t *testing.T) {
	synth := &stubSynth{}
	ts := newTestSession(t, WithSynthesizer(synth))
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 2)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, synth.requests())
	assert.False(t, ts.Status().SpeechEnabled)
}

func TestSpeechFailureNotifiesAndKeepsTurn(t *testing.T) {
	synth := &stubSynth{err: &speech.StatusError{StatusCode: 401}}
	ts := newTestSession(t, WithSynthesizer(synth), WithCredential("bad"))

	require.NoError(t, ts.Submit("upload"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	require.Eventually(t, func() bool {
		kinds := ts.observer.noticeKinds()
		return len(kinds) == 1 && kinds[0] == NoticeSpeechFailed
	}, waitFor, 2*time.Millisecond)
	assert.False(t, ts.Status().IsSpeaking)

	// The session keeps working.
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 4)
}

type blockingPlayer struct {
	played chan Utterance
	done   chan struct{}
	err    error
}

func (p *blockingPlayer) Play(ctx context.Context, u Utterance) error {
	p.played <- u
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestIsSpeakingLastsForPlayback(t *testing.T) {
	synth := &stubSynth{}
	player := &blockingPlayer{played: make(chan Utterance, 1), done: make(chan struct{})}
	ts := newTestSession(t, WithSynthesizer(synth), WithCredential("k"), WithPlayer(player))

	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)

	var u Utterance
	select {
	case u = <-player.played:
	case <-time.After(waitFor):
		t.Fatal("audio never played")
	}
	assert.Equal(t, msgs[1].ID, u.MessageID)
	assert.Equal(t, []byte("mp3"), u.Audio.Data)
	assert.True(t, ts.Status().IsSpeaking)

	close(player.done)
	require.Eventually(t, func() bool { return !ts.Status().IsSpeaking }, waitFor, 2*time.Millisecond)
}

func TestPlaybackFailureNotifies(t *testing.T) {
	player := &blockingPlayer{played: make(chan Utterance, 1), done: make(chan struct{}), err: errors.New("autoplay blocked")}
	close(player.done)
	ts := newTestSession(t, WithSynthesizer(&stubSynth{}), WithCredential("k"), WithPlayer(player))

	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(ts.observer.noticeKinds()) == 1 }, waitFor, 2*time.Millisecond)
	assert.Equal(t, NoticeSpeechFailed, ts.observer.noticeKinds()[0])
}

func TestReplayRequiresCredential(t *testing.T) {
	ts := newTestSession(t, WithSynthesizer(&stubSynth{}))
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)

	require.ErrorIs(t, ts.Replay(msgs[1].ID), ErrCredentialRequired)
	assert.Equal(t, []NoticeKind{NoticeCredentialRequired}, ts.observer.noticeKinds())
}

func TestReplaySpeaksAssistantMessage(t *testing.T) {
	synth := &stubSynth{}
	ts := newTestSession(t, WithSynthesizer(synth))
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)
	assert.Empty(t, synth.requests())

	require.NoError(t, ts.SetCredential("  k2 "))
	assert.True(t, ts.Status().SpeechEnabled)

	require.ErrorIs(t, ts.Replay(msgs[0].ID), ErrMessageNotFound, "user messages cannot be replayed")
	require.ErrorIs(t, ts.Replay("missing"), ErrMessageNotFound)

	require.NoError(t, ts.Replay(msgs[1].ID))
	require.Eventually(t, func() bool { return len(synth.requests()) == 1 }, waitFor, 2*time.Millisecond)
	assert.Equal(t, "k2", synth.requests()[0].APIKey)
	assert.Equal(t, msgs[1].Text, synth.requests()[0].Text)
}

func TestReplayRefusedWhileSpeaking(t *testing.T) {
	synth := &stubSynth{block: make(chan struct{})}
	ts := newTestSession(t, WithSynthesizer(synth), WithCredential("k"))
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)
	require.True(t, ts.Status().IsSpeaking)

	require.ErrorIs(t, ts.Replay(msgs[1].ID), ErrAlreadySpeaking)
	close(synth.block)
	require.Eventually(t, func() bool { return !ts.Status().IsSpeaking }, waitFor, 2*time.Millisecond)
}

func TestReplayWithoutSynthesizer(t *testing.T) {
	ts := newTestSession(t, WithCredential("k"))
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	msgs := ts.waitMessages(t, 2)
	require.ErrorIs(t, ts.Replay(msgs[1].ID), ErrSpeechUnavailable)
}

func TestNewReplySupersedesUtterance(t *testing.T) {
	synth := &stubSynth{block: make(chan struct{})}
	ts := newTestSession(t, WithSynthesizer(synth), WithCredential("k"))

	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 2)
	require.NoError(t, ts.Submit("upload"))
	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 4)

	require.Eventually(t, func() bool { return len(synth.requests()) == 2 }, waitFor, 2*time.Millisecond)
	assert.True(t, ts.Status().IsSpeaking)
	// The cancelled first utterance raises no notice.
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, ts.observer.noticeKinds())

	close(synth.block)
	require.Eventually(t, func() bool { return !ts.Status().IsSpeaking }, waitFor, 2*time.Millisecond)
}

func TestClearingCredentialStopsSpeech(t *testing.T) {
	synth := &stubSynth{block: make(chan struct{})}
	ts := newTestSession(t, WithSynthesizer(synth), WithCredential("k"))
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 2)
	require.True(t, ts.Status().IsSpeaking)

	require.NoError(t, ts.SetCredential(""))
	st := ts.Status()
	assert.False(t, st.IsSpeaking)
	assert.False(t, st.SpeechEnabled)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, ts.observer.noticeKinds())
}

func TestListeningLifecycle(t *testing.T) {
	ts := newTestSession(t)

	require.ErrorIs(t, ts.BeginListening(false), ErrRecognitionUnavailable)
	assert.False(t, ts.Status().IsListening)
	assert.Equal(t, []NoticeKind{NoticeRecognitionUnavailable}, ts.observer.noticeKinds())

	require.NoError(t, ts.BeginListening(true))
	assert.True(t, ts.Status().IsListening)
	assert.True(t, ts.observer.lastStatus().IsListening)

	text, err := ts.FinishListening("  show me search  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "show me search", text)
	assert.False(t, ts.Status().IsListening)
	assert.Len(t, ts.Messages(), 0, "transcripts are not submitted")

	require.NoError(t, ts.BeginListening(true))
	_, err = ts.FinishListening("", errors.New("no-speech"))
	require.ErrorIs(t, err, ErrRecognitionFailed)
	assert.False(t, ts.Status().IsListening)
	assert.Equal(t, NoticeRecognitionFailed, ts.observer.noticeKinds()[1])
}

func TestRequestDemoBypassesChat(t *testing.T) {
	ts := newTestSession(t)
	require.NoError(t, ts.RequestDemo("subscriptions"))
	select {
	case f := <-ts.observer.demos:
		assert.Equal(t, "subscriptions", f)
	case <-time.After(waitFor):
		t.Fatal("demo not requested")
	}
	assert.Equal(t, "subscriptions", ts.Status().ActiveFeature)
	assert.Empty(t, ts.Messages())
	require.Error(t, ts.RequestDemo(" "))
}

func TestCloseCancelsPendingWork(t *testing.T) {
	ts := newTestSession(t)
	require.NoError(t, ts.Submit("upload"))
	ts.Close()

	ts.clock.Add(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, ts.Messages(), 1)
	assert.False(t, ts.Status().PendingReply)

	require.ErrorIs(t, ts.Submit("again"), ErrSessionClosed)
	require.ErrorIs(t, ts.RequestDemo("search"), ErrSessionClosed)
	require.ErrorIs(t, ts.SetCredential("k"), ErrSessionClosed)
	ts.Close()
}

func TestCloseCancelsScheduledDemo(t *testing.T) {
	ts := newTestSession(t)
	require.NoError(t, ts.Submit("upload"))
	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 2)

	ts.Close()
	ts.clock.Add(2 * time.Second)
	select {
	case f := <-ts.observer.demos:
		t.Fatalf("demo %q fired after close", f)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCloseAbortsSpeech(t *testing.T) {
	synth := &stubSynth{block: make(chan struct{})}
	ts := newTestSession(t, WithSynthesizer(synth), WithCredential("k"))
	require.NoError(t, ts.Submit("search"))
	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 2)
	require.Eventually(t, func() bool { return len(synth.requests()) == 1 }, waitFor, 2*time.Millisecond)

	ts.Close()
	assert.False(t, ts.Status().IsSpeaking)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, ts.observer.noticeKinds())
}

func TestIdleSince(t *testing.T) {
	ts := newTestSession(t)
	start := ts.clock.Now()

	since, idle := ts.IdleSince()
	assert.True(t, idle)
	assert.Equal(t, start, since)

	require.NoError(t, ts.Submit("hello"))
	_, idle = ts.IdleSince()
	assert.False(t, idle, "pending replies keep the session busy")

	ts.clock.Add(1500 * time.Millisecond)
	ts.waitMessages(t, 2)
	since, idle = ts.IdleSince()
	assert.True(t, idle)
	assert.Equal(t, start, since)
}
