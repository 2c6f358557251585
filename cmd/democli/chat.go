package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/usmanalidev/demo-agent-ai/internal/assistant"
	"github.com/usmanalidev/demo-agent-ai/internal/conversation"
	"github.com/usmanalidev/demo-agent-ai/internal/demo"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// printer serializes transcript output from session and sequencer goroutines.
type printer struct {
	conversation.NopObserver
	mu  sync.Mutex
	out io.Writer
	seq *demo.Sequencer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) MessageAppended(m conversation.Message) {
	if m.Role == conversation.RoleAssistant {
		p.printf("assistant> %s\n", m.Text)
	}
}

func (p *printer) DemoRequested(feature string) {
	p.seq.Start(feature)
}

func (p *printer) Noticed(n conversation.Notice) {
	p.printf("! %s\n", n.Text)
}

func (p *printer) highlight(h demo.Highlight) {
	if !h.Active() {
		p.printf("  [demo] %s: done\n", h.Feature)
		return
	}
	p.printf("  [demo] %s: step %d/%d %s\n", h.Feature, h.Step, h.Total, h.Element)
}

type chatOptions struct {
	replyDelay time.Duration
	demoDelay  time.Duration
	interval   time.Duration
	maxPending int
	seed       uint64
}

func newChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant over stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			logger := logging.NewWithWriter(level, cmd.ErrOrStderr())

			var matcherOpts []assistant.Option
			if opts.seed != 0 {
				matcherOpts = append(matcherOpts, assistant.WithSeed(opts.seed))
			}
			matcher := assistant.NewMatcher(c, matcherOpts...)
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), matcher, c, c.Greeting(), opts, logger)
		},
	}
	cmd.Flags().DurationVar(&opts.replyDelay, "reply-delay", 1500*time.Millisecond, "simulated thinking time before each reply")
	cmd.Flags().DurationVar(&opts.demoDelay, "demo-delay", time.Second, "pause between a reply and its walkthrough")
	cmd.Flags().DurationVar(&opts.interval, "interval", demo.DefaultInterval, "time each highlight stays on screen")
	cmd.Flags().IntVar(&opts.maxPending, "max-pending", 8, "replies that may queue before input waits")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for filler replies (0 picks randomly)")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, matcher conversation.Matcher, steps demo.StepSource, greeting string, opts chatOptions, logger *logging.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &printer{out: out}
	p.seq = demo.NewSequencer(steps, p.highlight, logger).WithInterval(opts.interval)
	defer p.seq.Close()

	session := conversation.NewSession("cli", matcher, conversation.Config{
		ReplyDelay: opts.replyDelay,
		DemoDelay:  opts.demoDelay,
		MaxPending: opts.maxPending,
		Greeting:   greeting,
	}, conversation.WithObserver(p), conversation.WithLogger(logger))
	defer session.Close()

	for _, m := range session.Messages() {
		p.MessageAppended(m)
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return nil
		}
		if err := submit(ctx, session, line); err != nil && !errors.Is(err, conversation.ErrEmptyMessage) {
			p.printf("! %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return waitIdle(ctx, session, p.seq, opts.demoDelay)
}

// submit blocks while the reply queue is full so piped scripts keep every
// line.
func submit(ctx context.Context, session *conversation.Session, line string) error {
	const poll = 10 * time.Millisecond
	for {
		err := session.Submit(line)
		if !errors.Is(err, conversation.ErrTooManyPending) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// waitIdle returns once no reply is pending and no walkthrough is playing or
// about to start.
func waitIdle(ctx context.Context, session *conversation.Session, seq *demo.Sequencer, demoDelay time.Duration) error {
	const poll = 10 * time.Millisecond
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	quietSince := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if session.Status().PendingReply || seq.Running() {
			quietSince = time.Now()
			continue
		}
		if time.Since(quietSince) > demoDelay+poll {
			return nil
		}
	}
}
