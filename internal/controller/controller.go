// Package controller intercepts message submission on a chat page, enriches
// the message with memories and releases it to the host.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/chat-memory/internal/dom"
	"github.com/rcliao/chat-memory/internal/history"
	"github.com/rcliao/chat-memory/internal/memclient"
	"github.com/rcliao/chat-memory/internal/model"
	"github.com/rcliao/chat-memory/internal/site"
	"github.com/rcliao/chat-memory/internal/watcher"
)

// Notices shown on the page.
const (
	NoticeEmpty  = "Please enter a message before adding memories."
	NoticeNoSend = "Could not find the send button, please send manually."
)

// Searcher is the search half of the memory service.
type Searcher interface {
	Search(ctx context.Context, req memclient.SearchRequest) ([]model.MemoryRecord, error)
}

// Dispatcher schedules detached add calls.
type Dispatcher interface {
	Dispatch(tag string, req memclient.AddRequest)
}

// Recorder persists finished cycles. Failures are logged only.
type Recorder interface {
	RecordCycle(ctx context.Context, c model.Cycle) error
}

// Options configures a Controller.
type Options struct {
	UserID        string
	SessionID     string
	Limit         int
	Threshold     *float64
	Infer         *bool
	ReleaseDelay  time.Duration
	SearchTimeout time.Duration
	History       history.Options
	// Enabled reports whether memory is on for this cycle. Nil means on.
	Enabled func(ctx context.Context) bool
}

// Controller owns the submission state machine for one page.
type Controller struct {
	adapter  site.Adapter
	host     dom.Host
	locator  *dom.Locator
	watcher  *watcher.Watcher
	releaser *Releaser
	search   Searcher
	adds     Dispatcher
	journal  Recorder
	log      *zap.Logger
	opts     Options

	mu      sync.Mutex
	state   State
	pending *model.PendingSubmission

	cycles sync.WaitGroup
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithRecorder sets the cycle journal.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.journal = r }
}

// New creates a controller for a page served by adapter.
func New(h dom.Host, a site.Adapter, s Searcher, d Dispatcher, opts Options, options ...Option) *Controller {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.ReleaseDelay == 0 {
		opts.ReleaseDelay = DefaultReleaseDelay
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 10 * time.Second
	}
	if opts.History.Turns == 0 && opts.History.MaxTurnSize == 0 {
		opts.History = history.DefaultOptions()
	}

	c := &Controller{
		adapter: a,
		host:    h,
		search:  s,
		adds:    d,
		opts:    opts,
		log:     zap.NewNop(),
	}
	for _, o := range options {
		o(c)
	}
	c.log = c.log.With(zap.String("site", a.Name))
	c.locator = dom.NewLocator(h, a)
	c.watcher = watcher.New(h, c.locator, c.log)
	c.releaser = NewReleaser(h, c.locator, opts.ReleaseDelay)
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns a copy of the in-flight submission, if any.
func (c *Controller) Pending() (model.PendingSubmission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return model.PendingSubmission{}, false
	}
	return *c.pending, true
}

// Run consumes page events until ctx is done or events is closed, then
// waits for the running cycle to finish.
func (c *Controller) Run(ctx context.Context, events <-chan dom.Event) error {
	defer c.cycles.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.Handle(ctx, ev); err != nil && !errors.Is(err, ErrReentrant) {
				c.log.Warn("event handling failed", zap.String("event", string(ev.Type)), zap.Error(err))
			}
		}
	}
}

// Handle processes one page event without blocking on the network.
// Submissions start a cycle on its own goroutine; a submission while a
// cycle runs returns ErrReentrant and changes nothing.
func (c *Controller) Handle(ctx context.Context, ev dom.Event) error {
	if ev.Type == dom.EventMutation {
		_, err := c.watcher.Sync(ctx)
		return err
	}
	if !ev.IsSubmission() {
		return fmt.Errorf("unknown event %q", ev.Type)
	}

	p, err := c.capture(ev)
	if err != nil {
		c.log.Debug("submission ignored", zap.String("event", string(ev.Type)), zap.Error(err))
		return err
	}

	c.cycles.Add(1)
	go func() {
		defer c.cycles.Done()
		if err := c.runCycle(ctx, p, ev); err != nil && !errors.Is(err, ErrEmptyInput) {
			c.log.Warn("submission cycle failed", zap.String("cycle", p.CycleID), zap.Error(err))
		}
	}()
	return nil
}

// Submit runs a whole cycle on the caller's goroutine.
func (c *Controller) Submit(ctx context.Context, ev dom.Event) error {
	p, err := c.capture(ev)
	if err != nil {
		return err
	}
	return c.runCycle(ctx, p, ev)
}

// Wait blocks until a cycle started by Handle finishes.
func (c *Controller) Wait() {
	c.cycles.Wait()
}

// capture performs Idle→Captured. It is the only entry into a cycle.
func (c *Controller) capture(ev dom.Event) (*model.PendingSubmission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return nil, ErrReentrant
	}
	if err := c.transitionLocked(Idle, Captured); err != nil {
		return nil, err
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	c.pending = &model.PendingSubmission{
		CycleID:    ulid.Make().String(),
		Site:       c.adapter.Name,
		InFlight:   true,
		CapturedAt: at,
	}
	return c.pending, nil
}

// reset returns to Idle and destroys the pending submission.
func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.pending = nil
}

func (c *Controller) update(fn func(p *model.PendingSubmission)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		fn(c.pending)
	}
}

func (c *Controller) enabled(ctx context.Context) bool {
	if c.opts.Enabled == nil {
		return true
	}
	return c.opts.Enabled(ctx)
}

// shouldSend reports whether the event asks for the message to go out.
// The trigger control and shortcut only compose.
func shouldSend(ev dom.Event) bool {
	return ev.Type == dom.EventEnter || ev.Type == dom.EventSendClick
}
