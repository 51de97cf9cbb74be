package memclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/chat-memory/internal/model"
)

// Adder is the add half of the memory service.
type Adder interface {
	Add(ctx context.Context, req AddRequest) ([]model.OperationRecord, error)
}

// AddResult is the outcome of one detached add.
type AddResult struct {
	Tag        string                  `json:"tag"`
	Operations []model.OperationRecord `json:"operations,omitempty"`
	Err        error                   `json:"-"`
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Timeout     time.Duration
	Concurrency int
	// OnResult, when set, is called for every completed add.
	OnResult func(AddResult)
}

// Dispatcher runs add calls detached from the caller. Failures are logged
// and handed to OnResult; they never reach the caller.
type Dispatcher struct {
	adder Adder
	log   *zap.Logger
	opts  DispatcherOptions
	base  context.Context
	sem   chan struct{}
	g     errgroup.Group
}

// NewDispatcher creates a dispatcher. Canceling ctx aborts pending adds.
func NewDispatcher(ctx context.Context, a Adder, log *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &Dispatcher{
		adder: a,
		log:   log,
		opts:  opts,
		base:  ctx,
		sem:   make(chan struct{}, opts.Concurrency),
	}
}

// Dispatch schedules an add and returns immediately. tag identifies the
// submission the add belongs to.
func (d *Dispatcher) Dispatch(tag string, req AddRequest) {
	d.g.Go(func() error {
		select {
		case d.sem <- struct{}{}:
		case <-d.base.Done():
			d.finish(AddResult{Tag: tag, Err: d.base.Err()})
			return nil
		}
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(d.base, d.opts.Timeout)
		defer cancel()

		ops, err := d.adder.Add(ctx, req)
		d.finish(AddResult{Tag: tag, Operations: ops, Err: err})
		return nil
	})
}

// Wait blocks until every dispatched add has finished.
func (d *Dispatcher) Wait() error {
	return d.g.Wait()
}

func (d *Dispatcher) finish(res AddResult) {
	if res.Err != nil {
		d.log.Warn("memory add failed", zap.String("cycle", res.Tag), zap.Error(res.Err))
	} else {
		for _, op := range res.Operations {
			d.log.Info("memory operation",
				zap.String("cycle", res.Tag),
				zap.String("event", op.Event),
				zap.String("id", op.ID),
				zap.String("memory", op.Memory))
		}
	}
	if d.opts.OnResult != nil {
		d.opts.OnResult(res)
	}
}
