// Package watcher keeps the controller's page hooks attached while the host
// page re-renders its input and send controls.
package watcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/chat-memory/internal/dom"
)

// Per-element flags marking an attached hook.
const (
	FlagInputHooked  = "memInputHooked"
	FlagSubmitHooked = "memSubmitHooked"
)

// Host is the subset of dom.Host the watcher needs.
type Host interface {
	dom.Finder
	Marked(ctx context.Context, ref dom.Ref, flag string) (bool, error)
	Mark(ctx context.Context, ref dom.Ref, flag string) error
	Attach(ctx context.Context, ref dom.Ref) error
	AttachTrigger(ctx context.Context, anchor dom.Ref) error
	RemoveOrphans(ctx context.Context) (int, error)
}

// Result reports what a Sync pass changed.
type Result struct {
	InputAttached  bool `json:"input_attached"`
	SubmitAttached bool `json:"submit_attached"`
	Removed        int  `json:"removed"`
}

// Changed reports whether the pass touched the page.
func (r Result) Changed() bool {
	return r.InputAttached || r.SubmitAttached || r.Removed > 0
}

// Watcher re-attaches hooks on each mutation notification.
type Watcher struct {
	host    Host
	locator *dom.Locator
	log     *zap.Logger
}

// New creates a watcher for the host page.
func New(h Host, l *dom.Locator, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{host: h, locator: l, log: log}
}

// Sync attaches hooks to elements that exist and are not yet marked, and
// removes trigger controls whose anchor disappeared. Missing elements are
// not errors; the next notification retries.
func (w *Watcher) Sync(ctx context.Context) (Result, error) {
	var res Result
	var errs []error

	removed, err := w.host.RemoveOrphans(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("remove orphans: %w", err))
	}
	res.Removed = removed

	input, err := w.locator.LocateInput(ctx)
	if err != nil {
		return res, err
	}
	if input != nil {
		attached, err := w.ensure(ctx, *input, FlagInputHooked, false)
		if err != nil {
			errs = append(errs, err)
		}
		res.InputAttached = attached
	}

	submit, err := w.locator.LocateSubmitControl(ctx)
	if err != nil {
		return res, err
	}
	if submit != nil {
		attached, err := w.ensure(ctx, *submit, FlagSubmitHooked, true)
		if err != nil {
			errs = append(errs, err)
		}
		res.SubmitAttached = attached
	}

	if res.Changed() {
		w.log.Debug("hooks synced",
			zap.Bool("input", res.InputAttached),
			zap.Bool("submit", res.SubmitAttached),
			zap.Int("removed", res.Removed))
	}
	return res, errors.Join(errs...)
}

func (w *Watcher) ensure(ctx context.Context, ref dom.Ref, flag string, trigger bool) (bool, error) {
	marked, err := w.host.Marked(ctx, ref, flag)
	if err != nil {
		return false, w.vanished(ref, err)
	}
	if marked {
		return false, nil
	}
	if err := w.host.Attach(ctx, ref); err != nil {
		return false, w.vanished(ref, err)
	}
	if trigger {
		if err := w.host.AttachTrigger(ctx, ref); err != nil {
			return false, w.vanished(ref, err)
		}
	}
	if err := w.host.Mark(ctx, ref, flag); err != nil {
		return false, w.vanished(ref, err)
	}
	return true, nil
}

// vanished swallows races where the host removed the element mid-pass.
func (w *Watcher) vanished(ref dom.Ref, err error) error {
	if errors.Is(err, dom.ErrElementNotFound) {
		w.log.Debug("element vanished during sync", zap.String("selector", ref.Selector))
		return nil
	}
	return fmt.Errorf("attach %s %s: %w", ref.Kind, ref.Selector, err)
}
