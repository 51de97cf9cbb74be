package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/chat-memory/internal/dom"
)

// DefaultReleaseDelay lets the host's input listeners observe rewritten
// content before the send control fires.
const DefaultReleaseDelay = 100 * time.Millisecond

// Clicker invokes an element's native action.
type Clicker interface {
	Click(ctx context.Context, ref dom.Ref) error
}

// Releaser re-invokes the host's native send action.
type Releaser struct {
	clicker Clicker
	locator *dom.Locator
	delay   time.Duration
}

// NewReleaser creates a releaser that waits delay before clicking.
func NewReleaser(c Clicker, l *dom.Locator, delay time.Duration) *Releaser {
	if delay < 0 {
		delay = 0
	}
	return &Releaser{clicker: c, locator: l, delay: delay}
}

// Release clicks the send control when shouldSend is true. A missing control
// is returned as dom.ErrElementNotFound; the composed text stays in the
// input so the user can send manually.
func (r *Releaser) Release(ctx context.Context, shouldSend bool) error {
	if !shouldSend {
		return nil
	}

	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	ref, err := r.locator.LocateSubmitControl(ctx)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if ref == nil {
		return fmt.Errorf("release: send control: %w", dom.ErrElementNotFound)
	}
	if err := r.clicker.Click(ctx, *ref); err != nil {
		return fmt.Errorf("release: click %s: %w", ref.Selector, err)
	}
	return nil
}
