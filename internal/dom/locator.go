package dom

import (
	"context"

	"github.com/rcliao/chat-memory/internal/site"
)

// Locator finds the input and submit control using an ordered selector list.
type Locator struct {
	finder  Finder
	inputs  []string
	submits []string
}

// NewLocator creates a locator for the adapter's selectors.
func NewLocator(f Finder, a site.Adapter) *Locator {
	return &Locator{
		finder:  f,
		inputs:  a.InputSelectors,
		submits: a.SendButtonSelectors,
	}
}

// LocateInput returns the first matching input, or nil if none is rendered.
func (l *Locator) LocateInput(ctx context.Context) (*Ref, error) {
	return l.locate(ctx, l.inputs, KindInput)
}

// LocateSubmitControl returns the first matching send control, or nil.
func (l *Locator) LocateSubmitControl(ctx context.Context) (*Ref, error) {
	return l.locate(ctx, l.submits, KindSubmit)
}

// locate skips selectors the page rejects; only context errors abort.
func (l *Locator) locate(ctx context.Context, selectors []string, kind Kind) (*Ref, error) {
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := l.finder.Exists(ctx, sel)
		if err != nil || !ok {
			continue
		}
		return &Ref{Selector: sel, Kind: kind}, nil
	}
	return nil, nil
}
