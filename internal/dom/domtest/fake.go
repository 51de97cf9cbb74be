// Package domtest provides an in-memory dom.Host for tests.
package domtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rcliao/chat-memory/internal/dom"
	"github.com/rcliao/chat-memory/internal/model"
)

// Element is a fake page element.
type Element struct {
	Content  string
	Rich     bool
	Flags    map[string]bool
	Attached int
	Clicks   int
	Writes   []string
}

// FakeHost is a concurrency-safe in-memory page.
type FakeHost struct {
	mu       sync.Mutex
	elements map[string]*Element
	triggers map[string]bool
	notices  []string
	history  []model.ConversationMessage

	// OnClick runs after a click is recorded, outside the lock.
	OnClick func(selector string)
	// ClickErr, when set, is returned by Click.
	ClickErr error
}

// NewFakeHost returns an empty page.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		elements: make(map[string]*Element),
		triggers: make(map[string]bool),
	}
}

// Render adds or replaces an element, as a host re-render would.
func (h *FakeHost) Render(selector, content string, rich bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.elements[selector] = &Element{Content: content, Rich: rich, Flags: make(map[string]bool)}
}

// Remove drops an element from the page.
func (h *FakeHost) Remove(selector string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.elements, selector)
}

// SetHistory sets the turns returned by Messages.
func (h *FakeHost) SetHistory(msgs []model.ConversationMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append([]model.ConversationMessage(nil), msgs...)
}

// Element returns a copy of the element at selector.
func (h *FakeHost) Element(selector string) (Element, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	el, ok := h.elements[selector]
	if !ok {
		return Element{}, false
	}
	cp := *el
	cp.Writes = append([]string(nil), el.Writes...)
	return cp, true
}

// Notices returns the notices shown so far.
func (h *FakeHost) Notices() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notices...)
}

// Triggers returns the anchors that currently carry a trigger control.
func (h *FakeHost) Triggers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for a := range h.triggers {
		out = append(out, a)
	}
	return out
}

func (h *FakeHost) Exists(ctx context.Context, selector string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.elements[selector]
	return ok, nil
}

func (h *FakeHost) Read(ctx context.Context, ref dom.Ref, rich bool) (string, error) {
	el, err := h.lookup(ref)
	if err != nil {
		return "", err
	}
	if el.Rich && !rich {
		return innerText(el.Content), nil
	}
	return el.Content, nil
}

func (h *FakeHost) IsRich(ctx context.Context, ref dom.Ref) (bool, error) {
	el, err := h.lookup(ref)
	if err != nil {
		return false, err
	}
	return el.Rich, nil
}

func (h *FakeHost) Write(ctx context.Context, ref dom.Ref, content string, rich bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	el, ok := h.elements[ref.Selector]
	if !ok {
		return fmt.Errorf("write %s: %w", ref.Selector, dom.ErrElementNotFound)
	}
	el.Content = content
	el.Writes = append(el.Writes, content)
	return nil
}

func (h *FakeHost) Click(ctx context.Context, ref dom.Ref) error {
	h.mu.Lock()
	el, ok := h.elements[ref.Selector]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("click %s: %w", ref.Selector, dom.ErrElementNotFound)
	}
	if h.ClickErr != nil {
		h.mu.Unlock()
		return h.ClickErr
	}
	el.Clicks++
	fn := h.OnClick
	h.mu.Unlock()

	if fn != nil {
		fn(ref.Selector)
	}
	return nil
}

func (h *FakeHost) Marked(ctx context.Context, ref dom.Ref, flag string) (bool, error) {
	el, err := h.lookup(ref)
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return el.Flags[flag], nil
}

func (h *FakeHost) Mark(ctx context.Context, ref dom.Ref, flag string) error {
	el, err := h.lookup(ref)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	el.Flags[flag] = true
	return nil
}

func (h *FakeHost) Attach(ctx context.Context, ref dom.Ref) error {
	el, err := h.lookup(ref)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	el.Attached++
	return nil
}

func (h *FakeHost) AttachTrigger(ctx context.Context, anchor dom.Ref) error {
	if _, err := h.lookup(anchor); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.triggers[anchor.Selector] = true
	return nil
}

func (h *FakeHost) RemoveOrphans(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for a := range h.triggers {
		if _, ok := h.elements[a]; !ok {
			delete(h.triggers, a)
			removed++
		}
	}
	return removed, nil
}

func (h *FakeHost) Notify(ctx context.Context, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, message)
	return nil
}

func (h *FakeHost) Messages(ctx context.Context, userSelectors, assistantSelectors []string) ([]model.ConversationMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ConversationMessage(nil), h.history...), nil
}

func (h *FakeHost) lookup(ref dom.Ref) (*Element, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	el, ok := h.elements[ref.Selector]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", ref.Kind, ref.Selector, dom.ErrElementNotFound)
	}
	return el, nil
}

// innerText approximates what a browser reports for a contenteditable:
// block closers become newlines and tags are dropped.
func innerText(markup string) string {
	markup = strings.NewReplacer("</p>", "\n", "<br>", "\n", "</div>", "\n").Replace(markup)
	var b strings.Builder
	inTag := false
	for _, r := range markup {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
