package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/rcliao/chat-memory/internal/dom"
	"github.com/rcliao/chat-memory/internal/model"
)

// eventBuffer bounds notifications queued between the page and the controller.
const eventBuffer = 64

// Page is a dom.Host backed by a Chrome tab.
type Page struct {
	page   *rod.Page
	log    *zap.Logger
	events chan dom.Event
	stop   func() error
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// ack answers a forwarded event. The page replays a suppressed native
// action unless Accepted is set.
type ack struct {
	Accepted bool `json:"accepted"`
}

var _ dom.Host = (*Page)(nil)

func newPage(p *rod.Page, log *zap.Logger) (*Page, error) {
	pg := &Page{
		page:   p,
		log:    log,
		events: make(chan dom.Event, eventBuffer),
		done:   make(chan struct{}),
	}

	stop, err := p.Expose(bindingName, pg.receive)
	if err != nil {
		return nil, fmt.Errorf("expose binding: %w", err)
	}
	pg.stop = stop

	if _, err := p.EvalOnNewDocument(bootstrapJS); err != nil {
		_ = stop()
		return nil, fmt.Errorf("install bootstrap: %w", err)
	}
	return pg, nil
}

// Events returns page notifications. The channel closes with the page.
func (p *Page) Events() <-chan dom.Event {
	return p.events
}

// Rod returns the underlying tab.
func (p *Page) Rod() *rod.Page {
	return p.page
}

// URL returns the current page location.
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close unbinds the event forwarder and closes the tab.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	close(p.done)
	p.mu.Unlock()

	if p.stop != nil {
		_ = p.stop()
	}
	return p.page.Close()
}

// Heartbeat stamps the page so its handlers keep suppressing native sends.
func (p *Page) Heartbeat(ctx context.Context) error {
	_, err := p.eval(ctx, `() => { if (window.__chatMemory) window.__chatMemory.alive = Date.now(); return true; }`)
	return err
}

// KeepAlive stamps the page every interval until ctx is done or the page
// is closed. Once it stops the page falls back to native sends.
func (p *Page) KeepAlive(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if err := p.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			p.log.Debug("heartbeat failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-t.C:
		}
	}
}

// receive runs on rod's event goroutine and must not block. A submission
// that cannot be queued is refused so the page sends it natively.
func (p *Page) receive(payload gson.JSON) (interface{}, error) {
	ev, ok := decodeEvent(payload)
	if !ok {
		p.log.Debug("ignoring page event", zap.String("payload", payload.JSON("", "")))
		return ack{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ack{}, nil
	}
	select {
	case p.events <- ev:
		return ack{Accepted: true}, nil
	default:
		if ev.IsSubmission() {
			p.log.Warn("event queue full, page will send natively", zap.String("type", string(ev.Type)))
		}
		return ack{}, nil
	}
}

func decodeEvent(payload gson.JSON) (dom.Event, bool) {
	t := dom.EventType(payload.Get("type").Str())
	switch t {
	case dom.EventMutation, dom.EventEnter, dom.EventTrigger, dom.EventShortcut, dom.EventSendClick:
	default:
		return dom.Event{}, false
	}
	at := time.Now()
	if v := payload.Get("at"); !v.Nil() {
		if ms := int64(v.Num()); ms > 0 {
			at = time.UnixMilli(ms)
		}
	}
	return dom.Event{Type: t, At: at}, true
}

func (p *Page) eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return gson.JSON{}, err
	}
	if res == nil {
		return gson.New(nil), nil
	}
	return res.Value, nil
}

// onElement runs body against the element matched by ref. body receives
// (S, el, ...args) and must return a non-null value.
func (p *Page) onElement(ctx context.Context, ref dom.Ref, body string, args ...interface{}) (gson.JSON, error) {
	js := `(sel, ...args) => {
		const S = window.__chatMemory;
		if (!S) throw new Error('chat-memory bootstrap missing');
		S.alive = Date.now();
		const el = S.find(sel);
		if (!el) return null;
		return (` + body + `)(S, el, ...args);
	}`
	v, err := p.eval(ctx, js, append([]interface{}{ref.Selector}, args...)...)
	if err != nil {
		return v, fmt.Errorf("%s %q: %w", ref.Kind, ref.Selector, err)
	}
	if v.Nil() {
		return v, fmt.Errorf("%s %q: %w", ref.Kind, ref.Selector, dom.ErrElementNotFound)
	}
	return v, nil
}

// Exists returns an error for selectors the page cannot parse.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	v, err := p.eval(ctx, `(sel) => document.querySelector(sel) !== null`, selector)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (p *Page) Read(ctx context.Context, ref dom.Ref, rich bool) (string, error) {
	v, err := p.onElement(ctx, ref, `(S, el, rich) => S.read(el, rich)`, rich)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func (p *Page) IsRich(ctx context.Context, ref dom.Ref) (bool, error) {
	v, err := p.onElement(ctx, ref, `(S, el) => el.isContentEditable`)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (p *Page) Write(ctx context.Context, ref dom.Ref, content string, rich bool) error {
	_, err := p.onElement(ctx, ref, `(S, el, content, rich) => S.write(el, content, rich)`, content, rich)
	return err
}

func (p *Page) Click(ctx context.Context, ref dom.Ref) error {
	_, err := p.onElement(ctx, ref, `(S, el) => S.click(el)`)
	return err
}

func (p *Page) Marked(ctx context.Context, ref dom.Ref, flag string) (bool, error) {
	v, err := p.onElement(ctx, ref, `(S, el, flag) => el.dataset[flag] === 'true'`, flag)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (p *Page) Mark(ctx context.Context, ref dom.Ref, flag string) error {
	_, err := p.onElement(ctx, ref, `(S, el, flag) => { el.dataset[flag] = 'true'; return true; }`, flag)
	return err
}

func (p *Page) Attach(ctx context.Context, ref dom.Ref) error {
	_, err := p.onElement(ctx, ref, `(S, el, kind) => { S.attach(el, kind); return true; }`, ref.Kind.String())
	return err
}

func (p *Page) AttachTrigger(ctx context.Context, anchor dom.Ref) error {
	v, err := p.onElement(ctx, anchor, `(S, el) => S.attachTrigger(el)`)
	if err != nil {
		return err
	}
	if !v.Bool() {
		return fmt.Errorf("anchor %q has no parent", anchor.Selector)
	}
	return nil
}

func (p *Page) RemoveOrphans(ctx context.Context) (int, error) {
	v, err := p.eval(ctx, `() => window.__chatMemory ? window.__chatMemory.removeOrphans() : 0`)
	if err != nil {
		return 0, err
	}
	return v.Int(), nil
}

func (p *Page) Notify(ctx context.Context, message string) error {
	_, err := p.eval(ctx, `(msg) => window.__chatMemory && window.__chatMemory.notify(msg)`, message)
	return err
}

func (p *Page) Messages(ctx context.Context, userSelectors, assistantSelectors []string) ([]model.ConversationMessage, error) {
	v, err := p.eval(ctx, `(u, a) => window.__chatMemory ? window.__chatMemory.messages(u, a) : []`,
		nonNil(userSelectors), nonNil(assistantSelectors))
	if err != nil {
		return nil, err
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var msgs []model.ConversationMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
