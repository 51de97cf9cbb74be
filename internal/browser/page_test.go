package browser

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/rcliao/chat-memory/internal/dom"
)

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		payload string
		want    dom.EventType
		ok      bool
	}{
		{"enter", `{"type":"enter","at":1}`, dom.EventEnter, true},
		{"send click", `{"type":"send_click"}`, dom.EventSendClick, true},
		{"mutation", `{"type":"mutation"}`, dom.EventMutation, true},
		{"unknown", `{"type":"scroll"}`, "", false},
		{"missing type", `{"at":1}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := decodeEvent(gson.NewFrom(tt.payload))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ev.Type != tt.want {
				t.Errorf("type = %q, want %q", ev.Type, tt.want)
			}
		})
	}

	ev, _ := decodeEvent(gson.NewFrom(fmt.Sprintf(`{"type":"enter","at":%d}`, at.UnixMilli())))
	if !ev.At.Equal(at) {
		t.Errorf("at = %v, want %v", ev.At, at)
	}
}

func TestReceive_DropsAfterClose(t *testing.T) {
	p := &Page{events: make(chan dom.Event, 1), log: zap.NewNop()}

	if res, _ := p.receive(gson.NewFrom(`{"type":"enter"}`)); res != (ack{Accepted: true}) {
		t.Errorf("queued submission should be accepted, got %+v", res)
	}
	// Full queue must not block the binding goroutine.
	p.receive(gson.NewFrom(`{"type":"trigger"}`))

	ev := <-p.events
	if ev.Type != dom.EventEnter {
		t.Errorf("expected enter, got %q", ev.Type)
	}

	p.mu.Lock()
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	// Must not panic on a closed channel.
	if res, _ := p.receive(gson.NewFrom(`{"type":"enter"}`)); res != (ack{}) {
		t.Errorf("closed page should refuse, got %+v", res)
	}
}

func TestReceive_RefusesSubmissionOnFullQueue(t *testing.T) {
	p := &Page{events: make(chan dom.Event, 1), log: zap.NewNop()}
	p.receive(gson.NewFrom(`{"type":"mutation"}`))

	// The page replays the native send when the answer is not accepted.
	for _, typ := range []string{"enter", "send_click"} {
		res, err := p.receive(gson.NewFrom(fmt.Sprintf(`{"type":%q}`, typ)))
		if err != nil {
			t.Fatal(err)
		}
		if res.(ack).Accepted {
			t.Errorf("%s on a full queue was accepted", typ)
		}
	}
	if got := len(p.events); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}

func TestBootstrapSuppressesOnlyWhileLive(t *testing.T) {
	for _, handler := range []string{"S.onEnter", "S.onSendClick"} {
		i := strings.Index(bootstrapJS, handler+" = ")
		if i < 0 {
			t.Fatalf("bootstrap missing %s", handler)
		}
		body := bootstrapJS[i:]
		body = body[:strings.Index(body, "};")]
		live := strings.Index(body, "S.live()")
		prevent := strings.Index(body, "e.preventDefault()")
		if live < 0 || prevent < 0 || live > prevent {
			t.Errorf("%s must check liveness before suppressing:\n%s", handler, body)
		}
		if !strings.Contains(body, "e.currentTarget") {
			t.Errorf("%s must hand its element to emit for replay", handler)
		}
	}
	if !strings.Contains(bootstrapJS, "Date.now() - S.alive < 10000") {
		t.Error("bootstrap staleness window not rendered")
	}
	if !strings.Contains(bootstrapJS, "S.passThrough = ") || !strings.Contains(bootstrapJS, "res.accepted") {
		t.Error("bootstrap must replay refused submissions")
	}
}

func TestLaunchFlags(t *testing.T) {
	got := launchFlags([]string{"--user-data-dir=/tmp/chrome", "--no-first-run", "", "--"})
	if got["user-data-dir"] != "/tmp/chrome" {
		t.Errorf("unexpected user-data-dir %q", got["user-data-dir"])
	}
	if v, ok := got["no-first-run"]; !ok || v != "" {
		t.Errorf("expected bare flag, got %q %v", v, ok)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 flags, got %v", got)
	}
}

func TestBootstrapForwardsThroughBinding(t *testing.T) {
	if !strings.Contains(bootstrapJS, "window."+bindingName) {
		t.Error("bootstrap does not call the exposed binding")
	}
	for _, fn := range []string{"S.live", "S.passThrough", "S.attach", "S.attachTrigger", "S.removeOrphans", "S.read", "S.write", "S.click", "S.notify", "S.messages"} {
		if !strings.Contains(bootstrapJS, fn+" = ") {
			t.Errorf("bootstrap missing %s", fn)
		}
	}
}
