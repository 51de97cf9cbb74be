//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/chat-memory/internal/browser"
	"github.com/rcliao/chat-memory/internal/dom"
)

const chatPage = `<html><body>
<div id="thread">
  <div class="user">What is Go?</div>
  <div class="bot">A programming language.</div>
</div>
<form id="f" onsubmit="event.preventDefault(); window.sent = (window.sent || 0) + 1;">
  <textarea id="prompt"></textarea>
  <div><button id="send" type="submit">Send</button></div>
</form>
</body></html>`

func waitEvent(t *testing.T, events <-chan dom.Event, want dom.EventType) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestPage_Interception_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, chatPage)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	b := browser.New(browser.Config{Headless: true, NavigationTimeout: 10 * time.Second}, nil)
	require.NoError(t, b.Start(ctx))
	defer b.Close()

	page, err := b.Open(ctx, ts.URL)
	require.NoError(t, err)
	defer page.Close()

	waitEvent(t, page.Events(), dom.EventMutation)

	ok, err := page.Exists(ctx, "#prompt")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = page.Exists(ctx, "div[")
	require.Error(t, err, "invalid selector should error")

	inputRef := dom.Ref{Selector: "#prompt", Kind: dom.KindInput}
	sendRef := dom.Ref{Selector: "#send", Kind: dom.KindSubmit}
	require.NoError(t, page.Attach(ctx, inputRef))
	require.NoError(t, page.Attach(ctx, sendRef))
	require.NoError(t, page.AttachTrigger(ctx, sendRef))

	require.NoError(t, page.Write(ctx, inputRef, "hello", false))
	got, err := page.Read(ctx, inputRef, false)
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	rich, err := page.IsRich(ctx, inputRef)
	require.NoError(t, err)
	require.False(t, rich)

	// Enter is suppressed and forwarded.
	require.NoError(t, page.Rod().MustElement("#prompt").Focus())
	require.NoError(t, page.Rod().Keyboard.Type(input.Enter))
	waitEvent(t, page.Events(), dom.EventEnter)
	require.Equal(t, 0, page.Rod().MustEval(`() => window.sent || 0`).Int())

	// A user click is suppressed and forwarded while the controller is live.
	page.Rod().MustElement("#send").MustClick()
	waitEvent(t, page.Events(), dom.EventSendClick)
	require.Equal(t, 0, page.Rod().MustEval(`() => window.sent || 0`).Int())

	// Click bypasses interception.
	require.NoError(t, page.Click(ctx, sendRef))
	require.Equal(t, 1, page.Rod().MustEval(`() => window.sent || 0`).Int())

	// Without a recent stamp the native send goes through untouched.
	page.Rod().MustEval(`() => { window.__chatMemory.alive = 0; }`)
	page.Rod().MustElement("#send").MustClick()
	require.Equal(t, 2, page.Rod().MustEval(`() => window.sent || 0`).Int())
	require.NoError(t, page.Heartbeat(ctx))

	msgs, err := page.Messages(ctx, []string{".user"}, []string{".bot"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "A programming language.", msgs[1].Content)

	// Removing the anchor orphans the trigger.
	page.Rod().MustEval(`() => document.getElementById('send').remove()`)
	n, err := page.RemoveOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.ErrorIs(t, page.Click(ctx, sendRef), dom.ErrElementNotFound)
}
