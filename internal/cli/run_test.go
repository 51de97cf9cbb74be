package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/chat-memory/internal/config"
	"github.com/rcliao/chat-memory/internal/site"
)

func TestResolveTarget(t *testing.T) {
	r := site.NewRegistry()

	tests := []struct {
		arg      string
		wantSite string
		wantURL  string
		ok       bool
	}{
		{"claude", "claude", "https://claude.ai/new", true},
		{"CHATGPT", "chatgpt", "https://chatgpt.com/", true},
		{"https://www.perplexity.ai/search/abc", "perplexity", "https://www.perplexity.ai/search/abc", true},
		{"https://example.com/", "", "", false},
		{"nonsense", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			a, url, err := resolveTarget(r, tt.arg)
			if (err == nil) != tt.ok {
				t.Fatalf("resolveTarget(%q) err = %v", tt.arg, err)
			}
			if !tt.ok {
				return
			}
			if a.Name != tt.wantSite {
				t.Errorf("site = %q, want %q", a.Name, tt.wantSite)
			}
			if url != tt.wantURL {
				t.Errorf("url = %q, want %q", url, tt.wantURL)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("héllo wörld, this is long", 10); got != "héllo w..." {
		t.Errorf("got %q", got)
	}
}

func TestRun_ReturnsErrorsAfterCleanup(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	cfg = config.DefaultConfig()
	cfg.Memory.APIURL = deadURL
	cfg.Browser.DebuggerURL = deadURL
	dbPath = filepath.Join(t.TempDir(), "journal.db")
	t.Cleanup(func() {
		cfg = nil
		dbPath = ""
	})

	cmd := newRunCmd()
	cmd.SetContext(context.Background())

	err := cmd.RunE(cmd, []string{"nonsense"})
	require.ErrorContains(t, err, `no site matches "nonsense"`)

	// The journal is open by the time the browser fails. It must be closed
	// on the way out, which checkpoints and removes the WAL file.
	err = cmd.RunE(cmd, []string{"claude"})
	require.ErrorContains(t, err, "start browser")
	assert.FileExists(t, dbPath)
	assert.NoFileExists(t, dbPath+"-wal")
}
