// Package browser drives a Chrome tab over the DevTools protocol and exposes
// it to the controller as a dom.Host.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	// DebuggerURL connects to a running Chrome, e.g. one started with
	// --remote-debugging-port so existing chat logins are reused.
	DebuggerURL string
	// Launch is a Chrome binary followed by extra flags.
	Launch            []string
	Headless          bool
	UserDataDir       string
	NavigationTimeout time.Duration
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Browser owns the connection to Chrome.
type Browser struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
}

// New creates a Browser. Call Start before Open.
func New(cfg Config, log *zap.Logger) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Browser{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return nil
		}
		b.log.Warn("stale browser connection, reconnecting")
		_ = b.browser.Close()
		b.browser = nil
	}

	controlURL, err := b.controlURL()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	b.log.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

func (b *Browser) controlURL() (string, error) {
	if b.cfg.DebuggerURL != "" {
		u, err := launcher.ResolveURL(b.cfg.DebuggerURL)
		if err != nil {
			return "", fmt.Errorf("resolve debugger url: %w", err)
		}
		return u, nil
	}

	l := launcher.New().Headless(b.cfg.Headless)
	if len(b.cfg.Launch) > 0 {
		l = l.Bin(b.cfg.Launch[0])
		for name, val := range launchFlags(b.cfg.Launch[1:]) {
			if val == "" {
				l = l.Set(flags.Flag(name))
			} else {
				l = l.Set(flags.Flag(name), val)
			}
		}
	}
	if b.cfg.UserDataDir != "" {
		l = l.UserDataDir(b.cfg.UserDataDir)
	}

	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch chrome: %w", err)
	}
	b.launched = l
	return u, nil
}

// launchFlags turns "--name=value" style arguments into launcher flags.
func launchFlags(args []string) map[string]string {
	out := make(map[string]string, len(args))
	for _, raw := range args {
		name, val, _ := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		out[name] = val
	}
	return out
}

// Open creates a tab with interception installed and navigates it to url.
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	b.mu.Lock()
	browser := b.browser
	b.mu.Unlock()
	if browser == nil {
		return nil, fmt.Errorf("browser not started")
	}

	rp, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	page, err := newPage(rp, b.log.With(zap.String("url", url)))
	if err != nil {
		_ = rp.Close()
		return nil, err
	}

	nav := rp.Context(ctx).Timeout(b.cfg.navigationTimeout())
	defer nav.CancelTimeout()
	if err := nav.Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}
	return page, nil
}

// Close stops a launched Chrome. A Chrome reached through DebuggerURL
// belongs to the user and is left running.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.launched != nil {
		if b.browser != nil {
			err = b.browser.Close()
		}
		b.launched.Kill()
		b.launched = nil
	}
	b.browser = nil
	return err
}
