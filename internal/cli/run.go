package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/chat-memory/internal/browser"
	"github.com/rcliao/chat-memory/internal/config"
	"github.com/rcliao/chat-memory/internal/controller"
	"github.com/rcliao/chat-memory/internal/history"
	"github.com/rcliao/chat-memory/internal/memclient"
	"github.com/rcliao/chat-memory/internal/site"
)

func init() {
	RootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [site|url]",
		Short: "Open a chat page and add memories to every message",
		Long: `Open a chat page in Chrome and intercept submissions on it.

The argument is a site name (see "chat-memory sites") or a URL on a known
site. Set browser.debugger_url to reuse a Chrome you are already logged in to.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}

	cmd.Flags().Bool("no-memory", false, "Intercept and send without searching or adding memories")
	cmd.Flags().Bool("headless", false, "Launch Chrome headless")
	return cmd
}

// runRun returns errors instead of exiting so deferred cleanup always runs.
func runRun(cmd *cobra.Command, args []string) error {
	noMemory, _ := cmd.Flags().GetBool("no-memory")
	headless, _ := cmd.Flags().GetBool("headless")

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("sites: %w", err)
	}
	adapter, target, err := resolveTarget(registry, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	log := logger.With(zap.String("site", adapter.Name), zap.String("session", sessionID))
	client := newClient()

	var options []controller.Option
	options = append(options, controller.WithLogger(log))

	dopts := memclient.DispatcherOptions{
		Timeout:     cfg.AddTimeout(),
		Concurrency: cfg.Memory.Concurrency,
	}
	if !cfg.Journal.Disabled {
		j, err := openJournal()
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		options = append(options, controller.WithRecorder(j))
		dopts.OnResult = func(res memclient.AddResult) {
			if err := j.RecordOperations(context.Background(), res.Tag, res.Operations, res.Err); err != nil {
				log.Warn("journal operations failed", zap.String("cycle", res.Tag), zap.Error(err))
			}
		}
	}

	if !noMemory {
		hctx, cancel := context.WithTimeout(ctx, cfg.SearchTimeout())
		if err := client.Health(hctx); err != nil {
			log.Warn("memory service not reachable, messages will be sent without memories",
				zap.String("api_url", client.BaseURL()), zap.Error(err))
		}
		cancel()
	}

	// Adds outlive a canceled run so the last message is still remembered.
	adds := memclient.NewDispatcher(context.WithoutCancel(ctx), client, log, dopts)

	b := browser.New(browser.Config{
		DebuggerURL:       cfg.Browser.DebuggerURL,
		Launch:            cfg.Browser.Launch,
		Headless:          cfg.Browser.Headless || headless,
		UserDataDir:       cfg.Browser.UserDataDir,
		NavigationTimeout: cfg.NavigationTimeout(),
	}, log)
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	page, err := b.Open(ctx, target)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	go page.KeepAlive(ctx, browser.HeartbeatInterval)

	var override *bool
	if noMemory {
		off := false
		override = &off
	}
	toggle := config.NewToggle(configPath, cfg.MemoryEnabled(), override, log)
	if err := toggle.Start(ctx); err != nil {
		log.Warn("config watch unavailable, memory setting is fixed for this run", zap.Error(err))
	}
	defer toggle.Stop()

	ctrl := controller.New(page, adapter, client, adds, controller.Options{
		UserID:        cfg.Memory.UserID,
		SessionID:     sessionID,
		Limit:         cfg.Memory.Limit,
		Threshold:     cfg.Memory.Threshold,
		Infer:         cfg.Memory.Infer,
		ReleaseDelay:  cfg.ReleaseDelay(),
		SearchTimeout: cfg.SearchTimeout(),
		History: history.Options{
			Turns:       cfg.Cycle.HistoryTurns,
			MaxTurnSize: cfg.Cycle.MaxTurnSize,
		},
		Enabled: toggle.Enabled,
	}, options...)

	log.Info("intercepting submissions", zap.String("url", page.URL()), zap.Bool("memory", toggle.Enabled(ctx)))
	runErr := ctrl.Run(ctx, page.Events())
	_ = adds.Wait()
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("run: %w", runErr)
	}
	log.Info("stopped")
	return nil
}

// resolveTarget accepts a site name or a URL on a registered site.
func resolveTarget(r *site.Registry, arg string) (site.Adapter, string, error) {
	if a, ok := r.Get(arg); ok {
		if a.URL == "" {
			return a, "", fmt.Errorf("site %s has no url; pass one explicitly", a.Name)
		}
		return a, a.URL, nil
	}
	if a, ok := r.Match(arg); ok {
		return a, arg, nil
	}
	return site.Adapter{}, "", fmt.Errorf("no site matches %q", arg)
}
