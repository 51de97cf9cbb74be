package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/chat-memory/internal/compose"
	"github.com/rcliao/chat-memory/internal/dom"
	"github.com/rcliao/chat-memory/internal/history"
	"github.com/rcliao/chat-memory/internal/memclient"
	"github.com/rcliao/chat-memory/internal/model"
)

// runCycle drives Captured → Composing → Releasing → Idle. Whatever happens,
// the controller is back in Idle when it returns.
func (c *Controller) runCycle(ctx context.Context, p *model.PendingSubmission, ev dom.Event) (err error) {
	log := c.log.With(zap.String("cycle", p.CycleID), zap.String("source", string(ev.Type)))
	rec := model.Cycle{
		ID:        p.CycleID,
		Site:      c.adapter.Name,
		Source:    string(ev.Type),
		StartedAt: p.CapturedAt,
	}
	defer func() {
		c.reset()
		rec.FinishedAt = time.Now()
		if err != nil && rec.Err == "" {
			rec.Err = err.Error()
		}
		c.record(ctx, rec)
	}()

	input, err := c.locator.LocateInput(ctx)
	if err != nil {
		return fmt.Errorf("locate input: %w", err)
	}
	if input == nil {
		rec.Outcome = model.OutcomeNoInput
		return fmt.Errorf("locate input: %w", dom.ErrElementNotFound)
	}

	rich, raw, text, err := c.readInput(ctx, *input)
	if err != nil {
		rec.Outcome = model.OutcomeNoInput
		return err
	}
	query := strings.TrimSpace(compose.Strip(text, false))
	original := compose.Strip(raw, rich)
	rec.Raw = query
	c.update(func(p *model.PendingSubmission) {
		p.RawMessage = query
		p.Rich = rich
	})
	if query == "" {
		rec.Outcome = model.OutcomeEmpty
		c.notify(ctx, NoticeEmpty)
		return ErrEmptyInput
	}

	prior, herr := c.host.Messages(ctx, c.adapter.History.UserSelectors, c.adapter.History.AssistantSelectors)
	if herr != nil {
		log.Debug("history extraction failed", zap.Error(herr))
	}

	if err := c.transition(Captured, Composing); err != nil {
		return err
	}

	on := c.enabled(ctx)
	var memories []model.MemoryRecord
	if on {
		var serr error
		memories, serr = c.searchMemories(ctx, query)
		if serr != nil {
			// Degrade to "no memories"; the original message goes out as typed.
			rec.SearchErr = serr.Error()
			log.Warn("memory search failed", zap.Error(serr))
		}
	}

	composed := compose.Compose(original, memories, rich)
	if composed != raw {
		if werr := c.host.Write(ctx, *input, composed, rich); werr != nil {
			log.Warn("rewrite input failed", zap.Error(werr))
			composed = raw
		}
	}
	rec.Composed = composed
	rec.Memories = len(memories)
	c.update(func(p *model.PendingSubmission) { p.ComposedMessage = composed })
	log.Debug("message composed", zap.Int("memories", len(memories)), zap.Bool("rich", rich))

	if err := c.transition(Composing, Releasing); err != nil {
		return err
	}

	send := shouldSend(ev)
	relErr := c.releaser.Release(ctx, send)
	switch {
	case relErr != nil:
		rec.Outcome = model.OutcomeSendFailed
		c.notify(ctx, NoticeNoSend)
	case send:
		rec.Outcome = model.OutcomeSent
	default:
		rec.Outcome = model.OutcomeComposed
	}
	c.update(func(p *model.PendingSubmission) { p.InFlight = false })

	if send && on {
		c.dispatchAdd(p.CycleID, prior, query)
	}
	if relErr != nil {
		return relErr
	}
	return c.transition(Releasing, Idle)
}

// readInput returns the input's representation, its raw content in that
// representation, and its plain text.
func (c *Controller) readInput(ctx context.Context, input dom.Ref) (rich bool, raw, text string, err error) {
	rich, err = c.host.IsRich(ctx, input)
	if err != nil {
		return false, "", "", fmt.Errorf("inspect input: %w", err)
	}
	raw, err = c.host.Read(ctx, input, rich)
	if err != nil {
		return false, "", "", fmt.Errorf("read input: %w", err)
	}
	if !rich {
		return rich, raw, raw, nil
	}
	text, err = c.host.Read(ctx, input, false)
	if err != nil {
		return false, "", "", fmt.Errorf("read input text: %w", err)
	}
	return rich, raw, text, nil
}

func (c *Controller) searchMemories(ctx context.Context, query string) ([]model.MemoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SearchTimeout)
	defer cancel()

	memories, err := c.search.Search(ctx, memclient.SearchRequest{
		Query:     query,
		UserID:    c.opts.UserID,
		Limit:     c.opts.Limit,
		Threshold: c.opts.Threshold,
	})
	if err != nil {
		return nil, err
	}
	return memories, nil
}

// dispatchAdd hands the context window to the detached add dispatcher. The
// request carries its own user, session and cycle identifiers.
func (c *Controller) dispatchAdd(cycleID string, prior []model.ConversationMessage, query string) {
	if c.adds == nil {
		return
	}
	window := history.Window(prior, query, c.opts.History)
	if len(window) == 0 {
		return
	}
	c.adds.Dispatch(cycleID, memclient.AddRequest{
		Messages: window,
		UserID:   c.opts.UserID,
		Infer:    c.opts.Infer,
		Metadata: map[string]any{
			"provider":   c.adapter.Name,
			"session_id": c.opts.SessionID,
			"cycle_id":   cycleID,
		},
	})
}

func (c *Controller) notify(ctx context.Context, msg string) {
	if err := c.host.Notify(ctx, msg); err != nil {
		c.log.Debug("notice failed", zap.Error(err))
	}
}

func (c *Controller) record(ctx context.Context, rec model.Cycle) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordCycle(context.WithoutCancel(ctx), rec); err != nil {
		c.log.Warn("journal write failed", zap.String("cycle", rec.ID), zap.Error(err))
	}
}
