// Package entries iterates the inbox entry list, opening each entry and its
// detail destination in turn. Iteration is strictly sequential: exactly one
// entry is in flight at any moment, because each entry mutates the shared
// page state and entries compete for the same tab.
package entries

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/action"
	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
	"github.com/hliang2/chatspider/internal/fallback"
	"github.com/hliang2/chatspider/internal/markup"
	"github.com/hliang2/chatspider/internal/nav"
)

// Controller walks the entry list and dispatches per-entry processing.
type Controller struct {
	cfg      config.ControllerConfig
	locators config.LocatorConfig
	exec     *action.Executor
	detector *nav.Detector
	parser   *markup.Parser
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewController wires the iteration controller from its collaborators.
func NewController(
	cfg config.ControllerConfig,
	locators config.LocatorConfig,
	exec *action.Executor,
	detector *nav.Detector,
	parser *markup.Parser,
	logger *zap.Logger,
) *Controller {
	limit := rate.Inf
	if cfg.EntryInterval > 0 {
		limit = rate.Every(cfg.EntryInterval)
	}
	return &Controller{
		cfg:      cfg,
		locators: locators,
		exec:     exec,
		detector: detector,
		parser:   parser,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.Named("entries"),
	}
}

// ProcessAll runs every pending entry through ProcessOne, in order. A failed
// entry is recorded and recovered from; it never aborts the batch. Entries
// already in a terminal state are skipped untouched. Only caller
// cancellation stops the run early, and the summary reflects the work done
// up to that point.
func (c *Controller) ProcessAll(ctx context.Context, sess engine.Session, list []schemas.Entry) (*schemas.BatchSummary, error) {
	summary := &schemas.BatchSummary{}

	for i := range list {
		entry := &list[i]
		if entry.Status.Terminal() {
			c.logger.Debug("Skipping entry already in a terminal state.",
				zap.Int("index", entry.Index), zap.String("status", string(entry.Status)))
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		entry.Status = schemas.EntryProcessing
		c.logger.Info("Processing entry.",
			zap.Int("index", entry.Index),
			zap.String("name", entry.Name))

		detail, err := c.ProcessOne(ctx, sess, entry)
		if err != nil {
			if ctx.Err() != nil {
				entry.Status = schemas.EntryFailed
				summary.Failed++
				summary.Failures = append(summary.Failures, schemas.EntryFailure{
					Index: entry.Index, Name: entry.Name, Reason: ctx.Err().Error(),
				})
				return summary, ctx.Err()
			}
			entry.Status = schemas.EntryFailed
			summary.Failed++
			summary.Failures = append(summary.Failures, schemas.EntryFailure{
				Index: entry.Index, Name: entry.Name, Reason: err.Error(),
			})
			c.logger.Warn("Entry failed; continuing with the rest of the batch.",
				zap.Int("index", entry.Index), zap.Error(err))
			c.recover(ctx, sess)
			continue
		}

		entry.Status = schemas.EntrySucceeded
		summary.Succeeded++
		if detail != nil {
			summary.Details = append(summary.Details, *detail)
		}
	}

	c.logger.Info("Batch complete.",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// ProcessOne opens a single entry, follows its detail destination, extracts
// the detail record, and restores the session to the entry list.
func (c *Controller) ProcessOne(ctx context.Context, sess engine.Session, entry *schemas.Entry) (*schemas.EntryDetail, error) {
	origin := sess.CurrentTab()

	// Open the entry itself. This usually swaps the conversation pane in
	// place, so no navigation watch is needed here.
	if _, err := c.exec.Click(ctx, origin, c.entryLocators(entry.Index)); err != nil {
		return nil, fmt.Errorf("open entry %d: %w", entry.Index, err)
	}
	if err := fallback.Sleep(ctx, c.cfg.BackWait); err != nil {
		return nil, err
	}

	// Follow the detail destination, watching for a tab or a URL change.
	outcome, err := c.detector.Detect(ctx, sess, origin, func(actCtx context.Context) error {
		_, err := c.exec.Click(actCtx, origin, c.locators.DetailLink)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("follow detail link for entry %d: %w", entry.Index, err)
	}
	if outcome.Kind == nav.NoChange {
		return nil, fmt.Errorf("detail link for entry %d produced no navigation", entry.Index)
	}

	detail, err := c.extractDetail(ctx, outcome.Tab, outcome.URL)

	// Restore the list view before reporting, whatever extraction did.
	switch outcome.Kind {
	case nav.NewTabOpened:
		c.detector.Close(ctx, outcome, origin)
	case nav.URLChanged:
		c.goBack(ctx, origin)
	}

	if err != nil {
		return nil, err
	}
	return detail, nil
}

// SendMessage opens the entry's conversation and sends text through the
// reply box. The send button is preferred; when no button resolves, a plain
// Enter keypress on the input is used instead.
func (c *Controller) SendMessage(ctx context.Context, sess engine.Session, index int, text string) error {
	origin := sess.CurrentTab()

	if _, err := c.exec.Click(ctx, origin, c.entryLocators(index)); err != nil {
		return fmt.Errorf("open entry %d: %w", index, err)
	}
	if err := fallback.Sleep(ctx, c.cfg.BackWait); err != nil {
		return err
	}

	if _, err := c.exec.Type(ctx, origin, c.locators.MessageInput, text); err != nil {
		return fmt.Errorf("enter message for entry %d: %w", index, err)
	}

	if _, err := c.exec.Click(ctx, origin, c.locators.SendButton); err != nil {
		c.logger.Debug("No send button resolved; falling back to Enter.", zap.Error(err))
		if err := c.exec.Press(ctx, origin, c.locators.MessageInput, "Enter"); err != nil {
			return fmt.Errorf("send message for entry %d: %w", index, err)
		}
	}

	c.logger.Info("Message sent.", zap.Int("index", index), zap.Int("chars", len(text)))
	return nil
}

// extractDetail expands any collapsed description and parses the snapshot.
func (c *Controller) extractDetail(ctx context.Context, tab engine.Tab, url string) (*schemas.EntryDetail, error) {
	// Best effort; most detail pages have nothing to expand.
	if el, ok := c.exec.Resolve(ctx, tab, c.locators.ExpandDescription); ok {
		if err := el.Click(ctx); err == nil {
			_ = fallback.Sleep(ctx, 300*time.Millisecond)
		}
	}

	html, err := tab.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot detail page: %w", err)
	}
	return c.parser.ParseDetail(html, url)
}

// entryLocators instantiates the entry-item templates for a 1-based index.
func (c *Controller) entryLocators(index int) []string {
	out := make([]string, 0, len(c.locators.EntryItem))
	for _, tmpl := range c.locators.EntryItem {
		out = append(out, fmt.Sprintf(tmpl, index))
	}
	return out
}

// recover tries to bring the session back to the entry list after a failed
// entry so the next one starts from a known state. Best effort by design.
func (c *Controller) recover(ctx context.Context, sess engine.Session) {
	if ctx.Err() != nil {
		return
	}
	origin := sess.CurrentTab()

	// Close any stray tabs a half-finished entry may have left behind.
	if tabs, err := sess.Tabs(ctx); err == nil {
		for _, t := range tabs {
			if t.ID() != origin.ID() {
				_ = t.Close(ctx)
			}
		}
	}
	_ = origin.Activate(ctx)
	c.goBack(ctx, origin)
}

func (c *Controller) goBack(ctx context.Context, tab engine.Tab) {
	if err := tab.Back(ctx); err != nil {
		c.logger.Debug("History back failed.", zap.Error(err))
		return
	}
	if err := tab.WaitReady(ctx); err != nil {
		c.logger.Debug("Page did not settle after going back.", zap.Error(err))
	}
	_ = fallback.Sleep(ctx, c.cfg.BackWait)
}
