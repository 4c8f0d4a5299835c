// Package nav classifies what a UI action did to the browser: opened a new
// tab, navigated the current tab, or changed nothing. The two observable
// effects are watched concurrently because sites differ in which one they
// use, and some use both for the same control.
package nav

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
	"github.com/hliang2/chatspider/internal/fallback"
)

// OutcomeKind classifies the navigation effect of an action.
type OutcomeKind string

const (
	// NewTabOpened means a tab appeared that was not present before the
	// action. The outcome carries the new tab, already activated.
	NewTabOpened OutcomeKind = "new_tab"
	// URLChanged means the origin tab navigated in place.
	URLChanged OutcomeKind = "url_changed"
	// NoChange means neither effect was observed before the watch window
	// closed. Not an error; plenty of clicks legitimately do nothing.
	NoChange OutcomeKind = "no_change"
)

// Outcome is the detected result of one action.
type Outcome struct {
	Kind OutcomeKind
	// Tab is the page to read content from: the new tab for NewTabOpened,
	// the origin tab otherwise.
	Tab engine.Tab
	// URL is the destination address, when one was observed.
	URL string
}

type candidate struct {
	kind OutcomeKind
	tab  engine.Tab
	url  string
}

// Detector watches a session around an action and reports the outcome.
type Detector struct {
	cfg    config.DetectorConfig
	logger *zap.Logger
}

// NewDetector creates a detector with the given timing configuration.
func NewDetector(cfg config.DetectorConfig, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.Named("nav"),
	}
}

// Detect snapshots the session, runs act, and then watches for either a new
// tab or an origin-tab URL change until one is seen or the watch window
// closes. When both effects appear for the same action, the new tab wins:
// an in-place URL change is only committed after a final synchronous check
// confirms no tab appeared. The returned error is non-nil only for action
// failure or caller cancellation; a quiet window is reported as NoChange.
func (d *Detector) Detect(ctx context.Context, sess engine.Session, origin engine.Tab, act func(ctx context.Context) error) (Outcome, error) {
	baselineURL, err := origin.URL(ctx)
	if err != nil {
		return Outcome{}, err
	}
	baselineTabs, err := sess.Tabs(ctx)
	if err != nil {
		return Outcome{}, err
	}
	known := make(map[string]struct{}, len(baselineTabs))
	for _, t := range baselineTabs {
		known[t.ID()] = struct{}{}
	}

	if err := act(ctx); err != nil {
		return Outcome{}, err
	}

	watchCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	// Buffered so a watcher that loses the race never blocks on send.
	results := make(chan candidate, 2)
	g, gctx := errgroup.WithContext(watchCtx)

	g.Go(func() error {
		d.watchTabs(gctx, sess, known, results)
		return nil
	})
	g.Go(func() error {
		d.watchURL(gctx, origin, baselineURL, results)
		return nil
	})

	var winner candidate
	select {
	case winner = <-results:
	case <-watchCtx.Done():
	}
	cancel()
	_ = g.Wait()

	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	switch winner.kind {
	case NewTabOpened:
		return d.settleNewTab(ctx, winner.tab)
	case URLChanged:
		// A same-tab change can race a popup: re-check the tab set once
		// before committing, and prefer the tab when both happened.
		if tab, ok := d.findNewTab(ctx, sess, known); ok {
			d.logger.Debug("URL change and new tab both observed; preferring the tab.")
			return d.settleNewTab(ctx, tab)
		}
		d.logger.Debug("Origin tab navigated in place.", zap.String("url", winner.url))
		if err := d.waitLoaded(ctx, origin); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: URLChanged, Tab: origin, URL: winner.url}, nil
	default:
		d.logger.Debug("No navigation effect observed within the watch window.",
			zap.Duration("timeout", d.cfg.Timeout))
		return Outcome{Kind: NoChange, Tab: origin, URL: baselineURL}, nil
	}
}

// watchTabs polls the session's tab set for a member not present at
// baseline. Enumeration errors are tolerated and the poll continues.
func (d *Detector) watchTabs(ctx context.Context, sess engine.Session, known map[string]struct{}, out chan<- candidate) {
	for ctx.Err() == nil {
		if tab, ok := d.findNewTab(ctx, sess, known); ok {
			out <- candidate{kind: NewTabOpened, tab: tab}
			return
		}
		if fallback.Sleep(ctx, d.cfg.PollInterval) != nil {
			return
		}
	}
}

// watchURL polls the origin tab's location for a change from baseline.
func (d *Detector) watchURL(ctx context.Context, origin engine.Tab, baseline string, out chan<- candidate) {
	for ctx.Err() == nil {
		current, err := origin.URL(ctx)
		if err == nil && current != baseline && current != "" {
			out <- candidate{kind: URLChanged, url: current}
			return
		}
		if fallback.Sleep(ctx, d.cfg.PollInterval) != nil {
			return
		}
	}
}

func (d *Detector) findNewTab(ctx context.Context, sess engine.Session, known map[string]struct{}) (engine.Tab, bool) {
	tabs, err := sess.Tabs(ctx)
	if err != nil {
		return nil, false
	}
	for _, t := range tabs {
		if _, seen := known[t.ID()]; !seen {
			return t, true
		}
	}
	return nil, false
}

// settleNewTab activates the tab and waits for it to become usable. Load
// failures degrade to a logged warning rather than an error: a slow tab is
// still a detected tab.
func (d *Detector) settleNewTab(ctx context.Context, tab engine.Tab) (Outcome, error) {
	if err := tab.Activate(ctx); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		d.logger.Warn("Could not activate the new tab.", zap.Error(err))
	}
	if err := d.waitLoaded(ctx, tab); err != nil {
		return Outcome{}, err
	}
	url, err := tab.URL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		url = ""
	}
	d.logger.Debug("New tab detected and settled.", zap.String("url", url))
	return Outcome{Kind: NewTabOpened, Tab: tab, URL: url}, nil
}

// waitLoaded waits for the load state and then a short network-quiet period,
// each bounded by the load timeout. Timeouts here are warnings, not errors.
func (d *Detector) waitLoaded(ctx context.Context, tab engine.Tab) error {
	loadCtx, cancel := context.WithTimeout(ctx, d.cfg.LoadTimeout)
	defer cancel()

	if err := tab.WaitReady(loadCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("Tab did not reach the loaded state in time.", zap.Error(err))
		return nil
	}

	idleCtx, cancelIdle := context.WithTimeout(ctx, d.cfg.LoadTimeout)
	defer cancelIdle()
	if err := tab.WaitIdle(idleCtx, d.cfg.IdleQuiet); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Debug("Network did not go quiet in time; continuing anyway.", zap.Error(err))
	}
	return nil
}

// Close closes a detected auxiliary tab and restores focus to the origin.
// Used by callers that opened a detail tab and are done with it.
func (d *Detector) Close(ctx context.Context, outcome Outcome, origin engine.Tab) {
	if outcome.Kind != NewTabOpened || outcome.Tab == nil {
		return
	}
	if err := outcome.Tab.Close(ctx); err != nil {
		d.logger.Debug("Could not close the auxiliary tab.", zap.Error(err))
	}
	if err := origin.Activate(ctx); err != nil {
		d.logger.Debug("Could not refocus the origin tab.", zap.Error(err))
	}
	// Give the site a moment to settle after the tab churn.
	_ = fallback.Sleep(ctx, 200*time.Millisecond)
}
