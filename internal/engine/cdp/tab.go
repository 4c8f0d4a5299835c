package cdp

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/internal/engine"
)

// tab is one page target. All operations run on a context combining the
// tab's chromedp context with the caller's, so either side can cancel.
type tab struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	sess     *session
	logger   *zap.Logger
}

var _ engine.Tab = (*tab)(nil)

func (t *tab) ID() string { return string(t.targetID) }

func (t *tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(t.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (t *tab) URL(ctx context.Context) (string, error) {
	var url string
	if err := t.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("cdp: read location: %w", err)
	}
	return url, nil
}

func (t *tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("cdp: navigate to %s: %w", url, err)
	}
	return nil
}

// WaitReady blocks until the document body exists, the same readiness bar
// the rest of the system builds its own waits on top of.
func (t *tab) WaitReady(ctx context.Context) error {
	if err := t.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("cdp: wait ready: %w", err)
	}
	return nil
}

// WaitIdle blocks until no network activity has been observed for quiet.
// Activity is tracked from CDP network events on this target.
func (t *tab) WaitIdle(ctx context.Context, quiet time.Duration) error {
	runCtx, cancel := combineContext(t.ctx, ctx)
	defer cancel()

	var last atomic.Int64
	last.Store(time.Now().UnixNano())

	listenCtx, stopListening := context.WithCancel(runCtx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent,
			*network.EventLoadingFinished,
			*network.EventLoadingFailed:
			last.Store(time.Now().UnixNano())
		}
	})

	if err := chromedp.Run(runCtx, network.Enable()); err != nil {
		return fmt.Errorf("cdp: enable network tracking: %w", err)
	}

	checkEvery := quiet / 4
	if checkEvery < 50*time.Millisecond {
		checkEvery = 50 * time.Millisecond
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case <-ticker.C:
			if time.Since(time.Unix(0, last.Load())) >= quiet {
				return nil
			}
		}
	}
}

// Query resolves a CSS locator. Resolution is existence-only; visibility and
// interactability are separate questions answered by the element.
func (t *tab) Query(ctx context.Context, locator string) (engine.Element, error) {
	script := fmt.Sprintf(`document.querySelector(%s) !== null`, q(locator))
	var found bool
	if err := t.Evaluate(ctx, script, &found); err != nil {
		return nil, fmt.Errorf("cdp: query %q: %w", locator, err)
	}
	if !found {
		return nil, engine.ErrNoElement
	}
	return &element{tab: t, locator: locator}, nil
}

func (t *tab) Content(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("cdp: capture document: %w", err)
	}
	return html, nil
}

func (t *tab) Evaluate(ctx context.Context, script string, out any) error {
	if err := t.run(ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("cdp: evaluate: %w", err)
	}
	return nil
}

func (t *tab) Back(ctx context.Context) error {
	if err := t.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("cdp: navigate back: %w", err)
	}
	return nil
}

func (t *tab) Activate(ctx context.Context) error {
	err := t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return page.BringToFront().Do(c)
	}))
	if err != nil {
		return fmt.Errorf("cdp: activate tab: %w", err)
	}
	return nil
}

func (t *tab) Close(ctx context.Context) error {
	err := t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return page.Close().Do(c)
	}))
	if t.targetID != "" && t.sess != nil {
		t.sess.forget(t.targetID)
	}
	if err != nil {
		return fmt.Errorf("cdp: close tab: %w", err)
	}
	return nil
}

// q returns the locator as a JS string literal.
func q(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
