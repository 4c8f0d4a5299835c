package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/hliang2/chatspider/internal/engine"
)

// element addresses a DOM node by its locator. It deliberately holds no node
// handle: pages under automation re-render constantly, and re-resolving by
// selector on every operation sidesteps stale-node errors entirely.
type element struct {
	tab     *tab
	locator string
}

var _ engine.Element = (*element)(nil)

func (e *element) Locator() string { return e.locator }

func (e *element) Visible(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	})()`, q(e.locator))

	var visible bool
	if err := e.tab.Evaluate(ctx, script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		if (el.disabled) return false;
		return el.getAttribute('aria-disabled') !== 'true';
	})()`, q(e.locator))

	var enabled bool
	if err := e.tab.Evaluate(ctx, script, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.tab.run(ctx, chromedp.ScrollIntoView(e.locator, chromedp.ByQuery))
}

// Click performs chromedp's checked click, which requires the node to be
// present and computes a real mouse event at its location.
func (e *element) Click(ctx context.Context) error {
	if err := e.tab.run(ctx, chromedp.Click(e.locator, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("cdp: click %q: %w", e.locator, err)
	}
	return nil
}

// ForceClick dispatches raw mouse press/release events at the element's
// center, bypassing chromedp's node checks. Overlays that swallow checked
// clicks do not stop a raw event at the right coordinates.
func (e *element) ForceClick(ctx context.Context) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return { x: r.left + r.width / 2, y: r.top + r.height / 2 };
	})()`, q(e.locator))

	var center *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := e.tab.Evaluate(ctx, script, &center); err != nil {
		return fmt.Errorf("cdp: locate %q for forced click: %w", e.locator, err)
	}
	if center == nil {
		return engine.ErrNoElement
	}

	err := e.tab.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, center.X, center.Y).
			WithButton(input.Left).
			WithClickCount(1)
		if err := press.Do(c); err != nil {
			return err
		}
		release := input.DispatchMouseEvent(input.MouseReleased, center.X, center.Y).
			WithButton(input.Left).
			WithClickCount(1)
		return release.Do(c)
	}))
	if err != nil {
		return fmt.Errorf("cdp: forced click %q: %w", e.locator, err)
	}
	return nil
}

// ScriptClick invokes the element's click handler from page script.
func (e *element) ScriptClick(ctx context.Context) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, q(e.locator))

	var clicked bool
	if err := e.tab.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("cdp: script click %q: %w", e.locator, err)
	}
	if !clicked {
		return engine.ErrNoElement
	}
	return nil
}

// Type focuses the element, clears any existing content, and sends the text
// as key input so the page sees real keystrokes.
func (e *element) Type(ctx context.Context, text string) error {
	clear := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		if ('value' in el) { el.value = ''; }
		else if (el.isContentEditable) { el.textContent = ''; }
		return true;
	})()`, q(e.locator))

	var found bool
	err := e.tab.run(ctx,
		chromedp.Focus(e.locator, chromedp.ByQuery),
		chromedp.Evaluate(clear, &found),
		chromedp.SendKeys(e.locator, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("cdp: type into %q: %w", e.locator, err)
	}
	return nil
}

// SetValue assigns the content from page script and fires input/change
// events, for editors that intercept or mangle synthetic keystrokes.
func (e *element) SetValue(ctx context.Context, text string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		if ('value' in el) { el.value = %s; }
		else { el.textContent = %s; }
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, q(e.locator), q(text), q(text))

	var set bool
	if err := e.tab.Evaluate(ctx, script, &set); err != nil {
		return fmt.Errorf("cdp: set value on %q: %w", e.locator, err)
	}
	if !set {
		return engine.ErrNoElement
	}
	return nil
}

// keyRunes maps key names to the raw sequences chromedp's keyboard layer
// understands.
var keyRunes = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"Backspace": kb.Backspace,
}

func (e *element) Press(ctx context.Context, key string) error {
	seq, ok := keyRunes[key]
	if !ok {
		seq = key
	}
	err := e.tab.run(ctx,
		chromedp.Focus(e.locator, chromedp.ByQuery),
		chromedp.SendKeys(e.locator, seq, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("cdp: press %q on %q: %w", key, e.locator, err)
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.tab.run(ctx, chromedp.Text(e.locator, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("cdp: read text of %q: %w", e.locator, err)
	}
	return strings.TrimSpace(text), nil
}
