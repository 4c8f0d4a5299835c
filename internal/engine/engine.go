// Package engine defines the narrow surface the automation core consumes
// from a browser-automation backend. The core never talks to a concrete
// driver directly; it is handed a Session and works through these
// interfaces, which keeps every component testable against mocks.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/hliang2/chatspider/api/schemas"
)

// ErrNoElement is returned by Tab.Query when no node matches the locator.
// Callers treat it as "try the next candidate", never as a fatal fault.
var ErrNoElement = errors.New("engine: no element matches locator")

// LaunchOptions controls how the backing browser process is started.
type LaunchOptions struct {
	// UserDataDir points at a persistent profile directory. When set, the
	// browser reuses cookies and storage across runs without any explicit
	// state restore.
	UserDataDir string
	Headless    bool
	UserAgent   string
	WindowW     int
	WindowH     int
	// ExtraArgs are appended to the driver's default command line.
	ExtraArgs []string
}

// Engine launches browser sessions. Launch failure is the only error in the
// system treated as fatal by callers.
type Engine interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one running browser with at least one tab. All mutation of the
// session goes through exactly one component at a time by construction; the
// interface itself carries no locking guarantees.
type Session interface {
	// ID uniquely identifies the session for logging.
	ID() string
	// CurrentTab returns the primary tab.
	CurrentTab() Tab
	// Tabs enumerates all open tabs in creation order.
	Tabs(ctx context.Context) ([]Tab, error)
	// Cookies returns all cookies visible to the session.
	Cookies(ctx context.Context) ([]schemas.Cookie, error)
	// StorageState captures cookies plus per-origin local storage into a
	// serializable bundle.
	StorageState(ctx context.Context) (*schemas.SessionState, error)
	// ApplyState restores a previously captured bundle into the session.
	ApplyState(ctx context.Context, state *schemas.SessionState) error
	// Close shuts the browser down.
	Close(ctx context.Context) error
}

// Tab is a single page context.
type Tab interface {
	// ID identifies the tab within its session.
	ID() string
	// URL reports the tab's current location.
	URL(ctx context.Context) (string, error)
	// Navigate loads the URL and returns once the navigation commits.
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the document content has loaded.
	WaitReady(ctx context.Context) error
	// WaitIdle blocks until no network activity is observed for quiet.
	WaitIdle(ctx context.Context, quiet time.Duration) error
	// Query resolves a locator to an element, or ErrNoElement.
	Query(ctx context.Context, locator string) (Element, error)
	// Content returns the full serialized document.
	Content(ctx context.Context) (string, error)
	// Evaluate runs script in the page, optionally unmarshaling into out.
	Evaluate(ctx context.Context, script string, out any) error
	// Back navigates one step back in the tab's history.
	Back(ctx context.Context) error
	// Activate brings the tab to the foreground.
	Activate(ctx context.Context) error
	// Close closes this tab only.
	Close(ctx context.Context) error
}

// Element is a resolved DOM node. Presence does not imply interactability;
// callers must check Visible and Enabled before acting.
type Element interface {
	// Locator returns the expression the element was resolved from.
	Locator() string
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	ScrollIntoView(ctx context.Context) error
	// Click performs the engine's checked click.
	Click(ctx context.Context) error
	// ForceClick dispatches the click without actionability checks.
	ForceClick(ctx context.Context) error
	// ScriptClick invokes the element's click handler from page script.
	ScriptClick(ctx context.Context) error
	// Type focuses the element, clears it, and sends the text as key input.
	Type(ctx context.Context, text string) error
	// SetValue assigns the value directly from page script and fires an
	// input event; the script-tier fallback for Type.
	SetValue(ctx context.Context, text string) error
	// Press sends a single named key (e.g. "Enter") to the element.
	Press(ctx context.Context, key string) error
	// Text returns the element's trimmed text content.
	Text(ctx context.Context) (string, error)
}
