// Package auth decides whether a browser session is currently authenticated
// against the target site, and waits for a human to complete a login when it
// is not. Detection is layered: cheap passive signals (cookies, storage,
// DOM markers) are consulted first, and a navigational probe is used only
// when the passive tiers are inconclusive and the caller allows navigation.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
)

// Signal names the tier that decided the verdict, for logging.
type Signal string

const (
	SignalCookie      Signal = "auth_cookie"
	SignalStorage     Signal = "storage_token"
	SignalDOMLoggedIn Signal = "dom_logged_in"
	SignalProbe       Signal = "route_probe"
	SignalURL         Signal = "url_heuristic"
	SignalNone        Signal = "none"
)

// Verdict is the result of one verification pass.
type Verdict struct {
	LoggedIn bool
	// Signal is the tier that produced the verdict; SignalNone when every
	// tier was inconclusive (reported as logged out).
	Signal Signal
}

// Verifier inspects a session through read-mostly signals. A Verifier holds
// no mutable state: Check may be called any number of times and, absent
// external changes to the session, returns the same verdict.
type Verifier struct {
	site   config.SiteConfig
	logger *zap.Logger
}

// NewVerifier creates a verifier for the configured site.
func NewVerifier(site config.SiteConfig, logger *zap.Logger) *Verifier {
	return &Verifier{
		site:   site,
		logger: logger.Named("auth"),
	}
}

// Check runs the detection tiers in order and returns at the first
// conclusive one. With fastOnly set, the navigational probe tier is skipped
// and the session's page state is left untouched. Tier errors are logged and
// treated as "inconclusive"; only context cancellation propagates.
func (v *Verifier) Check(ctx context.Context, sess engine.Session, fastOnly bool) (Verdict, error) {
	// Tier 1: auth cookies. Presence of any configured cookie name on a
	// configured domain short-circuits everything else.
	if ok, err := v.checkCookies(ctx, sess); err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		v.logger.Debug("Cookie check failed; moving to next tier.", zap.Error(err))
	} else if ok {
		v.logger.Debug("Login confirmed by auth cookie.")
		return Verdict{LoggedIn: true, Signal: SignalCookie}, nil
	}

	tab := sess.CurrentTab()

	// Tier 2: local-storage token markers.
	if ok, err := v.checkStorage(ctx, tab); err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		v.logger.Debug("Storage check failed; moving to next tier.", zap.Error(err))
	} else if ok {
		v.logger.Debug("Login confirmed by storage token.")
		return Verdict{LoggedIn: true, Signal: SignalStorage}, nil
	}

	// Tier 3: DOM markers. Conclusive only in one direction: a visible
	// logged-in marker with no visible logged-out marker. Every other
	// combination (including a lone login button) is unreliable page
	// dressing and falls through to the stronger tiers.
	loggedInMarker := v.anyVisible(ctx, tab, v.site.LoggedInMarkers)
	if ctx.Err() != nil {
		return Verdict{}, ctx.Err()
	}
	loggedOutMarker := v.anyVisible(ctx, tab, v.site.LoggedOutMarkers)
	if ctx.Err() != nil {
		return Verdict{}, ctx.Err()
	}
	if loggedInMarker && !loggedOutMarker {
		v.logger.Debug("Login confirmed by page marker.")
		return Verdict{LoggedIn: true, Signal: SignalDOMLoggedIn}, nil
	}

	// Tier 4: navigational probe. Loading a protected route and watching
	// where the site sends us is conclusive but disturbs the page, so it is
	// skipped in fast mode.
	if !fastOnly {
		verdict, conclusive, err := v.probeProtectedRoute(ctx, tab)
		if err != nil {
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			v.logger.Debug("Protected-route probe failed; moving to next tier.", zap.Error(err))
		} else if conclusive {
			return verdict, nil
		}
	}

	// Tier 5: URL heuristic. Being parked on an authenticated-only path is
	// weak evidence, but by this point it is all we have.
	if ok, err := v.checkURL(ctx, tab); err == nil && ok {
		v.logger.Debug("Login inferred from current URL.")
		return Verdict{LoggedIn: true, Signal: SignalURL}, nil
	}
	if ctx.Err() != nil {
		return Verdict{}, ctx.Err()
	}

	v.logger.Debug("No tier was conclusive; treating session as logged out.")
	return Verdict{LoggedIn: false, Signal: SignalNone}, nil
}

func (v *Verifier) checkCookies(ctx context.Context, sess engine.Session) (bool, error) {
	cookies, err := sess.Cookies(ctx)
	if err != nil {
		return false, fmt.Errorf("read cookies: %w", err)
	}

	names := make(map[string]struct{}, len(v.site.AuthCookieNames))
	for _, n := range v.site.AuthCookieNames {
		names[n] = struct{}{}
	}

	for _, c := range cookies {
		if _, watched := names[c.Name]; !watched {
			continue
		}
		if c.Value == "" {
			continue
		}
		if v.domainMatches(c.Domain) {
			v.logger.Debug("Auth cookie present.", zap.String("cookie", c.Name), zap.String("domain", c.Domain))
			return true, nil
		}
	}
	return false, nil
}

func (v *Verifier) domainMatches(domain string) bool {
	d := strings.TrimPrefix(domain, ".")
	for _, want := range v.site.Domains {
		w := strings.TrimPrefix(want, ".")
		if d == w || strings.HasSuffix(d, "."+w) {
			return true
		}
	}
	return false
}

// checkStorage scans local-storage keys of the current origin for any of the
// configured marker substrings, requiring a non-trivial value.
func (v *Verifier) checkStorage(ctx context.Context, tab engine.Tab) (bool, error) {
	const script = `(() => {
		const out = {};
		for (let i = 0; i < localStorage.length; i++) {
			const k = localStorage.key(i);
			out[k] = String(localStorage.getItem(k) || "");
		}
		return out;
	})()`

	var items map[string]string
	if err := tab.Evaluate(ctx, script, &items); err != nil {
		return false, fmt.Errorf("read local storage: %w", err)
	}

	for key, val := range items {
		lower := strings.ToLower(key)
		for _, marker := range v.site.StorageKeyMarkers {
			if strings.Contains(lower, strings.ToLower(marker)) && len(val) > 2 {
				v.logger.Debug("Storage token present.", zap.String("key", key))
				return true, nil
			}
		}
	}
	return false, nil
}

// anyVisible reports whether any of the locators resolves to a visible
// element. Resolution and visibility errors count as "not visible".
func (v *Verifier) anyVisible(ctx context.Context, tab engine.Tab, locators []string) bool {
	for _, loc := range locators {
		if ctx.Err() != nil {
			return false
		}
		el, err := tab.Query(ctx, loc)
		if err != nil {
			continue
		}
		visible, err := el.Visible(ctx)
		if err != nil {
			continue
		}
		if visible {
			return true
		}
	}
	return false
}

// probeProtectedRoute navigates to a route that requires authentication and
// inspects where the site sends us. Ending up in the login flow is conclusive
// evidence of a logged-out session; staying on the route is conclusive
// evidence of a logged-in one. Any other landing page is judged by whether it
// offers a login entry point, and is inconclusive when it does.
func (v *Verifier) probeProtectedRoute(ctx context.Context, tab engine.Tab) (Verdict, bool, error) {
	if err := tab.Navigate(ctx, v.site.ProtectedRoute); err != nil {
		return Verdict{}, false, fmt.Errorf("navigate to protected route: %w", err)
	}
	if err := tab.WaitReady(ctx); err != nil {
		return Verdict{}, false, fmt.Errorf("wait for protected route: %w", err)
	}

	landed, err := tab.URL(ctx)
	if err != nil {
		return Verdict{}, false, fmt.Errorf("read landing url: %w", err)
	}

	if v.inLoginFlow(landed) {
		v.logger.Debug("Protected route redirected to login.", zap.String("url", landed))
		return Verdict{LoggedIn: false, Signal: SignalProbe}, true, nil
	}
	if strings.Contains(landed, v.protectedRoutePath()) {
		v.logger.Debug("Protected route served without redirect.", zap.String("url", landed))
		return Verdict{LoggedIn: true, Signal: SignalProbe}, true, nil
	}

	// Bounced somewhere that is neither the route nor the login flow. A
	// visible login entry on the landing page leaves the probe inconclusive;
	// its absence is taken as a served, authenticated page.
	if v.anyVisible(ctx, tab, v.site.LoggedOutMarkers) {
		v.logger.Debug("Probe landed off route with a login entry present.", zap.String("url", landed))
		return Verdict{}, false, nil
	}
	v.logger.Debug("Probe landed off route without a login entry.", zap.String("url", landed))
	return Verdict{LoggedIn: true, Signal: SignalProbe}, true, nil
}

// protectedRoutePath reduces the configured route to its path so redirects
// that keep the path but rewrite host or query still count as "on route".
func (v *Verifier) protectedRoutePath() string {
	if u, err := url.Parse(v.site.ProtectedRoute); err == nil && u.Path != "" {
		return u.Path
	}
	return v.site.ProtectedRoute
}

// inLoginFlow reports whether the URL belongs to the site's login flow.
func (v *Verifier) inLoginFlow(u string) bool {
	return v.site.LoginURLFragment != "" &&
		strings.Contains(strings.ToLower(u), strings.ToLower(v.site.LoginURLFragment))
}

func (v *Verifier) checkURL(ctx context.Context, tab engine.Tab) (bool, error) {
	current, err := tab.URL(ctx)
	if err != nil {
		return false, err
	}
	// A login URL never counts, whatever path it carries.
	if v.inLoginFlow(current) {
		return false, nil
	}
	for _, prefix := range v.site.AuthPathPrefixes {
		if strings.Contains(current, prefix) {
			return true, nil
		}
	}
	return false, nil
}
