package cdp

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// session wraps one browser process. The primary tab is the chromedp context
// created at launch; further tabs get their own derived contexts, cached per
// target so repeated enumeration reuses connections.
type session struct {
	id      string
	ctx     context.Context
	cancel  func()
	logger  *zap.Logger
	primary *tab

	mu       sync.Mutex
	tabs     map[target.ID]*tab
	isClosed bool
}

var _ engine.Session = (*session)(nil)

func newSession(id string, browserCtx context.Context, cancel func(), logger *zap.Logger) *session {
	s := &session{
		id:     id,
		ctx:    browserCtx,
		cancel: cancel,
		logger: logger,
		tabs:   make(map[target.ID]*tab),
	}
	s.primary = &tab{ctx: browserCtx, sess: s, logger: logger.Named("tab")}
	if tc := chromedp.FromContext(browserCtx); tc != nil && tc.Target != nil {
		s.primary.targetID = tc.Target.TargetID
	}
	return s
}

func (s *session) ID() string { return s.id }

func (s *session) CurrentTab() engine.Tab { return s.primary }

// Tabs enumerates all page targets. Contexts for tabs opened by the page
// itself (popups, window.open) are created on first sight and cached.
func (s *session) Tabs(ctx context.Context) ([]engine.Tab, error) {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, fmt.Errorf("cdp: enumerate targets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []engine.Tab
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if info.TargetID == s.primary.targetID {
			out = append(out, s.primary)
			continue
		}
		t, ok := s.tabs[info.TargetID]
		if !ok {
			tabCtx, tabCancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(info.TargetID))
			t = &tab{
				ctx:      tabCtx,
				cancel:   tabCancel,
				targetID: info.TargetID,
				sess:     s,
				logger:   s.logger.Named("tab").With(zap.String("target_id", string(info.TargetID))),
			}
			s.tabs[info.TargetID] = t
		}
		out = append(out, t)
	}
	return out, nil
}

// forget drops a closed tab from the cache.
func (s *session) forget(id target.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tabs[id]; ok {
		if t.cancel != nil {
			t.cancel()
		}
		delete(s.tabs, id)
	}
}

// Cookies returns every cookie the browser holds.
func (s *session) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("cdp: get cookies: %w", err)
	}

	out := make([]schemas.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out, nil
}

// StorageState captures cookies plus the current origin's local storage into
// a serializable bundle.
func (s *session) StorageState(ctx context.Context) (*schemas.SessionState, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	state := &schemas.SessionState{Cookies: cookies}

	const script = `(() => {
		const items = [];
		try {
			for (let i = 0; i < localStorage.length; i++) {
				const k = localStorage.key(i);
				items.push({ key: k, value: String(localStorage.getItem(k) || "") });
			}
		} catch (e) { /* storage disabled */ }
		return { origin: window.location.origin, localStorage: items };
	})()`

	var origin schemas.OriginState
	if err := s.primary.Evaluate(ctx, script, &origin); err != nil {
		// Storage is a bonus on top of cookies; capture what we can.
		s.logger.Warn("Could not capture local storage.", zap.Error(err))
		return state, nil
	}
	if origin.Origin != "" && len(origin.LocalStorage) > 0 {
		state.Origins = append(state.Origins, origin)
	}
	return state, nil
}

// ApplyState restores cookies first, then visits each origin to write its
// local storage. Individual item failures are logged, not fatal: a partial
// restore is still worth verifying.
func (s *session) ApplyState(ctx context.Context, state *schemas.SessionState) error {
	if state.Empty() {
		return nil
	}

	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	if len(state.Cookies) > 0 {
		params := make([]*network.CookieParam, 0, len(state.Cookies))
		for _, c := range state.Cookies {
			params = append(params, &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			})
		}
		err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
			return network.SetCookies(params).Do(c)
		}))
		if err != nil {
			return fmt.Errorf("cdp: restore cookies: %w", err)
		}
		s.logger.Debug("Cookies restored.", zap.Int("count", len(state.Cookies)))
	}

	for _, origin := range state.Origins {
		if len(origin.LocalStorage) == 0 {
			continue
		}
		if err := s.primary.Navigate(ctx, origin.Origin); err != nil {
			s.logger.Warn("Could not reach origin for storage restore.",
				zap.String("origin", origin.Origin), zap.Error(err))
			continue
		}
		payload, err := json.Marshal(origin.LocalStorage)
		if err != nil {
			return fmt.Errorf("cdp: encode storage items: %w", err)
		}
		script := fmt.Sprintf(`(() => {
			const items = %s;
			let written = 0;
			for (const it of items) {
				try { localStorage.setItem(it.key, it.value); written++; } catch (e) {}
			}
			return written;
		})()`, payload)

		var written int
		if err := s.primary.Evaluate(ctx, script, &written); err != nil {
			s.logger.Warn("Could not restore local storage for origin.",
				zap.String("origin", origin.Origin), zap.Error(err))
			continue
		}
		s.logger.Debug("Local storage restored.",
			zap.String("origin", origin.Origin), zap.Int("items", written))
	}
	return nil
}

// Close shuts the browser process down and releases every cached tab.
func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	for _, t := range s.tabs {
		if t.cancel != nil {
			t.cancel()
		}
	}
	s.tabs = map[target.ID]*tab{}
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	// Ask the browser to exit cleanly before tearing the allocator down.
	if err := chromedp.Cancel(s.ctx); err != nil {
		s.logger.Debug("Graceful browser shutdown failed.", zap.Error(err))
	}
	s.cancel()
	return nil
}
