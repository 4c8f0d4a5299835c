package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/action"
	"github.com/hliang2/chatspider/internal/auth"
	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
	"github.com/hliang2/chatspider/internal/entries"
	"github.com/hliang2/chatspider/internal/markup"
	"github.com/hliang2/chatspider/internal/mocks"
	"github.com/hliang2/chatspider/internal/nav"
	"github.com/hliang2/chatspider/internal/sessionstore"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Site = config.SiteConfig{
		HomeURL:           "https://www.example.test/",
		LoginURL:          "https://login.example.test/login",
		InboxURL:          "https://www.example.test/web/geek/chat",
		Domains:           []string{"example.test"},
		AuthCookieNames:   []string{"wt2"},
		StorageKeyMarkers: []string{"token"},
		LoggedInMarkers:   []string{".user-nav"},
		LoggedOutMarkers:  []string{".login-btn"},
		ProtectedRoute:    "https://www.example.test/web/geek/chat",
		LoginURLFragment:  "login",
		AuthPathPrefixes:  []string{"/web/geek/"},
	}
	cfg.Browser.PostLoadWait = time.Millisecond
	cfg.Browser.NavigationTimeout = time.Second
	cfg.Login.PollInterval = 10 * time.Millisecond
	cfg.Login.Deadline = 50 * time.Millisecond
	cfg.Detector.IdleQuiet = time.Millisecond
	cfg.Controller.EntryInterval = 0
	cfg.Controller.BackWait = time.Millisecond
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, eng *mocks.MockEngine) (*Orchestrator, *sessionstore.Store) {
	t.Helper()
	logger := zap.NewNop()
	store := sessionstore.New(afero.NewMemMapFs(), "session_state.json", logger)
	verifier := auth.NewVerifier(cfg.Site, logger)
	bridge := auth.NewBridge(verifier, cfg.Site, cfg.Login, logger)
	executor := action.NewExecutor(config.ExecutorConfig{MaxAttempts: 1, SettleDelay: time.Millisecond, Backoff: time.Millisecond}, logger)
	detector := nav.NewDetector(cfg.Detector, logger)
	parser := markup.NewParser(cfg.Locators, logger)
	controller := entries.NewController(cfg.Controller, cfg.Locators, executor, detector, parser, logger)

	orch, err := New(cfg, logger, eng, store, verifier, bridge, parser, controller)
	require.NoError(t, err)
	return orch, store
}

func authenticatedCookies() []schemas.Cookie {
	return []schemas.Cookie{{Name: "wt2", Value: "tok", Domain: ".example.test"}}
}

func TestNewRejectsNilDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestEnsureSessionWithValidStatePersistsAndReturns(t *testing.T) {
	cfg := testConfig()
	tab := new(mocks.MockTab)
	tab.On("Navigate", mock.Anything, cfg.Site.HomeURL).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(tab)
	sess.On("Cookies", mock.Anything).Return(authenticatedCookies(), nil)
	sess.On("StorageState", mock.Anything).Return(&schemas.SessionState{
		Cookies: authenticatedCookies(),
	}, nil)

	orch, store := newTestOrchestrator(t, cfg, new(mocks.MockEngine))

	require.NoError(t, orch.EnsureSession(context.Background(), sess))

	// A confirmed session must be persisted.
	saved := store.Load()
	require.NotNil(t, saved)
	assert.Len(t, saved.Cookies, 1)
}

func TestEnsureSessionRestoresPersistedState(t *testing.T) {
	cfg := testConfig()
	tab := new(mocks.MockTab)
	tab.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(tab)
	sess.On("ApplyState", mock.Anything, mock.Anything).Return(nil)
	sess.On("Cookies", mock.Anything).Return(authenticatedCookies(), nil)
	sess.On("StorageState", mock.Anything).Return(&schemas.SessionState{Cookies: authenticatedCookies()}, nil)

	orch, store := newTestOrchestrator(t, cfg, new(mocks.MockEngine))
	require.NoError(t, store.Save(&schemas.SessionState{Cookies: authenticatedCookies()}))

	require.NoError(t, orch.EnsureSession(context.Background(), sess))

	sess.AssertCalled(t, "ApplyState", mock.Anything, mock.Anything)
}

func TestEnsureSessionLoginTimeoutReportsLoginRequired(t *testing.T) {
	cfg := testConfig()
	tab := new(mocks.MockTab)
	tab.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)
	// Every passive tier is inconclusive and the probe lands on the login
	// page, so verification fails and the bridge times out.
	tab.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if out, ok := args.Get(2).(*map[string]string); ok {
				*out = map[string]string{}
			}
		}).Return(nil)
	tab.On("Query", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	tab.On("URL", mock.Anything).Return("https://login.example.test/login", nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(tab)
	sess.On("Cookies", mock.Anything).Return([]schemas.Cookie{}, nil)

	orch, _ := newTestOrchestrator(t, cfg, new(mocks.MockEngine))

	err := orch.EnsureSession(context.Background(), sess)
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestRunWithEmptyInboxReturnsEmptySummary(t *testing.T) {
	cfg := testConfig()
	tab := new(mocks.MockTab)
	tab.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)
	tab.On("WaitIdle", mock.Anything, mock.Anything).Return(nil)
	tab.On("Content", mock.Anything).Return("<html><body></body></html>", nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(tab)
	sess.On("Cookies", mock.Anything).Return(authenticatedCookies(), nil)
	sess.On("StorageState", mock.Anything).Return(&schemas.SessionState{Cookies: authenticatedCookies()}, nil)
	sess.On("Close", mock.Anything).Return(nil)

	eng := new(mocks.MockEngine)
	eng.On("Launch", mock.Anything, mock.Anything).Return(sess, nil)

	orch, _ := newTestOrchestrator(t, cfg, eng)

	summary, err := orch.Run(context.Background(), 0)

	require.NoError(t, err)
	assert.Zero(t, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	sess.AssertCalled(t, "Close", mock.Anything)
}

func TestRunSingleValidatesIndex(t *testing.T) {
	eng := new(mocks.MockEngine)
	orch, _ := newTestOrchestrator(t, testConfig(), eng)

	_, err := orch.RunSingle(context.Background(), 0)

	assert.Error(t, err)
	eng.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
}

func TestRunSingleRejectsIndexBeyondInbox(t *testing.T) {
	cfg := testConfig()
	tab := new(mocks.MockTab)
	tab.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)
	tab.On("WaitIdle", mock.Anything, mock.Anything).Return(nil)
	tab.On("Content", mock.Anything).Return("<html><body></body></html>", nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(tab)
	sess.On("Cookies", mock.Anything).Return(authenticatedCookies(), nil)
	sess.On("StorageState", mock.Anything).Return(&schemas.SessionState{Cookies: authenticatedCookies()}, nil)
	sess.On("Close", mock.Anything).Return(nil)

	eng := new(mocks.MockEngine)
	eng.On("Launch", mock.Anything, mock.Anything).Return(sess, nil)

	orch, _ := newTestOrchestrator(t, cfg, eng)

	_, err := orch.RunSingle(context.Background(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunSingleTouchesOnlyTheRequestedEntry(t *testing.T) {
	cfg := testConfig()
	inboxHTML := `<html><body><ul>
		<li role="listitem"><span class="name-text">Alice</span></li>
		<li role="listitem"><span class="name-text">Bob</span></li>
	</ul></body></html>`

	tab := new(mocks.MockTab)
	tab.On("ID").Return("origin").Maybe()
	tab.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)
	tab.On("WaitIdle", mock.Anything, mock.Anything).Return(nil)
	tab.On("Content", mock.Anything).Return(inboxHTML, nil)
	// No entry row ever resolves, so the selected entry fails fast.
	tab.On("Query", mock.Anything, mock.Anything).Return(nil, engine.ErrNoElement)
	tab.On("Activate", mock.Anything).Return(nil)
	tab.On("Back", mock.Anything).Return(nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(tab)
	sess.On("Tabs", mock.Anything).Return([]engine.Tab{tab}, nil)
	sess.On("Cookies", mock.Anything).Return(authenticatedCookies(), nil)
	sess.On("StorageState", mock.Anything).Return(&schemas.SessionState{Cookies: authenticatedCookies()}, nil)
	sess.On("Close", mock.Anything).Return(nil)

	eng := new(mocks.MockEngine)
	eng.On("Launch", mock.Anything, mock.Anything).Return(sess, nil)

	orch, _ := newTestOrchestrator(t, cfg, eng)

	summary, err := orch.RunSingle(context.Background(), 2)

	require.NoError(t, err, "a failing entry is reported in the summary, not as an error")
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 2, summary.Failures[0].Index)
	assert.Equal(t, "Bob", summary.Failures[0].Name)
	// Entry 1 was never addressed.
	tab.AssertNotCalled(t, "Query", mock.Anything, `li[role="listitem"]:nth-child(1) .friend-content`)
}

func TestSendValidatesArguments(t *testing.T) {
	orch, _ := newTestOrchestrator(t, testConfig(), new(mocks.MockEngine))

	assert.Error(t, orch.Send(context.Background(), 0, "hi"))
	assert.Error(t, orch.Send(context.Background(), 1, ""))
}
