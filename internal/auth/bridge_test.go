package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/mocks"
)

func fastLoginConfig() config.LoginConfig {
	return config.LoginConfig{
		PollInterval: 10 * time.Millisecond,
		Deadline:     80 * time.Millisecond,
	}
}

func TestAwaitLoginDetectsCompletedLogin(t *testing.T) {
	sess := new(mocks.MockSession)
	tab := new(mocks.MockTab)
	sess.On("CurrentTab").Return(tab)
	tab.On("Navigate", mock.Anything, "https://login.example.test/login").Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)

	// No cookies on the first poll, then the operator finishes.
	stubEmptyStorage(tab)
	stubNoMarkers(tab)
	tab.On("URL", mock.Anything).Return("https://www.example.test/", nil)
	sess.On("Cookies", mock.Anything).Return([]schemas.Cookie{}, nil).Once()
	sess.On("Cookies", mock.Anything).Return([]schemas.Cookie{
		{Name: "wt2", Value: "tok", Domain: ".example.test"},
	}, nil)

	verifier := NewVerifier(testSite(), zap.NewNop())
	bridge := NewBridge(verifier, testSite(), fastLoginConfig(), zap.NewNop())

	ok, err := bridge.AwaitLogin(context.Background(), sess)

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAwaitLoginDeadlineIsNotAnError(t *testing.T) {
	sess := new(mocks.MockSession)
	tab := new(mocks.MockTab)
	sess.On("CurrentTab").Return(tab)
	tab.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)
	sess.On("Cookies", mock.Anything).Return([]schemas.Cookie{}, nil)
	stubEmptyStorage(tab)
	stubNoMarkers(tab)
	tab.On("URL", mock.Anything).Return("https://www.example.test/", nil)

	verifier := NewVerifier(testSite(), zap.NewNop())
	bridge := NewBridge(verifier, testSite(), fastLoginConfig(), zap.NewNop())

	ok, err := bridge.AwaitLogin(context.Background(), sess)

	require.NoError(t, err, "an expired deadline is a negative result, not a failure")
	assert.False(t, ok)
}

func TestAwaitLoginPropagatesCancellation(t *testing.T) {
	sess := new(mocks.MockSession)
	tab := new(mocks.MockTab)
	sess.On("CurrentTab").Return(tab)
	tab.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	tab.On("WaitReady", mock.Anything).Return(nil)
	sess.On("Cookies", mock.Anything).Return([]schemas.Cookie{}, nil)
	stubEmptyStorage(tab)
	stubNoMarkers(tab)
	tab.On("URL", mock.Anything).Return("https://www.example.test/", nil)

	verifier := NewVerifier(testSite(), zap.NewNop())
	cfg := config.LoginConfig{PollInterval: 10 * time.Millisecond, Deadline: time.Minute}
	bridge := NewBridge(verifier, testSite(), cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	ok, err := bridge.AwaitLogin(ctx, sess)

	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitLoginPollsWithFastChecksOnly(t *testing.T) {
	sess := new(mocks.MockSession)
	tab := new(mocks.MockTab)
	sess.On("CurrentTab").Return(tab)
	tab.On("Navigate", mock.Anything, "https://login.example.test/login").Return(nil).Once()
	tab.On("WaitReady", mock.Anything).Return(nil)
	sess.On("Cookies", mock.Anything).Return([]schemas.Cookie{}, nil)
	stubEmptyStorage(tab)
	stubNoMarkers(tab)
	tab.On("URL", mock.Anything).Return("https://login.example.test/login", nil)

	verifier := NewVerifier(testSite(), zap.NewNop())
	bridge := NewBridge(verifier, testSite(), fastLoginConfig(), zap.NewNop())

	_, err := bridge.AwaitLogin(context.Background(), sess)
	require.NoError(t, err)

	// Exactly one navigation: the initial hop to the login page. The polls
	// themselves must never navigate the window the operator is using.
	tab.AssertNumberOfCalls(t, "Navigate", 1)
}
