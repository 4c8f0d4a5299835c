package entries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/action"
	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
	"github.com/hliang2/chatspider/internal/markup"
	"github.com/hliang2/chatspider/internal/mocks"
	"github.com/hliang2/chatspider/internal/nav"
)

func testController() *Controller {
	logger := zap.NewNop()
	locators := config.LocatorConfig{
		EntryItem:         []string{"#entry-%d"},
		DetailLink:        []string{"#detail"},
		MessageInput:      []string{"#input"},
		SendButton:        []string{"#send"},
		ExpandDescription: []string{"#expand"},
		Detail: config.DetailSelectors{
			Title:  "h1",
			Salary: ".salary",
		},
	}
	exec := action.NewExecutor(config.ExecutorConfig{
		MaxAttempts: 1,
		SettleDelay: time.Millisecond,
		Backoff:     time.Millisecond,
	}, logger)
	detector := nav.NewDetector(config.DetectorConfig{
		PollInterval: 5 * time.Millisecond,
		Timeout:      100 * time.Millisecond,
		LoadTimeout:  50 * time.Millisecond,
		IdleQuiet:    5 * time.Millisecond,
	}, logger)
	parser := markup.NewParser(locators, logger)

	return NewController(config.ControllerConfig{
		EntryInterval: 0,
		BackWait:      time.Millisecond,
	}, locators, exec, detector, parser, logger)
}

// clickable is an element mock that resolves and clicks cleanly.
func clickable(locator string) *mocks.MockElement {
	el := new(mocks.MockElement)
	el.On("Locator").Return(locator).Maybe()
	el.On("Visible", mock.Anything).Return(true, nil)
	el.On("Enabled", mock.Anything).Return(true, nil)
	el.On("ScrollIntoView", mock.Anything).Return(nil).Maybe()
	el.On("Click", mock.Anything).Return(nil)
	return el
}

func TestProcessAllIsolatesFailures(t *testing.T) {
	origin := new(mocks.MockTab)
	origin.On("ID").Return("origin").Maybe()

	// Entry 1 never resolves; entry 2 resolves and navigates in place.
	origin.On("Query", mock.Anything, "#entry-1").Return(nil, engine.ErrNoElement)
	origin.On("Query", mock.Anything, "#entry-2").Return(clickable("#entry-2"), nil)
	origin.On("Query", mock.Anything, "#detail").Return(clickable("#detail"), nil)
	origin.On("Query", mock.Anything, "#expand").Return(nil, engine.ErrNoElement)

	origin.On("URL", mock.Anything).Return("https://inbox.test/chat", nil).Once()
	origin.On("URL", mock.Anything).Return("https://inbox.test/job/7", nil)
	origin.On("WaitReady", mock.Anything).Return(nil)
	origin.On("WaitIdle", mock.Anything, mock.Anything).Return(nil)
	origin.On("Content", mock.Anything).Return(
		`<html><body><h1>Senior Go Developer</h1><span class="salary">30-50K</span></body></html>`, nil)
	origin.On("Back", mock.Anything).Return(nil)
	origin.On("Activate", mock.Anything).Return(nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(origin)
	sess.On("Tabs", mock.Anything).Return([]engine.Tab{origin}, nil)

	list := []schemas.Entry{
		{Index: 1, Name: "Alice", Status: schemas.EntryPending},
		{Index: 2, Name: "Bob", Status: schemas.EntryPending},
	}

	summary, err := testController().ProcessAll(context.Background(), sess, list)

	require.NoError(t, err, "one bad entry must not abort the batch")
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 1, summary.Failures[0].Index)
	assert.Equal(t, "Alice", summary.Failures[0].Name)
	require.Len(t, summary.Details, 1)
	assert.Equal(t, "Senior Go Developer", summary.Details[0].Title)

	assert.Equal(t, schemas.EntryFailed, list[0].Status)
	assert.Equal(t, schemas.EntrySucceeded, list[1].Status)
}

func TestProcessAllSkipsTerminalEntries(t *testing.T) {
	sess := new(mocks.MockSession)

	list := []schemas.Entry{
		{Index: 1, Name: "Done", Status: schemas.EntrySucceeded},
		{Index: 2, Name: "Broken", Status: schemas.EntryFailed},
	}

	summary, err := testController().ProcessAll(context.Background(), sess, list)

	require.NoError(t, err)
	assert.Zero(t, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	// Terminal statuses are immutable.
	assert.Equal(t, schemas.EntrySucceeded, list[0].Status)
	assert.Equal(t, schemas.EntryFailed, list[1].Status)
	sess.AssertNotCalled(t, "CurrentTab")
}

func TestProcessAllStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := new(mocks.MockSession)
	list := []schemas.Entry{{Index: 1, Status: schemas.EntryPending}}

	_, err := testController().ProcessAll(ctx, sess, list)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessOneNoNavigationIsAFailure(t *testing.T) {
	origin := new(mocks.MockTab)
	origin.On("ID").Return("origin").Maybe()
	origin.On("Query", mock.Anything, "#entry-1").Return(clickable("#entry-1"), nil)
	origin.On("Query", mock.Anything, "#detail").Return(clickable("#detail"), nil)
	origin.On("URL", mock.Anything).Return("https://inbox.test/chat", nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(origin)
	sess.On("Tabs", mock.Anything).Return([]engine.Tab{origin}, nil)

	entry := &schemas.Entry{Index: 1, Status: schemas.EntryProcessing}
	_, err := testController().ProcessOne(context.Background(), sess, entry)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no navigation")
}

func TestSendMessageFallsBackToEnter(t *testing.T) {
	input := new(mocks.MockElement)
	input.On("Locator").Return("#input").Maybe()
	input.On("Visible", mock.Anything).Return(true, nil)
	input.On("Enabled", mock.Anything).Return(true, nil)
	input.On("ScrollIntoView", mock.Anything).Return(nil).Maybe()
	input.On("Type", mock.Anything, "hello there").Return(nil)
	input.On("Press", mock.Anything, "Enter").Return(nil)

	origin := new(mocks.MockTab)
	origin.On("ID").Return("origin").Maybe()
	origin.On("Query", mock.Anything, "#entry-1").Return(clickable("#entry-1"), nil)
	origin.On("Query", mock.Anything, "#input").Return(input, nil)
	origin.On("Query", mock.Anything, "#send").Return(nil, engine.ErrNoElement)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(origin)

	err := testController().SendMessage(context.Background(), sess, 1, "hello there")

	require.NoError(t, err)
	input.AssertCalled(t, "Press", mock.Anything, "Enter")
}

func TestSendMessagePrefersSendButton(t *testing.T) {
	input := new(mocks.MockElement)
	input.On("Locator").Return("#input").Maybe()
	input.On("Visible", mock.Anything).Return(true, nil)
	input.On("Enabled", mock.Anything).Return(true, nil)
	input.On("ScrollIntoView", mock.Anything).Return(nil).Maybe()
	input.On("Type", mock.Anything, "ping").Return(nil)

	origin := new(mocks.MockTab)
	origin.On("ID").Return("origin").Maybe()
	origin.On("Query", mock.Anything, "#entry-1").Return(clickable("#entry-1"), nil)
	origin.On("Query", mock.Anything, "#input").Return(input, nil)
	origin.On("Query", mock.Anything, "#send").Return(clickable("#send"), nil)

	sess := new(mocks.MockSession)
	sess.On("CurrentTab").Return(origin)

	err := testController().SendMessage(context.Background(), sess, 1, "ping")

	require.NoError(t, err)
	input.AssertNotCalled(t, "Press", mock.Anything, mock.Anything)
}
