// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/engine"
)

// -- Engine Mock --

// MockEngine mocks engine.Engine.
type MockEngine struct {
	mock.Mock
}

var _ engine.Engine = (*MockEngine)(nil)

func (m *MockEngine) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Session, error) {
	args := m.Called(ctx, opts)
	sess, _ := args.Get(0).(engine.Session)
	return sess, args.Error(1)
}

// -- Session Mock --

// MockSession mocks engine.Session.
type MockSession struct {
	mock.Mock
}

var _ engine.Session = (*MockSession)(nil)

func (m *MockSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) CurrentTab() engine.Tab {
	args := m.Called()
	tab, _ := args.Get(0).(engine.Tab)
	return tab
}

func (m *MockSession) Tabs(ctx context.Context) ([]engine.Tab, error) {
	args := m.Called(ctx)
	tabs, _ := args.Get(0).([]engine.Tab)
	return tabs, args.Error(1)
}

func (m *MockSession) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	args := m.Called(ctx)
	cookies, _ := args.Get(0).([]schemas.Cookie)
	return cookies, args.Error(1)
}

func (m *MockSession) StorageState(ctx context.Context) (*schemas.SessionState, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(*schemas.SessionState)
	return state, args.Error(1)
}

func (m *MockSession) ApplyState(ctx context.Context, state *schemas.SessionState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Tab Mock --

// MockTab mocks engine.Tab.
type MockTab struct {
	mock.Mock
}

var _ engine.Tab = (*MockTab)(nil)

func (m *MockTab) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockTab) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTab) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockTab) WaitReady(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTab) WaitIdle(ctx context.Context, quiet time.Duration) error {
	args := m.Called(ctx, quiet)
	return args.Error(0)
}

func (m *MockTab) Query(ctx context.Context, locator string) (engine.Element, error) {
	args := m.Called(ctx, locator)
	el, _ := args.Get(0).(engine.Element)
	return el, args.Error(1)
}

func (m *MockTab) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTab) Evaluate(ctx context.Context, script string, out any) error {
	args := m.Called(ctx, script, out)
	return args.Error(0)
}

func (m *MockTab) Back(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTab) Activate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTab) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Element Mock --

// MockElement mocks engine.Element.
type MockElement struct {
	mock.Mock
}

var _ engine.Element = (*MockElement)(nil)

func (m *MockElement) Locator() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockElement) Visible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Enabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) ScrollIntoView(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockElement) Click(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockElement) ForceClick(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockElement) ScriptClick(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockElement) Type(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockElement) SetValue(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockElement) Press(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
