// Package cdp implements the engine interfaces on top of chromedp. It is the
// only package in the tree that talks to the Chrome DevTools Protocol; every
// other component works through the engine interfaces and can be tested
// against mocks.
package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/internal/engine"
)

// Engine launches Chrome via chromedp. It carries no per-session state.
type Engine struct {
	logger *zap.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New creates a chromedp-backed engine.
func New(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("cdp")}
}

// Launch starts a browser process and returns a session wrapping it. The
// profile directory from the options makes cookies and storage persistent
// across processes, which is the first line of session reuse.
func (e *Engine) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	// DefaultExecAllocatorOptions force headless; configure it explicitly.
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("hide-scrollbars", false))
		allocOpts = append(allocOpts, chromedp.Flag("mute-audio", false))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.WindowW > 0 && opts.WindowH > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowW, opts.WindowH))
	}
	for _, arg := range opts.ExtraArgs {
		name, value, hasValue := splitArg(arg)
		if hasValue {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			e.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// Establish the connection and the first tab.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("cdp: launch browser: %w", err)
	}

	sessionID := uuid.New().String()
	s := newSession(sessionID, browserCtx, func() {
		browserCancel()
		allocCancel()
	}, e.logger.With(zap.String("session_id", sessionID)))

	s.logger.Info("Browser session launched.",
		zap.Bool("headless", opts.Headless),
		zap.String("user_data_dir", opts.UserDataDir))
	return s, nil
}

// splitArg parses "name=value" / "--name=value" command-line style flags.
func splitArg(arg string) (name, value string, hasValue bool) {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			return arg[:i], arg[i+1:], true
		}
	}
	return arg, "", false
}
