package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
	"github.com/hliang2/chatspider/internal/fallback"
)

// Bridge hands control of the visible browser window to a human for the
// interactive login, then polls the verifier until the session becomes
// authenticated or the deadline runs out.
type Bridge struct {
	verifier *Verifier
	site     config.SiteConfig
	cfg      config.LoginConfig
	logger   *zap.Logger
}

// NewBridge creates a login bridge backed by the given verifier.
func NewBridge(verifier *Verifier, site config.SiteConfig, cfg config.LoginConfig, logger *zap.Logger) *Bridge {
	return &Bridge{
		verifier: verifier,
		site:     site,
		cfg:      cfg,
		logger:   logger.Named("login"),
	}
}

// AwaitLogin navigates the session to the login page and then waits for the
// human operator to finish. Polling uses fast verification only, so the
// window the operator is typing into is never navigated away under them.
// Returns (true, nil) once logged in, (false, nil) when the deadline elapses
// without a login, and (false, ctx.Err()) on caller cancellation.
func (b *Bridge) AwaitLogin(ctx context.Context, sess engine.Session) (bool, error) {
	tab := sess.CurrentTab()
	if b.site.LoginURL != "" {
		if err := tab.Navigate(ctx, b.site.LoginURL); err != nil {
			b.logger.Warn("Could not open the login page; waiting on the current page instead.", zap.Error(err))
		} else if err := tab.WaitReady(ctx); err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
	}

	b.logger.Info("Waiting for manual login in the browser window.",
		zap.Duration("deadline", b.cfg.Deadline),
		zap.Duration("poll_interval", b.cfg.PollInterval))

	polls := 0
	err := fallback.Poll(ctx, b.cfg.PollInterval, b.cfg.Deadline, func(pollCtx context.Context) (bool, error) {
		polls++
		verdict, err := b.verifier.Check(pollCtx, sess, true)
		if err != nil {
			return false, err
		}
		if verdict.LoggedIn {
			b.logger.Info("Manual login detected.",
				zap.String("signal", string(verdict.Signal)),
				zap.Int("polls", polls))
		}
		return verdict.LoggedIn, nil
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fallback.ErrDeadline):
		b.logger.Warn("Manual login did not complete before the deadline.",
			zap.Duration("deadline", b.cfg.Deadline))
		return false, nil
	default:
		return false, err
	}
}
