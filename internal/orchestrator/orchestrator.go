// File: internal/orchestrator/orchestrator.go
// Description: Manages the high-level lifecycle of a run. It is injected
// with fully configured components via interfaces, making it decoupled and
// testable.

package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/auth"
	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
	"github.com/hliang2/chatspider/internal/entries"
	"github.com/hliang2/chatspider/internal/fallback"
	"github.com/hliang2/chatspider/internal/markup"
	"github.com/hliang2/chatspider/internal/sessionstore"
)

// ErrLoginRequired is returned when no authenticated session could be
// established, neither from persisted state nor interactively.
var ErrLoginRequired = fmt.Errorf("orchestrator: could not establish an authenticated session")

// Orchestrator sequences launch, session restore, verification, interactive
// login, and batch processing.
type Orchestrator struct {
	cfg        *config.Config
	logger     *zap.Logger
	engine     engine.Engine
	store      *sessionstore.Store
	verifier   *auth.Verifier
	bridge     *auth.Bridge
	parser     *markup.Parser
	controller *entries.Controller
}

// New creates an Orchestrator with its dependencies provided explicitly.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	eng engine.Engine,
	store *sessionstore.Store,
	verifier *auth.Verifier,
	bridge *auth.Bridge,
	parser *markup.Parser,
	controller *entries.Controller,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || eng == nil || store == nil ||
		verifier == nil || bridge == nil || parser == nil || controller == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		engine:     eng,
		store:      store,
		verifier:   verifier,
		bridge:     bridge,
		parser:     parser,
		controller: controller,
	}, nil
}

// launch starts the browser with the configured profile.
func (o *Orchestrator) launch(ctx context.Context) (engine.Session, error) {
	sess, err := o.engine.Launch(ctx, engine.LaunchOptions{
		UserDataDir: o.cfg.Browser.UserDataDir,
		Headless:    o.cfg.Browser.Headless,
		UserAgent:   o.cfg.Browser.UserAgent,
		WindowW:     o.cfg.Browser.WindowWidth,
		WindowH:     o.cfg.Browser.WindowHeight,
		ExtraArgs:   o.cfg.Browser.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return sess, nil
}

// EnsureSession brings the session to an authenticated state: restore
// persisted cookies and storage, verify, and fall back to the interactive
// login bridge when verification fails. A freshly confirmed session is
// persisted before this returns.
func (o *Orchestrator) EnsureSession(ctx context.Context, sess engine.Session) error {
	if state := o.store.Load(); !state.Empty() {
		if err := sess.ApplyState(ctx, state); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("Could not restore persisted session state.", zap.Error(err))
		}
	}

	// Land on the home page so DOM and storage tiers have something to see.
	tab := sess.CurrentTab()
	if err := tab.Navigate(ctx, o.cfg.Site.HomeURL); err != nil {
		return fmt.Errorf("open home page: %w", err)
	}
	if err := tab.WaitReady(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := fallback.Sleep(ctx, o.cfg.Browser.PostLoadWait); err != nil {
		return err
	}

	verdict, err := o.verifier.Check(ctx, sess, false)
	if err != nil {
		return err
	}
	if verdict.LoggedIn {
		o.logger.Info("Existing session is authenticated.",
			zap.String("signal", string(verdict.Signal)))
		o.persist(ctx, sess)
		return nil
	}

	o.logger.Info("No authenticated session; handing the window over for manual login.")
	ok, err := o.bridge.AwaitLogin(ctx, sess)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoginRequired
	}

	o.persist(ctx, sess)
	return nil
}

// Run executes the full workflow: authenticated session, inbox snapshot,
// and sequential entry processing. maxEntries <= 0 processes everything.
func (o *Orchestrator) Run(ctx context.Context, maxEntries int) (*schemas.BatchSummary, error) {
	sess, err := o.launch(ctx)
	if err != nil {
		return nil, err
	}
	defer o.close(sess)

	if err := o.EnsureSession(ctx, sess); err != nil {
		return nil, err
	}

	list, err := o.snapshotEntries(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		o.logger.Info("Inbox is empty; nothing to process.")
		return &schemas.BatchSummary{}, nil
	}
	if maxEntries > 0 && len(list) > maxEntries {
		list = list[:maxEntries]
	}
	o.logger.Info("Inbox snapshot taken.", zap.Int("entries", len(list)))

	summary, err := o.controller.ProcessAll(ctx, sess, list)

	// State may have been refreshed during the run; persist the latest.
	o.persist(context.WithoutCancel(ctx), sess)
	return summary, err
}

// RunSingle processes exactly one inbox entry, addressed by its 1-based
// position in the current snapshot. The batch machinery is reused so the
// entry gets the same pacing, status transitions, and recovery as a full run.
func (o *Orchestrator) RunSingle(ctx context.Context, index int) (*schemas.BatchSummary, error) {
	if index <= 0 {
		return nil, fmt.Errorf("entry index must be positive, got %d", index)
	}

	sess, err := o.launch(ctx)
	if err != nil {
		return nil, err
	}
	defer o.close(sess)

	if err := o.EnsureSession(ctx, sess); err != nil {
		return nil, err
	}

	list, err := o.snapshotEntries(ctx, sess)
	if err != nil {
		return nil, err
	}
	if index > len(list) {
		return nil, fmt.Errorf("entry %d not found: inbox has %d entries", index, len(list))
	}
	o.logger.Info("Processing a single inbox entry.",
		zap.Int("index", index), zap.String("name", list[index-1].Name))

	summary, err := o.controller.ProcessAll(ctx, sess, list[index-1:index])

	o.persist(context.WithoutCancel(ctx), sess)
	return summary, err
}

// Login establishes and persists an authenticated session, then exits. Used
// to prime the profile ahead of unattended runs.
func (o *Orchestrator) Login(ctx context.Context) error {
	sess, err := o.launch(ctx)
	if err != nil {
		return err
	}
	defer o.close(sess)

	return o.EnsureSession(ctx, sess)
}

// Send delivers one message to the entry at the given 1-based index.
func (o *Orchestrator) Send(ctx context.Context, index int, text string) error {
	if index <= 0 {
		return fmt.Errorf("entry index must be positive, got %d", index)
	}
	if text == "" {
		return fmt.Errorf("message text must not be empty")
	}

	sess, err := o.launch(ctx)
	if err != nil {
		return err
	}
	defer o.close(sess)

	if err := o.EnsureSession(ctx, sess); err != nil {
		return err
	}
	if err := o.openInbox(ctx, sess); err != nil {
		return err
	}
	return o.controller.SendMessage(ctx, sess, index, text)
}

func (o *Orchestrator) openInbox(ctx context.Context, sess engine.Session) error {
	tab := sess.CurrentTab()
	if err := tab.Navigate(ctx, o.cfg.Site.InboxURL); err != nil {
		return fmt.Errorf("open inbox: %w", err)
	}
	if err := tab.WaitReady(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := tab.WaitIdle(ctx, o.cfg.Detector.IdleQuiet); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return fallback.Sleep(ctx, o.cfg.Browser.PostLoadWait)
}

func (o *Orchestrator) snapshotEntries(ctx context.Context, sess engine.Session) ([]schemas.Entry, error) {
	if err := o.openInbox(ctx, sess); err != nil {
		return nil, err
	}
	html, err := sess.CurrentTab().Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot inbox: %w", err)
	}
	return o.parser.ParseEntries(html)
}

// persist saves the session's current auth state; failures are logged, never
// propagated, because the in-memory session remains valid regardless.
func (o *Orchestrator) persist(ctx context.Context, sess engine.Session) {
	state, err := sess.StorageState(ctx)
	if err != nil {
		o.logger.Warn("Could not capture session state for persistence.", zap.Error(err))
		return
	}
	if err := o.store.Save(state); err != nil {
		o.logger.Warn("Could not persist session state.", zap.Error(err))
	}
}

func (o *Orchestrator) close(sess engine.Session) {
	closeCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Browser.NavigationTimeout)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		o.logger.Warn("Error closing browser session.", zap.Error(err))
	}
}
