// Package action performs UI interactions with layered resilience: every
// logical target is an ordered list of candidate locators, and every
// interaction escalates through progressively blunter strategies before the
// attempt is counted as failed.
package action

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine"
	"github.com/hliang2/chatspider/internal/fallback"
)

// ErrTargetNotFound is returned when no candidate locator resolves to a
// visible, enabled element within the configured attempts.
var ErrTargetNotFound = errors.New("action: target not found")

// ErrAllStrategiesFailed is returned when a target was resolved but every
// interaction strategy was rejected by the engine on every attempt.
var ErrAllStrategiesFailed = errors.New("action: all interaction strategies failed")

// Executor drives clicks and text input against a tab.
type Executor struct {
	cfg    config.ExecutorConfig
	logger *zap.Logger
}

// NewExecutor creates an executor with the given retry tuning.
func NewExecutor(cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		logger: logger.Named("action"),
	}
}

// Resolve returns the first candidate locator that matches a visible,
// enabled element, in candidate order. Unmatched and non-interactable
// candidates are skipped silently; resolution errors are logged at debug.
func (e *Executor) Resolve(ctx context.Context, tab engine.Tab, locators []string) (engine.Element, bool) {
	candidates := make([]fallback.Candidate[engine.Element], 0, len(locators))
	for _, loc := range locators {
		loc := loc
		candidates = append(candidates, func(ctx context.Context) (engine.Element, bool, error) {
			el, err := tab.Query(ctx, loc)
			if err != nil {
				if errors.Is(err, engine.ErrNoElement) {
					return nil, false, nil
				}
				return nil, false, err
			}
			visible, err := el.Visible(ctx)
			if err != nil || !visible {
				return nil, false, err
			}
			enabled, err := el.Enabled(ctx)
			if err != nil || !enabled {
				return nil, false, err
			}
			return el, true, nil
		})
	}

	return fallback.First(ctx, candidates, func(i int, err error) {
		e.logger.Debug("Candidate locator errored during resolution.",
			zap.String("locator", locators[i]), zap.Error(err))
	})
}

// Click resolves the target and clicks it, escalating through the strategy
// order and retrying the whole resolve+click cycle up to the configured
// attempt count. The returned attempts record every cycle for diagnostics.
func (e *Executor) Click(ctx context.Context, tab engine.Tab, locators []string) ([]schemas.ActionAttempt, error) {
	return e.perform(ctx, tab, locators, func(ctx context.Context, el engine.Element, strategy schemas.InteractionStrategy) error {
		switch strategy {
		case schemas.NormalInvoke:
			return el.Click(ctx)
		case schemas.ForcedInvoke:
			return el.ForceClick(ctx)
		case schemas.ScriptInvoke:
			return el.ScriptClick(ctx)
		default:
			return fmt.Errorf("action: unknown strategy %q", strategy)
		}
	})
}

// Type resolves the target and enters text into it. The forced tier types
// without actionability checks after an explicit focus click; the script
// tier assigns the value directly and fires an input event.
func (e *Executor) Type(ctx context.Context, tab engine.Tab, locators []string, text string) ([]schemas.ActionAttempt, error) {
	return e.perform(ctx, tab, locators, func(ctx context.Context, el engine.Element, strategy schemas.InteractionStrategy) error {
		switch strategy {
		case schemas.NormalInvoke:
			return el.Type(ctx, text)
		case schemas.ForcedInvoke:
			if err := el.ForceClick(ctx); err != nil {
				return err
			}
			return el.Type(ctx, text)
		case schemas.ScriptInvoke:
			return el.SetValue(ctx, text)
		default:
			return fmt.Errorf("action: unknown strategy %q", strategy)
		}
	})
}

// Press resolves the target and sends a single named key to it. Keys have no
// strategy ladder; there is only one way to synthesize them.
func (e *Executor) Press(ctx context.Context, tab engine.Tab, locators []string, key string) error {
	el, ok := e.Resolve(ctx, tab, locators)
	if !ok {
		return ErrTargetNotFound
	}
	if err := el.Press(ctx, key); err != nil {
		return fmt.Errorf("action: press %q on %s: %w", key, el.Locator(), err)
	}
	return fallback.Sleep(ctx, e.cfg.SettleDelay)
}

type strategyFn func(ctx context.Context, el engine.Element, strategy schemas.InteractionStrategy) error

func (e *Executor) perform(ctx context.Context, tab engine.Tab, locators []string, do strategyFn) ([]schemas.ActionAttempt, error) {
	var attempts []schemas.ActionAttempt

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		el, ok := e.Resolve(ctx, tab, locators)
		if !ok {
			attempts = append(attempts, schemas.ActionAttempt{
				Outcome: schemas.AttemptNotFound,
				Attempt: attempt,
			})
			e.logger.Debug("No candidate resolved to an interactable element.",
				zap.Int("attempt", attempt), zap.Int("candidates", len(locators)))
			if err := e.backoff(ctx, attempt); err != nil {
				return attempts, err
			}
			continue
		}

		// Scroll failures are non-fatal; the click strategies may still land.
		if err := el.ScrollIntoView(ctx); err != nil {
			e.logger.Debug("Scroll into view failed.", zap.String("locator", el.Locator()), zap.Error(err))
		}

		// Let scrolling and overlay animations settle before interacting.
		if err := fallback.Sleep(ctx, e.cfg.SettleDelay); err != nil {
			return attempts, err
		}

		rejected := false
		for _, strategy := range schemas.DefaultStrategyOrder {
			if err := ctx.Err(); err != nil {
				return attempts, err
			}
			err := do(ctx, el, strategy)
			if err == nil {
				attempts = append(attempts, schemas.ActionAttempt{
					Locator:  el.Locator(),
					Strategy: strategy,
					Outcome:  schemas.AttemptSuccess,
					Attempt:  attempt,
				})
				if strategy != schemas.NormalInvoke {
					e.logger.Debug("Interaction needed escalation.",
						zap.String("locator", el.Locator()),
						zap.String("strategy", string(strategy)))
				}
				return attempts, nil
			}
			rejected = true
			e.logger.Debug("Interaction strategy rejected.",
				zap.String("locator", el.Locator()),
				zap.String("strategy", string(strategy)),
				zap.Error(err))
		}

		if rejected {
			attempts = append(attempts, schemas.ActionAttempt{
				Locator: el.Locator(),
				Outcome: schemas.AttemptRejected,
				Attempt: attempt,
			})
		}
		if err := e.backoff(ctx, attempt); err != nil {
			return attempts, err
		}
	}

	// Classify the failure by what the final attempt saw.
	if len(attempts) > 0 && attempts[len(attempts)-1].Outcome == schemas.AttemptRejected {
		return attempts, ErrAllStrategiesFailed
	}
	return attempts, ErrTargetNotFound
}

// backoff waits between retry cycles; no wait after the final attempt.
func (e *Executor) backoff(ctx context.Context, attempt int) error {
	if attempt >= e.cfg.MaxAttempts {
		return nil
	}
	return fallback.Sleep(ctx, e.cfg.Backoff)
}
