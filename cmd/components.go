package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/internal/action"
	"github.com/hliang2/chatspider/internal/auth"
	"github.com/hliang2/chatspider/internal/config"
	"github.com/hliang2/chatspider/internal/engine/cdp"
	"github.com/hliang2/chatspider/internal/entries"
	"github.com/hliang2/chatspider/internal/markup"
	"github.com/hliang2/chatspider/internal/nav"
	"github.com/hliang2/chatspider/internal/orchestrator"
	"github.com/hliang2/chatspider/internal/sessionstore"
)

// buildOrchestrator wires the production component graph.
func buildOrchestrator(cfg *config.Config, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	eng := cdp.New(logger)
	store := sessionstore.New(afero.NewOsFs(), cfg.Session.StateFile, logger)
	verifier := auth.NewVerifier(cfg.Site, logger)
	bridge := auth.NewBridge(verifier, cfg.Site, cfg.Login, logger)
	executor := action.NewExecutor(cfg.Executor, logger)
	detector := nav.NewDetector(cfg.Detector, logger)
	parser := markup.NewParser(cfg.Locators, logger)
	controller := entries.NewController(cfg.Controller, cfg.Locators, executor, detector, parser, logger)

	orch, err := orchestrator.New(cfg, logger, eng, store, verifier, bridge, parser, controller)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble components: %w", err)
	}
	return orch, nil
}
