// cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/internal/browser"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/navigator"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/orchestrator"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/submit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// appComponents holds the initialized services behind one command run.
type appComponents struct {
	BrowserManager *browser.Manager
	Runner         *orchestrator.Runner
}

// Shutdown gracefully closes all components.
func (c *appComponents) Shutdown(logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.BrowserManager != nil {
		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}
}

// initializeAppComponents handles dependency injection for the apply,
// discover, and batch commands.
func initializeAppComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...orchestrator.Option) (*appComponents, error) {
	components := &appComponents{
		BrowserManager: browser.NewManager(ctx, cfg.Browser, logger),
	}

	nav, err := navigator.New(cfg.Navigator, cfg.Heuristics, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize navigator: %w", err)
	}
	dispatcher := submit.NewDispatcher(cfg.Submit, cfg.Heuristics, logger)

	runner, err := orchestrator.New(cfg, orchestrator.NewManagerFactory(components.BrowserManager), nav, dispatcher, logger, opts...)
	if err != nil {
		return components, fmt.Errorf("failed to initialize runner: %w", err)
	}
	components.Runner = runner
	return components, nil
}

// resolveConfig re-reads the full configuration after command flags were
// bound, so flag overrides land with the right precedence.
func resolveConfig() (*config.Config, error) {
	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config with flag overrides: %w", err)
	}
	return cfg, nil
}
