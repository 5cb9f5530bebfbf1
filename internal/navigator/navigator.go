// internal/navigator/navigator.go
package navigator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// Navigator loads a job posting, clears blocking overlays, captures DOM
// snapshots, and assembles the extracted application schema across every
// step it can reach.
type Navigator struct {
	cfg    config.NavigatorConfig
	heur   config.HeuristicsConfig
	ext    *Extractor
	logger *zap.Logger
}

var _ schemas.Navigator = (*Navigator)(nil)

// New builds a Navigator and ensures the snapshot directory exists.
func New(cfg config.NavigatorConfig, heur config.HeuristicsConfig, logger *zap.Logger) (*Navigator, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Navigator{
		cfg:    cfg,
		heur:   heur,
		ext:    NewExtractor(heur, logger),
		logger: logger.With(zap.String("component", "navigator")),
	}, nil
}

// Discover maps the application flow of a job posting. The initial page is
// always captured as step 0; clicking apply candidates reveals later steps.
// Apply-method candidates are annotated in place with click outcomes.
func (n *Navigator) Discover(ctx context.Context, sess schemas.BrowserSession, jobURL string) (*schemas.NavigatorResult, error) {
	jobName := JobNameFromURL(jobURL)
	log := n.logger.With(zap.String("job_name", jobName))
	log.Info("Loading job URL", zap.String("url", jobURL))

	if err := sess.Navigate(ctx, jobURL, schemas.WaitDOMContentLoaded); err != nil {
		log.Warn("Initial load failed; retrying with full load wait", zap.Error(err))
		if err := sess.Navigate(ctx, jobURL, schemas.WaitLoad); err != nil {
			return nil, fmt.Errorf("load job page: %w", err)
		}
	}

	n.dismissBlockingUI(ctx, sess, log)
	n.waitForPrimaryContent(ctx, sess, log)
	if err := sleepCtx(ctx, n.cfg.InitialSettleWait); err != nil {
		return nil, err
	}

	html, err := sess.CurrentHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture DOM: %w", err)
	}
	snapshotPath, err := n.writeSnapshot(jobName, 0, html)
	if err != nil {
		return nil, err
	}
	log.Info("Captured initial DOM snapshot", zap.String("path", snapshotPath))

	applyMethods, err := n.ext.DetectApplyMethods(html)
	if err != nil {
		return nil, err
	}
	log.Info("Detected potential apply methods", zap.Int("count", len(applyMethods)))

	fields, err := n.ext.ExtractFields(html, 0)
	if err != nil {
		return nil, err
	}
	log.Info("Extracted fields on initial step", zap.Int("count", len(fields)))

	fields = append(fields, n.captureFollowupSteps(ctx, sess, jobName, applyMethods, log)...)

	return &schemas.NavigatorResult{
		JobURL:       jobURL,
		JobName:      jobName,
		ApplyMethods: applyMethods,
		Fields:       fields,
		SnapshotPath: snapshotPath,
		StepCount:    maxStepIndex(fields) + 1,
	}, nil
}

// captureFollowupSteps clicks apply candidates in detection order until one
// reveals additional form fields. The candidate's 1-based ordinal doubles
// as the step index, so snapshots and descriptors stay aligned even when
// earlier candidates failed.
func (n *Navigator) captureFollowupSteps(ctx context.Context, sess schemas.BrowserSession, jobName string, methods []*schemas.ApplyMethod, log *zap.Logger) []schemas.FieldDescriptor {
	for idx, method := range methods {
		ordinal := idx + 1
		if method.Selector == "" && method.Label == "" {
			continue
		}
		display := method.Label
		if display == "" {
			display = method.Selector
		}
		log.Info("Attempting apply method",
			zap.String("label", display), zap.String("selector", method.Selector))

		newFields, err := n.expandStep(ctx, sess, jobName, method, ordinal)
		if err != nil {
			method.Notes = "click failed: " + err.Error()
			log.Warn("Apply method click failed", zap.String("label", display), zap.Error(err))
			continue
		}
		if len(newFields) > 0 {
			log.Info("Found new fields after clicking apply method",
				zap.Int("count", len(newFields)), zap.String("label", display))
			return newFields
		}
	}
	return nil
}

// expandStep clicks one apply candidate and extracts whatever the page
// shows afterwards. Clicked is set as soon as the click lands; later
// failures still mark the candidate as consumed.
func (n *Navigator) expandStep(ctx context.Context, sess schemas.BrowserSession, jobName string, method *schemas.ApplyMethod, ordinal int) ([]schemas.FieldDescriptor, error) {
	if err := sess.Click(ctx, method.Selector, method.Label); err != nil {
		return nil, err
	}
	method.Clicked = true

	if err := sleepCtx(ctx, n.cfg.StepSettleWait); err != nil {
		return nil, err
	}
	html, err := sess.CurrentHTML(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := n.writeSnapshot(jobName, ordinal, html); err != nil {
		return nil, err
	}
	return n.ext.ExtractFields(html, ordinal)
}

// dismissBlockingUI clears cookie walls and consent overlays before the
// DOM is parsed. Known consent selectors are tried first, then generic
// button texts. Every failure here is soft; the first success stops the
// scan.
func (n *Navigator) dismissBlockingUI(ctx context.Context, sess schemas.BrowserSession, log *zap.Logger) {
	for _, selector := range n.heur.CookieSelectors {
		if err := sess.WaitForSelector(ctx, selector, n.cfg.CookieWaitTimeout); err != nil {
			continue
		}
		if err := sess.Click(ctx, selector, ""); err != nil {
			continue
		}
		log.Info("Dismissed blocking UI via selector", zap.String("selector", selector))
		_ = sleepCtx(ctx, n.cfg.DismissSettleWait)
		return
	}
	for _, text := range n.heur.CookieTexts {
		if err := sess.Click(ctx, "", text); err != nil {
			continue
		}
		log.Info("Dismissed blocking UI via text", zap.String("text", text))
		_ = sleepCtx(ctx, n.cfg.DismissSettleWait)
		return
	}
}

// waitForPrimaryContent waits for apply-flow anchors so snapshots include
// the real form markup instead of a loading shell.
func (n *Navigator) waitForPrimaryContent(ctx context.Context, sess schemas.BrowserSession, log *zap.Logger) {
	for _, selector := range n.heur.ContentReadySelectors {
		if err := sess.WaitForSelector(ctx, selector, n.cfg.ContentReadyTimeout); err != nil {
			continue
		}
		log.Info("Detected primary content", zap.String("selector", selector))
		return
	}
	log.Info("Primary content selectors not found; continuing with raw DOM")
}

func (n *Navigator) writeSnapshot(jobName string, step int, html string) (string, error) {
	path := filepath.Join(n.cfg.SnapshotDir, fmt.Sprintf("%s_step%d.html", jobName, step))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	n.logger.Debug("Wrote DOM snapshot", zap.String("path", path))
	return path, nil
}

func maxStepIndex(fields []schemas.FieldDescriptor) int {
	max := 0
	for _, f := range fields {
		if f.StepIndex > max {
			max = f.StepIndex
		}
	}
	return max
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
