// internal/orchestrator/batch.go
package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/jobs"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// JobRunner runs a single application; satisfied by *Runner.
type JobRunner interface {
	Run(ctx context.Context, jobURL string) (*Outcome, error)
}

// BatchRunner applies to a list of scraped jobs with bounded parallelism and
// a politeness delay between session starts. One job's failure never stops
// the others.
type BatchRunner struct {
	runner JobRunner
	cfg    config.BatchConfig
	logger *zap.Logger
}

// NewBatchRunner builds a BatchRunner around a job runner.
func NewBatchRunner(runner JobRunner, cfg config.BatchConfig, logger *zap.Logger) (*BatchRunner, error) {
	if runner == nil {
		return nil, errors.New("cannot initialize batch runner with nil job runner")
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &BatchRunner{
		runner: runner,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "batch")),
	}, nil
}

// JobResult is one job's terminal record inside a batch report.
type JobResult struct {
	Company   string `json:"company"`
	Title     string `json:"title"`
	JobURL    string `json:"job_url"`
	Applied   bool   `json:"applied"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	Artifact  string `json:"artifact,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Summary counts the terminal states of a batch.
type Summary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchReport aggregates every job outcome of one batch run.
type BatchReport struct {
	Timestamp  string      `json:"timestamp"`
	TotalJobs  int         `json:"total_jobs"`
	Successful []JobResult `json:"successful"`
	Failed     []JobResult `json:"failed"`
	Summary    Summary     `json:"summary"`
}

// Run processes the jobs and returns the aggregated report. The error return
// fires only on context cancellation; per-job failures land in the report.
func (b *BatchRunner) Run(ctx context.Context, list []jobs.Job) (*BatchReport, error) {
	parallel := b.cfg.Parallel
	if parallel < 1 {
		parallel = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if b.cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(b.cfg.Delay), 1)
	}

	report := &BatchReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TotalJobs: len(list),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for idx, job := range list {
		idx, job := idx, job
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			b.logger.Info("Applying to job",
				zap.Int("index", idx+1),
				zap.Int("total", len(list)),
				zap.String("company", job.Company),
				zap.String("title", job.Title),
				zap.String("url", job.URL))

			outcome, err := b.runner.Run(gctx, job.URL)

			entry := JobResult{
				Company:   job.Company,
				Title:     job.Title,
				JobURL:    job.URL,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				entry.Error = err.Error()
			case outcome.Applied:
				entry.Applied = true
				entry.Artifact = outcome.Artifact
			default:
				entry.Reason = outcome.Reason
				entry.Artifact = outcome.Artifact
			}

			mu.Lock()
			defer mu.Unlock()
			if entry.Applied {
				report.Successful = append(report.Successful, entry)
			} else {
				report.Failed = append(report.Failed, entry)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Summary = Summary{Successful: len(report.Successful), Failed: len(report.Failed)}
	b.logger.Info("Batch complete",
		zap.Int("successful", report.Summary.Successful),
		zap.Int("failed", report.Summary.Failed))
	return report, nil
}

// WriteReport persists the batch report under dir and returns its path.
func (b *BatchRunner) WriteReport(report *BatchReport, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "batch_apply_results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	b.logger.Info("Wrote batch report", zap.String("path", path))
	return path, nil
}
