// internal/orchestrator/artifacts.go
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ArtifactWriter persists per-job run results under the output directory:
// applied/ for submitted applications, not_applied/ for everything else.
type ArtifactWriter struct {
	dir    string
	logger *zap.Logger
}

// NewArtifactWriter returns a writer rooted at cfg.Dir.
func NewArtifactWriter(cfg config.OutputConfig, logger *zap.Logger) *ArtifactWriter {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &ArtifactWriter{
		dir:    cfg.Dir,
		logger: logger.With(zap.String("component", "artifacts")),
	}
}

type appliedArtifact struct {
	JobURL          string                          `json:"job_url"`
	JobName         string                          `json:"job_name"`
	Applied         bool                            `json:"applied"`
	AnswersUsed     map[string]schemas.AnswerRecord `json:"answers_used"`
	Timestamp       string                          `json:"timestamp"`
	Status          string                          `json:"status"`
	SubmissionSteps []string                        `json:"submission_steps"`
}

type failureArtifact struct {
	JobURL             string                          `json:"job_url"`
	JobName            string                          `json:"job_name"`
	Applied            bool                            `json:"applied"`
	RecommendedAnswers map[string]schemas.AnswerRecord `json:"recommended_answers"`
	Reason             string                          `json:"reason"`
	Detail             string                          `json:"detail,omitempty"`
	Timestamp          string                          `json:"timestamp"`
}

// WriteApplied persists a success artifact and returns its path.
func (w *ArtifactWriter) WriteApplied(jobName, jobURL string, answersUsed map[string]schemas.AnswerRecord, steps []string) (string, error) {
	return w.write("applied", jobName, appliedArtifact{
		JobURL:          jobURL,
		JobName:         jobName,
		Applied:         true,
		AnswersUsed:     answersUsed,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Status:          "successful_application",
		SubmissionSteps: steps,
	})
}

// WriteFailure persists a not-applied artifact and returns its path.
func (w *ArtifactWriter) WriteFailure(jobName, jobURL, reason, detail string, recommended map[string]schemas.AnswerRecord) (string, error) {
	return w.write("not_applied", jobName, failureArtifact{
		JobURL:             jobURL,
		JobName:            jobName,
		Applied:            false,
		RecommendedAnswers: recommended,
		Reason:             reason,
		Detail:             detail,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *ArtifactWriter) write(subdir, jobName string, payload any) (string, error) {
	if jobName == "" {
		jobName = "job"
	}
	dir := filepath.Join(w.dir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	path := filepath.Join(dir, "a_"+jobName+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	w.logger.Info("Wrote run artifact", zap.String("path", path))
	return path, nil
}
