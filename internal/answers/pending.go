// internal/answers/pending.go
package answers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// PendingWriter persists the questions a run could not answer so a human can
// fill the answers file and re-run the submission.
type PendingWriter struct {
	dir      string
	filename string
	logger   *zap.Logger
}

// NewPendingWriter returns a writer targeting cfg.Dir/cfg.PendingFilename.
func NewPendingWriter(cfg config.OutputConfig, logger *zap.Logger) *PendingWriter {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &PendingWriter{
		dir:      cfg.Dir,
		filename: cfg.PendingFilename,
		logger:   logger.With(zap.String("component", "answers")),
	}
}

type pendingPayload struct {
	Status       string                    `json:"status"`
	JobName      string                    `json:"job_name"`
	JobURL       string                    `json:"job_url"`
	Questions    []schemas.PendingQuestion `json:"questions"`
	Instructions string                    `json:"instructions"`
}

const pendingInstructions = "Fill the answers file with field_id -> answer pairs " +
	"(or {\"answer\": ..., \"display_name\": ...} objects) and re-run the apply command."

// Write persists the pending questions as JSON plus a human-readable
// markdown companion, returning the JSON artifact path.
func (w *PendingWriter) Write(jobName, jobURL string, questions []schemas.PendingQuestion) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", w.dir, err)
	}
	payload := pendingPayload{
		Status:       "awaiting_user",
		JobName:      jobName,
		JobURL:       jobURL,
		Questions:    questions,
		Instructions: pendingInstructions,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode pending questions: %w", err)
	}
	path := filepath.Join(w.dir, w.filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write pending questions: %w", err)
	}
	mdPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".md"
	if err := os.WriteFile(mdPath, []byte(pendingMarkdown(payload)), 0o644); err != nil {
		w.logger.Warn("Could not write markdown companion", zap.Error(err))
	}
	w.logger.Info("Wrote pending questions",
		zap.String("path", path), zap.Int("count", len(questions)))
	return path, nil
}

func pendingMarkdown(payload pendingPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Pending questions for %s\n\n", payload.JobName)
	fmt.Fprintf(&b, "Job URL: %s\n\n", payload.JobURL)
	b.WriteString("Add entries to your answers file like:\n\n```json\n{\n")
	for i, q := range payload.Questions {
		comma := ","
		if i == len(payload.Questions)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "  %q: \"<your answer>\"%s\n", q.FieldID, comma)
	}
	b.WriteString("}\n```\n\n## Questions\n\n")
	for _, q := range payload.Questions {
		fmt.Fprintf(&b, "- **%s**: %s (kind: %s, required: %t)\n", q.FieldID, q.Question, q.Kind, q.Required)
		if len(q.Options) > 0 {
			fmt.Fprintf(&b, "  - options: %s\n", strings.Join(q.Options, " | "))
		}
		if q.Reason != "" {
			fmt.Fprintf(&b, "  - reason: %s\n", q.Reason)
		}
	}
	return b.String()
}

// PendingFromFields builds the pending questions for the named field ids,
// looking descriptors up in the navigator result. Unknown ids still produce
// a question so the user sees every blocker.
func PendingFromFields(nav *schemas.NavigatorResult, fieldIDs []string, reason string) []schemas.PendingQuestion {
	questions := make([]schemas.PendingQuestion, 0, len(fieldIDs))
	for _, id := range fieldIDs {
		f, ok := nav.FieldByID(id)
		if !ok {
			questions = append(questions, schemas.PendingQuestion{FieldID: id, Reason: reason})
			continue
		}
		question := f.Question
		if question == "" {
			question = f.Label
		}
		questions = append(questions, schemas.PendingQuestion{
			FieldID:  id,
			Question: question,
			Kind:     f.Kind,
			Required: f.Required,
			Options:  f.Options,
			Reason:   reason,
		})
	}
	return questions
}
