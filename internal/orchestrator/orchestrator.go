// internal/orchestrator/orchestrator.go
// Drives one job application end to end: session, discovery, answer
// resolution, submission with retries, and artifact writing. Dependencies
// arrive as interfaces so runs are testable without a browser.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/answers"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/browser"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/navigator"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/submit"
)

// Outcome reasons, mirrored into not-applied artifacts.
const (
	ReasonApplyFlowMissing = "apply_flow_missing"
	ReasonUserInputMissing = "user_input_missing"
	ReasonBrowserError     = "browser_error"
	ReasonUnexpectedError  = "unexpected_error"
	ReasonDryRun           = "dry_run"
)

const noApplyFlowDetail = "No apply button or form detected on the target page."

// Outcome is the terminal state of one application run.
type Outcome struct {
	Applied  bool     `json:"applied"`
	Reason   string   `json:"reason,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	JobName  string   `json:"job_name"`
	JobURL   string   `json:"job_url"`
	Artifact string   `json:"artifact,omitempty"`
	Steps    []string `json:"steps,omitempty"`
}

// SessionFactory opens live browser sessions; every run gets its own.
type SessionFactory interface {
	NewSession(ctx context.Context) (schemas.BrowserSession, error)
}

type managerFactory struct {
	m *browser.Manager
}

// NewManagerFactory adapts a browser.Manager to the SessionFactory interface.
func NewManagerFactory(m *browser.Manager) SessionFactory {
	return managerFactory{m: m}
}

func (f managerFactory) NewSession(ctx context.Context) (schemas.BrowserSession, error) {
	sess, err := f.m.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Runner wires discovery, answer resolution, and submission for single jobs.
type Runner struct {
	cfg       *config.Config
	sessions  SessionFactory
	navigator schemas.Navigator
	submitter schemas.Submitter
	profile   *answers.ProfileResolver
	artifacts *ArtifactWriter
	pending   *answers.PendingWriter
	logger    *zap.Logger
	dryRun    bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithDryRun stops a run after answer resolution, reporting the planned
// actions instead of dispatching any field.
func WithDryRun(enabled bool) Option {
	return func(r *Runner) { r.dryRun = enabled }
}

// New builds a Runner with its dependencies provided as interfaces.
func New(
	cfg *config.Config,
	sessions SessionFactory,
	nav schemas.Navigator,
	sub schemas.Submitter,
	logger *zap.Logger,
	opts ...Option,
) (*Runner, error) {
	if cfg == nil || sessions == nil || nav == nil || sub == nil {
		return nil, errors.New("cannot initialize runner with nil dependencies")
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	profile, err := answers.NewProfileResolver(cfg.Answers, cfg.Heuristics, logger)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:       cfg,
		sessions:  sessions,
		navigator: nav,
		submitter: sub,
		profile:   profile,
		artifacts: NewArtifactWriter(cfg.Output, logger),
		pending:   answers.NewPendingWriter(cfg.Output, logger),
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run drives one job application end to end. It always produces an Outcome;
// the error return is reserved for context cancellation so batch callers can
// stop cleanly.
func (r *Runner) Run(ctx context.Context, jobURL string) (*Outcome, error) {
	run := &schemas.RunContext{
		RunID:           uuid.NewString(),
		JobURL:          jobURL,
		JobName:         navigator.JobNameFromURL(jobURL),
		CVPath:          r.cfg.Answers.CVPath,
		CoverLetterPath: r.cfg.Answers.CoverLetterPath,
	}
	log := r.logger.With(zap.String("run_id", run.RunID), zap.String("job_name", run.JobName))
	log.Info("Starting application run", zap.String("url", jobURL))

	sess, err := r.sessions.NewSession(ctx)
	if err != nil {
		return r.failure(run, nil, ReasonBrowserError, "Browser session failure: "+err.Error(), log), ctx.Err()
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			log.Debug("Session close failed", zap.Error(cerr))
		}
	}()

	nav, err := r.navigator.Discover(ctx, sess, jobURL)
	if err != nil {
		return r.failureFromError(run, nil, err, log), ctx.Err()
	}
	run.Navigator = nav
	run.JobName = nav.JobName
	log.Info("Discovery complete",
		zap.Int("fields", len(nav.Fields)),
		zap.Int("apply_methods", len(nav.ApplyMethods)),
		zap.Int("steps", nav.StepCount))

	if !nav.HasApplyFlow() {
		return r.failure(run, nil, ReasonApplyFlowMissing, noApplyFlowDetail, log), nil
	}

	store, loadErr := r.resolveAnswers(nav)
	run.Answers = store
	if loadErr != nil {
		questions := answers.PendingFromFields(nav, r.missingRequired(nav, store), "The answers file could not be used.")
		if _, perr := r.pending.Write(run.JobName, run.JobURL, questions); perr != nil {
			log.Warn("Could not write pending questions", zap.Error(perr))
		}
		return r.failure(run, store, ReasonUserInputMissing, loadErr.Error(), log), nil
	}

	if r.dryRun {
		steps := r.planSteps(nav, store)
		log.Info("Dry run complete; no fields dispatched", zap.Int("planned", len(steps)))
		return &Outcome{
			Reason:  ReasonDryRun,
			JobName: run.JobName,
			JobURL:  run.JobURL,
			Steps:   steps,
		}, nil
	}

	result, err := r.submitWithRetries(ctx, sess, run, store, log)
	if err != nil {
		return r.failureFromError(run, store, err, log), ctx.Err()
	}

	artifact, aerr := r.artifacts.WriteApplied(run.JobName, run.JobURL, store.Payload(), result.Steps)
	if aerr != nil {
		log.Warn("Could not write applied artifact", zap.Error(aerr))
	}
	log.Info("Application submitted", zap.Int("steps", len(result.Steps)))
	return &Outcome{
		Applied:  true,
		JobName:  run.JobName,
		JobURL:   run.JobURL,
		Artifact: artifact,
		Steps:    result.Steps,
	}, nil
}

// Discover opens a session and extracts the application schema without
// resolving or dispatching any answers.
func (r *Runner) Discover(ctx context.Context, jobURL string) (*schemas.NavigatorResult, error) {
	sess, err := r.sessions.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			r.logger.Debug("Session close failed", zap.Error(cerr))
		}
	}()
	return r.navigator.Discover(ctx, sess, jobURL)
}

// resolveAnswers builds the run's answer store: file answers first, then
// profile heuristics for whatever is still open. A non-nil error means the
// configured answers file was unusable; the store still carries whatever the
// heuristics produced.
func (r *Runner) resolveAnswers(nav *schemas.NavigatorResult) (*answers.Store, error) {
	store := answers.NewStore()
	var loadErr error
	if r.cfg.Answers.File != "" {
		fa, err := answers.LoadFile(r.cfg.Answers.File)
		if err != nil {
			loadErr = err
		} else {
			applied := fa.Apply(store, nav.Fields)
			r.logger.Debug("Applied file answers", zap.Int("count", applied))
		}
	}
	r.profile.Apply(store, nav.Fields)
	return store, loadErr
}

// submitWithRetries runs the dispatcher, re-reading the answers file after a
// field failure so an edited answer can win on the next attempt. When the
// answer is unchanged or attempts run out, the field is surfaced as pending
// user input.
func (r *Runner) submitWithRetries(
	ctx context.Context,
	sess schemas.BrowserSession,
	run *schemas.RunContext,
	store *answers.Store,
	log *zap.Logger,
) (*schemas.SubmissionResult, error) {
	maxAttempts := r.cfg.Submit.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var failing schemas.FieldDescriptor
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := r.submitter.Submit(ctx, sess, run)
		if err == nil {
			return result, nil
		}
		fieldErr, ok := submit.AsFieldError(err)
		if !ok {
			return nil, err
		}
		failing = fieldErr.Field
		log.Warn("Submission attempt failed on field",
			zap.Int("attempt", attempt),
			zap.String("field_id", failing.FieldID),
			zap.Error(fieldErr.Err))
		if attempt == maxAttempts {
			break
		}
		refreshed, rerr := r.refreshAnswer(&failing, store)
		if rerr != nil {
			log.Warn("Could not re-read answers file", zap.Error(rerr))
		}
		if !refreshed {
			break
		}
		log.Info("Retrying submission with refreshed answer", zap.String("field_id", failing.FieldID))
	}
	return nil, &schemas.PendingUserInputError{
		FieldIDs: []string{failing.FieldID},
		Reason:   fmt.Sprintf("Repeated submission failures for %s; please review manually.", failing.FieldID),
	}
}

// refreshAnswer re-reads the answers file looking for a changed answer for
// the failing field. It reports whether a different, non-empty answer is now
// in the store.
func (r *Runner) refreshAnswer(f *schemas.FieldDescriptor, store *answers.Store) (bool, error) {
	if r.cfg.Answers.File == "" {
		return false, nil
	}
	fa, err := answers.LoadFile(r.cfg.Answers.File)
	if err != nil {
		return false, err
	}
	rec, ok := fa.Resolve(f)
	if !ok || rec.Answer == "" {
		return false, nil
	}
	if previous, had := store.Get(f.FieldID); had && previous.Answer == rec.Answer {
		return false, nil
	}
	store.Put(rec)
	return true, nil
}

// missingRequired lists required fields that still have no usable answer.
// Checkboxes are excluded: unanswered means unchecked.
func (r *Runner) missingRequired(nav *schemas.NavigatorResult, store *answers.Store) []string {
	var missing []string
	for i := range nav.Fields {
		f := &nav.Fields[i]
		if !f.Required || f.IsCheckbox() {
			continue
		}
		if rec, ok := store.Get(f.FieldID); !ok || rec.Answer == "" {
			missing = append(missing, f.FieldID)
		}
	}
	return missing
}

// planSteps describes what a live run would do, field by field.
func (r *Runner) planSteps(nav *schemas.NavigatorResult, store *answers.Store) []string {
	steps := make([]string, 0, len(nav.Fields))
	for i := range nav.Fields {
		f := &nav.Fields[i]
		label := f.DisplayLabel()
		rec, ok := store.Get(f.FieldID)
		switch {
		case ok && rec.Answer != "":
			steps = append(steps, fmt.Sprintf("Would answer %s with %q (%s)", label, rec.Answer, rec.Source))
		case f.Required && !f.IsCheckbox():
			steps = append(steps, fmt.Sprintf("Missing required answer for %s", label))
		default:
			steps = append(steps, fmt.Sprintf("Would skip %s: no answer", label))
		}
	}
	return steps
}

// failureFromError classifies a run error into an outcome, persisting pending
// questions when the cause is missing user input.
func (r *Runner) failureFromError(run *schemas.RunContext, store *answers.Store, err error, log *zap.Logger) *Outcome {
	var pending *schemas.PendingUserInputError
	if errors.As(err, &pending) {
		if run.Navigator != nil {
			reason := pending.Reason
			if reason == "" {
				reason = "No answer provided in the answers material."
			}
			questions := answers.PendingFromFields(run.Navigator, pending.FieldIDs, reason)
			if _, perr := r.pending.Write(run.JobName, run.JobURL, questions); perr != nil {
				log.Warn("Could not write pending questions", zap.Error(perr))
			}
		}
		return r.failure(run, store, ReasonUserInputMissing, err.Error(), log)
	}
	var sessErr *browser.SessionError
	if errors.As(err, &sessErr) {
		return r.failure(run, store, ReasonBrowserError, "Browser session failure: "+err.Error(), log)
	}
	return r.failure(run, store, ReasonUnexpectedError, "Unexpected error: "+err.Error(), log)
}

// failure writes the not-applied artifact and builds the outcome.
func (r *Runner) failure(run *schemas.RunContext, store *answers.Store, reason, detail string, log *zap.Logger) *Outcome {
	payload := map[string]schemas.AnswerRecord{}
	if store != nil {
		payload = store.Payload()
	}
	artifact, err := r.artifacts.WriteFailure(run.JobName, run.JobURL, reason, detail, payload)
	if err != nil {
		log.Warn("Could not write failure artifact", zap.Error(err))
	}
	log.Info("Application not submitted", zap.String("reason", reason), zap.String("detail", detail))
	return &Outcome{
		Applied:  false,
		Reason:   reason,
		Detail:   detail,
		JobName:  run.JobName,
		JobURL:   run.JobURL,
		Artifact: artifact,
	}
}
