// internal/submit/dispatcher.go
package submit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// Dispatcher replays the apply flow and drives every discovered field to its
// answered state, then attempts the final submit affordance. It acts strictly
// sequentially: DOM state after one action is a precondition for the next.
type Dispatcher struct {
	cfg    config.SubmitConfig
	heur   config.HeuristicsConfig
	truthy map[string]struct{}
	falsy  map[string]struct{}
	logger *zap.Logger
}

var _ schemas.Submitter = (*Dispatcher)(nil)

// NewDispatcher builds a Dispatcher with precomputed boolean token sets.
func NewDispatcher(cfg config.SubmitConfig, heur config.HeuristicsConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Dispatcher{
		cfg:    cfg,
		heur:   heur,
		truthy: tokenSet(heur.TruthyTokens),
		falsy:  tokenSet(heur.FalsyTokens),
		logger: logger.With(zap.String("component", "submit")),
	}
}

// Submit reopens the job page, replays the apply affordance, verifies every
// required field has a usable answer, dispatches each field by kind, and
// finally clicks the submit affordance. Field-level browser failures abort
// the run with a FieldError; soft skips are recorded in the step log.
func (d *Dispatcher) Submit(ctx context.Context, sess schemas.BrowserSession, run *schemas.RunContext) (*schemas.SubmissionResult, error) {
	if run == nil || run.Navigator == nil || len(run.Navigator.Fields) == 0 {
		return nil, errNavigatorMissing
	}
	nav := run.Navigator
	log := d.logger.With(zap.String("job_name", run.JobName))

	log.Info("Reopening job URL for submission", zap.String("url", run.JobURL))
	if err := sess.Navigate(ctx, run.JobURL, schemas.WaitLoad); err != nil {
		return nil, fmt.Errorf("reopen job page: %w", err)
	}
	if err := sleepCtx(ctx, d.cfg.ReopenWait); err != nil {
		return nil, err
	}
	d.replayApplyMethod(ctx, sess, nav, log)

	if missing := d.missingRequired(run); len(missing) > 0 {
		return nil, &schemas.PendingUserInputError{FieldIDs: missing}
	}

	steps := make([]string, 0, len(nav.Fields)+1)
	for i := range nav.Fields {
		line, err := d.dispatchField(ctx, sess, run, &nav.Fields[i], log)
		if err != nil {
			return nil, err
		}
		if line != "" {
			steps = append(steps, line)
		}
	}
	steps = d.clickSubmit(ctx, sess, steps, log)

	return &schemas.SubmissionResult{
		Success: true,
		Message: "Application submitted",
		Steps:   steps,
	}, nil
}

// replayApplyMethod restores the form state found during discovery by
// re-activating apply candidates in order. First success wins; failures are
// soft, matching discovery's tolerance.
func (d *Dispatcher) replayApplyMethod(ctx context.Context, sess schemas.BrowserSession, nav *schemas.NavigatorResult, log *zap.Logger) {
	for _, method := range nav.ApplyMethods {
		if method.Selector == "" && method.Label == "" {
			continue
		}
		if err := sess.Click(ctx, method.Selector, method.Label); err != nil {
			log.Debug("Apply method replay failed; trying next",
				zap.String("label", method.Label), zap.Error(err))
			continue
		}
		log.Info("Replayed apply method",
			zap.String("label", method.Label), zap.String("selector", method.Selector))
		_ = sleepCtx(ctx, d.cfg.ReplaySettleWait)
		return
	}
	log.Warn("No apply method could be replayed; assuming the form is already visible")
}

// missingRequired lists required fields with no usable answer. A checkbox is
// always answerable: an absent answer is a legitimate unchecked state.
func (d *Dispatcher) missingRequired(run *schemas.RunContext) []string {
	var missing []string
	for i := range run.Navigator.Fields {
		f := &run.Navigator.Fields[i]
		if !f.Required || f.IsCheckbox() {
			continue
		}
		rec, ok := lookupAnswer(run, f.FieldID)
		if !ok || rec.Answer == "" {
			missing = append(missing, f.FieldID)
		}
	}
	return missing
}

// dispatchField performs one field action and returns its step-log line. The
// cover-letter branch is tested before the CV branch: the CV rule matches any
// file input, so it would otherwise swallow cover-letter uploads.
func (d *Dispatcher) dispatchField(ctx context.Context, sess schemas.BrowserSession, run *schemas.RunContext, f *schemas.FieldDescriptor, log *zap.Logger) (string, error) {
	rec, ok := lookupAnswer(run, f.FieldID)
	if !ok || rec.Answer == "" {
		if f.Required && !f.IsCheckbox() {
			return "", &schemas.PendingUserInputError{FieldIDs: []string{f.FieldID}}
		}
		log.Info("Skipping field with no answer", zap.String("field_id", f.FieldID))
		return "Skipped " + f.Label + ": no answer provided", nil
	}

	switch {
	case d.isCoverLetterUpload(f):
		log.Info("Uploading cover letter", zap.String("field_id", f.FieldID))
		if err := sess.UploadFile(ctx, resolveSelector(f), run.CoverLetterPath); err != nil {
			return "", &FieldError{Field: *f, Err: err}
		}
		return "Uploaded cover letter for " + f.Label, nil
	case d.isCVUpload(f):
		log.Info("Uploading CV", zap.String("field_id", f.FieldID))
		if err := sess.UploadFile(ctx, resolveSelector(f), run.CVPath); err != nil {
			return "", &FieldError{Field: *f, Err: err}
		}
		return "Uploaded CV for " + f.Label, nil
	case f.IsCheckbox():
		return d.dispatchCheckbox(ctx, sess, f, rec.Answer, log)
	case f.IsRadio():
		return d.dispatchRadio(ctx, sess, f, rec.Answer, log)
	case f.IsSelect():
		return d.dispatchSelect(ctx, sess, f, rec.Answer)
	case f.IsCombobox():
		return d.dispatchCombobox(ctx, sess, f, rec.Answer, log)
	default:
		return d.dispatchFill(ctx, sess, f, rec.Answer, log)
	}
}

func (d *Dispatcher) dispatchCheckbox(ctx context.Context, sess schemas.BrowserSession, f *schemas.FieldDescriptor, answer string, log *zap.Logger) (string, error) {
	selector := resolveSelector(f)
	if selector == "" {
		return "Skipped " + f.Label + ": missing selector for checkbox", nil
	}
	checked := d.isTruthy(answer)
	if !checked {
		if _, known := d.falsy[normalizeToken(answer)]; !known {
			log.Warn("Unrecognized boolean answer; leaving checkbox unchecked",
				zap.String("field_id", f.FieldID), zap.String("answer", answer))
		}
	}
	if err := sess.SetCheckbox(ctx, selector, checked); err != nil {
		return "", &FieldError{Field: *f, Err: err}
	}
	state := "OFF"
	if checked {
		state = "ON"
	}
	return "Set checkbox " + f.Label + "=" + state, nil
}

func (d *Dispatcher) dispatchRadio(ctx context.Context, sess schemas.BrowserSession, f *schemas.FieldDescriptor, answer string, log *zap.Logger) (string, error) {
	selector := resolveOptionSelector(f, answer)
	if selector == "" {
		log.Warn("Radio option not found",
			zap.String("field_id", f.FieldID), zap.String("answer", answer))
		return fmt.Sprintf("Skipped %s: option '%s' not found", f.Label, answer), nil
	}
	if err := sess.Click(ctx, selector, ""); err != nil {
		return "", &FieldError{Field: *f, Err: err}
	}
	return fmt.Sprintf("Selected %s: %s", f.Label, answer), nil
}

func (d *Dispatcher) dispatchSelect(ctx context.Context, sess schemas.BrowserSession, f *schemas.FieldDescriptor, answer string) (string, error) {
	selector := resolveSelector(f)
	if selector == "" {
		return "Skipped " + f.Label + ": missing selector for select", nil
	}
	value := resolveOptionValue(f, answer)
	label := ""
	if value == "" {
		label = answer
	}
	if err := sess.SelectOption(ctx, selector, value, label); err != nil {
		return "", &FieldError{Field: *f, Err: err}
	}
	return fmt.Sprintf("Selected option for %s: %s", f.Label, answer), nil
}

func (d *Dispatcher) dispatchCombobox(ctx context.Context, sess schemas.BrowserSession, f *schemas.FieldDescriptor, answer string, log *zap.Logger) (string, error) {
	selector := resolveSelector(f)
	if selector == "" {
		return "Skipped " + f.Label + ": missing selector for combobox", nil
	}
	log.Info("Selecting combobox option",
		zap.String("field_id", f.FieldID), zap.String("answer", answer))
	if err := sess.SelectCombobox(ctx, selector, answer, resolveListboxSelector(f)); err != nil {
		return "", &FieldError{Field: *f, Err: err}
	}
	return fmt.Sprintf("Selected %s: %s", f.Label, answer), nil
}

func (d *Dispatcher) dispatchFill(ctx context.Context, sess schemas.BrowserSession, f *schemas.FieldDescriptor, answer string, log *zap.Logger) (string, error) {
	selector := resolveSelector(f)
	if selector == "" {
		log.Warn("No selector available for field", zap.String("field_id", f.FieldID))
		return "Skipped " + f.Label + ": no selector available", nil
	}
	log.Info("Filling field", zap.String("field_id", f.FieldID))
	if err := sess.Fill(ctx, selector, answer); err != nil {
		return "", &FieldError{Field: *f, Err: err}
	}
	return "Filled " + f.Label, nil
}

// clickSubmit scans the live DOM for a submit affordance and clicks the first
// match. Absence is a flagged risk, not a failure.
func (d *Dispatcher) clickSubmit(ctx context.Context, sess schemas.BrowserSession, steps []string, log *zap.Logger) []string {
	html, err := sess.CurrentHTML(ctx)
	if err != nil {
		log.Warn("Unable to read DOM prior to submit click", zap.Error(err))
		return append(steps, "Could not retrieve DOM before submit")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Warn("Unable to parse DOM prior to submit click", zap.Error(err))
		return append(steps, "Could not retrieve DOM before submit")
	}

	clicked := false
	doc.Find("button, a").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.Join(strings.Fields(el.Text()), " ")
		if !containsAny(strings.ToLower(text), d.heur.SubmitKeywords) {
			return true
		}
		if err := sess.Click(ctx, submitSelector(el), text); err != nil {
			log.Debug("Submit candidate click failed; trying next",
				zap.String("text", text), zap.Error(err))
			return true
		}
		log.Info("Clicked submit button", zap.String("text", text))
		steps = append(steps, "Clicked submit button: "+text)
		clicked = true
		return false
	})
	if !clicked {
		log.Warn("No submit button detected in DOM")
		steps = append(steps, "No submit button detected; manual review may be required")
	}
	return steps
}

// -- Classifiers --

// isCVUpload matches any file input plus fields whose label suggests a CV or
// a generic upload.
func (d *Dispatcher) isCVUpload(f *schemas.FieldDescriptor) bool {
	if f.IsFileUpload() {
		return true
	}
	return containsAny(strings.ToLower(f.Label), d.heur.ResumeKeywords)
}

func (d *Dispatcher) isCoverLetterUpload(f *schemas.FieldDescriptor) bool {
	return f.IsFileUpload() && containsAny(strings.ToLower(f.Label), d.heur.CoverLetterKeywords)
}

func (d *Dispatcher) isTruthy(answer string) bool {
	_, ok := d.truthy[normalizeToken(answer)]
	return ok
}

// -- Resolvers --

func lookupAnswer(run *schemas.RunContext, fieldID string) (schemas.AnswerRecord, bool) {
	if run.Answers == nil {
		return schemas.AnswerRecord{}, false
	}
	return run.Answers.Get(fieldID)
}

// resolveSelector falls back to a name-attribute selector when extraction
// captured none.
func resolveSelector(f *schemas.FieldDescriptor) string {
	if f.Selector != "" {
		return f.Selector
	}
	if f.NameAttr != "" {
		return "[name='" + f.NameAttr + "']"
	}
	return ""
}

// resolveOptionSelector matches the answer against a radio group's option
// labels in document order, case-insensitively first, then as an exact key.
func resolveOptionSelector(f *schemas.FieldDescriptor, answer string) string {
	if len(f.OptionSelectors) == 0 {
		return ""
	}
	normalized := normalizeToken(answer)
	for _, label := range f.Options {
		if normalizeToken(label) != normalized {
			continue
		}
		if selector, ok := f.OptionSelectors[label]; ok {
			return selector
		}
	}
	return f.OptionSelectors[answer]
}

// resolveOptionValue maps an answer to a select option's underlying value,
// matching labels the same way resolveOptionSelector does.
func resolveOptionValue(f *schemas.FieldDescriptor, answer string) string {
	if len(f.OptionValues) == 0 {
		return ""
	}
	normalized := normalizeToken(answer)
	for _, label := range f.Options {
		if normalizeToken(label) != normalized {
			continue
		}
		if value, ok := f.OptionValues[label]; ok {
			return value
		}
	}
	return f.OptionValues[answer]
}

// resolveListboxSelector pulls an explicit listbox target from the combobox's
// ARIA relationship attributes, normalized to an id selector.
func resolveListboxSelector(f *schemas.FieldDescriptor) string {
	for _, key := range []string{schemas.MetaAriaControls, schemas.MetaAriaOwns} {
		candidate := strings.TrimSpace(f.Metadata[key])
		if candidate == "" {
			continue
		}
		if strings.HasPrefix(candidate, "#") {
			return candidate
		}
		return "#" + candidate
	}
	return ""
}

// submitSelector addresses a submit candidate by id, else by its first three
// classes. Empty means click by text only.
func submitSelector(el *goquery.Selection) string {
	if id, ok := el.Attr("id"); ok && id != "" {
		return "#" + id
	}
	classes := strings.Fields(el.AttrOr("class", ""))
	if len(classes) == 0 {
		return ""
	}
	if len(classes) > 3 {
		classes = classes[:3]
	}
	return "." + strings.Join(classes, ".")
}

// -- Small helpers --

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[normalizeToken(token)] = struct{}{}
	}
	return set
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
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
