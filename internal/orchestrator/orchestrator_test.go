// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/browser"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/submit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fakes --

// stubSession satisfies BrowserSession with no-ops; the fakes below never
// touch a real page, they only need something closable to hand around.
type stubSession struct {
	mu     sync.Mutex
	closed bool
}

var _ schemas.BrowserSession = (*stubSession)(nil)

func (s *stubSession) Navigate(context.Context, string, schemas.WaitPolicy) error { return nil }
func (s *stubSession) CurrentHTML(context.Context) (string, error)                { return "<html></html>", nil }
func (s *stubSession) Click(context.Context, string, string) error                { return nil }
func (s *stubSession) Fill(context.Context, string, string) error                 { return nil }
func (s *stubSession) SetCheckbox(context.Context, string, bool) error            { return nil }
func (s *stubSession) SelectOption(context.Context, string, string, string) error {
	return nil
}
func (s *stubSession) SelectCombobox(context.Context, string, string, string) error {
	return nil
}
func (s *stubSession) WaitForSelector(context.Context, string, time.Duration) error { return nil }
func (s *stubSession) UploadFile(context.Context, string, string) error             { return nil }

func (s *stubSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFactory struct {
	mu     sync.Mutex
	sess   *stubSession
	err    error
	opened int
}

var _ SessionFactory = (*fakeFactory)(nil)

func (f *fakeFactory) NewSession(context.Context) (schemas.BrowserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	if f.err != nil {
		return nil, f.err
	}
	if f.sess == nil {
		f.sess = &stubSession{}
	}
	return f.sess, nil
}

type fakeNavigator struct {
	mu     sync.Mutex
	result *schemas.NavigatorResult
	err    error
	calls  int
}

var _ schemas.Navigator = (*fakeNavigator)(nil)

func (f *fakeNavigator) Discover(context.Context, schemas.BrowserSession, string) (*schemas.NavigatorResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type submitReply struct {
	result *schemas.SubmissionResult
	err    error
}

// fakeSubmitter replays scripted replies per attempt; the last reply repeats
// when the retry loop outruns the script. onCall runs after each attempt is
// recorded so tests can edit the answers file between attempts.
type fakeSubmitter struct {
	mu      sync.Mutex
	replies []submitReply
	calls   int
	onCall  func(call int)
}

var _ schemas.Submitter = (*fakeSubmitter)(nil)

func (f *fakeSubmitter) Submit(_ context.Context, _ schemas.BrowserSession, _ *schemas.RunContext) (*schemas.SubmissionResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	var reply submitReply
	if len(f.replies) > 0 {
		idx := call - 1
		if idx >= len(f.replies) {
			idx = len(f.replies) - 1
		}
		reply = f.replies[idx]
	}
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return reply.result, reply.err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// -- Fixtures --

const testJobURL = "https://jobs.example.com/p/backend-engineer"

func testNavResult() *schemas.NavigatorResult {
	return &schemas.NavigatorResult{
		JobURL:  testJobURL,
		JobName: "backend-engineer",
		ApplyMethods: []*schemas.ApplyMethod{{
			Label:       "Apply now",
			Selector:    "[data-ui='apply-button']",
			ElementKind: "a",
			Confidence:  0.9,
		}},
		Fields: []schemas.FieldDescriptor{
			{FieldID: "email_1", Label: "Email", Kind: schemas.KindEmail, Required: true, Selector: "#email_1", NameAttr: "email"},
			{FieldID: "visa_1", Label: "Do you need visa sponsorship?", Kind: schemas.KindSelect, Required: true, Selector: "#visa_1", Options: []string{"Yes", "No"}},
			{FieldID: "newsletter_1", Label: "Newsletter", Kind: schemas.KindCheckbox, Selector: "#newsletter_1"},
		},
		StepCount: 1,
	}
}

func newTestRunner(t *testing.T, nav *fakeNavigator, sub *fakeSubmitter, mutate func(*config.Config), opts ...Option) (*Runner, *config.Config, *fakeFactory) {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Navigator.SnapshotDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	factory := &fakeFactory{}
	r, err := New(cfg, factory, nav, sub, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return r, cfg, factory
}

func writeAnswersJSON(t *testing.T, path, payload string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
}

func readPendingQuestions(t *testing.T, cfg *config.Config) []schemas.PendingQuestion {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, cfg.Output.PendingFilename))
	require.NoError(t, err)
	var payload struct {
		Status    string                    `json:"status"`
		Questions []schemas.PendingQuestion `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "awaiting_user", payload.Status)
	return payload.Questions
}

// -- Constructor --

func TestNewRejectsNilDependencies(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	factory := &fakeFactory{}
	nav := &fakeNavigator{}
	sub := &fakeSubmitter{}

	cases := []struct {
		name    string
		cfg     *config.Config
		factory SessionFactory
		nav     schemas.Navigator
		sub     schemas.Submitter
	}{
		{name: "nil config", factory: factory, nav: nav, sub: sub},
		{name: "nil session factory", cfg: cfg, nav: nav, sub: sub},
		{name: "nil navigator", cfg: cfg, factory: factory, sub: sub},
		{name: "nil submitter", cfg: cfg, factory: factory, nav: nav},
	}
	for _, tc := range cases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg, tt.factory, tt.nav, tt.sub, zaptest.NewLogger(t))
			require.ErrorContains(t, err, "nil dependencies")
		})
	}
}

func TestNewRejectsUnreadableProfile(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Answers.Profile = filepath.Join(t.TempDir(), "missing-profile.json")
	_, err := New(cfg, &fakeFactory{}, &fakeNavigator{}, &fakeSubmitter{}, zaptest.NewLogger(t))
	require.ErrorContains(t, err, "profile file")
}

// -- Run outcomes --

func TestRunAppliesAndWritesArtifact(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{result: testNavResult()}
	sub := &fakeSubmitter{replies: []submitReply{{result: &schemas.SubmissionResult{
		Success: true,
		Message: "Application submitted.",
		Steps:   []string{"Filled Email with dev@example.com", "Clicked submit affordance: Submit application"},
	}}}}

	answersPath := filepath.Join(t.TempDir(), "answers.json")
	writeAnswersJSON(t, answersPath, `{"email_1": "dev@example.com", "visa_1": "No"}`)

	r, cfg, factory := newTestRunner(t, nav, sub, func(cfg *config.Config) {
		cfg.Answers.File = answersPath
	})

	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.True(t, outcome.Applied)
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, "backend-engineer", outcome.JobName)
	assert.Equal(t, testJobURL, outcome.JobURL)
	assert.Equal(t, 1, sub.callCount())
	assert.True(t, factory.sess.isClosed())

	require.Equal(t, filepath.Join(cfg.Output.Dir, "applied", "a_backend-engineer.json"), outcome.Artifact)
	data, err := os.ReadFile(outcome.Artifact)
	require.NoError(t, err)

	var artifact appliedArtifact
	require.NoError(t, json.Unmarshal(data, &artifact))
	assert.True(t, artifact.Applied)
	assert.Equal(t, "successful_application", artifact.Status)
	assert.Equal(t, testJobURL, artifact.JobURL)
	assert.Equal(t, outcome.Steps, artifact.SubmissionSteps)
	require.Contains(t, artifact.AnswersUsed, "Email")
	assert.Equal(t, "dev@example.com", artifact.AnswersUsed["Email"].Answer)
	assert.Equal(t, "answers_file", artifact.AnswersUsed["Email"].Source)
	require.Contains(t, artifact.AnswersUsed, "Do you need visa sponsorship?")
	assert.Equal(t, "No", artifact.AnswersUsed["Do you need visa sponsorship?"].Answer)
}

func TestRunReportsBrowserErrorWhenSessionCannotOpen(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{result: testNavResult()}
	r, cfg, factory := newTestRunner(t, nav, &fakeSubmitter{}, nil)
	factory.err = errors.New("chrome did not start")

	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.False(t, outcome.Applied)
	assert.Equal(t, ReasonBrowserError, outcome.Reason)
	assert.Equal(t, "Browser session failure: chrome did not start", outcome.Detail)
	assert.Zero(t, nav.calls)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "not_applied", "a_backend-engineer.json"), outcome.Artifact)
	assert.FileExists(t, outcome.Artifact)
}

func TestRunReportsMissingApplyFlow(t *testing.T) {
	t.Parallel()

	res := testNavResult()
	res.ApplyMethods = nil
	nav := &fakeNavigator{result: res}
	sub := &fakeSubmitter{}

	r, _, factory := newTestRunner(t, nav, sub, nil)
	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.False(t, outcome.Applied)
	assert.Equal(t, ReasonApplyFlowMissing, outcome.Reason)
	assert.Equal(t, "No apply button or form detected on the target page.", outcome.Detail)
	assert.Zero(t, sub.callCount())
	assert.True(t, factory.sess.isClosed())
	require.FileExists(t, outcome.Artifact)

	data, err := os.ReadFile(outcome.Artifact)
	require.NoError(t, err)
	var artifact failureArtifact
	require.NoError(t, json.Unmarshal(data, &artifact))
	assert.False(t, artifact.Applied)
	assert.Equal(t, ReasonApplyFlowMissing, artifact.Reason)
	assert.Empty(t, artifact.RecommendedAnswers)
}

func TestRunClassifiesDiscoveryErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		reason string
		detail string
	}{
		{
			name:   "session error maps to browser failure",
			err:    &browser.SessionError{Kind: browser.KindNavigation, Op: "navigate", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")},
			reason: ReasonBrowserError,
			detail: "Browser session failure: browser navigate: navigation: net::ERR_NAME_NOT_RESOLVED",
		},
		{
			name:   "plain error is unexpected",
			err:    errors.New("boom"),
			reason: ReasonUnexpectedError,
			detail: "Unexpected error: boom",
		},
	}
	for _, tc := range cases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			nav := &fakeNavigator{err: tt.err}
			r, _, _ := newTestRunner(t, nav, &fakeSubmitter{}, nil)

			outcome, err := r.Run(context.Background(), testJobURL)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, outcome.Reason)
			assert.Equal(t, tt.detail, outcome.Detail)
			assert.FileExists(t, outcome.Artifact)
		})
	}
}

func TestRunUnreadableAnswersFileAsksForInput(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{result: testNavResult()}
	sub := &fakeSubmitter{}
	r, cfg, _ := newTestRunner(t, nav, sub, func(cfg *config.Config) {
		cfg.Answers.File = filepath.Join(t.TempDir(), "does-not-exist.json")
	})

	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.Equal(t, ReasonUserInputMissing, outcome.Reason)
	assert.Contains(t, outcome.Detail, "answers file")
	assert.Zero(t, sub.callCount())

	questions := readPendingQuestions(t, cfg)
	require.Len(t, questions, 2)
	ids := []string{questions[0].FieldID, questions[1].FieldID}
	assert.ElementsMatch(t, []string{"email_1", "visa_1"}, ids)
	for _, q := range questions {
		assert.Equal(t, "The answers file could not be used.", q.Reason)
	}
}

func TestRunSubmitterPendingWritesQuestions(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{result: testNavResult()}
	sub := &fakeSubmitter{replies: []submitReply{{
		err: &schemas.PendingUserInputError{FieldIDs: []string{"visa_1"}},
	}}}

	r, cfg, _ := newTestRunner(t, nav, sub, nil)
	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.Equal(t, ReasonUserInputMissing, outcome.Reason)
	assert.Equal(t, "missing validated answers for: visa_1", outcome.Detail)
	assert.Equal(t, 1, sub.callCount())

	questions := readPendingQuestions(t, cfg)
	require.Len(t, questions, 1)
	assert.Equal(t, "visa_1", questions[0].FieldID)
	assert.Equal(t, "Do you need visa sponsorship?", questions[0].Question)
	assert.Equal(t, "No answer provided in the answers material.", questions[0].Reason)
}

// -- Retry loop --

func TestRunRetriesWithRefreshedAnswer(t *testing.T) {
	t.Parallel()

	res := testNavResult()
	visa := res.Fields[1]

	answersPath := filepath.Join(t.TempDir(), "answers.json")
	writeAnswersJSON(t, answersPath, `{"email_1": "dev@example.com", "visa_1": "Maybe"}`)

	sub := &fakeSubmitter{replies: []submitReply{
		{err: &submit.FieldError{Field: visa, Err: errors.New("no option matched Maybe")}},
		{result: &schemas.SubmissionResult{Success: true, Steps: []string{"Selected No for Do you need visa sponsorship?"}}},
	}}
	sub.onCall = func(call int) {
		if call == 1 {
			writeAnswersJSON(t, answersPath, `{"email_1": "dev@example.com", "visa_1": "No"}`)
		}
	}

	nav := &fakeNavigator{result: res}
	r, _, _ := newTestRunner(t, nav, sub, func(cfg *config.Config) {
		cfg.Answers.File = answersPath
	})

	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.True(t, outcome.Applied)
	assert.Equal(t, 2, sub.callCount())

	data, err := os.ReadFile(outcome.Artifact)
	require.NoError(t, err)
	var artifact appliedArtifact
	require.NoError(t, json.Unmarshal(data, &artifact))
	require.Contains(t, artifact.AnswersUsed, "Do you need visa sponsorship?")
	assert.Equal(t, "No", artifact.AnswersUsed["Do you need visa sponsorship?"].Answer)
}

func TestRunGivesUpWhenAnswerUnchanged(t *testing.T) {
	t.Parallel()

	res := testNavResult()
	visa := res.Fields[1]

	answersPath := filepath.Join(t.TempDir(), "answers.json")
	writeAnswersJSON(t, answersPath, `{"email_1": "dev@example.com", "visa_1": "Maybe"}`)

	sub := &fakeSubmitter{replies: []submitReply{
		{err: &submit.FieldError{Field: visa, Err: errors.New("no option matched Maybe")}},
	}}
	nav := &fakeNavigator{result: res}
	r, cfg, _ := newTestRunner(t, nav, sub, func(cfg *config.Config) {
		cfg.Answers.File = answersPath
	})

	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.Equal(t, ReasonUserInputMissing, outcome.Reason)
	assert.Equal(t, "Repeated submission failures for visa_1; please review manually.", outcome.Detail)
	assert.Equal(t, 1, sub.callCount())

	questions := readPendingQuestions(t, cfg)
	require.Len(t, questions, 1)
	assert.Equal(t, "visa_1", questions[0].FieldID)
	assert.Equal(t, outcome.Detail, questions[0].Reason)

	data, err := os.ReadFile(outcome.Artifact)
	require.NoError(t, err)
	var artifact failureArtifact
	require.NoError(t, json.Unmarshal(data, &artifact))
	assert.Contains(t, artifact.RecommendedAnswers, "Email")
}

func TestRunStopsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	res := testNavResult()
	visa := res.Fields[1]

	answersPath := filepath.Join(t.TempDir(), "answers.json")
	writeAnswersJSON(t, answersPath, `{"email_1": "dev@example.com", "visa_1": "attempt-0"}`)

	sub := &fakeSubmitter{replies: []submitReply{
		{err: &submit.FieldError{Field: visa, Err: errors.New("still rejected")}},
	}}
	sub.onCall = func(call int) {
		payload := fmt.Sprintf(`{"email_1": "dev@example.com", "visa_1": "attempt-%d"}`, call)
		writeAnswersJSON(t, answersPath, payload)
	}

	nav := &fakeNavigator{result: res}
	r, _, _ := newTestRunner(t, nav, sub, func(cfg *config.Config) {
		cfg.Answers.File = answersPath
		cfg.Submit.MaxAttempts = 3
	})

	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.Equal(t, ReasonUserInputMissing, outcome.Reason)
	assert.Equal(t, "Repeated submission failures for visa_1; please review manually.", outcome.Detail)
	assert.Equal(t, 3, sub.callCount())
}

// -- Dry run --

func TestRunDryRunPlansWithoutDispatch(t *testing.T) {
	t.Parallel()

	nav := &fakeNavigator{result: testNavResult()}
	sub := &fakeSubmitter{}

	answersPath := filepath.Join(t.TempDir(), "answers.json")
	writeAnswersJSON(t, answersPath, `{"email_1": "dev@example.com"}`)

	r, cfg, _ := newTestRunner(t, nav, sub, func(cfg *config.Config) {
		cfg.Answers.File = answersPath
	}, WithDryRun(true))

	outcome, err := r.Run(context.Background(), testJobURL)
	require.NoError(t, err)

	assert.False(t, outcome.Applied)
	assert.Equal(t, ReasonDryRun, outcome.Reason)
	assert.Empty(t, outcome.Artifact)
	assert.Zero(t, sub.callCount())
	assert.Equal(t, []string{
		`Would answer Email with "dev@example.com" (answers_file)`,
		"Missing required answer for Do you need visa sponsorship?",
		"Would skip Newsletter: no answer",
	}, outcome.Steps)

	_, serr := os.Stat(filepath.Join(cfg.Output.Dir, "applied"))
	assert.True(t, os.IsNotExist(serr))
}

// -- Discover --

func TestDiscoverReturnsSchemaAndClosesSession(t *testing.T) {
	t.Parallel()

	res := testNavResult()
	nav := &fakeNavigator{result: res}
	r, _, factory := newTestRunner(t, nav, &fakeSubmitter{}, nil)

	got, err := r.Discover(context.Background(), testJobURL)
	require.NoError(t, err)
	assert.Equal(t, res, got)
	assert.True(t, factory.sess.isClosed())
}

func TestDiscoverPropagatesSessionFailure(t *testing.T) {
	t.Parallel()

	r, _, factory := newTestRunner(t, &fakeNavigator{result: testNavResult()}, &fakeSubmitter{}, nil)
	factory.err = errors.New("chrome did not start")

	_, err := r.Discover(context.Background(), testJobURL)
	require.ErrorContains(t, err, "chrome did not start")
}
