// api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// -- Browser Session --

// WaitPolicy selects how long Navigate blocks before the page counts as
// loaded. Career sites are frequently slow to reach full load, so discovery
// starts with WaitDOMContentLoaded and relaxes to WaitLoad on retry.
type WaitPolicy string

const (
	WaitDOMContentLoaded WaitPolicy = "domcontentloaded"
	WaitLoad             WaitPolicy = "load"
	WaitNetworkIdle      WaitPolicy = "networkidle"
)

// BrowserSession is the primitive set the engine drives a page through. One
// session owns one page; the engine never interleaves two interactions, since
// DOM state after one action is a precondition for the next.
//
// Implementations must return a distinguishable session error (see
// internal/browser.SessionError) on timeout or DOM-not-found so callers can
// tell "try the next candidate" apart from "field truly missing".
type BrowserSession interface {
	// Navigate loads a URL and blocks until the wait policy is satisfied.
	Navigate(ctx context.Context, url string, wait WaitPolicy) error
	// CurrentHTML serializes the current DOM, including client-rendered state.
	CurrentHTML(ctx context.Context) (string, error)
	// Click activates an element by selector; when selector is empty, by its
	// visible text.
	Click(ctx context.Context, selector, text string) error
	// Fill clears an input and types the value into it.
	Fill(ctx context.Context, selector, value string) error
	// SetCheckbox drives a checkbox to the requested state, idempotently.
	SetCheckbox(ctx context.Context, selector string, checked bool) error
	// SelectOption picks a native select option by value, else by label.
	SelectOption(ctx context.Context, selector, value, label string) error
	// SelectCombobox drives an ARIA combobox: open, match the option by
	// accessible name, typing the text to filter when no option is visible.
	// listboxSelector overrides popup resolution when the caller knows it.
	SelectCombobox(ctx context.Context, selector, optionText, listboxSelector string) error
	// WaitForSelector blocks until the selector is visible or the timeout
	// elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// UploadFile attaches a local file to a file input.
	UploadFile(ctx context.Context, selector, path string) error
	// Close releases the underlying page.
	Close(ctx context.Context) error
}

// -- Answer Store --

// AnswerStore resolves one approved answer per field id. It is read-only from
// the engine's perspective; how answers were produced is not its concern.
type AnswerStore interface {
	// Get returns the answer for a field id and whether one exists.
	Get(fieldID string) (AnswerRecord, bool)
}

// -- Engine Components --

// Navigator discovers the application form behind a job URL: apply
// affordances, the field schema across all steps, and persisted DOM
// snapshots.
type Navigator interface {
	Discover(ctx context.Context, sess BrowserSession, jobURL string) (*NavigatorResult, error)
}

// Submitter replays the apply flow and populates the discovered schema from
// the run context's answers, then attempts the final submit affordance.
type Submitter interface {
	Submit(ctx context.Context, sess BrowserSession, run *RunContext) (*SubmissionResult, error)
}
