// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
)

const (
	readyStatePollInterval = 100 * time.Millisecond
	networkQuietWindow     = 500 * time.Millisecond
	sessionCloseTimeout    = 10 * time.Second
)

// Session drives a single browser target over the Chrome DevTools
// Protocol. It is safe for sequential use; interleaving operations from
// multiple goroutines on one session is not supported.
type Session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     config.BrowserConfig
	logger  *zap.Logger
	onClose func()
	// typist is non-nil when human typing cadence is enabled.
	typist *typist

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.BrowserSession = (*Session)(nil)

// ID returns the unique identifier assigned at session creation.
func (s *Session) ID() string { return s.id }

// run executes actions against the session target, bounded by timeout and
// the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return &SessionError{Kind: KindProtocol, Op: "run", Err: errSessionClosed}
	}
	s.mu.Unlock()

	opCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(opCtx, actions...)
}

// -- Navigation --

// Navigate loads url and blocks until the page satisfies the wait policy.
func (s *Session) Navigate(ctx context.Context, url string, wait schemas.WaitPolicy) error {
	s.logger.Info("Navigating", zap.String("url", url), zap.String("wait", string(wait)))

	tasks := chromedp.Tasks{
		navigateAction(url),
		waitForReadyState(readyTarget(wait)),
	}
	if wait == schemas.WaitNetworkIdle {
		tasks = append(tasks, waitForNetworkQuiet(networkQuietWindow))
	}
	if err := s.run(ctx, s.cfg.NavigationTimeout, tasks...); err != nil {
		s.logger.Warn("Navigation failed", zap.String("url", url), zap.Error(err))
		return wrapErr("navigate", url, err, KindNavigation)
	}
	s.logger.Debug("Navigation complete", zap.String("url", url))
	return nil
}

// navigateAction issues the raw CDP navigate so the ready wait can be
// chosen per call instead of chromedp's fixed load-event wait.
func navigateAction(url string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("page load error: %s", errText)
		}
		return nil
	}
}

// readyTarget maps a wait policy to the readyState phase that satisfies it.
func readyTarget(wait schemas.WaitPolicy) string {
	if wait == schemas.WaitDOMContentLoaded {
		return "interactive"
	}
	return "complete"
}

// waitForReadyState polls document.readyState until it reaches at least the
// requested phase.
func waitForReadyState(target string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "complete" || state == target {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readyStatePollInterval):
			}
		}
	}
}

// waitForNetworkQuiet approximates a network-idle signal by watching the
// resource timing buffer until no new entries appear for one quiet window.
func waitForNetworkQuiet(quiet time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		const script = `window.performance.getEntriesByType('resource').length`
		var last int
		if err := chromedp.Evaluate(script, &last).Do(ctx); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(quiet):
			}
			var current int
			if err := chromedp.Evaluate(script, &current).Do(ctx); err != nil {
				return err
			}
			if current == last {
				return nil
			}
			last = current
		}
	}
}

// CurrentHTML returns the serialized DOM of the current page, including
// changes applied by scripts after load.
func (s *Session) CurrentHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", wrapErr("current_html", "html", err, KindProtocol)
	}
	return html, nil
}

// -- Element interaction --

// Click clicks the element addressed by selector, or, when selector is
// empty, the first button or link whose visible text contains text
// (case-insensitive).
func (s *Session) Click(ctx context.Context, selector, text string) error {
	switch {
	case selector != "":
		err := s.run(ctx, s.cfg.ActionTimeout,
			chromedp.ScrollIntoView(selector, chromedp.ByQuery),
			chromedp.WaitVisible(selector, chromedp.ByQuery),
			chromedp.Click(selector, chromedp.ByQuery),
		)
		if err != nil {
			return wrapErr("click", selector, err, KindNotFound)
		}
		s.logger.Debug("Clicked element", zap.String("selector", selector))
		return nil
	case text != "":
		xpath := clickableXPath(text)
		err := s.run(ctx, s.cfg.ActionTimeout,
			chromedp.WaitVisible(xpath, chromedp.BySearch),
			chromedp.Click(xpath, chromedp.BySearch),
		)
		if err != nil {
			return wrapErr("click", text, err, KindNotFound)
		}
		s.logger.Debug("Clicked element by text", zap.String("text", text))
		return nil
	default:
		return &SessionError{Kind: KindNotFound, Op: "click", Err: errNoTarget}
	}
}

// Fill replaces the current value of a text-like input and types the new
// value as keystrokes so framework change listeners fire. With human typing
// enabled, keys go out under the typist's cadence and the timeout widens to
// cover the slower input.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	tasks := chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
	}
	timeout := s.cfg.ActionTimeout
	if s.typist != nil {
		tasks = append(tasks, s.typist.Type(value))
		timeout += s.typist.budget(value)
	} else {
		tasks = append(tasks, chromedp.SendKeys(selector, value, chromedp.ByQuery))
	}
	if err := s.run(ctx, timeout, tasks...); err != nil {
		return wrapErr("fill", selector, err, KindNotFound)
	}
	s.logger.Debug("Filled input", zap.String("selector", selector), zap.Int("value_len", len(value)))
	return nil
}

// SetCheckbox drives the checkbox to the requested state. A box already in
// that state is left alone. The toggle happens in-page so checkboxes hidden
// behind styled labels still work.
func (s *Session) SetCheckbox(ctx context.Context, selector string, checked bool) error {
	script := fmt.Sprintf(`(function() {
		const el = document.querySelector(%s);
		if (!el) { return "missing"; }
		const want = %t;
		if (el.checked === want) { return "ok"; }
		el.click();
		if (el.checked !== want) {
			el.checked = want;
			el.dispatchEvent(new Event("change", { bubbles: true }));
		}
		return "ok";
	})()`, jsString(selector), checked)

	var state string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &state)); err != nil {
		return wrapErr("set_checkbox", selector, err, KindProtocol)
	}
	if state == "missing" {
		return &SessionError{Kind: KindNotFound, Op: "set_checkbox", Selector: selector, Err: errElementMissing}
	}
	s.logger.Debug("Set checkbox", zap.String("selector", selector), zap.Bool("checked", checked))
	return nil
}

// SelectOption picks an option from a native select element, matching by
// option value first and trimmed visible label second. Input and change
// events are dispatched so reactive forms observe the selection.
func (s *Session) SelectOption(ctx context.Context, selector, value, label string) error {
	script := fmt.Sprintf(`(function() {
		const el = document.querySelector(%s);
		if (!el) { return "missing"; }
		if (!el.options) { return "not_select"; }
		const value = %s;
		const label = %s;
		for (const opt of Array.from(el.options)) {
			const text = (opt.label || opt.text || "").trim();
			if ((value !== "" && opt.value === value) || (label !== "" && text === label)) {
				el.value = opt.value;
				el.dispatchEvent(new Event("input", { bubbles: true }));
				el.dispatchEvent(new Event("change", { bubbles: true }));
				return "ok";
			}
		}
		return "no_match";
	})()`, jsString(selector), jsString(value), jsString(label))

	var state string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &state)); err != nil {
		return wrapErr("select_option", selector, err, KindProtocol)
	}
	switch state {
	case "missing":
		return &SessionError{Kind: KindNotFound, Op: "select_option", Selector: selector, Err: errElementMissing}
	case "not_select":
		return &SessionError{Kind: KindNotFound, Op: "select_option", Selector: selector, Err: errNotSelect}
	case "no_match":
		return &SessionError{Kind: KindNotFound, Op: "select_option", Selector: selector,
			Err: fmt.Errorf("%w: value=%q label=%q", errOptionMissing, value, label)}
	}
	s.logger.Debug("Selected option", zap.String("selector", selector), zap.String("value", value))
	return nil
}

// comboboxPickScript scans a listbox for an option matching the needle.
// When no listbox selector is known it falls back to the last visible
// [role="listbox"] on the page, which is where overlay libraries append
// their popups.
const comboboxPickScript = `(function() {
	const listboxSel = %s;
	const needle = %s.trim().toLowerCase();
	const mode = %s;
	const visible = function(el) {
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	let box = null;
	if (listboxSel !== "") {
		box = document.querySelector(listboxSel);
	}
	if (!box) {
		const boxes = Array.from(document.querySelectorAll('[role="listbox"]')).filter(visible);
		box = boxes.length ? boxes[boxes.length - 1] : null;
	}
	if (!box) { return "no_listbox"; }
	let options = Array.from(box.querySelectorAll('[role="option"]'));
	if (options.length === 0) {
		options = Array.from(box.querySelectorAll("li"));
	}
	if (options.length === 0) { return "no_options"; }
	for (const opt of options) {
		let name = "";
		if (mode === "name") {
			name = opt.getAttribute("aria-label") || opt.innerText || "";
		} else {
			name = opt.textContent || "";
		}
		if (name.trim().toLowerCase().includes(needle)) {
			opt.scrollIntoView({ block: "nearest" });
			opt.click();
			return "ok";
		}
	}
	return "no_match";
})()`

// SelectCombobox opens a custom dropdown widget and picks the option whose
// accessible name contains optionText. If the first scan misses, the text
// is typed into the control to narrow filtered or virtualized lists, and a
// final scan matches raw text content instead of accessible names.
func (s *Session) SelectCombobox(ctx context.Context, selector, optionText, listboxSelector string) error {
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.ComboboxOpenWait),
	)
	if err != nil {
		return wrapErr("select_combobox", selector, err, KindNotFound)
	}

	status, err := s.pickComboboxOption(ctx, listboxSelector, optionText, "name")
	if err != nil {
		return err
	}
	if status == "ok" {
		s.logger.Debug("Combobox option selected", zap.String("selector", selector), zap.String("option", optionText))
		return nil
	}

	// The list may be filtered or virtualized; type the answer and look again.
	err = s.run(ctx, s.cfg.ActionTimeout,
		chromedp.SendKeys(selector, optionText, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.ComboboxOpenWait),
	)
	if err != nil {
		return wrapErr("select_combobox", selector, err, KindNotFound)
	}
	status, err = s.pickComboboxOption(ctx, listboxSelector, optionText, "name")
	if err != nil {
		return err
	}
	if status == "ok" {
		s.logger.Debug("Combobox option selected after typing", zap.String("selector", selector), zap.String("option", optionText))
		return nil
	}

	status, err = s.pickComboboxOption(ctx, listboxSelector, optionText, "text")
	if err != nil {
		return err
	}
	if status == "ok" {
		s.logger.Debug("Combobox option selected by text", zap.String("selector", selector), zap.String("option", optionText))
		return nil
	}

	return &SessionError{Kind: KindNotFound, Op: "select_combobox", Selector: selector,
		Err: fmt.Errorf("%w: %q (%s)", errOptionMissing, optionText, status)}
}

func (s *Session) pickComboboxOption(ctx context.Context, listboxSelector, optionText, mode string) (string, error) {
	script := fmt.Sprintf(comboboxPickScript, jsString(listboxSelector), jsString(optionText), jsString(mode))
	var status string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &status)); err != nil {
		return "", wrapErr("select_combobox", listboxSelector, err, KindProtocol)
	}
	return status, nil
}

// WaitForSelector blocks until the element is visible or the timeout
// elapses. A non-positive timeout falls back to the action timeout.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}
	if err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return wrapErr("wait_for_selector", selector, err, KindTimeout)
	}
	return nil
}

// UploadFile attaches a local file to a file input. The input only needs
// to exist in the DOM; most upload widgets keep it hidden behind a styled
// button.
func (s *Session) UploadFile(ctx context.Context, selector, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &SessionError{Kind: KindProtocol, Op: "upload_file", Selector: selector, Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		return &SessionError{Kind: KindNotFound, Op: "upload_file", Selector: selector, Err: err}
	}

	err = s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var nodes []*cdp.Node
			if err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(1)).Do(ctx); err != nil {
				return err
			}
			return dom.SetFileInputFiles([]string{abs}).WithNodeID(nodes[0].NodeID).Do(ctx)
		}),
	)
	if err != nil {
		return wrapErr("upload_file", selector, err, KindNotFound)
	}
	s.logger.Info("Uploaded file", zap.String("selector", selector), zap.String("file", filepath.Base(abs)))
	return nil
}

// Close tears the session down gracefully, waiting for the browser target
// to exit. It is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()
	select {
	case err := <-done:
		if err != nil {
			return &SessionError{Kind: KindProtocol, Op: "close", Err: err}
		}
		s.logger.Info("Browser session closed")
		return nil
	case <-time.After(sessionCloseTimeout):
		s.cancel()
		s.logger.Warn("Session close timed out; target killed")
		return &SessionError{Kind: KindTimeout, Op: "close", Err: context.DeadlineExceeded}
	case <-ctx.Done():
		s.cancel()
		return wrapErr("close", "", ctx.Err(), KindProtocol)
	}
}

// -- Selector helpers --

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

// clickableXPath matches buttons, links, and role=button elements whose
// visible text contains the fragment, case-insensitively.
func clickableXPath(text string) string {
	lit := xpathLiteral(strings.ToLower(text))
	return fmt.Sprintf("//*[self::button or self::a or @role='button'][contains(translate(normalize-space(.), '%s', '%s'), %s)]",
		upperAlpha, lowerAlpha, lit)
}

// xpathLiteral quotes s for embedding in an XPath expression, falling back
// to concat() when s contains both quote characters.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, part := range parts {
		parts[i] = "'" + part + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string { return strconv.Quote(s) }
