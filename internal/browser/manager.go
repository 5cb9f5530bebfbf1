// internal/browser/manager.go
package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/internal/config"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// Manager owns the Chrome exec allocator and hands out isolated sessions.
// Each session runs in its own browser process so a crashed application
// flow cannot poison the next one.
type Manager struct {
	cfg         config.BrowserConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
}

// NewManager prepares an exec allocator from cfg. No browser process is
// started until the first session is requested.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = observability.GetLogger()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	return &Manager{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "browser_manager")),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}
}

// NewSession launches a browser target and returns a live session. The
// launch is bounded by ctx and the configured navigation timeout.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &SessionError{Kind: KindProtocol, Op: "new_session", Err: errManagerClosed}
	}
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Materialize the target now so a missing Chrome binary fails here,
	// not on the first Navigate.
	startCtx, cancelCombine := combineContext(tabCtx, ctx)
	defer cancelCombine()
	startCtx, cancelTimeout := context.WithTimeout(startCtx, m.cfg.NavigationTimeout)
	defer cancelTimeout()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		return nil, wrapErr("new_session", "", err, KindProtocol)
	}

	id := uuid.NewString()
	sess := &Session{
		id:     id,
		ctx:    tabCtx,
		cancel: tabCancel,
		cfg:    m.cfg,
		logger: m.logger.With(zap.String("session_id", id)),
	}
	if m.cfg.HumanTyping {
		sess.typist = newTypist(m.cfg.TypoRate)
	}
	sess.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.logger.Info("Browser session created", zap.String("session_id", id))
	return sess, nil
}

// Shutdown closes every open session and releases the allocator. It is
// safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	var firstErr error
	for _, sess := range sessions {
		if err := sess.Close(ctx); err != nil {
			m.logger.Warn("Session close failed during shutdown",
				zap.String("session_id", sess.id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.allocCancel()
	m.logger.Info("Browser manager shut down", zap.Int("sessions_closed", len(sessions)))
	return firstErr
}

// allocatorOptions translates BrowserConfig into chromedp exec options,
// starting from chromedp's defaults. Extra args accept both "--flag" and
// "--flag=value" forms.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}
