// Package browser wraps the rendering backend behind a session manager
// that survives session invalidation: when the backend reports a dead
// session mid-crawl, the manager recreates it transparently and retries
// the in-flight operation exactly once.
package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/gleaner/models"
)

// WaitSpec is a readiness condition over rendered markup: a selector that
// must be present and, optionally, one that must not be (loading spinners).
type WaitSpec struct {
	Selector string
	Absent   string
	Timeout  time.Duration
}

// Session is one live rendering-backend handle. Implementations are not
// safe for concurrent use; the Manager serializes access.
type Session interface {
	// Render navigates to url and blocks until the readiness condition
	// holds, returning the rendered markup and the final URL.
	Render(ctx context.Context, url string, wait WaitSpec) (markup, finalURL string, err error)

	// EvalBool and EvalString run a script in the current page.
	EvalBool(ctx context.Context, js string) (bool, error)
	EvalString(ctx context.Context, js string) (string, error)

	// HTML snapshots the current page markup without navigating.
	HTML(ctx context.Context) (string, error)

	// CurrentURL reports the page's present location.
	CurrentURL(ctx context.Context) (string, error)

	Close() error
}

// Factory creates a fresh session, typically launching a browser.
type Factory func() (Session, error)

// Manager owns the single live session and the recreate-and-retry policy.
// Only one operation is ever in flight against the session.
type Manager struct {
	mu      sync.Mutex
	factory Factory
	sess    Session
}

// NewManager creates a Manager. No session is launched until first use.
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// Do runs op against the live session, creating one if needed. When op
// fails with a session-invalid signal the session is recreated and op
// retried exactly once; a second consecutive session failure is fatal for
// this operation (and only this operation). Readiness timeouts are never
// treated as session faults.
func (m *Manager) Do(ctx context.Context, op func(Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if m.sess == nil {
			sess, err := m.factory()
			if err != nil {
				return models.NewCrawlError(models.ErrCodeBrowserCrash, "failed to create browser session", err)
			}
			m.sess = sess
		}

		err := op(m.sess)
		if err == nil {
			return nil
		}
		if !models.IsSessionInvalid(err) {
			return err
		}

		slog.Warn("browser session invalid, recreating", "attempt", attempt+1, "error", err)
		m.closeLocked()

		if attempt == 1 {
			return models.NewCrawlError(models.ErrCodeSessionInvalid,
				"session invalid again after recreation", err)
		}
	}
	return nil
}

// Render fetches one URL through the session with recreate-and-retry.
func (m *Manager) Render(ctx context.Context, url string, wait WaitSpec) (string, string, error) {
	var markup, finalURL string
	err := m.Do(ctx, func(s Session) error {
		var opErr error
		markup, finalURL, opErr = s.Render(ctx, url, wait)
		return opErr
	})
	return markup, finalURL, err
}

// Close releases the session unconditionally. Release failures are logged,
// never escalated: shutdown must not fail because a browser already died.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.sess == nil {
		return
	}
	if err := m.sess.Close(); err != nil {
		slog.Warn("browser session release failed", "error", err)
	}
	m.sess = nil
}
