package fetch

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/gleaner/browser"
	"github.com/use-agent/gleaner/models"
)

// Dispatcher routes requests to the right engine. Rendered sections and
// pagination clicks always go to the browser; server-rendered sections
// try HTTP first and escalate to the browser when the static markup
// never satisfies the readiness condition.
type Dispatcher struct {
	http    *HTTPEngine
	browser *BrowserEngine
	memory  *engineMemory
	mgr     *browser.Manager
}

// Options configures a Dispatcher.
type Options struct {
	HTTPTimeout  time.Duration
	PollAttempts int
	PollInterval time.Duration
	MemoryTTL    time.Duration // default: 24h
}

// NewDispatcher builds the engine stack on top of a session manager.
func NewDispatcher(mgr *browser.Manager, opts Options) *Dispatcher {
	ttl := opts.MemoryTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Dispatcher{
		http:    NewHTTPEngine(opts.HTTPTimeout),
		browser: NewBrowserEngine(mgr, opts.PollAttempts, opts.PollInterval),
		memory:  newEngineMemory(ttl),
		mgr:     mgr,
	}
}

// Fetch retrieves one page through the appropriate engine.
func (d *Dispatcher) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if req.Render || req.Click != nil {
		return d.browser.Fetch(ctx, req)
	}

	domain := hostOf(req.URL)
	if d.memory.recall(domain) == d.browser.Name() {
		res, err := d.browser.Fetch(ctx, req)
		if err != nil {
			d.memory.forget(domain)
		}
		return res, err
	}

	res, err := d.http.Fetch(ctx, req)
	if err == nil {
		d.memory.remember(domain, d.http.Name())
		return res, nil
	}
	if models.ErrCode(err) != models.ErrCodeFetchFailed {
		return nil, err
	}

	slog.Debug("http engine failed, escalating to browser", "url", req.URL, "error", err)
	res, err = d.browser.Fetch(ctx, req)
	if err == nil {
		d.memory.remember(domain, d.browser.Name())
	}
	return res, err
}

// Close releases the engines and the session they share.
func (d *Dispatcher) Close() {
	d.mgr.Close()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Hostname()
}
