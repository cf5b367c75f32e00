package fetch

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/gleaner/browser"
	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/paginate"
)

// BrowserEngine fetches pages through the managed rendering session. It
// is the only engine that can run click-driven pagination, because that
// needs the live page the previous fetch left behind.
type BrowserEngine struct {
	mgr          *browser.Manager
	pollAttempts int
	pollInterval time.Duration
}

// NewBrowserEngine wraps a session manager. attempts and interval bound
// the pagination click's change-detection poll; zero values take the
// paginate defaults.
func NewBrowserEngine(mgr *browser.Manager, attempts int, interval time.Duration) *BrowserEngine {
	return &BrowserEngine{mgr: mgr, pollAttempts: attempts, pollInterval: interval}
}

func (e *BrowserEngine) Name() string { return "browser" }

func (e *BrowserEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	res := &Result{Engine: e.Name()}
	err := e.mgr.Do(ctx, func(s browser.Session) error {
		if req.Click != nil {
			return e.advance(ctx, s, req, res)
		}
		markup, finalURL, err := s.Render(ctx, req.URL, req.Wait)
		if err != nil {
			return err
		}
		if req.ScrollY > 0 {
			markup = e.scrollNudge(ctx, s, req.ScrollY, markup)
		}
		res.Markup = markup
		res.FinalURL = finalURL
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// advance runs click pagination against the live page. The session may
// have navigated elsewhere since the listing was fetched (detail pages),
// so the listing URL is re-rendered first when the locations differ.
// On sites whose button pagination keeps a stable URL that re-render
// lands back on page one, and the crawl re-clicks forward through pages
// it has already seen; their detail links are duplicate-filtered, so
// the cost is repeated listing fetches, not repeated records.
func (e *BrowserEngine) advance(ctx context.Context, s browser.Session, req *Request, res *Result) error {
	cur, err := s.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if !sameLocation(cur, req.URL) {
		if _, _, err := s.Render(ctx, req.URL, req.Wait); err != nil {
			return err
		}
	}

	advanced, err := paginate.AdvanceByClick(ctx, s, *req.Click, e.pollAttempts, e.pollInterval)
	if err != nil {
		return err
	}
	res.Advanced = advanced
	if !advanced {
		return nil
	}

	if err := waitReady(ctx, s, req.Wait); err != nil {
		return err
	}
	markup, err := s.HTML(ctx)
	if err != nil {
		return err
	}
	res.Markup = markup

	res.FinalURL = req.URL
	if loc, err := s.CurrentURL(ctx); err == nil && loc != "" {
		res.FinalURL = loc
	}
	return nil
}

// scrollNudge scrolls the page down and re-snapshots the markup so
// lazily loaded card content makes it into the extraction input. Nudge
// failures keep the pre-scroll markup; they never fail the fetch.
func (e *BrowserEngine) scrollNudge(ctx context.Context, s browser.Session, y int, markup string) string {
	js := `() => { window.scrollBy(0, ` + strconv.Itoa(y) + `); return true; }`
	if _, err := s.EvalBool(ctx, js); err != nil {
		return markup
	}
	select {
	case <-ctx.Done():
		return markup
	case <-time.After(500 * time.Millisecond):
	}
	if after, err := s.HTML(ctx); err == nil {
		return after
	}
	return markup
}

// waitReady re-applies the readiness condition to the page a click just
// mutated, polling until it holds or the wait's timeout lapses.
func waitReady(ctx context.Context, s browser.Session, wait browser.WaitSpec) error {
	if wait.Selector == "" {
		return nil
	}
	timeout := wait.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	js := browser.ReadinessJS(wait.Selector, wait.Absent)
	for {
		ok, err := s.EvalBool(wctx, js)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-wctx.Done():
			return models.NewCrawlError(models.ErrCodeRenderTimeout,
				"readiness condition never held after pagination click", wctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// sameLocation compares URLs ignoring a trailing slash, which redirects
// commonly add.
func sameLocation(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

