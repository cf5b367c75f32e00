package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/models"
)

const (
	defaultRenderTimeout = 30 * time.Second
	readyPollInterval    = 200 * time.Millisecond
)

// rodSession is the rod-backed Session implementation: one launched
// browser with a single page, driven strictly sequentially.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewRodFactory returns a Factory that launches a headless browser per
// session. The Manager calls it lazily and again after invalidation.
func NewRodFactory(cfg config.BrowserConfig) Factory {
	return func() (Session, error) {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.Proxy != "" {
			l = l.Proxy(cfg.Proxy)
		}

		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("no-first-run"))

		controlURL, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}

		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("connect to browser: %w", err)
		}

		page, err := b.Page(proto.TargetCreateTarget{})
		if err != nil {
			_ = b.Close()
			l.Kill()
			return nil, fmt.Errorf("create page: %w", err)
		}

		if cfg.Stealth {
			if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
				slog.Warn("stealth injection failed, proceeding without", "error", err)
			}
		}
		if cfg.AcceptLanguage != "" {
			_ = proto.NetworkSetExtraHTTPHeaders{
				Headers: proto.NetworkHeaders{"Accept-Language": gson.New(cfg.AcceptLanguage)},
			}.Call(page)
		}

		slog.Info("browser session launched", "controlURL", controlURL)
		return &rodSession{launcher: l, browser: b, page: page}, nil
	}
}

func (s *rodSession) Render(ctx context.Context, url string, wait WaitSpec) (string, string, error) {
	timeout := wait.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(rctx)

	if err := p.Navigate(url); err != nil {
		return "", "", classify(err, "navigation to target URL failed")
	}

	if wait.Selector != "" {
		if err := s.pollReady(rctx, p, wait); err != nil {
			return "", "", err
		}
	} else {
		// No readiness condition configured; settle for a stable DOM.
		if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			slog.Debug("DOM did not stabilise, proceeding with current state", "error", err)
		}
	}

	markup, err := p.HTML()
	if err != nil {
		return "", "", classify(err, "failed to read rendered markup")
	}

	finalURL := url
	if res, err := p.Eval(`() => window.location.href`); err == nil {
		if href := res.Value.Str(); href != "" {
			finalURL = href
		}
	}
	return markup, finalURL, nil
}

// pollReady polls the page until the readiness selector matches and the
// absence selector (when set) does not. The context deadline bounds the
// wait; hitting it is a readiness timeout, never a session fault.
func (s *rodSession) pollReady(ctx context.Context, p *rod.Page, wait WaitSpec) error {
	js := ReadinessJS(wait.Selector, wait.Absent)
	for {
		res, err := p.Eval(js)
		if err != nil {
			return classify(err, "readiness evaluation failed")
		}
		if res.Value.Bool() {
			return nil
		}
		select {
		case <-ctx.Done():
			return models.NewCrawlError(models.ErrCodeRenderTimeout,
				fmt.Sprintf("readiness condition %q never held", wait.Selector), ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

func (s *rodSession) EvalBool(ctx context.Context, js string) (bool, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return false, classify(err, "script evaluation failed")
	}
	return res.Value.Bool(), nil
}

func (s *rodSession) EvalString(ctx context.Context, js string) (string, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", classify(err, "script evaluation failed")
	}
	return res.Value.Str(), nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	markup, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", classify(err, "failed to read page markup")
	}
	return markup, nil
}

func (s *rodSession) CurrentURL(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return "", classify(err, "failed to read current URL")
	}
	return res.Value.Str(), nil
}

func (s *rodSession) Close() error {
	_ = s.page.Close()
	err := s.browser.Close()
	s.launcher.Kill()
	return err
}

// ReadinessJS builds the readiness predicate script: the selector must
// match and the absence selector (when set) must not.
func ReadinessJS(selector, absent string) string {
	js := `() => {
		if (!document.querySelector(` + strconv.Quote(selector) + `)) return false;`
	if absent != "" {
		js += `
		if (document.querySelector(` + strconv.Quote(absent) + `)) return false;`
	}
	return js + `
		return true;
	}`
}

// classify wraps raw backend errors into typed CrawlErrors so callers can
// tell session faults from per-page failures.
func classify(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewCrawlError(models.ErrCodeRenderTimeout, msg, err)
	case isSessionErr(err):
		return models.NewCrawlError(models.ErrCodeSessionInvalid, msg, err)
	default:
		return models.NewCrawlError(models.ErrCodeNavigation, msg, err)
	}
}

// isSessionErr recognizes the backend's session-invalidity signals: a CDP
// error naming a dead session or target, or the control connection dying.
func isSessionErr(err error) bool {
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		msg := strings.ToLower(cdpErr.Message)
		if strings.Contains(msg, "session") && strings.Contains(msg, "not found") {
			return true
		}
		if strings.Contains(msg, "target closed") || strings.Contains(msg, "target crashed") {
			return true
		}
	}
	text := err.Error()
	return strings.Contains(text, "use of closed network connection") ||
		strings.Contains(text, "websocket: close") ||
		strings.Contains(text, "connection reset by peer")
}
