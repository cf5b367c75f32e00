package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/selector"
)

// HTTPEngine fetches server-rendered pages over plain HTTP with a
// Chrome-like TLS fingerprint. It verifies the section's readiness
// selector against the fetched markup, so pages that need scripting fail
// here and escalate to the browser engine.
type HTTPEngine struct {
	client  *http.Client
	timeout time.Duration
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. Computed once at init time and reused per connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Keep the server off HTTP/2: Go's http.Transport cannot frame h2 over
	// a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine. timeout bounds one fetch end to end.
func NewHTTPEngine(timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: timeout}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &HTTPEngine{
		timeout: timeout,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(fctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeFetchFailed, "build request", err)
	}

	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	const maxBody = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeFetchFailed, "read body", err)
	}

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 || !isHTMLContentType(ct) {
		return nil, models.NewCrawlError(models.ErrCodeFetchFailed,
			fmt.Sprintf("non-html or error status %d (content-type: %s)", resp.StatusCode, ct), nil)
	}

	markup := string(body)
	if err := checkReadiness(markup, req.Wait.Selector, req.Wait.Absent); err != nil {
		return nil, err
	}

	return &Result{
		Markup:   markup,
		FinalURL: resp.Request.URL.String(),
		Engine:   e.Name(),
	}, nil
}

// checkReadiness applies the section's readiness condition to static
// markup. A miss means the page needs scripting; the caller escalates.
func checkReadiness(markup, sel, absent string) error {
	if sel == "" {
		return nil
	}
	doc, err := selector.Parse(markup)
	if err != nil {
		return models.NewCrawlError(models.ErrCodeFetchFailed, "unparseable markup", err)
	}
	if len(selector.Nodes(doc, &models.Locator{CSS: sel})) == 0 {
		return models.NewCrawlError(models.ErrCodeFetchFailed,
			fmt.Sprintf("readiness selector %q not present in static markup", sel), nil)
	}
	if absent != "" && len(selector.Nodes(doc, &models.Locator{CSS: absent})) > 0 {
		return models.NewCrawlError(models.ErrCodeFetchFailed,
			fmt.Sprintf("absence selector %q still present in static markup", absent), nil)
	}
	return nil
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
