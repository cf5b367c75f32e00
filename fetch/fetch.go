// Package fetch retrieves page markup through interchangeable engines: a
// lightweight TLS-fingerprinted HTTP client for server-rendered sections
// and a real browser for everything else. A dispatcher picks the engine
// per request and remembers, per domain, which one actually worked.
package fetch

import (
	"context"

	"github.com/use-agent/gleaner/browser"
	"github.com/use-agent/gleaner/paginate"
)

// Request describes one page retrieval.
type Request struct {
	// URL to fetch. For click requests this is the listing page the live
	// session must already be on (or be brought back to).
	URL string

	// Wait is the readiness condition the fetched markup must satisfy.
	Wait browser.WaitSpec

	// Render forces the browser engine even when the section allows HTTP.
	Render bool

	// Click, when set, advances pagination in the live page instead of
	// navigating. Browser engine only.
	Click *paginate.ClickSpec

	// ScrollY nudges the page down after readiness to trigger lazy-loaded
	// content. Browser engine only; 0 disables.
	ScrollY int
}

// Result is one successfully fetched page.
type Result struct {
	Markup   string
	FinalURL string

	// Advanced reports whether a click request actually moved to the next
	// page. False with a nil error means pagination ended.
	Advanced bool

	// Engine names the engine that produced the markup.
	Engine string
}

// Engine retrieves pages. Implementations decide their own transport.
type Engine interface {
	Name() string
	Fetch(ctx context.Context, req *Request) (*Result, error)
}
