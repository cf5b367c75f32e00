// Package selector resolves declarative locators (CSS or XPath) against
// parsed markup. Locator misses are never errors: a nil or empty locator,
// or one that matches nothing, yields zero values so optional fields come
// back absent instead of aborting a crawl.
package selector

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/use-agent/gleaner/models"
)

// Parse parses a markup document. Thin wrapper so callers don't import
// html directly just to build a root node.
func Parse(markup string) (*html.Node, error) {
	return html.Parse(strings.NewReader(markup))
}

// Nodes resolves a locator to the matching element nodes. CSS value
// suffixes (::text, ::attr) are ignored here; node resolution only cares
// about the element part of the expression.
func Nodes(root *html.Node, loc *models.Locator) []*html.Node {
	if root == nil || loc.IsZero() {
		return nil
	}
	if css := strings.TrimSpace(loc.CSS); css != "" {
		expr, _ := splitValueSuffix(css)
		sel, err := cascadia.Parse(expr)
		if err != nil {
			return nil
		}
		return cascadia.QueryAll(root, sel)
	}
	return findXPath(root, loc.Path)
}

// ResolveAll resolves a locator to its raw string values, in document
// order. Element matches yield their outer HTML (cleaning transforms strip
// the tags later); ::text yields the node's text content; ::attr(name)
// yields the attribute value. XPath expressions addressing attributes or
// text() yield the attribute or text value directly.
func ResolveAll(root *html.Node, loc *models.Locator) []string {
	if root == nil || loc.IsZero() {
		return nil
	}

	if css := strings.TrimSpace(loc.CSS); css != "" {
		expr, suffix := splitValueSuffix(css)
		sel, err := cascadia.Parse(expr)
		if err != nil {
			return nil
		}
		var values []string
		for _, node := range cascadia.QueryAll(root, sel) {
			switch {
			case suffix == "text":
				values = append(values, htmlquery.InnerText(node))
			case strings.HasPrefix(suffix, "attr("):
				name := strings.TrimSuffix(strings.TrimPrefix(suffix, "attr("), ")")
				if v, ok := attrValue(node, name); ok {
					values = append(values, v)
				}
			default:
				values = append(values, outerHTML(node))
			}
		}
		return values
	}

	// Attribute steps yield synthetic nodes in htmlquery, so the decision
	// between outer HTML and plain value is made from the expression.
	valueOnly := xpathSelectsValue(loc.Path)
	var values []string
	for _, node := range findXPath(root, loc.Path) {
		if valueOnly || node.Type != html.ElementNode {
			values = append(values, htmlquery.InnerText(node))
		} else {
			values = append(values, outerHTML(node))
		}
	}
	return values
}

// xpathSelectsValue reports whether the expression's final step addresses
// an attribute or text() rather than an element.
func xpathSelectsValue(expr string) bool {
	expr = strings.TrimSpace(expr)
	last := expr
	if idx := strings.LastIndex(expr, "/"); idx >= 0 {
		last = expr[idx+1:]
	}
	return strings.HasPrefix(last, "@") || strings.HasPrefix(last, "text()")
}

// ResolveOne returns the first raw value for the locator, or "" when
// nothing matches.
func ResolveOne(root *html.Node, loc *models.Locator) string {
	values := ResolveAll(root, loc)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// findXPath evaluates an XPath expression against root. A root-anchored
// expression is rewritten to a context-relative one when root is a
// sub-node: "//" re-matches from the document root regardless of context,
// which silently leaks sibling-card data into every card.
func findXPath(root *html.Node, expr string) []*html.Node {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	if strings.HasPrefix(expr, "//") && root.Type != html.DocumentNode {
		expr = "." + expr
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil
	}
	return nodes
}

// splitValueSuffix splits a scrapy-style CSS expression into the element
// selector and its value suffix ("text" or "attr(name)").
func splitValueSuffix(css string) (expr, suffix string) {
	idx := strings.LastIndex(css, "::")
	if idx < 0 {
		return css, ""
	}
	tail := css[idx+2:]
	if tail == "text" || (strings.HasPrefix(tail, "attr(") && strings.HasSuffix(tail, ")")) {
		return css[:idx], tail
	}
	// Any other ::pseudo is part of the selector itself.
	return css, ""
}

func attrValue(node *html.Node, name string) (string, bool) {
	for _, a := range node.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func outerHTML(node *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, node); err != nil {
		return ""
	}
	return buf.String()
}

// CompileCheck validates a locator's expressions without resolving them.
// Used by descriptor validation so malformed selectors fail at load time.
func CompileCheck(loc *models.Locator) error {
	if loc.IsZero() {
		return nil
	}
	if css := strings.TrimSpace(loc.CSS); css != "" {
		expr, _ := splitValueSuffix(css)
		if _, err := cascadia.Parse(expr); err != nil {
			return err
		}
		return nil
	}
	doc, _ := Parse("<html></html>")
	if _, err := htmlquery.QueryAll(doc, strings.TrimSpace(loc.Path)); err != nil {
		return err
	}
	return nil
}
