package selector

import (
	"reflect"
	"strings"
	"testing"

	"github.com/use-agent/gleaner/models"
)

const listingMarkup = `<html><body>
<div class="card">
  <a class="link" href="/item/1">Villa One</a>
  <span class="price">AED 100</span>
</div>
<div class="card">
  <a class="link" href="/item/2">Villa Two</a>
  <span class="price">AED 200</span>
</div>
</body></html>`

func TestResolveAll_CSSTextSuffix(t *testing.T) {
	doc, err := Parse(listingMarkup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := ResolveAll(doc, &models.Locator{CSS: "a.link::text"})
	want := []string{"Villa One", "Villa Two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveAll(::text) = %v, want %v", got, want)
	}
}

func TestResolveAll_CSSAttrSuffix(t *testing.T) {
	doc, err := Parse(listingMarkup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := ResolveAll(doc, &models.Locator{CSS: "a.link::attr(href)"})
	want := []string{"/item/1", "/item/2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveAll(::attr) = %v, want %v", got, want)
	}
}

func TestResolveAll_CSSDefaultOuterHTML(t *testing.T) {
	doc, err := Parse(listingMarkup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := ResolveAll(doc, &models.Locator{CSS: "span.price"})
	if len(got) != 2 {
		t.Fatalf("got %d values, want 2", len(got))
	}
	if !strings.Contains(got[0], "<span") || !strings.Contains(got[0], "AED 100") {
		t.Errorf("element match should yield outer HTML, got %q", got[0])
	}
}

func TestResolveOne_NoMatchIsEmpty(t *testing.T) {
	doc, err := Parse(listingMarkup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := ResolveOne(doc, &models.Locator{CSS: ".does-not-exist::text"}); got != "" {
		t.Errorf("missing selector should yield \"\", got %q", got)
	}
	if got := ResolveOne(doc, &models.Locator{}); got != "" {
		t.Errorf("empty locator should yield \"\", got %q", got)
	}
}

func TestNodes_XPathRootAnchoredRewrittenOnSubNode(t *testing.T) {
	doc, err := Parse(listingMarkup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cards := Nodes(doc, &models.Locator{CSS: "div.card"})
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2", len(cards))
	}

	// A root-anchored expression evaluated inside one card must not see
	// the other card's data.
	loc := &models.Locator{Path: `//span[@class="price"]/text()`}
	got := ResolveAll(cards[0], loc)
	want := []string{"AED 100"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("card-scoped xpath = %v, want %v", got, want)
	}
}

func TestResolveAll_XPathAttribute(t *testing.T) {
	doc, err := Parse(listingMarkup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := ResolveAll(doc, &models.Locator{Path: `//a[@class="link"]/@href`})
	want := []string{"/item/1", "/item/2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveAll(@href) = %v, want %v", got, want)
	}
}

func TestResolveAll_XPathElementYieldsOuterHTML(t *testing.T) {
	doc, err := Parse(listingMarkup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := ResolveAll(doc, &models.Locator{Path: `//span[@class="price"]`})
	if len(got) != 2 {
		t.Fatalf("got %d values, want 2", len(got))
	}
	if !strings.Contains(got[0], "<span") {
		t.Errorf("element xpath should yield outer HTML, got %q", got[0])
	}
}

func TestSplitValueSuffix(t *testing.T) {
	tests := []struct {
		css, expr, suffix string
	}{
		{"a.link::text", "a.link", "text"},
		{"a.link::attr(href)", "a.link", "attr(href)"},
		{"li:nth-child(2)", "li:nth-child(2)", ""},
		{"a::first-line", "a::first-line", ""},
	}
	for _, tt := range tests {
		expr, suffix := splitValueSuffix(tt.css)
		if expr != tt.expr || suffix != tt.suffix {
			t.Errorf("splitValueSuffix(%q) = (%q, %q), want (%q, %q)",
				tt.css, expr, suffix, tt.expr, tt.suffix)
		}
	}
}

func TestCompileCheck(t *testing.T) {
	if err := CompileCheck(&models.Locator{CSS: "div.card a::text"}); err != nil {
		t.Errorf("valid css rejected: %v", err)
	}
	if err := CompileCheck(&models.Locator{CSS: "div[["}); err == nil {
		t.Error("malformed css accepted")
	}
	if err := CompileCheck(&models.Locator{Path: `//a[@href]`}); err != nil {
		t.Errorf("valid xpath rejected: %v", err)
	}
	if err := CompileCheck(&models.Locator{Path: `//a[`}); err == nil {
		t.Error("malformed xpath accepted")
	}
	if err := CompileCheck(&models.Locator{}); err != nil {
		t.Errorf("empty locator should pass: %v", err)
	}
}
