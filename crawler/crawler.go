// Package crawler turns fetched pages into follow-up work and finished
// records. It is pure page logic: given markup it decides which detail
// pages to visit, how pagination continues, and what each record holds.
// Fetching, pacing, and deduplication belong to the scheduler.
package crawler

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/use-agent/gleaner/browser"
	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/paginate"
	"github.com/use-agent/gleaner/record"
	"github.com/use-agent/gleaner/selector"
)

// Stage names the kind of page an instruction targets.
type Stage int

const (
	StageListing Stage = iota
	StageDetail
)

func (s Stage) String() string {
	if s == StageDetail {
		return "detail"
	}
	return "listing"
}

// Instruction is one unit of pending work: fetch a page and hand its
// markup back to the crawler.
type Instruction struct {
	URL   string
	Stage Stage

	// Render and Wait come from the target section's rules.
	Render bool
	Wait   browser.WaitSpec

	// Click, when set, advances pagination in the live page instead of
	// navigating to URL.
	Click *paginate.ClickSpec

	// PageNum is the 1-based listing page index, for logs and page caps.
	PageNum int

	// Title and ListingFields carry listing-stage extraction to the
	// detail stage.
	Title         string
	ListingFields map[string]any

	// DontFilter exempts the instruction from duplicate filtering.
	// Pagination must set it: click requests reuse the listing URL.
	DontFilter bool

	// Attempts counts fetch attempts, maintained by the scheduler for
	// its retry-once policy.
	Attempts int
}

// Crawler holds the per-site rules and the extraction machinery.
type Crawler struct {
	desc          *models.SiteDescriptor
	asm           *record.Assembler
	renderTimeout time.Duration
}

// New creates a Crawler for one site. renderTimeout bounds each page's
// readiness wait.
func New(desc *models.SiteDescriptor, renderTimeout time.Duration) *Crawler {
	return &Crawler{
		desc:          desc,
		asm:           record.NewAssembler(),
		renderTimeout: renderTimeout,
	}
}

// Start returns the initial instructions, one listing fetch per start URL.
func (c *Crawler) Start() []*Instruction {
	var out []*Instruction
	for _, u := range c.desc.ResolvedStartURLs() {
		out = append(out, &Instruction{
			URL:     u,
			Stage:   StageListing,
			Render:  c.desc.Listing.ShouldRender(),
			Wait:    c.waitFor(c.desc.Listing),
			PageNum: 1,
		})
	}
	return out
}

// HandleListing processes one listing page's markup: per-card detail
// instructions plus, when pagination continues, one follow-up listing
// instruction (always last, so cards are scheduled before the next page).
func (c *Crawler) HandleListing(markup, pageURL string, pageNum int) ([]*Instruction, error) {
	doc, err := selector.Parse(markup)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeInternal, "unparseable listing markup", err)
	}
	base, _ := url.Parse(pageURL)
	rules := c.desc.Listing

	cards := selector.Nodes(doc, rules.Cards)
	slog.Info("listing page processed", "url", pageURL, "page", pageNum, "cards", len(cards))

	var out []*Instruction
	for i, card := range cards {
		inst, err := c.cardInstruction(card, base)
		if err != nil {
			slog.Debug("card skipped", "page", pageNum, "card", i, "reason", err)
			continue
		}
		out = append(out, inst)
	}

	if decision := paginate.Decide(doc, rules, base); decision != nil {
		next := &Instruction{
			Stage:      StageListing,
			Render:     rules.ShouldRender(),
			Wait:       c.waitFor(rules),
			PageNum:    pageNum + 1,
			DontFilter: true,
		}
		switch decision.Kind {
		case paginate.KindClick:
			// The click runs in the live page; URL records where the
			// session must be when it fires.
			next.URL = pageURL
			next.Render = true
			click := decision.Click
			next.Click = &click
		case paginate.KindAnchor:
			next.URL = decision.NextURL
		}
		out = append(out, next)
	} else {
		slog.Info("pagination ended", "url", pageURL, "page", pageNum)
	}

	return out, nil
}

// cardInstruction builds the detail fetch for one listing card.
func (c *Crawler) cardInstruction(card *html.Node, base *url.URL) (*Instruction, error) {
	rules := c.desc.Listing

	href := c.cardLink(card, base)
	if href == "" {
		return nil, fmt.Errorf("no detail link")
	}
	target, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("unparseable detail link %q", href)
	}
	if !c.desc.DomainAllowed(target.Hostname()) {
		return nil, fmt.Errorf("detail link host %q outside allowed domains", target.Hostname())
	}

	title := ""
	if v := c.asm.Field(card, models.KeyTitle, rules.Title, base); v != nil {
		if s, ok := v.(string); ok {
			title = s
		}
	}

	return &Instruction{
		URL:           href,
		Stage:         StageDetail,
		Render:        c.desc.Detail.ShouldRender(),
		Wait:          c.waitFor(c.desc.Detail),
		Title:         title,
		ListingFields: c.asm.ListingFields(card, rules.Fields, base),
	}, nil
}

// cardLink resolves the card's detail link to an absolute URL.
func (c *Crawler) cardLink(card *html.Node, base *url.URL) string {
	rules := c.desc.Listing
	if rules.DetailLink == nil {
		return ""
	}
	href := strings.TrimSpace(selector.ResolveOne(card, &rules.DetailLink.Locator))
	if href == "" || href == "#" {
		return ""
	}
	if base != nil {
		if resolved, err := base.Parse(href); err == nil {
			return resolved.String()
		}
	}
	return href
}

// HandleDetail assembles the finished record for one detail page.
// Carried listing fields seed the record; detail extraction overwrites
// them only when it produces a value.
func (c *Crawler) HandleDetail(markup, pageURL string, inst *Instruction) (models.Record, error) {
	doc, err := selector.Parse(markup)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeInternal, "unparseable detail markup", err)
	}
	base, _ := url.Parse(pageURL)
	rules := c.desc.Detail

	rec := models.NewRecord(inst.Title, pageURL)
	c.asm.MergeListing(rec, inst.ListingFields)

	if rules.Title != nil {
		rec.Set(models.KeyTitle, c.asm.Field(doc, models.KeyTitle, rules.Title, base))
	}
	c.asm.PopulateDetail(rec, doc, rules.Fields, base)

	slog.Info("record assembled", "url", pageURL, "fields", len(rec))
	return rec, nil
}

// waitFor builds a section's readiness condition.
func (c *Crawler) waitFor(s *models.SectionRules) browser.WaitSpec {
	return browser.WaitSpec{
		Selector: s.WaitCSS,
		Absent:   s.WaitForAbsence,
		Timeout:  c.renderTimeout,
	}
}
