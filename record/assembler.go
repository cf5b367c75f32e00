// Package record assembles output records from listing-stage and
// detail-stage extraction, resolving precedence when both stages produce
// the same field.
package record

import (
	"log/slog"
	"net/url"

	"golang.org/x/net/html"

	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/pipeline"
	"github.com/use-agent/gleaner/selector"
)

// Resolver abstracts locator resolution so tests can verify that rules
// with a default value never touch the selector engine.
type Resolver interface {
	One(root *html.Node, loc *models.Locator) string
	All(root *html.Node, loc *models.Locator) []string
}

type engineResolver struct{}

func (engineResolver) One(root *html.Node, loc *models.Locator) string {
	return selector.ResolveOne(root, loc)
}

func (engineResolver) All(root *html.Node, loc *models.Locator) []string {
	return selector.ResolveAll(root, loc)
}

// Assembler extracts and merges record fields per the descriptor's rules.
type Assembler struct {
	res Resolver
}

// NewAssembler returns an assembler backed by the selector engine.
func NewAssembler() *Assembler {
	return &Assembler{res: engineResolver{}}
}

// NewAssemblerWith returns an assembler with a custom resolver.
func NewAssemblerWith(res Resolver) *Assembler {
	return &Assembler{res: res}
}

// Field extracts and normalizes one field from root.
func (a *Assembler) Field(root *html.Node, key string, rule *models.FieldRule, base *url.URL) any {
	return a.extract(root, key, rule, &pipeline.Context{Base: base})
}

// ListingFields extracts the configured listing fields from one card,
// already normalized against the listing page's base URL. Fields that
// produce no value are omitted so they never mask detail extraction.
func (a *Assembler) ListingFields(card *html.Node, rules map[string]*models.FieldRule, base *url.URL) map[string]any {
	if len(rules) == 0 {
		return nil
	}
	ctx := &pipeline.Context{Base: base}
	fields := make(map[string]any)

	for key, rule := range rules {
		value := a.extract(card, key, rule, ctx)
		if models.IsEmptyValue(value) {
			continue
		}
		fields[key] = value
		slog.Debug("listing field extracted", "field", key)
	}
	return fields
}

// MergeListing copies carried listing fields into the record. Values were
// normalized at listing time; empty ones were never carried.
func (a *Assembler) MergeListing(rec models.Record, listingFields map[string]any) {
	for key, value := range listingFields {
		rec.Set(key, value)
	}
}

// PopulateDetail extracts the detail section's fields into the record.
// Non-empty detail values overwrite carried listing values; empty detail
// extractions leave them untouched.
func (a *Assembler) PopulateDetail(rec models.Record, doc *html.Node, rules map[string]*models.FieldRule, base *url.URL) {
	ctx := &pipeline.Context{Base: base}
	for key, rule := range rules {
		if rule != nil && rule.HasDefault {
			// Defaults are assigned verbatim, even when empty.
			rec[key] = rule.DefaultValue
			slog.Debug("field assigned default value", "field", key)
			continue
		}
		rec.Set(key, a.extract(doc, key, rule, ctx))
	}
}

// extract pulls one field's raw value and runs it through its pipeline.
// A rule with a default value short-circuits: no locator lookup occurs.
func (a *Assembler) extract(root *html.Node, key string, rule *models.FieldRule, ctx *pipeline.Context) any {
	if rule == nil {
		return nil
	}
	if rule.HasDefault {
		return rule.DefaultValue
	}

	var raw any
	switch {
	case key == models.KeyImages:
		raw = a.res.All(root, &rule.Locator)
	case rule.GetAll:
		raw = a.res.All(root, &rule.Locator)
	default:
		if v := a.res.One(root, &rule.Locator); v != "" {
			raw = v
		}
	}
	return pipeline.Normalize(raw, key, rule, ctx)
}
