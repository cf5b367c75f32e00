// Package pipeline normalizes raw extracted values into typed field values.
// Each field runs an ordered sequence of named transforms: the transforms a
// descriptor declares, plus an implicit required set per well-known field
// that the descriptor cannot disable. Transform names form a closed registry
// resolved when the descriptor loads; unknown names are a configuration
// error, never a silent no-op.
package pipeline

import (
	"net/url"
	"sort"

	"github.com/use-agent/gleaner/models"
)

// Context carries per-page state the transforms need, currently the base
// URL that relative image links resolve against.
type Context struct {
	Base *url.URL
}

// Func is one normalization step. A miss is expressed as a nil result,
// never an error: absent values flow through the pipeline as "no value".
type Func func(v any, ctx *Context) any

// position controls where the required transforms sit relative to the
// declared ones. Cleaning transforms run before user customization,
// output-shaping ones after.
type position int

const (
	suffix position = iota
	prefix
)

var registry = map[string]Func{
	"clean_value":           cleanValue,
	"clean_sequence":        cleanSequence,
	"normalize_images":      normalizeImages,
	"normalize_description": normalizeDescription,
	"normalize_price":       normalizePrice,
	"normalize_currency":    normalizeCurrency,
	"normalize_coordinates": normalizeCoordinates,
	"normalize_amenities":   normalizeAmenities,
	"parse_int":             parseInt,
}

// Known reports whether name is a registered transform.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered transform names, sorted, for error messages.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requiredFor returns the implicit transform set for a field and where it
// sits relative to the declared transforms.
func requiredFor(key string, rule *models.FieldRule) ([]string, position) {
	switch key {
	case models.KeyImages:
		return []string{"clean_sequence", "normalize_images"}, prefix
	case models.KeyDescription:
		return []string{"normalize_description"}, suffix
	case models.KeyPrice:
		return []string{"normalize_price"}, suffix
	case models.KeyCurrency:
		return []string{"normalize_currency"}, suffix
	case models.KeyCoordinates:
		return []string{"normalize_coordinates"}, suffix
	case models.KeyAmenities:
		return []string{"normalize_amenities"}, suffix
	}
	if rule != nil && rule.GetAll {
		return []string{"clean_sequence"}, suffix
	}
	return []string{"clean_value"}, suffix
}

// Compose builds the full transform sequence for a field: the declared
// transforms with the required set folded in at its position. Declared
// names that repeat a required transform are dropped so cleaning never
// runs twice.
func Compose(key string, rule *models.FieldRule) []string {
	var declared []string
	if rule != nil {
		declared = rule.Transforms
	}
	required, pos := requiredFor(key, rule)
	if len(required) == 0 {
		return declared
	}

	inRequired := make(map[string]bool, len(required))
	for _, name := range required {
		inRequired[name] = true
	}
	var rest []string
	for _, name := range declared {
		if !inRequired[name] {
			rest = append(rest, name)
		}
	}

	if pos == prefix {
		return append(append([]string{}, required...), rest...)
	}
	return append(rest, required...)
}

// resolveURL resolves ref against the context base, returning ref
// unchanged when no base is set or ref does not parse.
func resolveURL(ctx *Context, ref string) string {
	if ctx == nil || ctx.Base == nil {
		return ref
	}
	u, err := ctx.Base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// Normalize runs the composed pipeline for a field over a raw value.
// The result is nil when nothing usable survives.
func Normalize(value any, key string, rule *models.FieldRule, ctx *Context) any {
	if ctx == nil {
		ctx = &Context{}
	}
	for _, name := range Compose(key, rule) {
		fn, ok := registry[name]
		if !ok {
			// Unknown names are rejected at descriptor load; an unknown
			// name here means the caller skipped validation.
			continue
		}
		value = fn(value, ctx)
	}
	return value
}
