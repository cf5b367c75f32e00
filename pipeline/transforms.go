package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/gleaner/models"
)

var (
	priceRe       = regexp.MustCompile(`(\d[\d\s,\-/]*)(?:[.,]\d{1,2})?`)
	priceNoiseRe  = regexp.MustCompile(`[\s,\-/]`)
	digitRe       = regexp.MustCompile(`\d`)
	digitRunRe    = regexp.MustCompile(`\d+`)
	alphaRunRe    = regexp.MustCompile(`[A-Za-z]+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	controlRe     = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
	coordRe       = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?),\s*([+-]?\d+(?:\.\d+)?)`)
	bulletSepRe   = regexp.MustCompile(`\s*[•\|\n\r;/]\s*`)
	repeatCommaRe = regexp.MustCompile(`(,\s*){2,}`)
)

// cleanValue strips markup tags from a scalar string and trims it. Empty
// results become nil. Non-string values pass through untouched.
func cleanValue(v any, _ *Context) any {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	cleaned := strings.TrimSpace(stripTags(s))
	if cleaned == "" {
		return nil
	}
	return cleaned
}

// cleanSequence normalizes a scalar or sequence into a cleaned []string,
// dropping entries that clean to nothing. The result is never nil.
func cleanSequence(v any, ctx *Context) any {
	out := []string{}
	for _, s := range toStrings(v) {
		if cleaned, ok := cleanValue(s, ctx).(string); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

// normalizeImages drops empty and embedded base64 placeholder entries and
// resolves the remainder to absolute URLs against the page base. Order is
// preserved; the result is never nil.
func normalizeImages(v any, ctx *Context) any {
	images := []string{}
	for _, raw := range toStrings(v) {
		u := strings.TrimSpace(raw)
		if u == "" || strings.HasPrefix(u, "data:image/") {
			continue
		}
		images = append(images, resolveURL(ctx, u))
	}
	return images
}

// normalizeDescription strips tags, converts non-breaking spaces, drops
// control characters, and collapses internal whitespace to single spaces.
// Sequences are joined with newlines before cleaning. Nil when empty.
func normalizeDescription(v any, _ *Context) any {
	if v == nil {
		return nil
	}
	var text string
	switch t := v.(type) {
	case string:
		text = t
	default:
		parts := toStrings(v)
		if len(parts) == 0 {
			return nil
		}
		text = strings.Join(parts, "\n")
	}
	cleaned := sanitizeText(stripTags(text))
	if cleaned == "" {
		return nil
	}
	return cleaned
}

// normalizePrice parses the first candidate that contains a digit run
// (thousands separators, hyphens, and slashes are tolerated as noise) into
// integer major currency units. A decimal remainder is dropped. Nil when
// no candidate parses.
func normalizePrice(v any, _ *Context) any {
	if v == nil {
		return nil
	}
	if n, ok := v.(int); ok {
		return n
	}
	for _, candidate := range candidates(v) {
		text := strings.ReplaceAll(strings.TrimSpace(candidate), "\u00a0", " ")
		if price, ok := priceDigits(text); ok {
			return price
		}
	}
	return nil
}

// normalizeCurrency extracts a currency code from the first usable
// candidate: when the text contains a digit or is 2-3 characters long, the
// leading alphabetic run is the code; otherwise the full trimmed text is
// returned as-is. Nil when nothing qualifies.
func normalizeCurrency(v any, _ *Context) any {
	if v == nil {
		return nil
	}
	for _, candidate := range candidates(v) {
		text := strings.TrimSpace(candidate)
		if text == "" {
			continue
		}
		runes := utf8.RuneCountInString(text)
		if digitRe.MatchString(text) || (runes >= 2 && runes <= 3) {
			if code := alphaRunRe.FindString(text); code != "" {
				return code
			}
			continue
		}
		return text
	}
	return nil
}

// normalizeCoordinates parses "lat,lng" text into a coordinate pair.
func normalizeCoordinates(v any, _ *Context) any {
	if v == nil {
		return nil
	}
	for _, candidate := range candidates(v) {
		m := coordRe.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[2], 64)
		if errLat != nil || errLng != nil {
			continue
		}
		return models.Coordinates{Lat: lat, Lng: lng}
	}
	return nil
}

// normalizeAmenities flattens bullet/pipe/semicolon-separated amenity text
// into one comma-joined string. Nil when empty.
func normalizeAmenities(v any, _ *Context) any {
	if v == nil {
		return nil
	}
	var parts []string
	for _, raw := range toStrings(v) {
		if cleaned := sanitizeText(stripTags(raw)); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	text := strings.Join(parts, ", ")
	text = bulletSepRe.ReplaceAllString(text, ", ")
	text = repeatCommaRe.ReplaceAllString(text, ", ")
	text = strings.Trim(text, ", ")
	if text == "" {
		return nil
	}
	return text
}

// parseInt extracts the first digit run as an integer ("4 doors" -> 4).
func parseInt(v any, _ *Context) any {
	if v == nil {
		return nil
	}
	if n, ok := v.(int); ok {
		return n
	}
	for _, candidate := range candidates(v) {
		if run := digitRunRe.FindString(stripTags(candidate)); run != "" {
			if n, err := strconv.Atoi(run); err == nil {
				return n
			}
		}
	}
	return nil
}

// priceDigits locates the first digit run with optional embedded noise and
// returns it as an integer.
func priceDigits(text string) (int, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	normalized := priceNoiseRe.ReplaceAllString(m[1], "")
	n, err := strconv.Atoi(normalized)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sanitizeText converts non-breaking spaces, drops the Unicode replacement
// character and C0 control characters, and collapses runs of whitespace to
// single ASCII spaces.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\ufffd", "")
	s = controlRe.ReplaceAllString(s, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripTags extracts visible text from an HTML fragment by parsing it.
// Plain text comes back unchanged, which keeps cleaning idempotent.
func stripTags(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}

// toStrings flattens a scalar or sequence value into a string slice.
func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

// candidates returns the string candidates of a value, tried in order by
// the parsing transforms.
func candidates(v any) []string {
	return toStrings(v)
}
