package models

import "sort"

// Well-known record keys. Every record carries URL and Title; the remaining
// keys appear when the descriptor extracts them.
const (
	KeyTitle       = "title"
	KeyURL         = "url"
	KeyImages      = "images"
	KeyPrice       = "price"
	KeyCurrency    = "currency"
	KeyDescription = "description"
	KeyCoordinates = "coordinates"
	KeyAmenities   = "amenities"
	KeyDetailLink  = "detail_link"
)

// Coordinates is a geographic point extracted from "lat,lng" text.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Record is one extracted output item: a mapping from field name to
// normalized value. Records are created when a detail page is reached,
// populated first from carried-over listing fields, then overwritten by
// detail fields, emitted exactly once, and never mutated afterwards.
type Record map[string]any

// NewRecord creates a record with the two always-present keys.
func NewRecord(title, url string) Record {
	return Record{
		KeyTitle: title,
		KeyURL:   url,
	}
}

// Set assigns a field value, ignoring empty values so that an empty detail
// extraction never clobbers a carried listing value.
func (r Record) Set(key string, value any) {
	if IsEmptyValue(value) {
		return
	}
	r[key] = value
}

// Keys returns the record's field names sorted with the well-known keys
// first, then the rest alphabetically. Export sinks rely on this order.
func (r Record) Keys() []string {
	known := []string{
		KeyURL, KeyTitle, KeyPrice, KeyCurrency,
		KeyDescription, KeyImages, KeyCoordinates, KeyAmenities,
	}
	inKnown := make(map[string]bool, len(known))
	var keys []string
	for _, k := range known {
		inKnown[k] = true
		if _, ok := r[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range r {
		if !inKnown[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// IsEmptyValue reports whether a pipeline output counts as "no value":
// nil, an empty string, or an empty sequence. Zero numbers are values.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
