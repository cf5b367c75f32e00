package pipeline

import (
	"net/url"
	"reflect"
	"testing"

	"github.com/use-agent/gleaner/models"
)

func TestNormalizePrice_SeparatorsAndDecimals(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"thousands and decimals", "12,345.67 AED", 12345},
		{"space separated", "AED 1 200 000", 1200000},
		{"nbsp separated", "1\u00a0200", 1200},
		{"hyphen range noise", "100-200", 100200},
		{"int passthrough", 45000, 45000},
		{"no digits", "Call us", nil},
		{"nil", nil, nil},
		{"first candidate wins", []string{"no price", "AED 500"}, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePrice(tt.in, nil)
			if got != tt.want {
				t.Errorf("normalizePrice(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"short code", "AED", "AED"},
		{"code with digits", "12,000 AED", "AED"},
		{"two letter code", "kr", "kr"},
		{"long text passthrough", "United Arab Emirates Dirham", "United Arab Emirates Dirham"},
		{"symbol passthrough", "$", "$"},
		{"empty", "   ", nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeCurrency(tt.in, nil)
			if got != tt.want {
				t.Errorf("normalizeCurrency(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeImages_FiltersAndResolves(t *testing.T) {
	base, _ := url.Parse("https://example.com/listing/42")
	ctx := &Context{Base: base}

	in := []string{
		"",
		"data:image/png;base64,iVBORw0KGgo=",
		"/img/a.jpg",
		"https://cdn.example.com/b.jpg",
	}
	got := normalizeImages(in, ctx)
	want := []string{
		"https://example.com/img/a.jpg",
		"https://cdn.example.com/b.jpg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalizeImages = %v, want %v", got, want)
	}
}

func TestNormalizeImages_NeverNil(t *testing.T) {
	got := normalizeImages(nil, &Context{})
	imgs, ok := got.([]string)
	if !ok || imgs == nil {
		t.Fatalf("normalizeImages(nil) = %#v, want empty []string", got)
	}
	if len(imgs) != 0 {
		t.Errorf("normalizeImages(nil) has %d entries, want 0", len(imgs))
	}
}

func TestNormalizeDescription_StripsAndCollapses(t *testing.T) {
	in := "<div><p>Nice  villa</p>\n\n<p>with   pool</p></div>"
	got := normalizeDescription(in, nil)
	want := "Nice villa with pool"
	if got != want {
		t.Errorf("normalizeDescription = %q, want %q", got, want)
	}
}

func TestNormalizeDescription_Idempotent(t *testing.T) {
	in := "<p>Sea view &amp; garden</p>"
	once := normalizeDescription(in, nil)
	twice := normalizeDescription(once, nil)
	if once != twice {
		t.Errorf("second pass changed the value: %q -> %q", once, twice)
	}
}

func TestNormalizeDescription_JoinsSequence(t *testing.T) {
	got := normalizeDescription([]string{"First paragraph.", "Second paragraph."}, nil)
	want := "First paragraph. Second paragraph."
	if got != want {
		t.Errorf("normalizeDescription = %q, want %q", got, want)
	}
}

func TestNormalizeCoordinates(t *testing.T) {
	got := normalizeCoordinates("25.1972, 55.2744", nil)
	want := models.Coordinates{Lat: 25.1972, Lng: 55.2744}
	if got != want {
		t.Errorf("normalizeCoordinates = %v, want %v", got, want)
	}

	if v := normalizeCoordinates("somewhere nice", nil); v != nil {
		t.Errorf("non-coordinate text should yield nil, got %v", v)
	}
}

func TestNormalizeAmenities(t *testing.T) {
	got := normalizeAmenities("Pool • Gym | Parking", nil)
	want := "Pool, Gym, Parking"
	if got != want {
		t.Errorf("normalizeAmenities = %q, want %q", got, want)
	}

	got = normalizeAmenities([]string{"<li>Balcony</li>", "<li>Maid room</li>"}, nil)
	want = "Balcony, Maid room"
	if got != want {
		t.Errorf("normalizeAmenities sequence = %q, want %q", got, want)
	}
}

func TestParseInt(t *testing.T) {
	if got := parseInt("4 doors", nil); got != 4 {
		t.Errorf("parseInt(\"4 doors\") = %v, want 4", got)
	}
	if got := parseInt("<b>2019</b> model", nil); got != 2019 {
		t.Errorf("parseInt = %v, want 2019", got)
	}
	if got := parseInt("automatic", nil); got != nil {
		t.Errorf("parseInt without digits = %v, want nil", got)
	}
	if got := parseInt(7, nil); got != 7 {
		t.Errorf("parseInt int passthrough = %v, want 7", got)
	}
}

func TestCleanValue(t *testing.T) {
	if got := cleanValue("  <b>Villa</b>  ", nil); got != "Villa" {
		t.Errorf("cleanValue = %v, want Villa", got)
	}
	if got := cleanValue("   ", nil); got != nil {
		t.Errorf("whitespace-only should clean to nil, got %v", got)
	}
	if got := cleanValue(42, nil); got != 42 {
		t.Errorf("non-string should pass through, got %v", got)
	}
}

func TestCleanSequence_DropsEmpties(t *testing.T) {
	got := cleanSequence([]string{" a ", "", "<i>b</i>", "  "}, nil)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("cleanSequence = %v, want %v", got, want)
	}
}

func TestSanitizeText(t *testing.T) {
	in := "a b\u00a0\ufffd\x01  c\n\td"
	if got := sanitizeText(in); got != "a b c d" {
		t.Errorf("sanitizeText = %q, want %q", got, "a b c d")
	}
}
