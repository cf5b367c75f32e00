package record

import (
	"net/url"
	"reflect"
	"testing"

	"golang.org/x/net/html"

	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/selector"
)

// spyResolver counts lookups so tests can prove that defaulted rules
// never touch the selector engine.
type spyResolver struct {
	ones, alls int
	oneValue   string
	allValues  []string
}

func (s *spyResolver) One(root *html.Node, loc *models.Locator) string {
	s.ones++
	return s.oneValue
}

func (s *spyResolver) All(root *html.Node, loc *models.Locator) []string {
	s.alls++
	return s.allValues
}

func mustParse(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := selector.Parse(markup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestPopulateDetail_DefaultValueSkipsExtraction(t *testing.T) {
	spy := &spyResolver{oneValue: "should never be used"}
	asm := NewAssemblerWith(spy)
	rec := models.NewRecord("T", "https://example.com/1")

	rules := map[string]*models.FieldRule{
		"listing_type": {DefaultValue: "rent", HasDefault: true},
	}
	asm.PopulateDetail(rec, mustParse(t, "<html></html>"), rules, nil)

	if spy.ones != 0 || spy.alls != 0 {
		t.Errorf("defaulted rule queried the resolver: ones=%d alls=%d", spy.ones, spy.alls)
	}
	if rec["listing_type"] != "rent" {
		t.Errorf("default not assigned: %v", rec["listing_type"])
	}
}

func TestPopulateDetail_EmptyDefaultAssignedVerbatim(t *testing.T) {
	asm := NewAssemblerWith(&spyResolver{})
	rec := models.NewRecord("T", "https://example.com/1")

	rules := map[string]*models.FieldRule{
		"note": {DefaultValue: nil, HasDefault: true},
	}
	asm.PopulateDetail(rec, mustParse(t, "<html></html>"), rules, nil)

	v, present := rec["note"]
	if !present || v != nil {
		t.Errorf("explicit nil default should be present, got %v (present=%v)", v, present)
	}
}

func TestPopulateDetail_EmptyExtractionKeepsListingValue(t *testing.T) {
	spy := &spyResolver{oneValue: ""}
	asm := NewAssemblerWith(spy)

	rec := models.NewRecord("T", "https://example.com/1")
	asm.MergeListing(rec, map[string]any{models.KeyPrice: 100})

	rules := map[string]*models.FieldRule{
		models.KeyPrice: {Locator: models.Locator{CSS: ".price::text"}},
	}
	asm.PopulateDetail(rec, mustParse(t, "<html></html>"), rules, nil)

	if rec[models.KeyPrice] != 100 {
		t.Errorf("empty detail extraction clobbered listing price: %v", rec[models.KeyPrice])
	}
}

func TestPopulateDetail_DetailValueOverwritesListing(t *testing.T) {
	doc := mustParse(t, `<html><body><span class="price">AED 250</span></body></html>`)
	asm := NewAssembler()

	rec := models.NewRecord("T", "https://example.com/1")
	asm.MergeListing(rec, map[string]any{models.KeyPrice: 100})

	rules := map[string]*models.FieldRule{
		models.KeyPrice: {Locator: models.Locator{CSS: ".price::text"}},
	}
	asm.PopulateDetail(rec, doc, rules, nil)

	if rec[models.KeyPrice] != 250 {
		t.Errorf("detail price should overwrite listing price, got %v", rec[models.KeyPrice])
	}
}

func TestPopulateDetail_ImagesReplaceEmptyListingSet(t *testing.T) {
	doc := mustParse(t, `<html><body><img class="ph" src="/a.jpg"></body></html>`)
	base, _ := url.Parse("https://example.com/item/1")
	asm := NewAssembler()

	rec := models.NewRecord("T", "https://example.com/1")
	// An empty listing image set is never carried in the first place.
	asm.MergeListing(rec, map[string]any{})

	rules := map[string]*models.FieldRule{
		models.KeyImages: {Locator: models.Locator{CSS: "img.ph::attr(src)"}},
	}
	asm.PopulateDetail(rec, doc, rules, base)

	want := []string{"https://example.com/a.jpg"}
	if !reflect.DeepEqual(rec[models.KeyImages], want) {
		t.Errorf("images = %v, want %v", rec[models.KeyImages], want)
	}
}

func TestListingFields_EmptyValuesOmitted(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<div class="card"><span class="price">AED 90</span><span class="year"></span></div>
	</body></html>`)
	asm := NewAssembler()

	rules := map[string]*models.FieldRule{
		models.KeyPrice: {Locator: models.Locator{CSS: ".price::text"}},
		"year":          {Locator: models.Locator{CSS: ".year::text"}},
		"mileage":       {Locator: models.Locator{CSS: ".mileage::text"}},
	}
	fields := asm.ListingFields(doc, rules, nil)

	if fields[models.KeyPrice] != 90 {
		t.Errorf("price = %v, want 90", fields[models.KeyPrice])
	}
	if _, ok := fields["year"]; ok {
		t.Error("empty extraction should be omitted from listing fields")
	}
	if _, ok := fields["mileage"]; ok {
		t.Error("missing selector should be omitted from listing fields")
	}
}

func TestField_GetAllYieldsSequence(t *testing.T) {
	doc := mustParse(t, `<html><body><li>a</li><li>b</li></body></html>`)
	asm := NewAssembler()

	rule := &models.FieldRule{Locator: models.Locator{CSS: "li::text"}, GetAll: true}
	got := asm.Field(doc, "features", rule, nil)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Field(get_all) = %v, want %v", got, want)
	}
}
