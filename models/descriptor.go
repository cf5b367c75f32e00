package models

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// Locator finds nodes or values within markup. Exactly one of CSS or Path
// should be set; a locator with neither resolves to zero matches by design,
// so optional fields come back absent instead of failing the crawl.
//
// CSS locators accept the ::text and ::attr(name) value suffixes. Path
// locators are XPath expressions; a root-anchored expression ("//div") is
// evaluated relative to the context node when the context is a card rather
// than the whole document.
type Locator struct {
	CSS  string `json:"css,omitempty" yaml:"css,omitempty"`
	Path string `json:"xpath,omitempty" yaml:"xpath,omitempty"`
}

// IsZero reports whether the locator has no expression at all.
func (l *Locator) IsZero() bool {
	return l == nil || (strings.TrimSpace(l.CSS) == "" && strings.TrimSpace(l.Path) == "")
}

// FieldRule declares how one output field is extracted and normalized.
type FieldRule struct {
	Locator `yaml:",inline"`

	// GetAll extracts every match instead of the first one.
	GetAll bool `json:"get_all,omitempty" yaml:"get_all,omitempty"`

	// Transforms are extra pipeline steps run on the extracted value, by
	// name, in order. Names are validated when the descriptor loads.
	Transforms []string `json:"utilities,omitempty" yaml:"utilities,omitempty"`

	// DefaultValue, when present, is assigned verbatim and the locator is
	// never queried.
	DefaultValue any  `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	HasDefault   bool `json:"-" yaml:"-"`
}

// UnmarshalJSON distinguishes an explicit default_value (including null)
// from an absent one.
func (r *FieldRule) UnmarshalJSON(data []byte) error {
	type plain struct {
		CSS          string          `json:"css"`
		Path         string          `json:"xpath"`
		GetAll       bool            `json:"get_all"`
		Transforms   []string        `json:"utilities"`
		DefaultValue json.RawMessage `json:"default_value"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	r.CSS = p.CSS
	r.Path = p.Path
	r.GetAll = p.GetAll
	r.Transforms = p.Transforms
	if p.DefaultValue != nil {
		var v any
		if err := json.Unmarshal(p.DefaultValue, &v); err != nil {
			return err
		}
		r.DefaultValue = v
		r.HasDefault = true
	}
	return nil
}

// UnmarshalYAML distinguishes an explicit default_value (including null)
// from an absent one. An explicit null decodes to the zero value, so key
// presence has to be read off the mapping node itself.
func (r *FieldRule) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		CSS          string   `yaml:"css"`
		Path         string   `yaml:"xpath"`
		GetAll       bool     `yaml:"get_all"`
		Transforms   []string `yaml:"utilities"`
		DefaultValue any      `yaml:"default_value"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	r.CSS = p.CSS
	r.Path = p.Path
	r.GetAll = p.GetAll
	r.Transforms = p.Transforms
	r.DefaultValue = p.DefaultValue
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			if value.Content[i].Value == "default_value" {
				r.HasDefault = true
				break
			}
		}
	}
	return nil
}

// ChangeSignal names the pagination button strategy's success condition.
const (
	// DetectHref succeeds when the first card's link changes.
	DetectHref = "href"
	// DetectDetach succeeds when the previously-first card leaves the DOM.
	DetectDetach = "detach"
)

// SectionRules configures extraction for one page kind (listing or detail).
type SectionRules struct {
	// Render forces the rendering backend for this section. Defaults to
	// true; set false for sections whose markup is server-rendered.
	Render *bool `json:"render,omitempty" yaml:"render,omitempty"`

	// WaitCSS is the readiness selector the page must contain before
	// extraction proceeds.
	WaitCSS string `json:"wait_css" yaml:"wait_css"`

	// WaitForAbsence, when set, must NOT match (loading spinners).
	WaitForAbsence string `json:"wait_for_absence,omitempty" yaml:"wait_for_absence,omitempty"`

	// Cards locates the repeating listing elements (listing only).
	Cards *Locator `json:"cards,omitempty" yaml:"cards,omitempty"`

	// Title and DetailLink are resolved per card (listing only).
	Title      *FieldRule `json:"title,omitempty" yaml:"title,omitempty"`
	DetailLink *FieldRule `json:"detail_link,omitempty" yaml:"detail_link,omitempty"`

	Fields map[string]*FieldRule `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Pagination (listing only).
	NextButton      *Locator   `json:"next_button,omitempty" yaml:"next_button,omitempty"`
	NextAnchor      *FieldRule `json:"next_anchor,omitempty" yaml:"next_anchor,omitempty"`
	FirstCardCSS    string     `json:"first_card_link_css,omitempty" yaml:"first_card_link_css,omitempty"`
	ChangeDetection string     `json:"change_detection,omitempty" yaml:"change_detection,omitempty"`
}

// ShouldRender reports whether this section needs the browser backend.
func (s *SectionRules) ShouldRender() bool {
	return s.Render == nil || *s.Render
}

// SiteDescriptor is the declarative per-site configuration. It is loaded
// once per crawl run and never mutated afterwards.
type SiteDescriptor struct {
	AllowedDomains []string `json:"allowed_domains" yaml:"allowed_domains"`

	StartURLs []string `json:"start_urls,omitempty" yaml:"start_urls,omitempty"`
	// StartURL is the legacy scalar form, accepted when StartURLs is empty.
	StartURL string `json:"start_url,omitempty" yaml:"start_url,omitempty"`

	Listing *SectionRules `json:"listing" yaml:"listing"`
	Detail  *SectionRules `json:"detail" yaml:"detail"`
}

// ResolvedStartURLs returns the start URL sequence, folding in the legacy
// scalar form.
func (d *SiteDescriptor) ResolvedStartURLs() []string {
	if len(d.StartURLs) > 0 {
		return d.StartURLs
	}
	if d.StartURL != "" {
		return []string{d.StartURL}
	}
	return nil
}

// DomainAllowed reports whether host falls inside the descriptor's allowed
// domains (exact match or subdomain). An empty allow list permits all hosts.
func (d *SiteDescriptor) DomainAllowed(host string) bool {
	if len(d.AllowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, domain := range d.AllowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
