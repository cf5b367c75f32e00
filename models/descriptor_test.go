package models

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestFieldRule_UnmarshalJSON_DefaultValuePresence(t *testing.T) {
	var withDefault FieldRule
	if err := json.Unmarshal([]byte(`{"css":".x","default_value":null}`), &withDefault); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !withDefault.HasDefault {
		t.Error("explicit null default_value should set HasDefault")
	}
	if withDefault.DefaultValue != nil {
		t.Errorf("null default should stay nil, got %v", withDefault.DefaultValue)
	}

	var without FieldRule
	if err := json.Unmarshal([]byte(`{"css":".x"}`), &without); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if without.HasDefault {
		t.Error("absent default_value should not set HasDefault")
	}
}

func TestFieldRule_UnmarshalYAML_DefaultValuePresence(t *testing.T) {
	var rule FieldRule
	if err := yaml.Unmarshal([]byte("css: .x\ndefault_value: used\n"), &rule); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rule.HasDefault || rule.DefaultValue != "used" {
		t.Errorf("got HasDefault=%v value=%v, want true/used", rule.HasDefault, rule.DefaultValue)
	}
	if rule.CSS != ".x" {
		t.Errorf("css = %q, want .x", rule.CSS)
	}
}

func TestFieldRule_UnmarshalYAML_NullDefaultValue(t *testing.T) {
	var rule FieldRule
	if err := yaml.Unmarshal([]byte("css: .x\ndefault_value: null\n"), &rule); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rule.HasDefault {
		t.Error("explicit null default_value should set HasDefault")
	}
	if rule.DefaultValue != nil {
		t.Errorf("null default should stay nil, got %v", rule.DefaultValue)
	}

	var without FieldRule
	if err := yaml.Unmarshal([]byte("css: .x\n"), &without); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if without.HasDefault {
		t.Error("absent default_value should not set HasDefault")
	}
}

func TestFieldRule_UnmarshalJSON_Transforms(t *testing.T) {
	var rule FieldRule
	raw := `{"xpath":"//a/@href","get_all":true,"utilities":["parse_int"]}`
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rule.Path != "//a/@href" || !rule.GetAll {
		t.Errorf("unexpected rule: %+v", rule)
	}
	if !reflect.DeepEqual(rule.Transforms, []string{"parse_int"}) {
		t.Errorf("transforms = %v", rule.Transforms)
	}
}

func TestSiteDescriptor_ResolvedStartURLs(t *testing.T) {
	d := &SiteDescriptor{StartURLs: []string{"https://a", "https://b"}, StartURL: "https://legacy"}
	if got := d.ResolvedStartURLs(); len(got) != 2 {
		t.Errorf("start_urls should win over legacy scalar, got %v", got)
	}

	d = &SiteDescriptor{StartURL: "https://legacy"}
	if got := d.ResolvedStartURLs(); !reflect.DeepEqual(got, []string{"https://legacy"}) {
		t.Errorf("legacy scalar not honored: %v", got)
	}

	d = &SiteDescriptor{}
	if got := d.ResolvedStartURLs(); got != nil {
		t.Errorf("no start urls should yield nil, got %v", got)
	}
}

func TestSiteDescriptor_DomainAllowed(t *testing.T) {
	d := &SiteDescriptor{AllowedDomains: []string{"example.com"}}

	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"www.example.com", true},
		{"EXAMPLE.com", true},
		{"evil-example.com", false},
		{"example.com.evil.net", false},
		{"other.org", false},
	}
	for _, tt := range tests {
		if got := d.DomainAllowed(tt.host); got != tt.want {
			t.Errorf("DomainAllowed(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}

	open := &SiteDescriptor{}
	if !open.DomainAllowed("anything.example") {
		t.Error("empty allow list should permit all hosts")
	}
}

func TestSectionRules_ShouldRender(t *testing.T) {
	s := &SectionRules{}
	if !s.ShouldRender() {
		t.Error("render should default to true")
	}
	off := false
	s.Render = &off
	if s.ShouldRender() {
		t.Error("render:false should disable rendering")
	}
}

func TestLocator_IsZero(t *testing.T) {
	var nilLoc *Locator
	if !nilLoc.IsZero() {
		t.Error("nil locator should be zero")
	}
	if !(&Locator{CSS: "  "}).IsZero() {
		t.Error("whitespace-only locator should be zero")
	}
	if (&Locator{Path: "//a"}).IsZero() {
		t.Error("xpath locator should not be zero")
	}
}
