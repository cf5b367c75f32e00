package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/pipeline"
	"github.com/use-agent/gleaner/selector"
)

// descriptor file extensions tried, in order, when a site is named
// without one.
var descriptorExts = []string{".json", ".yaml", ".yml"}

// ResolveDescriptorPath locates a descriptor file for ref, which may be a
// path or a bare site name. Candidates are tried in order: ref as given,
// then ref under dir with each known extension. The error names every
// candidate tried so a typo is diagnosable from the message alone.
func ResolveDescriptorPath(dir, ref string) (string, error) {
	var candidates []string
	candidates = append(candidates, ref)
	if filepath.Ext(ref) != "" {
		candidates = append(candidates, filepath.Join(dir, ref))
	} else {
		for _, ext := range descriptorExts {
			candidates = append(candidates, filepath.Join(dir, ref+ext))
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	msg := fmt.Sprintf("site descriptor %q not found; tried %s", ref, strings.Join(candidates, ", "))
	if sites := AvailableSites(dir); len(sites) > 0 {
		msg += fmt.Sprintf("; available sites: %s", strings.Join(sites, ", "))
	}
	return "", models.NewCrawlError(models.ErrCodeConfigInvalid, msg, os.ErrNotExist)
}

// AvailableSites lists the site names (file stems) present in dir.
func AvailableSites(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		for _, known := range descriptorExts {
			if ext == known {
				seen[strings.TrimSuffix(name, ext)] = true
			}
		}
	}
	sites := make([]string, 0, len(seen))
	for s := range seen {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites
}

// LoadDescriptor reads, decodes, and validates one descriptor file. The
// format follows the file extension: JSON or YAML.
func LoadDescriptor(path string) (*models.SiteDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot read site descriptor %s", path), err)
	}

	var d models.SiteDescriptor
	switch ext := filepath.Ext(path); ext {
	case ".json":
		err = json.Unmarshal(data, &d)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &d)
	default:
		return nil, models.NewCrawlError(models.ErrCodeConfigInvalid,
			fmt.Sprintf("unsupported descriptor format %q (want .json, .yaml, or .yml)", ext), nil)
	}
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot parse site descriptor %s", path), err)
	}

	if err := ValidateDescriptor(&d); err != nil {
		return nil, models.NewCrawlError(models.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid site descriptor %s", path), err)
	}
	return &d, nil
}

// LoadSite resolves and loads the descriptor for a named site.
func LoadSite(dir, site string) (*models.SiteDescriptor, error) {
	path, err := ResolveDescriptorPath(dir, site)
	if err != nil {
		return nil, err
	}
	return LoadDescriptor(path)
}

// ValidateDescriptor checks a decoded descriptor eagerly: structural
// requirements, locator syntax, transform names, and pagination settings.
// All failures surface at load time, before any page is fetched.
func ValidateDescriptor(d *models.SiteDescriptor) error {
	if len(d.ResolvedStartURLs()) == 0 {
		return fmt.Errorf("descriptor declares no start URLs")
	}
	if d.Listing == nil {
		return fmt.Errorf("descriptor is missing the listing section")
	}
	if d.Detail == nil {
		return fmt.Errorf("descriptor is missing the detail section")
	}
	if err := validateSection("listing", d.Listing, true); err != nil {
		return err
	}
	return validateSection("detail", d.Detail, false)
}

func validateSection(name string, s *models.SectionRules, listing bool) error {
	if strings.TrimSpace(s.WaitCSS) == "" {
		return fmt.Errorf("%s: wait_css is required", name)
	}
	if listing {
		if s.Cards.IsZero() {
			return fmt.Errorf("%s: cards locator is required", name)
		}
		if err := checkLocator(name+".cards", s.Cards); err != nil {
			return err
		}
		switch s.ChangeDetection {
		case "", models.DetectHref, models.DetectDetach:
		default:
			return fmt.Errorf("%s: change_detection %q is not %q or %q",
				name, s.ChangeDetection, models.DetectHref, models.DetectDetach)
		}
		if s.NextButton != nil && strings.TrimSpace(s.NextButton.CSS) != "" && s.FirstCardCSS == "" {
			return fmt.Errorf("%s: next_button requires first_card_link_css for change detection", name)
		}
		if err := checkLocator(name+".next_button", s.NextButton); err != nil {
			return err
		}
		if err := checkRule(name+".next_anchor", "next_anchor", s.NextAnchor); err != nil {
			return err
		}
	}
	if err := checkRule(name+".title", models.KeyTitle, s.Title); err != nil {
		return err
	}
	if err := checkRule(name+".detail_link", models.KeyDetailLink, s.DetailLink); err != nil {
		return err
	}
	for key, rule := range s.Fields {
		if err := checkRule(name+".fields."+key, key, rule); err != nil {
			return err
		}
	}
	return nil
}

func checkRule(where, key string, rule *models.FieldRule) error {
	if rule == nil {
		return nil
	}
	for _, tname := range rule.Transforms {
		if !pipeline.Known(tname) {
			return fmt.Errorf("%s: unknown transform %q (known: %s)",
				where, tname, strings.Join(pipeline.Names(), ", "))
		}
	}
	if rule.HasDefault {
		// A default short-circuits extraction; the locator is never used.
		return nil
	}
	return checkLocator(where, &rule.Locator)
}

func checkLocator(where string, loc *models.Locator) error {
	if loc.IsZero() {
		return nil
	}
	if err := selector.CompileCheck(loc); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}
