// Copyright 2025 James Ross
package enrich

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ClassifyRule is one priority-ordered, first-match-wins entry in the
// platform/device/bot classification table. The table is configuration
// data, not code, per spec.md §4.2.
type ClassifyRule struct {
	Pattern      string `yaml:"pattern"`
	MatchKind    string `yaml:"match"` // "substring" | "regex"
	Priority     int    `yaml:"priority"`
	Platform     string `yaml:"platform,omitempty"`
	Device       string `yaml:"device,omitempty"`
	Bot          string `yaml:"bot,omitempty"`
	OS           string `yaml:"os,omitempty"`
	Browser      string `yaml:"browser,omitempty"`
	VersionRegex string `yaml:"version_regex,omitempty"` // first capture group becomes platform_version

	compiled        *regexp.Regexp
	compiledVersion *regexp.Regexp
}

// APIRule maps a normalized-URI prefix or regex to a low-cardinality
// category. First match wins; unmatched URIs map to "other".
type APIRule struct {
	Pattern   string `yaml:"pattern"`
	MatchKind string `yaml:"match"`
	Priority  int    `yaml:"priority"`
	Category  string `yaml:"category"`

	compiled *regexp.Regexp
}

// RuleSet is the compiled, priority-sorted classification configuration.
type RuleSet struct {
	Classify []ClassifyRule
	API      []APIRule
}

//go:embed rulesdata/default_rules.yaml
var defaultRulesYAML []byte

//go:embed rulesdata/rules_schema.json
var rulesSchemaJSON []byte

type rulesFile struct {
	Classify []ClassifyRule `yaml:"classify"`
	API      []APIRule      `yaml:"api"`
}

// LoadRules reads classification rules from path, or falls back to the
// embedded default set when path is empty. Every rule document is
// validated against a JSON Schema before being compiled — a malformed
// operator-supplied rules file is a configuration error (exit 2), not a
// silent misclassification at runtime.
func LoadRules(path string) (*RuleSet, error) {
	var raw []byte
	if path == "" {
		raw = defaultRulesYAML
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		raw = b
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if err := validateAgainstSchema(generic); err != nil {
		return nil, fmt.Errorf("rules file failed schema validation: %w", err)
	}

	var rf rulesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("decode rules yaml: %w", err)
	}

	rs := &RuleSet{Classify: rf.Classify, API: rf.API}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return rs, nil
}

func validateAgainstSchema(doc any) error {
	// gojsonschema works over JSON-shaped data (map[string]any etc.), which
	// is exactly what yaml.v3 decodes generic YAML into.
	schemaLoader := gojsonschema.NewBytesLoader(rulesSchemaJSON)
	docLoader := gojsonschema.NewGoLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return err
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

func (rs *RuleSet) compile() error {
	for i := range rs.Classify {
		r := &rs.Classify[i]
		if r.MatchKind == "regex" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return fmt.Errorf("classify rule %q: %w", r.Pattern, err)
			}
			r.compiled = re
		}
		if r.VersionRegex != "" {
			re, err := regexp.Compile(r.VersionRegex)
			if err != nil {
				return fmt.Errorf("classify rule %q version_regex: %w", r.Pattern, err)
			}
			r.compiledVersion = re
		}
	}
	for i := range rs.API {
		r := &rs.API[i]
		if r.MatchKind == "regex" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return fmt.Errorf("api rule %q: %w", r.Pattern, err)
			}
			r.compiled = re
		}
	}
	sort.SliceStable(rs.Classify, func(i, j int) bool { return rs.Classify[i].Priority < rs.Classify[j].Priority })
	sort.SliceStable(rs.API, func(i, j int) bool { return rs.API[i].Priority < rs.API[j].Priority })
	return nil
}

func (r ClassifyRule) matches(userAgent string) bool {
	if r.MatchKind == "regex" {
		return r.compiled != nil && r.compiled.MatchString(userAgent)
	}
	return strings.Contains(strings.ToLower(userAgent), strings.ToLower(r.Pattern))
}

func (r APIRule) matches(normalizedURI string) bool {
	if r.MatchKind == "regex" {
		return r.compiled != nil && r.compiled.MatchString(normalizedURI)
	}
	return strings.HasPrefix(normalizedURI, r.Pattern)
}

// Classify returns platform, device type, bot type, OS type, browser type,
// and platform_version for a user agent, first-match-wins over the
// priority-ordered table. Unmatched user agents yield
// ("Unknown", "unknown", "", "Unknown", "Unknown", "").
func (rs *RuleSet) Classify(userAgent string) (platform, device, bot, os, browser, version string) {
	if rs == nil {
		return "Unknown", "unknown", "", "Unknown", "Unknown", ""
	}
	for _, r := range rs.Classify {
		if r.matches(userAgent) {
			d := r.Device
			if d == "" {
				d = "unknown"
			}
			return orDefault(r.Platform, "Unknown"), d, r.Bot,
				orDefault(r.OS, "Unknown"), orDefault(r.Browser, "Unknown"),
				r.extractVersion(userAgent)
		}
	}
	return "Unknown", "unknown", "", "Unknown", "Unknown", ""
}

// extractVersion applies the rule's version_regex, if any, against the raw
// user agent and returns its first capture group.
func (r ClassifyRule) extractVersion(userAgent string) string {
	if r.compiledVersion == nil {
		return ""
	}
	m := r.compiledVersion.FindStringSubmatch(userAgent)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// APICategory returns the low-cardinality category for a normalized URI.
func (rs *RuleSet) APICategory(normalizedURI string) string {
	if rs == nil {
		return "other"
	}
	for _, r := range rs.API {
		if r.matches(normalizedURI) {
			return r.Category
		}
	}
	return "other"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
