package consensus

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules holds the field and category lists that steer consensus building:
// which generated-text fields never count against agreement, and which
// categories are circular (diameter serves as both depth and width).
type Rules struct {
	ExcludedTextFields []string `yaml:"excluded_text_fields"`
	CircularCategories []string `yaml:"circular_categories"`

	excluded map[string]struct{}
	circular map[string]struct{}
}

// DefaultRules returns the embedded rule set.
func DefaultRules() *Rules {
	r, err := parseRules(defaultRulesYAML)
	if err != nil {
		// The embedded file is compiled in; a parse failure is a build defect.
		panic(err)
	}
	return r
}

// LoadRules reads a rules file from disk.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "consensus: read rules %s", path)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "consensus: parse rules")
	}
	r.excluded = make(map[string]struct{}, len(r.ExcludedTextFields))
	for _, f := range r.ExcludedTextFields {
		r.excluded[normalizeKey(f)] = struct{}{}
	}
	r.circular = make(map[string]struct{}, len(r.CircularCategories))
	for _, c := range r.CircularCategories {
		r.circular[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return &r, nil
}

// IsExcludedText reports whether a field is a generated free-text field
// excluded from the factual disagreement count.
func (r *Rules) IsExcludedText(field string) bool {
	_, ok := r.excluded[normalizeKey(field)]
	return ok
}

// IsCircular reports whether a category uses diameter for both depth and
// width.
func (r *Rules) IsCircular(category string) bool {
	_, ok := r.circular[strings.ToLower(strings.TrimSpace(category))]
	return ok
}

// normalizeKey canonicalizes an attribute key for lookups: lowercase with
// spaces and dashes folded to underscores.
func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, " ", "_")
	k = strings.ReplaceAll(k, "-", "_")
	return k
}
