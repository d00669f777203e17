package transform

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gnana997/tsrewrite/pkg/parser"
	"github.com/gnana997/tsrewrite/pkg/query"
)

// Rule is one named rewrite recipe.
//
// Example:
//
//	rules:
//	  - name: member-to-arrow
//	    language: cpp
//	    files: ["**/*.cpp", "**/*.h"]
//	    query: |
//	      (field_expression argument: (_) @arg "." field: (_) @field) @from
//	    template: "@arg->@field"
//	    max_passes: 10
type Rule struct {
	Name              string   `yaml:"name" validate:"required"`
	Language          string   `yaml:"language" validate:"required,language"`
	Files             []string `yaml:"files" validate:"dive,required,glob"`
	Query             string   `yaml:"query" validate:"required"`
	Template          string   `yaml:"template"`
	WholeMatchCapture string   `yaml:"whole_match_capture"`
	MaxPasses         int      `yaml:"max_passes" validate:"gte=0"`
}

// RuleSet is an ordered list of rules as read from a recipe file.
type RuleSet struct {
	Rules []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

var ruleValidate *validator.Validate

func init() {
	ruleValidate = validator.New()

	_ = ruleValidate.RegisterValidation("language", func(fl validator.FieldLevel) bool {
		return parser.ParseLanguageString(fl.Field().String()) != parser.LanguageUnknown
	})
	_ = ruleValidate.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
		return doublestar.ValidatePattern(fl.Field().String())
	})
}

// ParseRules decodes and validates a YAML rule recipe.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := ruleValidate.Struct(&rs); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	seen := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if seen[r.Name] {
			return nil, fmt.Errorf("invalid rules: duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return &rs, nil
}

// CompiledRule is a rule whose query has been compiled.
type CompiledRule struct {
	Rule
	lang  parser.Language
	query *query.Query
}

// CompiledQuery returns the compiled query of the rule.
func (r *CompiledRule) CompiledQuery() *query.Query {
	return r.query
}

// Applies reports whether the rule targets path. With file globs the path
// must match one of them; otherwise the language detected from the path
// extension must be the rule's language.
func (r *CompiledRule) Applies(path string) bool {
	slashed := parser.ToSlash(path)
	if len(r.Files) == 0 {
		return parser.DetectLanguage(slashed) == r.lang
	}
	for _, pattern := range r.Files {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
	}
	return false
}

// Options returns the transformation options configured by the rule.
func (r *CompiledRule) Options() []Option {
	return []Option{
		WithWholeMatchCapture(r.WholeMatchCapture),
		WithMaxPasses(r.MaxPasses),
	}
}

// CompiledRules is a rule set ready to apply.
type CompiledRules struct {
	Rules []*CompiledRule
}

// Compile compiles every rule query through m so identical queries are
// shared between rule sets.
func (rs *RuleSet) Compile(m *query.Manager) (*CompiledRules, error) {
	compiled := &CompiledRules{Rules: make([]*CompiledRule, 0, len(rs.Rules))}
	for _, r := range rs.Rules {
		lang := parser.ParseLanguageString(r.Language)
		q, err := m.Get(lang, r.Query)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		compiled.Rules = append(compiled.Rules, &CompiledRule{Rule: r, lang: lang, query: q})
	}
	return compiled, nil
}

// Apply runs every rule that targets path over source, in order, each on
// the output of the previous one. It returns the final text and the names
// of the rules that ran.
func (c *CompiledRules) Apply(p Parser, path, source string, opts ...Option) (string, []string, error) {
	var ran []string
	text := source
	for _, r := range c.Rules {
		if !r.Applies(path) {
			continue
		}

		ruleOpts := append(append([]Option{}, opts...), r.Options()...)
		out, err := New(text, p, r.query, r.Template, ruleOpts...).Run()
		if err != nil {
			return "", ran, fmt.Errorf("rule %q on %s: %w", r.Name, path, err)
		}
		text = out
		ran = append(ran, r.Name)
	}
	return text, ran, nil
}
