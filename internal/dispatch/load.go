package dispatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a rule table:
//
//	fallback: general
//	rules:
//	  - id: career_values
//	    strategy: values_reflection
//	    match:
//	      all: [career, values]
//
// A match node is a bare word (a token), or a map with exactly one of
// token, phrase, all, any or not.
type File struct {
	Fallback string     `yaml:"fallback"`
	Rules    []RuleSpec `yaml:"rules"`
}

// RuleSpec is one rule as written in YAML.
type RuleSpec struct {
	ID          string   `yaml:"id"`
	Strategy    string   `yaml:"strategy"`
	Specificity int      `yaml:"specificity,omitempty"`
	Match       NodeSpec `yaml:"match"`
}

// NodeSpec is a predicate as written in YAML.
type NodeSpec struct {
	Token  string     `yaml:"token,omitempty"`
	Phrase string     `yaml:"phrase,omitempty"`
	All    []NodeSpec `yaml:"all,omitempty"`
	Any    []NodeSpec `yaml:"any,omitempty"`
	Not    *NodeSpec  `yaml:"not,omitempty"`
}

// UnmarshalYAML accepts a bare scalar as shorthand for a token.
func (n *NodeSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*n = NodeSpec{Token: value.Value}
		return nil
	}
	type plain NodeSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*n = NodeSpec(p)
	return nil
}

// Predicate converts the node into a predicate.
func (n NodeSpec) Predicate() (Predicate, error) {
	set := 0
	for _, ok := range []bool{n.Token != "", n.Phrase != "", n.All != nil, n.Any != nil, n.Not != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("match node needs exactly one of token, phrase, all, any, not (has %d)", set)
	}

	switch {
	case n.Token != "":
		return Token(n.Token), nil
	case n.Phrase != "":
		return Phrase(n.Phrase), nil
	case n.Not != nil:
		p, err := n.Not.Predicate()
		if err != nil {
			return nil, err
		}
		return Not(p), nil
	}

	subs := n.All
	if n.Any != nil {
		subs = n.Any
	}
	ps := make([]Predicate, 0, len(subs))
	for _, s := range subs {
		p, err := s.Predicate()
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if n.Any != nil {
		return Any(ps...), nil
	}
	return All(ps...), nil
}

// Parse builds a validated rule set from YAML.
func Parse(data []byte) (*RuleSet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return f.RuleSet()
}

// RuleSet converts and validates the file.
func (f File) RuleSet() (*RuleSet, error) {
	rules := make([]Rule, 0, len(f.Rules))
	for i, rs := range f.Rules {
		p, err := rs.Match.Predicate()
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRule, i, rs.ID, err)
		}
		rules = append(rules, Rule{
			ID:          rs.ID,
			Predicate:   p,
			StrategyID:  rs.Strategy,
			Specificity: rs.Specificity,
		})
	}
	return NewRuleSet(f.Fallback, rules...)
}

// LoadFile reads and validates a YAML rule table.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Load returns the rule table at path, or the built-in table when path is empty.
func Load(path string) (*RuleSet, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
