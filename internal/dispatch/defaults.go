package dispatch

import (
	_ "embed"
)

//go:embed default_rules.yaml
var defaultRules []byte

// DefaultRulesYAML returns the built-in rule table source.
func DefaultRulesYAML() []byte {
	return append([]byte(nil), defaultRules...)
}

// Default returns the built-in rule table. It panics if the embedded table
// fails validation.
func Default() *RuleSet {
	rs, err := Parse(defaultRules)
	if err != nil {
		panic(err)
	}
	return rs
}
