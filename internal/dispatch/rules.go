// Package dispatch routes queries to response strategies through a rule
// table ranked by specificity. Rule tables are checked when they are built:
// two rules of equal specificity that can match the same query are rejected.
package dispatch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrAmbiguousRule is matched by errors returned for specificity ties.
var ErrAmbiguousRule = errors.New("dispatch: ambiguous rule")

// ErrInvalidRule is matched by errors returned for malformed rules.
var ErrInvalidRule = errors.New("dispatch: invalid rule")

// AmbiguousRuleError names two rules of equal specificity and a query both match.
type AmbiguousRuleError struct {
	First       string
	Second      string
	Specificity int
	Witness     string
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("dispatch: rules %q and %q both have specificity %d and both match %q",
		e.First, e.Second, e.Specificity, e.Witness)
}

// Is reports whether target is ErrAmbiguousRule.
func (e *AmbiguousRuleError) Is(target error) bool {
	return target == ErrAmbiguousRule
}

// Rule maps a predicate to a strategy.
type Rule struct {
	ID         string
	Predicate  Predicate
	StrategyID string

	// Specificity overrides the derived specificity when positive.
	Specificity int
}

// EffectiveSpecificity returns the explicit specificity or the derived one.
func (r Rule) EffectiveSpecificity() int {
	if r.Specificity > 0 {
		return r.Specificity
	}
	return r.Predicate.Specificity()
}

// RuleSet is an immutable, validated rule table. It is safe for concurrent use.
type RuleSet struct {
	fallback string
	rules    []Rule
	spec     []int
}

// NewRuleSet validates rules and builds a rule set. Queries no rule
// matches go to fallback.
func NewRuleSet(fallback string, rules ...Rule) (*RuleSet, error) {
	if strings.TrimSpace(fallback) == "" {
		return nil, fmt.Errorf("%w: fallback strategy is required", ErrInvalidRule)
	}

	rs := &RuleSet{
		fallback: fallback,
		rules:    make([]Rule, 0, len(rules)),
		spec:     make([]int, 0, len(rules)),
	}
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("%w: rule %d has no id", ErrInvalidRule, i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
		if strings.TrimSpace(r.StrategyID) == "" {
			return nil, fmt.Errorf("%w: rule %q has no strategy", ErrInvalidRule, r.ID)
		}
		if reason := validate(r.Predicate); reason != "" {
			return nil, fmt.Errorf("%w: rule %q: %s", ErrInvalidRule, r.ID, reason)
		}
		if r.Specificity < 0 {
			return nil, fmt.Errorf("%w: rule %q has negative specificity", ErrInvalidRule, r.ID)
		}
		rs.rules = append(rs.rules, r)
		rs.spec = append(rs.spec, r.EffectiveSpecificity())
	}

	for i := range rs.rules {
		for j := i + 1; j < len(rs.rules); j++ {
			if rs.spec[i] != rs.spec[j] {
				continue
			}
			if w, ok := coMatch(rs.rules[i].Predicate, rs.rules[j].Predicate); ok {
				return nil, &AmbiguousRuleError{
					First:       rs.rules[i].ID,
					Second:      rs.rules[j].ID,
					Specificity: rs.spec[i],
					Witness:     w,
				}
			}
		}
	}

	return rs, nil
}

// Fallback returns the strategy used when no rule matches.
func (rs *RuleSet) Fallback() string {
	return rs.fallback
}

// Rules returns the rules in registration order.
func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// coMatch decides whether some query satisfies both a and b, returning one
// such query. Each pair of DNF clauses is tried with a witness made of the
// clauses' required literals separated by fresh filler tokens. A forbidden
// literal shows up in that witness only if every query meeting the
// requirements contains it too, so the witness fails only when the pair is
// unsatisfiable.
func coMatch(a, b Predicate) (string, bool) {
	vocab := make(map[string]bool)
	ca, cb := a.clauses(), b.clauses()
	for _, cs := range [][]clause{ca, cb} {
		for _, c := range cs {
			for _, l := range append(append([]literal(nil), c.pos...), c.neg...) {
				for _, w := range l.words {
					vocab[w] = true
				}
			}
		}
	}

	for _, x := range ca {
		for _, y := range cb {
			text := witness(append(append([]literal(nil), x.pos...), y.pos...), vocab)
			q := NewQuery(text)
			if a.Match(q) && b.Match(q) {
				return text, true
			}
		}
	}
	return "", false
}

func witness(lits []literal, vocab map[string]bool) string {
	n := 0
	filler := func() string {
		for {
			n++
			f := "zz" + strconv.Itoa(n)
			if !vocab[f] {
				return f
			}
		}
	}

	var parts []string
	for i, l := range lits {
		if i > 0 {
			parts = append(parts, filler())
		}
		parts = append(parts, l.words...)
	}
	if len(parts) == 0 {
		parts = append(parts, filler())
	}
	return strings.Join(parts, " ")
}
