package dispatch

import (
	"strconv"
	"strings"

	"github.com/rcliao/recall/internal/tokenize"
)

// Query is a normalised query: its tokens in order plus their set.
type Query struct {
	Text   string
	Tokens []string
	set    map[string]struct{}
}

// NewQuery normalises text for matching.
func NewQuery(text string) Query {
	toks := tokenize.Words(text)
	return Query{Text: text, Tokens: toks, set: tokenize.Set(toks)}
}

// Has reports whether the query contains tok.
func (q Query) Has(tok string) bool {
	_, ok := q.set[tok]
	return ok
}

// HasPhrase reports whether the query contains words as a contiguous run.
func (q Query) HasPhrase(words []string) bool {
	if len(words) == 0 || len(words) > len(q.Tokens) {
		return false
	}
outer:
	for i := 0; i+len(words) <= len(q.Tokens); i++ {
		for j, w := range words {
			if q.Tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

// Predicate is a boolean test over a normalised query.
type Predicate interface {
	Match(q Query) bool

	// Specificity is the derived precedence: the more and stricter the
	// conditions, the higher.
	Specificity() int

	String() string

	// clauses returns the predicate in disjunctive normal form.
	clauses() []clause
}

// Token matches queries containing word. word is normalised like queries
// are; it must reduce to exactly one token.
func Token(word string) Predicate {
	toks := tokenize.Words(word)
	if len(toks) != 1 {
		return invalid{reason: "token " + strconv.Quote(word) + " must be a single word"}
	}
	return tokenPred(toks[0])
}

// Phrase matches queries containing the words of text contiguously.
func Phrase(text string) Predicate {
	toks := tokenize.Words(text)
	if len(toks) == 0 {
		return invalid{reason: "phrase " + strconv.Quote(text) + " has no words"}
	}
	return phrasePred(toks)
}

// All matches when every sub-predicate matches.
func All(ps ...Predicate) Predicate {
	if len(ps) == 0 {
		return invalid{reason: "all needs at least one predicate"}
	}
	return allPred(ps)
}

// Any matches when at least one sub-predicate matches.
func Any(ps ...Predicate) Predicate {
	if len(ps) == 0 {
		return invalid{reason: "any needs at least one predicate"}
	}
	return anyPred(ps)
}

// Not matches when p does not.
func Not(p Predicate) Predicate {
	if p == nil {
		return invalid{reason: "not needs a predicate"}
	}
	return notPred{p}
}

type tokenPred string

func (t tokenPred) Match(q Query) bool { return q.Has(string(t)) }
func (t tokenPred) Specificity() int   { return 1 }
func (t tokenPred) String() string     { return string(t) }
func (t tokenPred) clauses() []clause {
	return []clause{{pos: []literal{{words: []string{string(t)}}}}}
}

type phrasePred []string

func (p phrasePred) Match(q Query) bool { return q.HasPhrase(p) }
func (p phrasePred) Specificity() int   { return len(p) + 1 }
func (p phrasePred) String() string     { return strconv.Quote(strings.Join(p, " ")) }
func (p phrasePred) clauses() []clause {
	return []clause{{pos: []literal{{words: p}}}}
}

type allPred []Predicate

func (a allPred) Match(q Query) bool {
	for _, p := range a {
		if !p.Match(q) {
			return false
		}
	}
	return true
}

func (a allPred) Specificity() int {
	n := 0
	for _, p := range a {
		n += p.Specificity()
	}
	return n
}

func (a allPred) String() string { return join(a, " AND ") }

func (a allPred) clauses() []clause {
	out := []clause{{}}
	for _, p := range a {
		out = product(out, p.clauses())
	}
	return out
}

type anyPred []Predicate

func (a anyPred) Match(q Query) bool {
	for _, p := range a {
		if p.Match(q) {
			return true
		}
	}
	return false
}

func (a anyPred) Specificity() int {
	n := a[0].Specificity()
	for _, p := range a[1:] {
		if s := p.Specificity(); s < n {
			n = s
		}
	}
	return n
}

func (a anyPred) String() string { return join(a, " OR ") }

func (a anyPred) clauses() []clause {
	var out []clause
	for _, p := range a {
		out = append(out, p.clauses()...)
	}
	return out
}

type notPred struct{ p Predicate }

func (n notPred) Match(q Query) bool { return !n.p.Match(q) }
func (n notPred) Specificity() int   { return 1 }
func (n notPred) String() string     { return "NOT " + n.p.String() }

// clauses negates the inner DNF: every inner clause must fail, and a clause
// fails when any one of its literals does.
func (n notPred) clauses() []clause {
	out := []clause{{}}
	for _, c := range n.p.clauses() {
		var alts []clause
		for _, l := range c.pos {
			alts = append(alts, clause{neg: []literal{l}})
		}
		for _, l := range c.neg {
			alts = append(alts, clause{pos: []literal{l}})
		}
		out = product(out, alts)
	}
	return out
}

// invalid carries a construction error until the rule set is validated.
type invalid struct{ reason string }

func (i invalid) Match(Query) bool  { return false }
func (i invalid) Specificity() int  { return 0 }
func (i invalid) String() string    { return "<invalid: " + i.reason + ">" }
func (i invalid) clauses() []clause { return nil }

// validate returns the first construction error inside p.
func validate(p Predicate) string {
	switch v := p.(type) {
	case nil:
		return "missing predicate"
	case invalid:
		return v.reason
	case allPred:
		for _, sub := range v {
			if r := validate(sub); r != "" {
				return r
			}
		}
	case anyPred:
		for _, sub := range v {
			if r := validate(sub); r != "" {
				return r
			}
		}
	case notPred:
		return validate(v.p)
	}
	return ""
}

func join(ps []Predicate, sep string) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// literal is a required (or, in neg, forbidden) contiguous run of tokens.
// A single-word literal is a token test.
type literal struct {
	words []string
}

// clause is a conjunction of positive and negative literals.
type clause struct {
	pos []literal
	neg []literal
}

func product(a, b []clause) []clause {
	out := make([]clause, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			out = append(out, clause{
				pos: append(append([]literal(nil), x.pos...), y.pos...),
				neg: append(append([]literal(nil), x.neg...), y.neg...),
			})
		}
	}
	return out
}
