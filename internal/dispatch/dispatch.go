package dispatch

// Decision is the outcome of dispatching one query.
type Decision struct {
	StrategyID  string   `json:"strategy_id"`
	RuleID      string   `json:"rule_id,omitempty"`
	Specificity int      `json:"specificity"`
	Matched     []string `json:"matched,omitempty"`
}

// Fallback reports whether no rule matched.
func (d Decision) Fallback() bool {
	return d.RuleID == ""
}

// Dispatch routes text to a strategy. Every matching rule is listed in
// Matched; the most specific one wins. Validation guarantees the winner is
// unique.
func (rs *RuleSet) Dispatch(text string) Decision {
	return rs.DispatchQuery(NewQuery(text))
}

// DispatchQuery is Dispatch for an already normalised query.
func (rs *RuleSet) DispatchQuery(q Query) Decision {
	d := Decision{StrategyID: rs.fallback}
	best := -1
	for i, r := range rs.rules {
		if !r.Predicate.Match(q) {
			continue
		}
		d.Matched = append(d.Matched, r.ID)
		if rs.spec[i] > best {
			best = rs.spec[i]
			d.StrategyID = r.StrategyID
			d.RuleID = r.ID
			d.Specificity = rs.spec[i]
		}
	}
	return d
}
