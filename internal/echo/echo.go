// Package echo detects retrieved passages that merely repeat the query and
// replaces them with the information they add.
package echo

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/tokenize"
)

// Outcome classifies how much of the query a candidate repeats.
type Outcome int

const (
	Novel Outcome = iota
	PartialOverlap
	Verbatim
)

func (o Outcome) String() string {
	switch o {
	case PartialOverlap:
		return "partial_overlap"
	case Verbatim:
		return "verbatim"
	default:
		return "novel"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "novel":
		*o = Novel
	case "partial_overlap":
		*o = PartialOverlap
	case "verbatim":
		*o = Verbatim
	default:
		return fmt.Errorf("unknown echo outcome %q", b)
	}
	return nil
}

// Assessment is the outcome together with the overlap ratio behind it.
type Assessment struct {
	Outcome Outcome `json:"outcome"`
	Ratio   float64 `json:"ratio"`
}

// Result is what a caller should hand on in place of the candidate.
type Result struct {
	Assessment
	Text        string `json:"text"`
	Substituted bool   `json:"substituted"`
}

// Filter assesses and rewrites candidates. It holds only thresholds and is
// safe for concurrent use.
type Filter struct {
	partial  float64
	verbatim float64
	maxChars int
}

// NewFilter builds a filter from configuration.
func NewFilter(cfg config.EchoConfig) (*Filter, error) {
	if cfg.PartialThreshold < 0 || cfg.PartialThreshold > 1 || cfg.VerbatimThreshold < 0 || cfg.VerbatimThreshold > 1 {
		return nil, fmt.Errorf("%w: echo thresholds must be within [0,1]", config.ErrConfiguration)
	}
	if cfg.PartialThreshold > cfg.VerbatimThreshold {
		return nil, fmt.Errorf("%w: partial threshold %.2f above verbatim threshold %.2f",
			config.ErrConfiguration, cfg.PartialThreshold, cfg.VerbatimThreshold)
	}
	if cfg.MaxExcerptChars <= 0 {
		return nil, fmt.Errorf("%w: max excerpt chars must be positive", config.ErrConfiguration)
	}
	return &Filter{
		partial:  cfg.PartialThreshold,
		verbatim: cfg.VerbatimThreshold,
		maxChars: cfg.MaxExcerptChars,
	}, nil
}

var defaultFilter = func() *Filter {
	f, err := NewFilter(config.DefaultConfig().Echo)
	if err != nil {
		panic(err)
	}
	return f
}()

// Default returns a filter with the default thresholds.
func Default() *Filter {
	return defaultFilter
}

// Tokens returns the normalised word tokens of text.
func Tokens(text string) []string {
	return tokenize.Words(text)
}

// Assess classifies candidate against query with the default thresholds.
func Assess(query, candidate string) Assessment {
	return defaultFilter.Assess(query, candidate)
}

// Assess classifies candidate by the share of distinct query tokens it
// contains. An empty query overlaps nothing.
func (f *Filter) Assess(query, candidate string) Assessment {
	return f.assess(tokenize.Set(Tokens(query)), tokenize.Set(Tokens(candidate)))
}

func (f *Filter) assess(q, c map[string]struct{}) Assessment {
	if len(q) == 0 {
		return Assessment{Outcome: Novel}
	}
	shared := 0
	for tok := range q {
		if _, ok := c[tok]; ok {
			shared++
		}
	}
	ratio := float64(shared) / float64(len(q))

	switch {
	case ratio > f.verbatim:
		return Assessment{Outcome: Verbatim, Ratio: ratio}
	case ratio > f.partial:
		return Assessment{Outcome: PartialOverlap, Ratio: ratio}
	default:
		return Assessment{Outcome: Novel, Ratio: ratio}
	}
}

// Apply assesses candidate and returns the text to use in its place.
// Novel candidates pass through. Overlapping ones are reduced to the
// sentences that add information the query lacks. A verbatim echo is never
// returned unchanged.
func (f *Filter) Apply(query, candidate string) Result {
	qset := tokenize.Set(Tokens(query))
	a := f.assess(qset, tokenize.Set(Tokens(candidate)))

	res := Result{Assessment: a, Text: candidate}
	switch a.Outcome {
	case PartialOverlap:
		if kf := f.keyFacts(qset, candidate); kf != "" {
			res.Text = kf
		} else {
			res.Text = excerpt(candidate, f.maxChars)
		}
	case Verbatim:
		res.Text = f.verbatimText(qset, candidate)
	}
	res.Substituted = res.Text != candidate
	return res
}

func (f *Filter) verbatimText(qset map[string]struct{}, candidate string) string {
	same := strings.TrimSpace(candidate)
	if kf := f.keyFacts(qset, candidate); kf != "" && kf != same {
		return kf
	}
	if words := novelWords(qset, candidate); len(words) > 0 {
		if text := excerpt(strings.Join(words, " "), f.maxChars); text != same {
			return text
		}
	}

	// Nothing new to say: a shortened excerpt.
	limit := utf8.RuneCountInString(same) / 2
	if limit > f.maxChars {
		limit = f.maxChars
	}
	if limit < 1 {
		// too short to shorten
		return ellipsis
	}
	return excerpt(same, limit)
}

type sentence struct {
	idx   int
	text  string
	novel int
}

// keyFacts keeps the sentences carrying the most tokens absent from the
// query, in their original order, within the excerpt bound.
func (f *Filter) keyFacts(qset map[string]struct{}, candidate string) string {
	var ranked []sentence
	for i, s := range splitSentences(candidate) {
		n := 0
		for tok := range tokenize.Set(Tokens(s)) {
			if _, ok := qset[tok]; !ok {
				n++
			}
		}
		if n > 0 {
			ranked = append(ranked, sentence{idx: i, text: s, novel: n})
		}
	}
	if len(ranked) == 0 {
		return ""
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].novel > ranked[j].novel
	})

	var picked []sentence
	used := 0
	for _, s := range ranked {
		n := utf8.RuneCountInString(s.text)
		if len(picked) > 0 {
			n++ // joining space
		}
		if used+n > f.maxChars {
			continue
		}
		picked = append(picked, s)
		used += n
	}
	if len(picked) == 0 {
		return excerpt(ranked[0].text, f.maxChars)
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i].idx < picked[j].idx })
	parts := make([]string, len(picked))
	for i, s := range picked {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}

// novelWords returns the words of text whose token the query lacks, in order.
func novelWords(qset map[string]struct{}, text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		toks := Tokens(w)
		if len(toks) == 0 {
			continue
		}
		if _, ok := qset[toks[0]]; !ok {
			out = append(out, w)
		}
	}
	return out
}

// splitSentences splits on terminal punctuation followed by whitespace and
// on line breaks.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range runes {
		switch {
		case r == '\n':
			flush(i + 1)
		case r == '.' || r == '!' || r == '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return out
}

const ellipsis = "…"

// excerpt cuts text to at most limit runes on a word boundary and marks the
// cut with an ellipsis. Text within the limit is returned unchanged.
func excerpt(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}

	cut := runes[:limit]
	if !unicode.IsSpace(runes[limit]) {
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	out := strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if out == "" {
		out = string(runes[:limit])
	}
	return out + ellipsis
}
