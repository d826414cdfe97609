package extract

import (
	"fmt"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
)

// FieldExtractor turns recognized text into fields. Implementations never fail:
// unmatched parameters carry constants.NotFound.
type FieldExtractor interface {
	Extract(text string) entity.ExtractedFields
}

// Extractor applies an ordered rule table. It holds no mutable state and is
// safe for concurrent use.
type Extractor struct {
	rules []Rule
}

// New returns an Extractor over rules, or over DefaultRules when none are given.
func New(rules ...Rule) (*Extractor, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	seen := make(map[constants.Parameter]struct{}, len(rules))
	for _, r := range rules {
		if r.Pattern == nil {
			return nil, fmt.Errorf("rule %s: nil pattern", r.Parameter)
		}
		if r.Pattern.NumSubexp() < 1 {
			return nil, fmt.Errorf("rule %s: pattern has no capture group", r.Parameter)
		}
		if _, dup := seen[r.Parameter]; dup {
			return nil, fmt.Errorf("rule %s: duplicate parameter", r.Parameter)
		}
		seen[r.Parameter] = struct{}{}
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Extractor{rules: cp}, nil
}

// Default is an Extractor over DefaultRules.
func Default() *Extractor {
	e, _ := New()
	return e
}

// Parameters lists the parameters this extractor emits, in order.
func (e *Extractor) Parameters() []constants.Parameter {
	out := make([]constants.Parameter, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Parameter
	}
	return out
}

// Extract runs every rule independently over text; the leftmost match of a
// rule wins and overlapping matches across rules are allowed.
func (e *Extractor) Extract(text string) entity.ExtractedFields {
	out := make(entity.ExtractedFields, 0, len(e.rules))
	for _, r := range e.rules {
		val := constants.NotFound
		if m := r.Pattern.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			val = m[1]
		}
		out = append(out, entity.Field{Parameter: r.Parameter, Value: val})
	}
	return out
}
