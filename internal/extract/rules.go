package extract

import (
	"fmt"
	"regexp"

	"github.com/joseph-ayodele/blood-report-parser/constants"
)

// CaptureKind selects the value token captured after a label.
type CaptureKind int

const (
	// Decimal captures digits with an optional single fractional part: 13, 13.5.
	Decimal CaptureKind = iota
	// GroupedInteger captures digits optionally grouped with commas: 250000, 250,000.
	GroupedInteger
)

func (k CaptureKind) pattern() string {
	switch k {
	case GroupedInteger:
		return `(\d+(?:,\d+)*)`
	default:
		return `(\d+(?:\.\d+)?)`
	}
}

func (k CaptureKind) String() string {
	switch k {
	case Decimal:
		return "decimal"
	case GroupedInteger:
		return "grouped-integer"
	}
	return fmt.Sprintf("CaptureKind(%d)", int(k))
}

// Rule binds a parameter to the pattern that finds its value.
type Rule struct {
	Parameter constants.Parameter
	Pattern   *regexp.Regexp
	Capture   CaptureKind
}

// NewRule compiles a case-insensitive rule: label, any run of ':' or
// whitespace, then the capture. label is a regexp fragment.
func NewRule(p constants.Parameter, label string, kind CaptureKind) (Rule, error) {
	re, err := regexp.Compile(`(?i)` + label + `[:\s]*` + kind.pattern())
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", p, err)
	}
	return Rule{Parameter: p, Pattern: re, Capture: kind}, nil
}

// MustRule is NewRule for static tables.
func MustRule(p constants.Parameter, label string, kind CaptureKind) Rule {
	r, err := NewRule(p, label, kind)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultRules = []Rule{
	MustRule(constants.Hemoglobin, `Hemoglobin`, Decimal),
	MustRule(constants.RBC, `RBC`, Decimal),
	MustRule(constants.WBC, `WBC`, Decimal),
	MustRule(constants.PlateletCount, `Platelet\s*Count`, GroupedInteger),
}

// DefaultRules returns the blood count rule table in output order.
// Add a parameter by appending a row here (and its name in constants).
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
