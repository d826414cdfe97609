package ocr

import (
	"regexp"
	"strings"
)

var (
	reLabel   = regexp.MustCompile(`\b(hemoglobin|haemoglobin|hgb|rbc|wbc|platelet)`)
	reUnit    = regexp.MustCompile(`g/dl|/cumm|/µl|/ul|10\^\d|x10|lakh|mill`)
	reDecimal = regexp.MustCompile(`\b\d+\.\d+\b`)
)

// heuristicConfidence scores decoded text by how much it looks like a blood
// count report.
func heuristicConfidence(txt string) float32 {
	txtL := strings.ToLower(txt)
	score := float32(0.2)
	if n := len(reLabel.FindAllString(txtL, -1)); n > 0 {
		score += 0.1 * float32(min(n, 3))
	}
	if reUnit.MatchString(txtL) {
		score += 0.15
	}
	if reDecimal.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blendConfidence prefers the engine's own score when it has one.
func blendConfidence(engine, heur float32) float32 {
	conf := heur
	if engine > 0 {
		conf = 0.7*engine + 0.3*heur
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
