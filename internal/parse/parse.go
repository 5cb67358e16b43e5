package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dukerupert/accountable/internal/model"
)

var (
	repsLabeled    = regexp.MustCompile(`(?i)workout[:\s\-]*([\d.,kK]+)`)
	repsSuffixed   = regexp.MustCompile(`(?i)(\d[\d.,kK]*)\s*reps?\b`)
	stepsLabeled   = regexp.MustCompile(`(?i)steps?[:\s\-]*([\d.,kK]+)`)
	stepsSuffixed  = regexp.MustCompile(`(?i)([\d.,kK]+)\s*steps?\b`)
	workLabeled    = regexp.MustCompile(`(?i)work(?:ing)?[:\s\-]*([\d.,]+)\s*(?:h|hr|hrs|hours?)`)
	workSuffixed   = regexp.MustCompile(`(?i)([\d.,]+)\s*(?:h|hr|hrs|hours?)\s*(?:work|working)?\b`)
	meditationSkip = regexp.MustCompile(`\b(no|not|skip|skipped)\b.*meditat`)
	kSuffixed      = regexp.MustCompile(`^([\d.,]+)\s*k$`)
)

// Metrics extracts structured metrics from a free-text daily log. Anything
// it cannot read is left unset; it never fails.
//
//	"workout: 200, steps 16k, work 6h, meditated"
func Metrics(text string) model.Metrics {
	var m model.Metrics

	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "meditat") && !meditationSkip.MatchString(lowered) {
		m.Meditated = true
	}

	if s := firstGroup(text, repsLabeled, repsSuffixed); s != "" {
		m.Reps = Count(s)
	}
	if s := firstGroup(text, stepsLabeled, stepsSuffixed); s != "" {
		m.Steps = Count(s)
	}
	if s := firstGroup(text, workLabeled, workSuffixed); s != "" {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil {
			m.WorkHours = &v
		}
	}

	return m
}

// Count parses counts like "15000", "15,000" or "12.5k". Returns nil when
// the text is not a number.
func Count(s string) *int {
	s = strings.ToLower(strings.TrimSpace(s))

	if g := kSuffixed.FindStringSubmatch(s); g != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(g[1], ",", "."), 64)
		if err != nil {
			return nil
		}
		return toInt(v * 1000)
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil
	}
	return toInt(v)
}

// toInt truncates v, saturating at the int range. NaN is not a count.
func toInt(v float64) *int {
	var n int
	switch {
	case math.IsNaN(v):
		return nil
	case v >= math.MaxInt:
		n = math.MaxInt
	case v <= math.MinInt:
		n = math.MinInt
	default:
		n = int(math.Trunc(v))
	}
	return &n
}

func firstGroup(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if g := re.FindStringSubmatch(text); g != nil {
			return g[1]
		}
	}
	return ""
}
