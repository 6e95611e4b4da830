// Package metrics derives coaching statistics from a transcript. Everything
// here is pure and total over empty input.
package metrics

import (
	"fmt"
	"math"
	"strings"

	"sales-coach-go/internal/types"
)

const (
	// MaxTalkScore caps TalkScore.
	MaxTalkScore = 10.0
	// TargetCustomerPct is where TalkScore peaks (target band roughly 60–70%).
	TargetCustomerPct = 65.0
	// pctPerPoint is how many percentage points away from target cost one point.
	pctPerPoint = 3.5
)

// Score bands, matching the dashboard score bar colors.
const (
	BandGood = "good"
	BandWarn = "warn"
	BandPoor = "poor"
)

// FormatTime renders seconds as M:SS, flooring fractions. Negative and NaN
// input clamps to 0:00.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	whole := int64(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", whole/60, whole%60)
}

// SpeakerWordCounts sums whitespace-delimited tokens per speaker. Segments
// from any other speaker are ignored.
func SpeakerWordCounts(segments []types.TranscriptSegment) (repWords, customerWords int) {
	for _, seg := range segments {
		n := len(strings.Fields(seg.Text))
		switch seg.Speaker {
		case types.SpeakerRep:
			repWords += n
		case types.SpeakerCustomer:
			customerWords += n
		}
	}
	return repWords, customerWords
}

// TalkRatioPercentages rounds each share independently, so the two values
// may not add up to exactly 100.
func TalkRatioPercentages(repWords, customerWords int) (repPct, customerPct int) {
	total := repWords + customerWords
	if total < 1 {
		total = 1
	}
	repPct = int(math.Round(float64(repWords) / float64(total) * 100))
	customerPct = int(math.Round(float64(customerWords) / float64(total) * 100))
	return repPct, customerPct
}

// TalkScore is triangular around TargetCustomerPct, clamped to [0, 10].
func TalkScore(customerPct int) float64 {
	score := MaxTalkScore - math.Abs(float64(customerPct)-TargetCustomerPct)/pctPerPoint
	return math.Max(0, math.Min(MaxTalkScore, score))
}

// Band classifies a talk score for display.
func Band(score float64) string {
	pct := score * 100 / MaxTalkScore
	switch {
	case pct >= 70:
		return BandGood
	case pct >= 45:
		return BandWarn
	default:
		return BandPoor
	}
}

// Summarize computes the full set of talk metrics for a transcript. A nil
// transcript yields zero counts and a 0:00 duration.
func Summarize(t *types.Transcript) types.CallMetrics {
	if t == nil {
		t = &types.Transcript{}
	}
	rep, cust := SpeakerWordCounts(t.Segments)
	repPct, custPct := TalkRatioPercentages(rep, cust)
	score := math.Round(TalkScore(custPct)*10) / 10

	return types.CallMetrics{
		RepWords:      rep,
		CustomerWords: cust,
		RepPct:        repPct,
		CustomerPct:   custPct,
		TalkScore:     score,
		Band:          Band(score),
		Duration:      FormatTime(t.Duration),
		WordCount:     t.WordCount,
		Segments:      len(t.Segments),
	}
}
