package aggregator

import (
	"strings"

	"sales-coach-go/internal/types"
)

// SpeakerStats summarizes one side of the conversation.
type SpeakerStats struct {
	Turns          int     `json:"turns"`
	Words          int     `json:"words"`
	TalkSeconds    float64 `json:"talk_seconds"`
	LongestTurnSec float64 `json:"longest_turn_seconds"`
	Questions      int     `json:"questions"`
}

type Insight struct {
	BySpeaker map[types.Speaker]SpeakerStats `json:"by_speaker"`
	// Interruptions counts turns that start before the previous speaker's
	// segment has ended.
	Interruptions int `json:"interruptions"`
}

// Aggregate folds consecutive segments of the same speaker into turns and
// tallies per-speaker statistics.
func Aggregate(segments []types.TranscriptSegment) Insight {
	stats := map[types.Speaker]SpeakerStats{}
	interruptions := 0

	var (
		current   types.Speaker
		turnStart float64
		prevEnd   float64
	)
	closeTurn := func(end float64) {
		if current == "" {
			return
		}
		st := stats[current]
		if d := end - turnStart; d > st.LongestTurnSec {
			st.LongestTurnSec = d
		}
		stats[current] = st
	}

	for i, seg := range segments {
		st := stats[seg.Speaker]
		st.Words += len(strings.Fields(seg.Text))
		if d := seg.EndTime - seg.StartTime; d > 0 {
			st.TalkSeconds += d
		}
		if strings.HasSuffix(strings.TrimSpace(seg.Text), "?") {
			st.Questions++
		}

		if i == 0 || seg.Speaker != current {
			closeTurn(prevEnd)
			if i > 0 && seg.StartTime < prevEnd {
				interruptions++
			}
			st.Turns++
			current = seg.Speaker
			turnStart = seg.StartTime
		}
		stats[seg.Speaker] = st
		prevEnd = seg.EndTime
	}
	closeTurn(prevEnd)

	return Insight{BySpeaker: stats, Interruptions: interruptions}
}
