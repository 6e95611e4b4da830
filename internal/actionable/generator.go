package actionable

import (
	"fmt"

	"sales-coach-go/internal/aggregator"
	"sales-coach-go/internal/metrics"
	"sales-coach-go/internal/types"
)

// Thresholds for the coaching rules.
const (
	minCustomerPct   = 45
	maxCustomerPct   = 85
	maxMonologueSec  = 60.0
	minRepQuestions  = 2
	maxInterruptions = 3
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// Generate picks the single most pressing coaching point for a call.
func Generate(m types.CallMetrics, ins aggregator.Insight) ActionCard {
	rep := ins.BySpeaker[types.SpeakerRep]

	switch {
	case m.RepWords+m.CustomerWords == 0:
		return ActionCard{
			Insight: "No speech detected yet",
			Action:  "Wait for the transcript before coaching",
			Impact:  "None until the call is analyzed",
		}
	case m.CustomerPct < minCustomerPct:
		return ActionCard{
			Insight: fmt.Sprintf("Rep carried %d%% of the conversation", m.RepPct),
			Action:  "Ask open questions and pause after each one so the customer talks more",
			Impact:  fmt.Sprintf("Raises talk score from %.1f toward %.0f", m.TalkScore, metrics.MaxTalkScore),
		}
	case rep.LongestTurnSec > maxMonologueSec:
		return ActionCard{
			Insight: fmt.Sprintf("Longest rep monologue ran %s", metrics.FormatTime(rep.LongestTurnSec)),
			Action:  "Break pitches into short points and check for reactions in between",
			Impact:  "Keeps the customer engaged and surfaces objections earlier",
		}
	case ins.Interruptions > maxInterruptions:
		return ActionCard{
			Insight: fmt.Sprintf("%d interruptions detected", ins.Interruptions),
			Action:  "Let the customer finish before responding",
			Impact:  "Builds rapport and avoids missed buying signals",
		}
	case rep.Questions < minRepQuestions:
		return ActionCard{
			Insight: fmt.Sprintf("Rep asked only %d question(s)", rep.Questions),
			Action:  "Prepare discovery questions on pain, budget and timeline",
			Impact:  "Better qualification and fewer missed opportunities",
		}
	case m.CustomerPct > maxCustomerPct:
		return ActionCard{
			Insight: fmt.Sprintf("Customer spoke %d%% of the words", m.CustomerPct),
			Action:  "Summarize what you heard and steer toward a next step",
			Impact:  "Turns a long discovery into a committed follow-up",
		}
	}
	return ActionCard{
		Insight: fmt.Sprintf("Balanced call, talk score %.1f", m.TalkScore),
		Action:  "Keep the same structure and confirm next steps in writing",
		Impact:  "Low immediate intervention",
	}
}
