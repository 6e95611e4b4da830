// Package render prints a session view as plain text for the terminal.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"sales-coach-go/internal/actionable"
	"sales-coach-go/internal/aggregator"
	"sales-coach-go/internal/metrics"
	"sales-coach-go/internal/session"
	"sales-coach-go/internal/types"
)

const rule = "----------------------------------------"

// SpeakerLabel is the display name of a speaker.
func SpeakerLabel(s types.Speaker) string {
	switch s {
	case types.SpeakerRep:
		return "Sales Rep"
	case types.SpeakerCustomer:
		return "Customer"
	default:
		return string(s)
	}
}

// StatusLine is a one-line summary suited to repeated printing while polling.
func StatusLine(v session.View) string {
	if v.JobID == "" {
		return "no job"
	}
	line := fmt.Sprintf("[%s] %s %d%%", v.JobID, v.Status, v.Progress)
	if v.CurrentStep != "" {
		line += " - " + v.CurrentStep
	}
	if v.Error != "" {
		line += " (" + v.Error + ")"
	}
	return line
}

// View writes the full report for v.
func View(w io.Writer, v session.View) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "AI Sales Coach")
	fmt.Fprintln(bw, rule)
	if v.JobID != "" {
		fmt.Fprintf(bw, "Job:      %s\n", v.JobID)
		fmt.Fprintf(bw, "Status:   %s\n", v.Status)
		fmt.Fprintf(bw, "Progress: %d%%\n", v.Progress)
		if v.CurrentStep != "" {
			fmt.Fprintf(bw, "Step:     %s\n", v.CurrentStep)
		}
	}
	if v.Loading {
		fmt.Fprintln(bw, "Processing audio...")
	}
	if v.Error != "" {
		fmt.Fprintf(bw, "Error:    %s\n", v.Error)
	}

	fmt.Fprintln(bw)
	transcript(bw, v.Transcript)
	fmt.Fprintln(bw)
	if err := breakdown(bw, v.Transcript); err != nil {
		return err
	}
	fmt.Fprintln(bw)
	report(bw, v.Report)

	return bw.Flush()
}

func transcript(w io.Writer, t *types.Transcript) {
	fmt.Fprintln(w, "Transcript")
	fmt.Fprintln(w, rule)
	if t == nil || len(t.Segments) == 0 {
		fmt.Fprintln(w, "No transcript available.")
		return
	}
	fmt.Fprintf(w, "%d segments · %s duration\n", len(t.Segments), metrics.FormatTime(t.Duration))
	for _, seg := range t.Segments {
		fmt.Fprintf(w, "%s  %s – %s\n    %s\n",
			SpeakerLabel(seg.Speaker),
			metrics.FormatTime(seg.StartTime),
			metrics.FormatTime(seg.EndTime),
			strings.TrimSpace(seg.Text),
		)
	}
}

func breakdown(w io.Writer, t *types.Transcript) error {
	if t == nil || len(t.Segments) == 0 {
		return nil
	}
	m := metrics.Summarize(t)
	ins := aggregator.Aggregate(t.Segments)

	fmt.Fprintln(w, "Speaker Breakdown")
	fmt.Fprintln(w, rule)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Speaker\tWords\tShare\tTurns\tQuestions\tLongest turn")
	for _, sp := range []types.Speaker{types.SpeakerRep, types.SpeakerCustomer} {
		st := ins.BySpeaker[sp]
		words, pct := m.RepWords, m.RepPct
		if sp == types.SpeakerCustomer {
			words, pct = m.CustomerWords, m.CustomerPct
		}
		fmt.Fprintf(tw, "%s\t%d\t%d%%\t%d\t%d\t%s\n",
			SpeakerLabel(sp), words, pct, st.Turns, st.Questions, metrics.FormatTime(st.LongestTurnSec))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Talk score: %.1f / %.0f (%s)\n", m.TalkScore, metrics.MaxTalkScore, m.Band)
	fmt.Fprintf(w, "Duration %s · %d words · %d segments\n", m.Duration, m.WordCount, m.Segments)

	card := actionable.Generate(m, ins)
	fmt.Fprintf(w, "\nCoaching: %s\n  Action: %s\n  Impact: %s\n", card.Insight, card.Action, card.Impact)
	return nil
}

func report(w io.Writer, r *types.Report) {
	fmt.Fprintln(w, "Insights")
	fmt.Fprintln(w, rule)
	if r == nil {
		fmt.Fprintln(w, "No report yet.")
		return
	}
	fmt.Fprintf(w, "Overall Score: %g\n", r.OverallScore)
	if r.CallSummary != "" {
		fmt.Fprintf(w, "\n%s\n", r.CallSummary)
	}
	list(w, "Strengths", r.Strengths)
	list(w, "Areas To Improve", r.AreasToImprove)
	list(w, "Missed Opportunities", r.MissedOpportunities)
	if len(r.RecommendedActions) > 0 {
		list(w, "Recommended Actions", r.RecommendedActions)
	}
}

func list(w io.Writer, title string, items []string) {
	fmt.Fprintf(w, "\n%s\n", title)
	if len(items) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}
