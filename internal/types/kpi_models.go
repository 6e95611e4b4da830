// internal/types/kpi_models.go
package types

import "encoding/json"

// --------------------------------------------
// Coaching report produced by the pipeline
// --------------------------------------------
type Report struct {
	OverallScore        float64  `json:"overall_score"`
	CallSummary         string   `json:"call_summary,omitempty"`
	Strengths           []string `json:"strengths"`
	AreasToImprove      []string `json:"areas_to_improve"`
	MissedOpportunities []string `json:"missed_opportunities"`
	RecommendedActions  []string `json:"recommended_actions,omitempty"`
}

// UnmarshalJSON accepts the older `weaknesses` key as areas to improve.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	var wire struct {
		plain
		Weaknesses []string `json:"weaknesses"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Report(wire.plain)
	if len(r.AreasToImprove) == 0 && len(wire.Weaknesses) > 0 {
		r.AreasToImprove = wire.Weaknesses
	}
	return nil
}

// --------------------------------------------
// Derived call KPIs (computed client-side)
// --------------------------------------------
type CallMetrics struct {
	RepWords      int     `json:"rep_words"`
	CustomerWords int     `json:"customer_words"`
	RepPct        int     `json:"rep_talk_pct"`
	CustomerPct   int     `json:"customer_talk_pct"`
	TalkScore     float64 `json:"talk_score"` // 0–10
	Band          string  `json:"band"`
	Duration      string  `json:"duration"`
	WordCount     int     `json:"word_count"`
	Segments      int     `json:"segments"`
}
