// Package export writes the tracked job as an xlsx workbook with Summary,
// Transcript and Report sheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sales-coach-go/internal/actionable"
	"sales-coach-go/internal/aggregator"
	"sales-coach-go/internal/metrics"
	"sales-coach-go/internal/session"
	"sales-coach-go/internal/types"
)

const (
	SheetSummary    = "Summary"
	SheetTranscript = "Transcript"
	SheetReport     = "Report"
)

// ContentType is the MIME type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Workbook builds the workbook for v. The caller must Close it.
func Workbook(v session.View) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetTranscript, SheetReport} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("add sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	w := &sheetWriter{f: f, bold: bold}
	w.summary(v)
	w.transcript(v.Transcript)
	w.report(v.Report)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// Write streams the workbook for v to out.
func Write(out io.Writer, v session.View) error {
	f, err := Workbook(v)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save writes the workbook for v to path.
func Save(path string, v session.View) error {
	f, err := Workbook(v)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so the sheet builders read straight.
type sheetWriter struct {
	f    *excelize.File
	bold int
	err  error
}

func (w *sheetWriter) row(sheet string, row int, values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
}

func (w *sheetWriter) header(sheet string, row int, values ...any) {
	w.row(sheet, row, values...)
	if w.err != nil {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(values), row)
	if err := w.f.SetCellStyle(sheet, first, last, w.bold); err != nil {
		w.err = err
	}
}

func (w *sheetWriter) summary(v session.View) {
	m := metrics.Summarize(v.Transcript)
	var segments []types.TranscriptSegment
	if v.Transcript != nil {
		segments = v.Transcript.Segments
	}
	card := actionable.Generate(m, aggregator.Aggregate(segments))

	w.header(SheetSummary, 1, "Field", "Value")
	rows := [][2]any{
		{"Job ID", v.JobID},
		{"Status", string(v.Status)},
		{"Progress %", v.Progress},
		{"Duration", m.Duration},
		{"Word count", m.WordCount},
		{"Segments", m.Segments},
		{"Rep words", m.RepWords},
		{"Customer words", m.CustomerWords},
		{"Rep talk %", m.RepPct},
		{"Customer talk %", m.CustomerPct},
		{"Talk score", m.TalkScore},
		{"Talk band", m.Band},
		{"Coaching insight", card.Insight},
		{"Coaching action", card.Action},
	}
	if v.Report != nil {
		rows = append(rows, [2]any{"Overall score", v.Report.OverallScore})
	}
	for i, r := range rows {
		w.row(SheetSummary, i+2, r[0], r[1])
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetSummary, "A", "B", 24)
	}
}

func (w *sheetWriter) transcript(t *types.Transcript) {
	w.header(SheetTranscript, 1, "Speaker", "Start", "End", "Text")
	if t == nil {
		return
	}
	for i, seg := range t.Segments {
		w.row(SheetTranscript, i+2,
			string(seg.Speaker),
			metrics.FormatTime(seg.StartTime),
			metrics.FormatTime(seg.EndTime),
			seg.Text,
		)
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetTranscript, "D", "D", 80)
	}
}

func (w *sheetWriter) report(r *types.Report) {
	w.header(SheetReport, 1, "Section", "Item")
	if r == nil {
		return
	}
	row := 2
	if r.CallSummary != "" {
		w.row(SheetReport, row, "Call summary", r.CallSummary)
		row++
	}
	sections := []struct {
		name  string
		items []string
	}{
		{"Strength", r.Strengths},
		{"Area to improve", r.AreasToImprove},
		{"Missed opportunity", r.MissedOpportunities},
		{"Recommended action", r.RecommendedActions},
	}
	for _, s := range sections {
		for _, item := range s.items {
			w.row(SheetReport, row, s.name, item)
			row++
		}
	}
}
