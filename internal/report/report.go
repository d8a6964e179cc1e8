// Package report renders batch results and history as CSV.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/veritas/internal/model"
)

// DefaultPreviewLength is how many runes of an input the report keeps
const DefaultPreviewLength = 100

// BatchHeader is the column row of a batch report
var BatchHeader = []string{"Input", "Type", "Prediction", "Confidence", "Status", "Error"}

// HistoryHeader is the column row of a history export
var HistoryHeader = []string{"Date", "Prediction", "Confidence", "Type", "Text/URL"}

// Exporter writes batch and history reports
type Exporter struct {
	PreviewLength int
}

// NewExporter returns an exporter that cuts inputs to previewLength runes
func NewExporter(previewLength int) *Exporter {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	return &Exporter{PreviewLength: previewLength}
}

// Write renders one row per item, in order. The output depends only on
// items, so the same items always give the same bytes.
func (e *Exporter) Write(w io.Writer, items []model.BatchItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BatchHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, item := range items {
		var label, confidence string
		if item.Status == model.StatusCompleted && item.Result != nil {
			label = string(item.Result.Label)
			confidence = FormatConfidence(item.Result.Confidence)
		}

		row := []string{
			preview(item.Input, e.previewLength()),
			string(item.Kind),
			label,
			confidence,
			string(item.Status),
			item.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Render returns the batch report as bytes
func (e *Exporter) Render(items []model.BatchItem) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, items); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteHistory renders stored verdicts, one row per record
func (e *Exporter) WriteHistory(w io.Writer, records []model.VerdictRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(HistoryHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.CreatedAt.UTC().Format("2006-01-02 15:04"),
			string(rec.Label),
			FormatConfidence(rec.Confidence),
			string(rec.SourceKind),
			preview(subject(rec), e.previewLength()),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileName is the download name of a batch report generated at now
func FileName(now time.Time) string {
	return "batch-results-" + now.Format("2006-01-02-1504") + ".csv"
}

// HistoryFileName is the download name of a history export generated at now
func HistoryFileName(now time.Time) string {
	return "history-" + now.Format("2006-01-02") + ".csv"
}

// FormatConfidence renders a [0,1] confidence as a percentage with one decimal
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.1f%%", c*100)
}

func (e *Exporter) previewLength() int {
	if e == nil || e.PreviewLength <= 0 {
		return DefaultPreviewLength
	}
	return e.PreviewLength
}

// subject is the title, URL or text a record is best known by
func subject(rec model.VerdictRecord) string {
	switch {
	case rec.SourceTitle != "":
		return rec.SourceTitle
	case rec.SourceURL != "":
		return rec.SourceURL
	default:
		return rec.SourceText
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
