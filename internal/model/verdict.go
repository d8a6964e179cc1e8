package model

import (
	"fmt"
	"strings"
	"time"
)

// Label is the oracle's classification outcome
type Label string

const (
	LabelFake      Label = "fake"
	LabelAuthentic Label = "authentic"
	LabelUncertain Label = "uncertain"
)

// ParseLabel maps free-form oracle output onto a Label
func ParseLabel(s string) (Label, error) {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelFake:
		return LabelFake, nil
	case LabelAuthentic:
		return LabelAuthentic, nil
	case LabelUncertain:
		return LabelUncertain, nil
	default:
		return "", fmt.Errorf("unknown label %q", s)
	}
}

// Verdict is the validated result of one classification call
type Verdict struct {
	Label            Label   `json:"label"`
	Confidence       float64 `json:"confidence"` // 0..1
	Explanation      string  `json:"explanation,omitempty"`
	ModelVersion     string  `json:"model_version"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// ClassificationInput is what the oracle is asked to judge
type ClassificationInput struct {
	Text        string
	SourceURL   string // Optional provenance for URL items
	SourceTitle string
}

// Extraction is the plain-text content pulled from a URL
type Extraction struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// VerdictRecord is the persisted form of a completed classification
type VerdictRecord struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id,omitempty"` // Empty for anonymous callers
	RunID            string    `json:"run_id,omitempty"`   // Empty for single analyses
	SourceKind       ItemKind  `json:"source_kind"`
	SourceText       string    `json:"source_text,omitempty"` // Empty when only a URL reference is kept
	SourceURL        string    `json:"source_url,omitempty"`
	SourceTitle      string    `json:"source_title,omitempty"`
	Label            Label     `json:"label"`
	Confidence       float64   `json:"confidence"`
	Explanation      string    `json:"explanation,omitempty"`
	ModelVersion     string    `json:"model_version"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewVerdictRecord builds the record persisted for a completed item
func NewVerdictRecord(ownerID, runID string, item BatchItem) VerdictRecord {
	rec := VerdictRecord{
		OwnerID:    ownerID,
		RunID:      runID,
		SourceKind: item.Kind,
	}
	if item.Kind == KindURL {
		rec.SourceURL = item.Input
		rec.SourceTitle = item.SourceTitle
	} else {
		rec.SourceText = item.Input
	}
	if v := item.Result; v != nil {
		rec.Label = v.Label
		rec.Confidence = v.Confidence
		rec.Explanation = v.Explanation
		rec.ModelVersion = v.ModelVersion
		rec.ProcessingTimeMs = v.ProcessingTimeMs
	}
	return rec
}
