package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/veritas/internal/model"
)

// ErrUnparseableVerdict marks model output that does not map onto a verdict
var ErrUnparseableVerdict = errors.New("unparseable verdict")

type rawVerdict struct {
	Prediction  string   `json:"prediction"`
	Label       string   `json:"label"`
	Confidence  *float64 `json:"confidence"`
	Explanation string   `json:"explanation"`
}

// ParseVerdict extracts the first JSON object from raw model output and
// validates it. The label must be fake, authentic or uncertain and the
// confidence a number in [0,1]; anything else is ErrUnparseableVerdict.
// ModelVersion and ProcessingTimeMs are left for the caller.
func ParseVerdict(raw string) (*model.Verdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrUnparseableVerdict)
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableVerdict, err)
	}

	labelText := rv.Prediction
	if labelText == "" {
		labelText = rv.Label
	}
	label, err := model.ParseLabel(labelText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableVerdict, err)
	}

	if rv.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", ErrUnparseableVerdict)
	}
	confidence := *rv.Confidence
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrUnparseableVerdict, confidence)
	}

	return &model.Verdict{
		Label:       label,
		Confidence:  confidence,
		Explanation: strings.TrimSpace(rv.Explanation),
	}, nil
}
