package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/veritas/internal/model"
)

// SystemPrompt instructs the model how to judge a text
const SystemPrompt = `You are a fake news classification system. Decide whether the text you are given is likely fake or authentic news.

Base the decision only on evidence in the text:
- credibility of the stated source
- presence or absence of verifiable details
- unsupported scientific or political claims
- sensational or conspiratorial wording
- anonymous or unverifiable experts
- internal logical consistency

A future date is not a sign of fake news; announcements and scheduled events are normal.
If the text gives too little to decide, answer "uncertain".

Respond with JSON only:
{"prediction": "fake" | "authentic" | "uncertain", "confidence": 0.0-1.0, "explanation": "one or two sentences citing the cues you used"}`

// DefaultMaxInputChars bounds the text sent to the model
const DefaultMaxInputChars = 2000

// Classifier asks a Provider for a verdict and validates the answer
type Classifier struct {
	provider      Provider
	modelVersion  string
	maxInputChars int
	now           func() time.Time
}

// NewClassifier wraps provider. modelVersion is recorded on every verdict;
// when empty it is derived from the provider name and reported model.
func NewClassifier(provider Provider, modelVersion string, maxInputChars int) *Classifier {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	return &Classifier{
		provider:      provider,
		modelVersion:  modelVersion,
		maxInputChars: maxInputChars,
		now:           time.Now,
	}
}

// Classify judges in.Text. Failures are classification failures; a reply
// that cannot be validated fails with reason "unparseable verdict".
func (c *Classifier) Classify(ctx context.Context, in model.ClassificationInput) (*model.Verdict, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, &model.Failure{Kind: model.FailureClassification, Reason: "no text to classify"}
	}

	start := c.now()
	resp, err := c.provider.Complete(ctx, CompletionRequest{
		System: SystemPrompt,
		Prompt: BuildPrompt(in, c.maxInputChars),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	verdict, err := ParseVerdict(resp.Text)
	if err != nil {
		return nil, &model.Failure{Kind: model.FailureClassification, Reason: ErrUnparseableVerdict.Error(), Err: err}
	}

	verdict.ProcessingTimeMs = c.now().Sub(start).Milliseconds()
	verdict.ModelVersion = c.modelVersion
	if verdict.ModelVersion == "" {
		verdict.ModelVersion = c.provider.Name() + "/" + resp.Model
	}

	return verdict, nil
}

// IsUnparseable reports whether err came from a reply that failed validation
func IsUnparseable(err error) bool {
	return errors.Is(err, ErrUnparseableVerdict)
}

// BuildPrompt renders the user message. Text beyond maxChars runes is cut.
func BuildPrompt(in model.ClassificationInput, maxChars int) string {
	var b strings.Builder

	if in.SourceURL != "" {
		fmt.Fprintf(&b, "Source URL: %s\n", in.SourceURL)
	}
	if in.SourceTitle != "" {
		fmt.Fprintf(&b, "Source title: %s\n", in.SourceTitle)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	b.WriteString("Analyze this text:\n\n")
	b.WriteString(truncate(strings.TrimSpace(in.Text), maxChars))
	return b.String()
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
