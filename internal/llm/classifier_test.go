package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/veritas/internal/model"
)

// mockProvider returns a canned reply and records the last request
type mockProvider struct {
	reply string
	model string
	err   error
	last  CompletionRequest
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Ping(ctx context.Context) error { return m.err }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &CompletionResponse{Text: m.reply, Model: m.model}, nil
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		label      model.Label
		confidence float64
		wantErr    bool
	}{
		{"plain", `{"prediction":"fake","confidence":0.92,"explanation":"sensational"}`, model.LabelFake, 0.92, false},
		{"fenced", "```json\n{\"prediction\": \"Authentic\", \"confidence\": 0.6}\n```", model.LabelAuthentic, 0.6, false},
		{"label key", `{"label":"uncertain","confidence":0.5}`, model.LabelUncertain, 0.5, false},
		{"bounds", `{"prediction":"fake","confidence":1}`, model.LabelFake, 1, false},
		{"zero", `{"prediction":"authentic","confidence":0}`, model.LabelAuthentic, 0, false},
		{"prose around", `Sure! Here you go: {"prediction":"fake","confidence":0.3} hope that helps`, model.LabelFake, 0.3, false},
		{"no json", `I think it is fake`, "", 0, true},
		{"bad json", `{"prediction":"fake",}`, "", 0, true},
		{"unknown label", `{"prediction":"satire","confidence":0.4}`, "", 0, true},
		{"missing label", `{"confidence":0.4}`, "", 0, true},
		{"missing confidence", `{"prediction":"fake"}`, "", 0, true},
		{"percent confidence", `{"prediction":"fake","confidence":85}`, "", 0, true},
		{"negative confidence", `{"prediction":"fake","confidence":-0.1}`, "", 0, true},
		{"string confidence", `{"prediction":"fake","confidence":"high"}`, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", v)
				}
				if !errors.Is(err, ErrUnparseableVerdict) {
					t.Errorf("expected ErrUnparseableVerdict, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Label != tt.label || v.Confidence != tt.confidence {
				t.Errorf("expected %s/%v, got %s/%v", tt.label, tt.confidence, v.Label, v.Confidence)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(model.ClassificationInput{
		Text:        strings.Repeat("x", 50),
		SourceURL:   "https://news.example/a",
		SourceTitle: "A story",
	}, 10)

	if !strings.Contains(p, "Source URL: https://news.example/a\n") || !strings.Contains(p, "Source title: A story\n") {
		t.Errorf("missing provenance: %q", p)
	}
	if !strings.HasSuffix(p, "Analyze this text:\n\n"+strings.Repeat("x", 10)) {
		t.Errorf("expected text cut to 10 chars: %q", p)
	}

	plain := BuildPrompt(model.ClassificationInput{Text: "short"}, 100)
	if plain != "Analyze this text:\n\nshort" {
		t.Errorf("unexpected prompt %q", plain)
	}
}

func TestClassifier_Classify(t *testing.T) {
	provider := &mockProvider{
		reply: `{"prediction":"fake","confidence":0.81,"explanation":"anonymous experts"}`,
		model: "gpt-4o-mini",
	}
	c := NewClassifier(provider, "", 0)

	ticks := []time.Time{time.Unix(0, 0), time.Unix(0, 0).Add(1500 * time.Millisecond)}
	c.now = func() time.Time {
		t := ticks[0]
		ticks = ticks[1:]
		return t
	}

	v, err := c.Classify(context.Background(), model.ClassificationInput{Text: "Breaking: aliens land in Ohio"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Label != model.LabelFake || v.Confidence != 0.81 || v.Explanation != "anonymous experts" {
		t.Errorf("unexpected verdict %+v", v)
	}
	if v.ModelVersion != "mock/gpt-4o-mini" {
		t.Errorf("unexpected model version %q", v.ModelVersion)
	}
	if v.ProcessingTimeMs != 1500 {
		t.Errorf("expected 1500ms, got %d", v.ProcessingTimeMs)
	}
	if provider.last.System != SystemPrompt || !provider.last.JSON {
		t.Error("expected system prompt and JSON mode")
	}
}

func TestClassifier_FixedModelVersion(t *testing.T) {
	provider := &mockProvider{reply: `{"prediction":"authentic","confidence":0.9}`}
	v, err := NewClassifier(provider, "v1.0", 0).Classify(context.Background(), model.ClassificationInput{Text: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ModelVersion != "v1.0" {
		t.Errorf("unexpected model version %q", v.ModelVersion)
	}
}

func TestClassifier_Truncates(t *testing.T) {
	provider := &mockProvider{reply: `{"prediction":"authentic","confidence":0.9}`}
	c := NewClassifier(provider, "", 100)

	if _, err := c.Classify(context.Background(), model.ClassificationInput{Text: strings.Repeat("y", 5000)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(provider.last.Prompt, "y"); n != 100 {
		t.Errorf("expected 100 chars sent, got %d", n)
	}
}

func TestClassifier_Unparseable(t *testing.T) {
	c := NewClassifier(&mockProvider{reply: "no idea"}, "", 0)

	_, err := c.Classify(context.Background(), model.ClassificationInput{Text: "x"})
	if !model.IsFailureKind(err, model.FailureClassification) {
		t.Fatalf("expected classification failure, got %v", err)
	}
	if err.Error() != "classification failed: unparseable verdict" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !IsUnparseable(err) {
		t.Error("expected IsUnparseable")
	}
}

func TestClassifier_ProviderError(t *testing.T) {
	c := NewClassifier(&mockProvider{err: errors.New("connection refused")}, "", 0)
	if _, err := c.Classify(context.Background(), model.ClassificationInput{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestClassifier_EmptyText(t *testing.T) {
	provider := &mockProvider{reply: `{"prediction":"fake","confidence":1}`}
	_, err := NewClassifier(provider, "", 0).Classify(context.Background(), model.ClassificationInput{Text: "   "})
	if !model.IsFailureKind(err, model.FailureClassification) {
		t.Errorf("expected classification failure, got %v", err)
	}
	if provider.last.Prompt != "" {
		t.Error("provider should not be called for empty text")
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		config  Config
		name    string
		wantErr bool
	}{
		{Config{Provider: "openai", APIKey: "k"}, "openai", false},
		{Config{Provider: "Claude", APIKey: "k"}, "anthropic", false},
		{Config{Provider: "ollama", Model: "llama3.1"}, "ollama", false},
		{Config{Provider: "openai"}, "", true},
		{Config{Provider: ""}, "", true},
		{Config{Provider: "bard"}, "", true},
	}

	for _, tt := range tests {
		p, err := NewProvider(tt.config)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.config.Provider)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.config.Provider, err)
			continue
		}
		if p.Name() != tt.name {
			t.Errorf("%q: expected %s, got %s", tt.config.Provider, tt.name, p.Name())
		}
	}
}
