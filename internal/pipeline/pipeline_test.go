package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/veritas/internal/logging"
	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/store"
)

// fakeOllama answers /api/generate with a verdict chosen from the prompt
type fakeOllama struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	reply := `{"prediction":"authentic","confidence":0.8,"explanation":"sober tone"}`
	if strings.Contains(req.Prompt, "aliens") {
		reply = `{"prediction":"fake","confidence":0.95,"explanation":"sensational claim"}`
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"model": "llama3.1", "response": reply, "done": true})
}

func newTestPipeline(t *testing.T, llmURL string) *Pipeline {
	t.Helper()

	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3.1"
	cfg.LLM.BaseURL = llmURL
	cfg.Cache.Enabled = false
	cfg.Extraction.RespectRobots = false
	cfg.HTTP.Retries = 1
	cfg.RateLimiting = model.RateLimitingConfig{}
	cfg.Store.Path = filepath.Join(t.TempDir(), "veritas.db")

	p, err := New(cfg, Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPipeline_AnalyzeText(t *testing.T) {
	llm := httptest.NewServer(&fakeOllama{})
	defer llm.Close()
	p := newTestPipeline(t, llm.URL)
	ctx := context.Background()

	item, err := p.AnalyzeText(ctx, "u1", "Breaking: aliens land in Ohio")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if item.Status != model.StatusCompleted || item.Result.Label != model.LabelFake {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.Result.ModelVersion != "ollama/llama3.1" {
		t.Errorf("unexpected model version %q", item.Result.ModelVersion)
	}

	history, err := p.History(ctx, "u1", store.Filter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].SourceText != "Breaking: aliens land in Ohio" || history[0].RunID != "" {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestPipeline_AnalyzeURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Council budget</title><script>var x;</script></head>
			<body><p>The council approved the budget.</p></body></html>`))
	}))
	defer page.Close()

	oracle := &fakeOllama{}
	llm := httptest.NewServer(oracle)
	defer llm.Close()
	p := newTestPipeline(t, llm.URL)

	item, err := p.AnalyzeURL(context.Background(), "", page.URL+"/story")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if item.Status != model.StatusCompleted || item.SourceTitle != "Council budget" {
		t.Fatalf("unexpected item: %+v", item)
	}

	prompt := oracle.prompts[0]
	if !strings.Contains(prompt, "Source title: Council budget") || !strings.Contains(prompt, "The council approved the budget.") {
		t.Errorf("unexpected prompt %q", prompt)
	}
	if strings.Contains(prompt, "var x") {
		t.Error("script content should be stripped")
	}

	if _, err := p.AnalyzeURL(context.Background(), "", "not a url"); err == nil {
		t.Error("expected error for non-URL input")
	}
}

func TestPipeline_AnalyzeExtractionFailure(t *testing.T) {
	page := httptest.NewServer(http.NotFoundHandler())
	defer page.Close()
	llm := httptest.NewServer(&fakeOllama{})
	defer llm.Close()
	p := newTestPipeline(t, llm.URL)

	item, err := p.Analyze(context.Background(), "", page.URL)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if item.Status != model.StatusFailed || !strings.HasPrefix(item.ErrorMessage, "extraction failed: ") {
		t.Errorf("unexpected item: %+v", item)
	}

	if _, err := p.Analyze(context.Background(), "", "   "); err == nil {
		t.Error("expected error for blank input")
	}
}

func TestPipeline_StoreDisabled(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3.1"
	cfg.Store.Enabled = false
	cfg.Cache.Enabled = false

	p, err := New(cfg, Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	if p.Store() != nil {
		t.Error("expected no store")
	}
	if _, err := p.History(context.Background(), "", store.Filter{}); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
}

func TestNew_BadProvider(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "bard"
	if _, err := New(cfg, Options{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestPipeline_RunOptions(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Store.Enabled = false
	cfg.Cache.Enabled = false
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "m"

	p, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	opts := p.RunOptions("u9")
	if opts.OwnerID != "u9" || opts.ExtractTimeout != cfg.Extraction.Timeout || opts.ClassifyTimeout != cfg.LLM.Timeout || opts.PersistTimeout <= 0 {
		t.Errorf("unexpected options %+v", opts)
	}
	if p.ProviderName() != "ollama" {
		t.Errorf("unexpected provider %q", p.ProviderName())
	}
}
