package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/notify"
	"github.com/ppiankov/veritas/internal/pipeline"
	"github.com/ppiankov/veritas/internal/report"
	"github.com/ppiankov/veritas/internal/worker"
)

var (
	concurrency int
	outputDir   string
	ownerID     string
	maxItems    int
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Classify every entry of one or more manifests",
	Long: `Batch reads manifests with one text or URL per line and classifies
each entry in order:
- Lines starting with http:// or https:// are fetched and their text extracted
- Any other line is classified as-is
- A first line naming a column (text, url, claim, ...) is skipped
- Each manifest becomes one run; runs of different manifests proceed in parallel
- A CSV report per manifest is written to the output directory

Ctrl-C lets the item in flight finish, then stops each run with the
remaining items left pending.

Example:
  veritas batch claims.txt
  veritas batch a.txt b.csv --concurrency 2 --out ./reports
  veritas batch claims.txt --owner alice --llm-provider ollama --llm-model llama3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "manifests processed in parallel (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "out", ".", "output directory for CSV reports")
	batchCmd.Flags().StringVar(&ownerID, "owner", "", "owner recorded with every verdict")
	batchCmd.Flags().IntVar(&maxItems, "max-items", 0, "maximum entries per manifest (default from config)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Batch.Concurrency = concurrency
	}
	if maxItems > 0 {
		cfg.Batch.MaxItems = maxItems
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Veritas Batch Classification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Manifests:    %d\n", len(args))
	fmt.Fprintf(os.Stderr, "  Parallel:     %d\n", cfg.Batch.Concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.New(cfg, pipeline.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("close pipeline", "error", err)
		}
	}()

	watchers := startWatchers(context.WithoutCancel(ctx), p.Broker(), cfg, logger, true)

	results := worker.ProcessFiles(ctx, args, cfg.Batch.Concurrency, cfg.Batch.MaxItems, p.Orchestrator(), p.RunOptions(ownerID))

	// Let observers drain the terminal events before printing the summary
	p.Broker().Close()
	watchers.Wait()

	fmt.Fprintf(os.Stderr, "\n")
	now := time.Now()
	failedManifests := 0
	var totals model.RunSummary

	for _, res := range results {
		if res.Err != nil {
			failedManifests++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Path, res.Err)
			continue
		}

		out := filepath.Join(outputDir, reportName(res.Path, now))
		if err := writeReport(p.Exporter(), out, res.Run.Items()); err != nil {
			failedManifests++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Path, err)
			continue
		}

		s := res.Summary
		totals.Total += s.Total
		totals.Processed += s.Processed
		totals.Completed += s.Completed
		totals.Failed += s.Failed
		totals.PersistFailed += s.PersistFailed

		fmt.Fprintf(os.Stderr, "✓ %s → %s (%s, %d/%d processed)\n", res.Path, out, s.State, s.Processed, s.Total)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Items:        %d\n", totals.Total)
	fmt.Fprintf(os.Stderr, "  Processed:    %d\n", totals.Processed)
	fmt.Fprintf(os.Stderr, "  Completed:    %d\n", totals.Completed)
	fmt.Fprintf(os.Stderr, "  Failed:       %d\n", totals.Failed)
	if totals.PersistFailed > 0 {
		fmt.Fprintf(os.Stderr, "  Not saved:    %d\n", totals.PersistFailed)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if failedManifests > 0 {
		return fmt.Errorf("%d of %d manifests could not be processed", failedManifests, len(results))
	}
	return nil
}

// reportName derives the CSV name for a manifest: claims-batch-results-....csv
func reportName(manifest string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(manifest), filepath.Ext(manifest))
	return base + "-" + report.FileName(now)
}

func writeReport(exporter *report.Exporter, path string, items []model.BatchItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := exporter.Write(f, items); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// forwarders tracks the goroutines forwarding broker events
type forwarders struct {
	done []chan struct{}
}

// Wait blocks until every forwarder has drained its subscription
func (w *forwarders) Wait() {
	for _, ch := range w.done {
		<-ch
	}
}

// startWatchers subscribes the console and, when configured, Telegram to
// broker. Forwarders end when the broker closes.
func startWatchers(ctx context.Context, broker *notify.Broker, cfg *model.Config, logger *slog.Logger, console bool) *forwarders {
	w := &forwarders{}

	start := func(sink notify.Sink, includeItems bool) {
		events, _ := broker.Subscribe(256)
		done := make(chan struct{})
		w.done = append(w.done, done)
		go func() {
			defer close(done)
			notify.Forward(ctx, events, sink, includeItems, logger)
		}()
	}

	if console {
		start(consoleSink{}, true)
	} else {
		start(notify.LogSink{Logger: logger}, true)
	}

	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		start(notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID), false)
		logger.Debug("telegram notifications enabled", "chat_id", cfg.Notify.TelegramChatID)
	}

	return w
}

// consoleSink prints progress lines to stderr
type consoleSink struct{}

// Notify prints ev
func (consoleSink) Notify(_ context.Context, ev notify.Event) error {
	switch {
	case ev.Type.IsTerminal():
		fmt.Fprintf(os.Stderr, "  [%s] %s\n", shortID(ev.RunID), notify.SummaryLine(ev))
	case ev.Type == notify.EventProgress:
		mark := "✓"
		if ev.Status == model.StatusFailed {
			mark = "✗"
		}
		fmt.Fprintf(os.Stderr, "  [%s] %s item %d  %d/%d (%.0f%%)\n",
			shortID(ev.RunID), mark, ev.Index+1, ev.Progress, ev.Total, ev.Fraction()*100)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
