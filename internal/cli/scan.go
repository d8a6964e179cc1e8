package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/pipeline"
	"github.com/ppiankov/veritas/internal/report"
)

var (
	jsonOutput bool
	asText     bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <text|url>",
	Short: "Classify a single text or URL",
	Long: `Scan classifies one input:
- An http(s) URL is fetched and its readable text extracted first
- Anything else is sent to the model as-is
- The verdict is recorded in the result database

Example:
  veritas scan "Scientists confirm the moon is made of cheese"
  veritas scan https://example.com/article --json
  veritas scan --text "https://looks-like-a-url but is a claim"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the item as JSON")
	scanCmd.Flags().BoolVar(&asText, "text", false, "classify the input as text even if it looks like a URL")
	scanCmd.Flags().StringVar(&ownerID, "owner", "", "owner recorded with the verdict")
}

func runScan(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")

	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg, pipeline.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("close pipeline", "error", err)
		}
	}()

	var item model.BatchItem
	if asText {
		item, err = p.AnalyzeText(ctx, ownerID, input)
	} else {
		item, err = p.Analyze(ctx, ownerID, input)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else {
		printItem(item)
	}

	if item.Status == model.StatusFailed {
		return errors.New(item.ErrorMessage)
	}
	return nil
}

func printItem(item model.BatchItem) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Veritas Verdict\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:        %s\n", truncate(item.Input, 70))
	if item.SourceTitle != "" {
		fmt.Fprintf(os.Stderr, "  Title:        %s\n", truncate(item.SourceTitle, 70))
	}
	fmt.Fprintf(os.Stderr, "  Type:         %s\n", item.Kind)

	if item.Status == model.StatusFailed || item.Result == nil {
		fmt.Fprintf(os.Stderr, "  Status:       ✗ %s\n", item.ErrorMessage)
		fmt.Fprintf(os.Stderr, "\n")
		return
	}

	v := item.Result
	fmt.Fprintf(os.Stderr, "  Prediction:   %s\n", v.Label)
	fmt.Fprintf(os.Stderr, "  Confidence:   %s\n", report.FormatConfidence(v.Confidence))
	fmt.Fprintf(os.Stderr, "  Model:        %s (%dms)\n", v.ModelVersion, v.ProcessingTimeMs)
	if v.Explanation != "" {
		fmt.Fprintf(os.Stderr, "\n  %s\n", v.Explanation)
	}
	if item.Warning != "" {
		fmt.Fprintf(os.Stderr, "\n  ⚠ %s\n", item.Warning)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
