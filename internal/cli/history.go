package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/report"
	"github.com/ppiankov/veritas/internal/store"
)

var (
	historyLabel string
	historySince string
	historyLimit int
	historyCSV   bool
	historyJSON  bool
	historyRuns  bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded verdicts",
	Long: `History lists the verdicts stored for an owner, newest first.

Example:
  veritas history
  veritas history --owner alice --label fake --since 2026-01-01
  veritas history --csv > history.csv
  veritas history --runs`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&ownerID, "owner", "", "owner whose verdicts are listed (empty lists anonymous ones)")
	historyCmd.Flags().StringVar(&historyLabel, "label", "", "only verdicts with this label (fake, authentic, uncertain)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "only verdicts since this date (YYYY-MM-DD or RFC3339)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum rows (0 for all)")
	historyCmd.Flags().BoolVar(&historyCSV, "csv", false, "write CSV to stdout")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "write JSON to stdout")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "list run summaries instead of verdicts")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	filter, err := historyFilter(historyLabel, historySince, historyLimit)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	ctx := context.Background()

	if historyRuns {
		runs, err := db.ListRuns(ctx, ownerID, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(runs)
		}
		printRuns(runs)
		return nil
	}

	records, err := db.QueryByOwner(ctx, ownerID, filter)
	if err != nil {
		return err
	}

	switch {
	case historyCSV:
		return report.NewExporter(cfg.Batch.PreviewLength).WriteHistory(os.Stdout, records)
	case historyJSON:
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "No verdicts recorded\n")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tPREDICTION\tCONFIDENCE\tTYPE\tTEXT/URL")
	for _, rec := range records {
		subject := rec.SourceTitle
		if subject == "" {
			subject = rec.SourceURL
		}
		if subject == "" {
			subject = rec.SourceText
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.Label,
			report.FormatConfidence(rec.Confidence),
			rec.SourceKind,
			truncate(subject, 60))
	}
	return tw.Flush()
}

// historyFilter builds a store filter from command-line values
func historyFilter(label, since string, limit int) (store.Filter, error) {
	filter := store.Filter{Limit: limit, NewestFirst: true}

	if label != "" {
		l, err := model.ParseLabel(label)
		if err != nil {
			return filter, err
		}
		filter.Label = l
	}

	if since != "" {
		t, err := time.Parse(time.DateOnly, since)
		if err != nil {
			t, err = time.Parse(time.RFC3339, since)
		}
		if err != nil {
			return filter, fmt.Errorf("invalid --since %q: use YYYY-MM-DD or RFC3339", since)
		}
		filter.Since = t
	}

	if limit < 0 {
		return filter, fmt.Errorf("invalid --limit %d", limit)
	}
	return filter, nil
}

func printRuns(runs []model.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintf(os.Stderr, "No runs recorded\n")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tSTATE\tPROCESSED\tCOMPLETED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%d\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			shortID(r.RunID), r.State, r.Processed, r.Total, r.Completed, r.Failed)
	}
	_ = tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
