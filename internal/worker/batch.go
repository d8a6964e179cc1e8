package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/notify"
)

// Extractor pulls readable text out of a URL
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*model.Extraction, error)
}

// Classifier asks the oracle for a verdict on a piece of text
type Classifier interface {
	Classify(ctx context.Context, in model.ClassificationInput) (*model.Verdict, error)
}

// ResultStore persists verdicts of completed items
type ResultStore interface {
	Insert(ctx context.Context, rec *model.VerdictRecord) error
}

// RunRecorder is implemented by stores that also keep run summaries
type RunRecorder interface {
	SaveRun(ctx context.Context, summary model.RunSummary) error
}

// RunOptions is the explicit context of one run: who owns it and how long
// each external call may take. Zero timeouts mean unbounded.
type RunOptions struct {
	OwnerID         string
	ExtractTimeout  time.Duration
	ClassifyTimeout time.Duration
	PersistTimeout  time.Duration
}

// Deps wires the collaborators of an Orchestrator. Store, Publisher,
// Limiter and Logger are optional.
type Deps struct {
	Extractor  Extractor
	Classifier Classifier
	Store      ResultStore
	Publisher  notify.Publisher
	Limiter    *Limiter
	Logger     *slog.Logger
}

// Orchestrator processes the items of a run one at a time, in manifest order
type Orchestrator struct {
	extractor  Extractor
	classifier Classifier
	store      ResultStore
	publisher  notify.Publisher
	limiter    *Limiter
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator from its dependencies
func NewOrchestrator(deps Deps) *Orchestrator {
	o := &Orchestrator{
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		store:      deps.Store,
		publisher:  deps.Publisher,
		limiter:    deps.Limiter,
		logger:     deps.Logger,
	}
	if o.publisher == nil {
		o.publisher = notify.Discard{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Run drives run from idle to finished.
//
// Cancelling ctx is a stop request: the item in flight is completed (its
// external calls are bounded only by their own timeouts), no further item
// is started, and the run ends in the cancelled state with the remaining
// items still pending.
func (o *Orchestrator) Run(ctx context.Context, run *model.BatchRun, opts RunOptions) model.RunSummary {
	summary := model.RunSummary{
		RunID:     run.ID,
		OwnerID:   opts.OwnerID,
		Total:     run.Total(),
		StartedAt: time.Now().UTC(),
	}

	run.SetState(model.RunRunning)
	o.logger.Info("run started", "run_id", run.ID, "items", summary.Total)

	cancelled := false
	for i := 0; i < summary.Total; i++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		status, persistFailed := o.processItem(ctx, run, i, opts)
		switch status {
		case model.StatusCompleted:
			summary.Completed++
		case model.StatusFailed:
			summary.Failed++
		}
		if persistFailed {
			summary.PersistFailed++
		}

		summary.Processed = run.Advance()
		o.publisher.Publish(notify.Event{
			RunID:     run.ID,
			Type:      notify.EventProgress,
			Index:     i,
			Status:    status,
			Progress:  summary.Processed,
			Total:     summary.Total,
			Completed: summary.Completed,
			Failed:    summary.Failed,
		})
	}

	terminal := notify.EventRunComplete
	summary.State = model.RunFinished
	if cancelled {
		terminal = notify.EventRunCancelled
		summary.State = model.RunCancelled
	}
	run.SetState(summary.State)
	summary.FinishedAt = time.Now().UTC()

	ev := notify.Event{
		RunID:     run.ID,
		Type:      terminal,
		Index:     -1,
		Progress:  summary.Processed,
		Total:     summary.Total,
		Completed: summary.Completed,
		Failed:    summary.Failed,
	}
	ev.Message = notify.SummaryLine(ev)
	o.publisher.Publish(ev)

	o.logger.Info("run "+string(summary.State),
		"run_id", run.ID,
		"processed", summary.Processed,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"persist_failed", summary.PersistFailed,
	)

	o.recordRun(context.WithoutCancel(ctx), summary, opts.PersistTimeout)
	return summary
}

// Analyze processes a single item outside of any batch. No events are
// published and no run summary is recorded; a persisted verdict carries
// no run id. ctx cancellation is ignored once the item has started.
func (o *Orchestrator) Analyze(ctx context.Context, item model.BatchItem, opts RunOptions) model.BatchItem {
	single := *o
	single.publisher = notify.Discard{}

	item.Status = model.StatusPending
	run := model.NewBatchRun("", opts.OwnerID, []model.BatchItem{item})
	run.SetState(model.RunRunning)
	single.processItem(ctx, run, 0, opts)
	run.Advance()
	run.SetState(model.RunFinished)

	return run.Item(0)
}

// processItem takes item i from pending to a terminal status. It returns
// that status and whether persisting a completed verdict failed.
func (o *Orchestrator) processItem(ctx context.Context, run *model.BatchRun, i int, opts RunOptions) (status model.ItemStatus, persistFailed bool) {
	// A stop request must not leave the in-flight item half done
	callCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("item panicked", "run_id", run.ID, "index", i, "panic", r)
			msg := fmt.Sprintf("internal error: %v", r)
			run.UpdateItem(i, func(item *model.BatchItem) {
				if item.Status == model.StatusCompleted {
					item.Warning = msg
					return
				}
				item.Status = model.StatusFailed
				item.ErrorMessage = msg
				item.Result = nil
			})
			status = run.Item(i).Status
		}
	}()

	run.UpdateItem(i, func(item *model.BatchItem) { item.Status = model.StatusProcessing })
	o.publisher.Publish(notify.Event{
		RunID:    run.ID,
		Type:     notify.EventItemStarted,
		Index:    i,
		Status:   model.StatusProcessing,
		Progress: run.Progress(),
		Total:    run.Total(),
	})

	item := run.Item(i)
	input := model.ClassificationInput{Text: item.Input}

	if item.Kind == model.KindURL {
		extraction, err := o.extract(callCtx, item.Input, opts.ExtractTimeout)
		if err != nil {
			return o.fail(run, i, model.NewFailure(model.FailureExtraction, err, opts.ExtractTimeout)), false
		}
		input = model.ClassificationInput{
			Text:        extraction.Text,
			SourceURL:   firstNonEmpty(extraction.URL, item.Input),
			SourceTitle: extraction.Title,
		}
		run.UpdateItem(i, func(item *model.BatchItem) { item.SourceTitle = extraction.Title })
	}

	verdict, err := o.classify(callCtx, input, opts.ClassifyTimeout)
	if err != nil {
		return o.fail(run, i, model.NewFailure(model.FailureClassification, err, opts.ClassifyTimeout)), false
	}

	run.UpdateItem(i, func(item *model.BatchItem) {
		item.Status = model.StatusCompleted
		item.Result = verdict
	})

	if o.store == nil {
		return model.StatusCompleted, false
	}

	rec := model.NewVerdictRecord(opts.OwnerID, run.ID, run.Item(i))
	if err := o.persist(callCtx, &rec, opts.PersistTimeout); err != nil {
		failure := model.NewFailure(model.FailurePersistence, err, opts.PersistTimeout)
		o.logger.Warn("verdict not persisted", "run_id", run.ID, "index", i, "error", failure)
		run.UpdateItem(i, func(item *model.BatchItem) { item.Warning = failure.Error() })
		return model.StatusCompleted, true
	}

	return model.StatusCompleted, false
}

func (o *Orchestrator) fail(run *model.BatchRun, i int, failure *model.Failure) model.ItemStatus {
	o.logger.Info("item failed", "run_id", run.ID, "index", i, "kind", failure.Kind, "reason", failure.Reason)
	run.UpdateItem(i, func(item *model.BatchItem) {
		item.Status = model.StatusFailed
		item.ErrorMessage = failure.Error()
		item.Result = nil
	})
	return model.StatusFailed
}

func (o *Orchestrator) extract(ctx context.Context, rawURL string, timeout time.Duration) (*model.Extraction, error) {
	if o.extractor == nil {
		return nil, fmt.Errorf("no extraction client configured")
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if err := o.limiter.waitURL(ctx, rawURL); err != nil {
		return nil, err
	}

	extraction, err := o.extractor.Extract(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if extraction == nil {
		return nil, fmt.Errorf("no content returned")
	}
	return extraction, nil
}

func (o *Orchestrator) classify(ctx context.Context, in model.ClassificationInput, timeout time.Duration) (*model.Verdict, error) {
	if o.classifier == nil {
		return nil, fmt.Errorf("no classification client configured")
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if err := o.limiter.WaitKey(ctx, ClassifierKey); err != nil {
		return nil, err
	}

	verdict, err := o.classifier.Classify(ctx, in)
	if err != nil {
		return nil, err
	}
	if verdict == nil {
		return nil, fmt.Errorf("empty verdict")
	}
	return verdict, nil
}

func (o *Orchestrator) persist(ctx context.Context, rec *model.VerdictRecord, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return o.store.Insert(ctx, rec)
}

func (o *Orchestrator) recordRun(ctx context.Context, summary model.RunSummary, timeout time.Duration) {
	recorder, ok := o.store.(RunRecorder)
	if !ok {
		return
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if err := recorder.SaveRun(ctx, summary); err != nil {
		o.logger.Warn("run summary not persisted", "run_id", summary.RunID, "error", err)
	}
}

// waitURL is Wait that tolerates a nil limiter
func (l *Limiter) waitURL(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx, rawURL)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
