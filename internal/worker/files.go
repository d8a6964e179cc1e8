package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ppiankov/veritas/internal/model"
)

// FileJob runs one manifest file as its own batch run
type FileJob struct {
	Path         string
	MaxItems     int
	Orchestrator *Orchestrator
	Options      RunOptions

	index int
}

// FileResult is the outcome of a FileJob. Run is nil when the manifest
// could not be read.
type FileResult struct {
	Path    string
	Run     *model.BatchRun
	Summary model.RunSummary
	Err     error

	index int
}

// GetError implements Result
func (r *FileResult) GetError() error {
	return r.Err
}

// Execute parses the manifest and processes it to completion
func (j *FileJob) Execute(ctx context.Context) Result {
	res := &FileResult{Path: j.Path, index: j.index}

	if err := ctx.Err(); err != nil {
		res.Err = notStarted(err)
		return res
	}

	items, err := ReadManifestFile(j.Path)
	if err != nil {
		res.Err = err
		return res
	}
	if err := CheckManifestSize(items, j.MaxItems); err != nil {
		res.Err = err
		return res
	}

	res.Run = model.NewBatchRun(uuid.NewString(), j.Options.OwnerID, items)
	res.Summary = j.Orchestrator.Run(ctx, res.Run, j.Options)
	return res
}

// ProcessFiles runs each manifest concurrently on a pool of the given
// size. Items inside a manifest are still processed one at a time.
// There is one result per path, in the order of paths; a manifest that
// never started because ctx ended carries the context error.
func ProcessFiles(ctx context.Context, paths []string, concurrency, maxItems int, orch *Orchestrator, opts RunOptions) []*FileResult {
	pool := NewPool(ctx, concurrency)
	pool.Start()

	for i, path := range paths {
		if !pool.Submit(&FileJob{
			Path:         path,
			MaxItems:     maxItems,
			Orchestrator: orch,
			Options:      opts,
			index:        i,
		}) {
			break
		}
	}

	out := make([]*FileResult, len(paths))
	for _, r := range pool.Wait() {
		res := r.(*FileResult)
		out[res.index] = res
	}

	for i, res := range out {
		if res == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = &FileResult{Path: paths[i], Err: notStarted(err), index: i}
		}
	}
	return out
}

func notStarted(err error) error {
	return fmt.Errorf("not started: %w", err)
}
