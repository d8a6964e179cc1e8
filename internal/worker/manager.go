package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/veritas/internal/model"
)

// ErrRunNotFound is returned for unknown or expired run IDs
var ErrRunNotFound = errors.New("run not found")

// ErrShuttingDown is returned by Start once Shutdown has begun
var ErrShuttingDown = errors.New("manager is shutting down")

type tracked struct {
	run    *model.BatchRun
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	summary *model.RunSummary
}

// Manager starts runs in the background and keeps them addressable by ID.
// Finished runs stay queryable for the retention period.
type Manager struct {
	orch      *Orchestrator
	opts      RunOptions
	retention time.Duration

	runs *gocache.Cache

	mu       sync.Mutex
	wg       sync.WaitGroup
	baseCtx  context.Context
	stopAll  context.CancelFunc
	stopping bool
}

// NewManager creates a manager whose runs use opts as the template for
// their RunOptions. A non-positive retention keeps finished runs forever.
func NewManager(orch *Orchestrator, opts RunOptions, retention time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	exp := retention
	if retention <= 0 {
		exp = gocache.NoExpiration
	}

	return &Manager{
		orch:      orch,
		opts:      opts,
		retention: retention,
		runs:      gocache.New(exp, 10*time.Minute),
		baseCtx:   ctx,
		stopAll:   cancel,
	}
}

// Start creates a run over items for ownerID and processes it in the
// background. The returned run is already registered.
func (m *Manager) Start(ownerID string, items []model.BatchItem) (*model.BatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return nil, ErrShuttingDown
	}

	run := model.NewBatchRun(uuid.NewString(), ownerID, items)
	ctx, cancel := context.WithCancel(m.baseCtx)
	t := &tracked{run: run, cancel: cancel, done: make(chan struct{})}

	// Running runs never expire
	m.runs.Set(run.ID, t, gocache.NoExpiration)

	opts := m.opts
	opts.OwnerID = ownerID

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer close(t.done)

		summary := m.orch.Run(ctx, run, opts)

		t.mu.Lock()
		t.summary = &summary
		t.mu.Unlock()

		m.runs.Set(run.ID, t, gocache.DefaultExpiration)
	}()

	return run, nil
}

// Get returns the run with id
func (m *Manager) Get(id string) (*model.BatchRun, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.run, nil
}

// Summary returns the summary of a run once it has ended
func (m *Manager) Summary(id string) (*model.RunSummary, bool) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.summary == nil {
		return nil, false
	}
	s := *t.summary
	return &s, true
}

// Cancel requests a stop. The in-flight item still completes. Cancelling a
// run that already ended is a no-op.
func (m *Manager) Cancel(id string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}
	t.cancel()
	return nil
}

// Wait blocks until run id has ended or ctx is done
func (m *Manager) Wait(ctx context.Context, id string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every active run and waits for them to end or ctx to expire
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()

	m.stopAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lookup(id string) (*tracked, error) {
	v, ok := m.runs.Get(id)
	if !ok {
		return nil, ErrRunNotFound
	}
	return v.(*tracked), nil
}
