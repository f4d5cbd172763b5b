package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/validation"
)

// Status is the lifecycle state of the controller.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

var (
	// ErrRunInProgress is returned by RunValidation while a run is pending.
	ErrRunInProgress = errors.New("a validation run is already in progress")

	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("run controller is closed")
)

// Snapshot is a consistent read of the controller and its store.
type Snapshot struct {
	Status       Status
	RunID        string
	Issues       []validation.Issue
	Err          error
	FileMappings []mapping.FileMapping
}

// Ready reports whether the snapshot passes the export gate.
func (s Snapshot) Ready() bool {
	return s.Status == StatusComplete && !validation.HasBlockers(s.Issues)
}

// scope is the lifetime of one run. Results are applied only while their
// scope is the active one.
type scope struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Controller owns the run lifecycle for one store.
type Controller struct {
	store     *mapping.Store
	validator Validator
	log       *slog.Logger

	mu      sync.Mutex
	status  Status
	runID   string
	issues  []validation.Issue
	err     error
	active  *scope
	gen     uint64
	closed  bool
	changed chan struct{}

	listenerMu sync.Mutex
	listeners  map[int]chan Snapshot
	nextID     int

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController binds a controller to store. Adding files to the store from
// then on drops any current result.
func NewController(store *mapping.Store, v Validator, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("run: store is required")
	}
	if v == nil {
		return nil, errors.New("run: validator is required")
	}

	c := &Controller{
		store:     store,
		validator: v,
		log:       slog.Default(),
		status:    StatusIdle,
		changed:   make(chan struct{}),
		listeners: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	store.OnAdd(c.invalidate)
	return c, nil
}

// RunValidation starts a run over the current store contents.
//
// It returns ErrRunInProgress while a run is pending and leaves the state
// untouched. The external run is created before RunValidation returns; if
// that fails the controller returns to idle and the error is returned.
// The result itself arrives asynchronously; use Wait or Subscribe.
func (c *Controller) RunValidation(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusPending {
		c.mu.Unlock()
		return ErrRunInProgress
	}
	files := c.store.FileMappings()
	s := c.openScopeLocked()
	c.setLocked(StatusPending, "", nil, nil)
	c.mu.Unlock()

	startCtx, cancelStart := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancelStart)
	runID, err := c.validator.Start(startCtx, files)
	stop()
	cancelStart()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.log.Error("start validation run", "files", len(files), "error", err)
		if c.active == s {
			c.closeScopeLocked()
			c.setLocked(StatusIdle, "", nil, nil)
		}
		return fmt.Errorf("start run: %w", err)
	}
	if c.active != s {
		c.log.Debug("validation run superseded before start completed", "run_id", runID)
		return nil
	}

	c.runID = runID
	c.notifyLocked()
	c.log.Info("validation run started", "run_id", runID, "files", len(files))

	c.wg.Add(1)
	go c.await(s, runID, files)
	return nil
}

func (c *Controller) await(s *scope, runID string, files []mapping.FileMapping) {
	defer c.wg.Done()

	issues, err := c.validator.Await(s.ctx, runID, files)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != s {
		c.log.Debug("stale run result dropped", "run_id", runID, "scope", s.gen)
		return
	}
	c.closeScopeLocked()

	if err != nil {
		c.log.Error("validation run failed", "run_id", runID, "error", err)
		c.setLocked(StatusFailed, runID, nil, err)
		return
	}

	summary := validation.Summarize(issues)
	c.log.Info("validation run complete",
		"run_id", runID,
		"blockers", summary.Blockers,
		"warnings", summary.Warnings,
		"infos", summary.Infos,
	)
	c.setLocked(StatusComplete, runID, slices.Clone(issues), nil)
}

// ResetRun cancels any run, clears the result and empties the store.
func (c *Controller) ResetRun() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeScopeLocked()
	c.store.Reset()
	c.setLocked(StatusIdle, "", nil, nil)
}

// invalidate drops the current result because the store gained files.
// Mappings are kept.
func (c *Controller) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusIdle && c.active == nil {
		return
	}
	c.log.Info("validation result invalidated by new files", "status", c.status, "run_id", c.runID)
	c.closeScopeLocked()
	c.setLocked(StatusIdle, "", nil, nil)
}

// Close cancels any run and releases subscribers. It waits for background
// work to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.active != nil {
		c.closeScopeLocked()
		c.setLocked(StatusIdle, "", nil, nil)
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.listenerMu.Lock()
	for id, ch := range c.listeners {
		close(ch)
		delete(c.listeners, id)
	}
	c.listenerMu.Unlock()
}

// Status returns the current lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Issues returns the issues of the last completed run.
func (c *Controller) Issues() []validation.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.issues)
}

// RunID returns the external id of the current run, if any.
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Err returns the error of a failed run.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ready reports whether the last run completed without Blockers.
func (c *Controller) Ready() bool {
	return c.Snapshot().Ready()
}

// Snapshot returns the current state together with the store contents.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until no run is pending and returns the resulting snapshot.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		if c.status != StatusPending {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return snap, nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		case <-changed:
		}
	}
}

// Subscribe returns a channel receiving a snapshot after every state change,
// starting with the current one. Slow subscribers miss intermediate
// updates. The returned function unsubscribes and closes the channel.
// After Close the channel holds the final snapshot and is already closed.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 10)

	c.mu.Lock()
	ch <- c.snapshotLocked()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.listenerMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = ch
	c.listenerMu.Unlock()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.listenerMu.Lock()
			defer c.listenerMu.Unlock()
			if _, ok := c.listeners[id]; ok {
				delete(c.listeners, id)
				close(ch)
			}
		})
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:       c.status,
		RunID:        c.runID,
		Issues:       slices.Clone(c.issues),
		Err:          c.err,
		FileMappings: c.store.FileMappings(),
	}
}

func (c *Controller) openScopeLocked() *scope {
	c.closeScopeLocked()
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	c.active = &scope{gen: c.gen, ctx: ctx, cancel: cancel}
	return c.active
}

func (c *Controller) closeScopeLocked() {
	if c.active != nil {
		c.active.cancel()
		c.active = nil
	}
}

func (c *Controller) setLocked(status Status, runID string, issues []validation.Issue, err error) {
	c.status = status
	c.runID = runID
	c.issues = issues
	c.err = err
	c.notifyLocked()
}

// notifyLocked wakes waiters and sends the new state to subscribers.
func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})

	snap := c.snapshotLocked()
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	for _, ch := range c.listeners {
		select {
		case ch <- snap:
		default:
			// Listener is slow, skip this update
		}
	}
}
