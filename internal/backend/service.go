package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/validation"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoFiles is returned when a run is started without files.
	ErrNoFiles = errors.New("no file provided")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrRunNotFinished is returned when a result is requested before the
	// run reached a terminal status.
	ErrRunNotFinished = errors.New("run still processing")

	// ErrRunTimedOut is the failure recorded when processing exceeds its timeout.
	ErrRunTimedOut = errors.New("run timed out")
)

// Run list bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// finishTimeout bounds the final status write, which must happen even when
// the processing context is already done.
const finishTimeout = 10 * time.Second

// Service accepts runs and evaluates them in the background.
type Service struct {
	repo      Repository
	templates validation.TemplateFinder
	engine    *validation.Engine
	checker   validation.RowChecker
	limiter   *RunLimiter
	cfg       config.RunConfig
	workers   int
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger used for background processing.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithWorkers bounds how many files of one run are checked in parallel.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewService creates a service. Close must be called to stop background work.
func NewService(repo Repository, templates validation.TemplateFinder, cfg config.RunConfig, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:      repo,
		templates: templates,
		engine:    validation.NewEngine(templates),
		checker:   validation.RowChecker{MaxIssuesPerField: validation.DefaultMaxIssuesPerField},
		limiter:   NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		cfg:       cfg,
		workers:   runtime.GOMAXPROCS(0),
		log:       slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartRun stores a pending run and starts processing it. The returned
// record reflects the state at acceptance.
func (s *Service) StartRun(ctx context.Context, files []mapping.File, specs []runapi.FileSpec) (Record, error) {
	if len(files) == 0 {
		return Record{}, ErrNoFiles
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if s.cfg.MaxFileSize > 0 && f.Size > s.cfg.MaxFileSize {
			return Record{}, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, f.Name, f.Size, s.cfg.MaxFileSize)
		}
		names = append(names, f.Name)
	}
	if err := s.ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("service closed: %w", err)
	}

	rec := Record{
		ID:        uuid.NewString(),
		Status:    runapi.StatusPending,
		Files:     names,
		Mapping:   specs,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("create run: %w", err)
	}

	s.log.Info("run accepted", "run_id", rec.ID, "files", len(files))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(rec.ID, files, specs)
	}()
	return rec, nil
}

func (s *Service) process(id string, files []mapping.File, specs []runapi.FileSpec) {
	log := s.log.With("run_id", id)
	start := time.Now()

	ctx := s.ctx
	if s.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.cfg.ProcessTimeout, ErrRunTimedOut)
		defer cancel()
	}

	res := s.evaluateRun(ctx, log, id, files, specs)

	finishCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := s.repo.Finish(finishCtx, id, res); err != nil {
		log.Error("failed to record run result", "error", err)
		return
	}

	log.Info("run finished",
		"status", res.Status,
		"issues", len(res.Issues),
		"duration", time.Since(start),
	)
}

func (s *Service) evaluateRun(ctx context.Context, log *slog.Logger, id string, files []mapping.File, specs []runapi.FileSpec) Result {
	if err := s.limiter.Acquire(ctx); err != nil {
		log.Warn("run rejected", "error", err)
		return failed(ctx, err)
	}
	defer s.limiter.Release()

	if err := s.repo.SetStatus(ctx, id, runapi.StatusRunning); err != nil {
		return failed(ctx, err)
	}

	issues, err := s.Evaluate(ctx, files, specs)
	if err != nil {
		log.Error("run evaluation failed", "error", err)
		return failed(ctx, err)
	}
	return Result{Status: runapi.StatusComplete, Issues: issues}
}

// failed records the cause of a cancelled context in place of the bare
// context error.
func failed(ctx context.Context, err error) Result {
	if cause := context.Cause(ctx); cause != nil && errors.Is(err, ctx.Err()) {
		err = cause
	}
	return Result{Status: runapi.StatusFailed, Error: err.Error()}
}

// Evaluate validates uploaded files against their mapping specs and returns
// the numbered issue list.
//
// Specs are matched to uploads by file name. Issues come in this order:
// structural checks in spec order (uploads without a spec last, as files
// without a template), specs naming a file that was not uploaded, row checks
// per file, then cross-file checks. The only error returned is context
// cancellation.
func (s *Service) Evaluate(ctx context.Context, files []mapping.File, specs []runapi.FileSpec) ([]validation.Issue, error) {
	fms, missing := pairFiles(files, specs)

	// Columns are left undiscovered so a missing header column is reported
	// once, by the row checks.
	issues, resolved := s.engine.Structural(fms)
	issues = append(issues, missing...)

	reports := make([]validation.FileReport, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, r := range resolved {
		g.Go(func() error {
			rep, err := s.checker.CheckFile(gctx, r.File, r.Template, r.Mapping)
			if err != nil {
				return fmt.Errorf("check %s: %w", r.FileName(), err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rep := range reports {
		issues = append(issues, rep.Issues...)
	}
	issues = append(issues, s.engine.CrossFile(resolved)...)
	issues = append(issues, validation.CheckReferences(reports, s.templates)...)

	if len(issues) == 0 {
		issues = append(issues, validation.Clean())
	}
	return validation.Number(issues), nil
}

// pairFiles builds one file mapping per spec whose file was uploaded,
// followed by uploads no spec names.
func pairFiles(files []mapping.File, specs []runapi.FileSpec) ([]mapping.FileMapping, []validation.Issue) {
	byName := make(map[string]mapping.File, len(files))
	for _, f := range files {
		if _, dup := byName[f.Name]; !dup {
			byName[f.Name] = f
		}
	}

	var (
		fms     []mapping.FileMapping
		missing []validation.Issue
		used    = make(map[string]bool, len(specs))
	)
	for _, spec := range specs {
		f, ok := byName[spec.FileName]
		if !ok {
			missing = append(missing, validation.Issue{
				Severity:    validation.Blocker,
				FileName:    spec.FileName,
				RuleID:      validation.RuleUnreadable,
				Description: fmt.Sprintf("File '%s' listed in the mapping was not uploaded.", spec.FileName),
			})
			continue
		}
		used[spec.FileName] = true
		fms = append(fms, mapping.FileMapping{
			File:       f,
			TemplateID: spec.TemplateID,
			Mapping:    mapping.Mapping(spec.Mapping).Clone(),
		})
	}
	for _, f := range files {
		if used[f.Name] {
			continue
		}
		used[f.Name] = true
		fms = append(fms, mapping.FileMapping{File: f, Mapping: mapping.Mapping{}})
	}
	return fms, missing
}

// GetRun returns the run with the given id.
func (s *Service) GetRun(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

// ListRuns returns the newest runs first. A limit outside 1..MaxListLimit
// falls back to DefaultListLimit or is capped.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repo.List(ctx, limit)
}

// PurgeOlderThan removes finished runs created more than maxAge ago.
func (s *Service) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
}

// Templates returns the template finder runs are validated against.
func (s *Service) Templates() validation.TemplateFinder {
	return s.templates
}

// LimiterStatus reports processing slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Wait blocks until every accepted run has finished processing.
func (s *Service) Wait() {
	s.wg.Wait()
}

// WaitForDrain waits for in-flight runs up to timeout and reports whether
// they all finished.
func (s *Service) WaitForDrain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close cancels in-flight runs and waits for them to record their result.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
