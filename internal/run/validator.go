package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/mdo/internal/mapping"
	"github.com/JonMunkholm/mdo/internal/runapi"
	"github.com/JonMunkholm/mdo/internal/validation"
)

var (
	// ErrRunTimedOut is returned when a remote run stays non-terminal past
	// the poll timeout.
	ErrRunTimedOut = errors.New("validation run timed out")

	// ErrRunFailed is returned when the backend reports a failed run or a
	// result that cannot be decoded.
	ErrRunFailed = errors.New("validation run failed")
)

// Validator executes one run over a snapshot of file mappings.
//
// Start is called synchronously by RunValidation and returns the external
// run id, or "" when no external run exists. Await blocks until the run is
// terminal. Both must return promptly once ctx is cancelled.
type Validator interface {
	Start(ctx context.Context, files []mapping.FileMapping) (string, error)
	Await(ctx context.Context, runID string, files []mapping.FileMapping) ([]validation.Issue, error)
}

// LocalValidator evaluates the structural rules in process after an
// artificial delay standing in for processing time.
type LocalValidator struct {
	engine *validation.Engine
	delay  time.Duration
}

// NewLocalValidator returns a validator backed by engine.
func NewLocalValidator(engine *validation.Engine, delay time.Duration) *LocalValidator {
	return &LocalValidator{engine: engine, delay: delay}
}

func (v *LocalValidator) Start(ctx context.Context, _ []mapping.FileMapping) (string, error) {
	return "", ctx.Err()
}

func (v *LocalValidator) Await(ctx context.Context, _ string, files []mapping.FileMapping) ([]validation.Issue, error) {
	if v.delay > 0 {
		timer := time.NewTimer(v.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return v.engine.Evaluate(files), nil
}

// RunAPI is the part of the run backend contract the remote validator uses.
type RunAPI interface {
	StartRun(ctx context.Context, files []mapping.File, specs []runapi.FileSpec) (string, error)
	GetRun(ctx context.Context, id string) (*runapi.Run, error)
}

// Poll defaults.
const (
	DefaultPollInterval   = 2 * time.Second
	DefaultPollTimeout    = 10 * time.Minute
	DefaultPollMaxBackoff = 30 * time.Second
)

// RemoteValidator submits runs to a backend and polls for their result.
type RemoteValidator struct {
	api        RunAPI
	interval   time.Duration
	timeout    time.Duration
	maxBackoff time.Duration
	log        *slog.Logger
}

// RemoteOption configures a RemoteValidator.
type RemoteOption func(*RemoteValidator)

// WithPollInterval sets the delay between polls.
func WithPollInterval(d time.Duration) RemoteOption {
	return func(v *RemoteValidator) { v.interval = d }
}

// WithPollTimeout bounds how long a run may stay non-terminal. Zero disables
// the bound.
func WithPollTimeout(d time.Duration) RemoteOption {
	return func(v *RemoteValidator) { v.timeout = d }
}

// WithPollMaxBackoff caps the delay after consecutive poll failures.
func WithPollMaxBackoff(d time.Duration) RemoteOption {
	return func(v *RemoteValidator) { v.maxBackoff = d }
}

// WithPollLogger sets the logger for poll failures.
func WithPollLogger(l *slog.Logger) RemoteOption {
	return func(v *RemoteValidator) { v.log = l }
}

// NewRemoteValidator returns a validator backed by api.
func NewRemoteValidator(api RunAPI, opts ...RemoteOption) *RemoteValidator {
	v := &RemoteValidator{
		api:        api,
		interval:   DefaultPollInterval,
		timeout:    DefaultPollTimeout,
		maxBackoff: DefaultPollMaxBackoff,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *RemoteValidator) Start(ctx context.Context, files []mapping.FileMapping) (string, error) {
	uploads := make([]mapping.File, len(files))
	for i, fm := range files {
		uploads[i] = fm.File
	}
	return v.api.StartRun(ctx, uploads, runapi.SpecsFrom(files))
}

// Await polls until the backend reports complete or failed. A failed poll
// is logged and retried with exponential backoff; it never ends the run.
func (v *RemoteValidator) Await(ctx context.Context, runID string, _ []mapping.FileMapping) ([]validation.Issue, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, v.timeout, ErrRunTimedOut)
		defer cancel()
	}

	failures := 0
	timer := time.NewTimer(v.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-timer.C:
		}

		run, err := v.api.GetRun(ctx, runID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			failures++
			delay := v.backoff(failures)
			v.log.Warn("run poll failed",
				"run_id", runID,
				"attempt", failures,
				"retry_in", delay,
				"error", err,
			)
			timer.Reset(delay)
			continue
		}
		failures = 0

		switch run.Status {
		case runapi.StatusComplete:
			issues, err := runapi.ToIssues(run.ValidationIssues)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrRunFailed, err)
			}
			return issues, nil
		case runapi.StatusFailed:
			if run.Error != "" {
				return nil, fmt.Errorf("%w: %s", ErrRunFailed, run.Error)
			}
			return nil, ErrRunFailed
		}
		timer.Reset(v.interval)
	}
}

// backoff doubles the interval per consecutive failure up to maxBackoff.
func (v *RemoteValidator) backoff(failures int) time.Duration {
	limit := max(v.maxBackoff, v.interval)
	d := v.interval
	for i := 0; i < failures && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}
