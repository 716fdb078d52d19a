// Package scheduler dispatches tool-run tasks with bounded parallelism,
// per-task timeouts, retry with exponential backoff, and cancellation
// (spec.md §4.4). It generalizes the teacher's
// shared.ForEveryStringWithBoundedGoroutines guarded-channel idiom to
// typed tasks with retry, and follows the backoff formula and
// gather-with-partial-results shape of the original scheduler.
package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scanio-git/orchestrator/internal/finding"
	"github.com/scanio-git/orchestrator/internal/orcherrors"
)

// Config holds the scheduler's tunables, spec.md §4.4.
type Config struct {
	MaxParallel    int
	PerTaskTimeout time.Duration
	MaxRetries     int
	BaseBackoff    time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration
	// RetryExitCodes whitelists ExecutionFailed exit codes that are
	// retried in addition to Timeout. Empty means only Timeout retries.
	RetryExitCodes map[int]bool
}

// DefaultConfig matches spec.md §4.4's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallel:    4,
		PerTaskTimeout: 5 * time.Minute,
		MaxRetries:     3,
		BaseBackoff:    time.Second,
		BackoffFactor:  2,
		MaxBackoff:     time.Minute,
		RetryExitCodes: map[int]bool{},
	}
}

// Task is one unit of dispatchable work: a closure that resolves to
// findings and diagnostics, or a taxonomized failure from orcherrors.
type Task struct {
	ID   string
	Run  func(ctx context.Context) ([]finding.Finding, error)
}

// Result is one task's outcome after the scheduler's retry policy has
// been exhausted or the task has succeeded.
type Result struct {
	TaskID     string
	Findings   []finding.Finding
	Err        error
	Attempts   int
	Canceled   bool
}

// Scheduler dispatches tasks under a bounded-parallelism guard.
type Scheduler struct {
	cfg Config
	log hclog.Logger
}

// New constructs a Scheduler. A zero Config.MaxParallel falls back to
// DefaultConfig's value.
func New(cfg Config, log hclog.Logger) *Scheduler {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultConfig().MaxParallel
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = DefaultConfig().BackoffFactor
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Scheduler{cfg: cfg, log: log}
}

// RunAll dispatches every task under the bounded-parallelism guard and
// waits for all to finish (or ctx to be canceled). Results are returned
// in the same order as tasks; the scheduler makes no ordering guarantee
// about completion (spec.md §4.4, "Ordering guarantees").
func (s *Scheduler) RunAll(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	guard := make(chan struct{}, s.cfg.MaxParallel)
	done := make(chan struct{})

	go func() {
		defer close(done)
		remaining := len(tasks)
		if remaining == 0 {
			return
		}
		finished := make(chan int, remaining)
		for i, task := range tasks {
			if ctx.Err() != nil {
				results[i] = Result{TaskID: task.ID, Err: &orcherrors.Canceled{Reason: ctx.Err().Error()}, Canceled: true}
				finished <- i
				continue
			}
			select {
			case guard <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{TaskID: task.ID, Err: &orcherrors.Canceled{Reason: ctx.Err().Error()}, Canceled: true}
				finished <- i
				continue
			}
			go func(i int, t Task) {
				defer func() { <-guard }()
				results[i] = s.runWithRetry(ctx, t)
				finished <- i
			}(i, task)
		}
		for range results {
			<-finished
		}
	}()

	<-done
	return results
}

func (s *Scheduler) runWithRetry(ctx context.Context, t Task) Result {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return Result{TaskID: t.ID, Err: &orcherrors.Canceled{Reason: ctx.Err().Error()}, Attempts: attempt, Canceled: true}
		}

		taskCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.PerTaskTimeout > 0 {
			taskCtx, cancel = context.WithTimeout(ctx, s.cfg.PerTaskTimeout)
		}
		findings, err := t.Run(taskCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return Result{TaskID: t.ID, Findings: findings, Attempts: attempt + 1}
		}
		lastErr = err

		if !s.retryable(err) || attempt == s.cfg.MaxRetries {
			return Result{TaskID: t.ID, Findings: findings, Err: err, Attempts: attempt + 1}
		}

		s.log.Warn("task failed, retrying", "task_id", t.ID, "attempt", attempt+1, "error", err)
		delay := s.backoff(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{TaskID: t.ID, Err: &orcherrors.Canceled{Reason: ctx.Err().Error()}, Attempts: attempt + 1, Canceled: true}
		}
	}
	return Result{TaskID: t.ID, Err: lastErr, Attempts: s.cfg.MaxRetries + 1}
}

// backoff computes min(max_backoff, base_backoff * factor^attempt),
// spec.md §4.4's exact formula.
func (s *Scheduler) backoff(attempt int) time.Duration {
	scaled := float64(s.cfg.BaseBackoff) * math.Pow(s.cfg.BackoffFactor, float64(attempt))
	d := time.Duration(scaled)
	if s.cfg.MaxBackoff > 0 && d > s.cfg.MaxBackoff {
		return s.cfg.MaxBackoff
	}
	return d
}

// retryable applies spec.md §4.4's default retry_on policy: Timeout
// always, ExecutionFailed only when its exit code is whitelisted, never
// InvalidInput or ParseError.
func (s *Scheduler) retryable(err error) bool {
	switch e := err.(type) {
	case *orcherrors.Timeout:
		return true
	case *orcherrors.ExecutionFailed:
		return s.cfg.RetryExitCodes[e.ExitCode]
	default:
		return false
	}
}
