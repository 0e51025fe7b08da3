package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/pkg/natsutil"
)

const (
	// ProcessSubject carries process_document tasks.
	ProcessSubject = "ragdesk.ingest.process"
	// DLQSubject receives tasks that exhausted their retries.
	DLQSubject = "ragdesk.ingest.dlq"
	// StatusSubject carries task state transitions.
	StatusSubject = "ragdesk.ingest.status"
	// QueueGroup load-balances tasks across worker processes.
	QueueGroup = "ragdesk-ingest"

	// MaxRetries is how many times a failed task is requeued.
	MaxRetries = 3
	// RetryBackoff is the fixed delay before a requeue.
	RetryBackoff = 5 * time.Second
)

// Runner executes one ingestion task.
type Runner interface {
	Run(ctx context.Context, task domain.Task) (Outcome, error)
}

// DeadLetter is published to DLQSubject when a task is abandoned.
type DeadLetter struct {
	Task    domain.Task `json:"task"`
	Error   string      `json:"error"`
	Retries int         `json:"retries"`
}

// WorkerOptions tunes the consumer.
type WorkerOptions struct {
	PoolSize   int
	MaxRetries int
	Backoff    time.Duration
}

// Worker consumes tasks from NATS and runs them on a bounded goroutine pool.
type Worker struct {
	nc      *nats.Conn
	runner  Runner
	pool    *ants.Pool
	opts    WorkerOptions
	metrics *Metrics
	log     *slog.Logger
	sub     *nats.Subscription

	// after schedules f after d; replaced in tests.
	after func(d time.Duration, f func())
}

// NewWorker creates a Worker. Call Start to begin consuming.
func NewWorker(nc *nats.Conn, runner Runner, opts WorkerOptions, m *Metrics, logger *slog.Logger) (*Worker, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = RetryBackoff
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("ingest: worker pool: %w", err)
	}
	return &Worker{
		nc:      nc,
		runner:  runner,
		pool:    pool,
		opts:    opts,
		metrics: m,
		log:     logger,
		after:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}, nil
}

// Start subscribes to ProcessSubject in the worker queue group.
func (w *Worker) Start() error {
	sub, err := w.nc.QueueSubscribe(ProcessSubject, QueueGroup, w.handle)
	if err != nil {
		return fmt.Errorf("ingest: subscribe %s: %w", ProcessSubject, err)
	}
	w.sub = sub
	w.log.Info("ingest worker started", "subject", ProcessSubject, "pool", w.opts.PoolSize)
	return nil
}

// Stop unsubscribes and waits up to timeout for running tasks.
func (w *Worker) Stop(timeout time.Duration) error {
	if w.sub != nil {
		if err := w.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			w.log.Warn("unsubscribe failed", "err", err)
		}
	}
	return w.pool.ReleaseTimeout(timeout)
}

func (w *Worker) handle(msg *nats.Msg) {
	ctx, task, err := natsutil.Decode[domain.Task](msg)
	if err != nil {
		w.log.Error("ingest: malformed task dropped", "err", err)
		return
	}
	retries := natsutil.RetryCount(msg)
	prior := natsutil.RetryCause(msg)
	task.Attempt = retries + 1

	if err := w.pool.Submit(func() { w.process(ctx, task, retries, prior) }); err != nil {
		// Pool closed or overloaded: hand the task back without spending a retry.
		w.log.Warn("ingest: pool rejected task, requeueing", "task_id", task.ID, "err", err)
		w.after(w.opts.Backoff, func() { w.requeue(ctx, task, retries, prior) })
	}
}

// process runs one attempt. prior is the error of the previous attempt, if
// any, and is kept as the reported cause once a retry finds the source
// already consumed.
func (w *Worker) process(ctx context.Context, task domain.Task, retries int, prior string) {
	w.metrics.InFlight.Inc()
	defer w.metrics.InFlight.Dec()

	log := w.log.With("task_id", task.ID, "attempt", task.Attempt)
	_, err := w.runner.Run(ctx, task)
	if err == nil {
		return
	}
	if prior != "" && errors.Is(err, domain.ErrNotFound) {
		err = &retryError{cause: prior, err: err}
	}

	if permanent(err) || retries >= w.opts.MaxRetries {
		w.deadLetter(ctx, task, err, retries)
		return
	}

	w.metrics.Retries.Inc()
	log.Warn("ingest: task failed, retrying", "err", err, "backoff", w.opts.Backoff)
	w.recordState(ctx, task, domain.StateRetrying, err)
	w.after(w.opts.Backoff, func() { w.requeue(ctx, task, retries+1, err.Error()) })
}

// retryError reports the failure that caused a redelivery together with the
// error of the redelivered attempt.
type retryError struct {
	cause string
	err   error
}

func (e *retryError) Error() string { return e.cause + " (on retry: " + e.err.Error() + ")" }

func (e *retryError) Unwrap() error { return e.err }

// maxCauseLen bounds the cause carried in a message header.
const maxCauseLen = 1024

func (w *Worker) requeue(ctx context.Context, task domain.Task, retries int, cause string) {
	h := nats.Header{}
	h.Set(natsutil.RetryHeader, strconv.Itoa(retries))
	if cause != "" {
		cause = strings.Join(strings.Fields(cause), " ")
		if len(cause) > maxCauseLen {
			cause = cause[:maxCauseLen]
		}
		h.Set(natsutil.CauseHeader, cause)
	}
	if err := natsutil.PublishWithHeader(ctx, w.nc, ProcessSubject, h, task); err != nil {
		w.log.Error("ingest: retry publish failed", "task_id", task.ID, "err", err)
	}
}

func (w *Worker) deadLetter(ctx context.Context, task domain.Task, cause error, retries int) {
	w.metrics.DeadLetters.Inc()
	w.log.Error("ingest: task abandoned", "task_id", task.ID, "retries", retries, "err", cause)
	dl := DeadLetter{Task: task, Error: cause.Error(), Retries: retries}
	if err := natsutil.Publish(ctx, w.nc, DLQSubject, dl); err != nil {
		w.log.Error("ingest: DLQ publish failed", "err", err)
	}
	w.recordState(ctx, task, domain.StateFailed, cause)
}

func (w *Worker) recordState(ctx context.Context, task domain.Task, state domain.TaskState, cause error) {
	s := domain.TaskStatus{
		TaskID:    task.ID,
		TenantID:  task.TenantID,
		FileName:  task.FileName,
		State:     state,
		Attempt:   task.Attempt,
		UpdatedAt: time.Now().UTC(),
	}
	if cause != nil {
		s.Error = cause.Error()
	}
	if err := natsutil.Publish(ctx, w.nc, StatusSubject, s); err != nil {
		w.log.Warn("ingest: status publish failed", "err", err)
	}
}

// permanent reports errors that a retry cannot fix. The source file is
// removed after every attempt, so a retry that finds it missing stops here.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedType) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrParse) ||
		errors.Is(err, domain.ErrInvalidTenant) ||
		errors.Is(err, domain.ErrInvalidFileName)
}

// StatusPublisher returns a StateRecorder that publishes transitions on
// StatusSubject for the API to persist.
func StatusPublisher(nc *nats.Conn, logger *slog.Logger) StateRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return RecorderFunc(func(ctx context.Context, s domain.TaskStatus) {
		if err := natsutil.Publish(ctx, nc, StatusSubject, s); err != nil {
			logger.Warn("ingest: status publish failed", "task_id", s.TaskID, "err", err)
		}
	})
}

// Enqueue publishes a task for the worker pool.
func Enqueue(ctx context.Context, nc *nats.Conn, task domain.Task) error {
	if err := natsutil.Publish(ctx, nc, ProcessSubject, task); err != nil {
		return fmt.Errorf("ingest: enqueue %s: %w", task.ID, err)
	}
	return nil
}
