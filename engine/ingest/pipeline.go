// Package ingest runs uploaded documents through parse, chunk, embed and
// index stages, and consumes ingestion tasks from NATS.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/engine/index"
	"github.com/WessleyAI/ragdesk/pkg/fn"
)

// ErrPartialIndex marks a run where the index rejected some chunks and the
// pipeline is configured to treat that as a failure.
var ErrPartialIndex = errors.New("partial index failure")

// Parser extracts text from a stored document.
type Parser interface {
	Extract(path string, t domain.DocType) (string, error)
}

// Splitter cuts text into chunks.
type Splitter interface {
	Split(text string) ([]string, error)
}

// Embedder produces one vector per text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer is the write side of the search index.
type Indexer interface {
	EnsureSchema(ctx context.Context) error
	BulkIndex(ctx context.Context, chunks []domain.Chunk) index.BulkResult
}

// StateRecorder receives every state transition of a task.
type StateRecorder interface {
	Record(ctx context.Context, status domain.TaskStatus)
}

// RecorderFunc adapts a function to StateRecorder.
type RecorderFunc func(context.Context, domain.TaskStatus)

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, s domain.TaskStatus) { f(ctx, s) }

// Deps holds the external dependencies for the ingestion pipeline. They are
// constructed once at startup and shared by every run.
type Deps struct {
	Parser   Parser
	Splitter Splitter
	Embedder Embedder
	Index    Indexer
	Recorder StateRecorder
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Options tunes pipeline policy.
type Options struct {
	// FailOnPartialIndex fails the run when any chunk is rejected by the
	// index. By default rejected chunks are logged and counted only.
	FailOnPartialIndex bool
}

// Outcome summarises a finished run.
type Outcome struct {
	Status  domain.TaskState `json:"status"`
	Chunks  int              `json:"chunks"`
	Indexed int              `json:"indexed"`
	Failed  int              `json:"failed"`
}

// Pipeline is safe for concurrent use; runs share no mutable state.
type Pipeline struct {
	deps   Deps
	opts   Options
	remove func(string) error
	log    *slog.Logger
}

// NewPipeline constructs the pipeline.
func NewPipeline(deps Deps, opts Options) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Recorder == nil {
		deps.Recorder = RecorderFunc(func(context.Context, domain.TaskStatus) {})
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Pipeline{deps: deps, opts: opts, remove: os.Remove, log: log}
}

type parsedDoc struct {
	doc  domain.Document
	text string
}

type chunkedDoc struct {
	doc    domain.Document
	chunks []string
}

type embeddedDoc struct {
	chunkedDoc
	vectors [][]float32
}

// Run ingests one task. The task's source file is deleted on every path,
// including failures that the queue will retry. An empty document ends in
// StateSkipped with a nil error. A failed run records no terminal state: the
// caller decides between retrying and failed.
func (p *Pipeline) Run(ctx context.Context, task domain.Task) (Outcome, error) {
	log := p.log.With("task_id", task.ID, "tenant_id", task.TenantID, "file", task.FileName, "attempt", task.Attempt)
	defer p.cleanup(log, task.FilePath)

	start := time.Now()
	p.record(ctx, task, domain.TaskStatus{State: domain.StateReceived})

	if err := domain.ValidateTask(task); err != nil {
		return p.fail(log, task, Outcome{}, err)
	}

	var out Outcome
	run := fn.Then(
		enter(p, log, task, domain.StateParsing, fn.TracedStage("ingest.parse", p.parse)),
		fn.Then(
			enter(p, log, task, domain.StateChunking, fn.TracedStage("ingest.chunk", p.chunk(&out))),
			fn.Then(
				enter(p, log, task, domain.StateEmbedding, fn.TracedStage("ingest.embed", p.embed)),
				enter(p, log, task, domain.StateIndexing, fn.TracedStage("ingest.index", p.index(log, &out))),
			),
		),
	)

	_, err := run(ctx, task).Unwrap()
	p.deps.Metrics.Duration.Since(start)
	switch {
	case errors.Is(err, domain.ErrEmptyDocument):
		out.Status = domain.StateSkipped
		p.deps.Metrics.Skipped.Inc()
		p.record(ctx, task, statusOf(out))
		log.Info("document skipped: no text")
		return out, nil
	case err != nil:
		return p.fail(log, task, out, err)
	}

	out.Status = domain.StateDone
	p.deps.Metrics.Done.Inc()
	p.record(ctx, task, statusOf(out))
	log.Info("document ingested", "chunks", out.Chunks, "indexed", out.Indexed, "failed", out.Failed, "duration", time.Since(start))
	return out, nil
}

func (p *Pipeline) parse(_ context.Context, task domain.Task) fn.Result[parsedDoc] {
	doc := task.Document()
	text, err := p.deps.Parser.Extract(doc.Path, doc.Type)
	if err != nil {
		return fn.Err[parsedDoc](err)
	}
	if strings.TrimSpace(text) == "" {
		return fn.Err[parsedDoc](domain.ErrEmptyDocument)
	}
	return fn.Ok(parsedDoc{doc: doc, text: text})
}

func (p *Pipeline) chunk(out *Outcome) fn.Stage[parsedDoc, chunkedDoc] {
	return func(_ context.Context, doc parsedDoc) fn.Result[chunkedDoc] {
		chunks, err := p.deps.Splitter.Split(doc.text)
		if err != nil {
			return fn.Err[chunkedDoc](err)
		}
		if len(chunks) == 0 {
			return fn.Err[chunkedDoc](domain.ErrEmptyDocument)
		}
		out.Chunks = len(chunks)
		p.deps.Metrics.Chunks.Add(int64(len(chunks)))
		return fn.Ok(chunkedDoc{doc: doc.doc, chunks: chunks})
	}
}

func (p *Pipeline) embed(ctx context.Context, doc chunkedDoc) fn.Result[embeddedDoc] {
	vectors, err := p.deps.Embedder.EmbedDocuments(ctx, doc.chunks)
	if err != nil {
		return fn.Err[embeddedDoc](err)
	}
	if len(vectors) != len(doc.chunks) {
		return fn.Errf[embeddedDoc]("ingest: %d vectors for %d chunks", len(vectors), len(doc.chunks))
	}
	return fn.Ok(embeddedDoc{chunkedDoc: doc, vectors: vectors})
}

func (p *Pipeline) index(log *slog.Logger, out *Outcome) fn.Stage[embeddedDoc, Outcome] {
	return func(ctx context.Context, doc embeddedDoc) fn.Result[Outcome] {
		if err := p.deps.Index.EnsureSchema(ctx); err != nil {
			return fn.Err[Outcome](err)
		}
		records := make([]domain.Chunk, len(doc.chunks))
		for i, text := range doc.chunks {
			records[i] = domain.Chunk{
				Text:     text,
				TenantID: doc.doc.TenantID,
				FileName: doc.doc.FileName,
				Index:    i,
				Vector:   doc.vectors[i],
			}
		}

		res := p.deps.Index.BulkIndex(ctx, records)
		out.Indexed = res.Succeeded
		out.Failed = len(res.Failed)
		p.deps.Metrics.Indexed.Add(int64(res.Succeeded))
		p.deps.Metrics.Rejected.Add(int64(len(res.Failed)))
		if len(res.Failed) > 0 {
			log.Warn("chunks rejected by index",
				"failed", len(res.Failed), "indexed", res.Succeeded, "err", res.Err())
			if p.opts.FailOnPartialIndex {
				return fn.Err[Outcome](fmt.Errorf("%w: %w", ErrPartialIndex, res.Err()))
			}
		}
		return fn.Ok(*out)
	}
}

// enter records a state transition and logs stage timing around s.
func enter[In, Out any](p *Pipeline, log *slog.Logger, task domain.Task, state domain.TaskState, s fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		p.record(ctx, task, domain.TaskStatus{State: state})
		log.Debug("stage.enter", "stage", state)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", state, "duration", time.Since(start))
		}()
		return s(ctx, in)
	}
}

func (p *Pipeline) fail(log *slog.Logger, task domain.Task, out Outcome, err error) (Outcome, error) {
	out.Status = domain.StateFailed
	p.deps.Metrics.Failed.Inc()
	log.Error("ingestion failed", "err", err)
	return out, fmt.Errorf("ingest: %s: %w", task.FileName, err)
}

func (p *Pipeline) record(ctx context.Context, task domain.Task, s domain.TaskStatus) {
	s.TaskID = task.ID
	s.TenantID = task.TenantID
	s.FileName = task.FileName
	s.Attempt = task.Attempt
	s.UpdatedAt = time.Now().UTC()
	p.deps.Recorder.Record(ctx, s)
}

func statusOf(out Outcome) domain.TaskStatus {
	return domain.TaskStatus{
		State:   out.Status,
		Chunks:  out.Chunks,
		Indexed: out.Indexed,
		Failed:  out.Failed,
	}
}

// cleanup removes the temporary source file. A file that is already gone
// is not an error.
func (p *Pipeline) cleanup(log *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := p.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("temp file cleanup failed", "path", path, "err", err)
	}
}
