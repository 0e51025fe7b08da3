package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/engine/rag"
	"github.com/WessleyAI/ragdesk/pkg/metrics"
)

// queryErrorMessage is shown for any failure on the query path. It must
// differ from rag.NotFoundAnswer.
const queryErrorMessage = "An error occurred while processing your query."

// Querier answers tenant questions.
type Querier interface {
	Query(ctx context.Context, q domain.Query) (*rag.Answer, error)
}

// Enqueuer hands an ingestion task to the workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, task domain.Task) error
}

// EnqueueFunc adapts a function to Enqueuer.
type EnqueueFunc func(ctx context.Context, task domain.Task) error

func (f EnqueueFunc) Enqueue(ctx context.Context, task domain.Task) error { return f(ctx, task) }

// StatusStore persists task statuses.
type StatusStore interface {
	Put(ctx context.Context, st domain.TaskStatus) error
	Get(ctx context.Context, id string) (domain.TaskStatus, error)
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	query     Querier
	queue     Enqueuer
	tasks     StatusStore
	reg       *metrics.Registry
	uploadDir string
	maxUpload int64
	preloaded string
	ready     func() error
	log       *slog.Logger
}

type ServerConfig struct {
	UploadDir       string
	MaxUploadBytes  int64
	PreloadedTenant string
	// Ready reports whether downstream dependencies are reachable. Nil
	// means always ready.
	Ready func() error
}

func NewServer(q Querier, e Enqueuer, s StatusStore, reg *metrics.Registry, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.PreloadedTenant == "" {
		cfg.PreloadedTenant = domain.DefaultPreloadedTenant
	}
	if cfg.Ready == nil {
		cfg.Ready = func() error { return nil }
	}
	return &Server{
		query:     q,
		queue:     e,
		tasks:     s,
		reg:       reg,
		uploadDir: cfg.UploadDir,
		maxUpload: cfg.MaxUploadBytes,
		preloaded: cfg.PreloadedTenant,
		ready:     cfg.Ready,
		log:       logger,
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.Handle("GET /metrics", s.reg.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := s.ready(); err != nil {
		s.log.Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadResponse is returned with 202 Accepted.
type UploadResponse struct {
	TaskID   string           `json:"task_id"`
	FileName string           `json:"file_name"`
	State    domain.TaskState `json:"state"`
}

// handleUpload accepts multipart fields tenant_id and file. The declared
// type is validated before anything touches disk.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	var tenant string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		switch part.FormName() {
		case "tenant_id":
			b, err := io.ReadAll(io.LimitReader(part, 256))
			if err != nil {
				writeError(w, http.StatusBadRequest, "malformed tenant_id")
				return
			}
			tenant = string(b)
		case "file":
			// tenant_id must precede the file so the upload can be rejected
			// without buffering it.
			s.acceptFile(w, r, tenant, part.FileName(), part.Header.Get("Content-Type"), part)
			return
		}
		part.Close()
	}
}

func (s *Server) acceptFile(w http.ResponseWriter, r *http.Request, tenant, name, declared string, body io.Reader) {
	ctx := r.Context()
	if err := domain.ValidateTenant(tenant); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant_id")
		return
	}
	if tenant == s.preloaded {
		writeError(w, http.StatusForbidden, domain.ErrReservedTenant.Error())
		return
	}
	if err := domain.ValidateFileName(name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	docType, err := s.docType(name, declared)
	if err != nil {
		s.log.Info("upload rejected", "tenant_id", tenant, "file", name, "mime", declared)
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type: pdf, docx, txt and md are accepted")
		return
	}

	f, err := os.CreateTemp(s.uploadDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		s.log.Error("create upload file", "err", err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	_, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(f.Name())
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.log.Error("store upload", "err", err)
		writeError(w, http.StatusBadRequest, "upload interrupted")
		return
	}

	task := domain.Task{
		ID:       uuid.NewString(),
		FilePath: f.Name(),
		TenantID: tenant,
		FileName: name,
		Type:     docType,
	}
	st := domain.TaskStatus{TaskID: task.ID, TenantID: tenant, FileName: name, State: domain.StateReceived, UpdatedAt: time.Now().UTC()}
	if err := s.tasks.Put(ctx, st); err != nil {
		s.log.Warn("record received status", "task_id", task.ID, "err", err)
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		os.Remove(f.Name())
		s.log.Error("enqueue failed", "task_id", task.ID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
		return
	}
	s.log.Info("upload accepted", "task_id", task.ID, "tenant_id", tenant, "file", name, "doc_type", docType)
	writeJSON(w, http.StatusAccepted, UploadResponse{TaskID: task.ID, FileName: name, State: domain.StateReceived})
}

// docType trusts the declared MIME type, except for the generic types
// browsers send for unknown extensions, where the extension decides.
func (s *Server) docType(name, declared string) (domain.DocType, error) {
	mt, _, err := mime.ParseMediaType(declared)
	if declared == "" || (err == nil && mt == "application/octet-stream") {
		return domain.DocTypeFromName(name)
	}
	return domain.DocTypeFromMIME(declared)
}

// QueryResponse is the body of a successful POST /api/query.
type QueryResponse struct {
	Answer  string      `json:"answer"`
	Intent  rag.Intent  `json:"intent"`
	Outcome rag.Outcome `json:"outcome"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q domain.Query
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ans, err := s.query.Query(r.Context(), q)
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query text cannot be empty")
		return
	case errors.Is(err, domain.ErrInvalidTenant):
		writeError(w, http.StatusBadRequest, "invalid tenant_id")
		return
	case err != nil:
		s.log.Error("query failed", "tenant_id", q.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, queryErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Answer: ans.Text, Intent: ans.Intent, Outcome: ans.Outcome})
}

// handleTask only reveals a task to the tenant that uploaded it.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tenant := r.URL.Query().Get("tenant_id")
	st, err := s.tasks.Get(r.Context(), id)
	if errors.Is(err, domain.ErrTaskNotFound) || (err == nil && st.TenantID != tenant) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.log.Error("task lookup", "task_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
