// Package domain defines the core types, sentinel errors and boundary
// validation shared by the ingestion and query pipelines. It is the
// validation gate at every pipeline entry point.
package domain

import "time"

// DefaultPreloadedTenant is the tenant id whose chunks are visible to every
// tenant. Deployments may override it through configuration.
const DefaultPreloadedTenant = "_preloaded_"

// DocType is one of the document formats the parser understands.
type DocType string

const (
	DocPDF  DocType = "pdf"
	DocDOCX DocType = "docx"
	DocTXT  DocType = "txt"
	DocMD   DocType = "md"
)

// Declared MIME types accepted at the upload boundary.
const (
	MIMEPDF      = "application/pdf"
	MIMEDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText     = "text/plain"
	MIMEMarkdown = "text/markdown"
)

var mimeTypes = map[string]DocType{
	MIMEPDF:      DocPDF,
	MIMEDOCX:     DocDOCX,
	MIMEText:     DocTXT,
	MIMEMarkdown: DocMD,
}

var extTypes = map[string]DocType{
	".pdf":      DocPDF,
	".docx":     DocDOCX,
	".txt":      DocTXT,
	".md":       DocMD,
	".markdown": DocMD,
}

// Document is an uploaded file waiting for ingestion. Path points at
// temporary storage that is removed once the pipeline finishes with it.
type Document struct {
	FileName string  `json:"file_name"`
	TenantID string  `json:"tenant_id"`
	Path     string  `json:"path"`
	Type     DocType `json:"doc_type"`
}

// Chunk is one indexed window of document text.
type Chunk struct {
	Text     string    `json:"text"`
	TenantID string    `json:"tenant_id"`
	FileName string    `json:"file_name"`
	Index    int       `json:"chunk_index"`
	Vector   []float32 `json:"-"`
}

// Query is a single question from a tenant. Session carries optional
// conversation text supplied by the caller.
type Query struct {
	TenantID string `json:"tenant_id"`
	Text     string `json:"query"`
	Session  string `json:"session_context,omitempty"`
}

// Task is the unit of work handed to the ingestion queue.
type Task struct {
	ID       string  `json:"task_id"`
	FilePath string  `json:"file_path"`
	TenantID string  `json:"tenant_id"`
	FileName string  `json:"file_name"`
	Type     DocType `json:"doc_type"`
	// Attempt is set by the worker from the redelivery count; 1 is the
	// first delivery.
	Attempt int `json:"-"`
}

// Document returns the document the task refers to.
func (t Task) Document() Document {
	return Document{FileName: t.FileName, TenantID: t.TenantID, Path: t.FilePath, Type: t.Type}
}

// TaskState is a step of the ingestion state machine.
type TaskState string

const (
	StateReceived  TaskState = "received"
	StateParsing   TaskState = "parsing"
	StateChunking  TaskState = "chunking"
	StateEmbedding TaskState = "embedding"
	StateIndexing  TaskState = "indexing"
	StateDone      TaskState = "done"
	StateSkipped   TaskState = "skipped"
	StateFailed    TaskState = "failed"
	StateRetrying  TaskState = "retrying"
)

// Terminal reports whether no further transitions follow s.
func (s TaskState) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

// TaskStatus is the last known state of a task, as published by workers.
type TaskStatus struct {
	TaskID    string    `json:"task_id"`
	TenantID  string    `json:"tenant_id"`
	FileName  string    `json:"file_name"`
	State     TaskState `json:"state"`
	Attempt   int       `json:"attempt"`
	Chunks    int       `json:"chunks"`
	Indexed   int       `json:"indexed"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
