package index

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/WessleyAI/ragdesk/engine/domain"
)

// Payload keys and vector names in the collection.
const (
	fieldTenant     = "tenant_id"
	fieldFileName   = "file_name"
	fieldChunkIndex = "chunk_index"
	fieldText       = "chunk_text"

	vectorDense  = "chunk_vector"
	vectorSparse = "chunk_text"
)

var pointNamespace = uuid.MustParse("6f1c2a9e-5d43-4a8b-9b1e-2f7c3d8e4a10")

// PointID derives a stable id from a chunk's tenant, file and position, so
// re-ingesting a file overwrites its chunks instead of duplicating them.
func PointID(tenant, file string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(tenant+"/"+file+"/"+strconv.Itoa(chunkIndex))).String()
}

// FailedRecord is a chunk the index did not accept, with the reason.
type FailedRecord struct {
	Chunk domain.Chunk
	Cause error
}

// BulkResult reports a best-effort bulk write.
type BulkResult struct {
	Succeeded int
	Failed    []FailedRecord
}

// Err summarises failed records as a single error, or nil.
func (r BulkResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("index: %d records rejected, first: %w", len(r.Failed), r.Failed[0].Cause)
}

// SearchRequest is one tenant-scoped hybrid query.
type SearchRequest struct {
	TenantID string
	Text     string
	Vector   []float32
	TopK     int
}

// Hit is a fused search result.
type Hit struct {
	ID    string
	Text  string
	Score float64
}
