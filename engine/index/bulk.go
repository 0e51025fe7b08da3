package index

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/WessleyAI/ragdesk/engine/domain"
	"github.com/WessleyAI/ragdesk/pkg/fn"
)

// BulkIndex writes chunks best-effort. Invalid chunks are rejected before
// the write; a batch the engine refuses is retried one point at a time so a
// single bad record does not sink its neighbours. The caller decides whether
// any failure is fatal.
func (s *Store) BulkIndex(ctx context.Context, chunks []domain.Chunk) BulkResult {
	var res BulkResult

	valid := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if err := domain.ValidateChunk(c, s.cfg.Dim); err != nil {
			res.Failed = append(res.Failed, FailedRecord{Chunk: c, Cause: err})
			continue
		}
		valid = append(valid, c)
	}

	for _, batch := range fn.Batches(valid, s.cfg.UpsertBatch) {
		err := s.upsert(ctx, batch)
		if err == nil {
			res.Succeeded += len(batch)
			continue
		}
		if len(batch) == 1 {
			res.Failed = append(res.Failed, FailedRecord{Chunk: batch[0], Cause: err})
			continue
		}
		s.logger.Warn("batch upsert rejected, isolating records", "size", len(batch), "err", err)
		for _, c := range batch {
			if err := s.upsert(ctx, []domain.Chunk{c}); err != nil {
				res.Failed = append(res.Failed, FailedRecord{Chunk: c, Cause: err})
				continue
			}
			res.Succeeded++
		}
	}

	if len(res.Failed) > 0 {
		s.logger.Warn("bulk index partial failure", "succeeded", res.Succeeded, "failed", len(res.Failed))
	}
	return res
}

func (s *Store) upsert(ctx context.Context, chunks []domain.Chunk) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = toPoint(c)
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("index: upsert %d points: %w", len(chunks), err)
	}
	return nil
}

func toPoint(c domain.Chunk) *pb.PointStruct {
	indices, values := sparseTerms(c.Text)
	vectors := map[string]*pb.Vector{
		vectorDense: {Data: c.Vector},
	}
	if len(indices) > 0 {
		vectors[vectorSparse] = &pb.Vector{Data: values, Indices: &pb.SparseIndices{Data: indices}}
	}
	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(c.TenantID, c.FileName, c.Index)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vectors{
				Vectors: &pb.NamedVectors{Vectors: vectors},
			},
		},
		Payload: map[string]*pb.Value{
			fieldTenant:     {Kind: &pb.Value_StringValue{StringValue: c.TenantID}},
			fieldFileName:   {Kind: &pb.Value_StringValue{StringValue: c.FileName}},
			fieldChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
			fieldText:       {Kind: &pb.Value_StringValue{StringValue: c.Text}},
		},
	}
}
