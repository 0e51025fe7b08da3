package index

import (
	"context"
	"sort"
	"strconv"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
)

// Fusion parameters. Each leg contributes weight/(rrfK+rank) for every hit
// inside its window.
const (
	lexicalWeight = 0.3
	vectorWeight  = 0.7
	rrfK          = 60
)

func window(topK int) int     { return max(50, topK*5) }
func candidates(topK int) int { return max(100, topK*10) }

// Search runs the lexical and vector legs for one tenant and fuses them
// with weighted reciprocal rank fusion. It returns chunk texts only, at most
// TopK of them. It never fails: a missing input or a vector leg error is
// logged and yields an empty result, while a lexical leg error degrades to
// vector-only ranking.
func (s *Store) Search(ctx context.Context, req SearchRequest) []string {
	hits := s.SearchHits(ctx, req)
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
	}
	return out
}

// SearchHits is Search with ids and fused scores kept.
func (s *Store) SearchHits(ctx context.Context, req SearchRequest) []Hit {
	log := s.logger.With("tenant_id", req.TenantID)
	if req.TenantID == "" {
		log.Warn("search without tenant")
		return nil
	}
	if strings.TrimSpace(req.Text) == "" || len(req.Vector) == 0 {
		log.Warn("search skipped: missing query text or vector")
		return nil
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	filter := s.tenantFilter(req.TenantID)
	win := window(topK)

	ef := uint64(candidates(topK))
	dense, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.cfg.Collection,
		VectorName:     ptr(vectorDense),
		Vector:         req.Vector,
		Filter:         filter,
		Limit:          uint64(topK * 2),
		Params:         &pb.SearchParams{HnswEf: &ef},
		WithPayload:    withText(),
	})
	if err != nil {
		log.Error("vector search failed", "err", err)
		return nil
	}

	var lexical []*pb.ScoredPoint
	if indices, values := queryTerms(req.Text); len(indices) > 0 {
		resp, err := s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: s.cfg.Collection,
			VectorName:     ptr(vectorSparse),
			Vector:         values,
			SparseIndices:  &pb.SparseIndices{Data: indices},
			Filter:         filter,
			Limit:          uint64(win),
			WithPayload:    withText(),
		})
		if err != nil {
			log.Warn("lexical search failed, using vector results only", "err", err)
		} else {
			lexical = resp.GetResult()
		}
	}

	hits := fuse(win, []leg{
		{weight: vectorWeight, points: dense.GetResult()},
		{weight: lexicalWeight, points: lexical},
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	log.Debug("hybrid search", "dense", len(dense.GetResult()), "lexical", len(lexical), "returned", len(hits))
	return hits
}

type leg struct {
	weight float64
	points []*pb.ScoredPoint
}

// fuse merges ranked legs. Ties keep the order in which points were first
// seen, earlier legs first.
func fuse(win int, legs []leg) []Hit {
	byID := make(map[string]*Hit)
	var order []string
	for _, l := range legs {
		for rank, p := range l.points {
			if rank >= win {
				break
			}
			id := pointKey(p.GetId())
			h, ok := byID[id]
			if !ok {
				h = &Hit{ID: id, Text: p.GetPayload()[fieldText].GetStringValue()}
				byID[id] = h
				order = append(order, id)
			}
			h.Score += l.weight / float64(rrfK+rank+1)
		}
	}

	hits := make([]Hit, len(order))
	for i, id := range order {
		hits[i] = *byID[id]
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}

func pointKey(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return "n:" + strconv.FormatUint(id.GetNum(), 10)
}

func withText() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{
		SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: []string{fieldText}},
		},
	}
}

func ptr[T any](v T) *T { return &v }
