package index

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
)

// EnsureSchema creates the collection and its payload indexes if absent.
// Calling it again, including from another worker racing on startup, is a
// no-op.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	exists, err := s.exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	dim := uint64(s.cfg.Dim)
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{
					Map: map[string]*pb.VectorParams{
						vectorDense: {Size: dim, Distance: pb.Distance_Cosine},
					},
				},
			},
		},
		SparseVectorsConfig: &pb.SparseVectorConfig{
			Map: map[string]*pb.SparseVectorParams{
				vectorSparse: {Modifier: pb.Modifier_Idf.Enum()},
			},
		},
	})
	if err != nil {
		// Another process may have created it between List and Create.
		if again, lerr := s.exists(ctx); lerr == nil && again {
			return nil
		}
		return fmt.Errorf("index: create collection %s: %w", s.cfg.Collection, err)
	}

	wait := true
	for _, field := range []string{fieldTenant, fieldFileName} {
		_, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			Wait:           &wait,
			FieldName:      field,
			FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("index: create %s index: %w", field, err)
		}
	}
	s.logger.Info("collection created", "dim", s.cfg.Dim)
	return nil
}

func (s *Store) exists(ctx context.Context) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("index: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.cfg.Collection {
			return true, nil
		}
	}
	return false, nil
}
