// Package index owns every Qdrant operation: schema, bulk writes, tenant
// scoped hybrid search and deletion. Chunks carry a dense vector for
// semantic search and a sparse term vector for the lexical leg; both legs
// are always filtered to the caller's tenant plus the shared preloaded
// tenant.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/ragdesk/engine/domain"
)

// PointsAPI is the subset of the Qdrant points service the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Config holds collection settings.
type Config struct {
	Collection      string
	Dim             int
	PreloadedTenant string
	TopK            int
	UpsertBatch     int
	Timeout         time.Duration
}

// DefaultConfig returns the defaults used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		Collection:      "rag_documents",
		Dim:             384,
		PreloadedTenant: domain.DefaultPreloadedTenant,
		TopK:            5,
		UpsertBatch:     256,
		Timeout:         30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Collection == "" {
		c.Collection = d.Collection
	}
	if c.Dim <= 0 {
		c.Dim = d.Dim
	}
	if c.PreloadedTenant == "" {
		c.PreloadedTenant = d.PreloadedTenant
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.UpsertBatch <= 0 {
		c.UpsertBatch = d.UpsertBatch
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Store is safe for concurrent use; Qdrant serialises concurrent writes.
type Store struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	cfg         Config
	logger      *slog.Logger
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string, cfg Config, logger *slog.Logger) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg, logger)
	s.conn = conn
	return s, nil
}

// NewWithClients creates a Store over existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Store{
		points:      points,
		collections: collections,
		cfg:         cfg,
		logger:      logger.With("collection", cfg.Collection),
	}
}

// Close closes the underlying gRPC connection, if the store owns one.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Dim returns the dense vector dimension the collection expects.
func (s *Store) Dim() int { return s.cfg.Dim }

// PreloadedTenant returns the tenant id visible to every caller.
func (s *Store) PreloadedTenant() string { return s.cfg.PreloadedTenant }

// DeleteFile removes every chunk of one tenant's file.
func (s *Store) DeleteFile(ctx context.Context, tenant, file string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch(fieldTenant, tenant),
						fieldMatch(fieldFileName, file),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: delete %s/%s: %w", tenant, file, err)
	}
	return nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// tenantFilter restricts a query to the caller and the preloaded tenant.
func (s *Store) tenantFilter(tenant string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: fieldTenant,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: []string{tenant, s.cfg.PreloadedTenant}},
						},
					},
				},
			},
		}},
	}
}
