//go:build integration

package index

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_ADDR"); v != "" {
		return v
	}
	return "localhost:6334"
}

func liveStore(t *testing.T) *Store {
	t.Helper()
	name := "test_" + uuid.NewString()[:8]
	s, err := New(qdrantAddr(), Config{Collection: name, Dim: 4, Timeout: 10 * time.Second}, nil)
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() {
		defer s.Close()
		conn, err := grpc.NewClient(qdrantAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return
		}
		defer conn.Close()
		pb.NewCollectionsClient(conn).Delete(context.Background(), &pb.DeleteCollection{CollectionName: name})
	})
	return s
}

func TestQdrant_SchemaIdempotent(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema (idempotent): %v", err)
	}
}

func TestQdrant_HybridSearchIsTenantScoped(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	seed(t, s)

	got := s.Search(ctx, SearchRequest{TenantID: "u1", Text: "remote work", Vector: vec(1, 0, 0, 0), TopK: 5})
	if !contains(got, "Remote work is allowed up to 3 days/week.") {
		t.Fatalf("own chunk missing: %v", got)
	}
	if contains(got, "Remote work is forbidden at u2.") {
		t.Fatalf("u1 saw u2's chunk: %v", got)
	}

	if err := s.DeleteFile(ctx, "u1", "policy.txt"); err != nil {
		t.Fatal(err)
	}
	got = s.Search(ctx, SearchRequest{TenantID: "u1", Text: "remote work", Vector: vec(1, 0, 0, 0), TopK: 5})
	if contains(got, "Remote work is allowed up to 3 days/week.") {
		t.Fatalf("deleted chunk still returned: %v", got)
	}
}
