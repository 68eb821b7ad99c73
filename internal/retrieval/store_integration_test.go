//go:build integration

package retrieval_test

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cicada-project/cleo/internal/retrieval"
	"github.com/cicada-project/cleo/internal/testutil"
)

const dim = 2000

// unitVector returns a 2000-dim unit vector whose cosine similarity to
// axisVector(0) is exactly cos.
func similarVector(cos float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func axisVector() []float32 {
	v := make([]float32, dim)
	v[0] = 1
	return v
}

func insertDocument(t *testing.T, pool *pgxpool.Pool, title string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO documents (title, ai_summary) VALUES ($1, $2) RETURNING id`,
		title, "summary of "+title,
	).Scan(&id)
	if err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	return id
}

func insertPublicVector(t *testing.T, pool *pgxpool.Pool, docID uuid.UUID, embedding []float32) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO public_vectors (document_id, embedding) VALUES ($1, $2)`,
		docID, pgvector.NewVector(embedding),
	)
	if err != nil {
		t.Fatalf("inserting public vector: %v", err)
	}
}

func insertPrivateVector(t *testing.T, pool *pgxpool.Pool, docID, ownerID uuid.UUID, embedding []float32) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO private_vectors (document_id, owner_id, embedding) VALUES ($1, $2, $3)`,
		docID, ownerID, pgvector.NewVector(embedding),
	)
	if err != nil {
		t.Fatalf("inserting private vector: %v", err)
	}
}

func TestStoreSearch_PublicPartition(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	strong := insertDocument(t, db.Pool, "strong match")
	weak := insertDocument(t, db.Pool, "weak match")
	below := insertDocument(t, db.Pool, "below threshold")
	insertPublicVector(t, db.Pool, strong, similarVector(0.99))
	insertPublicVector(t, db.Pool, weak, similarVector(0.80))
	insertPublicVector(t, db.Pool, below, similarVector(0.50))

	store, err := retrieval.NewStore(db.Pool, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	rows, err := store.Search(context.Background(), retrieval.SearchRequest{
		Embedding:           axisVector(),
		Partition:           retrieval.PartitionPublic,
		MatchCount:          retrieval.MatchCount,
		SimilarityThreshold: retrieval.SimilarityThreshold,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (threshold should drop one)", len(rows))
	}
	if rows[0].DocumentID != strong.String() {
		t.Errorf("first row = %s, want strongest match first", rows[0].DocumentID)
	}
	if rows[0].Similarity < rows[1].Similarity {
		t.Errorf("rows not ordered by similarity: %v, %v", rows[0].Similarity, rows[1].Similarity)
	}
	if rows[0].Document.Title == nil || *rows[0].Document.Title != "strong match" {
		t.Errorf("document metadata not joined: %+v", rows[0].Document)
	}
}

func TestStoreSearch_PrivatePartitionScopedToOwner(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	owner := uuid.New()
	stranger := uuid.New()

	mine := insertDocument(t, db.Pool, "mine")
	theirs := insertDocument(t, db.Pool, "theirs")
	insertPrivateVector(t, db.Pool, mine, owner, similarVector(0.95))
	insertPrivateVector(t, db.Pool, theirs, stranger, similarVector(0.97))

	store, err := retrieval.NewStore(db.Pool, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	rows, err := store.Search(context.Background(), retrieval.SearchRequest{
		Embedding:           axisVector(),
		Partition:           retrieval.PartitionPrivate,
		MatchCount:          retrieval.MatchCount,
		SimilarityThreshold: retrieval.SimilarityThreshold,
		CallerID:            &owner,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (only the owner's document)", len(rows))
	}
	if rows[0].DocumentID != mine.String() {
		t.Errorf("row = %s, want the owner's document", rows[0].DocumentID)
	}
}

func TestStoreSearch_PrivateRequiresCaller(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := retrieval.NewStore(db.Pool, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	_, err = store.Search(context.Background(), retrieval.SearchRequest{
		Embedding:           axisVector(),
		Partition:           retrieval.PartitionPrivate,
		MatchCount:          retrieval.MatchCount,
		SimilarityThreshold: retrieval.SimilarityThreshold,
	})
	if err == nil {
		t.Fatal("Search() on private partition without caller id should fail")
	}
}

func TestStoreSearch_UnknownPartition(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := retrieval.NewStore(db.Pool, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	_, err = store.Search(context.Background(), retrieval.SearchRequest{
		Embedding: axisVector(),
		Partition: retrieval.Partition("documents; DROP TABLE documents"),
	})
	if err == nil {
		t.Fatal("Search() with unknown partition should fail")
	}
}
