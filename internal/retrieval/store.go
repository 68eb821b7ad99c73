package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// documentCols is the display metadata joined onto every hit.
const documentCols = `d.title, d.file_name, d.source, d.file_url, d.ai_summary, d.description`

// Store runs similarity searches against the vector partitions in
// PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a partition Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Search returns up to req.MatchCount rows from one partition whose cosine
// similarity to req.Embedding is at least req.SimilarityThreshold, ordered
// by similarity descending. The private partition additionally filters on
// req.CallerID.
func (s *Store) Search(ctx context.Context, req SearchRequest) ([]Row, error) {
	table, err := partitionTable(req.Partition)
	if err != nil {
		return nil, err
	}

	vec := pgvector.NewVector(req.Embedding)

	var rows pgx.Rows
	switch req.Partition {
	case PartitionPrivate:
		if req.CallerID == nil {
			return nil, fmt.Errorf("caller id is required for the private partition")
		}
		rows, err = s.pool.Query(ctx,
			`SELECT v.document_id::text, 1 - (v.embedding <=> $1) AS similarity, `+documentCols+`
			 FROM `+table+` v
			 JOIN documents d ON d.id = v.document_id
			 WHERE 1 - (v.embedding <=> $1) >= $2
			   AND v.owner_id = $3
			 ORDER BY v.embedding <=> $1
			 LIMIT $4`,
			vec, req.SimilarityThreshold, *req.CallerID, req.MatchCount,
		)
	default:
		rows, err = s.pool.Query(ctx,
			`SELECT v.document_id::text, 1 - (v.embedding <=> $1) AS similarity, `+documentCols+`
			 FROM `+table+` v
			 JOIN documents d ON d.id = v.document_id
			 WHERE 1 - (v.embedding <=> $1) >= $2
			 ORDER BY v.embedding <=> $1
			 LIMIT $3`,
			vec, req.SimilarityThreshold, req.MatchCount,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", req.Partition, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// partitionTable maps a Partition to its table name. Only the two known
// partitions are accepted; the name is interpolated into SQL and must never
// come from request input.
func partitionTable(p Partition) (string, error) {
	switch p {
	case PartitionPublic, PartitionPrivate:
		return string(p), nil
	default:
		return "", fmt.Errorf("unknown partition %q", string(p))
	}
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.DocumentID, &r.Similarity,
			&r.Document.Title, &r.Document.FileName, &r.Document.Source,
			&r.Document.FileURL, &r.Document.AISummary, &r.Document.Description,
		); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading hits: %w", err)
	}
	return out, nil
}
