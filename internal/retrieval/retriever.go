// Package retrieval implements the document lookup behind the
// get_relevant_documents tool: embed the query, search the public and
// (when the caller is identified) private vector partitions, and merge the
// hits into a display-ready, citation-ordered source set.
package retrieval

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"unicode/utf8"
)

// Embedder produces a query embedding vector.
// Implemented by *gemini.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs a similarity search against a single partition.
// Implemented by *Store; interfaces are defined here, by the consumer.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]Row, error)
}

// Retriever merges similarity search across the two partitions.
// It holds no per-request state and is safe for concurrent use.
type Retriever struct {
	embedder  Embedder
	searcher  Searcher
	dimension int
	logger    *slog.Logger
}

// New creates a Retriever. dimension is the working vector length;
// provider embeddings are truncated to it before search.
func New(embedder Embedder, searcher Searcher, dimension int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, searcher: searcher, dimension: dimension, logger: logger}
}

// Retrieve runs one retrieval: embed, search public (always) and private
// (only for an identified caller), merge, map.
//
// Failure is all-or-nothing: an embedding failure or either partition
// failing aborts the whole call with no partial results.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Result, error) {
	embedding, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(embedding) == 0 {
		return nil, &EmbeddingError{Err: ErrEmptyEmbedding}
	}
	if len(embedding) > r.dimension {
		embedding = embedding[:r.dimension]
	}

	base := SearchRequest{
		Embedding:           embedding,
		MatchCount:          MatchCount,
		SimilarityThreshold: SimilarityThreshold,
	}

	// Private rows come first in the pre-sort concatenation. The sort is
	// stable and keyed on similarity alone, so partition is not a tie-break.
	var merged []Row

	if q.CallerID != nil {
		req := base
		req.Partition = PartitionPrivate
		req.CallerID = q.CallerID

		private, err := r.searcher.Search(ctx, req)
		if err != nil {
			return nil, &PartitionError{Partition: PartitionPrivate, Err: err}
		}
		merged = append(merged, private...)
	}

	req := base
	req.Partition = PartitionPublic
	public, err := r.searcher.Search(ctx, req)
	if err != nil {
		return nil, &PartitionError{Partition: PartitionPublic, Err: err}
	}
	merged = append(merged, public...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > MatchCount {
		merged = merged[:MatchCount]
	}

	sources := make([]Source, 0, len(merged))
	for _, row := range merged {
		sources = append(sources, mapRow(row))
	}

	r.logger.Debug("retrieval complete",
		"query_len", len(q.Text),
		"identified", q.CallerID != nil,
		"rows", len(merged),
	)

	return &Result{Rows: merged, Sources: sources}, nil
}

// mapRow converts a raw hit into its display record.
//
// Fallback chains: title ← file name ← "Untitled"; domain ← source field ←
// file URL host ← "unknown"; snippet ← AI summary ← description ←
// "(no preview)", cut to 80 characters, with an ellipsis appended for the
// preview variant.
func mapRow(row Row) Source {
	d := row.Document

	title := firstNonEmpty(d.Title, d.FileName)
	if title == "" {
		title = "Untitled"
	}

	domain := deref(d.Source)
	if domain == "" && d.FileURL != nil {
		if u, err := url.Parse(*d.FileURL); err == nil && u.Host != "" {
			domain = u.Host
		}
	}
	if domain == "" {
		domain = "unknown"
	}

	snippet := truncate(firstNonEmpty(d.AISummary, d.Description), snippetLength)
	if snippet == "" {
		snippet = "(no preview)"
	}

	return Source{
		ID:         row.DocumentID,
		Title:      title,
		Domain:     domain,
		Snippet:    snippet,
		Preview:    snippet + "…",
		Similarity: row.Similarity,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

// truncate cuts s to at most n runes without splitting a multibyte
// character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
