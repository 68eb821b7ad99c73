package retrieval

import "github.com/google/uuid"

// Retrieval tuning. These mirror the match_documents parameters used by the
// similarity-search backend: rows below the threshold never leave the
// database, and the merged result is capped at MatchCount.
const (
	// MatchCount is the number of rows requested per partition and the cap
	// on the merged result. It defines the citation numbering [1][2][3].
	MatchCount = 3

	// SimilarityThreshold is the minimum cosine similarity for a row to be
	// considered relevant. Applied by the search backend, not the merge.
	SimilarityThreshold = 0.75

	// snippetLength is how much of a document summary the preview shows.
	snippetLength = 80
)

// Partition identifies one of the two logically separate document
// collections searched independently and merged.
type Partition string

const (
	// PartitionPublic holds documents visible to every caller.
	PartitionPublic Partition = "public_vectors"

	// PartitionPrivate holds documents scoped to an owning caller.
	PartitionPrivate Partition = "private_vectors"
)

// Query is one retrieval request. CallerID is non-nil only when the caller
// presented a well-formed UUID identity; otherwise retrieval is restricted
// to the public partition.
type Query struct {
	Text     string
	CallerID *uuid.UUID
}

// SearchRequest is one similarity-search call against a single partition.
type SearchRequest struct {
	Embedding           []float32
	Partition           Partition
	MatchCount          int
	SimilarityThreshold float64
	CallerID            *uuid.UUID // private partition only
}

// DocumentMeta is the display metadata resolved read-only from the
// document store for a matched row. All fields are nullable upstream.
type DocumentMeta struct {
	Title       *string `json:"title"`
	FileName    *string `json:"file_name"`
	Source      *string `json:"source"`
	FileURL     *string `json:"file_url"`
	AISummary   *string `json:"ai_summary"`
	Description *string `json:"description"`
}

// Row is one raw similarity-search hit. Rows are passed verbatim to the
// model as the tool response payload, so the JSON shape matches what the
// search backend produces.
type Row struct {
	DocumentID string       `json:"document_id"`
	Similarity float64      `json:"similarity"`
	Document   DocumentMeta `json:"document"`
}

// Source is the display-ready record derived from a Row. The slice order
// is significant: it defines the citation numbering the model is
// instructed to use.
type Source struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Domain     string  `json:"domain"`
	Snippet    string  `json:"snippet"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
}

// Result is a completed retrieval: the merged raw rows (for the model) and
// their display mapping (for the client), in identical order.
type Result struct {
	Rows    []Row
	Sources []Source
}
