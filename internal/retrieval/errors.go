package retrieval

import (
	"errors"
	"fmt"
)

// ErrEmptyEmbedding reports that the embedding provider returned no usable
// vector for the query text.
var ErrEmptyEmbedding = errors.New("embedding empty")

// EmbeddingError wraps a failure to embed the query text. Retrieval cannot
// proceed without a vector, so this is fatal to the whole call.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding query: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// PartitionError wraps a similarity-search failure against one partition.
// Any partition failure is fatal to the whole retrieval call: no partial
// results are returned.
type PartitionError struct {
	Partition Partition
	Err       error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("searching %s: %v", e.Partition, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }
