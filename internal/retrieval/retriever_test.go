package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

// fakeSearcher returns canned rows per partition and records the requests
// it received.
type fakeSearcher struct {
	rows     map[Partition][]Row
	errs     map[Partition]error
	requests []SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req SearchRequest) ([]Row, error) {
	f.requests = append(f.requests, req)
	if err := f.errs[req.Partition]; err != nil {
		return nil, err
	}
	return f.rows[req.Partition], nil
}

func strPtr(s string) *string { return &s }

func rowWith(id string, similarity float64) Row {
	return Row{
		DocumentID: id,
		Similarity: similarity,
		Document:   DocumentMeta{Title: strPtr("doc " + id)},
	}
}

func TestRetrieve_MergesPartitionsBySimilarity(t *testing.T) {
	caller := uuid.New()
	searcher := &fakeSearcher{
		rows: map[Partition][]Row{
			PartitionPrivate: {rowWith("p1", 0.90), rowWith("p2", 0.95), rowWith("p3", 0.80)},
			PartitionPublic:  {rowWith("u1", 0.99), rowWith("u2", 0.70)},
		},
	}
	r := New(&fakeEmbedder{vector: make([]float32, 8)}, searcher, 8, nil)

	result, err := r.Retrieve(context.Background(), Query{Text: "q", CallerID: &caller})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Rows) != MatchCount {
		t.Fatalf("got %d rows, want %d", len(result.Rows), MatchCount)
	}
	wantOrder := []string{"u1", "p2", "p1"}
	for i, want := range wantOrder {
		if result.Rows[i].DocumentID != want {
			t.Errorf("row %d = %s, want %s", i, result.Rows[i].DocumentID, want)
		}
	}
	if len(result.Sources) != MatchCount {
		t.Fatalf("got %d sources, want %d", len(result.Sources), MatchCount)
	}
}

func TestRetrieve_AnonymousCallerSkipsPrivate(t *testing.T) {
	searcher := &fakeSearcher{
		rows: map[Partition][]Row{
			PartitionPublic: {rowWith("u1", 0.9)},
		},
	}
	r := New(&fakeEmbedder{vector: make([]float32, 8)}, searcher, 8, nil)

	result, err := r.Retrieve(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(searcher.requests) != 1 {
		t.Fatalf("got %d search requests, want 1", len(searcher.requests))
	}
	if searcher.requests[0].Partition != PartitionPublic {
		t.Errorf("searched partition %s, want %s", searcher.requests[0].Partition, PartitionPublic)
	}
	if len(result.Rows) != 1 {
		t.Errorf("got %d rows, want 1", len(result.Rows))
	}
}

func TestRetrieve_PrivateSearchedFirstWithCallerID(t *testing.T) {
	caller := uuid.New()
	searcher := &fakeSearcher{rows: map[Partition][]Row{}}
	r := New(&fakeEmbedder{vector: make([]float32, 8)}, searcher, 8, nil)

	if _, err := r.Retrieve(context.Background(), Query{Text: "q", CallerID: &caller}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(searcher.requests) != 2 {
		t.Fatalf("got %d search requests, want 2", len(searcher.requests))
	}
	if searcher.requests[0].Partition != PartitionPrivate {
		t.Errorf("first partition = %s, want %s", searcher.requests[0].Partition, PartitionPrivate)
	}
	if searcher.requests[0].CallerID == nil || *searcher.requests[0].CallerID != caller {
		t.Errorf("private request caller = %v, want %s", searcher.requests[0].CallerID, caller)
	}
	if searcher.requests[1].CallerID != nil {
		t.Errorf("public request carries caller id %v", searcher.requests[1].CallerID)
	}
}

func TestRetrieve_PartitionFailureIsFatal(t *testing.T) {
	caller := uuid.New()
	boom := errors.New("connection refused")
	searcher := &fakeSearcher{
		rows: map[Partition][]Row{PartitionPublic: {rowWith("u1", 0.9)}},
		errs: map[Partition]error{PartitionPrivate: boom},
	}
	r := New(&fakeEmbedder{vector: make([]float32, 8)}, searcher, 8, nil)

	_, err := r.Retrieve(context.Background(), Query{Text: "q", CallerID: &caller})
	var perr *PartitionError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *PartitionError", err)
	}
	if perr.Partition != PartitionPrivate {
		t.Errorf("failed partition = %s, want %s", perr.Partition, PartitionPrivate)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error does not wrap the cause: %v", err)
	}
}

func TestRetrieve_EmbeddingFailures(t *testing.T) {
	tests := []struct {
		name     string
		embedder *fakeEmbedder
		wantIs   error
	}{
		{"provider error", &fakeEmbedder{err: errors.New("quota exceeded")}, nil},
		{"empty vector", &fakeEmbedder{vector: nil}, ErrEmptyEmbedding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{}
			r := New(tt.embedder, searcher, 8, nil)

			_, err := r.Retrieve(context.Background(), Query{Text: "q"})
			var eerr *EmbeddingError
			if !errors.As(err, &eerr) {
				t.Fatalf("error = %v, want *EmbeddingError", err)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want wrapping %v", err, tt.wantIs)
			}
			if len(searcher.requests) != 0 {
				t.Errorf("search ran %d times after embedding failure", len(searcher.requests))
			}
		})
	}
}

func TestRetrieve_TruncatesEmbeddingToDimension(t *testing.T) {
	searcher := &fakeSearcher{}
	r := New(&fakeEmbedder{vector: make([]float32, 3072)}, searcher, 2000, nil)

	if _, err := r.Retrieve(context.Background(), Query{Text: "q"}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got := len(searcher.requests[0].Embedding); got != 2000 {
		t.Errorf("search embedding length = %d, want 2000", got)
	}
}

func TestMapRow_Fallbacks(t *testing.T) {
	tests := []struct {
		name        string
		row         Row
		wantTitle   string
		wantDomain  string
		wantSnippet string
	}{
		{
			name: "all fields present",
			row: Row{DocumentID: "1", Similarity: 0.9, Document: DocumentMeta{
				Title:     strPtr("Guide"),
				Source:    strPtr("docs.example.com"),
				AISummary: strPtr("A short summary."),
			}},
			wantTitle:   "Guide",
			wantDomain:  "docs.example.com",
			wantSnippet: "A short summary.",
		},
		{
			name: "file name and url host fallbacks",
			row: Row{DocumentID: "2", Document: DocumentMeta{
				FileName:    strPtr("report.pdf"),
				FileURL:     strPtr("https://files.example.org/report.pdf"),
				Description: strPtr("Quarterly numbers."),
			}},
			wantTitle:   "report.pdf",
			wantDomain:  "files.example.org",
			wantSnippet: "Quarterly numbers.",
		},
		{
			name:        "all empty",
			row:         Row{DocumentID: "3"},
			wantTitle:   "Untitled",
			wantDomain:  "unknown",
			wantSnippet: "(no preview)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := mapRow(tt.row)
			if src.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", src.Title, tt.wantTitle)
			}
			if src.Domain != tt.wantDomain {
				t.Errorf("Domain = %q, want %q", src.Domain, tt.wantDomain)
			}
			if src.Snippet != tt.wantSnippet {
				t.Errorf("Snippet = %q, want %q", src.Snippet, tt.wantSnippet)
			}
			if src.Preview != tt.wantSnippet+"…" {
				t.Errorf("Preview = %q, want snippet plus ellipsis", src.Preview)
			}
		})
	}
}

func TestMapRow_SnippetTruncation(t *testing.T) {
	long := strings.Repeat("あ", 120)
	src := mapRow(Row{DocumentID: "1", Document: DocumentMeta{AISummary: &long}})
	if got := len([]rune(src.Snippet)); got != snippetLength {
		t.Errorf("snippet length = %d runes, want %d", got, snippetLength)
	}
	if !strings.HasPrefix(long, src.Snippet) {
		t.Errorf("snippet is not a prefix of the summary")
	}
}
