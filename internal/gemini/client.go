// Package gemini is a minimal REST client for the Google Generative
// Language API: token streaming via streamGenerateContent (SSE) and query
// embeddings via embedContent.
//
// The streaming wire format is parsed directly (newline-delimited frames
// prefixed "data:") rather than through an SDK, because the orchestrator's
// contract is defined at that level: tool-call interception must see parts
// chunk by chunk, and the idle watchdog must observe raw byte arrival.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultIdleTimeout is the stream idle watchdog interval.
	DefaultIdleTimeout = 60 * time.Second

	// maxErrorBody bounds how much of an upstream error body is kept.
	maxErrorBody = 8 * 1024
)

// Config configures a Client.
type Config struct {
	// APIKey authenticates against the Generative Language API. Required.
	APIKey string

	// BaseURL is the API endpoint, without trailing slash
	// (e.g. https://generativelanguage.googleapis.com/v1beta).
	BaseURL string

	// Model is the chat model identifier (e.g. "gemini-2.0-flash").
	Model string

	// EmbedderModel is the embedding model identifier.
	EmbedderModel string

	// IdleTimeout overrides the stream idle watchdog. Zero means
	// DefaultIdleTimeout.
	IdleTimeout time.Duration

	// HTTPClient overrides the HTTP client. Nil means a client without a
	// total-duration timeout; streams are bounded by the idle watchdog and
	// request contexts instead.
	HTTPClient *http.Client
}

// Client talks to the Generative Language API. It is safe for concurrent
// use; each StreamGenerate call owns its own connection.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// StreamGenerate opens one streaming generation request and returns the
// live stream. The caller owns the stream's lifetime and must drain its
// Events iterator or Close it.
//
// A non-2xx status at open time is fatal and surfaces as *ConnectError
// carrying the upstream status code and body.
func (c *Client) StreamGenerate(ctx context.Context, contents []Content, tools []Tool) (*Stream, error) {
	body, err := json.Marshal(generateRequest{Contents: contents, Tools: tools})
	if err != nil {
		return nil, fmt.Errorf("encoding generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.cfg.BaseURL, c.cfg.Model)
	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, fmt.Errorf("opening model stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &ConnectError{
			Endpoint:   "streamGenerateContent",
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}
	}

	return newStream(resp.Body, c.cfg.IdleTimeout, c.logger), nil
}

// Embed returns the embedding vector for the given text, using the
// RETRIEVAL_QUERY task type. The full provider vector is returned; callers
// truncate to their working dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model:    "models/" + c.cfg.EmbedderModel,
		Content:  Content{Parts: []Part{{Text: text}}},
		TaskType: "RETRIEVAL_QUERY",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", c.cfg.BaseURL, c.cfg.EmbedderModel)
	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, fmt.Errorf("requesting embedding: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ConnectError{
			Endpoint:   "embedContent",
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(decoded.Embedding.Values) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return decoded.Embedding.Values, nil
}

// post issues a JSON POST with the API key header attached.
func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Key goes in a header, not the URL, to keep it out of logs.
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	//nolint:wrapcheck // callers wrap with operation context
	return c.http.Do(req)
}

// readErrorBody reads a bounded prefix of an upstream error body.
func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return fmt.Sprintf("(unreadable body: %v)", err)
	}
	return string(bytes.TrimSpace(b))
}
