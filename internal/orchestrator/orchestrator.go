// Package orchestrator drives one chat request end to end: build the
// conversation, stream the first model response, pause on a retrieval tool
// call, run the lookup, stream the continuation, and emit a unified event
// stream with a final consolidated result.
package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/cicada-project/cleo/internal/gemini"
	"github.com/cicada-project/cleo/internal/retrieval"
)

// Stream is one open model stream. Implemented by *gemini.Stream.
type Stream interface {
	Events(ctx context.Context) iter.Seq2[*gemini.Chunk, error]
	Close() error
}

// Streamer opens model streams. Implemented by the gemini client adapter.
type Streamer interface {
	StreamGenerate(ctx context.Context, contents []gemini.Content, tools []gemini.Tool) (Stream, error)
}

// DocumentRetriever runs one two-partition document lookup.
// Implemented by *retrieval.Retriever.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// Turn is one prior conversation entry supplied by the client.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request is one inbound chat request.
type Request struct {
	Query   string `json:"query"`
	UserID  string `json:"user_id"`
	History []Turn `json:"history"`
}

// state enumerates the request lifecycle. Transitions are strictly
// forward; each handler returns the next state.
type state int

const (
	stateInit state = iota
	stateStreaming
	stateToolPending
	stateRetrieving
	stateContinuing
	stateFinalizing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateStreaming:
		return "streaming"
	case stateToolPending:
		return "tool_pending"
	case stateRetrieving:
		return "retrieving"
	case stateContinuing:
		return "continuing"
	case stateFinalizing:
		return "finalizing"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Orchestrator holds the injected providers. It is stateless across
// requests and safe for concurrent use.
type Orchestrator struct {
	streamer  Streamer
	retriever DocumentRetriever
	tools     []gemini.Tool
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(streamer Streamer, retriever DocumentRetriever, logger *slog.Logger) (*Orchestrator, error) {
	if streamer == nil {
		return nil, fmt.Errorf("streamer is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	tools, err := retrievalTools()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{streamer: streamer, retriever: retriever, tools: tools, logger: logger}, nil
}

// Run processes one request and returns its event stream. The channel is
// closed when the request finishes, after either a result and end pair or
// a single error event. The caller is the sole writer to the client and
// must drain the channel.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		r := &run{
			orch:   o,
			req:    req,
			events: events,
			logger: o.logger,
		}
		r.loop(ctx)
	}()
	return events
}

// run is the per-request coordinating task. All fields are owned by the
// single goroutine started in Run.
type run struct {
	orch   *Orchestrator
	req    Request
	events chan<- Event
	logger *slog.Logger

	contents    []gemini.Content
	collected   strings.Builder
	sources     []retrieval.Source
	pendingCall *gemini.FunctionCall
	toolQuery   string
	rows        []retrieval.Row
}

// loop dispatches one handler per state until the request is done.
func (r *run) loop(ctx context.Context) {
	s := stateInit
	for s != stateDone {
		next := s
		switch s {
		case stateInit:
			next = r.handleInit(ctx)
		case stateStreaming:
			next = r.handleStreaming(ctx)
		case stateToolPending:
			next = r.handleToolPending(ctx)
		case stateRetrieving:
			next = r.handleRetrieving(ctx)
		case stateContinuing:
			next = r.handleContinuing(ctx)
		case stateFinalizing:
			next = r.handleFinalizing(ctx)
		}
		r.logger.Debug("state transition", "from", s.String(), "to", next.String())
		s = next
	}
}

// handleInit validates the request and builds the conversation: system
// instruction first, then history in order, then the new user turn.
func (r *run) handleInit(ctx context.Context) state {
	if strings.TrimSpace(r.req.Query) == "" {
		return r.fail(ctx, ErrMissingQuery)
	}
	r.contents = append(r.contents, gemini.TextContent(gemini.RoleUser, systemPrompt))
	for _, turn := range r.req.History {
		r.contents = append(r.contents, gemini.TextContent(turn.Role, turn.Text))
	}
	r.contents = append(r.contents, gemini.TextContent(gemini.RoleUser, r.req.Query))
	return stateStreaming
}

// handleStreaming forwards text from the first model stream. A retrieval
// function call in the first part of a chunk suspends forwarding and hands
// off to the tool states; the rest of that stream is abandoned.
func (r *run) handleStreaming(ctx context.Context) state {
	stream, err := r.orch.streamer.StreamGenerate(ctx, r.contents, r.orch.tools)
	if err != nil {
		return r.fail(ctx, err)
	}
	defer stream.Close()

	for chunk, err := range stream.Events(ctx) {
		if err != nil {
			return r.fail(ctx, err)
		}
		parts := chunk.Parts()
		if len(parts) > 0 && parts[0].FunctionCall != nil && parts[0].FunctionCall.Name == ToolName {
			r.pendingCall = parts[0].FunctionCall
			return stateToolPending
		}
		r.forwardText(ctx, parts)
	}
	return stateFinalizing
}

// handleToolPending extracts the tool's query argument. The validated
// string is kept on the run for the retrieval step.
func (r *run) handleToolPending(ctx context.Context) state {
	query, _ := r.pendingCall.Args["query"].(string)
	if query == "" {
		return r.fail(ctx, fmt.Errorf("tool call %s missing query argument", ToolName))
	}
	r.toolQuery = query
	return stateRetrieving
}

// handleRetrieving runs the document lookup and emits the sources event
// before any continuation text. Retrieval failure is fatal to the whole
// request; there is no fallback to answering without sources. A user id
// that is not a well-formed UUID means the caller is anonymous, not an
// error.
func (r *run) handleRetrieving(ctx context.Context) state {
	q := retrieval.Query{Text: r.toolQuery}
	if id, err := uuid.Parse(r.req.UserID); err == nil {
		q.CallerID = &id
	}

	result, err := r.orch.retriever.Retrieve(ctx, q)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.rows = result.Rows
	r.sources = result.Sources
	if !r.emit(ctx, sourcesEvent(r.sources)) {
		return stateDone
	}
	return stateContinuing
}

// handleContinuing opens the second model stream with the tool exchange
// appended to the conversation and forwards its text. Any further function
// calls on this stream are ignored; at most one retrieval runs per request.
func (r *run) handleContinuing(ctx context.Context) state {
	contents := append(append([]gemini.Content{}, r.contents...),
		gemini.Content{
			Role:  gemini.RoleModel,
			Parts: []gemini.Part{{FunctionCall: r.pendingCall}},
		},
		gemini.Content{
			Role: gemini.RoleFunction,
			Parts: []gemini.Part{{FunctionResponse: &gemini.FunctionResponse{
				Name:     ToolName,
				Response: map[string]any{"documents": r.rows},
			}}},
		},
	)

	stream, err := r.orch.streamer.StreamGenerate(ctx, contents, r.orch.tools)
	if err != nil {
		return r.fail(ctx, err)
	}
	defer stream.Close()

	for chunk, err := range stream.Events(ctx) {
		if err != nil {
			return r.fail(ctx, err)
		}
		r.forwardText(ctx, chunk.Parts())
	}
	return stateFinalizing
}

// handleFinalizing emits the consolidated result and the end marker.
func (r *run) handleFinalizing(ctx context.Context) state {
	text := strings.TrimSpace(r.collected.String())
	if !r.emit(ctx, resultEvent(text, r.sources)) {
		return stateDone
	}
	r.emit(ctx, endEvent())
	return stateDone
}

// forwardText accumulates and emits every text part of a chunk.
func (r *run) forwardText(ctx context.Context, parts []gemini.Part) {
	for _, p := range parts {
		if p.Text == "" {
			continue
		}
		r.collected.WriteString(p.Text)
		if !r.emit(ctx, dataEvent(p.Text)) {
			return
		}
	}
}

// fail records the failure and emits the single error event. No result
// event follows a fatal error.
func (r *run) fail(ctx context.Context, err error) state {
	r.logger.Error("request failed", "error", err)
	r.emit(ctx, errorEvent(err.Error()))
	return stateDone
}

// emit delivers one event, giving up if the client disconnected. Returns
// false when the request context is done.
func (r *run) emit(ctx context.Context, ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
