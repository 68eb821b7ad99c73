package orchestrator

import "github.com/cicada-project/cleo/internal/retrieval"

// EventKind names the SSE event an Event serializes to.
type EventKind string

const (
	EventData    EventKind = "data"
	EventSources EventKind = "sources"
	EventResult  EventKind = "result"
	EventError   EventKind = "error"
	EventEnd     EventKind = "end"
)

// Event is one entry on the outbound stream. It doubles as the internal
// representation and the wire contract; only JSON encoding happens between
// here and the client.
type Event struct {
	Kind    EventKind
	Text    string
	Sources []retrieval.Source
	Result  *ResultPayload
	Err     string
}

// ResultPayload is the body of the final result event.
type ResultPayload struct {
	Text    string             `json:"text"`
	Sources []retrieval.Source `json:"sources"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Payload returns the JSON-encodable body for this event: a bare string
// for data, the source array for sources, an object for result and error,
// and the literal "[DONE]" for end.
func (e Event) Payload() any {
	switch e.Kind {
	case EventData:
		return e.Text
	case EventSources:
		if e.Sources == nil {
			return []retrieval.Source{}
		}
		return e.Sources
	case EventResult:
		return e.Result
	case EventError:
		return ErrorPayload{Error: e.Err}
	case EventEnd:
		return "[DONE]"
	default:
		return nil
	}
}

func dataEvent(text string) Event { return Event{Kind: EventData, Text: text} }

func sourcesEvent(sources []retrieval.Source) Event {
	return Event{Kind: EventSources, Sources: sources}
}

func resultEvent(text string, sources []retrieval.Source) Event {
	if sources == nil {
		sources = []retrieval.Source{}
	}
	return Event{Kind: EventResult, Result: &ResultPayload{Text: text, Sources: sources}}
}

func errorEvent(msg string) Event { return Event{Kind: EventError, Err: msg} }

func endEvent() Event { return Event{Kind: EventEnd} }
