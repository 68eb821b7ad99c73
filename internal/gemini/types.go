package gemini

import "github.com/google/jsonschema-go/jsonschema"

// Conversation roles used by the Generative Language API.
const (
	RoleUser     = "user"
	RoleModel    = "model"
	RoleFunction = "function"
)

// Content is one conversation turn: a role plus one or more parts.
// Turns are immutable once sent upstream.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a single piece of model input or output. Exactly one field is set:
// plain text, a tool invocation requested by the model, or a tool response
// supplied by the caller.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall is a structured tool invocation emitted by the model mid-stream.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse carries a tool's result back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// FunctionDeclaration describes one callable tool to the model.
// Parameters is a JSON schema derived with jsonschema.For.
type FunctionDeclaration struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// Tool groups function declarations for a generate request.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// TextContent builds a single-part text turn.
func TextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// generateRequest is the streamGenerateContent request body.
type generateRequest struct {
	Contents []Content `json:"contents"`
	Tools    []Tool    `json:"tools,omitempty"`
}

// Chunk is one decoded stream payload: zero or more output parts for a step.
type Chunk struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one of the model's response alternatives. The streaming
// endpoint only ever populates the first.
type Candidate struct {
	Content Content `json:"content"`
}

// Parts returns the output parts of the first candidate, or nil.
func (c *Chunk) Parts() []Part {
	if c == nil || len(c.Candidates) == 0 {
		return nil
	}
	return c.Candidates[0].Content.Parts
}

// embedRequest is the embedContent request body.
type embedRequest struct {
	Model    string  `json:"model"`
	Content  Content `json:"content"`
	TaskType string  `json:"taskType,omitempty"`
}

// embedResponse is the embedContent response body.
type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}
