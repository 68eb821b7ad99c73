package orchestrator

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/cicada-project/cleo/internal/gemini"
)

// ToolName is the retrieval function the model is offered.
const ToolName = "get_relevant_documents"

const systemPrompt = `You are **Cleo**, CICADA's friendly constitutional research assistant.
- ALWAYS use the "get_relevant_documents" function for substantive constitutional questions.
- Cite retrieved docs inline as [1], [2], [3] in order.
- Be concise, quote directly when helpful, and never guess beyond sources.`

// toolArgs is the parameter shape of the retrieval function.
type toolArgs struct {
	Query string `json:"query" jsonschema:"Semantic query"`
}

// retrievalTools builds the tool declaration advertised on every
// generation request, including continuations.
func retrievalTools() ([]gemini.Tool, error) {
	schema, err := jsonschema.For[toolArgs](nil)
	if err != nil {
		return nil, fmt.Errorf("building tool schema: %w", err)
	}
	return []gemini.Tool{{
		FunctionDeclarations: []gemini.FunctionDeclaration{{
			Name:        ToolName,
			Description: "Return up to three documents relevant to the user's question.",
			Parameters:  schema,
		}},
	}}, nil
}
