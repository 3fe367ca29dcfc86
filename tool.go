package poe

import (
	"encoding/json"
	"strings"
)

// ToolDefinition mirrors the OpenAI-style function-calling schema a bot
// handler advertises to an upstream model, grounded in the teacher's
// internal/infrastructure/llm/openai/types.go Tool/ToolFunction shape.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function half of a ToolDefinition.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ConvertSchema ensures a tool parameter schema has a top-level "type":
// "object", defaulting it when the caller-supplied schema omits it, mirroring
// the teacher's openai.ConvertSchema.
func ConvertSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if _, ok := schema["type"]; !ok {
		out := make(map[string]any, len(schema)+1)
		for k, v := range schema {
			out[k] = v
		}
		out["type"] = "object"
		return out
	}
	return schema
}

// ToolCallFunc is the function half of an aggregated ToolCall.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a single fully-aggregated tool invocation requested by an
// upstream model, after delta aggregation by index (C7).
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallDelta is one streamed fragment of a tool call, keyed by Index. The
// seed chunk for a given index carries ID, Type, and Function.Name; later
// chunks for the same index append only to Function.Arguments.
type ToolCallDelta struct {
	Index    int
	ID       string
	Type     string
	Function ToolCallFunc
}

// ToolCallAccumulator aggregates streamed ToolCallDelta fragments into a
// completed ToolCall, grounded directly in the teacher's
// internal/infrastructure/llm/openai/sse.go ToolCallAccumulator.
type ToolCallAccumulator struct {
	ID          string
	Type        string
	Name        string
	ArgsBuilder strings.Builder
}

// Apply merges one delta into the accumulator. Fields are only overwritten
// when the delta actually supplies them, since continuation chunks omit
// ID/Type/Name and carry only an Arguments fragment.
func (a *ToolCallAccumulator) Apply(d ToolCallDelta) {
	if d.ID != "" {
		a.ID = d.ID
	}
	if d.Type != "" {
		a.Type = d.Type
	}
	if d.Function.Name != "" {
		a.Name = d.Function.Name
	}
	if d.Function.Arguments != "" {
		a.ArgsBuilder.WriteString(d.Function.Arguments)
	}
}

// ToolCall materializes the accumulator's current state into a completed
// ToolCall value.
func (a *ToolCallAccumulator) ToolCall() ToolCall {
	return ToolCall{
		ID:   a.ID,
		Type: a.Type,
		Function: ToolCallFunc{
			Name:      a.Name,
			Arguments: a.ArgsBuilder.String(),
		},
	}
}

// AggregateDelta folds one ToolCallDelta into accumulators, tracking
// first-seen order in order. A chunk introducing a new index must carry
// ID, Type, and Function.Name to seed that call (spec.md §4.7); a chunk at
// a new index missing any of those is discarded and the index never
// appears in the result, per spec.md §8's aggregation invariant.
func AggregateDelta(accumulators map[int]*ToolCallAccumulator, order *[]int, d ToolCallDelta) {
	acc, ok := accumulators[d.Index]
	if !ok {
		if d.ID == "" || d.Type == "" || d.Function.Name == "" {
			return
		}
		acc = &ToolCallAccumulator{}
		accumulators[d.Index] = acc
		*order = append(*order, d.Index)
	}
	acc.Apply(d)
}

// openAIChunk is the wire shape of an OpenAI-style streaming chat
// completion chunk, as carried in a "json" SSE event's data.choices[0]
// (spec.md §4.7).
type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ParseOpenAIChunk extracts the plain-text delta, tool-call deltas, and
// finish reason (if any) from a "json" event's raw payload. A chunk with no
// choices yields all zero values and is not an error, since some upstream
// "json" events carry unrelated metadata.
func ParseOpenAIChunk(data []byte) (content string, deltas []ToolCallDelta, finishReason string, err error) {
	var chunk openAIChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", nil, "", err
	}
	if len(chunk.Choices) == 0 {
		return "", nil, "", nil
	}
	choice := chunk.Choices[0]
	for _, tc := range choice.Delta.ToolCalls {
		deltas = append(deltas, ToolCallDelta{
			Index: tc.Index,
			ID:    tc.ID,
			Type:  tc.Type,
			Function: ToolCallFunc{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	if choice.FinishReason != nil {
		finishReason = *choice.FinishReason
	}
	return choice.Delta.Content, deltas, finishReason, nil
}

// ToolResultMessage builds the ProtocolMessage a caller feeds back into the
// conversation after executing a ToolCall, carrying the tool's output back
// to the model under Role=RoleTool with MessageID set to the ToolCall's ID so
// the model can correlate the result to its request.
func ToolResultMessage(call ToolCall, result string) ProtocolMessage {
	return ProtocolMessage{
		Role:      RoleTool,
		Content:   result,
		MessageID: call.ID,
	}
}

// ToolResultDefinition is the documented shape of one executed tool result
// (spec.md §3/§4.7): role is always "tool". The resend after running local
// tool executables carries a ToolResultDefinition per executed ToolCall
// alongside the tool_calls that requested them.
type ToolResultDefinition struct {
	Role       string `json:"role"`
	Name       string `json:"name"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// NewToolResultDefinition builds the ToolResultDefinition for a ToolCall's
// outcome.
func NewToolResultDefinition(call ToolCall, content string) ToolResultDefinition {
	return ToolResultDefinition{
		Role:       "tool",
		Name:       call.Function.Name,
		ToolCallID: call.ID,
		Content:    content,
	}
}
