package poe

import (
	"context"
	"fmt"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"github.com/poe-platform/fastapi-poe/pkg/safego"
	"go.uber.org/zap"
)

// ToolExecutable runs one local tool invocation and returns its textual
// result, which is fed back to the model as a RoleTool ProtocolMessage.
type ToolExecutable func(ctx context.Context, call ToolCall) (string, error)

// StreamChunk is one piece of a streaming model response: either appended
// text, a tool call delta, or a terminal finish reason. Grounded in the
// teacher's internal/domain/service/agent_loop.go StreamChunk.
type StreamChunk struct {
	DeltaText     string
	DeltaToolCall *ToolCallDelta
	FinishReason  string
}

// ToolCallRequest is what Stream is re-invoked with on every round: the
// running message history plus, on any round past the first, the tools
// schema and the tool_calls/tool_results pair the prior round produced
// (spec.md §4.7's "re-issue stream_request with the same request plus
// tools, tool_calls, and tool_results" and scenario 6).
type ToolCallRequest struct {
	Messages    []ProtocolMessage
	Tools       []ToolDefinition
	ToolCalls   []ToolCall
	ToolResults []ToolResultDefinition
}

// ToolCallLoop drives the two-phase tool loop described in spec.md's C7: a
// caller-supplied Stream function produces StreamChunk values; tool-call
// deltas are aggregated by index; once the stream finishes with a
// tool_calls finish reason, each aggregated call is dispatched to the
// matching ToolExecutable in Tools, packaged as a ToolResultDefinition, and
// Stream is invoked again with the same messages plus the documented
// tools/tool_calls/tool_results triple. The loop ends when a turn finishes
// without requesting any tool calls, or MaxRounds is reached.
type ToolCallLoop struct {
	Stream     func(ctx context.Context, req ToolCallRequest) (<-chan StreamChunk, error)
	Tools      map[string]ToolExecutable
	ToolSchema []ToolDefinition
	Logger     *zap.Logger
	MaxRounds  int
}

// Run executes the loop starting from the given messages, emitting each
// accumulated text delta to onText as it arrives, and returns the final
// assistant text once no further tool calls are requested.
func (l *ToolCallLoop) Run(ctx context.Context, messages []ProtocolMessage, onText func(string)) (string, error) {
	maxRounds := l.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 8
	}

	history := make([]ProtocolMessage, len(messages))
	copy(history, messages)

	var finalText string
	var pendingCalls []ToolCall
	var pendingResults []ToolResultDefinition

	for round := 0; round < maxRounds; round++ {
		req := ToolCallRequest{Messages: history}
		if round > 0 {
			req.Tools = l.ToolSchema
			req.ToolCalls = pendingCalls
			req.ToolResults = pendingResults
		}

		chunks, err := l.Stream(ctx, req)
		if err != nil {
			return "", err
		}

		accumulators := map[int]*ToolCallAccumulator{}
		order := []int{}
		var text string
		var finishReason string

		for chunk := range chunks {
			if chunk.DeltaText != "" {
				text += chunk.DeltaText
				if onText != nil {
					onText(chunk.DeltaText)
				}
			}
			if chunk.DeltaToolCall != nil {
				AggregateDelta(accumulators, &order, *chunk.DeltaToolCall)
			}
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
		}

		if len(order) == 0 || finishReason != "tool_calls" {
			finalText = text
			break
		}

		history = append(history, ProtocolMessage{Role: RoleBot, Content: text})

		pendingCalls = make([]ToolCall, 0, len(order))
		pendingResults = make([]ToolResultDefinition, 0, len(order))
		for _, idx := range order {
			call := accumulators[idx].ToolCall()
			result := l.execute(ctx, call)
			history = append(history, ToolResultMessage(call, result))
			pendingCalls = append(pendingCalls, call)
			pendingResults = append(pendingResults, NewToolResultDefinition(call, result))
		}
	}

	return finalText, nil
}

// execute dispatches a single ToolCall to its registered ToolExecutable,
// recovering from a panic inside the executable and turning it into a
// documented tool-result failure instead of crashing the run (the
// /report_error-adjacent supplemented behavior from SPEC_FULL.md,
// mirroring the teacher's AgentLoop.Run top-level recover()).
func (l *ToolCallLoop) execute(ctx context.Context, call ToolCall) string {
	fn, ok := l.Tools[call.Function.Name]
	if !ok {
		err := perrors.NewBotErrorNoRetry(fmt.Sprintf("no executable registered for tool %q", call.Function.Name), nil)
		l.Logger.Warn("unregistered tool call", zap.String("tool", call.Function.Name))
		return err.Error()
	}

	resultCh := make(chan string, 1)
	safego.Go(l.Logger, "tool-call:"+call.Function.Name, func() {
		// Recover locally so a panicking tool yields a documented failure
		// result instead of merely being logged by safego.Go's own
		// recover with no value ever reaching resultCh.
		defer func() {
			if r := recover(); r != nil {
				l.Logger.Error("tool execution panicked",
					zap.String("tool", call.Function.Name), zap.Any("panic", r))
				resultCh <- fmt.Sprintf("tool %s panicked: %v", call.Function.Name, r)
			}
		}()
		result, err := fn(ctx, call)
		if err != nil {
			l.Logger.Warn("tool execution failed", zap.String("tool", call.Function.Name), zap.Error(err))
			resultCh <- fmt.Sprintf("error executing tool %s: %v", call.Function.Name, err)
			return
		}
		resultCh <- result
	})

	select {
	case <-ctx.Done():
		return fmt.Sprintf("tool %s canceled: %v", call.Function.Name, ctx.Err())
	case result := <-resultCh:
		return result
	}
}
