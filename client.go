package poe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"go.uber.org/zap"
)

// DefaultIdleTimeout bounds how long BotClient waits for the next byte on a
// streamed response before treating the connection as stalled, grounded in
// the teacher's 60-second idle timeout in
// internal/infrastructure/llm/openai/sse.go.
const DefaultIdleTimeout = 60 * time.Second

// BotClient invokes another Poe bot over HTTP, consuming its SSE response
// and re-assembling it into PartialResponse/MetaResponse/ErrorResponse
// values for the caller (C6, spec.md §4.6).
type BotClient struct {
	BotName     string
	Endpoint    string
	AccessKey   string
	HTTPClient  *http.Client
	Logger      *zap.Logger
	IdleTimeout time.Duration
	Retry       RetryPolicy
}

// NewBotClient builds a BotClient with the teacher's transport tuning
// (explicit idle-conn timeouts rather than http.DefaultClient) and the
// default retry policy.
func NewBotClient(botName, endpoint, accessKey string, logger *zap.Logger) *BotClient {
	return &BotClient{
		BotName:  botName,
		Endpoint: endpoint,
		AccessKey: accessKey,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Logger:      logger.With(zap.String("bot", botName)),
		IdleTimeout: DefaultIdleTimeout,
		Retry:       DefaultRetryPolicy(),
	}
}

// ClientEvent is a decoded unit the caller receives while streaming a
// bot call: exactly one of its fields is populated.
type ClientEvent struct {
	Partial *PartialResponse
	Meta    *MetaResponse
	Error   *ErrorResponse
	Data    *DataResponse
	Done    bool
}

// GetBotResponse streams a single turn from the target bot, returning a
// channel of ClientEvent that is closed when the stream ends; the returned
// error is always nil. It applies the retry policy (RetryPolicy) across
// whole-stream attempts: a failure before anything was yielded is retried;
// an error after partial output is surfaced as an Error event rather than
// silently restarting and duplicating output, and a stall after partial
// output ends the stream with what was already yielded.
func (c *BotClient) GetBotResponse(ctx context.Context, req QueryRequest) (<-chan ClientEvent, error) {
	if req.MessageID == "" {
		req.MessageID = string(NewIdentifier())
	}
	if req.BotQueryID == "" {
		req.BotQueryID = string(NewIdentifier())
	}
	req.Version = ProtocolVersion
	req.Type = "query"

	out := make(chan ClientEvent, 8)
	logger := c.Logger.With(zap.String("conversation_id", req.ConversationID))

	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("bot client panicked", zap.Any("panic", r))
			}
		}()

		var yieldedAny bool
		attempt := 0
		for {
			attempt++
			err := c.streamOnce(ctx, req, logger, attempt, &yieldedAny, out)
			if err == nil {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if yieldedAny || !c.Retry.ShouldRetry(attempt, err) {
				out <- ClientEvent{Error: &ErrorResponse{Text: err.Error(), AllowRetry: perrors.AllowRetry(err)}}
				return
			}
			logger.Warn("retrying bot call", zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.Retry.Delay(attempt)):
			}
		}
	}()

	return out, nil
}

// reportError posts a best-effort "report_error" request to the bot's own
// endpoint, matching spec.md §4.6's out-of-band peer notification for
// stream parse violations and the no-text/no-done boundary behaviors
// (spec.md §8). Failures to deliver the report are logged, not returned:
// reporting is diagnostic and must never affect the outcome of the call it
// describes.
func (c *BotClient) reportError(ctx context.Context, message string, metadata map[string]any) {
	body, err := json.Marshal(map[string]any{
		"version":  ProtocolVersion,
		"type":     "report_error",
		"message":  message,
		"metadata": metadata,
	})
	if err != nil {
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.AccessKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AccessKey)
	}
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		c.Logger.Debug("failed to deliver report_error to peer", zap.Error(err))
		return
	}
	resp.Body.Close()
}

func (c *BotClient) streamOnce(ctx context.Context, req QueryRequest, logger *zap.Logger, attempt int, yieldedAny *bool, out chan<- ClientEvent) error {
	body, err := json.Marshal(req)
	if err != nil {
		return perrors.NewInvalidParameter("failed to marshal query request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return perrors.NewBotError("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.AccessKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AccessKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return perrors.NewBotError(fmt.Sprintf("error communicating with bot %s", c.BotName), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return perrors.NewBotError(fmt.Sprintf("bot %s returned status %d", c.BotName, resp.StatusCode), nil)
	}

	reader := NewSSEReader(NewTimedReader(resp.Body, c.IdleTimeout))
	eventCount := 0
	var textSeen, toolCallsSeen, errorReported bool
	toolCalls := map[int]*ToolCallAccumulator{}
	var toolCallOrder []int

	flushToolCalls := func() {
		if len(toolCallOrder) == 0 {
			return
		}
		calls := make([]ToolCall, 0, len(toolCallOrder))
		for _, idx := range toolCallOrder {
			calls = append(calls, toolCalls[idx].ToolCall())
		}
		*yieldedAny = true
		toolCallsSeen = true
		out <- ClientEvent{Partial: &PartialResponse{ToolCalls: calls}}
		toolCalls = map[int]*ToolCallAccumulator{}
		toolCallOrder = nil
	}

	for {
		ev, err := reader.Next()
		if err != nil {
			if IsIdleTimeoutErr(err) {
				if *yieldedAny {
					return nil
				}
				return perrors.NewBotError("bot stream stalled before yielding any output", err)
			}
			if errors.Is(err, io.EOF) {
				// The peer closed the connection without ever sending a
				// done event. Python's client treats this as a clean end
				// of the async generator after reporting it, not as a
				// retriable transport failure (spec.md §4.6).
				if !errorReported {
					c.reportError(ctx, "Bot exited without sending 'done' event",
						map[string]any{"message_id": req.MessageID})
				}
				return nil
			}
			return err
		}
		eventCount++

		switch ev.Kind {
		case EventDone:
			flushToolCalls()
			if !textSeen && !toolCallsSeen && !errorReported {
				c.reportError(ctx, "Bot returned no text in response",
					map[string]any{"message_id": req.MessageID})
			}
			out <- ClientEvent{Done: true}
			return nil
		case EventJSON:
			content, deltas, finishReason, err := ParseOpenAIChunk(ev.Data)
			if err != nil {
				logger.Debug("skipping malformed json event", zap.Error(err))
				continue
			}
			if content != "" {
				*yieldedAny = true
				textSeen = true
				out <- ClientEvent{Partial: &PartialResponse{Text: content}}
			}
			for _, d := range deltas {
				AggregateDelta(toolCalls, &toolCallOrder, d)
			}
			if finishReason != "" {
				// finish_reason marks the end of function selection for this
				// round (spec.md §4.7); may arrive before or after the tool
				// deltas it concludes.
				flushToolCalls()
			}
		case EventFile:
			a, err := DecodeFileAttachment(ev)
			if err != nil {
				return err
			}
			*yieldedAny = true
			out <- ClientEvent{Partial: &PartialResponse{Attachment: &a}}
		case EventMeta:
			// Only the first event of the whole stream ever honors a meta
			// event, regardless of how many meta events came before it
			// (spec.md §5's "meta is honored only when it is the first
			// event of the stream" rule) — this is a stream-position check,
			// not "the first meta we've seen".
			if eventCount != 1 {
				continue
			}
			m, err := DecodeMeta(ev)
			if err != nil {
				if errors.Is(err, ErrBadMetaField) {
					c.reportError(ctx, err.Error(), map[string]any{"message_id": req.MessageID})
					errorReported = true
					continue
				}
				c.reportError(ctx, "Invalid JSON in 'meta' event", map[string]any{"message_id": req.MessageID})
				return err
			}
			out <- ClientEvent{Meta: &m}
		case EventText, EventReplaceResponse, EventSuggestedReply:
			p, err := DecodePartialResponse(ev)
			if err != nil {
				c.reportError(ctx, fmt.Sprintf("Invalid JSON in %q event", string(ev.Kind)),
					map[string]any{"message_id": req.MessageID})
				return err
			}
			*yieldedAny = true
			if !p.IsSuggestedReply {
				textSeen = true
			}
			out <- ClientEvent{Partial: &p}
		case EventError:
			e, err := DecodeError(ev)
			if err != nil {
				return err
			}
			if e.AllowRetry {
				return perrors.NewBotError(e.Text, nil)
			}
			return perrors.NewBotErrorNoRetry(e.Text, nil)
		case EventData:
			d, err := DecodeData(ev)
			if err != nil {
				continue
			}
			out <- ClientEvent{Data: &d}
		case EventPing:
			continue
		default:
			logger.Debug("skipping unrecognized SSE event kind", zap.String("kind", string(ev.Kind)))
			c.reportError(ctx, fmt.Sprintf("Unknown event type: %s", ev.Kind),
				map[string]any{"message_id": req.MessageID})
			errorReported = true
		}
	}
}
