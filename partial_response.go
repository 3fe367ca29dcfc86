package poe

// EventKind identifies the kind of SSE event carried on the bot protocol
// wire (spec.md §5). Every event kind maps to exactly one PartialResponse
// or control shape below.
type EventKind string

const (
	EventText            EventKind = "text"
	EventReplaceResponse  EventKind = "replace_response"
	EventSuggestedReply   EventKind = "suggested_reply"
	EventMeta             EventKind = "meta"
	EventJSON             EventKind = "json"
	EventFile             EventKind = "file"
	EventData             EventKind = "data"
	EventError            EventKind = "error"
	EventPing             EventKind = "ping"
	EventDone             EventKind = "done"
)

// PartialResponse is a single unit of output yielded by a bot handler or
// received by a client during a streaming turn.
//
// Index threads a handler-assigned stream index verbatim from the handler
// through the wire to the client with no library-side interpretation beyond
// "same index correlates to the same in-flight stream" (see the
// corresponding Open Question decision).
//
// Attachment and ToolCalls are populated only on the client side, decoded
// from "file" events and aggregated "json" tool-call deltas respectively
// (C6/C7, spec.md §3); a handler-side PartialResponse never sets them
// directly — it yields a BotEvent.File or relies on ToolCallLoop instead.
type PartialResponse struct {
	Text             string         `json:"text,omitempty"`
	IsReplace        bool           `json:"-"`
	IsSuggestedReply bool           `json:"-"`
	Index            *int           `json:"-"`
	Data             map[string]any `json:"data,omitempty"`
	RawResponse      map[string]any `json:"raw_response,omitempty"`
	Attachment       *Attachment    `json:"-"`
	ToolCalls        []ToolCall     `json:"-"`
}

// TextResponse builds a plain text-append PartialResponse.
func TextResponse(text string) PartialResponse {
	return PartialResponse{Text: text}
}

// ReplaceResponse builds a PartialResponse that clears the buffer
// accumulated so far and replaces it with text (spec.md §5.3).
func ReplaceResponse(text string) PartialResponse {
	return PartialResponse{Text: text, IsReplace: true}
}

// SuggestedReply builds a suggested-reply PartialResponse.
func SuggestedReply(text string) PartialResponse {
	return PartialResponse{Text: text, IsSuggestedReply: true}
}

// ErrorResponse is emitted as an "error" SSE event. AllowRetry mirrors the
// wire field of the same name; ErrorType is an optional machine-readable tag.
type ErrorResponse struct {
	Text       string `json:"text"`
	AllowRetry bool   `json:"allow_retry,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
	RawResponse map[string]any `json:"raw_response,omitempty"`
}

// DataResponse carries a string of side-channel data as a "data" SSE event,
// for bots to attach metadata the client must interpret out of band
// (original_source's DataResponse.metadata, a plain string field).
type DataResponse struct {
	Metadata string `json:"metadata"`
}

// JSONResponse carries an arbitrary JSON payload as a "json" SSE event.
type JSONResponse struct {
	Data map[string]any `json:"data"`
}
