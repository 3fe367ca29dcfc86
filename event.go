package poe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
)

// ServerSentEvent is the wire shape common to every event kind this
// protocol emits: an "event:" line naming the kind and a "data:" line
// carrying a JSON payload, terminated by a blank line, matching the
// teacher's agent_handler.go RunAgent writer
// (fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ...)).
type ServerSentEvent struct {
	Kind EventKind
	Data []byte
}

// WriteTo writes the event in wire format to w. It does not flush; callers
// streaming over HTTP flush after each event themselves (BotHost and
// ReportError do so through http.Flusher, the teacher's Writer+Flusher SSE
// pattern).
func (e ServerSentEvent) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, e.Data)
	return int64(n), err
}

// EncodeText builds the wire event for a text PartialResponse.
func EncodeText(p PartialResponse) (ServerSentEvent, error) {
	kind := EventText
	if p.IsReplace {
		kind = EventReplaceResponse
	} else if p.IsSuggestedReply {
		kind = EventSuggestedReply
	}
	payload := map[string]any{"text": p.Text}
	if p.Index != nil {
		payload["index"] = *p.Index
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ServerSentEvent{}, err
	}
	return ServerSentEvent{Kind: kind, Data: data}, nil
}

// EncodeMeta builds the wire event for a MetaResponse.
func EncodeMeta(m MetaResponse) (ServerSentEvent, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return ServerSentEvent{}, err
	}
	return ServerSentEvent{Kind: EventMeta, Data: data}, nil
}

// EncodeError builds the wire event for an ErrorResponse.
func EncodeError(e ErrorResponse) (ServerSentEvent, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return ServerSentEvent{}, err
	}
	return ServerSentEvent{Kind: EventError, Data: data}, nil
}

// EncodeData builds the wire event for a DataResponse: {"metadata": "..."}.
func EncodeData(d DataResponse) (ServerSentEvent, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return ServerSentEvent{}, err
	}
	return ServerSentEvent{Kind: EventData, Data: data}, nil
}

// DecodeData parses a "data" event payload strictly: {"metadata": "..."},
// rejecting unknown fields (spec.md §4.1/§8).
func DecodeData(ev ServerSentEvent) (DataResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(ev.Data))
	dec.DisallowUnknownFields()
	var d DataResponse
	if err := dec.Decode(&d); err != nil {
		return DataResponse{}, perrors.NewBotErrorNoRetry("malformed data event payload", err)
	}
	return d, nil
}

// EncodeJSON builds the wire event for a JSONResponse.
func EncodeJSON(j JSONResponse) (ServerSentEvent, error) {
	data, err := json.Marshal(j.Data)
	if err != nil {
		return ServerSentEvent{}, err
	}
	return ServerSentEvent{Kind: EventJSON, Data: data}, nil
}

// EncodeFile builds the wire event announcing an inline file attachment,
// correlated by InlineRef to a later Attachment on a ProtocolMessage.
func EncodeFile(messageID, inlineRef, url, name, contentType string) (ServerSentEvent, error) {
	data, err := json.Marshal(map[string]any{
		"message_id":   messageID,
		"inline_ref":   inlineRef,
		"url":          url,
		"name":         name,
		"content_type": contentType,
	})
	if err != nil {
		return ServerSentEvent{}, err
	}
	return ServerSentEvent{Kind: EventFile, Data: data}, nil
}

// DoneEvent is the sentinel wire event terminating a turn. No events after
// done are honored by the client state machine (spec.md §5.2).
func DoneEvent() ServerSentEvent {
	return ServerSentEvent{Kind: EventDone, Data: []byte("{}")}
}

// PingEvent is a keep-alive wire event that carries no payload semantics.
func PingEvent() ServerSentEvent {
	return ServerSentEvent{Kind: EventPing, Data: []byte("{}")}
}

// SSEReader scans a response body into discrete ServerSentEvent values,
// grounded in the teacher's ParseSSEStream
// (internal/infrastructure/llm/openai/sse.go): a bufio.Scanner over lines,
// reassembling "event:"/"data:" pairs across the blank-line boundary.
type SSEReader struct {
	scanner  *bufio.Scanner
	curKind  EventKind
	curData  strings.Builder
	haveKind bool
}

// NewSSEReader wraps r for event-by-event consumption. Callers that need an
// idle-read timeout should wrap r with NewTimedReader first.
func NewSSEReader(r io.Reader) *SSEReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEReader{scanner: sc}
}

// Next returns the next complete event, or io.EOF when the stream ends
// without a trailing done event (a transport-level close).
func (s *SSEReader) Next() (ServerSentEvent, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if !s.haveKind {
				continue
			}
			ev := ServerSentEvent{Kind: s.curKind, Data: []byte(s.curData.String())}
			s.curKind = ""
			s.curData.Reset()
			s.haveKind = false
			return ev, nil
		case strings.HasPrefix(line, "event:"):
			s.curKind = EventKind(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
			s.haveKind = true
		case strings.HasPrefix(line, "data:"):
			s.curData.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			// unrecognized line outside an event/data pair; skip it rather
			// than failing the whole stream, matching the teacher's
			// tolerance of blank/comment lines in ParseSSEStream.
		}
	}
	if err := s.scanner.Err(); err != nil {
		if IsIdleTimeoutErr(err) {
			return ServerSentEvent{}, err
		}
		return ServerSentEvent{}, perrors.NewBotError("error reading event stream", err)
	}
	return ServerSentEvent{}, io.EOF
}

// DecodePartialResponse parses a text/replace_response/suggested_reply event
// payload back into a PartialResponse. Parsing is strict (spec.md §4.1,
// §8): an event payload carrying an unrecognized field is malformed, not
// silently widened.
func DecodePartialResponse(ev ServerSentEvent) (PartialResponse, error) {
	var payload struct {
		Text  string `json:"text"`
		Index *int   `json:"index"`
	}
	dec := json.NewDecoder(bytes.NewReader(ev.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return PartialResponse{}, perrors.NewBotErrorNoRetry("malformed partial response payload", err)
	}
	return PartialResponse{
		Text:             payload.Text,
		Index:            payload.Index,
		IsReplace:        ev.Kind == EventReplaceResponse,
		IsSuggestedReply: ev.Kind == EventSuggestedReply,
	}, nil
}

// DecodeFileAttachment parses a "file" event payload into an Attachment for
// the client's PartialResponse.Attachment (spec.md §5.2's file → attachment
// mapping).
func DecodeFileAttachment(ev ServerSentEvent) (Attachment, error) {
	var payload struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Name        string `json:"name"`
		InlineRef   string `json:"inline_ref"`
	}
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return Attachment{}, perrors.NewBotErrorNoRetry("malformed file event payload", err)
	}
	return Attachment{
		URL:         payload.URL,
		ContentType: payload.ContentType,
		Name:        payload.Name,
		InlineRef:   payload.InlineRef,
	}, nil
}

// ErrBadMetaField marks a meta event whose JSON parsed fine but one of its
// recognized fields carries the wrong type (e.g. linkify as a string). Per
// spec.md §4.6, this is a peer-report-plus-continue condition rather than
// the abort a structurally invalid JSON payload causes: errors.Is(err,
// ErrBadMetaField) distinguishes the two for BotClient's meta handling.
var ErrBadMetaField = errors.New("poe: invalid field type in meta event")

// DecodeMeta parses a meta event payload. It validates each recognized
// field's type individually against the permissive decoded map rather than
// unmarshaling straight into MetaResponse, so one bad field (wrong type)
// can be reported and the meta event dropped without treating the whole
// payload as malformed JSON (spec.md §4.6).
func DecodeMeta(ev ServerSentEvent) (MetaResponse, error) {
	var raw map[string]any
	if err := json.Unmarshal(ev.Data, &raw); err != nil {
		return MetaResponse{}, perrors.NewBotErrorNoRetry("malformed meta event payload", err)
	}

	m := MetaResponse{ContentType: ContentTypeMarkdown}
	if v, ok := raw["linkify"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return MetaResponse{}, fmt.Errorf("%w: linkify must be a bool", ErrBadMetaField)
		}
		m.Linkify = b
	}
	if v, ok := raw["suggested_replies"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return MetaResponse{}, fmt.Errorf("%w: suggested_replies must be a bool", ErrBadMetaField)
		}
		m.SuggestedReplies = b
	}
	if v, ok := raw["refetch_settings"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return MetaResponse{}, fmt.Errorf("%w: refetch_settings must be a bool", ErrBadMetaField)
		}
		m.Refetch = b
	}
	if v, ok := raw["content_type"]; ok {
		s, isString := v.(string)
		if !isString {
			return MetaResponse{}, fmt.Errorf("%w: content_type must be a string", ErrBadMetaField)
		}
		m.ContentType = ContentType(s)
	}
	return m, nil
}

// DecodeError parses an error event payload.
func DecodeError(ev ServerSentEvent) (ErrorResponse, error) {
	var e ErrorResponse
	if err := json.Unmarshal(ev.Data, &e); err != nil {
		return ErrorResponse{}, perrors.NewBotErrorNoRetry("malformed error event payload", err)
	}
	return e, nil
}
