// Package poe implements the Poe bot protocol runtime: a bidirectional
// streaming-SSE library for serving a conversational bot endpoint and for
// acting as a client that calls other Poe bots.
package poe

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// ProtocolVersion is the wire protocol version embedded in request bodies and URLs.
const ProtocolVersion = "1.2"

// Role identifies the author of a ProtocolMessage.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleTool   Role = "tool"
)

// ContentType identifies how a message's content should be rendered.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "text/markdown"
	ContentTypePlain    ContentType = "text/plain"
)

// Identifier is an opaque protocol identifier (user id, conversation id, etc).
type Identifier string

// NewIdentifier generates a fresh, URL-safe identifier using a UUIDv4 with
// hyphens stripped, matching the compact id style used by Poe's own ids.
func NewIdentifier() Identifier {
	return Identifier(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// MessageFeedback records a single piece of user feedback on a message.
type MessageFeedback struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ProtocolMessage is a single turn in a conversation.
//
// Tool results are carried as a ProtocolMessage with Role=RoleTool.
// Consecutive same-role messages are legal on input; use CompactRoleAlternation
// to coalesce them where the platform requires strict alternation.
type ProtocolMessage struct {
	Role            Role              `json:"role"`
	Content         string            `json:"content"`
	ContentType     ContentType       `json:"content_type,omitempty"`
	MessageID       string            `json:"message_id,omitempty"`
	Timestamp       int64             `json:"timestamp,omitempty"`
	SenderID        string            `json:"sender_id,omitempty"`
	Attachments     []Attachment      `json:"attachments,omitempty"`
	Feedback        []MessageFeedback `json:"feedback,omitempty"`
	// Extra preserves unknown fields for forward compatibility. ProtocolMessage
	// is permissively parsed (spec.md §4.1): platform additions round-trip
	// instead of being rejected or silently dropped. Populated by
	// UnmarshalJSON and re-emitted by MarshalJSON.
	Extra map[string]any `json:"-"`
}

// protocolMessageWire is ProtocolMessage minus its custom Marshal/Unmarshal
// methods, used as the base shape the Extra-handling wrappers build on.
type protocolMessageWire ProtocolMessage

var protocolMessageKnownFields = map[string]struct{}{
	"role": {}, "content": {}, "content_type": {}, "message_id": {},
	"timestamp": {}, "sender_id": {}, "attachments": {}, "feedback": {},
}

// MarshalJSON re-attaches Extra's unknown fields alongside the known ones so
// a message round-trips platform additions it didn't itself understand
// (spec.md §8).
func (m ProtocolMessage) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(protocolMessageWire(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON parses the known fields normally and stashes anything else
// into Extra, so ProtocolMessage stays permissive (spec.md §4.1) while still
// preserving what it didn't recognize.
func (m *ProtocolMessage) UnmarshalJSON(data []byte) error {
	var w protocolMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = ProtocolMessage(w)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range protocolMessageKnownFields {
		delete(raw, k)
	}
	if len(raw) == 0 {
		m.Extra = nil
		return nil
	}
	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		extra[k] = val
	}
	m.Extra = extra
	return nil
}

// EffectiveContentType returns ContentType, defaulting to markdown.
func (m ProtocolMessage) EffectiveContentType() ContentType {
	if m.ContentType == "" {
		return ContentTypeMarkdown
	}
	return m.ContentType
}

// Clone returns a deep copy of m so pre-processing steps never mutate a
// caller's ProtocolMessage in place.
func (m ProtocolMessage) Clone() ProtocolMessage {
	out := m
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		copy(out.Attachments, m.Attachments)
	}
	if m.Feedback != nil {
		out.Feedback = make([]MessageFeedback, len(m.Feedback))
		copy(out.Feedback, m.Feedback)
	}
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Equal reports whether two messages match on role, content, effective
// content type, message id, sender id and attachments. Timestamp, Feedback
// and Extra are not compared.
func (m ProtocolMessage) Equal(other ProtocolMessage) bool {
	if m.Role != other.Role || m.Content != other.Content ||
		m.EffectiveContentType() != other.EffectiveContentType() ||
		m.MessageID != other.MessageID || m.SenderID != other.SenderID {
		return false
	}
	if len(m.Attachments) != len(other.Attachments) {
		return false
	}
	for i := range m.Attachments {
		if m.Attachments[i] != other.Attachments[i] {
			return false
		}
	}
	return true
}

// SamplingConfig holds optional per-request sampling controls.
type SamplingConfig struct {
	Temperature      *float64          `json:"temperature,omitempty"`
	SkipSystemPrompt bool              `json:"skip_system_prompt,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	StopSequences    []string          `json:"stop_sequences,omitempty"`
	LanguageCode     string            `json:"language_code,omitempty"`
}

// QueryRequest is the full request context for a single conversational turn.
// It is immutable after construction: pre-processing (attachment injection,
// role-alternation compaction) always returns a new value.
type QueryRequest struct {
	Version       string          `json:"version"`
	Type          string          `json:"type"`
	UserID        string          `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	MessageID     string          `json:"message_id"`
	BotQueryID    string          `json:"bot_query_id,omitempty"`
	Query         []ProtocolMessage `json:"query"`
	Sampling      SamplingConfig  `json:"-"`
	AccessKey     string          `json:"-"`
	// Extra carries platform-added top-level fields through permissive
	// parsing. Populated by UnmarshalJSON and re-emitted by MarshalJSON.
	Extra map[string]any `json:"-"`
}

// queryRequestWire is QueryRequest minus its custom Marshal/Unmarshal
// methods, used as the base shape the Extra-handling wrappers build on.
type queryRequestWire QueryRequest

var queryRequestKnownFields = map[string]struct{}{
	"version": {}, "type": {}, "user_id": {}, "conversation_id": {},
	"message_id": {}, "bot_query_id": {}, "query": {},
}

// MarshalJSON re-attaches Extra's unknown fields alongside the known ones so
// a request round-trips platform additions it didn't itself understand
// (spec.md §8).
func (r QueryRequest) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(queryRequestWire(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON parses the known fields normally and stashes anything else
// into Extra (spec.md §4.1/§8).
func (r *QueryRequest) UnmarshalJSON(data []byte) error {
	var w queryRequestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = QueryRequest(w)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range queryRequestKnownFields {
		delete(raw, k)
	}
	if len(raw) == 0 {
		r.Extra = nil
		return nil
	}
	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		extra[k] = val
	}
	r.Extra = extra
	return nil
}

// Clone returns a deep copy of r, preserving the "pre-processing returns a new
// value" invariant required by spec.md §3.
func (r QueryRequest) Clone() QueryRequest {
	out := r
	if r.Query != nil {
		out.Query = make([]ProtocolMessage, len(r.Query))
		for i, m := range r.Query {
			out.Query[i] = m.Clone()
		}
	}
	if r.Sampling.LogitBias != nil {
		out.Sampling.LogitBias = make(map[string]float64, len(r.Sampling.LogitBias))
		for k, v := range r.Sampling.LogitBias {
			out.Sampling.LogitBias[k] = v
		}
	}
	if r.Sampling.StopSequences != nil {
		out.Sampling.StopSequences = append([]string(nil), r.Sampling.StopSequences...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// LastMessage returns the final message in the query, or the zero value if empty.
func (r QueryRequest) LastMessage() (ProtocolMessage, bool) {
	if len(r.Query) == 0 {
		return ProtocolMessage{}, false
	}
	return r.Query[len(r.Query)-1], true
}
