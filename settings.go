package poe

import (
	"bytes"
	"encoding/json"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
)

// SettingsRequest is the payload Poe's platform sends to a bot's
// /settings endpoint to request its current capability declaration.
type SettingsRequest struct {
	Version string `json:"version"`
	Type    string `json:"type"`
}

// RateCard declares a bot's per-message cost to the platform for the cost
// authorization channel (C8).
type RateCard struct {
	APICallCost     int `json:"api_call_cost,omitempty"`
	APIPricingType  string `json:"api_pricing_type,omitempty"`
}

// SettingsResponse is a bot's capability declaration, returned from its
// /settings endpoint and consumed by SettingsSyncer.Sync (C9).
//
// ResponseVersion defaults to 2: the more recent of the two conflicting
// upstream values for this field, per the corresponding Open Question
// decision.
type SettingsResponse struct {
	ServerBotDependencies map[string]int `json:"server_bot_dependencies,omitempty"`
	AllowAttachments      bool           `json:"allow_attachments,omitempty"`
	ExpandTextAttachments bool           `json:"expand_text_attachments,omitempty"`
	EnableImageComprehension bool        `json:"enable_image_comprehension,omitempty"`
	IntroductionMessage   string         `json:"introduction_message,omitempty"`
	EnforceAuthorRoleAlternation bool    `json:"enforce_author_role_alternation,omitempty"`
	EnableMultiBotChatPrompting bool     `json:"enable_multi_bot_chat_prompting,omitempty"`
	RateCard              *RateCard      `json:"rate_card,omitempty"`
	ResponseVersion       int            `json:"response_version"`
}

// DefaultSettingsResponse returns a SettingsResponse with defaulted fields
// applied (ResponseVersion=2); handlers start from this and override fields
// they care about.
func DefaultSettingsResponse() SettingsResponse {
	return SettingsResponse{ResponseVersion: 2}
}

// DecodeSettingsResponse parses a settings response payload strictly:
// unknown fields are rejected rather than silently ignored (spec.md §4.1,
// §8's round-trip law for platform-declared response types).
func DecodeSettingsResponse(data []byte) (SettingsResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out SettingsResponse
	if err := dec.Decode(&out); err != nil {
		return SettingsResponse{}, perrors.NewBotErrorNoRetry("malformed settings response payload", err)
	}
	return out, nil
}

// MetaResponse is the first event a bot handler may emit in a turn,
// establishing stream-wide metadata. BotHost forwards only the first meta
// event a handler yields, and BotClient honors a meta event only when it is
// the first event of the stream, ignoring it otherwise (spec.md §5.2).
//
// Linkify round-trips but is otherwise inert library-side: the bot handler
// may set it, but actual linkification is performed by Poe's platform, not
// by this library. Kept for wire compatibility per the corresponding Open
// Question decision.
type MetaResponse struct {
	ContentType   ContentType `json:"content_type,omitempty"`
	Linkify       bool        `json:"linkify,omitempty"`
	SuggestedReplies bool     `json:"suggested_replies,omitempty"`
	Refetch       bool        `json:"refetch_settings,omitempty"`
}
