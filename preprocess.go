package poe

import (
	"fmt"
	"strings"
)

// textAttachmentTemplate, urlAttachmentTemplate, and imageAttachmentTemplate
// mirror the wording of the platform's own attachment injection templates
// (spec.md §4.3).
const (
	textAttachmentTemplate = "Your response must be in the language of the relevant queries related to the document.\n" +
		"Below is the content of %s:\n\n%s"
	urlAttachmentTemplate = "Assume you can access the external URL %s. " +
		"Your response must be in the language of the relevant queries related to the URL.\n" +
		"Use the URL's content below to respond to the queries:\n\n%s"
	imageAttachmentTemplate = "I have uploaded an image (%s). " +
		"Assume that you can see the attached image. " +
		"First, read the image analysis:\n\n" +
		"<image_analysis>%s</image_analysis>\n\n" +
		"Use any relevant parts to inform your response. " +
		"Do NOT reference the image analysis in your response. " +
		"Respond in the same language as my next message. "
)

// InjectAttachmentMessages synthesizes one user-role message per attachment
// with non-empty ParsedContent on the last message of the query, using the
// per-content-type template selected by the attachment's ContentType
// (spec.md §4.3). Synthesized messages are ordered text/URL attachments
// first (in attachment order), then image attachments, then the original
// last message verbatim; this is strictly additive. legacyConcatenate
// selects the deprecated path that instead appends the same template text
// directly onto the last message's content.
func InjectAttachmentMessages(messages []ProtocolMessage, legacyConcatenate bool) []ProtocolMessage {
	if len(messages) == 0 {
		return messages
	}
	last := messages[len(messages)-1]
	if len(last.Attachments) == 0 {
		return messages
	}

	var textMessages, imageMessages []ProtocolMessage
	var legacyParts []string

	for _, a := range last.Attachments {
		if a.ParsedContent == "" {
			continue
		}
		rendered, isImage := renderAttachmentTemplate(a)
		if legacyConcatenate {
			legacyParts = append(legacyParts, rendered)
			continue
		}
		msg := ProtocolMessage{Role: RoleUser, Content: rendered, MessageID: last.MessageID}
		if isImage {
			imageMessages = append(imageMessages, msg)
		} else {
			textMessages = append(textMessages, msg)
		}
	}

	if legacyConcatenate {
		if len(legacyParts) == 0 {
			return messages
		}
		out := make([]ProtocolMessage, len(messages))
		copy(out, messages)
		tail := out[len(out)-1].Clone()
		parts := append([]string{tail.Content}, legacyParts...)
		tail.Content = strings.Join(parts, "\n\n")
		out[len(out)-1] = tail
		return out
	}

	if len(textMessages) == 0 && len(imageMessages) == 0 {
		return messages
	}
	out := make([]ProtocolMessage, 0, len(messages)+len(textMessages)+len(imageMessages))
	out = append(out, messages[:len(messages)-1]...)
	out = append(out, textMessages...)
	out = append(out, imageMessages...)
	out = append(out, last)
	return out
}

// renderAttachmentTemplate selects and fills the template for a single
// attachment, reporting whether it used the image template.
func renderAttachmentTemplate(a Attachment) (rendered string, isImage bool) {
	switch {
	case a.ContentType == "text/html":
		return fmt.Sprintf(urlAttachmentTemplate, a.Name, a.ParsedContent), false
	case strings.HasPrefix(a.ContentType, "text/") || a.ContentType == "application/pdf":
		return fmt.Sprintf(textAttachmentTemplate, a.Name, a.ParsedContent), false
	case strings.HasPrefix(a.ContentType, "image/"):
		filename, description := a.Name, a.ParsedContent
		if idx := strings.Index(a.ParsedContent, "***"); idx >= 0 {
			filename = a.ParsedContent[:idx]
			description = a.ParsedContent[idx+3:]
		}
		return fmt.Sprintf(imageAttachmentTemplate, filename, description), true
	default:
		return fmt.Sprintf(textAttachmentTemplate, a.Name, a.ParsedContent), false
	}
}

// CompactRoleAlternation coalesces consecutive same-role messages into a
// single message by joining their content with a blank line, for bots whose
// settings set EnforceAuthorRoleAlternation. It never mutates the input
// slice; it returns a new one (QueryRequest's immutability invariant, C1).
func CompactRoleAlternation(messages []ProtocolMessage) []ProtocolMessage {
	if len(messages) == 0 {
		return nil
	}
	out := make([]ProtocolMessage, 0, len(messages))
	cur := messages[0].Clone()
	for _, m := range messages[1:] {
		if m.Role == cur.Role {
			if cur.Content != "" && m.Content != "" {
				cur.Content += "\n\n" + m.Content
			} else {
				cur.Content += m.Content
			}
			cur.Attachments = append(cur.Attachments, m.Attachments...)
			continue
		}
		out = append(out, cur)
		cur = m.Clone()
	}
	out = append(out, cur)
	return out
}

// ResolveInlineAttachments fills in the URL of each attachment that carries
// only an InlineRef, via lookup; the InlineRef itself is kept. Attachments
// whose ref lookup does not resolve are left unchanged so callers can retry
// once more file events have been pushed (C5's PendingFileQueue.Lookup is
// the usual source of lookup and resolves a ref as soon as it is pushed).
func ResolveInlineAttachments(messages []ProtocolMessage, lookup func(inlineRef string) (url string, ok bool)) []ProtocolMessage {
	out := make([]ProtocolMessage, len(messages))
	for i, m := range messages {
		nm := m.Clone()
		for j, a := range nm.Attachments {
			if a.IsInlineRef() {
				if url, ok := lookup(a.InlineRef); ok {
					nm.Attachments[j].URL = url
				}
			}
		}
		out[i] = nm
	}
	return out
}

// PreprocessOptions controls which stages of Preprocess run, mirroring the
// bot settings that gate them (spec.md §4.3).
type PreprocessOptions struct {
	// InjectAttachments synthesizes text/URL/image messages from the last
	// message's attachments (the non-legacy, additive path).
	InjectAttachments bool
	// LegacyConcatenateAttachments selects the deprecated path that appends
	// the same template text directly onto the last message instead of
	// inserting new messages. Ignored unless InjectAttachments is set.
	LegacyConcatenateAttachments bool
	// EnforceRoleAlternation runs CompactRoleAlternation after injection.
	EnforceRoleAlternation bool
}

// Preprocess applies the standard pre-processing pipeline to a QueryRequest
// before it is handed to a bot handler: inline attachment resolution (always
// run), then attachment-to-message injection, then role-alternation
// compaction, the last two each gated by opts. It returns a new
// QueryRequest; the input is never mutated
// (spec.md §3).
func Preprocess(req QueryRequest, lookup func(inlineRef string) (url string, ok bool), opts PreprocessOptions) QueryRequest {
	out := req.Clone()
	out.Query = ResolveInlineAttachments(out.Query, lookup)
	if opts.InjectAttachments {
		out.Query = InjectAttachmentMessages(out.Query, opts.LegacyConcatenateAttachments)
	}
	if opts.EnforceRoleAlternation {
		out.Query = CompactRoleAlternation(out.Query)
	}
	return out
}
