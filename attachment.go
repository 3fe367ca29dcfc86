package poe

import (
	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
)

// Attachment describes a file associated with a ProtocolMessage, either
// already hosted at a URL or referenced by an inline_ref correlated to a
// file event emitted earlier in the same turn (spec.md §4.1, §4.4).
type Attachment struct {
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Name        string `json:"name,omitempty"`
	InlineRef   string `json:"inline_ref,omitempty"`
	ParsedContent string `json:"parsed_content,omitempty"`
}

// IsInlineRef reports whether this attachment refers to a file event rather
// than a directly fetchable URL.
func (a Attachment) IsInlineRef() bool {
	return a.InlineRef != "" && a.URL == ""
}

// AttachUploadRequest is the input to the attachment uploader (C4). Exactly
// one of Content or DownloadURL must be set; supplying both or neither is an
// InvalidParameter error.
type AttachUploadRequest struct {
	MessageID   string
	Content     []byte
	Filename    string
	ContentType string
	DownloadURL string
	IsInline    bool
}

// Validate checks the mutual-exclusivity invariant for upload requests.
func (r AttachUploadRequest) Validate() error {
	hasContent := r.Content != nil
	hasURL := r.DownloadURL != ""
	if hasContent == hasURL {
		if hasContent {
			return perrors.NewInvalidParameter("exactly one of Content or DownloadURL must be set, not both")
		}
		return perrors.NewInvalidParameter("exactly one of Content or DownloadURL must be set")
	}
	if hasContent && r.Filename == "" {
		return perrors.NewInvalidParameter("Filename is required when uploading inline Content")
	}
	return nil
}

// AttachUploadResponse is the result of a successful attachment upload.
type AttachUploadResponse struct {
	InlineRef     string `json:"inline_ref"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}
