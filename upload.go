package poe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"go.uber.org/zap"
)

// inlineRefAlphabet is deliberately base32 (uppercase alphanumeric, no
// padding) rather than base64: spec.md §4.4 calls for an 8-character
// alphanumeric token, and base32's alphabet needs no trimming of `+`/`/`/`=`
// the way base64's would.
const inlineRefAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// newInlineRef generates an 8-character alphanumeric inline_ref locally,
// grounded in the teacher's generateTraceID
// (internal/domain/service/trace.go): crypto/rand bytes run through a
// fixed-width text encoding and truncated to length.
func newInlineRef() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// fixed token rather than panicking mid-upload.
		return "00000000"
	}
	enc := base32.NewEncoding(inlineRefAlphabet).WithPadding(base32.NoPadding).EncodeToString(buf[:])
	return strings.ToLower(enc[:8])
}

// filenameFromURL derives a fallback upload filename from a download URL's
// last path segment, percent-decoded, falling back to "downloaded_file" when
// the URL has no usable path segment (spec.md §4.4, §8 boundary behavior).
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "downloaded_file"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "downloaded_file"
	}
	decoded, err := url.PathUnescape(base)
	if err != nil || decoded == "" {
		return "downloaded_file"
	}
	return decoded
}

// DefaultUploadRetries is the number of attempts the uploader makes before
// raising AttachmentUploadError, matching the retry-budget-then-fail shape
// the teacher applies to its own outbound HTTP calls.
const DefaultUploadRetries = 3

// AttachmentUploader posts attachments to Poe's attachment upload endpoint,
// returning an inline_ref the caller threads onto an outgoing
// PartialResponse/Attachment (C4, spec.md §4.4).
type AttachmentUploader struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Retries    int
}

// NewAttachmentUploader builds an AttachmentUploader with sane defaults,
// mirroring the teacher's http.Transport tuning in
// internal/infrastructure/llm/openai/provider.go (explicit timeouts rather
// than relying on http.DefaultClient's zero-value transport).
func NewAttachmentUploader(baseURL, accessKey string, logger *zap.Logger) *AttachmentUploader {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &AttachmentUploader{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
		Logger:  logger,
		Retries: DefaultUploadRetries,
	}
}

// Upload sends req to the attachment endpoint, making up to u.Retries
// attempts in total before raising AttachmentUploadError.
func (u *AttachmentUploader) Upload(ctx context.Context, accessKey string, req AttachUploadRequest) (AttachUploadResponse, error) {
	if err := req.Validate(); err != nil {
		return AttachUploadResponse{}, err
	}
	if req.DownloadURL != "" && req.Filename == "" {
		req.Filename = filenameFromURL(req.DownloadURL)
	}

	retries := u.Retries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		resp, err := u.attempt(ctx, accessKey, req)
		if err == nil {
			if req.IsInline {
				// The upload service never allocates inline_ref itself; the
				// uploader generates it locally once the upload has
				// succeeded, replacing whatever the service returned
				// (spec.md §4.4).
				resp.InlineRef = newInlineRef()
			}
			return resp, nil
		}
		lastErr = err
		u.Logger.Warn("attachment upload attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", retries),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return AttachUploadResponse{}, perrors.NewAttachmentUploadError("context canceled during upload", ctx.Err())
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return AttachUploadResponse{}, perrors.NewAttachmentUploadError("attachment upload failed after retries", lastErr)
}

func (u *AttachmentUploader) attempt(ctx context.Context, accessKey string, req AttachUploadRequest) (AttachUploadResponse, error) {
	var httpReq *http.Request
	var err error

	if req.DownloadURL != "" {
		form := url.Values{}
		form.Set("download_url", req.DownloadURL)
		if req.Filename != "" {
			form.Set("download_filename", req.Filename)
		}
		form.Set("message_id", req.MessageID)
		if req.IsInline {
			form.Set("is_inline", "true")
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/attachment/upload",
			bytes.NewBufferString(form.Encode()))
		if err != nil {
			return AttachUploadResponse{}, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if err := mw.WriteField("message_id", req.MessageID); err != nil {
			return AttachUploadResponse{}, err
		}
		if req.IsInline {
			if err := mw.WriteField("is_inline", "true"); err != nil {
				return AttachUploadResponse{}, err
			}
		}
		part, err := mw.CreateFormFile("file", req.Filename)
		if err != nil {
			return AttachUploadResponse{}, err
		}
		if _, err := part.Write(req.Content); err != nil {
			return AttachUploadResponse{}, err
		}
		if err := mw.Close(); err != nil {
			return AttachUploadResponse{}, err
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/attachment/upload", &body)
		if err != nil {
			return AttachUploadResponse{}, err
		}
		httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	}

	// The attachment upload endpoint takes the bare key, not a Bearer token
	// (original_source/src/fastapi_poe/base.py's upload_file: headers =
	// {"Authorization": access_key}).
	httpReq.Header.Set("Authorization", accessKey)

	resp, err := u.HTTPClient.Do(httpReq)
	if err != nil {
		return AttachUploadResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return AttachUploadResponse{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, b)
	}

	var out AttachUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AttachUploadResponse{}, err
	}
	return out, nil
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * 250 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
