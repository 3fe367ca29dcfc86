package poe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestAttachUploadRequestValidate(t *testing.T) {
	both := AttachUploadRequest{Content: []byte("x"), Filename: "a.txt", DownloadURL: "https://x"}
	if err := both.Validate(); err == nil {
		t.Fatalf("expected error when both Content and DownloadURL set")
	}

	neither := AttachUploadRequest{MessageID: "m1"}
	if err := neither.Validate(); err == nil {
		t.Fatalf("expected error when neither Content nor DownloadURL set")
	}

	missingFilename := AttachUploadRequest{Content: []byte("x")}
	if err := missingFilename.Validate(); err == nil {
		t.Fatalf("expected error when Filename missing for inline content")
	}

	ok := AttachUploadRequest{Content: []byte("x"), Filename: "a.txt"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestAttachmentUploaderUploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(AttachUploadResponse{InlineRef: "ref123", AttachmentURL: "https://cdn/ref123"})
	}))
	defer srv.Close()

	u := NewAttachmentUploader(srv.URL, "key", zap.NewNop())
	resp, err := u.Upload(context.Background(), "key", AttachUploadRequest{
		MessageID: "m1", Content: []byte("data"), Filename: "a.txt",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.InlineRef != "ref123" {
		t.Fatalf("got %q", resp.InlineRef)
	}
}

func TestAttachmentUploaderInlineGeneratesLocalRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// The upload service itself never allocates inline_ref; the
		// uploader must generate one locally regardless of what (if
		// anything) the service returns here.
		json.NewEncoder(w).Encode(AttachUploadResponse{AttachmentURL: "https://cdn/x"})
	}))
	defer srv.Close()

	u := NewAttachmentUploader(srv.URL, "key", zap.NewNop())
	resp, err := u.Upload(context.Background(), "key", AttachUploadRequest{
		MessageID: "m1", Content: []byte("data"), Filename: "a.png", IsInline: true,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(resp.InlineRef) != 8 {
		t.Fatalf("expected an 8-character inline_ref, got %q", resp.InlineRef)
	}
}

func TestFilenameFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/path/report%20final.pdf", "report final.pdf"},
		{"https://example.com/", "downloaded_file"},
		{"https://example.com", "downloaded_file"},
		{"not a url at all://", "downloaded_file"},
	}
	for _, tc := range cases {
		if got := filenameFromURL(tc.url); got != tc.want {
			t.Fatalf("filenameFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestAttachmentUploaderURLUploadDefaultsFilename(t *testing.T) {
	var gotForm, gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm.Get("download_url")
		gotFilename = r.PostForm.Get("download_filename")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(AttachUploadResponse{AttachmentURL: "https://cdn/x"})
	}))
	defer srv.Close()

	u := NewAttachmentUploader(srv.URL, "key", zap.NewNop())
	req := AttachUploadRequest{MessageID: "m1", DownloadURL: "https://example.com/files/photo.jpg"}
	if _, err := u.Upload(context.Background(), "key", req); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotForm != "https://example.com/files/photo.jpg" {
		t.Fatalf("unexpected download_url posted: %q", gotForm)
	}
	if gotFilename != "photo.jpg" {
		t.Fatalf("expected download_filename defaulted from the URL, got %q", gotFilename)
	}
}

func TestAttachmentUploaderFailsAfterRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewAttachmentUploader(srv.URL, "key", zap.NewNop())
	u.Retries = 2
	_, err := u.Upload(context.Background(), "key", AttachUploadRequest{
		MessageID: "m1", Content: []byte("data"), Filename: "a.txt",
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}
