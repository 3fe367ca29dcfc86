package poe

import (
	"strings"
	"testing"
)

func TestPlainTextStripsEmphasisMarkers(t *testing.T) {
	out := PlainText("this is **bold** and _italic_")
	if strings.Contains(out, "*") || strings.Contains(out, "_") {
		t.Fatalf("expected markup stripped, got %q", out)
	}
	if !strings.Contains(out, "bold") || !strings.Contains(out, "italic") {
		t.Fatalf("expected text content preserved, got %q", out)
	}
}

func TestPlainTextHandlesHeading(t *testing.T) {
	out := PlainText("# Title\n\nbody text")
	if strings.Contains(out, "#") {
		t.Fatalf("expected heading marker stripped, got %q", out)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "body text") {
		t.Fatalf("got %q", out)
	}
}
