package poe

import "testing"

func TestCompactRoleAlternationMergesConsecutiveSameRole(t *testing.T) {
	in := []ProtocolMessage{
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleBot, Content: "c"},
	}
	out := CompactRoleAlternation(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages after compaction, got %d", len(out))
	}
	if out[0].Content != "a\n\nb" {
		t.Fatalf("got %q", out[0].Content)
	}
	if out[1].Content != "c" {
		t.Fatalf("got %q", out[1].Content)
	}
}

func TestCompactRoleAlternationDoesNotMutateInput(t *testing.T) {
	in := []ProtocolMessage{
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
	}
	_ = CompactRoleAlternation(in)
	if in[0].Content != "a" || in[1].Content != "b" {
		t.Fatalf("input slice was mutated: %+v", in)
	}
}

func TestResolveInlineAttachments(t *testing.T) {
	messages := []ProtocolMessage{
		{Role: RoleUser, Content: "see attached", Attachments: []Attachment{{InlineRef: "ref1"}}},
	}
	lookup := func(ref string) (string, bool) {
		if ref == "ref1" {
			return "https://cdn/ref1", true
		}
		return "", false
	}
	out := ResolveInlineAttachments(messages, lookup)
	if out[0].Attachments[0].URL != "https://cdn/ref1" {
		t.Fatalf("got %q", out[0].Attachments[0].URL)
	}
	if messages[0].Attachments[0].URL != "" {
		t.Fatalf("input was mutated")
	}
}

func TestResolveInlineAttachmentsLeavesUnresolvedRefsUnchanged(t *testing.T) {
	messages := []ProtocolMessage{
		{Attachments: []Attachment{{InlineRef: "missing"}}},
	}
	out := ResolveInlineAttachments(messages, func(string) (string, bool) { return "", false })
	if out[0].Attachments[0].URL != "" {
		t.Fatalf("expected URL to remain empty for unresolved ref")
	}
	if out[0].Attachments[0].InlineRef != "missing" {
		t.Fatalf("expected InlineRef preserved")
	}
}

func TestInjectAttachmentMessagesOrdersTextThenImageThenOriginal(t *testing.T) {
	last := ProtocolMessage{
		Role:    RoleUser,
		Content: "what do you think?",
		Attachments: []Attachment{
			{Name: "report.pdf", ContentType: "application/pdf", ParsedContent: "quarterly numbers"},
			{Name: "photo.png", ContentType: "image/png", ParsedContent: "cat***a cat on a windowsill"},
			{Name: "page.html", ContentType: "text/html", ParsedContent: "hello world"},
		},
	}
	in := []ProtocolMessage{{Role: RoleBot, Content: "hi"}, last}

	out := InjectAttachmentMessages(in, false)
	if len(out) != 5 {
		t.Fatalf("expected 5 messages (bot + 2 text/url + 1 image + original), got %d", len(out))
	}
	if out[0].Content != "hi" {
		t.Fatalf("expected original preceding messages preserved, got %+v", out[0])
	}
	if !containsSubstring(out[1].Content, "quarterly numbers") {
		t.Fatalf("expected pdf template first, got %q", out[1].Content)
	}
	if !containsSubstring(out[2].Content, "hello world") {
		t.Fatalf("expected html/url template second, got %q", out[2].Content)
	}
	if !containsSubstring(out[3].Content, "a cat on a windowsill") || containsSubstring(out[3].Content, "cat***") {
		t.Fatalf("expected image template with split description, got %q", out[3].Content)
	}
	if out[4].Content != "what do you think?" {
		t.Fatalf("expected original last message preserved verbatim at the end, got %q", out[4].Content)
	}
}

func TestInjectAttachmentMessagesLegacyConcatenatesIntoLastMessage(t *testing.T) {
	in := []ProtocolMessage{
		{
			Role:    RoleUser,
			Content: "what do you think?",
			Attachments: []Attachment{
				{Name: "notes.txt", ContentType: "text/plain", ParsedContent: "meeting notes"},
			},
		},
	}
	out := InjectAttachmentMessages(in, true)
	if len(out) != 1 {
		t.Fatalf("expected legacy path to keep a single message, got %d", len(out))
	}
	if !containsSubstring(out[0].Content, "what do you think?") || !containsSubstring(out[0].Content, "meeting notes") {
		t.Fatalf("expected legacy concatenation of original and template text, got %q", out[0].Content)
	}
}

func TestInjectAttachmentMessagesSkipsEmptyParsedContent(t *testing.T) {
	in := []ProtocolMessage{
		{Role: RoleUser, Content: "hi", Attachments: []Attachment{{Name: "x", ContentType: "text/plain"}}},
	}
	out := InjectAttachmentMessages(in, false)
	if len(out) != 1 {
		t.Fatalf("expected no synthesized messages for empty parsed content, got %d", len(out))
	}
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
