package poe

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestEchoOverSSE exercises the end-to-end scenario from spec.md §8: a bot
// that echoes the user's last message back over SSE, consumed by BotClient.
func TestEchoOverSSE(t *testing.T) {
	logger := zap.NewNop()

	handler := HandlerFunc(func(ctx context.Context, req QueryRequest) (<-chan BotEvent, error) {
		ch := make(chan BotEvent, 4)
		go func() {
			defer close(ch)
			last, ok := req.LastMessage()
			if !ok {
				return
			}
			ch <- BotEvent{Meta: &MetaResponse{ContentType: ContentTypeMarkdown}}
			ch <- BotEvent{Partial: &PartialResponse{Text: last.Content}}
		}()
		return ch, nil
	})

	host := NewBotHost("echo", handler, "", logger)
	srv := httptest.NewServer(host.Router())
	defer srv.Close()

	client := NewBotClient("echo", srv.URL+"/", "", logger)
	events, err := client.GetBotResponse(context.Background(), QueryRequest{
		ConversationID: "c1",
		Query:          []ProtocolMessage{{Role: RoleUser, Content: "ping"}},
	})
	if err != nil {
		t.Fatalf("GetBotResponse: %v", err)
	}

	var sawMeta bool
	var text string
	var done bool

	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			switch {
			case ev.Meta != nil:
				sawMeta = true
			case ev.Partial != nil:
				text += ev.Partial.Text
			case ev.Done:
				done = true
			case ev.Error != nil:
				t.Fatalf("unexpected error event: %s", ev.Error.Text)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events")
		}
	}

	if !sawMeta {
		t.Fatalf("expected a meta event")
	}
	if text != "ping" {
		t.Fatalf("expected echoed text %q, got %q", "ping", text)
	}
	if !done {
		t.Fatalf("expected a done event")
	}
}

// TestReplaceResponseClearsBuffer exercises spec.md §5.3: a replace_response
// event resets the accumulated text rather than appending to it.
func TestReplaceResponseClearsBuffer(t *testing.T) {
	logger := zap.NewNop()

	handler := HandlerFunc(func(ctx context.Context, req QueryRequest) (<-chan BotEvent, error) {
		ch := make(chan BotEvent, 4)
		go func() {
			defer close(ch)
			ch <- BotEvent{Partial: &PartialResponse{Text: "draft"}}
			ch <- BotEvent{Partial: &PartialResponse{Text: "final answer", IsReplace: true}}
		}()
		return ch, nil
	})

	host := NewBotHost("replacer", handler, "", logger)
	srv := httptest.NewServer(host.Router())
	defer srv.Close()

	client := NewBotClient("replacer", srv.URL+"/", "", logger)
	text, err := RunSync(context.Background(), client, QueryRequest{
		ConversationID: "c2",
		Query:          []ProtocolMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if text != "final answer" {
		t.Fatalf("expected buffer reset by replace_response, got %q", text)
	}
}

// TestAccessKeyRejectedWithoutAuth exercises the bearer-token auth
// middleware on BotHost.
func TestAccessKeyRejectedWithoutAuth(t *testing.T) {
	logger := zap.NewNop()
	handler := HandlerFunc(func(ctx context.Context, req QueryRequest) (<-chan BotEvent, error) {
		ch := make(chan BotEvent)
		close(ch)
		return ch, nil
	})

	host := NewBotHost("secured", handler, "s3cret", logger)
	srv := httptest.NewServer(host.Router())
	defer srv.Close()

	client := NewBotClient("secured", srv.URL+"/", "wrong-key", logger)
	events, err := client.GetBotResponse(context.Background(), QueryRequest{
		ConversationID: "c3",
		Query:          []ProtocolMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("GetBotResponse: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Error == nil {
			t.Fatalf("expected an error event for rejected access key")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for error event")
	}
}

// TestInlineFileEventPrecedesSubsequentPartial exercises spec.md §8
// invariant 4: a file event announcing an inline attachment is flushed
// before any response element the handler yields after it, even though
// BotEvent.File only enqueues rather than writing directly.
func TestInlineFileEventPrecedesSubsequentPartial(t *testing.T) {
	logger := zap.NewNop()

	handler := HandlerFunc(func(ctx context.Context, req QueryRequest) (<-chan BotEvent, error) {
		ch := make(chan BotEvent, 4)
		go func() {
			defer close(ch)
			ch <- BotEvent{File: &FileEvent{InlineRef: "ref1", URL: "https://cdn/ref1", Name: "a.png", ContentType: "image/png"}}
			ch <- BotEvent{Partial: &PartialResponse{Text: "see attached"}}
		}()
		return ch, nil
	})

	host := NewBotHost("filebot", handler, "", logger)
	srv := httptest.NewServer(host.Router())
	defer srv.Close()

	client := NewBotClient("filebot", srv.URL+"/", "", logger)
	events, err := client.GetBotResponse(context.Background(), QueryRequest{
		ConversationID: "c4",
		Query:          []ProtocolMessage{{Role: RoleUser, Content: "show me"}},
	})
	if err != nil {
		t.Fatalf("GetBotResponse: %v", err)
	}

	var order []string
	timeout := time.After(5 * time.Second)
loop2:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop2
			}
			switch {
			case ev.Partial != nil && ev.Partial.Attachment != nil:
				order = append(order, "attachment:"+ev.Partial.Attachment.InlineRef)
			case ev.Partial != nil:
				order = append(order, "text:"+ev.Partial.Text)
			case ev.Done:
				break loop2
			case ev.Error != nil:
				t.Fatalf("unexpected error event: %s", ev.Error.Text)
			}
		case <-timeout:
			t.Fatalf("timed out")
		}
	}

	if len(order) != 2 || order[0] != "attachment:ref1" || order[1] != "text:see attached" {
		t.Fatalf("expected attachment event before text, got %v", order)
	}
}
