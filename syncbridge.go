package poe

import (
	"context"
	"strings"

	"github.com/poe-platform/fastapi-poe/pkg/safego"
	"go.uber.org/zap"
)

// RunSync drains a BotClient's streamed response to completion and returns
// the final assembled text, for callers that have no use for incremental
// output and just want one blocking call (C10, spec.md §4.10). It is the Go
// analog of "running an async stream synchronously from foreign code":
// rather than blocking an event loop, it runs the consumption in its own
// goroutine (wrapped in safego.Go so a panic there can't take down the
// caller) and blocks only the calling goroutine on a channel receive.
//
// Replace events reset the accumulated buffer, mirroring
// spec.md §5.3's replace_response semantics; the final text reflects
// whatever buffer state was in effect when the stream reported done.
func RunSync(ctx context.Context, client *BotClient, req QueryRequest) (string, error) {
	events, err := client.GetBotResponse(ctx, req)
	if err != nil {
		return "", err
	}

	type result struct {
		text string
		err  error
	}
	resultCh := make(chan result, 1)

	safego.Go(client.Logger, "sync-bridge:"+client.BotName, func() {
		var buf strings.Builder
		for ev := range events {
			switch {
			case ev.Error != nil:
				resultCh <- result{err: errFromResponse(*ev.Error)}
				return
			case ev.Partial != nil:
				if ev.Partial.IsSuggestedReply {
					continue
				}
				if ev.Partial.IsReplace {
					buf.Reset()
				}
				buf.WriteString(ev.Partial.Text)
			case ev.Done:
				resultCh <- result{text: buf.String()}
				return
			}
		}
		resultCh <- result{text: buf.String()}
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-resultCh:
		return r.text, r.err
	}
}

func errFromResponse(e ErrorResponse) error {
	if e.AllowRetry {
		return NewBotError(e.Text)
	}
	return NewBotErrorNoRetry(e.Text)
}
