package poe

import (
	"errors"
	"io"
	"time"
)

// ErrIdleTimeout is returned by a TimedReader when no bytes arrive within
// the configured idle window.
var ErrIdleTimeout = errors.New("poe: idle read timeout: no data received within the configured window")

// IsIdleTimeoutErr reports whether err is (or wraps) ErrIdleTimeout.
func IsIdleTimeoutErr(err error) bool {
	return errors.Is(err, ErrIdleTimeout)
}

// TimedReader wraps an io.Reader so that each individual Read call is
// bounded by an idle deadline, distinguishing "the peer stalled" from "the
// scanner hit a real I/O error". Grounded directly in the teacher's
// internal/infrastructure/llm/openai/sse.go timedReader, which exists for
// the same reason: an LLM provider connection can go silent without closing.
type TimedReader struct {
	r       io.Reader
	timeout time.Duration
}

// NewTimedReader returns a TimedReader applying timeout to every Read.
func NewTimedReader(r io.Reader, timeout time.Duration) *TimedReader {
	return &TimedReader{r: r, timeout: timeout}
}

type readResult struct {
	n   int
	err error
}

// Read implements io.Reader. It runs the underlying Read in a goroutine and
// races it against a timer; if the timer fires first, Read returns
// ErrIdleTimeout. The underlying goroutine is allowed to leak until its Read
// returns, matching the teacher's implementation — acceptable here because
// an idle timeout means the peer connection is abandoned immediately after.
func (t *TimedReader) Read(p []byte) (int, error) {
	ch := make(chan readResult, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- readResult{n, err}
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-timer.C:
		return 0, ErrIdleTimeout
	}
}
