package poe

import "sync"

// PendingFileQueue buffers inline file events per message_id in FIFO order
// so a BotHost can drain them before yielding the handler's next
// PartialResponse, correlating a later Attachment.InlineRef to the URL
// announced by an earlier "file" event in the same turn (spec.md §4.5).
type PendingFileQueue struct {
	mu     sync.Mutex
	byMsg  map[string][]pendingFile
	byRef  map[string]string
}

type pendingFile struct {
	inlineRef   string
	url         string
	name        string
	contentType string
}

// NewPendingFileQueue returns an empty queue.
func NewPendingFileQueue() *PendingFileQueue {
	return &PendingFileQueue{
		byMsg: make(map[string][]pendingFile),
		byRef: make(map[string]string),
	}
}

// Push enqueues a file event for messageID, making url resolvable by
// inlineRef immediately and available for FIFO draining via Drain.
func (q *PendingFileQueue) Push(messageID, inlineRef, url, name, contentType string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byMsg[messageID] = append(q.byMsg[messageID], pendingFile{
		inlineRef: inlineRef, url: url, name: name, contentType: contentType,
	})
	q.byRef[inlineRef] = url
}

// Drain removes and returns all file events queued for messageID, in the
// order they were pushed. Call this before yielding a PartialResponse whose
// attachments reference files announced earlier in the same turn.
func (q *PendingFileQueue) Drain(messageID string) []ServerSentEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.byMsg[messageID]
	delete(q.byMsg, messageID)
	events := make([]ServerSentEvent, 0, len(pending))
	for _, p := range pending {
		ev, err := EncodeFile(messageID, p.inlineRef, p.url, p.name, p.contentType)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// Lookup resolves an inline_ref to its announced URL, for use as the lookup
// function passed to ResolveInlineAttachments/Preprocess.
func (q *PendingFileQueue) Lookup(inlineRef string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	url, ok := q.byRef[inlineRef]
	return url, ok
}
