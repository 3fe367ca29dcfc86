package poe

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileEvent announces an inline file attachment a handler is including in
// its response, correlated by InlineRef to a later Attachment.
type FileEvent struct {
	InlineRef   string
	URL         string
	Name        string
	ContentType string
}

// BotEvent is the union of everything a Handler may emit while producing a
// turn's response. Exactly one field should be non-nil; BotHost inspects
// them in a fixed priority order.
type BotEvent struct {
	Partial *PartialResponse
	Meta    *MetaResponse
	File    *FileEvent
	Data    *DataResponse
	JSON    *JSONResponse
	Error   *ErrorResponse
}

// Handler implements a Poe bot: it answers settings requests and produces a
// stream of BotEvent values for a query.
type Handler interface {
	GetResponse(ctx context.Context, req QueryRequest) (<-chan BotEvent, error)
	GetSettings(ctx context.Context, req SettingsRequest) (SettingsResponse, error)
}

// HandlerFunc adapts a plain function into a Handler with
// DefaultSettingsResponse as its settings.
type HandlerFunc func(ctx context.Context, req QueryRequest) (<-chan BotEvent, error)

func (f HandlerFunc) GetResponse(ctx context.Context, req QueryRequest) (<-chan BotEvent, error) {
	return f(ctx, req)
}

func (f HandlerFunc) GetSettings(ctx context.Context, req SettingsRequest) (SettingsResponse, error) {
	return DefaultSettingsResponse(), nil
}

// BotHost serves one Handler over gin, implementing the bot-side of the
// protocol: bearer-token auth, query dispatch with SSE streaming, and the
// settings endpoint. Grounded in the teacher's
// internal/interfaces/http/server.go (router setup, graceful shutdown) and
// internal/interfaces/http/handlers/agent_handler.go (SSE writer loop).
type BotHost struct {
	Name      string
	Handler   Handler
	AccessKey string
	Logger    *zap.Logger
	Files     *PendingFileQueue

	router *gin.Engine
}

// NewBotHost builds a BotHost and its gin router.
func NewBotHost(name string, handler Handler, accessKey string, logger *zap.Logger) *BotHost {
	h := &BotHost{
		Name:      name,
		Handler:   handler,
		AccessKey: accessKey,
		Logger:    logger.With(zap.String("bot", name)),
		Files:     NewPendingFileQueue(),
	}
	h.router = gin.New()
	h.router.Use(gin.Recovery())
	h.Mount(&h.router.RouterGroup)
	return h
}

// Router returns the bot's standalone gin engine, for hosts that run one
// bot per process.
func (h *BotHost) Router() *gin.Engine {
	return h.router
}

// Mount attaches this bot's routes onto an existing route group, letting a
// multi-bot poeserver mount several BotHosts under one gin.Engine.
func (h *BotHost) Mount(group *gin.RouterGroup) {
	group.Use(h.authMiddleware())
	group.POST("/", h.handleQuery)
	group.POST("/settings", h.handleSettings)
}

func (h *BotHost) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.AccessKey == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		expected := "Bearer " + h.AccessKey
		if !constantTimeEqual(auth, expected) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access key"})
			return
		}
		c.Next()
	}
}

func (h *BotHost) handleSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings request"})
		return
	}
	resp, err := h.Handler.GetSettings(c.Request.Context(), req)
	if err != nil {
		h.Logger.Error("settings handler failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings handler failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BotHost) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query request"})
		return
	}
	if req.MessageID == "" {
		req.MessageID = string(NewIdentifier())
	}
	if req.BotQueryID == "" {
		req.BotQueryID = string(NewIdentifier())
	}

	logger := h.Logger.With(
		zap.String("conversation_id", req.ConversationID),
		zap.String("message_id", req.MessageID),
	)

	events, err := h.Handler.GetResponse(c.Request.Context(), req)
	if err != nil {
		logger.Error("handler rejected query", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "handler error"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	var metaSent bool
	ctx := c.Request.Context()

	write := func(ev ServerSentEvent) bool {
		if _, err := ev.WriteTo(c.Writer); err != nil {
			logger.Warn("SSE write failed, client likely disconnected", zap.Error(err))
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("client disconnected before done")
			return
		case be, ok := <-events:
			if !ok {
				for _, fev := range h.Files.Drain(req.MessageID) {
					if !write(fev) {
						return
					}
				}
				write(DoneEvent())
				return
			}

			// A file event only enqueues; it is never written directly here,
			// so every other branch below can drain queued files first and
			// guarantee they precede the response element that may reference
			// them (spec.md §4.5 invariant 4).
			if be.File != nil {
				h.Files.Push(req.MessageID, be.File.InlineRef, be.File.URL, be.File.Name, be.File.ContentType)
				continue
			}

			for _, fev := range h.Files.Drain(req.MessageID) {
				if !write(fev) {
					return
				}
			}

			ev, sendable, skip := h.encode(be, &metaSent)
			if skip || !sendable {
				continue
			}
			if !write(ev) {
				return
			}
		}
	}
}

// encode converts a BotEvent to its wire ServerSentEvent. skip is true for
// a meta event arriving after the first one, per the "only the first meta
// event in a stream is honored" rule (spec.md §5.2). File events are handled
// by the caller before encode is reached.
func (h *BotHost) encode(be BotEvent, metaSent *bool) (ev ServerSentEvent, ok bool, skip bool) {
	var err error
	switch {
	case be.Meta != nil:
		if *metaSent {
			return ServerSentEvent{}, false, true
		}
		*metaSent = true
		ev, err = EncodeMeta(*be.Meta)
	case be.Partial != nil:
		ev, err = EncodeText(*be.Partial)
	case be.Data != nil:
		ev, err = EncodeData(*be.Data)
	case be.JSON != nil:
		ev, err = EncodeJSON(*be.JSON)
	case be.Error != nil:
		ev, err = EncodeError(*be.Error)
	default:
		return ServerSentEvent{}, false, true
	}
	if err != nil {
		h.Logger.Error("failed to encode bot event", zap.Error(err))
		return ServerSentEvent{}, false, true
	}
	return ev, true, false
}

// ReportError emits a best-effort error event to a live response writer and
// flushes it. Nothing in this package calls it: BotHost writes handler error
// events through encode, BotClient reports parse violations to its peer with
// its own reportError POST, and ToolCallLoop turns a panicking tool into a
// tool result string.
func ReportError(w http.ResponseWriter, message string, allowRetry bool) {
	ev, err := EncodeError(ErrorResponse{Text: message, AllowRetry: allowRetry})
	if err != nil {
		return
	}
	ev.WriteTo(w)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
