package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cutout/backend/internal/application/bot"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventDispatcher maps one inbound event to its terminal reply
type EventDispatcher interface {
	Handle(ctx context.Context, ev bot.InboundEvent) bot.Reply
}

// ReplySender delivers the terminal reply back to the sender
type ReplySender interface {
	SendText(ctx context.Context, to, body string) error
	SendDocument(ctx context.Context, to, body, mediaURL string) error
}

// WebhookHandler receives messaging platform callbacks. The platform
// retries non-2xx acknowledgements, so the handler always answers 200 once
// the form parses; delivery failures are logged, not surfaced.
type WebhookHandler struct {
	dispatcher EventDispatcher
	sender     ReplySender
	logger     *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(dispatcher EventDispatcher, sender ReplySender, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		dispatcher: dispatcher,
		sender:     sender,
		logger:     logger,
	}
}

// RegisterRoutes registers webhook routes. The webhook sits outside the
// versioned API group; the platform's callback URL is configured once.
func (h *WebhookHandler) RegisterRoutes(engine *gin.Engine) {
	engine.POST("/webhook", h.Receive)
}

// Receive handles one inbound webhook delivery
func (h *WebhookHandler) Receive(c *gin.Context) {
	from := c.PostForm("From")
	if from == "" {
		respondError(c, http.StatusBadRequest, "INVALID_EVENT", "From field is required")
		return
	}

	numMedia, _ := strconv.Atoi(c.PostForm("NumMedia"))

	ev := bot.InboundEvent{
		From:     from,
		To:       c.PostForm("To"),
		Body:     c.PostForm("Body"),
		NumMedia: numMedia,
		MediaURL: c.PostForm("MediaUrl0"),
	}

	reply := h.dispatcher.Handle(c.Request.Context(), ev)

	var err error
	switch reply.Kind {
	case bot.ReplyDocument:
		err = h.sender.SendDocument(c.Request.Context(), ev.From, reply.Body, reply.MediaURL)
	default:
		err = h.sender.SendText(c.Request.Context(), ev.From, reply.Body)
	}
	if err != nil {
		h.logger.Error("Failed to deliver reply",
			zap.String("from", ev.From),
			zap.String("kind", string(reply.Kind)),
			zap.Error(err))
	}

	c.String(http.StatusOK, "ok")
}
