// Package bot contains the top-level state machine that maps one inbound
// webhook event to exactly one reply, enforcing the usage quota on the way.
package bot

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cutout/backend/internal/application/pipeline"
	"github.com/cutout/backend/internal/application/quota"
	"github.com/cutout/backend/internal/domain/subscriber"
	"go.uber.org/zap"
)

// InboundEvent is one webhook delivery from the messaging platform
type InboundEvent struct {
	From     string // sender identity, canonical phone form
	To       string // recipient identity (the bot's number)
	Body     string // text content, may be empty for media events
	NumMedia int
	MediaURL string // first attachment's locator, when NumMedia > 0
}

// ReplyKind distinguishes plain text replies from document replies that
// carry a media locator.
type ReplyKind string

const (
	ReplyText     ReplyKind = "text"
	ReplyDocument ReplyKind = "document"
)

// Reply is the terminal descriptor handed to the send capability
type Reply struct {
	Kind     ReplyKind
	Body     string
	MediaURL string
}

// QuotaManager is the slice of the quota service the dispatcher needs
type QuotaManager interface {
	GetOrCreate(ctx context.Context, phone string) (*subscriber.Subscriber, error)
	TryConsume(ctx context.Context, sub *subscriber.Subscriber) (quota.ConsumeResult, error)
}

// PipelineRunner executes one fetch-transform-persist run
type PipelineRunner interface {
	Run(ctx context.Context, mediaURL, phone string) (*pipeline.Artifact, error)
}

// Messenger sends the best-effort interim acknowledgement while a pipeline
// run is in flight. Failure to send it is non-fatal.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

// Config carries the capability switches and checkout parameters the
// dispatcher consults. Missing capabilities become user-visible replies,
// never panics deeper in the flow.
type Config struct {
	RemovalConfigured bool   // background-removal service credentials present
	PaymentConfigured bool   // checkout capability credentials present
	CheckoutURL       string // base URL of the hosted checkout page
	PremiumPrice      string // display price for the upgrade message
}

// Dispatcher classifies an inbound event, consults the quota manager, and
// drives either a command handler or the pipeline. It holds no persisted
// state of its own; every path ends by emitting exactly one reply.
type Dispatcher struct {
	quota     QuotaManager
	pipeline  PipelineRunner
	messenger Messenger
	cfg       Config
	logger    *zap.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	quotaMgr QuotaManager,
	runner PipelineRunner,
	messenger Messenger,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		quota:     quotaMgr,
		pipeline:  runner,
		messenger: messenger,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handle processes one inbound event and returns the terminal reply.
// It never returns an error: internal failures are converted into
// user-visible replies here, because the webhook contract requires an
// acknowledgement regardless of outcome.
func (d *Dispatcher) Handle(ctx context.Context, ev InboundEvent) Reply {
	phone, err := subscriber.NormalizePhone(ev.From)
	if err != nil {
		d.logger.Warn("Event from unnormalizable identity", zap.String("from", ev.From))
		return textReply(msgGenericError)
	}

	if ev.NumMedia > 0 && ev.MediaURL != "" {
		return d.handleMedia(ctx, phone, ev.MediaURL)
	}
	return d.handleCommand(ctx, phone, ev.Body)
}

// handleCommand implements the text-command transition table
func (d *Dispatcher) handleCommand(ctx context.Context, phone, body string) Reply {
	command := strings.ToLower(strings.TrimSpace(body))

	switch command {
	case "start", "hello":
		sub, err := d.quota.GetOrCreate(ctx, phone)
		if err != nil {
			return d.storeFailure(err)
		}
		return textReply(fmt.Sprintf(msgWelcome, string(sub.Tier), sub.ImagesProcessed, sub.Limit()))

	case "status":
		sub, err := d.quota.GetOrCreate(ctx, phone)
		if err != nil {
			return d.storeFailure(err)
		}
		return textReply(fmt.Sprintf(msgStatus, string(sub.Tier), sub.ImagesProcessed, sub.Limit(), sub.Remaining()))

	case "help":
		return textReply(msgHelp)

	case "upgrade":
		return textReply(fmt.Sprintf(msgUpgrade, d.cfg.PremiumPrice, subscriber.PremiumMonthlyLimit))

	case "confirm":
		if !d.cfg.PaymentConfigured {
			return textReply(msgPaymentNotConfigured)
		}
		link := d.checkoutLink(phone)
		return textReply(fmt.Sprintf(msgCheckout, link))

	case "verify":
		sub, err := d.quota.GetOrCreate(ctx, phone)
		if err != nil {
			return d.storeFailure(err)
		}
		if sub.IsPremium() {
			return textReply(fmt.Sprintf(msgVerifyPremium, subscriber.PremiumMonthlyLimit))
		}
		return textReply(msgVerifyPending)

	default:
		return textReply(msgUnrecognized)
	}
}

// handleMedia implements the media-event transition: capability check,
// quota pre-check, interim ack, atomic consume, pipeline run. The consumed
// unit is not refunded when a run fails; a failed run still counts against
// the monthly allowance. That is deliberate policy, not an oversight.
func (d *Dispatcher) handleMedia(ctx context.Context, phone, mediaURL string) Reply {
	if !d.cfg.RemovalConfigured {
		return textReply(msgRemovalNotConfigured)
	}

	sub, err := d.quota.GetOrCreate(ctx, phone)
	if err != nil {
		return d.storeFailure(err)
	}

	// Cheap pre-check on the read value; the authoritative decision is the
	// atomic consume below.
	if sub.LimitReached() {
		return textReply(fmt.Sprintf(msgLimitReached, sub.Limit()))
	}

	// Interim acknowledgement is best-effort; a send failure must not abort
	// the run.
	if err := d.messenger.SendText(ctx, phone, msgProcessing); err != nil {
		d.logger.Warn("Failed to send interim acknowledgement",
			zap.String("phone", phone), zap.Error(err))
	}

	result, err := d.quota.TryConsume(ctx, sub)
	if err != nil {
		return d.storeFailure(err)
	}
	if !result.Allowed {
		// Lost a race since the read above
		return textReply(fmt.Sprintf(msgLimitReached, result.Limit))
	}

	artifact, err := d.pipeline.Run(ctx, mediaURL, phone)
	if err != nil {
		d.logger.Warn("Pipeline run failed",
			zap.String("phone", phone), zap.Error(err))
		return textReply(failureMessage(err))
	}

	return Reply{
		Kind:     ReplyDocument,
		Body:     fmt.Sprintf(msgSuccess, result.Remaining()),
		MediaURL: artifact.URL,
	}
}

// storeFailure converts a record-store failure into the generic error reply
func (d *Dispatcher) storeFailure(err error) Reply {
	d.logger.Error("Record store operation failed", zap.Error(err))
	return textReply(msgGenericError)
}

func (d *Dispatcher) checkoutLink(phone string) string {
	return d.cfg.CheckoutURL + "?phone=" + url.QueryEscape(phone)
}

func textReply(body string) Reply {
	return Reply{Kind: ReplyText, Body: body}
}
