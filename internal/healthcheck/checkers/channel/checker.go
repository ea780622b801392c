package channelchecker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/healthcheck"
)

const (
	checkTypeChannelAdapter = "channel.adapter"
	checkTypeInboundQueue   = "channel.queue"
	queueWarnRatio          = 0.8
)

// QueueObserver reads the inbound worker queue depth.
type QueueObserver interface {
	QueueDepth() (length, capacity int)
}

// AdapterLister reports registered channel adapters.
type AdapterLister interface {
	ListDescriptors() []channel.Descriptor
}

// Checker reports registered adapters and inbound queue pressure.
type Checker struct {
	logger   *slog.Logger
	adapters AdapterLister
	queue    QueueObserver
}

// NewChecker creates a channel health checker.
func NewChecker(log *slog.Logger, adapters AdapterLister, queue QueueObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		adapters: adapters,
		queue:    queue,
	}
}

// ListChecks evaluates adapter registration and queue depth.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	checks := []healthcheck.CheckResult{}
	if c.adapters != nil {
		for _, d := range c.adapters.ListDescriptors() {
			checks = append(checks, healthcheck.CheckResult{
				ID:      checkTypeChannelAdapter + "." + d.Type.String(),
				Type:    checkTypeChannelAdapter,
				Status:  healthcheck.StatusOK,
				Summary: fmt.Sprintf("Channel %s is registered.", d.DisplayName),
				Metadata: map[string]any{
					"channel": d.Type.String(),
					"webhook": d.Webhook,
				},
			})
		}
	}
	if c.queue == nil {
		return checks
	}

	length, capacity := c.queue.QueueDepth()
	item := healthcheck.CheckResult{
		ID:      checkTypeInboundQueue,
		Type:    checkTypeInboundQueue,
		Status:  healthcheck.StatusOK,
		Summary: fmt.Sprintf("Inbound queue holds %d of %d.", length, capacity),
		Metadata: map[string]any{
			"length":   length,
			"capacity": capacity,
		},
	}
	switch {
	case capacity > 0 && length >= capacity:
		item.Status = healthcheck.StatusError
		item.Detail = "queue is full, webhooks are being rejected"
	case capacity > 0 && float64(length) >= queueWarnRatio*float64(capacity):
		item.Status = healthcheck.StatusWarn
		item.Detail = "queue is close to capacity"
	}
	if item.Status != healthcheck.StatusOK {
		c.logger.Warn("inbound queue pressure", slog.Int("length", length), slog.Int("capacity", capacity))
	}
	return append(checks, item)
}
