package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/observability"
	"OutcomeLedger/internal/warehouse"
)

// Appender is the write boundary to the warehouse. Implementations must be
// idempotent per event id; redeliveries that slip past local dedup must not
// create duplicate rows.
type Appender interface {
	AppendEvents(ctx context.Context, rows []event.Raw) error
	AppendResolutions(ctx context.Context, rows []warehouse.ResolutionRow) error
	AppendMarks(ctx context.Context, rows []warehouse.MarkRow) error
}

// Consumer drains the feed channel: parse, dedup, append, ack. A message is
// acked only when its rows are durably stored; append failures nak so the
// stream redelivers.
type Consumer struct {
	msgChan  <-chan RawMessage
	appender Appender
	dedup    *Dedup
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewConsumer(
	msgChan <-chan RawMessage,
	appender Appender,
	dedup *Dedup,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Consumer {
	return &Consumer{
		msgChan:  msgChan,
		appender: appender,
		dedup:    dedup,
		metrics:  metrics,
		log:      log,
	}
}

// Run processes messages until the context is cancelled or the channel
// closes.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.msgChan:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg RawMessage) {
	category, err := CategoryFromSubject(msg.Subject)
	if err != nil {
		// Not parseable and not redeliverable to any effect.
		c.reject("unknown_subject", msg.Subject, err)
		msg.AckFunc()
		return
	}
	if c.metrics != nil {
		c.metrics.FeedEventsReceived.WithLabelValues(category).Inc()
	}

	switch category {
	case CategoryFill, CategoryLifecycle:
		c.handleEvent(ctx, category, msg)
	case CategoryResolution:
		c.handleResolution(ctx, msg)
	case CategoryMark:
		c.handleMark(ctx, msg)
	}
}

func (c *Consumer) handleEvent(ctx context.Context, category string, msg RawMessage) {
	var (
		row event.Raw
		err error
	)
	if category == CategoryFill {
		row, err = ParseFill(msg.Data)
	} else {
		row, err = ParseLifecycle(msg.Data)
	}
	if err != nil {
		// Malformed payloads never become valid on redelivery.
		c.reject("malformed", msg.Subject, err)
		msg.AckFunc()
		return
	}

	if c.dedup.Seen(category, row.EventID+":"+row.Role) {
		if c.metrics != nil {
			c.metrics.FeedDedupHits.Inc()
		}
		msg.AckFunc()
		return
	}

	row.IngestedAt = time.Now().UTC()
	if err := c.append(func() error {
		return c.appender.AppendEvents(ctx, []event.Raw{row})
	}); err != nil {
		c.log.Warn().Err(err).Str("event_id", row.EventID).Msg("event append failed, nak for redelivery")
		msg.NakFunc()
		return
	}

	c.dedup.Mark(category, row.EventID+":"+row.Role)
	msg.AckFunc()
}

func (c *Consumer) handleResolution(ctx context.Context, msg RawMessage) {
	rows, err := ParseResolution(msg.Data)
	if err != nil {
		c.reject("malformed", msg.Subject, err)
		msg.AckFunc()
		return
	}

	if err := c.append(func() error {
		return c.appender.AppendResolutions(ctx, rows)
	}); err != nil {
		c.log.Warn().Err(err).Str("market", rows[0].Market).Msg("resolution append failed, nak for redelivery")
		msg.NakFunc()
		return
	}
	msg.AckFunc()
}

func (c *Consumer) handleMark(ctx context.Context, msg RawMessage) {
	row, err := ParseMark(msg.Data)
	if err != nil {
		c.reject("malformed", msg.Subject, err)
		msg.AckFunc()
		return
	}

	if err := c.append(func() error {
		return c.appender.AppendMarks(ctx, []warehouse.MarkRow{row})
	}); err != nil {
		c.log.Warn().Err(err).Str("market", row.Market).Msg("mark append failed, nak for redelivery")
		msg.NakFunc()
		return
	}
	msg.AckFunc()
}

func (c *Consumer) append(fn func() error) error {
	start := time.Now()
	err := fn()
	if c.metrics != nil && err == nil {
		c.metrics.FeedAppendDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (c *Consumer) reject(reason string, subject string, err error) {
	if c.metrics != nil {
		c.metrics.FeedEventsRejected.WithLabelValues(reason).Inc()
	}
	c.log.Warn().Str("subject", subject).Err(err).Msg("feed message rejected")
}
