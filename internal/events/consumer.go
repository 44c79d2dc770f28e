package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/campaignly/learning-engine/internal/config"
	"github.com/campaignly/learning-engine/internal/metrics"
)

const handleTimeout = 30 * time.Second

// Consumer subscribes to the learning stream and dispatches to a Handler.
type Consumer struct {
	conn           *nats.Conn
	js             nats.JetStreamContext
	subs           []*nats.Subscription
	handler        *Handler
	metrics        *metrics.Metrics
	streamName     string
	consumerPrefix string
}

// NewConsumer connects to NATS, ensures the stream exists and subscribes
// to every learning subject with durable, manually acked consumers.
func NewConsumer(cfg config.EventsConfig, h *Handler, m *metrics.Metrics) (*Consumer, error) {
	if cfg.NATSURL == "" {
		cfg.NATSURL = nats.DefaultURL
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "LEARNING"
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("learning-engine"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c := &Consumer{
		conn:           nc,
		js:             js,
		handler:        h,
		metrics:        m,
		streamName:     cfg.StreamName,
		consumerPrefix: cfg.ConsumerPrefix,
	}

	if err := c.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	for subject, durable := range map[string]string{
		SubjectTaskCompleted: "tasks-completed",
		SubjectFeedback:      "feedback",
	} {
		if err := c.subscribe(subject, durable); err != nil {
			c.Close()
			return nil, err
		}
	}

	log.Info().
		Str("url", cfg.NATSURL).
		Str("stream", cfg.StreamName).
		Msg("📨 Learning event consumer started")
	return c, nil
}

func (c *Consumer) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  []string{"learning.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}

	if _, err := c.js.StreamInfo(c.streamName); err != nil {
		if _, err := c.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Info().Str("stream", c.streamName).Msg("Created JetStream stream")
		return nil
	}
	if _, err := c.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

func (c *Consumer) subscribe(subject, durable string) error {
	if c.consumerPrefix != "" {
		durable = c.consumerPrefix + "-" + durable
	}
	sub, err := c.js.Subscribe(subject, c.dispatch,
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(5),
		nats.AckWait(handleTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	log.Debug().Str("subject", subject).Str("durable", durable).Msg("Subscribed")
	return nil
}

// dispatch handles one delivery and acknowledges it according to the result.
func (c *Consumer) dispatch(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err := c.handler.Handle(ctx, msg.Subject, msg.Data)
	d := DispositionFor(err)

	var ackErr error
	switch d {
	case Ack:
		ackErr = msg.Ack()
	case Term:
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping unprocessable learning event")
		ackErr = msg.Term()
	case Nak:
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Learning event failed, requesting redelivery")
		ackErr = msg.Nak()
	}
	if ackErr != nil {
		log.Warn().Err(ackErr).Str("subject", msg.Subject).Str("disposition", string(d)).Msg("Failed to acknowledge event")
	}
	c.metrics.RecordEvent(msg.Subject, string(d))
}

// Close stops delivery and drains the connection. Durable consumers keep
// their position on the server.
func (c *Consumer) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Drain()
	c.conn = nil
	log.Info().Msg("Learning event consumer stopped")
	return err
}
