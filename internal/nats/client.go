package nats

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/saviobatista/vessel-tracker/internal/logging"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

const (
	SubjectTelemetry = "vessel.telemetry"
	StreamTelemetry  = "VESSEL_TELEMETRY"
	// DurableServer is the consumer name used by the server so that a
	// restart resumes where it stopped.
	DurableServer = "vessel-server"
	maxDeliver    = 5
	nakDelay      = 2 * time.Second
)

// ErrNilMessage is returned when publishing a nil message
var ErrNilMessage = errors.New("nil telemetry message")

// TelemetryHandler processes one decoded message. A returned error causes
// redelivery until the delivery limit is reached.
type TelemetryHandler func(*types.TelemetryMessage) error

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// New creates a new NATS client and makes sure the telemetry stream exists
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("vessel-tracker"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamTelemetry,
		Subjects: []string{SubjectTelemetry},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// PublishTelemetry publishes a raw telemetry payload to the stream
func (c *Client) PublishTelemetry(msg *types.TelemetryMessage) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	if _, err := c.js.Publish(SubjectTelemetry, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// SubscribeTelemetry attaches a durable, manually acknowledged consumer to
// the telemetry stream. Undecodable messages are terminated so they are
// never redelivered.
func (c *Client) SubscribeTelemetry(handler TelemetryHandler) error {
	sub, err := c.js.Subscribe(SubjectTelemetry, func(msg *nats.Msg) {
		telemetry, err := decodeMessage(msg.Data)
		if err != nil {
			logging.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping undecodable telemetry message")
			if termErr := msg.Term(); termErr != nil {
				logging.Warn().Err(termErr).Msg("Failed to terminate message")
			}
			return
		}

		if err := handler(telemetry); err != nil {
			logging.Warn().Err(err).Str("source", telemetry.Source).Msg("Telemetry handler failed, requesting redelivery")
			if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
				logging.Warn().Err(nakErr).Msg("Failed to nak message")
			}
			return
		}

		if ackErr := msg.Ack(); ackErr != nil {
			logging.Warn().Err(ackErr).Msg("Failed to ack message")
		}
	},
		nats.Durable(DurableServer),
		nats.ManualAck(),
		nats.DeliverAll(),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.subs = append(c.subs, sub)
	return nil
}

// Close drains subscriptions and closes the NATS connection
func (c *Client) Close() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			logging.Debug().Err(err).Msg("Failed to unsubscribe")
		}
	}
	c.subs = nil
	if c.conn != nil {
		c.conn.Close()
	}
}

func encodeMessage(msg *types.TelemetryMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*types.TelemetryMessage, error) {
	var msg types.TelemetryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if len(msg.Payload) == 0 {
		return nil, errors.New("telemetry message has no payload")
	}
	return &msg, nil
}
