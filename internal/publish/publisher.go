package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"TradeGate/internal/event"
	"TradeGate/internal/observability"
)

// Publisher republishes the application event stream to NATS for
// downstream consumers (recorders, strategy processes, dashboards).
// Subjects follow the pattern: {prefix}.{event_type}
type Publisher struct {
	js      jetstream.JetStream
	prefix  string
	events  <-chan event.Event
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Envelope is the wire form of one republished event.
type Envelope struct {
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func New(js jetstream.JetStream, prefix string, events <-chan event.Event, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:      js,
		prefix:  prefix,
		events:  events,
		logger:  observability.NewLogger("publisher"),
		metrics: metrics,
	}
}

// Run publishes until the context ends or the event stream closes.
// Publish failures are logged and skipped: the session does not stall
// because a downstream broker is unavailable.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.events:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, ev); err != nil {
				p.logger.Warn().
					Err(err).
					Str("event_type", ev.EventType().String()).
					Msg("outbound publish failed")
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev event.Event) error {
	env := Envelope{
		EventType: ev.EventType().String(),
		Payload:   ev,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.prefix, ev.EventType().String())
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// ConnectNATS dials the broker and opens a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream, prefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "TRADEGATE_EVENTS",
		Subjects:  []string{prefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
