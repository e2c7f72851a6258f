// Package pubsub streams credit charges to a Google Cloud Pub/Sub topic for downstream billing.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/bizq-orchestrator/internal/ledger"
)

// Config names the topic.
type Config struct {
	ProjectID string
	Topic     string
}

// event is the wire shape of one charge.
type event struct {
	ClientID  string    `json:"client_id"`
	Operation string    `json:"operation"`
	Source    string    `json:"source,omitempty"`
	Credits   int       `json:"credits"`
	CacheKey  string    `json:"cache_key,omitempty"`
	ChargedAt time.Time `json:"charged_at"`
}

type sendFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher publishes one message per charge and waits for the server ack.
type Publisher struct {
	send  sendFunc
	close func() error
}

// New dials Pub/Sub and binds a publisher to cfg.Topic.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, errors.New("ledger.project_id and ledger.topic are required for pubsub")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := client.Publisher(cfg.Topic)
	return &Publisher{
		send: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return pub.Publish(ctx, msg).Get(ctx)
		},
		close: func() error {
			pub.Stop()
			return client.Close()
		},
	}, nil
}

// Record publishes charge with client and operation as attributes so subscribers can filter.
// The caller's trace context travels in the attributes too.
func (p *Publisher) Record(ctx context.Context, charge ledger.Charge) error {
	if err := charge.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(event{
		ClientID:  charge.ClientID,
		Operation: string(charge.Operation),
		Source:    charge.Source,
		Credits:   charge.Credits,
		CacheKey:  charge.CacheKey,
		ChargedAt: charge.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal charge: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"client_id": charge.ClientID,
			"operation": string(charge.Operation),
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, attributeCarrier(msg.Attributes))

	if _, err := p.send(ctx, msg); err != nil {
		return fmt.Errorf("publish charge: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// attributeCarrier adapts message attributes to propagation.TextMapCarrier.
type attributeCarrier map[string]string

func (c attributeCarrier) Get(key string) string { return c[key] }

func (c attributeCarrier) Set(key, value string) { c[key] = value }

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
