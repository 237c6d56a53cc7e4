package natsbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/nkiryanov/rewardledger/internal/models"
)

type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher forwards committed events to JetStream
// The event id is the message id so redelivered events are deduplicated by the stream
type Publisher struct {
	js     publisher
	prefix string
}

func NewPublisher(js publisher, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{js: js, prefix: prefix}
}

func (p *Publisher) Write(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, EventSubject(p.prefix, ev.Type), data, jetstream.WithMsgID(ev.ID.String()))
	if err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}
