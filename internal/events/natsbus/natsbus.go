// Package natsbus carries ledger events and admin commands over NATS JetStream
package natsbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nkiryanov/rewardledger/internal/logger"
)

const (
	DefaultPrefix = "rewardledger"

	streamMaxAge = 72 * time.Hour
)

// EventSubject is where events of the type are published: <prefix>.events.<type>
func EventSubject(prefix string, eventType string) string {
	return prefix + ".events." + eventType
}

// ResolveSubject carries withdrawal resolution commands
func ResolveSubject(prefix string) string {
	return prefix + ".withdrawals.resolve"
}

func eventsStream(prefix string) string {
	return streamName(prefix) + "_EVENTS"
}

func commandsStream(prefix string) string {
	return streamName(prefix) + "_COMMANDS"
}

func streamName(prefix string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(prefix))
}

// Connect establishes a NATS connection that keeps reconnecting and returns its JetStream
func Connect(url string, l logger.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("rewardledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			l.Info("NATS reconnected")
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

// EnsureStreams creates the events and commands streams if they don't exist
func EnsureStreams(ctx context.Context, js jetstream.JetStream, prefix string) error {
	streams := []jetstream.StreamConfig{
		{
			Name:       eventsStream(prefix),
			Subjects:   []string{prefix + ".events.>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     streamMaxAge,
			Duplicates: 10 * time.Minute,
			Replicas:   1,
		},
		{
			Name:      commandsStream(prefix),
			Subjects:  []string{ResolveSubject(prefix)},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.WorkQueuePolicy,
			MaxAge:    streamMaxAge,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}

	return nil
}
