package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ResolveCommand asks to fulfil or reject a pending withdrawal
type ResolveCommand struct {
	ID      string `json:"id" validate:"required"`
	Status  string `json:"status" validate:"oneof=fulfilled rejected"`
	Note    string `json:"note"`
	AdminID string `json:"admin_id" validate:"required"`
}

type resolver interface {
	ResolveWithdrawal(adminID string, requestID string, status string, note string) (models.WithdrawalRequest, error)
}

type verdict int

const (
	verdictAck verdict = iota
	verdictTerm
	verdictNak
)

// Subscriber applies withdrawal resolution commands
type Subscriber struct {
	js       jetstream.JetStream
	prefix   string
	resolver resolver
	logger   logger.Logger

	consumer jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, prefix string, r resolver, l logger.Logger) *Subscriber {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Subscriber{
		js:       js,
		prefix:   prefix,
		resolver: r,
		logger:   l.With("component", "natsbus"),
	}
}

// Start consumes commands with explicit ACK until Stop
func (s *Subscriber) Start(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, commandsStream(s.prefix), jetstream.ConsumerConfig{
		Durable:       "rewardledger-resolve",
		FilterSubject: ResolveSubject(s.prefix),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		switch s.handle(msg.Data()) {
		case verdictAck:
			_ = msg.Ack()
		case verdictTerm:
			_ = msg.Term()
		case verdictNak:
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ResolveSubject(s.prefix), err)
	}

	s.consumer = cc
	s.logger.Info("Subscribed to withdrawal commands", "subject", ResolveSubject(s.prefix))
	return nil
}

func (s *Subscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
}

func (s *Subscriber) handle(data []byte) verdict {
	cmd, err := DecodeResolveCommand(data)
	if err != nil {
		s.logger.Warn("Malformed resolve command dropped", "error", err)
		return verdictTerm
	}

	req, err := s.resolver.ResolveWithdrawal(cmd.AdminID, cmd.ID, cmd.Status, cmd.Note)
	v := verdictFor(err)
	switch v {
	case verdictAck:
		s.logger.Info("Withdrawal resolved from bus", "request_id", req.ID, "status", req.Status)
	case verdictTerm:
		s.logger.Warn("Resolve command rejected", "request_id", cmd.ID, "error", err)
	case verdictNak:
		s.logger.Error("Resolve command failed, will be redelivered", "request_id", cmd.ID, "error", err)
	}
	return v
}

func DecodeResolveCommand(data []byte) (ResolveCommand, error) {
	var cmd ResolveCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("decode resolve command: %w", err)
	}
	if err := validate.Struct(cmd); err != nil {
		return cmd, fmt.Errorf("invalid resolve command: %w", err)
	}
	return cmd, nil
}

// Commands that can never succeed are terminated, the rest redelivered
func verdictFor(err error) verdict {
	if err == nil {
		return verdictAck
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindConflict, apperrors.KindResource, apperrors.KindPermission:
		return verdictTerm
	default:
		return verdictNak
	}
}
