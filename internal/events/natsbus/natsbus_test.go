package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

func TestSubjects(t *testing.T) {
	require.Equal(t, "rewardledger.events.transaction", EventSubject(DefaultPrefix, models.EventTransaction))
	require.Equal(t, "prod.withdrawals.resolve", ResolveSubject("prod"))
	require.Equal(t, "REWARD_LEDGER_EVENTS", eventsStream("reward-ledger"))
	require.Equal(t, "A_B_COMMANDS", commandsStream("a.b"))
}

type publishCall struct {
	subject string
	data    []byte
}

type publisherMock struct {
	calls []publishCall
	err   error
}

func (p *publisherMock) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	p.calls = append(p.calls, publishCall{subject: subject, data: data})
	return &jetstream.PubAck{}, p.err
}

func TestPublisher_Write(t *testing.T) {
	t.Run("publish to event subject", func(t *testing.T) {
		js := &publisherMock{}
		p := NewPublisher(js, "")

		tx := models.Transaction{AccountID: "A", Amount: models.Units(10), Reason: models.ReasonReferral}
		ev := models.NewEvent(models.EventTransaction, "A", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
		ev.Tx = &tx

		require.NoError(t, p.Write(t.Context(), ev))

		require.Len(t, js.calls, 1)
		require.Equal(t, "rewardledger.events.transaction", js.calls[0].subject)

		var got models.Event
		require.NoError(t, json.Unmarshal(js.calls[0].data, &got))
		require.Equal(t, ev.ID, got.ID)
		require.Equal(t, models.Units(10), got.Tx.Amount)
	})

	t.Run("publish error", func(t *testing.T) {
		js := &publisherMock{err: errors.New("no responders")}
		p := NewPublisher(js, "x")

		err := p.Write(t.Context(), models.NewEvent(models.EventAccountCreated, "A", time.Now()))
		require.Error(t, err)
	})
}

func TestDecodeResolveCommand(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "fulfil", data: `{"id":"A_20250301100000","status":"fulfilled","admin_id":"1"}`},
		{name: "reject with note", data: `{"id":"A_20250301100000","status":"rejected","note":"bad upi","admin_id":"1"}`},
		{name: "unknown status", data: `{"id":"A_1","status":"paid","admin_id":"1"}`, wantErr: true},
		{name: "no admin", data: `{"id":"A_1","status":"fulfilled"}`, wantErr: true},
		{name: "no id", data: `{"status":"fulfilled","admin_id":"1"}`, wantErr: true},
		{name: "not json", data: `resolve please`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResolveCommand([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

type resolverFunc func(adminID, requestID, status, note string) (models.WithdrawalRequest, error)

func (f resolverFunc) ResolveWithdrawal(adminID, requestID, status, note string) (models.WithdrawalRequest, error) {
	return f(adminID, requestID, status, note)
}

func TestSubscriber_handle(t *testing.T) {
	command := []byte(`{"id":"A_1","status":"rejected","note":"n","admin_id":"9"}`)

	newSubscriber := func(err error) (*Subscriber, *[]string) {
		var got []string
		r := resolverFunc(func(adminID, requestID, status, note string) (models.WithdrawalRequest, error) {
			got = append(got, adminID, requestID, status, note)
			return models.WithdrawalRequest{ID: requestID, Status: status}, err
		})
		return NewSubscriber(nil, "", r, logger.NewNoOpLogger()), &got
	}

	t.Run("ack on success", func(t *testing.T) {
		s, got := newSubscriber(nil)

		require.Equal(t, verdictAck, s.handle(command))
		require.Equal(t, []string{"9", "A_1", "rejected", "n"}, *got)
	})

	t.Run("term on domain error", func(t *testing.T) {
		for _, err := range []error{apperrors.ErrWithdrawalResolved, apperrors.ErrUnknownWithdrawal, apperrors.ErrNotAdmin} {
			s, _ := newSubscriber(err)
			require.Equal(t, verdictTerm, s.handle(command), err.Error())
		}
	})

	t.Run("nak on internal error", func(t *testing.T) {
		s, _ := newSubscriber(apperrors.ErrInvariantViolation)
		require.Equal(t, verdictNak, s.handle(command))
	})

	t.Run("term on malformed", func(t *testing.T) {
		s, got := newSubscriber(nil)
		require.Equal(t, verdictTerm, s.handle([]byte(`{}`)))
		require.Empty(t, *got, "resolver is not called")
	})
}
