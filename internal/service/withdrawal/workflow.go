package withdrawal

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/clock"
	"github.com/nkiryanov/rewardledger/internal/events"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/coderegistry"
)

const (
	DefaultFlowTTL             = 10 * time.Minute
	defaultIdempotencyCapacity = 4096

	requestIDLayout = "20060102150405"
)

type accountUpdater interface {
	Update(id string, fn func(tx *account.Tx) error) (models.Account, error)
	Adjust(id string, fn func(tx *account.Tx) error) (models.Account, error)
}

type codeTaker interface {
	TakeByValue(amount models.Amount) (string, error)
	Restore(code string) error
}

type Config struct {
	MinWithdrawal       models.Amount
	FlowTTL             time.Duration // DefaultFlowTTL if zero
	IdempotencyCapacity int
}

type flow struct {
	state     string
	amount    models.Amount
	touchedAt time.Time
}

// Workflow drives interactive withdrawals and owns withdrawal requests
//
// Methods that touch an account take its lock through the account store first
// and the workflow mutex inside it, never the reverse.
type Workflow struct {
	accounts accountUpdater
	codes    codeTaker
	minimum  models.Amount
	ttl      time.Duration

	clock   clock.Clock
	sink    events.Sink
	metrics *metrics.Metrics
	logger  logger.Logger

	mu       sync.Mutex
	flows    map[string]flow
	requests map[string]*models.WithdrawalRequest
	order    []string // request ids by creation
	idem     *idempotencyLRU
}

func New(
	accounts accountUpdater,
	codes codeTaker,
	cfg Config,
	clk clock.Clock,
	sink events.Sink,
	m *metrics.Metrics,
	l logger.Logger,
) *Workflow {
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = DefaultFlowTTL
	}
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = defaultIdempotencyCapacity
	}
	if sink == nil {
		sink = events.Discard{}
	}

	return &Workflow{
		accounts: accounts,
		codes:    codes,
		minimum:  cfg.MinWithdrawal,
		ttl:      cfg.FlowTTL,
		clock:    clk,
		sink:     sink,
		metrics:  m,
		logger:   l.With("component", "withdrawal"),
		flows:    make(map[string]flow),
		requests: make(map[string]*models.WithdrawalRequest),
		idem:     newIdempotencyLRU(cfg.IdempotencyCapacity),
	}
}

func (w *Workflow) MinWithdrawal() models.Amount {
	return w.minimum
}

// Begin opens the method selection
func (w *Workflow) Begin(accountID string) error {
	return w.begin(accountID, models.FlowSelectingMethod)
}

// BeginUpi starts the UPI branch waiting for an amount
func (w *Workflow) BeginUpi(accountID string) error {
	return w.begin(accountID, models.FlowCapturingAmount)
}

// BeginCode starts the redeem code branch waiting for a code tier
func (w *Workflow) BeginCode(accountID string) error {
	return w.begin(accountID, models.FlowSelectingCodeAmount)
}

func (w *Workflow) begin(accountID string, state string) error {
	_, err := w.accounts.Update(accountID, func(tx *account.Tx) error {
		if tx.Account().Balance < w.minimum {
			return apperrors.ErrBelowMinimum
		}

		w.setFlow(accountID, flow{state: state, touchedAt: tx.Now()})
		return nil
	})

	return err
}

// ChooseAmount stores the UPI amount and waits for the destination
func (w *Workflow) ChooseAmount(accountID string, amount models.Amount) error {
	_, err := w.accounts.Update(accountID, func(tx *account.Tx) error {
		f, ok := w.activeFlow(accountID, tx.Now())
		if !ok {
			return apperrors.ErrNoActiveFlow
		}
		switch f.state {
		case models.FlowSelectingMethod, models.FlowCapturingAmount, models.FlowCapturingDestination:
		default:
			return apperrors.ErrNoActiveFlow
		}

		if amount <= 0 {
			return apperrors.ErrInvalidAmount
		}
		if tx.Account().Balance < amount {
			return apperrors.ErrInsufficientBalance
		}

		w.setFlow(accountID, flow{state: models.FlowCapturingDestination, amount: amount, touchedAt: tx.Now()})
		return nil
	})

	return err
}

// SubmitDestination debits the captured amount and records a pending request
//
// A repeated idempotencyKey returns the request created by the first call
// without debiting again.
func (w *Workflow) SubmitDestination(accountID string, destination string, idempotencyKey string) (models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	var replayed bool
	idemKey := ""
	if idempotencyKey != "" {
		idemKey = accountID + ":" + idempotencyKey
	}

	_, err := w.accounts.Update(accountID, func(tx *account.Tx) error {
		if prev, ok := w.lookupIdempotent(idemKey); ok {
			req, replayed = prev, true
			return nil
		}

		now := tx.Now()
		f, ok := w.activeFlow(accountID, now)
		if !ok || f.state != models.FlowCapturingDestination {
			return apperrors.ErrNoPendingWithdrawal
		}

		destination = strings.TrimSpace(destination)
		if destination == "" {
			return apperrors.ErrInvalidDestination
		}

		w.mu.Lock()
		id := w.nextRequestID(accountID, now)
		w.mu.Unlock()

		if err := tx.Debit(f.amount, models.ReasonWithdrawal, id); err != nil {
			// Balance changed since the amount was chosen; the flow is stale
			w.clearFlow(accountID)
			return err
		}

		req = models.WithdrawalRequest{
			ID:             id,
			AccountID:      accountID,
			Amount:         f.amount,
			Destination:    destination,
			Status:         models.WithdrawalStatusPending,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      now,
		}
		w.store(req, idemKey)
		w.clearFlow(accountID)
		return nil
	})

	switch {
	case err != nil && req.ID != "":
		// Stored inside the critical section but the debit was not committed
		w.unstore(req.ID, idemKey)
		return models.WithdrawalRequest{}, err
	case err != nil:
		return models.WithdrawalRequest{}, err
	case replayed:
		w.logger.Info("Duplicate withdrawal submission", "account_id", accountID, "request_id", req.ID)
		return req, nil
	}

	w.logger.Info("Withdrawal requested", "account_id", accountID, "request_id", req.ID, "amount", req.Amount)
	ev := models.NewEvent(models.EventWithdrawalCreated, accountID, req.CreatedAt)
	ev.Withdrawal = &req
	w.sink.Publish(ev)
	w.metrics.SetPendingWithdrawals(w.pendingCount())

	return req, nil
}

// RedeemAtAmount pays the balance out as a redeem code worth amount
// The code is returned exactly once and is only ever logged by fingerprint
func (w *Workflow) RedeemAtAmount(accountID string, amount models.Amount) (models.IssuedCode, error) {
	var issued models.IssuedCode

	acc, err := w.accounts.Update(accountID, func(tx *account.Tx) error {
		if amount <= 0 {
			return apperrors.ErrInvalidAmount
		}
		if tx.Account().Balance < amount {
			return apperrors.ErrInsufficientBalance
		}

		code, err := w.codes.TakeByValue(amount)
		if err != nil {
			return err
		}
		fingerprint := coderegistry.Fingerprint(code)
		tx.OnRollback(func() {
			if err := w.codes.Restore(code); err != nil {
				w.logger.Error("Redeem code consumed without payout", "account_id", accountID, "fingerprint", fingerprint, "error", err)
			}
		})

		if err := tx.Debit(amount, models.ReasonCodePayout, fingerprint); err != nil {
			return fmt.Errorf("debit for code %s: %w", fingerprint, err)
		}
		tx.OnCommit(func() { w.clearFlow(accountID) })

		issued = models.IssuedCode{
			Code:        code,
			Amount:      amount,
			Fingerprint: fingerprint,
		}
		return nil
	})
	if err != nil {
		return models.IssuedCode{}, err
	}

	issued.Balance = acc.Balance
	w.logger.Info("Redeem code issued", "account_id", accountID, "fingerprint", issued.Fingerprint, "amount", amount)

	ev := models.NewEvent(models.EventCodeIssued, accountID, w.clock.Now())
	ev.Code = &models.CatalogEntry{Fingerprint: issued.Fingerprint, Value: amount}
	w.sink.Publish(ev)

	return issued, nil
}

// State returns the flow state, expired flows read as idle
func (w *Workflow) State(accountID string) string {
	f, ok := w.activeFlow(accountID, w.clock.Now())
	if !ok {
		return models.FlowIdle
	}
	return f.state
}

// Cancel drops any open flow of the account
func (w *Workflow) Cancel(accountID string) {
	w.clearFlow(accountID)
}

// Sweep removes flows untouched for longer than the TTL
func (w *Workflow) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for id, f := range w.flows {
		if w.expired(f, now) {
			delete(w.flows, id)
			removed++
		}
	}

	w.metrics.ObserveFlowsExpired(removed)
	return removed
}

// RunSweeper sweeps expired flows every interval until ctx is done
func (w *Workflow) RunSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("Flow sweeper stopped")
				return
			case <-ticker.C:
				if n := w.Sweep(w.clock.Now()); n > 0 {
					w.logger.Debug("Expired withdrawal flows removed", "count", n)
				}
			}
		}
	}()

	return idleStopped
}

// Resolve moves a pending request to fulfilled or rejected
// Rejected requests are refunded to the account
func (w *Workflow) Resolve(requestID string, status string, note string) (models.WithdrawalRequest, error) {
	if status != models.WithdrawalStatusFulfilled && status != models.WithdrawalStatusRejected {
		return models.WithdrawalRequest{}, fmt.Errorf("status %q: %w", status, apperrors.ErrInvalidStatus)
	}

	current, err := w.Get(requestID)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	var resolved models.WithdrawalRequest
	_, err = w.accounts.Adjust(current.AccountID, func(tx *account.Tx) error {
		now := tx.Now()

		w.mu.Lock()
		req, ok := w.requests[requestID]
		if !ok {
			w.mu.Unlock()
			return apperrors.ErrUnknownWithdrawal
		}
		if !req.IsPending() {
			w.mu.Unlock()
			return apperrors.ErrWithdrawalResolved
		}
		req.Status = status
		req.Note = note
		req.ResolvedAt = &now
		resolved = *req
		w.mu.Unlock()

		if status == models.WithdrawalStatusRejected {
			return tx.Credit(req.Amount, models.ReasonRefund, requestID)
		}
		return nil
	})

	if err != nil {
		if resolved.ID != "" {
			w.reopen(requestID)
		}
		return models.WithdrawalRequest{}, err
	}

	w.logger.Info("Withdrawal resolved", "request_id", requestID, "status", status)
	ev := models.NewEvent(models.EventWithdrawalResolved, resolved.AccountID, *resolved.ResolvedAt)
	ev.Withdrawal = &resolved
	w.sink.Publish(ev)
	w.metrics.SetPendingWithdrawals(w.pendingCount())

	return resolved, nil
}

func (w *Workflow) Get(requestID string) (models.WithdrawalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	req, ok := w.requests[requestID]
	if !ok {
		return models.WithdrawalRequest{}, apperrors.ErrUnknownWithdrawal
	}
	return *req, nil
}

// Pending returns pending requests oldest first
func (w *Workflow) Pending() []models.WithdrawalRequest {
	return w.filter(func(r *models.WithdrawalRequest) bool { return r.IsPending() })
}

// List returns all requests of the account oldest first
func (w *Workflow) List(accountID string) []models.WithdrawalRequest {
	return w.filter(func(r *models.WithdrawalRequest) bool { return r.AccountID == accountID })
}

func (w *Workflow) filter(keep func(*models.WithdrawalRequest) bool) []models.WithdrawalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.WithdrawalRequest, 0)
	for _, id := range w.order {
		if r := w.requests[id]; keep(r) {
			out = append(out, *r)
		}
	}
	return out
}

func (w *Workflow) pendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for _, r := range w.requests {
		if r.IsPending() {
			n++
		}
	}
	return n
}

func (w *Workflow) setFlow(accountID string, f flow) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flows[accountID] = f
}

func (w *Workflow) clearFlow(accountID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.flows, accountID)
}

func (w *Workflow) activeFlow(accountID string, now time.Time) (flow, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.flows[accountID]
	if !ok || w.expired(f, now) {
		return flow{}, false
	}
	return f, true
}

func (w *Workflow) expired(f flow, now time.Time) bool {
	return now.Sub(f.touchedAt) >= w.ttl
}

func (w *Workflow) lookupIdempotent(key string) (models.WithdrawalRequest, bool) {
	if key == "" {
		return models.WithdrawalRequest{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	id, ok := w.idem.Get(key)
	if !ok {
		return models.WithdrawalRequest{}, false
	}
	req, ok := w.requests[id]
	if !ok {
		return models.WithdrawalRequest{}, false
	}
	return *req, true
}

// nextRequestID derives id from account and time, suffixed while taken
// Must be called with w.mu held
func (w *Workflow) nextRequestID(accountID string, now time.Time) string {
	base := accountID + "_" + now.UTC().Format(requestIDLayout)

	id := base
	for n := 2; ; n++ {
		if _, taken := w.requests[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

func (w *Workflow) store(req models.WithdrawalRequest, idemKey string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.requests[req.ID] = &req
	w.order = append(w.order, req.ID)
	if idemKey != "" {
		w.idem.Add(idemKey, req.ID)
	}
}

func (w *Workflow) unstore(requestID string, idemKey string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.requests, requestID)
	w.order = slices.DeleteFunc(w.order, func(id string) bool { return id == requestID })
	if idemKey != "" {
		w.idem.Remove(idemKey)
	}
}

func (w *Workflow) reopen(requestID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if req, ok := w.requests[requestID]; ok {
		req.Status = models.WithdrawalStatusPending
		req.Note = ""
		req.ResolvedAt = nil
	}
}
