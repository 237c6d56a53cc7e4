package account

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/clock"
	"github.com/nkiryanov/rewardledger/internal/events"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

// Store owns every account and is the single writer of balances
//
// Each account has its own mutex. The map itself is guarded by an RWMutex
// that is never held while waiting for an account lock.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*entry

	clock  clock.Clock
	sink   events.Sink
	logger logger.Logger
}

type entry struct {
	id  string // immutable, readable without the lock
	mu  sync.Mutex
	acc models.Account
}

func NewStore(clk clock.Clock, sink events.Sink, l logger.Logger) *Store {
	if sink == nil {
		sink = events.Discard{}
	}

	return &Store{
		accounts: make(map[string]*entry),
		clock:    clk,
		sink:     sink,
		logger:   l.With("component", "account_store"),
	}
}

// GetOrCreate returns the account, creating it with zero balance on first call
func (s *Store) GetOrCreate(id string) (models.Account, bool, error) {
	if strings.TrimSpace(id) == "" {
		return models.Account{}, false, apperrors.ErrInvalidAccountID
	}

	e, created := s.getOrInsert(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.clock.Now()
	if created {
		e.acc.JoinedAt = now
	}
	e.acc.LastActiveAt = now

	acc := e.acc.Clone()
	if created {
		ev := models.NewEvent(models.EventAccountCreated, id, now)
		ev.Account = &acc
		s.sink.Publish(ev)
		s.logger.Info("Account created", "account_id", id)
	}

	return acc, created, nil
}

func (s *Store) getOrInsert(id string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.accounts[id]
	s.mu.RUnlock()
	if ok {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Somebody may have created it between the locks
	if e, ok := s.accounts[id]; ok {
		return e, false
	}

	e = &entry{id: id, acc: models.Account{ID: id}}
	s.accounts[id] = e
	return e, true
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.accounts[id]
	return e, ok
}

// Get returns a copy of the account
func (s *Store) Get(id string) (models.Account, error) {
	e, ok := s.lookup(id)
	if !ok {
		return models.Account{}, apperrors.ErrUnknownAccount
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.Clone(), nil
}

// Snapshot returns copies of all accounts in no particular order
// Each account is consistent on its own, the set is not a point in time cut
func (s *Store) Snapshot() []models.Account {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	accounts := make([]models.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		accounts = append(accounts, e.acc.Clone())
		e.mu.Unlock()
	}

	return accounts
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

func (s *Store) Credit(id string, amount models.Amount, reason string) (models.Account, error) {
	return s.Update(id, func(tx *Tx) error {
		return tx.Credit(amount, reason, "")
	})
}

func (s *Store) Debit(id string, amount models.Amount, reason string) (models.Account, error) {
	return s.Update(id, func(tx *Tx) error {
		return tx.Debit(amount, reason, "")
	})
}

// Update runs fn inside the account critical section
// fn works on a copy: it is committed when fn returns nil and discarded otherwise
func (s *Store) Update(id string, fn func(tx *Tx) error) (models.Account, error) {
	return s.update(id, fn, true)
}

// Adjust is Update for changes made on behalf of the account by someone else
// It does not mark the account active
func (s *Store) Adjust(id string, fn func(tx *Tx) error) (models.Account, error) {
	return s.update(id, fn, false)
}

func (s *Store) update(id string, fn func(tx *Tx) error, touch bool) (models.Account, error) {
	e, ok := s.lookup(id)
	if !ok {
		return models.Account{}, apperrors.ErrUnknownAccount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := s.begin(e)
	if err := fn(tx); err != nil {
		tx.rollback()
		return models.Account{}, err
	}

	if touch {
		tx.acc.LastActiveAt = tx.now
	}
	if err := s.commit(e, tx); err != nil {
		tx.rollback()
		return models.Account{}, err
	}

	return e.acc.Clone(), nil
}

// UpdatePair runs fn with both accounts locked
// Locks are always taken in id order so concurrent pairs can not deadlock
// Only the acting account is marked active
func (s *Store) UpdatePair(actingID string, otherID string, fn func(acting *Tx, other *Tx) error) error {
	if actingID == otherID {
		return fmt.Errorf("pair of the same account %s: %w", actingID, apperrors.ErrInvalidAccountID)
	}

	acting, ok := s.lookup(actingID)
	if !ok {
		return apperrors.ErrUnknownAccount
	}
	other, ok := s.lookup(otherID)
	if !ok {
		return apperrors.ErrUnknownAccount
	}

	return s.updatePair(acting, other, fn)
}

func (s *Store) updatePair(acting *entry, other *entry, fn func(acting *Tx, other *Tx) error) error {
	first, second := acting, other
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	actingTx, otherTx := s.begin(acting), s.begin(other)
	if err := fn(actingTx, otherTx); err != nil {
		otherTx.rollback()
		actingTx.rollback()
		return err
	}
	actingTx.acc.LastActiveAt = actingTx.now

	// Both are checked before either is stored
	if err := cmp.Or(check(actingTx.acc), check(otherTx.acc)); err != nil {
		s.logger.Error("Invariant violated, pair update discarded", "account_id", acting.id, "other_id", other.id, "error", err)
		otherTx.rollback()
		actingTx.rollback()
		return err
	}

	s.apply(acting, actingTx)
	s.apply(other, otherTx)
	return nil
}

// AttributeReferral records refereeID as referred by referrerID and credits bonus to the referrer
func (s *Store) AttributeReferral(referrerID string, refereeID string, bonus models.Amount) (models.Account, error) {
	if referrerID == refereeID {
		return models.Account{}, apperrors.ErrSelfReferral
	}

	referrer, ok := s.lookup(referrerID)
	if !ok {
		return models.Account{}, apperrors.ErrUnknownReferrer
	}
	referee, ok := s.lookup(refereeID)
	if !ok {
		return models.Account{}, apperrors.ErrUnknownAccount
	}

	var credited models.Account
	err := s.updatePair(referee, referrer, func(refereeTx *Tx, referrerTx *Tx) error {
		ref, by := referrerTx.acc, refereeTx.acc

		switch {
		case ref.HasReferral(refereeID) || by.ReferredBy == referrerID:
			return apperrors.ErrAlreadyCounted
		case by.ReferredBy != "":
			return apperrors.ErrAlreadyReferred
		}

		referrerTx.acc.Referrals = append(slices.Clip(ref.Referrals), refereeID)
		refereeTx.acc.ReferredBy = referrerID

		if err := referrerTx.Credit(bonus, models.ReasonReferral, refereeID); err != nil {
			return err
		}

		credited = referrerTx.acc.Clone()
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}

	s.logger.Info("Referral attributed", "referrer_id", referrerID, "referee_id", refereeID)
	return credited, nil
}

func (s *Store) begin(e *entry) *Tx {
	return &Tx{acc: e.acc, now: s.clock.Now()}
}

// commit checks invariants and applies the working copy
func (s *Store) commit(e *entry, tx *Tx) error {
	if err := check(tx.acc); err != nil {
		s.logger.Error("Invariant violated, update discarded", "account_id", e.id, "error", err)
		return err
	}

	s.apply(e, tx)
	return nil
}

// apply stores a checked working copy, emits its transactions and runs commit hooks
func (s *Store) apply(e *entry, tx *Tx) {
	e.acc = tx.acc
	for i := range tx.txs {
		t := tx.txs[i]
		ev := models.NewEvent(models.EventTransaction, t.AccountID, t.CreatedAt)
		ev.Tx = &t
		s.sink.Publish(ev)
	}

	for _, fn := range tx.onCommit {
		fn()
	}
}

func check(acc models.Account) error {
	switch {
	case acc.Balance < 0:
		return fmt.Errorf("account %s balance %s is negative: %w", acc.ID, acc.Balance, apperrors.ErrInvariantViolation)
	case !acc.Reconciles():
		return fmt.Errorf("account %s balance %s does not match accumulators: %w", acc.ID, acc.Balance, apperrors.ErrInvariantViolation)
	case acc.ReferredBy == acc.ID || acc.HasReferral(acc.ID):
		return fmt.Errorf("account %s refers itself: %w", acc.ID, apperrors.ErrInvariantViolation)
	}
	return nil
}

// Tx is a working copy of one account inside its critical section
type Tx struct {
	acc models.Account
	now time.Time
	txs []models.Transaction

	onCommit   []func()
	onRollback []func()
}

// Account returns the working copy including uncommitted changes
func (tx *Tx) Account() models.Account {
	return tx.acc.Clone()
}

func (tx *Tx) Now() time.Time {
	return tx.now
}

// OnCommit registers fn to run right after the working copy is stored
// Hooks run inside the critical section in registration order
func (tx *Tx) OnCommit(fn func()) {
	tx.onCommit = append(tx.onCommit, fn)
}

// OnRollback registers fn to undo a change made outside the account
// when the working copy is discarded. Hooks run inside the critical section
// in reverse registration order
func (tx *Tx) OnRollback(fn func()) {
	tx.onRollback = append(tx.onRollback, fn)
}

func (tx *Tx) rollback() {
	for i := len(tx.onRollback) - 1; i >= 0; i-- {
		tx.onRollback[i]()
	}
	tx.onRollback = nil
}

func (tx *Tx) Credit(amount models.Amount, reason string, reference string) error {
	if amount <= 0 {
		return apperrors.ErrInvalidAmount
	}

	var total *models.Amount
	switch {
	case models.IsEarnReason(reason):
		total = &tx.acc.TotalEarned
	case reason == models.ReasonRefund:
		total = &tx.acc.TotalRefunded
	default:
		return fmt.Errorf("unknown credit reason %q: %w", reason, apperrors.ErrInvariantViolation)
	}
	if overflows(tx.acc.Balance, amount) || overflows(*total, amount) {
		return fmt.Errorf("account %s credit %s overflows: %w", tx.acc.ID, amount, apperrors.ErrInvariantViolation)
	}

	tx.acc.Balance += amount
	*total += amount

	tx.record(models.DirectionCredit, amount, reason, reference)
	return nil
}

func (tx *Tx) Debit(amount models.Amount, reason string, reference string) error {
	if amount <= 0 {
		return apperrors.ErrInvalidAmount
	}
	if tx.acc.Balance < amount {
		return apperrors.ErrInsufficientBalance
	}

	var total *models.Amount
	switch reason {
	case models.ReasonWithdrawal:
		total = &tx.acc.TotalWithdrawn
	case models.ReasonCodePayout:
		total = &tx.acc.TotalRedeemed
	default:
		return fmt.Errorf("unknown debit reason %q: %w", reason, apperrors.ErrInvariantViolation)
	}
	if overflows(*total, amount) {
		return fmt.Errorf("account %s debit %s overflows: %w", tx.acc.ID, amount, apperrors.ErrInvariantViolation)
	}

	tx.acc.Balance -= amount
	*total += amount

	tx.record(models.DirectionDebit, amount, reason, reference)
	return nil
}

// overflows reports whether a non negative total can not take amount more
func overflows(total models.Amount, amount models.Amount) bool {
	return total > math.MaxInt64-amount
}

func (tx *Tx) record(direction string, amount models.Amount, reason string, reference string) {
	tx.txs = append(tx.txs, models.Transaction{
		ID:           uuid.New(),
		AccountID:    tx.acc.ID,
		Direction:    direction,
		Reason:       reason,
		Amount:       amount,
		BalanceAfter: tx.acc.Balance,
		Reference:    reference,
		CreatedAt:    tx.now,
	})
}
