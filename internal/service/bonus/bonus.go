package bonus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/account"
)

const DefaultCooldown = 24 * time.Hour

type accountUpdater interface {
	Update(id string, fn func(tx *account.Tx) error) (models.Account, error)
}

type Config struct {
	Amount   models.Amount
	Cooldown time.Duration // DefaultCooldown if zero
}

// Outcome of a granted claim
type Outcome struct {
	Amount      models.Amount
	Balance     models.Amount
	ClaimedAt   time.Time
	NextClaimAt time.Time
}

// CooldownError is returned while the previous claim is too recent
// It matches apperrors.ErrCooldownActive
type CooldownError struct {
	HoursRemaining int
	NextClaimAt    time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("daily bonus available in %d hours", e.HoursRemaining)
}

func (e *CooldownError) Unwrap() error {
	return apperrors.ErrCooldownActive
}

type Scheduler struct {
	accounts accountUpdater
	amount   models.Amount
	cooldown time.Duration

	mu     sync.Mutex
	claims map[string]time.Time // account id -> last claim
}

func NewScheduler(accounts accountUpdater, cfg Config) *Scheduler {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	return &Scheduler{
		accounts: accounts,
		amount:   cfg.Amount,
		cooldown: cfg.Cooldown,
		claims:   make(map[string]time.Time),
	}
}

// Claim grants the bonus if the cooldown has passed since the last claim
// Check and set run inside the account critical section; the claim is recorded
// only once the credit is committed
func (s *Scheduler) Claim(accountID string, now time.Time) (Outcome, error) {
	acc, err := s.accounts.Update(accountID, func(tx *account.Tx) error {
		if last, ok := s.LastClaim(accountID); ok {
			next := last.Add(s.cooldown)
			if remaining := next.Sub(now); remaining > 0 {
				return &CooldownError{
					HoursRemaining: ceilHours(remaining),
					NextClaimAt:    next,
				}
			}
		}

		if err := tx.Credit(s.amount, models.ReasonDailyBonus, ""); err != nil {
			return err
		}

		tx.OnCommit(func() { s.setClaim(accountID, now) })
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Amount:      s.amount,
		Balance:     acc.Balance,
		ClaimedAt:   now,
		NextClaimAt: now.Add(s.cooldown),
	}, nil
}

func (s *Scheduler) Amount() models.Amount {
	return s.amount
}

// LastClaim returns time of the last granted claim
func (s *Scheduler) LastClaim(accountID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.claims[accountID]
	return last, ok
}

func (s *Scheduler) setClaim(accountID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claims[accountID] = at
}

func ceilHours(d time.Duration) int {
	return int((d + time.Hour - 1) / time.Hour)
}
