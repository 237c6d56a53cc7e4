package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/clock"
	"github.com/nkiryanov/rewardledger/internal/dispatch"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/bonus"
	"github.com/nkiryanov/rewardledger/internal/service/coderegistry"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
)

const (
	defaultLeaderboardSize   = 10
	defaultActiveWindow      = 7 * 24 * time.Hour
	defaultMembershipTimeout = 5 * time.Second
)

type Config struct {
	ReferralBonus     models.Amount
	BotUsername       string
	LeaderboardSize   int
	ActiveWindow      time.Duration // users active within it count as active
	MembershipTimeout time.Duration
}

// Deps are the components the service orchestrates
type Deps struct {
	Accounts    *account.Store
	Codes       *coderegistry.Registry
	Bonus       *bonus.Scheduler
	Withdrawals *withdrawal.Workflow

	Oracle   MembershipOracle
	Notifier Notifier // optional
	Admins   AdminSet

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  logger.Logger
}

// Notification queued for the Notifier
type Notification struct {
	AccountID string
	Message   string
}

// Service is the only entry point transports use to reach the ledger
type Service struct {
	cfg Config

	accounts    *account.Store
	codes       *coderegistry.Registry
	bonus       *bonus.Scheduler
	withdrawals *withdrawal.Workflow

	oracle        MembershipOracle
	admins        AdminSet
	notifications *dispatch.Dispatcher[Notification]

	clock   clock.Clock
	metrics *metrics.Metrics
	logger  logger.Logger
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = defaultLeaderboardSize
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = defaultActiveWindow
	}
	if cfg.MembershipTimeout <= 0 {
		cfg.MembershipTimeout = defaultMembershipTimeout
	}
	if deps.Oracle == nil {
		deps.Oracle = Everyone{}
	}
	if deps.Admins == nil {
		deps.Admins = NewStaticAdmins()
	}

	l := deps.Logger.With("component", "ledger")

	s := &Service{
		cfg:         cfg,
		accounts:    deps.Accounts,
		codes:       deps.Codes,
		bonus:       deps.Bonus,
		withdrawals: deps.Withdrawals,
		oracle:      deps.Oracle,
		admins:      deps.Admins,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		logger:      l,
	}

	if deps.Notifier != nil {
		notifier := deps.Notifier
		s.notifications = dispatch.New("notifier", func(ctx context.Context, n Notification) error {
			return notifier.Notify(ctx, n.AccountID, n.Message)
		}, dispatch.Options{}, deps.Metrics, l)
	}

	active, _ := s.codes.Stats()
	s.metrics.SetActiveCodes(active)

	return s
}

// Run delivers notifications until ctx is done
func (s *Service) Run(ctx context.Context) <-chan struct{} {
	if s.notifications == nil {
		idleStopped := make(chan struct{})
		close(idleStopped)
		return idleStopped
	}
	return s.notifications.Run(ctx)
}

// StartResult of OnStart
// A failed referral never fails the start itself
type StartResult struct {
	Account          models.Account
	Created          bool
	ReferralCredited bool
	ReferralErr      error
}

// OnStart registers the account and attributes the referral if referrerID is set
func (s *Service) OnStart(ctx context.Context, accountID string, referrerID string) (res StartResult, err error) {
	defer s.observe("start", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return StartResult{}, err
	}

	acc, created, err := s.accounts.GetOrCreate(accountID)
	if err != nil {
		return StartResult{}, err
	}
	res = StartResult{Account: acc, Created: created}
	if created {
		s.metrics.SetAccounts(s.accounts.Len())
	}

	if referrerID == "" {
		return res, nil
	}

	if _, err := s.accounts.AttributeReferral(referrerID, accountID, s.cfg.ReferralBonus); err != nil {
		s.logger.Debug("Referral not attributed", "account_id", accountID, "referrer_id", referrerID, "error", err)
		res.ReferralErr = err
		return res, nil
	}

	res.ReferralCredited = true
	s.notify(referrerID, fmt.Sprintf("New referral! You earned ₹%s", s.cfg.ReferralBonus))

	if res.Account, err = s.accounts.Get(accountID); err != nil {
		return StartResult{}, err
	}
	return res, nil
}

func (s *Service) OnClaimDailyBonus(ctx context.Context, accountID string) (out bonus.Outcome, err error) {
	defer s.observe("claim_daily_bonus", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return bonus.Outcome{}, err
	}

	return s.bonus.Claim(accountID, s.clock.Now())
}

type RedeemResult struct {
	Amount  models.Amount
	Balance models.Amount
}

// OnRedeemCode consumes the code and credits its value
func (s *Service) OnRedeemCode(ctx context.Context, accountID string, text string) (res RedeemResult, err error) {
	defer s.observe("redeem_code", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return RedeemResult{}, err
	}

	acc, err := s.accounts.Update(accountID, func(tx *account.Tx) error {
		value, err := s.codes.Redeem(text)
		if err != nil {
			return err
		}
		tx.OnRollback(func() {
			if err := s.codes.Restore(text); err != nil {
				s.logger.Error("Redeem code not restored", "account_id", accountID, "fingerprint", coderegistry.Fingerprint(text), "error", err)
			}
		})
		res.Amount = value
		return tx.Credit(value, models.ReasonRedeemCode, coderegistry.Fingerprint(text))
	})
	if err != nil {
		return RedeemResult{}, err
	}

	res.Balance = acc.Balance
	s.refreshCodeGauge()
	s.logger.Info("Redeem code redeemed", "account_id", accountID, "fingerprint", coderegistry.Fingerprint(text), "amount", res.Amount)
	return res, nil
}

func (s *Service) OnBeginWithdrawal(ctx context.Context, accountID string) (err error) {
	defer s.observe("begin_withdrawal", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return err
	}
	return s.withdrawals.Begin(accountID)
}

func (s *Service) OnBeginUpi(ctx context.Context, accountID string) (err error) {
	defer s.observe("begin_upi", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return err
	}
	return s.withdrawals.BeginUpi(accountID)
}

func (s *Service) OnBeginCodeWithdrawal(ctx context.Context, accountID string) (err error) {
	defer s.observe("begin_code_withdrawal", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return err
	}
	return s.withdrawals.BeginCode(accountID)
}

func (s *Service) OnChooseWithdrawalAmount(ctx context.Context, accountID string, amount models.Amount) (err error) {
	defer s.observe("choose_withdrawal_amount", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return err
	}
	return s.withdrawals.ChooseAmount(accountID, amount)
}

// OnSubmitUpi completes the UPI withdrawal with the destination text
func (s *Service) OnSubmitUpi(ctx context.Context, accountID string, text string, idempotencyKey string) (req models.WithdrawalRequest, err error) {
	defer s.observe("submit_upi", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return models.WithdrawalRequest{}, err
	}
	return s.withdrawals.SubmitDestination(accountID, text, idempotencyKey)
}

// OnRedeemAtAmount pays out a redeem code worth amount
// The returned code must be shown once and never stored
func (s *Service) OnRedeemAtAmount(ctx context.Context, accountID string, amount models.Amount) (issued models.IssuedCode, err error) {
	defer s.observe("redeem_at_amount", &err)

	if err := s.requireMember(ctx, accountID); err != nil {
		return models.IssuedCode{}, err
	}

	issued, err = s.withdrawals.RedeemAtAmount(accountID, amount)
	if err != nil {
		return models.IssuedCode{}, err
	}
	s.refreshCodeGauge()
	return issued, nil
}

// OnCancelWithdrawal drops the open withdrawal flow, if any
func (s *Service) OnCancelWithdrawal(_ context.Context, accountID string) {
	s.withdrawals.Cancel(accountID)
}

func (s *Service) BalanceOf(accountID string) (models.Amount, error) {
	acc, err := s.accounts.Get(accountID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (s *Service) StatsOf(accountID string) (models.Stats, error) {
	acc, err := s.accounts.Get(accountID)
	if err != nil {
		return models.Stats{}, err
	}

	return models.Stats{
		AccountID:      acc.ID,
		Balance:        acc.Balance,
		TotalEarned:    acc.TotalEarned,
		TotalWithdrawn: acc.TotalWithdrawn,
		TotalRedeemed:  acc.TotalRedeemed,
		Referrals:      len(acc.Referrals),
		ActiveDays:     int(s.clock.Now().Sub(acc.JoinedAt) / (24 * time.Hour)),
		JoinedAt:       acc.JoinedAt,
	}, nil
}

// Leaderboard ranks accounts by referral count, earlier joins first on ties
func (s *Service) Leaderboard(topN int) []models.LeaderboardEntry {
	if topN <= 0 {
		topN = s.cfg.LeaderboardSize
	}

	accounts := s.accounts.Snapshot()
	slices.SortFunc(accounts, func(a, b models.Account) int {
		return cmp.Or(
			cmp.Compare(len(b.Referrals), len(a.Referrals)),
			a.JoinedAt.Compare(b.JoinedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	entries := make([]models.LeaderboardEntry, 0, min(topN, len(accounts)))
	for i, acc := range accounts[:min(topN, len(accounts))] {
		entries = append(entries, models.LeaderboardEntry{
			Rank:      i + 1,
			AccountID: acc.ID,
			Referrals: len(acc.Referrals),
			JoinedAt:  acc.JoinedAt,
		})
	}
	return entries
}

func (s *Service) FlowState(accountID string) string {
	return s.withdrawals.State(accountID)
}

// Withdrawals lists the account own requests
func (s *Service) Withdrawals(accountID string) []models.WithdrawalRequest {
	return s.withdrawals.List(accountID)
}

// ReferralLink returns the bot deep link crediting accountID, empty without bot username
func (s *Service) ReferralLink(accountID string) string {
	if s.cfg.BotUsername == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", s.cfg.BotUsername, accountID)
}

type Rates struct {
	ReferralBonus models.Amount `json:"referral_bonus"`
	DailyBonus    models.Amount `json:"daily_bonus"`
	MinWithdrawal models.Amount `json:"min_withdrawal"`
}

// Rates are the figures shown in "how to earn"
func (s *Service) Rates() Rates {
	return Rates{
		ReferralBonus: s.cfg.ReferralBonus,
		DailyBonus:    s.bonus.Amount(),
		MinWithdrawal: s.withdrawals.MinWithdrawal(),
	}
}

func (s *Service) IsAdmin(accountID string) bool {
	return s.admins.IsAdmin(accountID)
}

func (s *Service) PendingWithdrawals(adminID string) ([]models.WithdrawalRequest, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return s.withdrawals.Pending(), nil
}

func (s *Service) PlatformTotals(adminID string) (models.PlatformTotals, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return models.PlatformTotals{}, err
	}

	now := s.clock.Now()
	var totals models.PlatformTotals
	for _, acc := range s.accounts.Snapshot() {
		totals.TotalUsers++
		if now.Sub(acc.LastActiveAt) < s.cfg.ActiveWindow {
			totals.ActiveUsers++
		}
		totals.TotalBalance += acc.Balance
		totals.TotalEarned += acc.TotalEarned
		totals.TotalWithdrawn += acc.TotalWithdrawn
		totals.TotalRedeemed += acc.TotalRedeemed
	}

	totals.ActiveCodes, totals.UsedCodes = s.codes.Stats()

	for _, req := range s.withdrawals.Pending() {
		totals.PendingWithdrawals++
		totals.PendingAmount += req.Amount
	}

	return totals, nil
}

// ResolveWithdrawal fulfils or rejects a pending request and tells its owner
func (s *Service) ResolveWithdrawal(adminID string, requestID string, status string, note string) (req models.WithdrawalRequest, err error) {
	defer s.observe("resolve_withdrawal", &err)

	if err := s.requireAdmin(adminID); err != nil {
		return models.WithdrawalRequest{}, err
	}

	req, err = s.withdrawals.Resolve(requestID, status, note)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	s.logger.Info("Withdrawal resolved by admin", "admin_id", adminID, "request_id", requestID, "status", status)
	switch status {
	case models.WithdrawalStatusFulfilled:
		s.notify(req.AccountID, fmt.Sprintf("Your withdrawal %s of ₹%s has been paid", req.ID, req.Amount))
	case models.WithdrawalStatusRejected:
		s.notify(req.AccountID, fmt.Sprintf("Your withdrawal %s was rejected, ₹%s returned to your balance", req.ID, req.Amount))
	}
	return req, nil
}

func (s *Service) AddCode(adminID string, code string, value models.Amount) (models.CatalogEntry, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return models.CatalogEntry{}, err
	}
	if err := s.codes.Add(code, value); err != nil {
		return models.CatalogEntry{}, err
	}

	s.refreshCodeGauge()
	fp := coderegistry.Fingerprint(code)
	s.logger.Info("Redeem code added", "admin_id", adminID, "fingerprint", fp, "value", value)
	return models.CatalogEntry{Fingerprint: fp, Value: value}, nil
}

func (s *Service) CodeCatalog(adminID string) ([]models.CatalogEntry, error) {
	if err := s.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return s.codes.Catalog(), nil
}

// requireMember asks the oracle outside of any account lock
func (s *Service) requireMember(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MembershipTimeout)
	defer cancel()

	ok, err := s.oracle.IsMember(ctx, accountID)
	if err != nil {
		s.logger.Warn("Membership check failed", "account_id", accountID, "error", err)
		return apperrors.ErrNotMember
	}
	if !ok {
		return apperrors.ErrNotMember
	}
	return nil
}

func (s *Service) requireAdmin(accountID string) error {
	if !s.admins.IsAdmin(accountID) {
		return apperrors.ErrNotAdmin
	}
	return nil
}

func (s *Service) notify(accountID string, message string) {
	if s.notifications == nil {
		return
	}
	s.notifications.Publish(Notification{AccountID: accountID, Message: message})
}

func (s *Service) refreshCodeGauge() {
	active, _ := s.codes.Stats()
	s.metrics.SetActiveCodes(active)
}

func (s *Service) observe(operation string, err *error) {
	s.metrics.ObserveOperation(operation, *err)
	if apperrors.KindOf(*err) == apperrors.KindInvariant {
		s.logger.Error("Ledger invariant violated", "operation", operation, "error", *err)
	}
}
