package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/bonus"
	"github.com/nkiryanov/rewardledger/internal/service/ledger"
)

const updateTimeout = 15 * time.Second

type ledgerService interface {
	OnStart(ctx context.Context, accountID string, referrerID string) (ledger.StartResult, error)
	OnClaimDailyBonus(ctx context.Context, accountID string) (bonus.Outcome, error)
	OnRedeemCode(ctx context.Context, accountID string, text string) (ledger.RedeemResult, error)
	OnBeginWithdrawal(ctx context.Context, accountID string) error
	OnBeginUpi(ctx context.Context, accountID string) error
	OnBeginCodeWithdrawal(ctx context.Context, accountID string) error
	OnChooseWithdrawalAmount(ctx context.Context, accountID string, amount models.Amount) error
	OnSubmitUpi(ctx context.Context, accountID string, text string, idempotencyKey string) (models.WithdrawalRequest, error)
	OnRedeemAtAmount(ctx context.Context, accountID string, amount models.Amount) (models.IssuedCode, error)
	OnCancelWithdrawal(ctx context.Context, accountID string)

	BalanceOf(accountID string) (models.Amount, error)
	StatsOf(accountID string) (models.Stats, error)
	Leaderboard(topN int) []models.LeaderboardEntry
	FlowState(accountID string) string
	ReferralLink(accountID string) string
	Rates() ledger.Rates
	IsAdmin(accountID string) bool

	PendingWithdrawals(adminID string) ([]models.WithdrawalRequest, error)
	PlatformTotals(adminID string) (models.PlatformTotals, error)
	ResolveWithdrawal(adminID string, requestID string, status string, note string) (models.WithdrawalRequest, error)
	AddCode(adminID string, code string, value models.Amount) (models.CatalogEntry, error)
	CodeCatalog(adminID string) ([]models.CatalogEntry, error)
}

// Bot routes chat updates to the ledger and renders the results
type Bot struct {
	client *Client
	svc    ledgerService
	logger logger.Logger
}

func NewBot(client *Client, svc ledgerService, l logger.Logger) *Bot {
	b := &Bot{
		client: client,
		svc:    svc,
		logger: l.With("component", "telegram_bot"),
	}

	b.client.api.Handle("/start", b.handleStart)
	b.client.api.Handle("/cancel", b.handleCancel)
	b.client.api.Handle("/resolve", b.handleResolve)
	b.client.api.Handle("/addcode", b.handleAddCode)
	b.client.api.Handle(tele.OnCallback, b.handleCallback)
	b.client.api.Handle(tele.OnText, b.handleText)

	return b
}

// Run polls updates until ctx is done
func (b *Bot) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		b.logger.Info("Telegram bot started", "username", b.client.Username())
		b.client.api.Start()
		b.logger.Info("Telegram bot stopped")
	}()

	go func() {
		<-ctx.Done()
		b.client.api.Stop()
	}()

	return stopped
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	accountID := accountOf(c.Sender())
	referrerID := strings.TrimSpace(c.Message().Payload)

	res, err := b.svc.OnStart(ctx, accountID, referrerID)
	if err != nil {
		return b.fail(c, err)
	}

	if res.ReferralErr != nil {
		b.logger.Debug("Start referral ignored", "account_id", accountID, "referrer_id", referrerID, "error", res.ReferralErr)
	}

	return c.Send(welcomeText(c.Sender().FirstName, b.svc.Rates()), mainMenu(b.svc.IsAdmin(accountID)))
}

func (b *Bot) handleCancel(c tele.Context) error {
	accountID := accountOf(c.Sender())
	b.svc.OnCancelWithdrawal(context.Background(), accountID)
	return c.Send(textMenu, mainMenu(b.svc.IsAdmin(accountID)))
}

// handleText captures the UPI id while a withdrawal waits for it, otherwise the text is a redeem code
func (b *Bot) handleText(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	accountID := accountOf(c.Sender())
	isAdmin := b.svc.IsAdmin(accountID)

	if b.svc.FlowState(accountID) == models.FlowCapturingDestination {
		// Redelivered updates carry the same message id
		key := strconv.Itoa(c.Message().ID)

		req, err := b.svc.OnSubmitUpi(ctx, accountID, c.Text(), key)
		if err != nil {
			return b.fail(c, err)
		}
		return c.Send(withdrawalCreatedText(req), mainMenu(isAdmin))
	}

	res, err := b.svc.OnRedeemCode(ctx, accountID, c.Text())
	if err != nil {
		return b.fail(c, err)
	}
	return c.Send(redeemedText(res), mainMenu(isAdmin))
}

func (b *Bot) handleCallback(c tele.Context) error {
	defer func() {
		if err := c.Respond(); err != nil {
			b.logger.Debug("Callback not answered", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	accountID := accountOf(c.Sender())
	action, arg := parseCallback(c.Callback().Data)
	b.logger.Debug("Callback received", "account_id", accountID, "action", action)

	switch action {
	case actionCheckMembership:
		return b.checkMembership(ctx, c, accountID)
	case actionMenu:
		b.svc.OnCancelWithdrawal(ctx, accountID)
		return c.EditOrSend(textMenu, mainMenu(b.svc.IsAdmin(accountID)))
	case actionWithdraw:
		return b.beginWithdrawal(ctx, c, accountID)
	case actionWithdrawUpi:
		if err := b.svc.OnBeginUpi(ctx, accountID); err != nil {
			return b.fail(c, err)
		}
		return c.EditOrSend(textChooseUpi, amountKeyboard(actionAmount, upiPresets))
	case actionWithdrawRedeem:
		if err := b.svc.OnBeginCodeWithdrawal(ctx, accountID); err != nil {
			return b.fail(c, err)
		}
		return c.EditOrSend(textChooseCode, amountKeyboard(actionRedeemAmount, redeemPresets))
	case actionAmount:
		return b.chooseAmount(ctx, c, accountID, arg)
	case actionRedeemAmount:
		return b.redeemAtAmount(ctx, c, accountID, arg)
	case actionDailyBonus:
		out, err := b.svc.OnClaimDailyBonus(ctx, accountID)
		if err != nil {
			return b.fail(c, err)
		}
		return c.EditOrSend(bonusText(out), backToMenu())
	}

	if action == actionAdminPanel || strings.HasPrefix(action, "admin_") {
		return b.admin(c, accountID, action)
	}

	// Views change nothing so the ledger does not gate them
	if err := b.requireMember(ctx, accountID); err != nil {
		return b.fail(c, err)
	}
	return b.view(c, accountID, action)
}

func (b *Bot) view(c tele.Context, accountID string, action string) error {
	rates := b.svc.Rates()

	switch action {
	case actionBalance:
		stats, err := b.svc.StatsOf(accountID)
		if err != nil {
			return b.fail(c, err)
		}
		return c.EditOrSend(balanceText(stats), backToMenu())
	case actionReferral:
		link := b.svc.ReferralLink(accountID)
		if link == "" {
			return c.EditOrSend(textNoLink, backToMenu())
		}
		return c.EditOrSend(referralText(link, rates), backToMenu())
	case actionLeaderboard:
		return c.EditOrSend(leaderboardText(b.svc.Leaderboard(0)), backToMenu())
	case actionStats:
		stats, err := b.svc.StatsOf(accountID)
		if err != nil {
			return b.fail(c, err)
		}
		return c.EditOrSend(statsText(stats), backToMenu())
	case actionHowToEarn:
		return c.EditOrSend(howToEarnText(rates), backToMenu())
	default:
		b.logger.Warn("Unknown callback", "account_id", accountID, "action", action)
		return nil
	}
}

func (b *Bot) admin(c tele.Context, adminID string, action string) error {
	var (
		text string
		err  error
	)

	switch action {
	case actionAdminPanel:
		if !b.svc.IsAdmin(adminID) {
			err = apperrors.ErrNotAdmin
		}
		text = textAdminPanel
	case actionAdminPending:
		var reqs []models.WithdrawalRequest
		reqs, err = b.svc.PendingWithdrawals(adminID)
		text = pendingText(reqs)
	case actionAdminUsers:
		var totals models.PlatformTotals
		totals, err = b.svc.PlatformTotals(adminID)
		text = usersText(totals)
	case actionAdminStats:
		var totals models.PlatformTotals
		totals, err = b.svc.PlatformTotals(adminID)
		text = platformText(totals)
	case actionAdminCodes:
		var entries []models.CatalogEntry
		entries, err = b.svc.CodeCatalog(adminID)
		text = catalogText(entries)
	default:
		b.logger.Warn("Unknown admin callback", "account_id", adminID, "action", action)
		return nil
	}

	if err != nil {
		return b.fail(c, err)
	}
	return c.EditOrSend(text, adminMenu())
}

func (b *Bot) checkMembership(ctx context.Context, c tele.Context, accountID string) error {
	if err := b.requireMember(ctx, accountID); err != nil {
		return c.EditOrSend(textNotJoined, joinChannels(b.client.Channels()))
	}

	// The first /start may have been refused before the user joined
	if _, err := b.svc.OnStart(ctx, accountID, ""); err != nil {
		return b.fail(c, err)
	}
	return c.EditOrSend(textJoined, mainMenu(b.svc.IsAdmin(accountID)))
}

func (b *Bot) beginWithdrawal(ctx context.Context, c tele.Context, accountID string) error {
	err := b.svc.OnBeginWithdrawal(ctx, accountID)
	if errors.Is(err, apperrors.ErrBelowMinimum) {
		balance, _ := b.svc.BalanceOf(accountID)
		text := errorText(err, b.svc.Rates()) + "\nCurrent balance: ₹" + rupees(balance)
		return c.EditOrSend(text, backToMenu())
	}
	if err != nil {
		return b.fail(c, err)
	}

	balance, err := b.svc.BalanceOf(accountID)
	if err != nil {
		return b.fail(c, err)
	}
	return c.EditOrSend(withdrawMenuText(balance), withdrawalMethods())
}

func (b *Bot) chooseAmount(ctx context.Context, c tele.Context, accountID string, arg string) error {
	n, ok := parsePreset(arg)
	if !ok {
		return b.fail(c, apperrors.ErrInvalidAmount)
	}

	amount := models.Units(n)
	err := b.svc.OnChooseWithdrawalAmount(ctx, accountID, amount)
	if errors.Is(err, apperrors.ErrInsufficientBalance) {
		return c.EditOrSend(errorText(err, b.svc.Rates()), withdrawalMethods())
	}
	if err != nil {
		return b.fail(c, err)
	}
	return c.EditOrSend(enterUpiText(amount), backToMenu())
}

func (b *Bot) redeemAtAmount(ctx context.Context, c tele.Context, accountID string, arg string) error {
	n, ok := parsePreset(arg)
	if !ok {
		return b.fail(c, apperrors.ErrInvalidAmount)
	}

	issued, err := b.svc.OnRedeemAtAmount(ctx, accountID, models.Units(n))
	if err != nil {
		return b.fail(c, err)
	}
	return c.EditOrSend(issuedCodeText(issued), backToMenu())
}

// handleResolve: /resolve <request id> <fulfilled|rejected> [note]
func (b *Bot) handleResolve(c tele.Context) error {
	adminID := accountOf(c.Sender())

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /resolve <request id> <fulfilled|rejected> [note]")
	}

	req, err := b.svc.ResolveWithdrawal(adminID, args[0], args[1], strings.Join(args[2:], " "))
	if err != nil {
		return b.fail(c, err)
	}
	return c.Send("✅ Withdrawal " + req.ID + " is " + req.Status)
}

// handleAddCode: /addcode <code> <value>
func (b *Bot) handleAddCode(c tele.Context) error {
	adminID := accountOf(c.Sender())

	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /addcode <code> <value>")
	}

	value, err := models.ParseAmount(args[1])
	if err != nil {
		return b.fail(c, apperrors.ErrInvalidAmount)
	}

	entry, err := b.svc.AddCode(adminID, args[0], value)
	if err != nil {
		return b.fail(c, err)
	}
	return c.Send("✅ Code " + entry.Fingerprint + " added: ₹" + rupees(entry.Value))
}

func (b *Bot) requireMember(ctx context.Context, accountID string) error {
	ok, err := b.client.IsMember(ctx, accountID)
	if err != nil {
		b.logger.Warn("Membership check failed", "account_id", accountID, "error", err)
		return apperrors.ErrNotMember
	}
	if !ok {
		return apperrors.ErrNotMember
	}
	return nil
}

// fail answers with the error text; only unexpected errors reach telebot OnError
func (b *Bot) fail(c tele.Context, err error) error {
	if errors.Is(err, apperrors.ErrNotMember) {
		return c.EditOrSend(textJoin, joinChannels(b.client.Channels()))
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindUnknown, apperrors.KindInvariant:
		b.logger.Error("Ledger operation failed", "account_id", accountOf(c.Sender()), "error", err)
	}

	return c.EditOrSend(errorText(err, b.svc.Rates()), backToMenu())
}
