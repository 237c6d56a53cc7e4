package telegram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/bonus"
	"github.com/nkiryanov/rewardledger/internal/service/ledger"
)

const (
	textJoin       = "🔔 Please join our channel to use the bot!"
	textNotJoined  = "❌ You haven't joined our channel yet. Please join to continue:"
	textJoined     = "✅ Thank you for joining! Here's the main menu:"
	textMenu       = "Choose an option from the main menu:"
	textChooseUpi  = "Select withdrawal amount:"
	textChooseCode = "Select redeem amount:"
	textAdminPanel = "👑 Admin Panel"
	textNoPending  = "No pending withdrawals."
	textNoCodes    = "No active redeem codes."
	textNoLink     = "Referral links are not available right now."
)

func welcomeText(name string, rates ledger.Rates) string {
	return fmt.Sprintf("Welcome %s! 🎉\n\n"+
		"I'm your Referral Earning Bot. Earn ₹%s for each successful referral!\n\n"+
		"Use the buttons below to:\n"+
		"- Check your balance 💰\n"+
		"- Get your referral link 🔗\n"+
		"- Withdraw your earnings 💸\n"+
		"- Claim daily bonus 🎁\n"+
		"- Learn how to earn more ℹ️",
		name, rupees(rates.ReferralBonus))
}

func balanceText(stats models.Stats) string {
	return fmt.Sprintf("💰 Your Balance: ₹%s\n👥 Total Referrals: %d", rupees(stats.Balance), stats.Referrals)
}

func referralText(link string, rates ledger.Rates) string {
	return fmt.Sprintf("🔗 Share this link to earn ₹%s per referral:\n\n%s", rupees(rates.ReferralBonus), link)
}

func withdrawMenuText(balance models.Amount) string {
	return fmt.Sprintf("💰 Your Balance: ₹%s\n\nChoose your withdrawal method:", rupees(balance))
}

func enterUpiText(amount models.Amount) string {
	return fmt.Sprintf("Please enter your UPI ID to receive ₹%s:\n(Send your UPI ID in the next message)", rupees(amount))
}

func withdrawalCreatedText(req models.WithdrawalRequest) string {
	return fmt.Sprintf("✅ Withdrawal request received!\n\n"+
		"Request ID: %s\n"+
		"Amount: ₹%s\n"+
		"UPI ID: %s\n\n"+
		"Your payment will be processed shortly.",
		req.ID, rupees(req.Amount), req.Destination)
}

func issuedCodeText(issued models.IssuedCode) string {
	return fmt.Sprintf("Here's your redeem code for ₹%s:\n\n"+
		"%s\n\n"+
		"Copy and send this code to redeem your reward!\n"+
		"New balance: ₹%s",
		rupees(issued.Amount), issued.Code, rupees(issued.Balance))
}

func redeemedText(res ledger.RedeemResult) string {
	return fmt.Sprintf("✅ Code successfully redeemed!\n\nReward: ₹%s\nNew balance: ₹%s", rupees(res.Amount), rupees(res.Balance))
}

func bonusText(out bonus.Outcome) string {
	return fmt.Sprintf("🎁 You claimed your daily bonus of ₹%s!\nNew balance: ₹%s", rupees(out.Amount), rupees(out.Balance))
}

func howToEarnText(rates ledger.Rates) string {
	return fmt.Sprintf("💡 How to Earn:\n\n"+
		"1. Refer Friends: ₹%s per referral\n"+
		"2. Daily Bonus: ₹%s every 24 hours\n\n"+
		"Minimum withdrawal: ₹%s",
		rupees(rates.ReferralBonus), rupees(rates.DailyBonus), rupees(rates.MinWithdrawal))
}

func leaderboardText(entries []models.LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString("🏆 Top Referrers:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. %s: %d referrals\n", e.Rank, e.AccountID, e.Referrals)
	}
	return b.String()
}

func statsText(stats models.Stats) string {
	return fmt.Sprintf("📊 Your Statistics:\n\n"+
		"Total Earned: ₹%s\n"+
		"Total Withdrawn: ₹%s\n"+
		"Total Redeemed: ₹%s\n"+
		"Active Days: %d\n"+
		"Referrals: %d\n",
		rupees(stats.TotalEarned), rupees(stats.TotalWithdrawn), rupees(stats.TotalRedeemed), stats.ActiveDays, stats.Referrals)
}

func pendingText(reqs []models.WithdrawalRequest) string {
	if len(reqs) == 0 {
		return textNoPending
	}

	var b strings.Builder
	b.WriteString("📝 Pending Withdrawals:\n\n")
	for _, r := range reqs {
		fmt.Fprintf(&b, "ID: %s\nUser: %s\nAmount: ₹%s\nUPI: %s\n\n", r.ID, r.AccountID, rupees(r.Amount), r.Destination)
	}
	return b.String()
}

func usersText(t models.PlatformTotals) string {
	return fmt.Sprintf("👥 User Statistics:\n\nTotal Users: %d\nActive Users (7d): %d", t.TotalUsers, t.ActiveUsers)
}

func platformText(t models.PlatformTotals) string {
	return fmt.Sprintf("📊 Platform Statistics:\n\n"+
		"Total Withdrawn: ₹%s\n"+
		"Total Redeemed: ₹%s\n"+
		"Total Earned: ₹%s\n"+
		"Pending Withdrawals: %d (₹%s)\n"+
		"Active Codes: %d\n"+
		"Used Codes: %d",
		rupees(t.TotalWithdrawn), rupees(t.TotalRedeemed), rupees(t.TotalEarned),
		t.PendingWithdrawals, rupees(t.PendingAmount), t.ActiveCodes, t.UsedCodes)
}

func catalogText(entries []models.CatalogEntry) string {
	if len(entries) == 0 {
		return textNoCodes
	}

	var b strings.Builder
	b.WriteString("🎫 Active Codes:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: ₹%s\n", e.Fingerprint, rupees(e.Value))
	}
	return b.String()
}

// errorText renders a ledger error for the chat user
// Internal errors are never described
func errorText(err error, rates ledger.Rates) string {
	var cooldown *bonus.CooldownError
	if errors.As(err, &cooldown) {
		return fmt.Sprintf("⏳ You can claim your next bonus in %d hours.", cooldown.HoursRemaining)
	}

	switch {
	case errors.Is(err, apperrors.ErrNotMember):
		return textJoin
	case errors.Is(err, apperrors.ErrBelowMinimum):
		return fmt.Sprintf("❌ Minimum withdrawal amount is ₹%s.", rupees(rates.MinWithdrawal))
	case errors.Is(err, apperrors.ErrInsufficientBalance):
		return "❌ Insufficient balance for this amount."
	case errors.Is(err, apperrors.ErrNoCodeAvailable):
		return "❌ No redeem code available for this amount."
	case errors.Is(err, apperrors.ErrCodeAlreadyUsed):
		return "❌ This code has already been used!"
	case errors.Is(err, apperrors.ErrInvalidCode):
		return "❌ Invalid redeem code!"
	case errors.Is(err, apperrors.ErrInvalidDestination):
		return "❌ Please send a valid UPI ID."
	case errors.Is(err, apperrors.ErrNoActiveFlow), errors.Is(err, apperrors.ErrNoPendingWithdrawal):
		return "⌛ Your withdrawal session has expired. Please start again from the menu."
	case errors.Is(err, apperrors.ErrUnknownAccount):
		return "Please send /start first."
	case errors.Is(err, apperrors.ErrWithdrawalResolved):
		return "❌ This withdrawal is already resolved."
	case errors.Is(err, apperrors.ErrUnknownWithdrawal):
		return "❌ Withdrawal not found."
	case errors.Is(err, apperrors.ErrNotAdmin):
		return "⛔ This section is for admins only."
	}

	if apperrors.KindOf(err) == apperrors.KindValidation {
		return "❌ Invalid input."
	}
	return "⚠️ Something went wrong. Please try again later."
}

// rupees drops zero paise: 10.00 -> 10, 12.50 -> 12.50
func rupees(a models.Amount) string {
	if a%models.Units(1) == 0 {
		return fmt.Sprintf("%d", int64(a/models.Units(1)))
	}
	return a.String()
}
