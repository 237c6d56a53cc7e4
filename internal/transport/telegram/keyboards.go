package telegram

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// Callback actions carried as button uniques
const (
	actionCheckMembership = "check_membership"
	actionMenu            = "back_to_menu"
	actionBalance         = "check_balance"
	actionReferral        = "get_referral"
	actionWithdraw        = "withdraw"
	actionWithdrawUpi     = "withdraw_upi"
	actionWithdrawRedeem  = "withdraw_redeem"
	actionAmount          = "amount"
	actionRedeemAmount    = "redeem"
	actionDailyBonus      = "daily_bonus"
	actionLeaderboard     = "leaderboard"
	actionStats           = "my_stats"
	actionHowToEarn       = "how_to_earn"
	actionAdminPanel      = "admin_panel"
	actionAdminPending    = "admin_withdrawals"
	actionAdminUsers      = "admin_users"
	actionAdminCodes      = "admin_codes"
	actionAdminStats      = "admin_stats"
)

var (
	upiPresets    = []int64{100, 200, 500, 1000}
	redeemPresets = []int64{10, 20, 50, 100, 200, 300}
)

// parseCallback splits "\f<action>|<arg>" produced by inline buttons
func parseCallback(data string) (action string, arg string) {
	data = strings.TrimPrefix(data, "\f")
	action, arg, _ = strings.Cut(data, "|")
	return action, arg
}

// parsePreset reads a whole rupee amount from a button argument
func parsePreset(arg string) (int64, bool) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func mainMenu(isAdmin bool) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	rows := []tele.Row{
		m.Row(m.Data("💰 Balance", actionBalance), m.Data("🔗 Referral Link", actionReferral)),
		m.Row(m.Data("💸 Withdraw", actionWithdraw), m.Data("🎁 Daily Bonus", actionDailyBonus)),
		m.Row(m.Data("📊 Leaderboard", actionLeaderboard), m.Data("📈 My Stats", actionStats)),
		m.Row(m.Data("ℹ️ How to Earn", actionHowToEarn)),
	}
	if isAdmin {
		rows = append(rows, m.Row(m.Data("👑 Admin Panel", actionAdminPanel)))
	}
	m.Inline(rows...)
	return m
}

func backToMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(m.Data("🔙 Back to Menu", actionMenu)))
	return m
}

func joinChannels(channels []string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(channels)+1)
	for i, ch := range channels {
		name, ok := strings.CutPrefix(ch, "@")
		if !ok {
			// numeric chat ids have no public link
			continue
		}
		rows = append(rows, m.Row(m.URL("📢 Join Channel "+strconv.Itoa(i+1), "https://t.me/"+name)))
	}
	rows = append(rows, m.Row(m.Data("✅ Check Membership", actionCheckMembership)))
	m.Inline(rows...)
	return m
}

func withdrawalMethods() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data("💳 UPI Payment", actionWithdrawUpi)),
		m.Row(m.Data("🎫 Redeem Code", actionWithdrawRedeem)),
		m.Row(m.Data("🔙 Back to Menu", actionMenu)),
	)
	return m
}

// amountKeyboard lays presets out two per row with a Back to the method choice
func amountKeyboard(action string, presets []int64) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(presets)/2+2)
	for i := 0; i < len(presets); i += 2 {
		row := tele.Row{}
		for _, n := range presets[i:min(i+2, len(presets))] {
			s := strconv.FormatInt(n, 10)
			row = append(row, m.Data("₹"+s, action, s))
		}
		rows = append(rows, row)
	}
	rows = append(rows, m.Row(m.Data("🔙 Back", actionWithdraw)))
	m.Inline(rows...)
	return m
}

func adminMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data("📝 Pending Withdrawals", actionAdminPending), m.Data("👥 User List", actionAdminUsers)),
		m.Row(m.Data("🎫 Manage Codes", actionAdminCodes), m.Data("📊 Statistics", actionAdminStats)),
		m.Row(m.Data("🔙 Back to Menu", actionMenu)),
	)
	return m
}
