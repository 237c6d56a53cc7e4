package telegram

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/bonus"
	"github.com/nkiryanov/rewardledger/internal/service/ledger"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data   string
		action string
		arg    string
	}{
		{"\fcheck_balance", "check_balance", ""},
		{"\famount|100", "amount", "100"},
		{"redeem|50", "redeem", "50"},
		{"\f", "", ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.data), func(t *testing.T) {
			action, arg := parseCallback(tt.data)

			require.Equal(t, tt.action, action)
			require.Equal(t, tt.arg, arg)
		})
	}
}

func TestParsePreset(t *testing.T) {
	n, ok := parsePreset("200")
	require.True(t, ok)
	require.Equal(t, int64(200), n)

	for _, bad := range []string{"", "0", "-10", "1.5", "ten"} {
		_, ok := parsePreset(bad)
		require.False(t, ok, bad)
	}
}

func TestAmountKeyboard(t *testing.T) {
	unique := func(rows [][]tele.InlineButton) [][]string {
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			var keys []string
			for _, b := range row {
				keys = append(keys, b.Unique+"|"+b.Data)
			}
			out = append(out, keys)
		}
		return out
	}

	t.Run("upi presets two per row", func(t *testing.T) {
		m := amountKeyboard(actionAmount, upiPresets)

		require.Equal(t, [][]string{
			{"amount|100", "amount|200"},
			{"amount|500", "amount|1000"},
			{"withdraw|"},
		}, unique(m.InlineKeyboard))
		require.Equal(t, "₹100", m.InlineKeyboard[0][0].Text)
	})

	t.Run("redeem presets", func(t *testing.T) {
		m := amountKeyboard(actionRedeemAmount, redeemPresets)

		require.Len(t, m.InlineKeyboard, 4)
		require.Equal(t, []string{"redeem|200", "redeem|300"}, unique(m.InlineKeyboard)[2])
	})

	t.Run("odd preset count", func(t *testing.T) {
		m := amountKeyboard(actionAmount, []int64{10, 20, 30})

		require.Len(t, m.InlineKeyboard[1], 1)
	})
}

func TestMainMenu(t *testing.T) {
	require.Len(t, mainMenu(false).InlineKeyboard, 4)

	adminRows := mainMenu(true).InlineKeyboard
	require.Len(t, adminRows, 5)
	require.Equal(t, actionAdminPanel, adminRows[4][0].Unique)
}

func TestJoinChannels(t *testing.T) {
	m := joinChannels([]string{"@first", "-100200300", "@second"})

	require.Len(t, m.InlineKeyboard, 3)
	require.Equal(t, "https://t.me/first", m.InlineKeyboard[0][0].URL)
	require.Equal(t, "https://t.me/second", m.InlineKeyboard[1][0].URL)
	require.Equal(t, actionCheckMembership, m.InlineKeyboard[2][0].Unique)
}

func TestErrorText(t *testing.T) {
	rates := ledger.Rates{MinWithdrawal: models.Units(150)}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cooldown", &bonus.CooldownError{HoursRemaining: 3}, "⏳ You can claim your next bonus in 3 hours."},
		{"below minimum", apperrors.ErrBelowMinimum, "❌ Minimum withdrawal amount is ₹150."},
		{"wrapped", fmt.Errorf("redeem: %w", apperrors.ErrCodeAlreadyUsed), "❌ This code has already been used!"},
		{"not member", apperrors.ErrNotMember, textJoin},
		{"other validation", apperrors.ErrSelfReferral, "❌ Invalid input."},
		{"internal", apperrors.ErrInvariantViolation, "⚠️ Something went wrong. Please try again later."},
		{"unknown", fmt.Errorf("boom"), "⚠️ Something went wrong. Please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, errorText(tt.err, rates))
		})
	}
}

func TestRupees(t *testing.T) {
	require.Equal(t, "10", rupees(models.Units(10)))
	require.Equal(t, "0", rupees(0))
	require.Equal(t, "12.50", rupees(1250))
}
