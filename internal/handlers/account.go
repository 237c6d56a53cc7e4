package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/handlers/userctx"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/bonus"
)

// accountFrom returns authenticated account id or writes error response
func accountFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
	}
	return accountID, ok
}

func handleStart(svc ledgerService, l logger.Logger) http.Handler {
	type request struct {
		ReferrerID string `json:"referrer_id"`
	}
	type response struct {
		Account          models.Account `json:"account"`
		Created          bool           `json:"created"`
		ReferralCredited bool           `json:"referral_credited"`
		ReferralError    string         `json:"referral_error,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		// Empty body is a start without referrer
		var req request
		if r.ContentLength != 0 {
			var err error
			if req, err = render.BindAndValidate[request](w, r); err != nil {
				return
			}
		}

		res, err := svc.OnStart(r.Context(), accountID, req.ReferrerID)
		if err != nil {
			render.Error(w, err, l)
			return
		}

		resp := response{
			Account:          res.Account,
			Created:          res.Created,
			ReferralCredited: res.ReferralCredited,
		}
		if res.ReferralErr != nil {
			resp.ReferralError = res.ReferralErr.Error()
		}
		render.JSON(w, resp)
	})
}

func handleBalance(svc ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Balance models.Amount `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		balance, err := svc.BalanceOf(accountID)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, response{Balance: balance})
	})
}

func handleStats(svc ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		stats, err := svc.StatsOf(accountID)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, stats)
	})
}

func handleLeaderboard(svc ledgerService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Non positive or broken value means the default size
		top, _ := strconv.Atoi(r.URL.Query().Get("top"))
		render.JSON(w, svc.Leaderboard(top))
	})
}

func handleRates(svc ledgerService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, svc.Rates())
	})
}

func handleReferralLink(svc ledgerService) http.Handler {
	type response struct {
		Link string `json:"link"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		link := svc.ReferralLink(accountID)
		if link == "" {
			render.ServiceError(w, "Referral link is not configured", http.StatusNotFound)
			return
		}
		render.JSON(w, response{Link: link})
	})
}

func handleClaimBonus(svc ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Amount      models.Amount `json:"amount"`
		Balance     models.Amount `json:"balance"`
		ClaimedAt   time.Time     `json:"claimed_at"`
		NextClaimAt time.Time     `json:"next_claim_at"`
	}
	type cooldownResponse struct {
		render.ErrorResponse
		HoursRemaining int       `json:"hours_remaining"`
		NextClaimAt    time.Time `json:"next_claim_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		out, err := svc.OnClaimDailyBonus(r.Context(), accountID)

		var cooldown *bonus.CooldownError
		switch {
		case err == nil:
			render.JSON(w, response(out))
		case errors.As(err, &cooldown):
			render.JSONWithStatus(w, cooldownResponse{
				ErrorResponse: render.ErrorResponse{
					Error:   render.ServiceErrorType,
					Kind:    "conflict",
					Message: cooldown.Error(),
				},
				HoursRemaining: cooldown.HoursRemaining,
				NextClaimAt:    cooldown.NextClaimAt,
			}, http.StatusConflict)
		default:
			render.Error(w, err, l)
		}
	})
}

func handleRedeemCode(svc ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Code string `json:"code" validate:"notblank,max=64"`
	}
	type response struct {
		Amount  models.Amount `json:"amount"`
		Balance models.Amount `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := svc.OnRedeemCode(r.Context(), accountID, req.Code)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, response(res))
	})
}
