package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

const idempotencyHeader = "Idempotency-Key"

type flowResponse struct {
	State string `json:"state"`
}

func handleFlowState(svc ledgerService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}
		render.JSON(w, flowResponse{State: svc.FlowState(accountID)})
	})
}

// handleFlowStep serves flow transitions that take no input
func handleFlowStep(svc ledgerService, step func(ctx context.Context, accountID string) error, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		if err := step(r.Context(), accountID); err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, flowResponse{State: svc.FlowState(accountID)})
	})
}

func handleChooseAmount(svc ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount models.Amount `json:"amount" validate:"gt=0"`
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

		if err := svc.OnChooseWithdrawalAmount(r.Context(), accountID, req.Amount); err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, flowResponse{State: svc.FlowState(accountID)})
	})
}

func handleSubmitUpi(svc ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Destination string `json:"destination" validate:"notblank,max=256"`
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

		wr, err := svc.OnSubmitUpi(r.Context(), accountID, req.Destination, r.Header.Get(idempotencyHeader))
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, wr)
	})
}

func handleRedeemAtAmount(svc ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount models.Amount `json:"amount" validate:"gt=0"`
	}
	type response struct {
		Code        string        `json:"code"`
		Amount      models.Amount `json:"amount"`
		Fingerprint string        `json:"fingerprint"`
		Balance     models.Amount `json:"balance"`
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

		issued, err := svc.OnRedeemAtAmount(r.Context(), accountID, req.Amount)
		if err != nil {
			render.Error(w, err, l)
			return
		}

		// The code is shown once
		w.Header().Set("Cache-Control", "no-store")
		render.JSON(w, response(issued))
	})
}

func handleCancel(svc ledgerService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		svc.OnCancelWithdrawal(r.Context(), accountID)
		render.JSON(w, flowResponse{State: svc.FlowState(accountID)})
	})
}

func handleListWithdrawals(svc ledgerService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}
		render.JSON(w, nonNil(svc.Withdrawals(accountID)))
	})
}

func handleListTransactions(journal journalReader, l logger.Logger) http.Handler {
	const limit = 100

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		txs, err := journal.ListTransactions(r.Context(), accountID, limit)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, nonNil(txs))
	})
}

// nonNil makes empty lists render as [] instead of null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
