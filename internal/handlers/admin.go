package handlers

import (
	"net/http"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

func handlePendingWithdrawals(svc ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		pending, err := svc.PendingWithdrawals(adminID)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, nonNil(pending))
	})
}

func handleResolveWithdrawal(svc ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Status string `json:"status" validate:"oneof=fulfilled rejected"`
		Note   string `json:"note" validate:"max=512"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wr, err := svc.ResolveWithdrawal(adminID, r.PathValue("id"), req.Status, req.Note)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, wr)
	})
}

func handlePlatformTotals(svc ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		totals, err := svc.PlatformTotals(adminID)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, totals)
	})
}

func handleCodeCatalog(svc ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		catalog, err := svc.CodeCatalog(adminID)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSON(w, nonNil(catalog))
	})
}

func handleAddCode(svc ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Code  string        `json:"code" validate:"notblank,max=64"`
		Value models.Amount `json:"value" validate:"gt=0"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := accountFrom(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		entry, err := svc.AddCode(adminID, req.Code, req.Value)
		if err != nil {
			render.Error(w, err, l)
			return
		}
		render.JSONWithStatus(w, entry, http.StatusCreated)
	})
}
