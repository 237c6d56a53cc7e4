package handlers

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/rewardledger/internal/handlers/middleware"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/bonus"
	"github.com/nkiryanov/rewardledger/internal/service/ledger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Deps struct {
	Ledger  ledgerService
	Auth    authService
	Journal journalReader // optional, transaction history is not served without it

	Gatherer prometheus.Gatherer // optional, /metrics is not served without it
	Metrics  *metrics.Metrics
	Logger   logger.Logger
}

func NewRouter(deps Deps) http.Handler {
	l := deps.Logger
	svc := deps.Ledger

	withAuth := middleware.AuthMiddleware(deps.Auth)
	withAdmin := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.AdminMiddleware(svc))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /api/start", withAuth(handleStart(svc, l)))
	mux.Handle("GET /api/balance", withAuth(handleBalance(svc, l)))
	mux.Handle("GET /api/stats", withAuth(handleStats(svc, l)))
	mux.Handle("GET /api/leaderboard", withAuth(handleLeaderboard(svc)))
	mux.Handle("GET /api/rates", withAuth(handleRates(svc)))
	mux.Handle("GET /api/referral-link", withAuth(handleReferralLink(svc)))
	mux.Handle("POST /api/bonus/claim", withAuth(handleClaimBonus(svc, l)))
	mux.Handle("POST /api/codes/redeem", withAuth(handleRedeemCode(svc, l)))

	mux.Handle("GET /api/withdrawals", withAuth(handleListWithdrawals(svc)))
	mux.Handle("GET /api/withdrawals/state", withAuth(handleFlowState(svc)))
	mux.Handle("POST /api/withdrawals/begin", withAuth(handleFlowStep(svc, svc.OnBeginWithdrawal, l)))
	mux.Handle("POST /api/withdrawals/upi", withAuth(handleFlowStep(svc, svc.OnBeginUpi, l)))
	mux.Handle("POST /api/withdrawals/code", withAuth(handleFlowStep(svc, svc.OnBeginCodeWithdrawal, l)))
	mux.Handle("POST /api/withdrawals/amount", withAuth(handleChooseAmount(svc, l)))
	mux.Handle("POST /api/withdrawals/submit", withAuth(handleSubmitUpi(svc, l)))
	mux.Handle("POST /api/withdrawals/redeem", withAuth(handleRedeemAtAmount(svc, l)))
	mux.Handle("POST /api/withdrawals/cancel", withAuth(handleCancel(svc)))

	if deps.Journal != nil {
		mux.Handle("GET /api/transactions", withAuth(handleListTransactions(deps.Journal, l)))
	}

	mux.Handle("GET /api/admin/withdrawals", withAdmin(handlePendingWithdrawals(svc, l)))
	mux.Handle("POST /api/admin/withdrawals/{id}/resolve", withAdmin(handleResolveWithdrawal(svc, l)))
	mux.Handle("GET /api/admin/stats", withAdmin(handlePlatformTotals(svc, l)))
	mux.Handle("GET /api/admin/codes", withAdmin(handleCodeCatalog(svc, l)))
	mux.Handle("POST /api/admin/codes", withAdmin(handleAddCode(svc, l)))

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return chain(mux,
		middleware.LoggerMiddleware(l, deps.Metrics),
	)
}

type authService interface {
	// Get request and return account id if it authenticated or error
	AccountFromRequest(r *http.Request) (string, error)
}

type journalReader interface {
	ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error)
}

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
	Withdrawals(accountID string) []models.WithdrawalRequest
	ReferralLink(accountID string) string
	Rates() ledger.Rates
	IsAdmin(accountID string) bool

	PendingWithdrawals(adminID string) ([]models.WithdrawalRequest, error)
	PlatformTotals(adminID string) (models.PlatformTotals, error)
	ResolveWithdrawal(adminID string, requestID string, status string, note string) (models.WithdrawalRequest, error)
	AddCode(adminID string, code string, value models.Amount) (models.CatalogEntry, error)
	CodeCatalog(adminID string) ([]models.CatalogEntry, error)
}
