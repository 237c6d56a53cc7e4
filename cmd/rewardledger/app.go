package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nkiryanov/rewardledger/internal/clock"
	"github.com/nkiryanov/rewardledger/internal/db"
	"github.com/nkiryanov/rewardledger/internal/dispatch"
	"github.com/nkiryanov/rewardledger/internal/events"
	"github.com/nkiryanov/rewardledger/internal/events/natsbus"
	"github.com/nkiryanov/rewardledger/internal/handlers"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/repository/postgres"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/auth"
	"github.com/nkiryanov/rewardledger/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/rewardledger/internal/service/bonus"
	"github.com/nkiryanov/rewardledger/internal/service/coderegistry"
	"github.com/nkiryanov/rewardledger/internal/service/ledger"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
	"github.com/nkiryanov/rewardledger/internal/transport/telegram"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
)

// runner is a background component stopped by ctx cancellation
type runner func(ctx context.Context) <-chan struct{}

type App struct {
	ListenAddr string
	Handler    http.Handler

	logger     logger.Logger
	runners    []runner
	subscriber *natsbus.Subscriber
	closers    []func()
}

func NewApp(ctx context.Context, c *Config) (app *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app = &App{ListenAddr: c.ListenAddr, logger: l}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Every committed event reaches metrics and the optional journal and bus
	sinks := events.Fanout{m}

	var journal repository.JournalRepo
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db: %w", err)
		}
		app.closers = append(app.closers, pool.Close)

		storage := postgres.NewStorage(pool)
		journal = storage.Journal()

		// One worker keeps journal rows in commit order
		journalSink := events.NewAsyncSink("journal", repository.NewJournalWriter(storage, l), dispatch.Options{Workers: 1}, m, l)
		sinks = append(sinks, journalSink)
		app.runners = append(app.runners, journalSink.Run)
	}

	var js jetstream.JetStream
	if c.NatsURL != "" {
		nc, stream, err := natsbus.Connect(c.NatsURL, l)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { drain(nc, l) })

		if err := natsbus.EnsureStreams(ctx, stream, c.NatsPrefix); err != nil {
			return nil, err
		}
		js = stream

		busSink := events.NewAsyncSink("nats", natsbus.NewPublisher(stream, c.NatsPrefix), dispatch.Options{}, m, l)
		sinks = append(sinks, busSink)
		app.runners = append(app.runners, busSink.Run)
	}

	// Initialize ledger components
	clk := clock.Real{}
	store := account.NewStore(clk, sinks, l)
	codes, err := coderegistry.New(c.RedeemCodes)
	if err != nil {
		return nil, fmt.Errorf("error while loading redeem codes: %w", err)
	}
	workflow := withdrawal.New(store, codes, withdrawal.Config{
		MinWithdrawal: c.MinWithdrawal,
		FlowTTL:       c.FlowTTL,
	}, clk, sinks, m, l)
	app.runners = append(app.runners, func(ctx context.Context) <-chan struct{} {
		return workflow.RunSweeper(ctx, sweepInterval)
	})

	deps := ledger.Deps{
		Accounts:    store,
		Codes:       codes,
		Bonus:       bonus.NewScheduler(store, bonus.Config{Amount: c.DailyBonus}),
		Withdrawals: workflow,
		Admins:      ledger.NewStaticAdmins(c.AdminIDs...),
		Clock:       clk,
		Metrics:     m,
		Logger:      l,
	}
	botUsername := c.BotUsername

	var tg *telegram.Client
	if c.TelegramToken != "" {
		tg, err = telegram.NewClient(telegram.Config{Token: c.TelegramToken, Channels: c.TelegramChannels}, l)
		if err != nil {
			return nil, err
		}
		deps.Oracle = tg
		deps.Notifier = tg
		if botUsername == "" {
			botUsername = tg.Username()
		}
	}

	svc := ledger.NewService(ledger.Config{
		ReferralBonus: c.ReferralBonus,
		BotUsername:   botUsername,
	}, deps)
	app.runners = append(app.runners, svc.Run)

	if tg != nil {
		app.runners = append(app.runners, telegram.NewBot(tg, svc, l).Run)
	}

	if js != nil {
		app.subscriber = natsbus.NewSubscriber(js, c.NatsPrefix, svc, l)
	}

	// Initialize HTTP API
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager: %w", err)
	}

	routerDeps := handlers.Deps{
		Ledger:   svc,
		Auth:     auth.NewAuthService(tokenManager),
		Gatherer: reg,
		Metrics:  m,
		Logger:   l,
	}
	if journal != nil {
		routerDeps.Journal = journal
	}
	app.Handler = handlers.NewRouter(routerDeps)

	return app, nil
}

// Run starts background components and the HTTP server
// Everything stops gracefully on context cancellation
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	stopped := make([]<-chan struct{}, 0, len(a.runners))
	for _, run := range a.runners {
		stopped = append(stopped, run(bgCtx))
	}
	defer func() {
		bgCancel()
		for _, ch := range stopped {
			<-ch
		}
		a.logger.Info("Background components stopped")
	}()

	if a.subscriber != nil {
		if err := a.subscriber.Start(bgCtx); err != nil {
			return err
		}
		defer a.subscriber.Stop()
	}

	err := a.serve(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              a.ListenAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			a.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		a.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	a.logger.Info("Starting server", "address", a.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

// close releases connections in reverse order of opening
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func drain(nc *nats.Conn, l logger.Logger) {
	if err := nc.Drain(); err != nil {
		l.Warn("NATS drain failed", "error", err)
		nc.Close()
	}
}
