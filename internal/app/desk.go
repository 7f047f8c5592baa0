package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/activity"
	"github.com/tatkal-desk/tatkal/internal/auth"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/dashboard"
	"github.com/tatkal-desk/tatkal/internal/i18n"
	"github.com/tatkal-desk/tatkal/internal/live"
	"github.com/tatkal-desk/tatkal/internal/observability"
	"github.com/tatkal-desk/tatkal/internal/registration"
	"github.com/tatkal-desk/tatkal/internal/reports"
	"github.com/tatkal-desk/tatkal/internal/seed"
	"github.com/tatkal-desk/tatkal/internal/shared"
	"github.com/tatkal-desk/tatkal/internal/tokens"
	tokenshttp "github.com/tatkal-desk/tatkal/internal/tokens/http"
	"github.com/tatkal-desk/tatkal/jobs"
	"github.com/tatkal-desk/tatkal/web"
)

// Notifier queues passenger OTPs and confirmation slips.
type Notifier interface {
	SendOTP(ctx context.Context, mobile, purpose string) error
	NotifyConfirmation(ctx context.Context, reference, mobile, slip string) error
}

// DeskParams are the external resources the desk runs on.
type DeskParams struct {
	Config    *Config
	Logger    *slog.Logger
	Redis     *redis.Client
	Clock     *clock.Clock
	Seed      seed.Data
	Notifier  Notifier
	Inspector *asynq.Inspector
}

// Desk is the assembled application.
type Desk struct {
	Router   http.Handler
	Hub      *live.Hub
	Tokens   *tokens.Service
	State    *registration.State
	Activity *activity.Log
	Metrics  *observability.Metrics

	clock  *clock.Clock
	logger *slog.Logger
}

// NewDesk wires repositories, services and handlers.
func NewDesk(p DeskParams) (*Desk, error) {
	if p.Config == nil || p.Redis == nil {
		return nil, errors.New("app: config and redis are required")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New(p.Config.Location())
	}

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(p.Redis, p.Config.SessionCookie, p.Config.SessionTTL, p.Config.IsProduction())
	csrfManager := shared.NewCSRFManager(p.Config.CSRFSecret)
	idempotency := shared.NewIdempotencyStore(p.Redis, p.Config.IdempotencyTTL)
	mw := access.Middleware{Logger: logger}

	activityLog := activity.NewLog()
	activityLog.WithNow(clk.Now)
	activityLog.Seed(p.Seed.Activity)

	var sender auth.OTPSender
	var notifier tokens.Notifier
	if p.Notifier != nil {
		sender = p.Notifier
		notifier = p.Notifier
	}

	adminRepo, err := auth.NewMemoryRepository(p.Seed.Admins, p.Config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("app: admin accounts: %w", err)
	}
	authService := auth.NewService(adminRepo, p.Config.DemoOTP, sender, activityLog, metrics)

	hub := live.NewHub(logger, metrics)
	state := registration.NewState()
	tokenService := tokens.NewService(tokens.Deps{
		Repo:     tokens.NewMemoryRepository(p.Seed.Tokens, p.Seed.Cancelled),
		State:    state,
		Clock:    clk,
		OTP:      authService,
		Notifier: notifier,
		Events:   hub,
		Activity: activityLog,
		Metrics:  metrics,
		Logger:   logger,
	})

	catalog, err := i18n.Load(web.I18n, "i18n/messages.yaml")
	if err != nil {
		return nil, err
	}

	var jobHandler *jobs.Handler
	if p.Inspector != nil {
		jobHandler = jobs.NewHandler(p.Inspector, logger)
	}

	router := NewRouter(RouterParams{
		Logger:           logger,
		Config:           p.Config,
		Clock:            clk,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Metrics:          metrics,
		AuthHandler:      auth.NewHandler(logger, authService, sessionManager, csrfManager),
		I18nHandler:      i18n.NewHandler(catalog),
		DashboardHandler: dashboard.NewHandler(logger, dashboard.NewService(clk, state, tokenService), mw),
		TokensHandler:    tokenshttp.NewHandler(logger, tokenService, idempotency, mw),
		LiveHandler:      live.NewHandler(logger, hub, clk, mw),
		ReportsHandler:   reports.NewHandler(logger, reports.NewCatalog(p.Seed.Reports), clk.Now, mw),
		ActivityHandler:  activity.NewHandler(logger, activityLog, mw),
		JobHandler:       jobHandler,
	})

	return &Desk{
		Router:   router,
		Hub:      hub,
		Tokens:   tokenService,
		State:    state,
		Activity: activityLog,
		Metrics:  metrics,
		clock:    clk,
		logger:   logger,
	}, nil
}

var allPhases = []string{
	string(clock.RegistrationOpen),
	string(clock.PendingListGeneration),
	string(clock.ListAvailable),
}

type phaseChange struct {
	From clock.Phase    `json:"from"`
	To   clock.Phase    `json:"to"`
	At   clock.Snapshot `json:"clock"`
}

// Ticker returns the one-second clock loop that feeds the live hub, keeps
// the phase gauge current and resets the day when registration opens.
func (d *Desk) Ticker() *clock.Ticker {
	d.Metrics.SetPhase(string(d.clock.Phase()), allPhases...)
	return &clock.Ticker{
		Clock:  d.clock,
		Logger: d.logger,
		OnTick: func(snap clock.Snapshot) {
			d.Hub.Publish(live.TypeClock, snap)
		},
		OnTransition: d.onTransition,
	}
}

func (d *Desk) onTransition(from, to clock.Phase, snap clock.Snapshot) {
	d.Metrics.SetPhase(string(to), allPhases...)
	if to == clock.RegistrationOpen {
		if err := d.Tokens.ResetForNewDay(context.Background()); err != nil {
			d.logger.Error("daily reset", slog.Any("error", err))
		}
	}
	d.Hub.Publish(live.TypePhase, phaseChange{From: from, To: to, At: snap})
}
