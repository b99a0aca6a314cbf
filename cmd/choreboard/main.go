package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/choreboard/choreboard/internal/app"
	"github.com/choreboard/choreboard/internal/auth"
	"github.com/choreboard/choreboard/internal/chores"
	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/kids"
	"github.com/choreboard/choreboard/internal/observability"
	"github.com/choreboard/choreboard/internal/platform/cache"
	"github.com/choreboard/choreboard/internal/platform/db"
	"github.com/choreboard/choreboard/internal/session"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	notifier := session.NewNotifier()
	sessionManager := session.NewManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction(), notifier)

	identityRepo := identity.NewRepository(dbpool)
	identityService := identity.NewService(identityRepo, logger, cfg.VerifyTimeout)

	authRepo := auth.NewRepository(dbpool)
	issuer := session.NewIssuer(sessionManager, cfg.ProofSecret, cfg.ProofTTL, authRepo, logger)

	engine, err := app.NewPolicyEngine(metrics.ObservePolicyDecision)
	if err != nil {
		logger.Error("apply policy migrations", slog.Any("error", err))
		os.Exit(1)
	}

	choresRepo := chores.NewRepository(dbpool)
	choresService := chores.NewService(choresRepo, engine)

	authHandler := auth.NewHandler(logger, identityService, issuer, sessionManager)
	authHandler.LoginObserver = metrics.ObserveLogin
	kidsHandler := kids.NewHandler(logger, identityService, engine)
	choresHandler := chores.NewHandler(logger, choresService)

	guard := &app.Guard{Sessions: sessionManager, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Guard:         guard,
		AuthHandler:   authHandler,
		KidsHandler:   kidsHandler,
		ChoresHandler: choresHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		trackSessions(groupCtx, sessionManager, notifier, metrics, logger)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
}

// trackSessions keeps the active-sessions gauge current. The initial count is
// loaded asynchronously; change notifications observed before that load
// completes are dropped through the gate, otherwise a sign-in landing mid-load
// would be double counted against a snapshot that already includes it.
func trackSessions(ctx context.Context, manager *session.Manager, notifier *session.Notifier, metrics *observability.Metrics, logger *slog.Logger) {
	changes := notifier.Subscribe()
	gate := &session.Gate{}

	count, err := manager.ActiveCount(ctx)
	if err != nil {
		logger.Warn("count sessions", slog.Any("error", err))
		count = 0
	}
	metrics.SetSessionsActive(float64(count))

	// Changes that arrived while the count was loading are already reflected
	// in the snapshot; run them through the still-closed gate so they drop.
drain:
	for {
		select {
		case change := <-changes:
			gate.Admit(change)
		default:
			break drain
		}
	}
	gate.MarkReady()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			if !gate.Admit(change) {
				continue
			}
			switch change.Kind {
			case session.SignedIn:
				metrics.AddSessionsActive(1)
			case session.SignedOut:
				metrics.AddSessionsActive(-1)
			}
		}
	}
}
