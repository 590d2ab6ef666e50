package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"plugin/backend/libs/db"
	libredis "plugin/backend/libs/redis"
	"plugin/backend/services/marketplace/internal/auth"
	"plugin/backend/services/marketplace/internal/booking"
	"plugin/backend/services/marketplace/internal/charger"
	appconfig "plugin/backend/services/marketplace/internal/config"
	httpserver "plugin/backend/services/marketplace/internal/http"
	"plugin/backend/services/marketplace/internal/http/handlers"
	"plugin/backend/services/marketplace/internal/http/middleware"
	"plugin/backend/services/marketplace/internal/ledger"
	"plugin/backend/services/marketplace/internal/metrics"
	"plugin/backend/services/marketplace/internal/o11y"
	"plugin/backend/services/marketplace/internal/repository"
	"plugin/backend/services/marketplace/internal/store"
	"plugin/backend/services/marketplace/internal/store/memory"
	"plugin/backend/services/marketplace/internal/store/postgres"
	"plugin/backend/services/marketplace/internal/store/redisfeed"
	"plugin/backend/services/marketplace/internal/ws"
)

const (
	serviceName       = "marketplace"
	rateLimiterIdle   = 10 * time.Minute
	tracingFlushLimit = 5 * time.Second
)

// App wires dependencies for the marketplace service.
type App struct {
	server  *httpserver.Server
	manager *ws.Manager
	runners []func(context.Context) error
	closers []func()

	db              *sqlx.DB
	redis           *goredis.Client
	shutdownTracing func(context.Context) error
	logger          *zap.Logger
}

// New builds application graph.
func New(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	shutdown, err := o11y.SetupTracing(ctx, o11y.TracingOptions{
		ServiceName: serviceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("app: tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	docs, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	users := repository.NewUserRepository(docs)
	chargers := repository.NewChargerRepository(docs)
	bookings := repository.NewBookingRepository(docs)
	credentials := repository.NewCredentialRepository(docs)

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWTExpiration())
	credits := ledger.NewCoordinator(users, bookings, logger, m)
	authSvc := auth.NewService(credentials, users, auth.NewBcryptHasher(0), tokens, logger)
	chargerSvc := charger.NewService(chargers, users, loc, logger)
	bookingSvc := booking.NewService(bookings, chargers, credits, logger,
		booking.WithLocation(loc),
		booking.WithMetrics(m),
	)

	a.manager = ws.NewManager()
	realtime := ws.NewServer(a.manager, tokens, ws.SessionDeps{
		Bookings: bookings,
		Chargers: chargers,
		Ledger:   credits,
		Location: loc,
		Logger:   logger,
	}, m, cfg.Realtime.WriteTimeout, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandlers:    handlers.NewAuthHandlers(authSvc, logger),
		ChargerHandlers: handlers.NewChargerHandlers(chargerSvc, logger),
		BookingHandlers: handlers.NewBookingHandlers(bookingSvc, bookings, cfg.Realtime.AwaitTimeout, logger),
		CreditHandlers:  handlers.NewCreditHandlers(credits, logger),
		HealthHandler:   handlers.NewHealthHandler(),
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Realtime:        realtime,
	}, middleware.AuthMiddleware(tokens))

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst, rateLimiterIdle)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger,
		middleware.Recoverer(logger),
		middleware.Tracing(),
		middleware.Metrics(m),
		middleware.RateLimit(limiter),
	)

	logger.Info("marketplace wired",
		zap.String("store", cfg.Store.Driver),
		zap.String("feed", cfg.Feed.Driver),
		zap.String("timezone", loc.String()),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *appconfig.Config) (store.Store, error) {
	if cfg.Store.Driver == appconfig.StoreMemory {
		s := memory.New(a.logger)
		a.closers = append(a.closers, s.Close)
		return s, nil
	}

	sqlDB, err := db.NewPostgresDB(ctx, cfg.Database.DSN, db.PoolOptions{MaxOpenConns: cfg.Database.MaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("app: postgres: %w", err)
	}
	a.db = sqlDB

	var feed store.Feed
	switch cfg.Feed.Driver {
	case appconfig.FeedPostgres:
		feed = postgres.NewNotifyFeed(sqlDB, cfg.Feed.Channel, a.logger)
	case appconfig.FeedRedis:
		client, err := libredis.NewRedisClient(ctx, libredis.Options{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			ClientName:      cfg.Redis.ClientName,
			MaxRetries:      cfg.Redis.MaxRetries,
			PoolSize:        cfg.Redis.PoolSize,
			ConnMaxIdleTime: cfg.Redis.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		a.redis = client
		feed = redisfeed.New(client, cfg.Feed.Channel, a.logger)
	}

	s := postgres.New(sqlDB, feed, a.logger)
	a.runners = append(a.runners, s.Run)
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// Handler exposes the HTTP handler chain.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves HTTP traffic, realtime sessions and the change feed until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.manager.Run(ctx) })
	for _, run := range a.runners {
		g.Go(func() error {
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases acquired resources.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracingFlushLimit)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
	}
}
