package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/costkit/pkg/backend"
	"github.com/dmitrymomot/costkit/pkg/billing"
	"github.com/dmitrymomot/costkit/pkg/config"
	"github.com/dmitrymomot/costkit/pkg/httpserver"
	"github.com/dmitrymomot/costkit/pkg/lock"
	"github.com/dmitrymomot/costkit/pkg/logger"
	"github.com/dmitrymomot/costkit/pkg/onboarding"
	"github.com/dmitrymomot/costkit/pkg/pg"
	"github.com/dmitrymomot/costkit/pkg/redis"
	"github.com/dmitrymomot/costkit/pkg/syncqueue"
	"github.com/dmitrymomot/costkit/pkg/tenant"
)

type appConfig struct {
	Logger     logger.Config
	PG         pg.Config
	Redis      redis.Config
	HTTP       httpserver.Config
	Backend    backend.Config
	Billing    billing.Config
	Onboarding onboarding.Config
	Sweeper    syncqueue.SweeperConfig

	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(cfg.Logger, os.Stderr)
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	provider, err := newBillingProvider(cfg.Billing)
	if err != nil {
		return err
	}

	provisioner, err := backend.New(cfg.Backend)
	if err != nil {
		return err
	}

	tenants := tenant.NewCachedStore(
		tenant.NewPGStore(pool),
		tenant.NewRedisCache(redisClient, cfg.TenantCacheTTL),
	)
	locks := lock.NewManager(lock.NewPGStore(pool), log)
	queue := syncqueue.NewPGStore(pool)
	processor := syncqueue.NewProcessor(queue, provisioner, log)
	svc := onboarding.NewService(cfg.Onboarding, provider, tenants, locks, provisioner, queue, log)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		syncqueue.NewSweeper(processor, cfg.Sweeper, log).Run(sweepCtx)
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Mount("/onboarding", onboarding.Router(svc))
	r.Mount("/ops/syncqueue", syncqueue.Router(queue, processor, cfg.Sweeper.Batch))
	r.Get("/healthz", healthz(pg.Healthcheck(pool), redis.Healthcheck(redisClient)))

	err = httpserver.Run(ctx, cfg.HTTP, r, log)
	stopSweeper()
	wg.Wait()
	return err
}

// newBillingProvider selects the provider implementation; only the chosen
// provider's credentials are required in the environment.
func newBillingProvider(cfg billing.Config) (billing.Provider, error) {
	switch cfg.Provider {
	case "stripe":
		var stripeCfg billing.StripeConfig
		if err := config.Load(&stripeCfg); err != nil {
			return nil, err
		}
		return billing.NewStripeProvider(stripeCfg)
	case "paddle":
		var paddleCfg billing.PaddleConfig
		if err := config.Load(&paddleCfg); err != nil {
			return nil, err
		}
		return billing.NewPaddleProvider(paddleCfg)
	default:
		return nil, fmt.Errorf("%w: %s", billing.ErrUnsupportedProvider, cfg.Provider)
	}
}

func healthz(checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
