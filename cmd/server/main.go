package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bizreg/internal/app"
	companyhandler "bizreg/internal/company/handler"
	companymetrics "bizreg/internal/company/metrics"
	"bizreg/internal/company/search"
	"bizreg/internal/enrichment"
	"bizreg/internal/enrichment/cache"
	enrichmetrics "bizreg/internal/enrichment/metrics"
	enrichModels "bizreg/internal/enrichment/models"
	"bizreg/internal/enrichment/providers"
	importhandler "bizreg/internal/importer/handler"
	importmetrics "bizreg/internal/importer/metrics"
	importmodels "bizreg/internal/importer/models"
	"bizreg/internal/importer/service"
	jwttoken "bizreg/internal/jwt_token"
	"bizreg/internal/platform/config"
	"bizreg/internal/platform/httpserver"
	"bizreg/internal/platform/logger"
	"bizreg/internal/platform/metrics"
	"bizreg/internal/platform/middleware"
	"bizreg/internal/platform/redis"
	rlmetrics "bizreg/internal/ratelimit/metrics"
	rlmiddleware "bizreg/internal/ratelimit/middleware"
	rlModels "bizreg/internal/ratelimit/models"
	"bizreg/internal/ratelimit/store/bucket"
	"bizreg/pkg/platform/circuit"
	"bizreg/pkg/platform/httputil"
	"bizreg/pkg/platform/middleware/admin"
	"bizreg/pkg/platform/middleware/metadata"
	"bizreg/pkg/platform/middleware/request"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	stores, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	pub := app.Events(ctx, cfg.Kafka, log)
	defer pub.Close()

	httpMetrics := metrics.New()
	engine := search.New(stores.Companies,
		search.WithThreshold(cfg.Search.SimilarityThreshold),
		search.WithLogger(log),
		search.WithMetrics(companymetrics.New()),
	)
	enricher := newEnricher(cfg.Enrichment, rdb, log)

	router := chi.NewRouter()
	router.Use(request.RequestID)
	router.Use(middleware.Recovery(log, httpMetrics))
	router.Use(middleware.Logger(log))
	router.Use(chimw.RealIP)
	router.Use(metadata.ClientMetadata)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", readiness(stores, rdb, pub))

	limiter := newLimiter(ctx, cfg.RateLimit, rdb, log)
	companyhandler.New(engine, enricher, log, httpMetrics, companyhandler.WithLimiter(limiter)).Register(router)

	opener, err := app.Opener(cfg.Import, "")
	if err != nil {
		log.Warn("imports disabled", "error", err)
	} else {
		pipeline, err := app.NewPipeline(cfg.Import, stores, opener, pub, log, importmetrics.New(),
			service.WithPublishHook(func(ctx context.Context, _ importmodels.Result) error {
				return enricher.Purge(ctx)
			}),
		)
		if err != nil {
			return err
		}
		defer pipeline.Wait()

		var tokens admin.TokenValidator
		if cfg.Admin.JWTKey != "" {
			tokens = jwttoken.NewJWTService(cfg.Admin.JWTKey, "bizreg")
		}
		if cfg.Admin.Token == "" && tokens == nil {
			log.Warn("no admin credentials configured, import trigger is unreachable")
		}
		guard := admin.RequireAdmin(cfg.Admin.Token, tokens, jwttoken.ScopeImport, log)
		importhandler.New(pipeline, guard, log, httpMetrics, importhandler.WithAudit(stores.Audit)).Register(router)

		if cfg.Import.Schedule > 0 {
			go pipeline.Schedule(ctx, cfg.Import.Schedule)
		}
	}

	srv := httpserver.New(cfg.Addr, router)
	return httpserver.Run(ctx, srv, log, 10*time.Second)
}

func newEnricher(cfg config.EnrichmentConfig, rdb *redis.Client, log *slog.Logger) *enrichment.Service {
	var (
		details providers.DetailClient
		holders providers.StakeholderClient
	)
	if cfg.DetailURL != "" {
		details = providers.NewDetailClient(cfg.DetailURL, cfg.Timeout,
			providers.WithLogger(log),
			providers.WithBreaker(circuit.New("company-detail")),
		)
	}
	if cfg.StakeholderURL != "" {
		holders = providers.NewStakeholderClient(cfg.StakeholderURL, cfg.Timeout,
			providers.WithLogger(log),
			providers.WithBreaker(circuit.New("company-stakeholders")),
		)
	}

	opts := []enrichment.Option{
		enrichment.WithLogger(log),
		enrichment.WithMetrics(enrichmetrics.New()),
	}
	if rdb != nil {
		opts = append(opts,
			enrichment.WithDetailCache(cache.NewRedis[enrichModels.Detail](rdb.Client, "enrich:detail", cfg.CacheTTL)),
			enrichment.WithStakeholderCache(cache.NewRedis[[]enrichModels.Stakeholder](rdb.Client, "enrich:stakeholders", cfg.CacheTTL)),
		)
	} else {
		opts = append(opts,
			enrichment.WithDetailCache(cache.NewLRU[enrichModels.Detail](cfg.CacheSize, cfg.CacheTTL)),
			enrichment.WithStakeholderCache(cache.NewLRU[[]enrichModels.Stakeholder](cfg.CacheSize, cfg.CacheTTL)),
		)
	}
	return enrichment.New(details, holders, opts...)
}

func newLimiter(ctx context.Context, cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger) *rlmiddleware.Middleware {
	var store rlmiddleware.BucketStore
	if rdb != nil {
		store = bucket.NewRedisBucketStore(rdb.Client)
	} else {
		mem := bucket.NewInMemoryBucketStore()
		go mem.SweepEvery(ctx, time.Minute)
		store = mem
	}
	return rlmiddleware.New(store, rlModels.PerMinute(cfg.SearchPerMinute, cfg.ReadPerMinute), log,
		rlmiddleware.WithDisabled(cfg.Disabled),
		rlmiddleware.WithMetrics(rlmetrics.New()),
	)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func readiness(stores *app.Stores, rdb *redis.Client, pub any) http.HandlerFunc {
	checks := map[string]healthChecker{"database": stores}
	if rdb != nil {
		checks["redis"] = rdb
	}
	if hc, ok := pub.(healthChecker); ok {
		checks["kafka"] = hc
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		var failed error
		for name, c := range checks {
			if err := c.Health(ctx); err != nil {
				status[name] = err.Error()
				failed = errors.Join(failed, err)
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if failed != nil {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	}
}
