// Package app assembles the import pipeline and its stores from configuration.
// Both the HTTP server and the importer CLI build their dependencies here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bizreg/internal/company/search"
	"bizreg/internal/company/store"
	"bizreg/internal/company/store/memory"
	"bizreg/internal/company/store/postgres"
	"bizreg/internal/importer/dump"
	"bizreg/internal/importer/events"
	"bizreg/internal/importer/metrics"
	"bizreg/internal/importer/publisher"
	"bizreg/internal/importer/resolver"
	"bizreg/internal/importer/service"
	"bizreg/internal/importer/source"
	"bizreg/internal/importer/staging"
	"bizreg/internal/platform/config"
	"bizreg/pkg/platform/audit"
	auditmemory "bizreg/pkg/platform/audit/store/memory"
	auditpostgres "bizreg/pkg/platform/audit/store/postgres"
)

// CompanyStore is a generation store that can also answer queries.
type CompanyStore interface {
	store.GenerationStore
	search.Backend
}

// Stores holds the company, staging and audit stores of one backend.
type Stores struct {
	DB        *sql.DB
	Companies CompanyStore
	Staging   staging.Store
	Audit     audit.Store
}

// OpenStores connects to PostgreSQL when a URL is configured and falls back
// to in-memory stores otherwise.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Stores, error) {
	if cfg.URL == "" {
		logger.Info("no database configured, using in-memory stores")
		return &Stores{
			Companies: memory.New(),
			Staging:   staging.NewMemoryStore(),
			Audit:     auditmemory.NewInMemoryStore(),
		}, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	auditStore := auditpostgres.New(db)
	if err := auditStore.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("connected to postgres")
	return &Stores{
		DB:        db,
		Companies: postgres.New(db),
		Staging:   staging.NewPostgresStore(db),
		Audit:     auditStore,
	}, nil
}

// Health checks the database connection, if any.
func (s *Stores) Health(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}

// Close releases the database connection, if any.
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Opener picks the dump source: a local path wins over the configured URL.
func Opener(cfg config.ImportConfig, path string) (source.Opener, error) {
	switch {
	case path != "":
		return source.FileOpener{Path: path}, nil
	case cfg.DumpURL != "":
		return source.NewHTTPOpener(cfg.DumpURL, cfg.DownloadTimeout), nil
	}
	return nil, errors.New("no dump source: set DUMP_URL or pass a file")
}

// Events connects the Kafka publisher when brokers are configured. A broker
// failure at startup degrades to logging instead of failing the process.
func Events(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.NewLogPublisher(logger)
	}
	pub, err := events.NewKafkaPublisher(ctx, cfg.Brokers, cfg.Topic)
	if err != nil {
		logger.Warn("kafka unavailable, import events will only be logged", "error", err)
		return events.NewLogPublisher(logger)
	}
	return pub
}

// NewPipeline wires loader, resolver and publisher over st.
// Extra options are applied after the defaults.
func NewPipeline(cfg config.ImportConfig, st *Stores, opener source.Opener, pub events.Publisher, logger *slog.Logger, m *metrics.Metrics, opts ...service.Option) (*service.Pipeline, error) {
	layout := dump.DefaultLayout()
	if cfg.LayoutFile != "" {
		l, err := dump.LoadLayout(cfg.LayoutFile)
		if err != nil {
			return nil, err
		}
		layout = l
	}

	loader := staging.NewLoader(st.Staging, cfg.BatchSize, logger, m)
	res := resolver.New(cfg.BatchSize, cfg.Country, logger)
	publish := publisher.New(st.Companies, logger, m)

	base := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithEvents(pub),
		service.WithLayout(layout),
	}
	return service.New(opener, loader, res, publish, append(base, opts...)...), nil
}
