package main

import (
	"context"
	"fmt"
	"log/slog"

	"centris_importer/config"
	"centris_importer/events"
	"centris_importer/httputil"
	"centris_importer/scraper"
	"centris_importer/services"
	"centris_importer/storage"
	"centris_importer/workers"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	clients   *httputil.Clients
	runs      *storage.RunLog
	publisher events.Publisher
	importer  *services.ImportService
	closers   []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		clients: httputil.NewClients(&cfg.Proxy, cfg.Importer.FetchTimeout),
	}
	if cfg.Proxy.URL != "" {
		logger.Info("using proxy for source traffic")
	}

	runs, err := storage.NewRunLog(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	a.runs = runs
	a.closers = append(a.closers, func() { runs.Close() })
	logger.Info("run log ready", "path", cfg.DBPath)

	objects, err := a.objectStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	listings, err := a.listingStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.publisher = events.Noop{}
	if cfg.AMQP.URL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQP, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
		a.closers = append(a.closers, func() { pub.Close() })
		logger.Info("publishing listing events", "exchange", cfg.AMQP.Exchange)
	}

	src := cfg.Source
	a.importer = services.NewImportService(services.ImportDeps{
		SourceID:   src.ID,
		Validator:  scraper.NewValidator(src.DomainMarker),
		Fetcher:    scraper.NewFetcher(a.clients.Scraping, src.SiteURL, cfg.Importer.FetchTimeout, cfg.Importer.MinBodyLength, logger),
		Normalizer: scraper.NewNormalizer(src),
		Preset:     scraper.ParsePreset(cfg.Importer.ImagePreset),
		Images:     workers.NewMaterializer(a.clients.Scraping, objects, src.SiteURL, cfg.Importer.ImageWorkers, cfg.Importer.ImageTimeout, logger),
		Listings:   listings,
		Publisher:  a.publisher,
		Runs:       runs,
		Logger:     logger,
	})
	return a, nil
}

func (a *app) objectStore(ctx context.Context) (storage.ObjectStore, error) {
	switch a.cfg.ObjectStore {
	case "s3":
		s3, err := storage.NewS3Uploader(ctx, a.cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 object store: %w", err)
		}
		a.logger.Info("object store: s3", "bucket", a.cfg.S3.Bucket)
		return s3, nil
	case "supabase", "":
		if a.cfg.Supabase.URL == "" || a.cfg.Supabase.ServiceKey == "" {
			return nil, fmt.Errorf("supabase object store: SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
		}
		a.logger.Info("object store: supabase", "bucket", a.cfg.Supabase.Bucket)
		return storage.NewSupabaseStorage(&a.cfg.Supabase, a.clients.API), nil
	default:
		return nil, fmt.Errorf("unknown OBJECT_STORE %q", a.cfg.ObjectStore)
	}
}

func (a *app) listingStore(ctx context.Context) (storage.ListingStore, error) {
	switch a.cfg.ListingStore {
	case "postgres":
		pg, err := storage.NewPostgresStore(ctx, a.cfg.Supabase.DBURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.logger.Info("listing store: postgres", "db", maskConnectionString(a.cfg.Supabase.DBURL))
		return pg, nil
	case "supabase", "":
		if a.cfg.Supabase.URL == "" || a.cfg.Supabase.ServiceKey == "" {
			return nil, fmt.Errorf("supabase listing store: SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
		}
		a.logger.Info("listing store: supabase")
		return storage.NewSupabaseStore(&a.cfg.Supabase, a.clients.API), nil
	default:
		return nil, fmt.Errorf("unknown LISTING_STORE %q", a.cfg.ListingStore)
	}
}

func (a *app) authenticator() services.Authenticator {
	if !a.cfg.Server.RequireAuth {
		a.logger.Warn("authentication disabled, trusting X-User-ID header")
		return nil
	}
	return services.NewSupabaseAuth(&a.cfg.Supabase, a.clients.API)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
