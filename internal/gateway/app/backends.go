package app

import (
	"context"
	"fmt"
	"time"

	"biosecure/internal/archive"
	"biosecure/internal/geocode"
	"biosecure/internal/llm"
	"biosecure/internal/logging"
	"biosecure/internal/storage"
	"biosecure/internal/weather"
)

type models struct {
	identify llm.Generator
	summary  llm.Generator
	risk     llm.Generator
}

func (a *App) initModels(ctx context.Context) (models, error) {
	if a.cfg.Offline {
		g := a.wrapModel(offlineModel())
		return models{identify: g, summary: g, risk: g}, nil
	}
	build := func(model string) (llm.Generator, error) {
		cli, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			Project:  a.cfg.Google.Project,
			Location: a.cfg.Google.Location,
			APIKey:   a.cfg.Google.GeminiAPIKey,
			Model:    model,
		})
		if err != nil {
			return nil, err
		}
		g := a.wrapModel(cli)
		a.onClose(g)
		return g, nil
	}
	var (
		out models
		err error
	)
	if out.identify, err = build(a.cfg.Models.Identify); err != nil {
		return out, err
	}
	if out.summary, err = build(a.cfg.Models.Summary); err != nil {
		return out, err
	}
	if out.risk, err = build(a.cfg.Models.Risk); err != nil {
		return out, err
	}
	return out, nil
}

// wrapModel layers logging outermost so the log sees retries and throttling
// as one call.
func (a *App) wrapModel(g llm.Generator) llm.Generator {
	return llm.Wrap(g,
		llm.WithLogging(logging.New("llm")),
		llm.Retry(a.cfg.LLM.MaxAttempts, 500*time.Millisecond),
		llm.RateLimit(a.cfg.LLM.RPS, a.cfg.LLM.Burst),
		llm.Timeout(a.cfg.LLM.Timeout),
	)
}

type buckets struct {
	images    *storage.ImageResolver
	publisher *storage.Publisher
	linker    *storage.Linker
}

func (a *App) initBuckets(ctx context.Context) (buckets, error) {
	sc := a.cfg.Storage
	backend := sc.Backend
	if a.cfg.Offline {
		backend = "memory"
	}

	open := func(name string) (storage.Bucket, error) {
		switch backend {
		case "memory":
			return storage.NewMemoryBucket(name, sc.PublicBaseURL), nil
		case "s3":
			return storage.NewS3Bucket(storage.S3Config{
				Endpoint:      sc.S3.Endpoint,
				Region:        sc.S3.Region,
				AccessKey:     sc.S3.AccessKey,
				SecretKey:     sc.S3.SecretKey,
				Bucket:        name,
				UseSSL:        sc.S3.UseSSL,
				PublicBaseURL: sc.PublicBaseURL,
			})
		case "gcs":
			b, err := storage.NewGCSBucket(ctx, name, sc.PublicBaseURL)
			if err != nil {
				return nil, err
			}
			a.onClose(b)
			return b, nil
		}
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}

	imageBucket, err := open(sc.ImageBucket)
	if err != nil {
		return buckets{}, fmt.Errorf("failed to open image bucket: %w", err)
	}
	reportBucket := imageBucket
	if sc.ReportBucket != sc.ImageBucket {
		if reportBucket, err = open(sc.ReportBucket); err != nil {
			return buckets{}, fmt.Errorf("failed to open report bucket: %w", err)
		}
	}
	if mem, ok := imageBucket.(*storage.MemoryBucket); ok && a.cfg.Offline {
		if err := seedOfflineImage(ctx, mem, sc.ImageObject); err != nil {
			return buckets{}, err
		}
	}
	a.log.Info("storage.ready", "backend", backend, "image_bucket", imageBucket.Name(), "report_bucket", reportBucket.Name())

	return buckets{
		images:    storage.NewImageResolver(imageBucket, sc.ImageObject),
		publisher: storage.NewPublisher(reportBucket),
		linker:    storage.NewLinker(imageBucket, reportBucket),
	}, nil
}

func (a *App) initWeather(ctx context.Context) (weather.Source, error) {
	wc := a.cfg.Weather
	backend := wc.Backend
	if a.cfg.Offline {
		backend = "static"
	}
	switch backend {
	case "bigquery":
		src, err := weather.NewBigQuerySource(ctx, a.cfg.Google.Project, wc.BigQueryTable)
		if err != nil {
			return nil, fmt.Errorf("failed to open bigquery weather source: %w", err)
		}
		a.onClose(src)
		return src, nil
	case "postgres":
		src, err := weather.NewPostgresSource(ctx, wc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres weather source: %w", err)
		}
		a.onClose(closerFunc(src.Close))
		return src, nil
	case "static":
		return offlineForecasts(), nil
	}
	return nil, fmt.Errorf("unknown weather backend %q", backend)
}

// initArchive uses Postgres when a DSN is configured and memory otherwise.
func (a *App) initArchive(ctx context.Context) (archive.Store, error) {
	dsn := a.cfg.ArchiveDSN
	if dsn == "" || a.cfg.Offline {
		a.log.Info("archive.ready", "backend", "memory")
		return archive.NewMemoryStore(), nil
	}
	store, err := archive.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open case archive: %w", err)
	}
	a.onClose(store)
	a.log.Info("archive.ready", "backend", "postgres")
	return store, nil
}

func (a *App) initGeocoder() geocode.Geocoder {
	if a.cfg.Offline {
		return fixedGeocoder{}
	}
	return geocode.NewCached(geocode.NewClient(a.cfg.Google.MapsAPIKey), geocode.DefaultCacheConfig())
}
