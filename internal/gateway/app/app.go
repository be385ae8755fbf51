package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"biosecure/internal/casefile"
	"biosecure/internal/dispatch"
	"biosecure/internal/extract"
	"biosecure/internal/gateway/config"
	"biosecure/internal/gateway/handler"
	"biosecure/internal/gateway/handler/rpc"
	"biosecure/internal/gateway/server"
	"biosecure/internal/logging"
	"biosecure/internal/notify"
	"biosecure/internal/pipeline"
	"biosecure/internal/report"
	"biosecure/internal/stage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the composition root: every backend, the pipeline, the dispatcher
// and the HTTP surface built from one Config.
type App struct {
	cfg        *config.Config
	registry   *prometheus.Registry
	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Orchestrator
	classifier extract.Classifier
	handler    http.Handler
	server     *server.Server
	closers    []io.Closer
	log        *slog.Logger
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		log:      logging.New("app"),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	policy, err := extract.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	a.classifier = extract.NewTableClassifier(policy.Threats)

	// Dependencies
	models, err := a.initModels(ctx)
	if err != nil {
		return err
	}
	buckets, err := a.initBuckets(ctx)
	if err != nil {
		return err
	}
	forecasts, err := a.initWeather(ctx)
	if err != nil {
		return err
	}
	archiveStore, err := a.initArchive(ctx)
	if err != nil {
		return err
	}
	geocoder := a.initGeocoder()

	renderer, err := report.NewRenderer(report.DefaultReferences)
	if err != nil {
		return fmt.Errorf("failed to build report renderer: %w", err)
	}
	var notifier notify.Notifier = notify.Nop{}
	if len(cfg.NotifyRecipients) > 0 {
		notifier = notify.LogNotifier{Recipients: cfg.NotifyRecipients, Logger: logging.New("notify")}
	}

	// Pipeline
	a.pipeline = pipeline.Default(
		&stage.Identification{LLM: models.identify, Log: logging.New(stage.NameIdentification)},
		&stage.ThreatAnalysis{LLM: models.summary, Classifier: a.classifier, Log: logging.New(stage.NameThreatAnalysis)},
		&stage.RiskAssessment{LLM: models.risk, Weather: forecasts, Policy: policy, Log: logging.New(stage.NameRiskAssessment)},
		&stage.Reporting{
			Renderer:  renderer,
			Publisher: buckets.publisher,
			Images:    buckets.linker,
			Notifier:  notifier,
			Log:       logging.New(stage.NameReporting),
		},
		pipeline.WithStageTimeout(cfg.StageTimeout),
		pipeline.WithMetrics(pipeline.NewMetrics(a.registry)),
		pipeline.WithLogger(logging.New("pipeline")),
	)

	a.dispatcher = dispatch.New(dispatch.Deps{
		Sessions: casefile.NewSessions(cfg.MaxSessions, cfg.SessionTTL),
		Images:   buckets.images,
		Geocoder: geocoder,
		Runner:   a.pipeline,
		Archive:  archiveStore,
		Log:      logging.New("dispatch"),
	})

	// Routing & Server
	caseHandler := rpc.NewCaseHandler(a.dispatcher)
	chatHandler := rpc.NewChatHandler(a.dispatcher, logging.New("chat"))
	debugHandler := handler.NewDebugHandler(a.dispatcher, a.pipeline.Stages())
	a.handler = server.NewMux(caseHandler, chatHandler, debugHandler, a.registry)
	a.server = server.New(cfg.Port, a.handler, logging.New("server"))
	return nil
}

func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }
func (a *App) Pipeline() *pipeline.Orchestrator { return a.pipeline }
func (a *App) Classifier() extract.Classifier   { return a.classifier }
func (a *App) Handler() http.Handler            { return a.handler }
func (a *App) Registry() *prometheus.Registry   { return a.registry }
func (a *App) Server() *server.Server           { return a.server }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Close releases backend clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(c io.Closer) {
	a.closers = append(a.closers, c)
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
