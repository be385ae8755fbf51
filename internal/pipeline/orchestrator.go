// Package pipeline runs the investigation stages in their fixed order.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/stage"
)

// Observer is told about stage boundaries. Calls happen on the Run goroutine.
type Observer interface {
	StageStarted(ctx context.Context, caseID, stage string)
	StageFinished(ctx context.Context, caseID, stage string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) StageStarted(context.Context, string, string)                        {}
func (nopObserver) StageFinished(context.Context, string, string, time.Duration, error) {}

type observerKey struct{}

// WithRunObserver attaches an observer to a single Run through ctx, in
// addition to the one configured on the orchestrator.
func WithRunObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

func runObserver(ctx context.Context) Observer {
	if obs, ok := ctx.Value(observerKey{}).(Observer); ok && obs != nil {
		return obs
	}
	return nopObserver{}
}

type Orchestrator struct {
	stages       []stage.Stage
	stageTimeout time.Duration
	observer     Observer
	metrics      *Metrics
	log          *slog.Logger
}

type Option func(*Orchestrator)

// WithStageTimeout bounds each stage. A stage that runs past d fails with
// its own error wrapping context.DeadlineExceeded.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func New(stages []stage.Stage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages:   append([]stage.Stage(nil), stages...),
		observer: nopObserver{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Default wires the investigation order: identification, threat analysis,
// risk assessment, reporting.
func Default(identify, threat, risk, report stage.Stage, opts ...Option) *Orchestrator {
	return New([]stage.Stage{identify, threat, risk, report}, opts...)
}

// Stages lists stage names in run order.
func (o *Orchestrator) Stages() []string {
	out := make([]string, len(o.stages))
	for i, s := range o.stages {
		out[i] = s.Name()
	}
	return out
}

// Run executes every stage against the case committed in sess, committing
// after each success. The first failure stops the run and is returned as is;
// the session keeps the last successful commit.
func (o *Orchestrator) Run(ctx context.Context, sess casefile.Session) (casefile.CaseFile, error) {
	cf, ok := sess.Get()
	if !ok {
		err := common.MissingInput("pipeline", "no case file in session %s", sess.ID())
		o.metrics.observeRun(false)
		return casefile.CaseFile{}, err
	}
	log := o.log.With("case_id", cf.CaseID, "session_id", sess.ID())
	log.InfoContext(ctx, "pipeline.started", "stages", len(o.stages), "status", cf.Status)

	for _, s := range o.stages {
		next, err := o.runStage(ctx, s, cf)
		if err == nil {
			err = sess.Commit(next)
		}
		if err != nil {
			log.WarnContext(ctx, "pipeline.stage.failed", "stage", s.Name(), "err", err)
			o.metrics.observeRun(false)
			return cf, err
		}
		cf = next
	}
	log.InfoContext(ctx, "pipeline.finished", "status", cf.Status, "report_url", cf.ReportURL)
	o.metrics.observeRun(true)
	return cf, nil
}

func (o *Orchestrator) runStage(ctx context.Context, s stage.Stage, cf casefile.CaseFile) (casefile.CaseFile, error) {
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}
	name := s.Name()
	extra := runObserver(ctx)
	o.observer.StageStarted(ctx, cf.CaseID, name)
	extra.StageStarted(ctx, cf.CaseID, name)
	start := time.Now()

	next, err := s.Run(ctx, cf)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if _, isCase := common.KindOf(err); err != nil && !isCase {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			err = common.ExternalService(name, "stage timed out", err)
		case errors.Is(err, context.Canceled):
			err = common.ExternalService(name, "stage cancelled", err)
		}
	}

	elapsed := time.Since(start)
	kind, _ := common.KindOf(err)
	o.metrics.observeStage(name, elapsed, string(kind), err != nil)
	o.observer.StageFinished(ctx, cf.CaseID, name, elapsed, err)
	extra.StageFinished(ctx, cf.CaseID, name, elapsed, err)
	return next, err
}
