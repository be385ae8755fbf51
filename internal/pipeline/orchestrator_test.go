package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/stage"
)

type trace struct {
	mu  sync.Mutex
	ran []string
}

func (t *trace) add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ran = append(t.ran, name)
}

// scripted advances the case to target, or fails with err.
type scripted struct {
	name   string
	target casefile.Status
	err    error
	block  bool
	trace  *trace
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Run(ctx context.Context, cf casefile.CaseFile) (casefile.CaseFile, error) {
	s.trace.add(s.name)
	if s.block {
		<-ctx.Done()
		return cf, ctx.Err()
	}
	if s.err != nil {
		return cf, s.err
	}
	return cf.Advance(s.target), nil
}

func fourStages(tr *trace) (id, threat, risk, rep *scripted) {
	return &scripted{name: stage.NameIdentification, target: casefile.StatusIdentified, trace: tr},
		&scripted{name: stage.NameThreatAnalysis, target: casefile.StatusThreatAssessed, trace: tr},
		&scripted{name: stage.NameRiskAssessment, target: casefile.StatusRiskAssessed, trace: tr},
		&scripted{name: stage.NameReporting, target: casefile.StatusReported, trace: tr}
}

func openCase(t *testing.T) casefile.Session {
	t.Helper()
	sess := casefile.Detached("sess")
	cf, err := casefile.New("gs://b/insect1.png")
	require.NoError(t, err)
	require.NoError(t, sess.Commit(cf))
	return sess
}

type events struct {
	mu       sync.Mutex
	started  []string
	finished []string
	errs     []error
}

func (e *events) StageStarted(_ context.Context, _, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, name)
}

func (e *events) StageFinished(_ context.Context, _, name string, _ time.Duration, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = append(e.finished, name)
	e.errs = append(e.errs, err)
}

func TestRunInOrder(t *testing.T) {
	tr := &trace{}
	obs := &events{}
	perRun := &events{}
	o := Default(fourStages(tr))
	o = New(o.stages, WithObserver(obs))
	sess := openCase(t)

	out, err := o.Run(WithRunObserver(context.Background(), perRun), sess)
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusReported, out.Status)

	want := []string{"identification", "threat_analysis", "risk_assessment", "reporting"}
	assert.Equal(t, want, tr.ran)
	assert.Equal(t, want, o.Stages())
	assert.Equal(t, want, obs.started)
	assert.Equal(t, want, obs.finished)
	assert.Equal(t, want, perRun.finished)
	assert.Equal(t, []error{nil, nil, nil, nil}, perRun.errs)

	stored, _ := sess.Get()
	assert.Equal(t, casefile.StatusReported, stored.Status)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	tr := &trace{}
	id, threat, risk, rep := fourStages(tr)
	boom := common.ExternalService(stage.NameIdentification, "identification model call failed", errors.New("503"))
	id.err = boom
	sess := openCase(t)
	before, _ := sess.Get()

	_, err := Default(id, threat, risk, rep).Run(context.Background(), sess)
	require.Error(t, err)
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"identification"}, tr.ran)

	after, _ := sess.Get()
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, casefile.StatusInitiated, after.Status)
}

func TestRunKeepsEarlierCommits(t *testing.T) {
	tr := &trace{}
	id, threat, risk, rep := fourStages(tr)
	risk.err = common.MissingInput(stage.NameRiskAssessment, "No location found in CaseFile.")
	sess := openCase(t)

	_, err := Default(id, threat, risk, rep).Run(context.Background(), sess)
	require.ErrorIs(t, err, common.ErrMissingInput)

	stored, _ := sess.Get()
	assert.Equal(t, casefile.StatusThreatAssessed, stored.Status)
	assert.NotContains(t, tr.ran, "reporting")
}

func TestRunWithoutCase(t *testing.T) {
	tr := &trace{}
	_, err := Default(fourStages(tr)).Run(context.Background(), casefile.Detached("empty"))
	require.ErrorIs(t, err, common.ErrMissingInput)
	assert.Empty(t, tr.ran)
}

func TestStageTimeout(t *testing.T) {
	tr := &trace{}
	id, threat, risk, rep := fourStages(tr)
	threat.block = true
	sess := openCase(t)

	_, err := Default(id, threat, risk, rep, WithStageTimeout(20*time.Millisecond)).Run(context.Background(), sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExternalService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"identification", "threat_analysis"}, tr.ran)

	stored, _ := sess.Get()
	assert.Equal(t, casefile.StatusIdentified, stored.Status)
}

func TestCancelledRunIsCaseError(t *testing.T) {
	tr := &trace{}
	id, threat, risk, rep := fourStages(tr)
	id.block = true
	sess := openCase(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Default(id, threat, risk, rep).Run(ctx, sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExternalService)
	assert.ErrorIs(t, err, context.Canceled)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindExternalService, kind)

	stored, _ := sess.Get()
	assert.Equal(t, casefile.StatusInitiated, stored.Status)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	tr := &trace{}
	id, threat, risk, rep := fourStages(tr)
	threat.err = common.ExternalService(stage.NameThreatAnalysis, "down", nil)

	_, err := Default(id, threat, risk, rep, WithMetrics(m)).Run(context.Background(), openCase(t))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailures.WithLabelValues("threat_analysis", string(common.KindExternalService))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))
}
