package stage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/extract"
	"biosecure/internal/llm"
	"biosecure/internal/notify"
	"biosecure/internal/report"
	"biosecure/internal/storage"
	"biosecure/internal/weather"
)

const fawAnswer = "The insect in the image is a Fall armyworm (Spodoptera frugiperda). It has an inverted Y on the head."

func newCase(t *testing.T) casefile.CaseFile {
	t.Helper()
	cf, err := casefile.New("gs://new-zealand-insects/insect1.png")
	require.NoError(t, err)
	return cf
}

func identified(t *testing.T) casefile.CaseFile {
	return newCase(t).WithIdentification(casefile.Identification{
		TopGuess:   fawAnswer,
		CommonName: "Fall armyworm",
		Confidence: casefile.ConfidenceHigh,
	})
}

func located(cf casefile.CaseFile) casefile.CaseFile {
	return cf.WithLocation(casefile.Location{Description: "Pukekohe", Lat: -37.2, Lon: 174.9})
}

func assessed(t *testing.T) casefile.CaseFile {
	cf := located(identified(t)).WithThreatProfile(casefile.ThreatProfile{
		StatusNZ:    "Unwanted Organism - Not Established",
		ThreatLevel: casefile.ThreatHigh,
		Hosts:       []string{"maize"},
		MPISummary:  "summary",
	})
	return cf.WithRiskAssessment(casefile.RiskAssessment{
		Summary:           "High risk toward maize crops.",
		AlertLevel:        casefile.AlertHigh,
		NearbyAssets:      []string{"maize crops"},
		ForecastAvailable: true,
	})
}

func TestIdentification(t *testing.T) {
	gen := llm.NewFakeGenerator("").On("Identify the insect", fawAnswer)
	s := &Identification{LLM: gen}
	in := newCase(t)

	out, err := s.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusIdentified, out.Status)
	assert.Equal(t, "Fall armyworm", out.Identification.CommonName)
	assert.Equal(t, fawAnswer, out.Identification.TopGuess)
	assert.Equal(t, casefile.ConfidenceHigh, out.Identification.Confidence)
	assert.Nil(t, in.Identification, "input must not be mutated")

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, in.ImageURI, calls[0].ImageURI)
	assert.True(t, calls[0].Search)
}

func TestIdentificationErrors(t *testing.T) {
	s := &Identification{LLM: llm.NewFakeGenerator("").Fail("Identify", errors.New("503"))}

	_, err := s.Run(context.Background(), casefile.CaseFile{CaseID: "x", Status: casefile.StatusInitiated})
	assert.ErrorIs(t, err, common.ErrMissingInput)

	_, err = s.Run(context.Background(), newCase(t))
	assert.ErrorIs(t, err, common.ErrExternalService)
	assert.Contains(t, err.Error(), "503")
}

func TestThreatAnalysis(t *testing.T) {
	gen := llm.NewFakeGenerator("").On("Summarize the MPI page", "Fall armyworm is an unwanted organism.")
	s := &ThreatAnalysis{LLM: gen, Classifier: extract.NewTableClassifier(extract.DefaultPolicy().Threats)}

	out, err := s.Run(context.Background(), identified(t))
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusThreatAssessed, out.Status)
	assert.Equal(t, casefile.ThreatHigh, out.ThreatProfile.ThreatLevel)
	assert.Equal(t, []string{"maize", "sweet corn", "sorghum"}, out.ThreatProfile.Hosts)
	assert.Equal(t, "Fall armyworm is an unwanted organism.", out.ThreatProfile.MPISummary)
	assert.Contains(t, gen.Calls()[0].Prompt, "'Fall armyworm'")

	again, err := s.Run(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, out.ThreatProfile.ThreatLevel, again.ThreatProfile.ThreatLevel)
	assert.Equal(t, out.ThreatProfile.Hosts, again.ThreatProfile.Hosts)
}

func TestThreatAnalysisBenign(t *testing.T) {
	s := &ThreatAnalysis{
		LLM:        llm.NewFakeGenerator("No MPI page found."),
		Classifier: extract.NewTableClassifier(extract.DefaultPolicy().Threats),
	}
	cf := newCase(t).WithIdentification(casefile.Identification{TopGuess: "The insect in the image is a Monarch butterfly (Danaus plexippus).", CommonName: "Monarch butterfly"})

	out, err := s.Run(context.Background(), cf)
	require.NoError(t, err)
	assert.Equal(t, "Benign", out.ThreatProfile.StatusNZ)
	assert.Equal(t, casefile.ThreatLow, out.ThreatProfile.ThreatLevel)
	assert.NotNil(t, out.ThreatProfile.Hosts)
	assert.Empty(t, out.ThreatProfile.Hosts)
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string) (extract.Classification, error) {
	return extract.Classification{}, errors.New("register offline")
}

func TestThreatAnalysisErrors(t *testing.T) {
	s := &ThreatAnalysis{LLM: llm.NewFakeGenerator("ok"), Classifier: failingClassifier{}}

	_, err := s.Run(context.Background(), newCase(t))
	assert.ErrorIs(t, err, common.ErrMissingInput)

	_, err = s.Run(context.Background(), identified(t))
	assert.ErrorIs(t, err, common.ErrExternalService)

	s = &ThreatAnalysis{
		LLM:        llm.NewFakeGenerator("").Fail("Summarize", errors.New("quota")),
		Classifier: extract.NewTableClassifier(nil),
	}
	_, err = s.Run(context.Background(), identified(t))
	assert.ErrorIs(t, err, common.ErrExternalService)
}

func TestRiskAssessment(t *testing.T) {
	gen := llm.NewFakeGenerator("").On("real-world risk",
		"Northerly winds may carry moths toward nearby vineyards and kiwifruit blocks. This is a moderate risk, not critical.")
	src := weather.StaticSource{Records: []weather.Forecast{{
		Time:             time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		TemperatureC:     18,
		WindSpeedMS:      5,
		WindDirectionDeg: 0,
	}}}
	s := &RiskAssessment{LLM: gen, Weather: src, Policy: extract.DefaultPolicy()}

	out, err := s.Run(context.Background(), located(identified(t)))
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusRiskAssessed, out.Status)
	assert.Equal(t, casefile.AlertCritical, out.RiskAssessment.AlertLevel)
	assert.Equal(t, []string{"vineyards", "kiwifruit orchards"}, out.RiskAssessment.NearbyAssets)
	assert.True(t, out.RiskAssessment.ForecastAvailable)

	prompt := gen.Calls()[0].Prompt
	assert.Contains(t, prompt, "Pukekohe")
	assert.Contains(t, prompt, "wind 5.0 m/s from 0°")
	assert.NotContains(t, prompt, "NO FORECAST AVAILABLE")
}

func TestRiskAssessmentWithoutForecast(t *testing.T) {
	gen := llm.NewFakeGenerator("Risk is low.")
	s := &RiskAssessment{LLM: gen, Weather: weather.StaticSource{Err: errors.New("table not found")}, Policy: extract.DefaultPolicy()}

	out, err := s.Run(context.Background(), located(identified(t)))
	require.NoError(t, err)
	assert.False(t, out.RiskAssessment.ForecastAvailable)
	assert.Equal(t, casefile.AlertLow, out.RiskAssessment.AlertLevel)
	assert.Contains(t, gen.Calls()[0].Prompt, "NO FORECAST AVAILABLE")
}

func TestRiskAssessmentErrors(t *testing.T) {
	s := &RiskAssessment{LLM: llm.NewFakeGenerator("").Fail("risk", errors.New("down")), Weather: weather.StaticSource{}, Policy: extract.DefaultPolicy()}

	_, err := s.Run(context.Background(), identified(t))
	assert.ErrorIs(t, err, common.ErrMissingInput)

	_, err = s.Run(context.Background(), located(identified(t)))
	assert.ErrorIs(t, err, common.ErrExternalService)
}

type countingPublisher struct {
	mu    sync.Mutex
	calls int
	inner Publisher
}

func (p *countingPublisher) Publish(ctx context.Context, key string, body []byte, ct string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.inner.Publish(ctx, key, body, ct)
}

type recordingNotifier struct {
	got []notify.Notification
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func newReporting(t *testing.T, bucket *storage.MemoryBucket, n notify.Notifier) (*Reporting, *countingPublisher) {
	t.Helper()
	r, err := report.NewRenderer(nil)
	require.NoError(t, err)
	pub := &countingPublisher{inner: storage.NewPublisher(bucket)}
	return &Reporting{Renderer: r, Publisher: pub, Notifier: n}, pub
}

func TestReporting(t *testing.T) {
	bucket := storage.NewMemoryBucket("new-zealand-insects", "https://reports.test")
	n := &recordingNotifier{}
	s, pub := newReporting(t, bucket, n)
	in := assessed(t)

	out, err := s.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusReported, out.Status)
	assert.True(t, strings.HasPrefix(out.ReportURL, "https://reports.test/new-zealand-insects/reports/report-"))
	assert.Equal(t, 1, pub.calls)

	keys := bucket.Keys()
	require.Len(t, keys, 1)
	body, ct, err := bucket.Get(keys[0])
	require.NoError(t, err)
	assert.Equal(t, report.ContentType, ct)
	assert.Contains(t, string(body), in.CaseID)

	require.Len(t, n.got, 1)
	assert.Equal(t, "Biosecurity Alert: Fall armyworm", n.got[0].Title)
	assert.Equal(t, out.ReportURL, n.got[0].ReportURL)

	if diff := cmp.Diff(in.RiskAssessment, out.RiskAssessment); diff != "" {
		t.Errorf("risk assessment changed (-in +out):\n%s", diff)
	}
}

func TestReportingIncompleteNeverPublishes(t *testing.T) {
	s, pub := newReporting(t, storage.NewMemoryBucket("b", ""), nil)
	cf := assessed(t)
	cf.RiskAssessment = nil

	_, err := s.Run(context.Background(), cf)
	require.ErrorIs(t, err, common.ErrIncompleteCaseFile)
	assert.Contains(t, err.Error(), "riskAssessment")
	assert.Equal(t, 0, pub.calls)
}

func TestReportingPublishFailure(t *testing.T) {
	bucket := storage.NewMemoryBucket("b", "")
	bucket.FailPut = errors.New("403 forbidden")
	n := &recordingNotifier{}
	s, _ := newReporting(t, bucket, n)
	in := assessed(t)

	out, err := s.Run(context.Background(), in)
	require.ErrorIs(t, err, common.ErrReportPublish)
	assert.Equal(t, casefile.StatusRiskAssessed, out.Status)
	assert.Empty(t, out.ReportURL)
	assert.Empty(t, n.got)
}

func TestReportingIgnoresNotifyFailure(t *testing.T) {
	s, _ := newReporting(t, storage.NewMemoryBucket("b", ""), &recordingNotifier{err: errors.New("smtp down")})

	out, err := s.Run(context.Background(), assessed(t))
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusReported, out.Status)
}

func TestApply(t *testing.T) {
	sessions := casefile.NewSessions(8, time.Minute)
	sess, err := sessions.Open("s1")
	require.NoError(t, err)
	s := &Identification{LLM: llm.NewFakeGenerator(fawAnswer)}

	_, err = Apply(context.Background(), s, sess)
	require.ErrorIs(t, err, common.ErrMissingInput)

	require.NoError(t, sess.Commit(newCase(t)))
	out, err := Apply(context.Background(), s, sess)
	require.NoError(t, err)

	stored, ok := sess.Get()
	require.True(t, ok)
	assert.Equal(t, casefile.StatusIdentified, stored.Status)
	assert.Equal(t, out.Identification, stored.Identification)
}

func TestApplyDoesNotCommitOnFailure(t *testing.T) {
	sess := casefile.Detached("s2")
	require.NoError(t, sess.Commit(newCase(t)))
	s := &Identification{LLM: llm.NewFakeGenerator("").Fail("Identify", errors.New("boom"))}

	_, err := Apply(context.Background(), s, sess)
	require.Error(t, err)
	stored, _ := sess.Get()
	assert.Equal(t, casefile.StatusInitiated, stored.Status)
	assert.Nil(t, stored.Identification)
}
