package stage

import (
	"context"
	"log/slog"

	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/extract"
	"biosecure/internal/llm"
	"biosecure/internal/weather"
)

// RiskAssessment combines the local forecast with the threat profile into a
// spread-risk narrative, then extracts the alert level and nearby assets.
type RiskAssessment struct {
	LLM     llm.Generator
	Weather weather.Source
	Policy  extract.Policy
	Log     *slog.Logger
}

func (s *RiskAssessment) Name() string { return NameRiskAssessment }

func (s *RiskAssessment) Run(ctx context.Context, cf casefile.CaseFile) (casefile.CaseFile, error) {
	if len(cf.Missing(casefile.SectionLocation)) > 0 {
		return cf, common.MissingInput(s.Name(), "No location found in CaseFile.")
	}
	log := loggerOr(s.Log, s.Name())
	loc := cf.Location

	available := true
	var forecast string
	records, err := s.Weather.Forecast(ctx, loc.Lat, loc.Lon)
	if err != nil {
		if ctx.Err() != nil {
			return cf, common.ExternalService(s.Name(), "weather forecast query interrupted", err)
		}
		log.WarnContext(ctx, "stage.risk.forecast_unavailable", "case_id", cf.CaseID, "err", err)
		available = false
		forecast = noForecastMarker
	} else {
		forecast = weather.Describe(records)
	}

	text, err := s.LLM.Generate(ctx, llm.Request{Prompt: riskPrompt(cf, forecast)})
	if err != nil {
		return cf, common.ExternalService(s.Name(), "risk assessment model call failed", err)
	}

	ra := casefile.RiskAssessment{
		Summary:           text,
		AlertLevel:        extract.AlertLevel(text, s.Policy.AlertRules),
		NearbyAssets:      extract.NearbyAssets(text, s.Policy.AssetTerms),
		ForecastAvailable: available,
	}
	log.InfoContext(ctx, "stage.risk.done",
		"case_id", cf.CaseID, "alert_level", ra.AlertLevel, "records", len(records), "forecast", available)
	return cf.WithRiskAssessment(ra), nil
}
