package weather

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Search window used by every backend.
const (
	RadiusMeters = 20000
	HorizonDays  = 7
	MaxRecords   = 5
)

// Forecast is one forecast record near the queried point.
type Forecast struct {
	Time             time.Time `json:"forecastTimestamp"`
	TemperatureC     float64   `json:"temperatureCelsius"`
	PrecipitationMM  float64   `json:"precipitation6hrMm"`
	WindSpeedMS      float64   `json:"windSpeedMs"`
	WindDirectionDeg float64   `json:"windDirectionDegrees"`
	DistanceM        float64   `json:"distanceFromPointMeters"`
}

// Source returns up to MaxRecords forecasts within RadiusMeters of the point
// for the next HorizonDays, closest point first, then by time.
type Source interface {
	Forecast(ctx context.Context, lat, lon float64) ([]Forecast, error)
}

// QueryError wraps any backend failure.
type QueryError struct {
	Backend string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("weather query (%s): %v", e.Backend, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// KelvinToCelsius converts a temperature in kelvin.
func KelvinToCelsius(k float64) float64 { return k - 273.15 }

// WindSpeed is the magnitude of the (u, v) wind vector in m/s.
func WindSpeed(u, v float64) float64 { return math.Hypot(u, v) }

// WindDirection is the meteorological direction the wind blows from, in
// degrees: mod(270 - atan2(v, u)*180/pi, 360), normalised into [0, 360).
func WindDirection(u, v float64) float64 {
	d := math.Mod(270-math.Atan2(v, u)*180/math.Pi, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d -= 360
	}
	return d
}

// fromComponents builds a Forecast from raw model output.
func fromComponents(t time.Time, tempK, precip, u, v, dist float64) Forecast {
	return Forecast{
		Time:             t.UTC(),
		TemperatureC:     KelvinToCelsius(tempK),
		PrecipitationMM:  precip,
		WindSpeedMS:      WindSpeed(u, v),
		WindDirectionDeg: WindDirection(u, v),
		DistanceM:        dist,
	}
}

// Describe renders forecasts as plain text lines for a model prompt.
func Describe(fs []Forecast) string {
	if len(fs) == 0 {
		return "No forecast records were found near this location."
	}
	var b strings.Builder
	for _, f := range fs {
		fmt.Fprintf(&b, "- %s: %.1f°C, precipitation %.1f mm/6h, wind %.1f m/s from %.0f°, %.0f m from site\n",
			f.Time.Format(time.RFC3339), f.TemperatureC, f.PrecipitationMM,
			f.WindSpeedMS, f.WindDirectionDeg, f.DistanceM)
	}
	return strings.TrimRight(b.String(), "\n")
}

// StaticSource serves fixed records, or a fixed error. Useful offline.
type StaticSource struct {
	Records []Forecast
	Err     error
}

func (s StaticSource) Forecast(ctx context.Context, lat, lon float64) ([]Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, &QueryError{Backend: "static", Err: s.Err}
	}
	out := append([]Forecast(nil), s.Records...)
	if len(out) > MaxRecords {
		out = out[:MaxRecords]
	}
	return out, nil
}
