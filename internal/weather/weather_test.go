package weather

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindDirection(t *testing.T) {
	tests := []struct {
		name string
		u, v float64
		want float64
	}{
		{"northerly", 0, -5, 0},
		{"southerly", 0, 5, 180},
		{"westerly", 5, 0, 270},
		{"easterly", -5, 0, 90},
		{"southwesterly", 3, 3, 225},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WindDirection(tt.u, tt.v)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestWindDirectionMatchesFormula(t *testing.T) {
	u, v := 0.0, -5.0
	raw := math.Mod(270-math.Atan2(v, u)*180/math.Pi, 360)
	assert.InDelta(t, raw, WindDirection(u, v), 1e-9)
}

func TestConversions(t *testing.T) {
	assert.InDelta(t, 0.0, KelvinToCelsius(273.15), 1e-9)
	assert.InDelta(t, 20.0, KelvinToCelsius(293.15), 1e-9)
	assert.InDelta(t, 5.0, WindSpeed(3, 4), 1e-9)
}

func TestFromComponents(t *testing.T) {
	ts := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	f := fromComponents(ts, 288.15, 1.2, 0, -5, 1500)
	assert.InDelta(t, 15.0, f.TemperatureC, 1e-9)
	assert.InDelta(t, 5.0, f.WindSpeedMS, 1e-9)
	assert.InDelta(t, 0.0, f.WindDirectionDeg, 1e-9)
	assert.Equal(t, 1500.0, f.DistanceM)
	assert.Equal(t, ts, f.Time)
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(nil), "No forecast records")

	out := Describe([]Forecast{{
		Time:             time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC),
		TemperatureC:     15,
		WindSpeedMS:      5,
		WindDirectionDeg: 270,
	}})
	assert.Contains(t, out, "2025-03-01T06:00:00Z")
	assert.Contains(t, out, "from 270°")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestStaticSource(t *testing.T) {
	recs := make([]Forecast, MaxRecords+2)
	got, err := StaticSource{Records: recs}.Forecast(context.Background(), -36.8, 174.7)
	require.NoError(t, err)
	assert.Len(t, got, MaxRecords)

	_, err = StaticSource{Err: errors.New("quota")}.Forecast(context.Background(), 0, 0)
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "static", qe.Backend)
	assert.Contains(t, err.Error(), "quota")
}

func TestBigQuerySQLUsesParameters(t *testing.T) {
	sql := bigQuerySQL("p.d.t")
	assert.Contains(t, sql, "`p.d.t`")
	assert.Contains(t, sql, "ST_GEOGPOINT(@lon, @lat)")
	assert.Contains(t, sql, "LIMIT @limit")
	assert.Contains(t, sql, "ORDER BY distance_m, forecast_timestamp")
}

func TestTableNameValidation(t *testing.T) {
	assert.True(t, tableName.MatchString("isv-coe.weathernext_graph_forecasts.59572747_4_0"))
	assert.False(t, tableName.MatchString("dataset.table"))
	assert.False(t, tableName.MatchString("p.d.t`; DROP"))
}
