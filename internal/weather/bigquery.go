package weather

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var tableName = regexp.MustCompile(`^[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+$`)

// BigQuerySource reads the weathernext graph forecast table. Each row holds a
// geography and a repeated forecast record.
type BigQuerySource struct {
	client *bigquery.Client
	table  string
}

func NewBigQuerySource(ctx context.Context, project, table string, opts ...option.ClientOption) (*BigQuerySource, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("weather: invalid table %q, want project.dataset.table", table)
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("weather: bigquery client: %w", err)
	}
	return &BigQuerySource{client: client, table: table}, nil
}

func (s *BigQuerySource) Close() error { return s.client.Close() }

type bqRow struct {
	ForecastTime time.Time            `bigquery:"forecast_timestamp"`
	TemperatureK float64              `bigquery:"temperature_k"`
	Precip       bigquery.NullFloat64 `bigquery:"precipitation_6hr"`
	U            float64              `bigquery:"wind_u"`
	V            float64              `bigquery:"wind_v"`
	Distance     float64              `bigquery:"distance_m"`
}

func bigQuerySQL(table string) string {
	return fmt.Sprintf(`
SELECT
  f.time AS forecast_timestamp,
  f.`+"`2m_temperature`"+` AS temperature_k,
  f.total_precipitation_6hr AS precipitation_6hr,
  f.`+"`10m_u_component_of_wind`"+` AS wind_u,
  f.`+"`10m_v_component_of_wind`"+` AS wind_v,
  ST_DISTANCE(t.geography, ST_GEOGPOINT(@lon, @lat)) AS distance_m
FROM `+"`%s`"+` AS t, UNNEST(t.forecast) AS f
WHERE ST_DWITHIN(t.geography, ST_GEOGPOINT(@lon, @lat), @radius)
  AND f.time BETWEEN CURRENT_TIMESTAMP() AND TIMESTAMP_ADD(CURRENT_TIMESTAMP(), INTERVAL @days DAY)
ORDER BY distance_m, forecast_timestamp
LIMIT @limit`, table)
}

func (s *BigQuerySource) Forecast(ctx context.Context, lat, lon float64) ([]Forecast, error) {
	q := s.client.Query(bigQuerySQL(s.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "lat", Value: lat},
		{Name: "lon", Value: lon},
		{Name: "radius", Value: float64(RadiusMeters)},
		{Name: "days", Value: int64(HorizonDays)},
		{Name: "limit", Value: int64(MaxRecords)},
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, &QueryError{Backend: "bigquery", Err: err}
	}
	out := make([]Forecast, 0, MaxRecords)
	for {
		var r bqRow
		err := it.Next(&r)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, &QueryError{Backend: "bigquery", Err: err}
		}
		out = append(out, fromComponents(r.ForecastTime, r.TemperatureK, r.Precip.Float64, r.U, r.V, r.Distance))
	}
	return out, nil
}
