package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads forecasts from a PostGIS table:
//
//	weather_forecast(point geography, forecast_time timestamptz,
//	                 temperature_k double precision, precipitation_6hr double precision,
//	                 wind_u double precision, wind_v double precision)
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("weather: parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("weather: connect: %w", err)
	}
	return &PostgresSource{pool: pool}, nil
}

func (s *PostgresSource) Close() { s.pool.Close() }

const postgresForecastSQL = `
SELECT forecast_time,
       temperature_k,
       COALESCE(precipitation_6hr, 0),
       wind_u,
       wind_v,
       ST_Distance(point, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance_m
FROM weather_forecast
WHERE ST_DWithin(point, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
  AND forecast_time BETWEEN now() AND now() + make_interval(days => $4)
ORDER BY distance_m, forecast_time
LIMIT $5`

func (s *PostgresSource) Forecast(ctx context.Context, lat, lon float64) ([]Forecast, error) {
	rows, err := s.pool.Query(ctx, postgresForecastSQL, lon, lat, float64(RadiusMeters), HorizonDays, MaxRecords)
	if err != nil {
		return nil, &QueryError{Backend: "postgres", Err: err}
	}
	defer rows.Close()

	out := make([]Forecast, 0, MaxRecords)
	for rows.Next() {
		var t time.Time
		var tempK, precip, u, v, dist float64
		if err := rows.Scan(&t, &tempK, &precip, &u, &v, &dist); err != nil {
			return nil, &QueryError{Backend: "postgres", Err: err}
		}
		out = append(out, fromComponents(t, tempK, precip, u, v, dist))
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Backend: "postgres", Err: err}
	}
	return out, nil
}
