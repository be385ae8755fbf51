package app

import (
	"context"
	"time"

	"biosecure/internal/geocode"
	"biosecure/internal/llm"
	"biosecure/internal/storage"
	"biosecure/internal/weather"
)

// Offline mode runs the whole investigation against canned collaborators so
// the service can be exercised without cloud credentials.

func offlineModel() *llm.FakeGenerator {
	return llm.NewFakeGenerator("No further information is available.").
		On("Identify the insect",
			"The insect in the image is a Brown Marmorated Stink Bug (Halyomorpha halys). "+
				"It has a mottled brown shield-shaped body with banded antennae.").
		On("Summarize the MPI page",
			"The brown marmorated stink bug is an unwanted organism in New Zealand. "+
				"MPI asks anyone who finds one to catch it and call 0800 80 99 66.").
		On("real-world risk",
			"Winds from the south-west could carry the insect towards nearby vineyards and orchards. "+
				"Recommended alert level: high.")
}

func offlineForecasts() weather.StaticSource {
	start := time.Now().UTC().Truncate(6 * time.Hour)
	recs := make([]weather.Forecast, 0, weather.MaxRecords)
	for i := 0; i < weather.MaxRecords; i++ {
		recs = append(recs, weather.Forecast{
			Time:             start.Add(time.Duration(i) * 6 * time.Hour),
			TemperatureC:     14 + float64(i),
			PrecipitationMM:  0.2 * float64(i),
			WindSpeedMS:      4.5,
			WindDirectionDeg: 225,
			DistanceM:        1200,
		})
	}
	return weather.StaticSource{Records: recs}
}

func seedOfflineImage(ctx context.Context, b *storage.MemoryBucket, object string) error {
	return b.Put(ctx, object, []byte("offline placeholder image"), "image/png")
}

// fixedGeocoder places every address in Pukekohe.
type fixedGeocoder struct{}

func (fixedGeocoder) Geocode(_ context.Context, address string) (geocode.Result, error) {
	return geocode.Result{Lat: -37.2, Lon: 174.9, FormattedAddress: address}, nil
}
