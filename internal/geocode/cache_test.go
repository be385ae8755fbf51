package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	calls int
	err   error
}

func (g *countingGeocoder) Geocode(_ context.Context, address string) (Result, error) {
	g.calls++
	if g.err != nil {
		return Result{}, g.err
	}
	return Result{Lat: -39.49, Lon: 176.91, FormattedAddress: address}, nil
}

func TestCachedReusesNormalisedAddress(t *testing.T) {
	ctx := context.Background()
	origin := &countingGeocoder{}
	c := NewCached(origin, CacheConfig{})

	first, err := c.Geocode(ctx, "Napier,  Hawke's Bay")
	require.NoError(t, err)
	second, err := c.Geocode(ctx, "napier, hawke's bay ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, origin.calls)
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1}, c.Stats())
}

func TestCachedSkipsFailures(t *testing.T) {
	ctx := context.Background()
	origin := &countingGeocoder{err: errors.New("boom")}
	c := NewCached(origin, CacheConfig{})

	_, err := c.Geocode(ctx, "Nowhere")
	require.Error(t, err)
	origin.err = nil
	_, err = c.Geocode(ctx, "Nowhere")
	require.NoError(t, err)
	assert.Equal(t, 2, origin.calls)
}
