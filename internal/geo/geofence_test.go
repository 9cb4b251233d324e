package geo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

func TestDistanceMeters(t *testing.T) {
	delhi := domain.Coordinate{Lat: 28.6139, Lng: 77.2090}

	t.Run("identical points", func(t *testing.T) {
		require.Zero(t, DistanceMeters(delhi, delhi))
	})

	t.Run("known distance within tolerance", func(t *testing.T) {
		// Roughly 100 km due north of Delhi: one degree of latitude is
		// about 111.19 km, so 0.8994 degrees is about 100 km.
		north := domain.Coordinate{Lat: delhi.Lat + 0.8994, Lng: delhi.Lng}
		d := DistanceMeters(delhi, north)
		require.InEpsilon(t, 100000.0, d, 0.01)
	})

	t.Run("symmetric", func(t *testing.T) {
		other := domain.Coordinate{Lat: 13.0827, Lng: 80.2707}
		require.InDelta(t, DistanceMeters(delhi, other), DistanceMeters(other, delhi), 0.0001)
	})
}

func TestWithinRadius(t *testing.T) {
	center := domain.Coordinate{Lat: 28.6139, Lng: 77.2090}
	// ~78 m east at this latitude.
	near := domain.Coordinate{Lat: 28.6139, Lng: 77.2098}
	// ~500 m east.
	far := domain.Coordinate{Lat: 28.6139, Lng: 77.2141}

	require.True(t, WithinRadius(center, near, 100))
	require.False(t, WithinRadius(center, far, 100))

	t.Run("default radius on non-positive max", func(t *testing.T) {
		require.True(t, WithinRadius(center, near, 0))
		require.False(t, WithinRadius(center, far, -5))
	})
}
