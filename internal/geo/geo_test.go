package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocoder_Geocode(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "/search", r.URL.Path)
		_, _ = w.Write([]byte(`[{"lat":"55.7504461","lon":"37.6174943","display_name":"Moscow, Russia"}]`))
	}))
	defer srv.Close()

	g := NewGeocoder(srv.URL+"/", "test-agent")
	loc, err := g.Geocode(context.Background(), " Moscow ")
	require.NoError(t, err)

	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "Moscow", gotQuery)
	assert.Equal(t, "Moscow, Russia", loc.Name)
	assert.InDelta(t, 55.75, loc.Latitude, 0.01)
	assert.InDelta(t, 37.62, loc.Longitude, 0.01)
}

func TestGeocoder_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewGeocoder(srv.URL, "ua").Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)

	_, err = NewGeocoder(srv.URL, "ua").Geocode(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

func TestGeocoder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGeocoder(srv.URL, "ua").Geocode(context.Background(), "Moscow")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocationNotFound)
}

func TestZoneFinder(t *testing.T) {
	name, err := NewZoneFinder().ZoneName(Location{Latitude: 55.7504, Longitude: 37.6175})
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", name)

	name, err = NewZoneFinder().ZoneName(Location{Latitude: 35.6895, Longitude: 139.6917})
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", name)
}
