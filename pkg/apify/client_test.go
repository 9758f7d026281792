package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapePlaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "compass~crawler-google-places")
		assert.Equal(t, "secret", r.URL.Query().Get("token"))

		var input RunInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, []string{"plumber"}, input.SearchStringsArray)
		assert.Equal(t, "90012 Los Angeles", input.LocationQuery)
		assert.Equal(t, 50, input.MaxCrawledPlacesPerSearch)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[
			{
				"placeId": "ChIJabc123",
				"title": "Joe's Plumbing",
				"categoryName": "Plumber",
				"address": "123 Main St, Los Angeles, CA 90012",
				"website": "https://joesplumbing.example.com",
				"phone": "+1 213-555-0100",
				"emails": ["joe@joesplumbing.example.com"],
				"totalScore": 4.6,
				"reviewsCount": 128,
				"location": {"lat": 34.05, "lng": -118.24}
			}
		]`))
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL))
	places, err := c.ScrapePlaces(context.Background(), RunInput{
		SearchStringsArray:        []string{"plumber"},
		LocationQuery:             "90012 Los Angeles",
		MaxCrawledPlacesPerSearch: 50,
	})
	require.NoError(t, err)
	require.Len(t, places, 1)

	p := places[0]
	assert.Equal(t, "ChIJabc123", p.PlaceID)
	assert.Equal(t, "Joe's Plumbing", p.Title)
	assert.Equal(t, "https://joesplumbing.example.com", p.Website)
	assert.Equal(t, []string{"joe@joesplumbing.example.com"}, p.Emails)
	assert.InDelta(t, 34.05, p.Location.Lat, 1e-9)
	assert.Equal(t, 128, p.ReviewsCount)
}

func TestScrapePlacesRetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"placeId": "p1", "title": "Biz"}]`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	places, err := c.ScrapePlaces(context.Background(), RunInput{LocationQuery: "x"})
	require.NoError(t, err)
	assert.Len(t, places, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestScrapePlacesActorError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid-input"}}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.ScrapePlaces(context.Background(), RunInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestScrapePlacesCustomActor(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "my~custom-actor")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithActorID("my~custom-actor"))
	places, err := c.ScrapePlaces(context.Background(), RunInput{})
	require.NoError(t, err)
	assert.Empty(t, places)
}
