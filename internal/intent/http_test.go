package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenda_os/backend/internal/models"
)

func TestHTTPExtractorDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		var body requestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "quinta à tarde", body.Text)
		assert.Equal(t, string(models.StageAwaitingDate), body.Stage)
		_ = json.NewEncoder(w).Encode(responseBody{Date: "2025-09-25", Period: "T"})
	}))
	defer srv.Close()

	x := HTTPExtractor{BaseURL: srv.URL, Location: time.UTC, Logger: zerolog.Nop()}
	got, err := x.Extract(context.Background(), "quinta à tarde", models.Session{Stage: models.StageAwaitingDate})
	require.NoError(t, err)
	require.NotNil(t, got.Date)
	assert.True(t, got.Date.Equal(d(2025, 9, 25)))
	assert.Equal(t, models.PeriodAfternoon, got.Period)
}

func TestHTTPExtractorDropsInvalidPeriod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(responseBody{Period: "NIGHT"})
	}))
	defer srv.Close()

	got, err := HTTPExtractor{BaseURL: srv.URL, Logger: zerolog.Nop()}.Extract(context.Background(), "noite", models.Session{})
	require.NoError(t, err)
	assert.Empty(t, got.Period)
}

func TestHTTPExtractorFallsBackToRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	x := HTTPExtractor{BaseURL: srv.URL, Fallback: testRules(), Logger: zerolog.Nop()}
	got, err := x.Extract(context.Background(), "sim", models.Session{})
	require.NoError(t, err)
	assert.True(t, got.Affirmative)

	x.Fallback = nil
	_, err = x.Extract(context.Background(), "sim", models.Session{})
	assert.Error(t, err)
}
