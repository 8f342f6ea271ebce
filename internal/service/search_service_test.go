package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodies-api/internal/model"
	"foodies-api/pkg/apierror"
)

func TestRecipeSearchForwardsQuery(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recipes/complexSearch", r.URL.Path)
		assert.Equal(t, "pasta", r.URL.Query().Get("query"))
		assert.Equal(t, "50", r.URL.Query().Get("number"))
		assert.Equal(t, "secret-key", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":1,"title":"Carbonara"}],"totalResults":1}`))
	}))
	defer upstream.Close()

	svc := NewRecipeSearchService(upstream.URL+"/", "secret-key", time.Second)
	body, err := svc.Search(context.Background(), " pasta ", 500)
	require.NoError(t, err)
	require.JSONEq(t, `{"results":[{"id":1,"title":"Carbonara"}],"totalResults":1}`, string(body))
}

func TestRecipeSearchFailures(t *testing.T) {
	t.Parallel()

	t.Run("empty query", func(t *testing.T) {
		_, err := NewRecipeSearchService("http://unused", "", time.Second).Search(context.Background(), "  ", 0)
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewRecipeSearchService("", "", time.Second).Search(context.Background(), "soup", 0)
		require.ErrorIs(t, err, model.ErrProviderUnavailable)
	})

	t.Run("upstream error status", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		}))
		defer upstream.Close()

		_, err := NewRecipeSearchService(upstream.URL, "k", time.Second).Search(context.Background(), "soup", 0)
		require.ErrorIs(t, err, model.ErrProviderUnavailable)
	})

	t.Run("timeout does not leak the key", func(t *testing.T) {
		release := make(chan struct{})
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer upstream.Close()
		defer close(release)

		_, err := NewRecipeSearchService(upstream.URL, "super-secret", 50*time.Millisecond).Search(context.Background(), "soup", 0)
		require.ErrorIs(t, err, model.ErrProviderUnavailable)
		require.NotContains(t, err.Error(), "super-secret")
	})

	t.Run("invalid json", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer upstream.Close()

		_, err := NewRecipeSearchService(upstream.URL, "", time.Second).Search(context.Background(), "soup", 0)
		require.ErrorIs(t, err, model.ErrProviderUnavailable)
	})
}
