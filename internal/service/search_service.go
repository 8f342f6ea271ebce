package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"foodies-api/internal/model"
	"foodies-api/pkg/apierror"
)

const (
	defaultSearchResults = 10
	maxSearchResults     = 50
	maxUpstreamBody      = 2 << 20
)

// RecipeSearchService forwards recipe searches to the third-party recipe API
// so the API key never reaches the browser.
type RecipeSearchService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRecipeSearchService(baseURL string, apiKey string, timeout time.Duration) *RecipeSearchService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RecipeSearchService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *RecipeSearchService) Search(ctx context.Context, query string, number int) (json.RawMessage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierror.New("BAD_REQUEST", "query parameter q is required", "q", http.StatusBadRequest)
	}
	if number <= 0 {
		number = defaultSearchResults
	}
	number = min(number, maxSearchResults)

	if s.baseURL == "" {
		return nil, fmt.Errorf("recipe search is not configured: %w", model.ErrProviderUnavailable)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("number", strconv.Itoa(number))
	if s.apiKey != "" {
		params.Set("apiKey", s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/recipes/complexSearch?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// The url.Error carries the full URL including the key.
		return nil, fmt.Errorf("recipe search request failed: %w", model.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read recipe search response: %w", model.ErrProviderUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recipe search upstream status %d: %w", resp.StatusCode, model.ErrProviderUnavailable)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("recipe search returned invalid JSON: %w", model.ErrProviderUnavailable)
	}

	return json.RawMessage(body), nil
}
