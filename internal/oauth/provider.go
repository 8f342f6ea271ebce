// Package oauth implements the GitHub and Google authorization-code
// handshakes and turns a completed handshake into a bearer token.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"foodies-api/internal/model"
)

const (
	gitHubProfileURL = "https://api.github.com/user"
	gitHubEmailsURL  = "https://api.github.com/user/emails"
	googleProfileURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	maxProfileBody = 1 << 20
)

// ProviderConfig carries credentials and optional endpoint overrides. Empty
// URL fields fall back to the provider's public endpoints.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL    string
	TokenURL   string
	ProfileURL string
	EmailsURL  string
}

type profileFetcher func(ctx context.Context, client *http.Client, p *Provider) (model.FederatedProfile, error)

type Provider struct {
	Name       model.Provider
	OAuth      *oauth2.Config
	ProfileURL string
	EmailsURL  string

	fetch profileFetcher
}

func NewGitHub(cfg ProviderConfig) *Provider {
	return &Provider{
		Name:       model.ProviderGitHub,
		OAuth:      oauthConfig(cfg, endpoints.GitHub, []string{"read:user", "user:email"}),
		ProfileURL: firstNonEmpty(cfg.ProfileURL, gitHubProfileURL),
		EmailsURL:  firstNonEmpty(cfg.EmailsURL, gitHubEmailsURL),
		fetch:      fetchGitHubProfile,
	}
}

func NewGoogle(cfg ProviderConfig) *Provider {
	return &Provider{
		Name:       model.ProviderGoogle,
		OAuth:      oauthConfig(cfg, endpoints.Google, []string{"openid", "email", "profile"}),
		ProfileURL: firstNonEmpty(cfg.ProfileURL, googleProfileURL),
		fetch:      fetchGoogleProfile,
	}
}

func oauthConfig(cfg ProviderConfig, endpoint oauth2.Endpoint, scopes []string) *oauth2.Config {
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// Registry holds the enabled providers keyed by their path segment.
type Registry map[model.Provider]*Provider

func NewRegistry(providers ...*Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name] = p
	}
	return r
}

func (r Registry) Lookup(name string) (*Provider, error) {
	p, ok := r[model.Provider(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, model.ErrUnknownProvider)
	}
	return p, nil
}

// Names lists enabled providers in a stable order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for _, p := range []model.Provider{model.ProviderGitHub, model.ProviderGoogle} {
		if _, ok := r[p]; ok {
			names = append(names, string(p))
		}
	}
	return names
}

// providerID accepts both numeric and string subject identifiers.
type providerID string

func (id *providerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = providerID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("provider id %q is not an integer", n)
	}
	*id = providerID(n.String())
	return nil
}

type gitHubUser struct {
	ID        providerID `json:"id"`
	Login     string     `json:"login"`
	Name      string     `json:"name"`
	Email     *string    `json:"email"`
	AvatarURL string     `json:"avatar_url"`
}

type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHubProfile(ctx context.Context, client *http.Client, p *Provider) (model.FederatedProfile, error) {
	var u gitHubUser
	if err := getJSON(ctx, client, p.ProfileURL, &u); err != nil {
		return model.FederatedProfile{}, err
	}

	profile := model.FederatedProfile{
		Provider:    model.ProviderGitHub,
		Subject:     string(u.ID),
		Username:    u.Login,
		DisplayName: u.Name,
		AvatarURL:   u.AvatarURL,
	}
	if u.Email != nil {
		profile.Email = *u.Email
	}

	// Users with a private email get null here; the emails endpoint is best
	// effort and its failure does not fail the login.
	if profile.Email == "" && p.EmailsURL != "" {
		var emails []gitHubEmail
		if err := getJSON(ctx, client, p.EmailsURL, &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					profile.Email = e.Email
					break
				}
			}
		}
	}

	return profile, nil
}

type googleUser struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

func fetchGoogleProfile(ctx context.Context, client *http.Client, p *Provider) (model.FederatedProfile, error) {
	var u googleUser
	if err := getJSON(ctx, client, p.ProfileURL, &u); err != nil {
		return model.FederatedProfile{}, err
	}

	profile := model.FederatedProfile{
		Provider:    model.ProviderGoogle,
		Subject:     u.Sub,
		DisplayName: u.Name,
		AvatarURL:   u.Picture,
	}
	if u.EmailVerified {
		profile.Email = u.Email
	}
	return profile, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("profile request: %w: %w", model.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("profile request status %d: %w", resp.StatusCode, model.ErrProviderRejected)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("profile request status %d: %w", resp.StatusCode, model.ErrProviderUnavailable)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBody)).Decode(dst); err != nil {
		return fmt.Errorf("decode profile: %w: %w", model.ErrProviderUnavailable, err)
	}
	return nil
}

// classifyExchangeError separates the provider refusing the code from the
// provider being unreachable.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= 500 {
			return fmt.Errorf("token exchange status %d: %w", status, model.ErrProviderUnavailable)
		}
		return fmt.Errorf("token exchange refused (%s): %w", retrieveErr.ErrorCode, model.ErrProviderRejected)
	}
	return fmt.Errorf("token exchange: %w: %w", model.ErrProviderUnavailable, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
