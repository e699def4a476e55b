// Package client implements the studo IdentityProvider against the identity
// service's Frontend API over HTTP/JSON.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	studo "github.com/Shmulls/Studo"
	"github.com/Shmulls/Studo/internal/logger"
)

// DefaultTimeout bounds every Frontend API request
const DefaultTimeout = 30 * time.Second

// MaxResponseSize caps how much of a response body is read
const MaxResponseSize = 1 << 20

// Frontend API routes
const (
	SignInsPath        = "/v1/client/sign_ins"
	OAuthCompletePath  = "/v1/client/oauth/complete"
	CurrentSessionPath = "/v1/client/sessions/current"
	MePath             = "/v1/me"
)

// Sign-in statuses and strategies used by the Frontend API
const (
	StatusComplete         = "complete"
	StatusNeedsFirstFactor = "needs_first_factor"
	StrategyPassword       = "password"
)

// FrontendClient talks to the identity service. It owns the network timeout;
// callers above it never time out on their own.
type FrontendClient struct {
	serverURL     string
	httpClient    *http.Client
	baseTransport http.RoundTripper
	logger        *slog.Logger
}

var _ studo.IdentityProvider = (*FrontendClient)(nil)

// ClientOption configures a FrontendClient
type ClientOption func(*FrontendClient)

// WithHTTPClient sets a custom base HTTP client (for TLS config, proxies, etc.)
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *FrontendClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		if client.Timeout > 0 {
			c.httpClient.Timeout = client.Timeout
		}
		c.httpClient.CheckRedirect = client.CheckRedirect
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *FrontendClient) {
		c.baseTransport = transport
	}
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *FrontendClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *FrontendClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewFrontendClient creates a client for the Frontend API at serverURL
func NewFrontendClient(serverURL string, opts ...ClientOption) *FrontendClient {
	// Normalize server URL
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &FrontendClient{
		serverURL:     serverURL,
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		baseTransport: http.DefaultTransport,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = c.baseTransport
	c.logger = c.logger.With(slog.String("component", "frontend_client"))
	return c
}

// ServerURL returns the server URL this client is configured for
func (c *FrontendClient) ServerURL() string {
	return c.serverURL
}

// AuthenticatedClient returns an HTTP client that sends the active session of
// sessions with every request. Use it for other endpoints of the service.
func (c *FrontendClient) AuthenticatedClient(sessions SessionSource) *http.Client {
	return &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: NewSessionTransportWithBase(c.baseTransport, sessions),
	}
}

// signInRequest is the body of POST /v1/client/sign_ins
type signInRequest struct {
	Strategy                  string `json:"strategy"`
	Identifier                string `json:"identifier,omitempty"`
	Password                  string `json:"password,omitempty"`
	RedirectURL               string `json:"redirect_url,omitempty"`
	ActionCompleteRedirectURL string `json:"action_complete_redirect_url,omitempty"`
	CodeChallenge             string `json:"code_challenge,omitempty"`
}

type attemptFirstFactorRequest struct {
	Strategy string `json:"strategy"`
	Code     string `json:"code"`
	Password string `json:"password,omitempty"`
}

type oauthCompleteRequest struct {
	Strategy     string `json:"strategy"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

// SignInResource is a Frontend API sign-in object
type SignInResource struct {
	ID                      string        `json:"id"`
	Status                  string        `json:"status"`
	Identifier              string        `json:"identifier,omitempty"`
	CreatedSessionID        string        `json:"created_session_id,omitempty"`
	FirstFactorVerification *Verification `json:"first_factor_verification,omitempty"`
}

// Verification describes the state of a sign-in factor
type Verification struct {
	Status                          string `json:"status"`
	Strategy                        string `json:"strategy"`
	ExternalVerificationRedirectURL string `json:"external_verification_redirect_url,omitempty"`
}

// UserResource is the Frontend API user object
type UserResource struct {
	ID           string  `json:"id"`
	EmailAddress string  `json:"email_address,omitempty"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
}

type envelope struct {
	Response json.RawMessage             `json:"response"`
	Errors   []studo.ProviderErrorDetail `json:"errors,omitempty"`
}

// CreateSignIn signs in with a password
func (c *FrontendClient) CreateSignIn(ctx context.Context, identifier, password string) (studo.SignInResult, error) {
	var res SignInResource
	err := c.do(ctx, http.MethodPost, SignInsPath, "", signInRequest{
		Strategy:   StrategyPassword,
		Identifier: identifier,
		Password:   password,
	}, &res)
	if err != nil {
		return studo.SignInResult{}, err
	}
	return signInResult(&res)
}

// CreateOAuthRedirect starts an OAuth sign-in and returns the authorization URL
func (c *FrontendClient) CreateOAuthRedirect(ctx context.Context, req studo.OAuthRedirectRequest) (studo.RedirectHandle, error) {
	var res SignInResource
	err := c.do(ctx, http.MethodPost, SignInsPath, "", signInRequest{
		Strategy:                  req.Strategy,
		RedirectURL:               req.CallbackURL,
		ActionCompleteRedirectURL: req.ReturnURL,
		CodeChallenge:             req.CodeChallenge,
	}, &res)
	if err != nil {
		return studo.RedirectHandle{}, err
	}
	if res.FirstFactorVerification == nil || res.FirstFactorVerification.ExternalVerificationRedirectURL == "" {
		return studo.RedirectHandle{}, fmt.Errorf("invalid response from server: sign-in %s has no redirect url", res.ID)
	}
	return studo.RedirectHandle{
		URL:      res.FirstFactorVerification.ExternalVerificationRedirectURL,
		Strategy: req.Strategy,
	}, nil
}

// CreateReset starts a password reset; the service emails a code
func (c *FrontendClient) CreateReset(ctx context.Context, identifier string, strategy studo.ResetStrategy) (studo.IdentitySession, error) {
	var res SignInResource
	err := c.do(ctx, http.MethodPost, SignInsPath, "", signInRequest{
		Strategy:   string(strategy),
		Identifier: identifier,
	}, &res)
	if err != nil {
		return studo.IdentitySession{}, err
	}
	if res.ID == "" {
		return studo.IdentitySession{}, errors.New("invalid response from server: missing sign-in id")
	}
	return studo.IdentitySession{ID: res.ID}, nil
}

// AttemptResetFirstFactor completes a reset with the emailed code and a new password
func (c *FrontendClient) AttemptResetFirstFactor(ctx context.Context, session studo.IdentitySession, code, newPassword string, strategy studo.ResetStrategy) (studo.SignInResult, error) {
	var res SignInResource
	path := fmt.Sprintf("%s/%s/attempt_first_factor", SignInsPath, url.PathEscape(session.ID))
	err := c.do(ctx, http.MethodPost, path, "", attemptFirstFactorRequest{
		Strategy: string(strategy),
		Code:     code,
		Password: newPassword,
	}, &res)
	if err != nil {
		return studo.SignInResult{}, err
	}
	return signInResult(&res)
}

// CompleteOAuth exchanges a returned OAuth code for a session
func (c *FrontendClient) CompleteOAuth(ctx context.Context, req studo.OAuthCompletion) (studo.SignInResult, error) {
	var res SignInResource
	err := c.do(ctx, http.MethodPost, OAuthCompletePath, "", oauthCompleteRequest{
		Strategy:     req.Strategy,
		Code:         req.Code,
		CodeVerifier: req.CodeVerifier,
	}, &res)
	if err != nil {
		return studo.SignInResult{}, err
	}
	return signInResult(&res)
}

// GetProfile fetches the signed-in user
func (c *FrontendClient) GetProfile(ctx context.Context, sessionID string) (studo.Profile, error) {
	var user UserResource
	if err := c.do(ctx, http.MethodGet, MePath, sessionID, nil, &user); err != nil {
		return studo.Profile{}, err
	}
	return studo.Profile{FirstName: user.FirstName, LastName: user.LastName}, nil
}

// UpdateProfile updates the signed-in user's names
func (c *FrontendClient) UpdateProfile(ctx context.Context, sessionID string, fields studo.ProfileFields) error {
	return c.do(ctx, http.MethodPatch, MePath, sessionID, fields, nil)
}

// EndSession revokes a session on the server. It is not part of
// IdentityProvider; sign-out is local unless the caller also ends the session.
func (c *FrontendClient) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, CurrentSessionPath, sessionID, nil, nil)
}

func signInResult(res *SignInResource) (studo.SignInResult, error) {
	if res.Status != StatusComplete || res.CreatedSessionID == "" {
		return studo.SignInResult{}, studo.NewProviderError(http.StatusOK, "sign_in_incomplete",
			fmt.Sprintf("Sign-in could not be completed (status %q).", res.Status))
	}
	return studo.SignInResult{SessionID: res.CreatedSessionID}, nil
}

// do sends body as JSON and decodes the response envelope into out. Error
// bodies become *studo.ProviderError; everything else that goes wrong is a
// plain error, which callers treat as a transport failure.
func (c *FrontendClient) do(ctx context.Context, method, path, sessionID string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set("Authorization", "Bearer "+sessionID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", slog.String("method", method), slog.String("path", path), logger.Error(err))
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return fmt.Errorf("response exceeds %d bytes", MaxResponseSize)
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && len(env.Errors) > 0 {
			return &studo.ProviderError{Status: resp.StatusCode, Errors: env.Errors}
		}
		return fmt.Errorf("unexpected response from server: HTTP %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("invalid response from server: %w", decodeErr)
	}
	if out == nil || len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
