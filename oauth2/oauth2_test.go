package oauth2_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Shmulls/Studo/oauth2"
	oauth2lib "golang.org/x/oauth2"
)

// mockOAuthServer creates a mock upstream that handles:
// - /token endpoint for token exchange
// - /userinfo endpoint for user data retrieval
type mockOAuthServer struct {
	server           *httptest.Server
	tokenEndpoint    string
	userInfoEndpoint string

	tokenResponse    map[string]any
	userInfoResponse map[string]any
	tokenError       bool
	userInfoError    bool

	lastVerifier string
	lastAuth     string
}

func newMockOAuthServer() *mockOAuthServer {
	mock := &mockOAuthServer{
		tokenResponse: map[string]any{
			"access_token":  "mock_access_token",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "mock_refresh_token",
		},
		userInfoResponse: map[string]any{
			"id":    "12345",
			"email": "testuser@example.com",
			"name":  "Test User",
		},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mock.lastVerifier = r.Form.Get("code_verifier")
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.tokenResponse)
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		mock.lastAuth = r.Header.Get("Authorization")
		if mock.userInfoError {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	})

	mock.server = httptest.NewServer(mux)
	mock.tokenEndpoint = mock.server.URL + "/token"
	mock.userInfoEndpoint = mock.server.URL + "/userinfo"

	return mock
}

func (m *mockOAuthServer) Close() {
	m.server.Close()
}

// point a provider at the mock upstream
func (m *mockOAuthServer) attach(p *oauth2.Provider) {
	p.UserInfoURL = m.userInfoEndpoint
	p.SetHTTPClient(m.server.Client())
	p.SetOAuthEndpoint(oauth2lib.Endpoint{
		AuthURL:  m.server.URL + "/auth",
		TokenURL: m.tokenEndpoint,
	})
}

func TestAuthCodeURL(t *testing.T) {
	p := oauth2.NewProvider("test", oauth2lib.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{"email", "profile"},
		Endpoint: oauth2lib.Endpoint{
			AuthURL:  "https://provider.example.com/auth",
			TokenURL: "https://provider.example.com/token",
		},
	}, "", nil)

	t.Run("contains required OAuth parameters", func(t *testing.T) {
		location := p.AuthCodeURL("state-1", "")
		if !strings.HasPrefix(location, "https://provider.example.com/auth") {
			t.Errorf("Expected redirect to OAuth provider, got: %s", location)
		}

		parsedURL, err := url.Parse(location)
		if err != nil {
			t.Fatalf("Failed to parse redirect URL: %v", err)
		}
		query := parsedURL.Query()
		if query.Get("client_id") != "test-client-id" {
			t.Errorf("Expected client_id in URL")
		}
		if query.Get("redirect_uri") != "http://localhost:8080/callback" {
			t.Errorf("Expected redirect_uri in URL")
		}
		if query.Get("response_type") != "code" {
			t.Errorf("Expected response_type=code in URL")
		}
		if query.Get("state") != "state-1" {
			t.Errorf("Expected state parameter in URL")
		}
		if query.Get("code_challenge") != "" {
			t.Errorf("Expected no code_challenge without a verifier")
		}
	})

	t.Run("adds S256 challenge for a verifier", func(t *testing.T) {
		verifier := oauth2lib.GenerateVerifier()
		parsedURL, _ := url.Parse(p.AuthCodeURL("state-2", verifier))
		query := parsedURL.Query()

		if query.Get("code_challenge_method") != "S256" {
			t.Errorf("Expected S256 challenge method, got %q", query.Get("code_challenge_method"))
		}
		if query.Get("code_challenge") != oauth2lib.S256ChallengeFromVerifier(verifier) {
			t.Errorf("code_challenge does not match verifier")
		}
	})
}

func TestGoogleProvider_ExchangeAndUserInfo(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	google := oauth2.NewGoogleProvider("test-client-id", "test-client-secret", "http://localhost:8080/callback")
	mock.attach(google)
	ctx := context.Background()

	t.Run("successful exchange", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{
			"id":          "google123",
			"email":       "user@gmail.com",
			"given_name":  "Dana",
			"family_name": "Levi",
		}

		token, err := google.Exchange(ctx, "valid_code", "verifier-1")
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if token.AccessToken != "mock_access_token" {
			t.Errorf("Expected mock access token, got %q", token.AccessToken)
		}
		if mock.lastVerifier != "verifier-1" {
			t.Errorf("Expected code_verifier to be sent, got %q", mock.lastVerifier)
		}

		info, err := google.UserInfo(ctx, token)
		if err != nil {
			t.Fatalf("UserInfo() error = %v", err)
		}
		if mock.lastAuth != "Bearer mock_access_token" {
			t.Errorf("Expected bearer token on userinfo call, got %q", mock.lastAuth)
		}
		if info.Subject != "google123" || info.Email != "user@gmail.com" {
			t.Errorf("unexpected user info: %+v", info)
		}
		if info.FirstName != "Dana" || info.LastName != "Levi" {
			t.Errorf("Expected Dana Levi, got %q %q", info.FirstName, info.LastName)
		}
	})

	t.Run("falls back to the display name", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{"id": "g2", "name": "Test User"}

		token, _ := google.Exchange(ctx, "valid_code", "")
		info, err := google.UserInfo(ctx, token)
		if err != nil {
			t.Fatalf("UserInfo() error = %v", err)
		}
		if info.FirstName != "Test" || info.LastName != "User" {
			t.Errorf("Expected Test User, got %q %q", info.FirstName, info.LastName)
		}
	})

	t.Run("token exchange failure", func(t *testing.T) {
		mock.tokenError = true
		defer func() { mock.tokenError = false }()

		if _, err := google.Exchange(ctx, "bad_code", ""); err == nil {
			t.Error("Expected exchange error")
		}
	})

	t.Run("user info failure", func(t *testing.T) {
		mock.userInfoError = true
		defer func() { mock.userInfoError = false }()

		token, _ := google.Exchange(ctx, "valid_code", "")
		if _, err := google.UserInfo(ctx, token); err == nil {
			t.Error("Expected user info error")
		}
	})

	t.Run("user info without subject", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{"email": "x@example.com"}

		token, _ := google.Exchange(ctx, "valid_code", "")
		if _, err := google.UserInfo(ctx, token); err == nil {
			t.Error("Expected error for missing subject")
		}
	})
}

func TestGithubProvider_UserInfo(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	github := oauth2.NewGithubProvider("test-client-id", "test-client-secret", "http://localhost:8080/callback")
	mock.attach(github)
	ctx := context.Background()

	tests := []struct {
		name      string
		response  map[string]any
		subject   string
		firstName string
		lastName  string
	}{
		{"numeric id and full name", map[string]any{"id": 583231, "login": "octocat", "name": "Mona Lisa Octocat"}, "583231", "Mona", "Lisa Octocat"},
		{"login when name is empty", map[string]any{"id": 7, "login": "octocat", "name": ""}, "7", "octocat", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.userInfoResponse = tt.response

			token, err := github.Exchange(ctx, "code", "")
			if err != nil {
				t.Fatalf("Exchange() error = %v", err)
			}
			info, err := github.UserInfo(ctx, token)
			if err != nil {
				t.Fatalf("UserInfo() error = %v", err)
			}
			if info.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", info.Subject, tt.subject)
			}
			if info.FirstName != tt.firstName || info.LastName != tt.lastName {
				t.Errorf("name = %q %q, want %q %q", info.FirstName, info.LastName, tt.firstName, tt.lastName)
			}
		})
	}
}

func TestBaseOAuth2HTTPClient(t *testing.T) {
	t.Run("uses default client when none set", func(t *testing.T) {
		google := oauth2.NewGoogleProvider("id", "secret", "")
		if google.HTTPClient != nil {
			t.Error("Expected HTTPClient to be nil by default")
		}
	})

	t.Run("uses custom client when set", func(t *testing.T) {
		google := oauth2.NewGoogleProvider("id", "secret", "")
		customClient := &http.Client{Timeout: 5 * time.Second}
		google.SetHTTPClient(customClient)

		if google.HTTPClient != customClient {
			t.Error("Expected HTTPClient to be the custom client")
		}
	})
}

func TestOAuthEndpointConfiguration(t *testing.T) {
	t.Run("Google uses default endpoints", func(t *testing.T) {
		google := oauth2.NewGoogleProvider("id", "secret", "")
		if google.UserInfoURL != oauth2.GoogleUserInfoURL {
			t.Errorf("Expected default UserInfoURL '%s', got '%s'", oauth2.GoogleUserInfoURL, google.UserInfoURL)
		}
		if !strings.Contains(google.Config().Endpoint.AuthURL, "accounts.google.com") {
			t.Errorf("unexpected Google auth URL %q", google.Config().Endpoint.AuthURL)
		}
	})

	t.Run("GitHub uses default endpoints", func(t *testing.T) {
		github := oauth2.NewGithubProvider("id", "secret", "")
		if github.UserInfoURL != oauth2.GithubUserInfoURL {
			t.Errorf("Expected default UserInfoURL '%s', got '%s'", oauth2.GithubUserInfoURL, github.UserInfoURL)
		}
	})
}

func TestRegistry(t *testing.T) {
	registry := oauth2.NewRegistry(
		oauth2.NewGoogleProvider("id", "secret", ""),
		oauth2.NewGithubProvider("id", "secret", ""),
		oauth2.NewProvider("unconfigured", oauth2lib.Config{}, "", nil),
	)

	names := registry.Names()
	if len(names) != 2 || names[0] != "github" || names[1] != "google" {
		t.Errorf("Names() = %v, want [github google]", names)
	}

	if _, err := registry.Get("unconfigured"); !errors.Is(err, oauth2.ErrUnknownProvider) {
		t.Errorf("Get(unconfigured) error = %v, want ErrUnknownProvider", err)
	}

	registry.SetCallbackBase("http://localhost:8080/oauth/callback")
	google, err := registry.Get("google")
	if err != nil {
		t.Fatalf("Get(google) error = %v", err)
	}
	if got := google.Config().RedirectURL; got != "http://localhost:8080/oauth/callback/google" {
		t.Errorf("RedirectURL = %q", got)
	}
}

func TestGenerateState(t *testing.T) {
	a, b := oauth2.GenerateState(), oauth2.GenerateState()
	if a == "" || a == b {
		t.Errorf("GenerateState() returned %q and %q", a, b)
	}
}
