package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"golang.org/x/oauth2"
)

// ErrUnknownProvider is returned by Registry.Get for names that were never registered
var ErrUnknownProvider = errors.New("unknown oauth provider")

// UserInfo is the identity an upstream provider vouches for after a code exchange
type UserInfo struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
	Raw       map[string]any
}

// Provider is one upstream OAuth2 identity provider (Google, GitHub, ...).
// The dev identity service redirects the browser here and exchanges the
// returned code on its own callback.
type Provider struct {
	Name        string
	UserInfoURL string

	// HTTPClient is used for the token exchange and the userinfo call.
	// Nil means http.DefaultClient.
	HTTPClient *http.Client

	config    oauth2.Config
	parseUser func(map[string]any) UserInfo
}

// NewProvider builds a provider for a custom endpoint. parseUser maps the
// userinfo document to a UserInfo; nil keeps only Raw.
func NewProvider(name string, config oauth2.Config, userInfoURL string, parseUser func(map[string]any) UserInfo) *Provider {
	if parseUser == nil {
		parseUser = func(m map[string]any) UserInfo { return UserInfo{Raw: m} }
	}
	return &Provider{
		Name:        name,
		UserInfoURL: userInfoURL,
		config:      config,
		parseUser:   parseUser,
	}
}

// Config returns a copy of the oauth2 configuration
func (p *Provider) Config() oauth2.Config {
	return p.config
}

// SetHTTPClient sets a custom HTTP client for outbound calls
func (p *Provider) SetHTTPClient(client *http.Client) {
	p.HTTPClient = client
}

// SetOAuthEndpoint overrides the auth and token URLs
func (p *Provider) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	p.config.Endpoint = endpoint
}

// SetCallbackURL sets the redirect_uri the upstream sends the browser back to
func (p *Provider) SetCallbackURL(callbackURL string) {
	p.config.RedirectURL = callbackURL
}

// Configured reports whether client credentials were supplied
func (p *Provider) Configured() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

// AuthCodeURL returns the upstream consent URL. A non-empty verifier adds
// an S256 PKCE challenge derived from it.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.config.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a token
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	token, err := p.config.Exchange(p.exchangeContext(ctx), code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange: %w", p.Name, err)
	}
	return token, nil
}

// UserInfo fetches and parses the user document for token
func (p *Provider) UserInfo(ctx context.Context, token *oauth2.Token) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return UserInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("failed getting user info from %s: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UserInfo{}, fmt.Errorf("failed read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("%s userinfo returned status %d", p.Name, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return UserInfo{}, fmt.Errorf("failed to parse user info: %w", err)
	}
	info := p.parseUser(raw)
	info.Raw = raw
	if info.Subject == "" {
		return UserInfo{}, fmt.Errorf("%s user info has no subject", p.Name)
	}
	return info, nil
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// exchangeContext makes golang.org/x/oauth2 use the injected client
func (p *Provider) exchangeContext(ctx context.Context) context.Context {
	if p.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}
	return ctx
}

// Registry looks providers up by strategy name ("google", "github")
type Registry struct {
	providers map[string]*Provider
}

func NewRegistry(providers ...*Provider) *Registry {
	r := &Registry{providers: make(map[string]*Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider. Providers without credentials are skipped.
func (r *Registry) Register(p *Provider) {
	if p == nil || !p.Configured() {
		return
	}
	r.providers[p.Name] = p
}

func (r *Registry) Get(name string) (*Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetCallbackBase points every provider's redirect_uri at base + "/" + name
func (r *Registry) SetCallbackBase(base string) {
	for name, p := range r.providers {
		p.SetCallbackURL(base + "/" + name)
	}
}
