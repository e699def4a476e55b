package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	oauth2lib "golang.org/x/oauth2"

	"github.com/Shmulls/Studo/internal/devidp"
	"github.com/Shmulls/Studo/oauth2"
)

type mailbox struct {
	mu   sync.Mutex
	last string
}

func (m *mailbox) SendResetCode(ctx context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = code
	return nil
}

func (m *mailbox) code() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type testIDP struct {
	url  string
	mail *mailbox
}

func newTestIDP(t *testing.T) *testIDP {
	t.Helper()

	upstream := http.NewServeMux()
	upstreamSrv := httptest.NewServer(upstream)
	t.Cleanup(upstreamSrv.Close)
	upstream.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		back, _ := url.Parse(r.URL.Query().Get("redirect_uri"))
		back.RawQuery = url.Values{"state": {r.URL.Query().Get("state")}, "code": {"c"}}.Encode()
		http.Redirect(w, r, back.String(), http.StatusFound)
	})
	upstream.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "token_type": "Bearer"})
	})
	upstream.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": 99, "login": "octo", "name": "Octo Cat", "email": "octo@example.com"})
	})

	github := oauth2.NewGithubProvider("id", "secret", "")
	github.UserInfoURL = upstreamSrv.URL + "/userinfo"
	github.SetHTTPClient(upstreamSrv.Client())
	github.SetOAuthEndpoint(oauth2lib.Endpoint{AuthURL: upstreamSrv.URL + "/auth", TokenURL: upstreamSrv.URL + "/token"})

	users := devidp.NewUserStore()
	users.Cost = bcrypt.MinCost
	_, err := users.CreateUser("dana@example.com", "correct-horse", "Dana", "")
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(nil)
	base := "http://" + ts.Listener.Addr().String()
	mail := &mailbox{}
	idp := devidp.NewServer(base,
		devidp.WithUserStore(users),
		devidp.WithMailer(mail),
		devidp.WithProviders(oauth2.NewRegistry(github)))
	ts.Config.Handler = idp.Handler()
	ts.Start()
	t.Cleanup(ts.Close)

	t.Setenv("STUDO_STATE_DIR", t.TempDir())
	return &testIDP{url: ts.URL, mail: mail}
}

func (idp *testIDP) run(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(append([]string{"--server", idp.url}, args...))
	cmd.SetIn(stdin)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// lazyReader builds its content on the first Read
type lazyReader struct {
	build func() string
	r     io.Reader
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.r == nil {
		l.r = strings.NewReader(l.build())
	}
	return l.r.Read(p)
}

func TestLoginStatusLogout(t *testing.T) {
	idp := newTestIDP(t)

	out, _, err := idp.run(t, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	_, _, err = idp.run(t, nil, "login", "--identifier", "dana@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Password is incorrect. Try again, or use another method.", err.Error())

	out, _, err = idp.run(t, strings.NewReader("correct-horse\n"), "login", "--identifier", "dana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in.")

	// the session survives across invocations
	out, _, err = idp.run(t, nil, "status", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in: session sess_")
	assert.Contains(t, out, "Account: dana@example.com")

	out, _, err = idp.run(t, nil, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	out, _, err = idp.run(t, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestLogin_MissingPassword(t *testing.T) {
	idp := newTestIDP(t)

	_, _, err := idp.run(t, strings.NewReader("\n"), "login", "--identifier", "dana@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password is required")
}

func TestProfile(t *testing.T) {
	idp := newTestIDP(t)

	_, _, err := idp.run(t, nil, "profile", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")

	_, _, err = idp.run(t, nil, "login", "--identifier", "dana@example.com", "--password", "correct-horse")
	require.NoError(t, err)

	out, _, err := idp.run(t, nil, "profile", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Good morning Dana!")

	out, _, err = idp.run(t, nil, "profile", "set", "--last", "  Levi ")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile updated successfully!")

	out, _, err = idp.run(t, nil, "profile", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "First name: Dana")
	assert.Contains(t, out, "Last name:  Levi")
}

func TestReset_RetriesSecondPhase(t *testing.T) {
	idp := newTestIDP(t)

	stdin := &lazyReader{build: func() string {
		code := idp.mail.code()
		return code + "\nshort\n" + code + "\nbrand-new-password\n"
	}}
	out, stderr, err := idp.run(t, stdin, "reset", "--identifier", "dana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "We sent a reset code to dana@example.com.")
	assert.Contains(t, stderr, "Passwords must be 8 characters or more.")
	assert.Contains(t, out, "Password reset. Signed in.")

	_, _, err = idp.run(t, nil, "login", "--identifier", "dana@example.com", "--password", "brand-new-password")
	require.NoError(t, err)
}

func TestReset_GivesUpOnEOF(t *testing.T) {
	idp := newTestIDP(t)

	_, _, err := idp.run(t, nil, "reset", "--identifier", "dana@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input")
}

var urlPattern = regexp.MustCompile(`http://\S+`)

func TestOAuthStartFinish(t *testing.T) {
	idp := newTestIDP(t)

	out, _, err := idp.run(t, nil, "oauth", "start", "github")
	require.NoError(t, err)
	start := urlPattern.FindString(out)
	require.NotEmpty(t, start, out)

	jar, _ := cookiejar.New(nil)
	browser := &http.Client{Jar: jar, CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if req.URL.Scheme != "http" {
			return http.ErrUseLastResponse
		}
		return nil
	}}
	resp, err := browser.Get(start)
	require.NoError(t, err)
	resp.Body.Close()
	deepLink := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(deepLink, "studo://oauth/callback?"), deepLink)

	// finished by a separate invocation, as when the OS reopens the app
	out, _, err = idp.run(t, nil, "oauth", "finish", deepLink)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in.")

	out, _, err = idp.run(t, nil, "profile", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Good morning Octo Cat!")

	_, _, err = idp.run(t, nil, "oauth", "finish", deepLink)
	require.Error(t, err)
}

func TestOAuthStart_UnknownProvider(t *testing.T) {
	idp := newTestIDP(t)

	_, _, err := idp.run(t, nil, "oauth", "start", "google")
	require.Error(t, err)
	assert.Equal(t, "This sign-in provider is not enabled.", err.Error())
}
