package devidp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	oauth2lib "golang.org/x/oauth2"

	"github.com/Shmulls/Studo/client"
	"github.com/Shmulls/Studo/internal/logger"
	"github.com/Shmulls/Studo/oauth2"
)

// Browser session keys for the upstream round-trip
const (
	sessionKeyState    = "oauth_state"
	sessionKeyVerifier = "oauth_verifier"
	sessionKeySignIn   = "oauth_sign_in"
)

type oauthCompleteRequest struct {
	Strategy     string `json:"strategy"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

// startOAuth registers an OAuth sign-in and returns the URL the app should
// open in the browser.
func (s *Server) startOAuth(w http.ResponseWriter, r *http.Request, req createSignInRequest) {
	name := strings.TrimPrefix(req.Strategy, "oauth_")
	if _, err := s.providers.Get(name); err != nil {
		writeError(w, http.StatusUnprocessableEntity, CodeProviderNotEnabled, "This sign-in provider is not enabled.", req.Strategy)
		return
	}

	returnURL := req.ActionCompleteRedirectURL
	if returnURL == "" {
		returnURL = req.RedirectURL
	}
	if returnURL == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeParamMissing, "A redirect URL is required.", "redirect_url")
		return
	}
	if _, err := url.Parse(returnURL); err != nil {
		writeError(w, http.StatusUnprocessableEntity, CodeParamInvalid, "The redirect URL is invalid.", "redirect_url")
		return
	}
	if req.CodeChallenge == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeParamMissing, "A code challenge is required.", "code_challenge")
		return
	}

	o := &oauthSignIn{
		ID:            "sia_" + randomHex(12),
		Strategy:      req.Strategy,
		Provider:      name,
		ReturnURL:     returnURL,
		CodeChallenge: req.CodeChallenge,
		ExpiresAt:     s.now().Add(OAuthFlowExpiry),
	}
	s.records.putOAuth(o)

	writeJSON(w, http.StatusOK, client.SignInResource{
		ID:     o.ID,
		Status: client.StatusNeedsFirstFactor,
		FirstFactorVerification: &client.Verification{
			Status:                          "unverified",
			Strategy:                        req.Strategy,
			ExternalVerificationRedirectURL: s.baseURL + "/v1/oauth/authorize/" + o.ID,
		},
	})
}

// handleOAuthAuthorize is the first browser hop. It remembers the sign-in in
// the browser session and sends the browser to the upstream provider.
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	o, err := s.records.getOAuth(mux.Vars(r)["id"], s.now())
	if err != nil {
		http.Error(w, "This sign-in link is invalid or has expired.", http.StatusBadRequest)
		return
	}
	provider, err := s.providers.Get(o.Provider)
	if err != nil {
		http.Error(w, "This sign-in provider is not enabled.", http.StatusBadRequest)
		return
	}

	state := oauth2.GenerateState()
	verifier := oauth2lib.GenerateVerifier()
	if err := s.session.RenewToken(r.Context()); err != nil {
		s.logger.Warn("failed to renew browser session", logger.Error(err))
	}
	s.session.Put(r.Context(), sessionKeyState, state)
	s.session.Put(r.Context(), sessionKeyVerifier, verifier)
	s.session.Put(r.Context(), sessionKeySignIn, o.ID)

	http.Redirect(w, r, provider.AuthCodeURL(state, verifier), http.StatusFound)
}

// handleOAuthCallback is the upstream provider's redirect target. It signs
// the user in upstream and hands the app a one-time completion code.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := s.session.PopString(ctx, sessionKeyState)
	verifier := s.session.PopString(ctx, sessionKeyVerifier)
	signInID := s.session.PopString(ctx, sessionKeySignIn)

	if state == "" || r.FormValue("state") != state {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	o, err := s.records.takeOAuth(signInID, s.now())
	if err != nil {
		http.Error(w, "This sign-in link is invalid or has expired.", http.StatusBadRequest)
		return
	}
	log := s.logger.With(slog.String("provider", o.Provider), slog.String("sign_in", o.ID))

	if e := r.FormValue("error"); e != "" {
		log.Info("upstream sign-in denied", slog.String("error", e))
		s.redirectToApp(w, r, o.ReturnURL, url.Values{
			"error":             {e},
			"error_description": {r.FormValue("error_description")},
		})
		return
	}

	provider, err := s.providers.Get(o.Provider)
	if err != nil {
		s.redirectToApp(w, r, o.ReturnURL, oauthFailure("The sign-in provider is not enabled."))
		return
	}
	token, err := provider.Exchange(ctx, r.FormValue("code"), verifier)
	if err != nil {
		log.Warn("code exchange failed", logger.Error(err))
		s.redirectToApp(w, r, o.ReturnURL, oauthFailure("The sign-in provider rejected the request."))
		return
	}
	info, err := provider.UserInfo(ctx, token)
	if err != nil {
		log.Warn("user info failed", logger.Error(err))
		s.redirectToApp(w, r, o.ReturnURL, oauthFailure("Could not read your account from the sign-in provider."))
		return
	}
	user, err := s.users.EnsureExternalUser(o.Provider, info)
	if err != nil {
		log.Warn("failed to link external user", logger.Error(err))
		s.redirectToApp(w, r, o.ReturnURL, oauthFailure("Could not create your account."))
		return
	}

	c := &completion{
		Code:          randomHex(16),
		UserID:        user.ID,
		Strategy:      o.Strategy,
		CodeChallenge: o.CodeChallenge,
		ExpiresAt:     s.now().Add(CompletionExpiry),
	}
	s.records.putCompletion(c)
	log.Info("upstream sign-in complete", slog.String("user", user.ID))
	s.redirectToApp(w, r, o.ReturnURL, url.Values{"code": {c.Code}})
}

// handleOAuthComplete trades a completion code and the PKCE verifier for a session
func (s *Server) handleOAuthComplete(w http.ResponseWriter, r *http.Request) {
	var req oauthCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeParamInvalid, "Invalid request body.", err.Error())
		return
	}
	if req.Code == "" || req.CodeVerifier == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeParamMissing, "Code and code verifier are required.", "")
		return
	}

	c, err := s.records.takeCompletion(req.Code, s.now())
	if err != nil {
		msg := "This sign-in link is no longer valid."
		if errors.Is(err, errRecordExpired) {
			msg = "This sign-in link has expired. Please try again."
		}
		writeError(w, http.StatusUnprocessableEntity, CodeOAuthCodeInvalid, msg, "")
		return
	}
	if req.Strategy != "" && req.Strategy != c.Strategy {
		writeError(w, http.StatusUnprocessableEntity, CodeOAuthCodeInvalid, "This sign-in link is no longer valid.", "strategy mismatch")
		return
	}
	if oauth2lib.S256ChallengeFromVerifier(req.CodeVerifier) != c.CodeChallenge {
		writeError(w, http.StatusUnprocessableEntity, CodeVerifierInvalid, "This sign-in could not be verified.", "")
		return
	}

	sess := s.records.newSession(c.UserID, s.now())
	s.logger.Info("oauth sign-in complete", slog.String("user", c.UserID), logger.SessionID(sess.ID))
	writeJSON(w, http.StatusOK, client.SignInResource{
		ID:               "sia_" + randomHex(12),
		Status:           client.StatusComplete,
		CreatedSessionID: sess.ID,
	})
}

func (s *Server) redirectToApp(w http.ResponseWriter, r *http.Request, returnURL string, params url.Values) {
	u, err := url.Parse(returnURL)
	if err != nil {
		http.Error(w, "invalid return url", http.StatusBadRequest)
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func oauthFailure(description string) url.Values {
	return url.Values{
		"error":             {"server_error"},
		"error_description": {description},
	}
}
