package studo

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Defaults for the OAuth redirect round-trip
const (
	DefaultReturnURL     = "studo://oauth/callback"
	ContinuationParam    = "flow"
	ContinuationIssuer   = "studo"
	ContinuationLifetime = 10 * time.Minute
)

type continuationClaims struct {
	Strategy string `json:"strategy"`
	jwt.RegisteredClaims
}

// ContinuationSigner mints and verifies the resumable flow tokens carried in
// the app return URL. The token only names a flow; the PKCE verifier stays in
// the FlowStore.
type ContinuationSigner struct {
	key []byte
	now func() time.Time
}

// NewContinuationSigner uses key for HS256. An empty key gets a random one,
// which means flows cannot be resumed after a restart.
func NewContinuationSigner(key []byte, now func() time.Time) *ContinuationSigner {
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	if now == nil {
		now = time.Now
	}
	return &ContinuationSigner{key: key, now: now}
}

// Sign returns a token for flow.
func (s *ContinuationSigner) Sign(flow *PendingOAuthFlow) (string, error) {
	claims := continuationClaims{
		Strategy: flow.Strategy,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        flow.ID,
			Issuer:    ContinuationIssuer,
			IssuedAt:  jwt.NewNumericDate(flow.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(flow.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign continuation: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry and returns the flow id and strategy.
func (s *ContinuationSigner) Verify(token string) (flowID, strategy string, err error) {
	var claims continuationClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ContinuationIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrFlowExpired
		}
		return "", "", fmt.Errorf("%w: %v", ErrInvalidContinuation, err)
	}
	if claims.ID == "" {
		return "", "", fmt.Errorf("%w: missing flow id", ErrInvalidContinuation)
	}
	return claims.ID, claims.Strategy, nil
}

// withContinuation appends the token to the app return URL.
func withContinuation(returnURL, token string) (string, error) {
	u, err := url.Parse(returnURL)
	if err != nil {
		return "", fmt.Errorf("invalid return url: %w", err)
	}
	q := u.Query()
	q.Set(ContinuationParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// oauthReturn is what the OS hands back through the deep link.
type oauthReturn struct {
	Token            string
	Code             string
	Error            string
	ErrorDescription string
}

func parseOAuthReturn(returnURL string) (oauthReturn, error) {
	u, err := url.Parse(returnURL)
	if err != nil {
		return oauthReturn{}, fmt.Errorf("%w: %v", ErrInvalidContinuation, err)
	}
	q := u.Query()
	r := oauthReturn{
		Token:            q.Get(ContinuationParam),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	if r.Token == "" {
		return r, fmt.Errorf("%w: missing %s parameter", ErrInvalidContinuation, ContinuationParam)
	}
	return r, nil
}
