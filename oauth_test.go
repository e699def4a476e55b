package studo

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuationSigner(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	flow := &PendingOAuthFlow{
		ID:        "flow-1",
		Strategy:  OAuthGoogle,
		CreatedAt: now,
		ExpiresAt: now.Add(ContinuationLifetime),
	}

	signer := NewContinuationSigner([]byte("k"), clock)
	token, err := signer.Sign(flow)
	require.NoError(t, err)

	id, strategy, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "flow-1", id)
	assert.Equal(t, OAuthGoogle, strategy)

	t.Run("expired", func(t *testing.T) {
		late := NewContinuationSigner([]byte("k"), func() time.Time { return now.Add(time.Hour) })
		_, _, err := late.Verify(token)
		assert.ErrorIs(t, err, ErrFlowExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewContinuationSigner([]byte("other"), clock)
		_, _, err := other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidContinuation)
	})

	t.Run("alg none is refused", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			ID:     "flow-1",
			Issuer: ContinuationIssuer,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, _, err = signer.Verify(unsigned)
		assert.ErrorIs(t, err, ErrInvalidContinuation)
	})

	t.Run("random key when none given", func(t *testing.T) {
		a := NewContinuationSigner(nil, clock)
		b := NewContinuationSigner(nil, clock)
		tok, err := a.Sign(flow)
		require.NoError(t, err)
		_, _, err = b.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidContinuation)
	})
}

func TestParseOAuthReturn(t *testing.T) {
	withToken, err := withContinuation(DefaultReturnURL, "tok")
	require.NoError(t, err)
	assert.Equal(t, "studo://oauth/callback?flow=tok", withToken)

	tests := []struct {
		name    string
		url     string
		want    oauthReturn
		wantErr bool
	}{
		{
			name: "code",
			url:  withToken + "&code=abc",
			want: oauthReturn{Token: "tok", Code: "abc"},
		},
		{
			name: "provider error",
			url:  withToken + "&error=access_denied&error_description=" + url.QueryEscape("User cancelled"),
			want: oauthReturn{Token: "tok", Error: "access_denied", ErrorDescription: "User cancelled"},
		},
		{
			name:    "missing token",
			url:     DefaultReturnURL + "?code=abc",
			wantErr: true,
		},
		{
			name:    "unparseable",
			url:     "studo://%zz",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOAuthReturn(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidContinuation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeOAuthStrategy(t *testing.T) {
	assert.Equal(t, OAuthGoogle, NormalizeOAuthStrategy("google"))
	assert.Equal(t, OAuthGoogle, NormalizeOAuthStrategy(" Oauth_Google "))
	assert.Equal(t, OAuthGithub, NormalizeOAuthStrategy("github"))
	assert.Empty(t, NormalizeOAuthStrategy(""))
	assert.True(t, strings.HasPrefix(NormalizeOAuthStrategy("apple"), "oauth_"))
}
