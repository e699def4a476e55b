package oauth2

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

func NewGoogleProvider(clientID, clientSecret, callbackURL string) *Provider {
	return NewProvider("google", oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}, GoogleUserInfoURL, parseGoogleUser)
}

func parseGoogleUser(m map[string]any) UserInfo {
	info := UserInfo{
		Subject:   stringField(m, "id"),
		Email:     stringField(m, "email"),
		FirstName: stringField(m, "given_name"),
		LastName:  stringField(m, "family_name"),
	}
	if info.FirstName == "" && info.LastName == "" {
		info.FirstName, info.LastName = splitName(stringField(m, "name"))
	}
	return info
}
