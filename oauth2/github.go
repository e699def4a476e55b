package oauth2

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const GithubUserInfoURL = "https://api.github.com/user"

func NewGithubProvider(clientID, clientSecret, callbackURL string) *Provider {
	return NewProvider("github", oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}, GithubUserInfoURL, parseGithubUser)
}

// GitHub has no given/family split, only a display name and a login
func parseGithubUser(m map[string]any) UserInfo {
	info := UserInfo{
		Subject: stringField(m, "id"),
		Email:   stringField(m, "email"),
	}
	info.FirstName, info.LastName = splitName(stringField(m, "name"))
	if info.FirstName == "" {
		info.FirstName = stringField(m, "login")
	}
	return info
}
