package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"strings"
)

// GenerateState returns a random value for the OAuth state parameter
func GenerateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// stringField reads a userinfo field. JSON numbers (GitHub ids) are
// formatted without an exponent.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	first, last, _ = strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}
