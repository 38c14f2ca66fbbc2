package google

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/google"
)

func TestOAuthConfig_FromClientID(t *testing.T) {
	cfg, err := OAuthConfig("id.apps.googleusercontent.com", "secret", "")
	require.NoError(t, err)

	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, DefaultScopes, cfg.Scopes)
	assert.Equal(t, google.Endpoint.TokenURL, cfg.Endpoint.TokenURL)
}

func TestOAuthConfig_FromCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"installed":{
		"client_id":"file-id.apps.googleusercontent.com",
		"client_secret":"file-secret",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth",
		"token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]
	}}`), 0600))

	cfg, err := OAuthConfig("", "", path, "https://www.googleapis.com/auth/calendar.readonly")
	require.NoError(t, err)
	assert.Equal(t, "file-id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/calendar.readonly"}, cfg.Scopes)
}

func TestOAuthConfig_MissingFile(t *testing.T) {
	_, err := OAuthConfig("", "", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CLIENT_ID")
}
