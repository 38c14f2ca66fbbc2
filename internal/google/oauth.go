package google

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// DefaultCredentialsFile is the client-secret file looked up when no path is given.
const DefaultCredentialsFile = "credentials.json"

// DefaultScopes grants read/write access to the user's calendars.
var DefaultScopes = []string{calendar.CalendarScope}

// OAuthConfig returns the OAuth2 client configuration.
// GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET style values take priority over the
// client-secret file downloaded from the Cloud Console.
func OAuthConfig(clientID, clientSecret, credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		}, nil
	}

	if credentialsFile == "" {
		credentialsFile = DefaultCredentialsFile
	}
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%s not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or point GOOGLE_CREDENTIALS_FILE at the client secret file", credentialsFile)
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return config, nil
}
