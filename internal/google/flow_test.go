package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"calhelper/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newTokenServer fakes the OAuth2 token endpoint. Each request answers with
// a token derived from its grant type.
func newTokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.NoError(t, r.ParseForm())

		resp := map[string]interface{}{
			"token_type": "Bearer",
			"expires_in": 3600,
			"scope":      "https://www.googleapis.com/auth/calendar",
		}
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "the-code" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			resp["access_token"] = "access-from-code"
			resp["refresh_token"] = "refresh-from-code"
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != "good-refresh" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			resp["access_token"] = "access-from-refresh"
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       testScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/o/oauth2/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// fakeBrowser follows the consent URL straight to the redirect, as if the
// user had clicked "Allow".
func fakeBrowser(t *testing.T, code string, mutateState bool) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		state := q.Get("state")
		if mutateState {
			state = "forged"
		}
		redirect := q.Get("redirect_uri") + "?" + url.Values{"code": {code}, "state": {state}}.Encode()

		go func() {
			resp, err := http.Get(redirect)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

func newTestFlow(t *testing.T, config *oauth2.Config, browser func(string) error) *LocalServerFlow {
	f := NewLocalServerFlow(slog.New(slog.NewTextHandler(io.Discard, nil)), config)
	f.OpenBrowser = browser
	f.Out = io.Discard
	return f
}

func TestLocalServerFlow_Authorize(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	var seenURL string
	browser := fakeBrowser(t, "the-code", false)
	flow := newTestFlow(t, testOAuthConfig(srv.URL), func(u string) error {
		seenURL = u
		return browser(u)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cred, err := flow.Authorize(ctx)
	require.NoError(t, err)

	assert.Equal(t, "access-from-code", cred.AccessToken)
	assert.Equal(t, "refresh-from-code", cred.RefreshToken)
	assert.Equal(t, testScopes, cred.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cred.Expiry, time.Minute)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "client-id", cred.ClientID)
	assert.Equal(t, "client-secret", cred.ClientSecret)
	assert.Equal(t, srv.URL, cred.TokenURI)

	u, err := url.Parse(seenURL)
	require.NoError(t, err)
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Contains(t, u.Query().Get("redirect_uri"), "http://127.0.0.1:")
}

func TestLocalServerFlow_StateMismatchTimesOut(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	flow := newTestFlow(t, testOAuthConfig(srv.URL), fakeBrowser(t, "the-code", true))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := flow.Authorize(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestLocalServerFlow_ExchangeFails(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	flow := newTestFlow(t, testOAuthConfig(srv.URL), fakeBrowser(t, "wrong-code", false))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := flow.Authorize(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to exchange code")
}

func TestLocalServerFlow_ListenFails(t *testing.T) {
	flow := newTestFlow(t, testOAuthConfig("http://127.0.0.1:1/token"), func(string) error { return nil })
	flow.Addr = "127.0.0.1:-1"

	_, err := flow.Authorize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local redirect listener")
}

func TestOAuthRefresher(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	r := &OAuthRefresher{Source: StaticConfig(testOAuthConfig(srv.URL))}

	fresh, err := r.Refresh(context.Background(), &Credential{AccessToken: "old", RefreshToken: "good-refresh", Expiry: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "access-from-refresh", fresh.AccessToken)
	assert.Equal(t, "good-refresh", fresh.RefreshToken, "refresh token is kept when the server does not rotate it")
	assert.True(t, fresh.Expiry.After(time.Now()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "client-id", fresh.ClientID)
	assert.Equal(t, srv.URL, fresh.TokenURI)

	_, err = r.Refresh(context.Background(), &Credential{AccessToken: "old", RefreshToken: "revoked"})
	assert.Error(t, err)

	_, err = r.Refresh(context.Background(), &Credential{AccessToken: "old"})
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestManagerWithRealRefresher(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	store := NewFileTokenStore(t.TempDir() + "/token.json")
	require.NoError(t, store.Save(context.Background(), &Credential{
		AccessToken:  "old",
		RefreshToken: "good-refresh",
		Expiry:       time.Now().Add(-time.Hour),
		Scopes:       testScopes,
	}))

	config := testOAuthConfig(srv.URL)
	m := NewCredentialManager(slog.New(slog.NewTextHandler(io.Discard, nil)), store, testScopes, StaticConfig(config))
	m.authorizer = newTestFlow(t, config, func(string) error {
		t.Fatal("interactive flow must not run when refresh succeeds")
		return nil
	})

	cred, err := m.Obtain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-from-refresh", cred.AccessToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	reloaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-from-refresh", reloaded.AccessToken)
	assert.True(t, cred.Expiry.Equal(reloaded.Expiry))
	assert.Equal(t, cred.Scopes, reloaded.Scopes)
	assert.Equal(t, "client-id", reloaded.ClientID)
	assert.Equal(t, srv.URL, reloaded.TokenURI)
}

func TestOAuthRefresher_UsesRecordedClient(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	r := &OAuthRefresher{Source: func() (*oauth2.Config, error) {
		return nil, errors.New("credentials.json not found")
	}}

	fresh, err := r.Refresh(context.Background(), &Credential{
		AccessToken:  "old",
		RefreshToken: "good-refresh",
		Scopes:       testScopes,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURI:     srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "access-from-refresh", fresh.AccessToken)
	assert.Equal(t, "client-id", fresh.ClientID)

	_, err = r.Refresh(context.Background(), &Credential{AccessToken: "old", RefreshToken: "good-refresh"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.json not found")
}

func TestCredentialManager_ValidCredentialNeedsNoClientConfig(t *testing.T) {
	store := NewFileTokenStore(t.TempDir() + "/token.json")
	stored := &Credential{AccessToken: "at", Expiry: time.Now().Add(time.Hour), Scopes: testScopes}
	require.NoError(t, store.Save(context.Background(), stored))

	loads := 0
	m := NewCredentialManager(slog.New(slog.NewTextHandler(io.Discard, nil)), store, testScopes, func() (*oauth2.Config, error) {
		loads++
		return nil, errors.New("credentials.json not found")
	})

	cred, err := m.Obtain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at", cred.AccessToken)
	assert.Zero(t, loads)
}

func TestCredentialManager_MissingClientConfigIsAuthError(t *testing.T) {
	store := NewFileTokenStore(t.TempDir() + "/token.json")
	m := NewCredentialManager(slog.New(slog.NewTextHandler(io.Discard, nil)), store, testScopes, func() (*oauth2.Config, error) {
		return nil, errors.New("credentials.json not found")
	})

	_, err := m.Obtain(context.Background())
	var authErr *events.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "credentials.json not found")
}
