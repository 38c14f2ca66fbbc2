package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"calhelper/internal/events"

	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// Authorizer runs an interactive authorization flow.
type Authorizer interface {
	Authorize(ctx context.Context) (*Credential, error)
}

// Manager obtains a usable credential: the stored one if still valid, a
// refreshed one if it expired, or a new one from the interactive flow.
type Manager struct {
	logger     *slog.Logger
	store      TokenStore
	refresher  Refresher
	authorizer Authorizer
	scopes     []string
	now        func() time.Time
}

// NewManager wires a Manager from its collaborators.
func NewManager(logger *slog.Logger, store TokenStore, refresher Refresher, authorizer Authorizer, scopes []string) *Manager {
	return &Manager{
		logger:     logger,
		store:      store,
		refresher:  refresher,
		authorizer: authorizer,
		scopes:     scopes,
		now:        time.Now,
	}
}

// ConfigSource loads the OAuth2 client configuration. It is only called when
// a refresh or the consent flow actually needs it.
type ConfigSource func() (*oauth2.Config, error)

// StaticConfig returns a ConfigSource for an already loaded config.
func StaticConfig(config *oauth2.Config) ConfigSource {
	return func() (*oauth2.Config, error) { return config, nil }
}

// NewCredentialManager builds a Manager that refreshes through the token
// endpoint and falls back to a local-redirect consent flow. A valid stored
// credential is returned without calling source.
func NewCredentialManager(logger *slog.Logger, store TokenStore, scopes []string, source ConfigSource) *Manager {
	return NewManager(logger, store,
		&OAuthRefresher{Source: source},
		&deferredFlow{logger: logger, source: source},
		scopes,
	)
}

// deferredFlow loads the client configuration only when consent is needed.
type deferredFlow struct {
	logger *slog.Logger
	source ConfigSource
}

func (f *deferredFlow) Authorize(ctx context.Context) (*Credential, error) {
	config, err := f.source()
	if err != nil {
		return nil, err
	}
	return NewLocalServerFlow(f.logger, config).Authorize(ctx)
}

// Obtain returns a credential that can authorize calendar calls.
//
// A failed refresh is not fatal: it falls through to interactive
// re-authorization, the same branch taken when there is no refresh token.
// Only a failed interactive flow or a failed save returns an *events.AuthError.
func (m *Manager) Obtain(ctx context.Context) (*Credential, error) {
	cred, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoCredential):
		m.logger.Debug("No stored credential found.")
	case err != nil:
		m.logger.Warn("Ignoring unreadable stored credential", "error", err)
		cred = nil
	}

	now := m.now()
	if cred != nil && cred.Valid(now) && cred.HasScopes(m.scopes) {
		m.logger.Debug("Using stored credential.", "expiry", cred.Expiry)
		return cred, nil
	}

	var fresh *Credential
	if cred != nil && cred.Expired(now) && cred.RefreshToken != "" && cred.HasScopes(m.scopes) {
		m.logger.Info("Stored credential expired, refreshing.", "expiry", cred.Expiry)
		fresh, err = m.refresher.Refresh(ctx, cred)
		if err != nil {
			m.logger.Warn("Token refresh failed, falling back to interactive authorization", "error", err)
			fresh = nil
		}
	}

	if fresh == nil {
		m.logger.Info("No usable credential, starting interactive authorization.")
		fresh, err = m.authorizer.Authorize(ctx)
		if err != nil {
			return nil, &events.AuthError{Op: "interactive authorization", Err: err}
		}
	}

	if err := m.store.Save(ctx, fresh); err != nil {
		return nil, &events.AuthError{Op: "persist credential", Err: err}
	}
	return fresh, nil
}

// OAuthRefresher refreshes through an oauth2 token endpoint. The client
// recorded in the credential is used when present, Source otherwise.
type OAuthRefresher struct {
	Source ConfigSource
}

// Refresh forces a refresh token exchange.
func (r *OAuthRefresher) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("credential has no refresh token")
	}

	config := cred.OAuthConfig()
	if config == nil {
		if r.Source == nil {
			return nil, errors.New("no client configuration to refresh with")
		}
		var err error
		if config, err = r.Source(); err != nil {
			return nil, fmt.Errorf("failed to load client configuration: %w", err)
		}
	}

	// An empty access token makes the token source go straight to the
	// refresh exchange.
	stale := &oauth2.Token{RefreshToken: cred.RefreshToken}
	tok, err := config.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	fresh := NewCredential(tok, cred.Scopes)
	fresh.bindClient(config)
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	return fresh, nil
}
