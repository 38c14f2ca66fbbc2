package google

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Credential is an OAuth2 access/refresh token pair with its expiry and the
// scopes it was granted for. The client it was issued to is recorded so the
// token can be refreshed without the client-secret file.
type Credential struct {
	AccessToken  string    `json:"token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	TokenURI     string    `json:"token_uri,omitempty"`
}

// NewCredential converts an oauth2 token. Granted scopes come from the token
// response when the server reports them, otherwise requested is used.
func NewCredential(tok *oauth2.Token, requested []string) *Credential {
	c := &Credential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		c.Scopes = strings.Fields(granted)
	} else {
		c.Scopes = append([]string(nil), requested...)
	}
	return c
}

// Token returns the credential as an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// OAuthConfig rebuilds the client configuration the credential was issued
// to. It returns nil when no client was recorded.
func (c *Credential) OAuthConfig() *oauth2.Config {
	if c.ClientID == "" || c.TokenURI == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  google.Endpoint.AuthURL,
			TokenURL: c.TokenURI,
		},
	}
}

func (c *Credential) bindClient(config *oauth2.Config) {
	c.ClientID = config.ClientID
	c.ClientSecret = config.ClientSecret
	c.TokenURI = config.Endpoint.TokenURL
}

// Expired reports whether the access token has expired at now. A zero expiry
// never expires.
func (c *Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// Valid reports whether the credential can authorize calls at now.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.AccessToken != "" && !c.Expired(now)
}

// HasScopes reports whether every scope in required was granted.
func (c *Credential) HasScopes(required []string) bool {
	granted := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}
