// Package twitchauth implements the OAuth authorization-code flow against
// id.twitch.tv for acquiring and refreshing the bot's chat credential.
package twitchauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Token is the provider-neutral result of an exchange or refresh, shaped for
// the oauth_tokens table.
type Token struct {
	Access  string
	Refresh string
	Expiry  time.Time
	Scope   string
}

// Provider wraps the oauth2 client configuration for Twitch.
type Provider struct {
	cfg oauth2.Config
}

// New builds a provider from app credentials. scopes is space- or
// comma-separated, matching the TWITCH_SCOPES env format.
func New(clientID, clientSecret, redirectURI, scopes string) *Provider {
	ep := endpoints.Twitch
	// Twitch wants client credentials in the form body, not basic auth.
	ep.AuthStyle = oauth2.AuthStyleInParams
	return &Provider{cfg: oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       splitScopes(scopes),
		Endpoint:     ep,
	}}
}

// WithEndpoint points the provider at an alternate identity host using
// Twitch's path layout. Tests aim this at a local stub.
func (p *Provider) WithEndpoint(base string) *Provider {
	p.cfg.Endpoint = oauth2.Endpoint{
		AuthURL:   base + "/oauth2/authorize",
		TokenURL:  base + "/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return p
}

// AuthCodeURL returns the user authorization URL for the code grant.
func (p *Provider) AuthCodeURL(state string) (string, error) {
	if p.cfg.ClientID == "" || p.cfg.RedirectURL == "" {
		return "", errors.New("missing client ID or redirect URI")
	}
	return p.cfg.AuthCodeURL(state), nil
}

// Exchange swaps an authorization code for access and refresh tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*Token, error) {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" || code == "" {
		return nil, errors.New("missing required parameter for auth code exchange")
	}
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("twitch auth code exchange failed: %w", err)
	}
	return fromOAuth2(tok), nil
}

// Refresh exchanges a refresh token for a new access token. The returned
// Token carries the server's refresh token when one was issued, otherwise the
// one passed in.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" || refreshToken == "" {
		return nil, errors.New("missing clientID/clientSecret/refreshToken")
	}
	// A token with only a refresh component is invalid, which forces the
	// source to hit the token endpoint immediately.
	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("twitch refresh failed: %w", err)
	}
	return fromOAuth2(tok), nil
}

func fromOAuth2(tok *oauth2.Token) *Token {
	out := &Token{
		Access:  tok.AccessToken,
		Refresh: tok.RefreshToken,
		Expiry:  tok.Expiry,
		Scope:   scopeString(tok),
	}
	if out.Expiry.IsZero() {
		// Twitch always sends expires_in; default to an hour if it didn't.
		out.Expiry = time.Now().Add(60 * time.Minute)
	}
	return out
}

// scopeString flattens the scope field, which Twitch returns as a JSON array.
func scopeString(tok *oauth2.Token) string {
	switch v := tok.Extra("scope").(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

func splitScopes(scopes string) []string {
	return strings.FieldsFunc(scopes, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
