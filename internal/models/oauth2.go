// Package models defines the credential types shared by the stores.
package models

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alexjbarnes/credbroker/internal/secrets"
	"golang.org/x/oauth2"
)

// ClientType is the OAuth 2.0 client type of a registration.
type ClientType string

const (
	ClientTypeConfidential ClientType = "CONFIDENTIAL"
	ClientTypePublic       ClientType = "PUBLIC"
	ClientTypeUnknown      ClientType = "UNKNOWN"
)

// ParseClientType maps a config value to a ClientType, case-insensitively.
func ParseClientType(s string) ClientType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ClientTypeConfidential):
		return ClientTypeConfidential
	case string(ClientTypePublic):
		return ClientTypePublic
	default:
		return ClientTypeUnknown
	}
}

// TokenType distinguishes access and refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

// Client authentication types for the token endpoint.
const (
	ClientAuthBasic    = "Basic"
	ClientAuthStandard = "STANDARD"
)

// Provider is an OAuth 2.0 authorization server as configured.
type Provider struct {
	Name                     string
	AuthorizationURL         string
	TokenURL                 string
	ClientAuthenticationType string
	AuthorizationHeader      bool
	URLParameter             bool
}

// Client is an OAuth 2.0 client registration bound to one service name.
// Clients are built at load time and read-only afterwards; callers that
// need to change one work on a Clone.
type Client struct {
	ClientID                 string
	EncryptedSecret          []byte
	AuthorizationURL         string
	TokenURL                 string
	RedirectURI              string
	GrantType                string
	ClientAuthenticationType string
	AuthorizationHeader      bool
	URLParameter             bool
	Type                     ClientType
	AllowedDomains           []string
	AllowModuleOverride      bool
	SharedToken              bool
	ServiceName              string
	CallerURI                string
}

// Clone returns a deep copy of c.
func (c *Client) Clone() *Client {
	cp := *c
	cp.EncryptedSecret = slices.Clone(c.EncryptedSecret)
	cp.AllowedDomains = slices.Clone(c.AllowedDomains)

	return &cp
}

// SetSecret encrypts and stores the client secret.
func (c *Client) SetSecret(enc secrets.Encrypter, secret []byte) error {
	ct, err := enc.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("encrypting client secret: %w", err)
	}

	c.EncryptedSecret = ct

	return nil
}

// Secret decrypts the client secret.
func (c *Client) Secret(enc secrets.Encrypter) ([]byte, error) {
	if len(c.EncryptedSecret) == 0 {
		return nil, nil
	}

	return enc.Decrypt(c.EncryptedSecret)
}

// SharedIdentity is the caller identity every gadget bound to a shared
// token client resolves to.
func (c *Client) SharedIdentity() string {
	return c.ClientID + ":" + c.ServiceName
}

// AuthStyle maps the configured client authentication to x/oauth2.
func (c *Client) AuthStyle() oauth2.AuthStyle {
	if strings.EqualFold(c.ClientAuthenticationType, ClientAuthBasic) || c.AuthorizationHeader {
		return oauth2.AuthStyleInHeader
	}

	if strings.EqualFold(c.ClientAuthenticationType, ClientAuthStandard) || c.URLParameter {
		return oauth2.AuthStyleInParams
	}

	return oauth2.AuthStyleAutoDetect
}

// OAuth2Config builds the x/oauth2 configuration for this client.
func (c *Client) OAuth2Config(enc secrets.Encrypter, scopes ...string) (*oauth2.Config, error) {
	secret, err := c.Secret(enc)
	if err != nil {
		return nil, fmt.Errorf("decrypting client secret: %w", err)
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: string(secret),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizationURL,
			TokenURL:  c.TokenURL,
			AuthStyle: c.AuthStyle(),
		},
		RedirectURL: c.RedirectURI,
		Scopes:      scopes,
	}, nil
}

// Identity is the logical key of a token or accessor. Stores pass it
// explicitly to the cache and persister instead of rewriting the
// CallerURI field of a shared Token.
type Identity struct {
	CallerURI   string
	ServiceName string
	User        string
	Scope       string
}

// WithCallerURI returns a copy of id with the caller URI replaced.
func (id Identity) WithCallerURI(callerURI string) Identity {
	id.CallerURI = callerURI
	return id
}

// Token is an OAuth 2.0 access or refresh token for one identity.
type Token struct {
	EncryptedValue []byte            `json:"value"`
	Type           TokenType         `json:"type"`
	TokenType      string            `json:"token_type,omitempty"`
	CallerURI      string            `json:"caller_uri"`
	ServiceName    string            `json:"service_name"`
	User           string            `json:"user"`
	Scope          string            `json:"scope"`
	IssuedAt       time.Time         `json:"issued_at"`
	ExpiresAt      time.Time         `json:"expires_at,omitzero"`
	Properties     map[string]string `json:"properties,omitempty"`
}

// Identity returns the logical key held in the token's own fields.
func (t *Token) Identity() Identity {
	return Identity{
		CallerURI:   t.CallerURI,
		ServiceName: t.ServiceName,
		User:        t.User,
		Scope:       t.Scope,
	}
}

// Clone returns a deep copy of t.
func (t *Token) Clone() *Token {
	cp := *t
	cp.EncryptedValue = slices.Clone(t.EncryptedValue)
	cp.Properties = maps.Clone(t.Properties)

	return &cp
}

// SetValue encrypts and stores the token value.
func (t *Token) SetValue(enc secrets.Encrypter, value []byte) error {
	ct, err := enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting token value: %w", err)
	}

	t.EncryptedValue = ct

	return nil
}

// Value decrypts the token value.
func (t *Token) Value(enc secrets.Encrypter) ([]byte, error) {
	return enc.Decrypt(t.EncryptedValue)
}

// Expired reports whether the token has an expiry at or before now.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Accessor is a live OAuth 2.0 session: a client with its current access
// and refresh tokens. Accessors are derived, never loaded from storage.
type Accessor struct {
	State        string
	Identity     Identity
	Client       *Client
	AccessToken  *Token
	RefreshToken *Token

	enc     secrets.Encrypter
	invalid atomic.Bool
}

// NewAccessor assembles an accessor. Either token may be nil.
func NewAccessor(state string, id Identity, client *Client, access, refresh *Token, enc secrets.Encrypter) *Accessor {
	return &Accessor{
		State:        state,
		Identity:     id,
		Client:       client,
		AccessToken:  access,
		RefreshToken: refresh,
		enc:          enc,
	}
}

// Valid reports whether the accessor may still be used.
func (a *Accessor) Valid() bool {
	return a.Client != nil && !a.invalid.Load()
}

// Invalidate marks the accessor stale. The next lookup rebuilds it.
func (a *Accessor) Invalidate() {
	a.invalid.Store(true)
}

// Config returns the x/oauth2 configuration for the accessor's client,
// scoped to the accessor's scope.
func (a *Accessor) Config() (*oauth2.Config, error) {
	return a.Client.OAuth2Config(a.enc, strings.Fields(a.Identity.Scope)...)
}

// Token returns the decrypted tokens as an x/oauth2 token, or nil when
// the accessor holds no access token yet.
func (a *Accessor) Token() (*oauth2.Token, error) {
	if a.AccessToken == nil {
		return nil, nil
	}

	access, err := a.AccessToken.Value(a.enc)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken: string(access),
		TokenType:   a.AccessToken.TokenType,
		Expiry:      a.AccessToken.ExpiresAt,
	}

	if a.RefreshToken != nil {
		refresh, err := a.RefreshToken.Value(a.enc)
		if err != nil {
			return nil, fmt.Errorf("decrypting refresh token: %w", err)
		}

		tok.RefreshToken = string(refresh)
	}

	return tok, nil
}
