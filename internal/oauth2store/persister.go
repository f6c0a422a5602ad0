package oauth2store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/alexjbarnes/credbroker/internal/config"
	cberrors "github.com/alexjbarnes/credbroker/internal/errors"
	"github.com/alexjbarnes/credbroker/internal/logging"
	"github.com/alexjbarnes/credbroker/internal/models"
	"github.com/alexjbarnes/credbroker/internal/secrets"
	"github.com/viant/afs"
)

//go:generate mockgen -destination=persister_mock_test.go -package=oauth2store . Persister

// Persister is the durable read path consulted on a cache miss. Find
// methods return nil, nil when nothing is stored for the identity.
type Persister interface {
	FindClient(callerURI, serviceName string) (*models.Client, error)
	LoadClients() ([]*models.Client, error)

	FindToken(id models.Identity, typ models.TokenType) (*models.Token, error)
	InsertToken(id models.Identity, t *models.Token) error
	UpdateToken(id models.Identity, t *models.Token) error
	RemoveToken(id models.Identity, typ models.TokenType) (*models.Token, error)
	LoadTokens() ([]*models.Token, error)
}

func persistenceError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", cberrors.ErrPersistence, what, err)
}

// ConfigPersister serves clients from an OAuth2 config document. Tokens
// are never preloaded from static config; its token methods store
// nothing, leaving durability to DurablePersister.
type ConfigPersister struct {
	placeholders config.Placeholders
	enc          secrets.Encrypter
	logger       *slog.Logger

	mu     sync.Mutex
	raw    []byte
	format Format
	parsed *document
}

// NewConfigPersister creates a persister over an in-memory document.
func NewConfigPersister(doc []byte, format Format, p config.Placeholders, enc secrets.Encrypter, logger *slog.Logger) *ConfigPersister {
	if enc == nil {
		enc = secrets.Plaintext{}
	}

	return &ConfigPersister{
		placeholders: p,
		enc:          enc,
		logger:       logging.OrDiscard(logger),
		raw:          doc,
		format:       format,
	}
}

// LoadConfigPersister fetches the document at docURL and wraps it.
func LoadConfigPersister(ctx context.Context, fs afs.Service, docURL string, p config.Placeholders, enc secrets.Encrypter, logger *slog.Logger) (*ConfigPersister, error) {
	data, err := FetchDocument(ctx, fs, docURL)
	if err != nil {
		return nil, persistenceError("loading oauth2 config", err)
	}

	return NewConfigPersister(data, FormatForURL(docURL), p, enc, logger), nil
}

// Reload replaces the document. Clients already cached are unaffected
// until the store is cleared and primed again.
func (p *ConfigPersister) Reload(doc []byte) {
	p.mu.Lock()
	p.raw = doc
	p.parsed = nil
	p.mu.Unlock()
}

func (p *ConfigPersister) document() (*document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.parsed != nil {
		return p.parsed, nil
	}

	doc, err := parseDocument(p.raw, p.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", cberrors.ErrPersistence, cberrors.ErrConfigParse, err)
	}

	p.parsed = doc

	return doc, nil
}

// FindClient builds the client bound to serviceName, or nil when the
// service has no binding.
func (p *ConfigPersister) FindClient(callerURI, serviceName string) (*models.Client, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}

	binding, ok := doc.GadgetBindings[serviceName]
	if !ok || serviceName == "" {
		return nil, nil
	}

	return p.buildClient(doc, serviceName, binding, callerURI)
}

// LoadClients builds one client per binding. A dangling client or
// provider reference fails the whole load.
func (p *ConfigPersister) LoadClients() ([]*models.Client, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc.GadgetBindings))
	for name := range doc.GadgetBindings {
		names = append(names, name)
	}

	sort.Strings(names)

	clients := make([]*models.Client, 0, len(names))

	for _, name := range names {
		c, err := p.buildClient(doc, name, doc.GadgetBindings[name], "")
		if err != nil {
			return nil, err
		}

		clients = append(clients, c)
	}

	p.logger.Debug("oauth2 clients loaded", slog.Int("count", len(clients)))

	return clients, nil
}

// buildClient joins a binding with its client settings and provider. Each
// call returns a fresh Client, so bindings sharing a client never alias.
func (p *ConfigPersister) buildClient(doc *document, serviceName string, b bindingDoc, callerURI string) (*models.Client, error) {
	settings, ok := doc.Clients[b.ClientName]
	if !ok {
		return nil, fmt.Errorf("%w: binding %q references unknown client %q", cberrors.ErrPersistence, serviceName, b.ClientName)
	}

	provider, ok := p.provider(doc, settings.ProviderName)
	if !ok {
		return nil, fmt.Errorf("%w: client %q references unknown provider %q", cberrors.ErrPersistence, b.ClientName, settings.ProviderName)
	}

	if callerURI == "" {
		callerURI = p.placeholders.Expand(b.CallerURI)
	}

	c := &models.Client{
		ClientID:                 settings.ClientID,
		AuthorizationURL:         provider.AuthorizationURL,
		TokenURL:                 provider.TokenURL,
		RedirectURI:              p.placeholders.Expand(settings.RedirectURI),
		GrantType:                settings.GrantType,
		ClientAuthenticationType: provider.ClientAuthenticationType,
		AuthorizationHeader:      provider.AuthorizationHeader,
		URLParameter:             provider.URLParameter,
		Type:                     models.ParseClientType(settings.Type),
		AllowedDomains:           slices.Clone(settings.AllowedDomains),
		AllowModuleOverride:      bool(b.AllowModuleOverride),
		SharedToken:              bool(settings.SharedToken),
		ServiceName:              serviceName,
		CallerURI:                callerURI,
	}

	if settings.ClientSecret != "" {
		if err := c.SetSecret(p.enc, []byte(settings.ClientSecret)); err != nil {
			return nil, persistenceError("client "+b.ClientName, err)
		}
	}

	return c, nil
}

// provider resolves a provider entry with its placeholders expanded.
func (p *ConfigPersister) provider(doc *document, name string) (models.Provider, bool) {
	pd, ok := doc.Providers[name]
	if !ok {
		return models.Provider{}, false
	}

	return models.Provider{
		Name:                     name,
		AuthorizationURL:         p.placeholders.Expand(pd.authorizationURL()),
		TokenURL:                 p.placeholders.Expand(pd.tokenURL()),
		ClientAuthenticationType: pd.ClientAuthentication,
		AuthorizationHeader:      bool(pd.UsesAuthorizationHeader),
		URLParameter:             bool(pd.UsesURLParameter),
	}, true
}

// FindToken always misses.
func (p *ConfigPersister) FindToken(models.Identity, models.TokenType) (*models.Token, error) {
	return nil, nil
}

// InsertToken stores nothing.
func (p *ConfigPersister) InsertToken(models.Identity, *models.Token) error {
	return nil
}

// UpdateToken stores nothing.
func (p *ConfigPersister) UpdateToken(models.Identity, *models.Token) error {
	return nil
}

// RemoveToken removes nothing.
func (p *ConfigPersister) RemoveToken(models.Identity, models.TokenType) (*models.Token, error) {
	return nil, nil
}

// LoadTokens returns no tokens.
func (p *ConfigPersister) LoadTokens() ([]*models.Token, error) {
	return []*models.Token{}, nil
}

var _ Persister = (*ConfigPersister)(nil)
