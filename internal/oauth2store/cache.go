package oauth2store

import (
	"fmt"
	"sync"

	cberrors "github.com/alexjbarnes/credbroker/internal/errors"
	"github.com/alexjbarnes/credbroker/internal/keys"
	"github.com/alexjbarnes/credbroker/internal/models"
)

// Cache is the in-memory tier in front of a Persister. Getters return nil
// on a miss, including when no key can be derived. Writers return an error
// wrapping ErrCache when they cannot key the value.
type Cache interface {
	GetClient(callerURI, serviceName string) *models.Client
	StoreClient(c *models.Client) error
	StoreClients(cs []*models.Client) error
	RemoveClient(callerURI, serviceName string) (*models.Client, error)
	ClearClients() error

	GetToken(id models.Identity, typ models.TokenType) *models.Token
	StoreToken(id models.Identity, t *models.Token) error
	StoreTokens(ts []*models.Token) error
	RemoveToken(id models.Identity, typ models.TokenType) (*models.Token, error)
	ClearTokens() error

	GetAccessor(id models.Identity) *models.Accessor
	GetAccessorByState(state string) *models.Accessor
	StoreAccessor(a *models.Accessor) error
	RemoveAccessor(a *models.Accessor) error
	ClearAccessors() error

	IsPrimed() bool
	SetPrimed(primed bool)

	// Keys is the deriver the cache files values under.
	Keys() keys.Deriver
}

// MemoryCache is a process-lifetime Cache backed by maps.
type MemoryCache struct {
	keys keys.Deriver

	mu        sync.RWMutex
	clients   map[string]*models.Client   // client key -> client
	tokens    map[string]*models.Token    // token key -> token
	accessors map[string]*models.Accessor // accessor key -> accessor
	states    map[string]*models.Accessor // accessor state -> accessor
	primed    bool
}

// NewMemoryCache creates an empty cache keyed with d. A nil deriver uses
// the default policy.
func NewMemoryCache(d keys.Deriver) *MemoryCache {
	if d == nil {
		d = keys.Default
	}

	return &MemoryCache{
		keys:      d,
		clients:   make(map[string]*models.Client),
		tokens:    make(map[string]*models.Token),
		accessors: make(map[string]*models.Accessor),
		states:    make(map[string]*models.Accessor),
	}
}

// Keys returns the deriver the cache was created with.
func (c *MemoryCache) Keys() keys.Deriver {
	return c.keys
}

func cacheError(what string, args ...any) error {
	return fmt.Errorf("%w: %s", cberrors.ErrCache, fmt.Sprintf(what, args...))
}

// GetClient returns the cached client, or nil.
func (c *MemoryCache) GetClient(callerURI, serviceName string) *models.Client {
	key, ok := c.keys.ClientKey(callerURI, serviceName)
	if !ok {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.clients[key]
}

// StoreClient caches a fully built client under its own identity.
func (c *MemoryCache) StoreClient(client *models.Client) error {
	key, ok := c.keys.ClientKey(client.CallerURI, client.ServiceName)
	if !ok {
		return cacheError("client %q has no service name", client.ClientID)
	}

	c.mu.Lock()
	c.clients[key] = client
	c.mu.Unlock()

	return nil
}

// StoreClients caches a batch. Nothing is stored if any client lacks a key.
func (c *MemoryCache) StoreClients(cs []*models.Client) error {
	batch := make(map[string]*models.Client, len(cs))
	for _, client := range cs {
		key, ok := c.keys.ClientKey(client.CallerURI, client.ServiceName)
		if !ok {
			return cacheError("client %q has no service name", client.ClientID)
		}

		batch[key] = client
	}

	c.mu.Lock()
	for key, client := range batch {
		c.clients[key] = client
	}
	c.mu.Unlock()

	return nil
}

// RemoveClient evicts and returns a client. Removing an absent client is
// not an error.
func (c *MemoryCache) RemoveClient(callerURI, serviceName string) (*models.Client, error) {
	key, ok := c.keys.ClientKey(callerURI, serviceName)
	if !ok {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	client := c.clients[key]
	delete(c.clients, key)

	return client, nil
}

// ClearClients drops every cached client.
func (c *MemoryCache) ClearClients() error {
	c.mu.Lock()
	c.clients = make(map[string]*models.Client)
	c.mu.Unlock()

	return nil
}

func (c *MemoryCache) tokenKey(id models.Identity, typ models.TokenType) (string, bool) {
	return c.keys.TokenKey(id.CallerURI, id.ServiceName, id.User, id.Scope, typ)
}

// GetToken returns the token cached for id, or nil.
func (c *MemoryCache) GetToken(id models.Identity, typ models.TokenType) *models.Token {
	key, ok := c.tokenKey(id, typ)
	if !ok {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tokens[key]
}

// StoreToken caches t under id. The token's own fields are not used for
// the key, so a shared token can be filed under a processed identity
// without being modified.
func (c *MemoryCache) StoreToken(id models.Identity, t *models.Token) error {
	key, ok := c.tokenKey(id, t.Type)
	if !ok {
		return cacheError("token for service %q has no key", id.ServiceName)
	}

	c.mu.Lock()
	c.tokens[key] = t
	c.mu.Unlock()

	return nil
}

// StoreTokens caches a batch under each token's own identity. Nothing is
// stored if any token lacks a key.
func (c *MemoryCache) StoreTokens(ts []*models.Token) error {
	batch := make(map[string]*models.Token, len(ts))
	for _, t := range ts {
		key, ok := c.tokenKey(t.Identity(), t.Type)
		if !ok {
			return cacheError("token for service %q has no key", t.ServiceName)
		}

		batch[key] = t
	}

	c.mu.Lock()
	for key, t := range batch {
		c.tokens[key] = t
	}
	c.mu.Unlock()

	return nil
}

// RemoveToken evicts and returns the token cached for id.
func (c *MemoryCache) RemoveToken(id models.Identity, typ models.TokenType) (*models.Token, error) {
	key, ok := c.tokenKey(id, typ)
	if !ok {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.tokens[key]
	delete(c.tokens, key)

	return t, nil
}

// ClearTokens drops every cached token.
func (c *MemoryCache) ClearTokens() error {
	c.mu.Lock()
	c.tokens = make(map[string]*models.Token)
	c.mu.Unlock()

	return nil
}

func (c *MemoryCache) accessorKey(id models.Identity) (string, bool) {
	return c.keys.AccessorKey(id.CallerURI, id.ServiceName, id.User, id.Scope)
}

// GetAccessor returns the accessor cached for id, or nil.
func (c *MemoryCache) GetAccessor(id models.Identity) *models.Accessor {
	key, ok := c.accessorKey(id)
	if !ok {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.accessors[key]
}

// GetAccessorByState returns the accessor carrying the given state, or nil.
func (c *MemoryCache) GetAccessorByState(state string) *models.Accessor {
	if state == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.states[state]
}

// StoreAccessor caches a under its identity and its state. An accessor
// previously stored under the same identity stays reachable by state
// until it is removed.
func (c *MemoryCache) StoreAccessor(a *models.Accessor) error {
	key, ok := c.accessorKey(a.Identity)
	if !ok {
		return cacheError("accessor for service %q has no key", a.Identity.ServiceName)
	}

	c.mu.Lock()
	c.accessors[key] = a
	if a.State != "" {
		c.states[a.State] = a
	}
	c.mu.Unlock()

	return nil
}

// RemoveAccessor evicts a. The identity slot is only cleared when it
// still holds a, so a replacement stored first is left in place.
func (c *MemoryCache) RemoveAccessor(a *models.Accessor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.State != "" && c.states[a.State] == a {
		delete(c.states, a.State)
	}

	if key, ok := c.accessorKey(a.Identity); ok && c.accessors[key] == a {
		delete(c.accessors, key)
	}

	return nil
}

// ClearAccessors drops every cached accessor.
func (c *MemoryCache) ClearAccessors() error {
	c.mu.Lock()
	c.accessors = make(map[string]*models.Accessor)
	c.states = make(map[string]*models.Accessor)
	c.mu.Unlock()

	return nil
}

// IsPrimed reports whether bootstrap data has been loaded.
func (c *MemoryCache) IsPrimed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.primed
}

// SetPrimed records whether bootstrap data has been loaded.
func (c *MemoryCache) SetPrimed(primed bool) {
	c.mu.Lock()
	c.primed = primed
	c.mu.Unlock()
}

var _ Cache = (*MemoryCache)(nil)
