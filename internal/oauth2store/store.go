// Package oauth2store keeps OAuth 2.0 clients, tokens and accessors in a
// cache in front of a persister.
//
// Tokens are filed under a processed identity: for clients configured
// with a shared token the caller URI is replaced by clientId:serviceName,
// so every gadget bound to that client sees the same token. The processed
// identity is passed to the cache and persister explicitly and the
// caller's Token is never modified.
package oauth2store

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	cberrors "github.com/alexjbarnes/credbroker/internal/errors"
	"github.com/alexjbarnes/credbroker/internal/logging"
	"github.com/alexjbarnes/credbroker/internal/models"
	"github.com/alexjbarnes/credbroker/internal/secrets"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Store coordinates the cache and persister for OAuth 2.0 credentials.
// It is safe for concurrent use.
type Store struct {
	cache     Cache
	persister Persister
	enc       secrets.Encrypter
	logger    *slog.Logger
	newState  func() string

	// locks serializes read-modify-write sequences per token cache key.
	locks *keyedMutex

	// gens counts token writes per accessor key. An accessor is only
	// cached if no write landed while it was being built.
	genMu sync.Mutex
	gens  map[string]uint64

	// loads coalesces concurrent cache fills for the same key.
	loads singleflight.Group

	initMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.OrDiscard(l) }
}

// WithEncrypter sets the encrypter handed to accessors. It must be the
// one used to encrypt client secrets and token values.
func WithEncrypter(enc secrets.Encrypter) Option {
	return func(s *Store) {
		if enc != nil {
			s.enc = enc
		}
	}
}

// NewStore creates a store over cache and persister.
func NewStore(cache Cache, persister Persister, opts ...Option) *Store {
	s := &Store{
		cache:     cache,
		persister: persister,
		enc:       secrets.Plaintext{},
		logger:    logging.Discard(),
		newState:  uuid.NewString,
		locks:     newKeyedMutex(),
		gens:      make(map[string]uint64),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func storageError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", cberrors.ErrOAuthStorage, what, err)
}

func identityKey(kind string, id models.Identity, typ models.TokenType) string {
	return strings.Join([]string{kind, id.CallerURI, id.ServiceName, id.User, id.Scope, string(typ)}, "\x00")
}

// tokenLockKey is the cache key of the token slot id addresses, so that
// callers the key policy folds together share one lock.
func (s *Store) tokenLockKey(id models.Identity, typ models.TokenType) string {
	if key, ok := s.cache.Keys().TokenKey(id.CallerURI, id.ServiceName, id.User, id.Scope, typ); ok {
		return "token\x00" + key
	}

	return identityKey("token", id, typ)
}

func (s *Store) accessorLockKey(id models.Identity) string {
	if key, ok := s.cache.Keys().AccessorKey(id.CallerURI, id.ServiceName, id.User, id.Scope); ok {
		return "accessor\x00" + key
	}

	return identityKey("accessor", id, "")
}

// Init loads clients and tokens from the persister into an empty cache.
// It returns false without doing anything when the cache is already
// primed, so every bootstrap path may call it.
func (s *Store) Init() (bool, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.cache.IsPrimed() {
		return false, nil
	}

	if err := s.clearAll(); err != nil {
		return false, storageError("clearing cache", err)
	}

	clients, err := s.persister.LoadClients()
	if err != nil {
		return false, storageError("loading clients", err)
	}

	if err := s.cache.StoreClients(clients); err != nil {
		return false, storageError("caching clients", err)
	}

	tokens, err := s.persister.LoadTokens()
	if err != nil {
		return false, storageError("loading tokens", err)
	}

	if err := s.cache.StoreTokens(tokens); err != nil {
		return false, storageError("caching tokens", err)
	}

	s.cache.SetPrimed(true)

	s.logger.Info("oauth2 store primed",
		slog.Int("clients", len(clients)),
		slog.Int("tokens", len(tokens)),
	)

	return true, nil
}

func (s *Store) clearAll() error {
	if err := s.cache.ClearClients(); err != nil {
		return err
	}

	if err := s.cache.ClearTokens(); err != nil {
		return err
	}

	return s.cache.ClearAccessors()
}

// GetClient returns the client bound to serviceName, loading it from the
// persister on a cache miss. It returns nil when no client is configured.
func (s *Store) GetClient(user, callerURI, serviceName string) (*models.Client, error) {
	if c := s.cache.GetClient(callerURI, serviceName); c != nil {
		return c, nil
	}

	v, err, _ := s.loads.Do(identityKey("client", models.Identity{CallerURI: callerURI, ServiceName: serviceName}, ""), func() (any, error) {
		if c := s.cache.GetClient(callerURI, serviceName); c != nil {
			return c, nil
		}

		c, err := s.persister.FindClient(callerURI, serviceName)
		if err != nil {
			return nil, storageError("finding client", err)
		}

		if c == nil {
			s.logger.Debug("no oauth2 client configured",
				slog.String("service", serviceName),
				slog.String("user", user),
			)

			return nil, nil
		}

		if err := s.cache.StoreClient(c); err != nil {
			return nil, storageError("caching client", err)
		}

		return c, nil
	})
	if err != nil {
		return nil, err
	}

	c, _ := v.(*models.Client)

	return c, nil
}

// processedCallerURI is the caller identity tokens are filed under.
func processedCallerURI(c *models.Client, callerURI string) string {
	if c != nil && c.SharedToken {
		return c.SharedIdentity()
	}

	return callerURI
}

// GetToken returns the token for the caller, loading it from the
// persister on a cache miss. It returns nil when none is stored.
func (s *Store) GetToken(callerURI, serviceName, user, scope string, typ models.TokenType) (*models.Token, error) {
	client, err := s.GetClient(user, callerURI, serviceName)
	if err != nil {
		return nil, err
	}

	id := models.Identity{
		CallerURI:   processedCallerURI(client, callerURI),
		ServiceName: serviceName,
		User:        user,
		Scope:       scope,
	}

	if t := s.cache.GetToken(id, typ); t != nil {
		return t, nil
	}

	unlock := s.locks.Lock(s.tokenLockKey(id, typ))
	defer unlock()

	if t := s.cache.GetToken(id, typ); t != nil {
		return t, nil
	}

	t, err := s.persister.FindToken(id, typ)
	if err != nil {
		return nil, storageError("finding token", err)
	}

	if t == nil {
		return nil, nil
	}

	if err := s.cache.StoreToken(id, t); err != nil {
		return nil, storageError("caching token", err)
	}

	return t, nil
}

// tokenIdentity resolves the processed identity of t. userID fills in a
// token that does not name its user.
func (s *Store) tokenIdentity(userID string, t *models.Token) (models.Identity, error) {
	id := t.Identity()
	if id.User == "" {
		id.User = userID
	}

	client, err := s.GetClient(id.User, id.CallerURI, id.ServiceName)
	if err != nil {
		return models.Identity{}, err
	}

	return id.WithCallerURI(processedCallerURI(client, id.CallerURI)), nil
}

// SetToken stores t, inserting it into the persister when no token exists
// for its identity and updating otherwise. The cache holds t afterwards.
func (s *Store) SetToken(userID string, t *models.Token) error {
	id, err := s.tokenIdentity(userID, t)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(s.tokenLockKey(id, t.Type))
	defer unlock()

	existing := s.cache.GetToken(id, t.Type)
	if existing == nil {
		existing, err = s.persister.FindToken(id, t.Type)
		if err != nil {
			return storageError("finding token", err)
		}
	}

	if existing == nil {
		if err := s.persister.InsertToken(id, t); err != nil {
			return storageError("inserting token", err)
		}
	} else {
		if _, err := s.cache.RemoveToken(id, t.Type); err != nil {
			return storageError("evicting token", err)
		}

		if err := s.persister.UpdateToken(id, t); err != nil {
			return storageError("updating token", err)
		}
	}

	if err := s.cache.StoreToken(id, t); err != nil {
		return storageError("caching token", err)
	}

	s.invalidateAccessor(id)

	return nil
}

// RemoveToken deletes the token from the cache and then the persister and
// returns whichever copy was found.
func (s *Store) RemoveToken(userID string, t *models.Token) (*models.Token, error) {
	id, err := s.tokenIdentity(userID, t)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(s.tokenLockKey(id, t.Type))
	defer unlock()

	removed, err := s.cache.RemoveToken(id, t.Type)
	if err != nil {
		return nil, storageError("evicting token", err)
	}

	persisted, err := s.persister.RemoveToken(id, t.Type)
	if err != nil {
		return nil, storageError("removing token", err)
	}

	s.invalidateAccessor(id)

	if removed == nil {
		removed = persisted
	}

	return removed, nil
}

// invalidateAccessor marks the cached accessor for id stale so the next
// lookup rebuilds it with current tokens. Accessors still being built
// from the previous tokens are refused by storeAccessorAt.
func (s *Store) invalidateAccessor(id models.Identity) {
	key := s.accessorLockKey(id)

	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.gens[key]++

	if a := s.cache.GetAccessor(id); a != nil {
		a.Invalidate()
	}
}

func (s *Store) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	return s.gens[key]
}

// storeAccessorAt caches a unless a token write for key happened after
// generation gen was read. It reports whether a was cached.
func (s *Store) storeAccessorAt(key string, gen uint64, a *models.Accessor) (bool, error) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	if s.gens[key] != gen {
		return false, nil
	}

	if err := s.cache.StoreAccessor(a); err != nil {
		return false, storageError("caching accessor", err)
	}

	return true, nil
}

// GetAccessor returns a valid accessor for the caller, building a fresh
// one when none is cached or the cached one is invalid. It returns nil
// when no client is configured for serviceName or user is empty.
func (s *Store) GetAccessor(callerURI, serviceName, user, scope string) (*models.Accessor, error) {
	if user == "" {
		return nil, nil
	}

	client, err := s.GetClient(user, callerURI, serviceName)
	if err != nil {
		return nil, err
	}

	if client == nil {
		return nil, nil
	}

	id := models.Identity{
		CallerURI:   processedCallerURI(client, callerURI),
		ServiceName: serviceName,
		User:        user,
		Scope:       scope,
	}

	if a := s.cache.GetAccessor(id); a != nil && a.Valid() {
		return a, nil
	}

	key := s.accessorLockKey(id)

	v, err, _ := s.loads.Do(key, func() (any, error) {
		for {
			gen := s.generation(key)

			stale := s.cache.GetAccessor(id)
			if stale != nil && stale.Valid() {
				return stale, nil
			}

			access, err := s.GetToken(callerURI, serviceName, user, scope, models.TokenTypeAccess)
			if err != nil {
				return nil, err
			}

			refresh, err := s.GetToken(callerURI, serviceName, user, scope, models.TokenTypeRefresh)
			if err != nil {
				return nil, err
			}

			a := models.NewAccessor(s.newState(), id, client, access, refresh, s.enc)

			stored, err := s.storeAccessorAt(key, gen, a)
			if err != nil {
				return nil, err
			}

			if !stored {
				s.logger.Debug("tokens changed while building accessor, rebuilding",
					slog.String("service", serviceName),
					slog.String("user", user),
				)

				continue
			}

			// The replacement is in place before the stale accessor goes.
			if stale != nil {
				if err := s.cache.RemoveAccessor(stale); err != nil {
					s.logger.Warn("removing stale accessor",
						slog.String("service", serviceName),
						slog.String("error", err.Error()),
					)
				}
			}

			return a, nil
		}
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.Accessor), nil
}

// GetAccessorByState returns the accessor whose authorization flow
// carries state, or nil.
func (s *Store) GetAccessorByState(state string) *models.Accessor {
	return s.cache.GetAccessorByState(state)
}

// StoreAccessor caches an accessor built elsewhere.
func (s *Store) StoreAccessor(a *models.Accessor) error {
	if err := s.cache.StoreAccessor(a); err != nil {
		return storageError("caching accessor", err)
	}

	return nil
}

// RemoveAccessor evicts an accessor.
func (s *Store) RemoveAccessor(a *models.Accessor) error {
	if err := s.cache.RemoveAccessor(a); err != nil {
		return storageError("evicting accessor", err)
	}

	return nil
}

// InvalidateClient evicts a client from the cache without touching the
// persister.
func (s *Store) InvalidateClient(c *models.Client) error {
	if _, err := s.cache.RemoveClient(c.CallerURI, c.ServiceName); err != nil {
		return storageError("evicting client", err)
	}

	return nil
}

// InvalidateToken evicts a token from the cache without touching the
// persister. The processed identity is resolved from cached clients only.
func (s *Store) InvalidateToken(t *models.Token) error {
	id := t.Identity()
	id = id.WithCallerURI(processedCallerURI(s.cache.GetClient(id.CallerURI, id.ServiceName), id.CallerURI))

	if _, err := s.cache.RemoveToken(id, t.Type); err != nil {
		return storageError("evicting token", err)
	}

	s.invalidateAccessor(id)

	return nil
}

// ClearCache empties every cache partition. The next Init reloads from
// the persister.
func (s *Store) ClearCache() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if err := s.clearAll(); err != nil {
		return storageError("clearing cache", err)
	}

	s.cache.SetPrimed(false)

	return nil
}

// ClearClientCache empties the client partition.
func (s *Store) ClearClientCache() error {
	if err := s.cache.ClearClients(); err != nil {
		return storageError("clearing clients", err)
	}

	return nil
}

// ClearTokenCache empties the token partition.
func (s *Store) ClearTokenCache() error {
	if err := s.cache.ClearTokens(); err != nil {
		return storageError("clearing tokens", err)
	}

	return nil
}

// ClearAccessorCache empties the accessor partition.
func (s *Store) ClearAccessorCache() error {
	if err := s.cache.ClearAccessors(); err != nil {
		return storageError("clearing accessors", err)
	}

	return nil
}

// Reprime clears the cache and loads it again, for use after the
// persister's document changed.
func (s *Store) Reprime() error {
	if err := s.ClearCache(); err != nil {
		return err
	}

	_, err := s.Init()

	return err
}
