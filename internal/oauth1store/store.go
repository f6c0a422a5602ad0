// Package oauth1store holds OAuth 1.0a consumer credentials and tokens in
// memory. Global credentials come from a config document; users may add
// their own per-service overrides. Nothing here is persisted.
package oauth1store

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"github.com/alexjbarnes/credbroker/internal/config"
	cberrors "github.com/alexjbarnes/credbroker/internal/errors"
	"github.com/alexjbarnes/credbroker/internal/logging"
	"github.com/alexjbarnes/credbroker/internal/models"
	"github.com/tidwall/gjson"
)

// Store is safe for concurrent use.
type Store struct {
	placeholders config.Placeholders
	logger       *slog.Logger

	mu     sync.RWMutex
	global map[string]models.ServiceCredential
	users  map[string]models.UserCredentialStore
	tokens map[models.TokenIndex]models.TokenRecord
}

// CredentialSummary describes a user credential without its secret.
type CredentialSummary struct {
	ServiceName string
	ConsumerKey string
	KeyType     models.KeyType
	DisplayName string
	CallbackURL string
}

// NewStore creates an empty store. Placeholders are expanded in callback
// URLs read by Init.
func NewStore(p config.Placeholders, logger *slog.Logger) *Store {
	return &Store{
		placeholders: p,
		logger:       logging.OrDiscard(logger),
		global:       make(map[string]models.ServiceCredential),
		users:        make(map[string]models.UserCredentialStore),
		tokens:       make(map[models.TokenIndex]models.TokenRecord),
	}
}

// Init replaces the global credentials with those in doc, a JSON object
// mapping service names to consumer settings. Entries that cannot be used
// are logged and skipped. User credentials and tokens are kept.
func (s *Store) Init(doc []byte) error {
	global := make(map[string]models.ServiceCredential)

	if len(doc) > 0 {
		if !gjson.ValidBytes(doc) {
			return fmt.Errorf("%w: oauth1 config is not valid json", cberrors.ErrConfigParse)
		}

		root := gjson.ParseBytes(doc)
		if !root.IsObject() {
			return fmt.Errorf("%w: oauth1 config must be an object", cberrors.ErrConfigParse)
		}

		root.ForEach(func(key, value gjson.Result) bool {
			name := key.String()

			cred, err := s.parseEntry(value)
			if err != nil {
				s.logger.Warn("skipping oauth1 consumer",
					slog.String("service", name),
					slog.String("error", err.Error()),
				)

				return true
			}

			global[name] = cred

			return true
		})
	}

	s.mu.Lock()
	s.global = global
	s.mu.Unlock()

	s.logger.Info("oauth1 consumers loaded", slog.Int("count", len(global)))

	return nil
}

func (s *Store) parseEntry(v gjson.Result) (models.ServiceCredential, error) {
	if !v.IsObject() {
		return models.ServiceCredential{}, fmt.Errorf("entry is not an object")
	}

	cred := models.ServiceCredential{
		ConsumerKey:    v.Get("consumer_key").String(),
		ConsumerSecret: v.Get("consumer_secret").String(),
		KeyType:        models.KeyType(v.Get("key_type").String()),
		DisplayName:    v.Get("key_name").String(),
		CallbackURL:    s.placeholders.Expand(v.Get("callback_url").String()),
		UsesBodyHash:   v.Get("bodyHash").Bool(),
	}

	if err := prepareCredential(&cred); err != nil {
		return models.ServiceCredential{}, err
	}

	return cred, nil
}

// prepareCredential validates cred and parses its RSA key.
func prepareCredential(cred *models.ServiceCredential) error {
	if cred.ConsumerKey == "" {
		return fmt.Errorf("missing consumer_key")
	}

	if cred.ConsumerSecret == "" {
		return fmt.Errorf("missing consumer_secret")
	}

	if cred.KeyType == "" {
		cred.KeyType = models.KeyTypeHMAC
	}

	if !cred.KeyType.Valid() {
		return fmt.Errorf("unknown key_type %q", cred.KeyType)
	}

	if cred.KeyType == models.KeyTypeRSA && cred.RSAKey == nil {
		key, err := parsePrivateKey(cred.ConsumerSecret)
		if err != nil {
			return err
		}

		cred.RSAKey = key
	}

	return nil
}

// GetConsumerKeyAndSecret returns the consumer for serviceName. A
// credential added by the token's owner wins over the global one.
func (s *Store) GetConsumerKeyAndSecret(st SecurityToken, serviceName string, provider ServiceProvider) (*Consumer, error) {
	s.mu.RLock()

	cred, ok := s.users[st.OwnerID][serviceName]
	if !ok {
		cred, ok = s.global[serviceName]
	}

	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no oauth1 consumer configured for service %q", cberrors.ErrOAuthStorage, serviceName)
	}

	signer, err := newSigner(cred)
	if err != nil {
		return nil, fmt.Errorf("%w: service %q: %w", cberrors.ErrOAuthStorage, serviceName, err)
	}

	return &Consumer{
		Key:          cred.ConsumerKey,
		DisplayName:  cred.DisplayName,
		CallbackURL:  cred.CallbackURL,
		UsesBodyHash: cred.UsesBodyHash,
		KeyType:      cred.KeyType,
		Provider:     provider,
		Signer:       signer,
	}, nil
}

// GetTokenInfo returns the viewer's token, or nil.
func (s *Store) GetTokenInfo(st SecurityToken, serviceName, tokenName string) *models.TokenRecord {
	idx, ok := models.NewTokenIndex(serviceName, tokenName, st.ViewerID)
	if !ok {
		return nil
	}

	s.mu.RLock()
	rec, ok := s.tokens[idx]
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	return &rec
}

// SetTokenInfo stores the viewer's token, replacing any previous one.
func (s *Store) SetTokenInfo(st SecurityToken, serviceName, tokenName string, rec models.TokenRecord) error {
	idx, ok := models.NewTokenIndex(serviceName, tokenName, st.ViewerID)
	if !ok {
		return fmt.Errorf("%w: oauth1 token for %q has no viewer", cberrors.ErrOAuthStorage, serviceName)
	}

	s.mu.Lock()
	s.tokens[idx] = rec
	s.mu.Unlock()

	return nil
}

// RemoveToken deletes the viewer's token.
func (s *Store) RemoveToken(st SecurityToken, serviceName, tokenName string) error {
	idx, ok := models.NewTokenIndex(serviceName, tokenName, st.ViewerID)
	if !ok {
		return fmt.Errorf("%w: oauth1 token for %q has no viewer", cberrors.ErrOAuthStorage, serviceName)
	}

	s.mu.Lock()
	delete(s.tokens, idx)
	s.mu.Unlock()

	return nil
}

// AddUserCredential stores a user's own credential for serviceName,
// creating the user's store on first use.
func (s *Store) AddUserCredential(userID, serviceName string, cred models.ServiceCredential) error {
	if userID == "" || serviceName == "" {
		return fmt.Errorf("%w: user and service are required", cberrors.ErrOAuthStorage)
	}

	if err := prepareCredential(&cred); err != nil {
		return fmt.Errorf("%w: service %q: %w", cberrors.ErrOAuthStorage, serviceName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store, ok := s.users[userID]
	if !ok {
		store = make(models.UserCredentialStore)
		s.users[userID] = store
	}

	store[serviceName] = cred

	return nil
}

// UserCredentials lists a user's credentials, sorted by service name.
func (s *Store) UserCredentials(userID string) ([]CredentialSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	store, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cberrors.ErrNoSuchStore, userID)
	}

	out := make([]CredentialSummary, 0, len(store))
	for name, cred := range store {
		out = append(out, CredentialSummary{
			ServiceName: name,
			ConsumerKey: cred.ConsumerKey,
			KeyType:     cred.KeyType,
			DisplayName: cred.DisplayName,
			CallbackURL: cred.CallbackURL,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })

	return out, nil
}

// RemoveUserCredential deletes a user's credential. Removing a service
// the user never added is not an error; an unknown user is.
func (s *Store) RemoveUserCredential(userID, serviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %q", cberrors.ErrNoSuchStore, userID)
	}

	delete(store, serviceName)

	return nil
}

// NameStore returns a copy of the user's credential store.
func (s *Store) NameStore(userID string) (models.UserCredentialStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	store, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cberrors.ErrNoSuchStore, userID)
	}

	return maps.Clone(store), nil
}
