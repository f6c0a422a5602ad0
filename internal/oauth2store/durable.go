package oauth2store

import (
	"fmt"

	cberrors "github.com/alexjbarnes/credbroker/internal/errors"
	"github.com/alexjbarnes/credbroker/internal/keys"
	"github.com/alexjbarnes/credbroker/internal/models"
	"github.com/alexjbarnes/credbroker/internal/state"
)

// DurablePersister serves clients from a ConfigPersister and keeps tokens
// in a bbolt state database.
type DurablePersister struct {
	*ConfigPersister

	state *state.State
	keys  keys.Deriver
}

// NewDurablePersister combines a config document with a token database.
// Token keys are derived with d, which should match the cache's policy.
func NewDurablePersister(cp *ConfigPersister, st *state.State, d keys.Deriver) *DurablePersister {
	if d == nil {
		d = keys.Default
	}

	return &DurablePersister{ConfigPersister: cp, state: st, keys: d}
}

func (p *DurablePersister) key(id models.Identity, typ models.TokenType) (string, bool) {
	return p.keys.TokenKey(id.CallerURI, id.ServiceName, id.User, id.Scope, typ)
}

// FindToken returns the stored token for id, or nil.
func (p *DurablePersister) FindToken(id models.Identity, typ models.TokenType) (*models.Token, error) {
	key, ok := p.key(id, typ)
	if !ok {
		return nil, nil
	}

	t, err := p.state.GetToken(key)
	if err != nil {
		return nil, persistenceError("reading token", err)
	}

	return t, nil
}

// InsertToken stores t under id. The stored copy carries id's caller URI
// so a later LoadTokens files it under the same key.
func (p *DurablePersister) InsertToken(id models.Identity, t *models.Token) error {
	return p.save(id, t)
}

// UpdateToken replaces the token stored under id.
func (p *DurablePersister) UpdateToken(id models.Identity, t *models.Token) error {
	return p.save(id, t)
}

func (p *DurablePersister) save(id models.Identity, t *models.Token) error {
	key, ok := p.key(id, t.Type)
	if !ok {
		return fmt.Errorf("%w: token for service %q has no key", cberrors.ErrPersistence, id.ServiceName)
	}

	stored := t.Clone()
	stored.CallerURI = id.CallerURI

	if err := p.state.SaveToken(key, stored); err != nil {
		return persistenceError("writing token", err)
	}

	return nil
}

// RemoveToken deletes and returns the token stored under id.
func (p *DurablePersister) RemoveToken(id models.Identity, typ models.TokenType) (*models.Token, error) {
	key, ok := p.key(id, typ)
	if !ok {
		return nil, nil
	}

	t, err := p.state.DeleteToken(key)
	if err != nil {
		return nil, persistenceError("deleting token", err)
	}

	return t, nil
}

// LoadTokens returns every stored token.
func (p *DurablePersister) LoadTokens() ([]*models.Token, error) {
	ts, err := p.state.AllTokens()
	if err != nil {
		return nil, persistenceError("loading tokens", err)
	}

	return ts, nil
}

var _ Persister = (*DurablePersister)(nil)
