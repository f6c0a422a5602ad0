package oauth2store

import (
	"testing"

	cberrors "github.com/alexjbarnes/credbroker/internal/errors"
	"github.com/alexjbarnes/credbroker/internal/keys"
	"github.com/alexjbarnes/credbroker/internal/models"
	"github.com/alexjbarnes/credbroker/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(user string) models.Identity {
	return models.Identity{CallerURI: "http://gadget/a.xml", ServiceName: "svc", User: user, Scope: "read"}
}

func newToken(id models.Identity, typ models.TokenType) *models.Token {
	return &models.Token{
		EncryptedValue: []byte("v-" + id.User),
		Type:           typ,
		CallerURI:      id.CallerURI,
		ServiceName:    id.ServiceName,
		User:           id.User,
		Scope:          id.Scope,
	}
}

// --- Clients ---

func TestCache_ClientRoundTrip(t *testing.T) {
	c := NewMemoryCache(nil)
	client := &models.Client{ClientID: "cid", ServiceName: "svc", CallerURI: "http://a"}

	require.NoError(t, c.StoreClient(client))

	assert.Same(t, client, c.GetClient("http://a", "svc"))
	assert.Same(t, client, c.GetClient("http://other", "svc"), "default policy ignores the caller URI")
	assert.Nil(t, c.GetClient("http://a", "other"))
	assert.Nil(t, c.GetClient("http://a", ""))
}

func TestCache_ClientCallerScoped(t *testing.T) {
	c := NewMemoryCache(keys.CallerScoped{})
	require.NoError(t, c.StoreClient(&models.Client{ServiceName: "svc", CallerURI: "http://a"}))

	assert.NotNil(t, c.GetClient("http://a", "svc"))
	assert.Nil(t, c.GetClient("http://b", "svc"))
}

func TestCache_StoreClientWithoutServiceName(t *testing.T) {
	c := NewMemoryCache(nil)
	err := c.StoreClient(&models.Client{ClientID: "cid"})
	assert.ErrorIs(t, err, cberrors.ErrCache)
}

func TestCache_StoreClientsAllOrNothing(t *testing.T) {
	c := NewMemoryCache(nil)

	err := c.StoreClients([]*models.Client{
		{ClientID: "a", ServiceName: "svc-a"},
		{ClientID: "b"},
	})
	require.ErrorIs(t, err, cberrors.ErrCache)
	assert.Nil(t, c.GetClient("", "svc-a"))

	require.NoError(t, c.StoreClients([]*models.Client{
		{ClientID: "a", ServiceName: "svc-a"},
		{ClientID: "b", ServiceName: "svc-b"},
	}))
	assert.NotNil(t, c.GetClient("", "svc-a"))
	assert.NotNil(t, c.GetClient("", "svc-b"))
}

func TestCache_RemoveAndClearClients(t *testing.T) {
	c := NewMemoryCache(nil)
	require.NoError(t, c.StoreClient(&models.Client{ClientID: "a", ServiceName: "svc-a"}))
	require.NoError(t, c.StoreClient(&models.Client{ClientID: "b", ServiceName: "svc-b"}))

	removed, err := c.RemoveClient("", "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "a", removed.ClientID)
	assert.Nil(t, c.GetClient("", "svc-a"))

	removed, err = c.RemoveClient("", "svc-a")
	require.NoError(t, err)
	assert.Nil(t, removed)

	require.NoError(t, c.ClearClients())
	assert.Nil(t, c.GetClient("", "svc-b"))
}

// --- Tokens ---

func TestCache_TokenRoundTrip(t *testing.T) {
	c := NewMemoryCache(nil)
	id := testIdentity("john")
	tok := newToken(id, models.TokenTypeAccess)

	require.NoError(t, c.StoreToken(id, tok))

	got := c.GetToken(id, models.TokenTypeAccess)
	require.NotNil(t, got)
	assert.Equal(t, *tok, *got)
	assert.Nil(t, c.GetToken(id, models.TokenTypeRefresh))
	assert.Nil(t, c.GetToken(testIdentity("jane"), models.TokenTypeAccess))
}

func TestCache_StoreTokenUnderExplicitIdentity(t *testing.T) {
	c := NewMemoryCache(keys.CallerScoped{})
	raw := testIdentity("john")
	processed := raw.WithCallerURI("cid:svc")
	tok := newToken(raw, models.TokenTypeAccess)

	require.NoError(t, c.StoreToken(processed, tok))

	assert.Same(t, tok, c.GetToken(processed, models.TokenTypeAccess))
	assert.Nil(t, c.GetToken(raw, models.TokenTypeAccess))
	assert.Equal(t, "http://gadget/a.xml", tok.CallerURI, "token fields are not rewritten")
}

func TestCache_TokenWithoutUser(t *testing.T) {
	c := NewMemoryCache(nil)
	id := testIdentity("")

	assert.Nil(t, c.GetToken(id, models.TokenTypeAccess))
	assert.ErrorIs(t, c.StoreToken(id, newToken(id, models.TokenTypeAccess)), cberrors.ErrCache)

	removed, err := c.RemoveToken(id, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestCache_StoreTokensUsesOwnIdentity(t *testing.T) {
	c := NewMemoryCache(nil)
	a := newToken(testIdentity("john"), models.TokenTypeAccess)
	r := newToken(testIdentity("john"), models.TokenTypeRefresh)

	require.NoError(t, c.StoreTokens([]*models.Token{a, r}))

	assert.Same(t, a, c.GetToken(testIdentity("john"), models.TokenTypeAccess))
	assert.Same(t, r, c.GetToken(testIdentity("john"), models.TokenTypeRefresh))

	err := c.StoreTokens([]*models.Token{newToken(testIdentity(""), models.TokenTypeAccess)})
	assert.ErrorIs(t, err, cberrors.ErrCache)
}

func TestCache_RemoveAndClearTokens(t *testing.T) {
	c := NewMemoryCache(nil)
	id := testIdentity("john")
	require.NoError(t, c.StoreToken(id, newToken(id, models.TokenTypeAccess)))
	require.NoError(t, c.StoreToken(id, newToken(id, models.TokenTypeRefresh)))

	removed, err := c.RemoveToken(id, models.TokenTypeAccess)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Nil(t, c.GetToken(id, models.TokenTypeAccess))

	require.NoError(t, c.ClearTokens())
	assert.Nil(t, c.GetToken(id, models.TokenTypeRefresh))
}

// --- Accessors ---

func testAccessor(state string, id models.Identity) *models.Accessor {
	return models.NewAccessor(state, id, &models.Client{ClientID: "cid"}, nil, nil, secrets.Plaintext{})
}

func TestCache_AccessorByKeyAndState(t *testing.T) {
	c := NewMemoryCache(nil)
	a := testAccessor("st-1", testIdentity("john"))

	require.NoError(t, c.StoreAccessor(a))

	assert.Same(t, a, c.GetAccessor(testIdentity("john")))
	assert.Same(t, a, c.GetAccessorByState("st-1"))
	assert.Nil(t, c.GetAccessorByState(""))
	assert.Nil(t, c.GetAccessorByState("unknown"))
}

func TestCache_AccessorWithoutUser(t *testing.T) {
	c := NewMemoryCache(nil)
	assert.ErrorIs(t, c.StoreAccessor(testAccessor("s", testIdentity(""))), cberrors.ErrCache)
	assert.Nil(t, c.GetAccessor(testIdentity("")))
}

func TestCache_RemoveAccessorKeepsReplacement(t *testing.T) {
	c := NewMemoryCache(nil)
	old := testAccessor("old", testIdentity("john"))
	fresh := testAccessor("fresh", testIdentity("john"))

	require.NoError(t, c.StoreAccessor(old))
	require.NoError(t, c.StoreAccessor(fresh))
	assert.Same(t, old, c.GetAccessorByState("old"), "old accessor stays reachable until removed")

	require.NoError(t, c.RemoveAccessor(old))

	assert.Same(t, fresh, c.GetAccessor(testIdentity("john")))
	assert.Same(t, fresh, c.GetAccessorByState("fresh"))
	assert.Nil(t, c.GetAccessorByState("old"))
}

func TestCache_ClearAccessors(t *testing.T) {
	c := NewMemoryCache(nil)
	require.NoError(t, c.StoreAccessor(testAccessor("s", testIdentity("john"))))

	require.NoError(t, c.ClearAccessors())

	assert.Nil(t, c.GetAccessor(testIdentity("john")))
	assert.Nil(t, c.GetAccessorByState("s"))
}

// --- Primed ---

func TestCache_Primed(t *testing.T) {
	c := NewMemoryCache(nil)
	assert.False(t, c.IsPrimed())

	c.SetPrimed(true)
	assert.True(t, c.IsPrimed())

	require.NoError(t, c.ClearClients())
	assert.True(t, c.IsPrimed(), "clearing a partition does not reset the flag")
}
