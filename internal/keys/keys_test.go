package keys

import (
	"testing"

	"github.com/alexjbarnes/credbroker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allDerivers = map[string]Deriver{
	"service": ServiceScoped{},
	"caller":  CallerScoped{},
}

func TestClientKey_IgnoresCallerURI(t *testing.T) {
	uris := []string{"", "http://a.example/g.xml", "http://a.example/g.xml?v=1f3e", "urn:other"}
	for _, a := range uris {
		for _, b := range uris {
			ka, okA := ClientKey(a, "svc")
			kb, okB := ClientKey(b, "svc")
			require.True(t, okA)
			require.True(t, okB)
			assert.Equal(t, ka, kb, "%q vs %q", a, b)
		}
	}
}

func TestDefaultFormats(t *testing.T) {
	k, ok := ClientKey("http://g", "svc")
	require.True(t, ok)
	assert.Equal(t, "svc", k)

	k, ok = TokenKey("http://g", "svc", "john", "read", models.TokenTypeAccess)
	require.True(t, ok)
	assert.Equal(t, "svc:john:read:ACCESS", k)

	k, ok = TokenKey("http://g", "svc", "john", "", models.TokenTypeRefresh)
	require.True(t, ok)
	assert.Equal(t, "svc:john::REFRESH", k)

	k, ok = AccessorKey("http://g", "svc", "john", "read")
	require.True(t, ok)
	assert.Equal(t, "svc:john:read", k)
}

func TestCallerScopedFormats(t *testing.T) {
	d := CallerScoped{}

	k, _ := d.ClientKey("http://g", "svc")
	assert.Equal(t, "http://g:svc", k)

	k, _ = d.TokenKey("http://g", "svc", "john", "read", models.TokenTypeAccess)
	assert.Equal(t, "http://g:svc:john:read:ACCESS", k)

	k, _ = d.AccessorKey("http://g", "svc", "john", "read")
	assert.Equal(t, "http://g:svc:john:read", k)

	a, _ := d.AccessorKey("http://a", "svc", "john", "")
	b, _ := d.AccessorKey("http://b", "svc", "john", "")
	assert.NotEqual(t, a, b)
}

func TestMissingServiceName_NoKey(t *testing.T) {
	for name, d := range allDerivers {
		_, ok := d.ClientKey("http://g", "")
		assert.False(t, ok, name)

		_, ok = d.TokenKey("http://g", "", "john", "s", models.TokenTypeAccess)
		assert.False(t, ok, name)

		_, ok = d.AccessorKey("http://g", "", "john", "s")
		assert.False(t, ok, name)
	}
}

func TestMissingUser_NoTokenOrAccessorKey(t *testing.T) {
	for name, d := range allDerivers {
		for _, uri := range []string{"", "http://g"} {
			for _, scope := range []string{"", "read"} {
				_, ok := d.TokenKey(uri, "svc", "", scope, models.TokenTypeAccess)
				assert.False(t, ok, name)

				_, ok = d.AccessorKey(uri, "svc", "", scope)
				assert.False(t, ok, name)
			}
		}

		_, ok := d.ClientKey("http://g", "svc")
		assert.True(t, ok, "client key does not need a user (%s)", name)
	}
}

func TestTokenKey_DistinguishesType(t *testing.T) {
	a, _ := TokenKey("", "svc", "john", "", models.TokenTypeAccess)
	r, _ := TokenKey("", "svc", "john", "", models.TokenTypeRefresh)
	assert.NotEqual(t, a, r)
}

func TestForPolicy(t *testing.T) {
	assert.IsType(t, CallerScoped{}, ForPolicy("caller"))
	assert.IsType(t, ServiceScoped{}, ForPolicy("service"))
	assert.IsType(t, ServiceScoped{}, ForPolicy(""))
}
