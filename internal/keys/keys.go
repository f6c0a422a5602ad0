// Package keys derives the cache keys that give OAuth 2.0 clients, tokens
// and accessors a stable identity.
//
// Every function is pure and total. An empty service name or user stands
// for "absent"; when a key cannot be derived the functions return false
// and callers treat that as a cache miss.
package keys

import (
	"strings"

	"github.com/alexjbarnes/credbroker/internal/models"
)

const sep = ":"

// Deriver computes cache keys for one key policy.
type Deriver interface {
	ClientKey(callerURI, serviceName string) (string, bool)
	TokenKey(callerURI, serviceName, user, scope string, typ models.TokenType) (string, bool)
	AccessorKey(callerURI, serviceName, user, scope string) (string, bool)
}

// ServiceScoped is the default policy. It discards the caller URI, which
// can carry a volatile content hash, so logically identical callers share
// one credential.
type ServiceScoped struct{}

func (ServiceScoped) ClientKey(_, serviceName string) (string, bool) {
	if serviceName == "" {
		return "", false
	}

	return serviceName, true
}

func (ServiceScoped) TokenKey(_, serviceName, user, scope string, typ models.TokenType) (string, bool) {
	if serviceName == "" || user == "" {
		return "", false
	}

	return strings.Join([]string{serviceName, user, scope, string(typ)}, sep), true
}

func (ServiceScoped) AccessorKey(_, serviceName, user, scope string) (string, bool) {
	if serviceName == "" || user == "" {
		return "", false
	}

	return strings.Join([]string{serviceName, user, scope}, sep), true
}

// CallerScoped prefixes every key with the caller URI. Use it only when
// caller URIs are stable.
type CallerScoped struct{}

func (CallerScoped) ClientKey(callerURI, serviceName string) (string, bool) {
	if serviceName == "" {
		return "", false
	}

	return callerURI + sep + serviceName, true
}

func (CallerScoped) TokenKey(callerURI, serviceName, user, scope string, typ models.TokenType) (string, bool) {
	if serviceName == "" || user == "" {
		return "", false
	}

	return strings.Join([]string{callerURI, serviceName, user, scope, string(typ)}, sep), true
}

func (CallerScoped) AccessorKey(callerURI, serviceName, user, scope string) (string, bool) {
	if serviceName == "" || user == "" {
		return "", false
	}

	return strings.Join([]string{callerURI, serviceName, user, scope}, sep), true
}

// Default is the policy used by the package-level functions.
var Default Deriver = ServiceScoped{}

// ForPolicy returns the deriver for a configured policy name. Unknown
// names get the default policy.
func ForPolicy(name string) Deriver {
	if name == "caller" {
		return CallerScoped{}
	}

	return ServiceScoped{}
}

// ClientKey derives a client key with the default policy.
func ClientKey(callerURI, serviceName string) (string, bool) {
	return Default.ClientKey(callerURI, serviceName)
}

// TokenKey derives a token key with the default policy.
func TokenKey(callerURI, serviceName, user, scope string, typ models.TokenType) (string, bool) {
	return Default.TokenKey(callerURI, serviceName, user, scope, typ)
}

// AccessorKey derives an accessor key with the default policy.
func AccessorKey(callerURI, serviceName, user, scope string) (string, bool) {
	return Default.AccessorKey(callerURI, serviceName, user, scope)
}
