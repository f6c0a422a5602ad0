// Package errors defines the error kinds surfaced by the credential stores.
// Absence of a credential is never an error; lookups return nil instead.
package errors

import "errors"

// Storage errors. ErrOAuthStorage is the single category callers see;
// ErrCache and ErrPersistence identify the failing tier underneath it.
var (
	ErrOAuthStorage = errors.New("oauth storage error")
	ErrCache        = errors.New("oauth cache error")
	ErrPersistence  = errors.New("oauth persistence error")
)

// Lookup and configuration errors.
var (
	ErrNoSuchStore = errors.New("no credential store for user")
	ErrConfigParse = errors.New("malformed oauth configuration")
)
