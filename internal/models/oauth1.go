package models

import "crypto/rsa"

// KeyType selects how an OAuth 1.0a consumer signs requests.
type KeyType string

const (
	KeyTypeHMAC      KeyType = "HMAC_SYMMETRIC"
	KeyTypeRSA       KeyType = "RSA_PRIVATE"
	KeyTypePlaintext KeyType = "PLAINTEXT"
)

// Valid reports whether k is one of the known key types.
func (k KeyType) Valid() bool {
	switch k {
	case KeyTypeHMAC, KeyTypeRSA, KeyTypePlaintext:
		return true
	}

	return false
}

// ServiceCredential is the consumer key and secret for one OAuth 1.0a
// service, either global or owned by a single user.
type ServiceCredential struct {
	ConsumerKey    string  `json:"consumer_key"`
	ConsumerSecret string  `json:"consumer_secret"`
	KeyType        KeyType `json:"key_type"`
	DisplayName    string  `json:"key_name,omitempty"`
	CallbackURL    string  `json:"callback_url,omitempty"`
	UsesBodyHash   bool    `json:"bodyHash,omitempty"`

	// RSAKey is the parsed form of ConsumerSecret for RSA_PRIVATE.
	RSAKey *rsa.PrivateKey `json:"-"`
}

// TokenRecord is an OAuth 1.0a access token and its metadata.
type TokenRecord struct {
	AccessToken       string `json:"access_token"`
	TokenSecret       string `json:"token_secret"`
	SessionHandle     string `json:"session_handle,omitempty"`
	TokenExpireMillis int64  `json:"token_expire_millis,omitempty"`
}

// TokenIndex identifies an OAuth 1.0a token. It is comparable and used
// directly as a map key. Build it with NewTokenIndex.
type TokenIndex struct {
	ServiceName string
	TokenName   string
	UserID      string
}

// NewTokenIndex returns the index for a token, or false when userID is
// empty. A token is never stored without an owning user.
func NewTokenIndex(serviceName, tokenName, userID string) (TokenIndex, bool) {
	if userID == "" {
		return TokenIndex{}, false
	}

	return TokenIndex{ServiceName: serviceName, TokenName: tokenName, UserID: userID}, true
}

// UserCredentialStore maps service names to one user's own credentials.
type UserCredentialStore map[string]ServiceCredential
