package oauth1store

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // OAuth 1.0a mandates SHA-1 signatures.
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alexjbarnes/credbroker/internal/models"
)

// Signature method names as sent in oauth_signature_method.
const (
	MethodHMACSHA1  = "HMAC-SHA1"
	MethodRSASHA1   = "RSA-SHA1"
	MethodPlaintext = "PLAINTEXT"
)

// SecurityToken identifies the user a request is made for. OwnerID
// selects per-user consumer credentials; ViewerID scopes tokens.
type SecurityToken struct {
	OwnerID  string
	ViewerID string
	AppURL   string
}

// ServiceProvider holds the OAuth 1.0a endpoints of a service.
type ServiceProvider struct {
	RequestTokenURL  string
	AuthorizationURL string
	AccessTokenURL   string
}

// Signer produces oauth_signature values for one signature method.
type Signer interface {
	Method() string
	Sign(baseString, tokenSecret string) (string, error)
}

// HMACSigner signs with HMAC-SHA1 keyed by the consumer and token secrets.
type HMACSigner struct {
	ConsumerSecret string
}

func (HMACSigner) Method() string { return MethodHMACSHA1 }

func (s HMACSigner) Sign(baseString, tokenSecret string) (string, error) {
	mac := hmac.New(sha1.New, []byte(signingKey(s.ConsumerSecret, tokenSecret)))
	mac.Write([]byte(baseString))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// RSASigner signs with RSASSA-PKCS1-v1_5 over SHA-1. The token secret is
// not used.
type RSASigner struct {
	Key *rsa.PrivateKey
}

func (RSASigner) Method() string { return MethodRSASHA1 }

func (s RSASigner) Sign(baseString, _ string) (string, error) {
	if s.Key == nil {
		return "", errors.New("rsa signer has no private key")
	}

	sum := sha1.Sum([]byte(baseString)) //nolint:gosec // see import
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Key, crypto.SHA1, sum[:])
	if err != nil {
		return "", fmt.Errorf("rsa-sha1 signing: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// PlaintextSigner sends the secrets themselves as the signature.
type PlaintextSigner struct {
	ConsumerSecret string
}

func (PlaintextSigner) Method() string { return MethodPlaintext }

func (s PlaintextSigner) Sign(_, tokenSecret string) (string, error) {
	return signingKey(s.ConsumerSecret, tokenSecret), nil
}

func signingKey(consumerSecret, tokenSecret string) string {
	return percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)
}

// percentEncode applies the RFC 5849 encoding: unreserved characters are
// kept and everything else, including space, is %XX.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Consumer is a consumer key ready to sign requests to a provider.
type Consumer struct {
	Key          string
	DisplayName  string
	CallbackURL  string
	UsesBodyHash bool
	KeyType      models.KeyType
	Provider     ServiceProvider
	Signer       Signer
}

// SignatureMethod is the oauth_signature_method the consumer signs with.
func (c *Consumer) SignatureMethod() string {
	return c.Signer.Method()
}

func newSigner(cred models.ServiceCredential) (Signer, error) {
	switch cred.KeyType {
	case models.KeyTypeRSA:
		if cred.RSAKey == nil {
			return nil, errors.New("rsa credential has no parsed private key")
		}

		return RSASigner{Key: cred.RSAKey}, nil
	case models.KeyTypePlaintext:
		return PlaintextSigner{ConsumerSecret: cred.ConsumerSecret}, nil
	case models.KeyTypeHMAC, "":
		return HMACSigner{ConsumerSecret: cred.ConsumerSecret}, nil
	default:
		return nil, fmt.Errorf("unknown key type %q", cred.KeyType)
	}
}
