// Package secrets encrypts client secrets and token values held by the
// credential stores. Values stay encrypted in memory and on disk and are
// only decrypted when handed to protocol code.
package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// envelopePrefix tags ciphertexts so a key change is detected
	// rather than producing garbage.
	envelopePrefix = "cb1:"

	// keyLen is the AES-256 key length.
	keyLen = 32
)

var hkdfInfo = []byte("credbroker-secret-v1")

// Encrypter protects secret material at rest.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Plaintext is a passthrough Encrypter used when no key is configured.
type Plaintext struct{}

func (Plaintext) Encrypt(plaintext []byte) ([]byte, error) {
	return bytes.Clone(plaintext), nil
}

func (Plaintext) Decrypt(ciphertext []byte) ([]byte, error) {
	return bytes.Clone(ciphertext), nil
}

// AESEncrypter seals values with AES-256-GCM. The key is derived from
// the configured key material with HKDF-SHA256.
type AESEncrypter struct {
	aead cipher.AEAD
}

// NewAESEncrypter derives an AES-256 key from keyMaterial and returns an
// encrypter using it.
func NewAESEncrypter(keyMaterial []byte) (*AESEncrypter, error) {
	keyMaterial = bytes.TrimSpace(keyMaterial)
	if len(keyMaterial) == 0 {
		return nil, fmt.Errorf("secrets: key material is required")
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, keyMaterial, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("secrets: deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: create gcm: %w", err)
	}

	return &AESEncrypter{aead: aead}, nil
}

// Encrypt returns prefix || nonce || sealed plaintext.
func (e *AESEncrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secrets: nonce generation failed: %w", err)
	}

	out := make([]byte, 0, len(envelopePrefix)+len(nonce)+len(plaintext)+e.aead.Overhead())
	out = append(out, envelopePrefix...)
	out = append(out, nonce...)

	return e.aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Tampered or foreign ciphertexts fail.
func (e *AESEncrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, []byte(envelopePrefix)) {
		return nil, fmt.Errorf("secrets: invalid ciphertext envelope prefix")
	}

	payload := ciphertext[len(envelopePrefix):]

	nonceSize := e.aead.NonceSize()
	if len(payload) < nonceSize+e.aead.Overhead() {
		return nil, fmt.Errorf("secrets: ciphertext too short")
	}

	plaintext, err := e.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt payload: %w", err)
	}

	return plaintext, nil
}

// GenerateKey returns a random hex key suitable for OAUTH_ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	b := make([]byte, keyLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("secrets: generating key: %w", err)
	}

	return fmt.Sprintf("%x", b), nil
}

var (
	_ Encrypter = Plaintext{}
	_ Encrypter = (*AESEncrypter)(nil)
)
