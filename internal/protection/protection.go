// Package protection implements TuskLang's data protection surface:
// AES-256-GCM encryption with purpose-derived keys, HMAC-SHA256 signing,
// and integrity hashing. The master key comes from TUSKLANG_MASTER_KEY.
package protection

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

const (
	// MasterKeyEnv names the environment variable holding the master key.
	MasterKeyEnv = "TUSKLANG_MASTER_KEY"

	kdfIterations = 100000
	keyLen        = 32
	nonceLen      = 12
)

// ErrNoMasterKey reports a missing master key.
var ErrNoMasterKey = errors.New("protection: " + MasterKeyEnv + " is not set")

// ErrInvalidCiphertext reports undecodable or tampered ciphertext.
var ErrInvalidCiphertext = errors.New("protection: invalid ciphertext")

// Protection derives purpose-scoped keys from a master key and performs
// the encrypt/decrypt/sign operations behind the security operators.
type Protection struct {
	masterKey []byte
	keys      map[string][]byte
}

// New creates a Protection with an explicit master key.
func New(masterKey string) (*Protection, error) {
	if masterKey == "" {
		return nil, ErrNoMasterKey
	}
	return &Protection{
		masterKey: []byte(masterKey),
		keys:      make(map[string][]byte),
	}, nil
}

// FromEnv creates a Protection from TUSKLANG_MASTER_KEY.
func FromEnv() (*Protection, error) {
	return New(os.Getenv(MasterKeyEnv))
}

// deriveKey derives (and memoizes) the key for a purpose. The salt is
// sha256(purpose + masterKey), matching the original derivation so
// payloads interoperate across SDKs.
func (p *Protection) deriveKey(purpose string) ([]byte, error) {
	if key, ok := p.keys[purpose]; ok {
		return key, nil
	}
	salt := sha256.Sum256(append([]byte(purpose), p.masterKey...))
	key, err := pbkdf2.Key(sha256.New, string(p.masterKey), salt[:], kdfIterations, keyLen)
	if err != nil {
		return nil, fmt.Errorf("protection: derive key: %w", err)
	}
	p.keys[purpose] = key
	return key, nil
}

// Encrypt encrypts plaintext under the purpose-derived key and returns
// base64(nonce + ciphertext + tag).
func (p *Protection) Encrypt(plaintext, purpose string) (string, error) {
	if purpose == "" {
		purpose = "encryption"
	}
	key, err := p.deriveKey(purpose)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (p *Protection) Decrypt(encoded, purpose string) (string, error) {
	if purpose == "" {
		purpose = "encryption"
	}
	key, err := p.deriveKey(purpose)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(data) < nonceLen {
		return "", ErrInvalidCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, data[:nonceLen], data[nonceLen:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// Sign returns the HMAC-SHA256 hex signature of data under the signing key.
func (p *Protection) Sign(data string) string {
	key, err := p.deriveKey("signing")
	if err != nil {
		return ""
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks an HMAC signature in constant time.
func (p *Protection) Verify(data, signature string) bool {
	expected := p.Sign(data)
	if expected == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Hash returns the sha256 hex digest used for integrity checks.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
