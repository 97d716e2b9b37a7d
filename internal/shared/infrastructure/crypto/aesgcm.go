package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// sealedPrefix marks values produced by SealString so plaintext written
// before encryption was enabled is never fed to the cipher.
const sealedPrefix = "enc:v1:"

var (
	// ErrEmptyKey is returned when no key is configured.
	ErrEmptyKey = errors.New("encryption key is empty")
	// ErrKeySize is returned when the decoded key is not 32 bytes.
	ErrKeySize = errors.New("encryption key must be 32 bytes")
	// ErrNotSealed is returned when OpenString receives an unsealed value.
	ErrNotSealed = errors.New("value is not sealed")
)

// Encrypter encrypts and decrypts data.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// FieldCipher protects individual text columns such as intake forms and
// waitlist contact details.
type FieldCipher interface {
	SealString(plaintext string) (string, error)
	OpenString(sealed string) (string, error)
}

// AESEncrypter uses AES-256-GCM for encryption.
type AESEncrypter struct {
	aead cipher.AEAD
}

// NewAESGCMFromBase64Key creates an AESEncrypter from a base64-encoded 32-byte key.
func NewAESGCMFromBase64Key(encodedKey string) (*AESEncrypter, error) {
	if encodedKey == "" {
		return nil, ErrEmptyKey
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, ErrKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESEncrypter{aead: aead}, nil
}

// Encrypt encrypts plaintext and prepends the nonce.
func (e *AESEncrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := e.aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

// Decrypt decrypts ciphertext with a nonce prefix.
func (e *AESEncrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:nonceSize]
	data := ciphertext[nonceSize:]
	return e.aead.Open(nil, nonce, data, nil)
}

// SealString encrypts a text value into a prefixed base64 string.
// Empty input stays empty.
func (e *AESEncrypter) SealString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// OpenString reverses SealString.
func (e *AESEncrypter) OpenString(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrNotSealed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsSealed reports whether v carries the sealed-value prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}
