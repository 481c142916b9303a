package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// blobVersion is prepended to every blob and bound into the AAD, so changing
// it makes every existing blob fail authentication.
const blobVersion byte = 0x01

var hkdfInfo = []byte("agent-portal.vault.credentials.v1")

var errShortBlob = errors.New("ciphertext too short")

// Config is the explicit key material for a Vault.
type Config struct {
	EncryptionKey string
}

// Cipher seals credential blobs with XChaCha20-Poly1305 under a key derived
// from Config.EncryptionKey.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(cfg Config) (*Cipher, error) {
	if cfg.EncryptionKey == "" {
		return nil, errors.New("vault: encryption key is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.EncryptionKey), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// associatedData binds a blob to its row.
func associatedData(userID uint64, service ServiceType) []byte {
	ad := []byte{blobVersion}
	ad = strconv.AppendUint(ad, userID, 10)
	ad = append(ad, ':')
	return append(ad, service...)
}

// Seal returns base64url(version || nonce || ciphertext+tag).
func (c *Cipher) Seal(plaintext []byte, userID uint64, service ServiceType) (string, error) {
	ns := c.aead.NonceSize()
	blob := make([]byte, 1+ns, 1+ns+len(plaintext)+c.aead.Overhead())
	blob[0] = blobVersion
	nonce := blob[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	// Seal appends ciphertext+tag after the nonce.
	blob = c.aead.Seal(blob, nonce, plaintext, associatedData(userID, service))
	return base64.RawURLEncoding.EncodeToString(blob), nil
}

// Open authenticates and decrypts a blob produced by Seal for the same row.
func (c *Cipher) Open(encoded string, userID uint64, service ServiceType) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < 1+c.aead.NonceSize()+c.aead.Overhead() {
		return nil, errShortBlob
	}
	if data[0] != blobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", data[0])
	}
	nonce := data[1 : 1+c.aead.NonceSize()]
	sealed := data[1+c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, associatedData(userID, service))
	if err != nil {
		return nil, fmt.Errorf("aead open: %w", err)
	}
	return plaintext, nil
}
