// Package secretbox cifra valores chicos (el bearer token persistido) con
// XChaCha20-Poly1305. Formato: base64(nonce)|base64(ciphertext).
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sep = "|"

var ErrInvalidKey = errors.New("secretbox: clave inválida (requiere 32 bytes en base64, hex o raw)")

// Box cifra/descifra con una clave fija.
type Box struct {
	key []byte
}

// New parsea la clave (base64 std, base64 raw, hex de 64 chars o raw de 32 bytes).
func New(key string) (*Box, error) {
	k, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	return &Box{key: k}, nil
}

// NewKey genera una clave aleatoria en base64 std, lista para
// session.encryption_key.
func NewKey() (string, error) {
	k := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return "", fmt.Errorf("secretbox: %w", err)
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

func parseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if len(key) == 2*chacha20poly1305.KeySize {
		if h, err := hex.DecodeString(key); err == nil {
			return h, nil
		}
	}
	if len(key) == chacha20poly1305.KeySize {
		return []byte(key), nil
	}
	return nil, ErrInvalidKey
}

// Encrypt cifra plain y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Encrypt(plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("secretbox: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce random: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
func (b *Box) Decrypt(sealed string) (string, error) {
	parts := strings.Split(sealed, sep)
	if len(parts) != 2 {
		return "", errors.New("secretbox: formato inválido, esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("secretbox: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("secretbox: nonce inválido: esperado %d bytes, obtuvo %d", aead.NonceSize(), len(nonce))
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("secretbox: auth/decrypt: %w", err)
	}
	return string(pt), nil
}
