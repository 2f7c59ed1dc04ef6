package sessvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// 16 byte nonces keep previously sealed rows readable.
const nonceSize = 16

var ErrMalformed = errors.New("malformed sealed value")

// Sealer encrypts with AES-256-GCM into "nonce:tag:ciphertext" hex.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not hex: %w", err)
	}
	return NewSealer(key)
}

func (s *Sealer) Seal(plain []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nil, nonce, plain, nil)
	tagAt := len(out) - s.aead.Overhead()
	ct, tag := out[:tagAt], out[tagAt:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

func (s *Sealer) Open(sealed string) ([]byte, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}
	var raw [3][]byte
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		raw[i] = b
	}
	nonce, tag, ct := raw[0], raw[1], raw[2]
	if len(nonce) != nonceSize || len(tag) != s.aead.Overhead() {
		return nil, ErrMalformed
	}
	return s.aead.Open(nil, nonce, append(ct, tag...), nil)
}
