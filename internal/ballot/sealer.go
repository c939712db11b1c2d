package ballot

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealerNonceLength = 24

// ErrSealedPayloadInvalid indicates a blob that cannot be authenticated or
// decoded with the configured key.
var ErrSealedPayloadInvalid = errors.New("ballot: sealed payload invalid")

// Sealer renders the voter's private choice record opaque before it is stored
// on the receipt.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// SecretBoxSealer seals blobs with NaCl secretbox (XSalsa20-Poly1305) under a
// single server key. The nonce is prepended to the ciphertext and the result
// is base64 encoded for text-column storage.
type SecretBoxSealer struct {
	key [32]byte
}

// NewSecretBoxSealer constructs a sealer for the provided key.
func NewSecretBoxSealer(key [32]byte) *SecretBoxSealer {
	return &SecretBoxSealer{key: key}
}

// Seal encrypts and authenticates the plaintext.
func (s *SecretBoxSealer) Seal(plaintext []byte) (string, error) {
	var nonce [sealerNonceLength]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decrypts a blob produced by Seal.
func (s *SecretBoxSealer) Open(sealed string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrSealedPayloadInvalid
	}
	if len(decoded) < sealerNonceLength {
		return nil, ErrSealedPayloadInvalid
	}
	var nonce [sealerNonceLength]byte
	copy(nonce[:], decoded[:sealerNonceLength])
	plaintext, ok := secretbox.Open(nil, decoded[sealerNonceLength:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealedPayloadInvalid
	}
	return plaintext, nil
}
