package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"storefront/internal/apperror"
)

var keySizes = map[string]int{
	"aes-128-cbc": 16,
	"aes-192-cbc": 24,
	"aes-256-cbc": 32,
}

// Cipher is a deterministic symmetric cipher: with a fixed key and IV the same
// plaintext always encrypts to the same ciphertext, so encrypted columns can
// be matched with plain equality queries.
//
// Changing the key or IV makes every stored ciphertext unreadable.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// NewCipher builds a Cipher for one of aes-128-cbc, aes-192-cbc or aes-256-cbc.
// Key and IV given as hex of the exact size are used verbatim; anything else
// is stretched with SHA-256.
func NewCipher(algorithm, key, iv string) (*Cipher, error) {
	size, ok := keySizes[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported encryption algorithm %q", algorithm)
	}

	block, err := aes.NewCipher(deriveBytes(key, size))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &Cipher{block: block, iv: deriveBytes(iv, aes.BlockSize)}, nil
}

func deriveBytes(material string, size int) []byte {
	if raw, err := hex.DecodeString(material); err == nil && len(raw) == size {
		return raw
	}
	sum := sha256.Sum256([]byte(material))
	return sum[:size]
}

// Encrypt returns the hex encoded ciphertext of plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed input fails with apperror.ErrCrypto.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", apperror.Wrap(apperror.ErrCrypto, "ciphertext is not valid hex", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", apperror.New(apperror.ErrCrypto, "ciphertext has invalid length")
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, apperror.New(apperror.ErrCrypto, "ciphertext has invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, apperror.New(apperror.ErrCrypto, "ciphertext has invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
