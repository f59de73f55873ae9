package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Rounds = 100000
	keySize      = 32
	nonceSize    = 12
	tagSize      = 16
)

// Bundle is an AES-GCM ciphertext with its IV and authentication tag held
// separately.
type Bundle struct {
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}

// deriveKey uses raw AES key material as is and stretches anything else
// with PBKDF2.
func deriveKey(material string, salt []byte) []byte {
	if decoded, err := decodeMaterial(material); err == nil && validKeySize(len(decoded)) {
		return decoded
	}
	return pbkdf2.Key([]byte(material), salt, pbkdf2Rounds, keySize, sha256.New)
}

func validKeySize(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// decodeMaterial accepts hex or standard/raw base64.
func decodeMaterial(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return nil, fmt.Errorf("value is empty")
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("value is neither hex nor base64")
}

func newGCM(key []byte, ivSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func open(key []byte, bundle Bundle) ([]byte, error) {
	if len(bundle.IV) == 0 {
		return nil, fmt.Errorf("iv cannot be empty")
	}
	if len(bundle.Tag) != tagSize {
		return nil, fmt.Errorf("auth tag must be %d bytes, got %d", tagSize, len(bundle.Tag))
	}

	gcm, err := newGCM(key, len(bundle.IV))
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(bundle.Ciphertext)+len(bundle.Tag))
	sealed = append(sealed, bundle.Ciphertext...)
	sealed = append(sealed, bundle.Tag...)

	plaintext, err := gcm.Open(nil, bundle.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plaintext, nil
}

// DeriveKey resolves key material the same way the supplier does when it
// decrypts, so bundles sealed with it round trip.
func DeriveKey(material, salt string) []byte {
	return deriveKey(material, []byte(salt))
}

// Seal encrypts plaintext under key with a fresh IV.
func Seal(key, plaintext []byte) (Bundle, error) {
	if len(plaintext) == 0 {
		return Bundle{}, fmt.Errorf("plaintext cannot be empty")
	}

	gcm, err := newGCM(key, nonceSize)
	if err != nil {
		return Bundle{}, err
	}

	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Bundle{}, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - gcm.Overhead()

	return Bundle{
		IV:         iv,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// GenerateKey returns a random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
