// Package security seals data-source credentials and encrypted config files.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the size of the salt in bytes.
	SaltSize = 16
	// NonceSize is the size of the GCM nonce in bytes.
	NonceSize = 12
	// KeySizeAES is the AES-256 key size in bytes.
	KeySizeAES = 32
	// PBKDF2Iterations is the number of PBKDF2 iterations.
	PBKDF2Iterations = 100000
	// EncryptedFileSuffix marks a config file as sealed.
	EncryptedFileSuffix = ".enc"
)

// Sealed holds the components needed to open encrypted data.
type Sealed struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func deriveKey(masterKey, salt []byte) []byte {
	return pbkdf2.Key(masterKey, salt, PBKDF2Iterations, KeySizeAES, sha256.New)
}

func newGCM(masterKey, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(masterKey, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from masterKey.
func Seal(plaintext, masterKey []byte) (*Sealed, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("master key is required")
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := newGCM(masterKey, salt)
	if err != nil {
		return nil, err
	}

	return &Sealed{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Open decrypts data produced by Seal.
func Open(data *Sealed, masterKey []byte) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("sealed data is nil")
	}
	if len(data.Salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt size: got %d, want %d", len(data.Salt), SaltSize)
	}
	if len(data.Nonce) != NonceSize {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d", len(data.Nonce), NonceSize)
	}

	gcm, err := newGCM(masterKey, data.Salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, data.Nonce, data.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// SealString encrypts a credential into a text column value.
// An empty credential stays empty.
func SealString(plaintext string, masterKey []byte) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := Seal([]byte(plaintext), masterKey)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return "", fmt.Errorf("marshal sealed data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// OpenString reverses SealString.
func OpenString(encoded string, masterKey []byte) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed data: %w", err)
	}
	var sealed Sealed
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return "", fmt.Errorf("unmarshal sealed data: %w", err)
	}
	plaintext, err := Open(&sealed, masterKey)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsEncryptedFile returns true if the path has the encrypted file suffix.
func IsEncryptedFile(path string) bool {
	return strings.HasSuffix(path, EncryptedFileSuffix)
}

// ReadEncryptedFile reads a file, decrypting it when it has the .enc suffix.
func ReadEncryptedFile(path string, masterKey []byte) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	if !IsEncryptedFile(path) {
		return content, nil
	}

	if len(masterKey) == 0 {
		return nil, fmt.Errorf("master key required for encrypted file")
	}

	var data Sealed
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("parse encrypted file: %w", err)
	}
	return Open(&data, masterKey)
}

// WriteEncryptedFile seals plaintext into path (suffixed with .enc) with 0600
// permissions and returns the final path.
func WriteEncryptedFile(path string, plaintext, masterKey []byte) (string, error) {
	if !IsEncryptedFile(path) {
		path += EncryptedFileSuffix
	}

	sealed, err := Seal(plaintext, masterKey)
	if err != nil {
		return "", err
	}

	content, err := json.Marshal(sealed)
	if err != nil {
		return "", fmt.Errorf("marshal sealed data: %w", err)
	}

	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}
