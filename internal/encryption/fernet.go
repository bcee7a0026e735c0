// Package encryption seals tenant credentials at rest with Fernet.
package encryption

import (
	"fmt"
	"os"
	"strings"

	"github.com/fernet/fernet-go"
)

// Encryptor provides encrypt/decrypt operations using Fernet. Decrypt
// accepts tokens made with any of its keys; Encrypt always uses the first.
type Encryptor struct {
	keys []*fernet.Key
}

// NewEncryptor creates a Fernet encryptor from one or more comma-separated
// URL-safe base64 keys. The first key is the active one; the rest allow
// reading credentials sealed before a key rotation.
func NewEncryptor(keyStr string) (*Encryptor, error) {
	keyStr = strings.TrimSpace(keyStr)
	if keyStr == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	keys, err := fernet.DecodeKeys(strings.Split(keyStr, ",")...)
	if err != nil {
		return nil, fmt.Errorf("decoding fernet key: %w", err)
	}
	return &Encryptor{keys: keys}, nil
}

// LoadKey returns key if set, else the trimmed contents of path. A missing
// file yields an empty key and no error.
func LoadKey(key, path string) (string, error) {
	if key = strings.TrimSpace(key); key != "" || path == "" {
		return key, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading encryption key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GenerateKey creates a new random Fernet key.
func GenerateKey() (*fernet.Key, error) {
	k := new(fernet.Key)
	if err := k.Generate(); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return k, nil
}

// Encrypt encrypts plaintext and returns a Fernet token string. The empty
// string encrypts to the empty string so unset credentials stay unset.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), e.keys[0])
	if err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	return string(tok), nil
}

// Decrypt decrypts a Fernet token and returns the plaintext.
func (e *Encryptor) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, e.keys)
	if msg == nil {
		return "", fmt.Errorf("decryption failed: invalid token or key")
	}
	return string(msg), nil
}
