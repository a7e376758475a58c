package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrKeyNotFound is returned when a key id has no entry in the store
var ErrKeyNotFound = errors.New("signing key not found")

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// PublicKey is a verification key entry
type PublicKey struct {
	KeyID   string            `json:"key_id"`
	Key     ed25519.PublicKey `json:"-"`
	Encoded string            `json:"public_key"`
	Trusted bool              `json:"trusted"`
}

// KeyStore keeps public keys as <dir>/<key_id>.json and private keys as
// <dir>/private/<key_id>.key (base64).
type KeyStore struct {
	dir string
}

// NewKeyStore returns a store rooted at dir
func NewKeyStore(dir string) *KeyStore {
	return &KeyStore{dir: dir}
}

// Dir returns the store root
func (k *KeyStore) Dir() string {
	return k.dir
}

// GenerateKey creates a new key pair and writes both halves to the store
func (k *KeyStore) GenerateKey(keyID string, trusted bool) (ed25519.PublicKey, error) {
	if !keyIDPattern.MatchString(keyID) {
		return nil, fmt.Errorf("invalid key id: %q", keyID)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := k.AddPublicKey(keyID, pub, trusted); err != nil {
		return nil, err
	}

	privDir := filepath.Join(k.dir, "private")
	if err := os.MkdirAll(privDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create private key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(priv)
	if err := os.WriteFile(filepath.Join(privDir, keyID+".key"), []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	return pub, nil
}

// AddPublicKey records a verification key
func (k *KeyStore) AddPublicKey(keyID string, pub ed25519.PublicKey, trusted bool) error {
	if !keyIDPattern.MatchString(keyID) {
		return fmt.Errorf("invalid key id: %q", keyID)
	}
	if err := os.MkdirAll(k.dir, 0755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	entry := PublicKey{
		KeyID:   keyID,
		Encoded: base64.StdEncoding.EncodeToString(pub),
		Trusted: trusted,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(k.dir, keyID+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// PublicKey loads a verification key
func (k *KeyStore) PublicKey(keyID string) (*PublicKey, error) {
	if !keyIDPattern.MatchString(keyID) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	data, err := os.ReadFile(filepath.Join(k.dir, keyID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
		}
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	var entry PublicKey
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", keyID, err)
	}
	raw, err := base64.StdEncoding.DecodeString(entry.Encoded)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key %s is malformed", keyID)
	}
	entry.Key = ed25519.PublicKey(raw)
	return &entry, nil
}

// PrivateKey loads a signing key
func (k *KeyStore) PrivateKey(keyID string) (ed25519.PrivateKey, error) {
	if !keyIDPattern.MatchString(keyID) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	data, err := os.ReadFile(filepath.Join(k.dir, "private", keyID+".key"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
		}
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode signer private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: got %d want %d", len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}
