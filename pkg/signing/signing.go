// Package signing signs and verifies bundle manifests with ed25519 keys.
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
)

// Algorithm is the only signature algorithm this package produces
const Algorithm = "ed25519"

// Status is the outcome of a bundle verification
type Status string

const (
	StatusValid        Status = "valid"
	StatusUnsigned     Status = "unsigned"
	StatusInvalid      Status = "invalid"
	StatusTampered     Status = "tampered"
	StatusKeyNotFound  Status = "key_not_found"
	StatusKeyUntrusted Status = "key_untrusted"
	StatusError        Status = "error"
)

// Result is returned by VerifyBundle
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	KeyID   string `json:"key_id,omitempty"`
}

// Valid reports whether the signature checked out
func (r Result) Valid() bool {
	return r.Status == StatusValid
}

// Signer produces bundle signatures
type Signer interface {
	SignBundle(hash string, manifest map[string]any) (*bundle.Signature, error)
}

// Verifier checks bundle signatures
type Verifier interface {
	VerifyBundle(hash string, manifest map[string]any, requireSignature bool) Result
}

// Ed25519Signer signs with a private key from a KeyStore and verifies against
// the store's public keys.
type Ed25519Signer struct {
	keys  *KeyStore
	keyID string
	priv  ed25519.PrivateKey
	now   func() time.Time
}

// NewVerifier returns a verify-only instance backed by the key store
func NewVerifier(keys *KeyStore) *Ed25519Signer {
	return &Ed25519Signer{keys: keys, now: time.Now}
}

// NewSigner loads the private key for keyID from the store
func NewSigner(keys *KeyStore, keyID string) (*Ed25519Signer, error) {
	priv, err := keys.PrivateKey(keyID)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{
		keys:  keys,
		keyID: keyID,
		priv:  priv,
		now:   time.Now,
	}, nil
}

// SignBundle signs the digest together with the manifest (minus any existing
// signature).
func (s *Ed25519Signer) SignBundle(hash string, manifest map[string]any) (*bundle.Signature, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("signer has no private key")
	}

	payload, err := signingPayload(hash, manifest)
	if err != nil {
		return nil, err
	}

	sig := ed25519.Sign(s.priv, payload)
	return &bundle.Signature{
		KeyID:     s.keyID,
		Algorithm: Algorithm,
		Value:     base64.StdEncoding.EncodeToString(sig),
		SignedAt:  s.now().UTC().Format(time.RFC3339),
	}, nil
}

// VerifyBundle checks the signature embedded in the manifest against the
// digest. An unsigned manifest yields StatusUnsigned; the caller decides
// whether that is acceptable via requireSignature, which only changes the
// message.
func (s *Ed25519Signer) VerifyBundle(hash string, manifest map[string]any, requireSignature bool) Result {
	sig, ok := extractSignature(manifest)
	if !ok {
		msg := "bundle is not signed"
		if requireSignature {
			msg = "bundle is not signed but a signature is required"
		}
		return Result{Status: StatusUnsigned, Message: msg}
	}

	if recorded, _ := manifest["bundle_hash"].(string); recorded != "" && recorded != hash {
		return Result{
			Status: StatusTampered,
			Message: fmt.Sprintf("bundle digest %s does not match recorded %s",
				bundle.ShortHash(hash), bundle.ShortHash(recorded)),
			KeyID: sig.KeyID,
		}
	}

	if sig.Algorithm != "" && sig.Algorithm != Algorithm {
		return Result{Status: StatusError, Message: fmt.Sprintf("unsupported signature algorithm: %s", sig.Algorithm), KeyID: sig.KeyID}
	}

	key, err := s.keys.PublicKey(sig.KeyID)
	if err != nil {
		return Result{Status: StatusKeyNotFound, Message: err.Error(), KeyID: sig.KeyID}
	}
	if !key.Trusted {
		return Result{Status: StatusKeyUntrusted, Message: fmt.Sprintf("key %s is not trusted", sig.KeyID), KeyID: sig.KeyID}
	}

	raw, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return Result{Status: StatusInvalid, Message: "signature is not valid base64", KeyID: sig.KeyID}
	}

	payload, err := signingPayload(hash, manifest)
	if err != nil {
		return Result{Status: StatusError, Message: err.Error(), KeyID: sig.KeyID}
	}

	if !ed25519.Verify(key.Key, payload, raw) {
		return Result{Status: StatusInvalid, Message: "signature does not match bundle contents", KeyID: sig.KeyID}
	}

	return Result{Status: StatusValid, Message: "signature verified", KeyID: sig.KeyID}
}

func extractSignature(manifest map[string]any) (*bundle.Signature, bool) {
	raw, ok := manifest["signature"]
	if !ok || raw == nil {
		return nil, false
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var sig bundle.Signature
	if err := json.Unmarshal(data, &sig); err != nil || sig.Value == "" {
		return nil, false
	}
	return &sig, true
}

// signingPayload is the canonical byte string covered by a signature.
// encoding/json sorts map keys, which keeps the payload stable.
func signingPayload(hash string, manifest map[string]any) ([]byte, error) {
	stripped := make(map[string]any, len(manifest))
	for k, v := range manifest {
		if k == "signature" {
			continue
		}
		stripped[k] = v
	}

	payload, err := json.Marshal(map[string]any{
		"bundle_hash": hash,
		"manifest":    stripped,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build signing payload: %w", err)
	}
	return payload, nil
}
