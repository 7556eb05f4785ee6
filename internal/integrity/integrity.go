// Package integrity implements the checksum/signature providers,
// including the per-space HMAC key lifecycle.
package integrity

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/objectstore"
)

// Provider computes a checksum and a signature over content.
type Provider interface {
	Checksum(content string) string
	Signature(content string) string
}

// FakeProvider returns deterministic, length-derived stand-ins for tests.
type FakeProvider struct{}

func (FakeProvider) Checksum(content string) string  { return fmt.Sprintf("mock-checksum-%d", len(content)) }
func (FakeProvider) Signature(content string) string { return fmt.Sprintf("mock-signature-%d", len(content)) }

// RealProvider computes SHA-256 checksums and HMAC-SHA256 signatures,
// hex-encoded lowercase.
type RealProvider struct {
	secret []byte
}

// NewRealProvider builds a RealProvider around an already-loaded secret.
func NewRealProvider(secret []byte) *RealProvider { return &RealProvider{secret: secret} }

func (p *RealProvider) Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (p *RealProvider) Signature(content string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// FromSpace loads (or lazily provisions) the per-space HMAC secret and
// returns a RealProvider bound to it.
func FromSpace(ctx context.Context, store objectstore.Store, spaceID string) (*RealProvider, error) {
	_, secret, err := LoadSpaceHMAC(ctx, store, spaceID)
	if err != nil {
		return nil, err
	}
	return NewRealProvider(secret), nil
}

type keyMaterial struct {
	HMACKeyID    string `json:"hmac_key_id,omitempty"`
	HMACKey      string `json:"hmac_key,omitempty"`
	LastRotation string `json:"last_rotation,omitempty"`
}

func spaceMetaPath(spaceID string) string { return fmt.Sprintf("spaces/%s/meta.json", spaceID) }

// LoadSpaceHMAC ensures spaces/<id>/meta.json carries a 32-byte secret,
// generating and persisting one on first use, then returns (key_id, secret).
func LoadSpaceHMAC(ctx context.Context, store objectstore.Store, spaceID string) (string, []byte, error) {
	path := spaceMetaPath(spaceID)
	ok, err := store.Exists(ctx, path)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ieerr.NotFound("space not found: %s", spaceID)
	}

	raw, err := store.Read(ctx, path)
	if err != nil {
		return "", nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", nil, ieerr.Integrity("corrupt space meta.json for %s", spaceID)
	}

	if keyB64, ok := meta["hmac_key"].(string); ok && keyB64 != "" {
		secret, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			return "", nil, ieerr.Integrity("invalid hmac_key encoding for space %s", spaceID)
		}
		keyID, _ := meta["hmac_key_id"].(string)
		if keyID == "" {
			keyID = "default"
		}
		return keyID, secret, nil
	}

	keyID, secret, err := generateAndPersistKey(ctx, store, path, meta)
	if err != nil {
		return "", nil, err
	}
	return keyID, secret, nil
}

func generateAndPersistKey(ctx context.Context, store objectstore.Store, path string, meta map[string]any) (string, []byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", nil, ieerr.Wrap(ieerr.KindIntegrity, err, "generate hmac key")
	}
	keyID := "key-" + stripDashes(uuid.NewString())

	if meta == nil {
		meta = map[string]any{}
	}
	meta["hmac_key_id"] = keyID
	meta["hmac_key"] = base64.StdEncoding.EncodeToString(secret)
	meta["last_rotation"] = time.Now().UTC().Format(time.RFC3339)

	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", nil, err
	}
	if err := store.Write(ctx, path, out); err != nil {
		return "", nil, err
	}
	return keyID, secret, nil
}

func stripDashes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// LoadResponseHMAC loads (or provisions) the root-level hmac.json used to
// sign outbound responses, independent of any space.
func LoadResponseHMAC(ctx context.Context, store objectstore.Store) (string, []byte, error) {
	const path = "hmac.json"
	ok, err := store.Exists(ctx, path)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return generateAndPersistKey(ctx, store, path, map[string]any{})
	}
	raw, err := store.Read(ctx, path)
	if err != nil {
		return "", nil, err
	}
	var meta keyMaterial
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", nil, ieerr.Integrity("corrupt hmac.json")
	}
	secret, err := base64.StdEncoding.DecodeString(meta.HMACKey)
	if err != nil {
		return "", nil, ieerr.Integrity("invalid hmac_key encoding in hmac.json")
	}
	return meta.HMACKeyID, secret, nil
}

// BuildResponseSignature signs body with the root response HMAC key.
func BuildResponseSignature(ctx context.Context, store objectstore.Store, body []byte) (keyID, signature string, err error) {
	keyID, secret, err := LoadResponseHMAC(ctx, store)
	if err != nil {
		return "", "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return keyID, hex.EncodeToString(mac.Sum(nil)), nil
}
