// Package crypto implements the per-tenant EncryptionEngine: AES-GCM
// encrypt/decrypt with an integrity checksum on field-level values, a
// TTL key cache fronting the KeyStore, and key rotation that retains
// legacy versions for decryption.
package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/JoshuaRamirez/acs-gateway/internal/keystore"
	"github.com/JoshuaRamirez/acs-gateway/pkg/cache"
	pkgcrypto "github.com/JoshuaRamirez/acs-gateway/pkg/crypto"
)

var (
	ErrIntegrityViolation = errors.New("crypto: integrity violation")
	ErrUnknownTenant      = errors.New("crypto: unknown tenant key")
)

const keyCacheTTL = 30 * time.Minute

// EncryptedField is the at-rest representation of a single encrypted
// field value, matching the data model's EncryptedField entity.
type EncryptedField struct {
	EntityID    string
	FieldName   string
	Ciphertext  string // base64
	IV          string // base64
	KeyVersion  string
	Algorithm   string
	EncryptedAt time.Time
	Checksum    string // base64(SHA-256(...))
}

// Engine is the EncryptionEngine (C2): per-tenant AES-256-GCM
// encrypt/decrypt backed by a TTL key cache and the KeyStore.
type Engine struct {
	store *keystore.KeyStore
	cache *cache.Cache
	mu    sync.Mutex
}

// NewEngine wires an Engine to ks, with a key cache of cacheSize
// entries (each entry is (tenantId, version) -> key material) and a
// fixed 30-minute TTL.
func NewEngine(ks *keystore.KeyStore, cacheSize int) (*Engine, error) {
	c, err := cache.NewCache(cache.CacheConfig{MaxSize: cacheSize, DefaultTTL: keyCacheTTL})
	if err != nil {
		return nil, err
	}
	return &Engine{store: ks, cache: c}, nil
}

func cacheKey(tenantID, version string) string {
	return tenantID + ":" + version
}

// activeKey returns the current active key and its version for
// tenantID, generating one if none exists yet.
func (e *Engine) activeKey(tenantID string) ([]byte, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.cache.Get(cacheKey(tenantID, "latest")); ok {
		return entry.Data, entry.Version, nil
	}

	rec, err := e.store.Get(tenantID, "")
	if errors.Is(err, keystore.ErrNotFound) {
		if genErr := e.generateTenantKeyLocked(tenantID); genErr != nil {
			return nil, "", genErr
		}
		rec, err = e.store.Get(tenantID, "")
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnknownTenant, err)
	}

	e.cache.SetWithTTL(cacheKey(tenantID, "latest"), rec.Key, rec.Version, keyCacheTTL)
	e.cache.SetWithTTL(cacheKey(tenantID, rec.Version), rec.Key, rec.Version, keyCacheTTL)
	return rec.Key, rec.Version, nil
}

// keyForVersion returns the key material for tenantID at an explicit
// version, used when decrypting a field stamped with an older
// keyVersion than the tenant's current active key.
func (e *Engine) keyForVersion(tenantID, version string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.cache.Get(cacheKey(tenantID, version)); ok {
		return entry.Data, nil
	}

	rec, err := e.store.Get(tenantID, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTenant, err)
	}
	e.cache.SetWithTTL(cacheKey(tenantID, version), rec.Key, rec.Version, keyCacheTTL)
	return rec.Key, nil
}

// generateTenantKeyLocked creates version "1" for tenantID. Caller
// must hold e.mu.
func (e *Engine) generateTenantKeyLocked(tenantID string) error {
	key, err := pkgcrypto.GenerateKey(32)
	if err != nil {
		return err
	}
	return e.store.Store(tenantID, key, "1")
}

// Encrypt returns base64(IV ‖ ciphertext) for plain, using tenantID's
// current active key.
func (e *Engine) Encrypt(plain, tenantID string) (string, error) {
	key, _, err := e.activeKey(tenantID)
	if err != nil {
		return "", err
	}
	result, err := pkgcrypto.Encrypt(key, []byte(plain))
	if err != nil {
		return "", err
	}
	combined := make([]byte, 0, len(result.Nonce)+len(result.Ciphertext)+len(result.Tag))
	combined = append(combined, result.Nonce...)
	combined = append(combined, result.Ciphertext...)
	combined = append(combined, result.Tag...)
	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt reverses Encrypt using tenantID's current active key.
func (e *Engine) Decrypt(b64, tenantID string) (string, error) {
	key, _, err := e.activeKey(tenantID)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid base64 payload: %w", err)
	}
	if len(raw) < pkgcrypto.NonceSize+16 {
		return "", errors.New("crypto: payload too short")
	}
	nonce := raw[:pkgcrypto.NonceSize]
	tag := raw[len(raw)-16:]
	ciphertext := raw[pkgcrypto.NonceSize : len(raw)-16]

	plain, err := pkgcrypto.Decrypt(key, ciphertext, nonce, tag)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptField encrypts plain for (fieldName, entityID, tenantID) and
// returns the full EncryptedField record, including its integrity
// checksum.
func (e *Engine) EncryptField(plain, fieldName, entityID, tenantID string) (*EncryptedField, error) {
	key, version, err := e.activeKey(tenantID)
	if err != nil {
		return nil, err
	}
	result, err := pkgcrypto.Encrypt(key, []byte(plain))
	if err != nil {
		return nil, err
	}

	ciphertextB64 := base64.StdEncoding.EncodeToString(append(result.Ciphertext, result.Tag...))
	ivB64 := base64.StdEncoding.EncodeToString(result.Nonce)

	field := &EncryptedField{
		EntityID:    entityID,
		FieldName:   fieldName,
		Ciphertext:  ciphertextB64,
		IV:          ivB64,
		KeyVersion:  version,
		Algorithm:   "AES-256-GCM",
		EncryptedAt: time.Now().UTC(),
	}
	field.Checksum = checksumOf(field)
	return field, nil
}

// DecryptField verifies field's checksum, then decrypts it using the
// key version recorded on the field (not necessarily the tenant's
// current active version).
func (e *Engine) DecryptField(field *EncryptedField, tenantID string) (string, error) {
	if checksumOf(field) != field.Checksum {
		return "", ErrIntegrityViolation
	}

	key, err := e.keyForVersion(tenantID, field.KeyVersion)
	if err != nil {
		return "", err
	}

	ciphertextAndTag, err := base64.StdEncoding.DecodeString(field.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid ciphertext encoding: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(field.IV)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid iv encoding: %w", err)
	}
	if len(ciphertextAndTag) < 16 {
		return "", errors.New("crypto: ciphertext too short")
	}
	ciphertext := ciphertextAndTag[:len(ciphertextAndTag)-16]
	tag := ciphertextAndTag[len(ciphertextAndTag)-16:]

	plain, err := pkgcrypto.Decrypt(key, ciphertext, iv, tag)
	if err != nil {
		// GCM authentication covers iv/ciphertext/tag bytes the checksum
		// formula itself doesn't (spec's checksum never hashes iv), so a
		// failure here is just as much a tamper signal as a checksum
		// mismatch above — report it the same way.
		return "", ErrIntegrityViolation
	}
	return string(plain), nil
}

// checksumOf computes base64(SHA-256(ciphertext ":" keyVersion ":"
// fieldName ":" entityId)).
func checksumOf(f *EncryptedField) string {
	h := sha256.Sum256([]byte(f.Ciphertext + ":" + f.KeyVersion + ":" + f.FieldName + ":" + f.EntityID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// RotateKeys generates a new key version for tenantID, retains the
// prior version for legacy decryption, and invalidates the tenant's
// cache entries so subsequent Encrypt/EncryptField calls pick up the
// new version.
func (e *Engine) RotateKeys(tenantID string) (newVersion string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.store.Get(tenantID, "")
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			if genErr := e.generateTenantKeyLocked(tenantID); genErr != nil {
				return "", genErr
			}
			return "1", nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnknownTenant, err)
	}

	oldVersion, convErr := strconv.Atoi(rec.Version)
	if convErr != nil {
		return "", fmt.Errorf("crypto: malformed key version %q: %w", rec.Version, convErr)
	}
	newVersion = strconv.Itoa(oldVersion + 1)

	key, err := pkgcrypto.GenerateKey(32)
	if err != nil {
		return "", err
	}
	if err := e.store.Store(tenantID, key, newVersion); err != nil {
		return "", err
	}

	// Background re-encryption of existing ciphertext to the new
	// version is intentionally out of scope here (external collaborator);
	// legacy versions remain readable via keyForVersion.
	e.cache.Evict(cacheKey(tenantID, "latest"))

	return newVersion, nil
}

// ValidateKeyIntegrity encrypts then decrypts a random probe for
// tenantID and compares, never returning an error itself.
func (e *Engine) ValidateKeyIntegrity(tenantID string) bool {
	probe, err := pkgcrypto.GenerateKey(16)
	if err != nil {
		return false
	}
	probeStr := base64.StdEncoding.EncodeToString(probe)

	encrypted, err := e.Encrypt(probeStr, tenantID)
	if err != nil {
		return false
	}
	decrypted, err := e.Decrypt(encrypted, tenantID)
	if err != nil {
		return false
	}
	return decrypted == probeStr
}

// Close releases background resources held by the engine's key cache.
func (e *Engine) Close() {
	e.cache.Close()
}
