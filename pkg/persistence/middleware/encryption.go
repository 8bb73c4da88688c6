package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKeys decodes base64 keys into an EncryptionConfig. The first key is active.
func ParseKeys(active string, fallback ...string) (EncryptionConfig, error) {
	var cfg EncryptionConfig
	key, err := base64.StdEncoding.DecodeString(active)
	if err != nil {
		return cfg, fmt.Errorf("invalid active key: %w", err)
	}
	cfg.ActiveKey = key
	for i, f := range fallback {
		k, err := base64.StdEncoding.DecodeString(f)
		if err != nil {
			return cfg, fmt.Errorf("invalid fallback key %d: %w", i, err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, k)
	}
	return cfg, nil
}

// Encryption seals serialized handles with AES-GCM.
type Encryption struct {
	config EncryptionConfig
}

// NewEncryption validates the keys.
func NewEncryption(config EncryptionConfig) (*Encryption, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return &Encryption{config: config}, nil
}

// Seal encrypts plaintext with the active key.
func (e *Encryption) Seal(plaintext []byte) ([]byte, error) {
	return encrypt(plaintext, e.config.ActiveKey)
}

// Open decrypts ciphertext, trying the active key then the fallbacks.
func (e *Encryption) Open(ciphertext []byte) ([]byte, error) {
	return decryptWithRotation(ciphertext, e.config.ActiveKey, e.config.FallbackKeys)
}

// Codec wraps next so that Unmarshal decrypts the data first.
// Pair it with Middleware on the store that persists the bytes.
func (e *Encryption) Codec(next ports.HandleCodec) ports.HandleCodec {
	return ports.HandleCodecFunc(func(data []byte) (domain.Handle, error) {
		plain, err := e.Open(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt handle: %w", err)
		}
		return next.Unmarshal(plain)
	})
}

// Middleware makes every handle written to the wrapped store marshal to ciphertext.
func (e *Encryption) Middleware() Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{next: next, enc: e}
	}
}

// sealedHandle encrypts the output of the wrapped handle's Marshal.
type sealedHandle struct {
	domain.Handle
	enc *Encryption
}

func (h sealedHandle) Marshal() ([]byte, error) {
	plain, err := h.Handle.Marshal()
	if err != nil {
		return nil, err
	}
	return h.enc.Seal(plain)
}

type encryptionMiddleware struct {
	next ports.SessionStore
	enc  *Encryption
}

func (m *encryptionMiddleware) Put(ctx context.Context, token string, handle domain.Handle) error {
	return m.next.Put(ctx, token, m.seal(handle))
}

func (m *encryptionMiddleware) Import(ctx context.Context, token string, record domain.Record) error {
	record.Handle = m.seal(record.Handle)
	return m.next.Import(ctx, token, record)
}

func (m *encryptionMiddleware) Get(ctx context.Context, token string) (domain.Outcome, domain.Record, error) {
	outcome, rec, err := m.next.Get(ctx, token)
	// Stores that keep handles in memory hand the wrapper back.
	if sh, ok := rec.Handle.(sealedHandle); ok {
		rec.Handle = sh.Handle
	}
	return outcome, rec, err
}

func (m *encryptionMiddleware) Len(ctx context.Context) (int, error) {
	return m.next.Len(ctx)
}

func (m *encryptionMiddleware) seal(h domain.Handle) domain.Handle {
	if h == nil {
		return nil
	}
	if _, ok := h.(sealedHandle); ok {
		return h
	}
	return sealedHandle{Handle: h, enc: m.enc}
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
