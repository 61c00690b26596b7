package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const sealedPrefix = "sealed:"

var ErrNoKeys = errors.New("value is sealed but no keys are configured")

type Envelope struct {
	KeyID      string `json:"key_id"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Sealer encrypts interaction-log summaries at rest with AES-GCM. The
// subject (the owning user id) is bound as additional data, so a sealed
// value only opens for the row it was written for. A nil *Sealer stores
// plaintext.
type Sealer struct {
	currentKeyID string
	aeads        map[string]cipher.AEAD
}

func NewSealer(currentKeyID string, keys map[string][]byte) (*Sealer, error) {
	if currentKeyID == "" {
		return nil, fmt.Errorf("current key id is empty")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keys map is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	aeads := make(map[string]cipher.AEAD, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes", id)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("new cipher %q: %w", id, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("new gcm %q: %w", id, err)
		}
		aeads[id] = aead
	}
	return &Sealer{currentKeyID: currentKeyID, aeads: aeads}, nil
}

// IsSealed reports whether a stored value was produced by Seal.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

func (s *Sealer) Seal(plaintext, subject string) (string, error) {
	if s == nil {
		return plaintext, nil
	}
	aead := s.aeads[s.currentKeyID]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	env := Envelope{
		KeyID:      s.currentKeyID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, []byte(plaintext), []byte(subject))),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return sealedPrefix + string(b), nil
}

// Open returns the plaintext of a sealed value. Values that were never
// sealed are returned unchanged.
func (s *Sealer) Open(stored, subject string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if s == nil {
		return "", ErrNoKeys
	}
	var env Envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(stored, sealedPrefix)), &env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	aead, ok := s.aeads[env.KeyID]
	if !ok {
		return "", fmt.Errorf("unknown key id %q", env.KeyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("nonce must be %d bytes", aead.NonceSize())
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(subject))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// NeedsReseal reports whether a stored value is plaintext or sealed under a
// key other than the current one. A nil *Sealer never reseals.
func (s *Sealer) NeedsReseal(stored string) bool {
	if s == nil {
		return false
	}
	if !IsSealed(stored) {
		return true
	}
	var env Envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(stored, sealedPrefix)), &env); err != nil {
		return true
	}
	return env.KeyID != s.currentKeyID
}

// Reseal re-encrypts a stored value under the current key. Plaintext values
// are sealed.
func (s *Sealer) Reseal(stored, subject string) (string, error) {
	plain, err := s.Open(stored, subject)
	if err != nil {
		return "", err
	}
	return s.Seal(plain, subject)
}
