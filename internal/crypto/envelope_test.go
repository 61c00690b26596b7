package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

const (
	zeroKeyB64 = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	oneKeyB64  = "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE="
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("k1", map[string][]byte{"k1": mustKey(t, zeroKeyB64)})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := s.Seal(`[{"title":"CPF","value":"123"}]`, "user-1")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "CPF") {
		t.Fatalf("expected opaque sealed value, got %q", sealed)
	}

	out, err := s.Open(sealed, "user-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if out != `[{"title":"CPF","value":"123"}]` {
		t.Fatalf("unexpected plaintext %q", out)
	}
}

func TestOpenRejectsOtherSubject(t *testing.T) {
	s, err := NewSealer("k1", map[string][]byte{"k1": mustKey(t, zeroKeyB64)})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, err := s.Seal("secret", "user-1")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := s.Open(sealed, "user-2"); err == nil {
		t.Fatalf("expected open to fail for a different subject")
	}
}

func TestPlainValuesPassThrough(t *testing.T) {
	var s *Sealer
	stored, err := s.Seal("plain", "u")
	if err != nil || stored != "plain" {
		t.Fatalf("nil sealer must store plaintext, got %q, %v", stored, err)
	}

	keyed, err := NewSealer("k1", map[string][]byte{"k1": mustKey(t, zeroKeyB64)})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	out, err := keyed.Open("legacy row", "u")
	if err != nil || out != "legacy row" {
		t.Fatalf("unsealed value must pass through, got %q, %v", out, err)
	}

	sealed, _ := keyed.Seal("x", "u")
	if _, err := s.Open(sealed, "u"); err != ErrNoKeys {
		t.Fatalf("expected ErrNoKeys, got %v", err)
	}
}

func TestRotationOpenOldSealNew(t *testing.T) {
	oldKey := mustKey(t, zeroKeyB64)
	newKey := mustKey(t, oneKeyB64)

	oldSealer, err := NewSealer("old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatalf("old sealer: %v", err)
	}
	legacy, err := oldSealer.Seal("legacy", "u")
	if err != nil {
		t.Fatalf("old seal: %v", err)
	}

	rotated, err := NewSealer("new", map[string][]byte{"old": oldKey, "new": newKey})
	if err != nil {
		t.Fatalf("rotated sealer: %v", err)
	}
	plain, err := rotated.Open(legacy, "u")
	if err != nil || plain != "legacy" {
		t.Fatalf("open with old key failed: %q, %v", plain, err)
	}

	resealed, err := rotated.Reseal(legacy, "u")
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	if !strings.Contains(resealed, `"key_id":"new"`) {
		t.Fatalf("reseal did not use current key: %s", resealed)
	}
	if _, err := oldSealer.Open(resealed, "u"); err == nil {
		t.Fatalf("old-only sealer must not open value sealed with new key")
	}
}

func TestNeedsReseal(t *testing.T) {
	oldKey := mustKey(t, zeroKeyB64)
	oldSealer, err := NewSealer("old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatalf("old sealer: %v", err)
	}
	legacy, err := oldSealer.Seal("legacy", "u")
	if err != nil {
		t.Fatalf("old seal: %v", err)
	}
	rotated, err := NewSealer("new", map[string][]byte{"old": oldKey, "new": mustKey(t, oneKeyB64)})
	if err != nil {
		t.Fatalf("rotated sealer: %v", err)
	}
	current, err := rotated.Seal("fresh", "u")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	cases := []struct {
		name   string
		sealer *Sealer
		stored string
		want   bool
	}{
		{"old key", rotated, legacy, true},
		{"current key", rotated, current, false},
		{"plaintext", rotated, `{"prompt_id":1}`, true},
		{"broken envelope", rotated, "sealed:{", true},
		{"no sealer", nil, `{"prompt_id":1}`, false},
	}
	for _, tc := range cases {
		if got := tc.sealer.NeedsReseal(tc.stored); got != tc.want {
			t.Fatalf("%s: NeedsReseal = %v, want %v", tc.name, got, tc.want)
		}
	}

	sealed, err := rotated.Reseal("plain summary", "u")
	if err != nil {
		t.Fatalf("reseal plaintext: %v", err)
	}
	if rotated.NeedsReseal(sealed) {
		t.Fatalf("resealed plaintext must be under the current key")
	}
}

func TestNewSealerValidates(t *testing.T) {
	if _, err := NewSealer("", map[string][]byte{"k": mustKey(t, zeroKeyB64)}); err == nil {
		t.Fatalf("expected error for empty current id")
	}
	if _, err := NewSealer("k", map[string][]byte{"k": []byte("short")}); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := NewSealer("missing", map[string][]byte{"k": mustKey(t, zeroKeyB64)}); err == nil {
		t.Fatalf("expected error for unknown current id")
	}
}

func mustKey(t *testing.T, b64 string) []byte {
	t.Helper()
	k, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if len(k) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(k))
	}
	return k
}
