package protection

import (
	"errors"
	"strings"
	"testing"
)

func newProtection(t *testing.T) *Protection {
	t.Helper()
	p, err := New("test-master-key")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewRequiresMasterKey(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrNoMasterKey) {
		t.Fatalf("err = %v, want ErrNoMasterKey", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(MasterKeyEnv, "env-key")
	p, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("nil protection")
	}

	t.Setenv(MasterKeyEnv, "")
	if _, err := FromEnv(); !errors.Is(err, ErrNoMasterKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := newProtection(t)

	ciphertext, err := p.Encrypt("db-password", "config")
	if err != nil {
		t.Fatal(err)
	}
	if ciphertext == "db-password" || ciphertext == "" {
		t.Fatalf("ciphertext = %q", ciphertext)
	}

	plaintext, err := p.Decrypt(ciphertext, "config")
	if err != nil {
		t.Fatal(err)
	}
	if plaintext != "db-password" {
		t.Fatalf("plaintext = %q", plaintext)
	}
}

func TestEncryptIsNondeterministic(t *testing.T) {
	p := newProtection(t)
	a, _ := p.Encrypt("x", "config")
	b, _ := p.Encrypt("x", "config")
	if a == b {
		t.Fatal("two encryptions of the same value were identical")
	}
}

func TestDecryptWrongPurposeFails(t *testing.T) {
	p := newProtection(t)
	ciphertext, err := p.Encrypt("secret", "config")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Decrypt(ciphertext, "session"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("err = %v, want ErrInvalidCiphertext", err)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	p := newProtection(t)
	for _, bad := range []string{"", "not-base64!!!", "QUJD"} {
		if _, err := p.Decrypt(bad, "config"); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("Decrypt(%q) err = %v", bad, err)
		}
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	p := newProtection(t)
	ciphertext, err := p.Encrypt("secret", "config")
	if err != nil {
		t.Fatal(err)
	}
	tampered := []byte(ciphertext)
	if tampered[10] == 'A' {
		tampered[10] = 'B'
	} else {
		tampered[10] = 'A'
	}
	if _, err := p.Decrypt(string(tampered), "config"); err == nil {
		t.Fatal("tampered ciphertext decrypted")
	}
}

func TestSignVerify(t *testing.T) {
	p := newProtection(t)
	sig := p.Sign("payload")
	if len(sig) != 64 || strings.ToLower(sig) != sig {
		t.Fatalf("signature is not sha256 hex: %q", sig)
	}
	if !p.Verify("payload", sig) {
		t.Fatal("valid signature rejected")
	}
	if p.Verify("payload2", sig) {
		t.Fatal("signature verified for different data")
	}
	if p.Verify("payload", sig[:len(sig)-2]+"00") {
		t.Fatal("altered signature accepted")
	}
}

func TestDifferentMasterKeysDoNotInteroperate(t *testing.T) {
	a, _ := New("key-a")
	b, _ := New("key-b")
	ciphertext, err := a.Encrypt("v", "config")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decrypt(ciphertext, "config"); err == nil {
		t.Fatal("ciphertext decrypted under the wrong master key")
	}
}

func TestHash(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Hash("abc"); got != want {
		t.Fatalf("Hash = %q", got)
	}
}
