package binary

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"testing"
	"time"
)

var sample = []byte("[db]\nhost = \"localhost\"\nport = 5432\n")

func write(t *testing.T, data []byte, opts Options) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, data, opts); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTripPlain(t *testing.T) {
	out := write(t, sample, Options{})
	payload, header, meta, err := Read(bytes.NewReader(out), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, sample) {
		t.Fatalf("payload = %q", payload)
	}
	if header.Version != Version || header.Compression != CompressionNone {
		t.Fatalf("header = %+v", header)
	}
	if meta.Compressed || meta.Encrypted || meta.Signed {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestRoundTripCompressed(t *testing.T) {
	big := bytes.Repeat([]byte("key = \"value\"\n"), 500)
	out := write(t, big, Options{Compress: true})
	if len(out) >= len(big) {
		t.Fatalf("compressed output (%d) not smaller than input (%d)", len(out), len(big))
	}

	payload, header, _, err := Read(bytes.NewReader(out), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, big) {
		t.Fatal("payload mismatch after decompression")
	}
	if header.Compression != CompressionGzip {
		t.Fatalf("compression = %d", header.Compression)
	}
}

func TestRoundTripEncrypted(t *testing.T) {
	key := sha256.Sum256([]byte("password"))
	out := write(t, sample, Options{EncryptKey: key[:]})
	if bytes.Contains(out, []byte("localhost")) {
		t.Fatal("plaintext visible in encrypted output")
	}

	payload, _, meta, err := Read(bytes.NewReader(out), ReadOptions{DecryptKey: key[:]})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, sample) {
		t.Fatal("payload mismatch after decryption")
	}
	if !meta.Encrypted {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestReadEncryptedWithoutKey(t *testing.T) {
	key := sha256.Sum256([]byte("password"))
	out := write(t, sample, Options{EncryptKey: key[:]})

	_, _, _, err := Read(bytes.NewReader(out), ReadOptions{})
	if !errors.Is(err, ErrNeedKey) {
		t.Fatalf("err = %v, want ErrNeedKey", err)
	}
}

func TestReadEncryptedWithWrongKey(t *testing.T) {
	key := sha256.Sum256([]byte("password"))
	wrong := sha256.Sum256([]byte("other"))
	out := write(t, sample, Options{EncryptKey: key[:]})

	if _, _, _, err := Read(bytes.NewReader(out), ReadOptions{DecryptKey: wrong[:]}); err == nil {
		t.Fatal("wrong key accepted")
	}
}

func TestWriteRejectsShortKey(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample, Options{EncryptKey: []byte("short")}); err == nil {
		t.Fatal("short key accepted")
	}
}

func TestRoundTripSigned(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	out := write(t, sample, Options{SignKey: priv})

	payload, _, meta, err := Read(bytes.NewReader(out), ReadOptions{VerifyKey: pub})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, sample) {
		t.Fatal("payload mismatch")
	}
	if !meta.Signed {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestSignatureVerificationFailsOnTamper(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	out := write(t, sample, Options{SignKey: priv})
	out[headerSize+1] ^= 0xFF

	if _, _, _, err := Read(bytes.NewReader(out), ReadOptions{VerifyKey: pub}); err == nil {
		t.Fatal("tampered signed payload accepted")
	}
}

func TestBadMagic(t *testing.T) {
	out := write(t, sample, Options{})
	copy(out[0:8], "NOTMAGIC")
	_, _, _, err := Read(bytes.NewReader(out), ReadOptions{})
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestHeaderChecksum(t *testing.T) {
	out := write(t, sample, Options{})
	out[16] ^= 0xFF // corrupt the data size inside the checksummed region
	_, _, _, err := Read(bytes.NewReader(out), ReadOptions{})
	if !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("err = %v, want ErrBadChecksum", err)
	}
}

func TestTruncated(t *testing.T) {
	out := write(t, sample, Options{})
	for _, n := range []int{0, 7, headerSize - 1, headerSize + 3} {
		_, _, _, err := Read(bytes.NewReader(out[:n]), ReadOptions{})
		if err == nil {
			t.Errorf("truncation at %d accepted", n)
		}
	}
}

func TestInspectDoesNotNeedKeys(t *testing.T) {
	key := sha256.Sum256([]byte("password"))
	ts := time.Unix(1700000000, 0)
	out := write(t, sample, Options{
		Compress:   true,
		EncryptKey: key[:],
		Timestamp:  ts,
		Metadata:   Metadata{Source: "app.tsk", KeyCount: 3},
	})

	header, meta, err := Inspect(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if header.Encryption != EncryptionAESGCM || header.Compression != CompressionGzip {
		t.Fatalf("header = %+v", header)
	}
	if !header.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v", header.Timestamp)
	}
	if meta.Source != "app.tsk" || meta.KeyCount != 3 {
		t.Fatalf("meta = %+v", meta)
	}
}
