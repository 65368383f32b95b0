// Package binary implements the .tskb compiled document format: a fixed
// 64-byte header followed by the (optionally gzipped and AES-256-GCM
// encrypted) document payload, a JSON metadata section, and an optional
// Ed25519 signature over the header and data.
package binary

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Magic identifies a .tskb file.
const Magic = "TUSKLANG"

// Version is the current format version.
const Version uint16 = 1

// headerSize is the fixed header length.
const headerSize = 64

// Compression modes.
const (
	CompressionNone uint8 = 0
	CompressionGzip uint8 = 1
)

// Encryption modes.
const (
	EncryptionNone   uint8 = 0
	EncryptionAESGCM uint8 = 1
)

// Signature modes.
const (
	SignatureNone    uint8 = 0
	SignatureEd25519 uint8 = 1
)

// Sentinel errors for format violations.
var (
	ErrBadMagic     = errors.New("tskb: bad magic")
	ErrBadVersion   = errors.New("tskb: unsupported version")
	ErrBadChecksum  = errors.New("tskb: header checksum mismatch")
	ErrBadSignature = errors.New("tskb: signature verification failed")
	ErrTruncated    = errors.New("tskb: truncated file")
	ErrNeedKey      = errors.New("tskb: payload is encrypted and no key was given")
)

// Header is the decoded fixed header.
type Header struct {
	Version     uint16
	Flags       uint16
	Compression uint8
	Encryption  uint8
	Signature   uint8
	DataSize    uint32
	MetaSize    uint32
	Checksum    [32]byte
	Timestamp   time.Time
}

// Metadata is the JSON section written after the payload.
type Metadata struct {
	Source     string            `json:"source,omitempty"`
	Creator    string            `json:"creator,omitempty"`
	KeyCount   int               `json:"key_count,omitempty"`
	Compressed bool              `json:"compressed"`
	Encrypted  bool              `json:"encrypted"`
	Signed     bool              `json:"signed"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Options controls the transforms applied when writing.
type Options struct {
	Compress   bool
	EncryptKey []byte             // 32 bytes enables AES-256-GCM
	SignKey    ed25519.PrivateKey // enables Ed25519 signing
	Metadata   Metadata
	Timestamp  time.Time // zero means now
}

// Write encodes data into the .tskb format.
func Write(w io.Writer, data []byte, opts Options) error {
	payload := data
	compression := CompressionNone
	if opts.Compress {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return fmt.Errorf("tskb: compress: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("tskb: compress: %w", err)
		}
		payload = buf.Bytes()
		compression = CompressionGzip
	}

	encryption := EncryptionNone
	if len(opts.EncryptKey) > 0 {
		if len(opts.EncryptKey) != 32 {
			return fmt.Errorf("tskb: encryption key must be 32 bytes, got %d", len(opts.EncryptKey))
		}
		sealed, err := encrypt(payload, opts.EncryptKey)
		if err != nil {
			return err
		}
		payload = sealed
		encryption = EncryptionAESGCM
	}

	signature := SignatureNone
	if opts.SignKey != nil {
		signature = SignatureEd25519
	}

	meta := opts.Metadata
	meta.Compressed = compression == CompressionGzip
	meta.Encrypted = encryption == EncryptionAESGCM
	meta.Signed = signature == SignatureEd25519
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("tskb: metadata: %w", err)
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	header := buildHeader(compression, encryption, signature, uint32(len(payload)), uint32(len(metaBytes)), ts)

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write(metaBytes); err != nil {
		return err
	}
	if signature == SignatureEd25519 {
		signed := append(append([]byte{}, header...), payload...)
		if _, err := w.Write(ed25519.Sign(opts.SignKey, signed)); err != nil {
			return err
		}
	}
	return nil
}

// buildHeader lays out the 64-byte header. The checksum field covers the
// header bytes with the checksum itself zeroed.
func buildHeader(compression, encryption, signature uint8, dataSize, metaSize uint32, ts time.Time) []byte {
	h := make([]byte, headerSize)
	copy(h[0:8], Magic)
	binary.LittleEndian.PutUint16(h[8:10], Version)
	binary.LittleEndian.PutUint16(h[10:12], 0) // flags
	h[12] = compression
	h[13] = encryption
	h[14] = signature
	h[15] = 0 // reserved
	binary.LittleEndian.PutUint32(h[16:20], dataSize)
	binary.LittleEndian.PutUint32(h[20:24], metaSize)
	binary.LittleEndian.PutUint64(h[56:64], uint64(ts.Unix()))

	sum := sha256.Sum256(h)
	copy(h[24:56], sum[:])
	return h
}

// ReadOptions controls reading.
type ReadOptions struct {
	DecryptKey []byte            // required when the payload is encrypted
	VerifyKey  ed25519.PublicKey // verifies the signature when present
}

// Read decodes a .tskb stream, verifying magic, checksum and signature
// before reversing the payload transforms.
func Read(r io.Reader, opts ReadOptions) ([]byte, *Header, *Metadata, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, nil, err
	}
	header, err := parseHeader(raw)
	if err != nil {
		return nil, nil, nil, err
	}

	end := headerSize + int(header.DataSize)
	metaEnd := end + int(header.MetaSize)
	if len(raw) < metaEnd {
		return nil, nil, nil, ErrTruncated
	}
	payload := raw[headerSize:end]
	metaBytes := raw[end:metaEnd]

	if header.Signature == SignatureEd25519 {
		if len(raw) < metaEnd+ed25519.SignatureSize {
			return nil, nil, nil, ErrTruncated
		}
		if opts.VerifyKey != nil {
			sig := raw[metaEnd : metaEnd+ed25519.SignatureSize]
			signed := raw[:end]
			if !ed25519.Verify(opts.VerifyKey, signed, sig) {
				return nil, nil, nil, ErrBadSignature
			}
		}
	}

	if header.Encryption == EncryptionAESGCM {
		if len(opts.DecryptKey) != 32 {
			return nil, nil, nil, ErrNeedKey
		}
		payload, err = decrypt(payload, opts.DecryptKey)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if header.Compression == CompressionGzip {
		gz, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("tskb: decompress: %w", err)
		}
		payload, err = io.ReadAll(gz)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("tskb: decompress: %w", err)
		}
	}

	var meta Metadata
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			return nil, nil, nil, fmt.Errorf("tskb: metadata: %w", err)
		}
	}
	return payload, header, &meta, nil
}

// Inspect parses the header and metadata without decoding the payload.
func Inspect(r io.Reader) (*Header, *Metadata, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	header, err := parseHeader(raw)
	if err != nil {
		return nil, nil, err
	}
	end := headerSize + int(header.DataSize)
	metaEnd := end + int(header.MetaSize)
	if len(raw) < metaEnd {
		return nil, nil, ErrTruncated
	}
	var meta Metadata
	if header.MetaSize > 0 {
		if err := json.Unmarshal(raw[end:metaEnd], &meta); err != nil {
			return nil, nil, fmt.Errorf("tskb: metadata: %w", err)
		}
	}
	return header, &meta, nil
}

func parseHeader(raw []byte) (*Header, error) {
	if len(raw) < headerSize {
		return nil, ErrTruncated
	}
	if string(raw[0:8]) != Magic {
		return nil, ErrBadMagic
	}
	h := &Header{
		Version:     binary.LittleEndian.Uint16(raw[8:10]),
		Flags:       binary.LittleEndian.Uint16(raw[10:12]),
		Compression: raw[12],
		Encryption:  raw[13],
		Signature:   raw[14],
		DataSize:    binary.LittleEndian.Uint32(raw[16:20]),
		MetaSize:    binary.LittleEndian.Uint32(raw[20:24]),
		Timestamp:   time.Unix(int64(binary.LittleEndian.Uint64(raw[56:64])), 0),
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}

	copy(h.Checksum[:], raw[24:56])
	check := make([]byte, headerSize)
	copy(check, raw[:headerSize])
	for i := 24; i < 56; i++ {
		check[i] = 0
	}
	sum := sha256.Sum256(check)
	if !bytes.Equal(sum[:], h.Checksum[:]) {
		return nil, ErrBadChecksum
	}
	return h, nil
}

func encrypt(payload, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, payload, nil), nil
}

func decrypt(payload, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(payload) < gcm.NonceSize() {
		return nil, ErrTruncated
	}
	plaintext, err := gcm.Open(nil, payload[:gcm.NonceSize()], payload[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("tskb: decrypt: %w", err)
	}
	return plaintext, nil
}
