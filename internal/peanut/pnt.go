package peanut

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"time"
)

// pntMagic identifies a compiled peanut file.
const pntMagic = "PNUT"

// pntVersion is the current binary version.
const pntVersion uint32 = 1

// pntHeaderSize is magic(4) + version(4) + timestamp(8).
const pntHeaderSize = 16

// checksumLen is the sha256 prefix length stored after the header.
const checksumLen = 8

// Sentinel errors for the binary form.
var (
	ErrBadPntMagic    = errors.New("pnt: bad magic")
	ErrBadPntVersion  = errors.New("pnt: unsupported version")
	ErrBadPntChecksum = errors.New("pnt: checksum mismatch")
)

func init() {
	// gob needs the concrete types that appear inside the nested config.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(int64(0))
	gob.Register(float64(0))
}

// WriteBinary encodes the nested config map into the .pnt format: a
// 16-byte header, an 8-byte sha256 prefix of the gob payload, then the
// payload itself.
func WriteBinary(path string, values map[string]any) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(values); err != nil {
		return fmt.Errorf("pnt: encode: %w", err)
	}

	header := make([]byte, pntHeaderSize)
	copy(header[0:4], pntMagic)
	binary.LittleEndian.PutUint32(header[4:8], pntVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(time.Now().Unix()))

	sum := sha256.Sum256(payload.Bytes())

	var out bytes.Buffer
	out.Write(header)
	out.Write(sum[:checksumLen])
	out.Write(payload.Bytes())
	return os.WriteFile(path, out.Bytes(), 0o644)
}

// ReadBinary decodes a .pnt file, verifying magic, version and checksum.
func ReadBinary(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < pntHeaderSize+checksumLen {
		return nil, fmt.Errorf("pnt: %s is truncated", path)
	}
	if string(raw[0:4]) != pntMagic {
		return nil, ErrBadPntMagic
	}
	if v := binary.LittleEndian.Uint32(raw[4:8]); v != pntVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadPntVersion, v)
	}

	payload := raw[pntHeaderSize+checksumLen:]
	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:checksumLen], raw[pntHeaderSize:pntHeaderSize+checksumLen]) {
		return nil, ErrBadPntChecksum
	}

	var values map[string]any
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&values); err != nil {
		return nil, fmt.Errorf("pnt: decode: %w", err)
	}
	return values, nil
}

// BinaryTimestamp reads the compile time out of a .pnt header.
func BinaryTimestamp(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()
	header := make([]byte, pntHeaderSize)
	if _, err := f.Read(header); err != nil {
		return time.Time{}, err
	}
	if string(header[0:4]) != pntMagic {
		return time.Time{}, ErrBadPntMagic
	}
	return time.Unix(int64(binary.LittleEndian.Uint64(header[8:16])), 0), nil
}

// CompileFile parses a text config and writes its .pnt next to it (or at
// dst when given).
func CompileFile(src, dst string) error {
	values, err := parseTextConfig(src)
	if err != nil {
		return err
	}
	if dst == "" {
		dst = src[:len(src)-len(".tsk")] + ".pnt"
	}
	return WriteBinary(dst, values)
}
