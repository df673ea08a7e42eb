// Package artifacts fetches packed module bundles by key.
package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/klauspost/compress/zstd"
)

var (
	ErrNotFound = errors.New("artifact not found")
	// ErrBadKey rejects keys that are not a single safe path segment.
	ErrBadKey = errors.New("bad artifact key")
)

// Store is the read side every artifact backend provides.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
}

// maxDecodedBytes caps a decompressed artifact.
const maxDecodedBytes = 256 << 20

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	decoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecodedBytes))
	encoder, _ = zstd.NewWriter(nil)
)

// Decompress returns data unchanged unless it starts with the zstd frame
// magic, in which case the decoded content is returned.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress artifact: %w", err)
	}
	return out, nil
}

func Compress(data []byte) []byte {
	return encoder.EncodeAll(data, nil)
}

// Key is the content address of data.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

func checkKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w %q", ErrBadKey, key)
	}
	return nil
}
