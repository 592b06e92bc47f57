package wavebase

import (
	"bytes"
	"compress/gzip"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Key joins logical key parts, e.g. Key("catalog", "models", "image").
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// CacheKey hashes a logical key so arbitrary model ids stay short and safe.
func CacheKey(key string) []byte {
	hash := sha3.Sum224([]byte(key))
	return []byte(hex.EncodeToString(hash[:]))
}

func compress(data []byte) ([]byte, error) {
	var b bytes.Buffer
	gz, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
