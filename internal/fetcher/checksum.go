package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// FileSHA256 computes the hex SHA-256 of a file's bytes.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "fetcher: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares a file against its expected hex SHA-256.
// The comparison is case-insensitive.
func VerifyChecksum(path, expected string) error {
	got, err := FileSHA256(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expected) {
		return eris.Errorf("fetcher: checksum mismatch for %s: got %s, want %s", path, got, expected)
	}
	return nil
}
