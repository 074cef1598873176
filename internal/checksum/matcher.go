package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"strings"
)

var ErrMismatch = errors.New("checksum mismatch")

// Sum returns the hex sha256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Copy streams src into dst and returns the hex sha256 of what was copied.
func Copy(dst io.Writer, src io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return "", n, err
	}
	return encode(h), n, nil
}

func encode(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Matcher verifies content against a digest announced by the uploader.
type Matcher struct {
	expected string
}

func NewMatcher(expected string) *Matcher {
	return &Matcher{expected: strings.ToLower(strings.TrimSpace(expected))}
}

// Match compares a computed hex digest with the expected one. An empty
// expectation always matches.
func (m *Matcher) Match(computed string) error {
	if m.expected == "" || m.expected == strings.ToLower(computed) {
		return nil
	}
	return ErrMismatch
}
