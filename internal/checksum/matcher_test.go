package checksum

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const helloSum = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestSumAndCopyAgree(t *testing.T) {
	if got := Sum([]byte("hello")); got != helloSum {
		t.Fatalf("Sum = %s", got)
	}
	var buf bytes.Buffer
	sum, n, err := Copy(&buf, strings.NewReader("hello"))
	if err != nil || n != 5 || sum != helloSum || buf.String() != "hello" {
		t.Fatalf("Copy = %s %d %v %q", sum, n, err, buf.String())
	}
}

func TestMatcher(t *testing.T) {
	if err := NewMatcher("").Match(helloSum); err != nil {
		t.Fatalf("empty expectation: %v", err)
	}
	if err := NewMatcher(strings.ToUpper(helloSum)).Match(helloSum); err != nil {
		t.Fatalf("case-insensitive match: %v", err)
	}
	if err := NewMatcher("deadbeef").Match(helloSum); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
