package fuzzy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTLSHRegistered(t *testing.T) {
	h, ok := Lookup("TLSH")
	if !ok {
		t.Fatal("tlsh hasher should be registered")
	}
	if h.Name() != "tlsh" {
		t.Fatalf("unexpected name %q", h.Name())
	}
	found := false
	for _, name := range Available() {
		if name == "tlsh" {
			found = true
		}
	}
	if !found {
		t.Fatal("tlsh missing from Available")
	}
}

func TestTLSHHashFile(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small")
	if err := os.WriteFile(small, []byte("tiny"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (TLSHHasher{}).HashFile(small); !errors.Is(err, ErrInputTooSmall) {
		t.Fatalf("expected ErrInputTooSmall, got %v", err)
	}

	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "line %d: %x %s\n", i, i*7919, strings.Repeat(string(rune('a'+i%26)), i%13+1))
	}
	big := filepath.Join(dir, "big")
	if err := os.WriteFile(big, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	digest, err := (TLSHHasher{}).HashFile(big)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if digest == "" {
		t.Fatal("expected a digest")
	}
	again, _ := (TLSHHasher{}).HashFile(big)
	if again != digest {
		t.Fatal("digest should be stable")
	}
}
