package hasher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"edrwatch/logger"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestComputeHashes(t *testing.T) {
	logger.Init("info")
	path := writeTemp(t, "hash-test", "hello world")

	hashes := ComputeHashes(path, []string{"md5", "sha1", "sha256", "blake3", "xxhash", "unknown"})
	if hashes["md5"] != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 mismatch: %s", hashes["md5"])
	}
	if hashes["sha1"] != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("sha1 mismatch: %s", hashes["sha1"])
	}
	if hashes["sha256"] != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", hashes["sha256"])
	}
	if len(hashes["blake3"]) != 64 {
		t.Errorf("blake3 digest should be 32 bytes hex, got %q", hashes["blake3"])
	}
	if len(hashes["xxhash"]) != 16 {
		t.Errorf("xxhash digest should be 8 bytes hex, got %q", hashes["xxhash"])
	}
	if _, ok := hashes["unknown"]; ok {
		t.Errorf("unexpected hash for unknown algorithm")
	}
}

func TestCalculatorHash(t *testing.T) {
	path := writeTemp(t, "hash-test", "hello world")
	calc := NewCalculator(DefaultMaxSize, "")
	if got := calc.Hash(path); got != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Fatalf("unexpected digest %q", got)
	}
	if a, b := calc.Hash(path), calc.Hash(path); a != b {
		t.Fatalf("hash should be stable, got %q and %q", a, b)
	}
}

func TestCalculatorOversizeReturnsEmpty(t *testing.T) {
	path := writeTemp(t, "big.bin", "0123456789")
	calc := NewCalculator(5, "sha256")
	if got := calc.Hash(path); got != "" {
		t.Fatalf("expected empty fingerprint above ceiling, got %q", got)
	}
}

func TestCalculatorAtCeilingIsHashed(t *testing.T) {
	path := writeTemp(t, "edge.bin", "12345")
	calc := NewCalculator(5, "xxhash")
	if got := calc.Hash(path); got == "" {
		t.Fatal("file exactly at the ceiling should be hashed")
	}
}

func TestComputeHashesWithinEnforcesCeilingWhileReading(t *testing.T) {
	// stands in for a file that was under the ceiling when sized and grew
	// before it was read
	path := writeTemp(t, "growing.log", strings.Repeat("x", 64*1024+1))
	if got := ComputeHashesWithin(path, []string{"sha256", "md5"}, 64*1024); len(got) != 0 {
		t.Fatalf("expected no digests past the ceiling, got %v", got)
	}
	if got := ComputeHashesWithin(path, []string{"sha256"}, 64*1024+1); got["sha256"] == "" {
		t.Fatal("file at the ceiling should be hashed")
	}
	if got := ComputeHashesWithin(path, []string{"sha256"}, 0); got["sha256"] == "" {
		t.Fatal("no ceiling should read to EOF")
	}
}

func TestCalculatorMissingFileReturnsEmpty(t *testing.T) {
	calc := NewCalculator(DefaultMaxSize, "sha256")
	if got := calc.Hash(filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Fatalf("expected empty fingerprint for missing file, got %q", got)
	}
	var nilCalc *Calculator
	if got := nilCalc.Hash(filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Fatalf("nil calculator should also return empty, got %q", got)
	}
}

func TestSupported(t *testing.T) {
	for _, algo := range []string{"sha256", "BLAKE3", "xxhash"} {
		if !Supported(algo) {
			t.Errorf("%s should be supported", algo)
		}
	}
	if Supported("crc32") {
		t.Error("crc32 should not be supported")
	}
}
