package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"

	"edrwatch/logger"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024

	DefaultAlgorithm = "sha256"
	DefaultMaxSize   = 100 * 1024 * 1024
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

// Supported reports whether algo names a digest this package can compute.
func Supported(algo string) bool {
	return newHash(algo) != nil
}

func newHash(algo string) hash.Hash {
	switch strings.ToLower(algo) {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	case "sha256":
		return sha256.New()
	case "blake3":
		return blake3.New(32, nil)
	case "xxhash":
		return xxhash.New()
	default:
		return nil
	}
}

// Calculator produces the content fingerprint stored in each snapshot.
// Files larger than MaxSize are not read. A MaxSize of zero or less
// disables the ceiling.
type Calculator struct {
	MaxSize   int64
	Algorithm string
}

func NewCalculator(maxSize int64, algorithm string) *Calculator {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	return &Calculator{MaxSize: maxSize, Algorithm: strings.ToLower(algorithm)}
}

// Hash returns the hex digest of the file, or "" when the file is over the
// size ceiling or cannot be read. It never fails.
func (c *Calculator) Hash(path string) string {
	algo := DefaultAlgorithm
	var maxSize int64 = DefaultMaxSize
	if c != nil {
		algo = c.Algorithm
		maxSize = c.MaxSize
	}
	info, err := os.Stat(path)
	if err != nil {
		logger.Warnf("Failed to stat file for hashing %s: %v", path, err)
		return ""
	}
	if maxSize > 0 && info.Size() > maxSize {
		logger.Warnf("File %s exceeds hashing ceiling (%d > %d bytes), skipping", path, info.Size(), maxSize)
		return ""
	}
	return ComputeHashesWithin(path, []string{algo}, maxSize)[algo]
}

// ComputeHashes streams the file once through every requested digest.
// Unsupported algorithms are logged and omitted from the result.
func ComputeHashes(path string, algorithms []string) map[string]string {
	return ComputeHashesWithin(path, algorithms, 0)
}

// ComputeHashesWithin is ComputeHashes with a read ceiling. A file that
// yields more than maxSize bytes, for instance because it grew after it was
// sized, produces no digests. A non-positive maxSize reads to EOF.
func ComputeHashesWithin(path string, algorithms []string, maxSize int64) map[string]string {
	hashes := make(map[string]string, len(algorithms))

	file, err := os.Open(path)
	if err != nil {
		logger.Warnf("Failed to open file for hashing %s: %v", path, err)
		return hashes
	}
	defer file.Close()

	type hasherEntry struct {
		name string
		h    hash.Hash
	}
	hashers := make([]hasherEntry, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	for _, algo := range algorithms {
		if _, ok := seen[algo]; ok {
			continue
		}
		h := newHash(algo)
		if h == nil {
			logger.Warnf("Unsupported hash algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		hashers = append(hashers, hasherEntry{name: algo, h: h})
	}
	if len(hashers) == 0 {
		return hashes
	}

	bufferPool := &hashBufferSmallPool
	if info, statErr := file.Stat(); statErr == nil && info.Size() >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufferPtr)
	buffer := *bufferPtr
	var reader io.Reader = file
	if maxSize > 0 {
		reader = io.LimitReader(file, maxSize+1)
	}
	var total int64
	for {
		n, readErr := reader.Read(buffer)
		total += int64(n)
		if maxSize > 0 && total > maxSize {
			logger.Warnf("File %s grew past hashing ceiling (%d bytes) while reading, skipping", path, maxSize)
			return map[string]string{}
		}
		if n > 0 {
			chunk := buffer[:n]
			for i := range hashers {
				hashers[i].h.Write(chunk)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			logger.Warnf("Failed to compute hashes for %s: %v", path, readErr)
			return map[string]string{}
		}
	}

	for i := range hashers {
		hashes[hashers[i].name] = hex.EncodeToString(hashers[i].h.Sum(nil))
	}
	return hashes
}
