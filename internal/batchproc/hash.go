// Copyright 2025 James Ross
package batchproc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// cheapHash is spec.md §4.4's fast identity check: (size, mtime, path),
// directly analogous to the indexer's ProviderKey(apiBase, user) —
// a short digest over fields that, if unchanged, make a full content scan
// unnecessary.
func cheapHash(path string, size int64, mtimeUnixNano int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%d", path, size, mtimeUnixNano)))
	return hex.EncodeToString(h[:8])
}

// contentDigest streams the file's (decompressed) bytes through sha256
// without buffering it whole, returning a 16-hex-char prefix — the same
// truncation convention as the indexer's ContentHash helper. Computed once
// on first claim and cached in FileState; an append changes this digest
// even when the cheap hash's mtime comparison is unreliable (e.g. a
// filesystem with coarse mtime resolution).
func contentDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("content digest open %s: %w", path, err)
	}
	defer f.Close()

	magic := make([]byte, 2)
	n, _ := io.ReadFull(f, magic)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("content digest seek %s: %w", path, err)
	}

	var r io.Reader = f
	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("content digest gzip open %s: %w", path, err)
		}
		defer gzr.Close()
		r = gzr
	}

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("content digest read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)[:8]), nil
}
