// Copyright 2025 James Ross
package warehouse

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// RecordID computes the deterministic id spec.md §4.3 requires:
// hash(path, byte-offset, content-digest-prefix). Reprocessing the same
// file yields identical ids, letting a ReplacingMergeTree-style engine
// collapse duplicates on reinsert — directly analogous to the
// StreamHash/ContentHash pattern in the indexer's fetch-state tracker.
func RecordID(path string, byteOffset int64, contentDigestPrefix string) uint64 {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", path, byteOffset, contentDigestPrefix)))
	return binary.BigEndian.Uint64(h[:8])
}
