// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package buildcache

import (
	"encoding/binary"
	"io"
	"os"
)

// writeFileSignature folds a file's freshness signal into the digest:
// its path string, byte length, and modification time (seconds plus
// sub-second remainder, little-endian). A missing or non-regular file
// contributes nothing — not a placeholder — so the set of present
// manifests is captured only through the entries that exist.
//
// mtime+size rather than a content hash: manifests are small and
// rarely change, and a content hash of each on every invocation is
// unnecessary I/O. The task file itself runs through the same routine,
// which is what makes edits to the task body change the key.
func writeFileSignature(w io.Writer, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	io.WriteString(w, path)
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(info.Size()))
	w.Write(scratch[:])

	modified := info.ModTime()
	binary.LittleEndian.PutUint64(scratch[:], uint64(modified.Unix()))
	w.Write(scratch[:])
	binary.LittleEndian.PutUint32(scratch[:4], uint32(modified.Nanosecond()))
	w.Write(scratch[:4])
}
