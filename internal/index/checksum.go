package index

import (
	"crypto/sha256"
	"encoding/hex"
)

// sampledChecksum digests content the way the change-gating step wants: the
// whole file when it's smaller than 2*sampleKB, otherwise only its first and
// last sampleKB kilobytes (a file that grew or shrank in the middle without
// moving its head or tail still passes the size/mtime gate unnoticed, so the
// gate additionally leans on this checksum whenever mtime precision can't be
// trusted). A sampleKB of zero hashes the entire file.
func sampledChecksum(content []byte, sampleKB float64) string {
	h := sha256.New()
	if sampleKB <= 0 {
		h.Write(content)
		return hex.EncodeToString(h.Sum(nil))
	}

	sampleBytes := int(sampleKB * 1024)
	if len(content) <= sampleBytes*2 {
		h.Write(content)
		return hex.EncodeToString(h.Sum(nil))
	}

	h.Write(content[:sampleBytes])
	h.Write(content[len(content)-sampleBytes:])
	return hex.EncodeToString(h.Sum(nil))
}
