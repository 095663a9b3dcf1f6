package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// EventID derives the stable per-event identifier spec.md §4.4 requires:
// sha256(source_id + ":" + source_seq + ":" + payload_hash)[:32]. Because
// payload is hashed into the id, re-ingesting unchanged bytes at the same
// sequence number always yields the same id, making INSERT OR IGNORE an
// idempotence guarantee rather than a best effort.
func EventID(sourceID string, sourceSeq float64, payload string) string {
	payloadHash := sha256.Sum256([]byte(payload))
	seq := strconv.FormatFloat(sourceSeq, 'f', -1, 64)
	full := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", sourceID, seq, hex.EncodeToString(payloadHash[:]))))
	return hex.EncodeToString(full[:])[:32]
}
