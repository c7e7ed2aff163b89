package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DomainScanLog separates scan log ids from any other hash in the system.
// The version suffix leaves room for a future algorithm change.
const DomainScanLog = "eventguard/scanlog/v1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// LogID computes the id of a scan log minted at origin.
//
// origin must identify the minting station for the lifetime of its
// counter (stations use a fresh UUIDv7 per process) and seq must be
// strictly increasing at that origin. The pair alone is unique; the scan
// details are hashed in as well so that an id also pins down what it
// refers to.
func LogID(origin string, seq int64, guestID string, day Day, ts time.Time) (string, error) {
	canonical, err := marshalCanonical(map[string]any{
		"origin":    origin,
		"seq":       seq,
		"guestId":   guestID,
		"day":       int(day),
		"timestamp": Timestamp(ts).Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("LogID: %w", err)
	}
	return hashWithDomain(DomainScanLog, canonical), nil
}
