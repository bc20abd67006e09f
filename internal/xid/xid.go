// Package xid mints the prefixed identifiers used across the catalog and
// order stores ("prd-...", "order-...", "usr-...").
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<unix nanos>-<random hex>". The timestamp keeps ids
// roughly ordered by creation; the random suffix keeps two ids minted in the
// same nanosecond distinct. If the entropy source fails, the timestamp alone
// is used.
func New(prefix string) string {
	now := time.Now().UnixNano()
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(suffix))
}
