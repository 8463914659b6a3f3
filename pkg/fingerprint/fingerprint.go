// Package fingerprint computes the stable slot identity used throughout the
// pipeline: two polls that see the same (provider, venue, reservation time)
// must produce the same slot_id, independent of payload content or restart.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SlotID returns the 32-character hex fingerprint for a reservable time at a
// venue. Party size is deliberately excluded: it is part of the query, not
// the slot's identity. actualTime is truncated to minute precision.
func SlotID(providerID string, venueID int64, actualTime time.Time) string {
	data := fmt.Sprintf("%s:%d:%s", providerID, venueID, actualTime.UTC().Truncate(time.Minute).Format(time.RFC3339))
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16])
}
