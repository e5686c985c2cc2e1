package bioinfoflow

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for correlation IDs that do not need the run_id's compact format.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateRunID produces a run_id of the form YYYYMMDD_HHMMSS_<8-hex>: a
// timestamp for human sortability plus 32 random bits for uniqueness
// among runs started within the same second.
func GenerateRunID(now time.Time) string {
	ts := now.UTC().Format("20060102_150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return ts + "_" + suffix
}
