package binary

import (
	"encoding/hex"
	"hash"
	"time"
)

func fmtChecksum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// asTime recovers a time.Time from a scanned column value regardless of
// whether the driver handed back a native time.Time or the TEXT
// representation it stored a DATETIME column as.
func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
