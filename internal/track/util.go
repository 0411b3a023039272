package track

import (
	"fmt"
	"strconv"
	"time"
)

// toInt64 coerces the numeric types database/sql drivers commonly hand
// back (int64, float64, or a string from text-affinity sqlite columns)
// into an int64, defaulting to 0 for anything else or nil.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case nil:
		return 0
	default:
		return 0
	}
}

// stringify renders a column value to the string representation ModifTrack
// stores for before/after, matching model.Record.PKString's convention so
// history comparisons are simple string equality.
func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", t)
	}
}
