package ir

import "time"

// asTime converts a graph.Record value of unknown driver-provided type
// into a time.Time. lib/pq returns time.Time directly for TIMESTAMPTZ
// columns; sqlmock-based tests may hand back other concrete types, so
// this stays permissive rather than panicking.
func asTime(v interface{}) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
