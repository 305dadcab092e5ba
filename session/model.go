package session

import "time"

// Record is the server-side state behind one session token.
//
// Timestamps are Unix seconds. A record past LastActiveAt+idle or past
// AbsoluteExpiresAt is logically dead even while physically present in a
// store; the Manager re-checks both bounds on every validation and never
// trusts physical presence alone.
type Record struct {
	Token             string
	SubjectID         string
	CreatedAt         int64
	LastActiveAt      int64
	AbsoluteExpiresAt int64
	Attributes        map[string]string
}

// Clone returns a deep copy so no caller shares mutable state with a store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	out := *r
	if r.Attributes != nil {
		out.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	return &out
}

// ExpiresIn returns the remaining time until the absolute ceiling.
func (r *Record) ExpiresIn(now time.Time) time.Duration {
	return time.Unix(r.AbsoluteExpiresAt, 0).Sub(now)
}
