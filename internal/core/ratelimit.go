package core

import "time"

// BucketState captures the persisted rate limit window of one route bucket.
type BucketState struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Last429At *time.Time
	UpdatedAt time.Time
}

// Open reports whether the window is still running at now.
func (s BucketState) Open(now time.Time) bool {
	return s.ResetAt.After(now)
}
