package storage

import "time"

// entry is a stored value with its optional expiry
type entry struct {
	data   []byte
	expiry time.Time // zero means no expiry
}

func (e *entry) expiredAt(now time.Time) bool {
	return !e.expiry.IsZero() && !now.Before(e.expiry)
}
