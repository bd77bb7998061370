package models

import "time"

// PendingRelease is a stored blob that could not be deleted when it was
// superseded and is waiting for a retry.
type PendingRelease struct {
	ID        int64
	Key       string
	Attempts  int
	LastError string
	CreatedAt time.Time
}
