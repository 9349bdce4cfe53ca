package ports

import "time"

type DeadLetterID uint64

type DeadLetterEntry struct {
	Envelope Envelope  `json:"envelope"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type DeadLetterLog interface {
	Append(e DeadLetterEntry) (DeadLetterID, error)
	Iterate(from DeadLetterID, fn func(id DeadLetterID, e DeadLetterEntry) error) error
	Commit(upto DeadLetterID) error
	TruncateCommitted() error
	Stats() DeadLetterStats
}

type DeadLetterStats struct {
	OldestPending  DeadLetterID
	LatestAppended DeadLetterID
	SizeBytes      int64
}
