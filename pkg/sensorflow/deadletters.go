package sensorflow

import (
	"context"
	"fmt"

	"github.com/ghalamif/sensorflow/internal/adapters/deadletter"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// FileDeadLetterLog is a dead-letter log the caller must close.
type FileDeadLetterLog interface {
	DeadLetterLog
	Close() error
}

// OpenDeadLetterLog opens (or creates) the file-backed log in dir.
func OpenDeadLetterLog(dir string) (FileDeadLetterLog, error) {
	l, err := deadletter.Open(dir)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// PendingDeadLetters walks every dead letter that has not been replayed yet.
func PendingDeadLetters(dlq DeadLetterLog, fn func(DeadLetterID, DeadLetterEntry) error) error {
	st := dlq.Stats()
	if st.LatestAppended == 0 || st.OldestPending > st.LatestAppended {
		return nil
	}
	return dlq.Iterate(st.OldestPending, fn)
}

// ReplayDeadLetters republishes pending dead letters in order and commits the ones that
// made it back onto the transport. It stops at the first publish failure.
func ReplayDeadLetters(ctx context.Context, dlq DeadLetterLog, pub ports.Publisher, obs Observability) (int, error) {
	var (
		replayed int
		last     DeadLetterID
	)
	err := PendingDeadLetters(dlq, func(id DeadLetterID, e DeadLetterEntry) error {
		env := e.Envelope
		env.Attempt = 0
		if err := pub.Publish(ctx, env); err != nil {
			return fmt.Errorf("replay %d: %w", id, err)
		}
		replayed++
		last = id
		return nil
	})

	if last > 0 {
		if cerr := dlq.Commit(last); cerr != nil {
			return replayed, cerr
		}
		if terr := dlq.TruncateCommitted(); terr != nil {
			return replayed, terr
		}
	}
	if replayed > 0 && obs != nil {
		obs.LogInfo("dlq_replay_complete", ports.F("messages", replayed), ports.F("upto", uint64(last)))
	}
	return replayed, err
}

// ReplayDeadLetters republishes this runtime's dead letters onto its transport.
func (r *Runtime) ReplayDeadLetters(ctx context.Context) (int, error) {
	return ReplayDeadLetters(ctx, r.dlq, r.transport, r.obs)
}
