package domain

import (
	"context"
	"errors"
)

// FetchRequest filters a batch poll.
type FetchRequest struct {
	// Topics restricts the fetch; empty means all topics.
	Topics []string
	// Partitions restricts the fetch to messages whose PartitionOf falls in
	// the set. Applied only when Topics is set and partition filtering is on;
	// with no filter, group members compete for the same rows (broker-style
	// assignment is out of scope for the emulation).
	Partitions []int
	BatchSize  int
}

// Queue is the delivery contract of the simulated broker. The DB-poll
// implementation lives in the repository package; a broker-backed client can
// satisfy the same interface.
type Queue interface {
	// Append writes one message. Rows are never deleted.
	Append(ctx context.Context, topic, key string, value []byte) (*Message, error)
	// Fetch returns up to BatchSize unconsumed, unclaimed messages ordered by
	// creation time.
	Fetch(ctx context.Context, req FetchRequest) ([]Message, error)
	// Claim marks the rows as owned by this consumer before dispatch and
	// reports which ids were actually won. Rows claimed by another group
	// member are skipped, bounding duplication to crash windows only.
	Claim(ctx context.Context, ids []int64) ([]int64, error)
	// MarkConsumed batch-commits the whole dispatched set in one update.
	MarkConsumed(ctx context.Context, ids []int64) error
	// Backlog reports the number of unconsumed messages.
	Backlog(ctx context.Context) (int64, error)
}

var (
	ErrEmptyTopic = errors.New("empty_topic")
	ErrNilPayload = errors.New("nil_payload")
)
