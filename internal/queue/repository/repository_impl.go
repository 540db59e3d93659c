// Package repository implements the Queue contract as a DB-poll emulation:
// one shared table, batch fetch, claim-then-commit. Delivery is at-least-once.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/queue/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// claimLease bounds how long a crashed consumer can hold unconsumed rows
// before they become claimable again.
const claimLease = 30 * time.Second

type Repository struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func New(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) *Repository {
	return &Repository{db: db, genID: genID, clock: clk}
}

var _ domain.Queue = (*Repository)(nil)

func (r *Repository) Append(ctx context.Context, topic, key string, value []byte) (*domain.Message, error) {
	if topic == "" {
		return nil, domain.ErrEmptyTopic
	}
	if value == nil {
		return nil, domain.ErrNilPayload
	}

	msg := domain.Message{
		ID:        r.genID.Generate().Int64(),
		Topic:     topic,
		Key:       key,
		Value:     datatypes.JSON(value),
		CreatedAt: r.clock.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

func (r *Repository) Fetch(ctx context.Context, req domain.FetchRequest) ([]domain.Message, error) {
	batch := req.BatchSize
	if batch <= 0 {
		batch = 100
	}

	leaseCutoff := r.clock.Now().Add(-claimLease)
	query := r.db.WithContext(ctx).
		Where("consumed = ?", false).
		Where("claimed_by IS NULL OR claimed_at < ?", leaseCutoff).
		Order("created_at ASC").
		Limit(batch)

	if len(req.Topics) > 0 {
		query = query.Where("topic IN ?", req.Topics)
	}

	// Partition assignment is simulated: in a real broker the partition comes
	// from hash(key) mod partitions, here it is id mod partitions. The filter
	// only applies with an explicit topic subscription, mirroring the original
	// consumer; without it, group members compete for the same rows.
	if len(req.Partitions) > 0 && len(req.Topics) > 0 {
		numPartitions := domain.NumPartitions(req.Topics[0])
		for _, topic := range req.Topics {
			if n := domain.NumPartitions(topic); n > numPartitions {
				numPartitions = n
			}
		}
		clause := r.db.Where("(id % ?) = ?", numPartitions, req.Partitions[0])
		for _, p := range req.Partitions[1:] {
			clause = clause.Or("(id % ?) = ?", numPartitions, p)
		}
		query = query.Where(clause)
	}

	var messages []domain.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return messages, nil
}

// Claim stamps the rows with a per-call owner token and reports the ids this
// consumer actually won. Rows already claimed within the lease stay with their
// owner, so two group members cannot dispatch the same batch.
func (r *Repository) Claim(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	token := r.genID.Generate().String()
	now := r.clock.Now()
	leaseCutoff := now.Add(-claimLease)

	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id IN ?", ids).
		Where("consumed = ?", false).
		Where("claimed_by IS NULL OR claimed_at < ?", leaseCutoff).
		Updates(map[string]any{"claimed_by": token, "claimed_at": now}).Error
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}

	var won []int64
	err = r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("claimed_by = ?", token).
		Pluck("id", &won).Error
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}
	return won, nil
}

func (r *Repository) MarkConsumed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := r.clock.Now()
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"consumed": true, "consumed_at": now}).Error
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	return nil
}

func (r *Repository) Backlog(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("consumed = ?", false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("backlog: %w", err)
	}
	return count, nil
}
