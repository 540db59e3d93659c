// Package consumer is the poll loop that drains the queue store and
// dispatches claimed messages to topic handlers. Delivery is at-least-once:
// a crash between dispatch and the batch commit redelivers the whole batch.
package consumer

import (
	"context"
	"fmt"
	"time"

	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
	"github.com/smallbiznis/payflow/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	idleBackoff      = 500 * time.Millisecond
	errorBackoff     = 5 * time.Second
	statsEveryIdle   = 10
	defaultBatchSize = 100
)

// Options selects what this runner polls for. Zero values mean all topics,
// no partition filter, default batch size.
type Options struct {
	Group      string
	Topics     []string
	Partitions []int
	BatchSize  int
}

type Params struct {
	fx.In

	Queue    queuedomain.Queue
	Registry Registry
	Log      *zap.Logger
	Options  Options
	Metrics  *telemetry.Metrics `optional:"true"`
}

type Runner struct {
	queue    queuedomain.Queue
	registry Registry
	log      *zap.Logger
	opts     Options
	metrics  *telemetry.Metrics
}

func NewRunner(p Params) *Runner {
	opts := p.Options
	if opts.Group == "" {
		opts.Group = "default"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Runner{
		queue:    p.Queue,
		registry: p.Registry,
		log:      p.Log.Named("consumer").With(zap.String("group", opts.Group)),
		opts:     opts,
		metrics:  p.Metrics,
	}
}

// Run polls until ctx is canceled. Store errors back off and retry; handler
// errors are logged per message and never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("consumer started",
		zap.Strings("topics", r.opts.Topics),
		zap.Ints("partitions", r.opts.Partitions),
		zap.Int("batch_size", r.opts.BatchSize),
	)

	idlePolls := 0
	for {
		if err := ctx.Err(); err != nil {
			r.log.Info("consumer stopping")
			return err
		}

		batch, err := r.queue.Fetch(ctx, queuedomain.FetchRequest{
			Topics:     r.opts.Topics,
			Partitions: r.opts.Partitions,
			BatchSize:  r.opts.BatchSize,
		})
		if err != nil {
			r.metrics.RecordPollBackoff()
			r.log.Error("fetch failed, backing off", zap.Error(err))
			if !r.sleep(ctx, errorBackoff) {
				return ctx.Err()
			}
			continue
		}

		if len(batch) == 0 {
			idlePolls++
			if idlePolls%statsEveryIdle == 0 {
				r.logStats(ctx)
			}
			if !r.sleep(ctx, idleBackoff) {
				return ctx.Err()
			}
			continue
		}
		idlePolls = 0

		won, err := r.claim(ctx, batch)
		if err != nil {
			r.metrics.RecordPollBackoff()
			r.log.Error("claim failed, backing off", zap.Error(err))
			if !r.sleep(ctx, errorBackoff) {
				return ctx.Err()
			}
			continue
		}
		if len(won) == 0 {
			continue
		}

		ids := make([]int64, 0, len(won))
		for _, msg := range won {
			r.dispatch(ctx, msg)
			ids = append(ids, msg.ID)
		}

		// One commit for the whole batch. Messages whose handler failed are
		// committed too; redelivery of handler failures is not part of the
		// contract, idempotent handlers are.
		if err := r.queue.MarkConsumed(ctx, ids); err != nil {
			r.log.Error("mark consumed failed", zap.Int("count", len(ids)), zap.Error(err))
		}
	}
}

// claim narrows the fetched batch to the rows this runner actually won.
func (r *Runner) claim(ctx context.Context, batch []queuedomain.Message) ([]queuedomain.Message, error) {
	ids := make([]int64, 0, len(batch))
	for _, msg := range batch {
		ids = append(ids, msg.ID)
	}

	wonIDs, err := r.queue.Claim(ctx, ids)
	if err != nil {
		return nil, err
	}

	wonSet := make(map[int64]bool, len(wonIDs))
	for _, id := range wonIDs {
		wonSet[id] = true
	}

	won := batch[:0]
	for _, msg := range batch {
		if wonSet[msg.ID] {
			won = append(won, msg)
		}
	}
	return won, nil
}

func (r *Runner) dispatch(ctx context.Context, msg queuedomain.Message) {
	handler, ok := r.registry[msg.Topic]
	if !ok {
		r.log.Warn("no handler for topic, consuming",
			zap.String("topic", msg.Topic),
			zap.Int64("message_id", msg.ID),
		)
		return
	}

	start := time.Now()
	err := r.safeHandle(ctx, handler, msg)
	status := "success"
	if err != nil {
		status = "error"
		r.log.Error("handler failed",
			zap.String("topic", msg.Topic),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}
	r.metrics.RecordHandler(msg.Topic, status, time.Since(start))
}

// safeHandle keeps a panicking handler from taking the whole loop down; the
// message is committed with the rest of its batch.
func (r *Runner) safeHandle(ctx context.Context, handler Handler, msg queuedomain.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(ctx, msg)
}

func (r *Runner) logStats(ctx context.Context) {
	backlog, err := r.queue.Backlog(ctx)
	if err != nil {
		r.log.Warn("backlog count failed", zap.Error(err))
		return
	}
	r.log.Info("idle", zap.Int64("backlog", backlog))
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
