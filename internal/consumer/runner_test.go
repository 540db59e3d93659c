package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payflow/internal/clock"
	queuedomain "github.com/smallbiznis/payflow/internal/queue/domain"
	queuerepository "github.com/smallbiznis/payflow/internal/queue/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestRunnerDrainsBacklog(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// One connection, so every query sees the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&queuedomain.Message{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	queue := queuerepository.New(db, node, clk)

	ctx := context.Background()
	_, err = queue.Append(ctx, queuedomain.TopicNotifications, "user:1", []byte(`{"type":"PAYMENT_SUCCESS","user_id":1}`))
	require.NoError(t, err)
	_, err = queue.Append(ctx, queuedomain.TopicTransactions, "txn:T1", []byte(`{"reference_number":"T1","payment_id":1}`))
	require.NoError(t, err)
	// A poison pill must be consumed too, never redelivered forever.
	_, err = queue.Append(ctx, queuedomain.TopicNotifications, "user:2", []byte(`{broken`))
	require.NoError(t, err)

	registry := NewRegistry(RegistryParams{
		Log:       zap.NewNop(),
		Payments:  &paymentServiceStub{},
		Analytics: &analyticsStub{},
	})
	runner := NewRunner(Params{
		Queue:    queue,
		Registry: registry,
		Log:      zap.NewNop(),
		Options:  Options{Group: "test"},
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- runner.Run(runCtx) }()

	deadline := time.After(3 * time.Second)
	for {
		backlog, err := queue.Backlog(ctx)
		require.NoError(t, err)
		if backlog == 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("backlog not drained, %d messages left", backlog)
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}

	var consumed int64
	require.NoError(t, db.Model(&queuedomain.Message{}).Where("consumed = ?", true).Count(&consumed).Error)
	assert.Equal(t, int64(3), consumed)
}
