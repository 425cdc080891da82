package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_RunsHooksInOrder(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gs := NewGracefulShutdown(time.Second, logger)

	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	gs.Register("cache", OrderSaveState, record("cache"))
	gs.Register("http", OrderStopAcceptingRequests, record("http"))
	gs.Register("kafka", OrderFlushProducers, record("kafka"))
	gs.Register("nodes", OrderCloseConnections, record("nodes"))
	gs.Register("db", OrderCloseConnections, record("db"))

	require.NoError(t, gs.Shutdown())
	assert.Equal(t, []string{"http", "kafka", "nodes", "db", "cache"}, order)
	assert.Error(t, gs.Context().Err())

	select {
	case <-gs.Done():
	default:
		t.Fatal("Done 未关闭")
	}
}

func TestShutdown_OnlyOnce(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gs := NewGracefulShutdown(time.Second, logger)

	calls := 0
	gs.Register("count", OrderSaveState, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, gs.Shutdown())
	require.NoError(t, gs.Shutdown())
	assert.Equal(t, 1, calls)
}

func TestShutdown_CollectsErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gs := NewGracefulShutdown(time.Second, logger)

	boom := errors.New("boom")
	ran := false
	gs.Register("fails", OrderStopAcceptingRequests, func(context.Context) error { return boom })
	gs.Register("after", OrderSaveState, func(context.Context) error {
		ran = true
		return nil
	})

	err := gs.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fails")
	assert.True(t, ran)
	assert.ErrorIs(t, gs.Wait(), boom)
}

func TestShutdown_TimeoutSkipsRemaining(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gs := NewGracefulShutdown(20*time.Millisecond, logger)

	skipped := true
	gs.Register("slow", OrderStopAcceptingRequests, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	gs.Register("late", OrderSaveState, func(context.Context) error {
		skipped = false
		return nil
	})

	err := gs.Shutdown()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, skipped)
}
