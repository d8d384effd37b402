package persistence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/gateway/internal/persistence"
)

func TestAsyncLoggerFlushesOnBatchSize(t *testing.T) {
	writer := persistence.NewMemoryWriter(0)
	logger := persistence.NewAsyncLogger(writer, 1000, time.Hour)

	for i := 0; i < 150; i++ {
		logger.Enqueue(persistence.RequestLog{RequestID: "r", CreatedAt: time.Now()})
	}

	require.Eventually(t, func() bool {
		return len(writer.All()) >= 100
	}, time.Second, 10*time.Millisecond)

	logger.Close()
	assert.Len(t, writer.All(), 150)
}

func TestAsyncLoggerFlushesOnTicker(t *testing.T) {
	writer := persistence.NewMemoryWriter(0)
	logger := persistence.NewAsyncLogger(writer, 1000, 20*time.Millisecond)

	logger.Enqueue(persistence.RequestLog{RequestID: "r", CreatedAt: time.Now()})

	require.Eventually(t, func() bool {
		return len(writer.All()) == 1
	}, time.Second, 10*time.Millisecond)

	logger.Close()
}

func TestAsyncLoggerCloseFlushesRemainder(t *testing.T) {
	writer := persistence.NewMemoryWriter(0)
	logger := persistence.NewAsyncLogger(writer, 1000, time.Hour)

	logger.Enqueue(persistence.RequestLog{RequestID: "a", CreatedAt: time.Now()})
	logger.Enqueue(persistence.RequestLog{RequestID: "b", CreatedAt: time.Now()})
	logger.Close()

	assert.Len(t, writer.All(), 2)
}

func TestMemoryWriterTrimsOverCapacity(t *testing.T) {
	writer := persistence.NewMemoryWriter(5)
	for i := 0; i < 10; i++ {
		_ = writer.WriteBatch(nil, []persistence.RequestLog{{RequestID: "r"}})
	}
	assert.Len(t, writer.All(), 5)
}
