// Package persistence holds the write-through request-log sink: requests
// are appended to a buffered channel and flushed to a LogWriter in batches,
// on a fixed interval, so the request path never blocks on storage.
package persistence

import (
	"context"
	"sync"
	"time"
)

// RequestLog is one completed request's durable record.
type RequestLog struct {
	RequestID    string    `json:"request_id"`
	ApiKeyID     string    `json:"api_key_id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Strategy     string    `json:"strategy"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms"`
	Stream       bool      `json:"stream"`
	StatusCode   int       `json:"status_code"`
	Error        string    `json:"error,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
	CreatedAt    time.Time `json:"created_at"`
}

// LogWriter persists completed request logs.
type LogWriter interface {
	WriteBatch(ctx context.Context, logs []RequestLog) error
}

// AsyncLogger batches RequestLog entries and flushes them to a LogWriter
// every flushInterval (default 5s per the gateway's background-task model)
// or once a batch fills, whichever comes first.
type AsyncLogger struct {
	ch            chan RequestLog
	wg            sync.WaitGroup
	writer        LogWriter
	flushInterval time.Duration
	batchSize     int
}

// NewAsyncLogger starts the background drain goroutine.
func NewAsyncLogger(writer LogWriter, bufferSize int, flushInterval time.Duration) *AsyncLogger {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	al := &AsyncLogger{
		ch:            make(chan RequestLog, bufferSize),
		writer:        writer,
		flushInterval: flushInterval,
		batchSize:     100,
	}
	al.wg.Add(1)
	go al.drain()
	return al
}

// Enqueue queues a log entry, dropping it silently if the buffer is full
// so a slow sink never backs up the request path.
func (al *AsyncLogger) Enqueue(entry RequestLog) {
	select {
	case al.ch <- entry:
	default:
	}
}

// Close flushes pending logs and stops the drain goroutine.
func (al *AsyncLogger) Close() {
	close(al.ch)
	al.wg.Wait()
}

func (al *AsyncLogger) drain() {
	defer al.wg.Done()

	batch := make([]RequestLog, 0, al.batchSize)
	ticker := time.NewTicker(al.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-al.ch:
			if !ok {
				if len(batch) > 0 {
					al.flush(batch)
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= al.batchSize {
				al.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				al.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (al *AsyncLogger) flush(batch []RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = al.writer.WriteBatch(ctx, append([]RequestLog(nil), batch...))
}
