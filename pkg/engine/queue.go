package engine

import (
	"context"
	"sync"

	"authfuzz/pkg/logger"
)

// EngineQueue bounds how many scans execute at once. Scans beyond the limit
// wait for a slot in arrival order of the channel send.
type EngineQueue struct {
	slots   chan struct{}
	running int
	waiting int
	mu      sync.Mutex
	logger  *logger.Logger
}

type QueueStatus struct {
	Running       int `json:"running"`
	Waiting       int `json:"waiting"`
	MaxConcurrent int `json:"max_concurrent"`
}

var (
	globalQueue *EngineQueue
	queueOnce   sync.Once
)

func NewEngineQueue(maxConcurrent int, l *logger.Logger) *EngineQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if l == nil {
		l = logger.Default()
	}
	return &EngineQueue{
		slots:  make(chan struct{}, maxConcurrent),
		logger: l,
	}
}

// InitGlobalQueue sets up the process-wide queue. Only the first call has
// an effect.
func InitGlobalQueue(maxConcurrent int) {
	queueOnce.Do(func() {
		globalQueue = NewEngineQueue(maxConcurrent, nil)
		globalQueue.logger.WithFields(logger.Fields{
			"max_concurrent": cap(globalQueue.slots),
		}).Info("Scan queue initialized")
	})
}

func GetGlobalQueue() *EngineQueue {
	InitGlobalQueue(1)
	return globalQueue
}

// Execute blocks until a slot is free, then runs fn. If ctx ends while
// waiting, fn never runs and ctx.Err() is returned.
func (q *EngineQueue) Execute(ctx context.Context, scanID string, fn func() error) error {
	q.mu.Lock()
	q.waiting++
	waiting, running := q.waiting, q.running
	q.mu.Unlock()

	q.logger.WithFields(logger.Fields{
		"scan_id": scanID,
		"waiting": waiting,
		"running": running,
		"slots":   cap(q.slots),
	}).Info("Scan queued")

	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		q.mu.Lock()
		q.waiting--
		q.mu.Unlock()
		return ctx.Err()
	}

	q.mu.Lock()
	q.waiting--
	q.running++
	q.mu.Unlock()

	defer func() {
		<-q.slots
		q.mu.Lock()
		q.running--
		running, waiting := q.running, q.waiting
		q.mu.Unlock()

		q.logger.WithFields(logger.Fields{
			"scan_id": scanID,
			"running": running,
			"waiting": waiting,
		}).Info("Scan slot released")
	}()

	return fn()
}

func (q *EngineQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		Running:       q.running,
		Waiting:       q.waiting,
		MaxConcurrent: cap(q.slots),
	}
}
