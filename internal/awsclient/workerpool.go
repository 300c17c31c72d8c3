package awsclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// WorkerPool runs submitted tasks across a fixed set of goroutines, used to
// bound how many concurrent MT calls a room's translation cycle can issue
// at once. Grounded on internal/aws/stream_manager.go's WorkerPool.
type WorkerPool struct {
	name      string
	workers   int
	taskQueue chan func()
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.SugaredLogger

	closed    int32
	processed int64
	dropped   int64
}

// NewWorkerPool starts a pool of `workers` goroutines backed by a queue of
// capacity `queueSize`.
func NewWorkerPool(ctx context.Context, name string, workers, queueSize int, logger *zap.SugaredLogger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	wpCtx, cancel := context.WithCancel(ctx)
	wp := &WorkerPool{
		name:      name,
		workers:   workers,
		taskQueue: make(chan func(), queueSize),
		ctx:       wpCtx,
		cancel:    cancel,
		log:       logger,
	}
	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	logger.Infow("worker pool started", "name", name, "workers", workers, "queue_size", queueSize)
	return wp
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.taskQueue:
			if !ok {
				return
			}
			wp.runTask(id, task)
		}
	}
}

func (wp *WorkerPool) runTask(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			wp.log.Errorw("worker pool task panic recovered", "pool", wp.name, "worker", id, "panic", r)
		}
	}()
	task()
	atomic.AddInt64(&wp.processed, 1)
}

// Submit enqueues a task without blocking, returning false if the queue is
// full (the task is dropped).
func (wp *WorkerPool) Submit(task func()) bool {
	if atomic.LoadInt32(&wp.closed) == 1 {
		return false
	}
	select {
	case wp.taskQueue <- task:
		return true
	default:
		atomic.AddInt64(&wp.dropped, 1)
		return false
	}
}

// SubmitWait enqueues a task, blocking up to timeout for room in the queue.
func (wp *WorkerPool) SubmitWait(task func(), timeout time.Duration) bool {
	if atomic.LoadInt32(&wp.closed) == 1 {
		return false
	}
	select {
	case wp.taskQueue <- task:
		return true
	case <-time.After(timeout):
		atomic.AddInt64(&wp.dropped, 1)
		return false
	case <-wp.ctx.Done():
		return false
	}
}

// Stats returns a snapshot of the pool's counters.
func (wp *WorkerPool) Stats() map[string]any {
	return map[string]any{
		"name":      wp.name,
		"workers":   wp.workers,
		"queueLen":  len(wp.taskQueue),
		"queueCap":  cap(wp.taskQueue),
		"processed": atomic.LoadInt64(&wp.processed),
		"dropped":   atomic.LoadInt64(&wp.dropped),
		"closed":    atomic.LoadInt32(&wp.closed) == 1,
	}
}

// Close stops accepting tasks, waits for in-flight tasks to finish, and
// shuts down every worker goroutine.
func (wp *WorkerPool) Close() {
	if !atomic.CompareAndSwapInt32(&wp.closed, 0, 1) {
		return
	}
	wp.cancel()
	close(wp.taskQueue)
	wp.wg.Wait()
	wp.log.Infow("worker pool closed", "name", wp.name, "processed", wp.processed, "dropped", wp.dropped)
}
