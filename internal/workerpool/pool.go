// Package workerpool runs extraction tasks on a fixed set of goroutines
// with a bounded queue. A full queue rejects new work instead of growing,
// so upload bursts surface as backpressure at the API.
package workerpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/observability"
)

// Task is one unit of work. Key identifies the resource the task touches
// (the image uuid); tasks sharing a key never run concurrently.
type Task struct {
	Key string
	Run func(ctx context.Context) error
}

type Pool struct {
	tasks       chan Task
	taskTimeout time.Duration
	wg          sync.WaitGroup

	mu     sync.Mutex
	keyRef map[string]*keyLock

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New starts workers goroutines consuming from a queue of queueDepth slots.
// taskTimeout bounds each task's execution; zero disables the bound.
func New(workers, queueDepth int, taskTimeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = workers
	}

	p := &Pool{
		tasks:       make(chan Task, queueDepth),
		taskTimeout: taskTimeout,
		keyRef:      make(map[string]*keyLock),
		closed:      make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues a task. Returns apperr.ErrQueueFull when every slot is
// taken, so callers can translate the condition into a retryable response.
func (p *Pool) Submit(task Task) error {
	// sendMu orders the send against Shutdown closing the channel.
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	select {
	case <-p.closed:
		return apperr.ErrQueueFull
	default:
	}

	select {
	case p.tasks <- task:
		observability.ExtractionQueueDepth.Inc()
		return nil
	default:
		return apperr.ErrQueueFull
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		observability.ExtractionQueueDepth.Dec()
		p.runTask(id, task)
	}
}

// runTask executes the task on its own goroutine and waits no longer than
// the configured timeout. A task that never checks its context keeps running
// in the background, but the worker slot moves on; the key lock is held by
// the task goroutine itself, so a resubmit for the same image still cannot
// overlap the abandoned run.
func (p *Pool) runTask(worker int, task Task) {
	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if p.taskTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		lock := p.acquireKey(task.Key)
		defer p.releaseKey(task.Key, lock)
		done <- task.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("task failed", "worker", worker, "key", task.Key, "error", err)
		}
	case <-ctx.Done():
		slog.Warn("task abandoned", "worker", worker, "key", task.Key,
			"timeout", p.taskTimeout, "error", apperr.ErrExtractionFailure)
	}
}

// acquireKey serializes tasks that share a key. The lock entry is
// refcounted so the map does not grow with every image ever processed.
func (p *Pool) acquireKey(key string) *keyLock {
	p.mu.Lock()
	l, ok := p.keyRef[key]
	if !ok {
		l = &keyLock{}
		p.keyRef[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return l
}

func (p *Pool) releaseKey(key string, l *keyLock) {
	l.mu.Unlock()

	p.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(p.keyRef, key)
	}
	p.mu.Unlock()
}

// Shutdown stops accepting new tasks, waits for queued ones to drain and
// returns, or gives up when ctx expires. Tasks already abandoned by their
// timeout are not waited for.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.sendMu.Lock()
		close(p.closed)
		close(p.tasks)
		p.sendMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
