package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Kind identifies a unit-of-work type
type Kind string

const (
	TaskSetup      Kind = "setup"
	TaskScrape     Kind = "scrape"
	TaskEvaluate   Kind = "evaluate"
	TaskSynthesize Kind = "synthesize"
)

// Task is one unit of work for a report's pipeline. Tasks are delivered
// at-least-once: a transient failure re-enqueues the task with backoff, so
// every handler must be idempotent or safely re-runnable.
type Task struct {
	Kind     Kind
	ReportID string
	Attempt  int
}

// Handler executes one task
type Handler func(ctx context.Context, task Task) error

// Pool is a bounded worker pool with bounded retries. It stands in for a
// durable-execution substrate: no persistence, but the same retry and
// at-least-once delivery semantics the handlers are written against.
type Pool struct {
	queue       chan Task
	handlers    map[Kind]Handler
	workers     int
	maxAttempts int
	taskTimeout time.Duration
	baseBackoff time.Duration
	onExhausted func(Task, error)

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewPool creates a pool with the given number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:       make(chan Task, 1024),
		handlers:    make(map[Kind]Handler),
		workers:     workers,
		maxAttempts: 3,
		taskTimeout: 2 * time.Minute,
		baseBackoff: 2 * time.Second,
		done:        make(chan struct{}),
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (p *Pool) Register(kind Kind, h Handler) {
	p.handlers[kind] = h
}

// OnExhausted sets the callback invoked when a task runs out of attempts
func (p *Pool) OnExhausted(fn func(Task, error)) {
	p.onExhausted = fn
}

// Enqueue submits a task without blocking. Returns false when the queue is
// full or the pool is stopped; dropped tasks are re-proposed by the
// supervisor sweep, so dropping is safe.
func (p *Pool) Enqueue(task Task) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- task:
		return true
	default:
		log.Printf("[Pool] queue full, dropping %s for report %s", task.Kind, task.ReportID)
		return false
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	log.Printf("[Pool] started %d workers", p.workers)
}

// Stop drains nothing: in-flight tasks finish, queued tasks are abandoned.
// The supervisor sweep re-proposes anything that mattered.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case task := <-p.queue:
			p.execute(task)
		}
	}
}

func (p *Pool) execute(task Task) {
	handler, ok := p.handlers[task.Kind]
	if !ok {
		log.Printf("[Pool] no handler for task kind %s", task.Kind)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	err := p.safeRun(ctx, handler, task)
	if err == nil {
		return
	}

	attempt := task.Attempt + 1
	if attempt >= p.maxAttempts {
		log.Printf("[Pool] %s for report %s failed after %d attempts: %v", task.Kind, task.ReportID, attempt, err)
		if p.onExhausted != nil {
			p.onExhausted(task, err)
		}
		return
	}

	backoff := p.baseBackoff << uint(task.Attempt)
	log.Printf("[Pool] %s for report %s failed (attempt %d/%d), retrying in %v: %v",
		task.Kind, task.ReportID, attempt, p.maxAttempts, backoff, err)

	retry := Task{Kind: task.Kind, ReportID: task.ReportID, Attempt: attempt}
	time.AfterFunc(backoff, func() {
		p.Enqueue(retry)
	})
}

func (p *Pool) safeRun(ctx context.Context, handler Handler, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", task.Kind, r)
		}
	}()
	return handler(ctx, task)
}
