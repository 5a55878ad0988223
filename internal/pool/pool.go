// Package pool provides a fixed-size pool of specialty-tagged workers with
// per-specialty FIFO queues.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Runner executes a single work item. Implementations are the execution
// backend (LLM-backed in production, fakes in tests); the pool has no
// knowledge of what the work means.
type Runner interface {
	// Run executes the item and returns its result. A returned error marks
	// the worker as errored; business-level failure belongs in the result.
	Run(ctx context.Context, item models.WorkItem) (models.WorkResult, error)
}

// RunnerFactory creates Runner instances, one per worker slot.
type RunnerFactory interface {
	NewRunner() Runner
}

// DefaultTimeout bounds work item execution when the item does not carry
// its own timeout.
const DefaultTimeout = 10 * time.Minute

const (
	minWorkers = 1
	maxWorkers = 50
)

// Config contains configuration for the pool.
type Config struct {
	// Roster lists one specialty per worker slot. Pool size is fixed at
	// construction; growing or shrinking is an external admin operation.
	Roster []models.Specialty
	// Factory creates the execution backend for each worker. Required.
	Factory RunnerFactory
	// DefaultTimeout bounds items that carry no timeout of their own.
	DefaultTimeout time.Duration
}

// pending is a queued work item awaiting an idle worker.
type pending struct {
	item    models.WorkItem
	future  *Future
	retried bool
}

// slot is one worker and its runner.
type slot struct {
	worker models.Worker
	runner Runner
}

// Pool is a fixed-size pool of stateless executor slots. Assignment state is
// mutated only through Submit and the internal completion path.
type Pool struct {
	cfg   Config
	slots map[string]*slot
	// queues holds FIFO pending items keyed by effective specialty.
	queues map[models.Specialty][]*pending

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates a Pool with one worker per roster entry. The pool size must be
// between 1 and 50.
func New(cfg Config) (*Pool, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("runner factory is required")
	}
	if len(cfg.Roster) < minWorkers || len(cfg.Roster) > maxWorkers {
		return nil, fmt.Errorf("pool size %d out of range [%d, %d]", len(cfg.Roster), minWorkers, maxWorkers)
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}

	p := &Pool{
		cfg:    cfg,
		slots:  make(map[string]*slot, len(cfg.Roster)),
		queues: make(map[models.Specialty][]*pending),
	}

	for _, specialty := range cfg.Roster {
		if !specialty.Valid() {
			return nil, fmt.Errorf("invalid specialty %q in roster", specialty)
		}
		id := uuid.New().String()[:8]
		p.slots[id] = &slot{
			worker: models.Worker{
				ID:        id,
				Specialty: specialty,
				Status:    models.WorkerIdle,
			},
			runner: cfg.Factory.NewRunner(),
		}
	}

	return p, nil
}

// Submit enqueues a work item and returns a Future for its result. Items are
// assigned to an idle worker of the required specialty; if no worker of that
// specialty exists at all, any generalist worker serves as fallback.
func (p *Pool) Submit(item models.WorkItem) (*Future, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()[:8]
	}
	if item.Timeout <= 0 {
		item.Timeout = p.cfg.DefaultTimeout
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("pool is closed")
	}

	specialty, err := p.effectiveSpecialtyLocked(item.Specialty)
	if err != nil {
		return nil, err
	}

	future := newFuture()
	p.queues[specialty] = append(p.queues[specialty], &pending{item: item, future: future})
	p.dispatchLocked()

	return future, nil
}

// effectiveSpecialtyLocked maps a requested specialty onto the queue it is
// served from: the specialty itself when any non-errored worker carries it,
// otherwise the generalist queue. Caller must hold p.mu.
func (p *Pool) effectiveSpecialtyLocked(specialty models.Specialty) (models.Specialty, error) {
	if p.hasWorkerLocked(specialty) {
		return specialty, nil
	}
	if p.hasWorkerLocked(models.SpecialtyGeneral) {
		return models.SpecialtyGeneral, nil
	}
	return "", fmt.Errorf("no worker for specialty %q and no generalist available", specialty)
}

// hasWorkerLocked reports whether any non-errored worker has the specialty.
func (p *Pool) hasWorkerLocked(specialty models.Specialty) bool {
	for _, s := range p.slots {
		if s.worker.Specialty == specialty && s.worker.Status != models.WorkerErrored {
			return true
		}
	}
	return false
}

// dispatchLocked assigns queued items to idle workers. Caller must hold p.mu.
func (p *Pool) dispatchLocked() {
	for specialty, queue := range p.queues {
		for len(queue) > 0 {
			s := p.idleWorkerLocked(specialty)
			if s == nil {
				break
			}
			next := queue[0]
			queue = queue[1:]
			p.queues[specialty] = queue

			s.worker.Status = models.WorkerBusy
			p.wg.Add(1)
			go p.run(s, next)
		}
	}
}

// idleWorkerLocked returns an idle worker matching the specialty, or nil.
func (p *Pool) idleWorkerLocked(specialty models.Specialty) *slot {
	for _, s := range p.slots {
		if s.worker.Specialty == specialty && s.worker.Status == models.WorkerIdle {
			return s
		}
	}
	return nil
}

// run executes one work item on a worker slot. It enforces the item timeout,
// handles runner panics, and performs the pool's single automatic retry when
// a worker errors unexpectedly.
func (p *Pool) run(s *slot, pend *pending) {
	defer p.wg.Done()

	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), pend.item.Timeout)
	defer cancel()

	type outcome struct {
		result models.WorkResult
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: fmt.Errorf("runner panic: %v", r)}
			}
		}()
		result, err := s.runner.Run(ctx, pend.item)
		resultCh <- outcome{result: result, err: err}
	}()

	var (
		result    models.WorkResult
		runnerErr error
		timedOut  bool
	)

	select {
	case out := <-resultCh:
		result, runnerErr = out.result, out.err
	case <-ctx.Done():
		timedOut = true
		// The runner finishes on its own; the slot stays occupied until it
		// does so a stuck runner cannot be double-assigned.
		go func() {
			<-resultCh
			p.release(s, time.Since(started), false, 0)
		}()
	}

	switch {
	case timedOut:
		pend.future.complete(models.WorkResult{
			WorkerID:  s.worker.ID,
			Success:   false,
			ErrorKind: models.ErrorTimeout,
			Error:     fmt.Sprintf("work item %s timed out after %s", pend.item.ID, pend.item.Timeout),
		})
		return

	case runnerErr != nil:
		// Unexpected worker error: remove the worker from rotation and
		// resubmit the item exactly once.
		log.Printf("[pool] worker %s errored on item %s: %v", s.worker.ID, pend.item.ID, runnerErr)
		p.markErrored(s, time.Since(started))
		p.retryOrFail(pend, runnerErr)
		return

	default:
		result.WorkerID = s.worker.ID
		pend.future.complete(result)
		p.release(s, time.Since(started), result.Success, result.CostDelta)
	}
}

// release returns a busy worker to the idle rotation and updates its stats.
func (p *Pool) release(s *slot, busy time.Duration, success bool, cost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.worker.Status == models.WorkerBusy {
		s.worker.Status = models.WorkerIdle
	}
	s.worker.Stats.BusyTime += busy
	s.worker.Stats.TotalCost += cost
	if success {
		s.worker.Stats.ItemsCompleted++
	} else {
		s.worker.Stats.ItemsFailed++
	}

	p.dispatchLocked()
}

// markErrored removes a worker from the assignment rotation.
func (p *Pool) markErrored(s *slot, busy time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s.worker.Status = models.WorkerErrored
	s.worker.Stats.BusyTime += busy
	s.worker.Stats.ItemsFailed++
	p.rerouteStrandedLocked()
	p.dispatchLocked()
}

// rerouteStrandedLocked drains queues whose specialty no longer has a live
// worker. Their items are re-run through specialty mapping so they land on
// the generalist queue, and fail with a worker error when no route is left.
// Caller must hold p.mu.
func (p *Pool) rerouteStrandedLocked() {
	var stranded []models.Specialty
	for specialty, queue := range p.queues {
		if len(queue) > 0 && !p.hasWorkerLocked(specialty) {
			stranded = append(stranded, specialty)
		}
	}

	for _, specialty := range stranded {
		queue := p.queues[specialty]
		p.queues[specialty] = nil
		for _, pend := range queue {
			target, err := p.effectiveSpecialtyLocked(pend.item.Specialty)
			if err != nil {
				pend.future.complete(models.WorkResult{
					Success:   false,
					ErrorKind: models.ErrorWorker,
					Error:     fmt.Sprintf("item %s stranded: %v", pend.item.ID, err),
				})
				continue
			}
			p.queues[target] = append(p.queues[target], pend)
		}
	}
}

// retryOrFail resubmits an item whose worker errored, at most once, before
// reporting it as a failed result. This is the only automatic retry inside
// the pool.
func (p *Pool) retryOrFail(pend *pending, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !pend.retried && !p.closed {
		if specialty, err := p.effectiveSpecialtyLocked(pend.item.Specialty); err == nil {
			pend.retried = true
			p.queues[specialty] = append(p.queues[specialty], pend)
			p.dispatchLocked()
			return
		}
	}

	pend.future.complete(models.WorkResult{
		Success:   false,
		ErrorKind: models.ErrorWorker,
		Error:     fmt.Sprintf("worker error: %v", cause),
	})
}

// Stats returns a snapshot of all workers and their metrics.
func (p *Pool) Stats() []models.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	workers := make([]models.Worker, 0, len(p.slots))
	for _, s := range p.slots {
		workers = append(workers, s.worker)
	}
	return workers
}

// QueueDepth returns the number of items waiting across all queues.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	depth := 0
	for _, queue := range p.queues {
		depth += len(queue)
	}
	return depth
}

// Close stops accepting new work, fails all queued items, and waits for
// in-flight items to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	for specialty, queue := range p.queues {
		for _, pend := range queue {
			pend.future.complete(models.WorkResult{
				Success:   false,
				ErrorKind: models.ErrorWorker,
				Error:     "pool closed before execution",
			})
		}
		p.queues[specialty] = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
}
