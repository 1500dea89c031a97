// Package turnqueue serializes conversation turns per session: one lane per
// session id, one turn in flight per lane, lanes independent of one another.
package turnqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one unit of work executed on a lane.
type Task func(ctx context.Context) (interface{}, error)

type taskResult struct {
	value interface{}
	err   error
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan taskResult
}

type laneState struct {
	queue   []*taskRecord
	running bool
	mu      sync.Mutex
}

// Queue provides lane-based task serialization. Tasks on the same lane run
// strictly one at a time in FIFO order; tasks on different lanes run
// concurrently.
type Queue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.Mutex
	wg        sync.WaitGroup

	closed bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		lanes: make(map[string]*laneState),
	}
}

// Enqueue adds a task to the lane and blocks until it completes, returning
// the task's result.
func (q *Queue) Enqueue(ctx context.Context, lane string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("queue is shut down")
	}
	q.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, q.taskIDSeq)
	ls, ok := q.lanes[lane]
	if !ok {
		ls = &laneState{}
		q.lanes[lane] = ls
	}
	q.mu.Unlock()

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}

	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	log.Debug().
		Str("lane", lane).
		Str("task_id", taskID).
		Int("queue_size", queueSize).
		Msg("Turn enqueued")

	q.processLane(lane, ls)

	select {
	case result := <-record.result:
		return result.value, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// processLane starts the next queued task when the lane is idle.
func (q *Queue) processLane(lane string, ls *laneState) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.running || len(ls.queue) == 0 {
		return
	}

	record := ls.queue[0]
	ls.queue = ls.queue[1:]
	ls.running = true

	q.wg.Add(1)
	go q.executeTask(lane, ls, record)
}

func (q *Queue) executeTask(lane string, ls *laneState, record *taskRecord) {
	defer q.wg.Done()

	wait := time.Since(record.enqueuedAt)
	value, err := record.task(record.ctx)

	log.Debug().
		Str("lane", lane).
		Str("task_id", record.id).
		Dur("wait", wait).
		Err(err).
		Msg("Turn completed")

	record.result <- taskResult{value: value, err: err}

	ls.mu.Lock()
	ls.running = false
	ls.mu.Unlock()

	q.processLane(lane, ls)
}

// DropLane discards all queued tasks for the lane, failing their callers.
// Used when a session is evicted.
func (q *Queue) DropLane(lane string) {
	q.mu.Lock()
	ls, ok := q.lanes[lane]
	if ok {
		delete(q.lanes, lane)
	}
	q.mu.Unlock()
	if !ok {
		return
	}

	ls.mu.Lock()
	pending := ls.queue
	ls.queue = nil
	ls.mu.Unlock()

	for _, record := range pending {
		record.result <- taskResult{err: fmt.Errorf("session evicted")}
	}
}

// Shutdown stops accepting new tasks and waits for in-flight tasks.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
