// Package dispatch implements the single-threaded cooperative executor that
// every session in the playback pipeline runs on. A Dispatcher owns one
// goroutine and a priority queue of (deadline, job) entries; all of a
// session's event handlers run on its own Dispatcher, so a session never
// needs to take a lock on its own state — the only synchronization boundary
// is the queue append that hands work from one dispatcher to another.
package dispatch

import (
	"container/heap"
	"sync"
	"time"
)

// Job is a schedulable unit of work. Dispatching the same *Job twice before
// it runs is a no-op (dispatch is idempotent w.r.t. an already-queued job).
type Job struct {
	name string
	run  func()
}

// NewJob wraps fn as a dispatchable Job. name is used only for diagnostics.
func NewJob(name string, fn func()) *Job {
	return &Job{name: name, run: fn}
}

type entry struct {
	job      *Job
	deadline time.Time
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool   { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{})  { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type dispatchCmd struct {
	job   *Job
	delay time.Duration
}

type existsCmd struct {
	job   *Job
	reply chan bool
}

// Dispatcher is a single-threaded job queue with timed delivery. The zero
// value is not usable; construct with New.
type Dispatcher struct {
	name string

	dispatchCh chan dispatchCmd
	removeCh   chan *Job
	existsCh   chan existsCmd
	flushCh    chan chan struct{}
	stopCh     chan chan struct{}

	once sync.Once
}

// New starts a Dispatcher goroutine and returns a handle to it. name is used
// only for diagnostics.
func New(name string) *Dispatcher {
	d := &Dispatcher{
		name:       name,
		dispatchCh: make(chan dispatchCmd, 64),
		removeCh:   make(chan *Job, 16),
		existsCh:   make(chan existsCmd),
		flushCh:    make(chan chan struct{}),
		stopCh:     make(chan chan struct{}),
	}
	go d.loop()
	return d
}

// Dispatch schedules job to run after delay (0 meaning "as soon as
// possible"). Scheduling a job that is already pending is a no-op — the
// existing deadline wins.
func (d *Dispatcher) Dispatch(job *Job, delay time.Duration) {
	d.dispatchCh <- dispatchCmd{job: job, delay: delay}
}

// Remove cancels job if it is still pending. Safe to call on a job that
// isn't queued.
func (d *Dispatcher) Remove(job *Job) {
	d.removeCh <- job
}

// Exists reports whether job is currently queued.
func (d *Dispatcher) Exists(job *Job) bool {
	reply := make(chan bool, 1)
	d.existsCh <- existsCmd{job: job, reply: reply}
	return <-reply
}

// Flush synchronously runs every currently queued job, in deadline order,
// before returning. Jobs dispatched by a job running during Flush are also
// drained before Flush returns.
func (d *Dispatcher) Flush() {
	done := make(chan struct{})
	d.flushCh <- done
	<-done
}

// Stop flushes pending jobs and terminates the dispatcher goroutine. The
// Dispatcher must not be used afterwards.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		done := make(chan struct{})
		d.stopCh <- done
		<-done
	})
}

func (d *Dispatcher) loop() {
	pq := &entryHeap{}
	heap.Init(pq)
	pending := map[*Job]*entry{}

	runReady := func(now time.Time) {
		for pq.Len() > 0 && !(*pq)[0].deadline.After(now) {
			e := heap.Pop(pq).(*entry)
			delete(pending, e.job)
			e.job.run()
		}
	}

	drainAll := func() {
		// Run everything, including jobs that a running job appends via
		// dispatchCh, until the queue and channel are both empty.
		for {
			runReady(farFuture())
			select {
			case cmd := <-d.dispatchCh:
				scheduleLocked(pq, pending, cmd)
			default:
				return
			}
		}
	}

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if pq.Len() > 0 {
			wait := time.Until((*pq)[0].deadline)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case cmd := <-d.dispatchCh:
			scheduleLocked(pq, pending, cmd)
		case job := <-d.removeCh:
			if e, ok := pending[job]; ok {
				heap.Remove(pq, e.index)
				delete(pending, job)
			}
		case cmd := <-d.existsCh:
			_, ok := pending[cmd.job]
			cmd.reply <- ok
		case <-timerC:
			runReady(time.Now())
		case done := <-d.flushCh:
			drainAll()
			close(done)
		case done := <-d.stopCh:
			drainAll()
			close(done)
			if timer != nil {
				timer.Stop()
			}
			return
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func scheduleLocked(pq *entryHeap, pending map[*Job]*entry, cmd dispatchCmd) {
	if _, ok := pending[cmd.job]; ok {
		return
	}
	e := &entry{job: cmd.job, deadline: time.Now().Add(cmd.delay)}
	pending[cmd.job] = e
	heap.Push(pq, e)
}

func farFuture() time.Time {
	return time.Now().Add(365 * 24 * time.Hour)
}
