package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/auxroom/auxroom/internal/domain"
)

const workerQueueDepth = 64

// roomWorker serializes all control events for one room on a single
// goroutine. Two events for the same room therefore apply in strict
// arrival order; events for different rooms run independently.
type roomWorker struct {
	mu      sync.RWMutex
	stopped bool
	jobs    chan func()
	done    chan struct{}
}

func newRoomWorker(id domain.RoomID) *roomWorker {
	w := &roomWorker{
		jobs: make(chan func(), workerQueueDepth),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for job := range w.jobs {
			job()
		}
	}()
	log.Debug().Str("module", "app.workers").Str("room", string(id)).Msg("worker started")
	return w
}

// submit reports whether the job was accepted. A stopped worker
// refuses; the caller must look up a fresh one.
func (w *roomWorker) submit(job func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return false
	}
	w.jobs <- job
	return true
}

// stop flips the worker to refusing before closing jobs, so no sender
// can race the close, then waits for the queued jobs to drain.
func (w *roomWorker) stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}

// Workers hands out one single-writer execution context per room id.
type Workers struct {
	mu      sync.RWMutex
	workers map[domain.RoomID]*roomWorker
}

func NewWorkers() *Workers {
	return &Workers{workers: make(map[domain.RoomID]*roomWorker)}
}

func (ws *Workers) getOrCreate(id domain.RoomID) *roomWorker {
	ws.mu.RLock()
	w, ok := ws.workers[id]
	ws.mu.RUnlock()
	if ok {
		return w
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if w, ok = ws.workers[id]; ok {
		return w
	}
	w = newRoomWorker(id)
	ws.workers[id] = w
	return w
}

// Submit queues fn on the room's worker and returns once it ran.
// Blocking keeps the caller's transport goroutine from reading the next
// event before this one is applied, preserving per-connection order.
func (ws *Workers) Submit(id domain.RoomID, fn func()) {
	ran := make(chan struct{})
	job := func() {
		defer close(ran)
		fn()
	}
	// A worker stopped between lookup and send refuses the job; loop
	// onto its replacement.
	for !ws.getOrCreate(id).submit(job) {
	}
	<-ran
}

// StopRoom drains and removes the room's worker, if any.
func (ws *Workers) StopRoom(id domain.RoomID) {
	ws.mu.Lock()
	w, ok := ws.workers[id]
	delete(ws.workers, id)
	ws.mu.Unlock()
	if !ok {
		return
	}
	w.stop()
	log.Debug().Str("module", "app.workers").Str("room", string(id)).Msg("worker stopped")
}

// Shutdown stops every worker. Used on process exit.
func (ws *Workers) Shutdown() {
	ws.mu.Lock()
	workers := ws.workers
	ws.workers = make(map[domain.RoomID]*roomWorker)
	ws.mu.Unlock()
	for _, w := range workers {
		w.stop()
	}
}
