package server

import (
	"sync"

	"node-rpc/message"
)

// Fiber is the execution lane of one service instance. It admits scheduled work in
// arrival order under the lock type each piece declares:
//
//	Idle ──Full──▶ RunningExclusive ──done──▶ Idle
//	Idle ──Partial──▶ RunningShared(1) ──Partial──▶ RunningShared(n) ──last done──▶ Idle
//
// A queued Full blocks every later arrival, Partial included, until it has run.
// LockNone work bypasses the lane and starts at once.
type Fiber struct {
	mu        sync.Mutex
	exclusive bool
	shared    int
	queue     []fiberTask
}

type fiberTask struct {
	lock message.LockType
	fn   func()
}

func NewFiber() *Fiber {
	return &Fiber{}
}

// Schedule queues fn under lock. It never blocks; fn runs on its own goroutine.
func (f *Fiber) Schedule(lock message.LockType, fn func()) {
	if lock == message.LockNone {
		go fn()
		return
	}
	f.mu.Lock()
	f.queue = append(f.queue, fiberTask{lock: lock, fn: fn})
	ready := f.admitLocked()
	f.mu.Unlock()
	f.start(ready)
}

// admitLocked pops every task at the head of the queue that may run now.
func (f *Fiber) admitLocked() []fiberTask {
	var ready []fiberTask
	for len(f.queue) > 0 && !f.exclusive {
		head := f.queue[0]
		if head.lock == message.LockFull {
			if f.shared > 0 {
				break
			}
			f.exclusive = true
		} else {
			f.shared++
		}
		f.queue[0] = fiberTask{}
		f.queue = f.queue[1:]
		ready = append(ready, head)
	}
	if len(f.queue) == 0 {
		f.queue = nil
	}
	return ready
}

func (f *Fiber) start(ready []fiberTask) {
	for _, t := range ready {
		go f.run(t)
	}
}

func (f *Fiber) run(t fiberTask) {
	defer f.finish(t.lock)
	t.fn()
}

func (f *Fiber) finish(lock message.LockType) {
	f.mu.Lock()
	if lock == message.LockFull {
		f.exclusive = false
	} else {
		f.shared--
	}
	ready := f.admitLocked()
	f.mu.Unlock()
	f.start(ready)
}

// Idle reports whether nothing is running or queued on the lane.
func (f *Fiber) Idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.exclusive && f.shared == 0 && len(f.queue) == 0
}

// Pending returns the number of queued, not yet admitted tasks.
func (f *Fiber) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
