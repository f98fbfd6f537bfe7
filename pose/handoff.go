package pose

import (
	"sync"

	"github.com/google/uuid"
)

// detectionRequest asks the background worker to detect one target in a frame.
type detectionRequest struct {
	target     uuid.UUID
	frameIndex uint64
	frame      *Pyramid
	prev       *Pyramid
}

// frameSlot is a depth-1 handoff between the frame loop and the detector.
// Put never blocks and replaces a request the worker has not taken yet.
type frameSlot struct {
	mu          sync.Mutex
	cond        *sync.Cond
	pending     *detectionRequest
	busy        bool
	closed      bool
	overwritten uint64
}

func newFrameSlot() *frameSlot {
	slot := &frameSlot{}
	slot.cond = sync.NewCond(&slot.mu)
	return slot
}

// Put stores request, overwriting the pending one. Returns true when a
// pending request was dropped and false when the slot is closed or was empty.
func (slot *frameSlot) Put(req *detectionRequest) bool {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.closed {
		return false
	}
	dropped := slot.pending != nil
	if dropped {
		slot.overwritten++
	}
	slot.pending = req
	slot.cond.Broadcast()
	return dropped
}

// Take blocks until a request is available or the slot is closed.
// Second value is false after Close.
func (slot *frameSlot) Take() (*detectionRequest, bool) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	for slot.pending == nil && !slot.closed {
		slot.cond.Wait()
	}
	if slot.closed {
		return nil, false
	}
	req := slot.pending
	slot.pending = nil
	slot.busy = true
	return req, true
}

// Done marks the taken request as processed
func (slot *frameSlot) Done() {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.busy = false
	slot.cond.Broadcast()
}

// WaitIdle blocks until no request is pending or in progress
func (slot *frameSlot) WaitIdle() {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	for (slot.pending != nil || slot.busy) && !slot.closed {
		slot.cond.Wait()
	}
}

// Busy reports whether a request is pending or being processed
func (slot *frameSlot) Busy() bool {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.pending != nil || slot.busy
}

// Overwritten returns number of requests dropped by overwrite
func (slot *frameSlot) Overwritten() uint64 {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.overwritten
}

// Close wakes up every waiter; subsequent Take calls return false
func (slot *frameSlot) Close() {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.closed = true
	slot.pending = nil
	slot.cond.Broadcast()
}
