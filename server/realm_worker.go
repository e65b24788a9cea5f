package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/heapsnap/compiler"
	"github.com/chazu/heapsnap/heap"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("realm worker stopped")

// Live is the state owned by the worker goroutine. It must only be
// touched from inside a Do callback.
type Live struct {
	Realm  *heap.Realm
	Interp *compiler.Interpreter

	newRealm func() *heap.Realm
}

// Reset replaces the realm with an empty one.
func (l *Live) Reset() {
	l.Interp.Release(l.Realm)
	l.Realm = l.newRealm()
}

// realmRequest is a unit of work to be executed on the realm goroutine.
type realmRequest struct {
	fn   func(*Live) (any, error)
	done chan realmResult
}

// realmResult holds the return value from a realm operation.
type realmResult struct {
	value any
	err   error
}

// RealmWorker serializes all realm access through a single goroutine.
// Realms are not safe for concurrent use; every HTTP handler goes
// through the worker.
type RealmWorker struct {
	live     *Live
	requests chan realmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewRealmWorker creates a RealmWorker over a fresh realm from newRealm
// and starts the processing goroutine.
func NewRealmWorker(newRealm func() *heap.Realm) *RealmWorker {
	in := compiler.New()
	in.Out = nil
	w := &RealmWorker{
		live:     &Live{Realm: newRealm(), Interp: in, newRealm: newRealm},
		requests: make(chan realmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *RealmWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the live realm, recovering from panics.
func (w *RealmWorker) execute(fn func(*Live) (any, error)) (result realmResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("realm operation panicked: %v", r)
			result = realmResult{err: fmt.Errorf("realm operation panicked: %v", r)}
		}
	}()
	v, err := fn(w.live)
	return realmResult{value: v, err: err}
}

// Do submits fn for execution on the realm goroutine and blocks until it
// completes or ctx is done. A request that was already picked up runs to
// completion even if ctx is cancelled.
func (w *RealmWorker) Do(ctx context.Context, fn func(*Live) (any, error)) (any, error) {
	req := realmRequest{fn: fn, done: make(chan realmResult, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than
// once.
func (w *RealmWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
