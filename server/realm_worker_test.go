package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/heapsnap/heap"
)

func newTestWorker(t *testing.T) *RealmWorker {
	t.Helper()
	w := NewRealmWorker(func() *heap.Realm { return heap.NewRealm() })
	t.Cleanup(w.Stop)
	return w
}

func TestRealmWorkerDo(t *testing.T) {
	w := newTestWorker(t)

	_, err := w.Do(context.Background(), func(l *Live) (any, error) {
		return nil, l.Interp.Run(l.Realm, "t.js", "total = 0")
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Do(context.Background(), func(l *Live) (any, error) {
				return l.Interp.Evaluate(l.Realm, "total = total + 1")
			})
			if err != nil {
				t.Errorf("Do failed: %v", err)
			}
		}()
	}
	wg.Wait()

	v, err := w.Do(context.Background(), func(l *Live) (any, error) {
		g, _ := l.Realm.Global("total")
		return g, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if v != heap.Value(heap.Smi(20)) {
		t.Errorf("total = %v, want 20", v)
	}
}

func TestRealmWorkerRecoversPanic(t *testing.T) {
	w := newTestWorker(t)

	_, err := w.Do(context.Background(), func(*Live) (any, error) {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Do error = %v, want panic message", err)
	}

	v, err := w.Do(context.Background(), func(*Live) (any, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("Do after panic = %v, %v; want 7", v, err)
	}
}

func TestRealmWorkerReset(t *testing.T) {
	w := newTestWorker(t)

	_, err := w.Do(context.Background(), func(l *Live) (any, error) {
		if err := l.Interp.Run(l.Realm, "t.js", "kept = 1"); err != nil {
			return nil, err
		}
		l.Reset()
		_, ok := l.Realm.Global("kept")
		return ok, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	v, _ := w.Do(context.Background(), func(l *Live) (any, error) {
		return len(l.Realm.GlobalNames()), nil
	})
	if v != 0 {
		t.Errorf("globals after Reset = %v, want 0", v)
	}
}

func TestRealmWorkerStop(t *testing.T) {
	w := newTestWorker(t)
	w.Stop()
	w.Stop()

	_, err := w.Do(context.Background(), func(*Live) (any, error) { return nil, nil })
	if !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Do after Stop = %v, want ErrWorkerStopped", err)
	}
}

func TestRealmWorkerContextCancel(t *testing.T) {
	w := newTestWorker(t)

	release := make(chan struct{})
	started := make(chan struct{})
	go w.Do(context.Background(), func(*Live) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Do(ctx, func(*Live) (any, error) { return nil, nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do with expired context = %v, want DeadlineExceeded", err)
	}
}
