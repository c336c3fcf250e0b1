package cleanup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vocbase/voccore/barrier"
)

type fakeSource struct {
	mu   sync.Mutex
	cols []*Collection
}

func (f *fakeSource) Snapshot() []*Collection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Collection, len(f.cols))
	copy(out, f.cols)
	return out
}

type fakeCursors struct {
	forced   atomic.Int64
	unforced atomic.Int64
}

func (f *fakeCursors) Cleanup(force bool) {
	if force {
		f.forced.Add(1)
	} else {
		f.unforced.Add(1)
	}
}

type fakeCompactor struct {
	locked  atomic.Bool
	expired atomic.Int64
}

func (f *fakeCompactor) TryLock() bool {
	return f.locked.CompareAndSwap(false, true)
}
func (f *fakeCompactor) Unlock()         { f.locked.Store(false) }
func (f *fakeCompactor) CleanupExpired() { f.expired.Add(1) }

type fakeIndex struct {
	calls atomic.Int64
}

func (f *fakeIndex) Cleanup() (int, error) {
	f.calls.Add(1)
	return 0, nil
}

func TestLoopProgressesBarrierAndCleansIndexes(t *testing.T) {
	b := barrier.New()
	idx := &fakeIndex{}
	col := &Collection{Name: "docs", Barrier: b, Indexes: []CleanableIndex{idx}}
	src := &fakeSource{cols: []*Collection{col}}
	cursors := &fakeCursors{}
	compactor := &fakeCompactor{}

	var callbackRan atomic.Bool
	b.AddCallback(barrier.KindDatafileDropCallback, &barrier.Callback{
		Datafile: "df-1",
		Run: func(string, interface{}) barrier.CallbackResult {
			callbackRan.Store(true)
			return barrier.ResultContinue
		},
	})

	opts := Options{Interval: 10 * time.Millisecond, IndexIterations: 1, ShadowIterations: 1000}
	loop := New(opts, src, cursors, compactor, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()
	loop.Stop()

	if !callbackRan.Load() || b.Len() != 0 {
		t.Error("expected the barrier callback to have run and the list to have drained")
	}
	if idx.calls.Load() == 0 {
		t.Error("expected index cleanup to have been invoked at least once")
	}
	if compactor.expired.Load() == 0 {
		t.Error("expected compactor expiry sweep to have run")
	}
}

func TestForceCursorCleanup(t *testing.T) {
	src := &fakeSource{}
	cursors := &fakeCursors{}
	compactor := &fakeCompactor{}

	opts := Options{Interval: 10 * time.Millisecond, IndexIterations: 1000, ShadowIterations: 1000}
	loop := New(opts, src, cursors, compactor, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	loop.ForceCursorCleanup()

	time.Sleep(30 * time.Millisecond)
	cancel()
	loop.Stop()

	if cursors.forced.Load() == 0 {
		t.Error("expected a forced cursor cleanup to have run")
	}
}
