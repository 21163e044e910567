package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingWorker struct {
	runs    int32
	failOn  int32
	panicOn int32
}

func (w *countingWorker) Name() string { return "counting" }

func (w *countingWorker) Run(ctx context.Context) error {
	n := atomic.AddInt32(&w.runs, 1)
	if n == w.panicOn {
		panic("boom")
	}
	if n == w.failOn {
		return errors.New("iteration failed")
	}
	return nil
}

type slowWorker struct {
	mu     sync.Mutex
	delay  time.Duration
	starts []time.Time
	ends   []time.Time
}

func (w *slowWorker) Name() string { return "slow" }

func (w *slowWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.starts = append(w.starts, time.Now())
	w.mu.Unlock()

	time.Sleep(w.delay)

	w.mu.Lock()
	w.ends = append(w.ends, time.Now())
	w.mu.Unlock()
	return nil
}

func waitDone(t *testing.T, pw *PeriodicWorker) {
	t.Helper()
	select {
	case <-pw.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish in time")
	}
}

func TestPeriodicWorker_BoundedIterations(t *testing.T) {
	w := &countingWorker{}
	pw := RunBackground(context.Background(), w, time.Millisecond, WithIterations(3))

	waitDone(t, pw)

	if got := atomic.LoadInt32(&w.runs); got != 3 {
		t.Errorf("expected 3 runs, got %d", got)
	}
}

func TestPeriodicWorker_ContinuesAfterFailure(t *testing.T) {
	w := &countingWorker{failOn: 1, panicOn: 2}
	pw := RunBackground(context.Background(), w, time.Millisecond, WithIterations(4))

	waitDone(t, pw)

	if got := atomic.LoadInt32(&w.runs); got != 4 {
		t.Errorf("errors and panics must not stop the loop: expected 4 runs, got %d", got)
	}
}

func TestPeriodicWorker_StartDoesNotBlock(t *testing.T) {
	w := &countingWorker{}
	ctx, cancel := context.WithCancel(context.Background())

	started := time.Now()
	pw := RunBackground(ctx, w, time.Hour)
	if time.Since(started) > 100*time.Millisecond {
		t.Error("Start should return immediately")
	}

	// first run happens immediately, then the worker idles until cancelled
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&w.runs) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	waitDone(t, pw)

	if got := atomic.LoadInt32(&w.runs); got != 1 {
		t.Errorf("expected exactly one immediate run, got %d", got)
	}
	pw.Stop(time.Second)
}

func TestPeriodicWorker_SleepsAfterSlowPass(t *testing.T) {
	interval := 40 * time.Millisecond
	w := &slowWorker{delay: 3 * interval}
	pw := RunBackground(context.Background(), w, interval, WithIterations(2))

	waitDone(t, pw)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.starts) != 2 || len(w.ends) != 2 {
		t.Fatalf("expected 2 runs, got %d starts and %d ends", len(w.starts), len(w.ends))
	}
	if gap := w.starts[1].Sub(w.ends[0]); gap < interval {
		t.Errorf("next pass started %s after the previous one finished, want at least %s", gap, interval)
	}
}
