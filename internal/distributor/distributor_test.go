package distributor

import (
	"sync"
	"testing"
	"time"
)

type fakeCore struct {
	mu      sync.Mutex
	running bool
	queue   []uint8
}

func (c *fakeCore) Enqueue(id uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, id)
	return true
}

func (c *fakeCore) Running() bool { return c.running }

func (c *fakeCore) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never became true")
}

func TestSingleModePicksShortestRunningQueue(t *testing.T) {
	a := &fakeCore{running: true, queue: []uint8{1, 2, 3}}
	b := &fakeCore{running: true}
	c := &fakeCore{running: false}
	d := New([]Core{a, b, c})
	d.Start()
	defer d.Stop()

	d.Post(7, ModeSingle)
	waitFor(t, func() bool { return b.QueueLen() == 1 })
	if a.QueueLen() != 3 {
		t.Fatalf("expected core a untouched, got queue len %d", a.QueueLen())
	}
}

func TestBroadcastModeHitsOnlyRunningCores(t *testing.T) {
	a := &fakeCore{running: true}
	b := &fakeCore{running: false}
	d := New([]Core{a, b})
	d.Start()
	defer d.Stop()

	d.Post(9, ModeBroadcast)
	waitFor(t, func() bool { return a.QueueLen() == 1 })
	if b.QueueLen() != 0 {
		t.Fatalf("expected non-running core to be skipped, got queue len %d", b.QueueLen())
	}
}
