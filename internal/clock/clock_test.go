package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/virtuacore/vm64/internal/intid"
)

type fakeCore struct {
	mu        sync.Mutex
	running   bool
	debugging bool
	ticks     []uint8
}

func (c *fakeCore) Enqueue(id uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = append(c.ticks, id)
	return true
}

func (c *fakeCore) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *fakeCore) Debugging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugging
}

func (c *fakeCore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ticks)
}

func TestProducerEnqueuesClockInterrupts(t *testing.T) {
	core := &fakeCore{running: true}
	p := Start(core)
	defer p.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && core.count() < 2 {
		time.Sleep(time.Millisecond)
	}
	if core.count() < 2 {
		t.Fatalf("expected at least 2 clock ticks, got %d", core.count())
	}
	core.mu.Lock()
	for _, id := range core.ticks {
		if id != intid.Clock {
			t.Fatalf("tick id = %d, want intid.Clock", id)
		}
	}
	core.mu.Unlock()
}

func TestProducerStopsWhenCoreNotRunning(t *testing.T) {
	core := &fakeCore{running: false}
	p := Start(core)
	p.Stop()
	if core.count() != 0 {
		t.Fatalf("expected no ticks enqueued for a core that never runs")
	}
}

func TestProducerPausesWhileDebugging(t *testing.T) {
	core := &fakeCore{running: true, debugging: true}
	p := Start(core)
	defer p.Stop()

	time.Sleep(20 * time.Millisecond)
	if core.count() != 0 {
		t.Fatalf("expected no ticks while debugging is paused, got %d", core.count())
	}
}
