package irqqueue

import (
	"sync"
	"testing"
)

func TestPushPopRoundTrip(t *testing.T) {
	q := New()
	if !q.Push(3) {
		t.Fatalf("push on empty queue should succeed")
	}
	triggered, id := q.PopInto()
	if !triggered || id != 3 {
		t.Fatalf("got triggered=%v id=%d, want true/3", triggered, id)
	}

	// A second PopInto must not clobber the already-triggered entry.
	if ok := q.Push(5); !ok {
		t.Fatalf("push should still succeed")
	}
	triggered, id = q.PopInto()
	if !triggered || id != 3 {
		t.Fatalf("got triggered=%v id=%d, want the still-pending 3", triggered, id)
	}

	q.ClearTriggered()
	triggered, id = q.PopInto()
	if !triggered || id != 5 {
		t.Fatalf("got triggered=%v id=%d, want true/5 after clear", triggered, id)
	}
}

func TestQueueFillsToCapacity(t *testing.T) {
	q := New()
	for i := 0; i < Capacity; i++ {
		if !q.Push(uint8(i % 256)) {
			t.Fatalf("push %d should succeed within capacity", i)
		}
	}
	if q.Push(1) {
		t.Fatalf("push beyond capacity should fail")
	}
	if got := q.Len(); got != Capacity {
		t.Fatalf("got len=%d, want %d", got, Capacity)
	}
}

func TestConcurrentProducersPushesEqualPopsPlusDepth(t *testing.T) {
	q := New()
	const producers = 16
	const perProducer = 100

	var wg sync.WaitGroup
	pushed := make(chan int, producers)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 0
			for i := 0; i < perProducer; i++ {
				if q.Push(1) {
					n++
				}
			}
			pushed <- n
		}()
	}
	wg.Wait()
	close(pushed)

	total := 0
	for n := range pushed {
		total += n
	}

	popped := 0
	for {
		triggered, _ := q.PopInto()
		if !triggered {
			break
		}
		q.ClearTriggered()
		popped++
	}

	if total != popped {
		t.Fatalf("pushed=%d popped=%d, want equal (queue was never full)", total, popped)
	}
}
