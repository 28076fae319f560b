package queue

import (
	"sync"
	"testing"
)

type update struct {
	Key   string
	Value int32
}

func TestQueue_FIFO(t *testing.T) {
	q := New[update]()
	if !q.Empty() {
		t.Fatal("expected empty queue")
	}

	q.Push(update{"COURSE", 12}, update{"COURSE_CUP", 3})
	q.Push(update{"MAX_STEP", 500})
	if q.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", q.Len())
	}

	first, ok := q.Pop()
	if !ok || first.Key != "COURSE" {
		t.Errorf("expected COURSE first, got %+v ok=%v", first, ok)
	}

	rest := q.Drain()
	if len(rest) != 2 || rest[0].Key != "COURSE_CUP" || rest[1].Key != "MAX_STEP" {
		t.Errorf("unexpected drain order: %+v", rest)
	}
	if !q.Empty() {
		t.Error("expected empty queue after drain")
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected Pop on empty queue to report false")
	}
}

func TestQueue_RequeueGoesToHead(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)
	batch := q.Drain()
	q.Push(4)

	q.Requeue(batch...)
	q.Requeue()

	got := q.Drain()
	want := []int{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestQueue_BoundedDropsOldest(t *testing.T) {
	q := NewBounded[int](3)
	q.Push(1, 2, 3, 4)
	q.Push(5)

	if q.Drops() != 2 {
		t.Errorf("expected 2 drops, got %d", q.Drops())
	}
	got := q.Drain()
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Errorf("expected [3 4 5], got %v", got)
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	if q.Len() != 800 {
		t.Errorf("expected 800 items, got %d", q.Len())
	}
}
