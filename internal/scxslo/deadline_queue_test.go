package scxslo

import "testing"

func TestDeadlineQueuePopOrder(t *testing.T) {
	q := NewDeadlineQueue()
	q.Push(3, 300)
	q.Push(1, 100)
	q.Push(2, 200)

	for _, want := range []TID{1, 2, 3} {
		tid, _, ok := q.Pop()
		if !ok || tid != want {
			t.Fatalf("popped %d (ok=%v), want %d", tid, ok, want)
		}
	}
	if _, _, ok := q.Pop(); ok {
		t.Fatalf("expected queue to be empty")
	}
}

func TestDeadlineQueueTieBreakByTID(t *testing.T) {
	q := NewDeadlineQueue()
	q.Push(30, 100)
	q.Push(10, 100)
	q.Push(20, 100)

	for _, want := range []TID{10, 20, 30} {
		tid, _, _ := q.Pop()
		if tid != want {
			t.Fatalf("popped %d, want %d", tid, want)
		}
	}
}

func TestDeadlineQueueDecreaseKey(t *testing.T) {
	q := NewDeadlineQueue()
	q.Push(1, 1000)
	q.Push(2, 2000)
	q.Push(1, 500) // tighten tid 1's deadline

	tid, deadline, ok := q.Pop()
	if !ok || tid != 1 || deadline != 500 {
		t.Fatalf("got tid=%d deadline=%d ok=%v, want tid=1 deadline=500", tid, deadline, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestDeadlineQueueRemove(t *testing.T) {
	q := NewDeadlineQueue()
	q.Push(1, 100)
	q.Push(2, 200)
	if !q.Remove(1) {
		t.Fatalf("expected removal to report true")
	}
	if q.Remove(1) {
		t.Fatalf("expected second removal to report false")
	}
	tid, _, ok := q.Pop()
	if !ok || tid != 2 {
		t.Fatalf("expected tid 2 to remain, got %d ok=%v", tid, ok)
	}
}

func TestDeadlineQueueContains(t *testing.T) {
	q := NewDeadlineQueue()
	if q.Contains(1) {
		t.Fatalf("empty queue should not contain tid 1")
	}
	q.Push(1, 100)
	if !q.Contains(1) {
		t.Fatalf("expected queue to contain tid 1")
	}
	q.Pop()
	if q.Contains(1) {
		t.Fatalf("popped tid should no longer be contained")
	}
}

func TestDeadlineQueuePeekDoesNotRemove(t *testing.T) {
	q := NewDeadlineQueue()
	q.Push(1, 100)
	tid, deadline, ok := q.Peek()
	if !ok || tid != 1 || deadline != 100 {
		t.Fatalf("unexpected peek result: tid=%d deadline=%d ok=%v", tid, deadline, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("peek must not remove the entry")
	}
}
