package runqueue

import (
	"errors"
	"testing"

	"github.com/friendsincode/openhome/internal/station"
)

func TestEnqueueRespectsCapacity(t *testing.T) {
	q := New(3)
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(Request{Station: station.ID(i), Program: 1, Duration: 60}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	before := q.Entries()
	if _, err := q.Enqueue(Request{Station: 5, Program: 1, Duration: 60}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	after := q.Entries()
	if len(after) != len(before) {
		t.Fatalf("failed enqueue changed queue length: %d -> %d", len(before), len(after))
	}
	if q.Selected(5).Is(0) {
		t.Fatal("failed enqueue touched the station index")
	}
	if _, ok := q.Selected(5).Get(); ok {
		t.Fatal("failed enqueue must not index station 5")
	}
}

func TestDequeueCompactsAndKeepsHandles(t *testing.T) {
	q := New(4)
	h1, _ := q.Enqueue(Request{Station: 1, Duration: 10})
	h2, _ := q.Enqueue(Request{Station: 2, Duration: 20})
	h3, _ := q.Enqueue(Request{Station: 3, Duration: 30})

	if !q.Dequeue(h2) {
		t.Fatal("dequeue h2")
	}
	if q.Dequeue(h2) {
		t.Fatal("second dequeue must report absence")
	}
	entries := q.Entries()
	if len(entries) != 2 || entries[0].Handle != h1 || entries[1].Handle != h3 {
		t.Fatalf("unexpected entries after dequeue: %+v", entries)
	}
	r, ok := q.Get(h3)
	if !ok || r.Duration != 30 {
		t.Fatalf("handle h3 resolved to %+v, %v", r, ok)
	}
	if _, ok := q.Selected(2).Get(); ok {
		t.Fatal("station 2 index must be cleared")
	}
}

func TestSelectedPicksGreatestStart(t *testing.T) {
	q := New(4)
	a, _ := q.Enqueue(Request{Station: 4, Duration: 60})
	b, _ := q.Enqueue(Request{Station: 4, Duration: 60})
	q.SetStart(a, 1000)
	q.SetStart(b, 2000)

	if !q.Selected(4).Is(b) {
		t.Fatal("expected later start to be selected")
	}
	q.Dequeue(b)
	if !q.Selected(4).Is(a) {
		t.Fatal("expected remaining request to be selected after dequeue")
	}
	e, ok := q.SelectedRequest(4)
	if !ok || e.Start != 1000 {
		t.Fatalf("selected request = %+v, %v", e, ok)
	}
}

func TestSelectedTieKeepsEarlierInsertion(t *testing.T) {
	q := New(4)
	a, _ := q.Enqueue(Request{Station: 0, Start: 500, Duration: 10})
	_, _ = q.Enqueue(Request{Station: 0, Start: 500, Duration: 20})
	if !q.Selected(0).Is(a) {
		t.Fatal("tie must keep the earlier request")
	}
}

func TestMarkForRemoval(t *testing.T) {
	q := New(4)
	h, _ := q.Enqueue(Request{Station: 0, Start: 10, Duration: 60})
	q.Enqueue(Request{Station: 1, Start: 10, Duration: 60})

	if !q.MarkForRemoval(h) {
		t.Fatal("mark existing handle")
	}
	r, _ := q.Get(h)
	if r.Duration != 0 || q.Len() != 2 {
		t.Fatalf("mark must zero duration and keep the entry: %+v len=%d", r, q.Len())
	}
	q.MarkAllForRemoval()
	for _, e := range q.Entries() {
		if e.Duration != 0 {
			t.Fatalf("entry %d not marked", e.Handle)
		}
	}
}

func TestResetClearsEverything(t *testing.T) {
	q := New(2)
	q.Enqueue(Request{Station: 7, Duration: 60})
	q.Reset()
	if !q.Empty() {
		t.Fatal("queue not empty after reset")
	}
	if _, ok := q.Selected(7).Get(); ok {
		t.Fatal("index not cleared after reset")
	}
	h, err := q.Enqueue(Request{Station: 7, Duration: 60})
	if err != nil || h == 0 {
		t.Fatalf("enqueue after reset: %d, %v", h, err)
	}
}

func TestRequestWindow(t *testing.T) {
	r := Request{Start: 100, Duration: 10}
	if !r.Active(100) || !r.Active(109) || r.Active(110) || r.Active(99) {
		t.Fatal("active window must be [start, start+duration)")
	}
	if (Request{Duration: 10}).Active(5) {
		t.Fatal("unscheduled request is never active")
	}
}
