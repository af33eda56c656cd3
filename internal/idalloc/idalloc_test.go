package idalloc

import "testing"

func TestAllocateIsSmallestFree(t *testing.T) {
	a := New(4)
	for want := uint32(0); want < 4; want++ {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != want {
			t.Fatalf("Allocate() = %d, want %d", got, want)
		}
	}
	if _, err := a.Allocate(); err == nil {
		t.Fatalf("Allocate on exhausted space should fail")
	}
}

func TestFreeReusesSmallest(t *testing.T) {
	a := New(8)
	ids := make([]uint32, 4)
	for i := range ids {
		id, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		ids[i] = id
	}
	a.Free(ids[1]) // free id 1
	got, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != ids[1] {
		t.Fatalf("Allocate() after Free = %d, want %d", got, ids[1])
	}
}

func TestFreeMergesAdjacentIntervals(t *testing.T) {
	a := New(8)
	for i := 0; i < 4; i++ {
		if _, err := a.Allocate(); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}
	// ids 0,1,2,3 allocated; 4..7 free as a single interval.
	a.Free(2)
	a.Free(1)
	a.Free(3)
	a.Free(0)
	if len(a.free) != 1 {
		t.Fatalf("expected all ids to merge back into a single free interval, got %+v", a.free)
	}
	if a.free[0] != (interval{lo: 0, hi: 7}) {
		t.Fatalf("unexpected free interval after merge: %+v", a.free[0])
	}
}

func TestReserveSplitsInterval(t *testing.T) {
	a := New(8)
	if err := a.Reserve(3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if a.InUse(3) != true {
		t.Fatalf("expected id 3 to be in use after Reserve")
	}
	if err := a.Reserve(3); err == nil {
		t.Fatalf("Reserve of an already-reserved id should fail")
	}
	// Remaining ids still allocate in ascending order, skipping 3.
	for _, want := range []uint32{0, 1, 2, 4} {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != want {
			t.Fatalf("Allocate() = %d, want %d", got, want)
		}
	}
}

func TestInUseOutOfRange(t *testing.T) {
	a := New(4)
	if a.InUse(100) {
		t.Fatalf("InUse on out-of-range id should be false")
	}
}
