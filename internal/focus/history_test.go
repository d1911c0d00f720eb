package focus

import "testing"

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := int64(1); i <= 5; i++ {
		h.Push(Sample{Timestamp: i})
	}
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	got := h.Snapshot()
	for i, want := range []int64{3, 4, 5} {
		if got[i].Timestamp != want {
			t.Errorf("Snapshot[%d].Timestamp = %d, want %d", i, got[i].Timestamp, want)
		}
	}
}

func TestHistoryPartial(t *testing.T) {
	h := NewHistory(10)
	h.Push(Sample{Timestamp: 7})
	h.Push(Sample{Timestamp: 8})
	got := h.Snapshot()
	if len(got) != 2 || got[0].Timestamp != 7 || got[1].Timestamp != 8 {
		t.Errorf("Snapshot = %+v", got)
	}
}

func TestHistoryDefaultCapacity(t *testing.T) {
	if c := NewHistory(0).Cap(); c != DefaultHistorySize {
		t.Errorf("Cap = %d, want %d", c, DefaultHistorySize)
	}
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	h := NewHistory(2)
	h.Push(Sample{X: 1})
	snap := h.Snapshot()
	snap[0].X = 99
	if h.Snapshot()[0].X != 1 {
		t.Error("Snapshot shares memory with the buffer")
	}
}
