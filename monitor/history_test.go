package monitor

import "testing"

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(50)
	for i := 0; i < 60; i++ {
		h.Append(Sample{Time: float64(i), RMS: 0.01})
	}

	got := h.Snapshot()
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
	if got[0].Time != 10 {
		t.Errorf("oldest sample time = %v, want 10", got[0].Time)
	}
	if got[49].Time != 59 {
		t.Errorf("newest sample time = %v, want 59", got[49].Time)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Time <= got[i-1].Time {
			t.Fatalf("samples out of order at %d: %v after %v", i, got[i].Time, got[i-1].Time)
		}
	}
}

func TestHistoryPartialFill(t *testing.T) {
	h := NewHistory(50)
	for i := 0; i < 3; i++ {
		h.Append(Sample{Time: float64(i)})
	}
	got := h.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Time != 0 || got[2].Time != 2 {
		t.Errorf("snapshot = %v, want times 0..2", got)
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(10)
	h.Append(Sample{Time: 1})
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", h.Len())
	}
	if got := h.Snapshot(); len(got) != 0 {
		t.Errorf("snapshot after clear = %v, want empty", got)
	}

	// Reusable after clear.
	h.Append(Sample{Time: 2})
	if got := h.Snapshot(); len(got) != 1 || got[0].Time != 2 {
		t.Errorf("snapshot after refill = %v, want [time 2]", got)
	}
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	h := NewHistory(10)
	h.Append(Sample{Time: 1, RMS: 0.5})
	snap := h.Snapshot()
	snap[0].RMS = 99
	if got := h.Snapshot(); got[0].RMS != 0.5 {
		t.Errorf("mutating a snapshot leaked into the ring: %v", got[0].RMS)
	}
}
