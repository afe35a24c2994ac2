package progress

import "testing"

func TestTracker_MonotonicWithFinal(t *testing.T) {
	var got []float64
	tr := NewTracker(1000, func(f float64) { got = append(got, f) })
	for i := int64(1); i <= 1000; i++ {
		tr.Advance(i)
	}
	tr.Finish()

	if len(got) == 0 {
		t.Fatal("no emissions")
	}
	last := 0.0
	for _, f := range got {
		if f < last {
			t.Fatalf("progress went backwards: %v after %v", f, last)
		}
		last = f
	}
	if got[len(got)-1] != 1.0 {
		t.Errorf("final emission = %v, want exactly 1.0", got[len(got)-1])
	}
}

func TestTracker_ZeroTotal(t *testing.T) {
	var got []float64
	tr := NewTracker(0, func(f float64) { got = append(got, f) })
	tr.Advance(0)
	tr.Finish()

	if len(got) != 1 || got[0] != 1.0 {
		t.Errorf("zero-total emissions = %v, want exactly one 1.0", got)
	}
}

func TestTracker_Throttles(t *testing.T) {
	count := 0
	tr := NewTracker(10000, func(float64) { count++ })
	for i := int64(1); i <= 10000; i++ {
		tr.Advance(i)
	}
	tr.Finish()

	// 1% steps plus the final emission.
	if count > 101 {
		t.Errorf("emitted %d times, want at most 101", count)
	}
}

func TestTracker_NilSink(t *testing.T) {
	tr := NewTracker(5, nil)
	tr.Advance(3)
	tr.Finish()
}
