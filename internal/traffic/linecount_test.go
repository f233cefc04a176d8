package traffic

import "testing"

func TestLineCounterCrossings(t *testing.T) {
	start, end := AutoCountingLine(1000, 1000) // horizontal at y=700
	lc := NewLineCounter(start, end)

	// Track 1 above the line: establishes a side, no count.
	in, out := lc.Update([]Detection{detAt(1, 500, 600)})
	if in != 0 || out != 0 {
		t.Fatalf("first sighting must not count, got in=%d out=%d", in, out)
	}

	// Crossing downward counts IN.
	in, out = lc.Update([]Detection{detAt(1, 500, 800)})
	if in != 1 || out != 0 {
		t.Fatalf("downward crossing: got in=%d out=%d", in, out)
	}

	// Crossing back upward counts OUT.
	in, out = lc.Update([]Detection{detAt(1, 500, 600)})
	if in != 0 || out != 1 {
		t.Fatalf("upward crossing: got in=%d out=%d", in, out)
	}

	if totalIn, totalOut := lc.Counts(); totalIn != 1 || totalOut != 1 {
		t.Errorf("cumulative counts: got in=%d out=%d", totalIn, totalOut)
	}
}

func TestLineCounterNoCountWithoutSideChange(t *testing.T) {
	start, end := AutoCountingLine(1000, 1000)
	lc := NewLineCounter(start, end)

	lc.Update([]Detection{detAt(2, 100, 100)})
	lc.Update([]Detection{detAt(2, 300, 200)})
	in, out := lc.Update([]Detection{detAt(2, 500, 650)})
	if in != 0 || out != 0 {
		t.Errorf("same-side movement must not count, got in=%d out=%d", in, out)
	}
}

func TestLineCounterIgnoresUnidentifiedAndOnLine(t *testing.T) {
	start, end := AutoCountingLine(1000, 1000)
	lc := NewLineCounter(start, end)

	lc.Update([]Detection{detAt(-1, 500, 600)})
	lc.Update([]Detection{detAt(-1, 500, 800)})
	if in, out := lc.Counts(); in != 0 || out != 0 {
		t.Errorf("unidentified detections must not count, got in=%d out=%d", in, out)
	}

	// A center exactly on the line keeps the previous side.
	lc.Update([]Detection{detAt(3, 500, 600)})
	lc.Update([]Detection{detAt(3, 500, 700)}) // on the line
	in, out := lc.Update([]Detection{detAt(3, 500, 800)})
	if in != 1 || out != 0 {
		t.Errorf("crossing through the line point: got in=%d out=%d", in, out)
	}
}

func TestLineCounterReset(t *testing.T) {
	start, end := AutoCountingLine(1000, 1000)
	lc := NewLineCounter(start, end)

	lc.Update([]Detection{detAt(4, 500, 600)})
	lc.Update([]Detection{detAt(4, 500, 800)})
	lc.Reset()

	if in, out := lc.Counts(); in != 0 || out != 0 {
		t.Fatalf("expected zeroed counts after reset, got in=%d out=%d", in, out)
	}
	// Side memory is gone: the next sighting establishes a fresh side.
	if in, out := lc.Update([]Detection{detAt(4, 500, 600)}); in != 0 || out != 0 {
		t.Errorf("post-reset first sighting must not count, got in=%d out=%d", in, out)
	}
}
