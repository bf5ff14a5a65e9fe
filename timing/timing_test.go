package timing

import (
	"testing"
	"time"
)

func TestRangeValid(t *testing.T) {
	cases := []struct {
		r    Range
		want bool
	}{
		{Range{Min: 0, Max: 0}, true},
		{Range{Min: 1, Max: 3}, true},
		{Range{Min: 0.5, Max: 0.5}, true},
		{Range{Min: 3, Max: 1}, false},
		{Range{Min: -1, Max: 3}, false},
	}

	for _, c := range cases {
		if got := c.r.Valid(); got != c.want {
			t.Errorf("Range{%v, %v}.Valid() = %v, want %v", c.r.Min, c.r.Max, got, c.want)
		}
	}
}

func TestSampleDelayBounds(t *testing.T) {
	src := NewSeededSource(1)

	min := 2 * time.Second
	max := 5 * time.Second

	for i := 0; i < 1000; i++ {
		d := SampleDelay(src, min, max)
		if d < min || d >= max {
			t.Fatalf("SampleDelay returned %v, outside [%v, %v)", d, min, max)
		}
	}
}

func TestSampleDelayDegenerate(t *testing.T) {
	src := NewSeededSource(1)

	if d := SampleDelay(src, time.Second, time.Second); d != time.Second {
		t.Errorf("degenerate range should return min, got %v", d)
	}
	if d := SampleDelay(src, 0, 0); d != 0 {
		t.Errorf("zero range should return 0, got %v", d)
	}
}

func TestRangeSecondsAndMinutes(t *testing.T) {
	src := NewSeededSource(7)
	r := Range{Min: 2, Max: 5}

	for i := 0; i < 100; i++ {
		s := r.Seconds(src)
		if s < 2*time.Second || s >= 5*time.Second {
			t.Fatalf("Seconds returned %v", s)
		}
		m := r.Minutes(src)
		if m < 2*time.Minute || m >= 5*time.Minute {
			t.Fatalf("Minutes returned %v", m)
		}
	}
}

func TestWeightedChoiceErrors(t *testing.T) {
	src := NewSeededSource(1)

	if _, err := WeightedChoice(src, nil); err != ErrNoWeights {
		t.Errorf("empty map: got %v, want ErrNoWeights", err)
	}
	if _, err := WeightedChoice(src, map[string]float64{"a": 0, "b": 0}); err != ErrNoWeights {
		t.Errorf("all-zero weights: got %v, want ErrNoWeights", err)
	}
	if _, err := WeightedChoice(src, map[string]float64{"a": 1, "b": -1}); err != ErrNoWeights {
		t.Errorf("negative weight: got %v, want ErrNoWeights", err)
	}
}

func TestWeightedChoiceDistribution(t *testing.T) {
	src := NewSeededSource(42)
	weights := map[string]float64{
		"scroll_down":   50,
		"scroll_up":     10,
		"pause_reading": 25,
		"like_post":     15,
	}

	counts := make(map[string]int)
	const n = 10000
	for i := 0; i < n; i++ {
		label, err := WeightedChoice(src, weights)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[label]++
	}

	// Each label should land within a few points of its expected share.
	for label, w := range weights {
		expected := w / 100 * n
		got := float64(counts[label])
		if got < expected*0.85 || got > expected*1.15 {
			t.Errorf("%s: got %d picks, expected around %.0f", label, counts[label], expected)
		}
	}
}

func TestWeightedChoiceZeroWeightNeverPicked(t *testing.T) {
	src := NewSeededSource(3)
	weights := map[string]float64{"a": 1, "b": 0}

	for i := 0; i < 1000; i++ {
		label, err := WeightedChoice(src, weights)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if label == "b" {
			t.Fatal("zero-weight label was picked")
		}
	}
}

func TestWeightedChoiceDeterministic(t *testing.T) {
	weights := map[string]float64{"x": 3, "y": 1, "z": 2}

	first := make([]string, 50)
	src := NewSeededSource(99)
	for i := range first {
		first[i], _ = WeightedChoice(src, weights)
	}

	src = NewSeededSource(99)
	for i := range first {
		label, _ := WeightedChoice(src, weights)
		if label != first[i] {
			t.Fatalf("pick %d differs between identical seeds", i)
		}
	}
}

func TestProbabilityGate(t *testing.T) {
	src := NewSeededSource(1)

	for i := 0; i < 100; i++ {
		if ProbabilityGate(src, 0) {
			t.Fatal("p=0 should never pass")
		}
		if !ProbabilityGate(src, 1) {
			t.Fatal("p=1 should always pass")
		}
		if ProbabilityGate(src, -0.5) {
			t.Fatal("negative p should never pass")
		}
		if !ProbabilityGate(src, 1.5) {
			t.Fatal("p>1 should always pass")
		}
	}

	// Rough frequency check for a mid probability.
	hits := 0
	const n = 10000
	for i := 0; i < n; i++ {
		if ProbabilityGate(src, 0.7) {
			hits++
		}
	}
	if hits < 6500 || hits > 7500 {
		t.Errorf("p=0.7 hit %d of %d", hits, n)
	}
}

func TestJitter(t *testing.T) {
	src := NewSeededSource(5)

	for i := 0; i < 1000; i++ {
		v := Jitter(src, 100, 10)
		if v < 90 || v > 110 {
			t.Fatalf("Jitter(100, 10) = %d", v)
		}
	}

	if v := Jitter(src, 100, 0); v != 100 {
		t.Errorf("zero spread should return n, got %d", v)
	}
}
