// Package timing provides the randomness and delay primitives used by the
// warmup engine. Every sampler and gate takes an explicit Source so that
// probabilistic control flow stays deterministic under test.
package timing

import (
	"errors"
	"math/rand"
	"sort"
	"time"
)

// ErrNoWeights is returned when a weighted choice has nothing to choose from.
var ErrNoWeights = errors.New("timing: no positive weights to choose from")

// Source is the subset of *rand.Rand the engine draws from. *rand.Rand
// satisfies it directly; tests substitute a scripted implementation.
type Source interface {
	Float64() float64
	Intn(n int) int
	Int63n(n int64) int64
}

// NewSource returns a Source seeded from the wall clock, the way each
// component owns its generator.
func NewSource() Source {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// NewSeededSource returns a reproducible Source for tests and replay.
func NewSeededSource(seed int64) Source {
	return rand.New(rand.NewSource(seed))
}

// Clock abstracts time for the engine. The real clock sleeps for real;
// test clocks advance instantly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Range is an inclusive [Min, Max] interval. Units depend on context
// (minutes for session ranges, seconds for cooldowns).
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Valid reports whether the range is well formed.
func (r Range) Valid() bool {
	return r.Min >= 0 && r.Min <= r.Max
}

// SampleDelay draws a duration uniformly from [min, max].
func SampleDelay(src Source, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(src.Int63n(int64(max-min)))
}

// Minutes samples the range interpreted as minutes.
func (r Range) Minutes(src Source) time.Duration {
	return SampleDelay(src, time.Duration(r.Min*float64(time.Minute)), time.Duration(r.Max*float64(time.Minute)))
}

// Seconds samples the range interpreted as seconds.
func (r Range) Seconds(src Source) time.Duration {
	return SampleDelay(src, time.Duration(r.Min*float64(time.Second)), time.Duration(r.Max*float64(time.Second)))
}

// WeightedChoice picks a label with probability weight/sum(weights).
// Labels are walked in sorted order so the same Source sequence always
// yields the same pick. Negative weights are a configuration error.
func WeightedChoice(src Source, weights map[string]float64) (string, error) {
	if len(weights) == 0 {
		return "", ErrNoWeights
	}

	labels := make([]string, 0, len(weights))
	total := 0.0
	for label, w := range weights {
		if w < 0 {
			return "", ErrNoWeights
		}
		labels = append(labels, label)
		total += w
	}
	if total <= 0 {
		return "", ErrNoWeights
	}
	sort.Strings(labels)

	roll := src.Float64() * total
	acc := 0.0
	for _, label := range labels {
		acc += weights[label]
		if roll < acc {
			return label, nil
		}
	}
	// Floating point accumulation can leave roll == total.
	return labels[len(labels)-1], nil
}

// ProbabilityGate returns true with probability p. Values outside [0,1]
// clamp to always-false / always-true.
func ProbabilityGate(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Jitter returns n randomly varied by up to ±spread.
func Jitter(src Source, n, spread int) int {
	if spread <= 0 {
		return n
	}
	return n + src.Intn(2*spread+1) - spread
}
