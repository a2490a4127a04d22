package pattern

import (
	"math/rand/v2"
)

const (
	StepsPerBar = 16
	StepBeats   = 0.25

	gatePulses = 10
	gateSteps  = 16

	walkStep  = 2
	walkBound = 12
)

var (
	majorScale = []int{0, 2, 4, 5, 7, 9, 11}
	minorScale = []int{0, 2, 3, 5, 7, 8, 10}

	degreeCycle    = []int{0, 2, 3, 5, 7, 5, 3, 2}
	amplitudeCycle = []int{80, 65, 55, 70}
)

// ScaleFor returns the scale and root used for style.
func ScaleFor(style string) (scale []int, root int) {
	if style == "da_funk" {
		return minorScale, 36
	}
	return majorScale, 60
}

// Degree maps a scale degree to semitones above the root, wrapping by octave.
func Degree(scale []int, n int) int {
	size := len(scale)
	oct := n / size
	idx := n % size
	if idx < 0 {
		idx += size
		oct--
	}
	return oct*12 + scale[idx]
}

// Streams are per-step parallel values; step i sounds when Gate[i].
type Streams struct {
	Pitches    []int
	Velocities []int
	Gate       []bool
}

// Walk is a bounded integer random walk. Next returns the current value,
// then moves by a uniform step in [-Step, Step] clamped to [Min, Max].
type Walk struct {
	Value, Step, Min, Max int
	rng                   *rand.Rand
}

func NewWalk(rng *rand.Rand, start, step, lo, hi int) *Walk {
	return &Walk{Value: start, Step: step, Min: lo, Max: hi, rng: rng}
}

func (w *Walk) Next() int {
	v := w.Value
	w.Value = min(max(w.Value+w.rng.IntN(2*w.Step+1)-w.Step, w.Min), w.Max)
	return v
}

// Generator composes rule-based patterns without a trained model.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator { return &Generator{rng: rng} }

// Compose returns bars*16 steps of pitch, velocity and gate.
func (g *Generator) Compose(style string, bars int) Streams {
	n := max(bars, 0) * StepsPerBar
	scale, root := ScaleFor(style)
	gate := Euclidean(gatePulses, gateSteps)
	walk := NewWalk(g.rng, 0, walkStep, -walkBound, walkBound)

	s := Streams{
		Pitches:    make([]int, n),
		Velocities: make([]int, n),
		Gate:       make([]bool, n),
	}
	for i := 0; i < n; i++ {
		s.Pitches[i] = root + Degree(scale, degreeCycle[i%len(degreeCycle)])
		amp := amplitudeCycle[i%len(amplitudeCycle)] + walk.Next()
		s.Velocities[i] = min(max(amp, 1), 127)
		s.Gate[i] = gate[i%len(gate)]
	}
	return s
}
