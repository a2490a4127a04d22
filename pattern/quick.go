package pattern

import (
	"github.com/manningwu07/riffgpt/music"
)

var quickPools = map[string][]int{
	"da_funk":       {36, 38, 40, 43, 45, 47},
	"around_world":  {60, 62, 64, 67, 69, 71},
	"harder_better": {48, 50, 53, 55, 58, 60},
}

// QuickPool returns the note pool for style, or middle C alone.
func QuickPool(style string) []int {
	if p, ok := quickPools[style]; ok {
		return p
	}
	return []int{60}
}

// Quick draws bars*16 sixteenth notes from the style pool with velocities
// in 80..120.
func (g *Generator) Quick(style string, tempo, bars int) music.Track {
	pool := QuickPool(style)
	n := max(bars, 0) * StepsPerBar
	tr := music.Track{Name: "quick_" + style, Tempo: tempo, Events: make([]music.Event, n)}
	for i := range tr.Events {
		tr.Events[i] = music.Event{
			Pitch:    pool[g.rng.IntN(len(pool))],
			Onset:    float64(i) * StepBeats,
			Duration: StepBeats,
			Velocity: 80 + g.rng.IntN(41),
		}
	}
	return tr
}
