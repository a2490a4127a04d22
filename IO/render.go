package IO

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/manningwu07/riffgpt/music"
	"github.com/manningwu07/riffgpt/params"
)

const (
	DefaultDuration        = 0.25 // beats
	DefaultVelocity        = 100
	DefaultTicksPerQuarter = 480
)

// Renderer turns tokens into note events and events into a Standard MIDI
// File with a single tempo.
type Renderer struct {
	Duration        float64
	Velocity        int
	TicksPerQuarter uint16
	Channel         uint8
}

func NewRenderer() Renderer {
	return Renderer{
		Duration:        DefaultDuration,
		Velocity:        DefaultVelocity,
		TicksPerQuarter: DefaultTicksPerQuarter,
	}
}

// Tokens lays tokens out back to back; chord members share one onset.
func (r Renderer) Tokens(tokens []int, vocab params.Vocabulary, tempo int) (music.Track, error) {
	tr := music.Track{Tempo: tempo, Events: make([]music.Event, 0, len(tokens))}
	ts := 0.0
	for _, id := range tokens {
		name := vocab.Token(id)
		if name == "" {
			return music.Track{}, fmt.Errorf("token %d outside vocabulary of %d", id, vocab.Size())
		}
		pitches, err := music.ParseToken(name)
		if err != nil {
			return music.Track{}, err
		}
		for _, p := range pitches {
			tr.Events = append(tr.Events, music.Event{Pitch: p, Onset: ts, Duration: r.Duration, Velocity: r.Velocity})
		}
		ts += r.Duration
	}
	return tr, nil
}

// Streams renders parallel per-step values: step i becomes an event at
// i*Duration when gate[i] is set, with velocities[i] as its velocity.
func (r Renderer) Streams(pitches, velocities []int, gate []bool, tempo int) (music.Track, error) {
	if len(velocities) != len(pitches) || len(gate) != len(pitches) {
		return music.Track{}, fmt.Errorf("stream lengths differ: %d pitches, %d velocities, %d gates",
			len(pitches), len(velocities), len(gate))
	}
	tr := music.Track{Tempo: tempo}
	for i, p := range pitches {
		if !gate[i] {
			continue
		}
		tr.Events = append(tr.Events, music.Event{
			Pitch:    p,
			Onset:    float64(i) * r.Duration,
			Duration: r.Duration,
			Velocity: velocities[i],
		})
	}
	return tr, nil
}

type timedMsg struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// Encode builds a format 1 SMF: tempo meta at tick 0, then note on/off
// pairs. At equal ticks note-offs precede note-ons.
func (r Renderer) Encode(track music.Track) (*smf.SMF, error) {
	if track.Tempo <= 0 {
		return nil, fmt.Errorf("tempo must be positive, got %d", track.Tempo)
	}
	tpq := float64(r.TicksPerQuarter)
	msgs := make([]timedMsg, 0, 2*len(track.Events))
	for _, e := range track.Events {
		if e.Pitch < 0 || e.Pitch > 127 {
			return nil, fmt.Errorf("pitch %d outside MIDI range", e.Pitch)
		}
		on := uint32(math.Round(e.Onset * tpq))
		off := uint32(math.Round(e.End() * tpq))
		key := uint8(e.Pitch)
		vel := uint8(min(max(e.Velocity, 1), 127))
		msgs = append(msgs,
			timedMsg{tick: on, msg: midi.NoteOn(r.Channel, key, vel)},
			timedMsg{tick: off, off: true, msg: midi.NoteOff(r.Channel, key)},
		)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		return msgs[i].off && !msgs[j].off
	})

	var tr smf.Track
	if track.Name != "" {
		tr.Add(0, smf.MetaTrackSequenceName(track.Name))
	}
	tr.Add(0, smf.MetaTempo(float64(track.Tempo)))
	var last uint32
	for _, m := range msgs {
		tr.Add(m.tick-last, m.msg)
		last = m.tick
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(r.TicksPerQuarter)
	if err := s.Add(tr); err != nil {
		return nil, err
	}
	return s, nil
}

func (r Renderer) WriteTo(w io.Writer, track music.Track) error {
	s, err := r.Encode(track)
	if err != nil {
		return err
	}
	_, err = s.WriteTo(w)
	return err
}

// WriteFile renders track to path, creating parent directories.
func (r Renderer) WriteFile(path string, track music.Track) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteTo(f, track); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
