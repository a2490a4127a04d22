package music

import (
	"fmt"
	"strconv"
	"strings"
)

var pitchClassNames = [12]string{"C", "C#", "D", "E-", "E", "F", "F#", "G", "G#", "A", "B-", "B"}

var letterSemitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// ChordSeparator joins the member pitches of a chord token.
const ChordSeparator = "."

// PitchName spells a MIDI note number with its octave, e.g. 60 -> "C4",
// 63 -> "E-4". Flats are written '-'.
func PitchName(midi int) string {
	pc := ((midi % 12) + 12) % 12
	octave := (midi - pc) / 12
	return pitchClassNames[pc] + strconv.Itoa(octave-1)
}

// ParsePitch reads a pitch name with octave. Accidentals may be '#', '-'
// or 'b' and may repeat ("E--3").
func ParsePitch(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("empty pitch name")
	}
	semis, ok := letterSemitones[upper(name[0])]
	if !ok {
		return 0, fmt.Errorf("pitch %q: unknown letter", name)
	}
	i := 1
accidentals:
	for ; i < len(name); i++ {
		switch name[i] {
		case '#':
			semis++
		case '-', 'b':
			semis--
		default:
			break accidentals
		}
	}
	rest := name[i:]
	if rest == "" {
		return 0, fmt.Errorf("pitch %q: missing octave", name)
	}
	oct, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("pitch %q: bad octave: %w", name, err)
	}
	midi := (oct+1)*12 + semis
	if midi < 0 || midi > 127 {
		return 0, fmt.Errorf("pitch %q: outside MIDI range", name)
	}
	return midi, nil
}

// ChordName joins member pitch names in the given order.
func ChordName(midis []int) string {
	names := make([]string, len(midis))
	for i, m := range midis {
		names[i] = PitchName(m)
	}
	return strings.Join(names, ChordSeparator)
}

// ParseToken expands a note or chord token into MIDI note numbers.
func ParseToken(token string) ([]int, error) {
	parts := strings.Split(token, ChordSeparator)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		m, err := ParsePitch(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
