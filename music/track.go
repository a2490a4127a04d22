package music

// Event is one note: onset and duration are in beats.
type Event struct {
	Pitch    int
	Onset    float64
	Duration float64
	Velocity int
}

func (e Event) End() float64 { return e.Onset + e.Duration }

// Track is an ordered single-voice event list played at Tempo (BPM).
type Track struct {
	Name   string
	Tempo  int
	Events []Event
}

// Length is the end of the last sounding event, in beats.
func (t Track) Length() float64 {
	end := 0.0
	for _, e := range t.Events {
		end = max(end, e.End())
	}
	return end
}
