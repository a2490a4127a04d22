package IO

import (
	"errors"
	"fmt"

	"github.com/manningwu07/riffgpt/params"
)

// ErrInsufficientData is returned when the stream yields fewer windows than
// the training floor.
var ErrInsufficientData = errors.New("insufficient data")

// Window holds L+1 contiguous tokens. It aliases the stream it was cut
// from and must not be modified.
type Window []int

func (w Window) Input() []int  { return w[:len(w)-1] }
func (w Window) Target() []int { return w[1:] }

type Windower struct {
	Length     int // L
	MinWindows int
}

func NewWindower(cfg params.Config) Windower {
	return Windower{Length: cfg.Model.SeqLen, MinWindows: cfg.Training.MinWindows}
}

// Slice returns every window starting at 0..len(stream)-L-1, i.e.
// max(0, N-L) windows.
func (w Windower) Slice(stream []int) []Window {
	n := len(stream) - w.Length
	if w.Length <= 0 || n <= 0 {
		return nil
	}
	out := make([]Window, n)
	for i := 0; i < n; i++ {
		end := i + w.Length + 1
		out[i] = Window(stream[i:end:end])
	}
	return out
}

// Build is Slice plus the minimum-size check.
func (w Windower) Build(stream []int) ([]Window, error) {
	windows := w.Slice(stream)
	if len(windows) < w.MinWindows {
		return nil, fmt.Errorf("%w: %d tokens give %d windows of length %d, need %d",
			ErrInsufficientData, len(stream), len(windows), w.Length+1, w.MinWindows)
	}
	return windows, nil
}
