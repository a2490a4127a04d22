package main

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/floats"
)

var (
	trainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	modelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	riffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// progressWriter colours complete progress lines by their [TAG] prefix.
type progressWriter struct {
	mu  sync.Mutex
	out io.Writer
	buf bytes.Buffer
}

func newProgressWriter(out io.Writer) *progressWriter {
	return &progressWriter{out: out}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// partial line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		line = strings.TrimSuffix(line, "\n")
		if _, err := fmt.Fprintln(w.out, styleLine(line)); err != nil {
			return len(p), err
		}
	}
}

func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "[TRAIN]"):
		return trainStyle.Render(line)
	case strings.HasPrefix(line, "[MODEL]"), strings.HasPrefix(line, "[DONE]"):
		return modelStyle.Render(line)
	case strings.HasPrefix(line, "[RIFF]"):
		return riffStyle.Render(line)
	}
	return line
}

// lossPlot draws a crude vertical bar chart of the epoch losses, scaled so
// the worst epoch fills the chart.
func lossPlot(out io.Writer, losses []float64) {
	const height = 10
	n := len(losses)
	if n == 0 {
		return
	}
	hi := floats.Max(losses)
	if hi <= 0 {
		hi = 1
	}
	var sb strings.Builder
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		for _, v := range losses {
			if v/hi >= threshold {
				sb.WriteString("█")
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat("─", n))
	sb.WriteByte('\n')
	for i := range losses {
		if i%5 == 0 {
			sb.WriteString(strconv.Itoa(i % 10))
		} else {
			sb.WriteByte(' ')
		}
	}
	fmt.Fprintln(out, trainStyle.Render(sb.String()))
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("loss %.4f -> %.4f", losses[0], losses[n-1])))
}
