package IO

import (
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/manningwu07/riffgpt/logger"
	"github.com/manningwu07/riffgpt/music"
)

// ErrParseFailure marks a single corpus document that could not be read.
var ErrParseFailure = errors.New("parse failure")

// Element is one note (a single pitch) or chord (several pitches) in the
// order the document reports them.
type Element struct {
	Pitches []int
}

func (e Element) IsChord() bool { return len(e.Pitches) > 1 }

// Canonical is the vocabulary string: "C4" for a note, "C4.E4.G4" for a chord.
func (e Element) Canonical() string { return music.ChordName(e.Pitches) }

// MusicDocumentParser turns one document into ordered note/chord elements.
type MusicDocumentParser interface {
	Parse(path string) ([]Element, error)
}

// ParseFailure records why one document was skipped.
type ParseFailure struct {
	Path   string
	Reason error
}

func (f *ParseFailure) Error() string { return fmt.Sprintf("parse %s: %v", f.Path, f.Reason) }

func (f *ParseFailure) Unwrap() []error { return []error{ErrParseFailure, f.Reason} }

// ParseResult is the outcome for one document: Elements on success,
// Failure otherwise.
type ParseResult struct {
	Path     string
	Elements []Element
	Failure  *ParseFailure
}

func (r ParseResult) OK() bool { return r.Failure == nil }

// ParseAll parses every path; a failing document is logged and kept as a
// failed result so the rest of the batch continues.
func ParseAll(p MusicDocumentParser, paths []string) []ParseResult {
	results := make([]ParseResult, 0, len(paths))
	for _, path := range paths {
		elems, err := p.Parse(path)
		if err != nil {
			failure := &ParseFailure{Path: path, Reason: err}
			logger.Warn("skipping unparseable document", logger.Fields{"path": path, "error": err.Error()})
			results = append(results, ParseResult{Path: path, Failure: failure})
			continue
		}
		results = append(results, ParseResult{Path: path, Elements: elems})
	}
	return results
}

// Documents returns the element lists of the successful results.
func Documents(results []ParseResult) [][]Element {
	docs := make([][]Element, 0, len(results))
	for _, r := range results {
		if r.OK() {
			docs = append(docs, r.Elements)
		}
	}
	return docs
}

// SMFParser reads Standard MIDI Files. Note-ons sharing a tick within one
// track become a chord; elements from all tracks are merged by tick.
type SMFParser struct{}

type onset struct {
	tick    uint64
	track   int
	pitches []int
}

func (SMFParser) Parse(path string) ([]Element, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var onsets []onset
	for ti, tr := range s.Tracks {
		var abs uint64
		cur := -1
		for _, ev := range tr {
			abs += uint64(ev.Delta)
			var ch, key, vel uint8
			if !midi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
				continue
			}
			if cur >= 0 && onsets[cur].tick == abs {
				onsets[cur].pitches = append(onsets[cur].pitches, int(key))
				continue
			}
			onsets = append(onsets, onset{tick: abs, track: ti, pitches: []int{int(key)}})
			cur = len(onsets) - 1
		}
	}

	sort.SliceStable(onsets, func(i, j int) bool {
		if onsets[i].tick != onsets[j].tick {
			return onsets[i].tick < onsets[j].tick
		}
		return onsets[i].track < onsets[j].track
	})

	elems := make([]Element, len(onsets))
	for i, o := range onsets {
		elems[i] = Element{Pitches: o.pitches}
	}
	return elems, nil
}
