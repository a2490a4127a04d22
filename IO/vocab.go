package IO

import (
	"errors"
	"sort"

	"github.com/manningwu07/riffgpt/logger"
	"github.com/manningwu07/riffgpt/params"
)

// ErrEmptyCorpus is returned when no document yielded a single element.
var ErrEmptyCorpus = errors.New("empty corpus: no notes or chords found")

// BuildVocabulary collects canonical strings across docs in encounter order,
// dedupes and sorts them, and returns the vocabulary together with the
// flattened token stream.
func BuildVocabulary(docs [][]Element) (params.Vocabulary, []int, error) {
	var names []string
	chords := 0
	for _, doc := range docs {
		for _, e := range doc {
			names = append(names, e.Canonical())
			if e.IsChord() {
				chords++
			}
		}
	}
	if len(names) == 0 {
		return params.Vocabulary{}, nil, ErrEmptyCorpus
	}

	seen := make(map[string]struct{}, len(names))
	uniq := make([]string, 0)
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)
	vocab := params.NewVocabulary(uniq)
	logger.Debug("vocabulary built", logger.Fields{"tokens": vocab.Size(), "elements": len(names), "chords": chords})

	stream := make([]int, len(names))
	for i, n := range names {
		stream[i] = vocab.TokenToID[n]
	}
	return vocab, stream, nil
}
