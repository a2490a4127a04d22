package params

// Vocabulary maps canonical pitch/chord strings to tokens and back.
// IDToToken is sorted lexically, so TokenToID[IDToToken[i]] == i.
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// NewVocabulary builds the forward map from an ordered token list.
func NewVocabulary(idToToken []string) Vocabulary {
	tok2id := make(map[string]int, len(idToToken))
	for i, t := range idToToken {
		tok2id[t] = i
	}
	return Vocabulary{TokenToID: tok2id, IDToToken: append([]string(nil), idToToken...)}
}

func (v Vocabulary) Size() int { return len(v.IDToToken) }

// Lookup returns the token for s and whether it was present.
func (v Vocabulary) Lookup(s string) (int, bool) {
	id, ok := v.TokenToID[s]
	return id, ok
}

// Token returns the string for id, or "" when id is out of range.
func (v Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.IDToToken) {
		return ""
	}
	return v.IDToToken[id]
}

// Decode maps ids back to their strings.
func (v Vocabulary) Decode(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = v.Token(id)
	}
	return out
}
