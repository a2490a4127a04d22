package transformer

// CloneForGradsOnly creates a shallow clone of the model where all weights
// are shared (read-only) but per-module caches are private. Safe for
// concurrent Forward/BackwardGradsOnly on distinct clones.
func (m *Model) CloneForGradsOnly() *Model {
	out := &Model{
		Config:    m.Config,
		VocabSize: m.VocabSize,
		Emb:       m.Emb,
		PosEmb:    m.PosEmb,
		OutW:      m.OutW,
		OutB:      m.OutB,
		Blocks:    make([]TransformerBlock, len(m.Blocks)),
	}
	for i := range m.Blocks {
		src := &m.Blocks[i]
		out.Blocks[i] = TransformerBlock{
			Attn: src.Attn.cloneForGrads(),
			Mlp:  src.Mlp.cloneForGrads(),
			Ln1:  src.Ln1.CloneForGrads(),
			Ln2:  src.Ln2.CloneForGrads(),
		}
	}
	return out
}
