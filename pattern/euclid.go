package pattern

// Euclidean distributes pulses as evenly as possible over steps using
// Bjorklund's algorithm in Toussaint's grouping form: pulse groups are
// paired with remainder groups until at most one remainder group is left.
// E(3,8) = 10010010, E(10,16) = 1011010110110101.
func Euclidean(pulses, steps int) []bool {
	if steps <= 0 {
		return nil
	}
	out := make([]bool, 0, steps)
	if pulses <= 0 {
		return make([]bool, steps)
	}
	if pulses >= steps {
		for i := 0; i < steps; i++ {
			out = append(out, true)
		}
		return out
	}

	heads := make([][]bool, pulses)
	for i := range heads {
		heads[i] = []bool{true}
	}
	rest := make([][]bool, steps-pulses)
	for i := range rest {
		rest[i] = []bool{false}
	}

	for len(rest) > 1 {
		n := min(len(heads), len(rest))
		paired := make([][]bool, n)
		for i := 0; i < n; i++ {
			paired[i] = append(append([]bool(nil), heads[i]...), rest[i]...)
		}
		if len(heads) > n {
			rest = heads[n:]
		} else {
			rest = rest[n:]
		}
		heads = paired
	}

	for _, g := range heads {
		out = append(out, g...)
	}
	for _, g := range rest {
		out = append(out, g...)
	}
	return out
}

// GateString renders a gate as "1011...".
func GateString(gate []bool) string {
	b := make([]byte, len(gate))
	for i, on := range gate {
		b[i] = '0'
		if on {
			b[i] = '1'
		}
	}
	return string(b)
}
