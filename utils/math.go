package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix functions used by the model. Activations are (d x T): one column
// per sequence position.

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

// AddBias adds the (r x 1) bias to every column of m.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic("addBias: bias must be (r x 1)")
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		b := bias.At(i, 0)
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j)+b)
		}
	}
	return out
}

// SumCols collapses (r x T) into (r x 1) by summing over columns.
func SumCols(m *mat.Dense) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, floats.Sum(m.RawRowView(i)))
	}
	return out
}

// -------- GELU activation (GPT-style) --------
// gelu(x) = 0.5 * x * (1 + tanh( sqrt(2/pi) * (x + 0.044715*x^3) ))

func GeluApply(i, j int, x float64) float64 {
	const k = 0.7978845608028654 // sqrt(2/pi)
	t := k * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + math.Tanh(t))
}

func GeluPrime(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	const k = 0.7978845608028654
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := m.At(i, j)
			t := k * (x + 0.044715*x*x*x)
			th := math.Tanh(t)
			sech2 := 1.0 - th*th
			dt := k * (1.0 + 3.0*0.044715*x*x)
			out.Set(i, j, 0.5*(1.0+th)+0.5*x*sech2*dt)
		}
	}
	return out
}

// CausalMask returns (T x T) with 0 on and below diagonal, -1e30 above.
func CausalMask(T int) *mat.Dense {
	out := mat.NewDense(T, T, nil)
	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			out.Set(i, j, -1e30)
		}
	}
	return out
}

// ---------- Softmax variants ----------

// RowSoftmaxMaskedInPlace writes softmax(m+mask) row-wise into dst.
func RowSoftmaxMaskedInPlace(dst, m, mask *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if dr, dc := dst.Dims(); dr != r || dc != c {
		panic("RowSoftmaxMaskedInPlace: dst shape mismatch")
	}
	if mr, mc := mask.Dims(); mr != r || mc != c {
		panic("RowSoftmaxMaskedInPlace: mask shape mismatch")
	}
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j) + mask.At(i, j)
		}
		SoftmaxInPlace(row)
		dst.SetRow(i, row)
	}
	return dst
}

// SoftmaxInPlace turns logits into probabilities (max-shifted).
func SoftmaxInPlace(v []float64) {
	if len(v) == 0 {
		return
	}
	mx := v[0]
	for _, x := range v[1:] {
		if x > mx {
			mx = x
		}
	}
	sum := 0.0
	for i, x := range v {
		e := math.Exp(x - mx)
		v[i] = e
		sum += e
	}
	inv := 1.0 / sum
	for i := range v {
		v[i] *= inv
	}
}

// ColSoftmax returns softmax of column j of m as a fresh slice.
func ColSoftmax(m *mat.Dense, j int) []float64 {
	p := mat.Col(nil, j, m)
	SoftmaxInPlace(p)
	return p
}

// Softmax backward for row-wise softmax used in attention.
// For each row i: s = sum_k dA[i,k]*A[i,k]; dS[i,j] = A[i,j]*(dA[i,j]-s)
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for k := 0; k < c; k++ {
			s += dA.At(i, k) * A.At(i, k)
		}
		for j := 0; j < c; j++ {
			aj := A.At(i, j)
			dS.Set(i, j, aj*(dA.At(i, j)-s))
		}
	}
	return dS
}

// ---------- Loss ----------

// CrossEntropyColumns scores each column of logits (V x T) against
// targets[t]. It returns the summed loss and dLoss/dLogits multiplied by
// scale, so callers averaging over N positions pass scale = 1/N.
func CrossEntropyColumns(logits *mat.Dense, targets []int, scale float64) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if len(targets) != c {
		panic("CrossEntropyColumns: one target per column required")
	}
	grad := mat.NewDense(r, c, nil)
	loss := 0.0
	for t := 0; t < c; t++ {
		gold := targets[t]
		if gold < 0 || gold >= r {
			panic("CrossEntropyColumns: target out of range")
		}
		p := ColSoftmax(logits, t)
		loss += -math.Log(p[gold] + 1e-12)
		p[gold] -= 1.0
		for i := range p {
			p[i] *= scale
		}
		grad.SetCol(t, p)
	}
	return loss, grad
}
