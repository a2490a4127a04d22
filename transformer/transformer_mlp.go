package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/utils"
)

type MLP struct {
	Inputs, Hiddens, Outputs  int
	HiddenWeights, HiddenBias *mat.Dense
	OutputWeights, OutputBias *mat.Dense

	// cache for backprop
	lastInput, hiddenPreAct, hiddenOutputs *mat.Dense
}

func NewMLP(dModel, hidden int, rng *rand.Rand) *MLP {
	return &MLP{
		Inputs:        dModel,
		Hiddens:       hidden,
		Outputs:       dModel,
		HiddenWeights: mat.NewDense(hidden, dModel, utils.RandomArray(rng, dModel*hidden, float64(dModel))),
		HiddenBias:    mat.NewDense(hidden, 1, nil),
		OutputWeights: mat.NewDense(dModel, hidden, utils.RandomArray(rng, hidden*dModel, float64(hidden))),
		OutputBias:    mat.NewDense(dModel, 1, nil),
	}
}

func (mlp *MLP) Params() []*mat.Dense {
	return []*mat.Dense{mlp.HiddenWeights, mlp.HiddenBias, mlp.OutputWeights, mlp.OutputBias}
}

func (mlp *MLP) Forward(X *mat.Dense) *mat.Dense {
	mlp.lastInput = X
	hiddenLin := utils.ToDense(utils.Dot(mlp.HiddenWeights, X)) // (h x T)
	mlp.hiddenPreAct = utils.AddBias(hiddenLin, mlp.HiddenBias)
	mlp.hiddenOutputs = utils.Apply(utils.GeluApply, mlp.hiddenPreAct).(*mat.Dense)
	finalLin := utils.ToDense(utils.Dot(mlp.OutputWeights, mlp.hiddenOutputs)) // (d x T)
	return utils.AddBias(finalLin, mlp.OutputBias)
}

func (mlp *MLP) BackwardGradsOnly(grad *mat.Dense) (*mat.Dense, []*mat.Dense) {
	dWout := utils.ToDense(utils.Dot(grad, mlp.hiddenOutputs.T()))
	dbOut := utils.SumCols(grad)

	hiddenGradOut := utils.ToDense(utils.Dot(mlp.OutputWeights.T(), grad))
	hiddenErrors := utils.Multiply(hiddenGradOut, utils.GeluPrime(mlp.hiddenPreAct)).(*mat.Dense)

	dWhid := utils.ToDense(utils.Dot(hiddenErrors, mlp.lastInput.T()))
	dbHidden := utils.SumCols(hiddenErrors)

	dX := utils.ToDense(utils.Dot(mlp.HiddenWeights.T(), hiddenErrors))
	return dX, []*mat.Dense{dWhid, dbHidden, dWout, dbOut}
}

func (mlp *MLP) cloneForGrads() *MLP {
	return &MLP{
		Inputs:        mlp.Inputs,
		Hiddens:       mlp.Hiddens,
		Outputs:       mlp.Outputs,
		HiddenWeights: mlp.HiddenWeights, // shared read-only
		HiddenBias:    mlp.HiddenBias,
		OutputWeights: mlp.OutputWeights,
		OutputBias:    mlp.OutputBias,
	}
}
