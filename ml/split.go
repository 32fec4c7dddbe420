package ml

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Split holds a train/test partition. Index slices refer to rows of the
// matrix passed to TrainTestSplit.
type Split struct {
	TrainX     [][]float64
	TrainY     []int
	TestX      [][]float64
	TestY      []int
	TrainIndex []int
	TestIndex  []int
}

// TrainTestSplit shuffles row indices with a seeded source and assigns the
// first ceil(testFraction*n) of them to the test side.
func TrainTestSplit(X [][]float64, y []int, testFraction float64, seed int64) (Split, error) {
	if len(X) != len(y) {
		return Split{}, errors.Wrapf(ErrShapeMismatch, "%d feature rows but %d labels", len(X), len(y))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return Split{}, errors.Wrapf(ErrDegenerateInput, "test fraction must be in (0, 1), got %v", testFraction)
	}
	n := len(X)
	nTest := int(math.Ceil(testFraction * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain <= 0 {
		return Split{}, errors.Wrapf(ErrDegenerateInput, "cannot split %d rows with test fraction %v", n, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	split := Split{
		TestIndex:  append([]int(nil), perm[:nTest]...),
		TrainIndex: append([]int(nil), perm[nTest:]...),
	}
	split.TrainX = make([][]float64, nTrain)
	split.TrainY = make([]int, nTrain)
	for i, idx := range split.TrainIndex {
		split.TrainX[i] = X[idx]
		split.TrainY[i] = y[idx]
	}
	split.TestX = make([][]float64, nTest)
	split.TestY = make([]int, nTest)
	for i, idx := range split.TestIndex {
		split.TestX[i] = X[idx]
		split.TestY[i] = y[idx]
	}
	return split, nil
}
