package ml

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

type ForestConfig struct {
	TreeCount int `json:"tree_count"`
	// MaxFeatures is the number of features tried per split; 0 means int(sqrt(p)).
	MaxFeatures int   `json:"max_features"`
	MaxDepth    int   `json:"max_depth"`
	Seed        int64 `json:"seed"`
	// Workers bounds concurrent tree fitting; 0 means GOMAXPROCS. Results do
	// not depend on it.
	Workers int `json:"-"`
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		TreeCount: 100,
		Seed:      42,
	}
}

// RandomForest is a bagged ensemble of DecisionTrees predicting by majority vote.
type RandomForest struct {
	config    ForestConfig
	trees     []*DecisionTree
	nFeatures int
	nClasses  int

	// OnTreeFitted is called after each tree finishes, possibly from several
	// goroutines at once.
	OnTreeFitted func(done, total int)
}

type forestState struct {
	Config    ForestConfig    `json:"config"`
	NFeatures int             `json:"n_features"`
	NClasses  int             `json:"n_classes"`
	Trees     []*DecisionTree `json:"trees"`
}

func NewRandomForest(config ForestConfig) *RandomForest {
	if config.TreeCount <= 0 {
		config.TreeCount = DefaultForestConfig().TreeCount
	}
	return &RandomForest{config: config}
}

func (rf *RandomForest) Config() ForestConfig {
	return rf.config
}

// Train satisfies MLModel.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	nClasses := 0
	for _, label := range labels {
		if label+1 > nClasses {
			nClasses = label + 1
		}
	}
	return rf.Fit(context.Background(), features, labels, nClasses)
}

// Fit trains TreeCount trees, each on a bootstrap resample of the rows.
// nClasses is the size of the label code space; labels must lie in [0, nClasses).
func (rf *RandomForest) Fit(ctx context.Context, features [][]float64, labels []int, nClasses int) error {
	if err := checkTrainingShape(features, labels); err != nil {
		return err
	}
	for i, label := range labels {
		if label < 0 || label >= nClasses {
			return errors.Wrapf(ErrEncoding, "label %d at row %d outside [0, %d)", label, i, nClasses)
		}
	}

	nFeatures := len(features[0])
	maxFeatures := rf.config.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(nFeatures)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	// Seeds are drawn up front so tree i sees the same stream no matter
	// which worker picks it up.
	master := rand.New(rand.NewSource(rf.config.Seed))
	seeds := make([]int64, rf.config.TreeCount)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := rf.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > rf.config.TreeCount {
		workers = rf.config.TreeCount
	}

	trees := make([]*DecisionTree, rf.config.TreeCount)
	jobs := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				trees[idx] = fitBootstrapTree(features, labels, nClasses, maxFeatures, rf.config.MaxDepth, seeds[idx])
				if rf.OnTreeFitted != nil {
					mu.Lock()
					done++
					rf.OnTreeFitted(done, rf.config.TreeCount)
					mu.Unlock()
				}
			}
		}()
	}

	var cancelled error
	for i := range trees {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
		case jobs <- i:
		}
		if cancelled != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	if cancelled != nil {
		return errors.Wrap(cancelled, "forest training cancelled")
	}

	rf.trees = trees
	rf.nFeatures = nFeatures
	rf.nClasses = nClasses
	return nil
}

func fitBootstrapTree(features [][]float64, labels []int, nClasses, maxFeatures, maxDepth int, seed int64) *DecisionTree {
	rng := rand.New(rand.NewSource(seed))
	n := len(features)
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.Intn(n)
	}
	tree := &DecisionTree{
		MaxDepth:        maxDepth,
		MaxFeatures:     maxFeatures,
		MinSamplesSplit: 2,
		Seed:            seed,
	}
	tree.fitSample(features, labels, sample, nClasses, rng)
	return tree
}

// Predict returns the majority-vote class and the share of trees voting for it.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	if len(rf.trees) == 0 {
		return 0, 0, ErrNotTrained
	}
	if len(features) != rf.nFeatures {
		return 0, 0, errors.Wrapf(ErrShapeMismatch, "expected %d features, got %d", rf.nFeatures, len(features))
	}
	votes := make([]int, rf.nClasses)
	for _, tree := range rf.trees {
		label, _, err := tree.Predict(features)
		if err != nil {
			return 0, 0, err
		}
		votes[label]++
	}
	label, share := majorityCount(votes, len(rf.trees))
	return label, share, nil
}

func (rf *RandomForest) PredictBatch(features [][]float64) ([]int, error) {
	out := make([]int, len(features))
	for i, row := range features {
		label, _, err := rf.Predict(row)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = label
	}
	return out, nil
}

// FeatureImportances averages the per-tree normalized impurity decrease and
// renormalizes so the result sums to 1. All zeros when no tree ever split.
func (rf *RandomForest) FeatureImportances() []float64 {
	out := make([]float64, rf.nFeatures)
	if len(rf.trees) == 0 {
		return out
	}
	for _, tree := range rf.trees {
		for i, v := range tree.importances {
			out[i] += v
		}
	}
	sum := 0.0
	for _, v := range out {
		sum += v
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func (rf *RandomForest) Trees() int {
	return len(rf.trees)
}

// NodeCount is the total number of nodes across all trees.
func (rf *RandomForest) NodeCount() int {
	total := 0
	for _, tree := range rf.trees {
		total += tree.NodeCount()
	}
	return total
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestState{
		Config:    rf.config,
		NFeatures: rf.nFeatures,
		NClasses:  rf.nClasses,
		Trees:     rf.trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var state forestState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	rf.config = state.Config
	rf.nFeatures = state.NFeatures
	rf.nClasses = state.NClasses
	rf.trees = state.Trees
	return nil
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(rf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (rf *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, rf)
}
