package ml

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// DecisionTree is a CART classifier using gini impurity. A zero MaxDepth
// grows the tree until leaves are pure, a zero MaxFeatures considers every
// feature at each split.
type DecisionTree struct {
	MaxDepth        int
	MaxFeatures     int
	MinSamplesSplit int
	Seed            int64

	nodes       []TreeNode
	nFeatures   int
	nClasses    int
	importances []float64
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
	Samples    int     `json:"samples"`
	Impurity   float64 `json:"impurity"`
	Confidence float64 `json:"confidence"`
}

type treeState struct {
	MaxDepth        int        `json:"max_depth"`
	MaxFeatures     int        `json:"max_features"`
	MinSamplesSplit int        `json:"min_samples_split"`
	Seed            int64      `json:"seed"`
	NFeatures       int        `json:"n_features"`
	NClasses        int        `json:"n_classes"`
	Importances     []float64  `json:"importances"`
	Nodes           []TreeNode `json:"nodes"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2}
}

// Train fits on every row. Labels must be codes in [0, max(labels)].
func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if err := checkTrainingShape(features, labels); err != nil {
		return err
	}
	nClasses := 0
	for _, label := range labels {
		if label < 0 {
			return errors.Wrapf(ErrEncoding, "negative class code %d", label)
		}
		if label+1 > nClasses {
			nClasses = label + 1
		}
	}
	sample := make([]int, len(features))
	for i := range sample {
		sample[i] = i
	}
	dt.fitSample(features, labels, sample, nClasses, rand.New(rand.NewSource(dt.Seed)))
	return nil
}

// fitSample grows the tree on the rows listed in sample; duplicate indices
// act as integer sample weights, which is how bootstrap resamples arrive.
func (dt *DecisionTree) fitSample(features [][]float64, labels []int, sample []int, nClasses int, rng *rand.Rand) {
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	dt.nFeatures = len(features[0])
	dt.nClasses = nClasses
	dt.importances = make([]float64, dt.nFeatures)

	b := &treeBuilder{
		tree:     dt,
		features: features,
		labels:   labels,
		total:    float64(len(sample)),
		rng:      rng,
	}
	dt.nodes = b.buildNode(sample, 0)

	sum := 0.0
	for _, v := range dt.importances {
		sum += v
	}
	if sum > 0 {
		for i := range dt.importances {
			dt.importances[i] /= sum
		}
	}
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, ErrNotTrained
	}
	if len(features) != dt.nFeatures {
		return 0, 0, errors.Wrapf(ErrShapeMismatch, "expected %d features, got %d", dt.nFeatures, len(features))
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Confidence, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.nodes) {
			return 0, 0, errors.New("invalid tree state")
		}
	}
}

// FeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), dt.importances...)
}

func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left, right := walk(node.LeftChild), walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

func (dt *DecisionTree) NodeCount() int {
	return len(dt.nodes)
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(treeState{
		MaxDepth:        dt.MaxDepth,
		MaxFeatures:     dt.MaxFeatures,
		MinSamplesSplit: dt.MinSamplesSplit,
		Seed:            dt.Seed,
		NFeatures:       dt.nFeatures,
		NClasses:        dt.nClasses,
		Importances:     dt.importances,
		Nodes:           dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var state treeState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	*dt = DecisionTree{
		MaxDepth:        state.MaxDepth,
		MaxFeatures:     state.MaxFeatures,
		MinSamplesSplit: state.MinSamplesSplit,
		Seed:            state.Seed,
		nodes:           state.Nodes,
		nFeatures:       state.NFeatures,
		nClasses:        state.NClasses,
		importances:     state.Importances,
	}
	return nil
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dt)
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	labels   []int
	total    float64
	rng      *rand.Rand
}

type candidateSplit struct {
	feature   int
	threshold float64
	impurity  float64
	left      []int
	right     []int
}

func (b *treeBuilder) buildNode(idx []int, depth int) []TreeNode {
	counts := classCounts(b.labels, idx, b.tree.nClasses)
	impurity := giniCounts(counts, len(idx))
	label, confidence := majorityCount(counts, len(idx))
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		IsLeaf:     true,
		Samples:    len(idx),
		Impurity:   impurity,
		Confidence: confidence,
	}}

	if impurity == 0 || len(idx) < b.tree.MinSamplesSplit {
		return leaf
	}
	if b.tree.MaxDepth > 0 && depth >= b.tree.MaxDepth {
		return leaf
	}

	split, ok := b.findBestSplit(idx)
	if !ok {
		return leaf
	}

	n := float64(len(idx))
	leftImpurity := giniCounts(classCounts(b.labels, split.left, b.tree.nClasses), len(split.left))
	rightImpurity := giniCounts(classCounts(b.labels, split.right, b.tree.nClasses), len(split.right))
	b.tree.importances[split.feature] += (n*impurity -
		float64(len(split.left))*leftImpurity -
		float64(len(split.right))*rightImpurity) / b.total

	leftNodes := b.buildNode(split.left, depth+1)
	rightNodes := b.buildNode(split.right, depth+1)

	root := TreeNode{
		FeatureIdx: split.feature,
		Threshold:  split.threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: label,
		IsLeaf:     false,
		Samples:    len(idx),
		Impurity:   impurity,
		Confidence: confidence,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetNodes(leftNodes, 1)...)
	nodes = append(nodes, offsetNodes(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// findBestSplit visits features in random order and stops once MaxFeatures
// non-constant features were evaluated. Constant features do not count
// toward the budget so a node is only made a leaf when no feature can
// separate its rows.
func (b *treeBuilder) findBestSplit(idx []int) (candidateSplit, bool) {
	nFeatures := b.tree.nFeatures
	budget := b.tree.MaxFeatures
	if budget <= 0 || budget > nFeatures {
		budget = nFeatures
	}

	best := candidateSplit{feature: -1, impurity: math.MaxFloat64}
	visited := 0
	for _, featureIdx := range b.rng.Perm(nFeatures) {
		if visited >= budget {
			break
		}
		candidate, ok := b.bestThreshold(idx, featureIdx)
		if !ok {
			continue
		}
		visited++
		if candidate.impurity < best.impurity {
			best = candidate
		}
	}
	if best.feature == -1 {
		return candidateSplit{}, false
	}
	return best, true
}

// bestThreshold scans the sorted values of one feature and returns the
// midpoint threshold minimizing the weighted child impurity.
func (b *treeBuilder) bestThreshold(idx []int, featureIdx int) (candidateSplit, bool) {
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return b.features[sorted[i]][featureIdx] < b.features[sorted[j]][featureIdx]
	})
	first := b.features[sorted[0]][featureIdx]
	last := b.features[sorted[len(sorted)-1]][featureIdx]
	if first == last {
		return candidateSplit{}, false
	}

	nClasses := b.tree.nClasses
	n := len(sorted)
	right := classCounts(b.labels, sorted, nClasses)
	left := make([]int, nClasses)

	bestPos := -1
	bestImpurity := math.MaxFloat64
	for pos := 1; pos < n; pos++ {
		label := b.labels[sorted[pos-1]]
		left[label]++
		right[label]--

		prev := b.features[sorted[pos-1]][featureIdx]
		curr := b.features[sorted[pos]][featureIdx]
		if prev == curr {
			continue
		}
		weighted := (float64(pos)*giniCounts(left, pos) + float64(n-pos)*giniCounts(right, n-pos)) / float64(n)
		if weighted < bestImpurity {
			bestImpurity = weighted
			bestPos = pos
		}
	}
	if bestPos == -1 {
		return candidateSplit{}, false
	}

	prev := b.features[sorted[bestPos-1]][featureIdx]
	curr := b.features[sorted[bestPos]][featureIdx]
	threshold := prev + (curr-prev)/2
	if threshold == curr {
		threshold = prev
	}
	return candidateSplit{
		feature:   featureIdx,
		threshold: threshold,
		impurity:  bestImpurity,
		left:      sorted[:bestPos],
		right:     sorted[bestPos:],
	}, true
}

func offsetNodes(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func classCounts(labels []int, idx []int, nClasses int) []int {
	counts := make([]int, nClasses)
	for _, i := range idx {
		counts[labels[i]]++
	}
	return counts
}

func giniCounts(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(total)
		impurity -= prob * prob
	}
	if impurity < 0 {
		return 0
	}
	return impurity
}

// majorityCount returns the most frequent class (lowest code on ties) and
// its share of the node.
func majorityCount(counts []int, total int) (int, float64) {
	bestLabel := 0
	bestCount := -1
	for label, count := range counts {
		if count > bestCount {
			bestCount = count
			bestLabel = label
		}
	}
	if total == 0 {
		return bestLabel, 0
	}
	return bestLabel, float64(bestCount) / float64(total)
}

func checkTrainingShape(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.Wrap(ErrShapeMismatch, "features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.Wrapf(ErrShapeMismatch, "%d feature rows but %d labels", len(features), len(labels))
	}
	_, err := matrixWidth(features)
	return err
}
