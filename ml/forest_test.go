package ml

import (
	"context"
	"path/filepath"
	"testing"
)

func separableData() ([][]float64, []int) {
	features := make([][]float64, 0, 20)
	labels := make([]int, 0, 20)
	for i := 0; i < 10; i++ {
		features = append(features, []float64{float64(i) * 0.1, float64(i) * 0.1})
		labels = append(labels, 0)
	}
	for i := 0; i < 10; i++ {
		features = append(features, []float64{10 + float64(i)*0.1, 20 + float64(i)*0.1})
		labels = append(labels, 1)
	}
	return features, labels
}

func TestRandomForestFitPredict(t *testing.T) {
	features, labels := separableData()
	forest := NewRandomForest(ForestConfig{TreeCount: 25, Seed: 42})
	if err := forest.Fit(context.Background(), features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forest.Trees() != 25 {
		t.Fatalf("expected 25 trees, got %d", forest.Trees())
	}
	if forest.NodeCount() < forest.Trees() {
		t.Fatalf("every tree has at least a root, got %d nodes", forest.NodeCount())
	}

	label, share, err := forest.Predict([]float64{0.45, 0.45})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected class 0, got %d", label)
	}
	if share <= 0.5 || share > 1 {
		t.Fatalf("expected a majority vote share, got %f", share)
	}

	preds, err := forest.PredictBatch(features)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acc, err := Accuracy(labels, preds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc != 1 {
		t.Fatalf("expected perfect training accuracy, got %f", acc)
	}
}

func TestRandomForestImportancesSumToOne(t *testing.T) {
	features, labels := separableData()
	forest := NewRandomForest(ForestConfig{TreeCount: 10, Seed: 7})
	if err := forest.Fit(context.Background(), features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	importances := forest.FeatureImportances()
	if len(importances) != 2 {
		t.Fatalf("expected 2 importances, got %d", len(importances))
	}
	sum := 0.0
	for _, v := range importances {
		if v < 0 {
			t.Fatalf("negative importance: %v", importances)
		}
		sum += v
	}
	if !almostEqual(sum, 1, 1e-9) {
		t.Fatalf("importances should sum to 1, got %f", sum)
	}
}

func TestRandomForestDeterministicAcrossWorkers(t *testing.T) {
	features := [][]float64{
		{1, 3, 0}, {2, 1, 1}, {3, 4, 0}, {4, 1, 1}, {5, 5, 0},
		{6, 9, 1}, {7, 2, 0}, {8, 6, 1}, {9, 5, 0}, {10, 3, 1},
	}
	labels := []int{0, 1, 0, 2, 1, 2, 0, 1, 2, 2}

	sequential := NewRandomForest(ForestConfig{TreeCount: 30, Seed: 42, Workers: 1})
	parallel := NewRandomForest(ForestConfig{TreeCount: 30, Seed: 42, Workers: 4})
	if err := sequential.Fit(context.Background(), features, labels, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := parallel.Fit(context.Background(), features, labels, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, b := sequential.FeatureImportances(), parallel.FeatureImportances()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("importances differ at %d: %v vs %v", i, a, b)
		}
	}
	for _, row := range features {
		la, sa, _ := sequential.Predict(row)
		lb, sb, _ := parallel.Predict(row)
		if la != lb || sa != sb {
			t.Fatalf("predictions differ for %v: %d/%f vs %d/%f", row, la, sa, lb, sb)
		}
	}
}

func TestRandomForestProgressHook(t *testing.T) {
	features, labels := separableData()
	forest := NewRandomForest(ForestConfig{TreeCount: 8, Seed: 1, Workers: 2})
	last := 0
	calls := 0
	forest.OnTreeFitted = func(done, total int) {
		calls++
		if total != 8 {
			t.Errorf("expected total 8, got %d", total)
		}
		last = done
	}
	if err := forest.Fit(context.Background(), features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 8 || last != 8 {
		t.Fatalf("expected 8 progress calls ending at 8, got %d calls ending at %d", calls, last)
	}
}

func TestRandomForestErrors(t *testing.T) {
	forest := NewRandomForest(DefaultForestConfig())
	if _, _, err := forest.Predict([]float64{1}); err != ErrNotTrained {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := forest.Fit(context.Background(), [][]float64{{1}, {2}}, []int{0}, 2); !isErr(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
	if err := forest.Fit(context.Background(), nil, nil, 2); !isErr(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for empty input, got %v", err)
	}
	if err := forest.Fit(context.Background(), [][]float64{{1}, {2}}, []int{0, 5}, 2); !isErr(err, ErrEncoding) {
		t.Fatalf("expected encoding error for out-of-range label, got %v", err)
	}
}

func TestRandomForestCancelled(t *testing.T) {
	features, labels := separableData()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	forest := NewRandomForest(ForestConfig{TreeCount: 500, Seed: 1, Workers: 1})
	if err := forest.Fit(ctx, features, labels, 2); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestRandomForestSaveLoad(t *testing.T) {
	features, labels := separableData()
	forest := NewRandomForest(ForestConfig{TreeCount: 5, Seed: 3})
	if err := forest.Fit(context.Background(), features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "forest.json")
	if err := forest.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := LoadModel(ModelTypeRandomForest, path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	for _, row := range features {
		want, _, _ := forest.Predict(row)
		got, _, err := loaded.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("loaded forest predicted %d, want %d", got, want)
		}
	}
	if _, err := LoadModel("svm", path); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}
