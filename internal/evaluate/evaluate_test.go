package evaluate

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"hcnn/internal/dataset"
	"hcnn/internal/features"
	"hcnn/internal/model"
	"hcnn/internal/stream"
)

func TestSelectPicksLowestLoss(t *testing.T) {
	best, err := Select([]Candidate{
		{Epoch: 1, MeanLoss: 0.9},
		{Epoch: 2, MeanLoss: 0.2},
		{Epoch: 3, MeanLoss: 0.5},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if best.Epoch != 2 {
		t.Fatalf("selected epoch %d, want 2", best.Epoch)
	}
}

func TestSelectTieGoesToEarlierEpoch(t *testing.T) {
	best, err := Select([]Candidate{
		{Epoch: 30, MeanLoss: 0.4},
		{Epoch: 10, MeanLoss: 0.4},
		{Epoch: 20, MeanLoss: 0.7},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if best.Epoch != 10 {
		t.Fatalf("selected epoch %d, want 10", best.Epoch)
	}
	if _, err := Select(nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestCandidatesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validation_loss.csv")
	if _, ok, err := ReadCandidates(path); ok || err != nil {
		t.Fatalf("missing log: ok=%v err=%v", ok, err)
	}
	in := []Candidate{{Epoch: 20, MeanLoss: 0.5, Accuracy: 0.75}, {Epoch: 10, MeanLoss: 0.25, Accuracy: 1}}
	if err := WriteCandidates(path, in); err != nil {
		t.Fatalf("WriteCandidates: %v", err)
	}
	got, ok, err := ReadCandidates(path)
	if err != nil || !ok {
		t.Fatalf("ReadCandidates: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0].Epoch != 10 || got[1].Accuracy != 0.75 {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestAnalyzeScores(t *testing.T) {
	classes := dataset.DefaultClassMap()
	cello, _ := classes.Index("cello")
	violin, _ := classes.Index("violin")
	pred := func(index, corpus string, target, predicted int, loss float64) Prediction {
		return Prediction{Index: index, Dataset: corpus, TargetIndex: target, PredictedIndex: predicted, MeanLoss: loss}
	}
	predictions := []Prediction{
		pred("a", "rwc", cello, cello, 0.1),
		pred("b", "rwc", cello, violin, 1.0),
		pred("c", "rwc", violin, violin, 0.2),
		pred("d", "uiowa", violin, violin, 0.3),
	}

	a, err := Analyze(predictions, classes, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Notes != 4 || a.Accuracy != 0.75 {
		t.Fatalf("notes=%d accuracy=%g", a.Notes, a.Accuracy)
	}
	if math.Abs(a.MeanLoss-0.4) > 1e-12 {
		t.Fatalf("mean loss = %g, want 0.4", a.MeanLoss)
	}
	if a.Confusion[cello][violin] != 1 || a.Confusion[violin][violin] != 2 {
		t.Fatalf("confusion = %v", a.Confusion)
	}
	c := a.PerClass[cello]
	if c.Precision != 1 || c.Recall != 0.5 || c.Support != 2 {
		t.Fatalf("cello scores = %+v", c)
	}
	v := a.PerClass[violin]
	if math.Abs(v.Precision-2.0/3.0) > 1e-12 || v.Recall != 1 {
		t.Fatalf("violin scores = %+v", v)
	}
	// Support-weighted: (2*0.5 + 2*1)/4.
	if math.Abs(a.Summary.Recall-0.75) > 1e-12 {
		t.Fatalf("weighted recall = %g, want 0.75", a.Summary.Recall)
	}

	rwc, err := Analyze(predictions, classes, "rwc")
	if err != nil {
		t.Fatalf("Analyze rwc: %v", err)
	}
	if rwc.Notes != 3 {
		t.Fatalf("rwc notes = %d, want 3", rwc.Notes)
	}
	if _, err := Analyze(predictions, classes, "philharmonia"); !errors.Is(err, dataset.ErrNoFeatures) {
		t.Fatalf("expected ErrNoFeatures for empty corpus, got %v", err)
	}
}

func TestAnalysisSaveLoad(t *testing.T) {
	classes := dataset.DefaultClassMap()
	a, err := Analyze([]Prediction{{Index: "a", TargetIndex: 0, PredictedIndex: 0, MeanLoss: 0.1}}, classes, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	a.SnapshotID = "best"
	path := filepath.Join(t.TempDir(), "model_best_analysis.yaml")
	if err := a.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadAnalysis(path)
	if err != nil {
		t.Fatalf("LoadAnalysis: %v", err)
	}
	if got.SnapshotID != "best" || got.Accuracy != 1 || len(got.Confusion) != classes.Size() {
		t.Fatalf("loaded analysis = %+v", got)
	}
}

func TestEvaluateAndPredictions(t *testing.T) {
	dir := t.TempDir()
	classes := dataset.DefaultClassMap()
	const bins, tLen = 3, 2

	index := dataset.Index{
		{Index: "n1", Dataset: "rwc", Instrument: "cello"},
		{Index: "n2", Dataset: "rwc", Instrument: "violin"},
	}
	var items []stream.Item
	for _, obs := range index {
		rec := features.Record{Index: obs.Index, Frames: 5, Bins: bins, Data: make([]float64, 5*bins)}
		for i := range rec.Data {
			rec.Data[i] = float64(i + 1)
		}
		path := filepath.Join(dir, obs.Index+features.Extension)
		if err := features.Save(path, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
		class, _ := classes.Index(obs.Instrument)
		items = append(items, stream.Item{Index: obs.Index, Class: class, Path: path})
	}

	m, err := model.New(model.SoftmaxName, model.Options{InputDim: bins * tLen, Classes: classes.Size(), LearningRate: 0.1})
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	cache, _ := stream.NewCache(4)
	results, err := Evaluate(context.Background(), m, items, Options{TLen: tLen, Workers: 2, Cache: cache})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 2 || results[0].Index != "n1" {
		t.Fatalf("results = %+v", results)
	}
	// An untrained model is uniform over the classes.
	loss, _ := Score(results)
	if want := math.Log(float64(classes.Size())); math.Abs(loss-want) > 1e-9 {
		t.Fatalf("mean loss = %g, want %g", loss, want)
	}

	predictions, err := Predictions(results, index, classes)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	path := filepath.Join(dir, "model_best_predictions.csv")
	if err := WritePredictions(path, predictions); err != nil {
		t.Fatalf("WritePredictions: %v", err)
	}
	read, err := ReadPredictions(path)
	if err != nil {
		t.Fatalf("ReadPredictions: %v", err)
	}
	if len(read) != 2 || read[1].Instrument != "violin" || read[1].Target != "violin" {
		t.Fatalf("predictions = %+v", read)
	}
	if _, err := ReadPredictions(filepath.Join(dir, "missing.csv")); !errors.Is(err, ErrNoPredictions) {
		t.Fatalf("expected ErrNoPredictions, got %v", err)
	}
}
