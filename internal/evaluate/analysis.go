package evaluate

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"hcnn/internal/dataset"
)

// ClassScore holds the one-vs-rest scores of a class.
type ClassScore struct {
	Class     string  `yaml:"class"`
	Precision float64 `yaml:"precision"`
	Recall    float64 `yaml:"recall"`
	F1        float64 `yaml:"f1score"`
	Support   int     `yaml:"support"`
}

// Summary holds support-weighted averages of the class scores.
type Summary struct {
	Precision float64 `yaml:"precision"`
	Recall    float64 `yaml:"recall"`
	F1        float64 `yaml:"f1score"`
}

// Analysis is the report written by the analyze stage.
type Analysis struct {
	SnapshotID string       `yaml:"snapshot"`
	Corpus     string       `yaml:"corpus,omitempty"`
	Notes      int          `yaml:"notes"`
	Accuracy   float64      `yaml:"accuracy"`
	MeanLoss   float64      `yaml:"mean_loss"`
	Classes    []string     `yaml:"classes"`
	Confusion  [][]int      `yaml:"confusion_matrix"`
	PerClass   []ClassScore `yaml:"class_scores"`
	Summary    Summary      `yaml:"summary_scores"`
}

// Analyze summarizes predictions. Rows and columns of the confusion matrix
// follow the class map order; rows are targets and columns predictions. A
// non-empty corpus restricts the analysis to notes from that corpus.
func Analyze(predictions []Prediction, classes *dataset.ClassMap, corpus string) (Analysis, error) {
	n := classes.Size()
	out := Analysis{
		Corpus:    corpus,
		Classes:   classes.Classes(),
		Confusion: make([][]int, n),
	}
	for i := range out.Confusion {
		out.Confusion[i] = make([]int, n)
	}

	var correct int
	var lossSum float64
	for _, p := range predictions {
		if corpus != "" && p.Dataset != corpus {
			continue
		}
		if p.TargetIndex < 0 || p.TargetIndex >= n || p.PredictedIndex < 0 || p.PredictedIndex >= n {
			return Analysis{}, fmt.Errorf("prediction %s: class index outside the class map", p.Index)
		}
		out.Confusion[p.TargetIndex][p.PredictedIndex]++
		out.Notes++
		lossSum += p.MeanLoss
		if p.Correct() {
			correct++
		}
	}
	if out.Notes == 0 {
		return Analysis{}, fmt.Errorf("%w: no predictions to analyze", dataset.ErrNoFeatures)
	}
	out.Accuracy = float64(correct) / float64(out.Notes)
	out.MeanLoss = lossSum / float64(out.Notes)

	precision := make([]float64, n)
	recall := make([]float64, n)
	f1 := make([]float64, n)
	support := make([]float64, n)
	for k := 0; k < n; k++ {
		var predicted, actual int
		for j := 0; j < n; j++ {
			predicted += out.Confusion[j][k]
			actual += out.Confusion[k][j]
		}
		tp := float64(out.Confusion[k][k])
		precision[k] = ratio(tp, float64(predicted))
		recall[k] = ratio(tp, float64(actual))
		f1[k] = ratio(2*precision[k]*recall[k], precision[k]+recall[k])
		support[k] = float64(actual)
		out.PerClass = append(out.PerClass, ClassScore{
			Class:     out.Classes[k],
			Precision: precision[k],
			Recall:    recall[k],
			F1:        f1[k],
			Support:   actual,
		})
	}
	out.Summary = Summary{
		Precision: stat.Mean(precision, support),
		Recall:    stat.Mean(recall, support),
		F1:        stat.Mean(f1, support),
	}
	return out, nil
}

// Save writes the analysis as YAML, replacing path atomically.
func (a Analysis) Save(path string) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename analysis: %w", err)
	}
	return nil
}

// LoadAnalysis reads an analysis report.
func LoadAnalysis(path string) (Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("read analysis: %w", err)
	}
	var a Analysis
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Analysis{}, fmt.Errorf("parse analysis %s: %w", path, err)
	}
	return a, nil
}

// ratio is num/den with 0/0 defined as 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
