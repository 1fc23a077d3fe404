// Package evaluate scores trained snapshots: it runs a model over every
// window of each note, averages the window probabilities into one prediction
// per note, picks the best snapshot on the validation set, and summarizes
// predictions into an analysis report.
package evaluate
