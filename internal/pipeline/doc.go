// Package pipeline runs the experiment stages.
//
// A Driver holds one resolved configuration and the selected dataset profile
// and exposes each stage as a method: ExtractFeatures, Train, ModelSelection,
// Predict, Analyze, plus the composite FitAndPredict and the read-only
// Status and Stats. Every stage call is logged with a fresh run id and its
// stage name; errors are returned to the caller unchanged in kind so they can
// be matched with errors.Is against the faults markers.
package pipeline
