package features

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"hcnn/internal/archive"
	"hcnn/internal/audio"
	"hcnn/internal/config"
	"hcnn/internal/cqt"
	"hcnn/internal/dataset"
	"hcnn/internal/logging"
	"hcnn/internal/parallel"
)

// Summary reports the outcome of one extraction pass.
type Summary struct {
	Total     int
	Extracted int
	Skipped   int
	Failed    int
	IndexPath string
	Elapsed   time.Duration
}

// ProgressFunc is called after each note completes.
type ProgressFunc func(done, total int)

// Extractor computes CQT archives for a notes index.
type Extractor struct {
	dir          string
	skipExisting bool
	workers      int
	transform    *cqt.Transform
	logger       *slog.Logger
	progress     ProgressFunc
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeExtracted
	outcomeSkipped
)

// NewExtractor builds an extractor from the features.cqt section.
func NewExtractor(cfg *config.Config, logger *slog.Logger) (*Extractor, error) {
	transform, err := cqt.New(cqt.ParamsFromConfig(cfg.Features.CQT))
	if err != nil {
		return nil, fmt.Errorf("build cqt: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		dir:          cfg.Paths.FeatureDir,
		skipExisting: cfg.Features.CQT.SkipExisting,
		workers:      parallel.Workers(cfg.Features.CQT.NumCPUs),
		transform:    transform,
		logger:       logger,
	}, nil
}

// OnProgress registers a progress callback. It may be called concurrently.
func (e *Extractor) OnProgress(fn ProgressFunc) { e.progress = fn }

// Workers reports the fan-out width.
func (e *Extractor) Workers() int { return e.workers }

// Run extracts every note of index and writes the features index to the
// feature directory under the base name of notesIndexPath.
func (e *Extractor) Run(ctx context.Context, index dataset.Index, notesIndexPath string) (Summary, error) {
	started := time.Now()
	summary := Summary{
		Total:     len(index),
		IndexPath: filepath.Join(e.dir, filepath.Base(notesIndexPath)),
	}
	if filepath.Clean(summary.IndexPath) == filepath.Clean(notesIndexPath) {
		return summary, fmt.Errorf("features index %s would overwrite the notes index", summary.IndexPath)
	}

	outcomes := make([]outcome, len(index))
	paths := make([]string, len(index))
	sampler := logging.NewProgressSampler(10)
	var samplerMu sync.Mutex
	var done atomic.Int64

	err := parallel.ForEach(ctx, len(index), e.workers, func(ctx context.Context, i int) {
		obs := index[i]
		path, result, err := e.extractOne(obs)
		paths[i], outcomes[i] = path, result
		if err != nil {
			logging.WarnWithContext(e.logger, "feature extraction failed; note skipped", "note_skipped",
				logging.NoteID(obs.Index),
				logging.String("audio_file", obs.AudioFile),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the audio file is a readable WAV"),
				logging.String(logging.FieldImpact, "note excluded from the features index"),
			)
		}

		n := int(done.Add(1))
		if e.progress != nil {
			e.progress(n, len(index))
		}
		samplerMu.Lock()
		emit := sampler.ShouldLog(n, len(index))
		samplerMu.Unlock()
		if emit {
			e.logger.Info("extraction progress",
				logging.Int("done", n),
				logging.Int("total", len(index)),
			)
		}
	})
	if err != nil {
		summary.Elapsed = time.Since(started)
		return summary, err
	}

	out := make(dataset.Index, 0, len(index))
	for i, obs := range index {
		switch outcomes[i] {
		case outcomeExtracted:
			summary.Extracted++
		case outcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			continue
		}
		out = append(out, withFeature(obs, paths[i]))
	}
	if err := out.Save(summary.IndexPath); err != nil {
		summary.Elapsed = time.Since(started)
		return summary, err
	}
	summary.Elapsed = time.Since(started)
	return summary, nil
}

func (e *Extractor) extractOne(obs dataset.Observation) (string, outcome, error) {
	path, err := Path(e.dir, obs.Index)
	if err != nil {
		return "", outcomeFailed, err
	}
	params := e.transform.Params()
	if e.skipExisting && archive.Exists(path) {
		rec, err := Load(path)
		if err == nil && rec.Params == params {
			e.logger.Debug("feature archive exists; skipping", logging.NoteID(obs.Index))
			return path, outcomeSkipped, nil
		}
		e.logger.Info("feature archive is stale; re-extracting",
			logging.NoteID(obs.Index),
			logging.String("reason", staleReason(rec.Params, params, err)),
		)
	}

	signal, err := audio.ReadWAV(obs.AudioFile)
	if err != nil {
		return path, outcomeFailed, err
	}
	signal = clip(signal, obs.StartTime, obs.Duration)
	signal = audio.Resample(signal, params.SampleRate)
	spec := e.transform.Compute(signal.Samples)
	if err := Save(path, fromSpectrogram(obs.Index, params, spec)); err != nil {
		return path, outcomeFailed, err
	}
	return path, outcomeExtracted, nil
}

func staleReason(stored, current cqt.Params, loadErr error) string {
	if loadErr != nil {
		return loadErr.Error()
	}
	return fmt.Sprintf("stored cqt params %+v differ from %+v", stored, current)
}

// clip restricts s to [start, start+duration) seconds. A zero duration keeps
// everything after start.
func clip(s audio.Signal, start, duration float64) audio.Signal {
	if start <= 0 && duration <= 0 {
		return s
	}
	from := int(start * s.SampleRate)
	if from < 0 {
		from = 0
	}
	if from > len(s.Samples) {
		from = len(s.Samples)
	}
	to := len(s.Samples)
	if duration > 0 {
		if end := from + int(duration*s.SampleRate); end < to {
			to = end
		}
	}
	return audio.Signal{Samples: s.Samples[from:to], SampleRate: s.SampleRate}
}

func withFeature(obs dataset.Observation, path string) dataset.Observation {
	features := make(map[string]string, len(obs.Features)+1)
	for k, v := range obs.Features {
		features[k] = v
	}
	features[dataset.FeatureCQT] = path
	obs.Features = features
	return obs
}
