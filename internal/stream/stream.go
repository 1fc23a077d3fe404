// Package stream turns feature archives into fixed-size model inputs: random
// training batches and every window of a note for inference.
package stream

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"hcnn/internal/dataset"
	"hcnn/internal/features"
	"hcnn/internal/model"
)

// logFloor keeps silent bins finite after the log.
const logFloor = 1e-4

// Item is one labelled note with a feature archive.
type Item struct {
	Index string
	Class int
	Path  string
}

// Items pairs each observation with its class index. Observations whose
// instrument is not in the class map or that have no feature archive are
// returned in dropped.
func Items(index dataset.Index, classes *dataset.ClassMap) (items []Item, dropped dataset.Index) {
	for _, obs := range index {
		class, ok := classes.Index(obs.Instrument)
		path, hasFeature := obs.FeatureFile()
		if !ok || !hasFeature {
			dropped = append(dropped, obs)
			continue
		}
		items = append(items, Item{Index: obs.Index, Class: class, Path: path})
	}
	return items, dropped
}

// Cache holds decoded feature records keyed by path.
type Cache struct {
	lru *lru.Cache
}

// NewCache returns a cache of at most size records. size <= 0 disables caching.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return &Cache{}, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("feature cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Load returns the record at path, reading it on a miss.
func (c *Cache) Load(path string) (features.Record, error) {
	if c != nil && c.lru != nil {
		if v, ok := c.lru.Get(path); ok {
			return v.(features.Record), nil
		}
	}
	rec, err := features.Load(path)
	if err != nil {
		return features.Record{}, err
	}
	if c != nil && c.lru != nil {
		c.lru.Add(path, rec)
	}
	return rec, nil
}

// Window returns tLen frames of rec starting at start, log compressed and
// standardized to zero mean and unit variance. Frames past the end of the
// record are silence.
func Window(rec features.Record, start, tLen int) []float64 {
	out := make([]float64, tLen*rec.Bins)
	silence := math.Log(logFloor)
	for f := 0; f < tLen; f++ {
		row := out[f*rec.Bins : (f+1)*rec.Bins]
		src := start + f
		if src < 0 || src >= rec.Frames {
			for i := range row {
				row[i] = silence
			}
			continue
		}
		for i, v := range rec.Frame(src) {
			row[i] = math.Log(v + logFloor)
		}
	}
	mean, std := stat.MeanStdDev(out, nil)
	for i, v := range out {
		if std > 0 {
			out[i] = (v - mean) / std
		} else {
			out[i] = 0
		}
	}
	return out
}

// Windows returns every non-overlapping window of rec as matrix rows. A record
// shorter than tLen yields one padded window.
func Windows(rec features.Record, tLen int) *mat.Dense {
	n := rec.Frames / tLen
	if n < 1 {
		n = 1
	}
	out := mat.NewDense(n, tLen*rec.Bins, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, Window(rec, i*tLen, tLen))
	}
	return out
}

// Sampler draws random training batches.
type Sampler struct {
	items []Item
	tLen  int
	bins  int
	batch int
	cache *Cache

	mu  sync.Mutex
	rng *rand.Rand
}

// Options configures a Sampler.
type Options struct {
	TLen      int
	Bins      int
	BatchSize int
	Seed      int64
	Cache     *Cache
}

// NewSampler validates opts and returns a sampler over items.
func NewSampler(items []Item, opts Options) (*Sampler, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: training set is empty", dataset.ErrNoFeatures)
	}
	if opts.TLen <= 0 || opts.Bins <= 0 || opts.BatchSize <= 0 {
		return nil, fmt.Errorf("sampler: t_len, bins and batch size must be positive")
	}
	return &Sampler{
		items: items,
		tLen:  opts.TLen,
		bins:  opts.Bins,
		batch: opts.BatchSize,
		cache: opts.Cache,
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// InputDim is the flattened window width.
func (s *Sampler) InputDim() int { return s.tLen * s.bins }

// Next draws BatchSize windows, each from a uniformly chosen note at a
// uniformly chosen offset.
func (s *Sampler) Next(ctx context.Context) (model.Batch, error) {
	x := mat.NewDense(s.batch, s.InputDim(), nil)
	y := make([]int, s.batch)
	for i := 0; i < s.batch; i++ {
		if err := ctx.Err(); err != nil {
			return model.Batch{}, err
		}
		s.mu.Lock()
		item := s.items[s.rng.Intn(len(s.items))]
		s.mu.Unlock()

		rec, err := s.cache.Load(item.Path)
		if err != nil {
			return model.Batch{}, fmt.Errorf("load features for %s: %w", item.Index, err)
		}
		if rec.Bins != s.bins {
			return model.Batch{}, fmt.Errorf("%w: %s has %d bins, want %d (re-run extract_features)",
				dataset.ErrNoFeatures, item.Index, rec.Bins, s.bins)
		}
		start := 0
		if span := rec.Frames - s.tLen; span > 0 {
			s.mu.Lock()
			start = s.rng.Intn(span + 1)
			s.mu.Unlock()
		}
		x.SetRow(i, Window(rec, start, s.tLen))
		y[i] = item.Class
	}
	return model.Batch{X: x, Y: y}, nil
}
