package dataset

import (
	"math/rand"
	"sort"
)

// CorpusCount is the number of notes of one instrument class in one corpus.
type CorpusCount struct {
	Class  string
	Corpus string
	Count  int
}

// Summary describes an index for the stats command.
type Summary struct {
	Total     int
	Unmapped  int
	PerCorpus map[string]int
	PerClass  []CorpusCount
}

// Stats counts notes per corpus and per class and corpus.
func Stats(index Index, classes *ClassMap) Summary {
	summary := Summary{Total: len(index), PerCorpus: map[string]int{}}
	counts := map[[2]string]int{}
	for _, obs := range index {
		summary.PerCorpus[obs.Dataset]++
		class, ok := classes.Lookup(obs.Instrument)
		if !ok {
			summary.Unmapped++
			continue
		}
		counts[[2]string{class, obs.Dataset}]++
	}
	for key, n := range counts {
		summary.PerClass = append(summary.PerClass, CorpusCount{Class: key[0], Corpus: key[1], Count: n})
	}
	sort.Slice(summary.PerClass, func(i, j int) bool {
		a, b := summary.PerClass[i], summary.PerClass[j]
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		return a.Corpus < b.Corpus
	})
	return summary
}

// Mapped drops observations whose instrument is not in the class map and
// returns them separately.
func Mapped(index Index, classes *ClassMap) (kept, dropped Index) {
	for _, obs := range index {
		if _, ok := classes.Lookup(obs.Instrument); ok {
			kept = append(kept, obs)
		} else {
			dropped = append(dropped, obs)
		}
	}
	return kept, dropped
}

// LimitPerClass keeps at most n observations of each class, chosen with a
// seeded shuffle. Order of the kept observations follows the input. n <= 0
// keeps everything.
func LimitPerClass(index Index, classes *ClassMap, n int, seed int64) Index {
	if n <= 0 {
		return index
	}
	rng := rand.New(rand.NewSource(seed))
	order := rng.Perm(len(index))
	taken := map[string]int{}
	keep := make([]bool, len(index))
	for _, i := range order {
		class, ok := classes.Lookup(index[i].Instrument)
		if !ok {
			continue
		}
		if taken[class] < n {
			taken[class]++
			keep[i] = true
		}
	}
	out := make(Index, 0, len(index))
	for i, obs := range index {
		if keep[i] {
			out = append(out, obs)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
