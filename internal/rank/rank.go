// Package rank turns a per-chunk score vector into the bounded, aggregated
// result returned by a search: global top-K, then a strict score threshold,
// then a per-project mean over the surviving chunks.
package rank

import (
	"math"
	"sort"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.4
)

// Options controls selection. Threshold is exclusive: a chunk scoring
// exactly Threshold is dropped.
type Options struct {
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
}

func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, Threshold: DefaultThreshold}
}

// Hit is a chunk position in the corpus and its similarity score.
type Hit struct {
	Index int
	Score float64
}

// ProjectScore is the mean score of a project's surviving chunks.
type ProjectScore struct {
	ID     int
	Score  float64
	Chunks int
}

// Result holds surviving chunks in top-K order and projects by descending score.
type Result struct {
	Chunks   []Hit
	Projects []ProjectScore
}

// Rank applies TopK, Filter and Aggregate in that order. projectOf maps a
// chunk index to its project id.
func Rank(scores []float64, projectOf func(int) int, opt Options) Result {
	hits := Filter(TopK(scores, opt.TopK), opt.Threshold)
	return Result{
		Chunks:   hits,
		Projects: Aggregate(hits, projectOf),
	}
}

// TopK returns the k best scores in descending order. Equal scores keep
// corpus order and NaN sorts after every number.
func TopK(scores []float64, k int) []Hit {
	if k <= 0 || len(scores) == 0 {
		return []Hit{}
	}

	hits := make([]Hit, len(scores))
	for i, s := range scores {
		hits[i] = Hit{Index: i, Score: s}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return greater(hits[i].Score, hits[j].Score)
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k:k]
}

// Filter keeps hits whose score strictly exceeds threshold, preserving order.
func Filter(hits []Hit, threshold float64) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score > threshold {
			out = append(out, h)
		}
	}
	return out
}

// Aggregate groups hits by project and averages their scores. Projects are
// ordered by descending mean; ties keep the order in which each project was
// first seen in hits.
func Aggregate(hits []Hit, projectOf func(int) int) []ProjectScore {
	out := make([]ProjectScore, 0, len(hits))
	pos := make(map[int]int, len(hits))
	sums := make([]float64, 0, len(hits))

	for _, h := range hits {
		id := projectOf(h.Index)
		i, ok := pos[id]
		if !ok {
			i = len(out)
			pos[id] = i
			out = append(out, ProjectScore{ID: id})
			sums = append(sums, 0)
		}
		sums[i] += h.Score
		out[i].Chunks++
	}
	for i := range out {
		out[i].Score = sums[i] / float64(out[i].Chunks)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return greater(out[i].Score, out[j].Score)
	})
	return out
}

// greater orders numbers descending with NaN last.
func greater(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a > b
}
