// Package classify groups node values into ordered severity classes using
// Jenks natural breaks.
package classify

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

// DefaultClasses is the number of severity classes written to features.
const DefaultClasses = 3

// minPoints is the fewest distinct nodes that will be classified.
const minPoints = 3

// Result is the outcome of one classification.
type Result struct {
	// Classes maps node ID to a class index in [1, len(Breaks)-1].
	Classes map[string]int
	// Breaks holds class bounds; class i spans Breaks[i-1]..Breaks[i].
	Breaks []float64
	// GVF is the goodness of variance fit in [0, 1]; 1 is a perfect fit.
	GVF float64
	// Skipped is set when there were too few points to classify.
	Skipped bool
}

// Ranges formats each class span as "lo—hi" with three decimals.
func (r Result) Ranges() []string {
	return FormatRanges(r.Breaks)
}

// FormatRanges formats consecutive break pairs as closed-interval labels.
func FormatRanges(breaks []float64) []string {
	if len(breaks) < 2 {
		return nil
	}
	out := make([]string, 0, len(breaks)-1)
	for i := 0; i < len(breaks)-1; i++ {
		out = append(out, fmt.Sprintf("%.3f—%.3f", breaks[i], breaks[i+1]))
	}
	return out
}

// Classify computes natural breaks over the values and assigns every node a
// class. Fewer than three nodes, or fewer nodes than classes, yields an
// empty, skipped result.
func Classify(values *domain.NodeValues, numClasses int) (Result, error) {
	if numClasses < 2 {
		return Result{}, fmt.Errorf("classify: need at least 2 classes, got %d", numClasses)
	}
	if values.Len() < max(minPoints, numClasses) {
		return Result{Classes: map[string]int{}, Breaks: []float64{}, Skipped: true}, nil
	}

	vals := values.Values()
	breaks, sdcm := Breaks(vals, numClasses)

	classes := make(map[string]int, values.Len())
	for _, id := range values.IDs() {
		v, _ := values.Get(id)
		classes[id] = ClassOf(v, breaks)
	}

	return Result{
		Classes: classes,
		Breaks:  breaks,
		GVF:     goodnessOfFit(vals, sdcm),
	}, nil
}

// ClassOf returns the smallest i >= 1 with v <= breaks[i]. Values on a break
// fall into the lower class. Values above the last break get the top class.
func ClassOf(v float64, breaks []float64) int {
	for i := 1; i < len(breaks); i++ {
		if v <= breaks[i] {
			return i
		}
	}
	return len(breaks) - 1
}

// Breaks returns numClasses+1 bounds partitioning values with minimum total
// within-class squared deviation, and that minimum. The first bound is the
// minimum value and each later bound is the largest value of its class.
// len(values) must be at least numClasses.
func Breaks(values []float64, numClasses int) ([]float64, float64) {
	data := make([]float64, len(values))
	copy(data, values)
	sort.Float64s(data)

	n, k := len(data), numClasses

	// lower[l][j] is the 1-based index of the first value of the last class
	// in the best split of data[:l] into j classes; cost[l][j] is its
	// squared deviation sum.
	lower := make([][]int, n+1)
	cost := make([][]float64, n+1)
	for i := range lower {
		lower[i] = make([]int, k+1)
		cost[i] = make([]float64, k+1)
	}
	for j := 1; j <= k; j++ {
		lower[1][j] = 1
		for i := 2; i <= n; i++ {
			cost[i][j] = math.Inf(1)
		}
	}

	for l := 2; l <= n; l++ {
		var sum, sumSq, w, ssd float64
		for m := 1; m <= l; m++ {
			first := l - m + 1
			v := data[first-1]
			sum += v
			sumSq += v * v
			w++
			ssd = math.Max(sumSq-sum*sum/w, 0)

			prev := first - 1
			if prev == 0 {
				continue
			}
			// Earlier classes need at least one value each.
			for j := 2; j <= k && j-1 <= prev; j++ {
				if c := ssd + cost[prev][j-1]; c < cost[l][j] {
					lower[l][j] = first
					cost[l][j] = c
				}
			}
		}
		lower[l][1] = 1
		cost[l][1] = ssd
	}

	breaks := make([]float64, k+1)
	breaks[0] = data[0]
	breaks[k] = data[n-1]
	idx := n
	for j := k; j >= 2; j-- {
		first := lower[idx][j]
		breaks[j-1] = data[first-2]
		idx = first - 1
	}
	return breaks, cost[n][k]
}

// goodnessOfFit is 1 - SDCM/SDAM: the share of total variance explained by
// the classes.
func goodnessOfFit(values []float64, sdcm float64) float64 {
	mean := stat.Mean(values, nil)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = (v - mean) * (v - mean)
	}
	sdam := floats.Sum(dev)
	if sdam == 0 {
		return 1
	}
	return 1 - sdcm/sdam
}
