// internal/risk/train.go
package risk

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"welfare-caseworker/internal/models"
)

var ErrNotEnoughSamples = errors.New("NOT_ENOUGH_SAMPLES")

// TrainOptions configures the bagged CART forests.
type TrainOptions struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	TestSplit       float64
	Seed            int64

	// OnTree is called after each tree (classifier and regressor) is grown.
	OnTree func()
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Trees:           100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		TestSplit:       0.2,
		Seed:            42,
	}
}

// Train fits a classifier forest on risk_level and a regressor forest on risk_score,
// then scores both on a held-out split.
func Train(samples []Sample, opts TrainOptions) (*Bundle, error) {
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	if opts.MinSamplesLeaf < 1 {
		opts.MinSamplesLeaf = 1
	}
	if opts.TestSplit < 0 || opts.TestSplit >= 1 {
		return nil, fmt.Errorf("test split must be in [0,1), got %v", opts.TestSplit)
	}
	if len(samples) < 10 {
		return nil, fmt.Errorf("%w: need at least 10, got %d", ErrNotEnoughSamples, len(samples))
	}

	encoding := schemeEncoding()
	classes := []string{string(models.RiskHigh), string(models.RiskLow), string(models.RiskMedium)}
	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	X := make([][]float64, len(samples))
	yClass := make([]int, len(samples))
	yScore := make([]float64, len(samples))
	for i, s := range samples {
		idx, ok := encoding[string(s.SchemeType)]
		if !ok {
			return nil, fmt.Errorf("%w: sample %s has scheme %q", ErrUnknownScheme, s.CitizenID, s.SchemeType)
		}
		X[i] = featureVector(s.Income, s.LastDocumentUpdateMonths, idx, s.PastBenefitInterruptions)
		yClass[i] = classIndex[string(s.RiskLevel)]
		yScore[i] = s.RiskScore
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := rng.Perm(len(samples))
	nTest := int(float64(len(samples)) * opts.TestSplit)
	testIdx, trainIdx := order[:nTest], order[nTest:]

	b := &Bundle{
		Version:            BundleVersion,
		FeatureNames:       append([]string(nil), FeatureNames...),
		SchemeEncoding:     encoding,
		Classes:            classes,
		FeatureImportances: make([]float64, len(FeatureNames)),
		TrainedAt:          time.Now().UTC(),
	}

	for t := 0; t < opts.Trees; t++ {
		g := &grower{X: X, yClass: yClass, nClasses: len(classes), opts: opts}
		g.grow(bootstrap(rng, trainIdx), 0)
		b.Classifier.Trees = append(b.Classifier.Trees, Tree{Nodes: g.nodes})
		for f, v := range normalize(g.importances()) {
			b.FeatureImportances[f] += v
		}
		if opts.OnTree != nil {
			opts.OnTree()
		}
	}
	for t := 0; t < opts.Trees; t++ {
		g := &grower{X: X, yScore: yScore, regression: true, opts: opts}
		g.grow(bootstrap(rng, trainIdx), 0)
		b.Regressor.Trees = append(b.Regressor.Trees, Tree{Nodes: g.nodes})
		if opts.OnTree != nil {
			opts.OnTree()
		}
	}
	b.FeatureImportances = normalize(b.FeatureImportances)

	evalIdx := testIdx
	if len(evalIdx) == 0 {
		evalIdx = trainIdx
	}
	b.Metrics = evaluate(b, X, yClass, yScore, evalIdx)
	b.Metrics.TrainSamples = len(trainIdx)
	b.Metrics.TestSamples = len(testIdx)
	return b, nil
}

// Evaluate scores an existing bundle against labelled samples.
func Evaluate(b *Bundle, samples []Sample) (*Metrics, error) {
	X := make([][]float64, len(samples))
	yClass := make([]int, len(samples))
	yScore := make([]float64, len(samples))
	idx := make([]int, len(samples))
	for i, s := range samples {
		enc, ok := b.SchemeEncoding[string(s.SchemeType)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, s.SchemeType)
		}
		X[i] = featureVector(s.Income, s.LastDocumentUpdateMonths, enc, s.PastBenefitInterruptions)
		yClass[i] = -1
		for ci, c := range b.Classes {
			if c == string(s.RiskLevel) {
				yClass[i] = ci
			}
		}
		yScore[i] = s.RiskScore
		idx[i] = i
	}
	m := evaluate(b, X, yClass, yScore, idx)
	m.TestSamples = len(samples)
	return m, nil
}

func evaluate(b *Bundle, X [][]float64, yClass []int, yScore []float64, idx []int) *Metrics {
	if len(idx) == 0 {
		return &Metrics{}
	}
	var correct int
	var sq float64
	for _, i := range idx {
		level, _ := b.classify(X[i])
		if yClass[i] >= 0 && level == b.Classes[yClass[i]] {
			correct++
		}
		d := clamp(b.regress(X[i]), 0, 100) - yScore[i]
		sq += d * d
	}
	return &Metrics{
		Accuracy: float64(correct) / float64(len(idx)),
		RMSE:     math.Sqrt(sq / float64(len(idx))),
	}
}

// schemeEncoding assigns indices in alphabetical order of scheme name.
func schemeEncoding() map[string]int {
	names := make([]string, 0, len(models.SchemeTypes))
	for _, s := range models.SchemeTypes {
		names = append(names, string(s))
	}
	sort.Strings(names)
	enc := make(map[string]int, len(names))
	for i, n := range names {
		enc[n] = i
	}
	return enc
}

func bootstrap(rng *rand.Rand, idx []int) []int {
	out := make([]int, len(idx))
	for i := range out {
		out[i] = idx[rng.Intn(len(idx))]
	}
	return out
}

func normalize(v []float64) []float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	out := make([]float64, len(v))
	if total == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}

// grower builds one CART tree, Gini for classification and variance for regression.
type grower struct {
	X          [][]float64
	yClass     []int
	yScore     []float64
	nClasses   int
	regression bool
	opts       TrainOptions

	nodes []Node
	gains []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (g *grower) importances() []float64 {
	if g.gains == nil {
		return make([]float64, len(FeatureNames))
	}
	return g.gains
}

func (g *grower) grow(idx []int, depth int) int {
	if g.gains == nil {
		g.gains = make([]float64, len(FeatureNames))
	}
	self := len(g.nodes)
	g.nodes = append(g.nodes, Node{Feature: -1})

	impurity := g.impurity(idx)
	if depth >= g.opts.MaxDepth || len(idx) < g.opts.MinSamplesSplit || impurity <= 1e-12 {
		g.nodes[self].Value = g.leafValue(idx)
		return self
	}

	best, ok := g.bestSplit(idx, impurity)
	if !ok {
		g.nodes[self].Value = g.leafValue(idx)
		return self
	}

	var left, right []int
	for _, i := range idx {
		if g.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	g.gains[best.feature] += best.gain

	g.nodes[self].Feature = best.feature
	g.nodes[self].Threshold = best.threshold
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[self].Left = l
	g.nodes[self].Right = r
	return self
}

func (g *grower) bestSplit(idx []int, parentImpurity float64) (split, bool) {
	n := len(idx)
	best := split{gain: 1e-12}
	found := false
	sorted := make([]int, n)

	for f := range FeatureNames {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return g.X[sorted[a]][f] < g.X[sorted[b]][f] })

		acc := g.newAccumulator(sorted)
		for pos := 0; pos < n-1; pos++ {
			acc.move(sorted[pos])
			nl, nr := pos+1, n-pos-1
			if nl < g.opts.MinSamplesLeaf || nr < g.opts.MinSamplesLeaf {
				continue
			}
			lo, hi := g.X[sorted[pos]][f], g.X[sorted[pos+1]][f]
			if lo == hi {
				continue
			}
			gain := float64(n)*parentImpurity - float64(nl)*acc.leftImpurity() - float64(nr)*acc.rightImpurity()
			if gain > best.gain {
				threshold := (lo + hi) / 2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func (g *grower) impurity(idx []int) float64 {
	acc := g.newAccumulator(idx)
	return acc.rightImpurity()
}

func (g *grower) leafValue(idx []int) []float64 {
	if g.regression {
		var sum float64
		for _, i := range idx {
			sum += g.yScore[i]
		}
		return []float64{sum / float64(len(idx))}
	}
	counts := make([]float64, g.nClasses)
	for _, i := range idx {
		counts[g.yClass[i]]++
	}
	for c := range counts {
		counts[c] /= float64(len(idx))
	}
	return counts
}

// accumulator tracks left/right statistics while sweeping a sorted index.
// Everything starts on the right; move shifts one sample to the left.
type accumulator struct {
	g *grower

	nLeft, nRight         int
	countLeft, countRight []float64
	sumLeft, sumRight     float64
	sqLeft, sqRight       float64
}

func (g *grower) newAccumulator(idx []int) *accumulator {
	a := &accumulator{g: g, nRight: len(idx)}
	if g.regression {
		for _, i := range idx {
			a.sumRight += g.yScore[i]
			a.sqRight += g.yScore[i] * g.yScore[i]
		}
		return a
	}
	a.countLeft = make([]float64, g.nClasses)
	a.countRight = make([]float64, g.nClasses)
	for _, i := range idx {
		a.countRight[g.yClass[i]]++
	}
	return a
}

func (a *accumulator) move(i int) {
	a.nLeft++
	a.nRight--
	if a.g.regression {
		y := a.g.yScore[i]
		a.sumLeft += y
		a.sqLeft += y * y
		a.sumRight -= y
		a.sqRight -= y * y
		return
	}
	c := a.g.yClass[i]
	a.countLeft[c]++
	a.countRight[c]--
}

func (a *accumulator) leftImpurity() float64 {
	if a.g.regression {
		return variance(a.nLeft, a.sumLeft, a.sqLeft)
	}
	return gini(a.nLeft, a.countLeft)
}

func (a *accumulator) rightImpurity() float64 {
	if a.g.regression {
		return variance(a.nRight, a.sumRight, a.sqRight)
	}
	return gini(a.nRight, a.countRight)
}

func gini(n int, counts []float64) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / float64(n)
		impurity -= p * p
	}
	return impurity
}

func variance(n int, sum, sq float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	v := sq/float64(n) - mean*mean
	if v < 0 {
		return 0
	}
	return v
}
