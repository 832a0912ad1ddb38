// Package crossk estimates the bivariate (cross) Ripley K function between
// two point patterns in a rectangular window.
package crossk

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/irs-iip/internal/model"
)

// Variant names an estimator.
type Variant string

// Estimators, in output order.
const (
	Isotropic   Variant = "iso"
	Translation Variant = "trans"
	Border      Variant = "border"
	Theoretical Variant = "theo"
)

// Variants lists every estimator in output order.
var Variants = []Variant{Isotropic, Translation, Border, Theoretical}

// Defaults for Options.
const (
	DefaultSteps        = 128
	DefaultRMaxFraction = 0.2
	// maxWeight caps edge-correction weights for pairs near the window edge.
	maxWeight = 100.0
)

// Options control the distance grid.
type Options struct {
	// Steps is the number of distances evaluated, including 0.
	Steps int
	// RMaxFraction sets the largest distance as a fraction of the longer
	// window side. Ignored when RMax is set.
	RMaxFraction float64
	// RMax is an explicit largest distance.
	RMax float64
}

func (o Options) withDefaults() Options {
	if o.Steps < 2 {
		o.Steps = DefaultSteps
	}
	if o.RMaxFraction <= 0 {
		o.RMaxFraction = DefaultRMaxFraction
	}
	return o
}

// Sample is one estimated curve: K[i] is the estimate at distance R[i].
type Sample struct {
	Variant Variant   `json:"variant"`
	R       []float64 `json:"r"`
	K       []float64 `json:"k"`
}

// Result holds every curve for one estimate.
type Result struct {
	Window  Window   `json:"window"`
	NA      int      `json:"n_a"`
	NB      int      `json:"n_b"`
	Dropped int      `json:"dropped"`
	Samples []Sample `json:"samples"`
}

// Sample returns the curve for v, or nil.
func (r *Result) Sample(v Variant) *Sample {
	for i := range r.Samples {
		if r.Samples[i].Variant == v {
			return &r.Samples[i]
		}
	}
	return nil
}

// pair is one (a, b) pair within the largest distance.
type pair struct {
	d     float64
	iso   float64
	trans float64
}

// Estimate computes K_ab(r) with a as the reference pattern and b as the
// counted pattern. Points outside w are dropped with a warning.
func Estimate(ctx context.Context, a, b []model.Point, w Window, opts Options) (*Result, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "crossk"))

	inA, dropA := clip(a, w)
	inB, dropB := clip(b, w)
	if dropA+dropB > 0 {
		log.Warn("crossk: dropped points outside window",
			zap.Int("reference_dropped", dropA),
			zap.Int("counted_dropped", dropB),
		)
	}
	if len(inA) == 0 {
		return nil, &EmptyPointSetError{Set: "reference"}
	}
	if len(inB) == 0 {
		return nil, &EmptyPointSetError{Set: "counted"}
	}

	rmax := opts.RMax
	if rmax <= 0 {
		rmax = opts.RMaxFraction * math.Max(w.Width(), w.Height())
	}
	r := make([]float64, opts.Steps)
	for i := range r {
		r[i] = rmax * float64(i) / float64(opts.Steps-1)
	}

	// Pair distances and weights are shared read-only by every estimator.
	pairs, perRef := collectPairs(inA, inB, w, rmax)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "crossk: estimate cancelled")
	}

	scale := w.Area() / (float64(len(inA)) * float64(len(inB)))
	res := &Result{
		Window:  w,
		NA:      len(inA),
		NB:      len(inB),
		Dropped: dropA + dropB,
		Samples: make([]Sample, len(Variants)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		k, err := weightedCurve(gctx, pairs, r, scale, func(p pair) float64 { return p.iso })
		res.Samples[0] = Sample{Variant: Isotropic, R: r, K: k}
		return err
	})
	g.Go(func() error {
		k, err := weightedCurve(gctx, pairs, r, scale, func(p pair) float64 { return p.trans })
		res.Samples[1] = Sample{Variant: Translation, R: r, K: k}
		return err
	})
	g.Go(func() error {
		k, err := borderCurve(gctx, inA, perRef, w, r, len(inB))
		res.Samples[2] = Sample{Variant: Border, R: r, K: k}
		return err
	})
	g.Go(func() error {
		res.Samples[3] = Sample{Variant: Theoretical, R: r, K: theoretical(r)}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "crossk: estimate")
	}

	log.Debug("crossk: estimate complete",
		zap.Int("n_a", len(inA)),
		zap.Int("n_b", len(inB)),
		zap.Int("pairs", len(pairs)),
		zap.Float64("rmax", rmax),
	)
	return res, nil
}

func clip(pts []model.Point, w Window) ([]model.Point, int) {
	out := make([]model.Point, 0, len(pts))
	for _, p := range pts {
		if w.Contains(p.X, p.Y) {
			out = append(out, p)
		}
	}
	return out, len(pts) - len(out)
}

// collectPairs returns every pair within rmax sorted by distance, and for each
// reference point the sorted distances to its counted neighbours.
func collectPairs(a, b []model.Point, w Window, rmax float64) ([]pair, [][]float64) {
	var pairs []pair
	perRef := make([][]float64, len(a))
	for i, x := range a {
		for _, y := range b {
			dx, dy := y.X-x.X, y.Y-x.Y
			d := math.Hypot(dx, dy)
			if d > rmax {
				continue
			}
			perRef[i] = append(perRef[i], d)
			pairs = append(pairs, pair{
				d:     d,
				iso:   isotropicWeight(w, x.X, x.Y, d),
				trans: translationWeight(w, dx, dy),
			})
		}
		sort.Float64s(perRef[i])
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].d < pairs[j].d })
	return pairs, perRef
}

// weightedCurve sums the weights of pairs with d <= r for every r. Weights
// are positive and r ascends, so the curve never decreases.
func weightedCurve(ctx context.Context, pairs []pair, r []float64, scale float64, weight func(pair) float64) ([]float64, error) {
	k := make([]float64, len(r))
	var sum float64
	j := 0
	for i, ri := range r {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j < len(pairs) && pairs[j].d <= ri {
			sum += weight(pairs[j])
			j++
		}
		k[i] = scale * sum
	}
	return k, nil
}

// borderCurve is the reduced-sample estimator: only reference points at
// least r from the window edge contribute at r. The raw estimate can dip as
// reference points drop out, so the curve is kept monotone by a running
// maximum, and carried forward once no reference point survives.
func borderCurve(ctx context.Context, a []model.Point, perRef [][]float64, w Window, r []float64, nb int) ([]float64, error) {
	border := make([]float64, len(a))
	for i, x := range a {
		border[i] = w.BorderDistance(x.X, x.Y)
	}

	k := make([]float64, len(r))
	var prev float64
	for i, ri := range r {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var survivors, count int
		for idx, dists := range perRef {
			if border[idx] < ri {
				continue
			}
			survivors++
			count += sort.Search(len(dists), func(j int) bool { return dists[j] > ri })
		}
		v := prev
		if survivors > 0 {
			v = w.Area() * float64(count) / (float64(nb) * float64(survivors))
		}
		if v < prev {
			v = prev
		}
		k[i] = v
		prev = v
	}
	return k, nil
}

func theoretical(r []float64) []float64 {
	k := make([]float64, len(r))
	for i, ri := range r {
		k[i] = math.Pi * ri * ri
	}
	return k
}

// translationWeight is |W| / |W ∩ (W + v)| for displacement v = (dx, dy).
func translationWeight(w Window, dx, dy float64) float64 {
	overlap := (w.Width() - math.Abs(dx)) * (w.Height() - math.Abs(dy))
	if overlap <= 0 {
		return maxWeight
	}
	return math.Min(w.Area()/overlap, maxWeight)
}

// isotropicWeight is the reciprocal of the fraction of the circle of radius d
// around (x, y) that lies inside the window.
func isotropicWeight(w Window, x, y, d float64) float64 {
	if d == 0 {
		return 1
	}
	// Half-angles of the arcs cut off by the left, bottom, right and top
	// edges, in angular order so neighbours are adjacent edges.
	edges := [4]float64{x - w.MinX, y - w.MinY, w.MaxX - x, w.MaxY - y}
	var half [4]float64
	for i, e := range edges {
		half[i] = math.Acos(math.Min(math.Max(e, 0)/d, 1))
	}

	outside := 0.0
	for i := range half {
		outside += 2 * half[i]
		// Arcs of adjacent edges overlap when the corner lies inside the circle.
		outside -= math.Max(0, half[i]+half[(i+1)%4]-math.Pi/2)
	}
	frac := 1 - math.Min(outside, 2*math.Pi)/(2*math.Pi)
	if frac <= 1/maxWeight {
		return maxWeight
	}
	return 1 / frac
}
