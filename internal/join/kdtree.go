package join

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/sells-group/irs-iip/internal/model"
)

// site is a target point in the k-d tree, carrying its index in the set.
type site struct {
	idx  int
	x, y float64
}

func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(site)
	if d == 0 {
		return s.x - q.x
	}
	return s.y - q.y
}

func (s site) Dims() int { return 2 }

// Distance is squared Euclidean distance, as kdtree expects.
func (s site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	dx, dy := s.x-q.x, s.y-q.y
	return dx*dx + dy*dy
}

type sites []site

func (s sites) Index(i int) kdtree.Comparable         { return s[i] }
func (s sites) Len() int                              { return len(s) }
func (s sites) Pivot(d kdtree.Dim) int                { return plane{Dim: d, sites: s}.Pivot() }
func (s sites) Slice(start, end int) kdtree.Interface { return s[start:end] }

// plane sorts sites along one dimension for median partitioning.
type plane struct {
	kdtree.Dim
	sites
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.sites[i].x < p.sites[j].x
	}
	return p.sites[i].y < p.sites[j].y
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.sites = p.sites[start:end]
	return p
}

func (p plane) Swap(i, j int) { p.sites[i], p.sites[j] = p.sites[j], p.sites[i] }

type siteTree struct {
	tree *kdtree.Tree
}

func newSiteTree(points []model.Point) *siteTree {
	s := make(sites, len(points))
	for i, p := range points {
		s[i] = site{idx: i, x: p.X, y: p.Y}
	}
	return &siteTree{tree: kdtree.New(s, false)}
}

// nearest returns the closest site. Tree.Nearest keeps whichever of several
// equidistant sites it reaches first, so every site at the best distance is
// collected and the lowest index wins, matching bruteNearest.
func (t *siteTree) nearest(x, y float64) (int, float64) {
	q := site{idx: -1, x: x, y: y}
	c, d2 := t.tree.Nearest(q)
	best := c.(site).idx

	keep := kdtree.NewDistKeeper(d2)
	t.tree.NearestSet(keep, q)
	for _, cd := range keep.Heap {
		s, ok := cd.Comparable.(site)
		if ok && cd.Dist <= d2 && s.idx < best {
			best = s.idx
		}
	}
	return best, math.Sqrt(d2)
}
