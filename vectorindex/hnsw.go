// Package vectorindex provides an in-process approximate nearest-neighbor
// index over embedding vectors using a hierarchical navigable small world
// (HNSW) graph.
//
// HNSW trades perfect recall for sub-linear query time: a query descends a
// hierarchy of sparser graph layers toward the neighborhood of the target,
// then runs a bounded best-first search on the base layer. Recall depends on
// the ef parameters; the defaults match what the rest of this repository is
// tuned against (efConstruction=150, M=12, efSearch=40).
//
// The index owns only geometry (id -> vector); chunk text lives in the
// knowledge store. An Index is safe for concurrent use: queries may
// interleave with inserts and observe either the pre- or post-insert graph,
// never a torn node.
package vectorindex

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/lunai408/local-agent-factory/core"
)

// Default graph parameters.
const (
	DefaultM              = 12
	DefaultEfConstruction = 150
	DefaultEfSearch       = 40
)

// Config configures an Index. Dimensions and Metric are fixed for the life
// of the index and must match the embedding provider.
type Config struct {
	Dimensions     int
	Metric         Metric
	M              int
	EfConstruction int
	EfSearch       int

	// Seed fixes the level-assignment RNG. Zero means a fixed default,
	// keeping graph construction reproducible in tests.
	Seed int64
}

// Hit is one query result.
type Hit struct {
	ID       string
	Distance float32
}

type node struct {
	id      string
	vec     []float32
	level   int
	deleted bool
	// links[l] holds neighbor slots at layer l, 0 <= l <= level.
	links [][]int
}

// Index is an HNSW graph over fixed-dimension vectors.
type Index struct {
	mu sync.RWMutex

	cfg       Config
	dist      func(a, b []float32) float32
	levelMult float64
	rng       *rand.Rand

	nodes []*node
	byID  map[string]int
	entry int // slot of the entry node, -1 when empty
	top   int // highest layer in the graph
	live  int
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vectorindex: dimensions must be positive")
	}
	if cfg.Metric == "" {
		cfg.Metric = Cosine
	}
	if !cfg.Metric.Valid() {
		return nil, fmt.Errorf("vectorindex: unknown metric %q", cfg.Metric)
	}
	if cfg.M <= 0 {
		cfg.M = DefaultM
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = DefaultEfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}

	idx := &Index{
		cfg:       cfg,
		levelMult: 1 / math.Log(float64(cfg.M)),
		rng:       rand.New(rand.NewSource(seed)),
		byID:      make(map[string]int),
		entry:     -1,
	}
	switch cfg.Metric {
	case Euclidean:
		idx.dist = euclideanDistance
	default:
		idx.dist = cosineDistance
	}
	return idx, nil
}

// Len returns the number of live vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.live
}

// Dimensions returns the configured vector dimension.
func (idx *Index) Dimensions() int {
	return idx.cfg.Dimensions
}

// Insert adds a vector under id. A dimension mismatch is rejected with
// core.ErrDimensionMismatch and leaves the graph untouched. Inserting an id
// that is already present retires the old vector first (callers create new
// chunk ids on re-ingestion, so this is a safety net, not a mutation path).
func (idx *Index) Insert(id string, vec []float32) error {
	if len(vec) != idx.cfg.Dimensions {
		return fmt.Errorf("vectorindex: got %d dims, index configured for %d: %w",
			len(vec), idx.cfg.Dimensions, core.ErrDimensionMismatch)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if slot, ok := idx.byID[id]; ok && !idx.nodes[slot].deleted {
		idx.nodes[slot].deleted = true
		idx.live--
	}

	// Copy so callers cannot mutate stored geometry.
	stored := make([]float32, len(vec))
	copy(stored, vec)

	level := idx.randomLevel()
	n := &node{id: id, vec: stored, level: level, links: make([][]int, level+1)}
	slot := len(idx.nodes)
	idx.nodes = append(idx.nodes, n)
	idx.byID[id] = slot
	idx.live++

	if idx.entry < 0 {
		idx.entry = slot
		idx.top = level
		return nil
	}

	ep := idx.entry

	// Greedy descent through layers above the new node's level.
	for l := idx.top; l > level; l-- {
		ep = idx.greedyStep(vec, ep, l)
	}

	// Connect on each layer from min(level, top) down to 0.
	startLayer := level
	if idx.top < startLayer {
		startLayer = idx.top
	}
	for l := startLayer; l >= 0; l-- {
		candidates := idx.searchLayer(vec, []int{ep}, idx.cfg.EfConstruction, l)
		neighbors := idx.selectNeighbors(candidates, idx.cfg.M)

		n.links[l] = append(n.links[l], neighbors...)
		maxConn := idx.maxConnections(l)
		for _, nb := range neighbors {
			peer := idx.nodes[nb]
			peer.links[l] = append(peer.links[l], slot)
			if len(peer.links[l]) > maxConn {
				peer.links[l] = idx.pruneLinks(peer.vec, peer.links[l], maxConn)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0].slot
		}
	}

	if level > idx.top {
		idx.top = level
		idx.entry = slot
	}
	return nil
}

// Query returns up to k nearest live vectors, ascending by distance. An
// empty index yields an empty result, not an error.
func (idx *Index) Query(vec []float32, k int) ([]Hit, error) {
	if len(vec) != idx.cfg.Dimensions {
		return nil, fmt.Errorf("vectorindex: query has %d dims, index configured for %d: %w",
			len(vec), idx.cfg.Dimensions, core.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.entry < 0 || idx.live == 0 {
		return nil, nil
	}

	ep := idx.entry
	for l := idx.top; l > 0; l-- {
		ep = idx.greedyStep(vec, ep, l)
	}

	ef := idx.cfg.EfSearch
	if k > ef {
		ef = k
	}
	candidates := idx.searchLayer(vec, []int{ep}, ef, 0)

	hits := make([]Hit, 0, k)
	for _, c := range candidates {
		if idx.nodes[c.slot].deleted {
			continue
		}
		hits = append(hits, Hit{ID: idx.nodes[c.slot].id, Distance: c.dist})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Remove retires the vector stored under id. The node is tombstoned: it
// keeps its links for graph connectivity but never appears in results.
func (idx *Index) Remove(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slot, ok := idx.byID[id]
	if !ok || idx.nodes[slot].deleted {
		return fmt.Errorf("vectorindex: %s: %w", id, core.ErrNotFound)
	}
	idx.nodes[slot].deleted = true
	idx.live--
	return nil
}

// randomLevel draws a layer from the standard HNSW geometric distribution.
func (idx *Index) randomLevel() int {
	return int(math.Floor(-math.Log(idx.rng.Float64()) * idx.levelMult))
}

func (idx *Index) maxConnections(layer int) int {
	if layer == 0 {
		return idx.cfg.M * 2
	}
	return idx.cfg.M
}

// greedyStep walks toward vec on one layer until no neighbor improves.
func (idx *Index) greedyStep(vec []float32, ep, layer int) int {
	cur := ep
	curDist := idx.dist(vec, idx.nodes[cur].vec)
	for {
		improved := false
		n := idx.nodes[cur]
		if layer <= n.level {
			for _, nb := range n.links[layer] {
				d := idx.dist(vec, idx.nodes[nb].vec)
				if d < curDist {
					cur, curDist = nb, d
					improved = true
				}
			}
		}
		if !improved {
			return cur
		}
	}
}

type scored struct {
	slot int
	dist float32
}

// minQueue pops the closest candidate first.
type minQueue []scored

func (q minQueue) Len() int            { return len(q) }
func (q minQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q minQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x interface{}) { *q = append(*q, x.(scored)) }
func (q *minQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// maxQueue pops the farthest result first, bounding the working set to ef.
type maxQueue []scored

func (q maxQueue) Len() int            { return len(q) }
func (q maxQueue) Less(i, j int) bool  { return q[i].dist > q[j].dist }
func (q maxQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *maxQueue) Push(x interface{}) { *q = append(*q, x.(scored)) }
func (q *maxQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// searchLayer runs bounded best-first search on one layer and returns up to
// ef candidates, ascending by distance. Callers must hold the lock.
func (idx *Index) searchLayer(vec []float32, entryPoints []int, ef, layer int) []scored {
	visited := make(map[int]struct{}, ef*4)
	candidates := &minQueue{}
	results := &maxQueue{}

	for _, ep := range entryPoints {
		d := idx.dist(vec, idx.nodes[ep].vec)
		heap.Push(candidates, scored{ep, d})
		heap.Push(results, scored{ep, d})
		visited[ep] = struct{}{}
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scored)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		n := idx.nodes[c.slot]
		if layer > n.level {
			continue
		}
		for _, nb := range n.links[layer] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			d := idx.dist(vec, idx.nodes[nb].vec)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, scored{nb, d})
				heap.Push(results, scored{nb, d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scored, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(scored)
	}
	return out
}

// selectNeighbors keeps the m closest candidates.
func (idx *Index) selectNeighbors(candidates []scored, m int) []int {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]int, len(candidates))
	for i, c := range candidates {
		out[i] = c.slot
	}
	return out
}

// pruneLinks trims a neighbor list to the maxConn entries closest to vec.
func (idx *Index) pruneLinks(vec []float32, links []int, maxConn int) []int {
	ranked := make([]scored, len(links))
	for i, nb := range links {
		ranked[i] = scored{nb, idx.dist(vec, idx.nodes[nb].vec)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })
	out := make([]int, 0, maxConn)
	for _, r := range ranked[:maxConn] {
		out = append(out, r.slot)
	}
	return out
}
