// Package grid implements the mandatory uniform-grid Environment: a
// padded 3D array of cubic boxes, each holding a spinlock-guarded
// singly-linked list of agent handles, rebuilt every Update and queried
// by walking the 27-cell Moore neighborhood. Grounded on
// original_source/src/core/environment/uniform_grid_environment.h's
// Box/AddObject/NeighborIterator shape.
package grid

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/space"
	"github.com/abmcore/abmcore/uid"
	"github.com/abmcore/abmcore/vec"
)

// box is a single unit cube of the grid: a timestamped, spinlock-guarded
// head of a linked list of agent handles. timestamp != the grid's current
// iteration timestamp means empty, per spec.md §4.3 — no separate
// tombstone bit is needed.
type box struct {
	mu        sync.Mutex
	timestamp uint64
	start     uid.AgentHandle
	length    uint16
}

func (b *box) isEmpty(gridTimestamp uint64) bool {
	return b.timestamp != gridTimestamp
}

// Environment is the uniform-grid reference implementation of
// env.Environment.
type Environment struct {
	sp      *space.SimulationSpace
	workers int

	edgeLength        float64
	edgeLengthSquared float64
	customEdgeLength  bool

	origin r3.Vec
	dims   [3]int64 // box counts per axis, including the one-box padding
	boxes  []box

	// successors is the auxiliary AgentVector<AgentHandle> indexed by an
	// agent's real (RM-assigned) handle, giving constant-time lookup of
	// the next handle in the same box's linked list (spec.md §4.3).
	// Partition count is fixed at construction to `workers`; callers must
	// pass the same partition count used by the ResourceManager's
	// AgentVector<Agent> so handles address the same shape.
	successors *vec.AgentVector[uid.AgentHandle]

	// byHandle resolves a handle to the agent.Agent it names for the
	// duration of one Update→next-Update window — the non-owning
	// back-reference from environment to RM called out in spec.md §9,
	// rebuilt wholesale each Update rather than held as a live pointer
	// into RM storage (agents may be handle-rebalanced between Updates).
	byHandle map[uid.AgentHandle]agent.Agent

	timestamp uint64
}

// New constructs a grid Environment over sp, with workers parallel
// goroutines used for box assignment during Update (and as the
// successors vector's partition count — see the successors field).
func New(sp *space.SimulationSpace, workers int) env.Environment {
	if workers <= 0 {
		workers = 1
	}
	return &Environment{
		sp:         sp,
		workers:    workers,
		successors: vec.New[uid.AgentHandle](workers),
	}
}

// WithEdgeLength fixes the box edge length to an explicit value instead of
// deriving it each Update from the larger of the largest agent diameter and
// the interaction radius (spec.md §4.3's "any user override"). Update
// returns an error if the fixed value is smaller than the radius.
func (e *Environment) WithEdgeLength(length float64) *Environment {
	e.edgeLength = length
	e.customEdgeLength = true
	return e
}

// Update rebuilds the grid from the current agent population, per
// spec.md §4.3's six-step algorithm.
func (e *Environment) Update(agents []agent.Agent) error {
	if len(agents) == 0 {
		if e.sp.BoxFixed && e.sp.RadiusFixed {
			if e.boxes == nil {
				if !e.customEdgeLength && e.edgeLength <= 0 {
					// No agent diameter to size boxes by yet: use the fixed
					// interaction radius.
					e.edgeLength = e.sp.Radius
				}
				if err := e.rebuildShellLocked(); err != nil {
					return err
				}
			}
			e.byHandle = map[uid.AgentHandle]agent.Agent{}
			e.timestamp++
			return nil
		}
		return fmt.Errorf("grid: zero agents and the space is not fully fixed — cannot derive a volume")
	}

	views := make([]space.AgentView, len(agents))
	maxDiameter := 0.0
	for i, a := range agents {
		views[i] = space.AgentView{Position: a.Position(), Diameter: a.Diameter()}
		if a.Diameter() > maxDiameter {
			maxDiameter = a.Diameter()
		}
	}
	if err := e.sp.Update(views); err != nil {
		return err
	}

	if !e.customEdgeLength {
		e.edgeLength = maxDiameter
		if e.sp.Radius > e.edgeLength {
			e.edgeLength = e.sp.Radius
		}
	}
	if e.edgeLength <= 0 {
		return fmt.Errorf("grid: non-positive box edge length %v", e.edgeLength)
	}
	if e.sp.Radius > e.edgeLength {
		return fmt.Errorf("grid: box edge length %v is smaller than the interaction radius %v", e.edgeLength, e.sp.Radius)
	}
	e.edgeLengthSquared = e.edgeLength * e.edgeLength

	if err := e.rebuildShellLocked(); err != nil {
		return err
	}

	e.timestamp++
	e.byHandle = make(map[uid.AgentHandle]agent.Agent, len(agents))
	for _, a := range agents {
		e.byHandle[a.Handle()] = a
	}

	var wg sync.WaitGroup
	workers := e.workers
	if workers > len(agents) {
		workers = len(agents)
	}
	chunk := (len(agents) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(agents) {
			break
		}
		end := start + chunk
		if end > len(agents) {
			end = len(agents)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				a := agents[i]
				idx := e.boxIndex(a.Position())
				e.assign(idx, a)
			}
		}(start, end)
	}
	wg.Wait()

	return nil
}

// rebuildShellLocked pads the bounding box by one edge on every face,
// rounds dimensions up to a multiple of the edge length, and resizes the
// box array (steps 3-5 of spec.md §4.3).
func (e *Environment) rebuildShellLocked() error {
	if e.edgeLength <= 0 {
		return fmt.Errorf("grid: cannot build an empty-simulation grid without a positive box edge length")
	}
	bb := e.sp.Box
	minX := float64(bb.MinX) - e.edgeLength
	minY := float64(bb.MinY) - e.edgeLength
	minZ := float64(bb.MinZ) - e.edgeLength
	maxX := float64(bb.MaxX) + e.edgeLength
	maxY := float64(bb.MaxY) + e.edgeLength
	maxZ := float64(bb.MaxZ) + e.edgeLength

	nx := int64(math.Ceil((maxX - minX) / e.edgeLength))
	ny := int64(math.Ceil((maxY - minY) / e.edgeLength))
	nz := int64(math.Ceil((maxZ - minZ) / e.edgeLength))
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	if nz < 1 {
		nz = 1
	}

	e.origin = r3.Vec{X: minX, Y: minY, Z: minZ}
	e.dims = [3]int64{nx, ny, nz}
	e.edgeLengthSquared = e.edgeLength * e.edgeLength

	n := nx * ny * nz
	if int64(len(e.boxes)) < n {
		e.boxes = make([]box, n)
	} else {
		// Reusing the existing array across an Update that shrank the
		// footprint: boxes outside the new dims are simply never indexed
		// again; their stale timestamp already makes them read as empty.
		e.boxes = e.boxes[:n]
	}
	return nil
}

func (e *Environment) boxIndex(p r3.Vec) int64 {
	bx := int64(math.Floor((p.X - e.origin.X) / e.edgeLength))
	by := int64(math.Floor((p.Y - e.origin.Y) / e.edgeLength))
	bz := int64(math.Floor((p.Z - e.origin.Z) / e.edgeLength))
	bx = clamp(bx, 0, e.dims[0]-1)
	by = clamp(by, 0, e.dims[1]-1)
	bz = clamp(bz, 0, e.dims[2]-1)
	return e.flatten(bx, by, bz)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (e *Environment) flatten(bx, by, bz int64) int64 {
	return bx + by*e.dims[0] + bz*e.dims[0]*e.dims[1]
}

func (e *Environment) unflatten(idx int64) (bx, by, bz int64) {
	bx = idx % e.dims[0]
	rem := idx / e.dims[0]
	by = rem % e.dims[1]
	bz = rem / e.dims[1]
	return
}

// assign prepends a to box idx's linked list, under the box's spinlock,
// and writes the new box index back onto the agent — the grid never
// holds an agent pointer by box, only by index, per spec.md §9.
func (e *Environment) assign(idx int64, a agent.Agent) {
	b := &e.boxes[idx]
	h := a.Handle()
	b.mu.Lock()
	if b.timestamp != e.timestamp {
		b.timestamp = e.timestamp
		b.length = 1
		b.start = h
	} else {
		b.length++
		e.successors.EnsureSet(h, b.start)
		b.start = h
	}
	b.mu.Unlock()
	a.SetBoxIdx(uint64(idx))
}

// ForEachNeighbor walks the 27-cell Moore neighborhood of query's home
// box, skipping empty boxes and early-exiting candidates whose
// partial squared distance already exceeds squaredRadius, per spec.md
// §4.3 step 4.
func (e *Environment) ForEachNeighbor(q env.Query, squaredRadius float64, fn env.NeighborFunc) {
	if squaredRadius > e.edgeLengthSquared {
		panic(fmt.Sprintf("grid: query radius² %v exceeds box edge² %v — would need more than the 27 immediate boxes", squaredRadius, e.edgeLengthSquared))
	}

	var homeIdx int64
	if q.Agent != nil {
		homeIdx = int64(q.Agent.BoxIdx())
	} else {
		homeIdx = e.boxIndex(q.Position)
	}
	bx, by, bz := e.unflatten(homeIdx)

	for dz := int64(-1); dz <= 1; dz++ {
		nz := bz + dz
		if nz < 0 || nz >= e.dims[2] {
			continue
		}
		for dy := int64(-1); dy <= 1; dy++ {
			ny := by + dy
			if ny < 0 || ny >= e.dims[1] {
				continue
			}
			for dx := int64(-1); dx <= 1; dx++ {
				nx := bx + dx
				if nx < 0 || nx >= e.dims[0] {
					continue
				}
				e.scanBox(e.flatten(nx, ny, nz), q, squaredRadius, fn)
			}
		}
	}
}

func (e *Environment) scanBox(idx int64, q env.Query, squaredRadius float64, fn env.NeighborFunc) {
	b := &e.boxes[idx]
	if b.isEmpty(e.timestamp) {
		return
	}
	h := b.start
	remaining := b.length
	for remaining > 0 {
		cand := e.byHandle[h]
		if cand != nil && (q.Agent == nil || cand != q.Agent) {
			cp := cand.Position()
			dx := cp.X - q.Position.X
			dx2 := dx * dx
			if dx2 <= squaredRadius {
				dy := cp.Y - q.Position.Y
				dy2 := dy * dy
				if dx2+dy2 <= squaredRadius {
					dz := cp.Z - q.Position.Z
					dz2 := dz * dz
					sum := dx2 + dy2 + dz2
					if sum < squaredRadius {
						fn(cand, sum)
					}
				}
			}
		}
		remaining--
		if remaining > 0 {
			h = e.successors.EnsureGet(h)
		}
	}
}

// GetDimensions returns the current bounding box's six integer bounds.
func (e *Environment) GetDimensions() [6]int64 {
	return e.sp.Box.Dimensions()
}

// GetInteractionRadius returns the space's configured interaction radius.
func (e *Environment) GetInteractionRadius() float64 {
	return e.sp.Radius
}

// EdgeLength exposes the current box edge length, mostly for tests and
// for ops that need to size a user override consistently.
func (e *Environment) EdgeLength() float64 {
	return e.edgeLength
}

// Dims exposes the current per-axis box counts (including the one-box
// padding), used by the load-balancing standalone op to turn an agent's
// flat BoxIdx back into 3D box coordinates for Morton ordering (spec.md
// §4.8; see rm.BoxCoord).
func (e *Environment) Dims() [3]int64 {
	return e.dims
}

// BoxCoord turns a flat box index back into 3D box coordinates.
func (e *Environment) BoxCoord(boxIdx uint64) (bx, by, bz uint32) {
	x, y, z := e.unflatten(int64(boxIdx))
	return uint32(x), uint32(y), uint32(z)
}

// NeighborMutexes returns the 27 Moore-neighborhood boxes' insertion
// spinlocks around boxIdx, sorted by box index — reused here as the
// execution-time "automatic" thread-safety mode lock set (spec.md
// §4.5/§5.0), since Update and the per-agent pipeline never run
// concurrently within a single iteration (Update always completes before
// the pipeline starts each step), so sharing the same mutex for both
// purposes is race-free and avoids a second lock array.
func (e *Environment) NeighborMutexes(boxIdx uint64) []*sync.Mutex {
	bx, by, bz := e.unflatten(int64(boxIdx))
	var idxs []int64
	for dz := int64(-1); dz <= 1; dz++ {
		nz := bz + dz
		if nz < 0 || nz >= e.dims[2] {
			continue
		}
		for dy := int64(-1); dy <= 1; dy++ {
			ny := by + dy
			if ny < 0 || ny >= e.dims[1] {
				continue
			}
			for dx := int64(-1); dx <= 1; dx++ {
				nx := bx + dx
				if nx < 0 || nx >= e.dims[0] {
					continue
				}
				idxs = append(idxs, e.flatten(nx, ny, nz))
			}
		}
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	out := make([]*sync.Mutex, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, &e.boxes[idx].mu)
	}
	return out
}
