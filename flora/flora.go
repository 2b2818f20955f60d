// Package flora manages the tree population and drives the per-tick phases.
package flora

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bettina/components"
	"github.com/pthm-cable/bettina/config"
	"github.com/pthm-cable/bettina/land"
	"github.com/pthm-cable/bettina/species"
	"github.com/pthm-cable/bettina/systems"
)

// TreeState is a copy of one live tree.
type TreeState struct {
	Position components.Position
	Tree     components.Tree
}

// member is a live tree resolved to its component pointers. Pointers stay
// valid until the next structural change of the world.
type member struct {
	entity ecs.Entity
	pos    *components.Position
	tree   *components.Tree
}

// Flora owns the live trees and runs the competition, recruitment, growth
// and death phases over them. Trees are always processed in ascending id
// order. Ids start at 1 and are never reused.
type Flora struct {
	world  *ecs.World
	mapper *ecs.Map2[components.Position, components.Tree]
	filter *ecs.Filter2[components.Position, components.Tree]

	trees *systems.TreeSystem
	land  *land.Land
	rng   *rand.Rand
	pool  *workerPool
	log   *slog.Logger

	nextID uint64
	byID   map[uint64]ecs.Entity

	// Bookkeeping of the latest phases
	dead      []TreeState
	deadTotal int
	recruited int
	failed    int
}

// New creates an empty population on l. The catalog is validated here so a
// bad species table aborts startup.
func New(l *land.Land, cfg *config.Config, catalog species.Catalog, rng *rand.Rand, logger *slog.Logger) (*Flora, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("species catalog: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	world := ecs.NewWorld()
	return &Flora{
		world:  world,
		mapper: ecs.NewMap2[components.Position, components.Tree](world),
		filter: ecs.NewFilter2[components.Position, components.Tree](world),
		trees:  systems.NewTreeSystem(l, cfg.Model, catalog),
		land:   l,
		rng:    rng,
		pool:   newWorkerPool(cfg.Simulation.Workers),
		log:    logger,
		nextID: 1,
		byID:   make(map[uint64]ecs.Entity),
	}, nil
}

// Close stops the worker pool.
func (f *Flora) Close() {
	f.pool.stopWorkers()
}

// Land returns the land the population grows on.
func (f *Flora) Land() *land.Land { return f.land }

// Len returns the number of live trees.
func (f *Flora) Len() int { return len(f.byID) }

// Plant creates a seedling and returns its id.
func (f *Flora) Plant(sp species.Species, pos components.Position) (uint64, error) {
	id := f.nextID
	tree, err := f.trees.NewTree(id, sp, pos)
	if err != nil {
		return 0, err
	}
	f.nextID++

	entity := f.mapper.NewEntity(&pos, &tree)
	f.byID[id] = entity
	return id, nil
}

// SeedInitialPopulation plants n founders at the sites chosen by placement.
// Any failure is a configuration error.
func (f *Flora) SeedInitialPopulation(placement Placement, n int) error {
	for i, site := range placement.Sites(n, f.rng) {
		if _, err := f.Plant(site.Species, site.Position); err != nil {
			return fmt.Errorf("founder %d at (%.2f, %.2f): %w", i, site.Position.X, site.Position.Y, err)
		}
	}
	f.log.Info("population seeded", "trees", f.Len())
	return nil
}

// members returns the live trees in ascending id order.
func (f *Flora) members() []member {
	out := make([]member, 0, len(f.byID))
	query := f.filter.Query()
	for query.Next() {
		pos, tree := query.Get()
		out = append(out, member{entity: query.Entity(), pos: pos, tree: tree})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tree.ID < out[j].tree.ID })
	return out
}

// parallel runs fn for every member across the pool and returns the error
// of the lowest-id tree that failed.
func (f *Flora) parallel(ms []member, fn func(m member) error) error {
	errs := make([]error, len(ms))
	f.pool.run(len(ms), func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = fn(ms[i])
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// StepCompetition runs above-ground claim and tally, then below-ground
// accumulate, invert and tally, over all live trees. Claims and
// accumulation are sequential in id order; tallies only read the land and
// run in parallel.
func (f *Flora) StepCompetition() error {
	ms := f.members()

	heights := make(map[uint64]float64, len(ms))
	for _, m := range ms {
		heights[m.tree.ID] = m.tree.ExposedHeight()
	}
	heightOf := func(id uint64) (float64, bool) {
		h, ok := heights[id]
		return h, ok
	}

	if err := f.land.ResetField(land.FieldAboveGroundOwner, land.NoOwner); err != nil {
		return err
	}
	for _, m := range ms {
		if err := f.trees.ClaimAboveGround(m.tree, *m.pos, heightOf); err != nil {
			return err
		}
	}
	if err := f.parallel(ms, func(m member) error {
		return f.trees.TallyAboveGround(m.tree, *m.pos)
	}); err != nil {
		return err
	}

	if err := f.land.ResetField(land.FieldBelowGroundCount, 0); err != nil {
		return err
	}
	for _, m := range ms {
		if err := f.trees.AccumulateBelowGround(m.tree, *m.pos); err != nil {
			return err
		}
	}
	f.land.InvertBelowGroundField()
	return f.parallel(ms, func(m member) error {
		return f.trees.TallyBelowGround(m.tree)
	})
}

// StepGrowth grows every live tree and advances its age by dt.
func (f *Flora) StepGrowth(dt float64) error {
	return f.parallel(f.members(), func(m member) error {
		if err := f.trees.Grow(m.tree); err != nil {
			return err
		}
		m.tree.Age += dt
		return nil
	})
}

// StepRecruitment asks every live tree for its seed count and plants the
// seeds around their parents. Seeds landing where no seedling can live are
// dropped. Returns the number of new trees.
func (f *Flora) StepRecruitment() (int, error) {
	type birth struct {
		species species.Species
		pos     components.Position
	}
	var births []birth

	// Collect first: planting changes the world
	for _, m := range f.members() {
		n, err := f.trees.SeedCount(m.tree)
		if err != nil {
			return 0, err
		}
		m.tree.Seeds = n
		for range n {
			births = append(births, birth{
				species: m.tree.Species,
				pos:     f.trees.SeedPosition(m.tree, *m.pos, f.rng),
			})
		}
	}

	f.recruited, f.failed = 0, 0
	for _, b := range births {
		_, err := f.Plant(b.species, b.pos)
		switch {
		case err == nil:
			f.recruited++
		case errors.Is(err, systems.ErrUnviableSite), errors.Is(err, land.ErrNoLocation):
			f.failed++
			f.log.Debug("seed dropped", "x", b.pos.X, "y", b.pos.Y, "reason", err)
		default:
			return f.recruited, err
		}
	}
	return f.recruited, nil
}

// StepDeath removes every tree flagged dead, releasing the locations it
// owns, and reports whether any tree remains. A failed release leaves the
// population untouched.
func (f *Flora) StepDeath() (bool, error) {
	// First pass: collect dead trees (must complete before modifying)
	f.dead = nil
	var toRemove []ecs.Entity
	for _, m := range f.members() {
		if !m.tree.Dead {
			continue
		}
		if err := f.releaseOwnership(m.tree); err != nil {
			f.dead = nil
			return f.Len() > 0, fmt.Errorf("releasing tree %d: %w", m.tree.ID, err)
		}

		state := TreeState{Position: *m.pos, Tree: *m.tree}
		state.Tree.CrownCache, state.Tree.RootCache, state.Tree.VicinityCache = nil, nil, nil
		f.dead = append(f.dead, state)
		toRemove = append(toRemove, m.entity)
	}

	// Second pass: remove entities
	for i, e := range toRemove {
		delete(f.byID, f.dead[i].Tree.ID)
		f.world.RemoveEntity(e)
	}
	f.deadTotal += len(toRemove)

	return f.Len() > 0, nil
}

func (f *Flora) releaseOwnership(t *components.Tree) error {
	own := float64(t.ID)
	for _, id := range t.CrownNodes {
		v, err := f.land.FieldValue(land.FieldAboveGroundOwner, id)
		if err != nil {
			return err
		}
		if v != own {
			continue
		}
		if err := f.land.SetFieldValue(land.FieldAboveGroundOwner, id, land.NoOwner); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of every live tree in ascending id order.
func (f *Flora) Snapshot() []TreeState {
	ms := f.members()
	out := make([]TreeState, len(ms))
	for i, m := range ms {
		out[i] = TreeState{Position: *m.pos, Tree: *m.tree}
	}
	return out
}

// Tree returns a copy of the live tree with the given id.
func (f *Flora) Tree(id uint64) (TreeState, bool) {
	e, ok := f.byID[id]
	if !ok {
		return TreeState{}, false
	}
	pos, tree := f.mapper.Get(e)
	return TreeState{Position: *pos, Tree: *tree}, true
}

// Dead returns the trees removed by the latest StepDeath.
func (f *Flora) Dead() []TreeState { return f.dead }

// DeadTotal returns the number of trees removed so far.
func (f *Flora) DeadTotal() int { return f.deadTotal }

// Recruited returns the trees planted and the seeds dropped by the latest
// StepRecruitment.
func (f *Flora) Recruited() (planted, dropped int) { return f.recruited, f.failed }
