package systems

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/bettina/components"
	"github.com/pthm-cable/bettina/land"
)

// HeightLookup reports the exposed height of a live tree by id.
type HeightLookup func(id uint64) (float64, bool)

// ClaimAboveGround marks the tree as owner of every location under its crown
// that is unowned, already its own, or owned by a tree no taller than it.
// Equal heights go to the later claimant, so the outcome depends on the
// order trees are processed in.
func (s *TreeSystem) ClaimAboveGround(t *components.Tree, pos components.Position, heightOf HeightLookup) error {
	ids, err := t.CrownCache.Query(t.CrownRadius*s.model.SizeFactor, s.searchAround(pos.Point()))
	if err != nil {
		return fmt.Errorf("tree %d crown: %w", t.ID, err)
	}
	t.CrownNodes = ids

	own := float64(t.ID)
	height := t.ExposedHeight()
	for _, id := range ids {
		owner, err := s.land.FieldValue(land.FieldAboveGroundOwner, id)
		if err != nil {
			return err
		}
		claim := owner == land.NoOwner || owner == own
		if !claim {
			other, alive := heightOf(uint64(owner))
			claim = !alive || other <= height
		}
		if claim {
			if err := s.land.SetFieldValue(land.FieldAboveGroundOwner, id, own); err != nil {
				return err
			}
		}
	}
	return nil
}

// TallyAboveGround sets the above-ground coefficient from the share of crown
// locations the tree still owns after every tree has claimed. Unowned
// locations in the tree's vicinity add a bonus damped by (1-coefficient)/2.
// Only reads the land, so trees may be tallied concurrently.
func (s *TreeSystem) TallyAboveGround(t *components.Tree, pos components.Position) error {
	own := float64(t.ID)
	owned := 0
	for _, id := range t.CrownNodes {
		owner, err := s.land.FieldValue(land.FieldAboveGroundOwner, id)
		if err != nil {
			return err
		}
		if owner == own {
			owned++
		}
	}
	t.OwnedNodes = owned
	coef := safeDiv(float64(owned), float64(len(t.CrownNodes)))

	p := pos.Point()
	vicinity, err := t.VicinityCache.Query(s.model.VicinityRadius*s.model.SizeFactor, func(r float64) ([]int, error) {
		return s.land.LocationsWithinRadius(r, p), nil
	})
	if err != nil {
		return err
	}
	if len(vicinity) > 0 {
		empty := 0
		for _, id := range vicinity {
			owner, err := s.land.FieldValue(land.FieldAboveGroundOwner, id)
			if err != nil {
				return err
			}
			if owner == land.NoOwner {
				empty++
			}
		}
		coef += (1 - coef) * float64(empty) / float64(2*len(vicinity))
	}

	t.AboveCoefficient = clamp01(coef)
	return nil
}

// AccumulateBelowGround adds one to the below-ground counter of every
// location within the tree's root radius.
func (s *TreeSystem) AccumulateBelowGround(t *components.Tree, pos components.Position) error {
	ids, err := t.RootCache.Query(t.RootRadius*s.model.SizeFactor, s.searchAround(pos.Point()))
	if err != nil {
		return fmt.Errorf("tree %d roots: %w", t.ID, err)
	}
	t.RootNodes = ids

	for _, id := range ids {
		count, err := s.land.FieldValue(land.FieldBelowGroundCount, id)
		if err != nil {
			return err
		}
		if err := s.land.SetFieldValue(land.FieldBelowGroundCount, id, count+1); err != nil {
			return err
		}
	}
	return nil
}

// TallyBelowGround sets the below-ground coefficient from the inverted
// counters under the tree's roots: the summed multipliers, floored at
// BelowGroundFloor, divided by the location count and capped at 1.
// Only reads the land.
func (s *TreeSystem) TallyBelowGround(t *components.Tree) error {
	if len(t.RootNodes) == 0 {
		t.BelowCoefficient = 1
		return nil
	}
	multipliers := make([]float64, len(t.RootNodes))
	for i, id := range t.RootNodes {
		v, err := s.land.FieldValue(land.FieldBelowGroundCount, id)
		if err != nil {
			return err
		}
		multipliers[i] = v
	}
	sum := math.Max(floats.Sum(multipliers), s.model.BelowGroundFloor)
	t.BelowCoefficient = math.Min(sum/float64(len(t.RootNodes)), 1)
	return nil
}
