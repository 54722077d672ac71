package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Tier is one named rank unlocked at MinPoints.
type Tier struct {
	Name      string
	MinPoints int
}

// Ladder is an ascending list of tiers. The first tier is the floor every
// balance falls back to.
type Ladder []Tier

// DefaultLadder returns the community rank tiers.
func DefaultLadder() Ladder {
	return Ladder{
		{Name: "Bagong Kaibigan", MinPoints: 0},
		{Name: "Lingkod Kapwa", MinPoints: 250},
		{Name: "Kapit-Bisig Hero", MinPoints: 500},
		{Name: "Bayanihan Champion", MinPoints: 1000},
		{Name: "Community Guardian", MinPoints: 2000},
		{Name: "SafeZone Legend", MinPoints: 5000},
	}
}

// Validate checks the ladder is non-empty, named and strictly ascending.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("rank ladder is empty")
	}
	for i, tier := range l {
		if strings.TrimSpace(tier.Name) == "" {
			return fmt.Errorf("rank tier %d has no name", i)
		}
		if i > 0 && tier.MinPoints <= l[i-1].MinPoints {
			return fmt.Errorf("rank tier %q must start above %q", tier.Name, l[i-1].Name)
		}
	}
	return nil
}

// RankFor returns the highest tier whose threshold points reaches. It depends
// only on the cumulative sum, so ledger order never changes the rank.
func (l Ladder) RankFor(points int) string {
	if len(l) == 0 {
		return ""
	}
	idx, found := slices.BinarySearchFunc(l, points, func(t Tier, target int) int {
		switch {
		case t.MinPoints < target:
			return -1
		case t.MinPoints > target:
			return 1
		default:
			return 0
		}
	})
	if found {
		return l[idx].Name
	}
	if idx == 0 {
		return l[0].Name
	}
	return l[idx-1].Name
}
