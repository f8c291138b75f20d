package domain

import (
	"fmt"
	"sort"
)

// QuorumBreakpoint is one step of the participation-ratio table: any
// population up to and including MaxPopulation requires Ratio.
type QuorumBreakpoint struct {
	MaxPopulation int
	Ratio         float64
}

// QuorumPolicy decides whether a signal cluster constitutes a confirmed
// event. The zero value is not usable; construct with DefaultQuorumPolicy
// or from configuration and call Validate.
type QuorumPolicy struct {
	// Breakpoints, ascending by MaxPopulation. Populations beyond the
	// last breakpoint require BaseRatio.
	Breakpoints []QuorumBreakpoint
	BaseRatio   float64

	// RealismCeilingG rejects trigger readings above this PGA as sensor
	// artifacts regardless of cluster state.
	RealismCeilingG float64

	// SmallAreaPopulation is the population at or below which the ratio
	// test is skipped and MinSignalCount signals confirm unconditionally.
	SmallAreaPopulation int

	// MinSignalCount is the minimum distinct-device count for any
	// confirmation path.
	MinSignalCount int
}

// DefaultQuorumPolicy returns the reference policy.
func DefaultQuorumPolicy() QuorumPolicy {
	return QuorumPolicy{
		Breakpoints: []QuorumBreakpoint{
			{MaxPopulation: 5, Ratio: 0.60},
			{MaxPopulation: 20, Ratio: 0.40},
			{MaxPopulation: 100, Ratio: 0.25},
		},
		BaseRatio:           0.15,
		RealismCeilingG:     5.0,
		SmallAreaPopulation: 2,
		MinSignalCount:      1,
	}
}

// Validate checks structural soundness: ascending breakpoints with
// non-increasing ratios, and BaseRatio not above the last step.
func (p QuorumPolicy) Validate() error {
	if len(p.Breakpoints) == 0 {
		return fmt.Errorf("quorum policy: no breakpoints")
	}
	if !sort.SliceIsSorted(p.Breakpoints, func(i, j int) bool {
		return p.Breakpoints[i].MaxPopulation < p.Breakpoints[j].MaxPopulation
	}) {
		return fmt.Errorf("quorum policy: breakpoints not ascending by population")
	}
	for i := 1; i < len(p.Breakpoints); i++ {
		if p.Breakpoints[i].Ratio > p.Breakpoints[i-1].Ratio {
			return fmt.Errorf("quorum policy: ratio increases at population %d", p.Breakpoints[i].MaxPopulation)
		}
	}
	last := p.Breakpoints[len(p.Breakpoints)-1]
	if p.BaseRatio > last.Ratio {
		return fmt.Errorf("quorum policy: base ratio %.2f exceeds last breakpoint ratio %.2f", p.BaseRatio, last.Ratio)
	}
	for _, b := range p.Breakpoints {
		if b.Ratio <= 0 || b.Ratio > 1 {
			return fmt.Errorf("quorum policy: ratio %.2f at population %d out of (0,1]", b.Ratio, b.MaxPopulation)
		}
	}
	if p.BaseRatio <= 0 || p.BaseRatio > 1 {
		return fmt.Errorf("quorum policy: base ratio %.2f out of (0,1]", p.BaseRatio)
	}
	if p.RealismCeilingG <= 0 {
		return fmt.Errorf("quorum policy: realism ceiling must be positive")
	}
	if p.MinSignalCount < 1 {
		return fmt.Errorf("quorum policy: minimum signal count must be at least 1")
	}
	return nil
}

// RequiredRatio returns the participation ratio a population of the given
// size must reach. Monotonically non-increasing in population.
func (p QuorumPolicy) RequiredRatio(population int) float64 {
	for _, b := range p.Breakpoints {
		if population <= b.MaxPopulation {
			return b.Ratio
		}
	}
	return p.BaseRatio
}

// ExceedsCeiling reports whether a raw PGA reading is above the realism
// ceiling and must be discarded as an artifact.
func (p QuorumPolicy) ExceedsCeiling(pga float64) bool {
	return pga > p.RealismCeilingG
}

// Confirms applies the two-tier confirmation rule to a cluster of
// signalCount distinct devices inside a population of the given size.
// The caller is responsible for the realism-ceiling check on the
// triggering signal; population must be at least 1.
func (p QuorumPolicy) Confirms(signalCount, population int) bool {
	if signalCount < p.MinSignalCount {
		return false
	}
	if population <= p.SmallAreaPopulation {
		// Corroboration is structurally unavailable here; the ratio test
		// would always fail.
		return true
	}
	ratio := float64(signalCount) / float64(population)
	return ratio >= p.RequiredRatio(population)
}
