package cluster

import (
	"sort"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// ResolutionRule picks the over-clustering resolution from the number of
// cells: Resolutions[i] applies when nCells < Thresholds[i], and the last
// entry of Resolutions applies to everything larger.
type ResolutionRule struct {
	Thresholds  []int
	Resolutions []float64
}

// DefaultResolutionRule returns 5 below 5,000 cells, 10 below 20,000,
// 15 below 40,000 and 20 otherwise.
func DefaultResolutionRule() ResolutionRule {
	return ResolutionRule{
		Thresholds:  []int{5000, 20000, 40000},
		Resolutions: []float64{5, 10, 15, 20},
	}
}

// Validate checks that thresholds are strictly increasing and that there is
// exactly one more resolution than thresholds.
func (r ResolutionRule) Validate() error {
	if len(r.Resolutions) != len(r.Thresholds)+1 {
		return errors.NewValidationError("resolutions", "need one more resolution than thresholds", r.Resolutions)
	}
	if !sort.SliceIsSorted(r.Thresholds, func(i, j int) bool { return r.Thresholds[i] < r.Thresholds[j] }) {
		return errors.NewValidationError("thresholds", "must be increasing", r.Thresholds)
	}
	for i := 1; i < len(r.Thresholds); i++ {
		if r.Thresholds[i] == r.Thresholds[i-1] {
			return errors.NewValidationError("thresholds", "must be strictly increasing", r.Thresholds)
		}
	}
	for _, res := range r.Resolutions {
		if res <= 0 {
			return errors.NewValidationError("resolutions", "must be positive", r.Resolutions)
		}
	}
	return nil
}

// Resolve returns the resolution for nCells. An invalid rule falls back to
// DefaultResolutionRule.
func (r ResolutionRule) Resolve(nCells int) float64 {
	if r.Validate() != nil {
		r = DefaultResolutionRule()
	}
	for i, t := range r.Thresholds {
		if nCells < t {
			return r.Resolutions[i]
		}
	}
	return r.Resolutions[len(r.Resolutions)-1]
}
