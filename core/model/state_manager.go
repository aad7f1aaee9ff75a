// Package model provides the estimator contracts, fitted-state tracking and
// artifact persistence shared by the preprocessing and classification layers.
package model

import (
	"sync"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// StateManager tracks whether an online estimator has been fitted, how many
// genes it was fitted on and how many cells it has seen over all PartialFit
// calls. Safe for concurrent use; SGDClassifier reads it from prediction
// workers while a mini-batch update may be running.
type StateManager struct {
	mu        sync.RWMutex
	fitted    bool
	nFeatures int
	nSamples  int
}

func NewStateManager() *StateManager {
	return &StateManager{}
}

func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

func (s *StateManager) SetFitted() {
	s.mu.Lock()
	s.fitted = true
	s.mu.Unlock()
}

// Reset forgets the fit, gene count and cell count.
func (s *StateManager) Reset() {
	s.mu.Lock()
	s.fitted = false
	s.nFeatures, s.nSamples = 0, 0
	s.mu.Unlock()
}

// SetDimensions records a full fit: nFeatures genes, nSamples cells.
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	s.nFeatures, s.nSamples = nFeatures, nSamples
	s.mu.Unlock()
}

// AddSamples counts the cells of one more mini-batch.
func (s *StateManager) AddSamples(n int) {
	s.mu.Lock()
	s.nSamples += n
	s.mu.Unlock()
}

// GetDimensions は学習時の遺伝子数と累積細胞数を返す
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted は未学習なら NotFittedError を返す
func (s *StateManager) RequireFitted(modelName, method string) error {
	if s.IsFitted() {
		return nil
	}
	return errors.NewNotFittedError(modelName, method)
}

// RequireFeatures rejects a matrix whose gene axis differs from the fit.
func (s *StateManager) RequireFeatures(op string, nFeatures int) error {
	want, _ := s.GetDimensions()
	if want == nFeatures {
		return nil
	}
	return errors.NewDimensionError(op, want, nFeatures, 1)
}
