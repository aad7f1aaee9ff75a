package model

import "github.com/YuminosukeSato/celltypist/pkg/errors"

// BaseEstimator is the fitted flag for estimators that are fitted once and
// then only read, like StandardScaler. It has no lock; online estimators
// use StateManager instead.
type BaseEstimator struct {
	fitted bool
}

func (e *BaseEstimator) IsFitted() bool { return e.fitted }

func (e *BaseEstimator) SetFitted() { e.fitted = true }

// Reset は未学習状態に戻す
func (e *BaseEstimator) Reset() { e.fitted = false }

// RequireFitted guards Transform-style methods.
func (e *BaseEstimator) RequireFitted(modelName, method string) error {
	if e.fitted {
		return nil
	}
	return errors.NewNotFittedError(modelName, method)
}
