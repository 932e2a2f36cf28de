package service

import "errors"

var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrSchemaMismatch      = errors.New("feature schema mismatch")
	ErrEmptyEnsemble       = errors.New("empty ensemble")
	ErrModelInference      = errors.New("model inference failure")
	ErrInvalidWeights      = errors.New("invalid ensemble weights")
	ErrInvalidSteps        = errors.New("invalid step count")
	ErrDirectUnsupported   = errors.New("model does not support direct multi-step prediction")
	ErrModelNotFound       = errors.New("model not found")
)
