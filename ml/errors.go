package ml

import "github.com/pkg/errors"

var (
	// ErrInvalidDataset is returned for empty or malformed training data.
	ErrInvalidDataset = errors.New("invalid dataset")
	// ErrInsufficientData is returned when a class has fewer examples than folds.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidFolds is returned when fewer than two folds are requested.
	ErrInvalidFolds = errors.New("folds must be at least 2")
	// ErrSchemaMismatch is returned when a feature vector or schema does not fit the model.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrIncompatibleModelVersion is returned for unknown or unsupported persisted formats.
	ErrIncompatibleModelVersion = errors.New("incompatible model version")
	// ErrCorruptModel is returned when a persisted tree is structurally invalid.
	ErrCorruptModel = errors.New("corrupt model")
)
