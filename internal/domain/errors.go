package domain

import "errors"

var (
	// ErrMissingInput means the report or the source dataset does not exist.
	ErrMissingInput = errors.New("missing input")
	// ErrNoData means the report yielded no records to enrich with.
	ErrNoData = errors.New("no data extracted")
	// ErrInsufficientData means there were too few values to classify.
	// It is recoverable: the run continues without writing classes.
	ErrInsufficientData = errors.New("insufficient data for classification")
)
