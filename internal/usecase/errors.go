package usecase

import (
	"errors"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
)

var (
	ErrCategoryExhausted     = errors.New("category retries exhausted")
	ErrAggregateGated        = errors.New("aggregate refresh refused: pass has errors")
	ErrEmptyPopulation       = errors.New("aggregate refresh skipped: empty population")
	ErrPassInProgress        = errors.New("pass already in progress")
	ErrMissingAlliance       = alliance.ErrMissing
	ErrDependencyUnavailable = snapshot.ErrUnavailable
)
