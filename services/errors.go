package services

import (
	"errors"
	"fmt"

	"achrilik/models"
	"achrilik/repository"
)

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrForbidden              = errors.New("forbidden")
	ErrNoAgentAvailable       = errors.New("no delivery agent available")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
)

// notFound translates a repository miss into ErrNotFound and leaves other
// errors untouched.
func notFound(err error, what string, id any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, what, id)
	}
	return err
}

// invalid wraps model-level validation failures so callers see ErrValidation
// while keeping the model sentinel in the chain.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range []error{
		models.ErrNegativeAmount,
		models.ErrInvalidQuantity,
		models.ErrRateOutOfRange,
		models.ErrRatePrecision,
		models.ErrTotalMismatch,
		models.ErrMoneyOverflow,
	} {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return err
}
