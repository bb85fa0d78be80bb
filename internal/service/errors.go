package service

import (
	"errors"
	"fmt"

	"gshvpn_backend/internal/repository"
)

var (
	ErrInvalidPlan        = errors.New("invalid plan")
	ErrNoCapacity         = errors.New("no vpn server has a free slot")
	ErrPersistence        = errors.New("storage failure")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotEntitled        = errors.New("subscription does not grant access")
)

var domainErrors = []error{
	ErrInvalidPlan,
	ErrNoCapacity,
	ErrPersistence,
	ErrNotFound,
	ErrForbidden,
	ErrValidation,
	ErrAlreadyExists,
	ErrInvalidCredentials,
	ErrNotEntitled,
}

// storeErr maps a repository error onto the service taxonomy.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// txErr classifies the result of a transaction. Errors already carrying a
// service sentinel pass through; anything else is a storage failure (for
// example a failed commit).
func txErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return storeErr(op, err)
}
