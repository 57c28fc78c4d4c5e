package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row looked up by id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous is returned when a lookup that must be unique matched several rows.
	ErrAmbiguous = errors.New("ambiguous match")
	// ErrMergeIntegrity is returned when removing a person would orphan rows.
	ErrMergeIntegrity = errors.New("merge integrity violation")
	// ErrDuplicate is returned when a create would violate a uniqueness key.
	ErrDuplicate = errors.New("duplicate")
)

// NotFoundError names the entity that was missing.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IntegrityError reports rows that still reference a person being removed.
type IntegrityError struct {
	PersonID    int64
	Candidacies []int64
	Memberships []int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("person %d still referenced by candidacies %v and memberships %v",
		e.PersonID, e.Candidacies, e.Memberships)
}

func (e *IntegrityError) Unwrap() error {
	return ErrMergeIntegrity
}

// AmbiguousError reports how many rows matched a lookup.
type AmbiguousError struct {
	What    string
	Matches int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s matched %d rows", e.What, e.Matches)
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguous
}
