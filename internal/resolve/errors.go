package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvableDate is returned when no date can be determined for a
	// special or irregular election.
	ErrUnresolvableDate = errors.New("election date cannot be determined")
	// ErrDivisionNotFound is returned when an office maps to no known division.
	ErrDivisionNotFound = errors.New("division not found")
	// ErrNoContest is returned when a contest is missing and may not be created.
	ErrNoContest = errors.New("no contest")
	// ErrBlacklisted is returned for contests that must not exist.
	ErrBlacklisted = errors.New("contest is blacklisted")
	// ErrInvalidRecord is returned for input records missing a required field.
	ErrInvalidRecord = errors.New("invalid record")
)

// UnresolvableDateError names the election that could not be dated.
type UnresolvableDateError struct {
	Name   string
	Reason string
}

func (e *UnresolvableDateError) Error() string {
	return fmt.Sprintf("election %q: %s", e.Name, e.Reason)
}

func (e *UnresolvableDateError) Unwrap() error {
	return ErrUnresolvableDate
}

// DivisionError names the office that could not be placed.
type DivisionError struct {
	Office string
}

func (e *DivisionError) Error() string {
	return fmt.Sprintf("office %q: no known division", e.Office)
}

func (e *DivisionError) Unwrap() error {
	return ErrDivisionNotFound
}

// NoContestError explains why a contest was not created.
type NoContestError struct {
	Election string
	Office   string
	Reason   string
}

func (e *NoContestError) Error() string {
	return fmt.Sprintf("%s / %s: %s", e.Election, e.Office, e.Reason)
}

func (e *NoContestError) Unwrap() error {
	return ErrNoContest
}
