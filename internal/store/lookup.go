package store

// LookupState is the outcome of a lookup that may match zero, one or many rows.
type LookupState int

// Lookup states
const (
	NotFound LookupState = iota
	Found
	Ambiguous
)

func (s LookupState) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	}
	return "not found"
}

// Lookup carries the result of a lookup. Value is set when State is Found;
// Matches holds every candidate when State is Ambiguous.
type Lookup[T any] struct {
	State   LookupState
	Value   T
	Matches []T
}

// LookupOf classifies matches by count.
func LookupOf[T any](matches []T) Lookup[T] {
	switch len(matches) {
	case 0:
		return Lookup[T]{State: NotFound}
	case 1:
		return Lookup[T]{State: Found, Value: matches[0]}
	}
	return Lookup[T]{State: Ambiguous, Matches: matches}
}

// Found reports whether exactly one row matched.
func (l Lookup[T]) Found() bool {
	return l.State == Found
}

// Ambiguous reports whether more than one row matched.
func (l Lookup[T]) Ambiguous() bool {
	return l.State == Ambiguous
}
