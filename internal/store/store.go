/*
Package store defines the persistence contracts used by the resolvers.

The canonical graph (parties, elections, posts, contests, candidacies, persons,
memberships) is worked on through Store. Lookups that may match several rows
return a Lookup so callers branch on Found, NotFound and Ambiguous explicitly.

Raw inputs (scraped records, Form 501 filings, filer-type history) are read
through Inputs and never written by the resolvers. Processing runs are tracked
through Ledger.

Implementations:
  - store/memory:   indexed working set used for a run and in tests
  - store/sqlstore: postgres or sqlite persistence of the graph and raw inputs
*/
package store

import (
	"context"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
)

// PartyRepository persists parties.
type PartyRepository interface {
	// SaveParty creates the party or refreshes its abbreviation, keyed by name.
	SaveParty(ctx context.Context, p *ocd.Party) error
	Party(ctx context.Context, id int64) (ocd.Party, error)
	PartyByName(ctx context.Context, name string) (Lookup[ocd.Party], error)
	Parties(ctx context.Context) ([]ocd.Party, error)
}

// ElectionRepository persists elections.
type ElectionRepository interface {
	CreateElection(ctx context.Context, e *ocd.Election) error
	UpdateElection(ctx context.Context, e ocd.Election) error
	Election(ctx context.Context, id int64) (ocd.Election, error)
	ElectionByIdentifier(ctx context.Context, scheme, value string) (Lookup[ocd.Election], error)
	ElectionsByDate(ctx context.Context, date time.Time) (Lookup[ocd.Election], error)
	Elections(ctx context.Context) ([]ocd.Election, error)
}

// PostKey is the identity of a post.
type PostKey struct {
	Label        string
	Division     string
	Organization string
	Role         string
}

// PostRepository persists posts.
type PostRepository interface {
	CreatePost(ctx context.Context, p *ocd.Post) error
	Post(ctx context.Context, id int64) (ocd.Post, error)
	PostByKey(ctx context.Context, key PostKey) (Lookup[ocd.Post], error)
	Posts(ctx context.Context) ([]ocd.Post, error)
}

// ContestRepository persists contests of every kind.
type ContestRepository interface {
	CreateContest(ctx context.Context, c *ocd.Contest) error
	UpdateContest(ctx context.Context, c ocd.Contest) error
	// DeleteContest fails while candidacies still reference the contest.
	DeleteContest(ctx context.Context, id int64) error
	Contest(ctx context.Context, id int64) (ocd.Contest, error)
	// CandidateContest looks up the candidate contest for a post in an
	// election; partyID 0 matches contests without a party.
	CandidateContest(ctx context.Context, electionID, postID, partyID int64) (Lookup[ocd.Contest], error)
	ContestByIdentifier(ctx context.Context, electionID int64, scheme, value string) (Lookup[ocd.Contest], error)
	ContestsByPost(ctx context.Context, postID int64) ([]ocd.Contest, error)
	Contests(ctx context.Context) ([]ocd.Contest, error)
}

// CandidacyRepository persists candidacies.
type CandidacyRepository interface {
	CreateCandidacy(ctx context.Context, c *ocd.Candidacy) error
	UpdateCandidacy(ctx context.Context, c ocd.Candidacy) error
	DeleteCandidacy(ctx context.Context, id int64) error
	Candidacy(ctx context.Context, id int64) (ocd.Candidacy, error)
	CandidaciesByContest(ctx context.Context, contestID int64) ([]ocd.Candidacy, error)
	CandidaciesByPerson(ctx context.Context, personID int64) ([]ocd.Candidacy, error)
	CandidaciesByPost(ctx context.Context, postID int64) ([]ocd.Candidacy, error)
	Candidacies(ctx context.Context) ([]ocd.Candidacy, error)
}

// PersonRepository persists persons.
type PersonRepository interface {
	CreatePerson(ctx context.Context, p *ocd.Person) error
	UpdatePerson(ctx context.Context, p ocd.Person) error
	// DeletePerson returns an *IntegrityError while candidacies or
	// memberships still reference the person.
	DeletePerson(ctx context.Context, id int64) error
	// ReassignPerson repoints every candidacy and membership of from to to.
	ReassignPerson(ctx context.Context, from, to int64) error
	Person(ctx context.Context, id int64) (ocd.Person, error)
	PersonsByIdentifier(ctx context.Context, scheme, value string) ([]ocd.Person, error)
	Persons(ctx context.Context) ([]ocd.Person, error)
}

// MembershipRepository persists memberships.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, m *ocd.Membership) error
	UpdateMembership(ctx context.Context, m ocd.Membership) error
	DeleteMembership(ctx context.Context, id int64) error
	MembershipsByPerson(ctx context.Context, personID int64) ([]ocd.Membership, error)
	Memberships(ctx context.Context) ([]ocd.Membership, error)
}

// MergeLog records applied person merges.
type MergeLog interface {
	RecordMerge(ctx context.Context, m *ocd.PersonMerge) error
	Merges(ctx context.Context) ([]ocd.PersonMerge, error)
}

// Store is the canonical entity graph.
type Store interface {
	PartyRepository
	ElectionRepository
	PostRepository
	ContestRepository
	CandidacyRepository
	PersonRepository
	MembershipRepository
	MergeLog

	// WithTx runs fn atomically: if fn returns an error every write made
	// through the Store passed to fn is discarded. Calls must not nest.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Inputs exposes the read-only raw and scraped records.
type Inputs interface {
	ScrapedElections(ctx context.Context, kind ocd.ScrapeKind) ([]ocd.ScrapedElection, error)
	ScrapedCandidates(ctx context.Context) ([]ocd.ScrapedCandidate, error)
	ScrapedIncumbents(ctx context.Context) ([]ocd.ScrapedIncumbent, error)
	ScrapedPropositions(ctx context.Context) ([]ocd.ScrapedProposition, error)
	// Form501Filings returns the latest version of every filing.
	Form501Filings(ctx context.Context) ([]ocd.Form501Filing, error)
	// FilerTypeAsOf returns the most recent filer-type row effective on or
	// before asOf.
	FilerTypeAsOf(ctx context.Context, filerID string, asOf time.Time) (ocd.FilerTypeRecord, bool, error)
}

// Ledger tracks processing runs and their per-stage and per-table markers.
type Ledger interface {
	// OpenVersion returns the version for rawVersion, creating it if needed.
	OpenVersion(ctx context.Context, rawVersion time.Time, now time.Time) (ocd.ProcessedVersion, error)
	FinishVersion(ctx context.Context, id int64, now time.Time) error
	Versions(ctx context.Context) ([]ocd.ProcessedVersion, error)
	Version(ctx context.Context, id int64) (ocd.ProcessedVersion, error)
	Files(ctx context.Context, versionID int64) ([]ocd.ProcessedFile, error)
	// StartFile creates or restarts the marker, clearing its finish time.
	StartFile(ctx context.Context, versionID int64, name string, kind ocd.FileKind, now time.Time) error
	FinishFile(ctx context.Context, versionID int64, name string, kind ocd.FileKind, now time.Time, count int) error
}

// Graph is a complete copy of the canonical entities, each slice ordered by id.
type Graph struct {
	Parties     []ocd.Party
	Elections   []ocd.Election
	Posts       []ocd.Post
	Contests    []ocd.Contest
	Candidacies []ocd.Candidacy
	Persons     []ocd.Person
	Memberships []ocd.Membership
	Merges      []ocd.PersonMerge
}

// GraphStore loads and replaces the persisted canonical graph.
type GraphStore interface {
	LoadGraph(ctx context.Context) (Graph, error)
	SaveGraph(ctx context.Context, g Graph) error
}
