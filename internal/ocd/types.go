// Package ocd holds the canonical Open Civic Data entities produced by the
// pipeline, the raw records it consumes, and the pure parsing rules shared by
// the resolvers.
package ocd

import (
	"slices"
	"time"
)

// Identifier schemes
const (
	SchemeFilerID    = "calaccess_filer_id"
	SchemeElectionID = "calaccess_election_id"
	SchemeMeasureID  = "calaccess_measure_id"
)

// Registration statuses
const (
	StatusFiled     = "filed"
	StatusQualified = "qualified"
	StatusWithdrawn = "withdrawn"
)

// Division and organisation constants
const (
	StateDivision = "ocd-division/country:us/state:ca"
	ElectionAdmin = "California Secretary of State"
)

// Identifier is an external key attached to an entity.
type Identifier struct {
	Scheme string `json:"scheme"`
	Value  string `json:"identifier"`
}

// OtherName records a prior or variant name.
type OtherName struct {
	Name string `json:"name"`
	Note string `json:"note"`
}

// Source cites where a record was observed.
type Source struct {
	URL  string `json:"url"`
	Note string `json:"note"`
}

// Party is a political party.
type Party struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// Person is a canonical individual.
type Person struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	SortName     string       `json:"sort_name"`
	FamilyName   string       `json:"family_name"`
	GivenName    string       `json:"given_name"`
	OtherNames   []OtherName  `json:"other_names"`
	Identifiers  []Identifier `json:"identifiers"`
	Sources      []Source     `json:"sources"`
	LockedFields []string     `json:"locked_fields"`
}

// Post is an office that can be held.
type Post struct {
	ID           int64  `json:"id"`
	Label        string `json:"label"`
	Role         string `json:"role"`
	Organization string `json:"organization"`
	Division     string `json:"division"`
	OfficeType   string `json:"office_type"`
	District     int    `json:"district"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

// Election is a single election day.
type Election struct {
	ID                         int64             `json:"id"`
	Name                       string            `json:"name"`
	Date                       time.Time         `json:"date"`
	AdministrativeOrganization string            `json:"administrative_organization"`
	Division                   string            `json:"division"`
	Identifiers                []Identifier      `json:"identifiers"`
	Sources                    []Source          `json:"sources"`
	Extras                     map[string]string `json:"extras"`
}

// ContestKind distinguishes the contest flavours.
type ContestKind string

// Contest kinds
const (
	CandidateContest     ContestKind = "candidate"
	BallotMeasureContest ContestKind = "ballot_measure"
	RetentionContest     ContestKind = "retention"
)

// Contest is a race decided in one election.
type Contest struct {
	ID                    int64        `json:"id"`
	Kind                  ContestKind  `json:"kind"`
	Name                  string       `json:"name"`
	ElectionID            int64        `json:"election_id"`
	Division              string       `json:"division"`
	PartyID               int64        `json:"party_id,omitempty"`
	RunoffForContestID    int64        `json:"runoff_for_contest_id,omitempty"`
	PreviousTermUnexpired bool         `json:"previous_term_unexpired"`
	PostIDs               []int64      `json:"post_ids"`
	Identifiers           []Identifier `json:"identifiers"`
	Sources               []Source     `json:"sources"`
}

// Candidacy is a person's run for a post within a contest.
type Candidacy struct {
	ID                 int64             `json:"id"`
	ContestID          int64             `json:"contest_id"`
	PersonID           int64             `json:"person_id"`
	PostID             int64             `json:"post_id"`
	CandidateName      string            `json:"candidate_name"`
	PartyID            int64             `json:"party_id,omitempty"`
	RegistrationStatus string            `json:"registration_status"`
	IsIncumbent        bool              `json:"is_incumbent"`
	FiledDate          time.Time         `json:"filed_date"`
	Form501FilingIDs   []int64           `json:"form501_filing_ids"`
	Extras             map[string]string `json:"extras"`
	Sources            []Source          `json:"sources"`
}

// Membership is a tenure in a post. Start and end are years; a blank end is
// open-ended.
type Membership struct {
	ID           int64  `json:"id"`
	PersonID     int64  `json:"person_id"`
	PostID       int64  `json:"post_id"`
	Role         string `json:"role"`
	Organization string `json:"organization"`
	Label        string `json:"label"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

// PersonMerge is the audit row written for every applied merge.
type PersonMerge struct {
	ID           int64     `json:"id"`
	SurvivorID   int64     `json:"survivor_id"`
	LoserID      int64     `json:"loser_id"`
	LoserName    string    `json:"loser_name"`
	LockedFields []string  `json:"locked_fields"`
	Reason       string    `json:"reason"`
	MergedAt     time.Time `json:"merged_at"`
}

// HasIdentifier reports whether p carries scheme=value.
func (p Person) HasIdentifier(scheme, value string) bool {
	return hasIdentifier(p.Identifiers, scheme, value)
}

// IdentifierValues returns the distinct values p carries for scheme.
func (p Person) IdentifierValues(scheme string) []string {
	var out []string
	for _, id := range p.Identifiers {
		if id.Scheme == scheme && !slices.Contains(out, id.Value) {
			out = append(out, id.Value)
		}
	}
	return out
}

// HasOtherName reports whether name is recorded as an other-name.
func (p Person) HasOtherName(name string) bool {
	for _, on := range p.OtherNames {
		if on.Name == name {
			return true
		}
	}
	return false
}

// AnswersTo reports whether name equals the person's name or an other-name.
func (p Person) AnswersTo(name string) bool {
	return name != "" && (p.Name == name || p.HasOtherName(name))
}

// AddOtherName appends an other-name unless it is already recorded or equals
// the current name.
func (p *Person) AddOtherName(name, note string) bool {
	if name == "" || name == p.Name || p.HasOtherName(name) {
		return false
	}
	p.OtherNames = append(p.OtherNames, OtherName{Name: name, Note: note})
	return true
}

// AddIdentifier appends scheme=value unless already present.
func (p *Person) AddIdentifier(scheme, value string) bool {
	if value == "" || p.HasIdentifier(scheme, value) {
		return false
	}
	p.Identifiers = append(p.Identifiers, Identifier{Scheme: scheme, Value: value})
	return true
}

// Clone returns a deep copy.
func (p Person) Clone() Person {
	p.OtherNames = slices.Clone(p.OtherNames)
	p.Identifiers = slices.Clone(p.Identifiers)
	p.Sources = slices.Clone(p.Sources)
	p.LockedFields = slices.Clone(p.LockedFields)
	return p
}

// HasIdentifier reports whether e carries scheme=value.
func (e Election) HasIdentifier(scheme, value string) bool {
	return hasIdentifier(e.Identifiers, scheme, value)
}

// Year returns the election year.
func (e Election) Year() int {
	return e.Date.Year()
}

// Clone returns a deep copy.
func (e Election) Clone() Election {
	e.Identifiers = slices.Clone(e.Identifiers)
	e.Sources = slices.Clone(e.Sources)
	e.Extras = cloneMap(e.Extras)
	return e
}

// HasIdentifier reports whether c carries scheme=value.
func (c Contest) HasIdentifier(scheme, value string) bool {
	return hasIdentifier(c.Identifiers, scheme, value)
}

// Clone returns a deep copy.
func (c Contest) Clone() Contest {
	c.PostIDs = slices.Clone(c.PostIDs)
	c.Identifiers = slices.Clone(c.Identifiers)
	c.Sources = slices.Clone(c.Sources)
	return c
}

// Clone returns a deep copy.
func (c Candidacy) Clone() Candidacy {
	c.Form501FilingIDs = slices.Clone(c.Form501FilingIDs)
	c.Extras = cloneMap(c.Extras)
	c.Sources = slices.Clone(c.Sources)
	return c
}

// Clone returns a deep copy.
func (m PersonMerge) Clone() PersonMerge {
	m.LockedFields = slices.Clone(m.LockedFields)
	return m
}

// UpsertSource adds src or refreshes the note of an existing source with the
// same URL. It reports whether anything changed.
func UpsertSource(sources []Source, src Source) ([]Source, bool) {
	if src.URL == "" {
		return sources, false
	}
	for i := range sources {
		if sources[i].URL == src.URL {
			if sources[i].Note == src.Note {
				return sources, false
			}
			sources[i].Note = src.Note
			return sources, true
		}
	}
	return append(sources, src), true
}

// ScrapeNote is the note attached to sources observed by the scraper.
func ScrapeNote(at time.Time) string {
	return "scraped on " + at.Format(DateLayout)
}

func hasIdentifier(ids []Identifier, scheme, value string) bool {
	for _, id := range ids {
		if id.Scheme == scheme && id.Value == value {
			return true
		}
	}
	return false
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
