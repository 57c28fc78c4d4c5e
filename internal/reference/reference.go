// Package reference loads the read-only correction datasets consulted by the
// resolvers. Data is loaded once per run and never written by the pipeline.
package reference

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/ocd-calaccess/internal/ocd"
)

//go:embed defaults.json5
var defaults []byte

// Correction overrides the party of one candidate in one contest.
type Correction struct {
	CandidateName string `json:"candidate_name"`
	Year          int    `json:"year"`
	ElectionType  string `json:"election_type"`
	Office        string `json:"office"`
	Party         string `json:"party"`
}

// SpecialElection pins the date of an election with no statutory rule.
type SpecialElection struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Note string `json:"note,omitempty"`
}

// BlacklistEntry names a contest that must never exist.
type BlacklistEntry struct {
	ElectionName string `json:"election_name"`
	Office       string `json:"office"`
}

// File is the on-disk shape of a reference dataset.
type File struct {
	Corrections      []Correction      `json:"corrections"`
	SpecialElections []SpecialElection `json:"special_elections"`
	ContestBlacklist []BlacklistEntry  `json:"contest_blacklist"`
	NameFixes        map[string]string `json:"name_fixes"`
}

type correctionKey struct {
	name   string
	year   int
	typ    string
	office string
}

type blacklistKey struct {
	election string
	office   string
}

// Data is the indexed, immutable reference dataset.
type Data struct {
	file        File
	corrections map[correctionKey]string
	specials    map[string]time.Time
	blacklist   map[blacklistKey]struct{}
	names       ocd.NameParser
}

// Load parses the embedded defaults and merges the optional override file on
// top. Override slices are appended; override name fixes replace defaults.
func Load(overridePath string) (*Data, error) {
	var base File
	if err := json5.Unmarshal(defaults, &base); err != nil {
		return nil, fmt.Errorf("failed to parse embedded reference data: %w", err)
	}

	if overridePath != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference override %s: %w", overridePath, err)
		}
		var override File
		if err := json5.Unmarshal(raw, &override); err != nil {
			return nil, fmt.Errorf("failed to parse reference override %s: %w", overridePath, err)
		}
		if err := mergo.Merge(&base, override, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return nil, fmt.Errorf("failed to merge reference override: %w", err)
		}
	}

	return New(base)
}

// New indexes f. Entries are validated so a bad override fails at start-up.
func New(f File) (*Data, error) {
	d := &Data{
		file:        f,
		corrections: make(map[correctionKey]string, len(f.Corrections)),
		specials:    make(map[string]time.Time, len(f.SpecialElections)),
		blacklist:   make(map[blacklistKey]struct{}, len(f.ContestBlacklist)),
		names:       ocd.NewNameParser(f.NameFixes),
	}

	for _, c := range f.Corrections {
		party := ocd.NormalizeParty(c.Party)
		if party == ocd.PartyUnknown {
			return nil, fmt.Errorf("correction for %q has unknown party %q", c.CandidateName, c.Party)
		}
		d.corrections[newCorrectionKey(c.CandidateName, c.Year, c.ElectionType, c.Office)] = party
	}

	for _, s := range f.SpecialElections {
		date, err := time.Parse(ocd.DateLayout, s.Date)
		if err != nil {
			return nil, fmt.Errorf("special election %q has invalid date: %w", s.Name, err)
		}
		key, ok := specialKey(s.Name)
		if !ok {
			return nil, fmt.Errorf("special election %q is not a valid election name", s.Name)
		}
		d.specials[key] = date
	}

	for _, b := range f.ContestBlacklist {
		d.blacklist[blacklistKey{election: ocd.CleanName(b.ElectionName), office: normalizeOffice(b.Office)}] = struct{}{}
	}

	return d, nil
}

// MustDefault loads the embedded defaults and panics on failure.
func MustDefault() *Data {
	d, err := Load("")
	if err != nil {
		panic(err)
	}
	return d
}

// File returns the dataset as loaded.
func (d *Data) File() File {
	return d.file
}

// NameParser returns a parser that applies the name fixes.
func (d *Data) NameParser() ocd.NameParser {
	return d.names
}

// CorrectedParty returns the corrected canonical party name, if any.
func (d *Data) CorrectedParty(candidateName string, year int, electionType, office string) (string, bool) {
	party, ok := d.corrections[newCorrectionKey(candidateName, year, electionType, office)]
	return party, ok
}

// SpecialElectionDate returns the pinned date for an election name.
func (d *Data) SpecialElectionDate(parts ocd.ElectionNameParts) (time.Time, bool) {
	date, ok := d.specials[partsKey(parts)]
	return date, ok
}

// Blacklisted reports whether the contest for office in the named election
// must not exist.
func (d *Data) Blacklisted(electionName, office string) bool {
	_, ok := d.blacklist[blacklistKey{election: ocd.CleanName(electionName), office: normalizeOffice(office)}]
	return ok
}

func newCorrectionKey(name string, year int, typ, office string) correctionKey {
	return correctionKey{
		name:   ocd.CleanName(name),
		year:   year,
		typ:    ocd.CleanName(typ),
		office: normalizeOffice(office),
	}
}

func normalizeOffice(office string) string {
	return ocd.ParseOfficeName(office).String()
}

func specialKey(name string) (string, bool) {
	parts, ok := ocd.ParseElectionName(name)
	if !ok {
		return "", false
	}
	return partsKey(parts), true
}

func partsKey(parts ocd.ElectionNameParts) string {
	key := ocd.ElectionName(parts.Year, parts.Type)
	if office := parts.OfficeName(); office != "" {
		key += " (" + office + ")"
	}
	return strings.ToUpper(key)
}
