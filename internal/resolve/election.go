package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/reference"
	"github.com/ocd-calaccess/internal/store"
)

// ExtraElectionType records the raw type string that produced an election.
const ExtraElectionType = "calaccess_election_type"

// ElectionObservation is one sighting of an election in a source.
type ElectionObservation struct {
	Name         string
	Date         time.Time
	ScrapedID    string
	URL          string
	LastModified time.Time
}

// ElectionResolver maps observations onto canonical elections.
type ElectionResolver struct {
	store  store.ElectionRepository
	inputs store.Inputs
	ref    *reference.Data
	log    *logger.Logger
	now    func() time.Time

	incumbentElections []ocd.ScrapedElection
	incumbentsLoaded   bool
}

// NewElectionResolver creates an election resolver. inputs supplies the
// incumbent elections used to date special elections.
func NewElectionResolver(st store.ElectionRepository, inputs store.Inputs, ref *reference.Data, log *logger.Logger, now func() time.Time) *ElectionResolver {
	return &ElectionResolver{store: st, inputs: inputs, ref: ref, log: log, now: now}
}

// Resolve returns the canonical election for obs and whether it was created.
// Matching order: scraped id, then date. Provenance is attached either way.
func (r *ElectionResolver) Resolve(ctx context.Context, obs ElectionObservation) (ocd.Election, bool, error) {
	parts, err := r.observationParts(obs)
	if err != nil {
		return ocd.Election{}, false, err
	}

	election, found, err := r.lookup(ctx, obs, parts)
	if err != nil {
		return ocd.Election{}, false, err
	}

	src := ocd.Source{URL: obs.URL, Note: ocd.ScrapeNote(r.observedAt(obs))}

	if !found {
		election = ocd.Election{
			Name:                       ocd.ElectionName(parts.Year, parts.Type),
			Date:                       election.Date,
			AdministrativeOrganization: ocd.ElectionAdmin,
			Division:                   ocd.StateDivision,
			Extras:                     map[string]string{ExtraElectionType: parts.Type},
		}
		if obs.ScrapedID != "" {
			election.Identifiers = []ocd.Identifier{{Scheme: ocd.SchemeElectionID, Value: obs.ScrapedID}}
		}
		election.Sources, _ = ocd.UpsertSource(nil, src)
		if err := r.store.CreateElection(ctx, &election); err != nil {
			return ocd.Election{}, false, fmt.Errorf("failed to create election %s: %w", election.Name, err)
		}
		r.log.Debug("created election", "id", election.ID, "name", election.Name, "date", election.Date.Format(ocd.DateLayout))
		return election, true, nil
	}

	changed := false

	// Site labels move from vague to specific, never back.
	if isPlaceholderName(election.Name) && parts.Regular() {
		corrected := ocd.ElectionName(parts.Year, parts.Type)
		if corrected != election.Name {
			r.log.Info("correcting election name", "id", election.ID, "from", election.Name, "to", corrected)
			election.Name = corrected
			changed = true
		}
	}

	if obs.ScrapedID != "" && !election.HasIdentifier(ocd.SchemeElectionID, obs.ScrapedID) {
		election.Identifiers = append(election.Identifiers, ocd.Identifier{Scheme: ocd.SchemeElectionID, Value: obs.ScrapedID})
		changed = true
	}

	var sourceChanged bool
	election.Sources, sourceChanged = ocd.UpsertSource(election.Sources, src)
	changed = changed || sourceChanged

	if changed {
		if err := r.store.UpdateElection(ctx, election); err != nil {
			return ocd.Election{}, false, fmt.Errorf("failed to update election %d: %w", election.ID, err)
		}
	}
	return election, false, nil
}

func (r *ElectionResolver) observationParts(obs ElectionObservation) (ocd.ElectionNameParts, error) {
	if parts, ok := ocd.ParseElectionName(obs.Name); ok {
		return parts, nil
	}
	if obs.Date.IsZero() {
		return ocd.ElectionNameParts{}, &UnresolvableDateError{Name: obs.Name, Reason: "name cannot be parsed and no date was given"}
	}
	typ := ocd.ElectionTypeOf(obs.Name)
	if typ == "" {
		typ = ocd.CleanName(obs.Name)
	}
	return ocd.ElectionNameParts{Year: obs.Date.Year(), Type: typ}, nil
}

// lookup returns the matched election, or a zero election carrying only the
// date to create with.
func (r *ElectionResolver) lookup(ctx context.Context, obs ElectionObservation, parts ocd.ElectionNameParts) (ocd.Election, bool, error) {
	if obs.ScrapedID != "" {
		byID, err := r.store.ElectionByIdentifier(ctx, ocd.SchemeElectionID, obs.ScrapedID)
		if err != nil {
			return ocd.Election{}, false, fmt.Errorf("failed to look up election %s: %w", obs.ScrapedID, err)
		}
		switch byID.State {
		case store.Found:
			return byID.Value, true, nil
		case store.Ambiguous:
			return ocd.Election{}, false, &store.AmbiguousError{What: "election id " + obs.ScrapedID, Matches: len(byID.Matches)}
		}
	}

	date := ocd.CivilDate(obs.Date)
	if date.IsZero() {
		var err error
		if date, err = r.Date(ctx, parts); err != nil {
			return ocd.Election{}, false, err
		}
	}

	byDate, err := r.store.ElectionsByDate(ctx, date)
	if err != nil {
		return ocd.Election{}, false, fmt.Errorf("failed to look up election on %s: %w", date.Format(ocd.DateLayout), err)
	}
	switch byDate.State {
	case store.Found:
		return byDate.Value, true, nil
	case store.Ambiguous:
		return ocd.Election{}, false, &store.AmbiguousError{What: "election date " + date.Format(ocd.DateLayout), Matches: len(byDate.Matches)}
	}
	return ocd.Election{Date: date}, false, nil
}

// Date determines the date of an election from its parsed name: the pinned
// table first, then the statutory rule for regular elections, then the
// scraped incumbent elections for special ones.
func (r *ElectionResolver) Date(ctx context.Context, parts ocd.ElectionNameParts) (time.Time, error) {
	if date, ok := r.ref.SpecialElectionDate(parts); ok {
		return date, nil
	}
	if parts.Regular() {
		return ocd.ExpectedElectionDate(parts.Year, parts.Type)
	}

	date, ok, err := r.incumbentElectionDate(ctx, parts)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return date, nil
	}
	name := ocd.ElectionName(parts.Year, parts.Type)
	if office := parts.OfficeName(); office != "" {
		name += " (" + office + ")"
	}
	return time.Time{}, &UnresolvableDateError{Name: name, Reason: "no pinned date and no matching incumbent election"}
}

func (r *ElectionResolver) incumbentElectionDate(ctx context.Context, parts ocd.ElectionNameParts) (time.Time, bool, error) {
	if !r.incumbentsLoaded {
		elections, err := r.inputs.ScrapedElections(ctx, ocd.ScrapeIncumbents)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("failed to load incumbent elections: %w", err)
		}
		r.incumbentElections = elections
		r.incumbentsLoaded = true
	}

	var dates []time.Time
	for _, e := range r.incumbentElections {
		if e.Date.IsZero() || e.Date.Year() != parts.Year || !matchesIncumbentElection(e.Name, parts) {
			continue
		}
		day := ocd.CivilDate(e.Date)
		seen := false
		for _, d := range dates {
			seen = seen || d.Equal(day)
		}
		if !seen {
			dates = append(dates, day)
		}
	}
	if len(dates) != 1 {
		if len(dates) > 1 {
			r.log.Warn("incumbent elections disagree on date", "year", parts.Year, "type", parts.Type, "office", parts.OfficeName(), "dates", len(dates))
		}
		return time.Time{}, false, nil
	}
	return dates[0], true, nil
}

// matchesIncumbentElection compares an incumbent-list heading such as
// "SPECIAL GENERAL - STATE SENATE DISTRICT 7" with a parsed election name.
func matchesIncumbentElection(heading string, parts ocd.ElectionNameParts) bool {
	h := ocd.CleanName(heading)

	if parts.Office != "" {
		office := parts.Office
		if office == ocd.OfficeSenate {
			office = "SENATE"
		}
		if !strings.Contains(h, office) {
			return false
		}
		if parts.District > 0 && !hasNumber(h, parts.District) {
			return false
		}
	}

	second := strings.Contains(h, "RUNOFF") || strings.Contains(h, "GENERAL")
	switch {
	case strings.Contains(parts.Type, "RECALL"):
		return strings.Contains(h, "RECALL")
	case strings.Contains(parts.Type, "RUNOFF"), parts.Type == ocd.ElectionSpecialGeneral:
		return strings.Contains(h, "SPECIAL") && second
	default:
		return strings.Contains(h, "SPECIAL") && !second
	}
}

var numberPattern = regexp.MustCompile(`\d+`)

// hasNumber reports whether s contains n as a whole number, ignoring leading
// zeros.
func hasNumber(s string, n int) bool {
	for _, digits := range numberPattern.FindAllString(s, -1) {
		if v, err := strconv.Atoi(digits); err == nil && v == n {
			return true
		}
	}
	return false
}

func isPlaceholderName(name string) bool {
	return strings.Contains(name, "SPECIAL") || strings.Contains(name, "RECALL")
}

func (r *ElectionResolver) observedAt(obs ElectionObservation) time.Time {
	if !obs.LastModified.IsZero() {
		return obs.LastModified
	}
	return r.now()
}
