package resolve

import (
	"context"
	"fmt"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// CandidacyRequest is one candidate observation within a resolved contest.
type CandidacyRequest struct {
	Contest ocd.Contest
	Post    ocd.Post
	Name    ocd.NameParts
	// Status is filed when empty. Any other status overwrites the stored one.
	Status  string
	FilerID string
	PartyID int64
	Source  ocd.Source
}

// CandidacyMatcher matches candidate observations to candidacies, creating
// the candidacy and its person when nothing matches.
type CandidacyMatcher struct {
	store store.Store
	log   *logger.Logger
}

// NewCandidacyMatcher creates a candidacy matcher.
func NewCandidacyMatcher(st store.Store, log *logger.Logger) *CandidacyMatcher {
	return &CandidacyMatcher{store: st, log: log}
}

type contestEntry struct {
	candidacy ocd.Candidacy
	person    ocd.Person
}

// GetOrCreate returns the candidacy for req and whether it was created.
// Matching order: filer id, then exact name. A name match whose person
// already carries a different filer id is not a match.
func (m *CandidacyMatcher) GetOrCreate(ctx context.Context, req CandidacyRequest) (ocd.Candidacy, bool, error) {
	name := req.Name.Name
	if name == "" {
		return ocd.Candidacy{}, false, fmt.Errorf("candidacy in contest %d: empty name: %w", req.Contest.ID, ErrInvalidRecord)
	}

	entries, err := m.entries(ctx, req.Contest.ID)
	if err != nil {
		return ocd.Candidacy{}, false, err
	}

	if req.FilerID != "" {
		var byFiler []contestEntry
		for _, e := range entries {
			if e.person.HasIdentifier(ocd.SchemeFilerID, req.FilerID) {
				byFiler = append(byFiler, e)
			}
		}
		switch {
		case len(byFiler) > 1:
			return ocd.Candidacy{}, false, &store.AmbiguousError{What: fmt.Sprintf("candidacy for filer %s in contest %d", req.FilerID, req.Contest.ID), Matches: len(byFiler)}
		case len(byFiler) == 1:
			match := byFiler[0]
			if match.person.AddOtherName(name, "candidate name") {
				if err := m.store.UpdatePerson(ctx, match.person); err != nil {
					return ocd.Candidacy{}, false, fmt.Errorf("failed to update person %d: %w", match.person.ID, err)
				}
			}
			return m.update(ctx, match.candidacy, req)
		}
	}

	var byName []contestEntry
	for _, e := range entries {
		if e.candidacy.CandidateName == name || e.person.AnswersTo(name) {
			byName = append(byName, e)
		}
	}
	if len(byName) > 1 {
		return ocd.Candidacy{}, false, &store.AmbiguousError{What: fmt.Sprintf("candidacy %q in contest %d", name, req.Contest.ID), Matches: len(byName)}
	}
	if len(byName) == 1 {
		match := byName[0]
		filers := match.person.IdentifierValues(ocd.SchemeFilerID)
		switch {
		case req.FilerID == "":
			return m.update(ctx, match.candidacy, req)
		case len(filers) == 0:
			match.person.AddIdentifier(ocd.SchemeFilerID, req.FilerID)
			if err := m.store.UpdatePerson(ctx, match.person); err != nil {
				return ocd.Candidacy{}, false, fmt.Errorf("failed to update person %d: %w", match.person.ID, err)
			}
			return m.update(ctx, match.candidacy, req)
		default:
			m.log.Info("name matches a person with another filer id; creating a new person",
				"name", name, "contest", req.Contest.ID, "filer_id", req.FilerID, "existing", filers)
		}
	}

	return m.create(ctx, req)
}

func (m *CandidacyMatcher) entries(ctx context.Context, contestID int64) ([]contestEntry, error) {
	candidacies, err := m.store.CandidaciesByContest(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidacies for contest %d: %w", contestID, err)
	}
	out := make([]contestEntry, 0, len(candidacies))
	for _, c := range candidacies {
		p, err := m.store.Person(ctx, c.PersonID)
		if err != nil {
			return nil, fmt.Errorf("failed to load person %d: %w", c.PersonID, err)
		}
		out = append(out, contestEntry{candidacy: c, person: p})
	}
	return out, nil
}

func (m *CandidacyMatcher) update(ctx context.Context, c ocd.Candidacy, req CandidacyRequest) (ocd.Candidacy, bool, error) {
	changed := false
	if req.Status != "" && req.Status != ocd.StatusFiled && c.RegistrationStatus != req.Status {
		c.RegistrationStatus = req.Status
		changed = true
	}
	if c.RegistrationStatus == "" {
		c.RegistrationStatus = ocd.StatusFiled
		changed = true
	}
	if c.PartyID == 0 && req.PartyID != 0 {
		c.PartyID = req.PartyID
		changed = true
	}
	var sourceChanged bool
	c.Sources, sourceChanged = ocd.UpsertSource(c.Sources, req.Source)
	changed = changed || sourceChanged

	if changed {
		if err := m.store.UpdateCandidacy(ctx, c); err != nil {
			return ocd.Candidacy{}, false, fmt.Errorf("failed to update candidacy %d: %w", c.ID, err)
		}
	}
	if _, err := SyncPersonName(ctx, m.store, c.PersonID); err != nil {
		return ocd.Candidacy{}, false, err
	}
	return c, false, nil
}

func (m *CandidacyMatcher) create(ctx context.Context, req CandidacyRequest) (ocd.Candidacy, bool, error) {
	person := ocd.Person{
		Name:       req.Name.Name,
		SortName:   req.Name.SortName,
		FamilyName: req.Name.FamilyName,
		GivenName:  req.Name.GivenName,
	}
	person.AddIdentifier(ocd.SchemeFilerID, req.FilerID)
	person.Sources, _ = ocd.UpsertSource(nil, req.Source)
	if err := m.store.CreatePerson(ctx, &person); err != nil {
		return ocd.Candidacy{}, false, fmt.Errorf("failed to create person %s: %w", person.Name, err)
	}

	status := req.Status
	if status == "" {
		status = ocd.StatusFiled
	}
	c := ocd.Candidacy{
		ContestID:          req.Contest.ID,
		PersonID:           person.ID,
		PostID:             req.Post.ID,
		CandidateName:      req.Name.Name,
		PartyID:            req.PartyID,
		RegistrationStatus: status,
	}
	c.Sources, _ = ocd.UpsertSource(nil, req.Source)
	if err := m.store.CreateCandidacy(ctx, &c); err != nil {
		return ocd.Candidacy{}, false, fmt.Errorf("failed to create candidacy for %s: %w", person.Name, err)
	}
	if _, err := SyncPersonName(ctx, m.store, person.ID); err != nil {
		return ocd.Candidacy{}, false, err
	}
	m.log.Debug("created candidacy", "id", c.ID, "person", person.ID, "name", c.CandidateName, "contest", req.Contest.ID)
	return c, true, nil
}

// SyncPersonName sets the person's name to the candidate name of their most
// recent candidacy by election date, keeping the previous name as an
// other-name. The sort, family and given names are derived from the new
// name. Ties on date go to the newest candidacy. It reports whether the
// person changed.
func SyncPersonName(ctx context.Context, st store.Store, personID int64) (bool, error) {
	candidacies, err := st.CandidaciesByPerson(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("failed to list candidacies for person %d: %w", personID, err)
	}

	var (
		latest ocd.Candidacy
		when   int64
		found  bool
	)
	for _, c := range candidacies {
		if c.CandidateName == "" {
			continue
		}
		contest, err := st.Contest(ctx, c.ContestID)
		if err != nil {
			return false, fmt.Errorf("failed to load contest %d: %w", c.ContestID, err)
		}
		election, err := st.Election(ctx, contest.ElectionID)
		if err != nil {
			return false, fmt.Errorf("failed to load election %d: %w", contest.ElectionID, err)
		}
		at := election.Date.Unix()
		if !found || at > when || (at == when && c.ID > latest.ID) {
			latest, when, found = c, at, true
		}
	}
	if !found {
		return false, nil
	}

	person, err := st.Person(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("failed to load person %d: %w", personID, err)
	}
	if person.Name == latest.CandidateName {
		return false, nil
	}
	previous := person.Name
	parts := ocd.ParseDisplayName(latest.CandidateName, person.FamilyName)
	person.Name = latest.CandidateName
	person.SortName = parts.SortName
	person.FamilyName = parts.FamilyName
	person.GivenName = parts.GivenName
	person.AddOtherName(previous, "previous name")
	if err := st.UpdatePerson(ctx, person); err != nil {
		return false, fmt.Errorf("failed to rename person %d: %w", personID, err)
	}
	return true, nil
}
