package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// =============================================================================
// PARTIES
// =============================================================================

// SaveParty inserts p, or updates the party with the same name, and sets p.ID.
func (s *Store) SaveParty(_ context.Context, p *ocd.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.st.parties {
		if existing.Name == p.Name {
			p.ID = id
			s.st.parties[id] = *p
			return nil
		}
	}
	p.ID = s.st.nextID()
	s.st.parties[p.ID] = *p
	return nil
}

// Party returns the party with id.
func (s *Store) Party(_ context.Context, id int64) (ocd.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.parties[id]
	if !ok {
		return ocd.Party{}, &store.NotFoundError{Entity: "party", ID: id}
	}
	return p, nil
}

// PartyByName looks up a party by canonical name.
func (s *Store) PartyByName(_ context.Context, name string) (store.Lookup[ocd.Party], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ocd.Party
	for _, id := range sortedIDs(s.st.parties) {
		if p := s.st.parties[id]; p.Name == name {
			matches = append(matches, p)
		}
	}
	return store.LookupOf(matches), nil
}

// Parties returns every party in id order.
func (s *Store) Parties(_ context.Context) ([]ocd.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.Party, 0, len(s.st.parties))
	for _, id := range sortedIDs(s.st.parties) {
		out = append(out, s.st.parties[id])
	}
	return out, nil
}

// =============================================================================
// ELECTIONS
// =============================================================================

// CreateElection inserts e and sets e.ID.
func (s *Store) CreateElection(_ context.Context, e *ocd.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.st.nextID()
	s.st.elections[e.ID] = e.Clone()
	return nil
}

// UpdateElection replaces the stored election with the same id.
func (s *Store) UpdateElection(_ context.Context, e ocd.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.elections[e.ID]; !ok {
		return &store.NotFoundError{Entity: "election", ID: e.ID}
	}
	s.st.elections[e.ID] = e.Clone()
	return nil
}

// Election returns the election with id.
func (s *Store) Election(_ context.Context, id int64) (ocd.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.st.elections[id]
	if !ok {
		return ocd.Election{}, &store.NotFoundError{Entity: "election", ID: id}
	}
	return e.Clone(), nil
}

// ElectionByIdentifier looks up elections carrying scheme=value.
func (s *Store) ElectionByIdentifier(_ context.Context, scheme, value string) (store.Lookup[ocd.Election], error) {
	return s.findElections(func(e ocd.Election) bool { return e.HasIdentifier(scheme, value) }), nil
}

// ElectionsByDate looks up elections held on date.
func (s *Store) ElectionsByDate(_ context.Context, date time.Time) (store.Lookup[ocd.Election], error) {
	day := ocd.CivilDate(date)
	return s.findElections(func(e ocd.Election) bool { return ocd.CivilDate(e.Date).Equal(day) }), nil
}

func (s *Store) findElections(match func(ocd.Election) bool) store.Lookup[ocd.Election] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ocd.Election
	for _, id := range sortedIDs(s.st.elections) {
		if e := s.st.elections[id]; match(e) {
			matches = append(matches, e.Clone())
		}
	}
	return store.LookupOf(matches)
}

// Elections returns every election in id order.
func (s *Store) Elections(_ context.Context) ([]ocd.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.Election, 0, len(s.st.elections))
	for _, id := range sortedIDs(s.st.elections) {
		out = append(out, s.st.elections[id].Clone())
	}
	return out, nil
}

// =============================================================================
// POSTS
// =============================================================================

// CreatePost inserts p and sets p.ID.
func (s *Store) CreatePost(_ context.Context, p *ocd.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := postKey(*p)
	for _, existing := range s.st.posts {
		if postKey(existing) == key {
			return fmt.Errorf("post %q: %w", p.Label, store.ErrDuplicate)
		}
	}
	p.ID = s.st.nextID()
	s.st.posts[p.ID] = *p
	return nil
}

// Post returns the post with id.
func (s *Store) Post(_ context.Context, id int64) (ocd.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.posts[id]
	if !ok {
		return ocd.Post{}, &store.NotFoundError{Entity: "post", ID: id}
	}
	return p, nil
}

// PostByKey looks up posts by label, division, organization and role.
func (s *Store) PostByKey(_ context.Context, key store.PostKey) (store.Lookup[ocd.Post], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ocd.Post
	for _, id := range sortedIDs(s.st.posts) {
		if p := s.st.posts[id]; postKey(p) == key {
			matches = append(matches, p)
		}
	}
	return store.LookupOf(matches), nil
}

// Posts returns every post in id order.
func (s *Store) Posts(_ context.Context) ([]ocd.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.Post, 0, len(s.st.posts))
	for _, id := range sortedIDs(s.st.posts) {
		out = append(out, s.st.posts[id])
	}
	return out, nil
}

func postKey(p ocd.Post) store.PostKey {
	return store.PostKey{Label: p.Label, Division: p.Division, Organization: p.Organization, Role: p.Role}
}

// =============================================================================
// CONTESTS
// =============================================================================

// CreateContest inserts c and sets c.ID.
func (s *Store) CreateContest(_ context.Context, c *ocd.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.elections[c.ElectionID]; !ok {
		return &store.NotFoundError{Entity: "election", ID: c.ElectionID}
	}
	c.ID = s.st.nextID()
	s.st.contests[c.ID] = c.Clone()
	for _, postID := range c.PostIDs {
		s.st.contestsByPost.add(postID, c.ID)
	}
	return nil
}

// UpdateContest replaces the stored contest with the same id.
func (s *Store) UpdateContest(_ context.Context, c ocd.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.st.contests[c.ID]
	if !ok {
		return &store.NotFoundError{Entity: "contest", ID: c.ID}
	}
	for _, postID := range old.PostIDs {
		s.st.contestsByPost.remove(postID, c.ID)
	}
	s.st.contests[c.ID] = c.Clone()
	for _, postID := range c.PostIDs {
		s.st.contestsByPost.add(postID, c.ID)
	}
	return nil
}

// DeleteContest removes a contest that has no candidacies.
func (s *Store) DeleteContest(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.st.contests[id]
	if !ok {
		return &store.NotFoundError{Entity: "contest", ID: id}
	}
	if remaining := s.st.candidaciesByContest.ids(id); len(remaining) > 0 {
		return fmt.Errorf("contest %d still has candidacies %v", id, remaining)
	}
	for _, postID := range c.PostIDs {
		s.st.contestsByPost.remove(postID, id)
	}
	delete(s.st.contests, id)
	return nil
}

// Contest returns the contest with id.
func (s *Store) Contest(_ context.Context, id int64) (ocd.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.contests[id]
	if !ok {
		return ocd.Contest{}, &store.NotFoundError{Entity: "contest", ID: id}
	}
	return c.Clone(), nil
}

// CandidateContest looks up the candidate contest for an election, post and party.
func (s *Store) CandidateContest(_ context.Context, electionID, postID, partyID int64) (store.Lookup[ocd.Contest], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ocd.Contest
	for _, id := range s.st.contestsByPost.ids(postID) {
		c := s.st.contests[id]
		if c.Kind == ocd.CandidateContest && c.ElectionID == electionID && c.PartyID == partyID {
			matches = append(matches, c.Clone())
		}
	}
	return store.LookupOf(matches), nil
}

// ContestByIdentifier looks up contests in an election carrying scheme=value.
func (s *Store) ContestByIdentifier(_ context.Context, electionID int64, scheme, value string) (store.Lookup[ocd.Contest], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ocd.Contest
	for _, id := range sortedIDs(s.st.contests) {
		c := s.st.contests[id]
		if c.ElectionID == electionID && c.HasIdentifier(scheme, value) {
			matches = append(matches, c.Clone())
		}
	}
	return store.LookupOf(matches), nil
}

// ContestsByPost returns the contests for a post in id order.
func (s *Store) ContestsByPost(_ context.Context, postID int64) ([]ocd.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ocd.Contest
	for _, id := range s.st.contestsByPost.ids(postID) {
		out = append(out, s.st.contests[id].Clone())
	}
	return out, nil
}

// Contests returns every contest in id order.
func (s *Store) Contests(_ context.Context) ([]ocd.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.Contest, 0, len(s.st.contests))
	for _, id := range sortedIDs(s.st.contests) {
		out = append(out, s.st.contests[id].Clone())
	}
	return out, nil
}

// =============================================================================
// CANDIDACIES
// =============================================================================

// CreateCandidacy inserts c and sets c.ID.
func (s *Store) CreateCandidacy(_ context.Context, c *ocd.Candidacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCandidacyRefs(*c); err != nil {
		return err
	}
	c.ID = s.st.nextID()
	s.st.candidacies[c.ID] = c.Clone()
	s.st.indexCandidacy(c.ID, *c)
	return nil
}

// UpdateCandidacy replaces the stored candidacy with the same id.
func (s *Store) UpdateCandidacy(_ context.Context, c ocd.Candidacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.st.candidacies[c.ID]
	if !ok {
		return &store.NotFoundError{Entity: "candidacy", ID: c.ID}
	}
	if err := s.checkCandidacyRefs(c); err != nil {
		return err
	}
	s.st.unindexCandidacy(c.ID, old)
	s.st.candidacies[c.ID] = c.Clone()
	s.st.indexCandidacy(c.ID, c)
	return nil
}

func (s *Store) checkCandidacyRefs(c ocd.Candidacy) error {
	if _, ok := s.st.contests[c.ContestID]; !ok {
		return &store.NotFoundError{Entity: "contest", ID: c.ContestID}
	}
	if _, ok := s.st.persons[c.PersonID]; !ok {
		return &store.NotFoundError{Entity: "person", ID: c.PersonID}
	}
	return nil
}

// DeleteCandidacy removes the candidacy with id.
func (s *Store) DeleteCandidacy(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.st.candidacies[id]
	if !ok {
		return &store.NotFoundError{Entity: "candidacy", ID: id}
	}
	s.st.unindexCandidacy(id, c)
	delete(s.st.candidacies, id)
	return nil
}

// Candidacy returns the candidacy with id.
func (s *Store) Candidacy(_ context.Context, id int64) (ocd.Candidacy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.candidacies[id]
	if !ok {
		return ocd.Candidacy{}, &store.NotFoundError{Entity: "candidacy", ID: id}
	}
	return c.Clone(), nil
}

// CandidaciesByContest returns the candidacies in a contest in id order.
func (s *Store) CandidaciesByContest(_ context.Context, contestID int64) ([]ocd.Candidacy, error) {
	return s.candidaciesIn(func(st *state) index { return st.candidaciesByContest }, contestID), nil
}

// CandidaciesByPerson returns the candidacies of a person in id order.
func (s *Store) CandidaciesByPerson(_ context.Context, personID int64) ([]ocd.Candidacy, error) {
	return s.candidaciesIn(func(st *state) index { return st.candidaciesByPerson }, personID), nil
}

// CandidaciesByPost returns the candidacies for a post in id order.
func (s *Store) CandidaciesByPost(_ context.Context, postID int64) ([]ocd.Candidacy, error) {
	return s.candidaciesIn(func(st *state) index { return st.candidaciesByPost }, postID), nil
}

func (s *Store) candidaciesIn(pick func(*state) index, parent int64) []ocd.Candidacy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ocd.Candidacy
	for _, id := range pick(s.st).ids(parent) {
		out = append(out, s.st.candidacies[id].Clone())
	}
	return out
}

// Candidacies returns every candidacy in id order.
func (s *Store) Candidacies(_ context.Context) ([]ocd.Candidacy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.Candidacy, 0, len(s.st.candidacies))
	for _, id := range sortedIDs(s.st.candidacies) {
		out = append(out, s.st.candidacies[id].Clone())
	}
	return out, nil
}

// =============================================================================
// PERSONS
// =============================================================================

// CreatePerson inserts p and sets p.ID.
func (s *Store) CreatePerson(_ context.Context, p *ocd.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.st.nextID()
	s.st.persons[p.ID] = p.Clone()
	return nil
}

// UpdatePerson replaces the stored person with the same id.
func (s *Store) UpdatePerson(_ context.Context, p ocd.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.persons[p.ID]; !ok {
		return &store.NotFoundError{Entity: "person", ID: p.ID}
	}
	s.st.persons[p.ID] = p.Clone()
	return nil
}

// DeletePerson removes a person nothing refers to.
func (s *Store) DeletePerson(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.persons[id]; !ok {
		return &store.NotFoundError{Entity: "person", ID: id}
	}
	candidacies := s.st.candidaciesByPerson.ids(id)
	memberships := s.st.membershipsByPerson.ids(id)
	if len(candidacies) > 0 || len(memberships) > 0 {
		return &store.IntegrityError{PersonID: id, Candidacies: candidacies, Memberships: memberships}
	}
	delete(s.st.persons, id)
	return nil
}

// ReassignPerson points every candidacy and membership of from at to.
func (s *Store) ReassignPerson(_ context.Context, from, to int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.persons[to]; !ok {
		return &store.NotFoundError{Entity: "person", ID: to}
	}
	for _, id := range s.st.candidaciesByPerson.ids(from) {
		c := s.st.candidacies[id]
		s.st.unindexCandidacy(id, c)
		c.PersonID = to
		s.st.candidacies[id] = c
		s.st.indexCandidacy(id, c)
	}
	for _, id := range s.st.membershipsByPerson.ids(from) {
		m := s.st.memberships[id]
		s.st.membershipsByPerson.remove(from, id)
		m.PersonID = to
		s.st.memberships[id] = m
		s.st.membershipsByPerson.add(to, id)
	}
	return nil
}

// Person returns the person with id.
func (s *Store) Person(_ context.Context, id int64) (ocd.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.persons[id]
	if !ok {
		return ocd.Person{}, &store.NotFoundError{Entity: "person", ID: id}
	}
	return p.Clone(), nil
}

// PersonsByIdentifier returns the persons carrying scheme=value.
func (s *Store) PersonsByIdentifier(_ context.Context, scheme, value string) ([]ocd.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ocd.Person
	for _, id := range sortedIDs(s.st.persons) {
		if p := s.st.persons[id]; p.HasIdentifier(scheme, value) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// Persons returns every person in id order.
func (s *Store) Persons(_ context.Context) ([]ocd.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.Person, 0, len(s.st.persons))
	for _, id := range sortedIDs(s.st.persons) {
		out = append(out, s.st.persons[id].Clone())
	}
	return out, nil
}

// =============================================================================
// MEMBERSHIPS
// =============================================================================

// CreateMembership inserts m and sets m.ID.
func (s *Store) CreateMembership(_ context.Context, m *ocd.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.persons[m.PersonID]; !ok {
		return &store.NotFoundError{Entity: "person", ID: m.PersonID}
	}
	m.ID = s.st.nextID()
	s.st.memberships[m.ID] = *m
	s.st.membershipsByPerson.add(m.PersonID, m.ID)
	return nil
}

// UpdateMembership replaces the stored membership with the same id.
func (s *Store) UpdateMembership(_ context.Context, m ocd.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.st.memberships[m.ID]
	if !ok {
		return &store.NotFoundError{Entity: "membership", ID: m.ID}
	}
	s.st.membershipsByPerson.remove(old.PersonID, m.ID)
	s.st.memberships[m.ID] = m
	s.st.membershipsByPerson.add(m.PersonID, m.ID)
	return nil
}

// DeleteMembership removes the membership with id.
func (s *Store) DeleteMembership(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.st.memberships[id]
	if !ok {
		return &store.NotFoundError{Entity: "membership", ID: id}
	}
	s.st.membershipsByPerson.remove(m.PersonID, id)
	delete(s.st.memberships, id)
	return nil
}

// MembershipsByPerson returns the memberships of a person in id order.
func (s *Store) MembershipsByPerson(_ context.Context, personID int64) ([]ocd.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ocd.Membership
	for _, id := range s.st.membershipsByPerson.ids(personID) {
		out = append(out, s.st.memberships[id])
	}
	return out, nil
}

// Memberships returns every membership in id order.
func (s *Store) Memberships(_ context.Context) ([]ocd.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.Membership, 0, len(s.st.memberships))
	for _, id := range sortedIDs(s.st.memberships) {
		out = append(out, s.st.memberships[id])
	}
	return out, nil
}

// =============================================================================
// MERGE LOG
// =============================================================================

// RecordMerge appends m to the merge log and sets m.ID.
func (s *Store) RecordMerge(_ context.Context, m *ocd.PersonMerge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.st.nextID()
	s.st.merges = append(s.st.merges, m.Clone())
	return nil
}

// Merges returns the merge log in id order.
func (s *Store) Merges(_ context.Context) ([]ocd.PersonMerge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ocd.PersonMerge, 0, len(s.st.merges))
	for _, m := range s.st.merges {
		out = append(out, m.Clone())
	}
	slices.SortFunc(out, func(a, b ocd.PersonMerge) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
