// Package memory provides the indexed in-memory working set the pipeline
// resolves against, plus in-memory inputs, ledger and graph persistence for
// tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

type idSet map[int64]struct{}

// index maps a parent id to the ids of rows referencing it.
type index map[int64]idSet

func (ix index) add(parent, id int64) {
	set, ok := ix[parent]
	if !ok {
		set = make(idSet)
		ix[parent] = set
	}
	set[id] = struct{}{}
}

func (ix index) remove(parent, id int64) {
	if set, ok := ix[parent]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(ix, parent)
		}
	}
}

func (ix index) ids(parent int64) []int64 {
	return sortedIDs(ix[parent])
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := slices.Collect(maps.Keys(m))
	slices.Sort(ids)
	return ids
}

type state struct {
	parties     map[int64]ocd.Party
	elections   map[int64]ocd.Election
	posts       map[int64]ocd.Post
	contests    map[int64]ocd.Contest
	candidacies map[int64]ocd.Candidacy
	persons     map[int64]ocd.Person
	memberships map[int64]ocd.Membership
	merges      []ocd.PersonMerge

	lastID int64

	candidaciesByContest index
	candidaciesByPerson  index
	candidaciesByPost    index
	contestsByPost       index
	membershipsByPerson  index
}

func newState() *state {
	return &state{
		parties:     make(map[int64]ocd.Party),
		elections:   make(map[int64]ocd.Election),
		posts:       make(map[int64]ocd.Post),
		contests:    make(map[int64]ocd.Contest),
		candidacies: make(map[int64]ocd.Candidacy),
		persons:     make(map[int64]ocd.Person),
		memberships: make(map[int64]ocd.Membership),
	}
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *state) see(id int64) {
	if id > s.lastID {
		s.lastID = id
	}
}

// reindex rebuilds every secondary index from the primary maps.
func (s *state) reindex() {
	s.candidaciesByContest = make(index)
	s.candidaciesByPerson = make(index)
	s.candidaciesByPost = make(index)
	s.contestsByPost = make(index)
	s.membershipsByPerson = make(index)
	for id, c := range s.candidacies {
		s.indexCandidacy(id, c)
	}
	for id, c := range s.contests {
		for _, postID := range c.PostIDs {
			s.contestsByPost.add(postID, id)
		}
	}
	for id, m := range s.memberships {
		s.membershipsByPerson.add(m.PersonID, id)
	}
}

func (s *state) indexCandidacy(id int64, c ocd.Candidacy) {
	s.candidaciesByContest.add(c.ContestID, id)
	s.candidaciesByPerson.add(c.PersonID, id)
	s.candidaciesByPost.add(c.PostID, id)
}

func (s *state) unindexCandidacy(id int64, c ocd.Candidacy) {
	s.candidaciesByContest.remove(c.ContestID, id)
	s.candidaciesByPerson.remove(c.PersonID, id)
	s.candidaciesByPost.remove(c.PostID, id)
}

func (s *state) clone() *state {
	out := newState()
	for id, v := range s.parties {
		out.parties[id] = v
	}
	for id, v := range s.elections {
		out.elections[id] = v.Clone()
	}
	for id, v := range s.posts {
		out.posts[id] = v
	}
	for id, v := range s.contests {
		out.contests[id] = v.Clone()
	}
	for id, v := range s.candidacies {
		out.candidacies[id] = v.Clone()
	}
	for id, v := range s.persons {
		out.persons[id] = v.Clone()
	}
	for id, v := range s.memberships {
		out.memberships[id] = v
	}
	for _, m := range s.merges {
		out.merges = append(out.merges, m.Clone())
	}
	out.lastID = s.lastID
	out.reindex()
	return out
}

// Store is the in-memory canonical graph. It is safe for concurrent use, but
// WithTx calls must not nest.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   *state
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	st := newState()
	st.reindex()
	return &Store{st: st}
}

// FromGraph creates a store holding a copy of g. New ids continue after the
// highest id present in g.
func FromGraph(g store.Graph) *Store {
	st := newState()
	for _, v := range g.Parties {
		st.parties[v.ID] = v
		st.see(v.ID)
	}
	for _, v := range g.Elections {
		st.elections[v.ID] = v.Clone()
		st.see(v.ID)
	}
	for _, v := range g.Posts {
		st.posts[v.ID] = v
		st.see(v.ID)
	}
	for _, v := range g.Contests {
		st.contests[v.ID] = v.Clone()
		st.see(v.ID)
	}
	for _, v := range g.Candidacies {
		st.candidacies[v.ID] = v.Clone()
		st.see(v.ID)
	}
	for _, v := range g.Persons {
		st.persons[v.ID] = v.Clone()
		st.see(v.ID)
	}
	for _, v := range g.Memberships {
		st.memberships[v.ID] = v
		st.see(v.ID)
	}
	for _, v := range g.Merges {
		st.merges = append(st.merges, v.Clone())
		st.see(v.ID)
	}
	st.reindex()
	return &Store{st: st}
}

// Graph returns a copy of every entity ordered by id.
func (s *Store) Graph() store.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var g store.Graph
	for _, id := range sortedIDs(s.st.parties) {
		g.Parties = append(g.Parties, s.st.parties[id])
	}
	for _, id := range sortedIDs(s.st.elections) {
		g.Elections = append(g.Elections, s.st.elections[id].Clone())
	}
	for _, id := range sortedIDs(s.st.posts) {
		g.Posts = append(g.Posts, s.st.posts[id])
	}
	for _, id := range sortedIDs(s.st.contests) {
		g.Contests = append(g.Contests, s.st.contests[id].Clone())
	}
	for _, id := range sortedIDs(s.st.candidacies) {
		g.Candidacies = append(g.Candidacies, s.st.candidacies[id].Clone())
	}
	for _, id := range sortedIDs(s.st.persons) {
		g.Persons = append(g.Persons, s.st.persons[id].Clone())
	}
	for _, id := range sortedIDs(s.st.memberships) {
		g.Memberships = append(g.Memberships, s.st.memberships[id])
	}
	for _, m := range s.st.merges {
		g.Merges = append(g.Merges, m.Clone())
	}
	return g
}

// WithTx snapshots the graph before fn and restores the snapshot if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	saved := s.st.clone()
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}
