package merge

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// Reasons recorded on the merge audit.
const (
	ReasonFilerID     = "filer_id"
	ReasonContestName = "contest_name"
)

// Group is a set of persons found to be one individual. Survivor is the
// lowest id.
type Group struct {
	Survivor int64
	Losers   []int64
	Reason   string
}

// disjointSet is a union-find over person ids that also tracks the filer ids
// seen in each component.
type disjointSet struct {
	parent map[int64]int64
	filers map[int64][]string
	byName map[int64]bool
}

func newDisjointSet() *disjointSet {
	return &disjointSet{
		parent: make(map[int64]int64),
		filers: make(map[int64][]string),
		byName: make(map[int64]bool),
	}
}

func (d *disjointSet) add(id int64, filers []string) {
	if _, ok := d.parent[id]; ok {
		return
	}
	d.parent[id] = id
	d.filers[id] = slices.Clone(filers)
}

func (d *disjointSet) find(id int64) int64 {
	root := id
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for d.parent[id] != root {
		next := d.parent[id]
		d.parent[id] = root
		id = next
	}
	return root
}

// conflicts reports whether joining a and b would put two different filer
// ids in one component.
func (d *disjointSet) conflicts(a, b int64) bool {
	fa, fb := d.filers[d.find(a)], d.filers[d.find(b)]
	if len(fa) == 0 || len(fb) == 0 {
		return false
	}
	for _, f := range fa {
		if slices.Contains(fb, f) {
			return false
		}
	}
	return true
}

func (d *disjointSet) union(a, b int64, byName bool) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		d.byName[ra] = d.byName[ra] || byName
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	for _, f := range d.filers[rb] {
		if !slices.Contains(d.filers[ra], f) {
			d.filers[ra] = append(d.filers[ra], f)
		}
	}
	d.byName[ra] = d.byName[ra] || d.byName[rb] || byName
	delete(d.filers, rb)
	delete(d.byName, rb)
}

func (d *disjointSet) groups() []Group {
	members := make(map[int64][]int64)
	for id := range d.parent {
		root := d.find(id)
		members[root] = append(members[root], id)
	}
	var out []Group
	for root, ids := range members {
		if len(ids) < 2 {
			continue
		}
		slices.Sort(ids)
		g := Group{Survivor: ids[0], Losers: ids[1:], Reason: ReasonFilerID}
		if d.byName[root] {
			g.Reason = ReasonContestName
		}
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b Group) int { return cmp.Compare(a.Survivor, b.Survivor) })
	return out
}

// FindGroups computes the merge groups over the whole store without writing.
// Persons sharing a filer id always group. Persons sharing a candidate name,
// person name or other-name within a contest group when the name group has
// at most one party (or is split by party) and at most one filer id, and the
// join does not bring two different filer ids together.
func FindGroups(ctx context.Context, st store.Store) ([]Group, error) {
	persons, err := st.Persons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	byID := make(map[int64]ocd.Person, len(persons))
	set := newDisjointSet()
	byFiler := make(map[string][]int64)
	for _, p := range persons {
		byID[p.ID] = p
		filers := p.IdentifierValues(ocd.SchemeFilerID)
		set.add(p.ID, filers)
		for _, f := range filers {
			byFiler[f] = append(byFiler[f], p.ID)
		}
	}

	filerIDs := make([]string, 0, len(byFiler))
	for f := range byFiler {
		filerIDs = append(filerIDs, f)
	}
	slices.Sort(filerIDs)
	for _, f := range filerIDs {
		ids := byFiler[f]
		for _, id := range ids[1:] {
			set.union(ids[0], id, false)
		}
	}

	candidacies, err := st.Candidacies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidacies: %w", err)
	}
	byContest := make(map[int64][]ocd.Candidacy)
	var contestIDs []int64
	for _, c := range candidacies {
		if _, ok := byID[c.PersonID]; !ok {
			continue
		}
		if _, ok := byContest[c.ContestID]; !ok {
			contestIDs = append(contestIDs, c.ContestID)
		}
		byContest[c.ContestID] = append(byContest[c.ContestID], c)
	}
	slices.Sort(contestIDs)

	for _, contestID := range contestIDs {
		for _, group := range nameGroups(byContest[contestID], byID) {
			for _, sub := range splitByParty(group) {
				persons := distinctPersons(sub)
				if len(persons) < 2 || countFilers(persons, byID) > 1 {
					continue
				}
				for _, id := range persons[1:] {
					if set.conflicts(persons[0], id) {
						continue
					}
					set.union(persons[0], id, true)
				}
			}
		}
	}
	return set.groups(), nil
}

// nameGroups groups a contest's candidacies three ways: by candidate name,
// by person name and by each person other-name.
func nameGroups(candidacies []ocd.Candidacy, persons map[int64]ocd.Person) [][]ocd.Candidacy {
	byCandidate := make(map[string][]ocd.Candidacy)
	byPerson := make(map[string][]ocd.Candidacy)
	byOther := make(map[string][]ocd.Candidacy)
	for _, c := range candidacies {
		p := persons[c.PersonID]
		if c.CandidateName != "" {
			byCandidate[c.CandidateName] = append(byCandidate[c.CandidateName], c)
		}
		if p.Name != "" {
			byPerson[p.Name] = append(byPerson[p.Name], c)
		}
		for _, on := range p.OtherNames {
			byOther[on.Name] = append(byOther[on.Name], c)
		}
	}

	var out [][]ocd.Candidacy
	for _, m := range []map[string][]ocd.Candidacy{byCandidate, byPerson, byOther} {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if len(m[k]) > 1 {
				out = append(out, m[k])
			}
		}
	}
	return out
}

// splitByParty returns the group unchanged when it has at most one party and
// one subgroup per party otherwise. Candidacies without a party form their
// own subgroup.
func splitByParty(group []ocd.Candidacy) [][]ocd.Candidacy {
	var parties []int64
	for _, c := range group {
		if c.PartyID != 0 && !slices.Contains(parties, c.PartyID) {
			parties = append(parties, c.PartyID)
		}
	}
	if len(parties) <= 1 {
		return [][]ocd.Candidacy{group}
	}
	sub := make(map[int64][]ocd.Candidacy)
	var order []int64
	for _, c := range group {
		if _, ok := sub[c.PartyID]; !ok {
			order = append(order, c.PartyID)
		}
		sub[c.PartyID] = append(sub[c.PartyID], c)
	}
	out := make([][]ocd.Candidacy, 0, len(order))
	for _, party := range order {
		out = append(out, sub[party])
	}
	return out
}

func distinctPersons(group []ocd.Candidacy) []int64 {
	var ids []int64
	for _, c := range group {
		if !slices.Contains(ids, c.PersonID) {
			ids = append(ids, c.PersonID)
		}
	}
	slices.Sort(ids)
	return ids
}

func countFilers(ids []int64, persons map[int64]ocd.Person) int {
	var filers []string
	for _, id := range ids {
		for _, f := range persons[id].IdentifierValues(ocd.SchemeFilerID) {
			if !slices.Contains(filers, f) {
				filers = append(filers, f)
			}
		}
	}
	return len(filers)
}
