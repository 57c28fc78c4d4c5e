package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

func seed(t *testing.T, s *Store) (ocd.Election, ocd.Post, ocd.Contest, ocd.Person) {
	t.Helper()
	ctx := context.Background()

	e := ocd.Election{Name: "2016 GENERAL", Date: ocd.Date(2016, time.November, 8)}
	require.NoError(t, s.CreateElection(ctx, &e))
	p := ocd.Post{Label: "State Assembly District 10", Role: "Assembly Member", Organization: "California State Assembly", Division: "ocd-division/country:us/state:ca/sldl:10"}
	require.NoError(t, s.CreatePost(ctx, &p))
	c := ocd.Contest{Kind: ocd.CandidateContest, Name: "ASSEMBLY 10", ElectionID: e.ID, PostIDs: []int64{p.ID}}
	require.NoError(t, s.CreateContest(ctx, &c))
	person := ocd.Person{Name: "JANE DOE"}
	require.NoError(t, s.CreatePerson(ctx, &person))
	return e, p, c, person
}

func TestLookupStates(t *testing.T) {
	ctx := context.Background()
	s := New()
	e, p, _, _ := seed(t, s)

	got, err := s.ElectionsByDate(ctx, time.Date(2016, time.November, 8, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, store.Found, got.State)
	assert.Equal(t, e.ID, got.Value.ID)

	got, err = s.ElectionsByDate(ctx, ocd.Date(2016, time.June, 7))
	require.NoError(t, err)
	assert.Equal(t, store.NotFound, got.State)

	dup := ocd.Election{Name: "2016 SPECIAL", Date: e.Date}
	require.NoError(t, s.CreateElection(ctx, &dup))
	got, err = s.ElectionsByDate(ctx, e.Date)
	require.NoError(t, err)
	assert.True(t, got.Ambiguous())
	assert.Len(t, got.Matches, 2)

	posts, err := s.PostByKey(ctx, store.PostKey{Label: p.Label, Division: p.Division, Organization: p.Organization, Role: p.Role})
	require.NoError(t, err)
	assert.True(t, posts.Found())

	err = s.CreatePost(ctx, &ocd.Post{Label: p.Label, Division: p.Division, Organization: p.Organization, Role: p.Role})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _, _, person := seed(t, s)

	got, err := s.Person(ctx, person.ID)
	require.NoError(t, err)
	got.OtherNames = append(got.OtherNames, ocd.OtherName{Name: "MUTATED"})
	got.Name = "MUTATED"

	again, err := s.Person(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "JANE DOE", again.Name)
	assert.Empty(t, again.OtherNames)
}

func TestDeletePersonIntegrity(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, p, c, person := seed(t, s)

	cand := ocd.Candidacy{ContestID: c.ID, PersonID: person.ID, PostID: p.ID, CandidateName: person.Name}
	require.NoError(t, s.CreateCandidacy(ctx, &cand))
	m := ocd.Membership{PersonID: person.ID, PostID: p.ID, StartDate: "2014"}
	require.NoError(t, s.CreateMembership(ctx, &m))

	err := s.DeletePerson(ctx, person.ID)
	require.ErrorIs(t, err, store.ErrMergeIntegrity)
	var ie *store.IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []int64{cand.ID}, ie.Candidacies)
	assert.Equal(t, []int64{m.ID}, ie.Memberships)

	other := ocd.Person{Name: "JANE Q DOE"}
	require.NoError(t, s.CreatePerson(ctx, &other))
	require.NoError(t, s.ReassignPerson(ctx, person.ID, other.ID))
	require.NoError(t, s.DeletePerson(ctx, person.ID))

	byPerson, err := s.CandidaciesByPerson(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, byPerson, 1)
	assert.Equal(t, cand.ID, byPerson[0].ID)

	memberships, err := s.MembershipsByPerson(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, memberships, 1)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _, _, person := seed(t, s)
	before := s.Graph()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Store) error {
		p, err := tx.Person(ctx, person.ID)
		require.NoError(t, err)
		p.Name = "CHANGED"
		require.NoError(t, tx.UpdatePerson(ctx, p))
		require.NoError(t, tx.CreatePerson(ctx, &ocd.Person{Name: "NEW"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Empty(t, cmp.Diff(before, s.Graph()))

	err = s.WithTx(ctx, func(tx store.Store) error {
		return tx.CreatePerson(ctx, &ocd.Person{Name: "KEPT"})
	})
	require.NoError(t, err)
	persons, err := s.Persons(ctx)
	require.NoError(t, err)
	assert.Len(t, persons, 2)
}

func TestFromGraphContinuesIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	copied := FromGraph(s.Graph())
	assert.Empty(t, cmp.Diff(s.Graph(), copied.Graph()))

	p := ocd.Person{Name: "NEXT"}
	require.NoError(t, copied.CreatePerson(ctx, &p))
	assert.Equal(t, int64(5), p.ID)

	contests, err := copied.ContestsByPost(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, contests, 1)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	raw := ocd.Date(2018, time.January, 2)
	now := time.Date(2018, time.January, 3, 9, 0, 0, 0, time.UTC)

	v, err := l.OpenVersion(ctx, raw, now)
	require.NoError(t, err)
	again, err := l.OpenVersion(ctx, raw, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, v, again)

	require.NoError(t, l.StartFile(ctx, v.ID, "elections", ocd.FileStage, now))
	require.NoError(t, l.FinishFile(ctx, v.ID, "elections", ocd.FileStage, now.Add(time.Minute), 12))
	files, err := l.Files(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Finished())
	assert.Equal(t, 12, files[0].RecordsCount)

	require.NoError(t, l.StartFile(ctx, v.ID, "elections", ocd.FileStage, now.Add(2*time.Minute)))
	files, err = l.Files(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, files[0].Finished())
}

func TestFilerTypeAsOf(t *testing.T) {
	ctx := context.Background()
	in := &Inputs{FilerTypes: []ocd.FilerTypeRecord{
		{FilerID: "1", EffectiveDate: ocd.Date(2010, time.January, 1), PartyCode: "16001"},
		{FilerID: "1", EffectiveDate: ocd.Date(2014, time.January, 1), PartyCode: "16002"},
		{FilerID: "2", EffectiveDate: ocd.Date(2012, time.January, 1), PartyCode: "16003"},
	}}

	got, ok, err := in.FilerTypeAsOf(ctx, "1", ocd.Date(2012, time.June, 5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "16001", got.PartyCode)

	_, ok, err = in.FilerTypeAsOf(ctx, "1", ocd.Date(2009, time.June, 5))
	require.NoError(t, err)
	assert.False(t, ok)
}
