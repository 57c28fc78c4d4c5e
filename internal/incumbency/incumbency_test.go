package incumbency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store/memory"
)

func TestProjector(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	post := ocd.Post{Label: "State Senate District 7", Role: "Senator", Organization: "California State Senate", Division: ocd.StateDivision + "/sldu:7"}
	require.NoError(t, st.CreatePost(ctx, &post))

	contest := func(year int) ocd.Contest {
		e := ocd.Election{Name: ocd.ElectionName(year, ocd.ElectionGeneral), Date: ocd.Date(year, time.November, 1)}
		require.NoError(t, st.CreateElection(ctx, &e))
		c := ocd.Contest{Kind: ocd.CandidateContest, ElectionID: e.ID, PostIDs: []int64{post.ID}}
		require.NoError(t, st.CreateContest(ctx, &c))
		return c
	}
	person := func(name string) ocd.Person {
		p := ocd.Person{Name: name}
		require.NoError(t, st.CreatePerson(ctx, &p))
		return p
	}
	member := func(p ocd.Person, start string) ocd.Membership {
		m := ocd.Membership{PersonID: p.ID, PostID: post.ID, StartDate: start}
		require.NoError(t, st.CreateMembership(ctx, &m))
		return m
	}
	run := func(p ocd.Person, c ocd.Contest, incumbent bool) ocd.Candidacy {
		cand := ocd.Candidacy{ContestID: c.ID, PersonID: p.ID, PostID: post.ID, CandidateName: p.Name, IsIncumbent: incumbent}
		require.NoError(t, st.CreateCandidacy(ctx, &cand))
		return cand
	}

	alice, bob, carol := person("ALICE"), person("BOB"), person("CAROL")
	aliceTerm := member(alice, "2009")
	bobTerm := member(bob, "2013")

	c2010, c2012, c2014 := contest(2010), contest(2012), contest(2014)
	a2010 := run(alice, c2010, false)
	a2012 := run(alice, c2012, false)
	b2012 := run(bob, c2012, false)
	// A stale flag left over from an earlier merge.
	carol2012 := run(carol, c2012, true)
	b2014 := run(bob, c2014, false)
	a2014 := run(alice, c2014, false)

	p := NewProjector(st, logger.Nop())
	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EndDatesSet)

	got, err := st.MembershipsByPerson(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, aliceTerm.ID, got[0].ID)
	assert.Equal(t, "2013", got[0].EndDate)
	got, err = st.MembershipsByPerson(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bobTerm.ID, got[0].ID)
	assert.Empty(t, got[0].EndDate)

	want := map[int64]bool{
		a2010.ID:     true,
		a2012.ID:     true,
		b2012.ID:     false,
		carol2012.ID: false,
		b2014.ID:     true,
		a2014.ID:     false,
	}
	for id, incumbent := range want {
		c, err := st.Candidacy(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, incumbent, c.IsIncumbent, "candidacy %d", id)
	}

	assertAtMostOneIncumbent(t, st)

	// Idempotent.
	report, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestAtMostOneIncumbentPerContest(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	post := ocd.Post{Label: "State Assembly District 3", Role: "Assembly Member", Organization: "California State Assembly", Division: ocd.StateDivision + "/sldl:3"}
	require.NoError(t, st.CreatePost(ctx, &post))
	e := ocd.Election{Name: "2016 GENERAL", Date: ocd.Date(2016, time.November, 8)}
	require.NoError(t, st.CreateElection(ctx, &e))
	c := ocd.Contest{Kind: ocd.CandidateContest, ElectionID: e.ID, PostIDs: []int64{post.ID}}
	require.NoError(t, st.CreateContest(ctx, &c))

	// Two people both recorded as holding the seat since 2014.
	for _, name := range []string{"ANN", "BEN"} {
		p := ocd.Person{Name: name}
		require.NoError(t, st.CreatePerson(ctx, &p))
		require.NoError(t, st.CreateMembership(ctx, &ocd.Membership{PersonID: p.ID, PostID: post.ID, StartDate: "2014"}))
		require.NoError(t, st.CreateCandidacy(ctx, &ocd.Candidacy{ContestID: c.ID, PersonID: p.ID, PostID: post.ID, CandidateName: name}))
	}

	_, err := NewProjector(st, logger.Nop()).Run(ctx)
	require.NoError(t, err)
	assertAtMostOneIncumbent(t, st)

	candidacies, err := st.CandidaciesByContest(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, candidacies[0].IsIncumbent)
	assert.False(t, candidacies[1].IsIncumbent)
}

func assertAtMostOneIncumbent(t *testing.T, st *memory.Store) {
	t.Helper()
	candidacies, err := st.Candidacies(context.Background())
	require.NoError(t, err)
	counts := make(map[int64]int)
	for _, c := range candidacies {
		if c.IsIncumbent {
			counts[c.ContestID]++
		}
	}
	for contest, n := range counts {
		assert.LessOrEqual(t, n, 1, "contest %d", contest)
	}
}
