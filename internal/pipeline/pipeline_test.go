package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/reference"
	"github.com/ocd-calaccess/internal/store"
	"github.com/ocd-calaccess/internal/store/memory"
)

var (
	testNow    = time.Date(2018, time.January, 15, 12, 0, 0, 0, time.UTC)
	rawVersion = time.Date(2018, time.January, 14, 0, 0, 0, 0, time.UTC)
)

func fixtureInputs() *memory.Inputs {
	scraped := testNow.Add(-time.Hour)
	return &memory.Inputs{
		Elections: []ocd.ScrapedElection{
			{Kind: ocd.ScrapeCandidates, ScrapedID: "65", Name: "2018 PRIMARY", Date: ocd.Date(2018, time.June, 5), URL: "https://example.test/candidates/65", LastModified: scraped},
			{Kind: ocd.ScrapeCandidates, ScrapedID: "66", Name: "2018 GENERAL", Date: ocd.Date(2018, time.November, 6), URL: "https://example.test/candidates/66", LastModified: scraped},
			{Kind: ocd.ScrapePropositions, ScrapedID: "66", Name: "2018 GENERAL", Date: ocd.Date(2018, time.November, 6), URL: "https://example.test/propositions/66", LastModified: scraped},
		},
		Candidates: []ocd.ScrapedCandidate{
			{ScrapedID: "c1", ElectionScrapedID: "65", Name: "DOE, JANE", OfficeName: "ASSEMBLY 10", URL: "https://example.test/candidates/65", LastModified: scraped},
			{ScrapedID: "c2", ElectionScrapedID: "65", Name: "SMITH, JOHN", OfficeName: "STATE SENATE 07", FilerID: "100", URL: "https://example.test/candidates/65", LastModified: scraped},
			{ScrapedID: "c3", ElectionScrapedID: "66", Name: "SMITH, JOHN Q", OfficeName: "STATE SENATE 07", FilerID: "100", URL: "https://example.test/candidates/66", LastModified: scraped},
			{ScrapedID: "c4", ElectionScrapedID: "99", Name: "NOBODY, NOEL", OfficeName: "ASSEMBLY 11"},
		},
		Incumbents: []ocd.ScrapedIncumbent{
			{ScrapedID: "i1", Name: "SMITH, JOHN", OfficeName: "STATE SENATE 07", SessionYear: 2017, URL: "https://example.test/incumbents", LastModified: scraped},
		},
		Propositions: []ocd.ScrapedProposition{
			{ScrapedID: "p1", ElectionScrapedID: "66", Name: "PROPOSITION 1 - WATER BOND", URL: "https://example.test/propositions/66", LastModified: scraped},
		},
		Form501: []ocd.Form501Filing{
			{FilingID: 10, FilerID: "5001", Office: ocd.OfficeAssembly, District: 10, Party: "DEMOCRATIC", ElectionYear: 2018, ElectionType: "PRIMARY", LastName: "DOE", FirstName: "JANE", StatementType: "10001", DateFiled: ocd.Date(2017, time.December, 1)},
			{FilingID: 11, FilerID: "5001", Office: ocd.OfficeAssembly, District: 10, Party: "DEMOCRATIC", ElectionYear: 2018, ElectionType: "PRIMARY", LastName: "DOE", FirstName: "JANE", StatementType: ocd.StatementWithdrawal, DateFiled: ocd.Date(2018, time.January, 10)},
		},
	}
}

func newPipeline(graph store.GraphStore, ledger store.Ledger) *Pipeline {
	return New(graph, fixtureInputs(), ledger, reference.MustDefault(), logger.Nop(), func() time.Time { return testNow })
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	graph := &memory.GraphStore{}
	ledger := memory.NewLedger()

	report, err := newPipeline(graph, ledger).Run(ctx, Options{RawVersion: rawVersion})
	require.NoError(t, err)
	require.Len(t, report.Stages, len(Stages))
	for i, sr := range report.Stages {
		assert.Equal(t, Stages[i], sr.Stage)
		assert.False(t, sr.Resumed)
	}
	assert.Equal(t, len(Stages), graph.Saves())

	candidacies := report.Stages[3]
	assert.Equal(t, 3, candidacies.Created)
	assert.Equal(t, 1, candidacies.Skipped, "candidate for an unknown election")

	g, err := graph.LoadGraph(ctx)
	require.NoError(t, err)
	st := memory.FromGraph(g)

	t.Run("merged person keeps both names", func(t *testing.T) {
		persons, err := st.PersonsByIdentifier(ctx, ocd.SchemeFilerID, "100")
		require.NoError(t, err)
		require.Len(t, persons, 1)
		john := persons[0]
		assert.Equal(t, "JOHN Q SMITH", john.Name)
		assert.Equal(t, []string{"100"}, john.IdentifierValues(ocd.SchemeFilerID))
		assert.True(t, john.HasOtherName("JOHN SMITH"))
		assert.True(t, john.HasOtherName("JOHN Q SMITH"))

		merges, err := st.Merges(ctx)
		require.NoError(t, err)
		require.Len(t, merges, 1)
		assert.Equal(t, john.ID, merges[0].SurvivorID)

		memberships, err := st.MembershipsByPerson(ctx, john.ID)
		require.NoError(t, err)
		require.Len(t, memberships, 1)
		assert.Equal(t, "2017", memberships[0].StartDate)

		runs, err := st.CandidaciesByPerson(ctx, john.ID)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		for _, c := range runs {
			assert.True(t, c.IsIncumbent, "candidacy %d", c.ID)
		}
	})

	t.Run("form 501 withdrawal", func(t *testing.T) {
		persons, err := st.PersonsByIdentifier(ctx, ocd.SchemeFilerID, "5001")
		require.NoError(t, err)
		require.Len(t, persons, 1)
		runs, err := st.CandidaciesByPerson(ctx, persons[0].ID)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, ocd.StatusWithdrawn, runs[0].RegistrationStatus)
		assert.Equal(t, []int64{10, 11}, runs[0].Form501FilingIDs)
		party, err := st.Party(ctx, runs[0].PartyID)
		require.NoError(t, err)
		assert.Equal(t, "DEMOCRATIC", party.Name)
	})

	t.Run("measures share the scraped election", func(t *testing.T) {
		elections, err := st.Elections(ctx)
		require.NoError(t, err)
		assert.Len(t, elections, 2)

		var measures []ocd.Contest
		contests, err := st.Contests(ctx)
		require.NoError(t, err)
		for _, c := range contests {
			if c.Kind == ocd.BallotMeasureContest {
				measures = append(measures, c)
			}
		}
		require.Len(t, measures, 1)
		assert.True(t, measures[0].HasIdentifier(ocd.SchemeMeasureID, "p1"))
	})

	t.Run("ledger", func(t *testing.T) {
		versions, err := ledger.Versions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.True(t, versions[0].Finished())
		files, err := ledger.Files(ctx, versions[0].ID)
		require.NoError(t, err)
		assert.Len(t, files, len(Stages))
		for _, f := range files {
			assert.True(t, f.Finished(), f.FileName)
		}
	})
}

func TestRunReinstatesRefiledCandidacy(t *testing.T) {
	ctx := context.Background()
	inputs := fixtureInputs()
	inputs.Form501 = append(inputs.Form501, ocd.Form501Filing{
		FilingID: 12, FilerID: "5001", Office: ocd.OfficeAssembly, District: 10, Party: "DEMOCRATIC",
		ElectionYear: 2018, ElectionType: "PRIMARY", LastName: "DOE", FirstName: "JANE",
		StatementType: "10001", DateFiled: ocd.Date(2018, time.January, 12),
	})
	graph := &memory.GraphStore{}
	p := New(graph, inputs, memory.NewLedger(), reference.MustDefault(), logger.Nop(), func() time.Time { return testNow })

	_, err := p.Run(ctx, Options{RawVersion: rawVersion})
	require.NoError(t, err)

	g, err := graph.LoadGraph(ctx)
	require.NoError(t, err)
	st := memory.FromGraph(g)
	persons, err := st.PersonsByIdentifier(ctx, ocd.SchemeFilerID, "5001")
	require.NoError(t, err)
	require.Len(t, persons, 1)
	runs, err := st.CandidaciesByPerson(ctx, persons[0].ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []int64{10, 11, 12}, runs[0].Form501FilingIDs)
	assert.Equal(t, ocd.StatusQualified, runs[0].RegistrationStatus, "the filing after the withdrawal reinstates the scraped candidacy")
}

func TestRunResumesFinishedStages(t *testing.T) {
	ctx := context.Background()
	graph := &memory.GraphStore{}
	ledger := memory.NewLedger()
	p := newPipeline(graph, ledger)

	_, err := p.Run(ctx, Options{RawVersion: rawVersion})
	require.NoError(t, err)
	saves := graph.Saves()

	report, err := p.Run(ctx, Options{RawVersion: rawVersion})
	require.NoError(t, err)
	for _, sr := range report.Stages {
		assert.True(t, sr.Resumed, sr.Stage)
	}
	assert.Equal(t, saves, graph.Saves())
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	graph := &memory.GraphStore{}
	p := newPipeline(graph, memory.NewLedger())

	_, err := p.Run(ctx, Options{RawVersion: rawVersion})
	require.NoError(t, err)
	first, err := graph.LoadGraph(ctx)
	require.NoError(t, err)

	report, err := p.Run(ctx, Options{RawVersion: rawVersion, Force: true})
	require.NoError(t, err)
	for _, sr := range report.Stages {
		assert.False(t, sr.Resumed, sr.Stage)
		assert.Zero(t, sr.Created, sr.Stage)
	}
	second, err := graph.LoadGraph(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("second run changed the graph (-first +second):\n%s", diff)
	}
}

// flakyGraph fails the n-th save.
type flakyGraph struct {
	*memory.GraphStore
	failAt int
	calls  int
}

var errDiskFull = errors.New("disk full")

func (g *flakyGraph) SaveGraph(ctx context.Context, graph store.Graph) error {
	g.calls++
	if g.calls == g.failAt {
		return errDiskFull
	}
	return g.GraphStore.SaveGraph(ctx, graph)
}

func TestRunStopsOnStoreErrorAndResumes(t *testing.T) {
	ctx := context.Background()

	clean := &memory.GraphStore{}
	_, err := newPipeline(clean, memory.NewLedger()).Run(ctx, Options{RawVersion: rawVersion})
	require.NoError(t, err)
	want, err := clean.LoadGraph(ctx)
	require.NoError(t, err)

	graph := &flakyGraph{GraphStore: &memory.GraphStore{}, failAt: 3}
	ledger := memory.NewLedger()

	report, err := newPipeline(graph, ledger).Run(ctx, Options{RawVersion: rawVersion})
	require.ErrorIs(t, err, errDiskFull)
	require.Len(t, report.Stages, 3)

	versions, err := ledger.Versions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.False(t, versions[0].Finished())
	files, err := ledger.Files(ctx, versions[0].ID)
	require.NoError(t, err)
	finished := map[string]bool{}
	for _, f := range files {
		finished[f.FileName] = f.Finished()
	}
	assert.Equal(t, map[string]bool{StageParties: true, StageElections: true, StageMeasures: false}, finished)

	report, err = newPipeline(graph, ledger).Run(ctx, Options{RawVersion: rawVersion})
	require.NoError(t, err)
	assert.True(t, report.Stages[0].Resumed)
	assert.True(t, report.Stages[1].Resumed)
	assert.False(t, report.Stages[2].Resumed)

	got, err := graph.LoadGraph(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("resumed run differs from a clean run (-want +got):\n%s", diff)
	}
}

func TestRunOnlySelectedStages(t *testing.T) {
	ctx := context.Background()
	graph := &memory.GraphStore{}
	ledger := memory.NewLedger()

	report, err := newPipeline(graph, ledger).Run(ctx, Options{RawVersion: rawVersion, Only: []string{StageParties}})
	require.NoError(t, err)
	require.Len(t, report.Stages, 1)
	assert.Equal(t, len(ocd.KnownParties), report.Stages[0].Created)

	versions, err := ledger.Versions(ctx)
	require.NoError(t, err)
	assert.False(t, versions[0].Finished())
}
