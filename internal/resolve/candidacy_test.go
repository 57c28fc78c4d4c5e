package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

func TestCandidacyMatcher(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	post := e.post(t, "ASSEMBLY 10")
	contest := e.contest(t, e.election(t, "2016 PRIMARY"), post)

	first, created, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("SMITH, JOHN"), FilerID: "100"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ocd.StatusFiled, first.RegistrationStatus)
	assert.Equal(t, "JOHN SMITH", first.CandidateName)

	person, err := e.store.Person(ctx, first.PersonID)
	require.NoError(t, err)
	assert.Equal(t, "JOHN SMITH", person.Name)
	assert.Equal(t, "SMITH, JOHN", person.SortName)
	assert.Equal(t, []string{"100"}, person.IdentifierValues(ocd.SchemeFilerID))

	t.Run("filer id match records the variant name", func(t *testing.T) {
		got, created, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("SMITH, JOHN Q"), FilerID: "100"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, got.ID)

		p, err := e.store.Person(ctx, first.PersonID)
		require.NoError(t, err)
		assert.Equal(t, "JOHN SMITH", p.Name)
		assert.True(t, p.HasOtherName("JOHN Q SMITH"))
	})

	t.Run("name match without filer id", func(t *testing.T) {
		got, created, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("SMITH, JOHN Q")})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("qualified overwrites and filed does not downgrade", func(t *testing.T) {
		got, _, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("SMITH, JOHN"), Status: ocd.StatusQualified})
		require.NoError(t, err)
		assert.Equal(t, ocd.StatusQualified, got.RegistrationStatus)

		got, _, err = e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("SMITH, JOHN"), Status: ocd.StatusFiled})
		require.NoError(t, err)
		assert.Equal(t, ocd.StatusQualified, got.RegistrationStatus)
	})

	t.Run("different filer id is a different person", func(t *testing.T) {
		got, created, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("SMITH, JOHN"), FilerID: "300"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.PersonID, got.PersonID)

		p, err := e.store.Person(ctx, first.PersonID)
		require.NoError(t, err)
		assert.Equal(t, []string{"100"}, p.IdentifierValues(ocd.SchemeFilerID))
	})

	t.Run("two name matches are ambiguous", func(t *testing.T) {
		before, err := e.store.Candidacies(ctx)
		require.NoError(t, err)

		_, _, err = e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("SMITH, JOHN")})
		assert.ErrorIs(t, err, store.ErrAmbiguous)

		after, err := e.store.Candidacies(ctx)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})
}

func TestCandidacyMatcherAttachesFilerID(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	post := e.post(t, "STATE SENATE 20")
	contest := e.contest(t, e.election(t, "2014 PRIMARY"), post)

	c, _, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("LEE, ANN")})
	require.NoError(t, err)

	got, created, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("LEE, ANN"), FilerID: "200", Status: ocd.StatusWithdrawn})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, ocd.StatusWithdrawn, got.RegistrationStatus)

	p, err := e.store.Person(ctx, c.PersonID)
	require.NoError(t, err)
	assert.True(t, p.HasIdentifier(ocd.SchemeFilerID, "200"))
}

func TestSyncPersonNameFollowsLatestRace(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	post := e.post(t, "ASSEMBLY 10")
	early := e.contest(t, e.election(t, "2014 PRIMARY"), post)
	late := e.contest(t, e.election(t, "2016 PRIMARY"), post)

	c, _, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: late, Post: post, Name: ocd.ParseName("SMITH, JOHNNY")})
	require.NoError(t, err)

	// An older race under another name leaves the current name alone.
	older := ocd.Candidacy{ContestID: early.ID, PersonID: c.PersonID, PostID: post.ID, CandidateName: "JOHN SMITH", RegistrationStatus: ocd.StatusFiled}
	require.NoError(t, e.store.CreateCandidacy(ctx, &older))
	changed, err := SyncPersonName(ctx, e.store, c.PersonID)
	require.NoError(t, err)
	assert.False(t, changed)

	later := e.contest(t, e.election(t, "2018 PRIMARY"), post)
	newest := ocd.Candidacy{ContestID: later.ID, PersonID: c.PersonID, PostID: post.ID, CandidateName: "JON SMITH", RegistrationStatus: ocd.StatusFiled}
	require.NoError(t, e.store.CreateCandidacy(ctx, &newest))
	changed, err = SyncPersonName(ctx, e.store, c.PersonID)
	require.NoError(t, err)
	assert.True(t, changed)

	p, err := e.store.Person(ctx, c.PersonID)
	require.NoError(t, err)
	assert.Equal(t, "JON SMITH", p.Name)
	assert.Equal(t, "SMITH, JON", p.SortName)
	assert.Equal(t, "SMITH", p.FamilyName)
	assert.Equal(t, "JON", p.GivenName)
	assert.Equal(t, []ocd.OtherName{{Name: "JOHNNY SMITH", Note: "previous name"}}, p.OtherNames)
}

func TestForm501SupplementsCandidacy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	post := e.post(t, "ASSEMBLY 10")
	contest := e.contest(t, e.election(t, "2018 PRIMARY"), post)

	c, _, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("DOE, JANE"), Status: ocd.StatusQualified})
	require.NoError(t, err)

	filings := []ocd.Form501Filing{
		{FilingID: 10, FilerID: "5001", Office: "ASSEMBLY", District: 10, ElectionYear: 2018, Party: "DEM", LastName: "DOE", FirstName: "JANE", StatementType: "10001", DateFiled: ocd.Date(2017, time.December, 1)},
		{FilingID: 11, FilerID: "5001", Office: "ASSEMBLY", District: 10, ElectionYear: 2018, Party: "DEM", LastName: "Doe", FirstName: "Jane", StatementType: ocd.StatementWithdrawal, DateFiled: ocd.Date(2018, time.February, 1)},
		{FilingID: 12, FilerID: "5002", Office: "ASSEMBLY", District: 11, ElectionYear: 2018, LastName: "DOE", FirstName: "JANE", StatementType: "10001"},
	}
	sup := NewSupplementer(e.store, NewForm501Index(filings, e.ref.NameParser()), e.parties, logger.Nop())

	changed, err := sup.Supplement(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := e.store.Candidacy(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ocd.StatusWithdrawn, got.RegistrationStatus)
	assert.Equal(t, ocd.Date(2017, time.December, 1), got.FiledDate)
	if diff := cmp.Diff([]int64{10, 11}, got.Form501FilingIDs); diff != "" {
		t.Errorf("filing ids mismatch (-want +got):\n%s", diff)
	}
	party, err := e.store.Party(ctx, got.PartyID)
	require.NoError(t, err)
	assert.Equal(t, "DEMOCRATIC", party.Name)

	p, err := e.store.Person(ctx, c.PersonID)
	require.NoError(t, err)
	assert.Equal(t, []string{"5001"}, p.IdentifierValues(ocd.SchemeFilerID))

	changed, err = sup.Supplement(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestApplyFilingsStatusFollowsLatestFiling(t *testing.T) {
	intent := func(id int64, day int) ocd.Form501Filing {
		return ocd.Form501Filing{FilingID: id, StatementType: "10001", DateFiled: ocd.Date(2018, time.January, day)}
	}
	withdrawal := func(id int64, day int) ocd.Form501Filing {
		f := intent(id, day)
		f.StatementType = ocd.StatementWithdrawal
		return f
	}
	scraped := []ocd.Source{{URL: "https://example.test/candidates/65"}}

	tests := []struct {
		name      string
		candidacy ocd.Candidacy
		filings   []ocd.Form501Filing
		want      string
	}{
		{"latest withdraws", ocd.Candidacy{RegistrationStatus: ocd.StatusFiled}, []ocd.Form501Filing{intent(1, 1), withdrawal(2, 5)}, ocd.StatusWithdrawn},
		{"refiled after withdrawal", ocd.Candidacy{RegistrationStatus: ocd.StatusWithdrawn}, []ocd.Form501Filing{intent(1, 1), withdrawal(2, 5), intent(3, 9)}, ocd.StatusFiled},
		{"refiled scraped candidacy", ocd.Candidacy{RegistrationStatus: ocd.StatusWithdrawn, Sources: scraped}, []ocd.Form501Filing{withdrawal(2, 5), intent(3, 9)}, ocd.StatusQualified},
		{"earlier withdrawal ignored", ocd.Candidacy{RegistrationStatus: ocd.StatusQualified, Sources: scraped}, []ocd.Form501Filing{withdrawal(2, 5), intent(3, 9)}, ocd.StatusQualified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.candidacy
			applyFilings(&c, tt.filings)
			assert.Equal(t, tt.want, c.RegistrationStatus)
		})
	}
}

func TestForm501Link(t *testing.T) {
	post := ocd.Post{OfficeType: ocd.OfficeSenate, District: 5}
	base := ocd.Form501Filing{Office: "STATE SENATE", District: 5, ElectionYear: 2012}
	filing := func(id int64, filer, last, first, middle string) ocd.Form501Filing {
		f := base
		f.FilingID, f.FilerID, f.LastName, f.FirstName, f.MiddleName = id, filer, last, first, middle
		return f
	}
	parser := ocd.NewNameParser(nil)

	tests := []struct {
		name       string
		filings    []ocd.Form501Filing
		person     ocd.Person
		wantIDs    []int64
		wantByName bool
	}{
		{
			name:       "middle name first",
			filings:    []ocd.Form501Filing{filing(1, "7", "SMITH", "JOHN", "Q"), filing(2, "8", "SMITH", "JOHN", "")},
			person:     ocd.Person{Name: "JOHN Q SMITH", SortName: "SMITH, JOHN Q"},
			wantIDs:    []int64{1},
			wantByName: true,
		},
		{
			name:       "falls back to no middle name",
			filings:    []ocd.Form501Filing{filing(1, "7", "SMITH", "JOHN", "Q")},
			person:     ocd.Person{Name: "JOHN SMITH", SortName: "SMITH, JOHN"},
			wantIDs:    []int64{1},
			wantByName: true,
		},
		{
			name:    "several filer ids link nothing",
			filings: []ocd.Form501Filing{filing(1, "7", "SMITH", "JOHN", ""), filing(2, "8", "SMITH", "JOHN", "")},
			person:  ocd.Person{Name: "JOHN SMITH", SortName: "SMITH, JOHN"},
		},
		{
			name:    "filer id only when known",
			filings: []ocd.Form501Filing{filing(1, "7", "SMITH", "JOHN", ""), filing(2, "8", "JONES", "JOHN", "")},
			person:  ocd.Person{Name: "JOHN SMITH", SortName: "SMITH, JOHN", Identifiers: []ocd.Identifier{{Scheme: ocd.SchemeFilerID, Value: "8"}}},
			wantIDs: []int64{2},
		},
		{
			name:    "other offices are ignored",
			filings: []ocd.Form501Filing{{FilingID: 1, FilerID: "7", Office: "STATE SENATE", District: 6, ElectionYear: 2012, LastName: "SMITH", FirstName: "JOHN"}},
			person:  ocd.Person{Name: "JOHN SMITH", SortName: "SMITH, JOHN"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewForm501Index(tt.filings, parser)
			got, byName := idx.Link(tt.person, ocd.Candidacy{CandidateName: tt.person.Name}, post, 2012)
			var ids []int64
			for _, f := range got {
				ids = append(ids, f.FilingID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantByName, byName)
		})
	}
}

func TestCorrectionOverridesParty(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	post := e.post(t, "STATE SENATE 20")
	contest := e.contest(t, e.election(t, "2014 PRIMARY"), post)
	rep, err := e.parties.Party(ctx, "REPUBLICAN")
	require.NoError(t, err)

	c, _, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: e.ref.NameParser().Parse("COURTRIGHT DONNA"), PartyID: rep.ID})
	require.NoError(t, err)

	sup := NewSupplementer(e.store, NewForm501Index(nil, e.ref.NameParser()), e.parties, logger.Nop())
	changed, err := sup.Supplement(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := e.store.Candidacy(ctx, c.ID)
	require.NoError(t, err)
	party, err := e.store.Party(ctx, got.PartyID)
	require.NoError(t, err)
	assert.Equal(t, "DEMOCRATIC", party.Name)
}

func TestIncumbentLoader(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	loader := NewIncumbentLoader(e.store, e.posts, e.ref.NameParser(), logger.Nop())
	post := e.post(t, "ASSEMBLY 10")
	contest := e.contest(t, e.election(t, "2016 GENERAL"), post)
	c, _, err := e.candidates.GetOrCreate(ctx, CandidacyRequest{Contest: contest, Post: post, Name: ocd.ParseName("DOE, JANE")})
	require.NoError(t, err)

	inc := ocd.ScrapedIncumbent{Name: "DOE, JANE", OfficeName: "ASSEMBLY 10", SessionYear: 2017, URL: "https://example.test/incumbents", LastModified: testNow}
	m, created, err := loader.Load(ctx, inc)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, c.PersonID, m.PersonID)
	assert.Equal(t, post.ID, m.PostID)
	assert.Equal(t, "2017", m.StartDate)
	assert.Equal(t, "Assembly Member", m.Role)
	assert.Equal(t, "California State Assembly", m.Organization)

	again, created, err := loader.Load(ctx, inc)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)

	other, created, err := loader.Load(ctx, ocd.ScrapedIncumbent{Name: "ROE, RICHARD", OfficeName: "ASSEMBLY 10", SessionYear: 2015})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, c.PersonID, other.PersonID)

	// A second JANE DOE on the post makes the name ambiguous.
	dup := ocd.Person{Name: "JANE DOE"}
	require.NoError(t, e.store.CreatePerson(ctx, &dup))
	require.NoError(t, e.store.CreateCandidacy(ctx, &ocd.Candidacy{ContestID: contest.ID, PersonID: dup.ID, PostID: post.ID, CandidateName: "JANE DOE"}))
	_, _, err = loader.Load(ctx, ocd.ScrapedIncumbent{Name: "DOE, JANE", OfficeName: "ASSEMBLY 10", SessionYear: 2019})
	assert.ErrorIs(t, err, store.ErrAmbiguous)
}
