package reference

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/ocd"
)

func TestDefaults(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)

	parts, ok := ocd.ParseElectionName("2015 SPECIAL ELECTION (STATE SENATE 7)")
	require.True(t, ok)
	date, ok := d.SpecialElectionDate(parts)
	require.True(t, ok)
	assert.Equal(t, ocd.Date(2015, time.March, 17), date)

	parts, _ = ocd.ParseElectionName("2008 PRIMARY")
	date, ok = d.SpecialElectionDate(parts)
	require.True(t, ok)
	assert.Equal(t, ocd.Date(2008, time.June, 3), date)

	assert.True(t, d.Blacklisted("2008 special election", "STATE SENATE 15"))
	assert.False(t, d.Blacklisted("2008 SPECIAL ELECTION", "STATE SENATE 16"))

	assert.Equal(t, "COURTRIGHT, DONNA", d.NameParser().Parse("COURTRIGHT DONNA").SortName)

	party, ok := d.CorrectedParty("Courtright, Donna", 2014, "primary", "STATE SENATE 20")
	require.True(t, ok)
	assert.Equal(t, "DEMOCRATIC", party)
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// local additions
		corrections: [
			{ candidate_name: "ROE, RICHARD", year: 2016, election_type: "GENERAL", office: "ASSEMBLY 3", party: "REP" },
		],
		special_elections: [
			{ name: "2018 SPECIAL ELECTION (ASSEMBLY 45)", date: "2018-04-03" },
		],
		name_fixes: { "ROE RICHARD": "ROE, RICHARD" },
	}`), 0o644))

	d, err := Load(path)
	require.NoError(t, err)

	party, ok := d.CorrectedParty("ROE, RICHARD", 2016, "GENERAL", "ASSEMBLY 03")
	require.True(t, ok)
	assert.Equal(t, "REPUBLICAN", party)

	_, ok = d.CorrectedParty("COURTRIGHT, DONNA", 2014, "PRIMARY", "STATE SENATE 20")
	assert.True(t, ok, "defaults survive the merge")

	parts, _ := ocd.ParseElectionName("2018 SPECIAL ELECTION (ASSEMBLY 45)")
	_, ok = d.SpecialElectionDate(parts)
	assert.True(t, ok)

	assert.Len(t, d.File().NameFixes, 2)
}

func TestNewRejectsBadEntries(t *testing.T) {
	_, err := New(File{SpecialElections: []SpecialElection{{Name: "2019 SPECIAL ELECTION", Date: "March"}}})
	assert.Error(t, err)

	_, err = New(File{Corrections: []Correction{{CandidateName: "X", Party: "WHIG"}}})
	assert.Error(t, err)
}
