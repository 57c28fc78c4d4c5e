package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/ocd"
)

func TestNearDuplicates(t *testing.T) {
	persons := []ocd.Person{
		{ID: 1, Name: "JOHN SMITH", FamilyName: "SMITH"},
		{ID: 2, Name: "JON SMYTH", FamilyName: "SMYTH"},
		{ID: 3, Name: "JANE DOE", FamilyName: "DOE"},
		{ID: 4, Name: "JOHN SMITH", FamilyName: "SMITH"},
		{ID: 5, Name: "JON SMITH", FamilyName: "SMITH"},
	}
	candidacies := []ocd.Candidacy{
		{ID: 10, PersonID: 1, PostID: 100},
		{ID: 11, PersonID: 3, PostID: 100},
		{ID: 12, PersonID: 4, PostID: 100},
		{ID: 13, PersonID: 5, PostID: 200},
		{ID: 14, PersonID: 99, PostID: 100},
	}
	memberships := []ocd.Membership{
		{ID: 20, PersonID: 2, PostID: 100},
		{ID: 21, PersonID: 2, PostID: 300},
		{ID: 22, PersonID: 1, PostID: 300},
	}

	got := NearDuplicates(persons, candidacies, memberships, 0.85)

	// 1 and 4 share a name and are left to the merge engine; 5 is on another
	// post; 1 and 2 are reported once although they share two posts.
	require.Len(t, got, 2)
	assert.Equal(t, [2]int64{1, 2}, [2]int64{got[0].LeftID, got[0].RightID})
	assert.Equal(t, [2]int64{2, 4}, [2]int64{got[1].LeftID, got[1].RightID})
	assert.InDelta(t, got[0].Similarity, got[1].Similarity, 1e-9)
	for _, p := range got {
		assert.Equal(t, int64(100), p.PostID)
		assert.True(t, p.SoundsAlike)
		assert.GreaterOrEqual(t, p.Similarity, 0.85)
	}
}

func TestNearDuplicatesThreshold(t *testing.T) {
	persons := []ocd.Person{
		{ID: 1, Name: "JANE DOE"},
		{ID: 2, Name: "RICHARD ROE"},
	}
	candidacies := []ocd.Candidacy{{PersonID: 1, PostID: 1}, {PersonID: 2, PostID: 1}}
	assert.Empty(t, NearDuplicates(persons, candidacies, nil, DefaultThreshold))
	assert.Len(t, NearDuplicates(persons, candidacies, nil, 0), 1)
}

func TestSoundsAlike(t *testing.T) {
	assert.True(t, soundsAlike("SMITH", "SMYTH"))
	assert.False(t, soundsAlike("SMITH", "DOE"))
	assert.False(t, soundsAlike("", "DOE"))
}
