// Package suggest reports persons that look like the same candidate but were
// not merged. The report is advisory; nothing here changes the graph.
package suggest

import (
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/ocd-calaccess/internal/ocd"
)

// DefaultThreshold is the Jaro-Winkler similarity reported by default.
const DefaultThreshold = 0.9

// Pair is two persons attached to the same post with similar names.
type Pair struct {
	LeftID      int64
	LeftName    string
	RightID     int64
	RightName   string
	PostID      int64
	Similarity  float64
	SoundsAlike bool
}

// NearDuplicates lists person pairs that share a post through a candidacy or
// membership and whose names differ but score at least threshold. Each pair
// is reported once, on the lowest post id, highest similarity first.
func NearDuplicates(persons []ocd.Person, candidacies []ocd.Candidacy, memberships []ocd.Membership, threshold float64) []Pair {
	byID := make(map[int64]ocd.Person, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
	}

	onPost := make(map[int64]map[int64]bool)
	attach := func(postID, personID int64) {
		if _, ok := byID[personID]; !ok {
			return
		}
		if onPost[postID] == nil {
			onPost[postID] = make(map[int64]bool)
		}
		onPost[postID][personID] = true
	}
	for _, c := range candidacies {
		attach(c.PostID, c.PersonID)
	}
	for _, m := range memberships {
		attach(m.PostID, m.PersonID)
	}

	postIDs := make([]int64, 0, len(onPost))
	for id := range onPost {
		postIDs = append(postIDs, id)
	}
	sort.Slice(postIDs, func(i, j int) bool { return postIDs[i] < postIDs[j] })

	type key struct{ left, right int64 }
	seen := make(map[key]bool)
	var out []Pair
	for _, postID := range postIDs {
		ids := make([]int64, 0, len(onPost[postID]))
		for id := range onPost[postID] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				k := key{ids[i], ids[j]}
				if seen[k] {
					continue
				}
				left, right := byID[ids[i]], byID[ids[j]]
				if left.Name == right.Name {
					continue
				}
				sim := matchr.JaroWinkler(left.Name, right.Name, false)
				if sim < threshold {
					continue
				}
				seen[k] = true
				out = append(out, Pair{
					LeftID:      left.ID,
					LeftName:    left.Name,
					RightID:     right.ID,
					RightName:   right.Name,
					PostID:      postID,
					Similarity:  sim,
					SoundsAlike: soundsAlike(left.FamilyName, right.FamilyName),
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].LeftID != out[j].LeftID {
			return out[i].LeftID < out[j].LeftID
		}
		return out[i].RightID < out[j].RightID
	})
	return out
}

// soundsAlike reports whether two family names share a Double Metaphone code.
func soundsAlike(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a1, a2 := matchr.DoubleMetaphone(a)
	b1, b2 := matchr.DoubleMetaphone(b)
	return a1 == b1 || (a2 != "" && (a2 == b1 || a2 == b2)) || (b2 != "" && a1 == b2)
}
