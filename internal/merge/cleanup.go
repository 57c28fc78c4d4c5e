package merge

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/resolve"
	"github.com/ocd-calaccess/internal/store"
)

// CleanupReport counts what Cleanup removed.
type CleanupReport struct {
	IdentifiersRemoved int
	CandidaciesRemoved int
	Renamed            bool
}

// Cleanup tidies a person after merges: duplicate identifiers collapse, each
// contest keeps one candidacy, and the name follows the latest race.
func Cleanup(ctx context.Context, st store.Store, personID int64) (CleanupReport, error) {
	var report CleanupReport

	person, err := st.Person(ctx, personID)
	if err != nil {
		return report, fmt.Errorf("failed to load person %d: %w", personID, err)
	}
	var ids []ocd.Identifier
	for _, id := range person.Identifiers {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	report.IdentifiersRemoved = len(person.Identifiers) - len(ids)
	person.Identifiers = ids
	personChanged := report.IdentifiersRemoved > 0

	candidacies, err := st.CandidaciesByPerson(ctx, personID)
	if err != nil {
		return report, fmt.Errorf("failed to list candidacies for person %d: %w", personID, err)
	}
	byContest := make(map[int64][]ocd.Candidacy)
	var contests []int64
	for _, c := range candidacies {
		if _, ok := byContest[c.ContestID]; !ok {
			contests = append(contests, c.ContestID)
		}
		byContest[c.ContestID] = append(byContest[c.ContestID], c)
	}
	slices.Sort(contests)

	for _, contestID := range contests {
		group := byContest[contestID]
		if len(group) < 2 {
			continue
		}
		slices.SortFunc(group, keepOrder)
		keep := group[0]
		for _, discard := range group[1:] {
			absorbCandidacy(&keep, discard)
			if discard.CandidateName != "" && discard.CandidateName != keep.CandidateName && discard.CandidateName != person.Name {
				if !person.HasOtherName(discard.CandidateName) {
					person.OtherNames = append(person.OtherNames, ocd.OtherName{Name: discard.CandidateName, Note: NoteFromMerge})
					personChanged = true
				}
			}
			if err := st.DeleteCandidacy(ctx, discard.ID); err != nil {
				return report, fmt.Errorf("failed to delete candidacy %d: %w", discard.ID, err)
			}
			report.CandidaciesRemoved++
		}
		if err := st.UpdateCandidacy(ctx, keep); err != nil {
			return report, fmt.Errorf("failed to update candidacy %d: %w", keep.ID, err)
		}
	}

	if personChanged {
		if err := st.UpdatePerson(ctx, person); err != nil {
			return report, fmt.Errorf("failed to update person %d: %w", personID, err)
		}
	}
	report.Renamed, err = resolve.SyncPersonName(ctx, st, personID)
	return report, err
}

// keepOrder ranks candidacies of one person in one contest: qualified first,
// then earliest filed (unknown dates last), then lowest id.
func keepOrder(a, b ocd.Candidacy) int {
	aq, bq := a.RegistrationStatus == ocd.StatusQualified, b.RegistrationStatus == ocd.StatusQualified
	if aq != bq {
		if aq {
			return -1
		}
		return 1
	}
	az, bz := a.FiledDate.IsZero(), b.FiledDate.IsZero()
	if az != bz {
		if bz {
			return -1
		}
		return 1
	}
	if c := a.FiledDate.Compare(b.FiledDate); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// absorbCandidacy moves what a discarded duplicate knows onto the kept one.
func absorbCandidacy(keep *ocd.Candidacy, discard ocd.Candidacy) {
	for _, id := range discard.Form501FilingIDs {
		if !slices.Contains(keep.Form501FilingIDs, id) {
			keep.Form501FilingIDs = append(keep.Form501FilingIDs, id)
		}
	}
	slices.Sort(keep.Form501FilingIDs)
	for _, src := range discard.Sources {
		if !hasSource(keep.Sources, src.URL) {
			keep.Sources = append(keep.Sources, src)
		}
	}
	if !discard.FiledDate.IsZero() && (keep.FiledDate.IsZero() || discard.FiledDate.Before(keep.FiledDate)) {
		keep.FiledDate = discard.FiledDate
	}
	keep.IsIncumbent = keep.IsIncumbent || discard.IsIncumbent
	if keep.PartyID == 0 {
		keep.PartyID = discard.PartyID
	}
	for k, v := range discard.Extras {
		if _, ok := keep.Extras[k]; ok {
			continue
		}
		if keep.Extras == nil {
			keep.Extras = make(map[string]string)
		}
		keep.Extras[k] = v
	}
}
