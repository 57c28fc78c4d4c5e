package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/reference"
	"github.com/ocd-calaccess/internal/store"
)

// CreatePolicy controls whether a missing candidate contest may be created.
type CreatePolicy int

const (
	// CreateAlways is used when the observation itself evidences the contest.
	CreateAlways CreatePolicy = iota
	// CreateIfUpcoming only creates placeholders for elections after the
	// processing clock.
	CreateIfUpcoming
)

// ContestRequest identifies a candidate contest.
type ContestRequest struct {
	Election ocd.Election
	Post     ocd.Post
	Party    ocd.Party
	Policy   CreatePolicy
	Source   ocd.Source
}

// ContestResolver finds or creates contests.
type ContestResolver struct {
	store store.Store
	ref   *reference.Data
	log   *logger.Logger
	now   func() time.Time
}

// NewContestResolver creates a contest resolver.
func NewContestResolver(st store.Store, ref *reference.Data, log *logger.Logger, now func() time.Time) *ContestResolver {
	return &ContestResolver{store: st, ref: ref, log: log, now: now}
}

// IsPartisanPrimary reports whether contests in e are split by party.
func IsPartisanPrimary(e ocd.Election) bool {
	return e.Year() < 2012 && strings.Contains(e.Name, ocd.ElectionPrimary)
}

// ContestName names the candidate contest for a post in an election.
func ContestName(e ocd.Election, post ocd.Post, party ocd.Party) string {
	name := strings.ToUpper(post.Label)
	if post.OfficeType != "" {
		name = ocd.FormatOffice(post.OfficeType, post.District)
	}
	if parts, ok := ocd.ParseElectionName(e.Name); ok && !parts.Regular() {
		name += " (" + parts.Type + ")"
	}
	if IsPartisanPrimary(e) && party.Name != "" {
		name += " (" + party.Name + ")"
	}
	return name
}

// GetOrCreate returns the candidate contest for req and whether it was created.
func (r *ContestResolver) GetOrCreate(ctx context.Context, req ContestRequest) (ocd.Contest, bool, error) {
	office := ocd.FormatOffice(req.Post.OfficeType, req.Post.District)
	if r.ref.Blacklisted(req.Election.Name, office) {
		if err := r.removeBlacklisted(ctx, req.Election, req.Post); err != nil {
			return ocd.Contest{}, false, err
		}
		return ocd.Contest{}, false, fmt.Errorf("%s / %s: %w", req.Election.Name, office, ErrBlacklisted)
	}

	var partyID int64
	if IsPartisanPrimary(req.Election) {
		if req.Party.ID == 0 {
			return ocd.Contest{}, false, &NoContestError{Election: req.Election.Name, Office: office, Reason: "partisan primary needs a party"}
		}
		partyID = req.Party.ID
	}

	found, err := r.store.CandidateContest(ctx, req.Election.ID, req.Post.ID, partyID)
	if err != nil {
		return ocd.Contest{}, false, fmt.Errorf("failed to look up contest %s / %s: %w", req.Election.Name, office, err)
	}
	switch found.State {
	case store.Found:
		contest := found.Value
		var changed bool
		if contest.Sources, changed = ocd.UpsertSource(contest.Sources, req.Source); changed {
			if err := r.store.UpdateContest(ctx, contest); err != nil {
				return ocd.Contest{}, false, fmt.Errorf("failed to update contest %d: %w", contest.ID, err)
			}
		}
		return contest, false, nil
	case store.Ambiguous:
		return ocd.Contest{}, false, &store.AmbiguousError{What: "contest " + req.Election.Name + " / " + office, Matches: len(found.Matches)}
	}

	if req.Policy == CreateIfUpcoming && !req.Election.Date.After(r.now()) {
		return ocd.Contest{}, false, &NoContestError{Election: req.Election.Name, Office: office, Reason: "election has passed and no contest was observed"}
	}

	parts, _ := ocd.ParseElectionName(req.Election.Name)
	contest := ocd.Contest{
		Kind:                  ocd.CandidateContest,
		Name:                  ContestName(req.Election, req.Post, req.Party),
		ElectionID:            req.Election.ID,
		Division:              req.Post.Division,
		PartyID:               partyID,
		PreviousTermUnexpired: strings.Contains(parts.Type, "SPECIAL"),
		PostIDs:               []int64{req.Post.ID},
	}
	contest.Sources, _ = ocd.UpsertSource(nil, req.Source)
	if err := r.store.CreateContest(ctx, &contest); err != nil {
		return ocd.Contest{}, false, fmt.Errorf("failed to create contest %s: %w", contest.Name, err)
	}
	r.log.Debug("created contest", "id", contest.ID, "name", contest.Name, "election", req.Election.Name)
	return contest, true, nil
}

// removeBlacklisted deletes a blacklisted contest with its candidacies and
// any person left without candidacies or memberships.
func (r *ContestResolver) removeBlacklisted(ctx context.Context, e ocd.Election, post ocd.Post) error {
	contests, err := r.store.ContestsByPost(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("failed to list contests for post %d: %w", post.ID, err)
	}
	for _, c := range contests {
		if c.ElectionID != e.ID || c.Kind != ocd.CandidateContest {
			continue
		}
		candidacies, err := r.store.CandidaciesByContest(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, cand := range candidacies {
			if err := r.store.DeleteCandidacy(ctx, cand.ID); err != nil {
				return fmt.Errorf("failed to delete candidacy %d: %w", cand.ID, err)
			}
			// Persons still referenced elsewhere are kept.
			err := r.store.DeletePerson(ctx, cand.PersonID)
			if err != nil && !errors.Is(err, store.ErrMergeIntegrity) && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to delete person %d: %w", cand.PersonID, err)
			}
		}
		if err := r.store.DeleteContest(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete contest %d: %w", c.ID, err)
		}
		r.log.Warn("deleted blacklisted contest", "id", c.ID, "name", c.Name, "candidacies", len(candidacies))
	}
	return nil
}

// LinkRunoffs points every runoff contest at the latest earlier contest for
// the same post. It returns the number of contests updated.
func (r *ContestResolver) LinkRunoffs(ctx context.Context) (int, error) {
	contests, err := r.store.Contests(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list contests: %w", err)
	}
	elections, err := electionsByID(ctx, r.store)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, runoff := range contests {
		if runoff.Kind != ocd.CandidateContest || !strings.Contains(runoff.Name, "RUNOFF") {
			continue
		}
		runoffDate := elections[runoff.ElectionID].Date

		var (
			latest     time.Time
			candidates []int64
		)
		for _, postID := range runoff.PostIDs {
			prior, err := r.store.ContestsByPost(ctx, postID)
			if err != nil {
				return updated, err
			}
			for _, c := range prior {
				date := elections[c.ElectionID].Date
				if c.ID == runoff.ID || c.Kind != ocd.CandidateContest || !date.Before(runoffDate) {
					continue
				}
				switch {
				case date.After(latest):
					latest = date
					candidates = []int64{c.ID}
				case date.Equal(latest):
					candidates = appendUnique(candidates, c.ID)
				}
			}
		}

		if len(candidates) == 0 {
			r.log.Warn("runoff has no earlier contest", "contest", runoff.ID, "name", runoff.Name)
			continue
		}
		if len(candidates) > 1 {
			r.log.Warn("runoff matches several earlier contests", "contest", runoff.ID, "name", runoff.Name, "candidates", candidates)
			continue
		}
		if runoff.RunoffForContestID == candidates[0] {
			continue
		}
		runoff.RunoffForContestID = candidates[0]
		if err := r.store.UpdateContest(ctx, runoff); err != nil {
			return updated, fmt.Errorf("failed to link runoff %d: %w", runoff.ID, err)
		}
		updated++
	}
	return updated, nil
}

// MeasureKind classifies a scraped proposition.
func MeasureKind(name string) ocd.ContestKind {
	n := ocd.CleanName(name)
	if strings.HasPrefix(n, "RETENTION OF") || strings.Contains(n, "JUSTICE") {
		return ocd.RetentionContest
	}
	return ocd.BallotMeasureContest
}

// GetOrCreateMeasure returns the ballot measure or retention contest for a
// scraped proposition. Measures are always created on first sight.
func (r *ContestResolver) GetOrCreateMeasure(ctx context.Context, e ocd.Election, prop ocd.ScrapedProposition, src ocd.Source) (ocd.Contest, bool, error) {
	found, err := r.store.ContestByIdentifier(ctx, e.ID, ocd.SchemeMeasureID, prop.ScrapedID)
	if err != nil {
		return ocd.Contest{}, false, fmt.Errorf("failed to look up measure %s: %w", prop.ScrapedID, err)
	}
	switch found.State {
	case store.Found:
		contest := found.Value
		var changed bool
		if contest.Sources, changed = ocd.UpsertSource(contest.Sources, src); changed {
			if err := r.store.UpdateContest(ctx, contest); err != nil {
				return ocd.Contest{}, false, fmt.Errorf("failed to update measure %d: %w", contest.ID, err)
			}
		}
		return contest, false, nil
	case store.Ambiguous:
		return ocd.Contest{}, false, &store.AmbiguousError{What: "measure " + prop.ScrapedID, Matches: len(found.Matches)}
	}

	contest := ocd.Contest{
		Kind:        MeasureKind(prop.Name),
		Name:        ocd.CleanName(prop.Name),
		ElectionID:  e.ID,
		Division:    ocd.StateDivision,
		Identifiers: []ocd.Identifier{{Scheme: ocd.SchemeMeasureID, Value: prop.ScrapedID}},
	}
	contest.Sources, _ = ocd.UpsertSource(nil, src)
	if err := r.store.CreateContest(ctx, &contest); err != nil {
		return ocd.Contest{}, false, fmt.Errorf("failed to create measure %s: %w", contest.Name, err)
	}
	return contest, true, nil
}

func electionsByID(ctx context.Context, st store.ElectionRepository) (map[int64]ocd.Election, error) {
	elections, err := st.Elections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	out := make(map[int64]ocd.Election, len(elections))
	for _, e := range elections {
		out[e.ID] = e
	}
	return out, nil
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
