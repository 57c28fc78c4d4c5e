// Package incumbency derives membership end dates and candidacy incumbent
// flags from office tenure.
package incumbency

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// Report summarises a projection pass.
type Report struct {
	EndDatesSet int
	Marked      int
	Cleared     int
}

// Projector stamps incumbency. Both passes are idempotent.
type Projector struct {
	store store.Store
	log   *logger.Logger
}

// NewProjector creates a projector.
func NewProjector(st store.Store, log *logger.Logger) *Projector {
	return &Projector{store: st, log: log}
}

// Run derives end dates, then flags incumbents, then leaves at most one
// incumbent per contest.
func (p *Projector) Run(ctx context.Context) (Report, error) {
	var report Report

	memberships, err := p.DeriveEndDates(ctx, &report)
	if err != nil {
		return report, err
	}

	elections, err := p.store.Elections(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list elections: %w", err)
	}
	yearOf := make(map[int64]int, len(elections))
	for _, e := range elections {
		yearOf[e.ID] = e.Year()
	}
	contests, err := p.store.Contests(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list contests: %w", err)
	}
	contestYear := make(map[int64]int, len(contests))
	for _, c := range contests {
		contestYear[c.ID] = yearOf[c.ElectionID]
	}

	// derived maps a candidacy to the latest start year of a membership that
	// makes it incumbent.
	derived := make(map[int64]int)
	for _, m := range memberships {
		start, ok := year(m.StartDate)
		if !ok {
			continue
		}
		end, bounded := year(m.EndDate)
		candidacies, err := p.store.CandidaciesByPerson(ctx, m.PersonID)
		if err != nil {
			return report, fmt.Errorf("failed to list candidacies for person %d: %w", m.PersonID, err)
		}
		for _, c := range candidacies {
			if c.PostID != m.PostID {
				continue
			}
			y := contestYear[c.ContestID]
			if y <= start || (bounded && y > end) {
				continue
			}
			if prev, ok := derived[c.ID]; !ok || start > prev {
				derived[c.ID] = start
			}
		}
	}

	candidacies, err := p.store.Candidacies(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list candidacies: %w", err)
	}
	byContest := make(map[int64][]ocd.Candidacy)
	var contestIDs []int64
	for _, c := range candidacies {
		if _, ok := byContest[c.ContestID]; !ok {
			contestIDs = append(contestIDs, c.ContestID)
		}
		byContest[c.ContestID] = append(byContest[c.ContestID], c)
	}
	slices.Sort(contestIDs)

	for _, contestID := range contestIDs {
		group := byContest[contestID]
		winner := pickIncumbent(group, derived)
		for _, c := range group {
			want := c.ID == winner
			if c.IsIncumbent == want {
				continue
			}
			c.IsIncumbent = want
			if err := p.store.UpdateCandidacy(ctx, c); err != nil {
				return report, fmt.Errorf("failed to update candidacy %d: %w", c.ID, err)
			}
			if want {
				report.Marked++
			} else {
				report.Cleared++
			}
		}
	}
	p.log.Info("projected incumbency", "end_dates", report.EndDatesSet, "marked", report.Marked, "cleared", report.Cleared)
	return report, nil
}

// pickIncumbent returns the candidacy to flag in one contest, or 0. Tenure
// wins over an existing flag; the latest tenure start wins, then lowest id.
func pickIncumbent(group []ocd.Candidacy, derived map[int64]int) int64 {
	var (
		best      int64
		bestStart int
	)
	for _, c := range group {
		start, ok := derived[c.ID]
		if !ok {
			continue
		}
		if best == 0 || start > bestStart || (start == bestStart && c.ID < best) {
			best, bestStart = c.ID, start
		}
	}
	if best != 0 {
		return best
	}
	for _, c := range group {
		if c.IsIncumbent && (best == 0 || c.ID < best) {
			best = c.ID
		}
	}
	return best
}

// DeriveEndDates closes every membership at the start of its successor on the
// same post. Memberships without a successor keep their end date. It returns
// the memberships as updated.
func (p *Projector) DeriveEndDates(ctx context.Context, report *Report) ([]ocd.Membership, error) {
	memberships, err := p.store.Memberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	for i, m := range memberships {
		start, ok := year(m.StartDate)
		if !ok {
			continue
		}
		successor := 0
		for _, other := range memberships {
			s, ok := year(other.StartDate)
			if !ok || other.PostID != m.PostID || s <= start {
				continue
			}
			if successor == 0 || s < successor {
				successor = s
			}
		}
		if successor == 0 {
			continue
		}
		end := strconv.Itoa(successor)
		if m.EndDate == end {
			continue
		}
		m.EndDate = end
		if err := p.store.UpdateMembership(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to update membership %d: %w", m.ID, err)
		}
		memberships[i] = m
		report.EndDatesSet++
	}
	return memberships, nil
}

func year(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return y, true
}
