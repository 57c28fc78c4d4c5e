// Package merge collapses duplicate persons. Groups are computed up front
// with a union-find over person ids, then each loser is merged into the
// group's survivor in its own transaction, followed by cleanup of the
// survivor's identifiers, candidacies and name.
package merge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// NoteFromMerge marks other-names recorded by a merge.
const NoteFromMerge = "from merge"

// Report summarises a merge pass.
type Report struct {
	Groups             int
	Merged             int
	Failed             int
	IdentifiersRemoved int
	CandidaciesRemoved int
	MembershipsRemoved int
	Renamed            int
}

// Engine applies person merges.
type Engine struct {
	store store.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewEngine creates a merge engine.
func NewEngine(st store.Store, log *logger.Logger, now func() time.Time) *Engine {
	return &Engine{store: st, log: log, now: now}
}

// Run finds every merge group and applies it. A merge that would orphan rows
// is rolled back and counted as failed; the pass continues with the next.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	var report Report

	groups, err := FindGroups(ctx, e.store)
	if err != nil {
		return report, err
	}
	report.Groups = len(groups)

	for _, g := range groups {
		for _, loser := range g.Losers {
			var removed int
			err := e.store.WithTx(ctx, func(tx store.Store) error {
				var err error
				removed, err = mergePair(ctx, tx, g.Survivor, loser, g.Reason, e.now())
				return err
			})
			if errors.Is(err, store.ErrMergeIntegrity) {
				e.log.Error("merge aborted", "survivor", g.Survivor, "loser", loser, "error", err)
				report.Failed++
				continue
			}
			if err != nil {
				return report, fmt.Errorf("failed to merge person %d into %d: %w", loser, g.Survivor, err)
			}
			e.log.Debug("merged person", "survivor", g.Survivor, "loser", loser, "reason", g.Reason)
			report.Merged++
			report.MembershipsRemoved += removed
		}

		var cleaned CleanupReport
		err := e.store.WithTx(ctx, func(tx store.Store) error {
			var err error
			cleaned, err = Cleanup(ctx, tx, g.Survivor)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("failed to clean up person %d: %w", g.Survivor, err)
		}
		report.IdentifiersRemoved += cleaned.IdentifiersRemoved
		report.CandidaciesRemoved += cleaned.CandidaciesRemoved
		if cleaned.Renamed {
			report.Renamed++
		}
	}
	return report, nil
}

// Merge merges loser into survivor in one transaction and records the audit
// row.
func (e *Engine) Merge(ctx context.Context, survivor, loser int64, reason string) error {
	return e.store.WithTx(ctx, func(tx store.Store) error {
		_, err := mergePair(ctx, tx, survivor, loser, reason, e.now())
		return err
	})
}

// mergePair moves everything of loser onto survivor and deletes loser. It
// returns the number of duplicate memberships removed.
func mergePair(ctx context.Context, tx store.Store, survivorID, loserID int64, reason string, at time.Time) (int, error) {
	survivor, err := tx.Person(ctx, survivorID)
	if err != nil {
		return 0, fmt.Errorf("failed to load survivor %d: %w", survivorID, err)
	}
	loser, err := tx.Person(ctx, loserID)
	if err != nil {
		return 0, fmt.Errorf("failed to load loser %d: %w", loserID, err)
	}

	locked := applyPlan(&survivor, loser)
	unionPerson(&survivor, loser)

	if err := tx.UpdatePerson(ctx, survivor); err != nil {
		return 0, fmt.Errorf("failed to update survivor %d: %w", survivorID, err)
	}
	if err := tx.ReassignPerson(ctx, loserID, survivorID); err != nil {
		return 0, fmt.Errorf("failed to repoint person %d: %w", loserID, err)
	}
	removed, err := dedupeMemberships(ctx, tx, survivorID)
	if err != nil {
		return 0, err
	}
	if err := tx.DeletePerson(ctx, loserID); err != nil {
		return 0, fmt.Errorf("failed to delete person %d: %w", loserID, err)
	}

	audit := ocd.PersonMerge{
		SurvivorID:   survivorID,
		LoserID:      loserID,
		LoserName:    loser.Name,
		LockedFields: locked,
		Reason:       reason,
		MergedAt:     at,
	}
	if err := tx.RecordMerge(ctx, &audit); err != nil {
		return 0, fmt.Errorf("failed to record merge: %w", err)
	}
	return removed, nil
}

// applyPlan fills the survivor's empty scalar fields from the loser and
// returns the names of the fields taken from the loser.
func applyPlan(survivor *ocd.Person, loser ocd.Person) []string {
	fields := []struct {
		name string
		dst  *string
		src  string
	}{
		{"name", &survivor.Name, loser.Name},
		{"sort_name", &survivor.SortName, loser.SortName},
		{"family_name", &survivor.FamilyName, loser.FamilyName},
		{"given_name", &survivor.GivenName, loser.GivenName},
	}
	var locked []string
	for _, f := range fields {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			locked = append(locked, f.name)
		}
	}
	for _, name := range locked {
		if !slices.Contains(survivor.LockedFields, name) {
			survivor.LockedFields = append(survivor.LockedFields, name)
		}
	}
	return locked
}

// unionPerson unions the loser's collections into the survivor. Differing
// names are both kept as other-names.
func unionPerson(survivor *ocd.Person, loser ocd.Person) {
	if loser.Name != "" && loser.Name != survivor.Name {
		for _, n := range []string{survivor.Name, loser.Name} {
			if !survivor.HasOtherName(n) {
				survivor.OtherNames = append(survivor.OtherNames, ocd.OtherName{Name: n, Note: NoteFromMerge})
			}
		}
	}
	for _, on := range loser.OtherNames {
		if !survivor.HasOtherName(on.Name) {
			survivor.OtherNames = append(survivor.OtherNames, on)
		}
	}
	for _, id := range loser.Identifiers {
		survivor.AddIdentifier(id.Scheme, id.Value)
	}
	for _, src := range loser.Sources {
		if !hasSource(survivor.Sources, src.URL) {
			survivor.Sources = append(survivor.Sources, src)
		}
	}
}

type membershipKey struct {
	organization string
	label        string
	endDate      string
	postID       int64
}

// dedupeMemberships keeps the lowest-id membership per organization, label,
// end date and post.
func dedupeMemberships(ctx context.Context, tx store.Store, personID int64) (int, error) {
	memberships, err := tx.MembershipsByPerson(ctx, personID)
	if err != nil {
		return 0, fmt.Errorf("failed to list memberships for person %d: %w", personID, err)
	}
	seen := make(map[membershipKey]bool)
	removed := 0
	for _, m := range memberships {
		key := membershipKey{organization: m.Organization, label: m.Label, endDate: m.EndDate, postID: m.PostID}
		if !seen[key] {
			seen[key] = true
			continue
		}
		if err := tx.DeleteMembership(ctx, m.ID); err != nil {
			return removed, fmt.Errorf("failed to delete membership %d: %w", m.ID, err)
		}
		removed++
	}
	return removed, nil
}

func hasSource(sources []ocd.Source, url string) bool {
	for _, s := range sources {
		if s.URL == url {
			return true
		}
	}
	return false
}
