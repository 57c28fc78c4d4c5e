package resolve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/reference"
	"github.com/ocd-calaccess/internal/store"
)

// PartySource records which rule produced a party.
type PartySource string

// Party sources in precedence order
const (
	PartyFromCorrection PartySource = "correction"
	PartyFromForm501    PartySource = "form501"
	PartyFromFilerType  PartySource = "filer_type"
)

// PartyQuery describes a candidate for party resolution.
type PartyQuery struct {
	// Names are the forms of the candidate's name to try against corrections.
	Names        []string
	Year         int
	ElectionType string
	Office       string
	Filings      []ocd.Form501Filing
	FilerIDs     []string
	AsOf         time.Time
}

// PartyResolver applies corrections, Form 501 parties and the filer-type
// history in that order; the first known party wins.
type PartyResolver struct {
	store  store.PartyRepository
	inputs store.Inputs
	ref    *reference.Data
}

// NewPartyResolver creates a party resolver.
func NewPartyResolver(st store.PartyRepository, inputs store.Inputs, ref *reference.Data) *PartyResolver {
	return &PartyResolver{store: st, inputs: inputs, ref: ref}
}

// Resolve returns the party for q, its source, and whether one was found.
func (r *PartyResolver) Resolve(ctx context.Context, q PartyQuery) (ocd.Party, PartySource, bool, error) {
	name, source, err := r.resolveName(ctx, q)
	if err != nil {
		return ocd.Party{}, "", false, err
	}
	if source == "" {
		return ocd.Party{}, "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return ocd.Party{}, "", false, err
	}
	party, err := r.Party(ctx, name)
	if err != nil {
		return ocd.Party{}, "", false, err
	}
	return party, source, true, nil
}

func (r *PartyResolver) resolveName(ctx context.Context, q PartyQuery) (string, PartySource, error) {
	for _, n := range q.Names {
		if party, ok := r.ref.CorrectedParty(n, q.Year, q.ElectionType, q.Office); ok {
			return party, PartyFromCorrection, nil
		}
	}

	filings := append([]ocd.Form501Filing(nil), q.Filings...)
	sort.SliceStable(filings, func(i, j int) bool { return newerFiling(filings[i], filings[j]) })
	for _, f := range filings {
		if party := ocd.NormalizeParty(f.Party); party != ocd.PartyUnknown {
			return party, PartyFromForm501, nil
		}
	}

	if q.AsOf.IsZero() || r.inputs == nil {
		return "", "", nil
	}
	filerIDs := append([]string(nil), q.FilerIDs...)
	for _, f := range filings {
		if f.FilerID != "" {
			filerIDs = appendUniqueString(filerIDs, f.FilerID)
		}
	}
	for _, id := range filerIDs {
		rec, ok, err := r.inputs.FilerTypeAsOf(ctx, id, q.AsOf)
		if err != nil {
			return "", "", fmt.Errorf("failed to look up filer type for %s: %w", id, err)
		}
		if !ok {
			continue
		}
		if party := ocd.NormalizeParty(rec.PartyCode); party != ocd.PartyUnknown {
			return party, PartyFromFilerType, nil
		}
	}
	return "", "", nil
}

// Party returns the stored party with the canonical name, creating it if the
// parties stage has not run.
func (r *PartyResolver) Party(ctx context.Context, name string) (ocd.Party, error) {
	found, err := r.store.PartyByName(ctx, name)
	if err != nil {
		return ocd.Party{}, fmt.Errorf("failed to look up party %s: %w", name, err)
	}
	if found.Found() {
		return found.Value, nil
	}
	party := ocd.Party{Name: name}
	for _, kp := range ocd.KnownParties {
		if kp.Name == name {
			party.Abbreviation = kp.Abbreviation
		}
	}
	if err := r.store.SaveParty(ctx, &party); err != nil {
		return ocd.Party{}, fmt.Errorf("failed to save party %s: %w", name, err)
	}
	return party, nil
}

// newerFiling orders filings latest first.
func newerFiling(a, b ocd.Form501Filing) bool {
	if !a.DateFiled.Equal(b.DateFiled) {
		return a.DateFiled.After(b.DateFiled)
	}
	if a.FilingID != b.FilingID {
		return a.FilingID > b.FilingID
	}
	return a.AmendID > b.AmendID
}

func appendUniqueString(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
