package memory

import (
	"context"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// Inputs holds raw records in memory. Fields may be set directly before use.
type Inputs struct {
	Elections    []ocd.ScrapedElection
	Candidates   []ocd.ScrapedCandidate
	Incumbents   []ocd.ScrapedIncumbent
	Propositions []ocd.ScrapedProposition
	Form501      []ocd.Form501Filing
	FilerTypes   []ocd.FilerTypeRecord
}

var _ store.Inputs = (*Inputs)(nil)

// ScrapedElections returns the scraped elections of one kind.
func (in *Inputs) ScrapedElections(_ context.Context, kind ocd.ScrapeKind) ([]ocd.ScrapedElection, error) {
	var out []ocd.ScrapedElection
	for _, e := range in.Elections {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// ScrapedCandidates returns a copy of the scraped candidates.
func (in *Inputs) ScrapedCandidates(_ context.Context) ([]ocd.ScrapedCandidate, error) {
	return append([]ocd.ScrapedCandidate(nil), in.Candidates...), nil
}

// ScrapedIncumbents returns a copy of the scraped incumbents.
func (in *Inputs) ScrapedIncumbents(_ context.Context) ([]ocd.ScrapedIncumbent, error) {
	return append([]ocd.ScrapedIncumbent(nil), in.Incumbents...), nil
}

// ScrapedPropositions returns a copy of the scraped propositions.
func (in *Inputs) ScrapedPropositions(_ context.Context) ([]ocd.ScrapedProposition, error) {
	return append([]ocd.ScrapedProposition(nil), in.Propositions...), nil
}

// Form501Filings returns the latest version of each filing.
func (in *Inputs) Form501Filings(_ context.Context) ([]ocd.Form501Filing, error) {
	return ocd.LatestForm501(in.Form501), nil
}

// FilerTypeAsOf returns the newest filer-type row effective on or before asOf.
func (in *Inputs) FilerTypeAsOf(_ context.Context, filerID string, asOf time.Time) (ocd.FilerTypeRecord, bool, error) {
	var (
		best  ocd.FilerTypeRecord
		found bool
	)
	for _, r := range in.FilerTypes {
		if r.FilerID != filerID || r.EffectiveDate.After(asOf) {
			continue
		}
		if !found || r.EffectiveDate.After(best.EffectiveDate) {
			best, found = r, true
		}
	}
	return best, found, nil
}
