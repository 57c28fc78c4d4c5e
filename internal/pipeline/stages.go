package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ocd-calaccess/internal/incumbency"
	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/merge"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/reference"
	"github.com/ocd-calaccess/internal/resolve"
	"github.com/ocd-calaccess/internal/store"
	"github.com/ocd-calaccess/internal/store/memory"
)

// work holds the resolvers bound to one working set.
type work struct {
	store  *memory.Store
	inputs store.Inputs
	ref    *reference.Data
	log    *logger.Logger
	now    func() time.Time
	parser ocd.NameParser

	elections  *resolve.ElectionResolver
	posts      *resolve.PostResolver
	contests   *resolve.ContestResolver
	parties    *resolve.PartyResolver
	candidates *resolve.CandidacyMatcher
	incumbents *resolve.IncumbentLoader

	index *resolve.Form501Index
}

func (p *Pipeline) newWork(st *memory.Store) *work {
	parser := p.ref.NameParser()
	posts := resolve.NewPostResolver(st)
	return &work{
		store:      st,
		inputs:     p.inputs,
		ref:        p.ref,
		log:        p.log,
		now:        p.now,
		parser:     parser,
		elections:  resolve.NewElectionResolver(st, p.inputs, p.ref, p.log, p.now),
		posts:      posts,
		contests:   resolve.NewContestResolver(st, p.ref, p.log, p.now),
		parties:    resolve.NewPartyResolver(st, p.inputs, p.ref),
		candidates: resolve.NewCandidacyMatcher(st, p.log),
		incumbents: resolve.NewIncumbentLoader(st, posts, parser, p.log),
	}
}

func (w *work) run(ctx context.Context, name string, sr *StageReport) error {
	switch name {
	case StageParties:
		return w.loadParties(ctx, sr)
	case StageElections:
		return w.loadElections(ctx, sr)
	case StageMeasures:
		return w.loadMeasures(ctx, sr)
	case StageCandidacies:
		return w.loadCandidacies(ctx, sr)
	case StageForm501:
		return w.loadForm501(ctx, sr)
	case StageIncumbents:
		return w.loadIncumbents(ctx, sr)
	case StageMerges:
		return w.mergePersons(ctx, sr)
	case StageIncumbency:
		return w.projectIncumbency(ctx, sr)
	}
	return fmt.Errorf("unknown stage %q", name)
}

// tally counts the outcome of one record. It returns err only when the stage
// must stop.
func (w *work) tally(sr *StageReport, err error, created bool, what string, kv ...interface{}) error {
	switch {
	case err == nil && created:
		sr.Created++
	case err == nil:
		sr.Matched++
	case errors.Is(err, resolve.ErrNoContest), errors.Is(err, resolve.ErrBlacklisted):
		sr.Skipped++
		w.log.Debug("skipped "+what, append(kv, "reason", err.Error())...)
	case recordError(err):
		sr.Warnings++
		w.log.Warn("unresolved "+what, append(kv, "error", err.Error())...)
	default:
		return err
	}
	return nil
}

func (w *work) observedAt(t time.Time) time.Time {
	if t.IsZero() {
		return w.now()
	}
	return t
}

func (w *work) form501Index(ctx context.Context) (*resolve.Form501Index, error) {
	if w.index != nil {
		return w.index, nil
	}
	filings, err := w.inputs.Form501Filings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load form 501 filings: %w", err)
	}
	w.index = resolve.NewForm501Index(filings, w.parser)
	w.log.Debug("indexed form 501 filings", "filings", w.index.Len())
	return w.index, nil
}

func (w *work) loadParties(ctx context.Context, sr *StageReport) error {
	for _, kp := range ocd.KnownParties {
		found, err := w.store.PartyByName(ctx, kp.Name)
		if err != nil {
			return fmt.Errorf("failed to look up party %s: %w", kp.Name, err)
		}
		party := ocd.Party{Name: kp.Name, Abbreviation: kp.Abbreviation}
		if err := w.store.SaveParty(ctx, &party); err != nil {
			return fmt.Errorf("failed to save party %s: %w", kp.Name, err)
		}
		if found.Found() {
			sr.Matched++
		} else {
			sr.Created++
		}
	}
	return nil
}

func observation(se ocd.ScrapedElection) resolve.ElectionObservation {
	return resolve.ElectionObservation{
		Name:         se.Name,
		Date:         se.Date,
		ScrapedID:    se.ScrapedID,
		URL:          se.URL,
		LastModified: se.LastModified,
	}
}

func (w *work) loadElections(ctx context.Context, sr *StageReport) error {
	scraped, err := w.inputs.ScrapedElections(ctx, ocd.ScrapeCandidates)
	if err != nil {
		return fmt.Errorf("failed to load scraped elections: %w", err)
	}
	for _, se := range scraped {
		_, created, err := w.elections.Resolve(ctx, observation(se))
		if err := w.tally(sr, err, created, "election", "scraped_id", se.ScrapedID, "name", se.Name); err != nil {
			return err
		}
	}
	return nil
}

func (w *work) loadMeasures(ctx context.Context, sr *StageReport) error {
	scraped, err := w.inputs.ScrapedElections(ctx, ocd.ScrapePropositions)
	if err != nil {
		return fmt.Errorf("failed to load proposition elections: %w", err)
	}
	byScrapedID := make(map[string]ocd.Election, len(scraped))
	for _, se := range scraped {
		e, created, err := w.elections.Resolve(ctx, observation(se))
		if err := w.tally(sr, err, created, "proposition election", "scraped_id", se.ScrapedID, "name", se.Name); err != nil {
			return err
		}
		if err == nil {
			byScrapedID[se.ScrapedID] = e
		}
	}

	props, err := w.inputs.ScrapedPropositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scraped propositions: %w", err)
	}
	for _, prop := range props {
		e, ok := byScrapedID[prop.ElectionScrapedID]
		if !ok {
			sr.Warnings++
			w.log.Warn("proposition has no resolved election", "scraped_id", prop.ScrapedID, "election", prop.ElectionScrapedID, "name", prop.Name)
			continue
		}
		src := ocd.Source{URL: prop.URL, Note: ocd.ScrapeNote(w.observedAt(prop.LastModified))}
		_, created, err := w.contests.GetOrCreateMeasure(ctx, e, prop, src)
		if err := w.tally(sr, err, created, "proposition", "scraped_id", prop.ScrapedID, "name", prop.Name); err != nil {
			return err
		}
	}
	return nil
}

func (w *work) loadCandidacies(ctx context.Context, sr *StageReport) error {
	candidates, err := w.inputs.ScrapedCandidates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scraped candidates: %w", err)
	}
	index, err := w.form501Index(ctx)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		created, err := w.scrapedCandidate(ctx, c, index)
		if err := w.tally(sr, err, created, "candidate", "scraped_id", c.ScrapedID, "name", c.Name, "office", c.OfficeName); err != nil {
			return err
		}
	}

	linked, err := w.contests.LinkRunoffs(ctx)
	if err != nil {
		return err
	}
	w.log.Debug("linked runoffs", "contests", linked)
	return nil
}

func (w *work) scrapedCandidate(ctx context.Context, c ocd.ScrapedCandidate, index *resolve.Form501Index) (bool, error) {
	found, err := w.store.ElectionByIdentifier(ctx, ocd.SchemeElectionID, c.ElectionScrapedID)
	if err != nil {
		return false, fmt.Errorf("failed to look up election %s: %w", c.ElectionScrapedID, err)
	}
	switch found.State {
	case store.NotFound:
		return false, &resolve.NoContestError{Election: c.ElectionScrapedID, Office: c.OfficeName, Reason: "election was not resolved"}
	case store.Ambiguous:
		return false, &store.AmbiguousError{What: "election id " + c.ElectionScrapedID, Matches: len(found.Matches)}
	}
	election := found.Value

	post, _, err := w.posts.GetOrCreate(ctx, c.OfficeName)
	if err != nil {
		return false, err
	}
	parts := w.parser.Parse(c.Name)

	var filings []ocd.Form501Filing
	if c.FilerID != "" {
		filings = index.ForFiler(c.FilerID, election.Year())
	}
	party, err := w.party(ctx, election, post, parts, c.FilerID, filings)
	if err != nil {
		return false, err
	}

	src := ocd.Source{URL: c.URL, Note: ocd.ScrapeNote(w.observedAt(c.LastModified))}
	contest, _, err := w.contests.GetOrCreate(ctx, resolve.ContestRequest{
		Election: election,
		Post:     post,
		Party:    party,
		Policy:   resolve.CreateAlways,
		Source:   src,
	})
	if err != nil {
		return false, err
	}

	_, created, err := w.candidates.GetOrCreate(ctx, resolve.CandidacyRequest{
		Contest: contest,
		Post:    post,
		Name:    parts,
		Status:  ocd.StatusQualified,
		FilerID: c.FilerID,
		PartyID: party.ID,
		Source:  src,
	})
	return created, err
}

// party resolves the affiliation for a candidate. The zero party means none
// could be determined.
func (w *work) party(ctx context.Context, e ocd.Election, post ocd.Post, parts ocd.NameParts, filerID string, filings []ocd.Form501Filing) (ocd.Party, error) {
	q := resolve.PartyQuery{
		Names:   []string{parts.Name, parts.SortName},
		Year:    e.Year(),
		Office:  ocd.FormatOffice(post.OfficeType, post.District),
		Filings: filings,
		AsOf:    e.Date,
	}
	if ep, ok := ocd.ParseElectionName(e.Name); ok {
		q.ElectionType = ep.Type
	}
	if filerID != "" {
		q.FilerIDs = []string{filerID}
	}
	party, _, ok, err := w.parties.Resolve(ctx, q)
	if err != nil || !ok {
		return ocd.Party{}, err
	}
	return party, nil
}

func (w *work) loadForm501(ctx context.Context, sr *StageReport) error {
	index, err := w.form501Index(ctx)
	if err != nil {
		return err
	}
	for _, f := range index.Filings() {
		created, err := w.filing(ctx, f)
		if err := w.tally(sr, err, created, "form 501 filing", "filing_id", f.FilingID, "filer_id", f.FilerID, "office", f.OfficeName()); err != nil {
			return err
		}
	}

	supplementer := resolve.NewSupplementer(w.store, index, w.parties, w.log)
	candidacies, err := w.store.Candidacies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list candidacies: %w", err)
	}
	supplemented := 0
	for _, c := range candidacies {
		changed, err := supplementer.Supplement(ctx, c.ID)
		if err != nil {
			if !recordError(err) {
				return err
			}
			sr.Warnings++
			w.log.Warn("could not supplement candidacy", "candidacy", c.ID, "error", err.Error())
			continue
		}
		if changed {
			supplemented++
		}
	}
	w.log.Info("supplemented candidacies from form 501", "candidacies", supplemented)
	return nil
}

// filing turns one Form 501 into a candidacy. Only regular elections can be
// dated from a filing, and past elections must already exist.
func (w *work) filing(ctx context.Context, f ocd.Form501Filing) (bool, error) {
	typ := ocd.ElectionTypeOf(f.ElectionType)
	if typ != ocd.ElectionPrimary && typ != ocd.ElectionGeneral {
		return false, &resolve.NoContestError{
			Election: fmt.Sprintf("%d %s", f.ElectionYear, f.ElectionType),
			Office:   f.OfficeName(),
			Reason:   "special elections cannot be dated from a filing",
		}
	}
	name := ocd.ElectionName(f.ElectionYear, typ)
	date, err := ocd.ExpectedElectionDate(f.ElectionYear, typ)
	if err != nil {
		return false, err
	}
	if !date.After(w.now()) {
		found, err := w.store.ElectionsByDate(ctx, date)
		if err != nil {
			return false, fmt.Errorf("failed to look up election on %s: %w", date.Format(ocd.DateLayout), err)
		}
		if !found.Found() {
			return false, &resolve.NoContestError{Election: name, Office: f.OfficeName(), Reason: "past election was never observed"}
		}
	}

	election, _, err := w.elections.Resolve(ctx, resolve.ElectionObservation{Name: name, Date: date})
	if err != nil {
		return false, err
	}
	post, _, err := w.posts.GetOrCreate(ctx, f.OfficeName())
	if err != nil {
		return false, err
	}
	parts := w.parser.Parse(f.SortName(true))
	party, err := w.party(ctx, election, post, parts, f.FilerID, []ocd.Form501Filing{f})
	if err != nil {
		return false, err
	}

	contest, _, err := w.contests.GetOrCreate(ctx, resolve.ContestRequest{
		Election: election,
		Post:     post,
		Party:    party,
		Policy:   resolve.CreateIfUpcoming,
	})
	if err != nil {
		return false, err
	}

	// Withdrawal is applied by the supplementer from the latest linked filing.
	_, created, err := w.candidates.GetOrCreate(ctx, resolve.CandidacyRequest{
		Contest: contest,
		Post:    post,
		Name:    parts,
		FilerID: f.FilerID,
		PartyID: party.ID,
	})
	return created, err
}

func (w *work) loadIncumbents(ctx context.Context, sr *StageReport) error {
	incumbents, err := w.inputs.ScrapedIncumbents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scraped incumbents: %w", err)
	}
	for _, inc := range incumbents {
		_, created, err := w.incumbents.Load(ctx, inc)
		if err := w.tally(sr, err, created, "incumbent", "scraped_id", inc.ScrapedID, "name", inc.Name, "office", inc.OfficeName); err != nil {
			return err
		}
	}
	return nil
}

func (w *work) mergePersons(ctx context.Context, sr *StageReport) error {
	report, err := merge.NewEngine(w.store, w.log, w.now).Run(ctx)
	if err != nil {
		return err
	}
	sr.Matched = report.Merged
	sr.Warnings = report.Failed
	w.log.Info("merged persons", "groups", report.Groups, "merged", report.Merged, "failed", report.Failed,
		"candidacies_removed", report.CandidaciesRemoved, "memberships_removed", report.MembershipsRemoved)
	return nil
}

func (w *work) projectIncumbency(ctx context.Context, sr *StageReport) error {
	report, err := incumbency.NewProjector(w.store, w.log).Run(ctx)
	if err != nil {
		return err
	}
	sr.Matched = report.Marked + report.EndDatesSet
	return nil
}
