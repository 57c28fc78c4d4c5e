package resolve

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

type officeYear struct {
	office string
	year   int
}

// Form501Index holds the latest version of every Form 501 filing, indexed by
// filer id and by office and election year.
type Form501Index struct {
	filings  []ocd.Form501Filing
	byFiler  map[string][]int
	byOffice map[officeYear][]int
	parser   ocd.NameParser
}

// NewForm501Index indexes filings. Older amendments are dropped.
func NewForm501Index(filings []ocd.Form501Filing, parser ocd.NameParser) *Form501Index {
	latest := ocd.LatestForm501(filings)
	idx := &Form501Index{
		filings:  latest,
		byFiler:  make(map[string][]int),
		byOffice: make(map[officeYear][]int),
		parser:   parser,
	}
	for i, f := range latest {
		if f.FilerID != "" {
			idx.byFiler[f.FilerID] = append(idx.byFiler[f.FilerID], i)
		}
		key := officeYear{office: ocd.ParseOfficeName(f.OfficeName()).String(), year: f.ElectionYear}
		idx.byOffice[key] = append(idx.byOffice[key], i)
	}
	return idx
}

// Filings returns every indexed filing ordered by filing id.
func (x *Form501Index) Filings() []ocd.Form501Filing {
	return x.filings
}

// ForFiler returns the filings of one filer for an election year.
func (x *Form501Index) ForFiler(filerID string, year int) []ocd.Form501Filing {
	var out []ocd.Form501Filing
	for _, i := range x.byFiler[filerID] {
		if x.filings[i].ElectionYear == year {
			out = append(out, x.filings[i])
		}
	}
	return out
}

// Len returns the number of indexed filings.
func (x *Form501Index) Len() int {
	return len(x.filings)
}

// Link returns the filings for a candidacy and whether they were linked by
// name. A person with filer ids is linked by filer id only. Otherwise the
// filings for the post and year are compared by "LAST, FIRST MIDDLE" and then
// "LAST, FIRST"; name matches spanning several filer ids link nothing.
func (x *Form501Index) Link(person ocd.Person, c ocd.Candidacy, post ocd.Post, year int) ([]ocd.Form501Filing, bool) {
	office := ocd.FormatOffice(post.OfficeType, post.District)

	if filers := person.IdentifierValues(ocd.SchemeFilerID); len(filers) > 0 {
		var out []ocd.Form501Filing
		for _, filer := range filers {
			for _, i := range x.byFiler[filer] {
				f := x.filings[i]
				if f.ElectionYear == year && ocd.ParseOfficeName(f.OfficeName()).String() == office {
					out = append(out, f)
				}
			}
		}
		return out, false
	}

	names := map[string]bool{c.CandidateName: true, person.Name: true, person.SortName: true}
	for _, on := range person.OtherNames {
		names[on.Name] = true
	}
	delete(names, "")

	candidates := x.byOffice[officeYear{office: office, year: year}]
	for _, withMiddle := range []bool{true, false} {
		var (
			out    []ocd.Form501Filing
			filers []string
		)
		for _, i := range candidates {
			f := x.filings[i]
			sortName := f.SortName(withMiddle)
			if !names[sortName] && !names[x.parser.Parse(sortName).Name] {
				continue
			}
			out = append(out, f)
			if f.FilerID != "" && !slices.Contains(filers, f.FilerID) {
				filers = append(filers, f.FilerID)
			}
		}
		if len(out) == 0 {
			continue
		}
		if len(filers) > 1 {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// Supplementer enriches candidacies with their Form 501 filings and party.
type Supplementer struct {
	store   store.Store
	index   *Form501Index
	parties *PartyResolver
	log     *logger.Logger
}

// NewSupplementer creates a supplementer.
func NewSupplementer(st store.Store, index *Form501Index, parties *PartyResolver, log *logger.Logger) *Supplementer {
	return &Supplementer{store: st, index: index, parties: parties, log: log}
}

// Supplement links Form 501 filings to a candidacy and applies what they
// say: the earliest filing date, a withdrawal when the latest filing is one,
// the filer id for name-linked persons, and the party. A correction always
// sets the party; other sources only fill a missing one. It reports whether
// the candidacy or its person changed.
func (s *Supplementer) Supplement(ctx context.Context, candidacyID int64) (bool, error) {
	c, err := s.store.Candidacy(ctx, candidacyID)
	if err != nil {
		return false, fmt.Errorf("failed to load candidacy %d: %w", candidacyID, err)
	}
	contest, err := s.store.Contest(ctx, c.ContestID)
	if err != nil {
		return false, fmt.Errorf("failed to load contest %d: %w", c.ContestID, err)
	}
	election, err := s.store.Election(ctx, contest.ElectionID)
	if err != nil {
		return false, fmt.Errorf("failed to load election %d: %w", contest.ElectionID, err)
	}
	post, err := s.store.Post(ctx, c.PostID)
	if err != nil {
		return false, fmt.Errorf("failed to load post %d: %w", c.PostID, err)
	}
	person, err := s.store.Person(ctx, c.PersonID)
	if err != nil {
		return false, fmt.Errorf("failed to load person %d: %w", c.PersonID, err)
	}

	filings, byName := s.index.Link(person, c, post, election.Year())
	candidacyChanged := applyFilings(&c, filings)

	personChanged := false
	if byName && len(person.IdentifierValues(ocd.SchemeFilerID)) == 0 {
		for _, f := range filings {
			personChanged = person.AddIdentifier(ocd.SchemeFilerID, f.FilerID) || personChanged
		}
	}

	parts, _ := ocd.ParseElectionName(election.Name)
	party, source, ok, err := s.parties.Resolve(ctx, PartyQuery{
		Names:        []string{c.CandidateName, person.SortName, person.Name},
		Year:         election.Year(),
		ElectionType: parts.Type,
		Office:       ocd.FormatOffice(post.OfficeType, post.District),
		Filings:      filings,
		FilerIDs:     person.IdentifierValues(ocd.SchemeFilerID),
		AsOf:         election.Date,
	})
	if err != nil {
		return false, err
	}
	if ok && c.PartyID != party.ID && (source == PartyFromCorrection || c.PartyID == 0) {
		s.log.Debug("setting candidacy party", "candidacy", c.ID, "party", party.Name, "source", source)
		c.PartyID = party.ID
		candidacyChanged = true
	}

	if personChanged {
		if err := s.store.UpdatePerson(ctx, person); err != nil {
			return false, fmt.Errorf("failed to update person %d: %w", person.ID, err)
		}
	}
	if candidacyChanged {
		if err := s.store.UpdateCandidacy(ctx, c); err != nil {
			return false, fmt.Errorf("failed to update candidacy %d: %w", c.ID, err)
		}
	}
	return personChanged || candidacyChanged, nil
}

// applyFilings merges linked filings into c and reports whether it changed.
// The registration status follows the latest filing: a withdrawal withdraws
// the candidacy and a later filing reinstates it.
func applyFilings(c *ocd.Candidacy, filings []ocd.Form501Filing) bool {
	if len(filings) == 0 {
		return false
	}
	changed := false
	for _, f := range filings {
		if !slices.Contains(c.Form501FilingIDs, f.FilingID) {
			c.Form501FilingIDs = append(c.Form501FilingIDs, f.FilingID)
			changed = true
		}
		if !f.DateFiled.IsZero() && (c.FiledDate.IsZero() || f.DateFiled.Before(c.FiledDate)) {
			c.FiledDate = f.DateFiled
			changed = true
		}
	}
	slices.Sort(c.Form501FilingIDs)

	ordered := append([]ocd.Form501Filing(nil), filings...)
	sort.SliceStable(ordered, func(i, j int) bool { return newerFiling(ordered[i], ordered[j]) })
	withdrawn := ordered[0].StatementType == ocd.StatementWithdrawal
	switch {
	case withdrawn && c.RegistrationStatus != ocd.StatusWithdrawn:
		c.RegistrationStatus = ocd.StatusWithdrawn
		changed = true
	case !withdrawn && c.RegistrationStatus == ocd.StatusWithdrawn:
		c.RegistrationStatus = reinstatedStatus(*c)
		changed = true
	}
	return changed
}

// reinstatedStatus is the status a withdrawn candidacy returns to. Only the
// scraped candidate list cites sources, and it lists qualified candidates.
func reinstatedStatus(c ocd.Candidacy) string {
	if len(c.Sources) > 0 {
		return ocd.StatusQualified
	}
	return ocd.StatusFiled
}
