package resolve

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// IncumbentLoader turns scraped incumbents into memberships.
type IncumbentLoader struct {
	store  store.Store
	posts  *PostResolver
	parser ocd.NameParser
	log    *logger.Logger
}

// NewIncumbentLoader creates an incumbent loader.
func NewIncumbentLoader(st store.Store, posts *PostResolver, parser ocd.NameParser, log *logger.Logger) *IncumbentLoader {
	return &IncumbentLoader{store: st, posts: posts, parser: parser, log: log}
}

// Load records inc as a membership starting in its session year and reports
// whether the membership was created. The person is matched by exact name
// among candidates for and members of the same post; several matches are
// ambiguous and nothing is written.
func (l *IncumbentLoader) Load(ctx context.Context, inc ocd.ScrapedIncumbent) (ocd.Membership, bool, error) {
	if inc.SessionYear <= 0 {
		return ocd.Membership{}, false, fmt.Errorf("incumbent %q: missing session year: %w", inc.Name, ErrInvalidRecord)
	}
	post, _, err := l.posts.GetOrCreate(ctx, inc.OfficeName)
	if err != nil {
		return ocd.Membership{}, false, err
	}
	parts := l.parser.Parse(inc.Name)

	ids, err := l.matchPersons(ctx, post.ID, parts)
	if err != nil {
		return ocd.Membership{}, false, err
	}
	if len(ids) > 1 {
		return ocd.Membership{}, false, &store.AmbiguousError{What: fmt.Sprintf("incumbent %q for %s", parts.Name, post.Label), Matches: len(ids)}
	}

	src := ocd.Source{URL: inc.URL, Note: ocd.ScrapeNote(inc.LastModified)}
	var person ocd.Person
	if len(ids) == 1 {
		if person, err = l.store.Person(ctx, ids[0]); err != nil {
			return ocd.Membership{}, false, fmt.Errorf("failed to load person %d: %w", ids[0], err)
		}
		var changed bool
		if person.Sources, changed = ocd.UpsertSource(person.Sources, src); changed {
			if err := l.store.UpdatePerson(ctx, person); err != nil {
				return ocd.Membership{}, false, fmt.Errorf("failed to update person %d: %w", person.ID, err)
			}
		}
	} else {
		person = ocd.Person{
			Name:       parts.Name,
			SortName:   parts.SortName,
			FamilyName: parts.FamilyName,
			GivenName:  parts.GivenName,
		}
		person.Sources, _ = ocd.UpsertSource(nil, src)
		if err := l.store.CreatePerson(ctx, &person); err != nil {
			return ocd.Membership{}, false, fmt.Errorf("failed to create person %s: %w", person.Name, err)
		}
	}

	start := strconv.Itoa(inc.SessionYear)
	existing, err := l.store.MembershipsByPerson(ctx, person.ID)
	if err != nil {
		return ocd.Membership{}, false, fmt.Errorf("failed to list memberships for person %d: %w", person.ID, err)
	}
	for _, m := range existing {
		if m.PostID == post.ID && m.StartDate == start {
			return m, false, nil
		}
	}

	m := ocd.Membership{
		PersonID:     person.ID,
		PostID:       post.ID,
		Role:         post.Role,
		Organization: post.Organization,
		Label:        post.Label,
		StartDate:    start,
	}
	if err := l.store.CreateMembership(ctx, &m); err != nil {
		return ocd.Membership{}, false, fmt.Errorf("failed to create membership for %s: %w", person.Name, err)
	}
	l.log.Debug("created membership", "id", m.ID, "person", person.ID, "post", post.Label, "start", start)
	return m, true, nil
}

func (l *IncumbentLoader) matchPersons(ctx context.Context, postID int64, parts ocd.NameParts) ([]int64, error) {
	var ids []int64
	consider := func(personID int64, candidateName string) error {
		if slices.Contains(ids, personID) {
			return nil
		}
		p, err := l.store.Person(ctx, personID)
		if err != nil {
			return fmt.Errorf("failed to load person %d: %w", personID, err)
		}
		if candidateName == parts.Name || p.AnswersTo(parts.Name) || (parts.SortName != "" && p.SortName == parts.SortName) {
			ids = append(ids, personID)
		}
		return nil
	}

	candidacies, err := l.store.CandidaciesByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidacies for post %d: %w", postID, err)
	}
	for _, c := range candidacies {
		if err := consider(c.PersonID, c.CandidateName); err != nil {
			return nil, err
		}
	}

	memberships, err := l.store.Memberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	for _, m := range memberships {
		if m.PostID != postID {
			continue
		}
		if err := consider(m.PersonID, ""); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
