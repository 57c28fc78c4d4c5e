package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// Entity names used by the identifiers and sources tables.
const (
	entityElection  = "election"
	entityContest   = "contest"
	entityCandidacy = "candidacy"
	entityPerson    = "person"
)

// graphTables lists the graph tables children first, the order they are
// cleared in.
var graphTables = []string{
	"identifiers",
	"sources",
	"person_other_names",
	"contest_posts",
	"candidacies",
	"memberships",
	"contests",
	"persons",
	"posts",
	"elections",
	"parties",
	"person_merges",
}

// SaveGraph replaces the persisted graph with g in one transaction.
func (s *Store) SaveGraph(ctx context.Context, g store.Graph) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range graphTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		var (
			idRows     [][]any
			sourceRows [][]any
		)
		children := func(entity string, id int64, ids []ocd.Identifier, sources []ocd.Source) {
			for i, v := range ids {
				idRows = append(idRows, []any{entity, id, i, v.Scheme, v.Value})
			}
			for i, v := range sources {
				sourceRows = append(sourceRows, []any{entity, id, i, v.URL, v.Note})
			}
		}

		parties := make([][]any, 0, len(g.Parties))
		for _, p := range g.Parties {
			parties = append(parties, []any{p.ID, p.Name, p.Abbreviation})
		}

		elections := make([][]any, 0, len(g.Elections))
		for _, e := range g.Elections {
			elections = append(elections, []any{e.ID, e.Name, ts(e.Date), e.AdministrativeOrganization, e.Division, mustJSON(nonNilMap(e.Extras))})
			children(entityElection, e.ID, e.Identifiers, e.Sources)
		}

		posts := make([][]any, 0, len(g.Posts))
		for _, p := range g.Posts {
			posts = append(posts, []any{p.ID, p.Label, p.Role, p.Organization, p.Division, p.OfficeType, p.District, p.StartDate, p.EndDate})
		}

		var contests, contestPosts [][]any
		for _, c := range g.Contests {
			contests = append(contests, []any{c.ID, string(c.Kind), c.Name, c.ElectionID, c.Division, nullID(c.PartyID), nullID(c.RunoffForContestID), c.PreviousTermUnexpired})
			for _, postID := range c.PostIDs {
				contestPosts = append(contestPosts, []any{c.ID, postID})
			}
			children(entityContest, c.ID, c.Identifiers, c.Sources)
		}

		var persons, otherNames [][]any
		for _, p := range g.Persons {
			persons = append(persons, []any{p.ID, p.Name, p.SortName, p.FamilyName, p.GivenName, mustJSON(nonNilStrings(p.LockedFields))})
			for i, on := range p.OtherNames {
				otherNames = append(otherNames, []any{p.ID, i, on.Name, on.Note})
			}
			children(entityPerson, p.ID, p.Identifiers, p.Sources)
		}

		candidacies := make([][]any, 0, len(g.Candidacies))
		for _, c := range g.Candidacies {
			ids := c.Form501FilingIDs
			if ids == nil {
				ids = []int64{}
			}
			candidacies = append(candidacies, []any{
				c.ID, c.ContestID, c.PersonID, c.PostID, c.CandidateName, nullID(c.PartyID),
				c.RegistrationStatus, c.IsIncumbent, ts(c.FiledDate), mustJSON(ids), mustJSON(nonNilMap(c.Extras)),
			})
			children(entityCandidacy, c.ID, nil, c.Sources)
		}

		memberships := make([][]any, 0, len(g.Memberships))
		for _, m := range g.Memberships {
			memberships = append(memberships, []any{m.ID, m.PersonID, m.PostID, m.Role, m.Organization, m.Label, m.StartDate, m.EndDate})
		}

		merges := make([][]any, 0, len(g.Merges))
		for _, m := range g.Merges {
			merges = append(merges, []any{m.ID, m.SurvivorID, m.LoserID, m.LoserName, mustJSON(nonNilStrings(m.LockedFields)), m.Reason, ts(m.MergedAt)})
		}

		inserts := []struct {
			table   string
			columns []string
			rows    [][]any
		}{
			{"parties", []string{"id", "name", "abbreviation"}, parties},
			{"elections", []string{"id", "name", "date", "administrative_organization", "division", "extras"}, elections},
			{"posts", []string{"id", "label", "role", "organization", "division", "office_type", "district", "start_date", "end_date"}, posts},
			{"contests", []string{"id", "kind", "name", "election_id", "division", "party_id", "runoff_for_contest_id", "previous_term_unexpired"}, contests},
			{"contest_posts", []string{"contest_id", "post_id"}, contestPosts},
			{"persons", []string{"id", "name", "sort_name", "family_name", "given_name", "locked_fields"}, persons},
			{"person_other_names", []string{"person_id", "position", "name", "note"}, otherNames},
			{"candidacies", []string{"id", "contest_id", "person_id", "post_id", "candidate_name", "party_id", "registration_status", "is_incumbent", "filed_date", "form501_filing_ids", "extras"}, candidacies},
			{"memberships", []string{"id", "person_id", "post_id", "role", "organization", "label", "start_date", "end_date"}, memberships},
			{"identifiers", []string{"entity", "entity_id", "position", "scheme", "identifier"}, idRows},
			{"sources", []string{"entity", "entity_id", "position", "url", "note"}, sourceRows},
			{"person_merges", []string{"id", "survivor_id", "loser_id", "loser_name", "locked_fields", "reason", "merged_at"}, merges},
		}
		for _, ins := range inserts {
			if err := s.bulkInsert(ctx, tx, ins.table, ins.columns, ins.rows); err != nil {
				return err
			}
		}
		s.log.Debug("saved graph", "elections", len(g.Elections), "contests", len(g.Contests),
			"candidacies", len(g.Candidacies), "persons", len(g.Persons), "memberships", len(g.Memberships))
		return nil
	})
}

// LoadGraph reads the persisted graph, each slice ordered by id.
func (s *Store) LoadGraph(ctx context.Context) (store.Graph, error) {
	var g store.Graph

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids, sources, err := s.loadChildren(ctx, tx)
		if err != nil {
			return err
		}

		if err := queryRows(ctx, tx, "SELECT id, name, abbreviation FROM parties ORDER BY id", func(rows *sql.Rows) error {
			var p ocd.Party
			if err := rows.Scan(&p.ID, &p.Name, &p.Abbreviation); err != nil {
				return err
			}
			g.Parties = append(g.Parties, p)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load parties: %w", err)
		}

		if err := queryRows(ctx, tx, "SELECT id, name, date, administrative_organization, division, extras FROM elections ORDER BY id", func(rows *sql.Rows) error {
			var (
				e      ocd.Election
				date   nullTime
				extras string
			)
			if err := rows.Scan(&e.ID, &e.Name, &date, &e.AdministrativeOrganization, &e.Division, &extras); err != nil {
				return err
			}
			e.Date = date.Time
			if err := fromJSON(extras, &e.Extras); err != nil {
				return err
			}
			key := childKey{entityElection, e.ID}
			e.Identifiers, e.Sources = ids[key], sources[key]
			g.Elections = append(g.Elections, e)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load elections: %w", err)
		}

		if err := queryRows(ctx, tx, "SELECT id, label, role, organization, division, office_type, district, start_date, end_date FROM posts ORDER BY id", func(rows *sql.Rows) error {
			var p ocd.Post
			if err := rows.Scan(&p.ID, &p.Label, &p.Role, &p.Organization, &p.Division, &p.OfficeType, &p.District, &p.StartDate, &p.EndDate); err != nil {
				return err
			}
			g.Posts = append(g.Posts, p)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load posts: %w", err)
		}

		contestPosts := make(map[int64][]int64)
		if err := queryRows(ctx, tx, "SELECT contest_id, post_id FROM contest_posts ORDER BY contest_id, post_id", func(rows *sql.Rows) error {
			var contestID, postID int64
			if err := rows.Scan(&contestID, &postID); err != nil {
				return err
			}
			contestPosts[contestID] = append(contestPosts[contestID], postID)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load contest posts: %w", err)
		}

		if err := queryRows(ctx, tx, "SELECT id, kind, name, election_id, division, party_id, runoff_for_contest_id, previous_term_unexpired FROM contests ORDER BY id", func(rows *sql.Rows) error {
			var (
				c             ocd.Contest
				kind          string
				party, runoff sql.NullInt64
			)
			if err := rows.Scan(&c.ID, &kind, &c.Name, &c.ElectionID, &c.Division, &party, &runoff, &c.PreviousTermUnexpired); err != nil {
				return err
			}
			c.Kind = ocd.ContestKind(kind)
			c.PartyID, c.RunoffForContestID = party.Int64, runoff.Int64
			c.PostIDs = contestPosts[c.ID]
			key := childKey{entityContest, c.ID}
			c.Identifiers, c.Sources = ids[key], sources[key]
			g.Contests = append(g.Contests, c)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load contests: %w", err)
		}

		otherNames := make(map[int64][]ocd.OtherName)
		if err := queryRows(ctx, tx, "SELECT person_id, name, note FROM person_other_names ORDER BY person_id, position", func(rows *sql.Rows) error {
			var (
				personID int64
				on       ocd.OtherName
			)
			if err := rows.Scan(&personID, &on.Name, &on.Note); err != nil {
				return err
			}
			otherNames[personID] = append(otherNames[personID], on)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load other names: %w", err)
		}

		if err := queryRows(ctx, tx, "SELECT id, name, sort_name, family_name, given_name, locked_fields FROM persons ORDER BY id", func(rows *sql.Rows) error {
			var (
				p      ocd.Person
				locked string
			)
			if err := rows.Scan(&p.ID, &p.Name, &p.SortName, &p.FamilyName, &p.GivenName, &locked); err != nil {
				return err
			}
			if err := fromJSON(locked, &p.LockedFields); err != nil {
				return err
			}
			p.OtherNames = otherNames[p.ID]
			key := childKey{entityPerson, p.ID}
			p.Identifiers, p.Sources = ids[key], sources[key]
			g.Persons = append(g.Persons, p)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load persons: %w", err)
		}

		if err := queryRows(ctx, tx, `SELECT id, contest_id, person_id, post_id, candidate_name, party_id, registration_status,
			is_incumbent, filed_date, form501_filing_ids, extras FROM candidacies ORDER BY id`, func(rows *sql.Rows) error {
			var (
				c             ocd.Candidacy
				party         sql.NullInt64
				filed         nullTime
				filings, extr string
			)
			if err := rows.Scan(&c.ID, &c.ContestID, &c.PersonID, &c.PostID, &c.CandidateName, &party, &c.RegistrationStatus,
				&c.IsIncumbent, &filed, &filings, &extr); err != nil {
				return err
			}
			c.PartyID = party.Int64
			c.FiledDate = filed.Time
			if err := fromJSON(filings, &c.Form501FilingIDs); err != nil {
				return err
			}
			if err := fromJSON(extr, &c.Extras); err != nil {
				return err
			}
			c.Sources = sources[childKey{entityCandidacy, c.ID}]
			g.Candidacies = append(g.Candidacies, c)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load candidacies: %w", err)
		}

		if err := queryRows(ctx, tx, "SELECT id, person_id, post_id, role, organization, label, start_date, end_date FROM memberships ORDER BY id", func(rows *sql.Rows) error {
			var m ocd.Membership
			if err := rows.Scan(&m.ID, &m.PersonID, &m.PostID, &m.Role, &m.Organization, &m.Label, &m.StartDate, &m.EndDate); err != nil {
				return err
			}
			g.Memberships = append(g.Memberships, m)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to load memberships: %w", err)
		}

		merges, err := scanMerges(ctx, tx)
		if err != nil {
			return err
		}
		g.Merges = merges
		return nil
	})
	return g, err
}

type childKey struct {
	entity string
	id     int64
}

func (s *Store) loadChildren(ctx context.Context, tx *sql.Tx) (map[childKey][]ocd.Identifier, map[childKey][]ocd.Source, error) {
	ids := make(map[childKey][]ocd.Identifier)
	if err := queryRows(ctx, tx, "SELECT entity, entity_id, scheme, identifier FROM identifiers ORDER BY entity, entity_id, position", func(rows *sql.Rows) error {
		var (
			key childKey
			id  ocd.Identifier
		)
		if err := rows.Scan(&key.entity, &key.id, &id.Scheme, &id.Value); err != nil {
			return err
		}
		ids[key] = append(ids[key], id)
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to load identifiers: %w", err)
	}

	sources := make(map[childKey][]ocd.Source)
	if err := queryRows(ctx, tx, "SELECT entity, entity_id, url, note FROM sources ORDER BY entity, entity_id, position", func(rows *sql.Rows) error {
		var (
			key childKey
			src ocd.Source
		)
		if err := rows.Scan(&key.entity, &key.id, &src.URL, &src.Note); err != nil {
			return err
		}
		sources[key] = append(sources[key], src)
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to load sources: %w", err)
	}
	return ids, sources, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryRows runs query and calls scan for every row. Queries passed here use
// no placeholders unless rebound by the caller.
func queryRows(ctx context.Context, q queryer, query string, scan func(*sql.Rows) error, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanMerges(ctx context.Context, q queryer) ([]ocd.PersonMerge, error) {
	var merges []ocd.PersonMerge
	err := queryRows(ctx, q, "SELECT id, survivor_id, loser_id, loser_name, locked_fields, reason, merged_at FROM person_merges ORDER BY id", func(rows *sql.Rows) error {
		var (
			m      ocd.PersonMerge
			locked string
			at     nullTime
		)
		if err := rows.Scan(&m.ID, &m.SurvivorID, &m.LoserID, &m.LoserName, &locked, &m.Reason, &at); err != nil {
			return err
		}
		if err := fromJSON(locked, &m.LockedFields); err != nil {
			return err
		}
		m.MergedAt = at.Time
		merges = append(merges, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load merges: %w", err)
	}
	return merges, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
