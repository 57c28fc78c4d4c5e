package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// PersonRecord is a person with the rows that reference it.
type PersonRecord struct {
	Person      ocd.Person       `json:"person"`
	Candidacies []ocd.Candidacy  `json:"candidacies"`
	Memberships []ocd.Membership `json:"memberships"`
}

// Person reads one persisted person with its candidacies and memberships.
func (s *Store) Person(ctx context.Context, id int64) (PersonRecord, error) {
	var (
		rec    PersonRecord
		locked string
	)
	p := &rec.Person
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, name, sort_name, family_name, given_name, locked_fields FROM persons WHERE id = ?"), id).
		Scan(&p.ID, &p.Name, &p.SortName, &p.FamilyName, &p.GivenName, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return PersonRecord{}, &store.NotFoundError{Entity: "person", ID: id}
	}
	if err != nil {
		return PersonRecord{}, fmt.Errorf("failed to read person %d: %w", id, err)
	}
	if err := fromJSON(locked, &p.LockedFields); err != nil {
		return PersonRecord{}, err
	}

	if err := queryRows(ctx, s.db, s.rebind("SELECT name, note FROM person_other_names WHERE person_id = ? ORDER BY position"), func(rows *sql.Rows) error {
		var on ocd.OtherName
		if err := rows.Scan(&on.Name, &on.Note); err != nil {
			return err
		}
		p.OtherNames = append(p.OtherNames, on)
		return nil
	}, id); err != nil {
		return PersonRecord{}, fmt.Errorf("failed to read other names of person %d: %w", id, err)
	}

	if p.Identifiers, p.Sources, err = s.childrenOf(ctx, entityPerson, id); err != nil {
		return PersonRecord{}, err
	}

	if err := queryRows(ctx, s.db, s.rebind(`SELECT id, contest_id, person_id, post_id, candidate_name, party_id, registration_status,
		is_incumbent, filed_date, form501_filing_ids FROM candidacies WHERE person_id = ? ORDER BY id`), func(rows *sql.Rows) error {
		var (
			c       ocd.Candidacy
			party   sql.NullInt64
			filed   nullTime
			filings string
		)
		if err := rows.Scan(&c.ID, &c.ContestID, &c.PersonID, &c.PostID, &c.CandidateName, &party, &c.RegistrationStatus,
			&c.IsIncumbent, &filed, &filings); err != nil {
			return err
		}
		c.PartyID, c.FiledDate = party.Int64, filed.Time
		if err := fromJSON(filings, &c.Form501FilingIDs); err != nil {
			return err
		}
		rec.Candidacies = append(rec.Candidacies, c)
		return nil
	}, id); err != nil {
		return PersonRecord{}, fmt.Errorf("failed to read candidacies of person %d: %w", id, err)
	}

	if err := queryRows(ctx, s.db, s.rebind(`SELECT id, person_id, post_id, role, organization, label, start_date, end_date
		FROM memberships WHERE person_id = ? ORDER BY id`), func(rows *sql.Rows) error {
		var m ocd.Membership
		if err := rows.Scan(&m.ID, &m.PersonID, &m.PostID, &m.Role, &m.Organization, &m.Label, &m.StartDate, &m.EndDate); err != nil {
			return err
		}
		rec.Memberships = append(rec.Memberships, m)
		return nil
	}, id); err != nil {
		return PersonRecord{}, fmt.Errorf("failed to read memberships of person %d: %w", id, err)
	}
	return rec, nil
}

func (s *Store) childrenOf(ctx context.Context, entity string, id int64) ([]ocd.Identifier, []ocd.Source, error) {
	var (
		ids     []ocd.Identifier
		sources []ocd.Source
	)
	if err := queryRows(ctx, s.db, s.rebind("SELECT scheme, identifier FROM identifiers WHERE entity = ? AND entity_id = ? ORDER BY position"), func(rows *sql.Rows) error {
		var v ocd.Identifier
		if err := rows.Scan(&v.Scheme, &v.Value); err != nil {
			return err
		}
		ids = append(ids, v)
		return nil
	}, entity, id); err != nil {
		return nil, nil, fmt.Errorf("failed to read identifiers of %s %d: %w", entity, id, err)
	}
	if err := queryRows(ctx, s.db, s.rebind("SELECT url, note FROM sources WHERE entity = ? AND entity_id = ? ORDER BY position"), func(rows *sql.Rows) error {
		var v ocd.Source
		if err := rows.Scan(&v.URL, &v.Note); err != nil {
			return err
		}
		sources = append(sources, v)
		return nil
	}, entity, id); err != nil {
		return nil, nil, fmt.Errorf("failed to read sources of %s %d: %w", entity, id, err)
	}
	return ids, sources, nil
}

// Merges lists every recorded person merge.
func (s *Store) Merges(ctx context.Context) ([]ocd.PersonMerge, error) {
	return scanMerges(ctx, s.db)
}

// statTables are the tables reported by Stats.
var statTables = []string{
	"parties", "elections", "posts", "contests", "candidacies", "persons", "memberships", "person_merges",
	"scraped_elections", "scraped_candidates", "scraped_incumbents", "scraped_propositions",
	"form501_filings", "filer_types",
}

// Stats counts the rows of every graph and raw-input table.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, len(statTables))
	for _, table := range statTables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

// StatTables returns the table names reported by Stats in display order.
func StatTables() []string {
	return append([]string(nil), statTables...)
}
