package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
)

// ReplaceScraped swaps the stored scrape for set.
func (s *Store) ReplaceScraped(ctx context.Context, set ocd.ScrapedSet) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"scraped_elections", "scraped_candidates", "scraped_incumbents", "scraped_propositions"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		elections := make([][]any, 0, len(set.Elections))
		for _, e := range set.Elections {
			elections = append(elections, []any{string(e.Kind), e.ScrapedID, e.Name, ts(e.Date), e.SessionYear, e.URL, ts(e.LastModified)})
		}
		if err := s.bulkInsert(ctx, tx, "scraped_elections",
			[]string{"kind", "scraped_id", "name", "date", "session_year", "url", "last_modified"}, elections); err != nil {
			return err
		}

		candidates := make([][]any, 0, len(set.Candidates))
		for _, c := range set.Candidates {
			candidates = append(candidates, []any{c.ScrapedID, c.ElectionScrapedID, c.Name, c.OfficeName, c.FilerID, c.URL, ts(c.LastModified)})
		}
		if err := s.bulkInsert(ctx, tx, "scraped_candidates",
			[]string{"scraped_id", "election_scraped_id", "name", "office_name", "filer_id", "url", "last_modified"}, candidates); err != nil {
			return err
		}

		incumbents := make([][]any, 0, len(set.Incumbents))
		for _, i := range set.Incumbents {
			incumbents = append(incumbents, []any{i.ScrapedID, i.Name, i.OfficeName, i.SessionYear, i.URL, ts(i.LastModified)})
		}
		if err := s.bulkInsert(ctx, tx, "scraped_incumbents",
			[]string{"scraped_id", "name", "office_name", "session_year", "url", "last_modified"}, incumbents); err != nil {
			return err
		}

		props := make([][]any, 0, len(set.Propositions))
		for _, p := range set.Propositions {
			props = append(props, []any{p.ScrapedID, p.ElectionScrapedID, p.Name, p.URL, ts(p.LastModified)})
		}
		if err := s.bulkInsert(ctx, tx, "scraped_propositions",
			[]string{"scraped_id", "election_scraped_id", "name", "url", "last_modified"}, props); err != nil {
			return err
		}

		s.log.Info("replaced scraped records", "elections", len(elections), "candidates", len(candidates),
			"incumbents", len(incumbents), "propositions", len(props))
		return nil
	})
}

var form501Columns = []string{
	"filing_id", "amend_id", "filer_id", "office", "district", "party", "election_year", "election_type",
	"last_name", "first_name", "middle_name", "name_suffix", "statement_type", "date_filed",
}

// ReplaceForm501Filings swaps every stored Form 501 version for filings.
func (s *Store) ReplaceForm501Filings(ctx context.Context, filings []ocd.Form501Filing) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM form501_filings"); err != nil {
			return fmt.Errorf("failed to clear form501_filings: %w", err)
		}
		rows := make([][]any, 0, len(filings))
		for _, f := range filings {
			rows = append(rows, []any{
				f.FilingID, f.AmendID, f.FilerID, f.Office, f.District, f.Party, f.ElectionYear, f.ElectionType,
				f.LastName, f.FirstName, f.MiddleName, f.NameSuffix, f.StatementType, ts(f.DateFiled),
			})
		}
		if err := s.bulkInsert(ctx, tx, "form501_filings", form501Columns, rows); err != nil {
			return err
		}
		s.log.Info("replaced form 501 filings", "rows", len(rows))
		return nil
	})
}

// ReplaceFilerTypes swaps the stored filer-type history for records.
func (s *Store) ReplaceFilerTypes(ctx context.Context, records []ocd.FilerTypeRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM filer_types"); err != nil {
			return fmt.Errorf("failed to clear filer_types: %w", err)
		}
		rows := make([][]any, 0, len(records))
		for _, r := range records {
			rows = append(rows, []any{r.FilerID, r.FilerType, ts(r.EffectiveDate), r.SessionID, r.PartyCode, r.OfficeCode, r.DistrictCode})
		}
		if err := s.bulkInsert(ctx, tx, "filer_types",
			[]string{"filer_id", "filer_type", "effective_date", "session_id", "party_cd", "office_cd", "district_cd"}, rows); err != nil {
			return err
		}
		s.log.Info("replaced filer types", "rows", len(rows))
		return nil
	})
}

func (s *Store) ScrapedElections(ctx context.Context, kind ocd.ScrapeKind) ([]ocd.ScrapedElection, error) {
	var out []ocd.ScrapedElection
	err := queryRows(ctx, s.db, s.rebind(`SELECT kind, scraped_id, name, date, session_year, url, last_modified
		FROM scraped_elections WHERE kind = ? ORDER BY scraped_id`), func(rows *sql.Rows) error {
		var (
			e              ocd.ScrapedElection
			kind           string
			date, modified nullTime
		)
		if err := rows.Scan(&kind, &e.ScrapedID, &e.Name, &date, &e.SessionYear, &e.URL, &modified); err != nil {
			return err
		}
		e.Kind = ocd.ScrapeKind(kind)
		e.Date, e.LastModified = date.Time, modified.Time
		out = append(out, e)
		return nil
	}, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to read scraped elections: %w", err)
	}
	return out, nil
}

func (s *Store) ScrapedCandidates(ctx context.Context) ([]ocd.ScrapedCandidate, error) {
	var out []ocd.ScrapedCandidate
	err := queryRows(ctx, s.db, `SELECT scraped_id, election_scraped_id, name, office_name, filer_id, url, last_modified
		FROM scraped_candidates ORDER BY scraped_id`, func(rows *sql.Rows) error {
		var (
			c        ocd.ScrapedCandidate
			modified nullTime
		)
		if err := rows.Scan(&c.ScrapedID, &c.ElectionScrapedID, &c.Name, &c.OfficeName, &c.FilerID, &c.URL, &modified); err != nil {
			return err
		}
		c.LastModified = modified.Time
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read scraped candidates: %w", err)
	}
	return out, nil
}

func (s *Store) ScrapedIncumbents(ctx context.Context) ([]ocd.ScrapedIncumbent, error) {
	var out []ocd.ScrapedIncumbent
	err := queryRows(ctx, s.db, `SELECT scraped_id, name, office_name, session_year, url, last_modified
		FROM scraped_incumbents ORDER BY scraped_id`, func(rows *sql.Rows) error {
		var (
			i        ocd.ScrapedIncumbent
			modified nullTime
		)
		if err := rows.Scan(&i.ScrapedID, &i.Name, &i.OfficeName, &i.SessionYear, &i.URL, &modified); err != nil {
			return err
		}
		i.LastModified = modified.Time
		out = append(out, i)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read scraped incumbents: %w", err)
	}
	return out, nil
}

func (s *Store) ScrapedPropositions(ctx context.Context) ([]ocd.ScrapedProposition, error) {
	var out []ocd.ScrapedProposition
	err := queryRows(ctx, s.db, `SELECT scraped_id, election_scraped_id, name, url, last_modified
		FROM scraped_propositions ORDER BY scraped_id`, func(rows *sql.Rows) error {
		var (
			p        ocd.ScrapedProposition
			modified nullTime
		)
		if err := rows.Scan(&p.ScrapedID, &p.ElectionScrapedID, &p.Name, &p.URL, &modified); err != nil {
			return err
		}
		p.LastModified = modified.Time
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read scraped propositions: %w", err)
	}
	return out, nil
}

// Form501Filings returns the latest amendment of every stored filing.
func (s *Store) Form501Filings(ctx context.Context) ([]ocd.Form501Filing, error) {
	var all []ocd.Form501Filing
	err := queryRows(ctx, s.db, `SELECT filing_id, amend_id, filer_id, office, district, party, election_year, election_type,
		last_name, first_name, middle_name, name_suffix, statement_type, date_filed
		FROM form501_filings ORDER BY filing_id, amend_id`, func(rows *sql.Rows) error {
		var (
			f     ocd.Form501Filing
			filed nullTime
		)
		if err := rows.Scan(&f.FilingID, &f.AmendID, &f.FilerID, &f.Office, &f.District, &f.Party, &f.ElectionYear,
			&f.ElectionType, &f.LastName, &f.FirstName, &f.MiddleName, &f.NameSuffix, &f.StatementType, &filed); err != nil {
			return err
		}
		f.DateFiled = filed.Time
		all = append(all, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read form 501 filings: %w", err)
	}
	return ocd.LatestForm501(all), nil
}

// FilerTypeAsOf returns the latest filer-type row of filerID effective on or
// before asOf.
func (s *Store) FilerTypeAsOf(ctx context.Context, filerID string, asOf time.Time) (ocd.FilerTypeRecord, bool, error) {
	var (
		best  ocd.FilerTypeRecord
		found bool
	)
	err := queryRows(ctx, s.db, s.rebind(`SELECT filer_id, filer_type, effective_date, session_id, party_cd, office_cd, district_cd
		FROM filer_types WHERE filer_id = ?`), func(rows *sql.Rows) error {
		var (
			r         ocd.FilerTypeRecord
			effective nullTime
		)
		if err := rows.Scan(&r.FilerID, &r.FilerType, &effective, &r.SessionID, &r.PartyCode, &r.OfficeCode, &r.DistrictCode); err != nil {
			return err
		}
		r.EffectiveDate = effective.Time
		if r.EffectiveDate.After(asOf) {
			return nil
		}
		if !found || r.EffectiveDate.After(best.EffectiveDate) {
			best, found = r, true
		}
		return nil
	}, filerID)
	if err != nil {
		return ocd.FilerTypeRecord{}, false, fmt.Errorf("failed to read filer types of %s: %w", filerID, err)
	}
	return best, found, nil
}
