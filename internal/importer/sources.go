package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ocd-calaccess/internal/ocd"
)

// ImportForm501 loads Form 501 filing versions.
// Columns: filing_id,amend_id,filer_id,office,district,party,election_year,election_type,
// last_name,first_name,middle_name,name_suffix,statement_type,date_filed
func (im *Importer) ImportForm501(ctx context.Context, r io.Reader, comma rune) (Result, error) {
	var filings []ocd.Form501Filing
	res, err := im.readRows(r, comma, []string{"filing_id", "amend_id", "filer_id"}, func(rw row) error {
		filingID, err := rw.intValue("filing_id")
		if err != nil {
			return err
		}
		if filingID == 0 {
			return fmt.Errorf("missing filing_id")
		}
		amendID, err := rw.intValue("amend_id")
		if err != nil {
			return err
		}
		district, err := rw.intValue("district")
		if err != nil {
			return err
		}
		year, err := rw.intValue("election_year")
		if err != nil {
			return err
		}
		filed, err := rw.timeValue("date_filed")
		if err != nil {
			return err
		}
		filings = append(filings, ocd.Form501Filing{
			FilingID:      int64(filingID),
			AmendID:       amendID,
			FilerID:       rw.get("filer_id"),
			Office:        rw.get("office"),
			District:      district,
			Party:         rw.get("party"),
			ElectionYear:  year,
			ElectionType:  rw.get("election_type"),
			LastName:      rw.get("last_name"),
			FirstName:     rw.get("first_name"),
			MiddleName:    rw.get("middle_name"),
			NameSuffix:    rw.get("name_suffix"),
			StatementType: rw.get("statement_type"),
			DateFiled:     filed,
		})
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("form 501: %w", err)
	}
	if err := im.target.ReplaceForm501Filings(ctx, filings); err != nil {
		return Result{}, err
	}
	im.log.Info("import complete", "kind", "form501", "imported", res.Imported, "errors", res.Errors)
	return res, nil
}

// ImportFilerTypes loads the filer-to-filer-type history.
// Columns: filer_id,filer_type,effective_date,session_id,party_cd,office_cd,district_cd
func (im *Importer) ImportFilerTypes(ctx context.Context, r io.Reader, comma rune) (Result, error) {
	var records []ocd.FilerTypeRecord
	res, err := im.readRows(r, comma, []string{"filer_id", "effective_date"}, func(rw row) error {
		if rw.get("filer_id") == "" {
			return fmt.Errorf("missing filer_id")
		}
		effective, err := rw.timeValue("effective_date")
		if err != nil {
			return err
		}
		session, err := rw.intValue("session_id")
		if err != nil {
			return err
		}
		records = append(records, ocd.FilerTypeRecord{
			FilerID:       rw.get("filer_id"),
			FilerType:     rw.get("filer_type"),
			EffectiveDate: effective,
			SessionID:     session,
			PartyCode:     rw.get("party_cd"),
			OfficeCode:    rw.get("office_cd"),
			DistrictCode:  rw.get("district_cd"),
		})
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("filer types: %w", err)
	}
	if err := im.target.ReplaceFilerTypes(ctx, records); err != nil {
		return Result{}, err
	}
	im.log.Info("import complete", "kind", "filer-types", "imported", res.Imported, "errors", res.Errors)
	return res, nil
}

// ImportScraped loads a JSON scrape dump as written by the scraper.
func (im *Importer) ImportScraped(ctx context.Context, r io.Reader) (Result, error) {
	var set ocd.ScrapedSet
	if err := json.NewDecoder(r).Decode(&set); err != nil {
		return Result{}, fmt.Errorf("failed to decode scrape dump: %w", err)
	}
	if err := im.target.ReplaceScraped(ctx, set); err != nil {
		return Result{}, err
	}
	res := Result{Imported: len(set.Elections) + len(set.Candidates) + len(set.Incumbents) + len(set.Propositions)}
	im.log.Info("import complete", "kind", "scraped", "imported", res.Imported)
	return res, nil
}
