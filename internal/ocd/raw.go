package ocd

import (
	"sort"
	"time"
)

// ScrapeKind identifies which Secretary of State list a scraped election came from.
type ScrapeKind string

// Scrape kinds
const (
	ScrapeCandidates   ScrapeKind = "candidate"
	ScrapeIncumbents   ScrapeKind = "incumbent"
	ScrapePropositions ScrapeKind = "proposition"
)

// ScrapedElection is an election heading observed on a scraped list.
type ScrapedElection struct {
	Kind         ScrapeKind `json:"kind"`
	ScrapedID    string     `json:"scraped_id"`
	Name         string     `json:"name"`
	Date         time.Time  `json:"date"`
	SessionYear  int        `json:"session_year"`
	URL          string     `json:"url"`
	LastModified time.Time  `json:"last_modified"`
}

// ScrapedCandidate is a row of the certified candidate list.
type ScrapedCandidate struct {
	ScrapedID         string    `json:"scraped_id"`
	ElectionScrapedID string    `json:"election_scraped_id"`
	Name              string    `json:"name"`
	OfficeName        string    `json:"office_name"`
	FilerID           string    `json:"filer_id"`
	URL               string    `json:"url"`
	LastModified      time.Time `json:"last_modified"`
}

// ScrapedIncumbent is a row of the incumbent list for a legislative session.
type ScrapedIncumbent struct {
	ScrapedID    string    `json:"scraped_id"`
	Name         string    `json:"name"`
	OfficeName   string    `json:"office_name"`
	SessionYear  int       `json:"session_year"`
	URL          string    `json:"url"`
	LastModified time.Time `json:"last_modified"`
}

// ScrapedProposition is a ballot measure listed under a proposition election.
type ScrapedProposition struct {
	ScrapedID         string    `json:"scraped_id"`
	ElectionScrapedID string    `json:"election_scraped_id"`
	Name              string    `json:"name"`
	URL               string    `json:"url"`
	LastModified      time.Time `json:"last_modified"`
}

// ScrapedSet is one complete scrape of the Secretary of State pages.
type ScrapedSet struct {
	Elections    []ScrapedElection    `json:"elections"`
	Candidates   []ScrapedCandidate   `json:"candidates"`
	Incumbents   []ScrapedIncumbent   `json:"incumbents"`
	Propositions []ScrapedProposition `json:"propositions"`
}

// Form501Filing is one version of a Candidate Intention Statement.
type Form501Filing struct {
	FilingID      int64     `json:"filing_id"`
	AmendID       int       `json:"amend_id"`
	FilerID       string    `json:"filer_id"`
	Office        string    `json:"office"`
	District      int       `json:"district"`
	Party         string    `json:"party"`
	ElectionYear  int       `json:"election_year"`
	ElectionType  string    `json:"election_type"`
	LastName      string    `json:"last_name"`
	FirstName     string    `json:"first_name"`
	MiddleName    string    `json:"middle_name"`
	NameSuffix    string    `json:"name_suffix"`
	StatementType string    `json:"statement_type"`
	DateFiled     time.Time `json:"date_filed"`
}

// Statement type code for a withdrawal.
const StatementWithdrawal = "10003"

// SortName builds "LAST, FIRST MIDDLE"; withMiddle false drops the middle name.
func (f Form501Filing) SortName(withMiddle bool) string {
	name := f.LastName + ", " + f.FirstName
	if withMiddle && f.MiddleName != "" {
		name += " " + f.MiddleName
	}
	return CleanName(name)
}

// OfficeName renders the filing's office the way the scraped lists do.
func (f Form501Filing) OfficeName() string {
	return FormatOffice(f.Office, f.District)
}

// LatestForm501 keeps the highest amendment of every filing, ordered by filing id.
func LatestForm501(versions []Form501Filing) []Form501Filing {
	latest := make(map[int64]Form501Filing, len(versions))
	for _, v := range versions {
		cur, ok := latest[v.FilingID]
		if !ok || v.AmendID > cur.AmendID {
			latest[v.FilingID] = v
		}
	}
	out := make([]Form501Filing, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilingID < out[j].FilingID })
	return out
}

// FilerTypeRecord is a row of the filer-to-filer-type history.
type FilerTypeRecord struct {
	FilerID       string    `json:"filer_id"`
	FilerType     string    `json:"filer_type"`
	EffectiveDate time.Time `json:"effective_date"`
	SessionID     int       `json:"session_id"`
	PartyCode     string    `json:"party_cd"`
	OfficeCode    string    `json:"office_cd"`
	DistrictCode  string    `json:"district_cd"`
}

// ProcessedVersion is one processing run over a raw snapshot.
type ProcessedVersion struct {
	ID            int64     `json:"id"`
	RawVersion    time.Time `json:"raw_version"`
	ProcessStart  time.Time `json:"process_start"`
	ProcessFinish time.Time `json:"process_finish"`
}

// Finished reports whether the run completed.
func (v ProcessedVersion) Finished() bool {
	return !v.ProcessFinish.IsZero()
}

// FileKind separates pipeline stages from exported tables in the ledger.
type FileKind string

// File kinds
const (
	FileStage  FileKind = "stage"
	FileExport FileKind = "export"
)

// ProcessedFile is a completion marker for one stage or exported table.
type ProcessedFile struct {
	ID            int64     `json:"id"`
	VersionID     int64     `json:"version_id"`
	FileName      string    `json:"file_name"`
	Kind          FileKind  `json:"kind"`
	ProcessStart  time.Time `json:"process_start"`
	ProcessFinish time.Time `json:"process_finish"`
	RecordsCount  int       `json:"records_count"`
}

// Finished reports whether the marker completed.
func (f ProcessedFile) Finished() bool {
	return !f.ProcessFinish.IsZero()
}
