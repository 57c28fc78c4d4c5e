package ocd

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the civil-date format used in notes and exports.
const DateLayout = "2006-01-02"

// Election types
const (
	ElectionPrimary        = "PRIMARY"
	ElectionGeneral        = "GENERAL"
	ElectionSpecial        = "SPECIAL ELECTION"
	ElectionSpecialPrimary = "SPECIAL PRIMARY"
	ElectionSpecialRunoff  = "SPECIAL RUNOFF"
	ElectionSpecialGeneral = "SPECIAL GENERAL"
	ElectionRecall         = "RECALL"
)

var (
	// ErrOddYear is returned when a statutory date is asked for an odd year.
	ErrOddYear = errors.New("regular elections are only held in even years")
	// ErrUnsupportedElectionType is returned when no statutory rule applies.
	ErrUnsupportedElectionType = errors.New("no statutory date rule for election type")
)

var electionNamePattern = regexp.MustCompile(`^(\d{4})\s+([A-Z][A-Z ]*?)\s*(?:\(([^()]+)\))?$`)

// ElectionNameParts is the parsed form of "YEAR TYPE[ (OFFICE DISTRICT)]".
type ElectionNameParts struct {
	Year     int
	Type     string
	Office   string
	District int
}

// Regular reports whether the parts name a statewide primary or general.
func (p ElectionNameParts) Regular() bool {
	return p.Type == ElectionPrimary || p.Type == ElectionGeneral
}

// OfficeName renders the office in parentheses back in list form.
func (p ElectionNameParts) OfficeName() string {
	if p.Office == "" {
		return ""
	}
	return FormatOffice(p.Office, p.District)
}

// ParseElectionName parses scraped election headings such as
// "2016 GENERAL" or "2009 SPECIAL ELECTION (STATE SENATE 26)".
func ParseElectionName(name string) (ElectionNameParts, bool) {
	m := electionNamePattern.FindStringSubmatch(CleanName(name))
	if m == nil {
		return ElectionNameParts{}, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return ElectionNameParts{}, false
	}
	parts := ElectionNameParts{Year: year, Type: strings.TrimSpace(m[2])}
	if m[3] != "" {
		office := ParseOfficeName(m[3])
		parts.Office = office.Type
		parts.District = office.District
	}
	return parts, true
}

// ElectionTypeOf classifies free text such as a Form 501 election type or a
// proposition election heading.
func ElectionTypeOf(text string) string {
	s := CleanName(text)
	special := strings.Contains(s, "SPECIAL")
	switch {
	case strings.Contains(s, "RECALL"):
		return ElectionRecall
	case special && strings.Contains(s, "RUNOFF"):
		return ElectionSpecialRunoff
	case special && strings.Contains(s, "PRIMARY"):
		return ElectionSpecialPrimary
	case special && strings.Contains(s, "GENERAL"):
		return ElectionSpecialGeneral
	case special:
		return ElectionSpecial
	case strings.Contains(s, "PRIMARY"):
		return ElectionPrimary
	case strings.Contains(s, "GENERAL"):
		return ElectionGeneral
	}
	return ""
}

// ElectionName is the canonical name given to a newly created election.
func ElectionName(year int, electionType string) string {
	return fmt.Sprintf("%d %s", year, electionType)
}

// Date returns a civil date at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CivilDate truncates t to its UTC calendar day.
func CivilDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ExpectedElectionDate applies the statutory rule: the first Tuesday after the
// first Monday in June for primaries and in November for generals.
func ExpectedElectionDate(year int, electionType string) (time.Time, error) {
	if year%2 != 0 {
		return time.Time{}, fmt.Errorf("%d %s: %w", year, electionType, ErrOddYear)
	}
	var month time.Month
	switch CleanName(electionType) {
	case ElectionPrimary:
		month = time.June
	case ElectionGeneral:
		month = time.November
	default:
		return time.Time{}, fmt.Errorf("%d %s: %w", year, electionType, ErrUnsupportedElectionType)
	}
	first := Date(year, month, 1)
	toMonday := (int(time.Monday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, toMonday+1), nil
}
