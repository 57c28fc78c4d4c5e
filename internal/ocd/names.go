package ocd

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	suffixPattern     = regexp.MustCompile(`(?i)\b(III|II|IV|JR|SR)\b\.?`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	commaRunPattern   = regexp.MustCompile(`\s*,[\s,]*`)
)

// NameParts is the structured form of a raw candidate name.
type NameParts struct {
	Name       string
	SortName   string
	FamilyName string
	GivenName  string
	Suffix     string
}

// CleanName upper-cases raw, folds compatibility characters and collapses
// whitespace.
func CleanName(raw string) string {
	s := norm.NFKC.String(raw)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.ToUpper(strings.TrimSpace(s))
}

// NameParser parses "LAST, FIRST MIDDLE SUFFIX" strings after applying a table
// of known malformed inputs.
type NameParser struct {
	fixes map[string]string
}

// NewNameParser creates a parser; fixes maps cleaned raw strings to their
// corrected form.
func NewNameParser(fixes map[string]string) NameParser {
	cleaned := make(map[string]string, len(fixes))
	for from, to := range fixes {
		cleaned[CleanName(from)] = CleanName(to)
	}
	return NameParser{fixes: cleaned}
}

// ParseName parses raw with no fix table.
func ParseName(raw string) NameParts {
	return NameParser{}.Parse(raw)
}

// Fix returns the cleaned and corrected form of raw.
func (p NameParser) Fix(raw string) string {
	s := CleanName(raw)
	if fixed, ok := p.fixes[s]; ok {
		return fixed
	}
	return s
}

// Parse always produces a best-effort result.
func (p NameParser) Parse(raw string) NameParts {
	s := p.Fix(raw)
	parts := NameParts{Name: s, SortName: s}
	if s == "" {
		return parts
	}

	rest := s
	if loc := suffixPattern.FindStringSubmatchIndex(s); loc != nil {
		parts.Suffix = strings.ToUpper(s[loc[2]:loc[3]])
		rest = s[:loc[0]] + " " + s[loc[1]:]
		rest = whitespacePattern.ReplaceAllString(rest, " ")
		rest = commaRunPattern.ReplaceAllString(rest, ", ")
		rest = strings.Trim(rest, " ,")
	}

	family, given, ok := strings.Cut(rest, ",")
	family = strings.TrimSpace(family)
	given = strings.TrimSpace(given)
	if !ok || family == "" || given == "" {
		return parts
	}

	parts.FamilyName = family
	parts.GivenName = given
	parts.Name = given + " " + family
	if parts.Suffix != "" {
		parts.Name += " " + parts.Suffix
	}
	return parts
}

// ParseDisplayName splits a display name such as "JOHN Q SMITH JR" back into
// its parts. The family name is family when the name ends with it, else the
// last word.
func ParseDisplayName(name, family string) NameParts {
	s := CleanName(name)
	parts := NameParts{Name: s, SortName: s}

	rest := s
	if loc := suffixPattern.FindStringSubmatchIndex(s); loc != nil && loc[1] == len(s) {
		parts.Suffix = strings.ToUpper(s[loc[2]:loc[3]])
		rest = strings.TrimSpace(s[:loc[0]])
	}

	family = CleanName(family)
	var given string
	if family != "" && strings.HasSuffix(rest, " "+family) {
		given = strings.TrimSpace(strings.TrimSuffix(rest, family))
	} else if i := strings.LastIndex(rest, " "); i > 0 {
		given, family = rest[:i], rest[i+1:]
	} else {
		return parts
	}

	parts.FamilyName = family
	parts.GivenName = given
	parts.SortName = family + ", " + given
	if parts.Suffix != "" {
		parts.SortName += " " + parts.Suffix
	}
	return parts
}
