package ocd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Office types with chamber or district semantics
const (
	OfficeSenate     = "STATE SENATE"
	OfficeAssembly   = "ASSEMBLY"
	OfficeEqualizer  = "MEMBER BOARD OF EQUALIZATION"
	OfficeGovernor   = "GOVERNOR"
	OfficeSecretary  = "SECRETARY OF STATE"
	OfficeController = "CONTROLLER"
)

var officePattern = regexp.MustCompile(`^([A-Z][A-Z .,'&/-]*?)\s*(\d{1,2})?$`)

var officeAliases = map[string]string{
	"SENATE":                OfficeSenate,
	"STATE SENATOR":         OfficeSenate,
	"STATE ASSEMBLY":        OfficeAssembly,
	"ASSEMBLYMEMBER":        OfficeAssembly,
	"ASSEMBLY MEMBER":       OfficeAssembly,
	"BOARD OF EQUALIZATION": OfficeEqualizer,
	"BOE":                   OfficeEqualizer,
	"STATE CONTROLLER":      OfficeController,
}

// OfficeName is a parsed office description.
type OfficeName struct {
	Type     string
	District int
}

// String renders the office as the scraped lists do ("STATE SENATE 07").
func (o OfficeName) String() string {
	return FormatOffice(o.Type, o.District)
}

// ParseOfficeName splits a free-text office into its type label and trailing
// district number.
func ParseOfficeName(name string) OfficeName {
	s := CleanName(name)
	m := officePattern.FindStringSubmatch(s)
	if m == nil {
		return OfficeName{Type: s}
	}
	office := OfficeName{Type: strings.TrimSpace(m[1])}
	if m[2] != "" {
		office.District, _ = strconv.Atoi(m[2])
	}
	if alias, ok := officeAliases[office.Type]; ok {
		office.Type = alias
	}
	return office
}

// FormatOffice renders a type and district with a two-digit district.
func FormatOffice(officeType string, district int) string {
	officeType = CleanName(officeType)
	if alias, ok := officeAliases[officeType]; ok {
		officeType = alias
	}
	if district <= 0 {
		return officeType
	}
	return fmt.Sprintf("%s %02d", officeType, district)
}
