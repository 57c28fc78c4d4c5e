package ocd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  NameParts
	}{
		{
			name:  "comma form with suffix",
			input: "SMITH, JOHN Q JR",
			want: NameParts{
				Name:       "JOHN Q SMITH JR",
				SortName:   "SMITH, JOHN Q JR",
				FamilyName: "SMITH",
				GivenName:  "JOHN Q",
				Suffix:     "JR",
			},
		},
		{
			name:  "suffix before comma",
			input: "Jones III, Robert",
			want: NameParts{
				Name:       "ROBERT JONES III",
				SortName:   "JONES III, ROBERT",
				FamilyName: "JONES",
				GivenName:  "ROBERT",
				Suffix:     "III",
			},
		},
		{
			name:  "suffix with period",
			input: "DOE, JAMES SR.",
			want: NameParts{
				Name:       "JAMES DOE SR",
				SortName:   "DOE, JAMES SR.",
				FamilyName: "DOE",
				GivenName:  "JAMES",
				Suffix:     "SR",
			},
		},
		{
			name:  "no comma keeps whole string",
			input: "  MARIA   LOPEZ ",
			want:  NameParts{Name: "MARIA LOPEZ", SortName: "MARIA LOPEZ"},
		},
		{
			name:  "suffix is a whole word only",
			input: "JRAMILLO, IVAN",
			want: NameParts{
				Name:       "IVAN JRAMILLO",
				SortName:   "JRAMILLO, IVAN",
				FamilyName: "JRAMILLO",
				GivenName:  "IVAN",
			},
		},
		{
			name:  "empty",
			input: "",
			want:  NameParts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseName(tt.input))
		})
	}
}

func TestParseDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		family string
		want   NameParts
	}{
		{"JOHN Q SMITH JR", "", NameParts{Name: "JOHN Q SMITH JR", SortName: "SMITH, JOHN Q JR", FamilyName: "SMITH", GivenName: "JOHN Q", Suffix: "JR"}},
		{"kevin de leon", "DE LEON", NameParts{Name: "KEVIN DE LEON", SortName: "DE LEON, KEVIN", FamilyName: "DE LEON", GivenName: "KEVIN"}},
		{"KEVIN DE LEON", "SMITH", NameParts{Name: "KEVIN DE LEON", SortName: "LEON, KEVIN DE", FamilyName: "LEON", GivenName: "KEVIN DE"}},
		{"CHER", "", NameParts{Name: "CHER", SortName: "CHER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDisplayName(tt.name, tt.family))
		})
	}
}

func TestNameParserFixes(t *testing.T) {
	p := NewNameParser(map[string]string{"COURTRIGHT DONNA": "COURTRIGHT, DONNA"})

	got := p.Parse("Courtright  Donna")

	assert.Equal(t, "DONNA COURTRIGHT", got.Name)
	assert.Equal(t, "COURTRIGHT, DONNA", got.SortName)
	assert.Equal(t, "COURTRIGHT", got.FamilyName)
	assert.Equal(t, "DONNA", got.GivenName)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "PEÑA, ANA", CleanName("Peña, Ana"))
	assert.Equal(t, "SMITH, JOHN", CleanName("smith,   john\t"))
}
