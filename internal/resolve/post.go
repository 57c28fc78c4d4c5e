package resolve

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

const executiveBranch = "California State Executive Branch"

type chamber struct {
	maxDistrict  int
	label        string
	role         string
	organization string
	division     string
}

var chambers = map[string]chamber{
	ocd.OfficeSenate: {
		maxDistrict:  40,
		label:        "State Senate District %d",
		role:         "Senator",
		organization: "California State Senate",
		division:     ocd.StateDivision + "/sldu:%d",
	},
	ocd.OfficeAssembly: {
		maxDistrict:  80,
		label:        "State Assembly District %d",
		role:         "Assembly Member",
		organization: "California State Assembly",
		division:     ocd.StateDivision + "/sldl:%d",
	},
	ocd.OfficeEqualizer: {
		maxDistrict:  4,
		label:        "Board of Equalization District %d",
		role:         "Board Member",
		organization: "State Board of Equalization",
		division:     ocd.StateDivision + "/boe_district:%d",
	},
}

// statewideOffices maps constitutional offices to their organisations.
var statewideOffices = map[string]string{
	ocd.OfficeGovernor:                     "Office of the Governor",
	"LIEUTENANT GOVERNOR":                  "Office of the Lieutenant Governor",
	ocd.OfficeSecretary:                    "California Secretary of State",
	ocd.OfficeController:                   "California State Controller",
	"TREASURER":                            "California State Treasurer",
	"ATTORNEY GENERAL":                     "California Department of Justice",
	"INSURANCE COMMISSIONER":               "California Department of Insurance",
	"SUPERINTENDENT OF PUBLIC INSTRUCTION": "California Department of Education",
}

// DescribePost builds the post an office description refers to without
// touching the store.
func DescribePost(officeName string) (ocd.Post, error) {
	office := ocd.ParseOfficeName(officeName)
	if office.Type == "" {
		return ocd.Post{}, &DivisionError{Office: officeName}
	}

	if ch, ok := chambers[office.Type]; ok {
		if office.District < 1 || office.District > ch.maxDistrict {
			return ocd.Post{}, &DivisionError{Office: officeName}
		}
		return ocd.Post{
			Label:        fmt.Sprintf(ch.label, office.District),
			Role:         ch.role,
			Organization: ch.organization,
			Division:     fmt.Sprintf(ch.division, office.District),
			OfficeType:   office.Type,
			District:     office.District,
		}, nil
	}

	// A district on an office we cannot place would produce a malformed post.
	if office.District > 0 {
		return ocd.Post{}, &DivisionError{Office: officeName}
	}

	title := officeTitle(office.Type)
	org, ok := statewideOffices[office.Type]
	if !ok {
		org = executiveBranch
	}
	return ocd.Post{
		Label:        title,
		Role:         title,
		Organization: org,
		Division:     ocd.StateDivision,
		OfficeType:   office.Type,
	}, nil
}

func officeTitle(officeType string) string {
	words := strings.Fields(cases.Title(language.English).String(strings.ToLower(officeType)))
	for i, w := range words {
		switch w {
		case "Of", "The", "And", "For":
			if i > 0 {
				words[i] = strings.ToLower(w)
			}
		}
	}
	return strings.Join(words, " ")
}

// PostResolver finds or creates posts from office descriptions.
type PostResolver struct {
	store store.PostRepository
}

// NewPostResolver creates a post resolver.
func NewPostResolver(st store.PostRepository) *PostResolver {
	return &PostResolver{store: st}
}

// GetOrCreate returns the post for officeName and whether it was created.
// Offices without a known division return an error wrapping
// ErrDivisionNotFound.
func (r *PostResolver) GetOrCreate(ctx context.Context, officeName string) (ocd.Post, bool, error) {
	want, err := DescribePost(officeName)
	if err != nil {
		return ocd.Post{}, false, err
	}

	key := store.PostKey{Label: want.Label, Division: want.Division, Organization: want.Organization, Role: want.Role}
	found, err := r.store.PostByKey(ctx, key)
	if err != nil {
		return ocd.Post{}, false, fmt.Errorf("failed to look up post %s: %w", want.Label, err)
	}
	switch found.State {
	case store.Found:
		return found.Value, false, nil
	case store.Ambiguous:
		return ocd.Post{}, false, &store.AmbiguousError{What: "post " + want.Label, Matches: len(found.Matches)}
	}

	if err := r.store.CreatePost(ctx, &want); err != nil {
		return ocd.Post{}, false, fmt.Errorf("failed to create post %s: %w", want.Label, err)
	}
	return want, true, nil
}
