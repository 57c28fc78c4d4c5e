package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// Table is one extract file.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Tables renders the graph as extract tables, rows in id order.
func Tables(g store.Graph) []Table {
	parties := Table{Name: "parties", Header: []string{"id", "name", "abbreviation"}}
	for _, p := range g.Parties {
		parties.Rows = append(parties.Rows, []string{id(p.ID), p.Name, p.Abbreviation})
	}

	elections := Table{Name: "elections", Header: []string{"id", "name", "date", "administrative_organization", "division", "identifiers"}}
	for _, e := range g.Elections {
		elections.Rows = append(elections.Rows, []string{
			id(e.ID), e.Name, date(e.Date), e.AdministrativeOrganization, e.Division, identifiers(e.Identifiers),
		})
	}

	posts := Table{Name: "posts", Header: []string{"id", "label", "role", "organization", "division", "start_date", "end_date"}}
	for _, p := range g.Posts {
		posts.Rows = append(posts.Rows, []string{id(p.ID), p.Label, p.Role, p.Organization, p.Division, p.StartDate, p.EndDate})
	}

	contests := Table{Name: "contests", Header: []string{
		"id", "kind", "name", "election_id", "division", "party_id", "runoff_for_contest_id",
		"previous_term_unexpired", "post_ids", "identifiers",
	}}
	for _, c := range g.Contests {
		contests.Rows = append(contests.Rows, []string{
			id(c.ID), string(c.Kind), c.Name, id(c.ElectionID), c.Division, optionalID(c.PartyID), optionalID(c.RunoffForContestID),
			strconv.FormatBool(c.PreviousTermUnexpired), ids(c.PostIDs), identifiers(c.Identifiers),
		})
	}

	candidacies := Table{Name: "candidacies", Header: []string{
		"id", "contest_id", "person_id", "post_id", "candidate_name", "party_id",
		"registration_status", "is_incumbent", "filed_date", "form501_filing_ids",
	}}
	for _, c := range g.Candidacies {
		candidacies.Rows = append(candidacies.Rows, []string{
			id(c.ID), id(c.ContestID), id(c.PersonID), id(c.PostID), c.CandidateName, optionalID(c.PartyID),
			c.RegistrationStatus, strconv.FormatBool(c.IsIncumbent), date(c.FiledDate), ids(c.Form501FilingIDs),
		})
	}

	persons := Table{Name: "persons", Header: []string{"id", "name", "sort_name", "family_name", "given_name", "other_names", "filer_ids"}}
	for _, p := range g.Persons {
		names := make([]string, 0, len(p.OtherNames))
		for _, on := range p.OtherNames {
			names = append(names, on.Name)
		}
		persons.Rows = append(persons.Rows, []string{
			id(p.ID), p.Name, p.SortName, p.FamilyName, p.GivenName,
			strings.Join(names, "|"), strings.Join(p.IdentifierValues(ocd.SchemeFilerID), "|"),
		})
	}

	memberships := Table{Name: "memberships", Header: []string{"id", "person_id", "post_id", "role", "organization", "label", "start_date", "end_date"}}
	for _, m := range g.Memberships {
		memberships.Rows = append(memberships.Rows, []string{
			id(m.ID), id(m.PersonID), id(m.PostID), m.Role, m.Organization, m.Label, m.StartDate, m.EndDate,
		})
	}

	merges := Table{Name: "person_merges", Header: []string{"id", "survivor_id", "loser_id", "loser_name", "reason", "merged_at"}}
	for _, m := range g.Merges {
		merges.Rows = append(merges.Rows, []string{
			id(m.ID), id(m.SurvivorID), id(m.LoserID), m.LoserName, m.Reason, m.MergedAt.UTC().Format(time.RFC3339),
		})
	}

	return []Table{parties, elections, posts, contests, candidacies, persons, memberships, merges}
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func optionalID(v int64) string {
	if v == 0 {
		return ""
	}
	return id(v)
}

func ids(vs []int64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = id(v)
	}
	return strings.Join(parts, "|")
}

func identifiers(vs []ocd.Identifier) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.Scheme + ":" + v.Value
	}
	return strings.Join(parts, "|")
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(ocd.DateLayout)
}
