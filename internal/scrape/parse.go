package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ocd-calaccess/internal/ocd"
)

const (
	// electionNavSelector matches the election links of the candidate list.
	electionNavSelector = `a[href*="electNav="]`
	detailSelector      = `a[href*="Detail.aspx?id="]`
	officeHeading       = "span.hdr13"
	electionHeading     = "span.hdr14"
)

var headingDatePattern = regexp.MustCompile(`^([A-Z]+ \d{1,2}, \d{4})`)

// ParseElectionNav lists the elections linked from a candidate list page.
func ParseElectionNav(doc *goquery.Document, page *url.URL) []ocd.ScrapedElection {
	var (
		out  []ocd.ScrapedElection
		seen = make(map[string]bool)
	)
	doc.Find(electionNavSelector).Each(func(_ int, a *goquery.Selection) {
		link, id := resolveLink(page, a, "electNav")
		name := ocd.CleanName(a.Text())
		if id == "" || name == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, ocd.ScrapedElection{
			Kind:      ocd.ScrapeCandidates,
			ScrapedID: id,
			Name:      name,
			URL:       link,
		})
	})
	return out
}

// ParseCandidates reads the certified candidates of one election. Each
// office heading applies to the candidate links that follow it.
func ParseCandidates(doc *goquery.Document, page *url.URL, electionID string) []ocd.ScrapedCandidate {
	var (
		out    []ocd.ScrapedCandidate
		office string
	)
	doc.Find(officeHeading + ", " + detailSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Is(officeHeading) {
			office = ocd.CleanName(s.Text())
			return
		}
		link, filerID := resolveLink(page, s, "id")
		name := ocd.CleanName(s.Text())
		if office == "" || filerID == "" || name == "" {
			return
		}
		out = append(out, ocd.ScrapedCandidate{
			ScrapedID:         electionID + "-" + filerID,
			ElectionScrapedID: electionID,
			Name:              name,
			OfficeName:        office,
			FilerID:           filerID,
			URL:               link,
		})
	})
	return out
}

// ParseIncumbents reads the incumbent table of one legislative session. The
// first cell of a row is the office, the linked cell the member.
func ParseIncumbents(doc *goquery.Document, page *url.URL, session int) []ocd.ScrapedIncumbent {
	var out []ocd.ScrapedIncumbent
	leafRows := doc.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Find("tr").Length() == 0
	})
	leafRows.Each(func(_ int, tr *goquery.Selection) {
		a := tr.Find(detailSelector).First()
		if a.Length() == 0 {
			return
		}
		office := ocd.CleanName(tr.Find("td").First().Text())
		link, filerID := resolveLink(page, a, "id")
		name := ocd.CleanName(a.Text())
		if office == "" || office == name || filerID == "" {
			return
		}
		out = append(out, ocd.ScrapedIncumbent{
			ScrapedID:   fmt.Sprintf("%d-%s", session, filerID),
			Name:        name,
			OfficeName:  office,
			SessionYear: session,
			URL:         link,
		})
	})
	return out
}

// ParsePropositions reads a ballot measure list. Election headings read
// "NOVEMBER 8, 2016, GENERAL ELECTION"; the measures linked after a heading
// belong to that election.
func ParsePropositions(doc *goquery.Document, page *url.URL) ([]ocd.ScrapedElection, []ocd.ScrapedProposition) {
	var (
		elections []ocd.ScrapedElection
		props     []ocd.ScrapedProposition
		current   string
	)
	doc.Find(electionHeading + ", " + detailSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Is(electionHeading) {
			e, ok := propositionElection(s, page)
			if !ok {
				current = ""
				return
			}
			elections = append(elections, e)
			current = e.ScrapedID
			return
		}
		if current == "" {
			return
		}
		link, id := resolveLink(page, s, "id")
		name := ocd.CleanName(s.Text())
		if id == "" || name == "" {
			return
		}
		props = append(props, ocd.ScrapedProposition{
			ScrapedID:         id,
			ElectionScrapedID: current,
			Name:              name,
			URL:               link,
		})
	})
	return elections, props
}

func propositionElection(heading *goquery.Selection, page *url.URL) (ocd.ScrapedElection, bool) {
	text := ocd.CleanName(heading.Text())
	m := headingDatePattern.FindStringSubmatch(text)
	if m == nil {
		return ocd.ScrapedElection{}, false
	}
	// Month names parse case-insensitively.
	date, err := time.Parse("January 2, 2006", m[1])
	if err != nil {
		return ocd.ScrapedElection{}, false
	}
	electionType := ocd.ElectionTypeOf(strings.TrimPrefix(text, m[1]))
	if electionType == "" {
		electionType = ocd.ElectionSpecial
	}

	id, _ := heading.Find("a[name]").Attr("name")
	if id == "" {
		id = date.Format(ocd.DateLayout)
	}
	e := ocd.ScrapedElection{
		Kind:      ocd.ScrapePropositions,
		ScrapedID: id,
		Name:      ocd.ElectionName(date.Year(), electionType),
		Date:      date,
	}
	if page != nil {
		e.URL = page.String()
	}
	return e, true
}

// resolveLink returns the absolute href of a and the value of its query
// parameter param.
func resolveLink(page *url.URL, a *goquery.Selection, param string) (string, string) {
	href, ok := a.Attr("href")
	if !ok {
		return "", ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", ""
	}
	if page != nil {
		ref = page.ResolveReference(ref)
	}
	return ref.String(), strings.TrimSpace(ref.Query().Get(param))
}
