package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
)

const electionIndexHTML = `<html><body>
<table><tr><td>
  <a href="list.aspx?view=certified&electNav=65">2016 GENERAL</a><br>
  <a href="list.aspx?view=certified&electNav=64">2016  primary</a><br>
  <a href="list.aspx?view=certified&electNav=65">2016 GENERAL</a>
</td></tr></table>
</body></html>`

const candidatesHTML = `<html><body>
<a href="list.aspx?view=certified&electNav=65">2016 GENERAL</a>
<table>
  <tr><td><span class="hdr13">ASSEMBLY 10</span></td></tr>
  <tr><td><a href="Detail.aspx?id=1001&session=2015">DOE, JANE</a></td></tr>
  <tr><td><a href="Detail.aspx?id=1002&session=2015">ROE,  RICHARD</a></td></tr>
</table>
<table>
  <tr><td><span class="hdr13">State Senate 07</span></td></tr>
  <tr><td><a href="Detail.aspx?id=1003">SMITH, JOHN</a></td></tr>
  <tr><td><a href="Detail.aspx?id=">NOBODY</a></td></tr>
</table>
</body></html>`

const incumbentsHTML = `<html><body>
<table><tr><td>
  <table>
    <tr><th>Office</th><th>Incumbent</th></tr>
    <tr><td>ASSEMBLY 10</td><td><a href="/Campaign/Candidates/Detail.aspx?id=1001">DOE, JANE</a></td></tr>
    <tr><td>STATE SENATE 07</td><td><a href="/Campaign/Candidates/Detail.aspx?id=1003">SMITH, JOHN</a></td></tr>
  </table>
</td></tr></table>
</body></html>`

const propositionsHTML = `<html><body>
<span class="hdr14"><a name="66"></a>NOVEMBER 8, 2016, GENERAL ELECTION</span>
<table>
  <tr><td><a href="Detail.aspx?id=1376195&session=2015">PROPOSITION 051 - SCHOOL BONDS</a></td></tr>
  <tr><td><a href="Detail.aspx?id=1376196&session=2015">PROPOSITION 052 - MEDI-CAL</a></td></tr>
</table>
<span class="hdr14">JUNE 7, 2016, SPECIAL ELECTION</span>
<table>
  <tr><td><a href="Detail.aspx?id=1379000">PROPOSITION 050 - SUSPENSION OF LEGISLATORS</a></td></tr>
</table>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseElectionNav(t *testing.T) {
	page := mustURL(t, "http://cal-access.sos.ca.gov/Campaign/Candidates/list.aspx?view=certified")
	got := ParseElectionNav(mustDoc(t, electionIndexHTML), page)

	require.Len(t, got, 2)
	assert.Equal(t, ocd.ScrapedElection{
		Kind:      ocd.ScrapeCandidates,
		ScrapedID: "65",
		Name:      "2016 GENERAL",
		URL:       "http://cal-access.sos.ca.gov/Campaign/Candidates/list.aspx?view=certified&electNav=65",
	}, got[0])
	assert.Equal(t, "2016 PRIMARY", got[1].Name)
}

func TestParseCandidates(t *testing.T) {
	page := mustURL(t, "http://cal-access.sos.ca.gov/Campaign/Candidates/list.aspx?view=certified&electNav=65")
	got := ParseCandidates(mustDoc(t, candidatesHTML), page, "65")

	require.Len(t, got, 3)
	assert.Equal(t, ocd.ScrapedCandidate{
		ScrapedID:         "65-1001",
		ElectionScrapedID: "65",
		Name:              "DOE, JANE",
		OfficeName:        "ASSEMBLY 10",
		FilerID:           "1001",
		URL:               "http://cal-access.sos.ca.gov/Campaign/Candidates/Detail.aspx?id=1001&session=2015",
	}, got[0])
	assert.Equal(t, "ROE, RICHARD", got[1].Name)
	assert.Equal(t, "STATE SENATE 07", got[2].OfficeName)
	assert.Equal(t, "1003", got[2].FilerID)
}

func TestParseIncumbents(t *testing.T) {
	page := mustURL(t, "http://cal-access.sos.ca.gov/Campaign/Candidates/list.aspx?view=incumbent&session=2015")
	got := ParseIncumbents(mustDoc(t, incumbentsHTML), page, 2015)

	require.Len(t, got, 2)
	assert.Equal(t, ocd.ScrapedIncumbent{
		ScrapedID:   "2015-1001",
		Name:        "DOE, JANE",
		OfficeName:  "ASSEMBLY 10",
		SessionYear: 2015,
		URL:         "http://cal-access.sos.ca.gov/Campaign/Candidates/Detail.aspx?id=1001",
	}, got[0])
	assert.Equal(t, "STATE SENATE 07", got[1].OfficeName)
}

func TestParsePropositions(t *testing.T) {
	page := mustURL(t, "http://cal-access.sos.ca.gov/Campaign/Measures/list.aspx?session=2015")
	elections, props := ParsePropositions(mustDoc(t, propositionsHTML), page)

	require.Len(t, elections, 2)
	assert.Equal(t, "66", elections[0].ScrapedID)
	assert.Equal(t, "2016 GENERAL", elections[0].Name)
	assert.Equal(t, ocd.Date(2016, time.November, 8), elections[0].Date)
	assert.Equal(t, ocd.ScrapePropositions, elections[0].Kind)
	assert.Equal(t, "2016-06-07", elections[1].ScrapedID)
	assert.Equal(t, "2016 SPECIAL ELECTION", elections[1].Name)

	require.Len(t, props, 3)
	assert.Equal(t, "1376195", props[0].ScrapedID)
	assert.Equal(t, "66", props[0].ElectionScrapedID)
	assert.Equal(t, "PROPOSITION 051 - SCHOOL BONDS", props[0].Name)
	assert.Equal(t, "2016-06-07", props[2].ElectionScrapedID)
}

func TestClientScrapeAll(t *testing.T) {
	lastModified := time.Date(2016, time.December, 1, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
		q := r.URL.Query()
		switch {
		case r.URL.Path == candidatesPath && q.Get("view") == "certified" && q.Get("electNav") == "":
			w.Write([]byte(electionIndexHTML))
		case r.URL.Path == candidatesPath && q.Get("electNav") == "65":
			w.Write([]byte(candidatesHTML))
		case r.URL.Path == candidatesPath && q.Get("electNav") == "64":
			w.Write([]byte(`<html><body></body></html>`))
		case r.URL.Path == incumbentsPath && q.Get("view") == "incumbent":
			w.Write([]byte(incumbentsHTML))
		case r.URL.Path == propositionsPath:
			w.Write([]byte(propositionsHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, logger.Nop())
	set, err := client.ScrapeAll(context.Background(), []int{2015})
	require.NoError(t, err)

	// Two candidate elections, one session and two measure elections.
	assert.Len(t, set.Elections, 5)
	assert.Len(t, set.Candidates, 3)
	assert.Len(t, set.Incumbents, 2)
	assert.Len(t, set.Propositions, 3)
	assert.True(t, set.Candidates[0].LastModified.Equal(lastModified))
	assert.True(t, strings.HasPrefix(set.Candidates[0].URL, srv.URL+"/Campaign/Candidates/Detail.aspx"))
	assert.Equal(t, ocd.ScrapeIncumbents, set.Elections[2].Kind)
	assert.Equal(t, 2015, set.Elections[2].SessionYear)
}

func TestClientReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, logger.Nop())
	_, err := client.Incumbents(context.Background(), 2015)
	assert.ErrorContains(t, err, "410")
}
