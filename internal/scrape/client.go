// Package scrape fetches the Secretary of State candidate, incumbent and
// ballot measure lists and turns them into scraped records.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
)

// DefaultBaseURL is the CAL-ACCESS site root.
const DefaultBaseURL = "http://cal-access.sos.ca.gov"

const (
	candidatesPath   = "/Campaign/Candidates/list.aspx"
	incumbentsPath   = "/Campaign/Candidates/list.aspx"
	propositionsPath = "/Campaign/Measures/list.aspx"
)

// Client scrapes the CAL-ACCESS lists over HTTP.
type Client struct {
	http *resty.Client
	log  *logger.Logger
	now  func() time.Time
}

// NewClient builds a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetHeader("User-Agent", "ocd-calaccess scraper")
	instrument(client)
	return &Client{http: client, log: log, now: time.Now}
}

// ScrapeAll fetches every list: the candidate lists of all linked elections
// and the incumbent and measure lists of each session start year.
func (c *Client) ScrapeAll(ctx context.Context, sessions []int) (ocd.ScrapedSet, error) {
	var set ocd.ScrapedSet

	elections, candidates, err := c.Candidates(ctx)
	if err != nil {
		return set, err
	}
	set.Elections = append(set.Elections, elections...)
	set.Candidates = candidates

	for _, session := range sessions {
		incumbents, err := c.Incumbents(ctx, session)
		if err != nil {
			return set, err
		}
		set.Elections = append(set.Elections, ocd.ScrapedElection{
			Kind:        ocd.ScrapeIncumbents,
			ScrapedID:   strconv.Itoa(session),
			Name:        fmt.Sprintf("%d-%d SESSION", session, session+1),
			SessionYear: session,
		})
		set.Incumbents = append(set.Incumbents, incumbents...)

		propElections, props, err := c.Propositions(ctx, session)
		if err != nil {
			return set, err
		}
		set.Elections = append(set.Elections, propElections...)
		set.Propositions = append(set.Propositions, props...)
	}

	c.log.Info("scrape complete", "elections", len(set.Elections), "candidates", len(set.Candidates),
		"incumbents", len(set.Incumbents), "propositions", len(set.Propositions))
	return set, nil
}

// Candidates fetches the election index and the certified candidates of
// every election it links to.
func (c *Client) Candidates(ctx context.Context) ([]ocd.ScrapedElection, []ocd.ScrapedCandidate, error) {
	page, err := c.fetch(ctx, candidatesPath, map[string]string{"view": "certified"})
	if err != nil {
		return nil, nil, err
	}
	elections := ParseElectionNav(page.doc, page.url)
	for i := range elections {
		elections[i].LastModified = page.modified
	}

	var candidates []ocd.ScrapedCandidate
	for _, e := range elections {
		ep, err := c.fetch(ctx, candidatesPath, map[string]string{"view": "certified", "electNav": e.ScrapedID})
		if err != nil {
			return nil, nil, err
		}
		found := ParseCandidates(ep.doc, ep.url, e.ScrapedID)
		for i := range found {
			found[i].LastModified = ep.modified
		}
		c.log.Debug("scraped candidate list", "election", e.Name, "candidates", len(found))
		candidates = append(candidates, found...)
	}
	return elections, candidates, nil
}

// Incumbents fetches the incumbent list of the session starting in session.
func (c *Client) Incumbents(ctx context.Context, session int) ([]ocd.ScrapedIncumbent, error) {
	page, err := c.fetch(ctx, incumbentsPath, map[string]string{"view": "incumbent", "session": strconv.Itoa(session)})
	if err != nil {
		return nil, err
	}
	out := ParseIncumbents(page.doc, page.url, session)
	for i := range out {
		out[i].LastModified = page.modified
	}
	return out, nil
}

// Propositions fetches the ballot measures of the session starting in session.
func (c *Client) Propositions(ctx context.Context, session int) ([]ocd.ScrapedElection, []ocd.ScrapedProposition, error) {
	page, err := c.fetch(ctx, propositionsPath, map[string]string{"session": strconv.Itoa(session)})
	if err != nil {
		return nil, nil, err
	}
	elections, props := ParsePropositions(page.doc, page.url)
	for i := range elections {
		elections[i].LastModified = page.modified
	}
	for i := range props {
		props[i].LastModified = page.modified
	}
	return elections, props, nil
}

type fetchedPage struct {
	doc      *goquery.Document
	url      *url.URL
	modified time.Time
}

func (c *Client) fetch(ctx context.Context, path string, query map[string]string) (fetchedPage, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return fetchedPage{}, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	if res.IsError() {
		return fetchedPage{}, fmt.Errorf("failed to fetch %s: status %s", res.Request.URL, res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return fetchedPage{}, fmt.Errorf("failed to parse %s: %w", res.Request.URL, err)
	}

	page := fetchedPage{doc: doc, modified: c.now().UTC()}
	if raw := res.RawResponse; raw != nil && raw.Request != nil {
		page.url = raw.Request.URL
	}
	if lm := res.Header().Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			page.modified = t.UTC()
		}
	}
	return page, nil
}

var tracer = otel.Tracer("github.com/ocd-calaccess/internal/scrape")

// instrument wraps every request in a client span.
func instrument(client *resty.Client) {
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), "http "+req.Method, trace.WithSpanKind(trace.SpanKindClient))
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		span := trace.SpanFromContext(res.Request.Context())
		defer span.End()
		span.SetAttributes(
			attribute.String("http.url", res.Request.URL),
			attribute.Int("http.status_code", res.StatusCode()),
		)
		if res.IsError() {
			span.SetStatus(codes.Error, res.Status())
		}
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		span := trace.SpanFromContext(req.Context())
		defer span.End()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	})
}
