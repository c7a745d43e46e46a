// Package pubmedclient implements the rate-limited NCBI E-utilities client
// of spec.md §4.3, grounded on the other_examples PubMed client (E-utilities
// esearch/esummary/efetch over XML) and on internal/tools/web/search.go's
// token-bucket + exponential-backoff retry pattern.
package pubmedclient

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"manifold/internal/retry"
	"manifold/internal/trialerr"
)

// Scheduler enforces the global bound named in spec.md §5: concurrency ≤ 4,
// rate ≤ 8 req/s rolling, one shared instance across every strategy and the
// enricher.
type Scheduler struct {
	sem   chan struct{}
	mu    sync.Mutex
	times []time.Time
	rps   int
}

// NewScheduler builds the process-wide PubMed scheduler. Per spec.md §9
// ("Global state... Pass them explicitly via a context/environment; do not
// hide in module globals"), callers construct one Scheduler and thread it
// through every client/strategy that talks to PubMed.
func NewScheduler(concurrency, rps int) *Scheduler {
	return &Scheduler{sem: make(chan struct{}, concurrency), rps: rps}
}

// Acquire blocks until both a concurrency slot and a rolling-window rate
// token are available, or ctx is done.
func (s *Scheduler) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.waitForRateWindow(ctx); err != nil {
		<-s.sem
		return err
	}
	return nil
}

func (s *Scheduler) Release() { <-s.sem }

func (s *Scheduler) waitForRateWindow(ctx context.Context) error {
	for {
		s.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Second)
		kept := s.times[:0]
		for _, t := range s.times {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		s.times = kept
		if len(s.times) < s.rps {
			s.times = append(s.times, now)
			s.mu.Unlock()
			return nil
		}
		wait := s.times[0].Add(time.Second).Sub(now)
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Config configures the client's base URL and NCBI-recommended identity
// parameters (api_key/email improve rate limits, per the other_examples
// PubMed client).
type Config struct {
	BaseURL string
	APIKey  string
	Email   string
	Timeout time.Duration
}

type Client struct {
	cfg   Config
	http  *http.Client
	sched *Scheduler
}

func New(cfg Config, sched *Scheduler) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		sched: sched,
	}
}

// Paper is one search result summary (title + date, no abstract).
type Paper struct {
	PMID            string
	Title           string
	PublicationDate string
}

// PubmedRecord is a fully enriched article record returned by fetchRefs.
type PubmedRecord struct {
	PMID            string
	DOI             string
	Title           string
	Authors         string
	Abstract        string
	PublicationDate string
	NCTIds          []string
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	if c.cfg.Email != "" {
		params.Set("email", c.cfg.Email)
	}

	var body []byte
	err := retry.Do(ctx, retry.DefaultPolicy(), func(attempt int) error {
		if err := c.sched.Acquire(ctx); err != nil {
			return err
		}
		defer c.sched.Release()

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		fullURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + endpoint + "?" + params.Encode()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", retry.ErrAbort, err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return trialerr.Wrap(trialerr.KindPubmed, "request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return trialerr.New(trialerr.KindPubmed, fmt.Sprintf("transient status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: pubmed http %d", retry.ErrAbort, resp.StatusCode)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return trialerr.Wrap(trialerr.KindPubmed, "read response failed", err)
		}
		body = b
		return nil
	})
	return body, err
}

type esearchResponse struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

// Search runs an E-utilities esearch and returns the top `limit` PMIDs as
// bare Paper stubs (title/date filled in only by a subsequent fetchRefs).
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmode": {"xml"},
		"retmax":  {strconv.Itoa(limit)},
	}
	body, err := c.doRequest(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}
	var parsed esearchResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, trialerr.Wrap(trialerr.KindParse, "parse esearch response", err)
	}
	out := make([]Paper, 0, len(parsed.IDList.IDs))
	for _, id := range parsed.IDList.IDs {
		out = append(out, Paper{PMID: id})
	}
	return out, nil
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				AbstractText []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			AuthorList struct {
				Authors []struct {
					LastName string `xml:"LastName"`
					ForeName string `xml:"ForeName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			ELocationID []struct {
				EIdType string `xml:"EIdType,attr"`
				Value   string `xml:",chardata"`
			} `xml:"ELocationID"`
			Journal struct {
				JournalIssue struct {
					PubDate struct {
						Year  string `xml:"Year"`
						Month string `xml:"Month"`
						Day   string `xml:"Day"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIdList []struct {
			IdType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

var monthNames = map[string]string{
	"Jan": "01", "Feb": "02", "Mar": "03", "Apr": "04", "May": "05", "Jun": "06",
	"Jul": "07", "Aug": "08", "Sep": "09", "Oct": "10", "Nov": "11", "Dec": "12",
}

func normalizeMonth(m string) string {
	if m == "" {
		return ""
	}
	if _, err := strconv.Atoi(m); err == nil {
		if len(m) == 1 {
			return "0" + m
		}
		return m
	}
	if norm, ok := monthNames[m]; ok {
		return norm
	}
	return ""
}

func buildPartialDate(year, month, day string) string {
	if year == "" {
		return ""
	}
	month = normalizeMonth(month)
	if month == "" {
		return year
	}
	if day == "" {
		return year + "-" + month
	}
	if len(day) == 1 {
		day = "0" + day
	}
	return year + "-" + month + "-" + day
}

// FetchRefs batch-fetches full records (title, abstract, authors, date, DOI,
// NCT mentions) for a set of PMIDs via E-utilities efetch.
func (c *Client) FetchRefs(ctx context.Context, pmids []string) ([]PubmedRecord, error) {
	if len(pmids) == 0 {
		return nil, nil
	}
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	body, err := c.doRequest(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, err
	}
	var parsed pubmedArticleSet
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, trialerr.Wrap(trialerr.KindParse, "parse efetch response", err)
	}

	out := make([]PubmedRecord, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		rec := PubmedRecord{
			PMID:  strings.TrimSpace(a.MedlineCitation.PMID),
			Title: strings.TrimSpace(a.MedlineCitation.Article.ArticleTitle),
		}
		rec.Abstract = strings.Join(a.MedlineCitation.Article.Abstract.AbstractText, " ")

		authors := make([]string, 0, len(a.MedlineCitation.Article.AuthorList.Authors))
		for _, au := range a.MedlineCitation.Article.AuthorList.Authors {
			name := strings.TrimSpace(au.ForeName + " " + au.LastName)
			if name != "" {
				authors = append(authors, name)
			}
		}
		rec.Authors = strings.Join(authors, ", ")

		pd := a.MedlineCitation.Article.Journal.JournalIssue.PubDate
		rec.PublicationDate = buildPartialDate(pd.Year, pd.Month, pd.Day)

		for _, id := range a.PubmedData.ArticleIdList {
			if id.IdType == "doi" {
				rec.DOI = strings.TrimSpace(id.Value)
			}
		}
		for _, el := range a.MedlineCitation.Article.ELocationID {
			if el.EIdType == "doi" && rec.DOI == "" {
				rec.DOI = strings.TrimSpace(el.Value)
			}
		}

		rec.NCTIds = extractNCTIds(rec.Title + " " + rec.Abstract)
		out = append(out, rec)
	}
	return out, nil
}

// CitationMatch resolves a publication title to PMIDs via esearch's free-text
// title matching, used by the google_scholar strategy's citation-match step.
func (c *Client) CitationMatch(ctx context.Context, title string) ([]string, error) {
	query := fmt.Sprintf("%s[Title]", title)
	papers, err := c.Search(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(papers))
	for _, p := range papers {
		out = append(out, p.PMID)
	}
	return out, nil
}

// DoiToPmid resolves a DOI to a PMID, or ("", nil) if not found.
func (c *Client) DoiToPmid(ctx context.Context, doi string) (string, error) {
	if strings.TrimSpace(doi) == "" {
		return "", nil
	}
	query := fmt.Sprintf("%s[AID]", doi)
	papers, err := c.Search(ctx, query, 1)
	if err != nil {
		return "", err
	}
	if len(papers) == 0 {
		return "", nil
	}
	return papers[0].PMID, nil
}
