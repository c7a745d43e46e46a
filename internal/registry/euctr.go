package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"manifold/internal/retry"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// EUCTRAdapter implements the EU Clinical Trials Register adapter: it fetches
// a plain-text protocol dump and an HTML results page in parallel, parses
// numbered field headers (A.3, B.1.1, E.2.1, ...) from the text dump, and
// scrapes PMIDs from the results page (spec.md §4.1).
type EUCTRAdapter struct {
	TextURLTemplate string // e.g. "https://www.clinicaltrialsregister.eu/ctr-search/trial/%s/DE?download=text"
	HTMLURLTemplate string // e.g. "https://www.clinicaltrialsregister.eu/ctr-search/trial/%s/results"
	http            *http.Client
}

func NewEUCTRAdapter(textURLTemplate, htmlURLTemplate string) *EUCTRAdapter {
	if textURLTemplate == "" {
		textURLTemplate = "https://www.clinicaltrialsregister.eu/ctr-search/trial/%s/DE"
	}
	if htmlURLTemplate == "" {
		htmlURLTemplate = "https://www.clinicaltrialsregister.eu/ctr-search/trial/%s/results"
	}
	return &EUCTRAdapter{
		TextURLTemplate: textURLTemplate,
		HTMLURLTemplate: htmlURLTemplate,
		http:            &http.Client{Timeout: 30 * time.Second},
	}
}

var euctrFieldPattern = regexp.MustCompile(`(?m)^([A-Z](?:\.(?:\d+|[A-Z]+))+)\s+(.+?):\s*(.*)$`)

var euctrPMIDPattern = regexp.MustCompile(`ncbi\.nlm\.nih\.gov/pubmed/(\d+)`)

var euctrResultIndicators = []string{
	"results information", "result summary", "clinical trial results", "date of global end of trial",
}

func (a *EUCTRAdapter) Fetch(ctx context.Context, trialId string) (trialmodel.Registration, error) {
	var (
		textBody, htmlBody []byte
		textErr, htmlErr   error
		wg                 sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		textBody, textErr = a.fetch(ctx, fmt.Sprintf(a.TextURLTemplate, trialId))
	}()
	go func() {
		defer wg.Done()
		htmlBody, htmlErr = a.fetch(ctx, fmt.Sprintf(a.HTMLURLTemplate, trialId))
	}()
	wg.Wait()

	if textErr != nil {
		return trialmodel.Registration{}, &trialerr.RegistryFetchError{
			TrialId: trialId, SubKind: trialerr.RegistryTransport, Cause: textErr,
		}
	}
	// The results page is best-effort: a trial with no posted results is not
	// a fetch failure, just an empty/absent page.
	fields := parseEUCTRFields(string(textBody))

	reg, err := fieldsToRegistration(trialId, fields)
	if err != nil {
		return trialmodel.Registration{}, &trialerr.RegistryFetchError{
			TrialId: trialId, SubKind: trialerr.RegistryParse, Cause: err,
		}
	}

	if htmlErr == nil && len(htmlBody) > 0 {
		pmids := scrapeEUCTRPmids(htmlBody)
		reg.LinkedPubmedIds = pmids
		hasResults := hasEUCTRResultIndicators(string(htmlBody))
		reg.HasResults = &hasResults
	}

	return reg, nil
}

func (a *EUCTRAdapter) fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, retry.DefaultPolicy(), func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", retry.ErrAbort, err)
		}
		resp, err := a.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: not found", retry.ErrAbort)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("transient euctr status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: euctr http %d", retry.ErrAbort, resp.StatusCode)
		}

		b, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return rerr
		}
		body = b
		return nil
	})
	return body, err
}

// parseEUCTRFields maps numbered field codes (A.3, B.1.1, E.2.1, ...) to
// their trailing text value.
func parseEUCTRFields(text string) map[string]string {
	fields := map[string]string{}
	for _, m := range euctrFieldPattern.FindAllStringSubmatch(text, -1) {
		code := m[1]
		value := strings.TrimSpace(m[3])
		if value != "" {
			fields[code] = value
		}
	}
	return fields
}

func fieldsToRegistration(trialId string, fields map[string]string) (trialmodel.Registration, error) {
	reg := trialmodel.Registration{
		TrialId:      trialId,
		RegistryType: trialmodel.RegistryEUCTR,

		BriefTitle:    firstNonEmpty(fields["A.3"], fields["A.3.1"]),
		OfficialTitle: fields["A.3"],

		BriefSummary:        fields["E.1.1"],
		DetailedDescription: fields["E.2.1"],

		OverallStatus:  fields["P.END.1"],
		StartDate:      fields["N.1.1"],
		CompletionDate: fields["P.END.2"],

		StudyType: fields["E.8.1"],
		Phase:     fields["E.7.1"],
		Sex:       fields["F.1.1"],
	}

	if cond := fields["E.1.1.1"]; cond != "" {
		reg.Conditions = []string{cond}
	}
	if iv := fields["D.3.1"]; iv != "" {
		reg.Interventions = []string{iv}
	}
	if reg.BriefTitle == "" && reg.OfficialTitle == "" {
		reg.BriefTitle = "EudraCT " + trialId
	}
	return reg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func scrapeEUCTRPmids(body []byte) []string {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return dedupeStrings(extractPmidsFromText(string(body)))
	}
	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var pmids []string
	for _, href := range hrefs {
		pmids = append(pmids, extractPmidsFromText(href)...)
	}
	return dedupeStrings(pmids)
}

func extractPmidsFromText(s string) []string {
	matches := euctrPMIDPattern.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func hasEUCTRResultIndicators(htmlText string) bool {
	lower := strings.ToLower(htmlText)
	for _, indicator := range euctrResultIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

