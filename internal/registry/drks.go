package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"manifold/internal/retry"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// DRKSAdapter implements the German Clinical Trials Register adapter: it
// scrapes the trial's HTML page using <dt>/<dd> label matching and collects
// DOI/PubMed/NCBI links as references (spec.md §4.1).
type DRKSAdapter struct {
	URLTemplate string // e.g. "https://drks.de/search/en/trial/%s"
	http        *http.Client
}

func NewDRKSAdapter(urlTemplate string) *DRKSAdapter {
	if urlTemplate == "" {
		urlTemplate = "https://drks.de/search/en/trial/%s"
	}
	return &DRKSAdapter{URLTemplate: urlTemplate, http: &http.Client{Timeout: 30 * time.Second}}
}

var drksReferencePattern = regexp.MustCompile(`(?i)(doi\.org/[^\s"'<>]+|ncbi\.nlm\.nih\.gov/pubmed/\d+|pubmed\.ncbi\.nlm\.nih\.gov/\d+)`)

func (a *DRKSAdapter) Fetch(ctx context.Context, trialId string) (trialmodel.Registration, error) {
	url := fmt.Sprintf(a.URLTemplate, trialId)
	body, err := a.fetch(ctx, url)
	if err != nil {
		return trialmodel.Registration{}, err
	}

	root, perr := html.Parse(bytes.NewReader(body))
	if perr != nil {
		return trialmodel.Registration{}, &trialerr.RegistryFetchError{
			TrialId: trialId, SubKind: trialerr.RegistryParse, Cause: perr,
		}
	}

	fields := scrapeDefinitionList(root)
	reg := drksFieldsToRegistration(trialId, fields)
	reg.References = drksScrapeReferences(body)
	return reg, nil
}

func (a *DRKSAdapter) fetch(ctx context.Context, url string) ([]byte, error) {
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
			return fmt.Errorf("transient drks status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: drks http %d", retry.ErrAbort, resp.StatusCode)
		}

		b, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return rerr
		}
		body = b
		return nil
	})
	if err != nil {
		subKind := trialerr.RegistryTransport
		if strings.Contains(err.Error(), "not found") {
			subKind = trialerr.RegistryNotFound
		}
		return nil, &trialerr.RegistryFetchError{TrialId: fmt.Sprintf("url=%s", url), SubKind: subKind, Cause: err}
	}
	return body, nil
}

// scrapeDefinitionList walks every <dt>/<dd> pair in the document and
// returns a lower-cased-label → raw-text map.
func scrapeDefinitionList(doc *html.Node) map[string]string {
	fields := map[string]string{}
	var pendingLabel string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "dt":
				pendingLabel = strings.ToLower(strings.TrimSpace(textContent(n)))
			case "dd":
				if pendingLabel != "" {
					fields[pendingLabel] = strings.TrimSpace(textContent(n))
					pendingLabel = ""
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return fields
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// normalizeDRKSField converts scraped HTML-adjacent text into markdown-safe
// plain text via html-to-markdown/v2, so embedded formatting doesn't leak
// raw tags into the brief summary / detailed description stored on
// Registration.
func normalizeDRKSField(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(raw)
	if err != nil {
		return raw
	}
	return strings.TrimSpace(md)
}

func drksFieldsToRegistration(trialId string, fields map[string]string) trialmodel.Registration {
	get := func(label string) string { return fields[label] }

	reg := trialmodel.Registration{
		TrialId:      trialId,
		RegistryType: trialmodel.RegistryDRKS,

		BriefTitle:    get("public title"),
		OfficialTitle: get("scientific title"),

		BriefSummary:        normalizeDRKSField(get("brief summary in lay language")),
		DetailedDescription: normalizeDRKSField(get("brief summary in scientific language")),

		OverallStatus: get("recruitment status"),
		StartDate:     get("start of recruitment"),

		InvestigatorFullName: get("principal investigator"),

		StudyType: get("study type"),
		Phase:     get("phase"),
		Sex:       get("gender"),
	}

	if cond := get("indication / condition"); cond != "" {
		reg.Conditions = []string{cond}
	}
	if iv := get("intervention / therapy"); iv != "" {
		reg.Interventions = []string{iv}
	}
	if reg.BriefTitle == "" && reg.OfficialTitle == "" {
		reg.BriefTitle = "DRKS " + trialId
	}
	return reg
}

func drksScrapeReferences(body []byte) []trialmodel.Reference {
	matches := drksReferencePattern.FindAllString(string(body), -1)
	seen := map[string]bool{}
	var refs []trialmodel.Reference
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		ref := trialmodel.Reference{Citation: m}
		if sub := euctrPMIDPattern.FindStringSubmatch(m); len(sub) == 2 {
			ref.PMID = sub[1]
		} else if sub := pubmedURLPattern.FindStringSubmatch(m); len(sub) == 2 {
			ref.PMID = sub[1]
		}
		refs = append(refs, ref)
	}
	return refs
}

var pubmedURLPattern = regexp.MustCompile(`pubmed\.ncbi\.nlm\.nih\.gov/(\d+)`)
