package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"manifold/internal/retry"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// ctgovStudy mirrors the subset of ClinicalTrials.gov's v2 studies API this
// adapter needs (https://clinicaltrials.gov/api/v2/studies/{nctId}).
type ctgovStudy struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID         string `json:"nctId"`
			BriefTitle    string `json:"briefTitle"`
			OfficialTitle string `json:"officialTitle"`
			Acronym       string `json:"acronym"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus string `json:"overallStatus"`
			StartDate     struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
			CompletionDate struct {
				Date string `json:"date"`
			} `json:"completionDateStruct"`
		} `json:"statusModule"`
		DescriptionModule struct {
			BriefSummary        string `json:"briefSummary"`
			DetailedDescription string `json:"detailedDescription"`
		} `json:"descriptionModule"`
		SponsorCollaboratorsModule struct {
			ResponsibleParty struct {
				InvestigatorFullName string `json:"investigatorFullName"`
			} `json:"responsibleParty"`
		} `json:"sponsorCollaboratorsModule"`
		ContactsLocationsModule struct {
			OverallOfficials []struct {
				Name string `json:"name"`
			} `json:"overallOfficials"`
		} `json:"contactsLocationsModule"`
		DesignModule struct {
			StudyType string   `json:"studyType"`
			Phases    []string `json:"phases"`
		} `json:"designModule"`
		EligibilityModule struct {
			Sex string `json:"sex"`
		} `json:"eligibilityModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Name string `json:"name"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
		ReferencesModule struct {
			References []struct {
				PMID     string `json:"pmid"`
				Citation string `json:"citation"`
			} `json:"references"`
		} `json:"referencesModule"`
	} `json:"protocolSection"`
	HasResults bool `json:"hasResults"`
}

// CTGovAdapter implements the ClinicalTrials.gov registry adapter. LocalDir,
// when set, is tried first (a directory of pre-fetched {trialId}.json files)
// before falling back to the network (spec.md §4.1).
type CTGovAdapter struct {
	BaseURL  string
	LocalDir string
	http     *http.Client
}

func NewCTGovAdapter(baseURL, localDir string) *CTGovAdapter {
	if baseURL == "" {
		baseURL = "https://clinicaltrials.gov/api/v2/studies"
	}
	return &CTGovAdapter{BaseURL: baseURL, LocalDir: localDir, http: &http.Client{Timeout: 30 * time.Second}}
}

func (a *CTGovAdapter) Fetch(ctx context.Context, trialId string) (trialmodel.Registration, error) {
	var raw []byte
	var err error

	if a.LocalDir != "" {
		raw, err = os.ReadFile(filepath.Join(a.LocalDir, trialId+".json"))
		if err != nil && !os.IsNotExist(err) {
			return trialmodel.Registration{}, trialerr.Wrap(trialerr.KindRegistryFetch,
				"read local ctgov file failed", err)
		}
	}

	if raw == nil {
		raw, err = a.fetchNetwork(ctx, trialId)
		if err != nil {
			return trialmodel.Registration{}, err
		}
	}

	var study ctgovStudy
	if err := json.Unmarshal(raw, &study); err != nil {
		return trialmodel.Registration{}, &trialerr.RegistryFetchError{
			TrialId: trialId, SubKind: trialerr.RegistryParse, Cause: err,
		}
	}
	return studyToRegistration(trialId, study), nil
}

func (a *CTGovAdapter) fetchNetwork(ctx context.Context, trialId string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, retry.DefaultPolicy(), func(attempt int) error {
		url := fmt.Sprintf("%s/%s", strings.TrimSuffix(a.BaseURL, "/"), trialId)
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
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("transient ctgov status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: ctgov http %d", retry.ErrAbort, resp.StatusCode)
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
		return nil, &trialerr.RegistryFetchError{TrialId: trialId, SubKind: subKind, Cause: err}
	}
	return body, nil
}

func studyToRegistration(trialId string, s ctgovStudy) trialmodel.Registration {
	ident := s.ProtocolSection.IdentificationModule
	status := s.ProtocolSection.StatusModule
	desc := s.ProtocolSection.DescriptionModule
	design := s.ProtocolSection.DesignModule

	var pis []string
	for _, o := range s.ProtocolSection.ContactsLocationsModule.OverallOfficials {
		if o.Name != "" {
			pis = append(pis, o.Name)
		}
	}

	var interventions []string
	for _, iv := range s.ProtocolSection.ArmsInterventionsModule.Interventions {
		if iv.Name != "" {
			interventions = append(interventions, iv.Name)
		}
	}

	var refs []trialmodel.Reference
	for _, r := range s.ProtocolSection.ReferencesModule.References {
		refs = append(refs, trialmodel.Reference{PMID: r.PMID, Citation: r.Citation})
	}

	phase := ""
	if len(design.Phases) > 0 {
		phase = strings.Join(design.Phases, "/")
	}

	hasResults := s.HasResults
	return trialmodel.Registration{
		TrialId:      trialId,
		RegistryType: trialmodel.RegistryCTGov,

		BriefTitle:    ident.BriefTitle,
		OfficialTitle: ident.OfficialTitle,
		Acronym:       ident.Acronym,

		BriefSummary:        desc.BriefSummary,
		DetailedDescription: desc.DetailedDescription,

		OverallStatus:  status.OverallStatus,
		StartDate:      status.StartDate.Date,
		CompletionDate: status.CompletionDate.Date,

		InvestigatorFullName:   s.ProtocolSection.SponsorCollaboratorsModule.ResponsibleParty.InvestigatorFullName,
		PrincipalInvestigators: pis,

		StudyType:     design.StudyType,
		Phase:         phase,
		Sex:           s.ProtocolSection.EligibilityModule.Sex,
		Conditions:    s.ProtocolSection.ConditionsModule.Conditions,
		Interventions: interventions,

		HasResults: &hasResults,
		References: refs,
	}
}
