// Package registry implements the three registry adapters of spec.md §4.1:
// ctgov (JSON API), euctr (text+HTML scrape), drks (HTML scrape). Dispatch is
// by trialmodel.DetectRegistryType; adapters never depend on one another.
package registry

import (
	"context"
	"fmt"

	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// Adapter fetches a Registration for one registry.
type Adapter interface {
	Fetch(ctx context.Context, trialId string) (trialmodel.Registration, error)
}

// Dispatcher routes a normalized trialId to the adapter for its detected
// registry type.
type Dispatcher struct {
	CTGov *CTGovAdapter
	EUCTR *EUCTRAdapter
	DRKS  *DRKSAdapter
}

func (d *Dispatcher) Fetch(ctx context.Context, rawTrialId string) (trialmodel.Registration, error) {
	trialId := trialmodel.NormalizeTrialId(rawTrialId)
	switch trialmodel.DetectRegistryType(trialId) {
	case trialmodel.RegistryCTGov:
		return d.CTGov.Fetch(ctx, trialId)
	case trialmodel.RegistryEUCTR:
		return d.EUCTR.Fetch(ctx, trialId)
	case trialmodel.RegistryDRKS:
		return d.DRKS.Fetch(ctx, trialId)
	default:
		return trialmodel.Registration{}, trialerr.Wrap(trialerr.KindRegistryFetch,
			fmt.Sprintf("unrecognized trial id shape: %s", trialId), nil)
	}
}
