package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/trialmodel"
)

type stubStrategy struct {
	id         string
	candidates []Candidate
	err        error
}

func (s stubStrategy) ID() string { return s.id }

func (s stubStrategy) Discover(_ context.Context, _ trialmodel.Registration) ([]Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

func TestEngineRunUnionsAcrossStrategies(t *testing.T) {
	e := NewEngine(
		stubStrategy{id: "a", candidates: []Candidate{{PMID: "111"}}},
		stubStrategy{id: "b", candidates: []Candidate{{PMID: "222"}}},
	)
	result := e.Run(context.Background(), trialmodel.Registration{TrialId: "NCT00000001"})
	require.Empty(t, result.Failures)
	require.Len(t, result.Candidates, 2)
}

func TestEngineRunIsolatesStrategyFailures(t *testing.T) {
	e := NewEngine(
		stubStrategy{id: "good", candidates: []Candidate{{PMID: "111"}}},
		stubStrategy{id: "bad", err: errors.New("boom")},
	)
	result := e.Run(context.Background(), trialmodel.Registration{})
	require.Len(t, result.Candidates, 1)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "bad", result.Failures[0].Strategy)
}

func TestEngineRunWithNoStrategiesReturnsEmptyResult(t *testing.T) {
	e := NewEngine()
	result := e.Run(context.Background(), trialmodel.Registration{})
	require.Empty(t, result.Candidates)
	require.Empty(t, result.Failures)
}
