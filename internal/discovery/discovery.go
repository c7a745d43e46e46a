// Package discovery implements the pluggable publication-discovery
// strategies of spec.md §4.4 and the fan-out engine that runs them
// concurrently for one registration, tagging each candidate PMID with the
// strategy that surfaced it. The engine uses an errgroup-bounded fan-out,
// generalized from single-URL concurrent fetches to independent,
// isolated-failure discovery producers.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"manifold/internal/trialmodel"
)

// Candidate is one PMID surfaced by a strategy, with an optional date hint.
type Candidate struct {
	PMID            string
	PublicationDate string
}

// StrategyError records an isolated strategy failure; it never aborts the
// other strategies (spec.md §4.4 execution contract).
type StrategyError struct {
	Strategy string
	Err      error
}

func (e StrategyError) Error() string { return e.Strategy + ": " + e.Err.Error() }

// Strategy produces candidate PMIDs from a Registration. ID must be stable
// across runs: it is persisted as a source tag on every surfaced Publication.
type Strategy interface {
	ID() string
	Discover(ctx context.Context, reg trialmodel.Registration) ([]Candidate, error)
}

// Result is the engine's output for one registration: the union of every
// strategy's candidates (not yet deduplicated by PMID — that's §4.5's job)
// plus any per-strategy failures.
type Result struct {
	Candidates []TaggedCandidate
	Failures   []StrategyError
}

// TaggedCandidate is a Candidate plus the strategy that produced it.
type TaggedCandidate struct {
	Candidate
	Source string
}

// Engine runs a fixed set of strategies concurrently for each registration.
type Engine struct {
	Strategies []Strategy
}

func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{Strategies: strategies}
}

// Run executes every configured strategy concurrently against reg. A
// strategy panic or error is captured as a StrategyError and does not stop
// the others (spec.md §4.4). With zero strategies configured, Run returns an
// empty Result (spec.md §8 boundary: 0 strategies ⇒ empty candidate set).
func (e *Engine) Run(ctx context.Context, reg trialmodel.Registration) Result {
	if len(e.Strategies) == 0 {
		return Result{}
	}

	var (
		mu       sync.Mutex
		tagged   []TaggedCandidate
		failures []StrategyError
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range e.Strategies {
		s := s
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					failures = append(failures, StrategyError{Strategy: s.ID(), Err: fmt.Errorf("panic: %v", r)})
					mu.Unlock()
				}
			}()
			candidates, err := s.Discover(gctx, reg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, StrategyError{Strategy: s.ID(), Err: err})
				return nil
			}
			for _, c := range candidates {
				tagged = append(tagged, TaggedCandidate{Candidate: c, Source: s.ID()})
			}
			return nil
		})
	}
	// errgroup's Wait error is always nil here: strategy errors are captured,
	// never propagated, so every strategy gets to run to completion.
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Strategy < failures[j].Strategy })
	return Result{Candidates: tagged, Failures: failures}
}
