package store

import (
	"time"

	"manifold/internal/trialmodel"
)

func newTestProgress() *trialmodel.Progress {
	return trialmodel.NewProgress("input.csv", time.Now())
}
