package okr

import (
	"context"
	"fmt"
	"math"
)

// ProgressStore is the persistence needed to recompute objective progress.
type ProgressStore interface {
	ListKeyResults(ctx context.Context, objectiveID string) ([]*KeyResult, error)
	SetObjectiveProgress(ctx context.Context, objectiveID string, progress float64) error
}

// KeyResultPercent returns current/target as a percentage capped at 100. A
// non-positive target contributes 0.
func KeyResultPercent(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	p := current / target * 100
	if math.IsNaN(p) {
		return 0
	}
	return math.Min(p, 100)
}

// Aggregate returns the mean KeyResultPercent across krs, or 0 when empty.
func Aggregate(krs []*KeyResult) float64 {
	if len(krs) == 0 {
		return 0
	}
	var sum float64
	for _, kr := range krs {
		sum += KeyResultPercent(kr.Current, kr.Target)
	}
	return sum / float64(len(krs))
}

// Recompute derives the objective's progress from its key results, persists
// it, and returns it. Callers run it in the same transaction as the key
// result mutation that made it necessary.
func Recompute(ctx context.Context, store ProgressStore, objectiveID string) (float64, error) {
	krs, err := store.ListKeyResults(ctx, objectiveID)
	if err != nil {
		return 0, fmt.Errorf("loading key results: %w", err)
	}
	progress := Aggregate(krs)
	if err := store.SetObjectiveProgress(ctx, objectiveID, progress); err != nil {
		return 0, fmt.Errorf("saving objective progress: %w", err)
	}
	return progress, nil
}
