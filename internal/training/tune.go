package training

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// TuneSpec is a hyperparameter sweep: a set of candidate train-loop configs
// tried as independent runs under one experiment.
type TuneSpec struct {
	Base LaunchSpec
	// Points are explicit candidate configs. When Budget exceeds the point
	// count the remainder is filled with jittered variants of the base
	// config, generated deterministically from Base.Seed.
	Points []domain.TrainLoopConfig
	Budget int
	// Concurrency bounds in-flight trials; <=1 runs them sequentially.
	Concurrency int
}

// TrialResult is the outcome of one sweep trial. Err is set when the trial
// failed; Run is still populated whenever a run record was created.
type TrialResult struct {
	Trial int
	Loop  domain.TrainLoopConfig
	Run   domain.Run
	Err   error
}

// Tune runs every candidate as its own run. A failing trial never aborts its
// siblings; only context cancellation stops the sweep early. Results come
// back ordered by trial index.
func (o *Orchestrator) Tune(ctx context.Context, spec TuneSpec) ([]TrialResult, error) {
	candidates, err := expandCandidates(spec)
	if err != nil {
		return nil, err
	}

	results := make([]TrialResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	limit := spec.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, loop := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = TrialResult{Trial: i, Loop: loop, Err: err}
				return err
			}
			launch := spec.Base
			launch.Loop = loop
			launch.Seed = spec.Base.Seed + int64(i)
			run, err := o.Launch(gctx, launch)
			results[i] = TrialResult{Trial: i, Loop: loop, Run: run, Err: err}
			// Trial failures are recorded per result, not propagated: one
			// bad candidate must not cancel the rest of the sweep.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func expandCandidates(spec TuneSpec) ([]domain.TrainLoopConfig, error) {
	candidates := append([]domain.TrainLoopConfig(nil), spec.Points...)
	if len(candidates) == 0 && spec.Budget <= 0 {
		return nil, fmt.Errorf("sweep needs candidate points or a positive budget")
	}
	if spec.Budget > 0 && spec.Budget < len(candidates) {
		candidates = candidates[:spec.Budget]
	}
	if spec.Budget > len(candidates) {
		rng := rand.New(rand.NewSource(spec.Base.Seed))
		base := spec.Base.Loop
		for len(candidates) < spec.Budget {
			candidates = append(candidates, jitter(base, rng))
		}
	}
	for i, loop := range candidates {
		if err := loop.Validate(); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return candidates, nil
}

// jitter perturbs the base config into a nearby candidate. Multiplicative
// noise on the continuous fields keeps them inside their valid ranges.
func jitter(base domain.TrainLoopConfig, rng *rand.Rand) domain.TrainLoopConfig {
	scale := func(v float64) float64 { return v * (0.5 + rng.Float64()) }
	out := base
	out.LR = scale(base.LR)
	out.DropoutP = base.DropoutP * (0.5 + rng.Float64()*0.5)
	if f := scale(base.LRFactor); f > 0 && f <= 1 {
		out.LRFactor = f
	}
	if rng.Intn(2) == 0 && base.LRPatience > 0 {
		out.LRPatience = base.LRPatience - 1
	}
	return out
}
