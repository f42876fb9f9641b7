package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism is the worker count used when none is given.
const DefaultParallelism = 8

// ValidateBatch validates many configurations against one model on a
// bounded pool of workers. Results keep the order of configs.
func ValidateBatch(ctx context.Context, model *FeatureModel, configs []Configuration, parallelism int) ([]ValidationResult, error) {
	if err := model.requireTranslated(); err != nil {
		return nil, err
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	results := make([]ValidationResult, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i := range configs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := Validate(model, configs[i])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
