package classifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const defaultBatchWorkers = 5

// Classifier is the single-request surface the batch controller fans out
// over.
type Classifier interface {
	Classify(ctx context.Context, req Request) Result
}

// BatchController classifies many items with bounded concurrency. Output
// order always matches input order, and one item's failure never disturbs
// its siblings: errors arrive as error-status results in the item's slot.
type BatchController struct {
	classifier Classifier
	workers    int
	logger     *zap.Logger
}

// NewBatchController creates a controller running at most workers
// classifications at once.
func NewBatchController(classifier Classifier, workers int, logger *zap.Logger) *BatchController {
	if workers < 1 {
		workers = defaultBatchWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchController{
		classifier: classifier,
		workers:    workers,
		logger:     logger.Named("batch"),
	}
}

// Classify runs every item through the classifier. A non-empty method
// overrides each item's own method.
func (b *BatchController) Classify(ctx context.Context, items []Request, method string) []Result {
	results := make([]Result, len(items))
	if len(items) == 0 {
		return results
	}

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		b.logger.Error("worker pool creation failed", zap.Error(err))
		for i := range items {
			results[i] = errorResult(fmt.Sprintf("worker pool unavailable: %v", err))
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		if method != "" {
			item.Method = method
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = b.classifier.Classify(ctx, item)
		}); err != nil {
			wg.Done()
			results[i] = errorResult(fmt.Sprintf("batch submission failed: %v", err))
		}
	}
	wg.Wait()

	return results
}
