package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/plmforge/copilot/internal/util"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// IngestRecords builds the graph from a batch of loaded records. Records are
// processed in parallel up to the configured limit; each record extracts,
// merges in its own transaction and indexes its entities.
//
// Failures stay per-record: a failed record lands in the summary and the
// batch continues. Only context cancellation aborts the whole run.
func (c *GraphClient) IngestRecords(
	ctx context.Context,
	records []common.Record,
) (common.IngestSummary, error) {
	start := time.Now()

	var mu sync.Mutex
	summary := common.IngestSummary{}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(c.parallelRecords)

	for _, record := range records {
		rec := record
		eg.Go(func() error {
			result, err := c.ingestRecord(ectx, rec)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Error("[Graph] record failed", "record", rec.ID, "err", err)
				summary.RecordsFailed++
				summary.Failures = append(summary.Failures, common.RecordError{
					RecordID: rec.ID,
					Err:      err.Error(),
				})
				return nil
			}
			summary.RecordsProcessed++
			summary.EntitiesUpserted += result.EntitiesUpserted
			summary.RelationsMerged += result.RelationsMerged
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		summary.Duration = time.Since(start)
		return summary, err
	}

	summary.Duration = time.Since(start)
	logger.Info("[Graph] ingestion finished",
		"processed", summary.RecordsProcessed,
		"failed", summary.RecordsFailed,
		"entities", summary.EntitiesUpserted,
		"relationships", summary.RelationsMerged,
		"duration", summary.Duration,
	)
	return summary, nil
}

// ingestRecord runs the extract / merge / index pipeline for one record.
// Rejected extractions degrade to an empty extraction so the record text is
// still stored for snippets; transaction failures retry with backoff since
// the rollback leaves nothing behind.
func (c *GraphClient) ingestRecord(
	ctx context.Context,
	record common.Record,
) (common.CommitResult, error) {
	entities, rels, err := c.extractor.Extract(ctx, record)
	if err != nil {
		if !errors.Is(err, common.ErrExtractionRejected) {
			return common.CommitResult{}, err
		}
		logger.Warn("[Graph] extraction rejected, storing record without entities",
			"record", record.ID, "err", err)
		entities, rels = nil, nil
	}

	result, err := util.RetryWithBackoff(ctx, c.maxRetries,
		200*time.Millisecond, 5*time.Second,
		func(ctx context.Context) (common.CommitResult, error) {
			return c.storage.MergeRecord(ctx, record, entities, rels)
		},
	)
	if err != nil {
		return common.CommitResult{}, err
	}

	if err := c.indexer.IndexEntities(ctx, entities); err != nil {
		return common.CommitResult{}, err
	}

	return result, nil
}
