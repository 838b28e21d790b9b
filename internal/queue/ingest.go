package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/plmforge/copilot/internal/storage"
	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/graph"
	"github.com/plmforge/copilot/pkg/leaselock"
	"github.com/plmforge/copilot/pkg/loader"
	"github.com/plmforge/copilot/pkg/logger"
	pgxstore "github.com/plmforge/copilot/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// QueueIngestJobMsg is the ingest_queue message. Prefix selects an object
// storage export; Paths select local CSV files or document directories. Both
// may be set in one job.
type QueueIngestJobMsg struct {
	Message       string   `json:"message"`
	CorrelationID string   `json:"correlation_id"`
	Prefix        string   `json:"prefix,omitempty"`
	Paths         []string `json:"paths,omitempty"`
}

// IngestStatusMsg is broadcast on the "ingest.status" topic when a job
// finishes.
type IngestStatusMsg struct {
	CorrelationID    string `json:"correlation_id"`
	Status           string `json:"status"`
	RecordsProcessed int    `json:"records_processed"`
	RecordsFailed    int    `json:"records_failed"`
	Error            string `json:"error,omitempty"`
}

// ingestLease serializes graph writes across workers. Retried jobs are safe
// because every merge is idempotent, but concurrent bulk runs would fight
// over the same entity rows.
const ingestLease = "graph_ingest"

// ProcessIngestMessage runs one ingest job: resolve sources, load records,
// and build the graph under the ingest lease. A returned error sends the
// message to the retry queue.
func ProcessIngestMessage(
	ctx context.Context,
	s3Client *storage.Client,
	aiClient ai.GraphAIClient,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msgBody string,
) error {
	var data QueueIngestJobMsg
	if err := json.Unmarshal([]byte(msgBody), &data); err != nil {
		return fmt.Errorf("invalid ingest message: %w", err)
	}

	sources, err := ResolveSources(s3Client, data)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		logger.Warn("[Queue] ingest job names no sources", "correlation_id", data.CorrelationID)
		return nil
	}

	records, err := loader.LoadAll(ctx, sources...)
	if err != nil {
		return err
	}

	graphStorage := pgxstore.NewGraphDBStorage(pgxstore.NewGraphDBStorageParams{
		Pool:         conn,
		EmbeddingDim: aiClient.EmbeddingDim(),
	})

	graphClient := graph.NewGraphClient(graph.NewGraphClientParams{
		AIClient: aiClient,
		Storage:  graphStorage,
	})

	locks := leaselock.New(conn)
	var summary common.IngestSummary
	err = locks.WithLease(ctx, ingestLease, leaselock.Options{
		TTL:  10 * time.Minute,
		Wait: true,
	}, func(ctx context.Context) error {
		var ingestErr error
		summary, ingestErr = graphClient.IngestRecords(ctx, records)
		return ingestErr
	})

	status := IngestStatusMsg{
		CorrelationID:    data.CorrelationID,
		Status:           "done",
		RecordsProcessed: summary.RecordsProcessed,
		RecordsFailed:    summary.RecordsFailed,
	}
	if err != nil {
		status.Status = "failed"
		status.Error = err.Error()
	}
	if statusBytes, marshalErr := json.Marshal(status); marshalErr == nil {
		if pubErr := PublishTopic(ch, "ingest.status", statusBytes); pubErr != nil {
			logger.Error("[Queue] failed to publish ingest status", "err", pubErr)
		}
	}

	return err
}

// ResolveSources turns a job description into loader sources. Local paths may
// be CSV exports or document directories; anything else is rejected before
// loading starts.
func ResolveSources(s3Client *storage.Client, data QueueIngestJobMsg) ([]loader.Source, error) {
	sources := []loader.Source{}

	if data.Prefix != "" {
		if s3Client == nil {
			return nil, fmt.Errorf("ingest job names prefix %q but no object storage is configured", data.Prefix)
		}
		sources = append(sources, loader.NewS3Source(s3Client, data.Prefix))
	}

	for _, path := range data.Paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnavailable, path, err)
		}
		if info.IsDir() {
			sources = append(sources, loader.NewDirSource(path))
			continue
		}
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			src, err := loader.NewCSVSource(path)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
			continue
		}
		return nil, fmt.Errorf("unsupported ingest path %s", path)
	}

	return sources, nil
}
