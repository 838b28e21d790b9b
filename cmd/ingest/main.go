package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/plmforge/copilot/internal/queue"
	"github.com/plmforge/copilot/internal/storage"
	"github.com/plmforge/copilot/internal/util"
	"github.com/plmforge/copilot/pkg/graph"
	"github.com/plmforge/copilot/pkg/loader"
	"github.com/plmforge/copilot/pkg/logger"
	"github.com/plmforge/copilot/pkg/logger/console"
	pgxstore "github.com/plmforge/copilot/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// One-shot batch ingestion: load the named sources, build the graph, print
// the summary. Meant for initial imports and local development; production
// runs go through the worker.
func main() {
	util.LoadEnv()

	paths := flag.String("paths", "", "comma-separated CSV files and document directories")
	prefix := flag.String("prefix", "", "object storage prefix to ingest")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if *paths == "" && *prefix == "" {
		logger.Fatal("Nothing to ingest: set -paths and/or -prefix")
	}

	var s3Client *storage.Client
	if *prefix != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("Failed to create object storage client", "err", err)
		}
		s3Client = client
	}

	job := queue.QueueIngestJobMsg{Prefix: *prefix}
	for _, p := range strings.Split(*paths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			job.Paths = append(job.Paths, p)
		}
	}
	sources, err := queue.ResolveSources(s3Client, job)
	if err != nil {
		logger.Fatal("Failed to resolve sources", "err", err)
	}

	records, err := loader.LoadAll(ctx, sources...)
	if err != nil {
		logger.Fatal("Failed to load records", "err", err)
	}
	logger.Info("Loaded records", "count", len(records))

	aiClient := util.NewAIClientFromEnv()

	databaseURL := util.GetEnv("DATABASE_URL")
	if err := pgxstore.Migrate(databaseURL); err != nil {
		logger.Fatal("Failed to run database migrations", "err", err)
	}
	pgConn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	pgConn.Config().AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	graphStorage := pgxstore.NewGraphDBStorage(pgxstore.NewGraphDBStorageParams{
		Pool:         pgConn,
		EmbeddingDim: aiClient.EmbeddingDim(),
	})

	graphClient := graph.NewGraphClient(graph.NewGraphClientParams{
		AIClient: aiClient,
		Storage:  graphStorage,
	})

	summary, err := graphClient.IngestRecords(ctx, records)
	if err != nil {
		logger.Fatal("Ingestion aborted", "err", err)
	}

	fmt.Printf("processed: %d\n", summary.RecordsProcessed)
	fmt.Printf("failed:    %d\n", summary.RecordsFailed)
	fmt.Printf("entities:  %d\n", summary.EntitiesUpserted)
	fmt.Printf("relations: %d\n", summary.RelationsMerged)
	fmt.Printf("duration:  %s\n", summary.Duration.Round(time.Millisecond))
	for _, failure := range summary.Failures {
		fmt.Printf("  failed record %s: %s\n", failure.RecordID, failure.Err)
	}

	metrics := aiClient.GetMetrics()
	logger.Info(
		"AI Metrics",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
	)
}
