// Package main provides the compliance document ingestion daemon.
//
// ingestd scans an inbound directory for compliance documents (tabular CSV
// exports and unstructured PDF/text reports), runs each file through the
// ingestion pipeline, and records a per-stage audit trail in PostgreSQL.
// Documents are processed in parallel up to a configured worker limit; a
// corrupt document fails its own audit run and never halts the batch.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"golang.org/x/sync/errgroup"

	"github.com/compliance-io/compliance/internal/extract"
	"github.com/compliance-io/compliance/internal/ingest"
	"github.com/compliance-io/compliance/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "ingestd"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	dirFlag := flag.String("dir", "", "inbound directory to scan (overrides configuration)")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	scanConfig, err := LoadScanConfig()
	if err != nil {
		log.Printf("Invalid scan configuration: %v", err)
		os.Exit(1)
	}

	if *dirFlag != "" {
		scanConfig.InboundDir = *dirFlag
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: scanConfig.LogLevel,
	}))

	logger.Info("Starting ingestion daemon",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("inbound_dir", scanConfig.InboundDir),
		slog.String("extensions", strings.Join(scanConfig.Extensions, ",")),
		slog.Int("workers", scanConfig.Workers),
		slog.String("log_level", scanConfig.LogLevel.String()),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	logger.Info("Database connected",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
	)

	pipeline := ingest.NewPipeline(
		ingest.NewRegistry(storage.NewPersistentDocumentStore(dbConn), logger),
		ingest.NewRunTracker(storage.NewPersistentRunStore(dbConn), logger),
		storage.NewPersistentRecordStore(dbConn),
		map[ingest.SourceKind]ingest.Extractor{
			ingest.SourceTabular:      extract.NewTabularExtractor(),
			ingest.SourceUnstructured: extract.NewTextExtractor(),
		},
		logger,
	)

	if err := scanInbound(context.Background(), scanConfig, pipeline, logger); err != nil {
		logger.Error("Scan aborted", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Ingestion daemon finished")
}

// scanInbound processes every matching file in the inbound directory through
// the pipeline, in filename order, up to cfg.Workers documents in parallel.
//
// Document-level failures (unreadable, unclassifiable, all rows bad) are
// already absorbed into the outcome's audit runs and never abort the scan.
// Only infrastructure errors (database down, audit trail unwritable) abort,
// since continuing would ingest without a trace.
func scanInbound(ctx context.Context, cfg *ScanConfig, pipeline *ingest.Pipeline, logger *slog.Logger) error {
	entries, err := os.ReadDir(cfg.InboundDir)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Workers)

	matched := 0

	// ReadDir returns entries sorted by filename, which fixes the scan order.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		kind, ok := kindForFilename(cfg, entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(cfg.InboundDir, entry.Name())

		if cfg.MaxDocumentSize > 0 {
			info, err := entry.Info()
			if err != nil {
				return err
			}

			if info.Size() > cfg.MaxDocumentSize {
				logger.Warn("Skipping oversized document",
					slog.String("file", path),
					slog.Int64("size_bytes", info.Size()),
					slog.Int64("max_bytes", cfg.MaxDocumentSize),
				)

				continue
			}
		}

		matched++

		group.Go(func() error {
			return ingestFile(groupCtx, cfg, pipeline, path, kind, logger)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("Scan complete",
		slog.String("inbound_dir", cfg.InboundDir),
		slog.Int("files_matched", matched),
	)

	return nil
}

// ingestFile runs one document through the pipeline and logs its outcome.
// When configured, a fully successful document is removed from the inbound
// directory so the next scan does not reprocess it.
func ingestFile(ctx context.Context, cfg *ScanConfig, pipeline *ingest.Pipeline, path string, kind ingest.SourceKind, logger *slog.Logger) error {
	outcome, err := pipeline.Ingest(ctx, ingest.NewFileSource(path, kind))
	if err != nil {
		return err
	}

	attrs := []any{
		slog.String("file", path),
		slog.String("kind", string(kind)),
		slog.Bool("new_document", outcome.NewDocument),
		slog.Int("rows_attempted", outcome.RowsAttempted),
		slog.Int("rows_succeeded", outcome.RowsSucceeded),
		slog.Int("rows_failed", outcome.RowsFailed),
	}

	if outcome.DocumentID != nil {
		attrs = append(attrs, slog.Int64("document_id", *outcome.DocumentID))
	}

	if outcome.RowsFailed > 0 {
		logger.Warn("Document ingested with failures", attrs...)
	} else {
		logger.Info("Document ingested", attrs...)
	}

	if cfg.DeleteAfterIngest && fullySucceeded(outcome) {
		if err := os.Remove(path); err != nil {
			logger.Warn("Failed to remove ingested document",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// fullySucceeded reports whether every stage of a document's ingestion
// finished SUCCESS. Partial or failed documents stay in the inbound
// directory for inspection and re-ingestion.
func fullySucceeded(outcome *ingest.Outcome) bool {
	if len(outcome.Stages) == 0 {
		return false
	}

	for _, stage := range outcome.Stages {
		if stage.Status != ingest.RunSuccess {
			return false
		}
	}

	return true
}

// kindForFilename matches a filename against the configured extensions and
// maps it to a source kind: .csv is tabular, everything else configured
// (.pdf, .txt) is unstructured.
func kindForFilename(cfg *ScanConfig, filename string) (ingest.SourceKind, bool) {
	ext := strings.ToLower(filepath.Ext(filename))

	for _, allowed := range cfg.Extensions {
		if ext == allowed {
			if ext == ".csv" {
				return ingest.SourceTabular, true
			}

			return ingest.SourceUnstructured, true
		}
	}

	return "", false
}
