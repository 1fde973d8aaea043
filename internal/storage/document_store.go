package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lib/pq"

	"github.com/compliance-io/compliance/internal/config"
	"github.com/compliance-io/compliance/internal/ingest"
)

// uniqueViolation is the PostgreSQL error code raised when an insert hits a
// unique constraint (pq.Error.Code "23505").
const uniqueViolation = "23505"

// PersistentDocumentStore implements ingest.DocumentStore with a PostgreSQL
// backend. The unique constraint on documents.checksum is the serialization
// point for concurrent registration of identical content.
type PersistentDocumentStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Ensure interface compliance at compile time.
var _ ingest.DocumentStore = (*PersistentDocumentStore)(nil)

// NewPersistentDocumentStore creates a document store backed by the given
// connection pool.
func NewPersistentDocumentStore(conn *Connection) *PersistentDocumentStore {
	return &PersistentDocumentStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// FindByChecksum retrieves the document registered for a content hash.
// Returns ingest.ErrNotFound when no document carries the checksum.
func (s *PersistentDocumentStore) FindByChecksum(ctx context.Context, checksum string) (*ingest.Document, error) {
	query := `
		SELECT id, source_kind, filename, path, checksum, size_bytes, received_at, metadata
		FROM documents
		WHERE checksum = $1
	`

	var (
		doc          ingest.Document
		metadataJSON []byte
	)

	err := s.conn.QueryRowContext(ctx, query, checksum).Scan(
		&doc.ID,
		&doc.Source,
		&doc.Filename,
		&doc.Path,
		&doc.Checksum,
		&doc.SizeBytes,
		&doc.ReceivedAt,
		&metadataJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: checksum %s", ingest.ErrNotFound, checksum)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query document by checksum: %w", err)
	}

	if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse document metadata: %w", err)
	}

	return &doc, nil
}

// Insert stores a new document and fills in its generated identity.
// Returns ingest.ErrDuplicateChecksum when the checksum already exists,
// including the case where a concurrent insert committed first.
func (s *PersistentDocumentStore) Insert(ctx context.Context, doc *ingest.Document) error {
	metadataJSON, err := metadataToJSON(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize document metadata: %w", err)
	}

	query := `
		INSERT INTO documents (source_kind, filename, path, checksum, size_bytes, received_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err = s.conn.QueryRowContext(
		ctx,
		query,
		doc.Source,
		doc.Filename,
		doc.Path,
		doc.Checksum,
		doc.SizeBytes,
		doc.ReceivedAt,
		metadataJSON,
	).Scan(&doc.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("%w: checksum %s", ingest.ErrDuplicateChecksum, doc.Checksum)
		}

		return fmt.Errorf("failed to insert document: %w", err)
	}

	s.logger.Debug("document registered",
		slog.Int64("document_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.String("checksum", doc.Checksum),
	)

	return nil
}

// metadataToJSON converts a metadata map to JSON for PostgreSQL JSONB storage.
func metadataToJSON(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}

	return json.Marshal(metadata)
}
