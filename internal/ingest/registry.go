package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// checksumChunkSize bounds memory while hashing: large documents are streamed
// through the hasher rather than loaded whole.
const checksumChunkSize = 64 * 1024

// ErrRegistrationFailed is returned when a document cannot be registered.
// Registration failure is fatal to that document's ingestion — no partial
// document rows are ever left behind.
var ErrRegistrationFailed = errors.New("document registration failed")

// Registry is the idempotency boundary for the whole pipeline: it computes a
// content checksum for a raw document and records it exactly once.
type Registry struct {
	documents DocumentStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegistry creates a registry over the given document store.
func NewRegistry(documents DocumentStore, logger *slog.Logger) *Registry {
	return &Registry{
		documents: documents,
		logger:    logger,
		now:       time.Now,
	}
}

// Register resolves a raw document to its Document identity, creating it on
// first sighting of the checksum.
//
// Returns (doc, isNew, error):
//   - (doc, true, nil): first sighting, a new Document row was committed
//   - (doc, false, nil): checksum already registered; same identity returned
//   - (nil, false, err): checksum or storage failure, fatal to this document
//
// Safe to call concurrently. When two workers race on the same checksum the
// store's uniqueness constraint serializes them: the loser's insert reports
// ErrDuplicateChecksum and Register retries as a lookup, so both callers
// observe the same identity and exactly one row exists.
func (r *Registry) Register(ctx context.Context, src Source) (*Document, bool, error) {
	checksum, size, err := contentChecksum(src)
	if err != nil {
		return nil, false, fmt.Errorf("%w: checksum: %w", ErrRegistrationFailed, err)
	}

	existing, err := r.documents.FindByChecksum(ctx, checksum)
	if err == nil {
		r.logger.Debug("document already registered",
			slog.String("filename", src.Name()),
			slog.String("checksum", checksum),
			slog.Int64("document_id", existing.ID),
		)

		return existing, false, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("%w: lookup: %w", ErrRegistrationFailed, err)
	}

	doc := &Document{
		Source:     src.Kind(),
		Filename:   src.Name(),
		Path:       src.Path(),
		Checksum:   checksum,
		SizeBytes:  size,
		ReceivedAt: r.now(),
	}

	err = r.documents.Insert(ctx, doc)
	if err == nil {
		r.logger.Info("document registered",
			slog.String("filename", doc.Filename),
			slog.String("checksum", checksum),
			slog.Int64("document_id", doc.ID),
			slog.Int64("size_bytes", size),
		)

		return doc, true, nil
	}

	// Lost a registration race: another worker committed the same checksum
	// between our lookup and insert. Retry as a lookup.
	if errors.Is(err, ErrDuplicateChecksum) {
		existing, lookupErr := r.documents.FindByChecksum(ctx, checksum)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("%w: post-race lookup: %w", ErrRegistrationFailed, lookupErr)
		}

		return existing, false, nil
	}

	return nil, false, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
}

// contentChecksum streams the source through SHA-256 in bounded chunks,
// returning the hex digest and the byte count.
func contentChecksum(src Source) (string, int64, error) {
	reader, err := src.Open()
	if err != nil {
		return "", 0, err
	}

	defer func() {
		_ = reader.Close()
	}()

	hasher := sha256.New()

	size, err := io.CopyBuffer(hasher, reader, make([]byte, checksumChunkSize))
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}
