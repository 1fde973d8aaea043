package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// stubDocumentStore is a minimal in-package store for registry tests (the
// full in-memory implementation lives in internal/storage, which this
// package cannot import).
type stubDocumentStore struct {
	mu         sync.Mutex
	byChecksum map[string]*Document
	nextID     int64
	inserts    int
}

func newStubDocumentStore() *stubDocumentStore {
	return &stubDocumentStore{byChecksum: make(map[string]*Document)}
}

func (s *stubDocumentStore) FindByChecksum(_ context.Context, checksum string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byChecksum[checksum]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, checksum)
	}

	cp := *doc

	return &cp, nil
}

func (s *stubDocumentStore) Insert(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts++

	if _, ok := s.byChecksum[doc.Checksum]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateChecksum, doc.Checksum)
	}

	s.nextID++
	doc.ID = s.nextID

	cp := *doc
	s.byChecksum[doc.Checksum] = &cp

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterFirstSighting(t *testing.T) {
	store := newStubDocumentStore()
	reg := NewRegistry(store, testLogger())

	src := &BytesSource{Filename: "a.csv", Content: []byte("inspection data"), SourceKind: SourceTabular}

	doc, isNew, err := reg.Register(context.Background(), src)
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if !isNew {
		t.Error("expected isNew=true on first sighting")
	}

	if doc.ID == 0 {
		t.Error("document identity not assigned")
	}

	if len(doc.Checksum) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(doc.Checksum))
	}

	if doc.SizeBytes != int64(len("inspection data")) {
		t.Errorf("SizeBytes = %d, want %d", doc.SizeBytes, len("inspection data"))
	}
}

func TestRegisterSameBytesDifferentName(t *testing.T) {
	store := newStubDocumentStore()
	reg := NewRegistry(store, testLogger())
	ctx := context.Background()

	content := []byte("identical content")

	first, isNew, err := reg.Register(ctx, &BytesSource{Filename: "a.csv", Content: content, SourceKind: SourceTabular})
	if err != nil || !isNew {
		t.Fatalf("first Register() = (%v, %v)", isNew, err)
	}

	// Same bytes under a different filename resolve to the same identity:
	// content, not name, is what identifies a document.
	second, isNew, err := reg.Register(ctx, &BytesSource{Filename: "b.csv", Content: content, SourceKind: SourceTabular})
	if err != nil {
		t.Fatalf("second Register() failed: %v", err)
	}

	if isNew {
		t.Error("expected isNew=false for identical bytes")
	}

	if first.ID != second.ID {
		t.Errorf("identities differ: %d vs %d", first.ID, second.ID)
	}
}

func TestRegisterConcurrentSameChecksum(t *testing.T) {
	store := newStubDocumentStore()
	reg := NewRegistry(store, testLogger())
	ctx := context.Background()

	content := []byte("raced content with enough bytes to be realistic")

	const workers = 8

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]int)
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			doc, _, err := reg.Register(ctx, &BytesSource{Filename: "raced.csv", Content: content, SourceKind: SourceTabular})
			if err != nil {
				t.Errorf("Register() failed: %v", err)

				return
			}

			mu.Lock()
			ids[doc.ID]++
			mu.Unlock()
		}()
	}

	wg.Wait()

	if len(ids) != 1 {
		t.Errorf("concurrent registration produced %d identities, want 1", len(ids))
	}

	if len(store.byChecksum) != 1 {
		t.Errorf("store holds %d documents, want 1", len(store.byChecksum))
	}
}
