package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/compliance-io/compliance/internal/ingest"
)

// InMemoryDocumentStore provides thread-safe in-memory document storage for
// unit tests and local development. It honors the same checksum uniqueness
// contract as the PostgreSQL store.
type InMemoryDocumentStore struct {
	// byChecksum maps content checksums to registered documents
	byChecksum map[string]*ingest.Document
	nextID     int64
	mutex      sync.Mutex
}

// Ensure interface compliance at compile time.
var (
	_ ingest.DocumentStore = (*InMemoryDocumentStore)(nil)
	_ ingest.RunStore      = (*InMemoryRunStore)(nil)
	_ ingest.RecordStore   = (*InMemoryRecordStore)(nil)
)

// NewInMemoryDocumentStore creates a new thread-safe in-memory document store.
func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		byChecksum: make(map[string]*ingest.Document),
	}
}

// FindByChecksum retrieves the document registered for a content hash.
func (s *InMemoryDocumentStore) FindByChecksum(_ context.Context, checksum string) (*ingest.Document, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc, exists := s.byChecksum[checksum]
	if !exists {
		return nil, fmt.Errorf("%w: checksum %s", ingest.ErrNotFound, checksum)
	}

	// Return a copy to prevent external modification
	docCopy := *doc

	return &docCopy, nil
}

// Insert stores a new document, assigning a sequential identity.
func (s *InMemoryDocumentStore) Insert(_ context.Context, doc *ingest.Document) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byChecksum[doc.Checksum]; exists {
		return fmt.Errorf("%w: checksum %s", ingest.ErrDuplicateChecksum, doc.Checksum)
	}

	s.nextID++
	doc.ID = s.nextID

	docCopy := *doc
	s.byChecksum[doc.Checksum] = &docCopy

	return nil
}

// InMemoryRunStore provides thread-safe in-memory processing run storage
// for unit tests.
type InMemoryRunStore struct {
	runs  map[string]*ingest.ProcessingRun
	order []string
	mutex sync.Mutex
}

// NewInMemoryRunStore creates a new thread-safe in-memory run store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs: make(map[string]*ingest.ProcessingRun),
	}
}

// Insert records a processing run.
func (s *InMemoryRunStore) Insert(_ context.Context, run *ingest.ProcessingRun) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("duplicate run id %s", run.ID)
	}

	runCopy := *run
	s.runs[run.ID] = &runCopy
	s.order = append(s.order, run.ID)

	return nil
}

// Finalize writes the terminal state of a run exactly once.
func (s *InMemoryRunStore) Finalize(_ context.Context, run *ingest.ProcessingRun) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored, exists := s.runs[run.ID]
	if !exists {
		return fmt.Errorf("%w: run %s", ingest.ErrNotFound, run.ID)
	}

	if stored.FinishedAt != nil {
		return fmt.Errorf("%w: run %s already finalized", ingest.ErrNotFound, run.ID)
	}

	runCopy := *run
	s.runs[run.ID] = &runCopy

	return nil
}

// Runs returns all recorded runs in insertion order.
func (s *InMemoryRunStore) Runs() []*ingest.ProcessingRun {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := make([]*ingest.ProcessingRun, 0, len(s.order))

	for _, id := range s.order {
		runCopy := *s.runs[id]
		result = append(result, &runCopy)
	}

	return result
}

// InMemoryRecordStore provides in-memory domain record storage for unit
// tests. Transactions are simulated: inserts buffer until Commit, and
// lookups see both committed rows and rows buffered in the same
// transaction, matching the PostgreSQL read-your-writes behavior the
// pipeline relies on for back references.
type InMemoryRecordStore struct {
	inspections map[string]*ingest.Inspection
	ncrs        map[string]*ingest.NCR
	maintenance map[string]*ingest.MaintenanceEvent
	nextID      int64
	mutex       sync.Mutex
}

// NewInMemoryRecordStore creates a new in-memory record store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		inspections: make(map[string]*ingest.Inspection),
		ncrs:        make(map[string]*ingest.NCR),
		maintenance: make(map[string]*ingest.MaintenanceEvent),
	}
}

// Begin opens a buffered transaction over the store.
func (s *InMemoryRecordStore) Begin(_ context.Context) (ingest.RecordTx, error) {
	return &memoryRecordTx{
		store:       s,
		inspections: make(map[string]*ingest.Inspection),
		ncrs:        make(map[string]*ingest.NCR),
		maintenance: make(map[string]*ingest.MaintenanceEvent),
	}, nil
}

// InspectionByKey returns a committed inspection by natural key, for test
// assertions outside any transaction.
func (s *InMemoryRecordStore) InspectionByKey(key string) (*ingest.Inspection, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.inspections[key]
	if !ok {
		return nil, false
	}

	recCopy := *rec

	return &recCopy, true
}

// NCRByKey returns a committed NCR by natural key, for test assertions.
func (s *InMemoryRecordStore) NCRByKey(key string) (*ingest.NCR, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.ncrs[key]
	if !ok {
		return nil, false
	}

	recCopy := *rec

	return &recCopy, true
}

// MaintenanceEventByKey returns a committed maintenance event by natural
// key, for test assertions.
func (s *InMemoryRecordStore) MaintenanceEventByKey(key string) (*ingest.MaintenanceEvent, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.maintenance[key]
	if !ok {
		return nil, false
	}

	recCopy := *rec

	return &recCopy, true
}

// CountRecords returns the committed row counts per table, for test
// assertions.
func (s *InMemoryRecordStore) CountRecords() (inspections, ncrs, maintenance int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.inspections), len(s.ncrs), len(s.maintenance)
}

// memoryRecordTx buffers inserts until Commit.
type memoryRecordTx struct {
	store       *InMemoryRecordStore
	inspections map[string]*ingest.Inspection
	ncrs        map[string]*ingest.NCR
	maintenance map[string]*ingest.MaintenanceEvent
	done        bool
}

func (t *memoryRecordTx) FindInspectionByKey(_ context.Context, inspectionID string) (int64, error) {
	if rec, ok := t.inspections[inspectionID]; ok {
		return rec.ID, nil
	}

	t.store.mutex.Lock()
	defer t.store.mutex.Unlock()

	if rec, ok := t.store.inspections[inspectionID]; ok {
		return rec.ID, nil
	}

	return 0, fmt.Errorf("%w: %s", ingest.ErrNotFound, inspectionID)
}

func (t *memoryRecordTx) InsertInspection(ctx context.Context, rec *ingest.Inspection) (bool, error) {
	if _, err := t.FindInspectionByKey(ctx, rec.InspectionID); err == nil {
		return false, nil
	}

	rec.ID = t.store.allocateID()

	recCopy := *rec
	t.inspections[rec.InspectionID] = &recCopy

	return true, nil
}

func (t *memoryRecordTx) FindNCRByKey(_ context.Context, ncrID string) (int64, error) {
	if rec, ok := t.ncrs[ncrID]; ok {
		return rec.ID, nil
	}

	t.store.mutex.Lock()
	defer t.store.mutex.Unlock()

	if rec, ok := t.store.ncrs[ncrID]; ok {
		return rec.ID, nil
	}

	return 0, fmt.Errorf("%w: %s", ingest.ErrNotFound, ncrID)
}

func (t *memoryRecordTx) InsertNCR(ctx context.Context, rec *ingest.NCR) (bool, error) {
	if _, err := t.FindNCRByKey(ctx, rec.NCRID); err == nil {
		return false, nil
	}

	rec.ID = t.store.allocateID()

	recCopy := *rec
	t.ncrs[rec.NCRID] = &recCopy

	return true, nil
}

func (t *memoryRecordTx) FindMaintenanceEventByKey(_ context.Context, eventID string) (int64, error) {
	if rec, ok := t.maintenance[eventID]; ok {
		return rec.ID, nil
	}

	t.store.mutex.Lock()
	defer t.store.mutex.Unlock()

	if rec, ok := t.store.maintenance[eventID]; ok {
		return rec.ID, nil
	}

	return 0, fmt.Errorf("%w: %s", ingest.ErrNotFound, eventID)
}

func (t *memoryRecordTx) InsertMaintenanceEvent(ctx context.Context, rec *ingest.MaintenanceEvent) (bool, error) {
	if _, err := t.FindMaintenanceEventByKey(ctx, rec.EventID); err == nil {
		return false, nil
	}

	rec.ID = t.store.allocateID()

	recCopy := *rec
	t.maintenance[rec.EventID] = &recCopy

	return true, nil
}

// Commit publishes the buffered rows to the shared store.
func (t *memoryRecordTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}

	t.done = true

	t.store.mutex.Lock()
	defer t.store.mutex.Unlock()

	for key, rec := range t.inspections {
		t.store.inspections[key] = rec
	}

	for key, rec := range t.ncrs {
		t.store.ncrs[key] = rec
	}

	for key, rec := range t.maintenance {
		t.store.maintenance[key] = rec
	}

	return nil
}

// Rollback discards buffered rows. Safe to call after Commit (no-op).
func (t *memoryRecordTx) Rollback() error {
	t.done = true
	t.inspections = nil
	t.ncrs = nil
	t.maintenance = nil

	return nil
}

func (s *InMemoryRecordStore) allocateID() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextID++

	return s.nextID
}
