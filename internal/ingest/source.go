package ingest

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

type (
	// FileSource supplies a document from the local filesystem. Open returns
	// a fresh *os.File each call, so the checksum pass and the extraction
	// pass each read the file from the start.
	FileSource struct {
		FilePath   string
		SourceKind SourceKind
	}

	// BytesSource supplies a document from an in-memory byte slice (uploads,
	// tests). Open is trivially restartable.
	BytesSource struct {
		Filename   string
		Content    []byte
		SourceKind SourceKind
	}
)

// NewFileSource creates a file-backed source for the given path and kind.
func NewFileSource(path string, kind SourceKind) *FileSource {
	return &FileSource{FilePath: path, SourceKind: kind}
}

// Open opens the underlying file.
func (s *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.FilePath)
}

// Name returns the base filename.
func (s *FileSource) Name() string { return filepath.Base(s.FilePath) }

// Path returns the file's path as the document storage path.
func (s *FileSource) Path() string { return s.FilePath }

// Kind returns the declared source kind.
func (s *FileSource) Kind() SourceKind { return s.SourceKind }

// Open returns a reader over the in-memory content.
func (s *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Content)), nil
}

// Name returns the declared filename.
func (s *BytesSource) Name() string { return s.Filename }

// Path returns the filename; in-memory sources have no storage path.
func (s *BytesSource) Path() string { return s.Filename }

// Kind returns the declared source kind.
func (s *BytesSource) Kind() SourceKind { return s.SourceKind }
